package cli

import (
	"github.com/spf13/cobra"
)

// NewProxyCommand creates the proxy command.
func NewProxyCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "proxy",
		Short: "Serve the API proxy endpoint",
		Long: `Serve an HTTP endpoint that forwards JSON calls to the configured proxy
API, adding the API key server-side. Listens on proxy.listen_addr
(PROXY_LISTEN_ADDR) until interrupted.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runProxy(rootOpts, cmd)
		},
	}
}

func runProxy(opts *RootOptions, cmd *cobra.Command) error {
	ctx, cancel := signalContext(cmd)
	defer cancel()

	rt, err := opts.openRuntime(ctx, cmd)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to start", err)
	}
	defer rt.Close()

	srv, err := rt.Proxy()
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to start proxy", err)
	}
	if err := srv.ListenAndServe(ctx, rt.Config.Proxy.ListenAddr); err != nil {
		return WrapExitError(ExitFailure, "proxy error", err)
	}
	return nil
}

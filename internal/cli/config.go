package cli

import (
	"github.com/spf13/cobra"

	"github.com/roach88/docpost/internal/config"
)

// NewConfigCommand creates the config command group.
func NewConfigCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect the configuration",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Validate the configuration and print it with secrets hidden",
		Long: `Merge the defaults, the --config file and the environment, validate the
result against the configuration schema, and print it. Exits 1 on the
first schema violation.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigValidate(rootOpts, cmd)
		},
	})
	return cmd
}

// ConfigResult is the output of config validate.
type ConfigResult struct {
	Valid          bool          `json:"valid"`
	Config         config.Config `json:"config"`
	TemplateSource string        `json:"template_source"`
	EndpointURL    string        `json:"endpoint_url"`
}

func runConfigValidate(opts *RootOptions, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	cfg, err := opts.loadConfig()
	if err != nil {
		return formatter.Fail(ExitFailure, "invalid configuration", err)
	}
	src, err := cfg.TemplateSource()
	if err != nil {
		return formatter.Fail(ExitFailure, "invalid configuration", err)
	}
	url, err := cfg.EndpointURL()
	if err != nil {
		return formatter.Fail(ExitFailure, "invalid configuration", err)
	}

	result := ConfigResult{
		Valid:          true,
		Config:         cfg.Redacted(),
		TemplateSource: src.Kind.String(),
		EndpointURL:    url,
	}
	return formatter.SuccessText(result, "configuration valid: "+result.Config.String())
}

package cli

import (
	"bytes"
	"context"
	"io"
	"path/filepath"
	"testing"
	"time"

	"github.com/roach88/docpost/internal/app"
	"github.com/roach88/docpost/internal/config"
)

// testEnv returns a lookup over vars.
func testEnv(vars map[string]string) config.LookupFunc {
	return func(key string) (string, bool) {
		v, ok := vars[key]
		return v, ok
	}
}

func baseEnv(apiURL string) map[string]string {
	return map[string]string{
		"API_URL":             apiURL,
		"COLLECTION_PATH":     "posts",
		"BEARER_ACCESS_TOKEN": "tok",
		"DO_BACKFILL":         "true",
	}
}

// testCLI runs commands against one database in t.TempDir().
type testCLI struct {
	t    *testing.T
	db   string
	opts *RootOptions
}

func newTestCLI(t *testing.T, env map[string]string) *testCLI {
	t.Helper()
	return &testCLI{
		t:  t,
		db: filepath.Join(t.TempDir(), "docpost.db"),
		opts: &RootOptions{
			Lookup:     testEnv(env),
			AppOptions: appOptionsForTest(),
		},
	}
}

// run executes the root command with args and returns stdout.
func (c *testCLI) run(args ...string) (string, error) {
	return c.runContext(context.Background(), args...)
}

func (c *testCLI) runContext(ctx context.Context, args ...string) (string, error) {
	c.t.Helper()
	out := &bytes.Buffer{}
	cmd := newRootCommand(c.opts)
	cmd.SetOut(out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(append([]string{"--db", c.db}, args...))
	err := cmd.ExecuteContext(ctx)
	return out.String(), err
}

func appOptionsForTest() app.Options {
	return app.Options{PollInterval: 10 * time.Millisecond}
}

package cli

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand_HasSubcommands(t *testing.T) {
	cmd := NewRootCommand()
	assert.Equal(t, "docpost", cmd.Use)

	for _, name := range []string{"run", "backfill", "doc", "status", "proxy", "config"} {
		t.Run(name, func(t *testing.T) {
			sub, _, err := cmd.Find([]string{name})
			require.NoError(t, err)
			assert.Equal(t, name, sub.Name())
		})
	}
}

func TestRootCommand_GlobalFlags(t *testing.T) {
	cmd := NewRootCommand()
	flags := cmd.PersistentFlags()

	verbose := flags.Lookup("verbose")
	require.NotNil(t, verbose)
	assert.Equal(t, "v", verbose.Shorthand)
	assert.Equal(t, "false", verbose.DefValue)

	format := flags.Lookup("format")
	require.NotNil(t, format)
	assert.Equal(t, "text", format.DefValue)

	db := flags.Lookup("db")
	require.NotNil(t, db)
	assert.Equal(t, DefaultDatabase, db.DefValue)

	assert.NotNil(t, flags.Lookup("config"))
}

func TestRootCommand_RejectsInvalidFormat(t *testing.T) {
	cmd := NewRootCommand()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"--format", "xml", "status"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), `invalid format "xml"`)
}

func TestRootOptions_LoggerFollowsFormat(t *testing.T) {
	var buf bytes.Buffer
	(&RootOptions{Format: "json"}).logger(&buf).Info("hello", "k", 1)
	assert.Contains(t, buf.String(), `"msg":"hello"`)

	buf.Reset()
	(&RootOptions{Format: "text"}).logger(&buf).Debug("hidden")
	assert.Empty(t, buf.String())

	(&RootOptions{Format: "text", Verbose: true}).logger(&buf).Debug("shown")
	assert.Contains(t, buf.String(), "msg=shown")
}

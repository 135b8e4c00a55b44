package cli

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDoc_PutGetDelete(t *testing.T) {
	c := newTestCLI(t, baseEnv("https://api.example.com"))

	out, err := c.run("doc", "put", "posts/a", `{"input":"hi","n":1}`)
	require.NoError(t, err)
	assert.Equal(t, "posts/a\n", out)

	out, err = c.run("doc", "get", "posts/a")
	require.NoError(t, err)
	assert.Equal(t, `{"input":"hi","n":1}`+"\n", out)

	out, err = c.run("doc", "delete", "posts/a")
	require.NoError(t, err)
	assert.Equal(t, "deleted posts/a\n", out)

	_, err = c.run("doc", "get", "posts/a")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
}

func TestDoc_AddGeneratesID(t *testing.T) {
	c := newTestCLI(t, baseEnv("https://api.example.com"))

	out, err := c.run("doc", "add", "posts", `{"input":"hi"}`)
	require.NoError(t, err)
	path := strings.TrimSpace(out)
	assert.True(t, strings.HasPrefix(path, "posts/"), "got %q", path)

	_, err = c.run("doc", "get", path)
	require.NoError(t, err)
}

func TestDoc_GetJSON(t *testing.T) {
	c := newTestCLI(t, baseEnv("https://api.example.com"))
	_, err := c.run("doc", "put", "posts/a", `{"input":"hi"}`)
	require.NoError(t, err)

	out, err := c.run("--format", "json", "doc", "get", "posts/a")
	require.NoError(t, err)

	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, map[string]any{
		"path":   "posts/a",
		"exists": true,
		"data":   map[string]any{"input": "hi"},
	}, resp.Data)
}

func TestDoc_RejectsNonObject(t *testing.T) {
	c := newTestCLI(t, baseEnv("https://api.example.com"))

	out, err := c.run("doc", "put", "posts/a", `[1,2]`)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, "invalid document")
}

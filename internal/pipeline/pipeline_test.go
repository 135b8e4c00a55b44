package pipeline

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/docpost/internal/docstore"
	"github.com/roach88/docpost/internal/fault"
	"github.com/roach88/docpost/internal/gate"
	"github.com/roach88/docpost/internal/remote"
	"github.com/roach88/docpost/internal/template"
	"github.com/roach88/docpost/internal/testutil"
	"github.com/roach88/docpost/internal/value"
)

func snapshot(data value.Object) docstore.Snapshot {
	return docstore.Snapshot{Path: "docs/a", ID: "a", Exists: true, Data: data}
}

func baseOptions() Options {
	return Options{
		InputField:   "input",
		OutputField:  "output",
		VersionField: "currentVersion",
		Strategy:     gate.Never,
	}
}

func TestProcess_Untemplated(t *testing.T) {
	e := testutil.NewEndpoint(t, testutil.Echo("echo"))
	p := New(remote.New(e.URL, "tok"), baseOptions())

	res, ok, reason, err := p.Process(context.Background(), snapshot(value.Object{"input": "hello"}))
	require.NoError(t, err)
	require.True(t, ok, reason)
	assert.Equal(t, map[string]any{"echo": "hello"}, res.Output)
	assert.False(t, res.HasVersion)
	assert.Equal(t, 1, e.Count())
}

func TestProcess_UntemplatedSkipsExistingOutput(t *testing.T) {
	e := testutil.NewEndpoint(t, testutil.Echo("echo"))
	p := New(remote.New(e.URL, "tok"), baseOptions())

	_, ok, reason, err := p.Process(context.Background(), snapshot(value.Object{"input": "x", "output": "old"}))
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, SkipAlreadyOutput, reason)
	assert.Zero(t, e.Count())
}

func TestProcess_NoInput(t *testing.T) {
	e := testutil.NewEndpoint(t, testutil.Echo(""))
	p := New(remote.New(e.URL, "tok"), baseOptions())

	for _, data := range []value.Object{{}, {"input": nil}} {
		_, ok, reason, err := p.Process(context.Background(), snapshot(data))
		require.NoError(t, err)
		assert.False(t, ok)
		assert.Equal(t, SkipNoInput, reason)
	}
	assert.Zero(t, e.Count())
}

func TestProcess_ResponseField(t *testing.T) {
	e := testutil.NewEndpoint(t, testutil.Status(http.StatusOK, map[string]any{
		"data": map[string]any{"url": "https://x"},
	}))
	opts := baseOptions()
	opts.ResponseField = "data"
	p := New(remote.New(e.URL, "tok"), opts)

	res, ok, _, err := p.Process(context.Background(), snapshot(value.Object{"input": "a"}))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, map[string]any{"url": "https://x"}, res.Output)
}

func TestProcess_ResponseFieldExactKeyBeforePath(t *testing.T) {
	tests := []struct {
		name string
		body map[string]any
		want any
	}{
		{"dotted top-level key", map[string]any{"short.url": "https://a", "short": map[string]any{"url": "https://b"}}, "https://a"},
		{"nested path", map[string]any{"short": map[string]any{"url": "https://b"}}, "https://b"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := testutil.NewEndpoint(t, testutil.Status(http.StatusOK, tt.body))
			opts := baseOptions()
			opts.ResponseField = "short.url"
			p := New(remote.New(e.URL, "tok"), opts)

			res, ok, _, err := p.Process(context.Background(), snapshot(value.Object{"input": "a"}))
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, tt.want, res.Output)
		})
	}
}

func TestProcess_MissingResponseField(t *testing.T) {
	e := testutil.NewEndpoint(t, testutil.Status(http.StatusOK, map[string]any{"other": 1}))
	opts := baseOptions()
	opts.ResponseField = "data"
	p := New(remote.New(e.URL, "tok"), opts)

	_, ok, _, err := p.Process(context.Background(), snapshot(value.Object{"input": "a"}))
	require.Error(t, err)
	assert.False(t, ok)
	assert.True(t, fault.Is(err, fault.CodeRemoteCallFailed))
}

func TestProcess_RemoteFailure(t *testing.T) {
	e := testutil.NewEndpoint(t, testutil.Status(http.StatusBadGateway, "nope"))
	p := New(remote.New(e.URL, "tok"), baseOptions())

	_, ok, _, err := p.Process(context.Background(), snapshot(value.Object{"input": "a"}))
	require.Error(t, err)
	assert.False(t, ok)
	assert.True(t, fault.Is(err, fault.CodeRemoteCallFailed))
}

func TestProcess_StaticTemplate(t *testing.T) {
	e := testutil.NewEndpoint(t, testutil.Status(http.StatusOK, map[string]any{
		"data": map[string]any{"tiny_url": "https://tinyurl.com/abc", "alias": "abc"},
	}))
	opts := baseOptions()
	opts.Strategy = gate.IfNewer
	opts.Templates = template.Static(map[string]any{
		"shortUrl": "{{data.tiny_url}}",
		"alias":    "{{data.alias}}",
	})
	p := New(remote.New(e.URL, "tok"), opts)

	res, ok, _, err := p.Process(context.Background(), snapshot(value.Object{"input": map[string]any{"url": "https://example.com"}}))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, map[string]any{"shortUrl": "https://tinyurl.com/abc", "alias": "abc"}, res.Output)
	assert.True(t, res.HasVersion)
	assert.Equal(t, int64(0), res.Version)

	// Same template version recorded on the document: ifNewer skips.
	_, ok, reason, err := p.Process(context.Background(), snapshot(value.Object{
		"input":          "x",
		"currentVersion": json.Number("0"),
	}))
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, SkipGate, reason)
	assert.Equal(t, 1, e.Count())
}

func TestProcess_TemplateGateStrategies(t *testing.T) {
	doc := value.Object{"input": "x", "output": "old", "currentVersion": json.Number("2")}

	tests := []struct {
		name     string
		strategy gate.Strategy
		version  int64
		want     bool
	}{
		{"always reprocesses", gate.Always, 1, true},
		{"never skips", gate.Never, 5, false},
		{"ifNewer with newer template", gate.IfNewer, 3, true},
		{"ifNewer with same template", gate.IfNewer, 2, false},
		{"ifNewer with older template", gate.IfNewer, 1, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := testutil.NewEndpoint(t, testutil.Echo("v"))
			ds := testutil.OpenStore(t)
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			require.NoError(t, ds.Set(ctx, "templates/t", value.Object{
				"template": map[string]any{"out": "{{v}}"},
				"version":  tt.version,
			}))
			ts, err := template.Live(ctx, ds, "templates/t", nil)
			require.NoError(t, err)

			opts := baseOptions()
			opts.Strategy = tt.strategy
			opts.Templates = ts
			p := New(remote.New(e.URL, "tok"), opts)

			res, ok, _, err := p.Process(ctx, snapshot(doc))
			require.NoError(t, err)
			assert.Equal(t, tt.want, ok)
			if tt.want {
				assert.Equal(t, map[string]any{"out": "x"}, res.Output)
				assert.Equal(t, tt.version, res.Version)
			}
		})
	}
}

func TestProcess_MissingTemplateFailsBeforeRemoteCall(t *testing.T) {
	e := testutil.NewEndpoint(t, testutil.Echo(""))
	ds := testutil.OpenStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ts, err := template.Live(ctx, ds, "templates/missing", nil)
	require.NoError(t, err)

	opts := baseOptions()
	opts.Strategy = gate.Always
	opts.Templates = ts
	p := New(remote.New(e.URL, "tok"), opts)

	_, ok, _, err := p.Process(ctx, snapshot(value.Object{"input": "x"}))
	require.Error(t, err)
	assert.False(t, ok)
	assert.True(t, fault.Is(err, fault.CodeMissingTemplate))
	assert.Zero(t, e.Count())
}

func TestProcess_RenderFailure(t *testing.T) {
	e := testutil.NewEndpoint(t, testutil.Status(http.StatusOK, map[string]any{"a": 1}))
	opts := baseOptions()
	opts.Strategy = gate.Always
	opts.Templates = template.Static(map[string]any{"out": "{{missing.path}}"})
	p := New(remote.New(e.URL, "tok"), opts)

	_, ok, _, err := p.Process(context.Background(), snapshot(value.Object{"input": "x"}))
	require.Error(t, err)
	assert.False(t, ok)
	assert.True(t, fault.Is(err, fault.CodeTemplateRenderFailed))
	assert.Equal(t, 1, e.Count())
}

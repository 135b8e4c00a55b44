package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/docpost/internal/fault"
)

func env(vars map[string]string) LookupFunc {
	return func(key string) (string, bool) {
		v, ok := vars[key]
		return v, ok
	}
}

func validEnv() map[string]string {
	return map[string]string{
		"COLLECTION_PATH":     "posts",
		"API_URL":             "https://api.example.com/render",
		"BEARER_ACCESS_TOKEN": "secret",
	}
}

func requireInvalid(t *testing.T, err error, field string) {
	t.Helper()
	require.Error(t, err)
	assert.True(t, fault.Is(err, fault.CodeInvalidConfiguration), "got %v", err)
	var verr *ValidationError
	if field != "" {
		require.True(t, errors.As(err, &verr), "want ValidationError, got %v", err)
		assert.Contains(t, verr.Field, field)
	}
}

func TestLoad_DefaultsAndEnv(t *testing.T) {
	cfg, err := Load("", env(validEnv()))
	require.NoError(t, err)

	assert.Equal(t, "input", cfg.InputField)
	assert.Equal(t, "output", cfg.OutputField)
	assert.Equal(t, "currentVersion", cfg.VersionField)
	assert.Equal(t, "never", cfg.Strategy)
	assert.Equal(t, PresetNone, cfg.Preset)
	assert.Equal(t, 250, cfg.BatchSize)
	assert.Equal(t, "docpost", cfg.InstanceID)
	assert.False(t, cfg.DoBackfill)
	assert.Equal(t, "posts", cfg.Collection)
	assert.Equal(t, "secret", cfg.BearerToken)
}

func TestLoad_EnvOverrides(t *testing.T) {
	vars := validEnv()
	vars["INPUT_FIELD_NAME"] = "text"
	vars["OUTPUT_FIELD_NAME"] = "result"
	vars["UPDATED_TEMPLATE_STRATEGY"] = "ifNewer"
	vars["DO_BACKFILL"] = "true"
	vars["BACKFILL_BATCH_SIZE"] = "100"
	vars["TRIGGER_CONCURRENCY"] = "2"
	vars["TEMPLATE_PATH"] = "templates/main"

	cfg, err := Load("", env(vars))
	require.NoError(t, err)
	assert.Equal(t, "text", cfg.InputField)
	assert.Equal(t, "result", cfg.OutputField)
	assert.Equal(t, "ifNewer", cfg.Strategy)
	assert.True(t, cfg.DoBackfill)
	assert.Equal(t, 100, cfg.BatchSize)
	assert.Equal(t, 2, cfg.TriggerConcurrency)
	assert.Equal(t, "templates/main", cfg.TemplatePath)
}

func TestLoad_ProxyCallDefaults(t *testing.T) {
	vars := validEnv()
	vars["PROXY_HTTP_HEADERS"] = `{"X-Tenant":"acme","Accept":"application/json"}`
	vars["PROXY_HTTP_BODY"] = `{"limit":10}`
	vars["PROXY_CONFIG_DOCUMENT_PATH"] = "settings/proxy"

	cfg, err := Load("", env(vars))
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"X-Tenant": "acme", "Accept": "application/json"}, cfg.Proxy.Headers)
	assert.Equal(t, `{"limit":10}`, cfg.Proxy.Body)
	assert.Equal(t, "settings/proxy", cfg.Proxy.ConfigDocument)
}

func TestLoad_ProxyHeadersMustBeStringObject(t *testing.T) {
	for _, raw := range []string{`["a"]`, `{"n":1}`, `null`, `{`} {
		t.Run(raw, func(t *testing.T) {
			vars := validEnv()
			vars["PROXY_HTTP_HEADERS"] = raw
			_, err := Load("", env(vars))
			requireInvalid(t, err, "")
			assert.Contains(t, err.Error(), "PROXY_HTTP_HEADERS")
		})
	}
}

func TestLoad_EmptyEnvIgnored(t *testing.T) {
	vars := validEnv()
	vars["OUTPUT_FIELD_NAME"] = ""

	cfg, err := Load("", env(vars))
	require.NoError(t, err)
	assert.Equal(t, "output", cfg.OutputField)
}

func TestLoad_BadEnvValues(t *testing.T) {
	for _, key := range []string{"DO_BACKFILL", "BACKFILL_BATCH_SIZE", "TRANSACTION_MAX_ATTEMPTS"} {
		t.Run(key, func(t *testing.T) {
			vars := validEnv()
			vars[key] = "lots"
			_, err := Load("", env(vars))
			requireInvalid(t, err, "")
			assert.Contains(t, err.Error(), key)
		})
	}
}

func TestLoad_YAMLThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "docpost.yaml")
	yamlDoc := `
collection: articles
api_url: https://yaml.example.com
strategy: always
batch_size: 50
`
	require.NoError(t, os.WriteFile(path, []byte(yamlDoc), 0644))

	cfg, err := Load(path, env(map[string]string{"UPDATED_TEMPLATE_STRATEGY": "ifNewer"}))
	require.NoError(t, err)
	assert.Equal(t, "articles", cfg.Collection)
	assert.Equal(t, "https://yaml.example.com", cfg.APIURL)
	assert.Equal(t, 50, cfg.BatchSize)
	assert.Equal(t, "ifNewer", cfg.Strategy, "env wins over file")
	assert.Equal(t, "input", cfg.InputField, "defaults survive")
}

func TestLoad_YAMLUnknownKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), "docpost.yaml")
	require.NoError(t, os.WriteFile(path, []byte("colection: typo\n"), 0644))

	_, err := Load(path, nil)
	requireInvalid(t, err, "")
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"), nil)
	requireInvalid(t, err, "")
}

func TestValidate_Rules(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
		field  string
	}{
		{"same input and output", func(c *Config) { c.OutputField = c.InputField }, "output_field"},
		{"empty input", func(c *Config) { c.InputField = "" }, "input_field"},
		{"unknown strategy", func(c *Config) { c.Strategy = "sometimes" }, "strategy"},
		{"missing collection", func(c *Config) { c.Collection = "" }, "collection"},
		{"batch too large", func(c *Config) { c.BatchSize = 501 }, "batch_size"},
		{"batch zero", func(c *Config) { c.BatchSize = 0 }, "batch_size"},
		{"api url without scheme", func(c *Config) { c.APIURL = "api.example.com" }, "api_url"},
		{"unknown preset", func(c *Config) { c.Preset = "nope" }, "preset"},
		{"zero attempts", func(c *Config) { c.TransactionMaxAttempts = 0 }, "transaction_max_attempts"},
		{"bad proxy method", func(c *Config) { c.Proxy.HTTPMethod = "TRACE" }, "http_method"},
		{"plain http proxy url", func(c *Config) { c.Proxy.APIURL = "http://api.example.com" }, "api_url"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			cfg.Collection = "posts"
			cfg.APIURL = "https://api.example.com"
			tt.mutate(&cfg)
			requireInvalid(t, cfg.Validate(), tt.field)
		})
	}
}

func TestValidate_PresetNeedsNoURL(t *testing.T) {
	cfg := Defaults()
	cfg.Collection = "posts"
	cfg.Preset = "tinyurl"
	require.NoError(t, cfg.Validate())

	url, err := cfg.EndpointURL()
	require.NoError(t, err)
	assert.Equal(t, "https://api.tinyurl.com/create", url)
}

func TestValidationError_Position(t *testing.T) {
	cfg := Defaults()
	cfg.Collection = "posts"
	cfg.APIURL = "https://api.example.com"
	cfg.Strategy = "sometimes"

	err := cfg.Validate()
	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.NotEmpty(t, verr.Message)
	assert.Contains(t, verr.Error(), "strategy")
}

func TestTemplateSource(t *testing.T) {
	cfg := Defaults()

	src, err := cfg.TemplateSource()
	require.NoError(t, err)
	assert.Equal(t, TemplateNone, src.Kind)

	cfg.TemplatePath = "templates/main"
	src, err = cfg.TemplateSource()
	require.NoError(t, err)
	assert.Equal(t, TemplateLive, src.Kind)
	assert.Equal(t, "templates/main", src.Path)

	// A preset wins over the template path.
	cfg.Preset = "bitly"
	src, err = cfg.TemplateSource()
	require.NoError(t, err)
	assert.Equal(t, TemplateStatic, src.Kind)
	require.NotNil(t, src.Preset)
	assert.Equal(t, "{{link}}", src.Preset.Template["shortUrl"])

	cfg.Preset = "nope"
	_, err = cfg.TemplateSource()
	assert.True(t, fault.Is(err, fault.CodeInvalidConfiguration))
}

func TestPresetNames(t *testing.T) {
	names, err := PresetNames()
	require.NoError(t, err)
	assert.Equal(t, []string{"bitly", "tinyurl"}, names)
}

func TestRedacted(t *testing.T) {
	cfg := Defaults()
	cfg.BearerToken = "secret"
	cfg.Proxy.APIKey = "key"

	r := cfg.Redacted()
	assert.Equal(t, "********", r.BearerToken)
	assert.Equal(t, "********", r.Proxy.APIKey)
	assert.Equal(t, "secret", cfg.BearerToken, "original untouched")
	assert.NotContains(t, cfg.String(), "secret")
}

func TestEnvNames(t *testing.T) {
	names := EnvNames()
	assert.Contains(t, names, "BEARER_ACCESS_TOKEN")
	assert.Contains(t, names, "COLLECTION_PATH")
	assert.Contains(t, names, "DO_BACKFILL")
}

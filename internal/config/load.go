package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/roach88/docpost/internal/fault"
)

// LookupFunc reads one environment variable. os.LookupEnv satisfies it.
type LookupFunc func(key string) (string, bool)

// Load builds the configuration from defaults, the YAML file at path (if
// path is non-empty), and the environment, then validates it.
func Load(path string, lookup LookupFunc) (Config, error) {
	cfg := Defaults()
	if path != "" {
		if err := cfg.MergeFile(path); err != nil {
			return Config{}, err
		}
	}
	if lookup != nil {
		if err := cfg.MergeEnv(lookup); err != nil {
			return Config{}, err
		}
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// MergeFile overlays the keys present in a YAML file.
func (c *Config) MergeFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fault.Wrap(fault.CodeInvalidConfiguration, err, "read config file %s", path)
	}
	if err := c.MergeYAML(data); err != nil {
		return fault.Wrap(fault.CodeInvalidConfiguration, err, "config file %s", path)
	}
	return nil
}

// MergeYAML overlays the keys present in a YAML document. Unknown keys are
// rejected.
func (c *Config) MergeYAML(data []byte) error {
	if strings.TrimSpace(string(data)) == "" {
		return nil
	}
	dec := yaml.NewDecoder(strings.NewReader(string(data)))
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil {
		return fmt.Errorf("parse yaml: %w", err)
	}
	return nil
}

// envVar binds one environment variable to a config field.
type envVar struct {
	name string
	set  func(c *Config, raw string) error
}

func stringVar(name string, field func(c *Config) *string) envVar {
	return envVar{name: name, set: func(c *Config, raw string) error {
		*field(c) = raw
		return nil
	}}
}

func intVar(name string, field func(c *Config) *int) envVar {
	return envVar{name: name, set: func(c *Config, raw string) error {
		n, err := strconv.Atoi(strings.TrimSpace(raw))
		if err != nil {
			return fmt.Errorf("%s: not an integer: %q", name, raw)
		}
		*field(c) = n
		return nil
	}}
}

func boolVar(name string, field func(c *Config) *bool) envVar {
	return envVar{name: name, set: func(c *Config, raw string) error {
		b, err := strconv.ParseBool(strings.TrimSpace(raw))
		if err != nil {
			return fmt.Errorf("%s: not a boolean: %q", name, raw)
		}
		*field(c) = b
		return nil
	}}
}

// headersVar reads a JSON object of string values.
func headersVar(name string, field func(c *Config) *map[string]string) envVar {
	return envVar{name: name, set: func(c *Config, raw string) error {
		var headers map[string]string
		if err := json.Unmarshal([]byte(raw), &headers); err != nil || headers == nil {
			return fmt.Errorf("%s: must be a JSON object of strings: %q", name, raw)
		}
		*field(c) = headers
		return nil
	}}
}

var envVars = []envVar{
	stringVar("INPUT_FIELD_NAME", func(c *Config) *string { return &c.InputField }),
	stringVar("OUTPUT_FIELD_NAME", func(c *Config) *string { return &c.OutputField }),
	stringVar("VERSION_FIELD_NAME", func(c *Config) *string { return &c.VersionField }),
	stringVar("API_URL", func(c *Config) *string { return &c.APIURL }),
	stringVar("PRESET_NAME", func(c *Config) *string { return &c.Preset }),
	stringVar("BEARER_ACCESS_TOKEN", func(c *Config) *string { return &c.BearerToken }),
	stringVar("RESPONSE_FIELD", func(c *Config) *string { return &c.ResponseField }),
	stringVar("TEMPLATE_PATH", func(c *Config) *string { return &c.TemplatePath }),
	stringVar("UPDATED_TEMPLATE_STRATEGY", func(c *Config) *string { return &c.Strategy }),
	boolVar("DO_BACKFILL", func(c *Config) *bool { return &c.DoBackfill }),
	stringVar("COLLECTION_PATH", func(c *Config) *string { return &c.Collection }),
	intVar("BACKFILL_BATCH_SIZE", func(c *Config) *int { return &c.BatchSize }),
	stringVar("EXT_INSTANCE_ID", func(c *Config) *string { return &c.InstanceID }),
	intVar("TRANSACTION_MAX_ATTEMPTS", func(c *Config) *int { return &c.TransactionMaxAttempts }),
	intVar("TRIGGER_CONCURRENCY", func(c *Config) *int { return &c.TriggerConcurrency }),
	stringVar("PROXY_API_URL", func(c *Config) *string { return &c.Proxy.APIURL }),
	stringVar("PROXY_API_KEY", func(c *Config) *string { return &c.Proxy.APIKey }),
	stringVar("PROXY_HTTP_METHOD", func(c *Config) *string { return &c.Proxy.HTTPMethod }),
	stringVar("PROXY_LISTEN_ADDR", func(c *Config) *string { return &c.Proxy.ListenAddr }),
	headersVar("PROXY_HTTP_HEADERS", func(c *Config) *map[string]string { return &c.Proxy.Headers }),
	stringVar("PROXY_HTTP_BODY", func(c *Config) *string { return &c.Proxy.Body }),
	stringVar("PROXY_CONFIG_DOCUMENT_PATH", func(c *Config) *string { return &c.Proxy.ConfigDocument }),
}

// EnvNames returns the environment variables Load reads.
func EnvNames() []string {
	names := make([]string, len(envVars))
	for i, v := range envVars {
		names[i] = v.name
	}
	return names
}

// MergeEnv overlays every variable that is set and non-empty.
func (c *Config) MergeEnv(lookup LookupFunc) error {
	for _, v := range envVars {
		raw, ok := lookup(v.name)
		if !ok || raw == "" {
			continue
		}
		if err := v.set(c, raw); err != nil {
			return fault.Wrap(fault.CodeInvalidConfiguration, err, "environment")
		}
	}
	return nil
}

// Package config loads and validates the processing configuration.
//
// Sources are merged in order, later wins: built-in defaults, an optional
// YAML file, then environment variables. The merged result is validated
// against an embedded CUE schema; any violation is an
// INVALID_CONFIGURATION fault.
package config

import (
	"fmt"
	"strings"
)

// Preset name that disables presets.
const PresetNone = "none"

// Config is the validated processing configuration.
type Config struct {
	InputField   string `yaml:"input_field" json:"input_field"`
	OutputField  string `yaml:"output_field" json:"output_field"`
	VersionField string `yaml:"version_field" json:"version_field"`

	APIURL        string `yaml:"api_url" json:"api_url"`
	Preset        string `yaml:"preset" json:"preset"`
	BearerToken   string `yaml:"bearer_token" json:"bearer_token"`
	ResponseField string `yaml:"response_field" json:"response_field"`
	TemplatePath  string `yaml:"template_path" json:"template_path"`
	Strategy      string `yaml:"strategy" json:"strategy"`

	DoBackfill bool   `yaml:"do_backfill" json:"do_backfill"`
	Collection string `yaml:"collection" json:"collection"`
	BatchSize  int    `yaml:"batch_size" json:"batch_size"`
	InstanceID string `yaml:"instance_id" json:"instance_id"`

	TransactionMaxAttempts int `yaml:"transaction_max_attempts" json:"transaction_max_attempts"`
	TriggerConcurrency     int `yaml:"trigger_concurrency" json:"trigger_concurrency"`

	Proxy ProxyConfig `yaml:"proxy" json:"proxy"`
}

// ProxyConfig configures the request-forwarding endpoint.
type ProxyConfig struct {
	APIURL     string `yaml:"api_url" json:"api_url"`
	APIKey     string `yaml:"api_key" json:"api_key"`
	HTTPMethod string `yaml:"http_method" json:"http_method"`
	ListenAddr string `yaml:"listen_addr" json:"listen_addr"`

	// Headers and Body are the defaults for calls that leave them out.
	// Body is sent verbatim.
	Headers map[string]string `yaml:"headers,omitempty" json:"headers,omitempty"`
	Body    string            `yaml:"body,omitempty" json:"body,omitempty"`

	// ConfigDocument is a store document path whose method, headers and
	// body override the defaults above.
	ConfigDocument string `yaml:"config_document,omitempty" json:"config_document,omitempty"`
}

// Defaults returns the configuration used before any source is applied.
func Defaults() Config {
	return Config{
		InputField:             "input",
		OutputField:            "output",
		VersionField:           "currentVersion",
		Preset:                 PresetNone,
		Strategy:               "never",
		DoBackfill:             false,
		BatchSize:              250,
		InstanceID:             "docpost",
		TransactionMaxAttempts: 5,
		TriggerConcurrency:     8,
		Proxy: ProxyConfig{
			HTTPMethod: "POST",
			ListenAddr: "127.0.0.1:8080",
		},
	}
}

// TemplateSourceKind says where the template definition comes from.
type TemplateSourceKind int

const (
	// TemplateNone means results are written without templating.
	TemplateNone TemplateSourceKind = iota
	// TemplateStatic is a preset template, fixed at version 0.
	TemplateStatic
	// TemplateLive is a template document followed for changes.
	TemplateLive
)

func (k TemplateSourceKind) String() string {
	switch k {
	case TemplateStatic:
		return "static"
	case TemplateLive:
		return "live"
	default:
		return "none"
	}
}

// TemplateSource is the resolved template source.
type TemplateSource struct {
	Kind TemplateSourceKind

	// Preset is set for TemplateStatic.
	Preset *Preset

	// Path is the template document path for TemplateLive.
	Path string
}

// TemplateSource resolves the template source: a preset wins over a
// template document path.
func (c Config) TemplateSource() (TemplateSource, error) {
	if c.Preset != "" && c.Preset != PresetNone {
		p, err := LookupPreset(c.Preset)
		if err != nil {
			return TemplateSource{}, err
		}
		return TemplateSource{Kind: TemplateStatic, Preset: &p}, nil
	}
	if c.TemplatePath != "" {
		return TemplateSource{Kind: TemplateLive, Path: c.TemplatePath}, nil
	}
	return TemplateSource{Kind: TemplateNone}, nil
}

// EndpointURL returns the remote endpoint: the preset's URL when a preset
// is selected, else APIURL.
func (c Config) EndpointURL() (string, error) {
	if c.Preset != "" && c.Preset != PresetNone {
		p, err := LookupPreset(c.Preset)
		if err != nil {
			return "", err
		}
		return p.URL, nil
	}
	return c.APIURL, nil
}

// Redacted returns a copy safe to log. Secrets are replaced by asterisks.
func (c Config) Redacted() Config {
	if c.BearerToken != "" {
		c.BearerToken = "********"
	}
	if c.Proxy.APIKey != "" {
		c.Proxy.APIKey = "********"
	}
	return c
}

// String renders the redacted configuration on one line.
func (c Config) String() string {
	r := c.Redacted()
	var b strings.Builder
	fmt.Fprintf(&b, "collection=%s input=%s output=%s version=%s", r.Collection, r.InputField, r.OutputField, r.VersionField)
	fmt.Fprintf(&b, " api_url=%s preset=%s token=%s", r.APIURL, r.Preset, r.BearerToken)
	fmt.Fprintf(&b, " response_field=%s template_path=%s strategy=%s", r.ResponseField, r.TemplatePath, r.Strategy)
	fmt.Fprintf(&b, " backfill=%t batch_size=%d instance=%s", r.DoBackfill, r.BatchSize, r.InstanceID)
	return b.String()
}

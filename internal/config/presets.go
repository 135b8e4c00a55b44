package config

import (
	"encoding/json"
	"fmt"
	"sort"

	"cuelang.org/go/cue"

	"github.com/roach88/docpost/internal/fault"
	"github.com/roach88/docpost/internal/value"
)

// Preset is a built-in endpoint with its static template body.
type Preset struct {
	Name     string
	URL      string
	Template value.Object
}

// Presets returns all built-in presets by name.
func Presets() (map[string]Preset, error) {
	schemaMu.Lock()
	defer schemaMu.Unlock()

	_, s, err := schema()
	if err != nil {
		return nil, err
	}
	raw, err := s.LookupPath(cue.ParsePath("presets")).MarshalJSON()
	if err != nil {
		return nil, fmt.Errorf("encode presets: %w", err)
	}

	var specs map[string]struct {
		URL      string          `json:"url"`
		Template json.RawMessage `json:"template"`
	}
	if err := json.Unmarshal(raw, &specs); err != nil {
		return nil, fmt.Errorf("decode presets: %w", err)
	}

	presets := make(map[string]Preset, len(specs))
	for name, spec := range specs {
		body, err := value.DecodeObject(spec.Template)
		if err != nil {
			return nil, fmt.Errorf("preset %s template: %w", name, err)
		}
		presets[name] = Preset{Name: name, URL: spec.URL, Template: body}
	}
	return presets, nil
}

// PresetNames returns the built-in preset names, sorted.
func PresetNames() ([]string, error) {
	presets, err := Presets()
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(presets))
	for name := range presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// LookupPreset returns the named preset.
func LookupPreset(name string) (Preset, error) {
	presets, err := Presets()
	if err != nil {
		return Preset{}, fault.Wrap(fault.CodeInvalidConfiguration, err, "presets unavailable")
	}
	p, ok := presets[name]
	if !ok {
		return Preset{}, fault.New(fault.CodeInvalidConfiguration, "unknown preset %q", name)
	}
	return p, nil
}

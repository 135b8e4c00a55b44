// Package pipeline turns a document's input into the output to write back:
// gate, remote call, response extraction, template rendering.
package pipeline

import (
	"context"

	"github.com/roach88/docpost/internal/change"
	"github.com/roach88/docpost/internal/docstore"
	"github.com/roach88/docpost/internal/fault"
	"github.com/roach88/docpost/internal/gate"
	"github.com/roach88/docpost/internal/template"
	"github.com/roach88/docpost/internal/value"
)

// Poster sends a payload to the remote endpoint and returns the decoded
// response. *remote.Client satisfies it.
type Poster interface {
	Post(ctx context.Context, payload any) (any, error)
}

// Result is the output produced for one document.
type Result struct {
	Output any

	// Version is the template version the output was rendered with. Only
	// meaningful when HasVersion is set.
	Version    int64
	HasVersion bool
}

// Skip reasons reported by Process.
const (
	SkipNoInput       = "no input"
	SkipAlreadyOutput = "output already present"
	SkipGate          = "template version gate"
)

// Options configures a Pipeline.
type Options struct {
	InputField    string
	OutputField   string
	VersionField  string
	ResponseField string
	Strategy      gate.Strategy

	// Templates is nil when results are written without templating.
	Templates *template.Store
}

// Pipeline processes one document at a time. It holds no per-document
// state and is safe for concurrent use.
type Pipeline struct {
	poster Poster
	opts   Options
}

// New creates a pipeline.
func New(poster Poster, opts Options) *Pipeline {
	return &Pipeline{poster: poster, opts: opts}
}

// Process runs the pipeline for snap. When the document is skipped, ok is
// false and reason says why. Exactly one remote call is made when ok is
// true or err is a REMOTE_CALL_FAILED or TEMPLATE_RENDER_FAILED fault.
//
// The template definition is acquired once, so the gate, the rendered body
// and the attached version all come from the same definition.
func (p *Pipeline) Process(ctx context.Context, snap docstore.Snapshot) (res Result, ok bool, reason string, err error) {
	input, present := change.InputOf(snap, p.opts.InputField)
	if !present {
		return Result{}, false, SkipNoInput, nil
	}

	var def *template.Definition
	if p.opts.Templates != nil {
		def, err = p.opts.Templates.Acquire(ctx)
		if err != nil {
			return Result{}, false, "", err
		}
		docVersion, hasVersion := p.documentVersion(snap)
		if !gate.ShouldProcess(p.opts.Strategy, def.Version, docVersion, hasVersion) {
			return Result{}, false, SkipGate, nil
		}
	} else {
		_, hasOutput := snap.Field(p.opts.OutputField)
		if !gate.FirstTime(hasOutput) {
			return Result{}, false, SkipAlreadyOutput, nil
		}
	}

	body, err := p.poster.Post(ctx, input)
	if err != nil {
		return Result{}, false, "", err
	}

	data, err := p.extract(body)
	if err != nil {
		return Result{}, false, "", err
	}

	if def == nil {
		return Result{Output: data}, true, "", nil
	}
	out, err := def.Render(data)
	if err != nil {
		return Result{}, false, "", err
	}
	return Result{Output: out, Version: def.Version, HasVersion: true}, true, "", nil
}

// extract applies the configured response field: a top-level key of that
// exact name, else a dotted path.
func (p *Pipeline) extract(body any) (any, error) {
	field := p.opts.ResponseField
	if field == "" {
		return body, nil
	}
	if obj, isObj := body.(map[string]any); isObj {
		if v, ok := obj[field]; ok {
			return v, nil
		}
	}
	v, ok := value.Lookup(body, field)
	if !ok {
		return nil, fault.New(fault.CodeRemoteCallFailed, "response has no field %q (got %s)", field, value.Kind(body))
	}
	return v, nil
}

func (p *Pipeline) documentVersion(snap docstore.Snapshot) (int64, bool) {
	v, ok := snap.Field(p.opts.VersionField)
	if !ok || v == nil {
		return 0, false
	}
	return value.Int(v)
}

// Package template holds the current template definition and renders
// results through it.
//
// A Store is either static (a preset, ready at construction with version
// 0) or live (following one template document through the docstore change
// feed). Live stores start not ready and become ready on the first
// delivered snapshot; every snapshot replaces the definition wholesale.
// Readers always see a complete definition, old or new.
package template

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/roach88/docpost/internal/config"
	"github.com/roach88/docpost/internal/docstore"
	"github.com/roach88/docpost/internal/fault"
	"github.com/roach88/docpost/internal/value"
)

// Fields of a template document.
const (
	FieldTemplate = "template"
	FieldVersion  = "version"
)

// current is the published state. def is nil while the template document
// does not exist.
type current struct {
	def *Definition
}

// Store holds the current template definition.
type Store struct {
	cur atomic.Pointer[current]

	ready     chan struct{}
	readyOnce sync.Once

	source string
}

func newStore(source string) *Store {
	return &Store{ready: make(chan struct{}), source: source}
}

// Static returns a ready store with a fixed body at version 0.
func Static(body any) *Store {
	s := newStore("static")
	s.publish(&Definition{Body: body, HasBody: true, Version: 0})
	return s
}

// Live returns a store that follows the template document at path until
// ctx is done.
func Live(ctx context.Context, ds *docstore.Store, path string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	s := newStore(path)
	done, err := ds.OnSnapshot(ctx, path, s.Apply)
	if err != nil {
		return nil, fault.Wrap(fault.CodeInvalidConfiguration, err, "subscribe to template %s", path)
	}
	go func() {
		for err := range done {
			logger.Error("template subscription stopped", "path", path, "error", err)
		}
	}()
	return s, nil
}

// FromSource builds the store for a resolved template source. A source of
// kind none is an INVALID_CONFIGURATION error.
func FromSource(ctx context.Context, src config.TemplateSource, ds *docstore.Store, logger *slog.Logger) (*Store, error) {
	switch src.Kind {
	case config.TemplateStatic:
		if src.Preset == nil {
			return nil, fault.New(fault.CodeInvalidConfiguration, "static template source without preset")
		}
		return Static(src.Preset.Template), nil
	case config.TemplateLive:
		return Live(ctx, ds, src.Path, logger)
	default:
		return nil, fault.New(fault.CodeInvalidConfiguration, "no template source provided")
	}
}

// Apply replaces the definition from a template document snapshot and
// marks the store ready.
func (s *Store) Apply(snap docstore.Snapshot) {
	s.publish(FromSnapshot(snap))
}

// FromSnapshot builds the definition held by a template document. A
// missing document yields nil. A missing or non-integer version is 0.
func FromSnapshot(snap docstore.Snapshot) *Definition {
	if !snap.Exists {
		return nil
	}
	def := &Definition{}
	if body, ok := snap.Field(FieldTemplate); ok && body != nil {
		def.Body = body
		def.HasBody = true
	}
	if v, ok := snap.Field(FieldVersion); ok {
		def.Version, _ = value.Int(v)
	}
	return def
}

func (s *Store) publish(def *Definition) {
	s.cur.Store(&current{def: def})
	s.readyOnce.Do(func() { close(s.ready) })
}

// Source describes where the definition comes from.
func (s *Store) Source() string {
	return s.source
}

// Ready reports whether a first definition has been delivered.
func (s *Store) Ready() bool {
	select {
	case <-s.ready:
		return true
	default:
		return false
	}
}

// WaitUntilReady blocks until the store is ready or ctx is done. It returns
// immediately once ready.
func (s *Store) WaitUntilReady(ctx context.Context) error {
	select {
	case <-s.ready:
		return nil
	default:
	}
	select {
	case <-s.ready:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Current returns the published definition without waiting. ok is false
// before the store is ready; def is nil while the template document does
// not exist.
func (s *Store) Current() (def *Definition, ok bool) {
	c := s.cur.Load()
	if c == nil {
		return nil, false
	}
	return c.def, true
}

// Acquire waits until ready and returns one consistent definition. A
// template document that does not exist is MISSING_TEMPLATE.
func (s *Store) Acquire(ctx context.Context) (*Definition, error) {
	if err := s.WaitUntilReady(ctx); err != nil {
		return nil, err
	}
	def, _ := s.Current()
	if def == nil {
		return nil, fault.New(fault.CodeMissingTemplate, "template %s does not exist", s.source)
	}
	return def, nil
}

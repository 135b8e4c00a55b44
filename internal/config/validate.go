package config

import (
	_ "embed"
	"fmt"
	"strings"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"

	"github.com/roach88/docpost/internal/fault"
)

//go:embed schema.cue
var schemaSource string

//go:embed presets.cue
var presetsSource string

// ValidationError is one schema violation, with the CUE position of the
// constraint that rejected it when known.
type ValidationError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *ValidationError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

var (
	schemaOnce  sync.Once
	schemaCtx   *cue.Context
	schemaValue cue.Value
	schemaErr   error
)

// schema compiles the embedded schema and presets once.
func schema() (*cue.Context, cue.Value, error) {
	schemaOnce.Do(func() {
		schemaCtx = cuecontext.New()
		schemaValue = schemaCtx.CompileString(schemaSource+"\n"+presetsSource, cue.Filename("config.cue"))
		if err := schemaValue.Err(); err != nil {
			schemaErr = fmt.Errorf("compile config schema: %w", err)
		}
	})
	return schemaCtx, schemaValue, schemaErr
}

// Validate checks c against the schema. The returned error is an
// INVALID_CONFIGURATION fault wrapping a *ValidationError.
func (c Config) Validate() error {
	// cue.Context is not safe for concurrent use.
	schemaMu.Lock()
	defer schemaMu.Unlock()

	ctx, s, err := schema()
	if err != nil {
		return fault.Wrap(fault.CodeInvalidConfiguration, err, "configuration schema unavailable")
	}

	v := s.LookupPath(cue.ParsePath("#Config")).Unify(ctx.Encode(c))
	if err := v.Validate(cue.Concrete(true)); err != nil {
		verr := validationError(err)
		return fault.Wrap(fault.CodeInvalidConfiguration, verr, "invalid configuration")
	}
	return nil
}

var schemaMu sync.Mutex

// validationError extracts the first error with its path and position.
func validationError(err error) *ValidationError {
	errs := errors.Errors(err)
	if len(errs) == 0 {
		return &ValidationError{Field: "config", Message: err.Error()}
	}

	first := errs[0]
	field := strings.Join(first.Path(), ".")
	if field == "" {
		field = "config"
	}
	format, args := first.Msg()
	verr := &ValidationError{
		Field:   field,
		Message: fmt.Sprintf(format, args...),
	}
	if positions := errors.Positions(first); len(positions) > 0 {
		verr.Pos = positions[0]
	}
	return verr
}

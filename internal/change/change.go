// Package change classifies document write events and decides what the
// pipeline should do about them.
package change

import (
	"errors"

	"github.com/roach88/docpost/internal/docstore"
	"github.com/roach88/docpost/internal/value"
)

// ErrInvalidEvent is returned for an event where neither side exists.
var ErrInvalidEvent = errors.New("change event has neither before nor after document")

// Kind is the type of a document write.
type Kind int

const (
	Created Kind = iota + 1
	Updated
	Deleted
)

func (k Kind) String() string {
	switch k {
	case Created:
		return "CREATED"
	case Updated:
		return "UPDATED"
	case Deleted:
		return "DELETED"
	default:
		return "UNKNOWN"
	}
}

// Classify maps a before/after pair to its Kind.
func Classify(before, after docstore.Snapshot) (Kind, error) {
	switch {
	case !before.Exists && !after.Exists:
		return 0, ErrInvalidEvent
	case !after.Exists:
		return Deleted, nil
	case !before.Exists:
		return Created, nil
	default:
		return Updated, nil
	}
}

// Action is what the pipeline does for one event.
type Action int

const (
	// Ignore leaves the document alone.
	Ignore Action = iota
	// Process runs the pipeline on the after document.
	Process
	// Clear removes the output and version fields.
	Clear
)

func (a Action) String() string {
	switch a {
	case Process:
		return "process"
	case Clear:
		return "clear"
	default:
		return "ignore"
	}
}

// InputOf returns the input field of a snapshot. A field holding null
// counts as absent.
func InputOf(snap docstore.Snapshot, inputField string) (any, bool) {
	v, ok := snap.Field(inputField)
	if !ok || v == nil {
		return nil, false
	}
	return v, true
}

// Decide picks the action for an event of the given kind. Deletes are
// ignored; documents are not cleaned up after themselves.
func Decide(kind Kind, before, after docstore.Snapshot, inputField string) Action {
	switch kind {
	case Created:
		if _, ok := InputOf(after, inputField); ok {
			return Process
		}
		return Ignore

	case Updated:
		was, hadInput := InputOf(before, inputField)
		now, hasInput := InputOf(after, inputField)
		switch {
		case hadInput == hasInput && value.Equal(was, now):
			return Ignore
		case hasInput:
			return Process
		case hadInput:
			return Clear
		default:
			return Ignore
		}

	default:
		return Ignore
	}
}

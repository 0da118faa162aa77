package treewalk

import (
	"errors"
	"fmt"
)

var (
	// ErrNilNode is returned when an operation requires a node and got nil.
	ErrNilNode = errors.New("node must not be nil")

	// ErrNilSource is returned when a caching source is constructed
	// without a base source.
	ErrNilSource = errors.New("base source must not be nil")

	// ErrEmptyPath is returned when a node resolves to an empty identity.
	ErrEmptyPath = errors.New("node path must not be empty")

	// ErrSpillUnsupported is returned when spill is requested but the base
	// source cannot rebuild nodes from paths.
	ErrSpillUnsupported = errors.New("spill requires a source implementing source.Resolver")
)

// ErrInvalidation indicates a batch invalidation that failed for a node.
//
// The per-node error can be accessed via errors.Unwrap.
type ErrInvalidation struct {
	Path  string
	cause error
}

func (e *ErrInvalidation) Error() string {
	return fmt.Sprintf("invalidation failed for %q: %v", e.Path, e.cause)
}

func (e *ErrInvalidation) Unwrap() error { return e.cause }

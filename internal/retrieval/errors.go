package retrieval

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidMode signals an unrecognized retrieval mode.
	ErrInvalidMode = errors.New("invalid retrieval mode")
	// ErrInvalidK signals a result count that is not positive or exceeds
	// the configured maximum.
	ErrInvalidK = errors.New("k out of range")
	// ErrInvalidFilter signals a malformed filter.
	ErrInvalidFilter = errors.New("invalid filter")
	// ErrIndexUnavailable signals that a backing index could not be opened.
	ErrIndexUnavailable = errors.New("index unavailable")
	// ErrRetrievalDegraded signals that an upstream service kept failing
	// after retries.
	ErrRetrievalDegraded = errors.New("retrieval degraded")
	// ErrMalformedAnswer signals that the generated answer broke its output
	// contract.
	ErrMalformedAnswer = errors.New("malformed answer")
)

// InvalidModeError wraps ErrInvalidMode with the rejected value.
type InvalidModeError struct {
	Mode string
}

func (e *InvalidModeError) Error() string {
	return fmt.Sprintf("%s %q: choose %q or %q", ErrInvalidMode.Error(), e.Mode, ModeSemantic, ModeLexical)
}

func (e *InvalidModeError) Unwrap() error { return ErrInvalidMode }

// IndexUnavailableError wraps ErrIndexUnavailable with the index location.
type IndexUnavailableError struct {
	Backend string
	Path    string
	Err     error
}

func (e *IndexUnavailableError) Error() string {
	return fmt.Sprintf("%s index at %s unavailable: %v", e.Backend, e.Path, e.Err)
}

func (e *IndexUnavailableError) Unwrap() []error { return []error{ErrIndexUnavailable, e.Err} }

// Package errs defines the error taxonomy shared by the indexing pipeline,
// the query pipeline, and the agent scheduler: a small, closed set of error
// kinds that drive retry and propagation decisions, rather than a hierarchy
// of concrete error types.
package errs

import (
	"errors"
	"fmt"
)

// Kind classifies why an operation failed.
type Kind int

const (
	// KindTransient covers network timeouts, 5xx responses, and 429s without
	// a quota-exhaustion marker. Retriable by retry.Backoff.
	KindTransient Kind = iota
	// KindPermanent covers 4xx errors, JSON shape mismatches, bad
	// configuration surfaced mid-item, and tool errors surfaced to a model.
	// Fatal for the item that produced it.
	KindPermanent
	// KindContextLengthExceeded means a model rejected input because it was
	// too long. Fatal, but distinguishable so truncation strategies can
	// catch it.
	KindContextLengthExceeded
	// KindConfiguration covers storage setup failure, missing storage,
	// broken invariants, and other errors that are fatal for the whole
	// pipeline rather than a single item.
	KindConfiguration
)

func (k Kind) String() string {
	switch k {
	case KindTransient:
		return "transient"
	case KindPermanent:
		return "permanent"
	case KindContextLengthExceeded:
		return "context_length_exceeded"
	case KindConfiguration:
		return "configuration"
	default:
		return "unknown"
	}
}

// Classified pairs a Kind with the underlying cause. It implements the
// standard unwrap protocol so errors.Is/errors.As keep working against the
// wrapped cause.
type Classified struct {
	Kind  Kind
	Cause error
}

func (e *Classified) Error() string {
	if e.Cause == nil {
		return e.Kind.String()
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Cause)
}

func (e *Classified) Unwrap() error {
	return e.Cause
}

// New wraps cause with the given kind. Returns nil if cause is nil.
func New(kind Kind, cause error) error {
	if cause == nil {
		return nil
	}
	return &Classified{Kind: kind, Cause: cause}
}

// Transient wraps cause as a KindTransient error.
func Transient(cause error) error { return New(KindTransient, cause) }

// Permanent wraps cause as a KindPermanent error.
func Permanent(cause error) error { return New(KindPermanent, cause) }

// ContextLengthExceeded wraps cause as a KindContextLengthExceeded error.
func ContextLengthExceeded(cause error) error { return New(KindContextLengthExceeded, cause) }

// Configuration wraps cause as a KindConfiguration error.
func Configuration(cause error) error { return New(KindConfiguration, cause) }

// Configurationf is a convenience constructor for configuration errors built
// from a format string, mirroring the teacher's fmt.Errorf idiom.
func Configurationf(format string, args ...any) error {
	return New(KindConfiguration, fmt.Errorf(format, args...))
}

// KindOf returns the Kind of err if it (or something it wraps) is a
// *Classified, and ok=false otherwise. For an unclassified error the
// returned kind is the zero Kind (KindTransient), so callers must check ok
// before relying on it.
func KindOf(err error) (kind Kind, ok bool) {
	var c *Classified
	if errors.As(err, &c) {
		return c.Kind, true
	}
	return 0, false
}

// Is reports whether err is classified with the given kind.
func Is(err error, kind Kind) bool {
	k, ok := KindOf(err)
	return ok && k == kind
}

// IsTransient reports whether err is classified as transient.
func IsTransient(err error) bool { return Is(err, KindTransient) }

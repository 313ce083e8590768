// Package kernelerr classifies the error taxonomy of the recovery and
// signal fabric into the kinds the caller must branch on (see spec §7):
// transient resource exhaustion, structural corruption, policy violation,
// logical not-found, and fatal.
package kernelerr

import (
	"github.com/juju/errors"
	pkgerrors "github.com/pkg/errors"
)

// Kind is one of the five error classes a caller of the recovery engine
// must distinguish.
type Kind int

const (
	// KindTransient covers fd-exhaustion, file-busy, out-of-memory,
	// disk-full-soft. The caller should retry after a backoff.
	KindTransient Kind = iota
	// KindStructural covers bad magic, bad checksum, partial tail record.
	// Replay stops at the last good record.
	KindStructural
	// KindPolicy covers an op-seq gap the reorderer cannot close by
	// end-of-log; the remaining ops apply under out-of-sequence rules.
	KindPolicy
	// KindNotFound covers deletes of already-gone extents and updates to
	// dropped tables.
	KindNotFound
	// KindFatal covers checkpoint-file write failure, log corruption at
	// or before the restart position, and non-recoverable index redo
	// errors. The engine refuses to start or drains and stops.
	KindFatal
)

func (k Kind) String() string {
	switch k {
	case KindTransient:
		return "transient"
	case KindStructural:
		return "structural"
	case KindPolicy:
		return "policy"
	case KindNotFound:
		return "not_found"
	case KindFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// kindError pairs a Kind with its cause so callers can type-switch on Kind
// without losing the juju/errors or pkg/errors wrapping underneath.
type kindError struct {
	kind  Kind
	cause error
}

func (e *kindError) Error() string { return e.cause.Error() }
func (e *kindError) Cause() error  { return e.cause }
func (e *kindError) Unwrap() error { return e.cause }

// Transient wraps cause as a resource-exhaustion error the caller should
// retry.
func Transient(cause error, msg string) error {
	return &kindError{kind: KindTransient, cause: pkgerrors.Wrap(cause, msg)}
}

// Structural wraps cause as on-disk corruption detected during replay.
func Structural(cause error, msg string) error {
	return &kindError{kind: KindStructural, cause: pkgerrors.Wrap(cause, msg)}
}

// Policy returns a policy-violation error carrying msg (e.g. an
// unresolved op-seq gap).
func Policy(msg string) error {
	return &kindError{kind: KindPolicy, cause: errors.New(msg)}
}

// NotFound wraps a logical not-found condition (dropped table, already
// deleted extent) using juju/errors so errors.IsNotFound keeps working on
// the cause.
func NotFound(format string, args ...interface{}) error {
	cause := errors.NotFoundf(format, args...)
	return &kindError{kind: KindNotFound, cause: cause}
}

// Fatal wraps cause as a condition that must stop the engine from
// starting, or drain it if already running.
func Fatal(cause error, msg string) error {
	return &kindError{kind: KindFatal, cause: pkgerrors.Wrap(cause, msg)}
}

// KindOf extracts the Kind from an error produced by this package,
// defaulting to KindFatal for errors that were never classified (an
// unclassified error is the more dangerous assumption).
func KindOf(err error) Kind {
	var ke *kindError
	for err != nil {
		if k, ok := err.(*kindError); ok {
			ke = k
			break
		}
		cause := errors.Cause(err)
		if cause == err {
			break
		}
		err = cause
	}
	if ke == nil {
		if errors.IsNotFound(err) {
			return KindNotFound
		}
		return KindFatal
	}
	return ke.kind
}

// IsNotFound reports whether err (or its cause chain) is a logical
// not-found condition.
func IsNotFound(err error) bool {
	return KindOf(err) == KindNotFound
}

// IsTransient reports whether err should be retried by the caller.
func IsTransient(err error) bool {
	return KindOf(err) == KindTransient
}

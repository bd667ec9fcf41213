// Package vcserr defines the closed set of error kinds surfaced by the
// version-control core. Every error returned across a package boundary either
// is, or wraps, an *Error so callers can branch on Kind with errors.Is.
package vcserr

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Kind classifies a failure.
type Kind string

const (
	// KindValidation is a rejected input, reported before any I/O.
	KindValidation Kind = "validation"
	// KindNotFound is a missing document, tree, commit, tag or ref.
	KindNotFound Kind = "not_found"
	// KindStoreIO is a transport or backend failure of the object store.
	KindStoreIO Kind = "store_io"
	// KindIntegrity is stored content that does not match its address.
	KindIntegrity Kind = "integrity"
)

// Error is a classified failure carrying the operation, the object it
// concerned and the underlying cause.
type Error struct {
	Kind          Kind
	Op            string // e.g. "commit document", "store tree"
	Subject       string // hash, document id or ref name
	CorrelationID string
	Message       string
	Err           error
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	// A classified cause already renders its kind and correlation id.
	var inner *Error
	nested := errors.As(e.Err, &inner)

	parts := make([]string, 0, 4)
	if e.Op != "" {
		head := e.Op
		if e.Subject != "" {
			head += " " + e.Subject
		}
		parts = append(parts, head)
	}
	if !nested {
		parts = append(parts, string(e.Kind))
	}
	if e.Message != "" {
		parts = append(parts, e.Message)
	}
	if e.Err != nil {
		parts = append(parts, e.Err.Error())
	}
	msg := strings.Join(parts, ": ")
	if e.CorrelationID != "" && !nested {
		msg += fmt.Sprintf(" (correlation_id=%s)", e.CorrelationID)
	}
	return msg
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is matches any *Error of the same Kind, so the package-level sentinels can
// be used with errors.Is regardless of message or cause.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && e != nil && t.Kind == e.Kind
}

var (
	ErrValidation = &Error{Kind: KindValidation}
	ErrNotFound   = &Error{Kind: KindNotFound}
	ErrStoreIO    = &Error{Kind: KindStoreIO}
	ErrIntegrity  = &Error{Kind: KindIntegrity}
)

// Validation reports a rejected input.
func Validation(op, format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Op: op, Message: fmt.Sprintf(format, args...)}
}

// NotFound reports a missing subject.
func NotFound(op, subject string) *Error {
	return &Error{Kind: KindNotFound, Op: op, Subject: subject}
}

// StoreIO wraps a backend failure with its operation context and a fresh
// correlation id. An err that is already a StoreIO error keeps its id.
func StoreIO(op, subject string, err error) *Error {
	id := ""
	var existing *Error
	if errors.As(err, &existing) && existing.Kind == KindStoreIO {
		id = existing.CorrelationID
	}
	if id == "" {
		id = uuid.NewString()
	}
	return &Error{Kind: KindStoreIO, Op: op, Subject: subject, CorrelationID: id, Err: err}
}

// Integrity reports content that does not match its address or type.
func Integrity(op, subject, format string, args ...any) *Error {
	return &Error{Kind: KindIntegrity, Op: op, Subject: subject, Message: fmt.Sprintf(format, args...)}
}

// Wrap re-labels err with a new operation while keeping its kind. Errors
// that are not classified are treated as store failures.
func Wrap(op, subject string, err error) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return &Error{
			Kind:          e.Kind,
			Op:            op,
			Subject:       subject,
			CorrelationID: e.CorrelationID,
			Err:           err,
		}
	}
	return StoreIO(op, subject, err)
}

// KindOf returns the kind of the outermost classified error in err's chain.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}

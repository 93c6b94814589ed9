// ABOUTME: Typed errors returned by the persistence engine
// ABOUTME: NotFound, AmbiguousPrefix, Database and InvalidInput, each matchable with errors.Is

package store

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is matched by every *NotFoundError.
	ErrNotFound = errors.New("not found")
	// ErrAmbiguousPrefix is matched by every *AmbiguousPrefixError.
	ErrAmbiguousPrefix = errors.New("ambiguous short id")
	// ErrDatabase is matched by every *DatabaseError.
	ErrDatabase = errors.New("database error")
	// ErrInvalidInput is matched by every *InvalidInputError.
	ErrInvalidInput = errors.New("invalid input")
	// ErrDuplicateThread is wrapped in a *DatabaseError when CreateThread
	// hits an existing id.
	ErrDuplicateThread = errors.New("thread already exists")
	// ErrDuplicateMessage is wrapped in a *DatabaseError when an insert hits
	// an existing message id.
	ErrDuplicateMessage = errors.New("message already exists")
)

// Kind names the entity an identifier refers to.
type Kind string

const (
	KindThread  Kind = "thread"
	KindMessage Kind = "message"
)

// NotFoundError reports a thread or message that does not exist, addressed
// by a full or short id.
type NotFoundError struct {
	Kind Kind
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Kind, e.ID)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// AmbiguousPrefixError reports a short id matching more than one record.
// Only the count is carried so callers can ask for a longer prefix.
type AmbiguousPrefixError struct {
	Kind   Kind
	Prefix string
	Count  int
}

func (e *AmbiguousPrefixError) Error() string {
	return fmt.Sprintf("ambiguous short id '%s': matched %d %ss", e.Prefix, e.Count, e.Kind)
}

func (e *AmbiguousPrefixError) Is(target error) bool { return target == ErrAmbiguousPrefix }

// DatabaseError wraps a failure of the underlying store.
type DatabaseError struct {
	Op  string
	Err error
}

func (e *DatabaseError) Error() string {
	return fmt.Sprintf("database error: %s: %v", e.Op, e.Err)
}

func (e *DatabaseError) Unwrap() error { return e.Err }

func (e *DatabaseError) Is(target error) bool { return target == ErrDatabase }

// InvalidInputError reports a caller-supplied value failing a precondition.
type InvalidInputError struct {
	Field  string
	Reason string
}

func (e *InvalidInputError) Error() string {
	return fmt.Sprintf("invalid input: %s", e.Reason)
}

func (e *InvalidInputError) Is(target error) bool { return target == ErrInvalidInput }

func notFound(kind Kind, id string) error {
	return &NotFoundError{Kind: kind, ID: id}
}

func invalidInput(field, reason string) error {
	return &InvalidInputError{Field: field, Reason: reason}
}

// dbError wraps err as a *DatabaseError unless it already carries one of the
// engine's typed errors.
func dbError(op string, err error) error {
	if err == nil {
		return nil
	}
	var (
		nf  *NotFoundError
		amb *AmbiguousPrefixError
		inv *InvalidInputError
		db  *DatabaseError
	)
	if errors.As(err, &nf) || errors.As(err, &amb) || errors.As(err, &inv) || errors.As(err, &db) {
		return err
	}
	return &DatabaseError{Op: op, Err: err}
}

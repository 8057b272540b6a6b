package store

import (
	"errors"
	"strings"
)

var (
	// ErrNotFound indicates no record exists for the collection and id.
	ErrNotFound = errors.New("record not found")

	// ErrExists indicates a create collided with an existing record.
	ErrExists = errors.New("record already exists")

	// ErrInvalidID indicates the id failed validation for its collection.
	ErrInvalidID = errors.New("invalid record id")

	// ErrClosed indicates an operation was attempted on a closed store.
	ErrClosed = errors.New("store closed")
)

// Error is the error type returned by record operations.
//
// The underlying error message appears first, followed by record context:
//
//	record not found (collection=docs id=guides/intro)
//
// Use [errors.Is] to check for sentinel errors:
//
//	if errors.Is(err, store.ErrNotFound) { ... }
type Error struct {
	Collection string
	ID         string
	Err        error
}

// Error formats as "<cause> (collection=X id=Y)".
func (e *Error) Error() string {
	if e == nil {
		return ""
	}

	var parts []string

	if e.Collection != "" {
		parts = append(parts, "collection="+e.Collection)
	}

	if e.ID != "" {
		parts = append(parts, "id="+e.ID)
	}

	cause := ""
	if e.Err != nil {
		cause = e.Err.Error()
	}

	if len(parts) == 0 {
		return cause
	}

	suffix := "(" + strings.Join(parts, " ") + ")"
	if cause == "" {
		return suffix
	}

	return cause + " " + suffix
}

// Unwrap returns the underlying error for use with [errors.Is] and [errors.As].
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}

	return e.Err
}

// withContext attaches record context at API boundaries. If err is already
// an *Error, missing fields are filled in place.
func withContext(err error, collection, id string) error {
	if err == nil {
		return nil
	}

	existing := &Error{}
	if errors.As(err, &existing) {
		if existing.Collection == "" {
			existing.Collection = collection
		}

		if existing.ID == "" {
			existing.ID = id
		}

		return existing
	}

	return &Error{Collection: collection, ID: id, Err: err}
}

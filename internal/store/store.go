// Package store holds the record store that docsync keeps in sync with the
// document tree.
//
// Records live in named collections and are keyed by a collection-specific
// id (a slug, a directory path, or a spec name). Content is opaque text.
// Every successful mutation publishes an [Event] to subscribed hooks after
// the write has committed; hooks are how file mirroring and spec ingestion
// observe the store without the store knowing about either.
package store

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Well-known collections.
const (
	// CollectionDocs holds content records keyed by slug.
	CollectionDocs = "docs"
	// CollectionMeta holds per-directory meta.json sidecars keyed by
	// directory path.
	CollectionMeta = "meta"
	// CollectionAPISpecs holds API spec descriptors keyed by name.
	CollectionAPISpecs = "apispecs"
)

// Record is one stored document.
type Record struct {
	Collection string
	ID         string
	Content    string
	UpdatedAt  time.Time
}

// Store is the record API consumed by the reconciler, the CLI and tests.
//
// Implementations return *[Error] wrapping [ErrNotFound], [ErrExists] or
// [ErrInvalidID] for the corresponding conditions.
type Store interface {
	// List returns every record in the collection ordered by id.
	List(ctx context.Context, collection string) ([]Record, error)

	// Get returns a single record.
	Get(ctx context.Context, collection, id string) (Record, error)

	// Create inserts a new record. Fails with ErrExists if id is taken.
	Create(ctx context.Context, collection, id, content string) (Record, error)

	// Update replaces the content of an existing record.
	Update(ctx context.Context, collection, id, content string) (Record, error)

	// Delete removes a record.
	Delete(ctx context.Context, collection, id string) error
}

// EventKind describes what happened to a record.
type EventKind uint8

// EventKind values.
const (
	EventCreated EventKind = iota + 1
	EventUpdated
	EventDeleted
)

func (k EventKind) String() string {
	switch k {
	case EventCreated:
		return "created"
	case EventUpdated:
		return "updated"
	case EventDeleted:
		return "deleted"
	default:
		return "unknown"
	}
}

// Event is published after a mutation commits. Content is empty for deletes.
type Event struct {
	ID         uuid.UUID
	Kind       EventKind
	Collection string
	RecordID   string
	Content    string
}

// Hook observes committed mutations. Hooks run synchronously on the
// mutating goroutine while the record's key lock is held, so events for one
// record are delivered in commit order. Hooks handle their own failures;
// there is no way to fail the mutation from a hook.
type Hook func(ctx context.Context, ev Event)

// IDValidator rejects ids that are not acceptable for a collection.
type IDValidator func(collection, id string) error

func newEvent(kind EventKind, collection, id, content string) Event {
	eventID, err := uuid.NewV7()
	if err != nil {
		eventID = uuid.New()
	}

	return Event{
		ID:         eventID,
		Kind:       kind,
		Collection: collection,
		RecordID:   id,
		Content:    content,
	}
}

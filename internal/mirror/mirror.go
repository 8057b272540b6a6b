// Package mirror keeps the document tree in step with single record
// mutations as they are committed.
package mirror

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/calvinalkan/docsync/internal/store"
	"github.com/calvinalkan/docsync/internal/tree"
)

// Hook writes or removes the file for each committed mutation of a
// mirrored collection. Register [Hook.Handle] with the store's Subscribe.
//
// Failures are logged and counted, never returned: the record mutation has
// already committed and stands. The next reconcile pass repairs the tree.
type Hook struct {
	tree    *tree.Writer
	layouts map[string]tree.Layout
	log     *slog.Logger

	failures atomic.Int64
}

// New returns a Hook that mirrors the collections present in layouts.
func New(w *tree.Writer, layouts map[string]tree.Layout, logger *slog.Logger) *Hook {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	return &Hook{tree: w, layouts: layouts, log: logger}
}

// Failures returns how many events could not be applied to the tree.
func (h *Hook) Failures() int64 {
	return h.failures.Load()
}

// Handle applies ev to the tree. Events for collections without a layout
// are ignored.
func (h *Hook) Handle(_ context.Context, ev store.Event) {
	layout, ok := h.layouts[ev.Collection]
	if !ok {
		return
	}

	rel, err := layout.RelPath(ev.RecordID)
	if err != nil {
		h.fail(ev, "", err)

		return
	}

	switch ev.Kind {
	case store.EventCreated, store.EventUpdated:
		err = h.tree.Write(rel, []byte(ev.Content))
	case store.EventDeleted:
		err = h.tree.Remove(rel)
	default:
		return
	}

	if err != nil {
		h.fail(ev, rel, err)

		return
	}

	h.log.Debug("mirrored",
		slog.String("event", ev.Kind.String()),
		slog.String("collection", ev.Collection),
		slog.String("id", ev.RecordID),
		slog.String("path", rel),
	)
}

func (h *Hook) fail(ev store.Event, rel string, err error) {
	h.failures.Add(1)

	h.log.Warn("mirror failed",
		slog.String("event", ev.Kind.String()),
		slog.String("collection", ev.Collection),
		slog.String("id", ev.RecordID),
		slog.String("path", rel),
		slog.Any("err", err),
	)
}

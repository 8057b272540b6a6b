package reconcile

import (
	"fmt"
	"io"
)

// Action is the outcome recorded for one record in a pass.
type Action uint8

// Action values.
const (
	ActionCreated Action = iota + 1
	ActionUpdated
	ActionDeleted
	ActionFailed
)

func (a Action) String() string {
	switch a {
	case ActionCreated:
		return "created"
	case ActionUpdated:
		return "updated"
	case ActionDeleted:
		return "deleted"
	case ActionFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Item is one change applied (or planned, or failed) during a pass.
type Item struct {
	Action     Action
	Collection string
	ID         string
	// Path is relative to the docs root. Empty for deletes of records
	// whose id has no valid path.
	Path string
	// Err is set for [ActionFailed].
	Err error
}

// Report summarizes a reconcile pass. Items appear in the order they were
// processed: per collection, creates and updates by id, then deletes by id.
type Report struct {
	DryRun    bool
	Items     []Item
	Created   int
	Updated   int
	Deleted   int
	Failed    int
	Unchanged int
}

func (r *Report) add(item Item) {
	r.Items = append(r.Items, item)

	switch item.Action {
	case ActionCreated:
		r.Created++
	case ActionUpdated:
		r.Updated++
	case ActionDeleted:
		r.Deleted++
	case ActionFailed:
		r.Failed++
	}
}

// Changed reports whether the pass applied or planned any change.
func (r *Report) Changed() bool {
	return r.Created+r.Updated+r.Deleted > 0
}

// Print writes one line per item followed by a summary line.
func (r *Report) Print(w io.Writer) {
	for _, item := range r.Items {
		if item.Action == ActionFailed {
			fmt.Fprintf(w, "%-8s %s/%s: %v\n", item.Action, item.Collection, item.ID, item.Err)

			continue
		}

		fmt.Fprintf(w, "%-8s %s/%s\n", item.Action, item.Collection, item.ID)
	}

	prefix := ""
	if r.DryRun {
		prefix = "(dry run) "
	}

	fmt.Fprintf(w, "%s%d created, %d updated, %d deleted, %d failed, %d unchanged\n",
		prefix, r.Created, r.Updated, r.Deleted, r.Failed, r.Unchanged)
}

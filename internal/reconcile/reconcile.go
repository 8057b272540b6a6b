// Package reconcile converges the record store with the document tree in a
// single batch pass.
//
// The tree is the source of truth: files without a record are created,
// records whose content differs from their file are updated, and records
// without a file are deleted. Comparison is byte-for-byte on raw content.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"time"

	"github.com/calvinalkan/docsync/internal/store"
	"github.com/calvinalkan/docsync/internal/tree"
	"github.com/calvinalkan/docsync/pkg/frontmatter"
	"github.com/calvinalkan/docsync/pkg/fs"
)

// ErrRootMissing is returned when the docs root does not exist. A pass
// against a missing root would delete every record, so it is refused.
var ErrRootMissing = errors.New("docs root does not exist")

// Collection pairs a store collection with the layout of its files.
type Collection struct {
	Name   string
	Layout tree.Layout
}

// Options configures a [Reconciler].
type Options struct {
	Logger *slog.Logger

	// Locker and LockPath enable a cross-process exclusive lock held for the
	// whole pass. Both must be set to take effect.
	Locker      *fs.Locker
	LockPath    string
	LockTimeout time.Duration
}

// Reconciler runs convergence passes over a fixed set of collections.
type Reconciler struct {
	store       store.Store
	tree        *tree.Writer
	collections []Collection
	log         *slog.Logger
	locker      *fs.Locker
	lockPath    string
	lockTimeout time.Duration
}

// New returns a Reconciler for collections stored in s and mirrored below w.
func New(s store.Store, w *tree.Writer, collections []Collection, opts Options) *Reconciler {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	return &Reconciler{
		store:       s,
		tree:        w,
		collections: collections,
		log:         logger,
		locker:      opts.Locker,
		lockPath:    opts.LockPath,
		lockTimeout: opts.LockTimeout,
	}
}

// Reconcile applies the minimal set of creates, updates and deletes that
// makes the store equal the tree.
//
// Per-item failures are recorded in the report and logged; the pass carries
// on. Only a missing root, a failed walk, a failed List, lock acquisition
// failure or context cancellation abort the pass with an error.
//
// The pass is not atomic with respect to concurrent mutations. A record
// created while the pass runs may be seen or missed; either way the next
// pass converges. Writes go through the store, so mirror hooks fire for
// them and rewrite the same bytes.
func (r *Reconciler) Reconcile(ctx context.Context) (Report, error) {
	return r.run(ctx, false)
}

// Plan computes the report Reconcile would produce without mutating the
// store. File read failures are still reported as failed items.
func (r *Reconciler) Plan(ctx context.Context) (Report, error) {
	return r.run(ctx, true)
}

func (r *Reconciler) run(ctx context.Context, dryRun bool) (Report, error) {
	report := Report{DryRun: dryRun}

	if r.locker != nil && r.lockPath != "" {
		lock, err := r.locker.LockWithTimeout(r.lockPath, r.lockTimeout)
		if err != nil {
			return report, fmt.Errorf("acquire reconcile lock: %w", err)
		}

		defer func() { _ = lock.Close() }()
	}

	files, err := r.scan()
	if err != nil {
		return report, err
	}

	for _, coll := range r.collections {
		err = r.reconcileCollection(ctx, coll, files, dryRun, &report)
		if err != nil {
			return report, err
		}
	}

	r.log.Info("reconcile finished",
		slog.Bool("dry_run", dryRun),
		slog.Int("created", report.Created),
		slog.Int("updated", report.Updated),
		slog.Int("deleted", report.Deleted),
		slog.Int("failed", report.Failed),
		slog.Int("unchanged", report.Unchanged),
	)

	return report, nil
}

func (r *Reconciler) scan() ([]string, error) {
	var files []string

	err := r.tree.Walk(func(f tree.File) error {
		files = append(files, f.Rel)

		return nil
	})
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrRootMissing, r.tree.Root())
	}

	if err != nil {
		return nil, fmt.Errorf("scan tree: %w", err)
	}

	return files, nil
}

func (r *Reconciler) reconcileCollection(
	ctx context.Context,
	coll Collection,
	files []string,
	dryRun bool,
	report *Report,
) error {
	onDisk := make(map[string]string)

	for _, rel := range files {
		key, ok := coll.Layout.Key(rel)
		if ok {
			onDisk[key] = rel
		}
	}

	records, err := r.store.List(ctx, coll.Name)
	if err != nil {
		return fmt.Errorf("list %s: %w", coll.Name, err)
	}

	stored := make(map[string]string, len(records))
	for _, rec := range records {
		stored[rec.ID] = rec.Content
	}

	for _, key := range sortedKeys(onDisk) {
		if err := ctx.Err(); err != nil {
			return err
		}

		r.applyFile(ctx, coll, key, onDisk[key], stored, dryRun, report)
	}

	for _, rec := range records {
		if _, ok := onDisk[rec.ID]; ok {
			continue
		}

		if err := ctx.Err(); err != nil {
			return err
		}

		r.applyDelete(ctx, coll, rec.ID, dryRun, report)
	}

	return nil
}

func (r *Reconciler) applyFile(
	ctx context.Context,
	coll Collection,
	key, rel string,
	stored map[string]string,
	dryRun bool,
	report *Report,
) {
	data, err := r.tree.Read(rel)
	if err != nil {
		r.fail(report, coll.Name, key, rel, err)

		return
	}

	content := string(data)
	existing, exists := stored[key]

	switch {
	case !exists:
		if !dryRun {
			_, err = r.store.Create(ctx, coll.Name, key, content)
			if err != nil {
				r.fail(report, coll.Name, key, rel, fmt.Errorf("create: %w", err))

				return
			}
		}

		r.done(report, ActionCreated, coll.Name, key, rel, content)
	case existing != content:
		if !dryRun {
			_, err = r.store.Update(ctx, coll.Name, key, content)
			if err != nil {
				r.fail(report, coll.Name, key, rel, fmt.Errorf("update: %w", err))

				return
			}
		}

		r.done(report, ActionUpdated, coll.Name, key, rel, content)
	default:
		report.Unchanged++
	}
}

func (r *Reconciler) applyDelete(ctx context.Context, coll Collection, key string, dryRun bool, report *Report) {
	rel, _ := coll.Layout.RelPath(key)

	if !dryRun {
		err := r.store.Delete(ctx, coll.Name, key)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			r.fail(report, coll.Name, key, rel, fmt.Errorf("delete: %w", err))

			return
		}
	}

	r.done(report, ActionDeleted, coll.Name, key, rel, "")
}

func (r *Reconciler) done(report *Report, action Action, collection, key, rel, content string) {
	report.add(Item{Action: action, Collection: collection, ID: key, Path: rel})

	attrs := []any{
		slog.String("action", action.String()),
		slog.String("collection", collection),
		slog.String("id", key),
		slog.Bool("dry_run", report.DryRun),
	}

	if content != "" {
		fields, _ := frontmatter.ParseString(content)
		if title, ok := fields.GetString("title"); ok {
			attrs = append(attrs, slog.String("title", title))
		}
	}

	r.log.Info("reconciled", attrs...)
}

func (r *Reconciler) fail(report *Report, collection, key, rel string, err error) {
	report.add(Item{Action: ActionFailed, Collection: collection, ID: key, Path: rel, Err: err})

	r.log.Warn("reconcile item failed",
		slog.String("collection", collection),
		slog.String("id", key),
		slog.String("path", rel),
		slog.Any("err", err),
	)
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	return keys
}

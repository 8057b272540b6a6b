package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/calvinalkan/docsync/internal/config"
	"github.com/calvinalkan/docsync/internal/ingest"
	"github.com/calvinalkan/docsync/internal/mirror"
	"github.com/calvinalkan/docsync/internal/reconcile"
	"github.com/calvinalkan/docsync/internal/store"
	"github.com/calvinalkan/docsync/internal/tree"
	"github.com/calvinalkan/docsync/pkg/fs"
)

var (
	ErrUnknownCollection = errors.New("unknown collection")
	ErrArgsRequired      = errors.New("missing arguments")
)

// lockTimeout bounds how long reconcile waits for another pass to finish.
const lockTimeout = 10 * time.Second

// app holds the components wired from one resolved config.
type app struct {
	cfg      config.Config
	log      *slog.Logger
	fs       fs.FS
	store    *store.SQLite
	tree     *tree.Writer
	layouts  map[string]tree.Layout
	mirror   *mirror.Hook
	pipeline *ingest.Pipeline
}

// openApp opens the store and subscribes the mirror hook and the ingestion
// pipeline. Callers must call close.
func openApp(ctx context.Context, cfg config.Config, logger *slog.Logger, o *IO) (*app, error) {
	fsys := fs.NewReal()

	s, err := store.Open(ctx, cfg.DBPathAbs, store.Options{ValidateID: validateID})
	if err != nil {
		return nil, err
	}

	layouts := map[string]tree.Layout{
		store.CollectionDocs: tree.ContentLayout{Ext: cfg.ContentExt},
		store.CollectionMeta: tree.MetaLayout{},
	}

	w := tree.NewWriter(fsys, cfg.DocsRootAbs)
	hook := mirror.New(w, layouts, logger.With(slog.String("component", "mirror")))

	var gen ingest.DocGenerator
	if len(cfg.Generator) > 0 {
		gen = &ingest.ExecGenerator{
			Argv:   cfg.Generator,
			Dir:    cfg.WorkDir,
			Stdout: o.out,
			Stderr: o.errOut,
		}
	}

	pipeline := ingest.New(
		&http.Client{Timeout: cfg.HTTPTimeoutDur},
		fsys,
		cfg.SpecPathAbs,
		gen,
		logger.With(slog.String("component", "ingest")),
	)

	s.Subscribe(hook.Handle)
	s.Subscribe(pipeline.Handle)

	return &app{
		cfg:      cfg,
		log:      logger,
		fs:       fsys,
		store:    s,
		tree:     w,
		layouts:  layouts,
		mirror:   hook,
		pipeline: pipeline,
	}, nil
}

func (a *app) close() {
	_ = a.store.Close()
}

func (a *app) reconciler() *reconcile.Reconciler {
	return reconcile.New(a.store, a.tree, []reconcile.Collection{
		{Name: store.CollectionDocs, Layout: a.layouts[store.CollectionDocs]},
		{Name: store.CollectionMeta, Layout: a.layouts[store.CollectionMeta]},
	}, reconcile.Options{
		Logger:      a.log.With(slog.String("component", "reconcile")),
		Locker:      fs.NewLocker(a.fs),
		LockPath:    a.cfg.LockPath,
		LockTimeout: lockTimeout,
	})
}

// relPath returns the file path of a mirrored record, or "" for
// collections that are not mirrored.
func (a *app) relPath(collection, id string) string {
	layout, ok := a.layouts[collection]
	if !ok {
		return ""
	}

	rel, err := layout.RelPath(id)
	if err != nil {
		return ""
	}

	return rel
}

var collections = []string{store.CollectionDocs, store.CollectionMeta, store.CollectionAPISpecs}

func checkCollection(name string) error {
	for _, c := range collections {
		if c == name {
			return nil
		}
	}

	return fmt.Errorf("%w %q (want one of %s)", ErrUnknownCollection, name, strings.Join(collections, ", "))
}

// validateID enforces per-collection id rules for the store.
func validateID(collection, id string) error {
	switch collection {
	case store.CollectionDocs:
		return tree.ValidateSlug(id)
	case store.CollectionMeta:
		if id == tree.MetaRootKey {
			return nil
		}

		return tree.ValidateSlug(id)
	case store.CollectionAPISpecs:
		if strings.ContainsAny(id, "/\\\n") || strings.TrimSpace(id) != id {
			return fmt.Errorf("spec name %q must be a single trimmed word", id)
		}

		return nil
	default:
		return fmt.Errorf("%w %q", ErrUnknownCollection, collection)
	}
}

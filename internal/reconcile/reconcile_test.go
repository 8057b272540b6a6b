package reconcile_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/calvinalkan/docsync/internal/mirror"
	"github.com/calvinalkan/docsync/internal/reconcile"
	"github.com/calvinalkan/docsync/internal/store"
	"github.com/calvinalkan/docsync/internal/tree"
	"github.com/calvinalkan/docsync/pkg/fs"
)

var layouts = map[string]tree.Layout{
	store.CollectionDocs: tree.ContentLayout{Ext: ".mdx"},
	store.CollectionMeta: tree.MetaLayout{},
}

var collections = []reconcile.Collection{
	{Name: store.CollectionDocs, Layout: layouts[store.CollectionDocs]},
	{Name: store.CollectionMeta, Layout: layouts[store.CollectionMeta]},
}

type env struct {
	store *store.SQLite
	tree  *tree.Writer
	root  string
	dir   string
}

func newEnv(t *testing.T, fsys fs.FS) *env {
	t.Helper()

	dir := t.TempDir()
	root := filepath.Join(dir, "content", "docs")

	require.NoError(t, os.MkdirAll(root, 0o755))

	s, err := store.Open(t.Context(), filepath.Join(dir, "records.sqlite"), store.Options{})
	require.NoError(t, err)

	t.Cleanup(func() { _ = s.Close() })

	w := tree.NewWriter(fsys, root)
	s.Subscribe(mirror.New(w, layouts, nil).Handle)

	return &env{store: s, tree: w, root: root, dir: dir}
}

func (e *env) reconciler(s store.Store) *reconcile.Reconciler {
	if s == nil {
		s = e.store
	}

	return reconcile.New(s, e.tree, collections, reconcile.Options{})
}

// writeFile writes directly to disk, bypassing the store.
func (e *env) writeFile(t *testing.T, rel, content string) {
	t.Helper()

	path := filepath.Join(e.root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

// seed creates records without touching disk by removing the mirrored file
// afterwards.
func (e *env) seed(t *testing.T, collection, id, content string) {
	t.Helper()

	_, err := e.store.Create(t.Context(), collection, id, content)
	require.NoError(t, err)

	rel, err := layouts[collection].RelPath(id)
	require.NoError(t, err)
	require.NoError(t, e.tree.Remove(rel))
}

func (e *env) contents(t *testing.T, collection string) map[string]string {
	t.Helper()

	records, err := e.store.List(t.Context(), collection)
	require.NoError(t, err)

	out := make(map[string]string, len(records))
	for _, rec := range records {
		out[rec.ID] = rec.Content
	}

	return out
}

func actions(report reconcile.Report) []string {
	out := make([]string, 0, len(report.Items))
	for _, item := range report.Items {
		out = append(out, item.Action.String()+" "+item.Collection+"/"+item.ID)
	}

	return out
}

func Test_Reconcile_Converges_Store_To_Tree_When_Both_Differ(t *testing.T) {
	t.Parallel()

	e := newEnv(t, fs.NewReal())
	e.seed(t, store.CollectionDocs, "a", "X")
	e.seed(t, store.CollectionDocs, "b", "Y")
	e.writeFile(t, "a.mdx", "X")
	e.writeFile(t, "c.mdx", "Z")

	report, err := e.reconciler(nil).Reconcile(t.Context())
	require.NoError(t, err)

	want := map[string]string{"a": "X", "c": "Z"}
	if diff := cmp.Diff(want, e.contents(t, store.CollectionDocs)); diff != "" {
		t.Fatalf("store mismatch (-want +got):\n%s", diff)
	}

	assert.Equal(t, 1, report.Created)
	assert.Equal(t, 0, report.Updated)
	assert.Equal(t, 1, report.Deleted)
	assert.Equal(t, 1, report.Unchanged)
	assert.Equal(t, []string{"created docs/c", "deleted docs/b"}, actions(report))
}

func Test_Reconcile_Updates_Record_When_Bytes_Differ(t *testing.T) {
	t.Parallel()

	e := newEnv(t, fs.NewReal())
	e.seed(t, store.CollectionDocs, "guides/intro", "---\ntitle: Old\n---\nold")
	e.writeFile(t, "guides/intro.mdx", "---\ntitle: New\n---\nnew")

	report, err := e.reconciler(nil).Reconcile(t.Context())
	require.NoError(t, err)

	assert.Equal(t, []string{"updated docs/guides/intro"}, actions(report))
	assert.Equal(t, "---\ntitle: New\n---\nnew", e.contents(t, store.CollectionDocs)["guides/intro"])
}

func Test_Reconcile_Is_Idempotent_When_Run_Twice(t *testing.T) {
	t.Parallel()

	e := newEnv(t, fs.NewReal())
	e.writeFile(t, "a.mdx", "A")
	e.writeFile(t, "nested/deep/b.mdx", "B")
	e.writeFile(t, "nested/meta.json", `{"title":"Nested"}`)

	r := e.reconciler(nil)

	first, err := r.Reconcile(t.Context())
	require.NoError(t, err)
	assert.Equal(t, 3, first.Created)

	second, err := r.Reconcile(t.Context())
	require.NoError(t, err)
	assert.False(t, second.Changed(), "second pass should be a no-op: %v", actions(second))
	assert.Equal(t, 3, second.Unchanged)

	// Mirror hooks rewrote the same bytes during the first pass.
	data, err := os.ReadFile(filepath.Join(e.root, "nested", "deep", "b.mdx"))
	require.NoError(t, err)
	assert.Equal(t, "B", string(data))
}

func Test_Reconcile_Deletes_All_Records_When_Tree_Is_Empty(t *testing.T) {
	t.Parallel()

	e := newEnv(t, fs.NewReal())
	e.seed(t, store.CollectionDocs, "a", "1")
	e.seed(t, store.CollectionDocs, "b/c", "2")
	e.seed(t, store.CollectionMeta, "b", "{}")

	report, err := e.reconciler(nil).Reconcile(t.Context())
	require.NoError(t, err)

	assert.Equal(t, 3, report.Deleted)
	assert.Empty(t, e.contents(t, store.CollectionDocs))
	assert.Empty(t, e.contents(t, store.CollectionMeta))
}

func Test_Reconcile_Creates_All_Records_When_Store_Is_Empty(t *testing.T) {
	t.Parallel()

	e := newEnv(t, fs.NewReal())
	e.writeFile(t, "index.mdx", "home")
	e.writeFile(t, "meta.json", `{"root":true}`)
	e.writeFile(t, "guides/meta.json", `{"title":"Guides"}`)
	e.writeFile(t, "guides/install.mdx", "install")
	e.writeFile(t, "notes.txt", "not owned")
	e.writeFile(t, ".hidden/x.mdx", "skipped")

	report, err := e.reconciler(nil).Reconcile(t.Context())
	require.NoError(t, err)

	assert.Equal(t, 4, report.Created)

	wantDocs := map[string]string{"index": "home", "guides/install": "install"}
	if diff := cmp.Diff(wantDocs, e.contents(t, store.CollectionDocs)); diff != "" {
		t.Fatalf("docs mismatch (-want +got):\n%s", diff)
	}

	wantMeta := map[string]string{".": `{"root":true}`, "guides": `{"title":"Guides"}`}
	if diff := cmp.Diff(wantMeta, e.contents(t, store.CollectionMeta)); diff != "" {
		t.Fatalf("meta mismatch (-want +got):\n%s", diff)
	}
}

func Test_Plan_Reports_Changes_Without_Mutating_Store(t *testing.T) {
	t.Parallel()

	e := newEnv(t, fs.NewReal())
	e.seed(t, store.CollectionDocs, "stale", "old")
	e.writeFile(t, "fresh.mdx", "new")

	report, err := e.reconciler(nil).Plan(t.Context())
	require.NoError(t, err)

	assert.True(t, report.DryRun)
	assert.Equal(t, []string{"created docs/fresh", "deleted docs/stale"}, actions(report))
	assert.Equal(t, map[string]string{"stale": "old"}, e.contents(t, store.CollectionDocs))
}

func Test_Reconcile_Returns_ErrRootMissing_When_Docs_Root_Absent(t *testing.T) {
	t.Parallel()

	e := newEnv(t, fs.NewReal())
	e.seed(t, store.CollectionDocs, "keep", "me")
	require.NoError(t, os.RemoveAll(e.root))

	_, err := e.reconciler(nil).Reconcile(t.Context())
	require.ErrorIs(t, err, reconcile.ErrRootMissing)

	assert.Equal(t, map[string]string{"keep": "me"}, e.contents(t, store.CollectionDocs))
}

type faultyStore struct {
	store.Store

	listErr   error
	createErr map[string]error
}

func (f *faultyStore) List(ctx context.Context, collection string) ([]store.Record, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}

	return f.Store.List(ctx, collection)
}

func (f *faultyStore) Create(ctx context.Context, collection, id, content string) (store.Record, error) {
	if err := f.createErr[id]; err != nil {
		return store.Record{}, err
	}

	return f.Store.Create(ctx, collection, id, content)
}

func Test_Reconcile_Returns_Error_When_List_Fails(t *testing.T) {
	t.Parallel()

	e := newEnv(t, fs.NewReal())
	e.writeFile(t, "a.mdx", "A")

	errDown := errors.New("store unreachable")

	_, err := e.reconciler(&faultyStore{Store: e.store, listErr: errDown}).Reconcile(t.Context())
	require.ErrorIs(t, err, errDown)

	assert.Empty(t, e.contents(t, store.CollectionDocs))
}

func Test_Reconcile_Records_Failure_And_Continues_When_Create_Fails(t *testing.T) {
	t.Parallel()

	e := newEnv(t, fs.NewReal())
	e.writeFile(t, "a.mdx", "A")
	e.writeFile(t, "b.mdx", "B")
	e.writeFile(t, "c.mdx", "C")

	errBoom := errors.New("boom")
	faulty := &faultyStore{Store: e.store, createErr: map[string]error{"b": errBoom}}

	report, err := e.reconciler(faulty).Reconcile(t.Context())
	require.NoError(t, err)

	assert.Equal(t, 2, report.Created)
	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, []string{"created docs/a", "failed docs/b", "created docs/c"}, actions(report))
	require.ErrorIs(t, report.Items[1].Err, errBoom)

	assert.Equal(t, map[string]string{"a": "A", "c": "C"}, e.contents(t, store.CollectionDocs))
}

func Test_Reconcile_Records_Failure_When_File_Read_Fails(t *testing.T) {
	t.Parallel()

	chaos := fs.NewChaos(fs.NewReal(), 3, fs.ChaosConfig{
		ReadFailRate: 1,
		Match: func(_, path string) bool {
			return strings.HasSuffix(path, "unreadable.mdx")
		},
	})

	e := newEnv(t, chaos)
	e.writeFile(t, "ok.mdx", "fine")
	e.writeFile(t, "unreadable.mdx", "hidden")

	report, err := e.reconciler(nil).Reconcile(t.Context())
	require.NoError(t, err)

	assert.Equal(t, []string{"created docs/ok", "failed docs/unreadable"}, actions(report))
	assert.True(t, fs.IsChaosErr(report.Items[1].Err))
}

func Test_Reconcile_Fails_Fast_When_Lock_Held_Elsewhere(t *testing.T) {
	t.Parallel()

	e := newEnv(t, fs.NewReal())
	lockPath := filepath.Join(e.dir, "records.sqlite.lock")
	locker := fs.NewLocker(fs.NewReal())

	held, err := locker.TryLock(lockPath)
	require.NoError(t, err)

	t.Cleanup(func() { _ = held.Close() })

	r := reconcile.New(e.store, e.tree, collections, reconcile.Options{
		Locker:      locker,
		LockPath:    lockPath,
		LockTimeout: 20 * time.Millisecond,
	})

	_, err = r.Reconcile(t.Context())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "acquire reconcile lock")

	require.NoError(t, held.Close())

	_, err = r.Reconcile(t.Context())
	require.NoError(t, err)
}

func Test_Report_Print_Lists_Items_And_Summary(t *testing.T) {
	t.Parallel()

	e := newEnv(t, fs.NewReal())
	e.writeFile(t, "a.mdx", "A")

	report, err := e.reconciler(nil).Plan(t.Context())
	require.NoError(t, err)

	var out strings.Builder
	report.Print(&out)

	want := "created  docs/a\n(dry run) 1 created, 0 updated, 0 deleted, 0 failed, 0 unchanged\n"
	assert.Equal(t, want, out.String())
}

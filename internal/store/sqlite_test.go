package store_test

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/calvinalkan/docsync/internal/store"
)

func openTestStore(t *testing.T, opts store.Options) *store.SQLite {
	t.Helper()

	s, err := store.Open(t.Context(), filepath.Join(t.TempDir(), "db", "records.sqlite"), opts)
	require.NoError(t, err, "Open should succeed")

	t.Cleanup(func() { _ = s.Close() })

	return s
}

type recorder struct {
	mu     sync.Mutex
	events []store.Event
}

func (r *recorder) hook(_ context.Context, ev store.Event) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
}

func (r *recorder) snapshot() []store.Event {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append([]store.Event(nil), r.events...)
}

func Test_Store_Round_Trips_Records_When_Created_Updated_And_Deleted(t *testing.T) {
	t.Parallel()

	ctx := t.Context()
	s := openTestStore(t, store.Options{})

	_, err := s.Create(ctx, store.CollectionDocs, "guides/intro", "v1")
	require.NoError(t, err, "Create should succeed")

	got, err := s.Get(ctx, store.CollectionDocs, "guides/intro")
	require.NoError(t, err, "Get should succeed")
	assert.Equal(t, "v1", got.Content)

	_, err = s.Update(ctx, store.CollectionDocs, "guides/intro", "v2")
	require.NoError(t, err, "Update should succeed")

	got, err = s.Get(ctx, store.CollectionDocs, "guides/intro")
	require.NoError(t, err, "Get should succeed")
	assert.Equal(t, "v2", got.Content)

	require.NoError(t, s.Delete(ctx, store.CollectionDocs, "guides/intro"), "Delete should succeed")

	_, err = s.Get(ctx, store.CollectionDocs, "guides/intro")
	require.ErrorIs(t, err, store.ErrNotFound, "Get after delete")
}

func Test_Store_Returns_Sentinels_When_Preconditions_Fail(t *testing.T) {
	t.Parallel()

	ctx := t.Context()
	s := openTestStore(t, store.Options{})

	_, err := s.Create(ctx, store.CollectionDocs, "a", "x")
	require.NoError(t, err)

	_, err = s.Create(ctx, store.CollectionDocs, "a", "y")
	require.ErrorIs(t, err, store.ErrExists, "duplicate create")

	_, err = s.Update(ctx, store.CollectionDocs, "missing", "y")
	require.ErrorIs(t, err, store.ErrNotFound, "update missing")

	err = s.Delete(ctx, store.CollectionDocs, "missing")
	require.ErrorIs(t, err, store.ErrNotFound, "delete missing")

	_, err = s.Create(ctx, store.CollectionDocs, "", "y")
	require.ErrorIs(t, err, store.ErrInvalidID, "empty id")

	got, err := s.Get(ctx, store.CollectionDocs, "a")
	require.NoError(t, err)
	assert.Equal(t, "x", got.Content, "failed create must not overwrite")
}

func Test_Error_Formats_Cause_With_Record_Context(t *testing.T) {
	t.Parallel()

	s := openTestStore(t, store.Options{})

	_, err := s.Get(t.Context(), store.CollectionDocs, "guides/intro")
	require.Error(t, err)

	assert.Equal(t, "record not found (collection=docs id=guides/intro)", err.Error())

	var storeErr *store.Error
	require.ErrorAs(t, err, &storeErr)
	assert.Equal(t, store.CollectionDocs, storeErr.Collection)
	assert.Equal(t, "guides/intro", storeErr.ID)
}

func Test_List_Returns_Records_Sorted_By_ID_Within_Collection(t *testing.T) {
	t.Parallel()

	ctx := t.Context()
	s := openTestStore(t, store.Options{})

	for _, id := range []string{"c", "a", "b/x"} {
		_, err := s.Create(ctx, store.CollectionDocs, id, id+"-body")
		require.NoError(t, err)
	}

	_, err := s.Create(ctx, store.CollectionMeta, ".", "{}")
	require.NoError(t, err)

	got, err := s.List(ctx, store.CollectionDocs)
	require.NoError(t, err)

	want := []store.Record{
		{Collection: store.CollectionDocs, ID: "a", Content: "a-body"},
		{Collection: store.CollectionDocs, ID: "b/x", Content: "b/x-body"},
		{Collection: store.CollectionDocs, ID: "c", Content: "c-body"},
	}

	if diff := cmp.Diff(want, got, cmpopts.IgnoreFields(store.Record{}, "UpdatedAt")); diff != "" {
		t.Fatalf("list mismatch (-want +got):\n%s", diff)
	}

	empty, err := s.List(ctx, store.CollectionAPISpecs)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func Test_Store_Stamps_UpdatedAt_From_Clock(t *testing.T) {
	t.Parallel()

	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	s := openTestStore(t, store.Options{Now: func() time.Time { return fixed }})

	rec, err := s.Create(t.Context(), store.CollectionDocs, "a", "x")
	require.NoError(t, err)
	assert.True(t, rec.UpdatedAt.Equal(fixed))

	got, err := s.Get(t.Context(), store.CollectionDocs, "a")
	require.NoError(t, err)
	assert.True(t, got.UpdatedAt.Equal(fixed), "stored %v, want %v", got.UpdatedAt, fixed)
}

func Test_Store_Rejects_IDs_When_Validator_Fails(t *testing.T) {
	t.Parallel()

	errBad := errors.New("bad slug")
	s := openTestStore(t, store.Options{
		ValidateID: func(collection, id string) error {
			if collection == store.CollectionDocs && id == "../escape" {
				return errBad
			}

			return nil
		},
	})

	rec := &recorder{}
	s.Subscribe(rec.hook)

	_, err := s.Create(t.Context(), store.CollectionDocs, "../escape", "x")
	require.ErrorIs(t, err, store.ErrInvalidID)
	require.ErrorIs(t, err, errBad)

	assert.Empty(t, rec.snapshot(), "rejected writes must not publish")
}

func Test_Subscribe_Receives_Events_In_Commit_Order_When_Mutations_Succeed(t *testing.T) {
	t.Parallel()

	ctx := t.Context()
	s := openTestStore(t, store.Options{})

	rec := &recorder{}
	s.Subscribe(rec.hook)

	_, err := s.Create(ctx, store.CollectionDocs, "a", "one")
	require.NoError(t, err)

	_, err = s.Update(ctx, store.CollectionDocs, "a", "two")
	require.NoError(t, err)

	require.NoError(t, s.Delete(ctx, store.CollectionDocs, "a"))

	// Failed mutations publish nothing.
	_, _ = s.Update(ctx, store.CollectionDocs, "a", "three")

	got := rec.snapshot()

	want := []store.Event{
		{Kind: store.EventCreated, Collection: store.CollectionDocs, RecordID: "a", Content: "one"},
		{Kind: store.EventUpdated, Collection: store.CollectionDocs, RecordID: "a", Content: "two"},
		{Kind: store.EventDeleted, Collection: store.CollectionDocs, RecordID: "a"},
	}

	if diff := cmp.Diff(want, got, cmpopts.IgnoreFields(store.Event{}, "ID")); diff != "" {
		t.Fatalf("events mismatch (-want +got):\n%s", diff)
	}

	for _, ev := range got {
		assert.Equal(t, uuid.Version(7), ev.ID.Version(), "event id should be uuid v7")
	}
}

func Test_Hooks_Observe_Committed_State_When_Called(t *testing.T) {
	t.Parallel()

	ctx := t.Context()
	s := openTestStore(t, store.Options{})

	var seen string

	s.Subscribe(func(ctx context.Context, ev store.Event) {
		rec, err := s.Get(ctx, ev.Collection, ev.RecordID)
		if err == nil {
			seen = rec.Content
		}
	})

	_, err := s.Create(ctx, store.CollectionDocs, "a", "committed")
	require.NoError(t, err)

	assert.Equal(t, "committed", seen)
}

func Test_Store_Serializes_Hooks_Per_Key_When_Updates_Race(t *testing.T) {
	t.Parallel()

	ctx := t.Context()
	s := openTestStore(t, store.Options{})

	_, err := s.Create(ctx, store.CollectionDocs, "a", "0")
	require.NoError(t, err)

	var (
		mu       sync.Mutex
		inFlight int
		overlap  bool
		last     string
	)

	s.Subscribe(func(_ context.Context, ev store.Event) {
		mu.Lock()
		inFlight++
		if inFlight > 1 {
			overlap = true
		}
		mu.Unlock()

		time.Sleep(time.Millisecond)

		mu.Lock()
		inFlight--
		last = ev.Content
		mu.Unlock()
	})

	const writers = 16

	var wg sync.WaitGroup

	for i := range writers {
		wg.Go(func() {
			_, updateErr := s.Update(ctx, store.CollectionDocs, "a", string(rune('a'+i)))
			assert.NoError(t, updateErr)
		})
	}

	wg.Wait()

	assert.False(t, overlap, "hooks for one key must not overlap")

	final, err := s.Get(ctx, store.CollectionDocs, "a")
	require.NoError(t, err)
	assert.Equal(t, final.Content, last, "last published content should equal stored content")
}

func Test_Store_Persists_Records_When_Reopened(t *testing.T) {
	t.Parallel()

	ctx := t.Context()
	path := filepath.Join(t.TempDir(), "records.sqlite")

	s, err := store.Open(ctx, path, store.Options{})
	require.NoError(t, err)

	_, err = s.Create(ctx, store.CollectionMeta, "guides", `{"title":"Guides"}`)
	require.NoError(t, err)
	require.NoError(t, s.Close())
	require.NoError(t, s.Close(), "second Close should be a no-op")

	_, err = s.List(ctx, store.CollectionMeta)
	require.ErrorIs(t, err, store.ErrClosed)

	reopened, err := store.Open(ctx, path, store.Options{})
	require.NoError(t, err)

	t.Cleanup(func() { _ = reopened.Close() })

	got, err := reopened.Get(ctx, store.CollectionMeta, "guides")
	require.NoError(t, err)
	assert.JSONEq(t, `{"title":"Guides"}`, got.Content)
}

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite" // sqlite driver
)

const (
	schemaVersion       = 1
	sqliteBusyTimeoutMs = 10000
)

// Options configures [Open].
type Options struct {
	// ValidateID rejects ids per collection. Nil accepts any non-empty id.
	ValidateID IDValidator

	// Now returns the timestamp stored on writes. Defaults to time.Now.
	Now func() time.Time
}

// SQLite is a [Store] backed by a single SQLite database file.
//
// Mutations of one (collection, id) pair are serialized by an in-process
// key lock held from before the write until every subscribed [Hook] has
// returned. Mutations of different keys do not contend beyond SQLite's own
// single-writer lock.
type SQLite struct {
	db       *sql.DB
	path     string
	validate IDValidator
	now      func() time.Time
	keys     *keyLocks

	hooksMu sync.RWMutex
	hooks   []Hook

	closed atomic.Bool
}

var _ Store = (*SQLite)(nil)

// Open opens (or creates) the database at path, creating parent directories
// as needed. The schema is created on first use.
func Open(ctx context.Context, path string, opts Options) (*SQLite, error) {
	if path == "" {
		return nil, errors.New("open store: path is empty")
	}

	err := os.MkdirAll(filepath.Dir(path), 0o750)
	if err != nil {
		return nil, fmt.Errorf("open store: create dir: %w", err)
	}

	db, err := openSQLite(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	err = ensureSchema(ctx, db)
	if err != nil {
		_ = db.Close()

		return nil, fmt.Errorf("open store: %w", err)
	}

	s := &SQLite{
		db:       db,
		path:     path,
		validate: opts.ValidateID,
		now:      opts.Now,
		keys:     newKeyLocks(),
	}

	if s.now == nil {
		s.now = time.Now
	}

	return s, nil
}

// Path returns the database file path.
func (s *SQLite) Path() string {
	return s.path
}

// Close releases the database handle. Safe to call more than once.
func (s *SQLite) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}

	err := s.db.Close()
	if err != nil {
		return fmt.Errorf("close store: %w", err)
	}

	return nil
}

// Subscribe registers h to receive every committed mutation. Hooks run in
// registration order.
func (s *SQLite) Subscribe(h Hook) {
	if h == nil {
		return
	}

	s.hooksMu.Lock()
	s.hooks = append(s.hooks, h)
	s.hooksMu.Unlock()
}

// List returns all records of collection ordered by id.
func (s *SQLite) List(ctx context.Context, collection string) ([]Record, error) {
	if s.closed.Load() {
		return nil, withContext(ErrClosed, collection, "")
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, content, updated_at FROM records WHERE collection = ? ORDER BY id`,
		collection,
	)
	if err != nil {
		return nil, withContext(fmt.Errorf("list: %w", err), collection, "")
	}

	defer func() { _ = rows.Close() }()

	var out []Record

	for rows.Next() {
		var (
			rec     Record
			updated int64
		)

		err = rows.Scan(&rec.ID, &rec.Content, &updated)
		if err != nil {
			return nil, withContext(fmt.Errorf("list: scan: %w", err), collection, "")
		}

		rec.Collection = collection
		rec.UpdatedAt = time.Unix(0, updated)
		out = append(out, rec)
	}

	err = rows.Err()
	if err != nil {
		return nil, withContext(fmt.Errorf("list: %w", err), collection, "")
	}

	return out, nil
}

// Get returns the record for (collection, id).
func (s *SQLite) Get(ctx context.Context, collection, id string) (Record, error) {
	if s.closed.Load() {
		return Record{}, withContext(ErrClosed, collection, id)
	}

	row := s.db.QueryRowContext(ctx,
		`SELECT content, updated_at FROM records WHERE collection = ? AND id = ?`,
		collection, id,
	)

	rec := Record{Collection: collection, ID: id}

	var updated int64

	err := row.Scan(&rec.Content, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, withContext(ErrNotFound, collection, id)
	}

	if err != nil {
		return Record{}, withContext(fmt.Errorf("get: %w", err), collection, id)
	}

	rec.UpdatedAt = time.Unix(0, updated)

	return rec, nil
}

// Create inserts a new record and publishes [EventCreated].
func (s *SQLite) Create(ctx context.Context, collection, id, content string) (Record, error) {
	return s.mutate(ctx, EventCreated, collection, id, content, func(now int64) (sql.Result, error) {
		return s.db.ExecContext(ctx,
			`INSERT INTO records (collection, id, content, updated_at) VALUES (?, ?, ?, ?)
			 ON CONFLICT (collection, id) DO NOTHING`,
			collection, id, content, now,
		)
	})
}

// Update replaces the content of an existing record and publishes
// [EventUpdated]. The event fires even when content is unchanged.
func (s *SQLite) Update(ctx context.Context, collection, id, content string) (Record, error) {
	return s.mutate(ctx, EventUpdated, collection, id, content, func(now int64) (sql.Result, error) {
		return s.db.ExecContext(ctx,
			`UPDATE records SET content = ?, updated_at = ? WHERE collection = ? AND id = ?`,
			content, now, collection, id,
		)
	})
}

// Delete removes a record and publishes [EventDeleted].
func (s *SQLite) Delete(ctx context.Context, collection, id string) error {
	_, err := s.mutate(ctx, EventDeleted, collection, id, "", func(int64) (sql.Result, error) {
		return s.db.ExecContext(ctx,
			`DELETE FROM records WHERE collection = ? AND id = ?`,
			collection, id,
		)
	})

	return err
}

// mutate runs exec under the key lock, maps "no rows affected" to the
// sentinel for kind, and publishes the event before releasing the lock.
func (s *SQLite) mutate(
	ctx context.Context,
	kind EventKind,
	collection, id, content string,
	exec func(now int64) (sql.Result, error),
) (Record, error) {
	if s.closed.Load() {
		return Record{}, withContext(ErrClosed, collection, id)
	}

	err := s.checkID(collection, id)
	if err != nil {
		return Record{}, withContext(err, collection, id)
	}

	unlock := s.keys.lock(lockKey(collection, id))
	defer unlock()

	now := s.now()

	res, err := exec(now.UnixNano())
	if err != nil {
		return Record{}, withContext(fmt.Errorf("%s: %w", kind, err), collection, id)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return Record{}, withContext(fmt.Errorf("%s: rows affected: %w", kind, err), collection, id)
	}

	if affected == 0 {
		if kind == EventCreated {
			return Record{}, withContext(ErrExists, collection, id)
		}

		return Record{}, withContext(ErrNotFound, collection, id)
	}

	s.publish(ctx, newEvent(kind, collection, id, content))

	return Record{Collection: collection, ID: id, Content: content, UpdatedAt: now}, nil
}

func (s *SQLite) checkID(collection, id string) error {
	if collection == "" || id == "" {
		return ErrInvalidID
	}

	if s.validate == nil {
		return nil
	}

	err := s.validate(collection, id)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidID, err)
	}

	return nil
}

func (s *SQLite) publish(ctx context.Context, ev Event) {
	s.hooksMu.RLock()
	hooks := make([]Hook, len(s.hooks))
	copy(hooks, s.hooks)
	s.hooksMu.RUnlock()

	for _, h := range hooks {
		h(ctx, ev)
	}
}

func openSQLite(ctx context.Context, path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlite: %w", err)
	}

	// Per-connection PRAGMAs only apply to the one connection we keep.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	err = db.PingContext(ctx)
	if err != nil {
		return nil, closeWith(db, fmt.Errorf("sqlite: ping: %w", err))
	}

	statements := []string{
		fmt.Sprintf("PRAGMA busy_timeout = %d", sqliteBusyTimeoutMs),
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = FULL",
		"PRAGMA temp_store = MEMORY",
	}

	for _, stmt := range statements {
		_, err = db.ExecContext(ctx, stmt)
		if err != nil {
			return nil, closeWith(db, fmt.Errorf("sqlite: apply pragma %q: %w", stmt, err))
		}
	}

	return db, nil
}

func closeWith(db *sql.DB, err error) error {
	closeErr := db.Close()
	if closeErr != nil {
		closeErr = fmt.Errorf("sqlite: close: %w", closeErr)
	}

	return errors.Join(err, closeErr)
}

func ensureSchema(ctx context.Context, db *sql.DB) error {
	var version int

	err := db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&version)
	if err != nil {
		return fmt.Errorf("read user_version: %w", err)
	}

	switch version {
	case schemaVersion:
		return nil
	case 0:
	default:
		return fmt.Errorf("unsupported schema version %d (want %d)", version, schemaVersion)
	}

	_, err = db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS records (
			collection TEXT NOT NULL,
			id         TEXT NOT NULL,
			content    TEXT NOT NULL,
			updated_at INTEGER NOT NULL,
			PRIMARY KEY (collection, id)
		) WITHOUT ROWID`)
	if err != nil {
		return fmt.Errorf("create records table: %w", err)
	}

	_, err = db.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", schemaVersion))
	if err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}

	return nil
}

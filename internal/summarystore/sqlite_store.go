package summarystore

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"crawshaw.io/sqlite"
)

// ErrClosed is returned by operations on a closed store.
var ErrClosed = errors.New("store is closed")

// SQLiteStore is an implementation of Store that uses SQLite.
// A single connection is shared and guarded by a mutex.
type SQLiteStore struct {
	mu     sync.Mutex
	conn   *sqlite.Conn
	dbPath string
	ttl    time.Duration
	now    func() time.Time
}

// NewSQLiteStore opens (or creates) the database at dbPath.
func NewSQLiteStore(dbPath string, ttl time.Duration) (*SQLiteStore, error) {
	if dbPath == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}

	conn, err := sqlite.OpenConn(dbPath, sqlite.SQLITE_OPEN_CREATE|sqlite.SQLITE_OPEN_READWRITE)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}

	s := &SQLiteStore{conn: conn, dbPath: dbPath, ttl: ttl, now: time.Now}
	if err := s.createTable(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create table: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) createTable() error {
	for _, query := range []string{
		`CREATE TABLE IF NOT EXISTS summaries (
			key TEXT PRIMARY KEY,
			summary TEXT NOT NULL,
			runtime TEXT NOT NULL,
			model TEXT NOT NULL,
			created_at INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS summaries_created_at ON summaries (created_at);`,
	} {
		if err := s.exec(query); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteStore) exec(query string) error {
	stmt, err := s.conn.Prepare(query)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Reset()

	if _, err := stmt.Step(); err != nil {
		return fmt.Errorf("failed to execute statement: %w", err)
	}
	return nil
}

// lock takes the connection and arranges for ctx to interrupt long queries.
// The returned func must be called to release it.
func (s *SQLiteStore) lock(ctx context.Context) (func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	if s.conn == nil {
		s.mu.Unlock()
		return nil, ErrClosed
	}
	s.conn.SetInterrupt(ctx.Done())
	return func() {
		s.conn.SetInterrupt(nil)
		s.mu.Unlock()
	}, nil
}

// Get returns the entry for key, ignoring entries older than the TTL.
func (s *SQLiteStore) Get(ctx context.Context, key string) (Entry, bool, error) {
	unlock, err := s.lock(ctx)
	if err != nil {
		return Entry{}, false, err
	}
	defer unlock()

	stmt, err := s.conn.Prepare(`SELECT summary, runtime, model, created_at FROM summaries WHERE key = ?;`)
	if err != nil {
		return Entry{}, false, fmt.Errorf("failed to prepare select statement: %w", err)
	}
	defer stmt.Reset()

	stmt.BindText(1, key)

	hasRow, err := stmt.Step()
	if err != nil {
		return Entry{}, false, fmt.Errorf("failed to execute select statement: %w", err)
	}
	if !hasRow {
		return Entry{}, false, nil
	}

	entry := Entry{
		Key:       key,
		Summary:   stmt.ColumnText(0),
		Runtime:   stmt.ColumnText(1),
		Model:     stmt.ColumnText(2),
		CreatedAt: time.Unix(0, stmt.ColumnInt64(3)),
	}
	if s.ttl > 0 && s.now().Sub(entry.CreatedAt) > s.ttl {
		return Entry{}, false, nil
	}
	return entry, true, nil
}

// Put inserts or replaces an entry. A zero CreatedAt is set to now.
func (s *SQLiteStore) Put(ctx context.Context, entry Entry) error {
	if entry.Key == "" {
		return fmt.Errorf("entry key cannot be empty")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = s.now()
	}

	unlock, err := s.lock(ctx)
	if err != nil {
		return err
	}
	defer unlock()

	stmt, err := s.conn.Prepare(`
	INSERT OR REPLACE INTO summaries (key, summary, runtime, model, created_at)
	VALUES (?, ?, ?, ?, ?);`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert statement: %w", err)
	}
	defer stmt.Reset()

	// Bind parameters - indices in sqlite are 1-based
	stmt.BindText(1, entry.Key)
	stmt.BindText(2, entry.Summary)
	stmt.BindText(3, entry.Runtime)
	stmt.BindText(4, entry.Model)
	stmt.BindInt64(5, entry.CreatedAt.UnixNano())

	if _, err := stmt.Step(); err != nil {
		return fmt.Errorf("failed to insert summary: %w", err)
	}
	return nil
}

// Prune deletes entries created before olderThan.
func (s *SQLiteStore) Prune(ctx context.Context, olderThan time.Time) (int, error) {
	unlock, err := s.lock(ctx)
	if err != nil {
		return 0, err
	}
	defer unlock()

	stmt, err := s.conn.Prepare(`DELETE FROM summaries WHERE created_at < ?;`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare delete statement: %w", err)
	}
	defer stmt.Reset()

	stmt.BindInt64(1, olderThan.UnixNano())

	if _, err := stmt.Step(); err != nil {
		return 0, fmt.Errorf("failed to prune summaries: %w", err)
	}
	return s.conn.Changes(), nil
}

// Count returns the number of stored entries.
func (s *SQLiteStore) Count(ctx context.Context) (int, error) {
	unlock, err := s.lock(ctx)
	if err != nil {
		return 0, err
	}
	defer unlock()

	stmt, err := s.conn.Prepare(`SELECT COUNT(*) FROM summaries;`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare count statement: %w", err)
	}
	defer stmt.Reset()

	if _, err := stmt.Step(); err != nil {
		return 0, fmt.Errorf("failed to count summaries: %w", err)
	}
	return int(stmt.ColumnInt64(0)), nil
}

// Close closes the store and releases any resources.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn == nil {
		return nil
	}
	err := s.conn.Close()
	s.conn = nil
	return err
}

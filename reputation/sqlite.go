package reputation

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // SQLite driver
)

const schema = `
CREATE TABLE IF NOT EXISTS reputation_cache (
	key          TEXT PRIMARY KEY,
	last_block   INTEGER NOT NULL,
	tasks        TEXT NOT NULL DEFAULT '{}',
	updated_at   DATETIME NOT NULL
);
`

// SQLiteStore persists scan state in a SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath and ensures
// the cache table exists. The caller is responsible for calling Close.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", dbPath, err)
	}
	db.SetMaxOpenConns(1) // prevent SQLITE_BUSY
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close releases the underlying database connection.
func (s *SQLiteStore) Close() error { return s.db.Close() }

func (s *SQLiteStore) Get(ctx context.Context, key string) (*Entry, error) {
	var lastBlock uint64
	var tasksJSON string
	err := s.db.QueryRowContext(ctx,
		"SELECT last_block, tasks FROM reputation_cache WHERE key = ?", key).
		Scan(&lastBlock, &tasksJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read cache entry: %w", err)
	}
	e := &Entry{LastScannedBlock: lastBlock, Tasks: make(map[string]TaskRecord)}
	if err := json.Unmarshal([]byte(tasksJSON), &e.Tasks); err != nil {
		return nil, fmt.Errorf("decode cache entry: %w", err)
	}
	return e, nil
}

func (s *SQLiteStore) Put(ctx context.Context, key string, e *Entry) error {
	tasksJSON, err := json.Marshal(e.Tasks)
	if err != nil {
		return fmt.Errorf("encode cache entry: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO reputation_cache (key, last_block, tasks, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			last_block = excluded.last_block,
			tasks = excluded.tasks,
			updated_at = excluded.updated_at`,
		key, e.LastScannedBlock, string(tasksJSON), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("write cache entry: %w", err)
	}
	return nil
}

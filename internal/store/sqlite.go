// ABOUTME: SQLite-backed message store using modernc.org/sqlite
// ABOUTME: Handles open, schema creation, reply_to migration and lifecycle

package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	_ "modernc.org/sqlite"
)

// SQLiteStore is a size-capped message log backed by a single SQLite file.
//
// A single mutex serializes every operation against the backing file, so the
// store is safe for concurrent callers. Writes that push the footprint over
// the configured ceiling hand cleanup to a background worker; reads never
// trigger eviction.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
	path   string
	opts   Options

	// mu serializes all access to the backing file. The background eviction
	// worker acquires it independently of the write that triggered it.
	mu sync.Mutex

	// evictCh carries pending eviction requests to the worker. Capacity 1:
	// triggers that land while a request is already pending coalesce.
	evictCh chan struct{}
	done    chan struct{}
	wg      sync.WaitGroup
}

// New opens (or creates) the store at the given path. The schema is created
// and migrated if needed, and an initial eviction cycle runs synchronously if
// the file is already over the ceiling. Parent directories are created.
func New(path string, opts Options) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "store")
	opts = opts.withDefaults()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// One connection keeps the per-connection pragmas and the mutex honest.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	s := &SQLiteStore{
		db:      db,
		logger:  logger,
		path:    path,
		opts:    opts,
		evictCh: make(chan struct{}, 1),
		done:    make(chan struct{}),
	}

	s.mu.Lock()
	err = s.createSchema()
	if err == nil {
		err = s.runMigrations()
	}
	s.mu.Unlock()
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("preparing schema: %w", err)
	}

	// A store that comes up over the ceiling is cleaned before any traffic.
	if s.Footprint() > opts.MaxBytes {
		s.Evict(context.Background())
	}

	s.wg.Add(1)
	go s.evictWorker()

	logger.Info("message store initialized",
		"path", path,
		"max_bytes", opts.MaxBytes,
		"size_bytes", s.Footprint(),
	)
	return s, nil
}

// createSchema creates the messages table and its timestamp index.
func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS messages (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user TEXT NOT NULL,
			message TEXT NOT NULL,
			message_type TEXT NOT NULL DEFAULT 'text',
			timestamp REAL NOT NULL,
			created_at TEXT NOT NULL,
			reply_to INTEGER
		);

		CREATE INDEX IF NOT EXISTS idx_timestamp ON messages(timestamp);
	`

	_, err := s.db.Exec(schema)
	return err
}

// runMigrations applies schema migrations for existing databases.
// These are idempotent - safe to run on every start.
func (s *SQLiteStore) runMigrations() error {
	// Migration: add reply_to to files that predate reply linking.
	// SQLite doesn't support ADD COLUMN IF NOT EXISTS, so we check first.
	var exists int
	err := s.db.QueryRow(`SELECT 1 FROM pragma_table_info('messages') WHERE name = 'reply_to'`).Scan(&exists)
	if err != nil {
		if _, err := s.db.Exec(`ALTER TABLE messages ADD COLUMN reply_to INTEGER`); err != nil {
			return fmt.Errorf("adding reply_to column to messages: %w", err)
		}
		s.logger.Info("applied migration", "column", "reply_to", "table", "messages")
	}

	return nil
}

// Close stops the eviction worker, waits for an in-flight cycle, and
// releases the backing file.
func (s *SQLiteStore) Close() error {
	close(s.done)
	s.wg.Wait()
	s.logger.Info("closing message store")
	return s.db.Close()
}

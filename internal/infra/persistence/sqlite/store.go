// Package sqlite stores whole collections as JSON payloads in an embedded
// SQLite database, one row per collection.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"officeflow/internal/collection"
	"officeflow/pkg/domain"

	_ "modernc.org/sqlite" // pure go sqlite driver
)

// Compile-time contract assertion.
var _ collection.Backend = (*Store)(nil)

// Store persists collections to a single SQLite table. Writers are serialised
// by a process mutex; busy_timeout covers other processes.
type Store struct {
	db   *sql.DB
	mu   sync.Mutex
	path string
}

// NewStore opens (or creates) the database at path.
func NewStore(path string) (*Store, error) {
	if path == "" {
		path = "officeflow.db"
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil && !errors.Is(err, os.ErrExist) {
		return nil, fmt.Errorf("create dirs: %w", err)
	}
	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS collections (
		bucket TEXT PRIMARY KEY,
		payload BLOB NOT NULL
	)`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create collections table: %w", err)
	}
	return &Store{db: db, path: path}, nil
}

// Driver implements collection.Backend.
func (s *Store) Driver() collection.Driver { return collection.DriverSQLite }

// Close implements collection.Backend.
func (s *Store) Close() error { return s.db.Close() }

// DB exposes the underlying sql.DB for integration testing hooks.
func (s *Store) DB() *sql.DB { return s.db }

// Path returns the configured database path.
func (s *Store) Path() string { return s.path }

// Load implements collection.Backend.
func (s *Store) Load(ctx context.Context, scope collection.Scope, name domain.CollectionName) ([]domain.Record, error) {
	key, err := collection.Key(scope, name)
	if err != nil {
		return nil, err
	}
	var payload []byte
	err = s.db.QueryRowContext(ctx, `SELECT payload FROM collections WHERE bucket = ?`, key).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return []domain.Record{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select %s: %w", key, err)
	}
	return decode(key, payload)
}

// Update implements collection.Backend inside one transaction.
func (s *Store) Update(ctx context.Context, scope collection.Scope, name domain.CollectionName, fn collection.Mutator) (retErr error) {
	key, err := collection.Key(scope, name)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if retErr != nil {
			_ = tx.Rollback()
		}
	}()
	var payload []byte
	err = tx.QueryRowContext(ctx, `SELECT payload FROM collections WHERE bucket = ?`, key).Scan(&payload)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("select %s: %w", key, err)
	}
	records, err := decode(key, payload)
	if err != nil {
		return err
	}
	next, err := fn(records)
	if err != nil {
		return err
	}
	if next == nil {
		next = []domain.Record{}
	}
	data, err := json.Marshal(next)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO collections(bucket,payload) VALUES(?,?) ON CONFLICT(bucket) DO UPDATE SET payload=excluded.payload`, key, data); err != nil {
		return fmt.Errorf("upsert %s: %w", key, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func decode(key string, payload []byte) ([]domain.Record, error) {
	records, err := domain.DecodeRecords(payload)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", key, err)
	}
	return records, nil
}

// Package sqlite provides a SQLite-backed persistent store that mirrors the
// in-memory semantics and writes committed state to relational tables.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"agritrace/internal/infra/persistence/memory"
	"agritrace/internal/infra/persistence/sqlbundle"
	"agritrace/pkg/domain"

	_ "modernc.org/sqlite" // pure go sqlite driver
)

var _ domain.PersistentStore = (*Store)(nil)

// DefaultPath is used when no database path is configured.
const DefaultPath = "agritrace.db"

// Store runs transactions against an in-memory copy and rewrites the lots,
// transformations and logistics tables as the last step of every commit; a
// failed write leaves the in-memory state untouched.
type Store struct {
	*memory.Store
	db   *sql.DB
	path string
}

// NewStore opens (or creates) the database at path, applies the schema and
// hydrates the in-memory state from it.
func NewStore(path string, engine *domain.RulesEngine, hooks ...domain.CommitHook) (*Store, error) {
	if path == "" {
		path = DefaultPath
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil && !errors.Is(err, os.ErrExist) {
		return nil, fmt.Errorf("create dirs: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// a single connection keeps the pragma and serialises writers
	db.SetMaxOpenConns(1)
	ctx := context.Background()
	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}
	if err := sqlbundle.ApplyDDL(ctx, db, sqlbundle.DialectSQLite); err != nil {
		_ = db.Close()
		return nil, err
	}
	snapshot, err := sqlbundle.Load(ctx, db, sqlbundle.DialectSQLite)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	mem := memory.NewStore(engine, hooks...)
	mem.ImportState(snapshot)
	mem.SetCommitFunc(func(ctx context.Context, next memory.Snapshot) error {
		return sqlbundle.Persist(ctx, db, sqlbundle.DialectSQLite, next)
	})
	return &Store{Store: mem, db: db, path: path}, nil
}

// DB exposes the underlying sql.DB for integration testing hooks.
func (s *Store) DB() *sql.DB { return s.db }

// Path returns the configured database path.
func (s *Store) Path() string { return s.path }

// Close releases the database handle.
func (s *Store) Close() error { return s.db.Close() }

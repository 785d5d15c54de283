// Package postgres provides a Postgres-backed persistent store that mirrors the
// in-memory semantics while applying the traceability DDL on startup.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	"agritrace/internal/infra/persistence/memory"
	"agritrace/internal/infra/persistence/sqlbundle"
	"agritrace/pkg/domain"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver
)

var _ domain.PersistentStore = (*Store)(nil)

const (
	defaultDriver = "pgx"
	// DefaultDSN is used when no DSN is configured.
	DefaultDSN = "postgres://localhost/agritrace?sslmode=disable"
)

var (
	sqlOpen = sql.Open
	openMu  sync.Mutex
)

// Store persists state to Postgres while reusing the in-memory implementation
// for transactions. The table write happens inside the commit, so a failed
// write is never visible to readers.
type Store struct {
	*memory.Store
	db *sql.DB
}

// NewStore opens a Postgres-backed store using dsn (DefaultDSN when empty).
// It applies the schema and hydrates the in-memory store from the tables.
func NewStore(dsn string, engine *domain.RulesEngine, hooks ...domain.CommitHook) (*Store, error) {
	if dsn == "" {
		dsn = DefaultDSN
	}
	openMu.Lock()
	db, err := sqlOpen(defaultDriver, dsn)
	openMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	ctx := context.Background()
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if err := sqlbundle.ApplyDDL(ctx, db, sqlbundle.DialectPostgres); err != nil {
		return nil, err
	}
	snapshot, err := sqlbundle.Load(ctx, db, sqlbundle.DialectPostgres)
	if err != nil {
		return nil, err
	}
	mem := memory.NewStore(engine, hooks...)
	mem.ImportState(snapshot)
	mem.SetCommitFunc(func(ctx context.Context, next memory.Snapshot) error {
		return sqlbundle.Persist(ctx, db, sqlbundle.DialectPostgres, next)
	})
	return &Store{Store: mem, db: db}, nil
}

// DB exposes the underlying sql.DB for integration testing hooks.
func (s *Store) DB() *sql.DB { return s.db }

// Close releases the database handle.
func (s *Store) Close() error { return s.db.Close() }

// OverrideSQLOpen swaps the sqlOpen function for tests and returns a restore function.
func OverrideSQLOpen(fn func(driverName, dataSourceName string) (*sql.DB, error)) func() {
	openMu.Lock()
	defer openMu.Unlock()
	prev := sqlOpen
	sqlOpen = fn
	return func() {
		openMu.Lock()
		defer openMu.Unlock()
		sqlOpen = prev
	}
}

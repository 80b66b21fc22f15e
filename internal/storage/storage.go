package storage

import (
	"context"
	"fmt"
	"sync"

	"sparkifyetl/internal/schema"
)

// Config is the minimal configuration needed to open a repository.
//
// Kind must match a registered backend kind ("postgres", "sqlite", "mssql").
// DSN is passed through to the backend factory; validation is
// backend-specific.
type Config struct {
	Kind string
	DSN  string
}

// Repository is a backend-agnostic handle on the destination database.
//
// IMPORTANT: this interface is intentionally minimal and focused on what the
// run controller needs: out-of-band DDL, and one transaction-scoped Session
// per input file. Each backend implements the semantics in its own dialect
// (Postgres ON CONFLICT, SQLite upsert clauses, SQL Server MERGE).
type Repository interface {
	// Close releases connections. Treat as "call once" at process shutdown.
	Close()

	// EnsureTables creates the catalog tables with create-if-not-exists
	// semantics. Used by the schema tool, not by the per-run hot path.
	EnsureTables(ctx context.Context, tables []schema.Table) error

	// DropTables removes the catalog tables if they exist (full schema reset).
	DropTables(ctx context.Context, tables []schema.Table) error

	// Begin opens the transaction for one input file. The caller must end it
	// with exactly one Commit or Rollback.
	Begin(ctx context.Context) (Session, error)
}

// Session is a single open transaction. All loader writes for one file go
// through one Session so a mid-file failure leaves nothing visible.
type Session interface {
	// UpsertRows issues one parameterized multi-row insert for table,
	// applying the table's conflict policy. Rows must align with
	// table.InsertColumns(). Returns the number of rows actually written
	// (conflicting insert-if-absent rows are not counted by backends that
	// can tell).
	UpsertRows(ctx context.Context, table schema.Table, rows [][]any) (int64, error)

	// FindSongArtist resolves a play event to its song and artist by exact
	// attribute match: songs.title = title, artists.name = artist,
	// songs.duration = length. Both ids are nil when no row matches; the
	// float duration equality is inherited behavior, not an oversight.
	FindSongArtist(ctx context.Context, title, artist, length any) (songID, artistID any, err error)

	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// ---- backend factories ----

type factory func(ctx context.Context, cfg Config) (Repository, error)

var (
	mu        sync.RWMutex
	factories = map[string]factory{}
)

// Register registers a backend under a kind. Call it from an init() function
// in a backend package; the kind string becomes the lookup key used by New.
//
// Panics:
//   - If kind is empty.
//   - If f is nil.
//   - If kind is already registered. This is intentional to fail fast and
//     avoid ambiguous backend selection.
func Register(kind string, f factory) {
	mu.Lock()
	defer mu.Unlock()

	if kind == "" {
		panic("storage: Register called with empty kind")
	}
	if f == nil {
		panic("storage: Register called with nil factory")
	}
	if _, exists := factories[kind]; exists {
		panic(fmt.Sprintf("storage: factory already registered for kind=%q", kind))
	}

	factories[kind] = f
}

// New constructs a Repository using the registered backend factory.
//
// Errors:
//   - Returns an error if cfg.Kind is empty or unsupported.
//   - Returns whatever error the registered factory returns.
func New(ctx context.Context, cfg Config) (Repository, error) {
	if cfg.Kind == "" {
		return nil, fmt.Errorf("storage: missing Kind")
	}

	mu.RLock()
	f := factories[cfg.Kind]
	mu.RUnlock()

	if f == nil {
		return nil, fmt.Errorf("unsupported storage.kind=%s", cfg.Kind)
	}
	return f(ctx, cfg)
}

// Kinds returns the registered backend kinds, for config validation hints.
func Kinds() []string {
	mu.RLock()
	defer mu.RUnlock()
	out := make([]string, 0, len(factories))
	for k := range factories {
		out = append(out, k)
	}
	return out
}

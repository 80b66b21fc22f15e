package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"sparkifyetl/internal/schema"
	"sparkifyetl/internal/storage"
)

/*
Repo implements storage.Repository for Postgres.

It provides:
  - Idempotent DDL (CREATE TABLE IF NOT EXISTS / DROP TABLE IF EXISTS).
  - Multi-row upserts rendered from the schema catalog's conflict policy
    (ON CONFLICT ... DO UPDATE for latest-wins tables, DO NOTHING for
    insert-if-absent tables).
  - Transaction-per-file sessions, including the song/artist attribute join.
*/
type Repo struct {
	pool *pgxpool.Pool
}

// New creates a Postgres-backed Repo.
func New(ctx context.Context, cfg storage.Config) (storage.Repository, error) {
	pool, err := pgxpool.New(ctx, cfg.DSN)
	if err != nil {
		return nil, err
	}
	return &Repo{pool: pool}, nil
}

// Close closes the connection pool.
func (r *Repo) Close() {
	r.pool.Close()
}

// EnsureTables creates the catalog tables. Idempotent.
func (r *Repo) EnsureTables(ctx context.Context, tables []schema.Table) error {
	for _, t := range tables {
		if err := t.Validate(); err != nil {
			return err
		}
		ddl, err := buildCreateSQL(t)
		if err != nil {
			return err
		}
		if _, err := r.pool.Exec(ctx, ddl); err != nil {
			return fmt.Errorf("create table %s: %w", t.Name, err)
		}
	}
	return nil
}

// DropTables drops the catalog tables if present.
func (r *Repo) DropTables(ctx context.Context, tables []schema.Table) error {
	for _, t := range tables {
		if _, err := r.pool.Exec(ctx, buildDropSQL(t)); err != nil {
			return fmt.Errorf("drop table %s: %w", t.Name, err)
		}
	}
	return nil
}

// Begin opens the transaction for one input file.
func (r *Repo) Begin(ctx context.Context) (storage.Session, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	return &session{tx: tx}, nil
}

type session struct {
	tx pgx.Tx
}

// UpsertRows issues one multi-row INSERT carrying the table's conflict clause.
func (s *session) UpsertRows(ctx context.Context, table schema.Table, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	sql, args, err := buildUpsertSQL(table, rows)
	if err != nil {
		return 0, err
	}
	cmd, err := s.tx.Exec(ctx, sql, args...)
	if err != nil {
		return 0, fmt.Errorf("upsert %s: %w", table.Name, err)
	}
	return cmd.RowsAffected(), nil
}

// songSelectSQL is the enrichment join for play events: an exact-value match
// on title, artist name, and duration. Not a foreign-key walk; the ids come
// back nil when the dimensions have no matching pair.
const songSelectSQL = `SELECT songs.song_id, artists.artist_id
FROM songs
JOIN artists
ON songs.artist_id = artists.artist_id
AND songs.title = $1
AND artists.name = $2
AND songs.duration = $3`

func (s *session) FindSongArtist(ctx context.Context, title, artist, length any) (any, any, error) {
	var songID, artistID string
	err := s.tx.QueryRow(ctx, songSelectSQL, title, artist, length).Scan(&songID, &artistID)
	if err == pgx.ErrNoRows {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("song select: %w", err)
	}
	return songID, artistID, nil
}

func (s *session) Commit(ctx context.Context) error {
	return s.tx.Commit(ctx)
}

func (s *session) Rollback(ctx context.Context) error {
	return s.tx.Rollback(ctx)
}

// buildUpsertSQL constructs a single INSERT statement and its args.
//
// Why this exists:
//   - It is pure and deterministic, so we can unit test correctness
//     (especially the conflict clause and placeholder numbering) without a
//     database.
//
// Constraints:
//   - Every row must have the same length as table.InsertColumns().
func buildUpsertSQL(table schema.Table, rows [][]any) (string, []any, error) {
	columns := table.InsertColumns()

	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(table.Name)
	b.WriteString(" (")
	for i, c := range columns {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(pgIdent(c))
	}
	b.WriteString(") VALUES ")

	args := make([]any, 0, len(rows)*len(columns))
	p := 1
	for i, row := range rows {
		if len(row) != len(columns) {
			return "", nil, fmt.Errorf("upsert %s: row %d has %d values, want %d", table.Name, i, len(row), len(columns))
		}
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString("(")
		for j := range columns {
			if j > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(&b, "$%d", p)
			args = append(args, row[j])
			p++
		}
		b.WriteString(")")
	}

	switch table.Conflict.Action {
	case schema.ActionUpdate:
		b.WriteString(" ON CONFLICT (")
		for i, c := range table.Conflict.Target {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(pgIdent(c))
		}
		b.WriteString(") DO UPDATE SET ")
		for i, c := range table.UpdateColumns() {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(pgIdent(c))
			b.WriteString(" = EXCLUDED.")
			b.WriteString(pgIdent(c))
		}

	case schema.ActionNothing:
		if len(table.Conflict.Target) > 0 {
			b.WriteString(" ON CONFLICT (")
			for i, c := range table.Conflict.Target {
				if i > 0 {
					b.WriteString(", ")
				}
				b.WriteString(pgIdent(c))
			}
			b.WriteString(") DO NOTHING")
		} else {
			// Catch-all guard. For tables without a usable conflict target
			// (songplays) this is a no-op: inserts are never deduplicated.
			b.WriteString(" ON CONFLICT DO NOTHING")
		}

	default:
		return "", nil, fmt.Errorf("upsert %s: unknown conflict action %q", table.Name, table.Conflict.Action)
	}

	b.WriteString(";")
	return b.String(), args, nil
}

// buildCreateSQL renders CREATE TABLE IF NOT EXISTS DDL for one table.
func buildCreateSQL(t schema.Table) (string, error) {
	cols := make([]string, 0, len(t.Columns)+2)

	if t.Serial != "" {
		cols = append(cols, fmt.Sprintf("%s SERIAL PRIMARY KEY", pgIdent(t.Serial)))
	}
	for _, c := range t.Columns {
		typ, err := columnType(c.Type)
		if err != nil {
			return "", fmt.Errorf("table %s: column %s: %w", t.Name, c.Name, err)
		}
		cols = append(cols, fmt.Sprintf("%s %s", pgIdent(c.Name), typ))
	}
	if len(t.PrimaryKey) > 0 {
		quoted := make([]string, len(t.PrimaryKey))
		for i, k := range t.PrimaryKey {
			quoted[i] = pgIdent(k)
		}
		cols = append(cols, fmt.Sprintf("PRIMARY KEY (%s)", strings.Join(quoted, ", ")))
	}

	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s);", t.Name, strings.Join(cols, ", ")), nil
}

func buildDropSQL(t schema.Table) string {
	return fmt.Sprintf("DROP TABLE IF EXISTS %s;", t.Name)
}

func columnType(t schema.ColumnType) (string, error) {
	switch t {
	case schema.TypeVarchar:
		return "VARCHAR", nil
	case schema.TypeInt:
		return "INT", nil
	case schema.TypeSmallInt:
		return "SMALLINT", nil
	case schema.TypeNumeric:
		return "NUMERIC", nil
	case schema.TypeTimestamp:
		return "TIMESTAMP", nil
	default:
		return "", fmt.Errorf("unsupported column type %q", t)
	}
}

// pgIdent quotes an identifier for Postgres.
func pgIdent(id string) string {
	return `"` + strings.ReplaceAll(id, `"`, `""`) + `"`
}

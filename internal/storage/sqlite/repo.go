package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"

	"sparkifyetl/internal/schema"
	"sparkifyetl/internal/storage"
)

// Repo implements storage.Repository for SQLite.
//
// Key design points vs Postgres:
//   - SQLite has no native TIMESTAMP type; the declared type only sets
//     affinity. Time-dimension keys are stored as the formatted timestamp
//     strings the loader produces, which round-trip reliably and keep the
//     start_time primary key meaningful.
//   - The upsert grammar is close enough to Postgres that the same conflict
//     policies render almost identically ("excluded." instead of "EXCLUDED.").
type Repo struct {
	db *sql.DB
}

func init() {
	storage.Register("sqlite", New)
}

func New(ctx context.Context, cfg storage.Config) (storage.Repository, error) {
	db, err := sql.Open("sqlite", cfg.DSN)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Repo{db: db}, nil
}

func (r *Repo) Close() { _ = r.db.Close() }

func (r *Repo) EnsureTables(ctx context.Context, tables []schema.Table) error {
	for _, t := range tables {
		if err := t.Validate(); err != nil {
			return err
		}
		ddl, err := buildCreateSQL(t)
		if err != nil {
			return err
		}
		if _, err := r.db.ExecContext(ctx, ddl); err != nil {
			return fmt.Errorf("create table %s: %w", t.Name, err)
		}
	}
	return nil
}

func (r *Repo) DropTables(ctx context.Context, tables []schema.Table) error {
	for _, t := range tables {
		if _, err := r.db.ExecContext(ctx, fmt.Sprintf("DROP TABLE IF EXISTS %s;", sqlIdent(t.Name))); err != nil {
			return fmt.Errorf("drop table %s: %w", t.Name, err)
		}
	}
	return nil
}

func (r *Repo) Begin(ctx context.Context) (storage.Session, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	return &session{tx: tx}, nil
}

type session struct {
	tx *sql.Tx
}

func (s *session) UpsertRows(ctx context.Context, table schema.Table, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	q, args, err := buildUpsertSQL(table, rows)
	if err != nil {
		return 0, err
	}
	res, err := s.tx.ExecContext(ctx, q, args...)
	if err != nil {
		return 0, fmt.Errorf("upsert %s: %w", table.Name, err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

const songSelectSQL = `SELECT songs.song_id, artists.artist_id
FROM songs
JOIN artists
ON songs.artist_id = artists.artist_id
AND songs.title = ?
AND artists.name = ?
AND songs.duration = ?`

func (s *session) FindSongArtist(ctx context.Context, title, artist, length any) (any, any, error) {
	var songID, artistID string
	err := s.tx.QueryRowContext(ctx, songSelectSQL, title, artist, length).Scan(&songID, &artistID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("song select: %w", err)
	}
	return songID, artistID, nil
}

func (s *session) Commit(ctx context.Context) error   { return s.tx.Commit() }
func (s *session) Rollback(ctx context.Context) error { return s.tx.Rollback() }

// buildUpsertSQL renders one multi-row INSERT with the table's conflict
// policy. Pure, so tests can check the statement shape without a database.
func buildUpsertSQL(table schema.Table, rows [][]any) (string, []any, error) {
	columns := table.InsertColumns()

	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(sqlIdent(table.Name))
	b.WriteString(" (")
	for i, c := range columns {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(sqlIdent(c))
	}
	b.WriteString(") VALUES ")

	args := make([]any, 0, len(rows)*len(columns))
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
			b.WriteString("?")
			args = append(args, row[j])
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
			b.WriteString(sqlIdent(c))
		}
		b.WriteString(") DO UPDATE SET ")
		for i, c := range table.UpdateColumns() {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(sqlIdent(c))
			b.WriteString(" = excluded.")
			b.WriteString(sqlIdent(c))
		}

	case schema.ActionNothing:
		// SQLite allows DO NOTHING without a conflict target, which covers
		// both the keyed insert-if-absent tables and the songplays guard.
		b.WriteString(" ON CONFLICT DO NOTHING")

	default:
		return "", nil, fmt.Errorf("upsert %s: unknown conflict action %q", table.Name, table.Conflict.Action)
	}

	b.WriteString(";")
	return b.String(), args, nil
}

func buildCreateSQL(t schema.Table) (string, error) {
	cols := make([]string, 0, len(t.Columns)+2)

	if t.Serial != "" {
		cols = append(cols, fmt.Sprintf("%s INTEGER PRIMARY KEY AUTOINCREMENT", sqlIdent(t.Serial)))
	}
	for _, c := range t.Columns {
		typ, err := columnType(c.Type)
		if err != nil {
			return "", fmt.Errorf("table %s: column %s: %w", t.Name, c.Name, err)
		}
		cols = append(cols, fmt.Sprintf("%s %s", sqlIdent(c.Name), typ))
	}
	if len(t.PrimaryKey) > 0 {
		quoted := make([]string, len(t.PrimaryKey))
		for i, k := range t.PrimaryKey {
			quoted[i] = sqlIdent(k)
		}
		cols = append(cols, fmt.Sprintf("PRIMARY KEY (%s)", strings.Join(quoted, ", ")))
	}

	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s);", sqlIdent(t.Name), strings.Join(cols, ", ")), nil
}

func columnType(t schema.ColumnType) (string, error) {
	switch t {
	case schema.TypeVarchar:
		return "TEXT", nil
	case schema.TypeInt:
		return "INTEGER", nil
	case schema.TypeSmallInt:
		return "INTEGER", nil
	case schema.TypeNumeric:
		return "REAL", nil
	case schema.TypeTimestamp:
		// Stored as the formatted timestamp text (see package comment).
		return "TEXT", nil
	default:
		return "", fmt.Errorf("unsupported column type %q", t)
	}
}

func sqlIdent(id string) string {
	// SQLite supports "quoted identifiers"
	return `"` + strings.ReplaceAll(id, `"`, `""`) + `"`
}

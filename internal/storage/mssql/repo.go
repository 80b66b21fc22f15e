package mssql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	_ "github.com/microsoft/go-mssqldb"

	"sparkifyetl/internal/schema"
	"sparkifyetl/internal/storage"
)

// Repo implements storage.Repository for Microsoft SQL Server.
//
// Dialect notes:
//   - "Latest wins" upserts (songs, artists) use MERGE WITH (HOLDLOCK) so the
//     read-then-write is atomic per statement.
//   - Insert-if-absent tables (users, time) avoid MERGE: a VALUES table with a
//     NOT EXISTS anti-join is simpler to reason about and cheaper. Incoming
//     rows are deduplicated by key in Go first, because the anti-join cannot
//     see duplicates inside its own VALUES list.
//   - SQL Server has no ON CONFLICT; the songplays catch-all guard degrades to
//     a plain INSERT, which matches its semantics (no dedup key, no conflicts).
type Repo struct {
	db *sql.DB
}

func init() {
	storage.Register("mssql", New)
}

// New constructs a Repo using database/sql and the "sqlserver" driver.
// Connectivity is validated via PingContext.
func New(ctx context.Context, cfg storage.Config) (storage.Repository, error) {
	db, err := sql.Open("sqlserver", cfg.DSN)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Repo{db: db}, nil
}

func (r *Repo) Close() {
	if r == nil || r.db == nil {
		return
	}
	_ = r.db.Close()
}

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
			return fmt.Errorf("mssql: create table %s: %w", t.Name, err)
		}
	}
	return nil
}

func (r *Repo) DropTables(ctx context.Context, tables []schema.Table) error {
	for _, t := range tables {
		stmt := fmt.Sprintf("DROP TABLE IF EXISTS %s;", msIdent(t.Name))
		if _, err := r.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("mssql: drop table %s: %w", t.Name, err)
		}
	}
	return nil
}

func (r *Repo) Begin(ctx context.Context) (storage.Session, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("mssql: begin: %w", err)
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

	var (
		q    string
		args []any
		err  error
	)
	switch {
	case table.Conflict.Action == schema.ActionUpdate:
		q, args, err = buildMergeSQL(table, rows)
	case len(table.PrimaryKey) > 0:
		rows = dedupeByKey(table, rows)
		q, args, err = buildInsertIfAbsentSQL(table, rows)
	default:
		q, args, err = buildPlainInsertSQL(table, rows)
	}
	if err != nil {
		return 0, err
	}

	res, err := s.tx.ExecContext(ctx, q, args...)
	if err != nil {
		return 0, fmt.Errorf("mssql: upsert %s: %w", table.Name, err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

const songSelectSQL = `SELECT songs.song_id, artists.artist_id
FROM songs
JOIN artists
ON songs.artist_id = artists.artist_id
AND songs.title = @p1
AND artists.name = @p2
AND songs.duration = @p3`

func (s *session) FindSongArtist(ctx context.Context, title, artist, length any) (any, any, error) {
	var songID, artistID string
	err := s.tx.QueryRowContext(ctx, songSelectSQL, title, artist, length).Scan(&songID, &artistID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("mssql: song select: %w", err)
	}
	return songID, artistID, nil
}

func (s *session) Commit(ctx context.Context) error   { return s.tx.Commit() }
func (s *session) Rollback(ctx context.Context) error { return s.tx.Rollback() }

// dedupeByKey keeps the first row per primary-key value. Order is preserved,
// so "first occurrence in the file wins" holds for insert-if-absent tables.
func dedupeByKey(table schema.Table, rows [][]any) [][]any {
	keyIdx := make([]int, 0, len(table.PrimaryKey))
	for i, c := range table.InsertColumns() {
		for _, k := range table.PrimaryKey {
			if c == k {
				keyIdx = append(keyIdx, i)
			}
		}
	}

	seen := make(map[string]struct{}, len(rows))
	out := make([][]any, 0, len(rows))
	for _, row := range rows {
		var kb strings.Builder
		for _, i := range keyIdx {
			fmt.Fprintf(&kb, "%v\x00", row[i])
		}
		k := kb.String()
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, row)
	}
	return out
}

// writeValuesTable renders "(VALUES (@p1, ...), ...) AS s ([col], ...)" and
// collects the args. p is the next placeholder ordinal.
func writeValuesTable(b *strings.Builder, columns []string, rows [][]any, args *[]any, p int) int {
	b.WriteString("(VALUES ")
	for i, row := range rows {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString("(")
		for j := range columns {
			if j > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(b, "@p%d", p)
			*args = append(*args, row[j])
			p++
		}
		b.WriteString(")")
	}
	b.WriteString(") AS s (")
	for i, c := range columns {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(msIdent(c))
	}
	b.WriteString(")")
	return p
}

func checkRows(table schema.Table, columns []string, rows [][]any) error {
	for i, row := range rows {
		if len(row) != len(columns) {
			return fmt.Errorf("upsert %s: row %d has %d values, want %d", table.Name, i, len(row), len(columns))
		}
	}
	return nil
}

// buildMergeSQL renders a latest-wins upsert as a MERGE statement.
func buildMergeSQL(table schema.Table, rows [][]any) (string, []any, error) {
	columns := table.InsertColumns()
	if err := checkRows(table, columns, rows); err != nil {
		return "", nil, err
	}

	var b strings.Builder
	args := make([]any, 0, len(rows)*len(columns))

	b.WriteString("MERGE INTO ")
	b.WriteString(msIdent(table.Name))
	b.WriteString(" WITH (HOLDLOCK) AS t USING ")
	writeValuesTable(&b, columns, rows, &args, 1)

	b.WriteString(" ON ")
	for i, k := range table.Conflict.Target {
		if i > 0 {
			b.WriteString(" AND ")
		}
		fmt.Fprintf(&b, "t.%s = s.%s", msIdent(k), msIdent(k))
	}

	b.WriteString(" WHEN MATCHED THEN UPDATE SET ")
	for i, c := range table.UpdateColumns() {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "t.%s = s.%s", msIdent(c), msIdent(c))
	}

	b.WriteString(" WHEN NOT MATCHED THEN INSERT (")
	for i, c := range columns {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(msIdent(c))
	}
	b.WriteString(") VALUES (")
	for i, c := range columns {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "s.%s", msIdent(c))
	}
	b.WriteString(");")

	return b.String(), args, nil
}

// buildInsertIfAbsentSQL renders an insert that skips rows whose key already
// exists, using a NOT EXISTS anti-join against the target table.
func buildInsertIfAbsentSQL(table schema.Table, rows [][]any) (string, []any, error) {
	columns := table.InsertColumns()
	if err := checkRows(table, columns, rows); err != nil {
		return "", nil, err
	}

	var b strings.Builder
	args := make([]any, 0, len(rows)*len(columns))

	b.WriteString("INSERT INTO ")
	b.WriteString(msIdent(table.Name))
	b.WriteString(" (")
	for i, c := range columns {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(msIdent(c))
	}
	b.WriteString(") SELECT ")
	for i, c := range columns {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "s.%s", msIdent(c))
	}
	b.WriteString(" FROM ")
	writeValuesTable(&b, columns, rows, &args, 1)
	b.WriteString(" WHERE NOT EXISTS (SELECT 1 FROM ")
	b.WriteString(msIdent(table.Name))
	b.WriteString(" AS t WHERE ")
	for i, k := range table.PrimaryKey {
		if i > 0 {
			b.WriteString(" AND ")
		}
		fmt.Fprintf(&b, "t.%s = s.%s", msIdent(k), msIdent(k))
	}
	b.WriteString(");")

	return b.String(), args, nil
}

func buildPlainInsertSQL(table schema.Table, rows [][]any) (string, []any, error) {
	columns := table.InsertColumns()
	if err := checkRows(table, columns, rows); err != nil {
		return "", nil, err
	}

	var b strings.Builder
	args := make([]any, 0, len(rows)*len(columns))

	b.WriteString("INSERT INTO ")
	b.WriteString(msIdent(table.Name))
	b.WriteString(" (")
	for i, c := range columns {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(msIdent(c))
	}
	b.WriteString(") VALUES ")
	p := 1
	for i, row := range rows {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString("(")
		for j := range columns {
			if j > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(&b, "@p%d", p)
			args = append(args, row[j])
			p++
		}
		b.WriteString(")")
	}
	b.WriteString(";")

	return b.String(), args, nil
}

func buildCreateSQL(t schema.Table) (string, error) {
	cols := make([]string, 0, len(t.Columns)+2)

	if t.Serial != "" {
		cols = append(cols, fmt.Sprintf("%s INT IDENTITY(1,1) PRIMARY KEY", msIdent(t.Serial)))
	}
	for _, c := range t.Columns {
		typ, err := columnType(c.Type)
		if err != nil {
			return "", fmt.Errorf("table %s: column %s: %w", t.Name, c.Name, err)
		}
		cols = append(cols, fmt.Sprintf("%s %s", msIdent(c.Name), typ))
	}
	if len(t.PrimaryKey) > 0 {
		quoted := make([]string, len(t.PrimaryKey))
		for i, k := range t.PrimaryKey {
			quoted[i] = msIdent(k)
		}
		cols = append(cols, fmt.Sprintf("PRIMARY KEY (%s)", strings.Join(quoted, ", ")))
	}

	return fmt.Sprintf(
		"IF OBJECT_ID(N'%s', N'U') IS NULL BEGIN CREATE TABLE %s (%s) END;",
		t.Name, msIdent(t.Name), strings.Join(cols, ", "),
	), nil
}

func columnType(t schema.ColumnType) (string, error) {
	switch t {
	case schema.TypeVarchar:
		// 450 keeps varchar columns usable inside a 900-byte index key, which
		// the natural primary keys need.
		return "NVARCHAR(450)", nil
	case schema.TypeInt:
		return "INT", nil
	case schema.TypeSmallInt:
		return "SMALLINT", nil
	case schema.TypeNumeric:
		return "DECIMAL(18,5)", nil
	case schema.TypeTimestamp:
		return "DATETIME2", nil
	default:
		return "", fmt.Errorf("unsupported column type %q", t)
	}
}

func msIdent(id string) string {
	return "[" + strings.ReplaceAll(id, "]", "]]") + "]"
}

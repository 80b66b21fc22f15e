package sqlite

import (
	"strings"
	"testing"

	"sparkifyetl/internal/schema"
)

func TestBuildUpsertSQL_UpdateConflict(t *testing.T) {
	t.Parallel()

	rows := [][]any{{"A1", "The Band", "Phoenix, AZ", nil, nil}}
	sql, args, err := buildUpsertSQL(schema.Artists, rows)
	if err != nil {
		t.Fatalf("buildUpsertSQL: %v", err)
	}
	if !strings.HasPrefix(sql, `INSERT INTO "artists" (`) {
		t.Fatalf("sql = %q", sql)
	}
	if !strings.Contains(sql, `ON CONFLICT ("artist_id") DO UPDATE SET`) {
		t.Fatalf("missing conflict clause: %q", sql)
	}
	if !strings.Contains(sql, `"name" = excluded."name"`) {
		t.Fatalf("missing excluded assignment: %q", sql)
	}
	if strings.Count(sql, "?") != 5 {
		t.Fatalf("placeholder count = %d, want 5: %q", strings.Count(sql, "?"), sql)
	}
	if len(args) != 5 {
		t.Fatalf("args = %d, want 5", len(args))
	}
}

func TestBuildUpsertSQL_NothingConflictIsAlwaysBare(t *testing.T) {
	t.Parallel()

	// SQLite accepts targetless DO NOTHING, so the keyed insert-if-absent
	// tables and the fact table share one clause shape.
	for _, tbl := range []schema.Table{schema.Users, schema.Time, schema.Songplays} {
		rows := [][]any{make([]any, len(tbl.InsertColumns()))}
		sql, _, err := buildUpsertSQL(tbl, rows)
		if err != nil {
			t.Fatalf("%s: %v", tbl.Name, err)
		}
		if !strings.HasSuffix(sql, "ON CONFLICT DO NOTHING;") {
			t.Fatalf("%s: %q", tbl.Name, sql)
		}
	}
}

func TestBuildUpsertSQL_MultiRowPlaceholders(t *testing.T) {
	t.Parallel()

	rows := [][]any{
		{int64(1), "Ann", "Lee", "F", "free"},
		{int64(2), "Bob", "롤", "M", "paid"},
	}
	sql, args, err := buildUpsertSQL(schema.Users, rows)
	if err != nil {
		t.Fatalf("buildUpsertSQL: %v", err)
	}
	if !strings.Contains(sql, "(?, ?, ?, ?, ?), (?, ?, ?, ?, ?)") {
		t.Fatalf("multi-row values wrong: %q", sql)
	}
	if len(args) != 10 || args[5] != int64(2) {
		t.Fatalf("args misaligned: %v", args)
	}
}

func TestBuildCreateSQL(t *testing.T) {
	t.Parallel()

	sql, err := buildCreateSQL(schema.Songplays)
	if err != nil {
		t.Fatalf("buildCreateSQL: %v", err)
	}
	if !strings.Contains(sql, `"songplay_id" INTEGER PRIMARY KEY AUTOINCREMENT`) {
		t.Fatalf("missing rowid alias: %q", sql)
	}

	sql, err = buildCreateSQL(schema.Songs)
	if err != nil {
		t.Fatalf("buildCreateSQL: %v", err)
	}
	if !strings.Contains(sql, `"duration" REAL`) {
		t.Fatalf("numeric should map to REAL: %q", sql)
	}
	if !strings.Contains(sql, `PRIMARY KEY ("song_id")`) {
		t.Fatalf("missing natural key: %q", sql)
	}
}

func TestSongSelectUsesPositionalPlaceholders(t *testing.T) {
	t.Parallel()

	if strings.Count(songSelectSQL, "?") != 3 {
		t.Fatalf("song select placeholders:\n%s", songSelectSQL)
	}
}

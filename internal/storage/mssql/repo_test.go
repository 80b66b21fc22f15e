package mssql

import (
	"strings"
	"testing"

	"sparkifyetl/internal/schema"
)

func TestBuildMergeSQL_LatestWins(t *testing.T) {
	t.Parallel()

	rows := [][]any{{"S1", "Alpha", "A1", int64(1999), 210.5}}
	sql, args, err := buildMergeSQL(schema.Songs, rows)
	if err != nil {
		t.Fatalf("buildMergeSQL: %v", err)
	}

	if !strings.HasPrefix(sql, "MERGE INTO [songs] WITH (HOLDLOCK) AS t USING ") {
		t.Fatalf("sql = %q", sql)
	}
	if !strings.Contains(sql, "(VALUES (@p1, @p2, @p3, @p4, @p5)) AS s ([song_id], [title], [artist_id], [year], [duration])") {
		t.Fatalf("values table wrong: %q", sql)
	}
	if !strings.Contains(sql, "ON t.[song_id] = s.[song_id]") {
		t.Fatalf("join on key missing: %q", sql)
	}
	if !strings.Contains(sql, "WHEN MATCHED THEN UPDATE SET t.[title] = s.[title]") {
		t.Fatalf("update branch wrong: %q", sql)
	}
	if strings.Contains(sql, "t.[song_id] = s.[song_id], ") {
		t.Fatalf("key column must not appear in UPDATE SET: %q", sql)
	}
	if !strings.Contains(sql, "WHEN NOT MATCHED THEN INSERT ([song_id], [title], [artist_id], [year], [duration]) VALUES (s.[song_id]") {
		t.Fatalf("insert branch wrong: %q", sql)
	}
	if len(args) != 5 {
		t.Fatalf("args = %d, want 5", len(args))
	}
}

func TestBuildInsertIfAbsentSQL_AntiJoin(t *testing.T) {
	t.Parallel()

	rows := [][]any{
		{int64(8), "Ann", "Lee", "F", "free"},
		{int64(9), "Bob", "Day", "M", "paid"},
	}
	sql, args, err := buildInsertIfAbsentSQL(schema.Users, rows)
	if err != nil {
		t.Fatalf("buildInsertIfAbsentSQL: %v", err)
	}

	if !strings.HasPrefix(sql, "INSERT INTO [users] ([user_id], [first_name], [last_name], [gender], [level]) SELECT ") {
		t.Fatalf("sql = %q", sql)
	}
	if !strings.Contains(sql, "WHERE NOT EXISTS (SELECT 1 FROM [users] AS t WHERE t.[user_id] = s.[user_id])") {
		t.Fatalf("anti-join missing: %q", sql)
	}
	if !strings.Contains(sql, "(@p6, @p7, @p8, @p9, @p10)") {
		t.Fatalf("second row placeholders wrong: %q", sql)
	}
	if len(args) != 10 {
		t.Fatalf("args = %d, want 10", len(args))
	}
}

func TestBuildPlainInsertSQL_FactRows(t *testing.T) {
	t.Parallel()

	row := []any{"2018-11-02 01:25:34.796000", int64(8), "free", nil, nil, int64(139), "Phoenix", "agent"}
	sql, args, err := buildPlainInsertSQL(schema.Songplays, [][]any{row})
	if err != nil {
		t.Fatalf("buildPlainInsertSQL: %v", err)
	}
	if strings.Contains(sql, "MERGE") || strings.Contains(sql, "NOT EXISTS") {
		t.Fatalf("fact insert must be a plain INSERT: %q", sql)
	}
	if strings.Contains(sql, "songplay_id") {
		t.Fatalf("identity column must not be bound: %q", sql)
	}
	if len(args) != 8 {
		t.Fatalf("args = %d, want 8", len(args))
	}
}

func TestDedupeByKeyFirstOccurrenceWins(t *testing.T) {
	t.Parallel()

	rows := [][]any{
		{int64(8), "Ann", "Lee", "F", "free"},
		{int64(8), "Ann", "Lee", "F", "paid"},
		{int64(9), "Bob", "Day", "M", "paid"},
	}
	out := dedupeByKey(schema.Users, rows)
	if len(out) != 2 {
		t.Fatalf("deduped to %d rows, want 2", len(out))
	}
	if out[0][4] != "free" {
		t.Fatalf("first occurrence must win: %v", out[0])
	}
	if out[1][0] != int64(9) {
		t.Fatalf("order must be preserved: %v", out)
	}
}

func TestBuildCreateSQL(t *testing.T) {
	t.Parallel()

	sql, err := buildCreateSQL(schema.Songplays)
	if err != nil {
		t.Fatalf("buildCreateSQL: %v", err)
	}
	if !strings.HasPrefix(sql, "IF OBJECT_ID(N'songplays', N'U') IS NULL BEGIN CREATE TABLE [songplays] (") {
		t.Fatalf("sql = %q", sql)
	}
	if !strings.Contains(sql, "[songplay_id] INT IDENTITY(1,1) PRIMARY KEY") {
		t.Fatalf("identity key missing: %q", sql)
	}

	sql, err = buildCreateSQL(schema.Songs)
	if err != nil {
		t.Fatalf("buildCreateSQL: %v", err)
	}
	if !strings.Contains(sql, "[song_id] NVARCHAR(450)") {
		t.Fatalf("varchar mapping wrong: %q", sql)
	}
	if !strings.Contains(sql, "[duration] DECIMAL(18,5)") {
		t.Fatalf("numeric mapping wrong: %q", sql)
	}
	if !strings.Contains(sql, "PRIMARY KEY ([song_id])") {
		t.Fatalf("natural key missing: %q", sql)
	}
}

func TestMsIdentEscapesBrackets(t *testing.T) {
	t.Parallel()

	if got := msIdent("we]ird"); got != "[we]]ird]" {
		t.Fatalf("got %q", got)
	}
}

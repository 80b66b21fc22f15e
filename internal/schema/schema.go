// Package schema is the catalog for the sparkify star schema: one fact table
// (songplays) and four dimension tables (users, songs, artists, time).
//
// The catalog is pure data. Storage backends render it into dialect-specific
// DDL and parameterized upsert statements; nothing here talks to a database.
// The load-bearing invariant is that every table's conflict target matches its
// declared natural key; Validate enforces it and the tests pin it down.
package schema

import (
	"fmt"
	"strings"
)

// ColumnType is a portable column type. Each backend maps it to its own
// dialect type (e.g. "numeric" becomes NUMERIC in Postgres but DECIMAL(18,5)
// in SQL Server).
type ColumnType string

const (
	TypeVarchar   ColumnType = "varchar"
	TypeInt       ColumnType = "int"
	TypeSmallInt  ColumnType = "smallint"
	TypeNumeric   ColumnType = "numeric"
	TypeTimestamp ColumnType = "timestamp"
)

// ConflictAction selects the per-table conflict policy.
type ConflictAction string

const (
	// ActionUpdate overwrites the non-key columns with the incoming values
	// ("latest file wins"). Requires a conflict target.
	ActionUpdate ConflictAction = "update"

	// ActionNothing drops the conflicting incoming row (insert-if-absent).
	// A table with no natural key may leave Target empty; backends then emit
	// a bare catch-all guard where the dialect supports one.
	ActionNothing ConflictAction = "nothing"
)

// Conflict describes what an insert does when it collides with an existing
// row. Target is the conflict target column list; for ActionUpdate it must
// equal the table's primary key.
type Conflict struct {
	Action ConflictAction
	Target []string
}

type Column struct {
	Name string
	Type ColumnType
}

// Table declares a destination table.
//
// Serial names an optional synthetic identifier column generated by the
// database (SERIAL / AUTOINCREMENT / IDENTITY). It is never part of
// InsertColumns. PrimaryKey lists the natural key columns; it is empty when
// the Serial column is the key.
type Table struct {
	Name       string
	Serial     string
	Columns    []Column
	PrimaryKey []string
	Conflict   Conflict
}

// InsertColumns returns the column names bound by upsert statements, in
// declaration order. The serial column is excluded.
func (t Table) InsertColumns() []string {
	out := make([]string, 0, len(t.Columns))
	for _, c := range t.Columns {
		out = append(out, c.Name)
	}
	return out
}

// UpdateColumns returns the non-key insert columns, i.e. the columns an
// ActionUpdate conflict overwrites.
func (t Table) UpdateColumns() []string {
	key := make(map[string]bool, len(t.PrimaryKey))
	for _, k := range t.PrimaryKey {
		key[k] = true
	}
	out := make([]string, 0, len(t.Columns))
	for _, c := range t.Columns {
		if key[c.Name] {
			continue
		}
		out = append(out, c.Name)
	}
	return out
}

// Validate checks the catalog invariants a backend relies on when rendering
// SQL. It is called by tests and by storage backends before emitting DDL.
func (t Table) Validate() error {
	if strings.TrimSpace(t.Name) == "" {
		return fmt.Errorf("schema: table name is empty")
	}
	if len(t.Columns) == 0 {
		return fmt.Errorf("schema: table %s has no columns", t.Name)
	}
	cols := make(map[string]bool, len(t.Columns))
	for _, c := range t.Columns {
		if c.Name == "" || c.Type == "" {
			return fmt.Errorf("schema: table %s: column name/type must be set", t.Name)
		}
		if cols[c.Name] {
			return fmt.Errorf("schema: table %s: duplicate column %s", t.Name, c.Name)
		}
		cols[c.Name] = true
	}
	for _, k := range t.PrimaryKey {
		if !cols[k] {
			return fmt.Errorf("schema: table %s: primary key column %s not declared", t.Name, k)
		}
	}
	switch t.Conflict.Action {
	case ActionUpdate:
		if len(t.Conflict.Target) == 0 {
			return fmt.Errorf("schema: table %s: update conflict requires a target", t.Name)
		}
	case ActionNothing:
		// Target optional: empty means a catch-all guard.
	default:
		return fmt.Errorf("schema: table %s: unknown conflict action %q", t.Name, t.Conflict.Action)
	}
	// Conflict target must be the declared key, otherwise the upsert silently
	// stops being idempotent.
	if len(t.Conflict.Target) > 0 {
		if len(t.Conflict.Target) != len(t.PrimaryKey) {
			return fmt.Errorf("schema: table %s: conflict target must match primary key", t.Name)
		}
		for i, c := range t.Conflict.Target {
			if c != t.PrimaryKey[i] {
				return fmt.Errorf("schema: table %s: conflict target %s does not match key column %s", t.Name, c, t.PrimaryKey[i])
			}
		}
	}
	return nil
}

// Songplays is the append-only fact table: one row per NextSong event.
// The conflict guard has no target, so inserts are never deduplicated and
// re-running over already-loaded log files duplicates fact rows.
var Songplays = Table{
	Name:   "songplays",
	Serial: "songplay_id",
	Columns: []Column{
		{Name: "start_time", Type: TypeTimestamp},
		{Name: "user_id", Type: TypeInt},
		{Name: "level", Type: TypeVarchar},
		{Name: "song_id", Type: TypeVarchar},
		{Name: "artist_id", Type: TypeVarchar},
		{Name: "session_id", Type: TypeInt},
		{Name: "location", Type: TypeVarchar},
		{Name: "user_agent", Type: TypeVarchar},
	},
	Conflict: Conflict{Action: ActionNothing},
}

// Users is insert-if-absent: a user's level/name from an earlier file is not
// overwritten by a later one.
var Users = Table{
	Name: "users",
	Columns: []Column{
		{Name: "user_id", Type: TypeInt},
		{Name: "first_name", Type: TypeVarchar},
		{Name: "last_name", Type: TypeVarchar},
		{Name: "gender", Type: TypeVarchar},
		{Name: "level", Type: TypeVarchar},
	},
	PrimaryKey: []string{"user_id"},
	Conflict:   Conflict{Action: ActionNothing},
}

// Songs upserts with latest-file-wins semantics.
var Songs = Table{
	Name: "songs",
	Columns: []Column{
		{Name: "song_id", Type: TypeVarchar},
		{Name: "title", Type: TypeVarchar},
		{Name: "artist_id", Type: TypeVarchar},
		{Name: "year", Type: TypeInt},
		{Name: "duration", Type: TypeNumeric},
	},
	PrimaryKey: []string{"song_id"},
	Conflict:   Conflict{Action: ActionUpdate, Target: []string{"song_id"}},
}

// Artists upserts with latest-file-wins semantics.
var Artists = Table{
	Name: "artists",
	Columns: []Column{
		{Name: "artist_id", Type: TypeVarchar},
		{Name: "name", Type: TypeVarchar},
		{Name: "location", Type: TypeVarchar},
		{Name: "latitude", Type: TypeNumeric},
		{Name: "longitude", Type: TypeNumeric},
	},
	PrimaryKey: []string{"artist_id"},
	Conflict:   Conflict{Action: ActionUpdate, Target: []string{"artist_id"}},
}

// Time holds one row per distinct event timestamp, keyed by the formatted
// timestamp itself.
var Time = Table{
	Name: "time",
	Columns: []Column{
		{Name: "start_time", Type: TypeTimestamp},
		{Name: "hour", Type: TypeSmallInt},
		{Name: "day", Type: TypeSmallInt},
		{Name: "week", Type: TypeSmallInt},
		{Name: "month", Type: TypeSmallInt},
		{Name: "year", Type: TypeSmallInt},
		{Name: "weekday", Type: TypeSmallInt},
	},
	PrimaryKey: []string{"start_time"},
	Conflict:   Conflict{Action: ActionNothing},
}

// All returns the full catalog in create order. No table declares a foreign
// key to another, so drops can use the same order.
func All() []Table {
	return []Table{Songplays, Users, Songs, Artists, Time}
}

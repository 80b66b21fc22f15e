// Package loader implements the per-file load procedures: one function per
// input file kind, each writing every derived table through a single open
// Session so the file commits or rolls back as a unit.
package loader

import (
	"context"
	"fmt"

	"sparkifyetl/internal/metrics"
	"sparkifyetl/internal/parser/jsonl"
	"sparkifyetl/internal/schema"
	"sparkifyetl/internal/storage"
	"sparkifyetl/internal/timedim"
	"sparkifyetl/internal/transformer"
)

// Func processes one input file inside the given open session. The caller
// owns the session lifecycle (Begin before, Commit/Rollback after).
type Func func(ctx context.Context, sess storage.Session, path string) error

// Source field names projected into the song and artist dimensions.
var (
	songColumns   = []string{"song_id", "title", "artist_id", "year", "duration"}
	artistColumns = []string{"artist_id", "artist_name", "artist_location", "artist_latitude", "artist_longitude"}
	userColumns   = []string{"userId", "firstName", "lastName", "gender", "level"}
)

// logColumns are the activity-log fields the load procedure reads. A log file
// missing any of these across its whole batch is malformed and fatal for the
// file.
var logColumns = []string{
	"ts", "page", "userId", "firstName", "lastName", "gender", "level",
	"song", "artist", "length", "sessionId", "location", "userAgent",
}

// ProcessSongFile loads one song-metadata file: every record contributes one
// row to songs and one row to artists. Latest-wins semantics for both tables
// live in the backends (keyed update upserts), not here.
func ProcessSongFile(ctx context.Context, sess storage.Session, path string) error {
	frame, err := jsonl.LoadFrame(path)
	if err != nil {
		return err
	}
	if frame.Len() == 0 {
		return nil
	}

	songs, err := frame.Tuples(songColumns...)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	n, err := sess.UpsertRows(ctx, schema.Songs, songs)
	if err != nil {
		return fmt.Errorf("%s: songs: %w", path, err)
	}
	metrics.IncCounter("etl.rows.upserted", float64(n), metrics.Labels{"table": schema.Songs.Name})

	artists, err := frame.Tuples(artistColumns...)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	n, err = sess.UpsertRows(ctx, schema.Artists, artists)
	if err != nil {
		return fmt.Errorf("%s: artists: %w", path, err)
	}
	metrics.IncCounter("etl.rows.upserted", float64(n), metrics.Labels{"table": schema.Artists.Name})

	return nil
}

// ProcessLogFile loads one activity-log file.
//
// Order matters and is part of the contract: time rows first, then users,
// then one songplay row per event. Only "NextSong" page events are loaded;
// everything else in the file is navigation noise and is dropped.
func ProcessLogFile(ctx context.Context, sess storage.Session, path string) error {
	frame, err := jsonl.LoadFrame(path)
	if err != nil {
		return err
	}
	if err := frame.Require(logColumns...); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}

	plays, err := frame.FilterEq("page", "NextSong")
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	if plays.Len() == 0 {
		return nil
	}

	if err := loadTimeRows(ctx, sess, plays); err != nil {
		return fmt.Errorf("%s: time: %w", path, err)
	}

	users, err := plays.Tuples(userColumns...)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	n, err := sess.UpsertRows(ctx, schema.Users, users)
	if err != nil {
		return fmt.Errorf("%s: users: %w", path, err)
	}
	metrics.IncCounter("etl.rows.upserted", float64(n), metrics.Labels{"table": schema.Users.Name})

	if err := loadSongplays(ctx, sess, plays); err != nil {
		return fmt.Errorf("%s: songplays: %w", path, err)
	}
	return nil
}

// loadTimeRows decomposes each event timestamp into the calendar breakdown
// and inserts the batch into the time dimension. Breakdown values go through
// the same zero-to-null normalization as every other projected tuple, so an
// event in the midnight hour stores a null hour.
func loadTimeRows(ctx context.Context, sess storage.Session, plays *transformer.Frame) error {
	rows := make([][]any, plays.Len())
	for i := 0; i < plays.Len(); i++ {
		ms, err := timedim.Millis(plays.Value(i, "ts"))
		if err != nil {
			return err
		}
		row := timedim.Decompose(ms).Row()
		for j, v := range row {
			row[j] = transformer.NormalizeNull(v)
		}
		rows[i] = row
	}

	n, err := sess.UpsertRows(ctx, schema.Time, rows)
	if err != nil {
		return err
	}
	metrics.IncCounter("etl.rows.upserted", float64(n), metrics.Labels{"table": schema.Time.Name})
	return nil
}

// loadSongplays resolves each event against the song/artist dimensions and
// appends one fact row per event, one insert at a time.
//
// The lookup matches on the raw event fields (song title, artist name, track
// length) before any normalization; most events miss and store null ids,
// which is expected with a sparse song catalog.
func loadSongplays(ctx context.Context, sess storage.Session, plays *transformer.Frame) error {
	var written int64
	for i := 0; i < plays.Len(); i++ {
		songID, artistID, err := sess.FindSongArtist(ctx,
			plays.Value(i, "song"),
			plays.Value(i, "artist"),
			plays.Value(i, "length"),
		)
		if err != nil {
			return err
		}

		ms, err := timedim.Millis(plays.Value(i, "ts"))
		if err != nil {
			return err
		}

		row := []any{
			timedim.FormatTimestamp(ms),
			plays.Value(i, "userId"),
			plays.Value(i, "level"),
			songID,
			artistID,
			plays.Value(i, "sessionId"),
			plays.Value(i, "location"),
			plays.Value(i, "userAgent"),
		}

		n, err := sess.UpsertRows(ctx, schema.Songplays, [][]any{row})
		if err != nil {
			return err
		}
		written += n
	}

	metrics.IncCounter("etl.rows.upserted", float64(written), metrics.Labels{"table": schema.Songplays.Name})
	return nil
}

// Package timedim converts millisecond-epoch event timestamps into the
// calendar breakdown stored in the time dimension table.
package timedim

import (
	"fmt"
	"time"
)

// Breakdown is the time-dimension row for one event timestamp.
//
// Weekday follows the 0=Monday .. 6=Sunday convention and Week is the ISO
// week number, matching what the downstream query layer expects.
type Breakdown struct {
	StartTime string
	Hour      int
	Day       int
	Week      int
	Month     int
	Year      int
	Weekday   int
}

// Row returns the breakdown as a tuple in time-table column order
// (start_time, hour, day, week, month, year, weekday).
func (b Breakdown) Row() []any {
	return []any{b.StartTime, b.Hour, b.Day, b.Week, b.Month, b.Year, b.Weekday}
}

// Decompose breaks a millisecond-epoch timestamp into its calendar parts.
// Pure and deterministic; all fields are derived in UTC.
func Decompose(ms int64) Breakdown {
	t := time.UnixMilli(ms).UTC()
	_, week := t.ISOWeek()
	return Breakdown{
		StartTime: FormatTimestamp(ms),
		Hour:      t.Hour(),
		Day:       t.Day(),
		Week:      week,
		Month:     int(t.Month()),
		Year:      t.Year(),
		Weekday:   (int(t.Weekday()) + 6) % 7,
	}
}

// FormatTimestamp renders a millisecond epoch as the timestamp string used as
// the time table's key, e.g. "2018-11-02 01:25:34.796000". The microsecond
// part is omitted when zero, so two epochs that land on the same second
// collapse to the same key.
func FormatTimestamp(ms int64) string {
	t := time.UnixMilli(ms).UTC()
	s := t.Format("2006-01-02 15:04:05")
	if us := t.Nanosecond() / 1000; us != 0 {
		s = fmt.Sprintf("%s.%06d", s, us)
	}
	return s
}

// Millis coerces a decoded JSON value into a millisecond epoch. Timestamps
// arrive as numbers; anything else is a malformed record.
func Millis(v any) (int64, error) {
	switch t := v.(type) {
	case int64:
		return t, nil
	case float64:
		return int64(t), nil
	case int:
		return int64(t), nil
	default:
		return 0, fmt.Errorf("timedim: timestamp is %T, want a millisecond epoch number", v)
	}
}

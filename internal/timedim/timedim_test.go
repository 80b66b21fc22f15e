package timedim

import "testing"

func TestDecomposeKnownTimestamp(t *testing.T) {
	t.Parallel()

	// 2018-11-02 01:25:34.796 UTC, a Friday.
	b := Decompose(1541121934796)

	if b.StartTime != "2018-11-02 01:25:34.796000" {
		t.Fatalf("StartTime = %q", b.StartTime)
	}
	if b.Hour != 1 {
		t.Fatalf("Hour = %d, want 1", b.Hour)
	}
	if b.Day != 2 {
		t.Fatalf("Day = %d, want 2", b.Day)
	}
	if b.Week != 44 {
		t.Fatalf("Week = %d, want 44", b.Week)
	}
	if b.Month != 11 {
		t.Fatalf("Month = %d, want 11", b.Month)
	}
	if b.Year != 2018 {
		t.Fatalf("Year = %d, want 2018", b.Year)
	}
	if b.Weekday != 4 {
		t.Fatalf("Weekday = %d, want 4 (Friday, 0=Monday)", b.Weekday)
	}
}

func TestWeekdayConventionMondayZero(t *testing.T) {
	t.Parallel()

	// 2018-11-05 00:00:00 UTC is a Monday.
	if b := Decompose(1541376000000); b.Weekday != 0 {
		t.Fatalf("Monday weekday = %d, want 0", b.Weekday)
	}
	// 2018-11-04 is a Sunday.
	if b := Decompose(1541289600000); b.Weekday != 6 {
		t.Fatalf("Sunday weekday = %d, want 6", b.Weekday)
	}
}

func TestFormatTimestampDropsZeroMicroseconds(t *testing.T) {
	t.Parallel()

	// Whole-second epoch: no fractional part in the key.
	if got := FormatTimestamp(1541376000000); got != "2018-11-05 00:00:00" {
		t.Fatalf("whole second = %q", got)
	}
	// Fractional: six-digit microseconds, zero padded.
	if got := FormatTimestamp(1541376000007); got != "2018-11-05 00:00:00.007000" {
		t.Fatalf("fractional = %q", got)
	}
}

func TestRowOrderMatchesTimeTable(t *testing.T) {
	t.Parallel()

	b := Decompose(1541121934796)
	row := b.Row()
	if len(row) != 7 {
		t.Fatalf("row len = %d, want 7", len(row))
	}
	if row[0] != b.StartTime || row[1] != b.Hour || row[6] != b.Weekday {
		t.Fatalf("row order mismatch: %v", row)
	}
}

func TestMillisCoercion(t *testing.T) {
	t.Parallel()

	if ms, err := Millis(int64(42)); err != nil || ms != 42 {
		t.Fatalf("int64: ms=%d err=%v", ms, err)
	}
	if ms, err := Millis(float64(42.9)); err != nil || ms != 42 {
		t.Fatalf("float64: ms=%d err=%v", ms, err)
	}
	if _, err := Millis("not a number"); err == nil {
		t.Fatalf("expected error for string timestamp")
	}
	if _, err := Millis(nil); err == nil {
		t.Fatalf("expected error for nil timestamp")
	}
}

package transformer

import (
	"errors"
	"math"
	"testing"
)

func TestNewFrameColumnsAreSortedUnion(t *testing.T) {
	t.Parallel()

	f := NewFrame([]map[string]any{
		{"b": int64(1), "a": "x"},
		{"c": 2.5},
	})

	got := f.Columns()
	want := []string{"a", "b", "c"}
	if len(got) != len(want) {
		t.Fatalf("columns = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("columns = %v, want %v", got, want)
		}
	}
}

func TestValueMissingFieldIsNil(t *testing.T) {
	t.Parallel()

	f := NewFrame([]map[string]any{
		{"a": "x", "b": int64(1)},
		{"a": "y"},
	})

	if v := f.Value(1, "b"); v != nil {
		t.Fatalf("Value(1, b) = %v, want nil for field absent from record", v)
	}
	if v := f.Value(0, "b"); v != int64(1) {
		t.Fatalf("Value(0, b) = %v, want 1", v)
	}
}

func TestTuplesReturnsMissingColumnError(t *testing.T) {
	t.Parallel()

	f := NewFrame([]map[string]any{{"a": "x"}})

	_, err := f.Tuples("a", "nope")
	var missing *MissingColumnError
	if !errors.As(err, &missing) {
		t.Fatalf("err = %v, want MissingColumnError", err)
	}
	if missing.Column != "nope" {
		t.Fatalf("missing column = %q, want %q", missing.Column, "nope")
	}
}

func TestTuplesNormalizeZeroAndNaN(t *testing.T) {
	t.Parallel()

	f := NewFrame([]map[string]any{
		{"id": int64(0), "score": math.NaN(), "name": "keep", "n": int64(7)},
	})

	rows, err := f.Tuples("id", "score", "name", "n")
	if err != nil {
		t.Fatalf("Tuples: %v", err)
	}
	row := rows[0]
	if row[0] != nil {
		t.Fatalf("zero int = %v, want nil", row[0])
	}
	if row[1] != nil {
		t.Fatalf("NaN = %v, want nil", row[1])
	}
	if row[2] != "keep" {
		t.Fatalf("string = %v, want keep", row[2])
	}
	if row[3] != int64(7) {
		t.Fatalf("nonzero int = %v, want 7", row[3])
	}
}

func TestFilterEqSharesColumnsAndKeepsMatches(t *testing.T) {
	t.Parallel()

	f := NewFrame([]map[string]any{
		{"page": "NextSong", "ts": int64(1)},
		{"page": "Home", "ts": int64(2)},
		{"page": "NextSong", "ts": int64(3)},
	})

	kept, err := f.FilterEq("page", "NextSong")
	if err != nil {
		t.Fatalf("FilterEq: %v", err)
	}
	if kept.Len() != 2 {
		t.Fatalf("kept %d rows, want 2", kept.Len())
	}
	if kept.Value(1, "ts") != int64(3) {
		t.Fatalf("record order not preserved: %v", kept.Value(1, "ts"))
	}
	if len(kept.Columns()) != len(f.Columns()) {
		t.Fatalf("filtered frame lost columns")
	}
}

func TestRequireAcceptsPresentRejectsAbsent(t *testing.T) {
	t.Parallel()

	f := NewFrame([]map[string]any{{"a": 1, "b": 2}})

	if err := f.Require("a", "b"); err != nil {
		t.Fatalf("Require(a, b): %v", err)
	}
	if err := f.Require("a", "c"); err == nil {
		t.Fatalf("Require(a, c): expected error")
	}
}

func TestNormalizeNullIsIdempotent(t *testing.T) {
	t.Parallel()

	cases := []any{nil, int64(0), float64(0), math.NaN(), "", "x", int64(5), 1.25}
	for _, v := range cases {
		once := NormalizeNull(v)
		twice := NormalizeNull(once)
		// NaN != NaN, but NormalizeNull maps NaN to nil on the first pass, so
		// plain equality is safe here.
		if once != twice {
			t.Fatalf("NormalizeNull not idempotent for %v: %v then %v", v, once, twice)
		}
	}

	if NormalizeNull("") != "" {
		t.Fatalf("empty string must pass through unchanged")
	}
}

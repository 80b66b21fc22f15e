// Package transformer holds the in-memory batch representation produced by
// the parsers and the projection logic that turns a batch into row tuples for
// bulk upserts.
package transformer

import (
	"fmt"
	"math"
	"sort"
)

// MissingColumnError reports a projection of a column that no record in the
// batch carries. A field absent from a single record is not an error (the
// value is nil); a field absent from the whole batch means the file does not
// have the expected shape and the file is fatal.
type MissingColumnError struct {
	Column string
}

func (e *MissingColumnError) Error() string {
	return fmt.Sprintf("column %q not present in record batch", e.Column)
}

// Frame is a tabular batch of decoded records.
//
// Columns are the union of the field names seen across all records, sorted
// for determinism. Rows are aligned to that column set; fields a record does
// not carry are nil.
type Frame struct {
	columns []string
	index   map[string]int
	rows    [][]any
}

// NewFrame builds a Frame from decoded records.
func NewFrame(records []map[string]any) *Frame {
	set := make(map[string]struct{})
	for _, rec := range records {
		for k := range rec {
			set[k] = struct{}{}
		}
	}

	columns := make([]string, 0, len(set))
	for k := range set {
		columns = append(columns, k)
	}
	sort.Strings(columns)

	index := make(map[string]int, len(columns))
	for i, c := range columns {
		index[c] = i
	}

	rows := make([][]any, len(records))
	for i, rec := range records {
		row := make([]any, len(columns))
		for k, v := range rec {
			row[index[k]] = v
		}
		rows[i] = row
	}

	return &Frame{columns: columns, index: index, rows: rows}
}

// Len returns the number of records in the batch.
func (f *Frame) Len() int { return len(f.rows) }

// Columns returns the batch's column names.
func (f *Frame) Columns() []string {
	out := make([]string, len(f.columns))
	copy(out, f.columns)
	return out
}

// Require verifies that every named column exists in the batch.
func (f *Frame) Require(columns ...string) error {
	for _, c := range columns {
		if _, ok := f.index[c]; !ok {
			return &MissingColumnError{Column: c}
		}
	}
	return nil
}

// Column returns all values of one column, in record order.
func (f *Frame) Column(name string) ([]any, error) {
	i, ok := f.index[name]
	if !ok {
		return nil, &MissingColumnError{Column: name}
	}
	out := make([]any, len(f.rows))
	for r, row := range f.rows {
		out[r] = row[i]
	}
	return out, nil
}

// Value returns the raw (un-normalized) value at record i, column name.
// It returns nil for columns not in the batch; callers that need the
// missing-column distinction should Require first.
func (f *Frame) Value(i int, name string) any {
	c, ok := f.index[name]
	if !ok {
		return nil
	}
	return f.rows[i][c]
}

// FilterEq returns a new Frame containing the records whose value in the
// named column equals want. The column set is shared with the receiver.
func (f *Frame) FilterEq(column string, want any) (*Frame, error) {
	i, ok := f.index[column]
	if !ok {
		return nil, &MissingColumnError{Column: column}
	}
	kept := make([][]any, 0, len(f.rows))
	for _, row := range f.rows {
		if row[i] == want {
			kept = append(kept, row)
		}
	}
	return &Frame{columns: f.columns, index: f.index, rows: kept}, nil
}

// Tuples projects the batch into row tuples in the requested column order,
// one tuple per record, with NormalizeNull applied to every value. When no
// columns are given, all columns are projected in Frame order.
func (f *Frame) Tuples(columns ...string) ([][]any, error) {
	if len(columns) == 0 {
		columns = f.columns
	}
	idx := make([]int, len(columns))
	for i, c := range columns {
		j, ok := f.index[c]
		if !ok {
			return nil, &MissingColumnError{Column: c}
		}
		idx[i] = j
	}

	out := make([][]any, len(f.rows))
	for r, row := range f.rows {
		tuple := make([]any, len(idx))
		for i, j := range idx {
			tuple[i] = NormalizeNull(row[j])
		}
		out[r] = tuple
	}
	return out, nil
}

// NormalizeNull maps numeric zero and NaN to nil.
//
// This is a blanket, type-unaware rule inherited from the pipeline's original
// behavior: zero is treated as "absent" for every numeric field, even where a
// zero could be legitimate (a year recorded as 0, a zero-length track). The
// rule is idempotent: nil stays nil.
func NormalizeNull(v any) any {
	switch t := v.(type) {
	case nil:
		return nil
	case int64:
		if t == 0 {
			return nil
		}
	case float64:
		if t == 0 || math.IsNaN(t) {
			return nil
		}
	case int:
		if t == 0 {
			return nil
		}
	case float32:
		if t == 0 || math.IsNaN(float64(t)) {
			return nil
		}
	}
	return v
}

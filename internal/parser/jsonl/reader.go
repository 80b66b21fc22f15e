// Package jsonl reads JSON Lines files (one JSON object per line) into
// transformer.Frame batches.
package jsonl

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"

	"github.com/goccy/go-json"

	"sparkifyetl/internal/transformer"
)

// maxLineBytes bounds a single record line. Song metadata and activity log
// records are small; 4 MiB leaves generous headroom.
const maxLineBytes = 4 * 1024 * 1024

// ReadFrame decodes every line of r as a JSON object and returns the batch.
//
// Blank lines are skipped. Any malformed line is fatal for the whole reader;
// the error carries the 1-based line number. Numbers are decoded as int64
// when they fit, float64 otherwise, so zero detection downstream does not
// depend on the JSON source formatting.
func ReadFrame(r io.Reader) (*transformer.Frame, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	var records []map[string]any
	line := 0
	for sc.Scan() {
		line++
		raw := bytes.TrimSpace(sc.Bytes())
		if len(raw) == 0 {
			continue
		}

		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.UseNumber()

		var rec map[string]any
		if err := dec.Decode(&rec); err != nil {
			return nil, fmt.Errorf("jsonl: line %d: %w", line, err)
		}
		records = append(records, coerceNumbers(rec))
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("jsonl: read: %w", err)
	}

	return transformer.NewFrame(records), nil
}

// LoadFrame opens path and reads it as a JSON Lines batch.
func LoadFrame(path string) (*transformer.Frame, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("jsonl: %w", err)
	}
	defer f.Close()

	fr, err := ReadFrame(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return fr, nil
}

// coerceNumbers rewrites json.Number values into int64 or float64 so they can
// be bound directly as statement parameters. Nested containers are walked too,
// though the feeds this pipeline reads are flat.
func coerceNumbers(rec map[string]any) map[string]any {
	for k, v := range rec {
		rec[k] = coerceValue(v)
	}
	return rec
}

func coerceValue(v any) any {
	switch t := v.(type) {
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return i
		}
		if f, err := t.Float64(); err == nil {
			return f
		}
		// Out-of-range literal; keep the raw text.
		return t.String()
	case map[string]any:
		return coerceNumbers(t)
	case []any:
		for i, item := range t {
			t[i] = coerceValue(item)
		}
		return t
	default:
		return v
	}
}

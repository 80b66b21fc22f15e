// Package config defines the pipeline configuration surface and its
// validation rules.
//
// Configs are plain JSON files. Loading and validating are separate steps so
// tooling can report every problem in a config at once instead of failing on
// the first bad field.
package config

import (
	"encoding/json"
	"fmt"
	"os"
)

// Pipeline is the top-level pipeline config.
type Pipeline struct {
	Job     string  `json:"job"`
	Source  Source  `json:"source"`
	Storage Storage `json:"storage"`
	Metrics Metrics `json:"metrics"`
}

// Source names the two input trees walked by a run. Both are directories
// containing *.json files, possibly nested.
type Source struct {
	SongData string `json:"song_data"`
	LogData  string `json:"log_data"`
}

// Storage selects a registered backend and its connection string.
type Storage struct {
	// Backend kind: "postgres" | "mssql" | "sqlite"
	Kind string `json:"kind"`

	// DSN is expanded with os.ExpandEnv before use, so secrets can live in
	// the environment rather than the config file.
	DSN string `json:"dsn"`
}

// Metrics holds optional metrics backend defaults. Flags override these.
type Metrics struct {
	Backend string `json:"backend"`
	Tags    string `json:"tags"`
}

// Severity classifies a validation issue.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Issue is a single validation finding, with a JSON-ish path to the field.
type Issue struct {
	Severity Severity
	Path     string
	Message  string
}

// Load reads and decodes a pipeline config from path.
//
// Unknown fields are rejected so typos ("log_dat") fail loudly instead of
// silently leaving the field zero.
func Load(path string) (Pipeline, error) {
	f, err := os.Open(path)
	if err != nil {
		return Pipeline{}, fmt.Errorf("open config: %w", err)
	}
	defer f.Close()

	dec := json.NewDecoder(f)
	dec.DisallowUnknownFields()

	var p Pipeline
	if err := dec.Decode(&p); err != nil {
		return Pipeline{}, fmt.Errorf("decode config %s: %w", path, err)
	}
	return p, nil
}

// ValidatePipeline checks a pipeline config and returns all issues found.
// An empty slice means the config is usable.
func ValidatePipeline(p Pipeline) []Issue {
	var issues []Issue

	errf := func(path, format string, a ...any) {
		issues = append(issues, Issue{SeverityError, path, fmt.Sprintf(format, a...)})
	}
	warnf := func(path, format string, a ...any) {
		issues = append(issues, Issue{SeverityWarning, path, fmt.Sprintf(format, a...)})
	}

	if p.Job == "" {
		warnf("job", "missing job name; metrics will be tagged with a default")
	}

	if p.Source.SongData == "" {
		errf("source.song_data", "song data directory is required")
	}
	if p.Source.LogData == "" {
		errf("source.log_data", "log data directory is required")
	}

	switch p.Storage.Kind {
	case "":
		errf("storage.kind", "storage kind is required")
	case "postgres", "mssql", "sqlite":
		// registered backends
	default:
		errf("storage.kind", "unknown storage kind %q", p.Storage.Kind)
	}
	if p.Storage.DSN == "" {
		errf("storage.dsn", "storage DSN is required")
	}

	switch p.Metrics.Backend {
	case "", "none", "datadog":
	default:
		warnf("metrics.backend", "unknown metrics backend %q; metrics will be disabled", p.Metrics.Backend)
	}

	return issues
}

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pipeline.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadValidConfig(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, `{
		"job": "sparkify_etl",
		"source": {"song_data": "data/song_data", "log_data": "data/log_data"},
		"storage": {"kind": "postgres", "dsn": "postgres://u:p@localhost/db"},
		"metrics": {"backend": "none"}
	}`)

	p, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "sparkify_etl", p.Job)
	require.Equal(t, "data/log_data", p.Source.LogData)
	require.Equal(t, "postgres", p.Storage.Kind)

	require.Empty(t, ValidatePipeline(p))
}

func TestLoadRejectsUnknownFields(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, `{
		"job": "x",
		"source": {"song_data": "a", "log_dat": "typo"},
		"storage": {"kind": "sqlite", "dsn": "file.db"}
	}`)

	_, err := Load(path)
	require.Error(t, err)
	require.Contains(t, err.Error(), "log_dat")
}

func TestLoadMissingFile(t *testing.T) {
	t.Parallel()

	_, err := Load(filepath.Join(t.TempDir(), "nope.json"))
	require.Error(t, err)
}

func TestValidatePipelineReportsEveryProblem(t *testing.T) {
	t.Parallel()

	issues := ValidatePipeline(Pipeline{})

	paths := make(map[string]Severity, len(issues))
	for _, iss := range issues {
		paths[iss.Path] = iss.Severity
	}

	require.Equal(t, SeverityError, paths["source.song_data"])
	require.Equal(t, SeverityError, paths["source.log_data"])
	require.Equal(t, SeverityError, paths["storage.kind"])
	require.Equal(t, SeverityError, paths["storage.dsn"])
	require.Equal(t, SeverityWarning, paths["job"])
}

func TestValidatePipelineUnknownKinds(t *testing.T) {
	t.Parallel()

	p := Pipeline{
		Job:     "x",
		Source:  Source{SongData: "a", LogData: "b"},
		Storage: Storage{Kind: "oracle", DSN: "dsn"},
		Metrics: Metrics{Backend: "statsd"},
	}

	var kinds, backends int
	for _, iss := range ValidatePipeline(p) {
		switch iss.Path {
		case "storage.kind":
			kinds++
			require.Equal(t, SeverityError, iss.Severity)
		case "metrics.backend":
			backends++
			require.Equal(t, SeverityWarning, iss.Severity)
		}
	}
	require.Equal(t, 1, kinds)
	require.Equal(t, 1, backends)
}

package integration

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pathlens/pathlens/internal/app"
	"github.com/pathlens/pathlens/internal/config"
	"github.com/pathlens/pathlens/internal/eventstream"
	"github.com/pathlens/pathlens/internal/store"
)

const inputCSV = `event,timestamp,user_id,country
login,2024-03-01 12:00:00,u1,de
browse,2024-03-01 12:00:10,u1,de
buy,2024-03-01 12:30:00,u1,de
login,2024-03-01 12:05:00,u2,fr
buy,2024-03-01 12:05:30,u2,
broken,,u3,us
`

const graphYAML = `
- kind: SourceNode
  pk: source
- kind: EventsNode
  pk: sessions
  parents: [source]
  processor:
    name: split_sessions
    params:
      timeout: 15m
- kind: EventsNode
  pk: wrap
  parents: [sessions]
  processor:
    name: add_start_end_events
`

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func newTestConfig(t *testing.T) *config.Config {
	base := t.TempDir()
	writeFile(t, filepath.Join(base, "events.csv"), inputCSV)

	cfg := config.DefaultConfig()
	cfg.DataDir = filepath.Join(base, "data")
	cfg.Input.Path = filepath.Join(base, "events.csv")
	cfg.Input.CustomCols = map[string]string{"country": "country"}
	return cfg
}

func TestPipelineWithoutGraph(t *testing.T) {
	cfg := newTestConfig(t)

	p, err := app.New(cfg, nil)
	require.NoError(t, err)

	result, err := p.Run(context.Background())
	require.NoError(t, err)

	// The row with no timestamp is dropped during construction.
	assert.Equal(t, 5, result.Rows)
	assert.Equal(t, 1, result.DroppedRows)
	assert.Empty(t, result.ArchivePath)

	es, err := store.Read(context.Background(), result.SnapshotPath)
	require.NoError(t, err)
	assert.Equal(t, result.StreamID, es.ID())
	assert.Equal(t, 5, es.RowCount())
	assert.Contains(t, es.Schema().CustomCols, "country")

	view := es.Frame(eventstream.ViewOptions{})
	countries := view.Col("country")
	users := view.Col("user_id")
	for i := range users {
		if users[i] == "u2" && view.Value("event", i) == "buy" {
			assert.Nil(t, countries[i], "empty CSV cell must load as null")
		}
	}
}

func TestPipelineWithGraphAndArchive(t *testing.T) {
	cfg := newTestConfig(t)
	writeFile(t, filepath.Join(cfg.DataDir, "graph.yaml"), graphYAML)
	cfg.Graph.Path = filepath.Join(cfg.DataDir, "graph.yaml")
	cfg.Snapshot.Archive = true

	p, err := app.New(cfg, nil)
	require.NoError(t, err)

	result, err := p.Run(context.Background())
	require.NoError(t, err)

	// 5 source rows, u1 split into two sessions (30 minute gap beats the
	// 15 minute timeout): 3 session wrapper pairs, then path_start and
	// path_end per user.
	assert.Equal(t, 5+6+4, result.Rows)
	assert.Equal(t, "snapshots/eventstream.snapshot", result.ArchivePath)

	es, err := store.Read(context.Background(), result.SnapshotPath)
	require.NoError(t, err)

	counts := make(map[string]int)
	for _, v := range es.Frame(eventstream.ViewOptions{}).Col("event") {
		counts[v.(string)]++
	}
	assert.Equal(t, 3, counts["session_start"])
	assert.Equal(t, 3, counts["session_end"])
	assert.Equal(t, 2, counts["path_start"])
	assert.Equal(t, 2, counts["path_end"])
	assert.Contains(t, es.Schema().CustomCols, "session_id")

	// The archived object is byte-identical to the local snapshot.
	archived := filepath.Join(cfg.Storage.Path, "snapshots", "eventstream.snapshot")
	want, err := os.ReadFile(result.SnapshotPath)
	require.NoError(t, err)
	got, err := os.ReadFile(archived)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestPipelineRejectsUnknownProcessor(t *testing.T) {
	cfg := newTestConfig(t)
	writeFile(t, filepath.Join(cfg.DataDir, "graph.yaml"), `
- kind: SourceNode
  pk: source
- kind: EventsNode
  pk: bad
  parents: [source]
  processor:
    name: no_such_processor
`)
	cfg.Graph.Path = filepath.Join(cfg.DataDir, "graph.yaml")

	p, err := app.New(cfg, nil)
	require.NoError(t, err)

	_, err = p.Run(context.Background())
	require.Error(t, err)
}

func TestPipelineValidatesConfig(t *testing.T) {
	cfg := config.DefaultConfig()
	_, err := app.New(cfg, nil)
	require.Error(t, err)
}

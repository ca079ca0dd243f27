// Package app wires the full pathlens pipeline: load raw events, build an
// eventstream, run the preprocessing graph, and publish a snapshot.
package app

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/pathlens/pathlens/internal/config"
	"github.com/pathlens/pathlens/internal/eventstream"
	"github.com/pathlens/pathlens/internal/frame"
	"github.com/pathlens/pathlens/internal/graph"
	"github.com/pathlens/pathlens/internal/processor"
	"github.com/pathlens/pathlens/internal/storage"
	"github.com/pathlens/pathlens/internal/store"
	"github.com/pathlens/pathlens/pkg/types"
)

// Pipeline runs one end-to-end pass over the configured input.
type Pipeline struct {
	cfg      *config.Config
	registry *processor.Registry
}

// RunResult summarizes a completed pipeline run.
type RunResult struct {
	StreamID     types.StreamID
	Rows         int
	DroppedRows  int
	SnapshotPath string
	ArchivePath  string
}

// New creates a pipeline from configuration. The registry carries the
// processors the graph definition may reference.
func New(cfg *config.Config, registry *processor.Registry) (*Pipeline, error) {
	cfg.Resolve()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("failed to create directories: %w", err)
	}
	if registry == nil {
		registry = processor.DefaultRegistry()
	}
	return &Pipeline{cfg: cfg, registry: registry}, nil
}

// Run executes the pipeline and returns a summary.
func (p *Pipeline) Run(ctx context.Context) (*RunResult, error) {
	raw, err := loadCSV(p.cfg.Input.Path)
	if err != nil {
		return nil, err
	}
	log.Printf("app: loaded %d raw rows from %s", raw.NumRows(), p.cfg.Input.Path)

	source, err := p.buildSource(raw)
	if err != nil {
		return nil, err
	}
	if n := source.DroppedRows(); n > 0 {
		log.Printf("app: dropped %d rows missing required fields", n)
	}

	result := source
	if p.cfg.Graph.Path != "" {
		result, err = p.runGraph(source)
		if err != nil {
			return nil, err
		}
	}

	snapshotPath := p.cfg.SnapshotPath()
	if err := store.Write(ctx, snapshotPath, result); err != nil {
		return nil, err
	}
	log.Printf("app: wrote snapshot %s (%d rows)", snapshotPath, result.RowCount())

	run := &RunResult{
		StreamID:     result.ID(),
		Rows:         result.RowCount(),
		DroppedRows:  source.DroppedRows(),
		SnapshotPath: snapshotPath,
	}

	if p.cfg.Snapshot.Archive {
		objectPath := p.cfg.Storage.Prefix + "/" + p.cfg.Snapshot.Name
		archive, err := p.buildStorage(ctx)
		if err != nil {
			return nil, err
		}
		if err := archive.Upload(ctx, snapshotPath, objectPath); err != nil {
			return nil, err
		}
		log.Printf("app: archived snapshot to %s", objectPath)
		run.ArchivePath = objectPath
	}

	return run, nil
}

// buildSource constructs the source eventstream from raw input per the
// configured column mapping.
func (p *Pipeline) buildSource(raw *frame.Frame) (*eventstream.Eventstream, error) {
	rawSchema := &eventstream.RawDataSchema{
		EventName:      p.cfg.Input.EventCol,
		EventTimestamp: p.cfg.Input.TimestampCol,
		UserID:         p.cfg.Input.UserIDCol,
		EventType:      p.cfg.Input.EventTypeCol,
	}
	schema := eventstream.DefaultSchema()
	for rawCol, customCol := range p.cfg.Input.CustomCols {
		rawSchema.CustomCols = append(rawSchema.CustomCols,
			eventstream.RawCustomCol{RawCol: rawCol, CustomCol: customCol})
		schema.AddCustomCol(customCol)
	}

	opts := eventstream.Options{
		RawDataSchema: rawSchema,
		Schema:        schema,
		IndexOrder:    p.cfg.Input.IndexOrder,
	}
	if p.cfg.Input.Sample.Enabled() {
		opts.Sample = &eventstream.UserSample{
			Count:    p.cfg.Input.Sample.Count,
			Fraction: p.cfg.Input.Sample.Fraction,
			Seed:     p.cfg.Input.Sample.Seed,
		}
	}
	return eventstream.New(raw, opts)
}

// runGraph imports the graph definition and combines its terminal node.
func (p *Pipeline) runGraph(source *eventstream.Eventstream) (*eventstream.Eventstream, error) {
	data, err := os.ReadFile(p.cfg.Graph.Path)
	if err != nil {
		return nil, fmt.Errorf("reading graph definition: %w", err)
	}
	g, err := graph.ImportYAML(source, p.registry, data)
	if err != nil {
		return nil, err
	}
	terminal := g.Terminal()
	if terminal == nil {
		return nil, fmt.Errorf("graph definition %s has no nodes", p.cfg.Graph.Path)
	}
	log.Printf("app: combining graph at node %s", terminal.PK())
	return g.Combine(terminal)
}

func (p *Pipeline) buildStorage(ctx context.Context) (storage.ObjectStorage, error) {
	switch p.cfg.Storage.Type {
	case "s3":
		return storage.NewS3Storage(ctx, p.cfg.Storage.S3.Bucket, storage.S3Config{
			Region:       p.cfg.Storage.S3.Region,
			Endpoint:     p.cfg.Storage.S3.Endpoint,
			UsePathStyle: p.cfg.Storage.S3.UsePathStyle,
		})
	default:
		return storage.NewLocalStorage(p.cfg.Storage.Path)
	}
}

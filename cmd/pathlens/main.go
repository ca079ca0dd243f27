// Package main implements the pathlens binary: it loads raw events, builds
// an eventstream, runs the configured preprocessing graph, and publishes a
// snapshot.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/pathlens/pathlens/internal/app"
	"github.com/pathlens/pathlens/internal/config"
	"github.com/pathlens/pathlens/internal/processor"
)

var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	var (
		configFile  string
		dataDir     string
		inputPath   string
		graphPath   string
		archive     bool
		showVersion bool
		showHelp    bool
	)

	flag.StringVar(&configFile, "config", "", "Path to configuration file (YAML or JSON)")
	flag.StringVar(&dataDir, "data-dir", "", "Base directory for all data files")
	flag.StringVar(&inputPath, "input", "", "CSV file holding raw events")
	flag.StringVar(&graphPath, "graph", "", "YAML preprocessing graph definition")
	flag.BoolVar(&archive, "archive", false, "Upload the snapshot to the configured archive")
	flag.BoolVar(&showVersion, "version", false, "Show version information")
	flag.BoolVar(&showHelp, "help", false, "Show help message")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "pathlens - eventstream preprocessing pipeline\n\n")
		fmt.Fprintf(os.Stderr, "Usage: pathlens [options]\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  pathlens --input events.csv\n")
		fmt.Fprintf(os.Stderr, "  pathlens --input events.csv --graph graph.yaml --archive\n")
		fmt.Fprintf(os.Stderr, "  pathlens --config /etc/pathlens/config.yaml\n")
		fmt.Fprintf(os.Stderr, "\nEnvironment Variables:\n")
		fmt.Fprintf(os.Stderr, "  PATHLENS_DATA_DIR       Base directory for data files\n")
		fmt.Fprintf(os.Stderr, "  PATHLENS_INPUT_PATH     CSV file holding raw events\n")
		fmt.Fprintf(os.Stderr, "  PATHLENS_GRAPH_PATH     Graph definition file\n")
		fmt.Fprintf(os.Stderr, "  PATHLENS_STORAGE_TYPE   Archive type (local, s3)\n")
	}

	flag.Parse()

	if showHelp {
		flag.Usage()
		os.Exit(0)
	}
	if showVersion {
		fmt.Printf("pathlens version %s (commit: %s)\n", version, commit)
		os.Exit(0)
	}

	cfg, err := loadConfig(configFile, dataDir, inputPath, graphPath, archive)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	pipeline, err := app.New(cfg, processor.DefaultRegistry())
	if err != nil {
		log.Fatalf("Failed to create pipeline: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	result, err := pipeline.Run(ctx)
	if err != nil {
		log.Fatalf("Pipeline failed: %v", err)
	}

	log.Printf("Done: stream %s, %d rows (%d dropped), snapshot %s",
		result.StreamID, result.Rows, result.DroppedRows, result.SnapshotPath)
	if result.ArchivePath != "" {
		log.Printf("Archived: %s", result.ArchivePath)
	}
}

// loadConfig loads configuration from file, environment, and command line
// flags, in increasing priority.
func loadConfig(configFile, dataDir, inputPath, graphPath string, archive bool) (*config.Config, error) {
	var cfg *config.Config
	var err error

	if configFile != "" {
		cfg, err = config.LoadFromFile(configFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	} else {
		cfg = config.DefaultConfig()
	}

	config.LoadFromEnv(cfg)

	if dataDir != "" {
		cfg.DataDir = dataDir
	}
	if inputPath != "" {
		cfg.Input.Path = inputPath
	}
	if graphPath != "" {
		cfg.Graph.Path = graphPath
	}
	if archive {
		cfg.Snapshot.Archive = true
	}

	return cfg, nil
}

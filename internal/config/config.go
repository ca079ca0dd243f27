// Package config provides unified configuration for the pathlens pipeline.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds the pipeline configuration: where raw events come from, how
// their columns map onto the eventstream schema, which preprocessing graph
// to run, and where the resulting snapshot goes.
type Config struct {
	// DataDir is the base directory for all data files
	DataDir string `json:"data_dir" yaml:"data_dir"`

	// Input configures the raw event source
	Input InputConfig `json:"input" yaml:"input"`

	// Graph configures the preprocessing graph
	Graph GraphConfig `json:"graph" yaml:"graph"`

	// Snapshot configures snapshot output
	Snapshot SnapshotConfig `json:"snapshot" yaml:"snapshot"`

	// Storage configures the snapshot archive
	Storage StorageConfig `json:"storage" yaml:"storage"`
}

// InputConfig describes the raw event source and its column mapping.
type InputConfig struct {
	// Path is the CSV file holding raw events
	Path string `json:"path" yaml:"path"`

	// EventCol is the raw column carrying the event name
	EventCol string `json:"event_col" yaml:"event_col"`

	// TimestampCol is the raw column carrying the event timestamp
	TimestampCol string `json:"timestamp_col" yaml:"timestamp_col"`

	// UserIDCol is the raw column carrying the user identifier
	UserIDCol string `json:"user_id_col" yaml:"user_id_col"`

	// EventTypeCol is the optional raw column carrying the event type
	EventTypeCol string `json:"event_type_col" yaml:"event_type_col"`

	// CustomCols maps raw columns onto custom schema columns
	CustomCols map[string]string `json:"custom_cols" yaml:"custom_cols"`

	// IndexOrder overrides the default event_type ordering priority
	IndexOrder []string `json:"index_order" yaml:"index_order"`

	// Sample restricts the input to a random subset of user paths
	Sample SampleConfig `json:"sample" yaml:"sample"`
}

// SampleConfig describes user path sampling. Count and Fraction are
// mutually exclusive; both zero disables sampling.
type SampleConfig struct {
	// Count is the absolute number of user paths to keep
	Count int `json:"count" yaml:"count"`

	// Fraction is the share of user paths to keep, in (0, 1]
	Fraction float64 `json:"fraction" yaml:"fraction"`

	// Seed makes the sample reproducible
	Seed int64 `json:"seed" yaml:"seed"`
}

// Enabled reports whether sampling is configured.
func (s SampleConfig) Enabled() bool {
	return s.Count != 0 || s.Fraction != 0
}

// GraphConfig describes the preprocessing graph to run.
type GraphConfig struct {
	// Path is the YAML graph definition file; empty runs no processors
	Path string `json:"path" yaml:"path"`
}

// SnapshotConfig describes snapshot output.
type SnapshotConfig struct {
	// Dir is the directory snapshot files are written to
	Dir string `json:"dir" yaml:"dir"`

	// Name is the snapshot file name
	Name string `json:"name" yaml:"name"`

	// Archive uploads the snapshot to the configured storage after writing
	Archive bool `json:"archive" yaml:"archive"`
}

// StorageConfig holds snapshot archive configuration.
type StorageConfig struct {
	// Type is the archive type: local, s3
	Type string `json:"type" yaml:"type"`

	// Path is the local archive path (for local type)
	Path string `json:"path" yaml:"path"`

	// Prefix is the object path prefix inside the archive
	Prefix string `json:"prefix" yaml:"prefix"`

	// S3 configuration (for s3 type)
	S3 S3Config `json:"s3" yaml:"s3"`
}

// S3Config holds S3 archive configuration.
type S3Config struct {
	// Bucket is the S3 bucket name
	Bucket string `json:"bucket" yaml:"bucket"`

	// Region is the AWS region
	Region string `json:"region" yaml:"region"`

	// Endpoint is the S3 endpoint (for S3-compatible storage)
	Endpoint string `json:"endpoint" yaml:"endpoint"`

	// UsePathStyle enables path-style addressing (required for MinIO)
	UsePathStyle bool `json:"use_path_style" yaml:"use_path_style"`
}

// DefaultConfig returns the default configuration for local development.
func DefaultConfig() *Config {
	return &Config{
		DataDir: "./data/pathlens",
		Input: InputConfig{
			EventCol:     "event",
			TimestampCol: "timestamp",
			UserIDCol:    "user_id",
		},
		Snapshot: SnapshotConfig{
			Name: "eventstream.snapshot",
		},
		Storage: StorageConfig{
			Type:   "local",
			Prefix: "snapshots",
		},
	}
}

// Resolve resolves relative paths and sets defaults based on DataDir.
func (c *Config) Resolve() {
	if c.DataDir == "" {
		c.DataDir = "./data/pathlens"
	}
	if c.Snapshot.Dir == "" {
		c.Snapshot.Dir = filepath.Join(c.DataDir, "snapshots")
	}
	if c.Storage.Path == "" {
		c.Storage.Path = filepath.Join(c.DataDir, "archive")
	}
}

// SnapshotPath returns the full path of the output snapshot file.
func (c *Config) SnapshotPath() string {
	return filepath.Join(c.Snapshot.Dir, c.Snapshot.Name)
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Input.Path == "" {
		return fmt.Errorf("input.path is required")
	}
	if c.Input.EventCol == "" || c.Input.TimestampCol == "" || c.Input.UserIDCol == "" {
		return fmt.Errorf("input.event_col, input.timestamp_col, and input.user_id_col are required")
	}
	if c.Input.Sample.Count != 0 && c.Input.Sample.Fraction != 0 {
		return fmt.Errorf("input.sample.count and input.sample.fraction are mutually exclusive")
	}
	if c.Storage.Type != "local" && c.Storage.Type != "s3" {
		return fmt.Errorf("invalid storage type: %s (must be local or s3)", c.Storage.Type)
	}
	if c.Storage.Type == "s3" && c.Storage.S3.Bucket == "" {
		return fmt.Errorf("s3.bucket is required when storage type is s3")
	}
	return nil
}

// LoadFromFile loads configuration from a YAML or JSON file.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()

	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse YAML config: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse JSON config: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported config file format: %s", ext)
	}

	return cfg, nil
}

// LoadFromEnv overrides configuration from environment variables.
// Environment variables use the PATHLENS_ prefix.
func LoadFromEnv(cfg *Config) {
	if v := os.Getenv("PATHLENS_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
	if v := os.Getenv("PATHLENS_INPUT_PATH"); v != "" {
		cfg.Input.Path = v
	}
	if v := os.Getenv("PATHLENS_GRAPH_PATH"); v != "" {
		cfg.Graph.Path = v
	}
	if v := os.Getenv("PATHLENS_SNAPSHOT_DIR"); v != "" {
		cfg.Snapshot.Dir = v
	}
	if v := os.Getenv("PATHLENS_SNAPSHOT_NAME"); v != "" {
		cfg.Snapshot.Name = v
	}
	if v := os.Getenv("PATHLENS_SNAPSHOT_ARCHIVE"); v != "" {
		cfg.Snapshot.Archive = v == "true" || v == "1"
	}
	if v := os.Getenv("PATHLENS_STORAGE_TYPE"); v != "" {
		cfg.Storage.Type = v
	}
	if v := os.Getenv("PATHLENS_STORAGE_PATH"); v != "" {
		cfg.Storage.Path = v
	}
	if v := os.Getenv("PATHLENS_STORAGE_PREFIX"); v != "" {
		cfg.Storage.Prefix = v
	}
	if v := os.Getenv("PATHLENS_S3_BUCKET"); v != "" {
		cfg.Storage.S3.Bucket = v
	}
	if v := os.Getenv("PATHLENS_S3_REGION"); v != "" {
		cfg.Storage.S3.Region = v
	}
	if v := os.Getenv("PATHLENS_S3_ENDPOINT"); v != "" {
		cfg.Storage.S3.Endpoint = v
	}
}

// EnsureDirectories creates all required directories.
func (c *Config) EnsureDirectories() error {
	dirs := []string{c.DataDir, c.Snapshot.Dir}
	if c.Storage.Type == "local" {
		dirs = append(dirs, c.Storage.Path)
	}
	for _, dir := range dirs {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	return nil
}

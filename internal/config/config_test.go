package config

import (
	"os"
	"path/filepath"
	"testing"
)

func validConfig() *Config {
	cfg := DefaultConfig()
	cfg.Input.Path = "events.csv"
	return cfg
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Input.EventCol != "event" || cfg.Input.TimestampCol != "timestamp" || cfg.Input.UserIDCol != "user_id" {
		t.Fatalf("unexpected default column mapping: %+v", cfg.Input)
	}
	if cfg.Storage.Type != "local" {
		t.Fatalf("default storage type = %s", cfg.Storage.Type)
	}
	if cfg.Input.Sample.Enabled() {
		t.Fatal("sampling enabled by default")
	}
}

func TestResolveFillsDerivedPaths(t *testing.T) {
	cfg := validConfig()
	cfg.DataDir = "/srv/pathlens"
	cfg.Resolve()

	if cfg.Snapshot.Dir != filepath.Join("/srv/pathlens", "snapshots") {
		t.Fatalf("snapshot dir = %s", cfg.Snapshot.Dir)
	}
	if cfg.Storage.Path != filepath.Join("/srv/pathlens", "archive") {
		t.Fatalf("storage path = %s", cfg.Storage.Path)
	}
	if cfg.SnapshotPath() != filepath.Join(cfg.Snapshot.Dir, "eventstream.snapshot") {
		t.Fatalf("snapshot path = %s", cfg.SnapshotPath())
	}

	// Explicit settings survive Resolve.
	cfg2 := validConfig()
	cfg2.Snapshot.Dir = "/var/snapshots"
	cfg2.Resolve()
	if cfg2.Snapshot.Dir != "/var/snapshots" {
		t.Fatalf("explicit snapshot dir overwritten: %s", cfg2.Snapshot.Dir)
	}
}

func TestValidate(t *testing.T) {
	if err := validConfig().Validate(); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}

	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing input path", func(c *Config) { c.Input.Path = "" }},
		{"missing event col", func(c *Config) { c.Input.EventCol = "" }},
		{"missing timestamp col", func(c *Config) { c.Input.TimestampCol = "" }},
		{"missing user id col", func(c *Config) { c.Input.UserIDCol = "" }},
		{"count and fraction both set", func(c *Config) {
			c.Input.Sample.Count = 10
			c.Input.Sample.Fraction = 0.5
		}},
		{"unknown storage type", func(c *Config) { c.Storage.Type = "ftp" }},
		{"s3 without bucket", func(c *Config) { c.Storage.Type = "s3" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validConfig()
			tc.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatal("expected validation to fail")
			}
		})
	}
}

func TestLoadFromFileYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
data_dir: /srv/pathlens
input:
  path: events.csv
  event_col: action
  custom_cols:
    country: country
  sample:
    fraction: 0.25
    seed: 7
graph:
  path: graph.yaml
snapshot:
  archive: true
storage:
  type: s3
  s3:
    bucket: pathlens-snapshots
    region: eu-central-1
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.DataDir != "/srv/pathlens" {
		t.Fatalf("data dir = %s", cfg.DataDir)
	}
	if cfg.Input.EventCol != "action" {
		t.Fatalf("event col = %s", cfg.Input.EventCol)
	}
	// Unset fields keep their defaults.
	if cfg.Input.TimestampCol != "timestamp" {
		t.Fatalf("timestamp col = %s", cfg.Input.TimestampCol)
	}
	if cfg.Input.CustomCols["country"] != "country" {
		t.Fatalf("custom cols = %v", cfg.Input.CustomCols)
	}
	if !cfg.Input.Sample.Enabled() || cfg.Input.Sample.Fraction != 0.25 || cfg.Input.Sample.Seed != 7 {
		t.Fatalf("sample = %+v", cfg.Input.Sample)
	}
	if !cfg.Snapshot.Archive || cfg.Storage.Type != "s3" || cfg.Storage.S3.Bucket != "pathlens-snapshots" {
		t.Fatalf("storage = %+v", cfg.Storage)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("loaded config invalid: %v", err)
	}
}

func TestLoadFromFileUnsupportedFormat(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("x = 1"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := LoadFromFile(path); err == nil {
		t.Fatal("expected unsupported format error")
	}
}

func TestLoadFromEnvOverrides(t *testing.T) {
	t.Setenv("PATHLENS_DATA_DIR", "/env/data")
	t.Setenv("PATHLENS_INPUT_PATH", "env.csv")
	t.Setenv("PATHLENS_SNAPSHOT_ARCHIVE", "1")
	t.Setenv("PATHLENS_STORAGE_TYPE", "s3")
	t.Setenv("PATHLENS_S3_BUCKET", "env-bucket")

	cfg := validConfig()
	LoadFromEnv(cfg)

	if cfg.DataDir != "/env/data" || cfg.Input.Path != "env.csv" {
		t.Fatalf("env overrides not applied: %+v", cfg)
	}
	if !cfg.Snapshot.Archive {
		t.Fatal("archive flag not applied")
	}
	if cfg.Storage.Type != "s3" || cfg.Storage.S3.Bucket != "env-bucket" {
		t.Fatalf("storage overrides not applied: %+v", cfg.Storage)
	}
}

func TestEnsureDirectories(t *testing.T) {
	base := t.TempDir()
	cfg := validConfig()
	cfg.DataDir = filepath.Join(base, "data")
	cfg.Resolve()

	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure directories: %v", err)
	}
	for _, dir := range []string{cfg.DataDir, cfg.Snapshot.Dir, cfg.Storage.Path} {
		info, err := os.Stat(dir)
		if err != nil || !info.IsDir() {
			t.Fatalf("directory %s missing: %v", dir, err)
		}
	}
}

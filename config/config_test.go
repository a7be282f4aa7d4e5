package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Input.Root != "." {
		t.Errorf("expected default input root \".\", got %s", cfg.Input.Root)
	}
	if cfg.Output.Dir != ".nova" {
		t.Errorf("expected default output dir .nova, got %s", cfg.Output.Dir)
	}
	if cfg.Pipeline.Workers != 4 {
		t.Errorf("expected default worker count 4, got %d", cfg.Pipeline.Workers)
	}
	if cfg.Watch.Debounce != 2*time.Second {
		t.Errorf("expected default debounce 2s, got %s", cfg.Watch.Debounce)
	}
	if cfg.Metrics.Enabled {
		t.Error("expected metrics disabled by default")
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr bool
	}{
		{
			name:    "valid default config",
			modify:  func(c *Config) {},
			wantErr: false,
		},
		{
			name:    "missing input root",
			modify:  func(c *Config) { c.Input.Root = "" },
			wantErr: true,
		},
		{
			name:    "missing output dir",
			modify:  func(c *Config) { c.Output.Dir = "" },
			wantErr: true,
		},
		{
			name:    "zero workers",
			modify:  func(c *Config) { c.Pipeline.Workers = 0 },
			wantErr: true,
		},
		{
			name:    "negative phase timeout",
			modify:  func(c *Config) { c.Pipeline.PhaseTimeout = -time.Second },
			wantErr: true,
		},
		{
			name:    "metrics enabled without listen address",
			modify:  func(c *Config) { c.Metrics.Enabled = true; c.Metrics.Listen = "" },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nova.yaml")
	content := `
input:
  root: /data/docs
  include:
    - "**/*.md"
pipeline:
  workers: 8
  phase_timeout: 30s
nats:
  url: nats://localhost:4222
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile() error = %v", err)
	}
	if cfg.Input.Root != "/data/docs" {
		t.Errorf("expected input root /data/docs, got %s", cfg.Input.Root)
	}
	if len(cfg.Input.Include) != 1 || cfg.Input.Include[0] != "**/*.md" {
		t.Errorf("unexpected include patterns: %v", cfg.Input.Include)
	}
	if cfg.Pipeline.Workers != 8 {
		t.Errorf("expected 8 workers, got %d", cfg.Pipeline.Workers)
	}
	if cfg.Pipeline.PhaseTimeout != 30*time.Second {
		t.Errorf("expected 30s phase timeout, got %s", cfg.Pipeline.PhaseTimeout)
	}
	if cfg.NATS.URL != "nats://localhost:4222" {
		t.Errorf("unexpected NATS URL: %s", cfg.NATS.URL)
	}
}

func TestLoadFromFileMissing(t *testing.T) {
	_, err := LoadFromFile(filepath.Join(t.TempDir(), "absent.yaml"))
	if err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestMerge(t *testing.T) {
	base := DefaultConfig()
	base.Merge(&Config{
		Input:    InputConfig{Root: "/override"},
		Pipeline: PipelineConfig{Workers: 16},
		NATS:     NATSConfig{URL: "nats://events:4222"},
	})

	if base.Input.Root != "/override" {
		t.Errorf("expected merged root /override, got %s", base.Input.Root)
	}
	if base.Pipeline.Workers != 16 {
		t.Errorf("expected merged workers 16, got %d", base.Pipeline.Workers)
	}
	if base.NATS.URL != "nats://events:4222" {
		t.Errorf("unexpected NATS URL: %s", base.NATS.URL)
	}
	// Untouched sections keep their defaults.
	if base.Output.Dir != ".nova" {
		t.Errorf("expected output dir to keep default, got %s", base.Output.Dir)
	}
	if base.Watch.Debounce != 2*time.Second {
		t.Errorf("expected debounce to keep default, got %s", base.Watch.Debounce)
	}
}

func TestMergeNil(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Merge(nil)
	if cfg.Pipeline.Workers != 4 {
		t.Error("merge with nil must not change the config")
	}
}

func TestSaveAndReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "deep", "nova.yaml")
	cfg := DefaultConfig()
	cfg.Input.Root = "/docs"

	if err := cfg.SaveToFile(path); err != nil {
		t.Fatalf("SaveToFile() error = %v", err)
	}
	reloaded, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile() error = %v", err)
	}
	if reloaded.Input.Root != "/docs" {
		t.Errorf("expected reloaded root /docs, got %s", reloaded.Input.Root)
	}
}

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestParseDefaultConfig(t *testing.T) {
	cfg, err := parse(DefaultConfigYAML)
	if err != nil {
		t.Fatalf("failed to parse default config: %v", err)
	}

	if len(cfg.Sources) == 0 {
		t.Error("expected sources to be populated")
	}
	if cfg.Ingest.Concurrency != 10 {
		t.Errorf("expected concurrency 10, got %d", cfg.Ingest.Concurrency)
	}
	if cfg.Ingest.AttemptTimeout.Std() != 5*time.Second {
		t.Errorf("expected 5s attempt timeout, got %v", cfg.Ingest.AttemptTimeout.Std())
	}
	if cfg.Recommend.ContentWeight != 0.5 || cfg.Recommend.CollaborativeWeight != 0.5 {
		t.Errorf("expected 0.5/0.5 weights, got %v/%v", cfg.Recommend.ContentWeight, cfg.Recommend.CollaborativeWeight)
	}
	if cfg.Server.Port != 8000 {
		t.Errorf("expected port 8000, got %d", cfg.Server.Port)
	}
}

func TestParseMinimalConfig(t *testing.T) {
	data := []byte(`
sources:
  - name: local
    index_url: http://localhost/index.html
ingest:
  concurrency: 4
  attempt_timeout: 2s
server:
  port: 9000
`)
	cfg, err := parse(data)
	if err != nil {
		t.Fatalf("failed to parse minimal config: %v", err)
	}

	if cfg.Ingest.Concurrency != 4 {
		t.Errorf("expected concurrency 4, got %d", cfg.Ingest.Concurrency)
	}
	if cfg.Ingest.AttemptTimeout.Std() != 2*time.Second {
		t.Errorf("expected 2s, got %v", cfg.Ingest.AttemptTimeout.Std())
	}
	if cfg.Server.Port != 9000 {
		t.Errorf("expected port 9000, got %d", cfg.Server.Port)
	}
	// Defaults should still be set for unspecified fields
	if cfg.Ingest.Attempts != 3 {
		t.Errorf("expected default attempts 3, got %d", cfg.Ingest.Attempts)
	}
	if cfg.Recommend.TopN != 5 {
		t.Errorf("expected default top_n 5, got %d", cfg.Recommend.TopN)
	}
	if cfg.Sources[0].Kind != "html" {
		t.Errorf("expected default kind html, got %q", cfg.Sources[0].Kind)
	}
}

func TestParseRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"zero concurrency", "ingest:\n  concurrency: 0\n", "concurrency"},
		{"bad duration", "ingest:\n  attempt_timeout: soon\n", "invalid duration"},
		{"negative weight", "recommend:\n  content_weight: -1\n", "weights"},
		{"unknown kind", "sources:\n  - name: x\n    index_url: http://x\n    kind: pdf\n", "unknown kind"},
		{"missing url", "sources:\n  - name: x\n", "no index_url"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parse([]byte(tt.yaml))
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}

func TestLoadConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, DefaultConfigYAML, 0o644); err != nil {
		t.Fatalf("failed to write temp config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}
	if _, ok := cfg.FindSource("aljazeera"); !ok {
		t.Error("expected aljazeera source from file")
	}
	if _, ok := cfg.FindSource("missing"); ok {
		t.Error("expected lookup of unknown source to fail")
	}
}

func TestResolveConfigPathExplicitMissing(t *testing.T) {
	if _, err := ResolveConfigPath(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected error for missing explicit path")
	}
}

func TestGetDataDir(t *testing.T) {
	cfg := &Config{}
	defaultDir := cfg.GetDataDir()
	if defaultDir == "" {
		t.Error("expected non-empty default data dir")
	}

	cfg.Output.DataDir = "/custom/path"
	if cfg.GetDataDir() != "/custom/path" {
		t.Errorf("expected '/custom/path', got %q", cfg.GetDataDir())
	}
}

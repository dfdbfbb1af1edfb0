package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Mutation.MaxFileSize != 100_000 {
		t.Errorf("Expected default max file size 100000, got %d", cfg.Mutation.MaxFileSize)
	}
	if cfg.Triage.Signature != "coverage-hash" {
		t.Errorf("Expected coverage-hash default, got %s", cfg.Triage.Signature)
	}
	if cfg.Schedule.Workers != 1 {
		t.Errorf("Expected 1 worker by default, got %d", cfg.Schedule.Workers)
	}
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.StateDir != ".lsp-fuzz" {
		t.Errorf("Expected default state dir, got %s", cfg.StateDir)
	}
}

func TestLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "fuzz.yaml")

	cfg := DefaultConfig()
	cfg.Target.Path = "/usr/bin/target-lsp"
	cfg.Target.Timeout = 2 * time.Second
	cfg.Fragments.Indexes = map[string]string{"go": "go.fragments"}
	if err := cfg.Save(path); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded.Target.Path != "/usr/bin/target-lsp" {
		t.Errorf("Target path mismatch: %s", loaded.Target.Path)
	}
	if loaded.Target.Timeout != 2*time.Second {
		t.Errorf("Timeout mismatch: %s", loaded.Target.Timeout)
	}
	if loaded.Fragments.Indexes["go"] != "go.fragments" {
		t.Errorf("Fragment index mismatch: %v", loaded.Fragments.Indexes)
	}
}

func TestEnvOverrides(t *testing.T) {
	os.Setenv("LSP_FUZZ_WORKERS", "8")
	defer os.Unsetenv("LSP_FUZZ_WORKERS")

	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Schedule.Workers != 8 {
		t.Errorf("Expected env override to 8 workers, got %d", cfg.Schedule.Workers)
	}
}

func TestValidate(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err == nil {
		t.Error("Expected validation failure without target path")
	}

	cfg.Target.Path = "/bin/true"
	if err := cfg.Validate(); err != nil {
		t.Errorf("Unexpected validation error: %v", err)
	}

	cfg.Mutation.BoundaryTestRate = 1.5
	if err := cfg.Validate(); err == nil {
		t.Error("Expected validation failure for boundary rate > 1")
	}
	cfg.Mutation.BoundaryTestRate = 0.1

	cfg.Triage.Signature = "bogus"
	if err := cfg.Validate(); err == nil {
		t.Error("Expected validation failure for unknown signature strategy")
	}
}

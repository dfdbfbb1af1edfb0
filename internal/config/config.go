// Package config holds the fuzzing run configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all lsp-fuzz configuration.
type Config struct {
	// StateDir is the resumable fuzzing state directory. It contains the
	// live corpus, the crash record store and scheduler bookkeeping.
	StateDir string `yaml:"state_dir"`

	Target    TargetConfig    `yaml:"target"`
	Fragments FragmentsConfig `yaml:"fragments"`
	Mutation  MutationConfig  `yaml:"mutation"`
	Schedule  ScheduleConfig  `yaml:"schedule"`
	Triage    TriageConfig    `yaml:"triage"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// TargetConfig describes the instrumented target binary.
type TargetConfig struct {
	Path    string   `yaml:"path"`
	Args    []string `yaml:"args"`
	MapSize int      `yaml:"map_size"` // 0 means ask the harness at startup

	// Timeout is the per-execution wall-clock limit enforced by the
	// executor, not the target.
	Timeout time.Duration `yaml:"timeout"`
}

// FragmentsConfig locates the pre-built fragment index files, one per
// language tag.
type FragmentsConfig struct {
	Indexes map[string]string `yaml:"indexes"`

	// Mining bounds (used by the `mine` command only).
	MinFragmentBytes int `yaml:"min_fragment_bytes"`
	MaxFragmentDepth int `yaml:"max_fragment_depth"`
}

// MutationConfig bounds the two-stage mutation pipeline.
type MutationConfig struct {
	MaxFileSize int `yaml:"max_file_size"`
	MaxMessages int `yaml:"max_messages"`

	// BoundaryTestRate is the per-parameter probability of deliberately
	// producing out-of-bounds coordinates.
	BoundaryTestRate float64 `yaml:"boundary_test_rate"`

	// AdversarialSessions suppresses the session-state restriction so
	// protocol-violating sequences are generated.
	AdversarialSessions bool `yaml:"adversarial_sessions"`

	// WeightWindow is how many recent operator applications feed the
	// adaptive weight recomputation.
	WeightWindow int `yaml:"weight_window"`
}

// ScheduleConfig tunes the corpus scheduler.
type ScheduleConfig struct {
	Workers    int           `yaml:"workers"`
	TimeBudget time.Duration `yaml:"time_budget"` // 0 means run until interrupted
	MaxEnergy  int           `yaml:"max_energy"`

	// PruneInterval batches corpus minimization instead of pruning eagerly.
	PruneInterval time.Duration `yaml:"prune_interval"`
}

// TriageConfig selects the crash dedup strategy.
type TriageConfig struct {
	// Signature is "coverage-hash" or "fault-site".
	Signature string `yaml:"signature"`

	// PersistRetries bounds retries before a persistence failure becomes
	// fatal. Findings are never silently dropped.
	PersistRetries int `yaml:"persist_retries"`
}

// LoggingConfig controls the category file logger.
type LoggingConfig struct {
	Debug bool `yaml:"debug"`
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() *Config {
	return &Config{
		StateDir: ".lsp-fuzz",
		Target: TargetConfig{
			Timeout: 5 * time.Second,
		},
		Fragments: FragmentsConfig{
			Indexes:          map[string]string{},
			MinFragmentBytes: 4,
			MaxFragmentDepth: 24,
		},
		Mutation: MutationConfig{
			MaxFileSize:      100_000,
			MaxMessages:      64,
			BoundaryTestRate: 0.1,
			WeightWindow:     256,
		},
		Schedule: ScheduleConfig{
			Workers:       1,
			MaxEnergy:     512,
			PruneInterval: 2 * time.Minute,
		},
		Triage: TriageConfig{
			Signature:      "coverage-hash",
			PersistRetries: 5,
		},
	}
}

// Load reads configuration from a YAML file, falling back to defaults when
// the file does not exist, then applies environment overrides.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// Save writes the configuration to a YAML file.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

func (c *Config) applyEnvOverrides() {
	if dir := os.Getenv("LSP_FUZZ_STATE_DIR"); dir != "" {
		c.StateDir = dir
	}
	if target := os.Getenv("LSP_FUZZ_TARGET"); target != "" {
		c.Target.Path = target
	}
	if workers := os.Getenv("LSP_FUZZ_WORKERS"); workers != "" {
		if n, err := strconv.Atoi(workers); err == nil && n > 0 {
			c.Schedule.Workers = n
		}
	}
	if debug := os.Getenv("LSP_FUZZ_DEBUG"); debug != "" {
		c.Logging.Debug = debug == "1" || debug == "true"
	}
}

// Validate checks the configuration for obvious mistakes.
func (c *Config) Validate() error {
	if c.StateDir == "" {
		return fmt.Errorf("state_dir is required")
	}
	if c.Target.Path == "" {
		return fmt.Errorf("target.path is required")
	}
	if c.Target.Timeout <= 0 {
		return fmt.Errorf("target.timeout must be positive, got %s", c.Target.Timeout)
	}
	if c.Mutation.MaxFileSize <= 0 {
		return fmt.Errorf("mutation.max_file_size must be positive")
	}
	if c.Mutation.BoundaryTestRate < 0 || c.Mutation.BoundaryTestRate > 1 {
		return fmt.Errorf("mutation.boundary_test_rate must be in [0, 1], got %f", c.Mutation.BoundaryTestRate)
	}
	if c.Schedule.Workers <= 0 {
		return fmt.Errorf("schedule.workers must be positive")
	}
	switch c.Triage.Signature {
	case "coverage-hash", "fault-site":
	default:
		return fmt.Errorf("triage.signature must be coverage-hash or fault-site, got %q", c.Triage.Signature)
	}
	return nil
}

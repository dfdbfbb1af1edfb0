package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/henryhchchc/lsp-fuzz/internal/config"
	"github.com/henryhchchc/lsp-fuzz/internal/logging"
)

const defaultMapSize = 1 << 16

var (
	// Global flags
	configPath string
	verbose    bool

	// Logger
	logger *zap.Logger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "lsp-fuzz",
	Short: "lsp-fuzz - coverage-guided fuzzer for language servers",
	Long: `lsp-fuzz generates syntactically plausible source files and protocol
message sequences, feeds them to an instrumented language server and keeps
whatever finds new coverage.

Typical workflow:
  lsp-fuzz mine go ./corpus/go --out go.frags     # build fragment indexes
  lsp-fuzz fuzz --seeds ./seeds                   # run a campaign
  lsp-fuzz corpus stats                           # inspect progress
  lsp-fuzz corpus export <crash-id> --out ./repro # package a finding`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		zapConfig := zap.NewProductionConfig()
		if verbose {
			zapConfig.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = zapConfig.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
		logging.Close()
	},
}

// loadConfig reads the configuration and brings up category logging under
// the state directory.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if verbose {
		cfg.Logging.Debug = true
	}
	if err := logging.Initialize(cfg.StateDir, cfg.Logging.Debug); err != nil {
		return nil, err
	}
	return cfg, nil
}

func mapSize(cfg *config.Config) int {
	if cfg.Target.MapSize > 0 {
		return cfg.Target.MapSize
	}
	return defaultMapSize
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "lsp-fuzz.yaml", "configuration file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(fuzzCmd)
	rootCmd.AddCommand(mineCmd)
	rootCmd.AddCommand(corpusCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

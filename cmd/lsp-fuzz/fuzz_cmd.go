package main

import (
	"fmt"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/henryhchchc/lsp-fuzz/internal/corpus"
	"github.com/henryhchchc/lsp-fuzz/internal/executor"
	"github.com/henryhchchc/lsp-fuzz/internal/fragment"
	"github.com/henryhchchc/lsp-fuzz/internal/fuzzer"
	"github.com/henryhchchc/lsp-fuzz/internal/triage"
)

var (
	seedsDir   string
	timeBudget time.Duration
)

var fuzzCmd = &cobra.Command{
	Use:   "fuzz",
	Short: "Run a fuzzing campaign against the configured target",
	Long: `Starts (or resumes) a campaign. The state directory carries the live
corpus, the crash record store and the global coverage map; an interrupted
campaign resumes from it. New seed workspaces are read from --seeds on top
of whatever the corpus already holds.`,
	RunE: runFuzz,
}

func init() {
	fuzzCmd.Flags().StringVar(&seedsDir, "seeds", "", "directory of seed workspaces (one subdirectory each)")
	fuzzCmd.Flags().DurationVar(&timeBudget, "budget", 0, "wall-clock budget (overrides config, 0 = until interrupted)")
}

func runFuzz(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if timeBudget > 0 {
		cfg.Schedule.TimeBudget = timeBudget
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	fragments, err := fragment.LoadSet(cfg.Fragments.Indexes)
	if err != nil {
		return err
	}
	logger.Info("fragment indexes loaded", zap.Int("languages", len(fragments)))

	store, err := corpus.NewStore(cfg.StateDir)
	if err != nil {
		return err
	}

	signature, err := triage.SignatureStrategy(cfg.Triage.Signature)
	if err != nil {
		return err
	}
	crashes, err := triage.NewStore(filepath.Join(cfg.StateDir, "crashes.db"), signature, cfg.Triage.PersistRetries)
	if err != nil {
		return err
	}
	defer crashes.Close()

	// Resume first, then stack operator seeds on top.
	seeds, err := store.LoadCorpus()
	if err != nil {
		return err
	}
	if seedsDir != "" {
		fresh, err := fuzzer.LoadSeeds(seedsDir, cfg.Mutation.MaxFileSize)
		if err != nil {
			return err
		}
		seeds = append(seeds, fresh...)
	}

	size := mapSize(cfg)
	harness := func() (executor.Harness, error) {
		return executor.NewProcessHarness(cfg.Target.Path, cfg.Target.Args, size)
	}

	campaign, err := fuzzer.NewCampaign(cfg, fragments, store, crashes, harness, size)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("campaign starting",
		zap.String("target", cfg.Target.Path),
		zap.Int("workers", cfg.Schedule.Workers),
		zap.Duration("budget", cfg.Schedule.TimeBudget),
	)
	if err := campaign.Run(ctx, seeds); err != nil {
		return err
	}

	logger.Info("campaign finished",
		zap.Int64("executions", campaign.Executions()),
		zap.Int("corpus", campaign.Scheduler().Len()),
		zap.Int("edges", campaign.Scheduler().GlobalEdges()),
	)
	return nil
}

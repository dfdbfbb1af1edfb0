// Package fuzzer runs the fuzzing campaign: a pool of workers, each with
// its own target process and mutation pipeline, feeding a shared
// coverage-guided scheduler.
package fuzzer

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/fatih/color"
	"golang.org/x/sync/errgroup"

	"github.com/henryhchchc/lsp-fuzz/internal/config"
	"github.com/henryhchchc/lsp-fuzz/internal/corpus"
	"github.com/henryhchchc/lsp-fuzz/internal/coverage"
	"github.com/henryhchchc/lsp-fuzz/internal/executor"
	"github.com/henryhchchc/lsp-fuzz/internal/fragment"
	"github.com/henryhchchc/lsp-fuzz/internal/logging"
	"github.com/henryhchchc/lsp-fuzz/internal/mutator"
	"github.com/henryhchchc/lsp-fuzz/internal/triage"
)

// HarnessFactory builds one harness per worker. Workers never share a
// target process.
type HarnessFactory func() (executor.Harness, error)

// Campaign owns one fuzzing run end to end.
type Campaign struct {
	cfg       *config.Config
	fragments fragment.Set
	store     *corpus.Store
	sched     *corpus.Scheduler
	crashes   *triage.Store
	harness   HarnessFactory

	// imports carries corpus entries dropped into the state directory by an
	// operator while the campaign runs; workers execute them like seeds.
	imports chan *corpus.TestCase

	execs   atomic.Int64
	faults  atomic.Int64
	started time.Time
}

// NewCampaign wires a campaign from loaded state. The scheduler resumes
// from the persisted global coverage map; corpus entries are re-admitted by
// Run's seed pass.
func NewCampaign(cfg *config.Config, fragments fragment.Set, store *corpus.Store, crashes *triage.Store, harness HarnessFactory, mapSize int) (*Campaign, error) {
	global, err := store.LoadCoverage(mapSize)
	if err != nil {
		return nil, err
	}
	sched := corpus.NewScheduler(global, cfg.Schedule.MaxEnergy, 64, time.Now().UnixNano())
	return &Campaign{
		cfg:       cfg,
		fragments: fragments,
		store:     store,
		sched:     sched,
		crashes:   crashes,
		harness:   harness,
		imports:   make(chan *corpus.TestCase, 64),
	}, nil
}

// Scheduler exposes the shared scheduler, mainly for stats commands.
func (c *Campaign) Scheduler() *corpus.Scheduler { return c.sched }

// Executions is the total target iterations so far.
func (c *Campaign) Executions() int64 { return c.execs.Load() }

// Run executes the campaign until the context is canceled or the configured
// time budget elapses. Seeds are executed once to establish baseline
// coverage before workers start mutating.
func (c *Campaign) Run(ctx context.Context, seeds []*corpus.TestCase) error {
	c.started = time.Now()

	if c.cfg.Schedule.TimeBudget > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.Schedule.TimeBudget)
		defer cancel()
	}

	if err := c.runSeeds(ctx, seeds); err != nil {
		return err
	}
	if c.sched.Len() == 0 {
		return fmt.Errorf("no runnable seeds; provide at least one workspace")
	}

	group, ctx := errgroup.WithContext(ctx)
	for w := 0; w < c.cfg.Schedule.Workers; w++ {
		worker := w
		group.Go(func() error {
			return c.runWorker(ctx, worker)
		})
	}
	group.Go(func() error {
		return c.houseKeeper(ctx)
	})
	group.Go(func() error {
		return c.watchImports(ctx)
	})

	err := group.Wait()
	c.persistCoverage()
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil
	}
	return err
}

// runSeeds executes every seed once and admits it with its real coverage.
func (c *Campaign) runSeeds(ctx context.Context, seeds []*corpus.TestCase) error {
	if len(seeds) == 0 {
		return nil
	}
	h, err := c.harness()
	if err != nil {
		return fmt.Errorf("seed harness: %w", err)
	}
	exec := executor.New(h, c.cfg.Target.Timeout)
	defer exec.Close()

	for _, seed := range seeds {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		cov, outcome, elapsed, err := exec.Execute(ctx, seed.Workspace, seed.Sequence)
		if err != nil {
			return fmt.Errorf("executing seed %s: %w", seed.ID, err)
		}
		c.execs.Add(1)
		seed.ExecTime = elapsed
		if outcome.IsFault() {
			logging.BootWarn("seed %s faults on its own: %s", seed.ID, outcome)
			if err := c.triageFault(seed, outcome, cov); err != nil {
				return err
			}
			continue
		}
		c.sched.AdoptSeed(seed, cov)
	}
	logging.Boot("seeded scheduler with %d entries, %d edges", c.sched.Len(), c.sched.GlobalEdges())
	return nil
}

// runWorker is one fuzzing loop: pick a seed, mutate for its energy budget,
// execute, report novelty and faults. Expensive work happens outside the
// scheduler lock.
func (c *Campaign) runWorker(ctx context.Context, id int) error {
	h, err := c.harness()
	if err != nil {
		return fmt.Errorf("worker %d harness: %w", id, err)
	}
	exec := executor.New(h, c.cfg.Target.Timeout)
	defer exec.Close()

	pipeline := mutator.NewPipeline(mutator.Options{
		Fragments:    c.fragments,
		MaxFileSize:  c.cfg.Mutation.MaxFileSize,
		MaxMessages:  c.cfg.Mutation.MaxMessages,
		BoundaryRate: c.cfg.Mutation.BoundaryTestRate,
		Adversarial:  c.cfg.Mutation.AdversarialSessions,
		WeightWindow: c.cfg.Mutation.WeightWindow,
		Seed:         time.Now().UnixNano() + int64(id),
	})

	for ctx.Err() == nil {
		// Operator-dropped entries take priority over the schedule.
		select {
		case imported := <-c.imports:
			cov, outcome, elapsed, err := exec.Execute(ctx, imported.Workspace, imported.Sequence)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				return fmt.Errorf("worker %d import: %w", id, err)
			}
			c.execs.Add(1)
			imported.ExecTime = elapsed
			if outcome.IsFault() {
				if err := c.triageFault(imported, outcome, cov); err != nil {
					return err
				}
			} else {
				c.sched.AdoptSeed(imported, cov)
			}
			continue
		default:
		}

		seed, energy := c.sched.Next()
		if seed == nil {
			return fmt.Errorf("worker %d: empty corpus", id)
		}
		for round := 0; round < energy && ctx.Err() == nil; round++ {
			ws, seq, report := pipeline.Mutate(ctx, seed.Workspace, seed.Sequence)

			cov, outcome, elapsed, err := exec.Execute(ctx, ws, seq)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				return fmt.Errorf("worker %d: %w", id, err)
			}
			c.execs.Add(1)

			if outcome.IsFault() {
				fault := seed.Derive(ws, seq)
				fault.ExecTime = elapsed
				if err := c.triageFault(fault, outcome, cov); err != nil {
					return err
				}
				pipeline.Observe(report, true)
				continue
			}

			child := seed.Derive(ws, seq)
			admitted := c.sched.Admit(child, cov, elapsed)
			pipeline.Observe(report, admitted)
			if admitted {
				name, err := c.store.SaveTestCase(child)
				if err != nil {
					logging.CorpusWarn("persisting %s: %v", child.ID, err)
					continue
				}
				c.sched.SetEntryName(child.ID, name)
			}
		}

		for _, name := range c.sched.MaybePrune() {
			if err := c.store.RetireEntry(name); err != nil {
				logging.CorpusWarn("retiring pruned entry %s: %v", name, err)
			}
		}
	}
	return ctx.Err()
}

// triageFault persists the fault-triggering test case and records it when
// its signature is new. Triage failures are fatal: findings are never
// dropped.
func (c *Campaign) triageFault(tc *corpus.TestCase, outcome executor.Outcome, cov *coverage.Map) error {
	c.faults.Add(1)
	name, err := c.store.SaveSolution(tc)
	if err != nil {
		return fmt.Errorf("persisting fault test case: %w", err)
	}
	if _, _, err := c.crashes.Report(outcome, cov, name); err != nil {
		return err
	}
	return nil
}

// houseKeeper periodically persists the global coverage map, prints the
// one-line status and forces a minimization pass.
func (c *Campaign) houseKeeper(ctx context.Context) error {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	pruneInterval := c.cfg.Schedule.PruneInterval
	if pruneInterval <= 0 {
		pruneInterval = 2 * time.Minute
	}
	pruneTicker := time.NewTicker(pruneInterval)
	defer pruneTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			c.persistCoverage()
			c.printStats()
		case <-pruneTicker.C:
			for _, name := range c.sched.Prune() {
				if err := c.store.RetireEntry(name); err != nil {
					logging.CorpusWarn("retiring pruned entry %s: %v", name, err)
				}
			}
		}
	}
}

// watchImports forwards corpus entries written by someone else (not this
// process) to the workers. Our own atomic saves show up here too; the
// scheduler id check filters them.
func (c *Campaign) watchImports(ctx context.Context) error {
	return c.store.Watch(ctx, func(tc *corpus.TestCase) {
		if c.sched.Contains(tc.ID) {
			return
		}
		select {
		case c.imports <- tc:
			logging.Corpus("imported external entry %s", tc.ID)
		default:
			logging.CorpusWarn("import queue full, dropping %s", tc.ID)
		}
	})
}

func (c *Campaign) persistCoverage() {
	if err := c.store.SaveCoverage(c.sched.GlobalSnapshot()); err != nil {
		logging.CorpusWarn("persisting coverage map: %v", err)
	}
}

func (c *Campaign) printStats() {
	elapsed := time.Since(c.started).Round(time.Second)
	execs := c.execs.Load()
	rate := float64(execs) / time.Since(c.started).Seconds()
	fmt.Printf("%s  %s edges=%d corpus=%d execs=%d (%.0f/s) faults=%s\n",
		color.CyanString("[%s]", elapsed),
		color.GreenString("cov"),
		c.sched.GlobalEdges(),
		c.sched.Len(),
		execs,
		rate,
		color.RedString("%d", c.faults.Load()),
	)
}

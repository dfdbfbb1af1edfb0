package executor

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"time"

	"github.com/henryhchchc/lsp-fuzz/internal/coverage"
	"github.com/henryhchchc/lsp-fuzz/internal/logging"
	"github.com/henryhchchc/lsp-fuzz/internal/protocol"
	"github.com/henryhchchc/lsp-fuzz/internal/textdoc"
)

// tempDirRetries bounds the attempts to acquire a scratch workspace before
// the execution surfaces a resource-exhaustion error.
const tempDirRetries = 3

// Executor turns (workspace, sequence) pairs into target executions. One
// executor per worker, wrapping that worker's harness.
type Executor struct {
	harness Harness
	timeout time.Duration
}

// New returns an executor enforcing the given per-execution timeout.
func New(harness Harness, timeout time.Duration) *Executor {
	return &Executor{harness: harness, timeout: timeout}
}

// MapSize exposes the harness bitmap capacity.
func (e *Executor) MapSize() int { return e.harness.MapSize() }

// Execute materializes the workspace in a scratch directory, frames the
// canonical sequence, runs one target iteration and returns the coverage
// snapshot. The scratch directory is removed on every path.
func (e *Executor) Execute(ctx context.Context, ws *textdoc.Workspace, seq *protocol.Sequence) (*coverage.Map, Outcome, time.Duration, error) {
	dir, err := scratchDir()
	if err != nil {
		return nil, Outcome{}, 0, err
	}
	defer func() {
		if rmErr := os.RemoveAll(dir); rmErr != nil {
			logging.ExecWarn("leaking scratch dir %s: %v", dir, rmErr)
		}
	}()

	if err := ws.WriteTo(dir); err != nil {
		return nil, Outcome{}, 0, fmt.Errorf("materializing workspace: %w", err)
	}

	frames, err := protocol.FrameSequence(seq, ws, dir)
	if err != nil {
		return nil, Outcome{}, 0, err
	}
	var input bytes.Buffer
	for _, frame := range frames {
		input.Write(frame)
	}

	cov := coverage.New(e.harness.MapSize())
	start := time.Now()
	outcome, err := e.harness.Run(ctx, input.Bytes(), cov, e.timeout)
	elapsed := time.Since(start)
	if err != nil {
		return nil, Outcome{}, elapsed, err
	}
	return cov, outcome, elapsed, nil
}

// Close shuts down the underlying harness.
func (e *Executor) Close() error { return e.harness.Close() }

// scratchDir acquires a temporary workspace directory with bounded retries.
func scratchDir() (string, error) {
	var lastErr error
	for attempt := 0; attempt < tempDirRetries; attempt++ {
		dir, err := os.MkdirTemp("", "lsp-fuzz-ws-")
		if err == nil {
			return dir, nil
		}
		lastErr = err
		logging.ExecWarn("scratch dir attempt %d failed: %v", attempt+1, err)
		time.Sleep(time.Duration(attempt+1) * 50 * time.Millisecond)
	}
	return "", fmt.Errorf("acquiring scratch directory: %w", lastErr)
}

package executor

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/henryhchchc/lsp-fuzz/internal/coverage"
	"github.com/henryhchchc/lsp-fuzz/internal/logging"
)

// Harness abstracts the persistent-mode target ABI: write one input, run one
// iteration, read back the coverage bitmap.
type Harness interface {
	// MapSize is the edge capacity of the target's coverage bitmap.
	MapSize() int
	// Run feeds one serialized input through the target and fills cov with
	// the iteration's bitmap. The timeout is enforced here; on expiry the
	// target is killed and the run reports TimedOut.
	Run(ctx context.Context, input []byte, cov *coverage.Map, timeout time.Duration) (Outcome, error)
	// Close terminates the target and releases harness resources.
	Close() error
}

// Environment variables of the persistent-mode contract. The target reads
// length-prefixed inputs from stdin, writes one acknowledgment byte to
// stdout per iteration, and dumps its bitmap to the bitmap file before
// acknowledging.
const (
	envBitmapPath = "LSP_FUZZ_BITMAP"
	envMapSize    = "LSP_FUZZ_MAP_SIZE"
)

// ProcessHarness runs the instrumented target as a child process in
// persistent mode. One harness per worker; never shared.
type ProcessHarness struct {
	binary  string
	args    []string
	mapSize int

	bitmapPath string
	cmd        *exec.Cmd
	stdin      io.WriteCloser
	stdout     io.ReadCloser
}

// NewProcessHarness prepares a harness for the given target binary. The
// target is started lazily on the first Run and restarted after a crash.
func NewProcessHarness(binary string, args []string, mapSize int) (*ProcessHarness, error) {
	if mapSize <= 0 {
		return nil, fmt.Errorf("coverage map size must be positive, got %d", mapSize)
	}
	if _, err := os.Stat(binary); err != nil {
		return nil, fmt.Errorf("target binary: %w", err)
	}
	bitmapPath := filepath.Join(os.TempDir(), "lsp-fuzz-bitmap-"+uuid.NewString())
	return &ProcessHarness{
		binary:     binary,
		args:       args,
		mapSize:    mapSize,
		bitmapPath: bitmapPath,
	}, nil
}

// MapSize returns the configured bitmap capacity.
func (h *ProcessHarness) MapSize() int { return h.mapSize }

func (h *ProcessHarness) start(ctx context.Context) error {
	if err := os.WriteFile(h.bitmapPath, make([]byte, h.mapSize), 0o644); err != nil {
		return fmt.Errorf("creating bitmap file: %w", err)
	}

	cmd := exec.CommandContext(ctx, h.binary, h.args...)
	cmd.Env = append(os.Environ(),
		envBitmapPath+"="+h.bitmapPath,
		fmt.Sprintf("%s=%d", envMapSize, h.mapSize),
	)
	cmd.Stderr = io.Discard
	// Own process group so a kill reaps any children the server spawned.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("target stdin: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("target stdout: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("starting target: %w", err)
	}

	h.cmd = cmd
	h.stdin = stdin
	h.stdout = stdout
	logging.ExecDebug("target started, pid %d", cmd.Process.Pid)
	return nil
}

// Run performs one persistent-mode iteration.
func (h *ProcessHarness) Run(ctx context.Context, input []byte, cov *coverage.Map, timeout time.Duration) (Outcome, error) {
	if h.cmd == nil {
		if err := h.start(ctx); err != nil {
			return Outcome{}, err
		}
	}

	var lenPrefix [4]byte
	binary.LittleEndian.PutUint32(lenPrefix[:], uint32(len(input)))
	if _, err := h.stdin.Write(lenPrefix[:]); err != nil {
		return h.reapCrash(cov, err)
	}
	if _, err := h.stdin.Write(input); err != nil {
		return h.reapCrash(cov, err)
	}

	// One acknowledgment byte per iteration. A read error means the target
	// died mid-iteration; a missed deadline means it hung.
	ackCh := make(chan error, 1)
	go func() {
		var ack [1]byte
		_, err := io.ReadFull(h.stdout, ack[:])
		ackCh <- err
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case err := <-ackCh:
		if err != nil {
			return h.reapCrash(cov, err)
		}
	case <-timer.C:
		h.kill()
		<-ackCh // reader exits once the pipe closes
		// The target updated its bitmap up to the point it hung; that
		// coverage identifies the hang, so surface it.
		if err := h.readBitmap(cov); err != nil {
			logging.ExecWarn("bitmap after timeout: %v", err)
		}
		h.reset()
		return Outcome{Kind: TimedOut}, nil
	case <-ctx.Done():
		h.kill()
		<-ackCh
		h.reset()
		return Outcome{}, ctx.Err()
	}

	if err := h.readBitmap(cov); err != nil {
		return Outcome{}, err
	}
	return Outcome{Kind: Normal}, nil
}

// readBitmap copies the target's dumped bitmap into cov.
func (h *ProcessHarness) readBitmap(cov *coverage.Map) error {
	bits, err := os.ReadFile(h.bitmapPath)
	if err != nil {
		return fmt.Errorf("reading bitmap: %w", err)
	}
	if len(bits) != h.mapSize {
		return fmt.Errorf("bitmap is %d bytes, expected %d", len(bits), h.mapSize)
	}
	copy(cov.Bytes(), bits)
	return nil
}

// reapCrash waits for the dead target, extracts the fatal signal and leaves
// the harness ready to restart on the next Run. The bitmap still holds
// everything the instrumentation flushed before the fault; without it every
// crash would dedup to one signature.
func (h *ProcessHarness) reapCrash(cov *coverage.Map, cause error) (Outcome, error) {
	waitErr := h.cmd.Wait()
	sig := 0
	var exitErr *exec.ExitError
	if errors.As(waitErr, &exitErr) {
		if status, ok := exitErr.Sys().(syscall.WaitStatus); ok && status.Signaled() {
			sig = int(status.Signal())
		}
	}
	if err := h.readBitmap(cov); err != nil {
		logging.ExecWarn("bitmap after crash: %v", err)
	}
	logging.Exec("target crashed (signal %d): %v", sig, cause)
	h.reset()
	return Outcome{Kind: Crashed, Signal: sig}, nil
}

// kill terminates the target's whole process group and reaps it.
func (h *ProcessHarness) kill() {
	if h.cmd == nil || h.cmd.Process == nil {
		return
	}
	pid := h.cmd.Process.Pid
	if err := syscall.Kill(-pid, syscall.SIGKILL); err != nil {
		_ = h.cmd.Process.Kill()
	}
	_ = h.cmd.Wait()
}

func (h *ProcessHarness) reset() {
	if h.stdin != nil {
		_ = h.stdin.Close()
	}
	if h.stdout != nil {
		_ = h.stdout.Close()
	}
	h.cmd = nil
	h.stdin = nil
	h.stdout = nil
}

// Close kills the target and removes the bitmap file.
func (h *ProcessHarness) Close() error {
	h.kill()
	h.reset()
	if err := os.Remove(h.bitmapPath); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

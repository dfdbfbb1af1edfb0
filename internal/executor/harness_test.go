package executor

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/henryhchchc/lsp-fuzz/internal/coverage"
)

const mapSizeForScripts = 64

// writeTarget materializes a shell script speaking the persistent-mode ABI.
func writeTarget(t *testing.T, script string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "target.sh")
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatal(err)
	}
	return path
}

func runScript(t *testing.T, script string, timeout time.Duration) (Outcome, *coverage.Map) {
	t.Helper()
	h, err := NewProcessHarness(writeTarget(t, script), nil, mapSizeForScripts)
	if err != nil {
		t.Fatal(err)
	}
	defer h.Close()

	cov := coverage.New(mapSizeForScripts)
	outcome, err := h.Run(context.Background(), []byte("input"), cov, timeout)
	if err != nil {
		t.Fatal(err)
	}
	return outcome, cov
}

func TestProcessHarnessNormalIteration(t *testing.T) {
	outcome, cov := runScript(t, `#!/bin/sh
tr '\0' '\1' < /dev/zero | head -c "$LSP_FUZZ_MAP_SIZE" > "$LSP_FUZZ_BITMAP"
printf 'A'
exec sleep 30
`, 5*time.Second)

	if outcome.Kind != Normal {
		t.Fatalf("Expected normal outcome, got %v", outcome)
	}
	if cov.EdgeCount() != mapSizeForScripts {
		t.Errorf("Expected %d edges, got %d", mapSizeForScripts, cov.EdgeCount())
	}
}

func TestProcessHarnessCrashKeepsCoverage(t *testing.T) {
	// The target records coverage, then dies of SIGSEGV without acking. The
	// run must report the signal AND the bitmap written before the fault,
	// otherwise every crash hashes to the same signature.
	outcome, cov := runScript(t, `#!/bin/sh
tr '\0' '\1' < /dev/zero | head -c "$LSP_FUZZ_MAP_SIZE" > "$LSP_FUZZ_BITMAP"
kill -SEGV $$
`, 5*time.Second)

	if outcome.Kind != Crashed || outcome.Signal != 11 {
		t.Fatalf("Expected crashed(signal 11), got %v", outcome)
	}
	if cov.EdgeCount() != mapSizeForScripts {
		t.Errorf("Crash must surface the %d edges recorded before the fault, got %d", mapSizeForScripts, cov.EdgeCount())
	}
}

func TestProcessHarnessTimeoutKeepsCoverage(t *testing.T) {
	outcome, cov := runScript(t, `#!/bin/sh
tr '\0' '\1' < /dev/zero | head -c "$LSP_FUZZ_MAP_SIZE" > "$LSP_FUZZ_BITMAP"
exec sleep 30
`, 300*time.Millisecond)

	if outcome.Kind != TimedOut {
		t.Fatalf("Expected timeout outcome, got %v", outcome)
	}
	if cov.EdgeCount() != mapSizeForScripts {
		t.Errorf("Hang must surface the %d edges recorded before it, got %d", mapSizeForScripts, cov.EdgeCount())
	}
}

func TestProcessHarnessRestartsAfterCrash(t *testing.T) {
	h, err := NewProcessHarness(writeTarget(t, `#!/bin/sh
tr '\0' '\1' < /dev/zero | head -c "$LSP_FUZZ_MAP_SIZE" > "$LSP_FUZZ_BITMAP"
kill -SEGV $$
`), nil, mapSizeForScripts)
	if err != nil {
		t.Fatal(err)
	}
	defer h.Close()

	for i := 0; i < 2; i++ {
		cov := coverage.New(mapSizeForScripts)
		outcome, err := h.Run(context.Background(), []byte("input"), cov, 5*time.Second)
		if err != nil {
			t.Fatalf("Run %d: %v", i, err)
		}
		if outcome.Kind != Crashed {
			t.Fatalf("Run %d: expected crash, got %v", i, outcome)
		}
	}
}

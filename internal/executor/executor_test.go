package executor

import (
	"bufio"
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/henryhchchc/lsp-fuzz/internal/coverage"
	"github.com/henryhchchc/lsp-fuzz/internal/protocol"
	"github.com/henryhchchc/lsp-fuzz/internal/textdoc"
)

// fakeHarness scripts outcomes and records the inputs it receives. Like the
// real harness it fills the bitmap on every outcome, faults included.
type fakeHarness struct {
	mapSize  int
	outcomes []Outcome
	edges    []int // edges to set in the bitmap
	inputs   [][]byte
	closed   bool
}

func (f *fakeHarness) MapSize() int { return f.mapSize }

func (f *fakeHarness) Run(_ context.Context, input []byte, cov *coverage.Map, _ time.Duration) (Outcome, error) {
	stored := make([]byte, len(input))
	copy(stored, input)
	f.inputs = append(f.inputs, stored)

	outcome := Outcome{Kind: Normal}
	if len(f.outcomes) > 0 {
		outcome = f.outcomes[0]
		f.outcomes = f.outcomes[1:]
	}
	for _, e := range f.edges {
		cov.Bytes()[e] = 1
	}
	return outcome, nil
}

func (f *fakeHarness) Close() error {
	f.closed = true
	return nil
}

func testCase(t *testing.T) (*textdoc.Workspace, *protocol.Sequence) {
	t.Helper()
	ws := textdoc.NewWorkspace()
	if err := ws.Add(&textdoc.File{Name: "main.go", Language: "go", Content: []byte("package main\n")}); err != nil {
		t.Fatal(err)
	}
	seq := &protocol.Sequence{Body: []protocol.Message{
		{Method: protocol.MethodCompletion, Document: "main.go", Position: &textdoc.Position{Line: 0, Character: 3}},
	}}
	return ws, seq
}

func TestExecuteReturnsCoverage(t *testing.T) {
	h := &fakeHarness{mapSize: 64, edges: []int{3, 17}}
	e := New(h, time.Second)
	ws, seq := testCase(t)

	cov, outcome, elapsed, err := e.Execute(context.Background(), ws, seq)
	if err != nil {
		t.Fatal(err)
	}
	if outcome.Kind != Normal {
		t.Fatalf("Expected normal outcome, got %v", outcome)
	}
	if cov.EdgeCount() != 2 {
		t.Errorf("Expected 2 edges, got %d", cov.EdgeCount())
	}
	if elapsed < 0 {
		t.Error("Elapsed time must be non-negative")
	}
}

func TestExecuteFeedsFramedSequence(t *testing.T) {
	h := &fakeHarness{mapSize: 16}
	e := New(h, time.Second)
	ws, seq := testCase(t)

	if _, _, _, err := e.Execute(context.Background(), ws, seq); err != nil {
		t.Fatal(err)
	}
	if len(h.inputs) != 1 {
		t.Fatalf("Expected 1 input, got %d", len(h.inputs))
	}

	// The input must decode into the canonical expansion, frame by frame.
	r := bufio.NewReader(bytes.NewReader(h.inputs[0]))
	want := len(seq.Canonical(ws))
	for i := 0; i < want; i++ {
		if _, err := protocol.ReadFrame(r); err != nil {
			t.Fatalf("Frame %d unreadable: %v", i, err)
		}
	}
	if _, err := r.ReadByte(); err == nil {
		t.Error("Trailing bytes after the last frame")
	}
}

func TestExecuteReportsCrashSignal(t *testing.T) {
	h := &fakeHarness{mapSize: 16, edges: []int{5}, outcomes: []Outcome{{Kind: Crashed, Signal: 11}}}
	e := New(h, time.Second)
	ws, seq := testCase(t)

	cov, outcome, _, err := e.Execute(context.Background(), ws, seq)
	if err != nil {
		t.Fatal(err)
	}
	if outcome.Kind != Crashed || outcome.Signal != 11 {
		t.Fatalf("Expected crashed(signal 11), got %v", outcome)
	}
	if !outcome.IsFault() {
		t.Error("Crash must be a fault outcome")
	}
	if cov.EdgeCount() != 1 {
		t.Errorf("Crash coverage must reach the caller, got %d edges", cov.EdgeCount())
	}
}

func TestTimeoutIsAFault(t *testing.T) {
	o := Outcome{Kind: TimedOut}
	if !o.IsFault() {
		t.Error("Timeout must be a fault outcome")
	}
	if (Outcome{Kind: Normal}).IsFault() {
		t.Error("Normal must not be a fault outcome")
	}
}

func TestCloseShutsDownHarness(t *testing.T) {
	h := &fakeHarness{mapSize: 16}
	e := New(h, time.Second)
	if err := e.Close(); err != nil {
		t.Fatal(err)
	}
	if !h.closed {
		t.Error("Close must propagate to the harness")
	}
}

package mutator

import (
	"context"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/henryhchchc/lsp-fuzz/internal/fragment"
	"github.com/henryhchchc/lsp-fuzz/internal/protocol"
	"github.com/henryhchchc/lsp-fuzz/internal/textdoc"
)

const seedProgram = `package main

import "fmt"

func greet(name string) string {
	return "hello " + name
}

func main() {
	fmt.Println(greet("world"))
}
`

func seedWorkspace(t *testing.T) *textdoc.Workspace {
	t.Helper()
	ws := textdoc.NewWorkspace()
	if err := ws.Add(&textdoc.File{Name: "main.go", Language: "go", Content: []byte(seedProgram)}); err != nil {
		t.Fatal(err)
	}
	if err := ws.Add(&textdoc.File{Name: "project.json", Content: []byte(`{"roots": ["."]}`)}); err != nil {
		t.Fatal(err)
	}
	return ws
}

func goFragments(t *testing.T) fragment.Set {
	t.Helper()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "corpus.go"), []byte(seedProgram), 0o644); err != nil {
		t.Fatal(err)
	}
	lang, ok := textdoc.ByName("go")
	if !ok {
		t.Fatal("go language not registered")
	}
	ix, _, err := fragment.NewMiner(lang, 4, 32).MineDir(context.Background(), dir)
	if err != nil {
		t.Fatal(err)
	}
	return fragment.Set{"go": ix}
}

func testPipeline(t *testing.T, adversarial bool, boundaryRate float64) *Pipeline {
	t.Helper()
	return NewPipeline(Options{
		Fragments:    goFragments(t),
		MaxFileSize:  100_000,
		MaxMessages:  64,
		BoundaryRate: boundaryRate,
		Adversarial:  adversarial,
		WeightWindow: 256,
		Seed:         1,
	})
}

func TestMutateLeavesInputUntouched(t *testing.T) {
	ws := seedWorkspace(t)
	seq := &protocol.Sequence{Body: []protocol.Message{
		{Method: protocol.MethodCompletion, Document: "main.go", Position: &textdoc.Position{Line: 1, Character: 0}},
	}}
	beforeHash := ws.Hash()
	beforeBody := len(seq.Body)

	p := testPipeline(t, false, 0)
	for i := 0; i < 50; i++ {
		p.Mutate(context.Background(), ws, seq)
	}
	if ws.Hash() != beforeHash {
		t.Error("Mutate must not modify the input workspace")
	}
	if len(seq.Body) != beforeBody {
		t.Error("Mutate must not modify the input sequence")
	}
}

// Non-boundary positional parameters must be in bounds of the mutated
// document after every pipeline run, regardless of what stage A did to it.
func TestBoundsCoupling(t *testing.T) {
	ws := seedWorkspace(t)
	seq := &protocol.Sequence{Body: []protocol.Message{
		{Method: "textDocument/hover", Document: "main.go", Position: &textdoc.Position{Line: 9, Character: 4}},
		{Method: "textDocument/codeAction", Document: "main.go", Range: &textdoc.Range{
			Start: textdoc.Position{Line: 0, Character: 0},
			End:   textdoc.Position{Line: 10, Character: 0},
		}},
	}}

	p := testPipeline(t, false, 0)
	for i := 0; i < 200; i++ {
		outWS, outSeq, _ := p.Mutate(context.Background(), ws, seq)
		for _, msg := range outSeq.Body {
			if msg.Boundary {
				continue
			}
			f := outWS.File(msg.Document)
			if f == nil {
				continue
			}
			if msg.Position != nil && !textdoc.InBounds(f.Content, *msg.Position) {
				t.Fatalf("Run %d: position %+v out of bounds for %s (%d bytes)",
					i, *msg.Position, msg.Document, len(f.Content))
			}
			if msg.Range != nil {
				if !textdoc.InBounds(f.Content, msg.Range.Start) || !textdoc.InBounds(f.Content, msg.Range.End) {
					t.Fatalf("Run %d: range %+v out of bounds for %s", i, *msg.Range, msg.Document)
				}
			}
		}
		ws, seq = outWS, outSeq
	}
}

// Every message in a non-adversarial canonical expansion must be legal when
// replayed against a strict session machine.
func TestSessionValidity(t *testing.T) {
	ws := seedWorkspace(t)
	seq := &protocol.Sequence{}

	p := testPipeline(t, false, 0)
	for i := 0; i < 200; i++ {
		outWS, outSeq, _ := p.Mutate(context.Background(), ws, seq)
		session := protocol.NewSession()
		for _, msg := range outSeq.Canonical(outWS) {
			if !session.IsLegal(&msg) {
				t.Fatalf("Run %d: illegal message %s on %q in state %d",
					i, msg.Method, msg.Document, session.State)
			}
			session.Apply(&msg)
		}
		ws, seq = outWS, outSeq
	}
}

func TestAdversarialModeCanBreakOrdering(t *testing.T) {
	ws := seedWorkspace(t)
	seq := &protocol.Sequence{}

	p := testPipeline(t, true, 0)
	sawIllegal := false
	for i := 0; i < 500 && !sawIllegal; i++ {
		outWS, outSeq, _ := p.Mutate(context.Background(), ws, seq)
		session := protocol.NewSession()
		for _, msg := range outSeq.Canonical(outWS) {
			if !session.IsLegal(&msg) {
				sawIllegal = true
				break
			}
			session.Apply(&msg)
		}
		ws, seq = outWS, outSeq
	}
	if !sawIllegal {
		t.Error("Adversarial mode never produced a lifecycle violation in 500 runs")
	}
}

func TestBoundaryMessagesSurviveReclamp(t *testing.T) {
	ws := seedWorkspace(t)
	far := textdoc.Position{Line: 99_999, Character: 99_999}
	seq := &protocol.Sequence{Body: []protocol.Message{
		{Method: "textDocument/hover", Document: "main.go", Position: &far, Boundary: true},
	}}

	Reclamp(ws, seq)
	if *seq.Body[0].Position != far {
		t.Error("Reclamp must not touch boundary-flagged positions")
	}

	seq.Body[0].Boundary = false
	Reclamp(ws, seq)
	f := ws.File("main.go")
	if !textdoc.InBounds(f.Content, *seq.Body[0].Position) {
		t.Error("Reclamp must clamp non-boundary positions into bounds")
	}
}

func TestSequenceInsertRespectsMessageCap(t *testing.T) {
	ws := seedWorkspace(t)
	sm := NewSequenceMutator(rand.New(rand.NewSource(1)), 2, 0, false)
	seq := &protocol.Sequence{}

	for i := 0; i < 100; i++ {
		sm.insert(ws, seq)
	}
	if len(seq.Body) > 2 {
		t.Errorf("Body grew to %d messages past the cap of 2", len(seq.Body))
	}
}

func TestByteMutateNeverStalls(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	content := []byte{}
	for i := 0; i < 1000; i++ {
		out, result := byteMutate(rng, content, 4096)
		if !result.Applied {
			t.Fatalf("Iteration %d: byte mutation skipped (%s)", i, result.Reason)
		}
		if len(out) > 4096 {
			t.Fatalf("Iteration %d: output %d bytes exceeds cap", i, len(out))
		}
		content = out
	}
}

func TestDocumentMutatorFallsBackWithoutIndex(t *testing.T) {
	ws := textdoc.NewWorkspace()
	if err := ws.Add(&textdoc.File{Name: "a.py", Language: "python", Content: []byte("print(1)\n")}); err != nil {
		t.Fatal(err)
	}
	// No python index: every round must still apply via the byte fallback.
	dm := NewDocumentMutator(fragment.Set{}, rand.New(rand.NewSource(3)), 4096)
	for i := 0; i < 20; i++ {
		report := dm.Mutate(context.Background(), ws)
		if !report.Result.Applied {
			t.Fatalf("Round %d skipped: %s", i, report.Result.Reason)
		}
		if report.Structural {
			t.Fatal("Structural mutation impossible without an index")
		}
	}
}

func TestWeightsDriftTowardBytesOnFailure(t *testing.T) {
	w := NewWeights(64)
	initial := w.StructuralBias()

	// Structural tries that never improve coverage.
	for i := 0; i < 64; i++ {
		w.Observe(true, false)
	}
	if w.StructuralBias() >= initial {
		t.Errorf("Bias should drop after sustained structural failure: %.2f -> %.2f",
			initial, w.StructuralBias())
	}

	// Structural wins pull it back up.
	for i := 0; i < 64; i++ {
		w.Observe(true, true)
	}
	if w.StructuralBias() <= minStructuralBias {
		t.Errorf("Bias should recover after structural wins, got %.2f", w.StructuralBias())
	}
}

func TestStructuralMutationUsesFragments(t *testing.T) {
	ws := seedWorkspace(t)
	dm := NewDocumentMutator(goFragments(t), rand.New(rand.NewSource(9)), 100_000)

	sawStructural := false
	for i := 0; i < 200 && !sawStructural; i++ {
		clone := ws.Clone()
		report := dm.Mutate(context.Background(), clone)
		if report.Structural && report.Result.Applied {
			sawStructural = true
			if clone.File(report.File).Language == "" {
				t.Error("Structural mutation touched a skeleton file")
			}
		}
	}
	if !sawStructural {
		t.Error("No structural mutation applied in 200 rounds despite a populated index")
	}
}

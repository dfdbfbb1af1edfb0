package mutator

import (
	"context"
	"math/rand"

	"github.com/henryhchchc/lsp-fuzz/internal/fragment"
	"github.com/henryhchchc/lsp-fuzz/internal/protocol"
	"github.com/henryhchchc/lsp-fuzz/internal/textdoc"
)

// Pipeline runs the two mutation stages over a (workspace, sequence) pair
// and keeps positional parameters coupled to the mutated documents.
type Pipeline struct {
	docs    *DocumentMutator
	seqs    *SequenceMutator
	weights *Weights
	rng     *rand.Rand
}

// Options configures a mutation pipeline.
type Options struct {
	Fragments    fragment.Set
	MaxFileSize  int
	MaxMessages  int
	BoundaryRate float64
	Adversarial  bool
	WeightWindow int
	Seed         int64
}

// Report summarizes one pipeline run for operator-weight bookkeeping.
type Report struct {
	Doc DocReport
	Seq SeqReport
}

// Structural reports whether the run used a fragment-based document operator.
func (r Report) Structural() bool { return r.Doc.Structural && r.Doc.Result.Applied }

// NewPipeline builds a pipeline. Each pipeline owns its RNG; one pipeline
// per worker, never shared.
func NewPipeline(opts Options) *Pipeline {
	rng := rand.New(rand.NewSource(opts.Seed))
	return &Pipeline{
		docs:    NewDocumentMutator(opts.Fragments, rng, opts.MaxFileSize),
		seqs:    NewSequenceMutator(rng, opts.MaxMessages, opts.BoundaryRate, opts.Adversarial),
		weights: NewWeights(opts.WeightWindow),
		rng:     rng,
	}
}

// Mutate clones the input pair and applies one round of each stage. The
// input is never modified. Stage A runs at the current structural bias;
// after both stages every non-boundary positional parameter is re-clamped
// against the mutated document contents.
func (p *Pipeline) Mutate(ctx context.Context, ws *textdoc.Workspace, seq *protocol.Sequence) (*textdoc.Workspace, *protocol.Sequence, Report) {
	outWS := ws.Clone()
	outSeq := seq.Clone()

	var report Report
	if p.rng.Float64() < p.weights.StructuralBias() {
		report.Doc = p.docs.Mutate(ctx, outWS)
	} else {
		// Byte-only round: temporarily treat every file as a skeleton by
		// going through the fallback path directly.
		report.Doc = p.byteRound(outWS)
	}
	report.Seq = p.seqs.Mutate(outWS, outSeq)

	Reclamp(outWS, outSeq)
	return outWS, outSeq, report
}

// byteRound byte-mutates a random file without attempting structure.
func (p *Pipeline) byteRound(ws *textdoc.Workspace) DocReport {
	names := ws.Names()
	if len(names) == 0 {
		return DocReport{Operator: "none", Result: Skipped("empty workspace")}
	}
	name := names[p.rng.Intn(len(names))]
	file := ws.File(name)
	content, result := byteMutate(p.rng, file.Content, p.docs.maxFileSize)
	file.Content = content
	return DocReport{File: name, Operator: "byte", Result: result}
}

// Observe feeds the coverage outcome of a run back into the operator
// weights.
func (p *Pipeline) Observe(report Report, improvedCoverage bool) {
	p.weights.Observe(report.Structural(), improvedCoverage)
}

// StructuralBias exposes the current stage-A operator split, for stats.
func (p *Pipeline) StructuralBias() float64 { return p.weights.StructuralBias() }

// Reclamp moves every non-boundary positional parameter in the sequence
// back inside the referenced document's current bounds. Messages flagged
// Boundary keep their coordinates: those probe server bounds checking on
// purpose.
func Reclamp(ws *textdoc.Workspace, seq *protocol.Sequence) {
	for i := range seq.Body {
		msg := &seq.Body[i]
		if msg.Boundary {
			continue
		}
		f := ws.File(msg.Document)
		if f == nil {
			continue
		}
		if msg.Position != nil {
			clamped := textdoc.ClampPosition(f.Content, *msg.Position)
			msg.Position = &clamped
		}
		if msg.Range != nil {
			start := textdoc.ClampPosition(f.Content, msg.Range.Start)
			end := textdoc.ClampPosition(f.Content, msg.Range.End)
			msg.Range = &textdoc.Range{Start: start, End: end}
		}
	}
}

package mutator

import (
	"math/rand"

	"github.com/henryhchchc/lsp-fuzz/internal/protocol"
	"github.com/henryhchchc/lsp-fuzz/internal/textdoc"
)

// SequenceMutator is stage B: it rewrites the protocol-message body of a
// test case. Insertions are state-legal by construction (the session machine
// is replayed over the canonical prefix) unless the mutator runs in
// adversarial mode, which deliberately violates lifecycle ordering.
type SequenceMutator struct {
	rng          *rand.Rand
	maxMessages  int
	boundaryRate float64
	adversarial  bool
}

// SeqReport describes what stage B did to the sequence.
type SeqReport struct {
	Operator string
	Result   Result
}

// NewSequenceMutator returns a stage-B mutator. boundaryRate is the fraction
// of generated positions that deliberately land out of bounds.
func NewSequenceMutator(rng *rand.Rand, maxMessages int, boundaryRate float64, adversarial bool) *SequenceMutator {
	return &SequenceMutator{
		rng:          rng,
		maxMessages:  maxMessages,
		boundaryRate: boundaryRate,
		adversarial:  adversarial,
	}
}

// Mutate applies one sequence operator in place.
func (sm *SequenceMutator) Mutate(ws *textdoc.Workspace, seq *protocol.Sequence) SeqReport {
	ops := []struct {
		name   string
		weight int
		fn     func(ws *textdoc.Workspace, seq *protocol.Sequence) Result
	}{
		{"insert", 4, sm.insert},
		{"mutate-position", 3, sm.mutatePosition},
		{"duplicate", 1, sm.duplicate},
		{"swap", 1, sm.swap},
		{"delete", 1, sm.delete},
	}

	total := 0
	for _, op := range ops {
		total += op.weight
	}
	pick := sm.rng.Intn(total)
	for _, op := range ops {
		if pick < op.weight {
			backup := seq.Clone()
			result := op.fn(ws, seq)
			// In default mode the whole sequence must stay replayable: an
			// operator that is locally fine can still invalidate a later
			// message (deleting a didClose ahead of a didOpen, say).
			if result.Applied && !sm.adversarial && !sequenceIsLegal(ws, seq) {
				seq.Body = backup.Body
				result = Skipped("would break session order")
			}
			return SeqReport{Operator: op.name, Result: result}
		}
		pick -= op.weight
	}
	return SeqReport{Operator: "none", Result: Skipped("no operator")} // unreachable
}

// sequenceIsLegal replays the canonical expansion through a strict session.
func sequenceIsLegal(ws *textdoc.Workspace, seq *protocol.Sequence) bool {
	session := protocol.NewSession()
	for _, msg := range seq.Canonical(ws) {
		if !session.IsLegal(&msg) {
			return false
		}
		session.Apply(&msg)
	}
	return true
}

// insert generates a new message and places it at a random body index. The
// message is legal for the session state at that index; in adversarial mode
// legality is ignored and lifecycle messages may be injected mid-session.
func (sm *SequenceMutator) insert(ws *textdoc.Workspace, seq *protocol.Sequence) Result {
	if len(seq.Body) >= sm.maxMessages {
		return Skipped("message cap")
	}

	at := sm.rng.Intn(len(seq.Body) + 1)
	msg, ok := sm.generate(ws, seq, at)
	if !ok {
		return Skipped("no legal message")
	}

	body := make([]protocol.Message, 0, len(seq.Body)+1)
	body = append(body, seq.Body[:at]...)
	body = append(body, msg)
	body = append(body, seq.Body[at:]...)
	seq.Body = body
	return Applied()
}

// generate builds a message for insertion at body index at.
func (sm *SequenceMutator) generate(ws *textdoc.Workspace, seq *protocol.Sequence, at int) (protocol.Message, bool) {
	// Session state at the insertion point: canonical preamble plus the body
	// prefix. Replayed fresh every time; state is never cached.
	preamble := (&protocol.Sequence{}).Canonical(ws)[:protocol.PreambleLen(ws)]
	session := protocol.Replay(preamble)
	for i := 0; i < at; i++ {
		session.Apply(&seq.Body[i])
	}

	docs := ws.Names()
	var doc string
	if len(docs) > 0 {
		doc = docs[sm.rng.Intn(len(docs))]
	}

	var candidates []string
	if sm.adversarial {
		// Any catalog method, legality be damned.
		candidates = append(candidates, protocol.AllMethods()...)
	} else {
		candidates = session.LegalMethods(doc)
	}
	if len(candidates) == 0 {
		return protocol.Message{}, false
	}

	name := candidates[sm.rng.Intn(len(candidates))]
	info, _ := protocol.MethodByName(name)
	msg := protocol.Message{Method: name}
	if classNeedsDocument(info.Class) {
		msg.Document = doc
	}
	sm.fillParams(ws, &msg, info)
	return msg, true
}

func classNeedsDocument(c protocol.Class) bool {
	switch c {
	case protocol.ClassOpen, protocol.ClassChange, protocol.ClassSave,
		protocol.ClassClose, protocol.ClassQuery:
		return true
	}
	return false
}

// fillParams populates positional and method-specific parameters.
func (sm *SequenceMutator) fillParams(ws *textdoc.Workspace, msg *protocol.Message, info protocol.MethodInfo) {
	var content []byte
	if f := ws.File(msg.Document); f != nil {
		content = f.Content
	}

	if info.Position {
		pos := sm.generatePosition(content)
		msg.Position = &pos.Position
		msg.Boundary = pos.Boundary
	}
	if info.Range {
		start := sm.generatePosition(content)
		end := sm.generatePosition(content)
		msg.Range = &textdoc.Range{Start: start.Position, End: end.Position}
		msg.Boundary = start.Boundary || end.Boundary
	}

	switch info.Name {
	case "textDocument/rename":
		msg.Extra = map[string]string{"newName": randomIdentifier(sm.rng)}
	case "workspace/symbol":
		msg.Extra = map[string]string{"query": randomIdentifier(sm.rng)}
	case "textDocument/onTypeFormatting":
		msg.Extra = map[string]string{"ch": string(rune('!' + sm.rng.Intn(94)))}
	case "$/setTrace":
		msg.Extra = map[string]string{"value": []string{"off", "messages", "verbose"}[sm.rng.Intn(3)]}
	}
}

type generatedPosition struct {
	textdoc.Position
	Boundary bool
}

// generatePosition picks an in-bounds coordinate most of the time and an
// out-of-bounds one at the boundary rate.
func (sm *SequenceMutator) generatePosition(content []byte) generatedPosition {
	if sm.rng.Float64() < sm.boundaryRate {
		return generatedPosition{
			Position: textdoc.Position{
				Line:      uint32(sm.rng.Intn(1 << 16)),
				Character: uint32(sm.rng.Intn(1 << 16)),
			},
			Boundary: true,
		}
	}

	lines := textdoc.Lines(content)
	line := sm.rng.Intn(len(lines))
	char := sm.rng.Intn(len(lines[line]) + 1)
	return generatedPosition{
		Position: textdoc.Position{Line: uint32(line), Character: uint32(char)},
	}
}

func randomIdentifier(rng *rand.Rand) string {
	const letters = "abcdefghijklmnopqrstuvwxyz_"
	n := 1 + rng.Intn(12)
	out := make([]byte, n)
	for i := range out {
		out[i] = letters[rng.Intn(len(letters))]
	}
	return string(out)
}

// mutatePosition perturbs the positional parameters of a random positioned
// message in place.
func (sm *SequenceMutator) mutatePosition(ws *textdoc.Workspace, seq *protocol.Sequence) Result {
	var candidates []int
	for i := range seq.Body {
		if seq.Body[i].Position != nil || seq.Body[i].Range != nil {
			candidates = append(candidates, i)
		}
	}
	if len(candidates) == 0 {
		return Skipped("no positioned messages")
	}

	msg := &seq.Body[candidates[sm.rng.Intn(len(candidates))]]
	var content []byte
	if f := ws.File(msg.Document); f != nil {
		content = f.Content
	}

	if msg.Position != nil {
		pos := sm.generatePosition(content)
		msg.Position = &pos.Position
		msg.Boundary = pos.Boundary
	}
	if msg.Range != nil {
		start := sm.generatePosition(content)
		end := sm.generatePosition(content)
		msg.Range = &textdoc.Range{Start: start.Position, End: end.Position}
		msg.Boundary = start.Boundary || end.Boundary
	}
	return Applied()
}

// duplicate copies a random body message next to itself.
func (sm *SequenceMutator) duplicate(_ *textdoc.Workspace, seq *protocol.Sequence) Result {
	if len(seq.Body) == 0 {
		return Skipped("empty body")
	}
	if len(seq.Body) >= sm.maxMessages {
		return Skipped("message cap")
	}
	i := sm.rng.Intn(len(seq.Body))
	clone := seq.Body[i].Clone()
	body := make([]protocol.Message, 0, len(seq.Body)+1)
	body = append(body, seq.Body[:i+1]...)
	body = append(body, clone)
	body = append(body, seq.Body[i+1:]...)
	seq.Body = body
	return Applied()
}

// swap exchanges two adjacent body messages.
func (sm *SequenceMutator) swap(_ *textdoc.Workspace, seq *protocol.Sequence) Result {
	if len(seq.Body) < 2 {
		return Skipped("body too short")
	}
	i := sm.rng.Intn(len(seq.Body) - 1)
	seq.Body[i], seq.Body[i+1] = seq.Body[i+1], seq.Body[i]
	return Applied()
}

// delete removes a random body message. The lifecycle preamble and epilogue
// are derived at serialization time, so deletion can never break them.
func (sm *SequenceMutator) delete(_ *textdoc.Workspace, seq *protocol.Sequence) Result {
	if len(seq.Body) == 0 {
		return Skipped("empty body")
	}
	i := sm.rng.Intn(len(seq.Body))
	seq.Body = append(seq.Body[:i], seq.Body[i+1:]...)
	return Applied()
}

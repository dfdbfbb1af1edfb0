package protocol

import (
	"github.com/henryhchchc/lsp-fuzz/internal/textdoc"
)

// Sequence is the mutable body of one fuzzing session. The lifecycle
// preamble (initialize, didOpen for every source file) and the trailing
// shutdown/exit pair are not stored; they are derived at serialization time
// so mutation can never corrupt them accidentally. Deliberately malformed
// sessions are produced by inserting lifecycle messages into the body
// instead.
type Sequence struct {
	Body []Message `msgpack:"body"`
}

// Clone returns a deep copy.
func (s *Sequence) Clone() *Sequence {
	body := make([]Message, len(s.Body))
	for i := range s.Body {
		body[i] = s.Body[i].Clone()
	}
	return &Sequence{Body: body}
}

// Canonical expands the sequence into the full session message list for the
// given workspace: Initialize, Initialized, DidOpen for every source file in
// name order, the body, then Shutdown and Exit.
func (s *Sequence) Canonical(ws *textdoc.Workspace) []Message {
	msgs := make([]Message, 0, len(s.Body)+4+len(ws.Files))
	msgs = append(msgs,
		Message{Method: MethodInitialize},
		Message{Method: MethodInitialized},
	)
	for _, name := range ws.SourceNames() {
		msgs = append(msgs, Message{Method: MethodDidOpen, Document: name})
	}
	msgs = append(msgs, s.Body...)
	msgs = append(msgs,
		Message{Method: MethodShutdown},
		Message{Method: MethodExit},
	)
	return msgs
}

// PreambleLen is the number of derived messages preceding the body in the
// canonical expansion for ws.
func PreambleLen(ws *textdoc.Workspace) int {
	return 2 + len(ws.SourceNames())
}

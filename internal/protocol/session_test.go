package protocol

import (
	"testing"

	"github.com/henryhchchc/lsp-fuzz/internal/textdoc"
)

func TestSessionLifecycle(t *testing.T) {
	s := NewSession()
	if s.State != StateUninitialized {
		t.Fatal("Fresh session must be uninitialized")
	}

	init := Message{Method: MethodInitialize}
	if !s.IsLegal(&init) {
		t.Error("initialize must be legal when uninitialized")
	}
	query := Message{Method: MethodCompletion, Document: "a.go"}
	if s.IsLegal(&query) {
		t.Error("queries must be illegal before initialize")
	}

	s.Apply(&init)
	if s.State != StateInitialized {
		t.Error("initialize must move to Initialized")
	}
	if s.IsLegal(&init) {
		t.Error("double initialize must be illegal")
	}
}

func TestSessionDocumentTracking(t *testing.T) {
	s := Replay([]Message{
		{Method: MethodInitialize},
		{Method: MethodInitialized},
		{Method: MethodDidOpen, Document: "a.go"},
	})

	if !s.IsLegal(&Message{Method: MethodCompletion, Document: "a.go"}) {
		t.Error("Query against an opened document must be legal")
	}
	if s.IsLegal(&Message{Method: MethodCompletion, Document: "b.go"}) {
		t.Error("Query against a never-opened document must be illegal")
	}
	if s.IsLegal(&Message{Method: MethodDidOpen, Document: "a.go"}) {
		t.Error("Re-opening an opened document must be illegal")
	}

	s.Apply(&Message{Method: MethodDidClose, Document: "a.go"})
	if s.IsLegal(&Message{Method: MethodDidChange, Document: "a.go"}) {
		t.Error("Change after close must be illegal")
	}
	if !s.IsLegal(&Message{Method: MethodDidOpen, Document: "a.go"}) {
		t.Error("Re-open after close must be legal")
	}
}

func TestReplayIsPure(t *testing.T) {
	msgs := []Message{
		{Method: MethodInitialize},
		{Method: MethodDidOpen, Document: "x.py"},
	}
	first := Replay(msgs)
	second := Replay(msgs)
	if first.State != second.State || len(first.Docs) != len(second.Docs) {
		t.Error("Replaying the same prefix twice must derive identical state")
	}
}

func TestLegalMethodsRestriction(t *testing.T) {
	s := NewSession()
	legal := s.LegalMethods("")
	for _, name := range legal {
		if name != MethodInitialize && name != MethodExit {
			t.Errorf("Only initialize/exit legal when uninitialized, got %s", name)
		}
	}

	s.Apply(&Message{Method: MethodInitialize})
	s.Apply(&Message{Method: MethodDidOpen, Document: "a.go"})
	found := false
	for _, name := range s.LegalMethods("a.go") {
		if name == MethodCompletion {
			found = true
		}
	}
	if !found {
		t.Error("completion must be legal for an opened document")
	}
}

func TestCanonicalExpansion(t *testing.T) {
	ws := textdoc.NewWorkspace()
	_ = ws.Add(&textdoc.File{Name: "main.go", Language: "go", Content: []byte("package main")})
	_ = ws.Add(&textdoc.File{Name: "go.mod", Content: []byte("module x")}) // skeleton: not opened

	seq := &Sequence{Body: []Message{
		{Method: MethodCompletion, Document: "main.go", Position: &textdoc.Position{Line: 0, Character: 3}},
	}}
	msgs := seq.Canonical(ws)

	want := []string{MethodInitialize, MethodInitialized, MethodDidOpen, MethodCompletion, MethodShutdown, MethodExit}
	if len(msgs) != len(want) {
		t.Fatalf("Expected %d canonical messages, got %d", len(want), len(msgs))
	}
	for i, method := range want {
		if msgs[i].Method != method {
			t.Errorf("Message %d: expected %s, got %s", i, method, msgs[i].Method)
		}
	}

	// Every canonical sequence must replay without illegal transitions.
	s := NewSession()
	for i := range msgs {
		if !s.IsLegal(&msgs[i]) {
			t.Errorf("Canonical message %d (%s) is illegal in replay", i, msgs[i].Method)
		}
		s.Apply(&msgs[i])
	}
}

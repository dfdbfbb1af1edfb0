package protocol

import (
	"bufio"
	"bytes"
	"encoding/json"
	"testing"

	"github.com/henryhchchc/lsp-fuzz/internal/textdoc"
)

func testWorkspace() *textdoc.Workspace {
	ws := textdoc.NewWorkspace()
	_ = ws.Add(&textdoc.File{Name: "main.go", Language: "go", Content: []byte("package main\n")})
	return ws
}

func TestFrameRequestHasHeaderAndID(t *testing.T) {
	ws := testWorkspace()
	framer := NewFramer(ws, "/tmp/fuzz-ws")

	msg := Message{Method: MethodCompletion, Document: "main.go", Position: &textdoc.Position{Line: 0, Character: 3}}
	frame, err := framer.Frame(&msg)
	if err != nil {
		t.Fatalf("Frame failed: %v", err)
	}

	payload, err := ReadFrame(bufio.NewReader(bytes.NewReader(frame)))
	if err != nil {
		t.Fatalf("ReadFrame failed: %v", err)
	}

	var body map[string]interface{}
	if err := json.Unmarshal(payload, &body); err != nil {
		t.Fatalf("Payload is not JSON: %v", err)
	}
	if body["jsonrpc"] != "2.0" {
		t.Errorf("Expected jsonrpc 2.0, got %v", body["jsonrpc"])
	}
	if body["method"] != MethodCompletion {
		t.Errorf("Method mismatch: %v", body["method"])
	}
	if _, ok := body["id"]; !ok {
		t.Error("Requests must carry an id")
	}
	params := body["params"].(map[string]interface{})
	uri := params["textDocument"].(map[string]interface{})["uri"].(string)
	if uri != "file:///tmp/fuzz-ws/main.go" {
		t.Errorf("Unexpected uri %s", uri)
	}
	pos := params["position"].(map[string]interface{})
	if pos["character"].(float64) != 3 {
		t.Errorf("Position character mismatch: %v", pos)
	}
}

func TestFrameNotificationHasNoID(t *testing.T) {
	framer := NewFramer(testWorkspace(), "/tmp/ws")
	frame, err := framer.Frame(&Message{Method: MethodDidOpen, Document: "main.go"})
	if err != nil {
		t.Fatalf("Frame failed: %v", err)
	}
	payload, _ := ReadFrame(bufio.NewReader(bytes.NewReader(frame)))

	var body map[string]interface{}
	_ = json.Unmarshal(payload, &body)
	if _, ok := body["id"]; ok {
		t.Error("Notifications must not carry an id")
	}
	params := body["params"].(map[string]interface{})
	doc := params["textDocument"].(map[string]interface{})
	if doc["text"] != "package main\n" {
		t.Errorf("didOpen must embed the document text, got %v", doc["text"])
	}
	if doc["languageId"] != "go" {
		t.Errorf("didOpen languageId mismatch: %v", doc["languageId"])
	}
}

func TestRequestIDsAreMonotonic(t *testing.T) {
	framer := NewFramer(testWorkspace(), "/tmp/ws")
	ids := make([]float64, 0, 3)
	for i := 0; i < 3; i++ {
		frame, err := framer.Frame(&Message{Method: "textDocument/hover", Document: "main.go", Position: &textdoc.Position{}})
		if err != nil {
			t.Fatalf("Frame failed: %v", err)
		}
		payload, _ := ReadFrame(bufio.NewReader(bytes.NewReader(frame)))
		var body map[string]interface{}
		_ = json.Unmarshal(payload, &body)
		ids = append(ids, body["id"].(float64))
	}
	if !(ids[0] < ids[1] && ids[1] < ids[2]) {
		t.Errorf("Request ids must be monotonically increasing, got %v", ids)
	}
}

func TestFrameSequenceCoversCanonical(t *testing.T) {
	ws := testWorkspace()
	seq := &Sequence{Body: []Message{
		{Method: MethodCompletion, Document: "main.go", Position: &textdoc.Position{Line: 0, Character: 1}},
	}}

	frames, err := FrameSequence(seq, ws, "/tmp/ws")
	if err != nil {
		t.Fatalf("FrameSequence failed: %v", err)
	}
	if len(frames) != len(seq.Canonical(ws)) {
		t.Errorf("Expected one frame per canonical message, got %d", len(frames))
	}
	for i, frame := range frames {
		if _, err := ReadFrame(bufio.NewReader(bytes.NewReader(frame))); err != nil {
			t.Errorf("Frame %d is not valid wire framing: %v", i, err)
		}
	}
}

func TestFrameUnknownMethodFails(t *testing.T) {
	framer := NewFramer(testWorkspace(), "/tmp/ws")
	if _, err := framer.Frame(&Message{Method: "textDocument/doesNotExist"}); err == nil {
		t.Error("Unknown methods must be rejected")
	}
}

package protocol

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/henryhchchc/lsp-fuzz/internal/textdoc"
)

// jsonRPCVersion is the fixed protocol version string.
const jsonRPCVersion = "2.0"

// Framer converts messages into length-prefixed JSON-RPC wire frames
// against a concrete on-disk workspace location. Paths embedded in payloads
// are absolute by design: crash replay happens from the original locations.
type Framer struct {
	ws      *textdoc.Workspace
	rootURI string
	nextID  int
}

// NewFramer returns a framer for a workspace materialized at dir.
func NewFramer(ws *textdoc.Workspace, dir string) *Framer {
	root := "file://" + dir
	if !strings.HasSuffix(root, "/") {
		root += "/"
	}
	return &Framer{ws: ws, rootURI: root, nextID: 1}
}

// URI returns the absolute document URI for a workspace-relative name.
func (f *Framer) URI(name string) string {
	return f.rootURI + name
}

// Frame encodes one message with its Content-Length header. Requests are
// assigned monotonically increasing ids.
func (f *Framer) Frame(m *Message) ([]byte, error) {
	info, ok := m.Info()
	if !ok {
		return nil, fmt.Errorf("unknown method %q", m.Method)
	}

	body := map[string]interface{}{
		"jsonrpc": jsonRPCVersion,
		"method":  m.Method,
		"params":  f.params(m, info),
	}
	if info.Kind == KindRequest {
		body["id"] = f.nextID
		f.nextID++
	}

	content, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encoding %s: %w", m.Method, err)
	}
	frame := make([]byte, 0, len(content)+32)
	frame = append(frame, fmt.Sprintf("Content-Length: %d\r\n\r\n", len(content))...)
	frame = append(frame, content...)
	return frame, nil
}

// FrameSequence frames the canonical expansion of seq, one frame per message.
func FrameSequence(seq *Sequence, ws *textdoc.Workspace, dir string) ([][]byte, error) {
	framer := NewFramer(ws, dir)
	canonical := seq.Canonical(ws)
	frames := make([][]byte, 0, len(canonical))
	for i := range canonical {
		frame, err := framer.Frame(&canonical[i])
		if err != nil {
			return nil, fmt.Errorf("framing message %d: %w", i, err)
		}
		frames = append(frames, frame)
	}
	return frames, nil
}

func (f *Framer) params(m *Message, info MethodInfo) interface{} {
	switch info.Class {
	case ClassInitialize:
		return map[string]interface{}{
			"processId": nil,
			"clientInfo": map[string]interface{}{
				"name": "lsp-fuzz",
			},
			"rootUri": strings.TrimSuffix(f.rootURI, "/"),
			"workspaceFolders": []interface{}{
				map[string]interface{}{
					"uri":  strings.TrimSuffix(f.rootURI, "/"),
					"name": "default_workspace",
				},
			},
			"capabilities": map[string]interface{}{},
			"trace":        "off",
		}

	case ClassInitialized:
		return map[string]interface{}{}

	case ClassShutdown, ClassExit:
		return nil

	case ClassOpen:
		text := ""
		languageID := "plaintext"
		if file := f.ws.File(m.Document); file != nil {
			text = string(file.Content)
			if file.Language != "" {
				languageID = file.Language
			}
		}
		return map[string]interface{}{
			"textDocument": map[string]interface{}{
				"uri":        f.URI(m.Document),
				"languageId": languageID,
				"version":    1,
				"text":       text,
			},
		}

	case ClassChange:
		text := ""
		if file := f.ws.File(m.Document); file != nil {
			text = string(file.Content)
		}
		return map[string]interface{}{
			"textDocument": map[string]interface{}{
				"uri":     f.URI(m.Document),
				"version": 2,
			},
			// Full-document sync: one change replacing the whole text.
			"contentChanges": []interface{}{
				map[string]interface{}{"text": text},
			},
		}

	case ClassSave, ClassClose:
		return map[string]interface{}{
			"textDocument": map[string]interface{}{"uri": f.URI(m.Document)},
		}

	case ClassWorkspace:
		query := m.Extra["query"]
		return map[string]interface{}{"query": query}

	case ClassSession:
		value := m.Extra["value"]
		if value == "" {
			value = "off"
		}
		return map[string]interface{}{"value": value}

	default: // ClassQuery
		params := map[string]interface{}{
			"textDocument": map[string]interface{}{"uri": f.URI(m.Document)},
		}
		if info.Position && m.Position != nil {
			params["position"] = map[string]interface{}{
				"line":      m.Position.Line,
				"character": m.Position.Character,
			}
		}
		if info.Range && m.Range != nil {
			params["range"] = map[string]interface{}{
				"start": map[string]interface{}{"line": m.Range.Start.Line, "character": m.Range.Start.Character},
				"end":   map[string]interface{}{"line": m.Range.End.Line, "character": m.Range.End.Character},
			}
		}
		for k, v := range m.Extra {
			params[k] = v
		}
		return params
	}
}

// ReadFrame decodes one Content-Length framed payload, used when replaying
// exported crash records.
func ReadFrame(r *bufio.Reader) ([]byte, error) {
	contentLength := -1
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return nil, err
		}
		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			break
		}
		parts := strings.SplitN(line, ":", 2)
		if len(parts) != 2 {
			continue
		}
		if strings.EqualFold(strings.TrimSpace(parts[0]), "Content-Length") {
			length, err := strconv.Atoi(strings.TrimSpace(parts[1]))
			if err != nil {
				return nil, fmt.Errorf("invalid Content-Length: %w", err)
			}
			contentLength = length
		}
	}
	if contentLength < 0 {
		return nil, fmt.Errorf("missing Content-Length header")
	}
	payload := make([]byte, contentLength)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, err
	}
	return payload, nil
}

// Package protocol models the client-to-server message sequence of one
// fuzzing session: the method catalog, the JSON-RPC wire framing and the
// session-state machine that keeps generated sequences protocol-legal.
package protocol

import (
	"github.com/henryhchchc/lsp-fuzz/internal/textdoc"
)

// Kind distinguishes requests (carry an id, expect a response) from
// notifications.
type Kind int

const (
	KindRequest Kind = iota
	KindNotification
)

// Class groups methods by their effect on session state.
type Class int

const (
	ClassInitialize Class = iota // moves Uninitialized -> Initialized
	ClassInitialized
	ClassOpen   // opens a document
	ClassChange // mutates an opened document
	ClassSave
	ClassClose // closes an opened document
	ClassQuery // read-only query against an opened document
	ClassWorkspace
	ClassSession // session-wide notifications ($/setTrace, ...)
	ClassShutdown
	ClassExit
)

// MethodInfo describes one protocol method.
type MethodInfo struct {
	Name     string
	Kind     Kind
	Class    Class
	Position bool // params carry a position
	Range    bool // params carry a range
}

// Method names used across the fuzzer.
const (
	MethodInitialize  = "initialize"
	MethodInitialized = "initialized"
	MethodShutdown    = "shutdown"
	MethodExit        = "exit"
	MethodDidOpen     = "textDocument/didOpen"
	MethodDidChange   = "textDocument/didChange"
	MethodDidSave     = "textDocument/didSave"
	MethodDidClose    = "textDocument/didClose"
	MethodCompletion  = "textDocument/completion"
)

// catalog lists every method the fuzzer emits. Query methods mirror the set
// of deep-analysis requests language servers implement.
var catalog = []MethodInfo{
	{Name: MethodInitialize, Kind: KindRequest, Class: ClassInitialize},
	{Name: MethodInitialized, Kind: KindNotification, Class: ClassInitialized},
	{Name: MethodShutdown, Kind: KindRequest, Class: ClassShutdown},
	{Name: MethodExit, Kind: KindNotification, Class: ClassExit},

	{Name: MethodDidOpen, Kind: KindNotification, Class: ClassOpen},
	{Name: MethodDidChange, Kind: KindNotification, Class: ClassChange},
	{Name: "textDocument/willSave", Kind: KindNotification, Class: ClassSave},
	{Name: MethodDidSave, Kind: KindNotification, Class: ClassSave},
	{Name: MethodDidClose, Kind: KindNotification, Class: ClassClose},

	{Name: MethodCompletion, Kind: KindRequest, Class: ClassQuery, Position: true},
	{Name: "textDocument/hover", Kind: KindRequest, Class: ClassQuery, Position: true},
	{Name: "textDocument/definition", Kind: KindRequest, Class: ClassQuery, Position: true},
	{Name: "textDocument/declaration", Kind: KindRequest, Class: ClassQuery, Position: true},
	{Name: "textDocument/implementation", Kind: KindRequest, Class: ClassQuery, Position: true},
	{Name: "textDocument/typeDefinition", Kind: KindRequest, Class: ClassQuery, Position: true},
	{Name: "textDocument/references", Kind: KindRequest, Class: ClassQuery, Position: true},
	{Name: "textDocument/documentHighlight", Kind: KindRequest, Class: ClassQuery, Position: true},
	{Name: "textDocument/documentSymbol", Kind: KindRequest, Class: ClassQuery},
	{Name: "textDocument/documentColor", Kind: KindRequest, Class: ClassQuery},
	{Name: "textDocument/codeAction", Kind: KindRequest, Class: ClassQuery, Range: true},
	{Name: "textDocument/codeLens", Kind: KindRequest, Class: ClassQuery},
	{Name: "textDocument/documentLink", Kind: KindRequest, Class: ClassQuery},
	{Name: "textDocument/foldingRange", Kind: KindRequest, Class: ClassQuery},
	{Name: "textDocument/selectionRange", Kind: KindRequest, Class: ClassQuery, Position: true},
	{Name: "textDocument/semanticTokens/full", Kind: KindRequest, Class: ClassQuery},
	{Name: "textDocument/semanticTokens/range", Kind: KindRequest, Class: ClassQuery, Range: true},
	{Name: "textDocument/signatureHelp", Kind: KindRequest, Class: ClassQuery, Position: true},
	{Name: "textDocument/rename", Kind: KindRequest, Class: ClassQuery, Position: true},
	{Name: "textDocument/prepareRename", Kind: KindRequest, Class: ClassQuery, Position: true},
	{Name: "textDocument/prepareCallHierarchy", Kind: KindRequest, Class: ClassQuery, Position: true},
	{Name: "textDocument/prepareTypeHierarchy", Kind: KindRequest, Class: ClassQuery, Position: true},
	{Name: "textDocument/moniker", Kind: KindRequest, Class: ClassQuery, Position: true},
	{Name: "textDocument/linkedEditingRange", Kind: KindRequest, Class: ClassQuery, Position: true},
	{Name: "textDocument/onTypeFormatting", Kind: KindRequest, Class: ClassQuery, Position: true},
	{Name: "textDocument/rangeFormatting", Kind: KindRequest, Class: ClassQuery, Range: true},
	{Name: "textDocument/diagnostic", Kind: KindRequest, Class: ClassQuery},

	{Name: "workspace/symbol", Kind: KindRequest, Class: ClassWorkspace},
	{Name: "workspace/diagnostic", Kind: KindRequest, Class: ClassWorkspace},

	{Name: "$/setTrace", Kind: KindNotification, Class: ClassSession},
}

var methodsByName = func() map[string]MethodInfo {
	m := make(map[string]MethodInfo, len(catalog))
	for _, info := range catalog {
		m[info.Name] = info
	}
	return m
}()

// MethodByName looks up catalog information for a method.
func MethodByName(name string) (MethodInfo, bool) {
	info, ok := methodsByName[name]
	return info, ok
}

// AllMethods returns every catalog method name in catalog order.
func AllMethods() []string {
	names := make([]string, len(catalog))
	for i, info := range catalog {
		names[i] = info.Name
	}
	return names
}

// QueryMethods returns the names of document query methods.
func QueryMethods() []string {
	var names []string
	for _, info := range catalog {
		if info.Class == ClassQuery {
			names = append(names, info.Name)
		}
	}
	return names
}

// Message is one request or notification in a fuzzing session. Positional
// parameters reference coordinates in the named workspace document.
type Message struct {
	Method   string            `msgpack:"method"`
	Document string            `msgpack:"document,omitempty"`
	Position *textdoc.Position `msgpack:"position,omitempty"`
	Range    *textdoc.Range    `msgpack:"range,omitempty"`

	// Extra holds method-specific scalar parameters (rename's newName,
	// workspace/symbol's query, ...).
	Extra map[string]string `msgpack:"extra,omitempty"`

	// Boundary marks positional parameters deliberately generated (or left)
	// out-of-bounds; the bounds re-clamp pass skips such messages.
	Boundary bool `msgpack:"boundary,omitempty"`
}

// Info returns the catalog entry for the message's method.
func (m *Message) Info() (MethodInfo, bool) {
	return MethodByName(m.Method)
}

// Clone returns a deep copy.
func (m *Message) Clone() Message {
	clone := Message{Method: m.Method, Document: m.Document, Boundary: m.Boundary}
	if m.Position != nil {
		pos := *m.Position
		clone.Position = &pos
	}
	if m.Range != nil {
		rng := *m.Range
		clone.Range = &rng
	}
	if m.Extra != nil {
		clone.Extra = make(map[string]string, len(m.Extra))
		for k, v := range m.Extra {
			clone.Extra[k] = v
		}
	}
	return clone
}

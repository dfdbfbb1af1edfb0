package protocol

// SessionState tracks the initialization lifecycle of a session.
type SessionState int

const (
	StateUninitialized SessionState = iota
	StateInitialized
	StateShutdown
)

// DocState tracks one document within an initialized session.
type DocState int

const (
	DocClosed DocState = iota
	DocOpened
	DocChanged
)

// Session is the pure session-state machine. It is never persisted; callers
// re-derive it from scratch by replaying a message prefix.
type Session struct {
	State SessionState
	Docs  map[string]DocState
}

// NewSession returns a fresh, uninitialized session.
func NewSession() *Session {
	return &Session{State: StateUninitialized, Docs: make(map[string]DocState)}
}

// Replay derives session state from a message prefix. Illegal messages in
// the prefix are applied permissively (the machine mirrors what a lenient
// server would track) so adversarial sequences can still be extended.
func Replay(msgs []Message) *Session {
	s := NewSession()
	for i := range msgs {
		s.Apply(&msgs[i])
	}
	return s
}

// Apply advances the machine by one message.
func (s *Session) Apply(m *Message) {
	info, ok := m.Info()
	if !ok {
		return
	}
	switch info.Class {
	case ClassInitialize, ClassInitialized:
		if s.State == StateUninitialized {
			s.State = StateInitialized
		}
	case ClassOpen:
		if m.Document != "" {
			s.Docs[m.Document] = DocOpened
		}
	case ClassChange:
		if m.Document != "" && s.Docs[m.Document] != DocClosed {
			s.Docs[m.Document] = DocChanged
		}
	case ClassClose:
		if m.Document != "" {
			s.Docs[m.Document] = DocClosed
		}
	case ClassShutdown, ClassExit:
		s.State = StateShutdown
	}
}

// IsLegal reports whether m is a legal next message in the current state.
func (s *Session) IsLegal(m *Message) bool {
	info, ok := m.Info()
	if !ok {
		return false
	}
	switch info.Class {
	case ClassInitialize:
		return s.State == StateUninitialized
	case ClassInitialized, ClassSession, ClassWorkspace, ClassShutdown:
		return s.State == StateInitialized
	case ClassExit:
		return true // exit is legal in any state
	case ClassOpen:
		return s.State == StateInitialized && s.Docs[m.Document] == DocClosed
	case ClassChange, ClassSave, ClassClose, ClassQuery:
		return s.State == StateInitialized && s.Docs[m.Document] != DocClosed
	default:
		return false
	}
}

// OpenedDocs returns the documents currently opened, in no particular order.
func (s *Session) OpenedDocs() []string {
	var docs []string
	for name, state := range s.Docs {
		if state != DocClosed {
			docs = append(docs, name)
		}
	}
	return docs
}

// LegalMethods returns the catalog methods legal in the current state for
// the given document (may be empty for document-free methods).
func (s *Session) LegalMethods(document string) []string {
	var names []string
	for _, info := range catalog {
		m := Message{Method: info.Name, Document: document}
		if s.IsLegal(&m) {
			names = append(names, info.Name)
		}
	}
	return names
}

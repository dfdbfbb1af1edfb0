package textdoc

import "bytes"

// Position is a zero-based line/character coordinate, the unit LSP uses for
// all positional parameters.
type Position struct {
	Line      uint32 `msgpack:"line" json:"line"`
	Character uint32 `msgpack:"character" json:"character"`
}

// Range is a half-open [Start, End) document span.
type Range struct {
	Start Position `msgpack:"start" json:"start"`
	End   Position `msgpack:"end" json:"end"`
}

// Lines splits content into lines without the trailing newline bytes.
// A trailing newline yields a final empty line, matching how servers count.
func Lines(content []byte) [][]byte {
	return bytes.Split(content, []byte("\n"))
}

// ClampPosition moves pos to the nearest valid coordinate within content.
func ClampPosition(content []byte, pos Position) Position {
	lines := Lines(content)
	if int(pos.Line) >= len(lines) {
		pos.Line = uint32(len(lines) - 1)
	}
	lineLen := uint32(len(lines[pos.Line]))
	if pos.Character > lineLen {
		pos.Character = lineLen
	}
	return pos
}

// InBounds reports whether pos addresses a valid coordinate within content.
func InBounds(content []byte, pos Position) bool {
	lines := Lines(content)
	if int(pos.Line) >= len(lines) {
		return false
	}
	return int(pos.Character) <= len(lines[pos.Line])
}

// EndPosition is the last valid position in content.
func EndPosition(content []byte) Position {
	lines := Lines(content)
	last := len(lines) - 1
	return Position{Line: uint32(last), Character: uint32(len(lines[last]))}
}

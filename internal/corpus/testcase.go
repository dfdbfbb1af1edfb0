// Package corpus holds the evolving test-case collection: on-disk
// persistence, resume, and the coverage-guided power schedule.
package corpus

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/henryhchchc/lsp-fuzz/internal/protocol"
	"github.com/henryhchchc/lsp-fuzz/internal/textdoc"
)

const testCaseFormatVersion = 1

// TestCase is one corpus entry: a workspace plus the protocol-message body
// exercised against it, with the scheduling metadata gathered when it was
// admitted.
type TestCase struct {
	ID     uuid.UUID `msgpack:"id"`
	Parent uuid.UUID `msgpack:"parent"` // zero for seeds

	Workspace *textdoc.Workspace `msgpack:"workspace"`
	Sequence  *protocol.Sequence `msgpack:"sequence"`

	// Edges is the number of globally novel edges this entry contributed at
	// insertion time; ExecTime is the execution that admitted it.
	Edges    int           `msgpack:"edges"`
	ExecTime time.Duration `msgpack:"exec_time"`
	FoundAt  time.Time     `msgpack:"found_at"`
}

// NewTestCase builds a seed entry.
func NewTestCase(ws *textdoc.Workspace, seq *protocol.Sequence) *TestCase {
	return &TestCase{
		ID:        uuid.New(),
		Workspace: ws,
		Sequence:  seq,
		FoundAt:   time.Now().UTC(),
	}
}

// Derive builds a child entry from a mutated pair.
func (tc *TestCase) Derive(ws *textdoc.Workspace, seq *protocol.Sequence) *TestCase {
	return &TestCase{
		ID:        uuid.New(),
		Parent:    tc.ID,
		Workspace: ws,
		Sequence:  seq,
		FoundAt:   time.Now().UTC(),
	}
}

// Size is the replay cost proxy: total workspace bytes plus body length.
func (tc *TestCase) Size() int {
	return tc.Workspace.Len() + len(tc.Sequence.Body)
}

// FileName is the corpus entry name: ordinal, discovery time relative to the
// campaign start, and execution time, all embedded for operator forensics.
func (tc *TestCase) FileName(ordinal int, campaignStart time.Time) string {
	return fmt.Sprintf("id_%06d_time_%d_exec_%d",
		ordinal,
		tc.FoundAt.Sub(campaignStart).Milliseconds(),
		tc.ExecTime.Microseconds(),
	)
}

type testCaseFile struct {
	Version  int       `msgpack:"version"`
	TestCase *TestCase `msgpack:"test_case"`
}

// Marshal encodes the entry for persistence.
func (tc *TestCase) Marshal() ([]byte, error) {
	data, err := msgpack.Marshal(&testCaseFile{Version: testCaseFormatVersion, TestCase: tc})
	if err != nil {
		return nil, fmt.Errorf("encoding test case %s: %w", tc.ID, err)
	}
	return data, nil
}

// UnmarshalTestCase decodes an entry written by Marshal.
func UnmarshalTestCase(data []byte) (*TestCase, error) {
	var file testCaseFile
	if err := msgpack.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("decoding test case: %w", err)
	}
	if file.Version != testCaseFormatVersion {
		return nil, fmt.Errorf("test case has version %d, want %d", file.Version, testCaseFormatVersion)
	}
	if file.TestCase == nil || file.TestCase.Workspace == nil || file.TestCase.Sequence == nil {
		return nil, fmt.Errorf("test case is missing workspace or sequence")
	}
	return file.TestCase, nil
}

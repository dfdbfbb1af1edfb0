package triage

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/henryhchchc/lsp-fuzz/internal/corpus"
	"github.com/henryhchchc/lsp-fuzz/internal/protocol"
)

// Export materializes a test case as a self-contained reproduction directory
// under dir/<id>/: workspace/ holds the literal files and requests/ one wire
// frame per message, named so lexicographic order preserves sequence order.
// Embedded paths stay absolute; replay happens from the exported workspace
// location, no rewriting.
func Export(tc *corpus.TestCase, dir string) (string, error) {
	root := filepath.Join(dir, tc.ID.String())
	workspaceDir := filepath.Join(root, "workspace")
	requestsDir := filepath.Join(root, "requests")
	for _, d := range []string{workspaceDir, requestsDir} {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return "", fmt.Errorf("creating export directory: %w", err)
		}
	}

	if err := tc.Workspace.WriteTo(workspaceDir); err != nil {
		return "", fmt.Errorf("exporting workspace: %w", err)
	}

	frames, err := protocol.FrameSequence(tc.Sequence, tc.Workspace, workspaceDir)
	if err != nil {
		return "", fmt.Errorf("framing export: %w", err)
	}
	for i, frame := range frames {
		name := fmt.Sprintf("msg_%04d.bin", i)
		if err := os.WriteFile(filepath.Join(requestsDir, name), frame, 0o644); err != nil {
			return "", fmt.Errorf("writing exported frame %d: %w", i, err)
		}
	}
	return root, nil
}

// ReadExportedFrames loads the framed messages of an exported record in
// sequence order, for replay tooling.
func ReadExportedFrames(root string) ([][]byte, error) {
	requestsDir := filepath.Join(root, "requests")
	entries, err := os.ReadDir(requestsDir)
	if err != nil {
		return nil, fmt.Errorf("listing exported frames: %w", err)
	}

	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".bin") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	frames := make([][]byte, 0, len(names))
	for _, name := range names {
		f, err := os.Open(filepath.Join(requestsDir, name))
		if err != nil {
			return nil, fmt.Errorf("opening exported frame %s: %w", name, err)
		}
		payload, err := protocol.ReadFrame(bufio.NewReader(f))
		f.Close()
		// A frame that ends before its Content-Length header is a damaged
		// export, not an empty message.
		if err != nil {
			return nil, fmt.Errorf("decoding exported frame %s: %w", name, err)
		}
		frames = append(frames, payload)
	}
	return frames, nil
}

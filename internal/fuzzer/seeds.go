package fuzzer

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/henryhchchc/lsp-fuzz/internal/corpus"
	"github.com/henryhchchc/lsp-fuzz/internal/logging"
	"github.com/henryhchchc/lsp-fuzz/internal/protocol"
	"github.com/henryhchchc/lsp-fuzz/internal/textdoc"
)

// LoadSeeds builds seed test cases from an operator-provided directory.
// Each immediate subdirectory becomes one workspace; its files are tagged
// with a language when the extension matches a supported grammar. Seed
// sequences start with an empty body: the canonical expansion already opens
// every source file, and mutation grows the body from there.
func LoadSeeds(dir string, maxFileSize int) ([]*corpus.TestCase, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading seed directory: %w", err)
	}

	var seeds []*corpus.TestCase
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		ws, err := loadSeedWorkspace(filepath.Join(dir, entry.Name()), maxFileSize)
		if err != nil {
			logging.BootWarn("skipping seed %s: %v", entry.Name(), err)
			continue
		}
		if len(ws.Files) == 0 {
			logging.BootWarn("skipping empty seed %s", entry.Name())
			continue
		}
		seeds = append(seeds, corpus.NewTestCase(ws, &protocol.Sequence{}))
	}
	logging.Boot("loaded %d seed workspaces from %s", len(seeds), dir)
	return seeds, nil
}

func loadSeedWorkspace(root string, maxFileSize int) (*textdoc.Workspace, error) {
	ws := textdoc.NewWorkspace()
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		content, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		if len(content) > maxFileSize {
			content = content[:maxFileSize]
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}

		name := filepath.ToSlash(rel)
		language := ""
		if lang, ok := textdoc.ForFile(name); ok {
			language = lang.Name()
		}
		return ws.Add(&textdoc.File{Name: name, Language: language, Content: content})
	})
	if err != nil {
		return nil, err
	}
	return ws, nil
}

package fragment

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/henryhchchc/lsp-fuzz/internal/logging"
	"github.com/henryhchchc/lsp-fuzz/internal/textdoc"
)

// Miner extracts fragments from a corpus of real source files.
type Miner struct {
	lang     textdoc.Language
	minBytes int
	maxDepth int
}

// Stats summarizes one mining run.
type Stats struct {
	FilesParsed  int
	FilesSkipped int
	Fragments    int
}

// NewMiner returns a miner for one language. Subtrees smaller than minBytes
// or deeper than maxDepth are not extracted.
func NewMiner(lang textdoc.Language, minBytes, maxDepth int) *Miner {
	return &Miner{lang: lang, minBytes: minBytes, maxDepth: maxDepth}
}

// MineDir builds a fragment index from every matching file under dir.
// Files that fail to parse are skipped and counted, never fatal. Given
// identical input files the resulting index is reproducible byte-for-byte:
// files are visited in sorted path order and each tree in pre-order.
func (m *Miner) MineDir(ctx context.Context, dir string) (*Index, Stats, error) {
	timer := logging.StartTimer(logging.CategoryMine, "fragment mining")
	defer timer.Stop()

	var paths []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if _, ok := m.matchesLanguage(path); ok {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, Stats{}, fmt.Errorf("walking %s: %w", dir, err)
	}
	sort.Strings(paths)

	ix := NewIndex(m.lang.Name())
	var stats Stats
	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return nil, stats, err
		}
		if err := m.mineFile(ctx, path, ix); err != nil {
			stats.FilesSkipped++
			logging.MineWarn("skipping %s: %v", path, err)
			continue
		}
		stats.FilesParsed++
	}
	stats.Fragments = ix.Size()

	logging.Mine("mined %d fragments in %d categories from %d files (%d skipped) under %s",
		stats.Fragments, len(ix.Categories()), stats.FilesParsed, stats.FilesSkipped, dir)
	return ix, stats, nil
}

func (m *Miner) matchesLanguage(path string) (string, bool) {
	ext := filepath.Ext(path)
	for _, e := range m.lang.Extensions() {
		if ext == "."+e {
			return e, true
		}
	}
	return "", false
}

func (m *Miner) mineFile(ctx context.Context, path string, ix *Index) error {
	content, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading: %w", err)
	}

	tree, err := m.lang.Parse(ctx, content)
	if err != nil {
		return fmt.Errorf("parsing: %w", err)
	}
	defer tree.Close()

	root := tree.RootNode()
	if root.HasError() {
		// A partially broken file still yields usable fragments from its
		// intact subtrees; error nodes themselves are filtered below.
		logging.MineDebug("%s parses with errors, mining intact subtrees", path)
	}

	before := ix.Size()
	m.extract(root, content, 0, ix)
	logging.MineDebug("%s: %d fragments", path, ix.Size()-before)
	return nil
}

// extract walks the tree in pre-order, recording named, error-free subtrees
// within the configured size and depth bounds.
func (m *Miner) extract(node *sitter.Node, content []byte, depth int, ix *Index) {
	if depth > m.maxDepth {
		return
	}
	if node.IsNamed() && !node.IsError() && !node.IsMissing() {
		span := int(node.EndByte() - node.StartByte())
		if span >= m.minBytes {
			text := make([]byte, span)
			copy(text, content[node.StartByte():node.EndByte()])
			ix.add(Fragment{
				Category: node.Type(),
				Arity:    int(node.NamedChildCount()),
				Content:  text,
			})
		}
	}
	for i := 0; i < int(node.ChildCount()); i++ {
		m.extract(node.Child(i), content, depth+1, ix)
	}
}

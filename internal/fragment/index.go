// Package fragment mines syntactic units from real source files and indexes
// them by grammar category for compatible substitution during mutation.
package fragment

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/vmihailenco/msgpack/v5"
)

// indexFormatVersion guards the on-disk index layout.
const indexFormatVersion = 1

// Fragment is one mined syntactic unit. Fragments are immutable once mined.
type Fragment struct {
	// Category is the grammar category (tree-sitter node kind).
	Category string `msgpack:"category"`

	// Arity is the named child count, the structural half of the
	// compatibility signature alongside Category.
	Arity int `msgpack:"arity"`

	// Content is the literal source text of the subtree.
	Content []byte `msgpack:"content"`
}

// Signature is the (kind, arity) pair used for compatible substitution.
func (f *Fragment) Signature() string {
	return fmt.Sprintf("%s/%d", f.Category, f.Arity)
}

// Index maps grammar categories to ordered fragment collections for one
// language. Once built (or loaded) an Index is immutable and safe to share
// across workers without synchronization.
type Index struct {
	Language   string
	categories map[string][]Fragment
}

// NewIndex returns an empty index for the given language tag.
func NewIndex(language string) *Index {
	return &Index{Language: language, categories: make(map[string][]Fragment)}
}

// add appends a fragment, collapsing duplicate texts within a category.
// Insertion order is the mining order, which the miner keeps deterministic.
func (ix *Index) add(f Fragment) {
	existing := ix.categories[f.Category]
	for i := range existing {
		if bytes.Equal(existing[i].Content, f.Content) {
			return
		}
	}
	ix.categories[f.Category] = append(existing, f)
}

// Lookup returns the fragments mined for a category. The returned slice is
// shared and must not be modified.
func (ix *Index) Lookup(category string) []Fragment {
	return ix.categories[category]
}

// Categories returns all category names in lexicographic order.
func (ix *Index) Categories() []string {
	names := make([]string, 0, len(ix.categories))
	for name := range ix.categories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Size is the total fragment count across categories.
func (ix *Index) Size() int {
	total := 0
	for _, frags := range ix.categories {
		total += len(frags)
	}
	return total
}

// indexFile is the serialized layout. Categories are stored as a sorted
// slice, not a map, so that Save is byte-for-byte reproducible.
type indexFile struct {
	Version    int             `msgpack:"version"`
	Language   string          `msgpack:"language"`
	Categories []categoryEntry `msgpack:"categories"`
}

type categoryEntry struct {
	Name      string     `msgpack:"name"`
	Fragments []Fragment `msgpack:"fragments"`
}

// Save writes the index atomically (write-then-rename). Given an identical
// index, the output is byte-identical, which makes index builds cacheable.
func (ix *Index) Save(path string) error {
	file := indexFile{Version: indexFormatVersion, Language: ix.Language}
	for _, name := range ix.Categories() {
		file.Categories = append(file.Categories, categoryEntry{
			Name:      name,
			Fragments: ix.categories[name],
		})
	}

	data, err := msgpack.Marshal(&file)
	if err != nil {
		return fmt.Errorf("encoding fragment index: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating index directory: %w", err)
	}
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("writing fragment index: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("committing fragment index: %w", err)
	}
	return nil
}

// Load reads an index file written by Save.
func Load(path string) (*Index, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading fragment index: %w", err)
	}

	var file indexFile
	if err := msgpack.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("decoding fragment index %s: %w", path, err)
	}
	if file.Version != indexFormatVersion {
		return nil, fmt.Errorf("fragment index %s has version %d, want %d", path, file.Version, indexFormatVersion)
	}

	ix := NewIndex(file.Language)
	for _, entry := range file.Categories {
		ix.categories[entry.Name] = entry.Fragments
	}
	return ix, nil
}

// Set is a read-only collection of indexes keyed by language tag.
type Set map[string]*Index

// LoadSet loads one index per language from the configured paths.
func LoadSet(paths map[string]string) (Set, error) {
	set := make(Set, len(paths))
	for lang, path := range paths {
		ix, err := Load(path)
		if err != nil {
			return nil, fmt.Errorf("loading %s index: %w", lang, err)
		}
		if ix.Language != lang {
			return nil, fmt.Errorf("index %s is tagged %q, expected %q", path, ix.Language, lang)
		}
		set[lang] = ix
	}
	return set, nil
}

// ForLanguage returns the index for a language tag, or nil.
func (s Set) ForLanguage(lang string) *Index {
	return s[lang]
}

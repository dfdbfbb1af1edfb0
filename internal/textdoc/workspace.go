package textdoc

import (
	"fmt"
	"hash/fnv"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// File is one named virtual file. Source files carry a language tag and are
// subject to structural mutation; skeleton files (empty Language) are
// scaffolding like rust-project.json that only byte-level operators touch.
type File struct {
	Name     string `msgpack:"name"`
	Language string `msgpack:"language"`
	Content  []byte `msgpack:"content"`
}

// IsSource reports whether the file is a language-tagged source document.
func (f *File) IsSource() bool { return f.Language != "" }

// Clone returns a deep copy.
func (f *File) Clone() *File {
	content := make([]byte, len(f.Content))
	copy(content, f.Content)
	return &File{Name: f.Name, Language: f.Language, Content: content}
}

// Workspace is a set of uniquely named virtual files.
type Workspace struct {
	Files map[string]*File `msgpack:"files"`
}

// NewWorkspace returns an empty workspace.
func NewWorkspace() *Workspace {
	return &Workspace{Files: make(map[string]*File)}
}

// Add inserts a file, replacing any file with the same name. Names are
// workspace-relative slash paths.
func (w *Workspace) Add(f *File) error {
	if f.Name == "" {
		return fmt.Errorf("workspace file requires a name")
	}
	if strings.HasPrefix(f.Name, "/") || strings.Contains(f.Name, "..") {
		return fmt.Errorf("workspace file name must be relative: %q", f.Name)
	}
	if w.Files == nil {
		w.Files = make(map[string]*File)
	}
	w.Files[f.Name] = f
	return nil
}

// File returns the named file, or nil.
func (w *Workspace) File(name string) *File {
	return w.Files[name]
}

// Remove deletes the named file.
func (w *Workspace) Remove(name string) {
	delete(w.Files, name)
}

// Names returns all file names in lexicographic order. Iteration over a
// workspace must always go through this to stay deterministic.
func (w *Workspace) Names() []string {
	names := make([]string, 0, len(w.Files))
	for name := range w.Files {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// SourceNames returns the names of language-tagged files, sorted.
func (w *Workspace) SourceNames() []string {
	var names []string
	for name, f := range w.Files {
		if f.IsSource() {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// Clone returns a deep copy of the workspace.
func (w *Workspace) Clone() *Workspace {
	clone := NewWorkspace()
	for name, f := range w.Files {
		clone.Files[name] = f.Clone()
	}
	return clone
}

// Len is the total content size in bytes.
func (w *Workspace) Len() int {
	total := 0
	for _, f := range w.Files {
		total += len(f.Content)
	}
	return total
}

// Hash is a stable FNV-64 digest over names and contents.
func (w *Workspace) Hash() uint64 {
	h := fnv.New64a()
	for _, name := range w.Names() {
		h.Write([]byte(name))
		h.Write([]byte{0})
		h.Write(w.Files[name].Content)
		h.Write([]byte{0})
	}
	return h.Sum64()
}

// WriteTo materializes the workspace under dir, creating any intermediate
// directories. Used by the executor and by crash export.
func (w *Workspace) WriteTo(dir string) error {
	for _, name := range w.Names() {
		path := filepath.Join(dir, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return fmt.Errorf("creating workspace directory for %s: %w", name, err)
		}
		if err := os.WriteFile(path, w.Files[name].Content, 0o644); err != nil {
			return fmt.Errorf("writing workspace file %s: %w", name, err)
		}
	}
	return nil
}

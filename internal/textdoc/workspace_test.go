package textdoc

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestWorkspaceUniqueNames(t *testing.T) {
	ws := NewWorkspace()
	if err := ws.Add(&File{Name: "a.go", Language: "go", Content: []byte("package a")}); err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	if err := ws.Add(&File{Name: "a.go", Language: "go", Content: []byte("package b")}); err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	if len(ws.Files) != 1 {
		t.Errorf("Expected 1 file after duplicate add, got %d", len(ws.Files))
	}
	if string(ws.File("a.go").Content) != "package b" {
		t.Error("Duplicate add should replace content")
	}
}

func TestWorkspaceRejectsAbsoluteNames(t *testing.T) {
	ws := NewWorkspace()
	if err := ws.Add(&File{Name: "/etc/passwd", Content: []byte("x")}); err == nil {
		t.Error("Expected absolute name to be rejected")
	}
	if err := ws.Add(&File{Name: "../escape", Content: []byte("x")}); err == nil {
		t.Error("Expected parent traversal to be rejected")
	}
}

func TestWorkspaceCloneIsDeep(t *testing.T) {
	ws := NewWorkspace()
	_ = ws.Add(&File{Name: "main.go", Language: "go", Content: []byte("package main")})

	clone := ws.Clone()
	clone.File("main.go").Content[0] = 'X'

	if string(ws.File("main.go").Content) != "package main" {
		t.Error("Mutating the clone leaked into the original")
	}
}

func TestWorkspaceHashStable(t *testing.T) {
	build := func() *Workspace {
		ws := NewWorkspace()
		_ = ws.Add(&File{Name: "b.rs", Language: "rust", Content: []byte("fn main() {}")})
		_ = ws.Add(&File{Name: "a.rs", Language: "rust", Content: []byte("mod b;")})
		return ws
	}
	if build().Hash() != build().Hash() {
		t.Error("Identical workspaces must hash identically")
	}

	other := build()
	other.File("a.rs").Content = []byte("mod c;")
	if other.Hash() == build().Hash() {
		t.Error("Content change must change the hash")
	}
}

func TestWorkspaceWriteTo(t *testing.T) {
	ws := NewWorkspace()
	_ = ws.Add(&File{Name: "src/lib.rs", Language: "rust", Content: []byte("fn f() {}")})
	_ = ws.Add(&File{Name: "rust-project.json", Content: []byte("{}")})

	dir := t.TempDir()
	if err := ws.WriteTo(dir); err != nil {
		t.Fatalf("WriteTo failed: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "src", "lib.rs"))
	if err != nil {
		t.Fatalf("Reading materialized file: %v", err)
	}
	if string(data) != "fn f() {}" {
		t.Errorf("Unexpected content: %q", data)
	}
}

func TestSourceNamesSkipsSkeletons(t *testing.T) {
	ws := NewWorkspace()
	_ = ws.Add(&File{Name: "main.go", Language: "go", Content: []byte("package main")})
	_ = ws.Add(&File{Name: "go.mod", Content: []byte("module x")})

	names := ws.SourceNames()
	if len(names) != 1 || names[0] != "main.go" {
		t.Errorf("Expected only main.go, got %v", names)
	}
}

func TestClampPosition(t *testing.T) {
	content := []byte("hello\nworld\n")

	tests := []struct {
		name string
		in   Position
		want Position
	}{
		{"in bounds", Position{0, 3}, Position{0, 3}},
		{"past line end", Position{1, 99}, Position{1, 5}},
		{"past last line", Position{42, 0}, Position{2, 0}},
		{"line end is valid", Position{0, 5}, Position{0, 5}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ClampPosition(content, tt.in)
			if got != tt.want {
				t.Errorf("ClampPosition(%v) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestInBounds(t *testing.T) {
	content := []byte("ab\nc")
	if !InBounds(content, Position{1, 1}) {
		t.Error("Expected {1,1} in bounds")
	}
	if InBounds(content, Position{1, 2}) {
		t.Error("Expected {1,2} out of bounds")
	}
	if InBounds(content, Position{2, 0}) {
		t.Error("Expected line 2 out of bounds")
	}
}

func TestLanguageLookup(t *testing.T) {
	if _, ok := ByName("go"); !ok {
		t.Fatal("go language not registered")
	}
	lang, ok := ForFile("src/lib.rs")
	if !ok || lang.Name() != "rust" {
		t.Errorf("Expected rust for lib.rs, got %v ok=%v", lang, ok)
	}
	if _, ok := ForFile("README.md"); ok {
		t.Error("Expected no language for README.md")
	}
}

func TestParseGo(t *testing.T) {
	lang, _ := ByName("go")
	tree, err := lang.Parse(context.Background(), []byte("package main\n\nfunc main() {}\n"))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	defer tree.Close()
	if tree.RootNode().Type() != "source_file" {
		t.Errorf("Unexpected root node type %s", tree.RootNode().Type())
	}
	if tree.RootNode().HasError() {
		t.Error("Valid Go should parse without errors")
	}
}

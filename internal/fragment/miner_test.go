package fragment

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/henryhchchc/lsp-fuzz/internal/textdoc"
)

const goSample = `package sample

import "fmt"

func greet(name string) string {
	return fmt.Sprintf("hello %s", name)
}

func main() {
	fmt.Println(greet("world"))
}
`

const goBroken = "package broken\n\nfunc ( {{{\n"

func writeCorpus(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		path := filepath.Join(dir, name)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	return dir
}

func goMiner(t *testing.T) *Miner {
	t.Helper()
	lang, ok := textdoc.ByName("go")
	if !ok {
		t.Fatal("go language not registered")
	}
	return NewMiner(lang, 4, 24)
}

func TestMineDirExtractsCategories(t *testing.T) {
	dir := writeCorpus(t, map[string]string{"sample.go": goSample})

	ix, stats, err := goMiner(t).MineDir(context.Background(), dir)
	if err != nil {
		t.Fatalf("MineDir failed: %v", err)
	}
	if stats.FilesParsed != 1 {
		t.Errorf("Expected 1 file parsed, got %d", stats.FilesParsed)
	}

	for _, category := range []string{"function_declaration", "call_expression", "interpreted_string_literal"} {
		if len(ix.Lookup(category)) == 0 {
			t.Errorf("Expected fragments for category %s", category)
		}
	}
}

func TestMineDirSkipsNonLanguageFiles(t *testing.T) {
	dir := writeCorpus(t, map[string]string{
		"sample.go":  goSample,
		"notes.txt":  "not source code",
		"sub/aux.go": goSample,
	})

	_, stats, err := goMiner(t).MineDir(context.Background(), dir)
	if err != nil {
		t.Fatalf("MineDir failed: %v", err)
	}
	if stats.FilesParsed != 2 {
		t.Errorf("Expected 2 Go files parsed, got %d", stats.FilesParsed)
	}
}

func TestMiningIsDeterministic(t *testing.T) {
	dir := writeCorpus(t, map[string]string{
		"b.go": goSample,
		"a.go": "package a\n\nvar x = 1 + 2\n",
	})

	mine := func() []byte {
		ix, _, err := goMiner(t).MineDir(context.Background(), dir)
		if err != nil {
			t.Fatalf("MineDir failed: %v", err)
		}
		path := filepath.Join(t.TempDir(), "ix.fragments")
		if err := ix.Save(path); err != nil {
			t.Fatalf("Save failed: %v", err)
		}
		data, err := os.ReadFile(path)
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		return data
	}

	first := mine()
	second := mine()
	if !bytes.Equal(first, second) {
		t.Error("Mining the same file set twice must yield byte-identical indices")
	}
}

func TestIndexSaveLoadRoundTrip(t *testing.T) {
	dir := writeCorpus(t, map[string]string{"sample.go": goSample})
	ix, _, err := goMiner(t).MineDir(context.Background(), dir)
	if err != nil {
		t.Fatalf("MineDir failed: %v", err)
	}

	path := filepath.Join(t.TempDir(), "go.fragments")
	if err := ix.Save(path); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded.Language != "go" {
		t.Errorf("Expected language go, got %s", loaded.Language)
	}
	if loaded.Size() != ix.Size() {
		t.Errorf("Size mismatch: saved %d, loaded %d", ix.Size(), loaded.Size())
	}
	for _, category := range ix.Categories() {
		if len(loaded.Lookup(category)) != len(ix.Lookup(category)) {
			t.Errorf("Category %s count mismatch", category)
		}
	}
}

func TestBrokenFileIsSkippedNotFatal(t *testing.T) {
	// tree-sitter recovers from syntax errors, so a broken file still
	// parses; only unreadable files or parser failures skip. Both kinds
	// must leave the run alive.
	dir := writeCorpus(t, map[string]string{
		"ok.go":     goSample,
		"broken.go": goBroken,
	})

	ix, stats, err := goMiner(t).MineDir(context.Background(), dir)
	if err != nil {
		t.Fatalf("MineDir failed: %v", err)
	}
	if stats.FilesParsed+stats.FilesSkipped != 2 {
		t.Errorf("Every file must be counted, got parsed=%d skipped=%d", stats.FilesParsed, stats.FilesSkipped)
	}
	if ix.Size() == 0 {
		t.Error("Expected fragments from the intact file")
	}
}

func TestDuplicateFragmentsCollapse(t *testing.T) {
	ix := NewIndex("go")
	ix.add(Fragment{Category: "identifier", Arity: 0, Content: []byte("foo")})
	ix.add(Fragment{Category: "identifier", Arity: 0, Content: []byte("foo")})
	ix.add(Fragment{Category: "identifier", Arity: 0, Content: []byte("bar")})

	if got := len(ix.Lookup("identifier")); got != 2 {
		t.Errorf("Expected duplicates to collapse to 2 fragments, got %d", got)
	}
}

func TestLoadSetValidatesLanguageTag(t *testing.T) {
	ix := NewIndex("go")
	ix.add(Fragment{Category: "identifier", Content: []byte("x")})
	path := filepath.Join(t.TempDir(), "go.fragments")
	if err := ix.Save(path); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	if _, err := LoadSet(map[string]string{"rust": path}); err == nil {
		t.Error("Expected mismatched language tag to fail")
	}
	set, err := LoadSet(map[string]string{"go": path})
	if err != nil {
		t.Fatalf("LoadSet failed: %v", err)
	}
	if set.ForLanguage("go") == nil {
		t.Error("Expected go index in set")
	}
}

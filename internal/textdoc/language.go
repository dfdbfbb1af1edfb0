// Package textdoc models the fuzzer's virtual workspace: language-tagged
// text documents plus skeleton files, and the pluggable language parsing
// capability used by the fragment miner and the structural mutator.
package textdoc

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/golang"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/python"
	"github.com/smacker/go-tree-sitter/rust"
	"github.com/smacker/go-tree-sitter/typescript/typescript"
)

// Language is the language-specific parsing capability. The miner and the
// mutator depend only on this interface, never on a concrete grammar.
type Language interface {
	// Name is the stable language tag ("go", "python", ...).
	Name() string

	// Extensions lists file extensions (without dot) handled by this language.
	Extensions() []string

	// Parse parses content into a syntax tree. The returned tree must be
	// closed by the caller. Parse is safe for concurrent use.
	Parse(ctx context.Context, content []byte) (*sitter.Tree, error)
}

// treeSitterLanguage implements Language on top of a tree-sitter grammar.
type treeSitterLanguage struct {
	name       string
	extensions []string
	grammar    *sitter.Language
}

func (l *treeSitterLanguage) Name() string         { return l.name }
func (l *treeSitterLanguage) Extensions() []string { return l.extensions }

func (l *treeSitterLanguage) Parse(ctx context.Context, content []byte) (*sitter.Tree, error) {
	// tree-sitter parsers are not safe for concurrent use, so each call
	// gets its own. Parser construction is cheap relative to parsing.
	parser := sitter.NewParser()
	defer parser.Close()
	parser.SetLanguage(l.grammar)

	tree, err := parser.ParseCtx(ctx, nil, content)
	if err != nil {
		return nil, fmt.Errorf("parsing %s source: %w", l.name, err)
	}
	return tree, nil
}

var languages = map[string]Language{
	"go":         &treeSitterLanguage{name: "go", extensions: []string{"go"}, grammar: golang.GetLanguage()},
	"python":     &treeSitterLanguage{name: "python", extensions: []string{"py"}, grammar: python.GetLanguage()},
	"rust":       &treeSitterLanguage{name: "rust", extensions: []string{"rs"}, grammar: rust.GetLanguage()},
	"javascript": &treeSitterLanguage{name: "javascript", extensions: []string{"js", "mjs"}, grammar: javascript.GetLanguage()},
	"typescript": &treeSitterLanguage{name: "typescript", extensions: []string{"ts"}, grammar: typescript.GetLanguage()},
}

// ByName returns the language registered under the given tag.
func ByName(name string) (Language, bool) {
	lang, ok := languages[name]
	return lang, ok
}

// ForFile resolves a language from a file name's extension.
func ForFile(name string) (Language, bool) {
	ext := strings.TrimPrefix(filepath.Ext(name), ".")
	for _, lang := range languages {
		for _, e := range lang.Extensions() {
			if e == ext {
				return lang, true
			}
		}
	}
	return nil, false
}

// Names returns the registered language tags.
func Names() []string {
	names := make([]string, 0, len(languages))
	for name := range languages {
		names = append(names, name)
	}
	return names
}

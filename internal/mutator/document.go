package mutator

import (
	"context"
	"math/rand"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/henryhchchc/lsp-fuzz/internal/fragment"
	"github.com/henryhchchc/lsp-fuzz/internal/logging"
	"github.com/henryhchchc/lsp-fuzz/internal/textdoc"
)

// DocumentMutator is stage A: it transforms workspace files into
// structurally plausible but varied content.
type DocumentMutator struct {
	fragments   fragment.Set
	rng         *rand.Rand
	maxFileSize int
}

// DocReport describes what stage A did to the workspace.
type DocReport struct {
	File       string
	Operator   string
	Structural bool
	Result     Result
}

// NewDocumentMutator returns a stage-A mutator drawing from the given
// fragment indexes.
func NewDocumentMutator(fragments fragment.Set, rng *rand.Rand, maxFileSize int) *DocumentMutator {
	return &DocumentMutator{fragments: fragments, rng: rng, maxFileSize: maxFileSize}
}

// Mutate applies one mutation round to a random workspace file. When
// structural is set and a structural operator is inapplicable, the round
// falls back to byte-level mutation; the mutator never stalls.
func (dm *DocumentMutator) Mutate(ctx context.Context, ws *textdoc.Workspace) DocReport {
	names := ws.Names()
	if len(names) == 0 {
		return DocReport{Operator: "none", Result: Skipped("empty workspace")}
	}
	name := names[dm.rng.Intn(len(names))]
	file := ws.File(name)

	structural := file.IsSource() && dm.fragments.ForLanguage(file.Language) != nil
	if structural {
		report := dm.mutateStructural(ctx, file)
		if report.Result.Applied {
			return report
		}
		logging.MutateDebug("structural mutation of %s skipped (%s), falling back to bytes", name, report.Result.Reason)
	}

	content, result := byteMutate(dm.rng, file.Content, dm.maxFileSize)
	file.Content = content
	return DocReport{File: name, Operator: "byte", Structural: false, Result: result}
}

// MutateStructural forces a structural round on a specific file; used by the
// pipeline when the weights choose a fragment-based operator.
func (dm *DocumentMutator) mutateStructural(ctx context.Context, file *textdoc.File) DocReport {
	lang, ok := textdoc.ByName(file.Language)
	if !ok {
		return DocReport{File: file.Name, Operator: "structural", Structural: true, Result: Skipped("unknown language")}
	}
	ix := dm.fragments.ForLanguage(file.Language)
	if ix == nil {
		return DocReport{File: file.Name, Operator: "structural", Structural: true, Result: Skipped("no fragment index")}
	}

	// Structural operators require a successful reparse at selection time.
	tree, err := lang.Parse(ctx, file.Content)
	if err != nil {
		return DocReport{File: file.Name, Operator: "structural", Structural: true, Result: Skipped("reparse failed")}
	}
	defer tree.Close()

	var op string
	var result Result
	switch pick := dm.rng.Intn(10); {
	case pick < 4:
		op, result = "substitute", dm.substitute(file, tree, ix)
	case pick < 7:
		op, result = "splice", dm.splice(file, tree, ix)
	case pick < 9:
		op, result = "remove-error", dm.removeErrorNode(file, tree)
	default:
		op, result = "drop-node", dm.dropNode(file, tree)
	}
	return DocReport{File: file.Name, Operator: op, Structural: true, Result: result}
}

// substitute replaces a parseable subtree with a same-category fragment.
func (dm *DocumentMutator) substitute(file *textdoc.File, tree *sitter.Tree, ix *fragment.Index) Result {
	nodes := textdoc.NamedPreOrder(tree.RootNode())
	if len(nodes) == 0 {
		return Skipped("no named nodes")
	}

	// Random probe order over the candidate nodes.
	order := dm.rng.Perm(len(nodes))
	for _, i := range order {
		node := nodes[i]
		frags := ix.Lookup(node.Type())
		if len(frags) == 0 {
			continue
		}
		frag := frags[dm.rng.Intn(len(frags))]
		nodeLen := int(node.EndByte() - node.StartByte())
		if len(file.Content)-nodeLen+len(frag.Content) > dm.maxFileSize {
			return Skipped("size cap")
		}
		file.Content = spliceBytes(file.Content, int(node.StartByte()), int(node.EndByte()), frag.Content)
		return Applied()
	}
	return Skipped("no category match")
}

// splice inserts a fragment at a node boundary without removing content.
func (dm *DocumentMutator) splice(file *textdoc.File, tree *sitter.Tree, ix *fragment.Index) Result {
	categories := ix.Categories()
	if len(categories) == 0 {
		return Skipped("empty index")
	}
	frags := ix.Lookup(categories[dm.rng.Intn(len(categories))])
	if len(frags) == 0 {
		return Skipped("empty category")
	}
	frag := frags[dm.rng.Intn(len(frags))]

	insertion := make([]byte, 0, len(frag.Content)+1)
	insertion = append(insertion, frag.Content...)
	insertion = append(insertion, '\n')
	if len(file.Content)+len(insertion) > dm.maxFileSize {
		return Skipped("size cap")
	}

	nodes := textdoc.NamedPreOrder(tree.RootNode())
	if len(nodes) == 0 {
		return Skipped("no insertion points")
	}
	at := int(nodes[dm.rng.Intn(len(nodes))].StartByte())
	file.Content = spliceBytes(file.Content, at, at, insertion)
	return Applied()
}

// removeErrorNode drops a subtree the parser flagged as an error.
func (dm *DocumentMutator) removeErrorNode(file *textdoc.File, tree *sitter.Tree) Result {
	var errorNodes []*sitter.Node
	for _, n := range textdoc.PreOrder(tree.RootNode()) {
		if n.IsError() || n.IsMissing() {
			errorNodes = append(errorNodes, n)
		}
	}
	if len(errorNodes) == 0 {
		return Skipped("no error nodes")
	}
	node := errorNodes[dm.rng.Intn(len(errorNodes))]
	file.Content = spliceBytes(file.Content, int(node.StartByte()), int(node.EndByte()), nil)
	return Applied()
}

// dropNode deletes a random named subtree (a reduction operator).
func (dm *DocumentMutator) dropNode(file *textdoc.File, tree *sitter.Tree) Result {
	nodes := textdoc.NamedPreOrder(tree.RootNode())
	// Skip the root: dropping it would empty the file.
	if len(nodes) < 2 {
		return Skipped("nothing to drop")
	}
	node := nodes[1+dm.rng.Intn(len(nodes)-1)]
	file.Content = spliceBytes(file.Content, int(node.StartByte()), int(node.EndByte()), nil)
	return Applied()
}

// spliceBytes replaces content[start:end] with replacement, copying into a
// fresh slice.
func spliceBytes(content []byte, start, end int, replacement []byte) []byte {
	out := make([]byte, 0, len(content)-(end-start)+len(replacement))
	out = append(out, content[:start]...)
	out = append(out, replacement...)
	out = append(out, content[end:]...)
	return out
}

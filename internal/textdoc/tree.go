package textdoc

import sitter "github.com/smacker/go-tree-sitter"

// PreOrder returns every node of the tree rooted at node in pre-order.
func PreOrder(node *sitter.Node) []*sitter.Node {
	var nodes []*sitter.Node
	var walk func(*sitter.Node)
	walk = func(n *sitter.Node) {
		nodes = append(nodes, n)
		for i := 0; i < int(n.ChildCount()); i++ {
			walk(n.Child(i))
		}
	}
	walk(node)
	return nodes
}

// NamedPreOrder returns the named nodes in pre-order, skipping anonymous
// tokens like punctuation.
func NamedPreOrder(node *sitter.Node) []*sitter.Node {
	var nodes []*sitter.Node
	for _, n := range PreOrder(node) {
		if n.IsNamed() {
			nodes = append(nodes, n)
		}
	}
	return nodes
}

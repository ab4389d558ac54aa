package syntax

import (
	"bufio"
	"fmt"
	"io"
	"iter"
	"strings"

	"github.com/dhamidi/arbor/grammar"
)

// Tree is a parsed document. It is immutable; Edit returns a new tree.
type Tree struct {
	root    *Subtree
	lang    *grammar.Language
	version int
}

// NewTree wraps a root subtree.
func NewTree(root *Subtree, lang *grammar.Language) *Tree {
	return &Tree{root: root, lang: lang}
}

// Root returns the root subtree.
func (t *Tree) Root() *Subtree { return t.root }

// RootNode returns the positioned root.
func (t *Tree) RootNode() Node {
	if t == nil || t.root == nil {
		return Node{}
	}
	return Node{tree: t, st: t.root}
}

func (t *Tree) Language() *grammar.Language { return t.lang }

// Version counts the edits applied since the tree was parsed.
func (t *Tree) Version() int { return t.version }

// Len returns the length of the source the tree covers.
func (t *Tree) Len() int {
	if t.root == nil {
		return 0
	}
	return t.root.size.Bytes
}

// Copy returns a tree sharing all subtrees with t.
func (t *Tree) Copy() *Tree {
	c := *t
	return &c
}

func (t *Tree) Walk() *Cursor { return t.RootNode().Walk() }

func (t *Tree) String() string { return t.RootNode().String() }

// Equal compares the shape of two trees.
func (t *Tree) Equal(o *Tree) bool { return Equal(t.root, o.root) }

// Leaves yields every leaf in document order.
func (t *Tree) Leaves() iter.Seq[Node] {
	return func(yield func(Node) bool) {
		c := t.Walk()
		for {
			if c.GotoFirstChild() {
				continue
			}
			if !yield(c.Node()) {
				return
			}
			for !c.GotoNextSibling() {
				if !c.GotoParent() {
					return
				}
			}
		}
	}
}

// Print writes the tree in bracket form: leaves as kind[start:end] and
// inner nodes as kind[child, ...]. Anonymous kinds are quoted. When src
// is given, extras made only of white space are left out.
func (t *Tree) Print(w io.Writer, src []byte) error {
	bw := bufio.NewWriter(w)
	if !t.RootNode().IsNull() {
		printNode(bw, t.RootNode(), src)
	}
	bw.WriteByte('\n')
	return bw.Flush()
}

func printNode(w *bufio.Writer, n Node, src []byte) {
	kind := n.Kind()
	if !n.IsNamed() {
		kind = quote(kind)
	}
	if n.IsMissing() {
		kind = "MISSING " + kind
	}
	w.WriteString(kind)
	if n.ChildCount() == 0 {
		fmt.Fprintf(w, "[%d:%d]", n.StartByte(), n.EndByte())
		return
	}
	w.WriteByte('[')
	first := true
	for _, c := range n.Children() {
		if src != nil && c.IsExtra() && c.ChildCount() == 0 && strings.TrimSpace(c.Content(src)) == "" {
			continue
		}
		if !first {
			w.WriteString(", ")
		}
		first = false
		printNode(w, c, src)
	}
	w.WriteByte(']')
}

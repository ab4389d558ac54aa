package syntax

import (
	"strings"

	"github.com/dhamidi/arbor/grammar"
)

// Node is a positioned view of a Subtree inside a Tree. The zero Node is
// the null node returned when navigation runs off the tree.
type Node struct {
	tree   *Tree
	st     *Subtree
	start  Length
	parent *Node
	index  int
}

// IsNull reports whether n is the null node.
func (n Node) IsNull() bool { return n.st == nil }

// Subtree returns the storage behind n.
func (n Node) Subtree() *Subtree { return n.st }

// Tree returns the tree n belongs to.
func (n Node) Tree() *Tree { return n.tree }

func (n Node) Symbol() grammar.Symbol { return n.st.symbol }

// Kind returns the name of the node's symbol.
func (n Node) Kind() string {
	if n.st == nil {
		return ""
	}
	return n.tree.lang.SymbolName(n.st.symbol)
}

func (n Node) IsNamed() bool    { return n.st.IsNamed() }
func (n Node) IsError() bool    { return n.st.IsError() }
func (n Node) IsMissing() bool  { return n.st.IsMissing() }
func (n Node) IsExtra() bool    { return n.st.IsExtra() }
func (n Node) HasError() bool   { return n.st.HasError() }
func (n Node) HasChanges() bool { return n.st.HasChanges() }

func (n Node) StartByte() int    { return n.start.Bytes }
func (n Node) EndByte() int      { return n.start.Bytes + n.st.size.Bytes }
func (n Node) StartPoint() Point { return n.start.Extent }
func (n Node) EndPoint() Point   { return n.start.Add(n.st.size).Extent }

func (n Node) Range() Range {
	return Range{
		StartByte:  n.StartByte(),
		EndByte:    n.EndByte(),
		StartPoint: n.StartPoint(),
		EndPoint:   n.EndPoint(),
	}
}

// Content returns the source text covered by n.
func (n Node) Content(src []byte) string {
	end := min(n.EndByte(), len(src))
	if n.StartByte() >= end {
		return ""
	}
	return string(src[n.StartByte():end])
}

func (n Node) ChildCount() int {
	if n.st == nil {
		return 0
	}
	return len(n.st.children)
}

// Child returns the i-th child, or the null node.
func (n Node) Child(i int) Node {
	if n.st == nil || i < 0 || i >= len(n.st.children) {
		return Node{}
	}
	pos := n.start
	for _, c := range n.st.children[:i] {
		pos = pos.Add(c.size)
	}
	return n.child(i, pos)
}

func (n Node) child(i int, pos Length) Node {
	parent := n
	return Node{tree: n.tree, st: n.st.children[i], start: pos, parent: &parent, index: i}
}

// Children returns all children.
func (n Node) Children() []Node {
	if n.st == nil {
		return nil
	}
	out := make([]Node, 0, len(n.st.children))
	parent := n
	pos := n.start
	for i, c := range n.st.children {
		out = append(out, Node{tree: n.tree, st: c, start: pos, parent: &parent, index: i})
		pos = pos.Add(c.size)
	}
	return out
}

func (n Node) NamedChildCount() int {
	if n.st == nil {
		return 0
	}
	return n.st.namedCount
}

// NamedChild returns the i-th named child, or the null node.
func (n Node) NamedChild(i int) Node {
	for _, c := range n.Children() {
		if c.IsNamed() {
			if i == 0 {
				return c
			}
			i--
		}
	}
	return Node{}
}

// ChildByFieldName returns the first child with the given field.
func (n Node) ChildByFieldName(name string) Node {
	id, ok := n.tree.lang.FieldIDForName(name)
	if !ok || n.st == nil || n.st.fields == nil {
		return Node{}
	}
	return n.ChildByFieldID(id)
}

func (n Node) ChildByFieldID(id grammar.FieldID) Node {
	if n.st == nil || n.st.fields == nil {
		return Node{}
	}
	pos := n.start
	for i, c := range n.st.children {
		if n.st.fields[i] == id {
			return n.child(i, pos)
		}
		pos = pos.Add(c.size)
	}
	return Node{}
}

// ChildrenByFieldName returns every child with the given field.
func (n Node) ChildrenByFieldName(name string) []Node {
	id, ok := n.tree.lang.FieldIDForName(name)
	if !ok || n.st == nil || n.st.fields == nil {
		return nil
	}
	var out []Node
	for _, c := range n.Children() {
		if n.st.fields[c.index] == id {
			out = append(out, c)
		}
	}
	return out
}

// FieldNameForChild returns the field of child i, or "".
func (n Node) FieldNameForChild(i int) string {
	if n.st == nil || i < 0 || i >= len(n.st.children) {
		return ""
	}
	return n.tree.lang.FieldName(n.st.Field(i))
}

// FieldName returns the field n occupies in its parent, or "".
func (n Node) FieldName() string {
	if n.parent == nil {
		return ""
	}
	return n.parent.FieldNameForChild(n.index)
}

// Parent returns the parent, or the null node for the root.
func (n Node) Parent() Node {
	if n.parent == nil {
		return Node{}
	}
	return *n.parent
}

func (n Node) NextSibling() Node {
	if n.parent == nil {
		return Node{}
	}
	if n.index+1 >= len(n.parent.st.children) {
		return Node{}
	}
	return n.parent.child(n.index+1, n.start.Add(n.st.size))
}

func (n Node) PrevSibling() Node {
	if n.parent == nil {
		return Node{}
	}
	return n.parent.Child(n.index - 1)
}

func (n Node) NextNamedSibling() Node {
	for s := n.NextSibling(); !s.IsNull(); s = s.NextSibling() {
		if s.IsNamed() {
			return s
		}
	}
	return Node{}
}

// Equal reports whether a and b are the same node of the same tree.
func (n Node) Equal(o Node) bool {
	return n.tree == o.tree && n.st == o.st && n.start == o.start
}

// DescendantForByteRange returns the smallest node spanning [start, end).
func (n Node) DescendantForByteRange(start, end int) Node {
	return n.descendantFor(start, end, false)
}

// NamedDescendantForByteRange returns the smallest named node spanning
// [start, end).
func (n Node) NamedDescendantForByteRange(start, end int) Node {
	return n.descendantFor(start, end, true)
}

func (n Node) descendantFor(start, end int, named bool) Node {
	if n.st == nil || start < n.StartByte() || end > n.EndByte() {
		return Node{}
	}
	best := n
	cur := n
outer:
	for {
		pos := cur.start
		for i, c := range cur.st.children {
			childStart := pos
			pos = pos.Add(c.size)
			if pos.Bytes < end || pos.Bytes <= start {
				continue
			}
			if start < childStart.Bytes {
				break
			}
			cur = cur.child(i, childStart)
			if !named || cur.IsNamed() {
				best = cur
			}
			continue outer
		}
		return best
	}
}

// Walk returns a cursor positioned at n.
func (n Node) Walk() *Cursor {
	return newCursor(n)
}

// String renders n as an S-expression of its named descendants.
func (n Node) String() string {
	if n.st == nil {
		return "()"
	}
	var b strings.Builder
	n.writeSexp(&b, "")
	return b.String()
}

func (n Node) writeSexp(b *strings.Builder, field string) {
	if field != "" {
		b.WriteString(field)
		b.WriteString(": ")
	}
	b.WriteByte('(')
	if n.IsMissing() {
		b.WriteString("MISSING ")
		if n.IsNamed() {
			b.WriteString(n.Kind())
		} else {
			b.WriteString(quote(n.Kind()))
		}
		b.WriteByte(')')
		return
	}
	b.WriteString(n.Kind())
	for i, c := range n.Children() {
		if !c.IsNamed() && !c.IsMissing() {
			continue
		}
		b.WriteByte(' ')
		c.writeSexp(b, n.FieldNameForChild(i))
	}
	b.WriteByte(')')
}

func quote(s string) string {
	var b strings.Builder
	b.WriteByte('"')
	for _, r := range s {
		switch r {
		case '"', '\\':
			b.WriteByte('\\')
			b.WriteRune(r)
		case '\n':
			b.WriteString(`\n`)
		case '\t':
			b.WriteString(`\t`)
		default:
			b.WriteRune(r)
		}
	}
	b.WriteByte('"')
	return b.String()
}

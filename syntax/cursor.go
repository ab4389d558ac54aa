package syntax

// Cursor walks a tree without allocating a Node per step. It cannot move
// above the node it was created at.
type Cursor struct {
	stack []Node
}

func newCursor(n Node) *Cursor {
	c := &Cursor{}
	c.Reset(n)
	return c
}

// Reset moves the cursor to n and makes it the new top.
func (c *Cursor) Reset(n Node) {
	c.stack = append(c.stack[:0], n)
}

// Node returns the current node.
func (c *Cursor) Node() Node { return c.stack[len(c.stack)-1] }

// Depth returns how far the cursor is below its starting node.
func (c *Cursor) Depth() int { return len(c.stack) - 1 }

// FieldName returns the field of the current node in its parent.
func (c *Cursor) FieldName() string {
	if len(c.stack) < 2 {
		return ""
	}
	cur := c.stack[len(c.stack)-1]
	return c.stack[len(c.stack)-2].FieldNameForChild(cur.index)
}

func (c *Cursor) GotoFirstChild() bool {
	cur := c.Node()
	if cur.ChildCount() == 0 {
		return false
	}
	c.push(cur, 0, cur.start)
	return true
}

func (c *Cursor) push(parent Node, i int, pos Length) {
	p := new(Node)
	*p = parent
	c.stack = append(c.stack, Node{tree: parent.tree, st: parent.st.children[i], start: pos, parent: p, index: i})
}

func (c *Cursor) GotoNextSibling() bool {
	if len(c.stack) < 2 {
		return false
	}
	cur := c.stack[len(c.stack)-1]
	if cur.index+1 >= len(cur.parent.st.children) {
		return false
	}
	c.stack[len(c.stack)-1] = Node{
		tree:   cur.tree,
		st:     cur.parent.st.children[cur.index+1],
		start:  cur.start.Add(cur.st.size),
		parent: cur.parent,
		index:  cur.index + 1,
	}
	return true
}

func (c *Cursor) GotoParent() bool {
	if len(c.stack) < 2 {
		return false
	}
	c.stack = c.stack[:len(c.stack)-1]
	return true
}

// GotoFirstChildForByte moves to the first child that ends after b and
// returns its index, or -1 if there is none.
func (c *Cursor) GotoFirstChildForByte(b int) int {
	cur := c.Node()
	pos := cur.start
	for i, child := range cur.st.children {
		end := pos.Add(child.size)
		if end.Bytes > b {
			c.push(cur, i, pos)
			return i
		}
		pos = end
	}
	return -1
}

package parser

import "github.com/dhamidi/arbor/syntax"

type reuseEntry struct {
	st    *syntax.Subtree
	start int
	index int
}

// reuser walks the subtrees of an edited tree in document order so the
// parser can offer them at its current position.
type reuser struct {
	stack []reuseEntry
}

func (r *reuser) reset(t *syntax.Tree) {
	r.stack = r.stack[:0]
	if t == nil || t.Root() == nil {
		return
	}
	r.stack = append(r.stack, reuseEntry{st: t.Root()})
	// The root carries the top-level extras and is never reused whole.
	if !r.descend() {
		r.stack = r.stack[:0]
	}
}

func (r *reuser) top() reuseEntry { return r.stack[len(r.stack)-1] }

// candidate returns the outermost old subtree starting exactly at pos,
// or nil when none does.
func (r *reuser) candidate(pos int) *syntax.Subtree {
	for len(r.stack) > 0 {
		e := r.top()
		end := e.start + e.st.Size().Bytes
		switch {
		case end <= pos:
			r.advance()
		case e.start < pos:
			r.breakdown()
		case e.start > pos:
			return nil
		default:
			return e.st
		}
	}
	return nil
}

// breakdown replaces the current subtree by its first child, or moves
// past it when it is a leaf.
func (r *reuser) breakdown() {
	if !r.descend() {
		r.advance()
	}
}

func (r *reuser) descend() bool {
	e := r.top()
	if e.st.ChildCount() == 0 {
		return false
	}
	r.stack = append(r.stack, reuseEntry{st: e.st.Child(0), start: e.start})
	return true
}

// advance moves to the subtree following the current one.
func (r *reuser) advance() {
	for len(r.stack) > 0 {
		e := r.top()
		r.stack = r.stack[:len(r.stack)-1]
		if len(r.stack) == 0 {
			return
		}
		parent := r.top().st
		if next := e.index + 1; next < parent.ChildCount() {
			r.stack = append(r.stack, reuseEntry{
				st:    parent.Child(next),
				start: e.start + e.st.Size().Bytes,
				index: next,
			})
			return
		}
	}
}

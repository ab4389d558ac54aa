package syntax

import "slices"

type relEdit struct {
	start, oldEnd, newEnd Length
}

// Edit returns a tree reflecting e. Subtrees whose text, or the text
// examined past their end, overlaps the edit are copied with new sizes
// and marked changed; everything else is shared with t, which remains
// valid.
func (t *Tree) Edit(e Edit) *Tree {
	if t.root == nil {
		return t
	}
	root := editSubtree(t.root, relEdit{start: e.start(), oldEnd: e.oldEnd(), newEnd: e.newEnd()})
	return &Tree{root: root, lang: t.lang, version: t.version + 1}
}

func editSubtree(s *Subtree, e relEdit) *Subtree {
	pureInsertion := e.oldEnd.Bytes == e.start.Bytes

	c := *s
	c.flags |= flagChanged
	if e.start.Bytes < s.size.Bytes || (e.start.Bytes == s.size.Bytes && pureInsertion) {
		c.size = e.newEnd.Add(satSub(s.size, e.oldEnd))
	}
	if len(s.children) == 0 {
		return &c
	}

	c.children = slices.Clone(s.children)
	var left, right Length
	for i, child := range s.children {
		left = right
		right = left.Add(child.size)

		if right.Bytes+child.lookahead < e.start.Bytes {
			continue
		}
		if left.Bytes > e.oldEnd.Bytes ||
			(left.Bytes == e.oldEnd.Bytes && child.size.Bytes > 0 && i > 0) {
			break
		}

		ce := relEdit{
			start:  satSub(e.start, left),
			oldEnd: satSub(e.oldEnd, left),
			newEnd: satSub(e.newEnd, left),
		}
		// Inserted text goes to the first child that touches the edit;
		// the children after it only shrink.
		if right.Bytes > e.start.Bytes || (right.Bytes == e.start.Bytes && pureInsertion) {
			e.newEnd = e.start
			pureInsertion = false
		} else {
			ce.oldEnd = ce.start
			ce.newEnd = ce.start
		}
		c.children[i] = editSubtree(child, ce)
	}
	return &c
}

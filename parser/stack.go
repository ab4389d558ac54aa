package parser

import (
	"slices"

	"github.com/dhamidi/arbor/grammar"
	"github.com/dhamidi/arbor/syntax"
)

// The graph-structured stack lives in an arena that is reset for every
// parse. Nodes are addressed by index; a node with several links is a
// point where versions that took different paths reached the same state
// at the same position.
type stackLink struct {
	prev int
	tree *syntax.Subtree
}

type stackNode struct {
	state   grammar.StateID
	pos     syntax.Length
	ext     string
	links   []stackLink
	cost    int
	dynPrec int
}

type stack struct {
	nodes []stackNode
}

func (s *stack) reset(ext string) int {
	clear(s.nodes)
	s.nodes = append(s.nodes[:0], stackNode{ext: ext})
	return 0
}

func (s *stack) push(prev int, tree *syntax.Subtree, state grammar.StateID, ext string) int {
	base := s.nodes[prev]
	s.nodes = append(s.nodes, stackNode{
		state:   state,
		pos:     base.pos.Add(tree.Size()),
		ext:     ext,
		links:   []stackLink{{prev: prev, tree: tree}},
		cost:    base.cost + tree.ErrorCost(),
		dynPrec: base.dynPrec + tree.DynamicPrecedence(),
	})
	return len(s.nodes) - 1
}

// link joins the path (prev, tree) into node i. A second path through the
// same predecessor keeps whichever tree ranks better.
func (s *stack) link(i, prev int, tree *syntax.Subtree) {
	n := &s.nodes[i]
	replaced := false
	for j, l := range n.links {
		if l.prev != prev {
			continue
		}
		if !better(tree, l.tree) {
			return
		}
		n.links[j].tree = tree
		replaced = true
		break
	}
	if !replaced {
		n.links = append(n.links, stackLink{prev: prev, tree: tree})
	}
	n.cost, n.dynPrec = 0, 0
	for j, l := range n.links {
		base := s.nodes[l.prev]
		cost := base.cost + l.tree.ErrorCost()
		prec := base.dynPrec + l.tree.DynamicPrecedence()
		if j == 0 || cost < n.cost {
			n.cost = cost
		}
		if j == 0 || prec > n.dynPrec {
			n.dynPrec = prec
		}
	}
}

type popPath struct {
	base     int
	children []*syntax.Subtree
	trailing []*syntax.Subtree
	ext      string
}

// pop returns up to limit paths that remove count non-extra subtrees
// from node i. Extras on top of the stack are returned separately as
// trailing; extras below the first child stay on the stack.
func (s *stack) pop(i, count, limit int) []popPath {
	if count == 0 {
		return []popPath{{base: i, ext: s.nodes[i].ext}}
	}
	var out []popPath
	var walk func(node int, rev []*syntax.Subtree, remaining, trailing int, ext string)
	walk = func(node int, rev []*syntax.Subtree, remaining, trailing int, ext string) {
		for _, l := range s.nodes[node].links {
			if len(out) >= limit {
				return
			}
			rem, tr, e := remaining, trailing, ext
			switch {
			case l.tree.IsExtra() && rem == count:
				tr++
			case l.tree.IsExtra():
			default:
				if rem == count {
					e = s.nodes[node].ext
				}
				rem--
			}
			next := append(rev[:len(rev):len(rev)], l.tree)
			if rem == 0 {
				out = append(out, makePath(l.prev, next, tr, e))
				continue
			}
			walk(l.prev, next, rem, tr, e)
		}
	}
	walk(i, nil, count, 0, "")
	return out
}

func makePath(base int, rev []*syntax.Subtree, trailing int, ext string) popPath {
	p := popPath{base: base, ext: ext}
	p.children = make([]*syntax.Subtree, 0, len(rev)-trailing)
	for j := len(rev) - 1; j >= trailing; j-- {
		p.children = append(p.children, rev[j])
	}
	for j := trailing - 1; j >= 0; j-- {
		p.trailing = append(p.trailing, rev[j])
	}
	return p
}

// below returns the subtrees between the bottom of the stack and node i
// along first links, bottom first.
func (s *stack) below(i int) []*syntax.Subtree {
	var rev []*syntax.Subtree
	for len(s.nodes[i].links) > 0 {
		l := s.nodes[i].links[0]
		rev = append(rev, l.tree)
		i = l.prev
	}
	out := make([]*syntax.Subtree, len(rev))
	for j, t := range rev {
		out[len(rev)-1-j] = t
	}
	return out
}

// trailing returns the node below the extras on top of node i, and those
// extras bottom first. ERROR nodes are not counted as trailing extras.
func (s *stack) trailing(i int) (int, []*syntax.Subtree) {
	var extras []*syntax.Subtree
	for len(s.nodes[i].links) > 0 {
		l := s.nodes[i].links[0]
		if !l.tree.IsExtra() || l.tree.IsError() {
			break
		}
		extras = append(extras, l.tree)
		i = l.prev
	}
	slices.Reverse(extras)
	return i, extras
}

type frame struct {
	node  int
	state grammar.StateID
}

// frames returns the states along the first path to node i, bottom
// first. Nodes reached by pushing an extra repeat the state below them
// and are left out.
func (s *stack) frames(i int) []frame {
	var rev []frame
	for {
		n := s.nodes[i]
		if len(n.links) == 0 {
			rev = append(rev, frame{node: i, state: n.state})
			break
		}
		l := n.links[0]
		if !l.tree.IsExtra() {
			rev = append(rev, frame{node: i, state: n.state})
		}
		i = l.prev
	}
	out := make([]frame, len(rev))
	for j, f := range rev {
		out[len(rev)-1-j] = f
	}
	return out
}

// better ranks two subtrees for the same stack position: fewer errors,
// then higher dynamic precedence, then the earlier production.
func better(a, b *syntax.Subtree) bool {
	if a.ErrorCost() != b.ErrorCost() {
		return a.ErrorCost() < b.ErrorCost()
	}
	if a.DynamicPrecedence() != b.DynamicPrecedence() {
		return a.DynamicPrecedence() > b.DynamicPrecedence()
	}
	if !a.IsLeaf() && !b.IsLeaf() && a.Production() != b.Production() {
		return a.Production() < b.Production()
	}
	return false
}

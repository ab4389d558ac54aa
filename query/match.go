package query

import (
	"slices"

	"github.com/dhamidi/arbor/syntax"
)

// maxSteps bounds the backtracking work spent on one pattern at one node.
const maxSteps = 1 << 16

// matchAt appends the matches of every pattern that starts at n. A pattern
// yields at most one match per start node: the first assignment found by
// greedy quantifiers and in-order alternatives whose predicates hold.
func (q *Query) matchAt(n syntax.Node, src []byte, out []QueryMatch) []QueryMatch {
	for i := range q.patterns {
		root := &q.patterns[i]
		m := matcher{q: q, src: src}
		m.start(root.pattern, n, func() bool {
			if !m.check(root.predicates) {
				return false
			}
			out = append(out, QueryMatch{PatternIndex: i, Captures: slices.Clone(m.caps)})
			return true
		})
	}
	return out
}

type matcher struct {
	q     *Query
	src   []byte
	caps  []Capture
	steps int
}

// start matches a top-level pattern at n. Groups and repeated patterns
// continue over n's following siblings.
func (m *matcher) start(p *pattern, n syntax.Node, done func() bool) bool {
	if p.kind != kindGroup && p.quant == quantOne {
		return m.node(p, n, done)
	}
	siblings := []syntax.Node{n}
	for s := n.NextSibling(); !s.IsNull(); s = s.NextSibling() {
		siblings = append(siblings, s)
	}
	return m.seq([]*pattern{p}, siblings, 0, true, func(int) bool { return done() })
}

// node matches p against n itself and then its children, calling k on
// success. k returning false makes the matcher try the next assignment.
func (m *matcher) node(p *pattern, n syntax.Node, k func() bool) bool {
	m.steps++
	if m.steps > maxSteps {
		return false
	}
	if p.kind == kindAlt {
		for _, alt := range p.alts {
			if m.node(alt, n, func() bool { return m.captured(p, n, k) }) {
				return true
			}
		}
		return false
	}
	if !m.accepts(p, n) {
		return false
	}
	return m.captured(p, n, func() bool {
		return m.seq(p.children, n.Children(), 0, false, func(int) bool { return k() })
	})
}

func (m *matcher) accepts(p *pattern, n syntax.Node) bool {
	switch p.kind {
	case kindWildcard:
		if p.named && !n.IsNamed() {
			return false
		}
	case kindMissing:
		if !n.IsMissing() {
			return false
		}
	case kindSymbol:
		if n.Symbol() != p.sym || p.missing && !n.IsMissing() {
			return false
		}
	default:
		return false
	}
	for _, f := range p.negated {
		if !n.ChildByFieldID(f).IsNull() {
			return false
		}
	}
	return true
}

func (m *matcher) captured(p *pattern, n syntax.Node, k func() bool) bool {
	mark := len(m.caps)
	for _, id := range p.captures {
		m.caps = append(m.caps, Capture{Index: id, Name: m.q.captureNames[id], Node: n})
	}
	if k() {
		return true
	}
	m.caps = m.caps[:mark]
	return false
}

// seq matches ps as an ordered subsequence of nodes from index j. When
// anchored, the first element must start exactly at j. k receives the
// index after the last consumed node.
func (m *matcher) seq(ps []*pattern, nodes []syntax.Node, j int, anchored bool, k func(int) bool) bool {
	if len(ps) == 0 {
		return k(j)
	}
	p, rest := ps[0], ps[1:]
	next := func(at int) bool { return m.seq(rest, nodes, at, false, k) }
	switch p.quant {
	case quantOptional:
		return m.one(p, nodes, j, anchored, next) || m.seq(rest, nodes, j, anchored, k)
	case quantStar:
		return m.repeat(p, nodes, j, anchored, next) || m.seq(rest, nodes, j, anchored, k)
	case quantPlus:
		return m.repeat(p, nodes, j, anchored, next)
	default:
		return m.one(p, nodes, j, anchored, next)
	}
}

// one matches a single occurrence of p at or after j.
func (m *matcher) one(p *pattern, nodes []syntax.Node, j int, anchored bool, k func(int) bool) bool {
	last := len(nodes) - 1
	if anchored {
		last = min(last, j)
	}
	for x := j; x <= last; x++ {
		if m.elem(p, nodes, x, k) {
			return true
		}
	}
	return false
}

// repeat matches one or more occurrences of p, preferring more.
func (m *matcher) repeat(p *pattern, nodes []syntax.Node, j int, anchored bool, k func(int) bool) bool {
	return m.one(p, nodes, j, anchored, func(at int) bool {
		return m.repeat(p, nodes, at, false, k) || k(at)
	})
}

// elem matches p with its first node at nodes[x].
func (m *matcher) elem(p *pattern, nodes []syntax.Node, x int, k func(int) bool) bool {
	if p.kind == kindGroup {
		return m.seq(p.children, nodes, x, true, func(at int) bool {
			return at > x && k(at)
		})
	}
	n := nodes[x]
	if p.field != 0 && n.FieldName() != p.fieldName {
		return false
	}
	return m.node(p, n, func() bool { return k(x + 1) })
}

// check runs predicates in order against the current captures, stopping
// at the first that fails.
func (m *matcher) check(preds []predicate) bool {
	for _, pred := range preds {
		if !m.holds(pred) {
			return false
		}
	}
	return true
}

func (m *matcher) texts(capture int) []string {
	var out []string
	for _, c := range m.caps {
		if c.Index == capture {
			out = append(out, c.Node.Content(m.src))
		}
	}
	return out
}

// holds evaluates pred. Every node bound to the capture must satisfy it;
// a capture with no nodes satisfies everything.
func (m *matcher) holds(pred predicate) bool {
	texts := m.texts(pred.capture)
	want := pred.text
	if pred.op == opEq && pred.other >= 0 {
		others := m.texts(pred.other)
		if len(others) == 0 {
			return true
		}
		want = others[0]
	}
	for _, t := range texts {
		var ok bool
		switch pred.op {
		case opEq:
			ok = t == want
		case opMatch:
			ok = pred.re.MatchString(t)
		case opAnyOf:
			ok = slices.Contains(pred.values, t)
		}
		if ok == pred.negate {
			return false
		}
	}
	return true
}

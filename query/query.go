// Package query finds patterns in syntax trees. Query text is a list of
// S-expression patterns:
//
//	(binary left: (number) @lhs operator: "+" !extra) @sum
//	[(comment) (ERROR)] @skip
//	((ident) @name (#match? @name "^[A-Z]"))
//
// Child patterns match an ordered subsequence of a node's children. Fields,
// negated fields, quantifiers (? * +), groups, alternations and the
// predicates #eq?, #not-eq?, #match?, #not-match?, #any-of? and
// #not-any-of? are supported.
package query

import (
	"cmp"
	"slices"

	"github.com/dhamidi/arbor/grammar"
	"github.com/dhamidi/arbor/syntax"
)

// Query is a compiled set of patterns for one language. It is immutable
// and safe for concurrent use.
type Query struct {
	lang         *grammar.Language
	patterns     []rootPattern
	captureNames []string
	captureIndex map[string]int
}

// Capture is one node bound to a capture name.
type Capture struct {
	Index int
	Name  string
	Node  syntax.Node
}

// QueryMatch is one successful match of a pattern.
type QueryMatch struct {
	PatternIndex int
	Captures     []Capture
}

// New compiles query text against lang. Malformed text yields a
// *QuerySyntaxError; names the language lacks yield a *QueryError.
func New(lang *grammar.Language, text string) (*Query, error) {
	q := &Query{lang: lang, captureIndex: map[string]int{}}
	p := &queryParser{lang: lang, src: text, q: q}
	if err := p.parse(); err != nil {
		return nil, err
	}
	return q, nil
}

func (q *Query) captureID(name string) int {
	if id, ok := q.captureIndex[name]; ok {
		return id
	}
	id := len(q.captureNames)
	q.captureNames = append(q.captureNames, name)
	q.captureIndex[name] = id
	return id
}

func (q *Query) Language() *grammar.Language { return q.lang }

func (q *Query) PatternCount() int { return len(q.patterns) }

// CaptureNames returns capture names indexed by Capture.Index.
func (q *Query) CaptureNames() []string { return slices.Clone(q.captureNames) }

func (q *Query) CaptureIndexForName(name string) (int, bool) {
	id, ok := q.captureIndex[name]
	return id, ok
}

// StartByteForPattern returns the offset of pattern i in the query text.
func (q *Query) StartByteForPattern(i int) int { return q.patterns[i].offset }

// MatchOption configures a Matches iterator.
type MatchOption func(*Matches)

// WithByteRange restricts matching to nodes that intersect [start, end).
// A negative end leaves the range open.
func WithByteRange(start, end int) MatchOption {
	return func(m *Matches) {
		m.start, m.end = start, end
	}
}

// WithMatchLimit stops the iterator after n matches.
func WithMatchLimit(n int) MatchOption {
	return func(m *Matches) {
		m.limit = n
	}
}

// Matches returns an iterator over the matches below and including n, in
// document order of the node each match starts at. For one start node,
// patterns are tried in the order they appear in the query.
func (q *Query) Matches(n syntax.Node, src []byte, opts ...MatchOption) *Matches {
	m := &Matches{q: q, root: n, src: src, end: -1}
	for _, opt := range opts {
		opt(m)
	}
	m.Reset()
	return m
}

// Captures returns the captures of every match, ordered by start byte.
// Captures starting at the same byte keep their match order.
func (q *Query) Captures(n syntax.Node, src []byte, opts ...MatchOption) []Capture {
	var out []Capture
	m := q.Matches(n, src, opts...)
	for {
		match, ok := m.Next()
		if !ok {
			break
		}
		out = append(out, match.Captures...)
	}
	slices.SortStableFunc(out, func(a, b Capture) int {
		return cmp.Compare(a.Node.StartByte(), b.Node.StartByte())
	})
	return out
}

// Matches walks a tree lazily. It is not safe for concurrent use.
type Matches struct {
	q     *Query
	root  syntax.Node
	src   []byte
	start int
	end   int // -1 for no upper bound
	limit int

	cursor  *syntax.Cursor
	begun   bool
	done    bool
	count   int
	pending []QueryMatch
}

// Reset rewinds the iterator to the first match.
func (m *Matches) Reset() {
	m.cursor = nil
	m.begun, m.done = false, m.root.IsNull()
	m.count = 0
	m.pending = m.pending[:0]
}

// Next returns the next match. The second result is false once the tree
// or the match limit is exhausted.
func (m *Matches) Next() (QueryMatch, bool) {
	for len(m.pending) == 0 {
		if m.done || m.limit > 0 && m.count >= m.limit {
			return QueryMatch{}, false
		}
		n, ok := m.advance()
		if !ok {
			m.done = true
			return QueryMatch{}, false
		}
		m.pending = m.q.matchAt(n, m.src, m.pending)
	}
	match := m.pending[0]
	m.pending = m.pending[1:]
	m.count++
	return match, true
}

func (m *Matches) inRange(n syntax.Node) bool {
	s, e := n.StartByte(), n.EndByte()
	if s == e {
		return s >= m.start && (m.end < 0 || s <= m.end)
	}
	return e > m.start && (m.end < 0 || s < m.end)
}

// advance moves to the next node in preorder that intersects the range.
func (m *Matches) advance() (syntax.Node, bool) {
	if !m.begun {
		m.begun = true
		m.cursor = m.root.Walk()
		if m.inRange(m.root) {
			return m.root, true
		}
		return syntax.Node{}, false
	}
	c := m.cursor
	if c.GotoFirstChild() {
		if n, ok := m.nextInRange(); ok {
			return n, true
		}
	} else if n, ok := m.nextUp(); ok {
		return n, true
	}
	return syntax.Node{}, false
}

// nextInRange skips siblings outside the range, climbing when a level is
// exhausted.
func (m *Matches) nextInRange() (syntax.Node, bool) {
	c := m.cursor
	for {
		if n := c.Node(); m.inRange(n) {
			return n, true
		}
		if m.end >= 0 && c.Node().StartByte() > m.end {
			if !c.GotoParent() {
				return syntax.Node{}, false
			}
			return m.nextUp()
		}
		if !c.GotoNextSibling() {
			if !c.GotoParent() {
				return syntax.Node{}, false
			}
			return m.nextUp()
		}
	}
}

// nextUp moves to the next sibling of the current node or of its nearest
// ancestor that has one.
func (m *Matches) nextUp() (syntax.Node, bool) {
	c := m.cursor
	for c.Depth() > 0 {
		if c.GotoNextSibling() {
			return m.nextInRange()
		}
		c.GotoParent()
	}
	return syntax.Node{}, false
}

package lexer

import "unicode/utf8"

// TokenSpec describes one token recognized by a Scanner.
type TokenSpec struct {
	Name    string
	Pattern *Pattern
}

// Match is the result of a Scan.
type Match struct {
	// Token is the index of the matched TokenSpec, or -1 if nothing matched.
	Token int
	// Length is the number of bytes matched.
	Length int
	// Lookahead is the number of bytes past the end of the match that
	// were examined to decide it. When nothing matched it counts from
	// offset. Reaching the end of input counts as one
	// extra byte, since appended text could extend the token.
	Lookahead int
}

// OK reports whether a token was matched.
func (m Match) OK() bool { return m.Token >= 0 }

type stateKind uint8

const (
	stateRune stateKind = iota
	stateSplit
	stateAccept
)

type nfaState struct {
	kind   stateKind
	ranges []rune // lo/hi pairs
	any    bool
	next   int
	split  []int // epsilon transitions
	accept int   // token index
}

// Scanner is a compiled set of token patterns. It is immutable and safe
// for concurrent use.
type Scanner struct {
	specs   []TokenSpec
	literal []bool
	states  []nfaState
	starts  []int
}

// Compile builds a Scanner recognizing every spec. Token order matters:
// at equal match length a literal token beats a pattern token, and then
// the token listed first wins.
func Compile(specs []TokenSpec) *Scanner {
	s := &Scanner{
		specs:   specs,
		literal: make([]bool, len(specs)),
		starts:  make([]int, len(specs)),
	}
	for i, spec := range specs {
		s.literal[i] = spec.Pattern.IsLiteral()
		accept := s.add(nfaState{kind: stateAccept, next: -1, accept: i})
		s.starts[i] = s.build(spec.Pattern, accept)
	}
	return s
}

// Len returns the number of tokens.
func (s *Scanner) Len() int { return len(s.specs) }

// Spec returns the i-th token spec.
func (s *Scanner) Spec(i int) TokenSpec { return s.specs[i] }

func (s *Scanner) add(st nfaState) int {
	s.states = append(s.states, st)
	return len(s.states) - 1
}

func (s *Scanner) split(outs ...int) int {
	return s.add(nfaState{kind: stateSplit, split: outs, next: -1})
}

// build returns the start state of a fragment matching p and continuing
// with next.
func (s *Scanner) build(p *Pattern, next int) int {
	switch p.Op {
	case OpEmpty:
		return next
	case OpLiteral:
		cur := next
		for i := len(p.Runes) - 1; i >= 0; i-- {
			r := p.Runes[i]
			cur = s.add(nfaState{ranges: []rune{r, r}, next: cur})
		}
		return cur
	case OpClass:
		return s.add(nfaState{ranges: p.Runes, next: next})
	case OpAny:
		return s.add(nfaState{any: true, next: next})
	case OpConcat:
		cur := next
		for i := len(p.Subs) - 1; i >= 0; i-- {
			cur = s.build(p.Subs[i], cur)
		}
		return cur
	case OpAlternate:
		outs := make([]int, len(p.Subs))
		for i, sub := range p.Subs {
			outs[i] = s.build(sub, next)
		}
		return s.split(outs...)
	case OpQuest:
		return s.split(s.build(p.Subs[0], next), next)
	case OpStar:
		loop := s.split()
		body := s.build(p.Subs[0], loop)
		s.states[loop].split = []int{body, next}
		return loop
	case OpPlus:
		loop := s.split()
		body := s.build(p.Subs[0], loop)
		s.states[loop].split = []int{body, next}
		return body
	}
	return next
}

type stateSet struct {
	dense  []int
	sparse []int
}

func newStateSet(n int) *stateSet {
	return &stateSet{dense: make([]int, 0, n), sparse: make([]int, n)}
}

func (ss *stateSet) has(i int) bool {
	j := ss.sparse[i]
	return j < len(ss.dense) && ss.dense[j] == i
}

func (ss *stateSet) insert(i int) {
	ss.sparse[i] = len(ss.dense)
	ss.dense = append(ss.dense, i)
}

func (ss *stateSet) clear() { ss.dense = ss.dense[:0] }

func (s *Scanner) closure(set *stateSet, i int) {
	if i < 0 || set.has(i) {
		return
	}
	set.insert(i)
	for _, out := range s.states[i].split {
		s.closure(set, out)
	}
}

func (st *nfaState) matches(r rune) bool {
	if st.any {
		return true
	}
	for i := 0; i+1 < len(st.ranges); i += 2 {
		if r >= st.ranges[i] && r <= st.ranges[i+1] {
			return true
		}
	}
	return false
}

// Scan finds the longest token starting at offset among the tokens for
// which valid returns true. A nil valid accepts every token. Empty
// matches are never reported.
func (s *Scanner) Scan(src []byte, offset int, valid func(token int) bool) Match {
	cur := newStateSet(len(s.states))
	next := newStateSet(len(s.states))
	for i, start := range s.starts {
		if valid == nil || valid(i) {
			s.closure(cur, start)
		}
	}

	best := Match{Token: -1}
	pos := offset
	examined := offset
	for len(cur.dense) > 0 && pos < len(src) {
		r, w := utf8.DecodeRune(src[pos:])
		next.clear()
		for _, i := range cur.dense {
			st := &s.states[i]
			if st.kind == stateRune && st.matches(r) {
				s.closure(next, st.next)
			}
		}
		pos += w
		examined = pos
		for _, i := range next.dense {
			if s.states[i].kind != stateAccept {
				continue
			}
			tok := s.states[i].accept
			length := pos - offset
			if best.Token < 0 || length > best.Length || s.better(tok, best.Token) && length == best.Length {
				best = Match{Token: tok, Length: length}
			}
		}
		cur, next = next, cur
	}
	if len(cur.dense) > 0 && pos >= len(src) {
		examined++
	}
	best.Lookahead = examined - (offset + best.Length)
	return best
}

func (s *Scanner) better(a, b int) bool {
	if s.literal[a] != s.literal[b] {
		return s.literal[a]
	}
	return a < b
}

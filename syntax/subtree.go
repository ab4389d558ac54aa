package syntax

import (
	"github.com/dhamidi/arbor/grammar"
)

type flags uint16

const (
	flagNamed flags = 1 << iota
	flagVisible
	flagExtra
	flagMissing
	flagChanged
	flagFragile
	flagTerminal
)

// Error costs rank competing parses. A tree without errors costs zero.
const (
	CostMissing      = 110
	CostRecovery     = 500
	CostSkippedTree  = 100
	CostSkippedBytes = 1
)

// Subtree is immutable node storage. It records sizes but no positions,
// so one Subtree may appear at many places in many trees.
type Subtree struct {
	symbol     grammar.Symbol
	production uint32
	size       Length
	children   []*Subtree
	fields     []grammar.FieldID
	flags      flags

	errorCost  int
	dynPrec    int
	lookahead  int
	parseState grammar.StateID
	extBefore  string
	extAfter   string
	namedCount int
}

func (s *Subtree) Symbol() grammar.Symbol { return s.symbol }
func (s *Subtree) Size() Length           { return s.size }
func (s *Subtree) ChildCount() int        { return len(s.children) }
func (s *Subtree) Child(i int) *Subtree   { return s.children[i] }

// Production returns the production a nonterminal was reduced by.
func (s *Subtree) Production() uint32 { return s.production }

// Field returns the field of child i, or zero.
func (s *Subtree) Field(i int) grammar.FieldID {
	if s.fields == nil {
		return 0
	}
	return s.fields[i]
}

func (s *Subtree) IsLeaf() bool     { return len(s.children) == 0 }
func (s *Subtree) IsTerminal() bool { return s.flags&flagTerminal != 0 }
func (s *Subtree) IsNamed() bool    { return s.flags&flagNamed != 0 }
func (s *Subtree) IsVisible() bool  { return s.flags&flagVisible != 0 }
func (s *Subtree) IsExtra() bool    { return s.flags&flagExtra != 0 }
func (s *Subtree) IsMissing() bool  { return s.flags&flagMissing != 0 }
func (s *Subtree) IsError() bool    { return s.symbol == grammar.SymbolError }

// HasChanges reports whether an edit touched the subtree or the text its
// parse depended on.
func (s *Subtree) HasChanges() bool { return s.flags&flagChanged != 0 }

// IsFragile reports whether the subtree was built, or contains a subtree
// built, while the parser was following several versions. Fragile
// subtrees are never reused.
func (s *Subtree) IsFragile() bool { return s.flags&flagFragile != 0 }

func (s *Subtree) HasError() bool         { return s.errorCost > 0 }
func (s *Subtree) ErrorCost() int         { return s.errorCost }
func (s *Subtree) DynamicPrecedence() int { return s.dynPrec }

// Lookahead is the number of bytes past the end of the subtree that were
// examined to build it: lexer lookahead and the token that decided the
// final reduction.
func (s *Subtree) Lookahead() int { return s.lookahead }

// ParseState is the parser state the subtree was started in.
func (s *Subtree) ParseState() grammar.StateID { return s.parseState }

// ExternalState returns the serialized external scanner state before and
// after the subtree.
func (s *Subtree) ExternalState() (before, after string) { return s.extBefore, s.extAfter }

// FirstLeaf returns the leftmost leaf.
func (s *Subtree) FirstLeaf() *Subtree {
	for len(s.children) > 0 {
		s = s.children[0]
	}
	return s
}

// Equal compares the shape of two subtrees: symbols, sizes, productions,
// fields and the extra, missing and error markers.
func Equal(a, b *Subtree) bool {
	if a == b {
		return true
	}
	if a == nil || b == nil {
		return false
	}
	const shape = flagExtra | flagMissing | flagNamed | flagVisible
	if a.symbol != b.symbol || a.size != b.size || a.production != b.production ||
		a.flags&shape != b.flags&shape || len(a.children) != len(b.children) {
		return false
	}
	for i := range a.children {
		if a.Field(i) != b.Field(i) || !Equal(a.children[i], b.children[i]) {
			return false
		}
	}
	return true
}

// Leaf describes a token for Builder.Leaf.
type Leaf struct {
	Symbol    grammar.Symbol
	Size      Length
	Lookahead int
	State     grammar.StateID
	ExtBefore string
	ExtAfter  string
	Extra     bool
	Fragile   bool
}

// Builder creates subtrees for one language, sharing small ones through
// a Cache.
type Builder struct {
	lang  *grammar.Language
	cache *Cache
}

// NewBuilder returns a builder. cache may be nil.
func NewBuilder(lang *grammar.Language, cache *Cache) *Builder {
	return &Builder{lang: lang, cache: cache}
}

func (b *Builder) symbolFlags(sym grammar.Symbol) flags {
	info := b.lang.Symbol(sym)
	var f flags
	if info.Named || sym == grammar.SymbolError {
		f |= flagNamed
	}
	if info.Visible || sym == grammar.SymbolError {
		f |= flagVisible
	}
	if b.lang.IsTerminal(sym) && sym != grammar.SymbolError {
		f |= flagTerminal
	}
	return f
}

// Leaf creates a token subtree.
func (b *Builder) Leaf(l Leaf) *Subtree {
	s := &Subtree{
		symbol:     l.Symbol,
		size:       l.Size,
		flags:      b.symbolFlags(l.Symbol),
		lookahead:  l.Lookahead,
		parseState: l.State,
		extBefore:  l.ExtBefore,
		extAfter:   l.ExtAfter,
	}
	if l.Extra {
		s.flags |= flagExtra
	}
	if l.Fragile {
		s.flags |= flagFragile
	}
	if l.Symbol == grammar.SymbolError {
		s.errorCost = CostSkippedTree + CostSkippedBytes*l.Size.Bytes
	}
	return b.intern(s)
}

// Missing creates a zero-width token inserted by error recovery.
func (b *Builder) Missing(sym grammar.Symbol, state grammar.StateID, ext string) *Subtree {
	s := &Subtree{
		symbol:     sym,
		flags:      b.symbolFlags(sym) | flagMissing,
		errorCost:  CostMissing,
		parseState: state,
		extBefore:  ext,
		extAfter:   ext,
	}
	return b.intern(s)
}

// Node creates the subtree for a reduction by production prod. children
// are the popped stack entries, extras included. Hidden nonterminals
// among them are replaced by their own children. examined is the number
// of bytes from the start of the node to the end of the text the parser
// examined before reducing.
func (b *Builder) Node(prod uint32, children []*Subtree, state grammar.StateID, examined int, fragile bool) *Subtree {
	p := b.lang.Production(prod)
	s := &Subtree{
		symbol:     p.LHS,
		production: prod,
		flags:      b.symbolFlags(p.LHS),
		parseState: state,
		dynPrec:    p.DynamicPrecedence,
	}
	if fragile {
		s.flags |= flagFragile
	}

	var fields []grammar.FieldID
	pos := 0
	for _, c := range children {
		field := grammar.FieldID(0)
		if !c.IsExtra() {
			if p.Fields != nil && pos < len(p.Fields) {
				field = p.Fields[pos]
			}
			pos++
		}
		if !c.IsVisible() && !c.IsTerminal() {
			for i, gc := range c.children {
				f := c.Field(i)
				if f == 0 {
					f = field
				}
				s.children = append(s.children, gc)
				fields = append(fields, f)
			}
			s.dynPrec += b.lang.Production(c.production).DynamicPrecedence
			continue
		}
		s.children = append(s.children, c)
		fields = append(fields, field)
	}
	b.summarize(s, fields, examined)
	return b.intern(s)
}

// Error wraps subtrees skipped during error recovery in an ERROR node.
func (b *Builder) Error(children []*Subtree, state grammar.StateID, examined int, fragile bool) *Subtree {
	s := &Subtree{
		symbol:     grammar.SymbolError,
		flags:      b.symbolFlags(grammar.SymbolError),
		parseState: state,
		children:   children,
	}
	if fragile {
		s.flags |= flagFragile
	}
	b.summarize(s, nil, examined)
	s.errorCost += CostRecovery
	for _, c := range children {
		if !c.IsExtra() {
			s.errorCost += CostSkippedTree
		}
	}
	s.errorCost += CostSkippedBytes * s.size.Bytes
	return b.intern(s)
}

// Extra returns s marked as an extra.
func (b *Builder) Extra(s *Subtree) *Subtree {
	if s.IsExtra() {
		return s
	}
	c := *s
	c.flags |= flagExtra
	return b.intern(&c)
}

// Root returns root with the leading and trailing extras of the input
// added as its first and last children.
func (b *Builder) Root(root *Subtree, leading, trailing []*Subtree) *Subtree {
	if len(leading) == 0 && len(trailing) == 0 {
		return root
	}
	if root.IsTerminal() {
		children := make([]*Subtree, 0, len(leading)+1+len(trailing))
		children = append(children, leading...)
		children = append(children, root)
		children = append(children, trailing...)
		return b.Error(children, 0, 0, root.IsFragile())
	}
	s := *root
	s.children = make([]*Subtree, 0, len(leading)+len(root.children)+len(trailing))
	s.children = append(s.children, leading...)
	s.children = append(s.children, root.children...)
	s.children = append(s.children, trailing...)
	var fields []grammar.FieldID
	if root.fields != nil {
		fields = make([]grammar.FieldID, len(s.children))
		copy(fields[len(leading):], root.fields)
	}
	cost, prec := root.errorCost, root.dynPrec
	s.errorCost, s.dynPrec, s.namedCount = 0, 0, 0
	b.summarize(&s, fields, 0)
	s.errorCost = max(s.errorCost, cost)
	s.dynPrec = prec
	s.parseState = 0
	return &s
}

// summarize computes size, lookahead, error cost and named child count
// from the children.
func (b *Builder) summarize(s *Subtree, fields []grammar.FieldID, examined int) {
	hasField := false
	for _, f := range fields {
		if f != 0 {
			hasField = true
			break
		}
	}
	if hasField {
		s.fields = fields
	} else {
		s.fields = nil
	}

	var size Length
	reach := 0
	for _, c := range s.children {
		size = size.Add(c.size)
		reach = max(reach, size.Bytes+c.lookahead)
		s.errorCost += c.errorCost
		if !c.IsExtra() {
			s.dynPrec += c.dynPrec
		}
		if c.IsNamed() {
			s.namedCount++
		}
		if c.IsFragile() {
			s.flags |= flagFragile
		}
	}
	s.size = size
	s.lookahead = max(reach, examined) - size.Bytes
	if s.lookahead < 0 {
		s.lookahead = 0
	}
	if len(s.children) > 0 {
		first, last := s.children[0], s.children[len(s.children)-1]
		s.extBefore = first.extBefore
		s.extAfter = last.extAfter
	}
}

func (b *Builder) intern(s *Subtree) *Subtree {
	if b.cache == nil {
		return s
	}
	return b.cache.intern(b.lang, s)
}

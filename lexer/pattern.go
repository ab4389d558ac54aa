// Package lexer recognizes grammar tokens in source text.
//
// Token definitions are expressed as Patterns, a small regular-expression
// tree. A set of patterns is compiled into one Scanner that finds the
// longest match among the tokens valid at a given position.
package lexer

import (
	"fmt"
	"regexp/syntax"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Op identifies the kind of a Pattern node.
type Op uint8

const (
	OpEmpty Op = iota
	OpLiteral
	OpClass
	OpAny
	OpConcat
	OpAlternate
	OpStar
	OpPlus
	OpQuest
)

var opNames = map[Op]string{
	OpEmpty:     "empty",
	OpLiteral:   "literal",
	OpClass:     "class",
	OpAny:       "any",
	OpConcat:    "concat",
	OpAlternate: "alternate",
	OpStar:      "star",
	OpPlus:      "plus",
	OpQuest:     "quest",
}

func (o Op) String() string {
	if name, ok := opNames[o]; ok {
		return name
	}
	return fmt.Sprintf("Op(%d)", o)
}

// Pattern is a node of a token pattern.
//
// OpLiteral stores its text in Runes. OpClass stores inclusive lo/hi pairs
// in Runes. The composite operators use Subs.
type Pattern struct {
	Op    Op
	Runes []rune
	Subs  []*Pattern
}

// Empty matches the empty string.
func Empty() *Pattern { return &Pattern{Op: OpEmpty} }

// Literal matches s exactly.
func Literal(s string) *Pattern {
	if s == "" {
		return Empty()
	}
	return &Pattern{Op: OpLiteral, Runes: []rune(s)}
}

// Class matches a single rune inside one of the given inclusive ranges,
// passed as lo, hi pairs.
func Class(ranges ...rune) *Pattern {
	if len(ranges)%2 != 0 {
		panic("lexer: Class needs lo/hi pairs")
	}
	return &Pattern{Op: OpClass, Runes: append([]rune(nil), ranges...)}
}

// Any matches any single rune.
func Any() *Pattern { return &Pattern{Op: OpAny} }

func Concat(subs ...*Pattern) *Pattern {
	if len(subs) == 1 {
		return subs[0]
	}
	return &Pattern{Op: OpConcat, Subs: subs}
}

func Alternate(subs ...*Pattern) *Pattern {
	if len(subs) == 1 {
		return subs[0]
	}
	return &Pattern{Op: OpAlternate, Subs: subs}
}

func Star(sub *Pattern) *Pattern  { return &Pattern{Op: OpStar, Subs: []*Pattern{sub}} }
func Plus(sub *Pattern) *Pattern  { return &Pattern{Op: OpPlus, Subs: []*Pattern{sub}} }
func Quest(sub *Pattern) *Pattern { return &Pattern{Op: OpQuest, Subs: []*Pattern{sub}} }

// IsLiteral reports whether p matches exactly one fixed string.
func (p *Pattern) IsLiteral() bool {
	return p != nil && p.Op == OpLiteral
}

// Text returns the literal text of an OpLiteral pattern.
func (p *Pattern) Text() string {
	if p.Op != OpLiteral {
		return ""
	}
	return string(p.Runes)
}

// Nullable reports whether p matches the empty string.
func (p *Pattern) Nullable() bool {
	switch p.Op {
	case OpEmpty, OpStar, OpQuest:
		return true
	case OpLiteral, OpClass, OpAny:
		return false
	case OpPlus:
		return p.Subs[0].Nullable()
	case OpConcat:
		for _, s := range p.Subs {
			if !s.Nullable() {
				return false
			}
		}
		return true
	case OpAlternate:
		for _, s := range p.Subs {
			if s.Nullable() {
				return true
			}
		}
		return false
	}
	return false
}

// String renders p in regular-expression syntax.
func (p *Pattern) String() string {
	var b strings.Builder
	p.write(&b)
	return b.String()
}

func (p *Pattern) write(b *strings.Builder) {
	switch p.Op {
	case OpEmpty:
		b.WriteString("(?:)")
	case OpLiteral:
		for _, r := range p.Runes {
			writeRune(b, r)
		}
	case OpClass:
		b.WriteByte('[')
		for i := 0; i+1 < len(p.Runes); i += 2 {
			writeRune(b, p.Runes[i])
			if p.Runes[i+1] != p.Runes[i] {
				b.WriteByte('-')
				writeRune(b, p.Runes[i+1])
			}
		}
		b.WriteByte(']')
	case OpAny:
		b.WriteString("(?s:.)")
	case OpConcat:
		for _, s := range p.Subs {
			if s.Op == OpAlternate {
				b.WriteString("(?:")
				s.write(b)
				b.WriteByte(')')
				continue
			}
			s.write(b)
		}
	case OpAlternate:
		for i, s := range p.Subs {
			if i > 0 {
				b.WriteByte('|')
			}
			s.write(b)
		}
	case OpStar, OpPlus, OpQuest:
		sub := p.Subs[0]
		if sub.Op == OpConcat || sub.Op == OpAlternate || (sub.Op == OpLiteral && len(sub.Runes) > 1) {
			b.WriteString("(?:")
			sub.write(b)
			b.WriteByte(')')
		} else {
			sub.write(b)
		}
		b.WriteByte("*+?"[p.Op-OpStar])
	}
}

func writeRune(b *strings.Builder, r rune) {
	if r < utf8.RuneSelf && strings.ContainsRune(`\.+*?()|[]{}^$-`, r) {
		b.WriteByte('\\')
		b.WriteRune(r)
		return
	}
	if unicode.IsPrint(r) {
		b.WriteRune(r)
		return
	}
	q := strconv.QuoteRune(r)
	b.WriteString(q[1 : len(q)-1])
}

// FromRegexp parses a Go regular expression into a Pattern. Anchors and
// word boundaries are rejected since tokens are matched at a fixed offset.
func FromRegexp(expr string) (*Pattern, error) {
	re, err := syntax.Parse(expr, syntax.Perl)
	if err != nil {
		return nil, fmt.Errorf("parse pattern %q: %w", expr, err)
	}
	p, err := convertRegexp(re.Simplify())
	if err != nil {
		return nil, fmt.Errorf("pattern %q: %w", expr, err)
	}
	return p, nil
}

// MustRegexp is like FromRegexp but panics on error.
func MustRegexp(expr string) *Pattern {
	p, err := FromRegexp(expr)
	if err != nil {
		panic(err)
	}
	return p
}

func convertRegexp(re *syntax.Regexp) (*Pattern, error) {
	switch re.Op {
	case syntax.OpEmptyMatch:
		return Empty(), nil
	case syntax.OpNoMatch:
		return &Pattern{Op: OpClass}, nil
	case syntax.OpLiteral:
		if re.Flags&syntax.FoldCase == 0 {
			return &Pattern{Op: OpLiteral, Runes: append([]rune(nil), re.Rune...)}, nil
		}
		subs := make([]*Pattern, 0, len(re.Rune))
		for _, r := range re.Rune {
			subs = append(subs, foldClass(r))
		}
		return Concat(subs...), nil
	case syntax.OpCharClass:
		return &Pattern{Op: OpClass, Runes: append([]rune(nil), re.Rune...)}, nil
	case syntax.OpAnyCharNotNL:
		return Class(0, '\n'-1, '\n'+1, unicode.MaxRune), nil
	case syntax.OpAnyChar:
		return Any(), nil
	case syntax.OpCapture:
		return convertRegexp(re.Sub[0])
	case syntax.OpStar, syntax.OpPlus, syntax.OpQuest:
		sub, err := convertRegexp(re.Sub[0])
		if err != nil {
			return nil, err
		}
		switch re.Op {
		case syntax.OpStar:
			return Star(sub), nil
		case syntax.OpPlus:
			return Plus(sub), nil
		default:
			return Quest(sub), nil
		}
	case syntax.OpConcat, syntax.OpAlternate:
		subs := make([]*Pattern, 0, len(re.Sub))
		for _, s := range re.Sub {
			p, err := convertRegexp(s)
			if err != nil {
				return nil, err
			}
			subs = append(subs, p)
		}
		if len(subs) == 0 {
			return Empty(), nil
		}
		if re.Op == syntax.OpConcat {
			return Concat(subs...), nil
		}
		return Alternate(subs...), nil
	}
	return nil, fmt.Errorf("unsupported operator %v", re.Op)
}

func foldClass(r rune) *Pattern {
	runes := []rune{r, r}
	for f := unicode.SimpleFold(r); f != r; f = unicode.SimpleFold(f) {
		runes = append(runes, f, f)
	}
	if len(runes) == 2 {
		return Literal(string(r))
	}
	return &Pattern{Op: OpClass, Runes: runes}
}

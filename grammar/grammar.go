// Package grammar describes languages and compiles them into parse tables.
//
// A Grammar is the editable source form: named rules built from rule
// expressions, plus token patterns. Compile turns it into a Language, the
// immutable table set a parser runs on. Languages can be written to and
// read from a versioned binary format.
package grammar

import (
	"fmt"

	"github.com/dhamidi/arbor/lexer"
)

// Grammar is the source form of a language.
type Grammar struct {
	Name string
	// Start names the start rule. When empty the first rule is used.
	Start     string
	Rules     []RuleDef
	Tokens    []TokenDef
	Extras    []string
	Externals []string

	errs []error
}

// RuleDef is a named rule. Hidden rules, like rules whose name starts
// with an underscore, are spliced into their parent.
type RuleDef struct {
	Name   string
	Body   Expr
	Hidden bool
}

// TokenDef is a named token.
type TokenDef struct {
	Name    string
	Pattern *lexer.Pattern
}

// New returns an empty grammar.
func New(name string) *Grammar {
	return &Grammar{Name: name}
}

// Rule adds a rule.
func (g *Grammar) Rule(name string, body Expr) *Grammar {
	g.Rules = append(g.Rules, RuleDef{Name: name, Body: body})
	return g
}

// Token adds a token defined by a Go regular expression. A bad
// expression is reported by Compile.
func (g *Grammar) Token(name, expr string) *Grammar {
	p, err := lexer.FromRegexp(expr)
	if err != nil {
		g.errs = append(g.errs, fmt.Errorf("token %s: %w", name, err))
		return g
	}
	return g.TokenPattern(name, p)
}

// TokenPattern adds a token defined by a pattern.
func (g *Grammar) TokenPattern(name string, p *lexer.Pattern) *Grammar {
	g.Tokens = append(g.Tokens, TokenDef{Name: name, Pattern: p})
	return g
}

// Extra declares tokens that may appear anywhere between other tokens,
// such as whitespace and comments.
func (g *Grammar) Extra(names ...string) *Grammar {
	g.Extras = append(g.Extras, names...)
	return g
}

// External declares tokens recognized by an external scanner. Their order
// is the index order the scanner sees.
func (g *Grammar) External(names ...string) *Grammar {
	g.Externals = append(g.Externals, names...)
	return g
}

// Expr is a rule expression.
type Expr interface {
	expr()
}

type (
	symExpr    struct{ name string }
	strExpr    struct{ text string }
	blankExpr  struct{}
	seqExpr    []Expr
	choiceExpr []Expr
	repeatExpr struct {
		body Expr
		min1 bool
	}
	fieldExpr struct {
		name string
		body Expr
	}
	precExpr struct {
		level   int
		assoc   Assoc
		dynamic bool
		body    Expr
	}
)

func (symExpr) expr()    {}
func (strExpr) expr()    {}
func (blankExpr) expr()  {}
func (seqExpr) expr()    {}
func (choiceExpr) expr() {}
func (repeatExpr) expr() {}
func (fieldExpr) expr()  {}
func (precExpr) expr()   {}

// Sym refers to a rule or named token.
func Sym(name string) Expr { return symExpr{name} }

// Str is an anonymous token matching text literally.
func Str(text string) Expr { return strExpr{text} }

// Blank matches nothing.
func Blank() Expr { return blankExpr{} }

func Seq(items ...Expr) Expr {
	if len(items) == 1 {
		return items[0]
	}
	return seqExpr(items)
}

func Choice(items ...Expr) Expr {
	if len(items) == 1 {
		return items[0]
	}
	return choiceExpr(items)
}

func Optional(e Expr) Expr { return choiceExpr{e, blankExpr{}} }
func Repeat(e Expr) Expr   { return repeatExpr{body: e} }
func Repeat1(e Expr) Expr  { return repeatExpr{body: e, min1: true} }

// Field names the children produced by e.
func Field(name string, e Expr) Expr { return fieldExpr{name, e} }

// Prec sets the static precedence of the alternatives in e.
func Prec(level int, e Expr) Expr { return precExpr{level: level, body: e} }

func PrecLeft(level int, e Expr) Expr {
	return precExpr{level: level, assoc: AssocLeft, body: e}
}

func PrecRight(level int, e Expr) Expr {
	return precExpr{level: level, assoc: AssocRight, body: e}
}

// PrecDynamic ranks competing parses of an ambiguity at parse time.
func PrecDynamic(level int, e Expr) Expr {
	return precExpr{level: level, dynamic: true, body: e}
}

package parser

import (
	"bytes"
	"context"
	"math/rand/v2"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tliron/commonlog"
	"go.opentelemetry.io/otel/metric/noop"

	"github.com/dhamidi/arbor/grammar"
	"github.com/dhamidi/arbor/lexer"
	"github.com/dhamidi/arbor/syntax"
)

func arith() *grammar.Grammar {
	return grammar.New("arith").
		Rule("expr", grammar.Seq(
			grammar.Field("left", grammar.Sym("num")),
			grammar.Field("operator", grammar.Choice(grammar.Str("+"), grammar.Str("*"))),
			grammar.Field("right", grammar.Sym("num")),
		)).
		Token("num", `[0-9]+`).
		Token("_ws", `\s+`).
		Extra("_ws")
}

func calc() *grammar.Grammar {
	binary := func(level int, op string) grammar.Expr {
		return grammar.PrecLeft(level, grammar.Seq(
			grammar.Field("left", grammar.Sym("_expr")),
			grammar.Field("operator", grammar.Str(op)),
			grammar.Field("right", grammar.Sym("_expr")),
		))
	}
	return grammar.New("calc").
		Rule("program", grammar.Repeat(grammar.Sym("_statement"))).
		Rule("_statement", grammar.Choice(grammar.Sym("assignment"), grammar.Sym("print_statement"))).
		Rule("assignment", grammar.Seq(
			grammar.Field("name", grammar.Sym("ident")),
			grammar.Str("="),
			grammar.Field("value", grammar.Sym("_expr")),
			grammar.Str(";"),
		)).
		Rule("print_statement", grammar.Seq(grammar.Str("print"), grammar.Field("value", grammar.Sym("_expr")), grammar.Str(";"))).
		Rule("_expr", grammar.Choice(grammar.Sym("binary"), grammar.Sym("paren"), grammar.Sym("ident"), grammar.Sym("number"))).
		Rule("binary", grammar.Choice(binary(1, "+"), binary(1, "-"), binary(2, "*"), binary(2, "/"))).
		Rule("paren", grammar.Seq(grammar.Str("("), grammar.Sym("_expr"), grammar.Str(")"))).
		Token("ident", `[a-z]+`).
		Token("number", `[0-9]+`).
		Token("_ws", `\s+`).
		Token("comment", `#[^\n]*`).
		Extra("_ws", "comment")
}

// layout is a small indentation-sensitive language.
func layout() *grammar.Grammar {
	return grammar.New("layout").
		Rule("module", grammar.Repeat(grammar.Sym("_stmt"))).
		Rule("_stmt", grammar.Choice(grammar.Sym("simple"), grammar.Sym("block"))).
		Rule("simple", grammar.Seq(grammar.Sym("word"), grammar.Sym("newline"))).
		Rule("block", grammar.Seq(
			grammar.Sym("word"), grammar.Str(":"), grammar.Sym("newline"),
			grammar.Sym("indent"), grammar.Repeat1(grammar.Sym("_stmt")), grammar.Sym("dedent"),
		)).
		Token("word", `[a-z]+`).
		Token("_ws", `[ \t]+`).
		External("newline", "indent", "dedent").
		Extra("_ws")
}

func compile(t *testing.T, g *grammar.Grammar) *grammar.Language {
	t.Helper()
	lang, err := grammar.Compile(g)
	require.NoError(t, err)
	return lang
}

func layoutLanguage(t *testing.T) *grammar.Language {
	t.Helper()
	return compile(t, layout()).WithExternalScanner(func() lexer.ExternalScanner {
		return lexer.NewIndentScanner()
	})
}

func newParser(t *testing.T, lang *grammar.Language, opts ...Option) *Parser {
	t.Helper()
	p := New(opts...)
	require.NoError(t, p.SetLanguage(lang))
	return p
}

func parse(t *testing.T, p *Parser, src string) *syntax.Tree {
	t.Helper()
	tree, err := p.Parse([]byte(src), nil)
	require.NoError(t, err)
	require.NotNil(t, tree)
	return tree
}

func printed(t *testing.T, tree *syntax.Tree, src string) string {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, tree.Print(&buf, []byte(src)))
	return buf.String()
}

// reparse applies the replacement of src[start:end] to both the text and
// the old tree and parses incrementally.
func reparse(t *testing.T, p *Parser, old *syntax.Tree, src string, start, end int, text string) (*syntax.Tree, string) {
	t.Helper()
	e := syntax.EditFromText([]byte(src), start, end, []byte(text))
	next := string(syntax.Apply([]byte(src), start, end, []byte(text)))
	tree, err := p.Parse([]byte(next), old.Edit(e))
	require.NoError(t, err)
	return tree, next
}

// requireCoverage checks that the leaves tile the whole input.
func requireCoverage(t *testing.T, tree *syntax.Tree, src string) {
	t.Helper()
	end := 0
	for leaf := range tree.Leaves() {
		require.Equal(t, end, leaf.StartByte(), "gap before %s in %q", leaf.Kind(), src)
		end = leaf.EndByte()
	}
	require.Equal(t, len(src), end, "leaves of %q", src)
}

func requireSameTree(t *testing.T, want, got *syntax.Tree, src string) {
	t.Helper()
	require.Equal(t, want.String(), got.String(), "source %q", src)
	require.True(t, want.Equal(got), "source %q:\nwant %s\ngot  %s", src, printed(t, want, src), printed(t, got, src))
}

func TestParseBracketForm(t *testing.T) {
	p := newParser(t, compile(t, arith()))

	tree := parse(t, p, "1+2")
	assert.Equal(t, "expr[num[0:1], \"+\"[1:2], num[2:3]]\n", printed(t, tree, "1+2"))
	assert.False(t, tree.RootNode().HasError())
	assert.Equal(t, "(expr left: (num) right: (num))", tree.String())

	tree = parse(t, p, " 1 +\t2\n")
	assert.Equal(t, "expr[num[1:2], \"+\"[3:4], num[5:6]]\n", printed(t, tree, " 1 +\t2\n"))
	requireCoverage(t, tree, " 1 +\t2\n")
}

func TestIncrementalEdit(t *testing.T) {
	p := newParser(t, compile(t, arith()))
	old := parse(t, p, "1+2")

	tree, src := reparse(t, p, old, "1+2", 1, 2, "*")
	assert.Equal(t, "1*2", src)
	assert.Equal(t, "expr[num[0:1], \"*\"[1:2], num[2:3]]\n", printed(t, tree, src))
	requireSameTree(t, parse(t, p, src), tree, src)

	tree, src = reparse(t, p, tree, src, 2, 3, "345")
	assert.Equal(t, "expr[num[0:1], \"*\"[1:2], num[2:5]]\n", printed(t, tree, src))
}

func TestCalcPrecedence(t *testing.T) {
	p := newParser(t, compile(t, calc()))

	tests := []struct {
		src  string
		want string
	}{
		{
			"x = 1 + 2 * 3;",
			"(program (assignment name: (ident) value: (binary left: (number) right: (binary left: (number) right: (number)))))",
		},
		{
			"a = 1 - 2 - 3;",
			"(program (assignment name: (ident) value: (binary left: (binary left: (number) right: (number)) right: (number))))",
		},
		{
			"print (1 - 2) - 3; # done",
			"(program (print_statement value: (binary left: (paren (binary left: (number) right: (number))) right: (number))) (comment))",
		},
		{"", "(program)"},
		{"  \n", "(program)"},
	}
	for _, tt := range tests {
		tree := parse(t, p, tt.src)
		assert.Equal(t, tt.want, tree.String(), tt.src)
		assert.False(t, tree.RootNode().HasError(), tt.src)
		requireCoverage(t, tree, tt.src)
	}
}

func TestFieldsAndNavigation(t *testing.T) {
	p := newParser(t, compile(t, calc()))
	src := "total = a * (b + 2);"
	root := parse(t, p, src).RootNode()

	stmt := root.NamedChild(0)
	assert.Equal(t, "assignment", stmt.Kind())
	assert.Equal(t, "total", stmt.ChildByFieldName("name").Content([]byte(src)))
	value := stmt.ChildByFieldName("value")
	assert.Equal(t, "binary", value.Kind())
	assert.Equal(t, "*", value.ChildByFieldName("operator").Content([]byte(src)))
	assert.Equal(t, "(b + 2)", value.ChildByFieldName("right").Content([]byte(src)))

	n := root.DescendantForByteRange(15, 16)
	assert.Equal(t, "+", n.Kind())
	assert.Equal(t, "binary", n.Parent().Kind())
}

func TestParseIsRepeatable(t *testing.T) {
	p := newParser(t, compile(t, calc()))
	src := "a = 1;\nprint a * 2; # twice\nb = (a);\n"

	first := parse(t, p, src)
	second := parse(t, p, src)
	requireSameTree(t, first, second, src)

	again, err := p.Parse([]byte(src), first)
	require.NoError(t, err)
	requireSameTree(t, first, again, src)
	assert.Positive(t, p.Stats().ReusedNodes)
}

func TestIncrementalReuse(t *testing.T) {
	p := newParser(t, compile(t, calc()))
	src := "a = 1;\nb = 2;\nc = 3;\n"
	old := parse(t, p, src)

	at := strings.Index(src, "3")
	tree, next := reparse(t, p, old, src, at, at+1, "42")
	assert.Equal(t, "a = 1;\nb = 2;\nc = 42;\n", next)
	assert.GreaterOrEqual(t, p.Stats().ReusedNodes, 2)
	requireSameTree(t, parse(t, p, next), tree, next)

	// The untouched statements are shared with the old tree.
	assert.Same(t, old.RootNode().Child(0).Subtree(), tree.RootNode().Child(0).Subtree())
}

// randomEdits applies n random edits to src, checking after each one that
// the incremental parse equals a fresh parse.
func randomEdits(t *testing.T, lang *grammar.Language, src string, snippets []string, seed uint64, n int) {
	t.Helper()
	p := newParser(t, lang)
	fresh := newParser(t, lang)
	rng := rand.New(rand.NewPCG(seed, 11))
	reset := src

	tree := parse(t, p, src)
	for range n {
		start := rng.IntN(len(src) + 1)
		end := start
		text := ""
		if rng.IntN(3) == 0 && start < len(src) {
			end = min(len(src), start+1+rng.IntN(3))
		} else {
			text = snippets[rng.IntN(len(snippets))]
		}
		if start == end && text == "" {
			continue
		}

		var next string
		tree, next = reparse(t, p, tree, src, start, end, text)
		want, err := fresh.Parse([]byte(next), nil)
		require.NoError(t, err)
		requireSameTree(t, want, tree, next)
		requireCoverage(t, tree, next)
		src = next
		if len(src) > 400 {
			src = reset
			tree = parse(t, p, src)
		}
	}
}

var calcSnippets = []string{"1", "x", " ", "+", "*", ";", "(", ")", "\n", "= ", "print 2;", "y = 3;\n", "# note\n"}

func TestIncrementalEquivalence(t *testing.T) {
	randomEdits(t, compile(t, calc()), "a = 1;\nprint a + 2 * 3;\nb = (a - 4) / 5;\n", calcSnippets, 7, 200)
}

func TestIncrementalEquivalenceSeeds(t *testing.T) {
	if testing.Short() {
		t.Skip("runs many edit sequences")
	}
	tests := []struct {
		name     string
		lang     *grammar.Language
		src      string
		snippets []string
	}{
		{"calc", compile(t, calc()), "a = 1;\nprint a + 2 * 3;\nb = (a - 4) / 5;\n", calcSnippets},
		{"layout", layoutLanguage(t), "a:\n  b\n  c:\n    d\ne\n", []string{"a", ":", "\n", "  ", " ", "b\n", "c:\n  d\n", "\t"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for seed := range uint64(40) {
				randomEdits(t, tt.lang, tt.src, tt.snippets, seed, 40)
			}
		})
	}
}

func TestMissingToken(t *testing.T) {
	p := newParser(t, compile(t, arith()))
	tree := parse(t, p, "1+")
	assert.Equal(t, "(expr left: (num) right: (MISSING num))", tree.String())
	assert.True(t, tree.RootNode().HasError())
	assert.True(t, tree.RootNode().ChildByFieldName("right").IsMissing())
	assert.Positive(t, p.Stats().Recoveries)
	requireCoverage(t, tree, "1+")
}

func TestUnexpectedToken(t *testing.T) {
	p := newParser(t, compile(t, arith()))
	src := "1+2 3"
	tree := parse(t, p, src)
	assert.True(t, tree.RootNode().HasError())
	assert.Equal(t, "(expr left: (num) (ERROR (num)) right: (num))", tree.String())
	assert.Equal(t, "expr[num[0:1], \"+\"[1:2], ERROR[num[2:3]], num[4:5]]\n", printed(t, tree, src))
	requireCoverage(t, tree, src)
}

func TestExtrasStayOutsideRecovery(t *testing.T) {
	tests := []struct {
		src     string
		want    string
		missing int
	}{
		{"1+2 3", "expr[num[0:1], \"+\"[1:2], ERROR[num[2:3]], num[4:5]]\n", -1},
		{"1+2  \t3", "expr[num[0:1], \"+\"[1:2], ERROR[num[2:3]], num[6:7]]\n", -1},
		{"1+ ", "expr[num[0:1], \"+\"[1:2], MISSING num[2:2]]\n", 2},
		{"1 +\n", "expr[num[0:1], \"+\"[2:3], MISSING num[3:3]]\n", 3},
	}
	p := newParser(t, compile(t, arith()))
	for _, tt := range tests {
		t.Run(tt.src, func(t *testing.T) {
			tree := parse(t, p, tt.src)
			assert.Equal(t, tt.want, printed(t, tree, tt.src))
			requireCoverage(t, tree, tt.src)
			if tt.missing >= 0 {
				right := tree.RootNode().ChildByFieldName("right")
				require.True(t, right.IsMissing())
				assert.Equal(t, tt.missing, right.StartByte())
			}
		})
	}
}

// requireErrorsEndWithTokens checks that no ERROR node ends with an extra.
func requireErrorsEndWithTokens(t *testing.T, n syntax.Node, src string) {
	t.Helper()
	if n.IsError() && n.ChildCount() > 0 {
		last := n.Child(n.ChildCount() - 1)
		require.False(t, last.IsExtra() && !last.IsError(), "%s ends with %s in %q", n, last.Kind(), src)
	}
	for i := range n.ChildCount() {
		requireErrorsEndWithTokens(t, n.Child(i), src)
	}
}

func TestEmptyInputIsError(t *testing.T) {
	p := newParser(t, compile(t, arith()))
	tree := parse(t, p, "")
	assert.Equal(t, "(ERROR)", tree.String())
	assert.True(t, tree.RootNode().HasError())
	assert.Equal(t, 0, tree.Len())
}

func TestGarbageInput(t *testing.T) {
	rng := rand.New(rand.NewPCG(3, 5))
	alphabet := []byte("ab19+-*/=;()# \n\t$")
	for _, g := range []*grammar.Grammar{arith(), calc()} {
		p := newParser(t, compile(t, g))
		for range 50 {
			src := make([]byte, rng.IntN(60))
			for i := range src {
				src[i] = alphabet[rng.IntN(len(alphabet))]
			}
			tree, err := p.Parse(src, nil)
			require.NoError(t, err, "%q", src)
			require.NotNil(t, tree)
			requireCoverage(t, tree, string(src))
			if !tree.RootNode().IsError() {
				requireErrorsEndWithTokens(t, tree.RootNode(), string(src))
			}
		}
	}
}

func TestAmbiguousGrammar(t *testing.T) {
	g := grammar.New("sum").
		Rule("e", grammar.Choice(grammar.Seq(grammar.Sym("e"), grammar.Str("+"), grammar.Sym("e")), grammar.Sym("num"))).
		Token("num", `[0-9]+`)
	lang := compile(t, g)
	require.NotEmpty(t, lang.Conflicts())

	p := newParser(t, lang)
	tree := parse(t, p, "1+2+3")
	assert.False(t, tree.RootNode().HasError())
	assert.Equal(t, "(e (e (e (num)) (e (num))) (e (num)))", tree.String())
	requireCoverage(t, tree, "1+2+3")

	again := parse(t, p, "1+2+3")
	assert.True(t, tree.Equal(again))

	// Subtrees built while versions competed are never reused.
	assert.True(t, tree.Root().IsFragile())
	assert.True(t, tree.Root().Child(0).IsFragile())
	edited, src := reparse(t, p, tree, "1+2+3", 4, 5, "4")
	requireSameTree(t, parse(t, p, src), edited, src)
}

func spacedSum() *grammar.Grammar {
	return grammar.New("sum").
		Rule("e", grammar.Choice(grammar.Seq(grammar.Sym("e"), grammar.Str("+"), grammar.Sym("e")), grammar.Sym("num"))).
		Token("num", `[0-9]+`).
		Token("_ws", `\s+`).
		Extra("_ws")
}

func TestAmbiguousGrammarBoundedTime(t *testing.T) {
	const garbled = "181+  +8++77+8+78+ +7 1++ 1 + 8+7+++7"
	tests := []struct {
		name string
		src  string
	}{
		{"garbled", garbled},
		{"garbled twice", garbled + " " + garbled},
		{"garbled repeated", strings.Repeat(garbled+"+", 8)},
		{"long valid sum", strings.TrimSuffix(strings.Repeat("1 + ", 100), " + ")},
	}
	lang := compile(t, spacedSum())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newParser(t, lang, WithTimeout(10*time.Second))
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			start := time.Now()
			tree, err := p.ParseContext(ctx, []byte(tt.src), nil)
			require.NoError(t, err)
			assert.Less(t, time.Since(start), 2*time.Second)
			requireCoverage(t, tree, tt.src)
		})
	}
}

func TestCancelInsideStep(t *testing.T) {
	var flag atomic.Bool
	p := newParser(t, compile(t, spacedSum()), WithCancelFlag(&flag))
	src := []byte("1 + 2 + 3")
	p.ctx = context.Background()
	p.begin(src, nil, time.Now())
	defer p.release()

	h := p.heads[0]
	p.heads = p.heads[:0]
	n := p.stack.nodes[h]
	tok := p.lex(n.state, n.pos, n.ext)
	flag.Store(true)

	assert.False(t, p.process(h, tok, tok.size.Bytes+tok.la))
	assert.True(t, p.halted)
	assert.Empty(t, p.heads)

	p.recover(h, tok, tok.size.Bytes+tok.la)
	assert.Empty(t, p.heads)
	assert.Zero(t, p.Stats().Recoveries)

	_, ok := p.reduceBefore(h, tok.sym, tok.size.Bytes)
	assert.False(t, ok)
}

func TestCancelDuringParse(t *testing.T) {
	src := []byte(strings.Repeat("181+  +8++77+8+78+ +7 1++ 1 + 8+7+++7\n", 2000))
	tests := []struct {
		name  string
		parse func(p *Parser) error
		opts  []Option
	}{
		{
			name: "timeout",
			opts: []Option{WithTimeout(time.Millisecond)},
			parse: func(p *Parser) error {
				_, err := p.Parse(src, nil)
				return err
			},
		},
		{
			name: "context",
			parse: func(p *Parser) error {
				ctx, cancel := context.WithTimeout(context.Background(), time.Millisecond)
				defer cancel()
				_, err := p.ParseContext(ctx, src, nil)
				return err
			},
		},
	}
	lang := compile(t, spacedSum())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newParser(t, lang, tt.opts...)
			start := time.Now()
			err := tt.parse(p)
			assert.ErrorIs(t, err, ErrCancelled)
			assert.Less(t, time.Since(start), 2*time.Second)

			tree := parse(t, newParser(t, lang), "1 + 2")
			assert.False(t, tree.RootNode().HasError())
		})
	}
}

func TestDynamicPrecedence(t *testing.T) {
	g := grammar.New("dyn").
		Rule("x", grammar.Choice(grammar.Sym("p"), grammar.PrecDynamic(1, grammar.Sym("q")))).
		Rule("p", grammar.Sym("word")).
		Rule("q", grammar.Sym("word")).
		Token("word", `[a-z]+`)
	p := newParser(t, compile(t, g))
	tree := parse(t, p, "hello")
	assert.Equal(t, "(x (q (word)))", tree.String())
	assert.Equal(t, 1, tree.Root().DynamicPrecedence())
}

func TestExternalScanner(t *testing.T) {
	p := newParser(t, layoutLanguage(t))
	src := "a:\n  b\nc\n"
	tree := parse(t, p, src)
	assert.Equal(t,
		"(module (block (word) (newline) (indent) (simple (word) (newline)) (dedent)) (simple (word) (newline)))",
		tree.String())
	assert.False(t, tree.RootNode().HasError())
	requireCoverage(t, tree, src)

	noNewline := parse(t, p, "a:\n  b")
	assert.False(t, noNewline.RootNode().HasError(), noNewline.String())
}

func TestExternalScannerReindent(t *testing.T) {
	p := newParser(t, layoutLanguage(t))
	src := "a:\n  b\n  c\n"
	old := parse(t, p, src)
	assert.Equal(t,
		"(module (block (word) (newline) (indent) (simple (word) (newline)) (simple (word) (newline)) (dedent)))",
		old.String())

	tree, next := reparse(t, p, old, src, 7, 9, "")
	assert.Equal(t, "a:\n  b\nc\n", next)
	requireSameTree(t, parse(t, p, next), tree, next)
	assert.Equal(t,
		"(module (block (word) (newline) (indent) (simple (word) (newline)) (dedent)) (simple (word) (newline)))",
		tree.String())
}

func TestSetLanguage(t *testing.T) {
	p := New()
	_, err := p.Parse([]byte("1+2"), nil)
	assert.ErrorIs(t, err, ErrNoLanguage)
	assert.ErrorIs(t, p.SetLanguage(nil), ErrNoLanguage)
	assert.Nil(t, p.Language())

	old, err := grammar.Compile(arith(), grammar.WithABI(1))
	require.NoError(t, err)
	err = p.SetLanguage(old)
	assert.ErrorIs(t, err, grammar.ErrVersionMismatch)
	var vm *grammar.VersionMismatchError
	require.ErrorAs(t, err, &vm)
	assert.Equal(t, uint16(1), vm.Got)
	assert.Nil(t, p.Language())

	lang := compile(t, arith())
	require.NoError(t, p.SetLanguage(lang))
	assert.Same(t, lang, p.Language())
}

func TestOldTreeMismatch(t *testing.T) {
	p := newParser(t, compile(t, arith()))
	old := parse(t, p, "1+2")

	// An old tree that was not edited to match is ignored.
	tree, err := p.Parse([]byte("10+2"), old)
	require.NoError(t, err)
	assert.Zero(t, p.Stats().ReusedNodes)
	assert.Equal(t, "expr[num[0:2], \"+\"[2:3], num[3:4]]\n", printed(t, tree, "10+2"))

	other := newParser(t, compile(t, calc()))
	tree, err = other.Parse([]byte("a = 1;"), parse(t, p, "1+2+"))
	require.NoError(t, err)
	assert.Zero(t, other.Stats().ReusedNodes)
	assert.False(t, tree.RootNode().HasError())
}

func largeProgram() []byte {
	return []byte(strings.Repeat("x = 1 + 2 * (3 - y);\n", 4000))
}

func TestCancelledContext(t *testing.T) {
	p := newParser(t, compile(t, calc()))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	tree, err := p.ParseContext(ctx, largeProgram(), nil)
	assert.ErrorIs(t, err, ErrCancelled)
	assert.Nil(t, tree)

	tree = parse(t, p, "a = 1;")
	assert.False(t, tree.RootNode().HasError())
}

func TestCancelFlag(t *testing.T) {
	var flag atomic.Bool
	flag.Store(true)
	p := newParser(t, compile(t, calc()), WithCancelFlag(&flag))
	_, err := p.Parse(largeProgram(), nil)
	assert.ErrorIs(t, err, ErrCancelled)

	flag.Store(false)
	tree := parse(t, p, "a = 1;")
	assert.False(t, tree.RootNode().HasError())
}

func TestTimeout(t *testing.T) {
	p := newParser(t, compile(t, calc()), WithTimeout(time.Nanosecond))
	_, err := p.Parse(largeProgram(), nil)
	assert.ErrorIs(t, err, ErrCancelled)
}

func TestOptions(t *testing.T) {
	cache := syntax.NewCache(0)
	lang := compile(t, arith())
	opts := []Option{
		WithCache(cache),
		WithLogger(commonlog.GetLogger("arbor.parser.test")),
		WithMeter(noop.NewMeterProvider().Meter("test")),
		WithMaxVersions(4),
	}
	a := newParser(t, lang, opts...)
	b := newParser(t, lang, opts...)

	ta := parse(t, a, "1+2")
	tb := parse(t, b, "1+2")
	assert.Same(t, ta.Root(), tb.Root())
	assert.Positive(t, cache.Len())
}

func TestMaxVersions(t *testing.T) {
	g := grammar.New("sum").
		Rule("e", grammar.Choice(grammar.Seq(grammar.Sym("e"), grammar.Str("+"), grammar.Sym("e")), grammar.Sym("num"))).
		Token("num", `[0-9]+`)
	p := newParser(t, compile(t, g), WithMaxVersions(1))
	src := strings.TrimSuffix(strings.Repeat("1+", 30), "+")
	tree := parse(t, p, src)
	assert.False(t, tree.RootNode().HasError())
	requireCoverage(t, tree, src)
}

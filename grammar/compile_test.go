package grammar

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// accepts drives the tables as a plain LR parser, taking the first action
// of every cell.
func accepts(t *testing.T, l *Language, input []Symbol) bool {
	t.Helper()
	stack := []StateID{0}
	for i, steps := 0, 0; steps < 10000; steps++ {
		top := stack[len(stack)-1]
		actions := l.Actions(top, input[i])
		if len(actions) == 0 {
			return false
		}
		switch a := actions[0]; a.Type {
		case ActionShift:
			stack = append(stack, a.State)
			i++
		case ActionReduce:
			p := l.Production(a.Production)
			stack = stack[:len(stack)-p.ChildCount()]
			next, ok := l.Goto(stack[len(stack)-1], p.LHS)
			if !ok {
				return false
			}
			stack = append(stack, next)
		case ActionAccept:
			return true
		}
	}
	t.Fatal("parse did not terminate")
	return false
}

func symbols(t *testing.T, l *Language, names ...string) []Symbol {
	t.Helper()
	out := make([]Symbol, 0, len(names)+1)
	for _, name := range names {
		s, ok := l.SymbolForName(name, true)
		if !ok {
			s, ok = l.SymbolForName(name, false)
		}
		require.True(t, ok, "symbol %q", name)
		out = append(out, s)
	}
	return append(out, SymbolEnd)
}

func arith() *Grammar {
	return New("arith").
		Rule("expr", Seq(Field("left", Sym("num")), Field("operator", Choice(Str("+"), Str("*"))), Field("right", Sym("num")))).
		Token("num", `[0-9]+`).
		Token("ws", `\s+`).
		Extra("ws")
}

func TestCompileSymbolLayout(t *testing.T) {
	l, err := Compile(arith())
	require.NoError(t, err)

	assert.Equal(t, "arith", l.Name())
	assert.Equal(t, FormatVersion, l.Version())
	assert.Equal(t, "end", l.SymbolName(SymbolEnd))
	assert.Equal(t, "ERROR", l.SymbolName(SymbolError))

	num, ok := l.SymbolForName("num", true)
	require.True(t, ok)
	assert.Equal(t, Symbol(2), num)
	ws, _ := l.SymbolForName("ws", true)
	assert.True(t, l.IsExtra(ws))
	plus, ok := l.SymbolForName("+", false)
	require.True(t, ok)
	assert.Equal(t, Symbol(4), plus)
	_, ok = l.SymbolForName("+", true)
	assert.False(t, ok)

	assert.Equal(t, 6, l.TokenCount())
	expr, ok := l.SymbolForName("expr", true)
	require.True(t, ok)
	assert.False(t, l.IsTerminal(expr))
	assert.Equal(t, expr, l.StartSymbol())
	assert.Equal(t, 3, l.ProductionCount())
	assert.Empty(t, l.Conflicts())

	assert.Equal(t, 3, l.FieldCount())
	left, ok := l.FieldIDForName("left")
	require.True(t, ok)
	p := l.Production(1)
	assert.Equal(t, expr, p.LHS)
	assert.Equal(t, []FieldID{left, left + 1, left + 2}, p.Fields)
}

func TestCompileAccepts(t *testing.T) {
	l, err := Compile(arith())
	require.NoError(t, err)

	assert.True(t, accepts(t, l, symbols(t, l, "num", "+", "num")))
	assert.True(t, accepts(t, l, symbols(t, l, "num", "*", "num")))
	assert.False(t, accepts(t, l, symbols(t, l, "num", "+")))
	assert.False(t, accepts(t, l, symbols(t, l, "+", "num")))
}

func TestLexModes(t *testing.T) {
	l, err := Compile(arith())
	require.NoError(t, err)

	mode := l.LexMode(0)
	for i := range l.Scanner().Len() {
		name := l.SymbolName(l.ScannerSymbol(i))
		switch name {
		case "num", "ws":
			assert.True(t, mode.Valid(i), name)
		default:
			assert.False(t, mode.Valid(i), name)
		}
	}
	assert.False(t, mode.HasExternal())
}

func binaryOps(prec bool) *Grammar {
	plus := Seq(Sym("e"), Str("+"), Sym("e"))
	times := Seq(Sym("e"), Str("*"), Sym("e"))
	if prec {
		plus = PrecLeft(1, plus)
		times = PrecLeft(2, times)
	}
	return New("binary").
		Rule("e", Choice(plus, times, Sym("num"))).
		Token("num", `[0-9]+`)
}

func TestConflictsKept(t *testing.T) {
	l, err := Compile(binaryOps(false))
	require.NoError(t, err)
	require.NotEmpty(t, l.Conflicts())

	for _, c := range l.Conflicts() {
		require.Len(t, c.Actions, 2, "state %d symbol %s", c.State, l.SymbolName(c.Symbol))
		assert.Equal(t, ActionShift, c.Actions[0].Type)
		assert.Equal(t, ActionReduce, c.Actions[1].Type)
	}
	assert.True(t, accepts(t, l, symbols(t, l, "num", "+", "num", "*", "num")))
}

func TestPrecedenceResolvesConflicts(t *testing.T) {
	l, err := Compile(binaryOps(true))
	require.NoError(t, err)
	assert.Empty(t, l.Conflicts())
	assert.True(t, accepts(t, l, symbols(t, l, "num", "+", "num", "*", "num", "+", "num")))
}

func TestRightAssociativity(t *testing.T) {
	g := New("pow").
		Rule("e", Choice(PrecRight(1, Seq(Sym("e"), Str("^"), Sym("e"))), Sym("num"))).
		Token("num", `[0-9]+`)
	l, err := Compile(g)
	require.NoError(t, err)
	assert.Empty(t, l.Conflicts())

	caret, _ := l.SymbolForName("^", false)
	for s := range l.StateCount() {
		actions := l.Actions(StateID(s), caret)
		for _, a := range actions {
			if a.Type == ActionReduce && l.Production(a.Production).ChildCount() == 3 {
				t.Errorf("state %d reduces e ^ e on ^, want shift", s)
			}
		}
	}
}

func TestRepeat(t *testing.T) {
	g := New("list").
		Rule("list", Repeat(Sym("num"))).
		Token("num", `[0-9]+`)
	l, err := Compile(g)
	require.NoError(t, err)

	aux, ok := l.SymbolForName("list_repeat1", false)
	require.True(t, ok)
	assert.False(t, l.Symbol(aux).Visible)
	assert.True(t, accepts(t, l, symbols(t, l)))
	assert.True(t, accepts(t, l, symbols(t, l, "num")))
	assert.True(t, accepts(t, l, symbols(t, l, "num", "num", "num")))
}

func TestHiddenRule(t *testing.T) {
	g := New("hidden").
		Rule("doc", Repeat1(Sym("_item"))).
		Rule("_item", Choice(Sym("word"), Sym("num"))).
		Token("word", `[a-z]+`).
		Token("num", `[0-9]+`)
	l, err := Compile(g)
	require.NoError(t, err)

	item, ok := l.SymbolForName("_item", true)
	require.True(t, ok)
	assert.False(t, l.Symbol(item).Visible)
	assert.True(t, accepts(t, l, symbols(t, l, "word", "num")))
}

func TestCompileErrors(t *testing.T) {
	tests := []struct {
		name string
		g    *Grammar
		rule string
	}{
		{"undefined symbol", New("x").Rule("a", Sym("b")), "a"},
		{"nullable token", New("x").Rule("a", Sym("t")).Token("t", `x*`), "t"},
		{"extra not a token", New("x").Rule("a", Str("a")).Extra("a"), "a"},
		{"unknown start", &Grammar{Start: "zz", Rules: []RuleDef{{Name: "a", Body: Str("a")}}}, "zz"},
		{"duplicate rule", New("x").Rule("a", Str("a")).Rule("a", Str("b")), "a"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Compile(tt.g)
			var ce *CompileError
			require.True(t, errors.As(err, &ce), "err = %v", err)
			assert.Equal(t, tt.rule, ce.Rule)
		})
	}

	_, err := Compile(New("empty"))
	assert.Error(t, err)

	_, err = Compile(New("bad").Rule("a", Sym("t")).Token("t", `[`))
	assert.ErrorContains(t, err, "token t")
}

func TestWithABI(t *testing.T) {
	l, err := Compile(arith(), WithABI(MinCompatibleVersion))
	require.NoError(t, err)
	assert.Equal(t, MinCompatibleVersion, l.Version())
	assert.NoError(t, CheckVersion(l.Version()))

	_, err = Compile(arith(), WithABI(FormatVersion+1))
	assert.Error(t, err)

	err = CheckVersion(1)
	assert.ErrorIs(t, err, ErrVersionMismatch)
	var vm *VersionMismatchError
	require.ErrorAs(t, err, &vm)
	assert.Equal(t, uint16(1), vm.Got)
}

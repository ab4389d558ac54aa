package syntax

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dhamidi/arbor/grammar"
)

type fixture struct {
	lang    *grammar.Language
	b       *Builder
	num     grammar.Symbol
	ws      grammar.Symbol
	plus    grammar.Symbol
	star    grammar.Symbol
	addProd uint32
	mulProd uint32
}

func newFixture(t *testing.T, cache *Cache) *fixture {
	t.Helper()
	g := grammar.New("arith").
		Rule("expr", grammar.Seq(
			grammar.Field("left", grammar.Sym("num")),
			grammar.Field("operator", grammar.Choice(grammar.Str("+"), grammar.Str("*"))),
			grammar.Field("right", grammar.Sym("num")),
		)).
		Token("num", `[0-9]+`).
		Token("_ws", `\s+`).
		Extra("_ws")
	lang, err := grammar.Compile(g)
	require.NoError(t, err)

	f := &fixture{lang: lang, b: NewBuilder(lang, cache)}
	var ok bool
	f.num, ok = lang.SymbolForName("num", true)
	require.True(t, ok)
	f.ws, ok = lang.SymbolForName("_ws", false)
	require.True(t, ok)
	f.plus, _ = lang.SymbolForName("+", false)
	f.star, _ = lang.SymbolForName("*", false)
	for id := range lang.ProductionCount() {
		p := lang.Production(uint32(id))
		if p.ChildCount() != 3 {
			continue
		}
		switch p.RHS[1] {
		case f.plus:
			f.addProd = uint32(id)
		case f.star:
			f.mulProd = uint32(id)
		}
	}
	require.NotZero(t, f.addProd)
	require.NotZero(t, f.mulProd)
	return f
}

func (f *fixture) leaf(sym grammar.Symbol, text string) *Subtree {
	return f.b.Leaf(Leaf{Symbol: sym, Size: LengthOf([]byte(text))})
}

// binary builds the tree for "<a><op><b>" with single-character parts.
func (f *fixture) binary(a string, op grammar.Symbol, b string) *Tree {
	prod := f.addProd
	if op == f.star {
		prod = f.mulProd
	}
	root := f.b.Node(prod, []*Subtree{f.leaf(f.num, a), f.leaf(op, "+"), f.leaf(f.num, b)}, 0, 3, false)
	return NewTree(root, f.lang)
}

func TestNodeNavigation(t *testing.T) {
	f := newFixture(t, nil)
	tree := f.binary("1", f.plus, "2")
	root := tree.RootNode()

	assert.Equal(t, "expr", root.Kind())
	assert.True(t, root.IsNamed())
	assert.Equal(t, 3, root.ChildCount())
	assert.Equal(t, 2, root.NamedChildCount())
	assert.Equal(t, Range{StartByte: 0, EndByte: 3, EndPoint: Point{0, 3}}, root.Range())

	op := root.Child(1)
	assert.Equal(t, "+", op.Kind())
	assert.False(t, op.IsNamed())
	assert.Equal(t, "operator", op.FieldName())
	assert.Equal(t, 1, op.StartByte())
	assert.Equal(t, 2, op.EndByte())
	assert.True(t, op.Parent().Equal(root))

	assert.Equal(t, "left", root.FieldNameForChild(0))
	assert.Equal(t, 2, root.ChildByFieldName("right").StartByte())
	assert.True(t, root.ChildByFieldName("nope").IsNull())
	assert.Len(t, root.ChildrenByFieldName("left"), 1)

	assert.Equal(t, 2, root.NamedChild(1).StartByte())
	assert.Equal(t, 2, op.NextSibling().StartByte())
	assert.Equal(t, 0, op.PrevSibling().StartByte())
	assert.True(t, op.NextSibling().NextSibling().IsNull())
	assert.True(t, root.Child(0).PrevSibling().IsNull())
	assert.Equal(t, 2, root.Child(0).NextNamedSibling().StartByte())
	assert.True(t, root.Parent().IsNull())
	assert.True(t, root.Child(7).IsNull())

	assert.Equal(t, "2", root.Child(2).Content([]byte("1+2")))
}

func TestNodeString(t *testing.T) {
	f := newFixture(t, nil)
	tree := f.binary("1", f.plus, "2")
	assert.Equal(t, "(expr left: (num) right: (num))", tree.String())

	missing := f.b.Missing(f.num, 0, "")
	root := f.b.Node(f.addProd, []*Subtree{f.leaf(f.num, "1"), f.leaf(f.plus, "+"), missing}, 0, 2, false)
	assert.Equal(t, "(expr left: (num) right: (MISSING num))", NewTree(root, f.lang).String())
	assert.True(t, root.HasError())
	assert.Equal(t, CostMissing, root.ErrorCost())
}

func TestPrint(t *testing.T) {
	f := newFixture(t, nil)
	var buf bytes.Buffer
	require.NoError(t, f.binary("1", f.plus, "2").Print(&buf, nil))
	assert.Equal(t, "expr[num[0:1], \"+\"[1:2], num[2:3]]\n", buf.String())

	buf.Reset()
	require.NoError(t, f.binary("1", f.star, "2").Print(&buf, nil))
	assert.Equal(t, "expr[num[0:1], \"*\"[1:2], num[2:3]]\n", buf.String())
}

func TestPrintSkipsWhitespace(t *testing.T) {
	f := newFixture(t, nil)
	ws := f.b.Leaf(Leaf{Symbol: f.ws, Size: LengthOf([]byte(" ")), Extra: true})
	expr := f.b.Node(f.addProd, []*Subtree{f.leaf(f.num, "1"), ws, f.leaf(f.plus, "+"), f.leaf(f.num, "2")}, 0, 4, false)
	root := f.b.Root(expr, []*Subtree{ws}, nil)
	tree := NewTree(root, f.lang)
	src := []byte(" 1 +2")

	assert.Equal(t, 5, tree.Len())
	assert.Equal(t, 2, tree.RootNode().NamedChildCount())
	assert.Equal(t, "(expr left: (num) right: (num))", tree.String())

	var buf bytes.Buffer
	require.NoError(t, tree.Print(&buf, src))
	assert.Equal(t, "expr[num[1:2], \"+\"[3:4], num[4:5]]\n", buf.String())
}

func TestHiddenChildrenAreSpliced(t *testing.T) {
	g := grammar.New("list").
		Rule("list", grammar.Seq(grammar.Str("["), grammar.Sym("_items"), grammar.Str("]"))).
		Rule("_items", grammar.Seq(grammar.Field("first", grammar.Sym("num")), grammar.Str(","), grammar.Sym("num"))).
		Token("num", `[0-9]+`)
	lang, err := grammar.Compile(g)
	require.NoError(t, err)
	b := NewBuilder(lang, nil)

	sym := func(name string, named bool) grammar.Symbol {
		s, ok := lang.SymbolForName(name, named)
		require.True(t, ok, name)
		return s
	}
	prodFor := func(lhs grammar.Symbol) uint32 {
		for id := range lang.ProductionCount() {
			if lang.Production(uint32(id)).LHS == lhs {
				return uint32(id)
			}
		}
		t.Fatalf("no production for %d", lhs)
		return 0
	}
	leaf := func(s grammar.Symbol) *Subtree {
		return b.Leaf(Leaf{Symbol: s, Size: Length{Bytes: 1, Extent: Point{0, 1}}})
	}

	items := b.Node(prodFor(sym("_items", true)), []*Subtree{leaf(sym("num", true)), leaf(sym(",", false)), leaf(sym("num", true))}, 1, 3, false)
	list := b.Node(prodFor(sym("list", true)), []*Subtree{leaf(sym("[", false)), items, leaf(sym("]", false))}, 0, 5, false)

	assert.Equal(t, 5, list.ChildCount())
	assert.Equal(t, 5, list.Size().Bytes)
	root := NewTree(list, lang).RootNode()
	assert.Equal(t, "(list first: (num) (num))", root.String())
	assert.Equal(t, 1, root.ChildByFieldName("first").StartByte())
}

func TestDescendantForByteRange(t *testing.T) {
	f := newFixture(t, nil)
	root := f.binary("1", f.plus, "2").RootNode()

	tests := []struct {
		start, end int
		named      bool
		kind       string
		at         int
	}{
		{1, 2, false, "+", 1},
		{1, 1, false, "+", 1},
		{0, 1, false, "num", 0},
		{0, 3, false, "expr", 0},
		{1, 3, false, "expr", 0},
		{1, 2, true, "expr", 0},
		{2, 3, true, "num", 2},
	}
	for _, tt := range tests {
		var n Node
		if tt.named {
			n = root.NamedDescendantForByteRange(tt.start, tt.end)
		} else {
			n = root.DescendantForByteRange(tt.start, tt.end)
		}
		assert.Equal(t, tt.kind, n.Kind(), "[%d, %d) named=%v", tt.start, tt.end, tt.named)
		assert.Equal(t, tt.at, n.StartByte(), "[%d, %d) named=%v", tt.start, tt.end, tt.named)
	}
	assert.True(t, root.DescendantForByteRange(2, 9).IsNull())
}

func TestCursor(t *testing.T) {
	f := newFixture(t, nil)
	tree := f.binary("1", f.plus, "2")
	c := tree.Walk()

	assert.Equal(t, "expr", c.Node().Kind())
	assert.False(t, c.GotoParent())
	assert.False(t, c.GotoNextSibling())
	require.True(t, c.GotoFirstChild())
	assert.Equal(t, 1, c.Depth())
	assert.Equal(t, "left", c.FieldName())
	require.True(t, c.GotoNextSibling())
	assert.Equal(t, "operator", c.FieldName())
	require.True(t, c.GotoNextSibling())
	assert.Equal(t, 2, c.Node().StartByte())
	assert.False(t, c.GotoNextSibling())
	assert.False(t, c.GotoFirstChild())
	require.True(t, c.GotoParent())
	assert.Equal(t, 0, c.Depth())

	assert.Equal(t, 2, c.GotoFirstChildForByte(2))
	assert.Equal(t, "right", c.FieldName())
	assert.True(t, c.Node().Parent().Equal(tree.RootNode()))

	c.Reset(tree.RootNode())
	assert.Equal(t, -1, c.GotoFirstChildForByte(3))

	var kinds []string
	for leaf := range tree.Leaves() {
		kinds = append(kinds, leaf.Kind())
	}
	assert.Equal(t, []string{"num", "+", "num"}, kinds)
}

func TestEditCopiesPath(t *testing.T) {
	f := newFixture(t, nil)
	src := []byte("1+2")
	tree := f.binary("1", f.plus, "2")

	edited := tree.Edit(EditFromText(src, 1, 2, []byte("*")))
	assert.Equal(t, 1, edited.Version())
	assert.Equal(t, 0, tree.Version())
	assert.False(t, tree.RootNode().HasChanges())
	assert.True(t, edited.RootNode().HasChanges())
	assert.True(t, edited.RootNode().Child(1).HasChanges())
	assert.False(t, edited.RootNode().Child(2).HasChanges())
	assert.Same(t, tree.Root().Child(2), edited.Root().Child(2))
	assert.Equal(t, 3, edited.Len())
}

func TestEditSizes(t *testing.T) {
	f := newFixture(t, nil)
	src := []byte("1+2")

	tests := []struct {
		name        string
		start, end  int
		text        string
		total       int
		childStarts []int
	}{
		{"append", 3, 3, "3", 4, []int{0, 1, 2}},
		{"delete first", 0, 1, "", 2, []int{0, 0, 1}},
		{"grow operator", 1, 2, "++", 4, []int{0, 1, 3}},
		{"insert newline", 1, 1, "\n", 4, []int{0, 2, 3}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tree := f.binary("1", f.plus, "2")
			edited := tree.Edit(EditFromText(src, tt.start, tt.end, []byte(tt.text)))
			root := edited.RootNode()
			assert.Equal(t, tt.total, edited.Len())
			for i, want := range tt.childStarts {
				assert.Equal(t, want, root.Child(i).StartByte(), "child %d", i)
			}
			// The old tree is untouched.
			assert.Equal(t, 3, tree.Len())
		})
	}

	tree := f.binary("1", f.plus, "2")
	edited := tree.Edit(EditFromText(src, 1, 1, []byte("\n")))
	assert.Equal(t, Point{1, 1}, edited.RootNode().Child(2).StartPoint())
}

func TestCacheSharesSubtrees(t *testing.T) {
	cache := NewCache(0)
	assert.Equal(t, DefaultCacheSize, cache.Capacity())
	f := newFixture(t, cache)

	a := f.leaf(f.num, "1")
	b := f.leaf(f.num, "1")
	assert.Same(t, a, b)
	hits, misses := cache.Stats()
	assert.Equal(t, 1, hits)
	assert.Equal(t, 1, misses)

	t1 := f.binary("1", f.plus, "2")
	t2 := f.binary("1", f.plus, "2")
	assert.Same(t, t1.Root(), t2.Root())

	cache.Clear()
	assert.Zero(t, cache.Len())
}

func TestCacheEviction(t *testing.T) {
	cache := NewCache(2)
	f := newFixture(t, cache)

	first := f.leaf(f.num, "1")
	f.leaf(f.num, "22")
	f.leaf(f.num, "333")
	assert.Equal(t, 2, cache.Len())
	// The evicted leaf is rebuilt, which costs sharing but not
	// correctness.
	again := f.leaf(f.num, "1")
	assert.NotSame(t, first, again)
	assert.True(t, Equal(first, again))
}

func TestEqual(t *testing.T) {
	f := newFixture(t, nil)
	a := f.binary("1", f.plus, "2")
	b := f.binary("1", f.plus, "2")
	c := f.binary("1", f.star, "2")

	assert.NotSame(t, a.Root(), b.Root())
	assert.True(t, a.Equal(b))
	assert.False(t, a.Equal(c))
	assert.False(t, Equal(a.Root(), nil))
}

func TestMarshalJSON(t *testing.T) {
	f := newFixture(t, nil)
	data, err := json.Marshal(f.binary("1", f.plus, "2"))
	require.NoError(t, err)

	var got struct {
		Kind     string `json:"kind"`
		Named    bool   `json:"named"`
		Children []struct {
			Kind  string `json:"kind"`
			Field string `json:"field"`
			Span  struct {
				Start struct {
					Offset int `json:"offset"`
				} `json:"start"`
			} `json:"span"`
		} `json:"children"`
	}
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, "expr", got.Kind)
	assert.True(t, got.Named)
	require.Len(t, got.Children, 3)
	assert.Equal(t, "operator", got.Children[1].Field)
	assert.Equal(t, "+", got.Children[1].Kind)
	assert.Equal(t, 2, got.Children[2].Span.Start.Offset)
}

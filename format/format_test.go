package format

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dhamidi/arbor/languages/scrapile"
	"github.com/dhamidi/arbor/parser"
	"github.com/dhamidi/arbor/query"
	"github.com/dhamidi/arbor/syntax"
)

func parse(t *testing.T, src string) *syntax.Tree {
	t.Helper()
	p := parser.New()
	require.NoError(t, p.SetLanguage(scrapile.Language()))
	tree, err := p.Parse([]byte(src), nil)
	require.NoError(t, err)
	return tree
}

func encode(t *testing.T, name, src string, opts ...Option) string {
	t.Helper()
	var buf bytes.Buffer
	enc, err := New(name, &buf, opts...)
	require.NoError(t, err)
	require.NoError(t, enc.Encode(parse(t, src), []byte(src)))
	return buf.String()
}

const assign = "main { mut x = 1; }"

func TestSexp(t *testing.T) {
	assert.Equal(t,
		"(Program (Block (Mutation name: (identifier) value: (number))))\n",
		encode(t, "sexp", assign))
	assert.Equal(t,
		"(Program [0:0-0:19] (Block [0:5-0:19] (Mutation [0:7-0:17] name: (identifier [0:11-0:12]) value: (number [0:15-0:16]))))\n",
		encode(t, "sexp", assign, WithPositions()))
}

func TestOutline(t *testing.T) {
	out := encode(t, "outline", assign)
	assert.Contains(t, out, "Program\n  \"main\"\n  Block\n")
	assert.Contains(t, out, "      name: identifier \"x\"\n")
	assert.Contains(t, out, "      value: number \"1\"\n")
	assert.NotContains(t, out, "_ws")

	out = encode(t, "outline", assign, WithPositions())
	assert.Contains(t, out, "Block [0:5-0:19]\n")
}

func TestJSON(t *testing.T) {
	var root struct {
		Kind     string `json:"kind"`
		Children []struct {
			Kind string `json:"kind"`
		} `json:"children"`
	}
	require.NoError(t, json.Unmarshal([]byte(encode(t, "json", assign)), &root))
	assert.Equal(t, "Program", root.Kind)
	require.NotEmpty(t, root.Children)
	assert.Equal(t, "main", root.Children[0].Kind)
}

func TestBrackets(t *testing.T) {
	out := encode(t, "brackets", "main { }")
	assert.Equal(t, "Program[\"main\"[0:4], Block[\"{\"[5:6], \"}\"[7:8]]]\n", out)
}

func TestUnknownFormat(t *testing.T) {
	_, err := New("yaml", &bytes.Buffer{})
	assert.EqualError(t, err, "unknown format: yaml")
}

func TestLineEncoderMatches(t *testing.T) {
	src := "main { mut x = y; }"
	q, err := query.New(scrapile.Language(), `(identifier) @id`)
	require.NoError(t, err)
	var buf bytes.Buffer
	require.NoError(t, NewLineEncoder(&buf).EncodeMatches(q.Matches(parse(t, src).RootNode(), []byte(src)), []byte(src)))
	assert.Equal(t, "0\tid\t[0:11-0:12]\tidentifier\t\"x\"\n0\tid\t[0:15-0:16]\tidentifier\t\"y\"\n", buf.String())
}

func TestProblems(t *testing.T) {
	src := "main { mut x = 1 }"
	problems, err := Problems(parse(t, src), []byte(src))
	require.NoError(t, err)
	require.Len(t, problems, 1)
	assert.True(t, problems[0].Missing)
	assert.Equal(t, "missing ;", problems[0].Message)

	problems, err = Problems(parse(t, assign), []byte(assign))
	require.NoError(t, err)
	assert.Empty(t, problems)

	var buf bytes.Buffer
	require.NoError(t, NewLineEncoder(&buf).EncodeProblems("a.scrap", []Problem{
		{Start: syntax.Point{Row: 2, Column: 4}, Message: "syntax error"},
	}))
	assert.Equal(t, "a.scrap:3:5: syntax error\n", buf.String())
}

func TestAbbreviate(t *testing.T) {
	assert.Equal(t, "abc", Abbreviate("abc\ndef", 10))
	assert.Equal(t, "ab…", Abbreviate("abcdef", 2))
}

package format

import (
	"fmt"
	"strings"
	"sync"

	"github.com/dhamidi/arbor/grammar"
	"github.com/dhamidi/arbor/query"
	"github.com/dhamidi/arbor/syntax"
)

// ProblemsQuery captures the error and missing nodes of a tree.
const ProblemsQuery = `(ERROR) @error (MISSING) @missing`

// Problem is a syntax error found in a tree.
type Problem struct {
	StartByte int
	EndByte   int
	Start     syntax.Point
	End       syntax.Point
	Missing   bool
	Message   string
}

var problemQueries sync.Map // *grammar.Language -> *query.Query

func problemsQuery(lang *grammar.Language) (*query.Query, error) {
	if q, ok := problemQueries.Load(lang); ok {
		return q.(*query.Query), nil
	}
	q, err := query.New(lang, ProblemsQuery)
	if err != nil {
		return nil, fmt.Errorf("problems query: %w", err)
	}
	actual, _ := problemQueries.LoadOrStore(lang, q)
	return actual.(*query.Query), nil
}

// Problems lists the error and missing nodes of tree in document order.
func Problems(tree *syntax.Tree, src []byte) ([]Problem, error) {
	q, err := problemsQuery(tree.Language())
	if err != nil {
		return nil, err
	}
	var out []Problem
	for _, c := range q.Captures(tree.RootNode(), src) {
		n := c.Node
		p := Problem{
			StartByte: n.StartByte(),
			EndByte:   n.EndByte(),
			Start:     n.StartPoint(),
			End:       n.EndPoint(),
			Missing:   c.Name == "missing",
		}
		switch {
		case p.Missing:
			p.Message = "missing " + n.Kind()
		default:
			p.Message = "syntax error"
			if text := strings.TrimSpace(n.Content(src)); text != "" {
				p.Message = fmt.Sprintf("unexpected %q", Abbreviate(text, 40))
			}
		}
		out = append(out, p)
	}
	return out, nil
}

// Abbreviate cuts s at its first line break and at n bytes.
func Abbreviate(s string, n int) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	if len(s) > n {
		return s[:n] + "…"
	}
	return s
}

package format

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/dhamidi/arbor/query"
)

// LineEncoder writes query captures one per line, tab separated:
// pattern, capture name, span, node kind and quoted text.
type LineEncoder struct {
	w io.Writer
}

func NewLineEncoder(w io.Writer) *LineEncoder {
	return &LineEncoder{w: w}
}

func (e *LineEncoder) EncodeMatches(m *query.Matches, src []byte) error {
	var sb strings.Builder
	for match, ok := m.Next(); ok; match, ok = m.Next() {
		for _, c := range match.Captures {
			fmt.Fprintf(&sb, "%d\t%s\t%s\t%s\t%s\n",
				match.PatternIndex,
				c.Name,
				c.Node.Range(),
				c.Node.Kind(),
				strconv.Quote(c.Node.Content(src)),
			)
		}
	}
	_, err := io.WriteString(e.w, sb.String())
	return err
}

// EncodeProblems writes one line per problem, prefixed by name.
func (e *LineEncoder) EncodeProblems(name string, problems []Problem) error {
	var sb strings.Builder
	for _, p := range problems {
		fmt.Fprintf(&sb, "%s:%d:%d: %s\n", name, p.Start.Row+1, p.Start.Column+1, p.Message)
	}
	_, err := io.WriteString(e.w, sb.String())
	return err
}

package format

import (
	"io"
	"strconv"
	"strings"

	"github.com/dhamidi/arbor/syntax"
)

// SexpEncoder writes the named nodes of a tree as an S-expression.
type SexpEncoder struct {
	w         io.Writer
	positions bool
}

func NewSexpEncoder(w io.Writer, opts ...Option) *SexpEncoder {
	var cfg config
	for _, opt := range opts {
		opt(&cfg)
	}
	return &SexpEncoder{w: w, positions: cfg.positions}
}

func (e *SexpEncoder) Encode(tree *syntax.Tree, src []byte) error {
	text := tree.String()
	if e.positions {
		var sb strings.Builder
		writeSexp(&sb, tree.RootNode(), "")
		text = sb.String()
	}
	_, err := io.WriteString(e.w, text+"\n")
	return err
}

func writeSexp(sb *strings.Builder, n syntax.Node, field string) {
	if field != "" {
		sb.WriteString(field + ": ")
	}
	sb.WriteByte('(')
	kind := n.Kind()
	if n.IsMissing() {
		sb.WriteString("MISSING ")
		if !n.IsNamed() {
			kind = strconv.Quote(kind)
		}
	}
	sb.WriteString(kind)
	sb.WriteString(" " + n.Range().String())
	if !n.IsMissing() {
		for i, c := range n.Children() {
			if !c.IsNamed() && !c.IsMissing() {
				continue
			}
			sb.WriteByte(' ')
			writeSexp(sb, c, n.FieldNameForChild(i))
		}
	}
	sb.WriteByte(')')
}

// BracketEncoder writes every node, named or not, in bracket form.
type BracketEncoder struct {
	w io.Writer
}

func NewBracketEncoder(w io.Writer) *BracketEncoder {
	return &BracketEncoder{w: w}
}

func (e *BracketEncoder) Encode(tree *syntax.Tree, src []byte) error {
	return tree.Print(e.w, src)
}

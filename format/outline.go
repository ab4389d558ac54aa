package format

import (
	"io"
	"strconv"
	"strings"

	"github.com/dhamidi/arbor/syntax"
)

// OutlineEncoder writes one node per line, indented by depth. Leaves show
// their text. White space extras are left out.
type OutlineEncoder struct {
	w         io.Writer
	positions bool
}

func (e *OutlineEncoder) Encode(tree *syntax.Tree, src []byte) error {
	var sb strings.Builder
	e.node(&sb, tree.RootNode(), "", src, 0)
	_, err := io.WriteString(e.w, sb.String())
	return err
}

func (e *OutlineEncoder) node(sb *strings.Builder, n syntax.Node, field string, src []byte, indent int) {
	text := n.Content(src)
	if n.IsExtra() && n.ChildCount() == 0 && strings.TrimSpace(text) == "" {
		return
	}
	sb.WriteString(strings.Repeat("  ", indent))
	if field != "" {
		sb.WriteString(field + ": ")
	}
	switch {
	case n.IsMissing():
		sb.WriteString("MISSING " + n.Kind())
	case n.IsNamed():
		sb.WriteString(n.Kind())
	default:
		sb.WriteString(strconv.Quote(n.Kind()))
	}
	if e.positions {
		sb.WriteString(" " + n.Range().String())
	}
	if n.ChildCount() == 0 && n.IsNamed() && !n.IsMissing() {
		sb.WriteString(" " + strconv.Quote(text))
	}
	sb.WriteByte('\n')
	for i, c := range n.Children() {
		e.node(sb, c, n.FieldNameForChild(i), src, indent+1)
	}
}

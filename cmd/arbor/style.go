package main

import (
	"bytes"
	"fmt"
	"io"

	"github.com/muesli/termenv"

	"github.com/dhamidi/arbor/format"
)

// printProblems writes one line per problem, in red when w is a color
// terminal.
func printProblems(w io.Writer, name string, problems []format.Problem) error {
	if len(problems) == 0 {
		return nil
	}
	var buf bytes.Buffer
	if err := format.NewLineEncoder(&buf).EncodeProblems(name, problems); err != nil {
		return err
	}
	out := termenv.NewOutput(w)
	_, err := fmt.Fprint(w, out.String(buf.String()).Foreground(out.Color("1")))
	return err
}

// printStatus writes a summary line, with the name in bold.
func printStatus(w io.Writer, name, msg string, args ...any) {
	out := termenv.NewOutput(w)
	fmt.Fprintf(w, "%s: %s\n", out.String(name).Bold(), fmt.Sprintf(msg, args...))
}

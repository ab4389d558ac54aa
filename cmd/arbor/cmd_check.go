package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"reflect"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dhamidi/arbor/grammar"
)

func newCheckCmd() *cobra.Command {
	var showTables bool

	cmd := &cobra.Command{
		Use:           "check <manifest>",
		Short:         "Verify a grammar and report conflicts and table statistics",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			filename := args[0]

			if strings.HasSuffix(filename, ".arbor") {
				return checkTables(out, filename)
			}

			g, err := grammar.LoadFile(filename)
			if err != nil {
				printErrors(cmd.ErrOrStderr(), err)
				return err
			}
			lang, err := grammar.Compile(g)
			if err != nil {
				printErrors(cmd.ErrOrStderr(), err)
				return err
			}

			fmt.Fprintf(out, "%s: %d symbols (%d tokens), %d fields, %d productions, %d states\n",
				lang.Name(), lang.SymbolCount(), lang.TokenCount(), lang.FieldCount(), lang.ProductionCount(), lang.StateCount())
			for _, c := range lang.Conflicts() {
				actions := make([]string, len(c.Actions))
				for i, a := range c.Actions {
					actions[i] = a.String()
				}
				fmt.Fprintf(out, "conflict in state %d on %s: %s\n", c.State, lang.SymbolName(c.Symbol), strings.Join(actions, ", "))
			}

			if showTables {
				var buf strings.Builder
				if err := grammar.Encode(&buf, lang); err != nil {
					return err
				}
				h, err := grammar.ReadHeader(strings.NewReader(buf.String()))
				if err != nil {
					return err
				}
				fmt.Fprintln(out, h)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&showTables, "tables", false, "print the binary table header")

	return cmd
}

func checkTables(out io.Writer, filename string) error {
	f, err := os.Open(filename)
	if err != nil {
		return fmt.Errorf("open tables: %w", err)
	}
	defer f.Close()
	h, err := grammar.ReadHeader(f)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, h)
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("open tables: %w", err)
	}
	lang, err := grammar.Decode(f)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "%s: %d symbols, %d states\n", lang.Name(), lang.SymbolCount(), lang.StateCount())
	return grammar.CheckVersion(lang.Version())
}

// printErrors prints each error of a list on its own line. The ebnf
// package reports verification problems as an unexported slice type.
func printErrors(w io.Writer, err error) {
	for e := err; e != nil; e = errors.Unwrap(e) {
		v := reflect.ValueOf(e)
		if v.Kind() == reflect.Slice {
			for i := 0; i < v.Len(); i++ {
				fmt.Fprintln(w, v.Index(i).Interface())
			}
			return
		}
	}
	fmt.Fprintln(w, err)
}

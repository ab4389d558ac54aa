package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/dhamidi/arbor/format"
	"github.com/dhamidi/arbor/syntax"
)

func newEditCmd(flags *globalFlags) *cobra.Command {
	var start, end int
	var text string
	var outputFormat string
	var write bool

	cmd := &cobra.Command{
		Use:   "edit <file>",
		Short: "Replace a byte range and reparse incrementally",
		Long: `Parses the file, replaces the bytes in [start, end) with the given text
and parses the result again, reusing the unchanged parts of the first tree.`,
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			filename := args[0]
			src, err := os.ReadFile(filename)
			if err != nil {
				return fmt.Errorf("read file: %w", err)
			}
			if end < 0 {
				end = start
			}
			if start < 0 || start > end || end > len(src) {
				return fmt.Errorf("edit range [%d, %d) outside of %d bytes", start, end, len(src))
			}

			p, err := newParser(flags)
			if err != nil {
				return err
			}
			old, err := p.ParseContext(cmd.Context(), src, nil)
			if err != nil {
				return fmt.Errorf("parse %s: %w", filename, err)
			}

			e := syntax.EditFromText(src, start, end, []byte(text))
			next := syntax.Apply(src, start, end, []byte(text))
			tree, err := p.ParseContext(cmd.Context(), next, old.Edit(e))
			if err != nil {
				return fmt.Errorf("reparse %s: %w", filename, err)
			}

			enc, err := format.New(outputFormat, cmd.OutOrStdout())
			if err != nil {
				return err
			}
			if err := enc.Encode(tree, next); err != nil {
				return fmt.Errorf("encode: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "reused %d nodes\n", p.Stats().ReusedNodes)

			if write {
				if err := os.WriteFile(filename, next, 0o644); err != nil {
					return fmt.Errorf("write file: %w", err)
				}
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&start, "start", 0, "first byte to replace")
	cmd.Flags().IntVar(&end, "end", -1, "end of the replaced range, exclusive (default: start)")
	cmd.Flags().StringVar(&text, "text", "", "replacement text")
	cmd.Flags().StringVarP(&outputFormat, "format", "f", "sexp", "output format")
	cmd.Flags().BoolVarP(&write, "write", "w", false, "write the edited text back to the file")

	return cmd
}

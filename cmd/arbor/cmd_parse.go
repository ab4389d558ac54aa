package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dhamidi/arbor/format"
)

func newParseCmd(flags *globalFlags) *cobra.Command {
	var outputFormat string
	var includePositions bool
	var strict bool

	cmd := &cobra.Command{
		Use:          "parse <file>...",
		Short:        "Parse files and print their syntax trees",
		Args:         cobra.MinimumNArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := newParser(flags)
			if err != nil {
				return err
			}

			var opts []format.Option
			if includePositions {
				opts = append(opts, format.WithPositions())
			}
			enc, err := format.New(outputFormat, cmd.OutOrStdout(), opts...)
			if err != nil {
				return err
			}
			failed := 0
			for _, filename := range args {
				src, err := os.ReadFile(filename)
				if err != nil {
					return fmt.Errorf("read file: %w", err)
				}
				tree, err := p.ParseContext(cmd.Context(), src, nil)
				if err != nil {
					return fmt.Errorf("parse %s: %w", filename, err)
				}
				if err := enc.Encode(tree, src); err != nil {
					return fmt.Errorf("encode: %w", err)
				}
				if !tree.RootNode().HasError() {
					continue
				}
				failed++
				list, err := format.Problems(tree, src)
				if err != nil {
					return err
				}
				if err := printProblems(cmd.ErrOrStderr(), filename, list); err != nil {
					return err
				}
			}

			if strict && failed > 0 {
				return fmt.Errorf("%d of %d files have syntax errors", failed, len(args))
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&outputFormat, "format", "f", "sexp", "output format ("+strings.Join(format.Names, ", ")+")")
	cmd.Flags().BoolVar(&includePositions, "positions", false, "include node positions")
	cmd.Flags().BoolVar(&strict, "strict", false, "fail when a file has syntax errors")

	return cmd
}

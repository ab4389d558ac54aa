package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/dhamidi/arbor/format"
	"github.com/dhamidi/arbor/query"
)

func newQueryCmd(flags *globalFlags) *cobra.Command {
	var source, sourceFile string
	var start, end int
	var limit int

	cmd := &cobra.Command{
		Use:          "query <file>",
		Short:        "Run a tree query against a file and print the captures",
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if sourceFile != "" {
				data, err := os.ReadFile(sourceFile)
				if err != nil {
					return fmt.Errorf("read query: %w", err)
				}
				source = string(data)
			}
			if source == "" {
				return fmt.Errorf("no query: use --query or --query-file")
			}

			p, err := newParser(flags)
			if err != nil {
				return err
			}
			q, err := query.New(p.Language(), source)
			if err != nil {
				return err
			}

			src, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read file: %w", err)
			}
			tree, err := p.ParseContext(cmd.Context(), src, nil)
			if err != nil {
				return fmt.Errorf("parse %s: %w", args[0], err)
			}

			var opts []query.MatchOption
			if start > 0 || end >= 0 {
				opts = append(opts, query.WithByteRange(start, end))
			}
			if limit > 0 {
				opts = append(opts, query.WithMatchLimit(limit))
			}
			return format.NewLineEncoder(cmd.OutOrStdout()).EncodeMatches(q.Matches(tree.RootNode(), src, opts...), src)
		},
	}

	cmd.Flags().StringVarP(&source, "query", "q", "", "query source")
	cmd.Flags().StringVar(&sourceFile, "query-file", "", "read the query from a file")
	cmd.Flags().IntVar(&start, "start", 0, "only match nodes ending after this byte")
	cmd.Flags().IntVar(&end, "end", -1, "only match nodes starting before this byte")
	cmd.Flags().IntVar(&limit, "limit", 0, "stop after this many matches")
	cmd.MarkFlagsMutuallyExclusive("query", "query-file")

	return cmd
}

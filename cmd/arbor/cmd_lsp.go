package main

import (
	"cmp"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"

	"github.com/dhamidi/arbor/languages/scrapile"
	"github.com/dhamidi/arbor/lsp"
	"github.com/dhamidi/arbor/parser"
)

func newLSPCmd(flags *globalFlags) *cobra.Command {
	var symbols, folds string

	cmd := &cobra.Command{
		Use:   "lsp",
		Short: "Start the Language Server Protocol server",
		RunE: func(cmd *cobra.Command, args []string) error {
			lang, err := loadLanguage(flags.grammar)
			if err != nil {
				return err
			}
			opts := []lsp.Option{lsp.WithVersion(version)}
			if lang.Name() == "scrapile" {
				symbols = cmp.Or(symbols, scrapile.SymbolsQuery)
				folds = cmp.Or(folds, scrapile.FoldsQuery)
			}
			if symbols != "" {
				opts = append(opts, lsp.WithSymbolsQuery(symbols))
			}
			if folds != "" {
				opts = append(opts, lsp.WithFoldsQuery(folds))
			}
			opts = append(opts, lsp.WithParserOptions(
				parser.WithMeter(otel.GetMeterProvider().Meter("github.com/dhamidi/arbor")),
			))
			server, err := lsp.New(lang, opts...)
			if err != nil {
				return err
			}
			return server.RunStdio()
		},
	}

	cmd.Flags().StringVar(&symbols, "symbols", "", "document symbol query (@name plus one kind capture per pattern)")
	cmd.Flags().StringVar(&folds, "folds", "", "folding range query (@fold captures)")

	return cmd
}

package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"
	"go.opentelemetry.io/otel"

	"github.com/dhamidi/arbor/grammar"
	"github.com/dhamidi/arbor/languages/scrapile"
	"github.com/dhamidi/arbor/parser"
)

var version = "dev"

type globalFlags struct {
	grammar   string
	verbosity int
	logPath   string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	flags := &globalFlags{}

	rootCmd := &cobra.Command{
		Use:     "arbor",
		Short:   "Incremental parsing toolkit",
		Version: version,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			var path *string
			if flags.logPath != "" {
				path = &flags.logPath
			}
			commonlog.Configure(flags.verbosity, path)
		},
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&flags.grammar, "grammar", "scrapile", "built-in language name, grammar manifest (.yaml, .toml), .ebnf file or compiled .arbor tables")
	pf.CountVarP(&flags.verbosity, "verbose", "v", "log verbosity (repeat for more)")
	pf.StringVar(&flags.logPath, "log", "", "log file (default stderr)")

	rootCmd.AddCommand(newParseCmd(flags))
	rootCmd.AddCommand(newEditCmd(flags))
	rootCmd.AddCommand(newQueryCmd(flags))
	rootCmd.AddCommand(newCompileCmd())
	rootCmd.AddCommand(newCheckCmd())
	rootCmd.AddCommand(newLSPCmd(flags))
	rootCmd.AddCommand(newWatchCmd(flags))

	return rootCmd
}

// loadLanguage resolves the --grammar flag.
func loadLanguage(name string) (*grammar.Language, error) {
	switch {
	case name == "" || name == "scrapile":
		return scrapile.Language(), nil
	case strings.HasSuffix(name, ".arbor"):
		f, err := os.Open(name)
		if err != nil {
			return nil, fmt.Errorf("open tables: %w", err)
		}
		defer f.Close()
		return grammar.Decode(f)
	}
	g, err := grammar.LoadFile(name)
	if err != nil {
		return nil, err
	}
	return grammar.Compile(g)
}

func newParser(flags *globalFlags) (*parser.Parser, error) {
	lang, err := loadLanguage(flags.grammar)
	if err != nil {
		return nil, err
	}
	p := parser.New(
		parser.WithLogger(commonlog.GetLogger("arbor.cli")),
		parser.WithMeter(otel.GetMeterProvider().Meter("github.com/dhamidi/arbor")),
	)
	if err := p.SetLanguage(lang); err != nil {
		return nil, err
	}
	return p, nil
}

package main

import (
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
	"github.com/tliron/commonlog"
	"go.opentelemetry.io/otel"

	"github.com/dhamidi/arbor/parser"
	"github.com/dhamidi/arbor/workspace"
)

func newWatchCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:          "watch <file>...",
		Short:        "Reparse files as they change and report syntax errors",
		Args:         cobra.MinimumNArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			lang, err := loadLanguage(flags.grammar)
			if err != nil {
				return err
			}
			ws, err := workspace.New(lang,
				parser.WithLogger(commonlog.GetLogger("arbor.cli")),
				parser.WithMeter(otel.GetMeterProvider().Meter("github.com/dhamidi/arbor")),
			)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			events := make(chan workspace.Event)
			quit := make(chan struct{})
			w, err := workspace.NewWatcher(ws, func(e workspace.Event) {
				select {
				case events <- e:
				case <-quit:
				}
			})
			if err != nil {
				return err
			}
			for _, path := range args {
				f, err := w.Add(path)
				if err != nil {
					w.Stop()
					return err
				}
				report(out, f)
			}
			w.Start()
			defer w.Stop()
			defer close(quit)

			interrupt := make(chan os.Signal, 1)
			signal.Notify(interrupt, os.Interrupt)
			defer signal.Stop(interrupt)

			for {
				select {
				case <-interrupt:
					return nil
				case <-cmd.Context().Done():
					return nil
				case e := <-events:
					switch {
					case e.Err != nil:
						fmt.Fprintf(out, "error: %s\n", e.Err)
					case e.Removed:
						printStatus(out, e.Path, "removed")
					default:
						report(out, e.File)
					}
				}
			}
		},
	}
}

func report(out io.Writer, f *workspace.File) {
	how := "parsed"
	if f.Incremental {
		how = fmt.Sprintf("reparsed, %d nodes reused", f.Reused)
	}
	printStatus(out, f.Path, "%d errors (%s)", len(f.Problems), how)
	printProblems(out, f.Path, f.Problems)
}

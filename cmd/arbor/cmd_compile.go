package main

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dhamidi/arbor/grammar"
)

func newCompileCmd() *cobra.Command {
	var output string
	var abi uint16
	var noCompress bool

	cmd := &cobra.Command{
		Use:          "compile <manifest>",
		Short:        "Compile a grammar into binary parse tables",
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			g, err := grammar.LoadFile(args[0])
			if err != nil {
				return err
			}
			var copts []grammar.CompileOption
			if abi != 0 {
				copts = append(copts, grammar.WithABI(abi))
			}
			lang, err := grammar.Compile(g, copts...)
			if err != nil {
				return err
			}

			if output == "" {
				output = strings.TrimSuffix(args[0], filepath.Ext(args[0])) + ".arbor"
			}
			f, err := os.Create(output)
			if err != nil {
				return fmt.Errorf("create tables: %w", err)
			}
			defer f.Close()

			var eopts []grammar.EncodeOption
			if noCompress {
				eopts = append(eopts, grammar.WithoutCompression())
			}
			w := bufio.NewWriter(f)
			if err := grammar.Encode(w, lang, eopts...); err != nil {
				return err
			}
			if err := w.Flush(); err != nil {
				return fmt.Errorf("write tables: %w", err)
			}
			if err := f.Close(); err != nil {
				return fmt.Errorf("write tables: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s (%d states, %d conflicts)\n", output, lang.StateCount(), len(lang.Conflicts()))
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (default: manifest name with .arbor)")
	cmd.Flags().Uint16Var(&abi, "abi", 0, fmt.Sprintf("table format version to write (%d-%d)", grammar.MinCompatibleVersion, grammar.FormatVersion))
	cmd.Flags().BoolVar(&noCompress, "no-compress", false, "store the table body uncompressed")

	return cmd
}

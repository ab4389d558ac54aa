// Package scrapile provides the grammar of Scrapile, a small imperative
// language with functions, lists and builtin calls such as print!(x).
package scrapile

import (
	"bytes"
	_ "embed"
	"fmt"
	"sync"

	"github.com/dhamidi/arbor/grammar"
)

//go:embed scrapile.ebnf
var grammarSource []byte

//go:embed scrapile.yaml
var manifestSource []byte

// SymbolsQuery captures the declarations an editor outline shows.
//
//go:embed symbols.scm
var SymbolsQuery string

// FoldsQuery captures the regions an editor may fold.
//
//go:embed folds.scm
var FoldsQuery string

// Grammar decodes the embedded grammar without compiling it.
func Grammar() (*grammar.Grammar, error) {
	m, err := grammar.ParseManifest(manifestSource, "yaml")
	if err != nil {
		return nil, fmt.Errorf("scrapile: %w", err)
	}
	g, err := grammar.LoadEBNF("scrapile.ebnf", bytes.NewReader(grammarSource), m)
	if err != nil {
		return nil, fmt.Errorf("scrapile: %w", err)
	}
	return g, nil
}

// Load compiles the embedded grammar.
func Load() (*grammar.Language, error) {
	g, err := Grammar()
	if err != nil {
		return nil, err
	}
	lang, err := grammar.Compile(g)
	if err != nil {
		return nil, fmt.Errorf("scrapile: %w", err)
	}
	return lang, nil
}

var language = sync.OnceValues(Load)

// Language returns the compiled language, building it on first use. It
// panics if the embedded grammar does not compile.
func Language() *grammar.Language {
	lang, err := language()
	if err != nil {
		panic(err)
	}
	return lang
}

// Package format renders syntax trees, query captures and parse problems
// as text.
package format

import (
	"fmt"
	"io"

	"github.com/dhamidi/arbor/syntax"
)

// Encoder writes a whole tree.
type Encoder interface {
	Encode(tree *syntax.Tree, src []byte) error
}

// Option configures an encoder.
type Option func(*config)

type config struct {
	positions bool
}

// WithPositions adds the row and column span of each node.
func WithPositions() Option {
	return func(c *config) {
		c.positions = true
	}
}

// Names lists the formats known to New.
var Names = []string{"sexp", "json", "brackets", "outline"}

// New returns the encoder registered under name.
func New(name string, w io.Writer, opts ...Option) (Encoder, error) {
	var cfg config
	for _, opt := range opts {
		opt(&cfg)
	}
	switch name {
	case "", "sexp":
		return &SexpEncoder{w: w, positions: cfg.positions}, nil
	case "json":
		return NewJSONEncoder(w), nil
	case "brackets":
		return NewBracketEncoder(w), nil
	case "outline":
		return &OutlineEncoder{w: w, positions: cfg.positions}, nil
	}
	return nil, fmt.Errorf("unknown format: %s", name)
}

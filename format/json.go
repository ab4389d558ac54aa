package format

import (
	"encoding/json"
	"io"

	"github.com/dhamidi/arbor/syntax"
)

type JSONEncoder struct {
	w io.Writer
}

func NewJSONEncoder(w io.Writer) *JSONEncoder {
	return &JSONEncoder{w: w}
}

func (e *JSONEncoder) Encode(tree *syntax.Tree, src []byte) error {
	text, err := json.MarshalIndent(tree, "", "  ")
	if err != nil {
		return err
	}
	_, err = e.w.Write(append(text, '\n'))
	return err
}

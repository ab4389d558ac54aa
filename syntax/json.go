package syntax

import "encoding/json"

type jsonNode struct {
	Kind     string      `json:"kind"`
	Named    bool        `json:"named,omitempty"`
	Field    string      `json:"field,omitempty"`
	Span     jsonSpan    `json:"span"`
	Missing  bool        `json:"missing,omitempty"`
	Extra    bool        `json:"extra,omitempty"`
	Error    bool        `json:"error,omitempty"`
	Children []*jsonNode `json:"children,omitempty"`
}

type jsonSpan struct {
	Start jsonPosition `json:"start"`
	End   jsonPosition `json:"end"`
}

type jsonPosition struct {
	Row    int `json:"row"`
	Column int `json:"column"`
	Offset int `json:"offset"`
}

func (t *Tree) MarshalJSON() ([]byte, error) {
	if t == nil || t.root == nil {
		return []byte("null"), nil
	}
	return json.Marshal(t.RootNode().toJSON(""))
}

func (n Node) MarshalJSON() ([]byte, error) {
	if n.IsNull() {
		return []byte("null"), nil
	}
	return json.Marshal(n.toJSON(n.FieldName()))
}

func (n Node) toJSON(field string) *jsonNode {
	jn := &jsonNode{
		Kind:    n.Kind(),
		Named:   n.IsNamed(),
		Field:   field,
		Missing: n.IsMissing(),
		Extra:   n.IsExtra(),
		Error:   n.IsError(),
		Span: jsonSpan{
			Start: jsonPosition{Row: n.StartPoint().Row, Column: n.StartPoint().Column, Offset: n.StartByte()},
			End:   jsonPosition{Row: n.EndPoint().Row, Column: n.EndPoint().Column, Offset: n.EndByte()},
		},
	}

	if n.ChildCount() > 0 {
		children := n.Children()
		jn.Children = make([]*jsonNode, len(children))
		for i, child := range children {
			jn.Children[i] = child.toJSON(n.FieldNameForChild(i))
		}
	}

	return jn
}

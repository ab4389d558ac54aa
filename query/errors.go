package query

import "fmt"

// QuerySyntaxError reports malformed query text.
type QuerySyntaxError struct {
	Offset  int
	Message string
}

func (e *QuerySyntaxError) Error() string {
	return fmt.Sprintf("query: syntax error at offset %d: %s", e.Offset, e.Message)
}

// ErrorKind classifies a QueryError.
type ErrorKind int

const (
	ErrorNodeType ErrorKind = iota + 1
	ErrorField
	ErrorCapture
	ErrorPredicate
)

var errorKindNames = map[ErrorKind]string{
	ErrorNodeType:  "node type",
	ErrorField:     "field",
	ErrorCapture:   "capture",
	ErrorPredicate: "predicate",
}

func (k ErrorKind) String() string {
	if name, ok := errorKindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("ErrorKind(%d)", int(k))
}

// QueryError reports well-formed query text that names something the
// language does not have, or a predicate that cannot be used.
type QueryError struct {
	Offset  int
	Kind    ErrorKind
	Name    string
	Message string
}

func (e *QueryError) Error() string {
	msg := fmt.Sprintf("query: invalid %s %q at offset %d", e.Kind, e.Name, e.Offset)
	if e.Message != "" {
		msg += ": " + e.Message
	}
	return msg
}

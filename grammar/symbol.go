package grammar

import "fmt"

// Symbol identifies a terminal or nonterminal of a compiled language. The
// set of symbols is closed: it is fixed when the grammar is compiled.
type Symbol uint16

// StateID identifies a parse state.
type StateID uint32

// FieldID identifies a field name. Zero means "no field".
type FieldID uint16

const (
	// SymbolEnd is the end-of-input terminal.
	SymbolEnd Symbol = 0
	// SymbolError marks error nodes and unrecognized bytes.
	SymbolError Symbol = 1

	firstToken = 2
)

// NoState is returned where a table has no entry.
const NoState StateID = ^StateID(0)

// SymbolInfo describes a symbol.
type SymbolInfo struct {
	Name string
	// Named symbols come from named rules and tokens; anonymous symbols
	// are string literals used inside rules.
	Named bool
	// Hidden nonterminals never appear in trees; their children are
	// spliced into the parent.
	Visible  bool
	Terminal bool
	External bool
	Extra    bool
}

func (s SymbolInfo) String() string {
	if s.Named {
		return s.Name
	}
	return fmt.Sprintf("%q", s.Name)
}

// Assoc is the associativity of a precedence level.
type Assoc uint8

const (
	AssocNone Assoc = iota
	AssocLeft
	AssocRight
)

func (a Assoc) String() string {
	switch a {
	case AssocLeft:
		return "left"
	case AssocRight:
		return "right"
	}
	return "none"
}

// ActionType is the kind of a parse action.
type ActionType uint8

const (
	ActionShift ActionType = iota
	ActionReduce
	ActionAccept
)

// Action is one entry of the parse table. A table cell holds several
// actions when the grammar has an unresolved conflict.
type Action struct {
	Type       ActionType
	State      StateID // target of a shift
	Production uint32  // production of a reduce
}

func (a Action) String() string {
	switch a.Type {
	case ActionShift:
		return fmt.Sprintf("shift %d", a.State)
	case ActionReduce:
		return fmt.Sprintf("reduce %d", a.Production)
	}
	return "accept"
}

// Production is a compiled rule alternative.
type Production struct {
	LHS               Symbol
	RHS               []Symbol
	Precedence        int
	Assoc             Assoc
	DynamicPrecedence int
	// Fields holds one FieldID per RHS position, or nil when the
	// production has no fields.
	Fields []FieldID
}

// ChildCount returns the number of symbols on the right-hand side.
func (p Production) ChildCount() int { return len(p.RHS) }

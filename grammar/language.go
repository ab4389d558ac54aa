package grammar

import (
	"sync"

	"github.com/dhamidi/arbor/lexer"
)

const (
	// FormatVersion is the table format version written by this build.
	FormatVersion uint16 = 3
	// MinCompatibleVersion is the oldest table format version a parser
	// of this build accepts.
	MinCompatibleVersion uint16 = 2
)

// LexMode is the set of tokens the lexer may produce in a parse state.
type LexMode struct {
	tokens    []bool
	externals []bool
	external  bool
}

// Valid reports whether the i-th internal token is acceptable.
func (m *LexMode) Valid(i int) bool { return m.tokens[i] }

// Externals reports which external tokens are acceptable.
func (m *LexMode) Externals() []bool { return m.externals }

// HasExternal reports whether any external token is acceptable.
func (m *LexMode) HasExternal() bool { return m.external }

// Conflict is a parse table cell left with several actions.
type Conflict struct {
	State   StateID
	Symbol  Symbol
	Actions []Action
}

// Language is a compiled grammar. It is immutable and may be shared by
// any number of parsers.
type Language struct {
	name    string
	version uint16
	start   Symbol

	symbols     []SymbolInfo
	tokenCount  int
	fields      []string
	productions []Production

	tokens    []lexer.TokenSpec
	externals []Symbol

	stateCount  int
	actionIndex []uint32
	actionLists [][]Action
	gotos       []StateID
	lexModes    []LexMode
	stateModes  []uint32

	conflicts []Conflict
	scanner   *lexer.Scanner

	newScanner func() lexer.ExternalScanner

	indexOnce    sync.Once
	symbolByName map[nameKey]Symbol
	fieldByName  map[string]FieldID
}

type nameKey struct {
	name  string
	named bool
}

func (l *Language) Name() string        { return l.name }
func (l *Language) Version() uint16     { return l.version }
func (l *Language) StartSymbol() Symbol { return l.start }

// SymbolCount returns the number of symbols, the node kinds of the
// language.
func (l *Language) SymbolCount() int { return len(l.symbols) }

// TokenCount returns the number of terminal symbols, including the end
// and error symbols.
func (l *Language) TokenCount() int { return l.tokenCount }

// Symbol returns the metadata of s.
func (l *Language) Symbol(s Symbol) SymbolInfo {
	if int(s) >= len(l.symbols) {
		return SymbolInfo{Name: "?"}
	}
	return l.symbols[s]
}

// SymbolName returns the name of s.
func (l *Language) SymbolName(s Symbol) string { return l.Symbol(s).Name }

// IsTerminal reports whether s is a token.
func (l *Language) IsTerminal(s Symbol) bool { return int(s) < l.tokenCount }

// IsExtra reports whether s is declared extra.
func (l *Language) IsExtra(s Symbol) bool { return l.Symbol(s).Extra }

// SymbolForName looks up a symbol by name. Named and anonymous symbols
// live in separate namespaces, so "if" the keyword and if the rule do not
// collide.
func (l *Language) SymbolForName(name string, named bool) (Symbol, bool) {
	l.buildIndex()
	s, ok := l.symbolByName[nameKey{name, named}]
	return s, ok
}

// FieldCount returns the number of field names.
func (l *Language) FieldCount() int { return len(l.fields) - 1 }

// FieldName returns the name of f, or "" for the zero field.
func (l *Language) FieldName(f FieldID) string {
	if int(f) >= len(l.fields) {
		return ""
	}
	return l.fields[f]
}

// FieldIDForName looks up a field by name.
func (l *Language) FieldIDForName(name string) (FieldID, bool) {
	l.buildIndex()
	f, ok := l.fieldByName[name]
	return f, ok
}

func (l *Language) buildIndex() {
	l.indexOnce.Do(func() {
		l.symbolByName = make(map[nameKey]Symbol, len(l.symbols))
		for i := len(l.symbols) - 1; i >= 0; i-- {
			info := l.symbols[i]
			l.symbolByName[nameKey{info.Name, info.Named}] = Symbol(i)
		}
		l.fieldByName = make(map[string]FieldID, len(l.fields))
		for i, name := range l.fields {
			if i > 0 {
				l.fieldByName[name] = FieldID(i)
			}
		}
	})
}

// Production returns the production with the given id.
func (l *Language) Production(id uint32) Production { return l.productions[id] }

// ProductionCount returns the number of productions.
func (l *Language) ProductionCount() int { return len(l.productions) }

// StateCount returns the number of parse states.
func (l *Language) StateCount() int { return l.stateCount }

// Actions returns the actions for terminal sym in state. The slice must
// not be modified.
func (l *Language) Actions(state StateID, sym Symbol) []Action {
	if int(state) >= l.stateCount || int(sym) >= l.tokenCount {
		return nil
	}
	return l.actionLists[l.actionIndex[int(state)*l.tokenCount+int(sym)]]
}

// Goto returns the state reached from state after reducing nonterminal
// sym.
func (l *Language) Goto(state StateID, sym Symbol) (StateID, bool) {
	n := len(l.symbols) - l.tokenCount
	i := int(sym) - l.tokenCount
	if int(state) >= l.stateCount || i < 0 || i >= n {
		return NoState, false
	}
	s := l.gotos[int(state)*n+i]
	return s, s != NoState
}

// LexMode returns the tokens acceptable in state.
func (l *Language) LexMode(state StateID) *LexMode {
	return &l.lexModes[l.stateModes[state]]
}

// Scanner returns the compiled pattern scanner for the internal tokens.
func (l *Language) Scanner() *lexer.Scanner { return l.scanner }

// ScannerSymbol maps a Scanner token index to its symbol.
func (l *Language) ScannerSymbol(i int) Symbol { return Symbol(i + firstToken) }

// Externals returns the external token symbols in declaration order.
func (l *Language) Externals() []Symbol { return l.externals }

// Conflicts returns the table cells left ambiguous by the compiler. It is
// empty for languages read from binary tables.
func (l *Language) Conflicts() []Conflict { return l.conflicts }

// NewExternalScanner returns a fresh external scanner, or nil if the
// language has none.
func (l *Language) NewExternalScanner() lexer.ExternalScanner {
	if l.newScanner == nil {
		return nil
	}
	return l.newScanner()
}

// WithExternalScanner returns a copy of l that uses f to create external
// scanners.
func (l *Language) WithExternalScanner(f func() lexer.ExternalScanner) *Language {
	c := &Language{
		name:        l.name,
		version:     l.version,
		start:       l.start,
		symbols:     l.symbols,
		tokenCount:  l.tokenCount,
		fields:      l.fields,
		productions: l.productions,
		tokens:      l.tokens,
		externals:   l.externals,
		stateCount:  l.stateCount,
		actionIndex: l.actionIndex,
		actionLists: l.actionLists,
		gotos:       l.gotos,
		lexModes:    l.lexModes,
		stateModes:  l.stateModes,
		conflicts:   l.conflicts,
		scanner:     l.scanner,
		newScanner:  f,
	}
	return c
}

// finish builds the derived lookup structures.
func (l *Language) finish() {
	l.scanner = lexer.Compile(l.tokens)
}

package grammar

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/dhamidi/arbor/lexer"
)

// maxAlternatives bounds the number of productions a single rule may
// expand into. Optional and nested choices multiply.
const maxAlternatives = 1024

// CompileOption configures Compile.
type CompileOption func(*compileConfig)

type compileConfig struct {
	version uint16
}

// WithABI stamps the compiled language with an older table format
// version, for consumers built against it.
func WithABI(version uint16) CompileOption {
	return func(c *compileConfig) {
		c.version = version
	}
}

// Compile checks g and builds its LALR(1) parse tables. Conflicts the
// precedence declarations do not settle are kept as multiple actions and
// are resolved at parse time.
func Compile(g *Grammar, opts ...CompileOption) (*Language, error) {
	cfg := compileConfig{version: FormatVersion}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.version == 0 || cfg.version > FormatVersion {
		return nil, &CompileError{Message: fmt.Sprintf("unsupported table format version %d", cfg.version)}
	}
	if len(g.errs) > 0 {
		return nil, fmt.Errorf("compile grammar: %w", errors.Join(g.errs...))
	}
	if len(g.Rules) == 0 {
		return nil, &CompileError{Message: "grammar has no rules"}
	}

	c := &compiler{
		g:        g,
		byName:   make(map[string]Symbol),
		literals: make(map[string]Symbol),
		fieldIDs: make(map[string]FieldID),
		fields:   []string{""},
		auxCount: make(map[string]int),
	}
	if err := c.assignSymbols(); err != nil {
		return nil, err
	}
	if err := c.buildProductions(); err != nil {
		return nil, err
	}
	c.buildTables()
	return c.language(cfg.version), nil
}

type alt struct {
	items   []altItem
	prec    int
	assoc   Assoc
	hasPrec bool
	dynamic int
}

type altItem struct {
	sym   Symbol
	field string
}

type compiler struct {
	g *Grammar

	symbols    []SymbolInfo
	byName     map[string]Symbol
	literals   map[string]Symbol
	tokens     []lexer.TokenSpec
	externals  []Symbol
	tokenCount int
	start      Symbol

	fields   []string
	fieldIDs map[string]FieldID

	prods    []Production
	byLHS    map[Symbol][]int
	auxCount map[string]int

	states      []*lrState
	nullable    []bool
	first       []bitset
	actionIndex []uint32
	actionLists [][]Action
	gotos       []StateID
	lexModes    []LexMode
	stateModes  []uint32
	conflicts   []Conflict
}

func (c *compiler) addSymbol(info SymbolInfo) Symbol {
	c.symbols = append(c.symbols, info)
	return Symbol(len(c.symbols) - 1)
}

func (c *compiler) assignSymbols() error {
	c.addSymbol(SymbolInfo{Name: "end", Terminal: true})
	c.addSymbol(SymbolInfo{Name: "ERROR", Named: true, Visible: true})

	for _, tok := range c.g.Tokens {
		if tok.Name == "" {
			return &CompileError{Message: "token with empty name"}
		}
		if _, dup := c.byName[tok.Name]; dup {
			return &CompileError{Rule: tok.Name, Message: "token defined twice"}
		}
		if tok.Pattern == nil || tok.Pattern.Nullable() {
			return &CompileError{Rule: tok.Name, Message: "token pattern matches the empty string"}
		}
		c.byName[tok.Name] = c.addSymbol(SymbolInfo{
			Name:     tok.Name,
			Named:    !strings.HasPrefix(tok.Name, "_"),
			Visible:  true,
			Terminal: true,
		})
		c.tokens = append(c.tokens, lexer.TokenSpec{Name: tok.Name, Pattern: tok.Pattern})
	}

	var walkErr error
	for _, rule := range c.g.Rules {
		walk(rule.Body, func(e Expr) {
			s, ok := e.(strExpr)
			if !ok {
				return
			}
			if s.text == "" {
				walkErr = &CompileError{Rule: rule.Name, Message: "empty string literal"}
				return
			}
			if _, seen := c.literals[s.text]; seen {
				return
			}
			c.literals[s.text] = c.addSymbol(SymbolInfo{Name: s.text, Visible: true, Terminal: true})
			c.tokens = append(c.tokens, lexer.TokenSpec{Name: s.text, Pattern: lexer.Literal(s.text)})
		})
	}
	if walkErr != nil {
		return walkErr
	}

	for _, name := range c.g.Externals {
		if _, dup := c.byName[name]; dup {
			return &CompileError{Rule: name, Message: "external token collides with a token"}
		}
		sym := c.addSymbol(SymbolInfo{Name: name, Named: true, Visible: true, Terminal: true, External: true})
		c.byName[name] = sym
		c.externals = append(c.externals, sym)
	}
	c.tokenCount = len(c.symbols)

	for _, rule := range c.g.Rules {
		if _, dup := c.byName[rule.Name]; dup {
			return &CompileError{Rule: rule.Name, Message: "name already used by a rule or token"}
		}
		c.byName[rule.Name] = c.addSymbol(SymbolInfo{
			Name:    rule.Name,
			Named:   true,
			Visible: !rule.Hidden && !strings.HasPrefix(rule.Name, "_"),
		})
	}

	for _, name := range c.g.Extras {
		sym, ok := c.byName[name]
		if !ok || int(sym) >= c.tokenCount {
			return &CompileError{Rule: name, Message: "extra is not a token"}
		}
		c.symbols[sym].Extra = true
	}

	startName := c.g.Start
	if startName == "" {
		startName = c.g.Rules[0].Name
	}
	start, ok := c.byName[startName]
	if !ok || int(start) < c.tokenCount {
		return &CompileError{Rule: startName, Message: "start rule not defined"}
	}
	c.start = start
	return nil
}

func walk(e Expr, f func(Expr)) {
	f(e)
	switch x := e.(type) {
	case seqExpr:
		for _, sub := range x {
			walk(sub, f)
		}
	case choiceExpr:
		for _, sub := range x {
			walk(sub, f)
		}
	case repeatExpr:
		walk(x.body, f)
	case fieldExpr:
		walk(x.body, f)
	case precExpr:
		walk(x.body, f)
	}
}

func (c *compiler) buildProductions() error {
	c.byLHS = make(map[Symbol][]int)
	// Production 0 is the augmented start production; its left-hand
	// side is assigned once all auxiliary symbols exist.
	c.prods = append(c.prods, Production{RHS: []Symbol{c.start}})

	for _, rule := range c.g.Rules {
		alts, err := c.expand(rule.Name, rule.Body)
		if err != nil {
			return err
		}
		lhs := c.byName[rule.Name]
		for _, a := range alts {
			c.addProduction(lhs, a)
		}
	}

	augment := c.addSymbol(SymbolInfo{Name: "_start"})
	c.prods[0].LHS = augment
	c.byLHS[augment] = []int{0}
	return nil
}

func (c *compiler) expand(rule string, e Expr) ([]alt, error) {
	switch x := e.(type) {
	case symExpr:
		sym, ok := c.byName[x.name]
		if !ok {
			return nil, &CompileError{Rule: rule, Message: fmt.Sprintf("undefined symbol %s", x.name)}
		}
		return []alt{{items: []altItem{{sym: sym}}}}, nil
	case strExpr:
		return []alt{{items: []altItem{{sym: c.literals[x.text]}}}}, nil
	case blankExpr:
		return []alt{{}}, nil
	case seqExpr:
		result := []alt{{}}
		for _, part := range x {
			parts, err := c.expand(rule, part)
			if err != nil {
				return nil, err
			}
			next := make([]alt, 0, len(result)*len(parts))
			for _, a := range result {
				for _, b := range parts {
					next = append(next, joinAlt(a, b))
				}
			}
			if len(next) > maxAlternatives {
				return nil, &CompileError{Rule: rule, Message: "too many alternatives; factor the rule"}
			}
			result = next
		}
		return result, nil
	case choiceExpr:
		var result []alt
		for _, sub := range x {
			alts, err := c.expand(rule, sub)
			if err != nil {
				return nil, err
			}
			result = append(result, alts...)
		}
		if len(result) > maxAlternatives {
			return nil, &CompileError{Rule: rule, Message: "too many alternatives; factor the rule"}
		}
		return result, nil
	case repeatExpr:
		body, err := c.expand(rule, x.body)
		if err != nil {
			return nil, err
		}
		// Empty alternatives would give aux -> aux; the zero-length case
		// is covered by the blank alternative below instead.
		nullable := false
		body = slices.DeleteFunc(body, func(a alt) bool {
			if len(a.items) == 0 {
				nullable = true
				return true
			}
			return false
		})
		if len(body) == 0 {
			return []alt{{}}, nil
		}
		c.auxCount[rule]++
		aux := c.addSymbol(SymbolInfo{Name: fmt.Sprintf("%s_repeat%d", rule, c.auxCount[rule])})
		for _, b := range body {
			c.addProduction(aux, b)
		}
		for _, b := range body {
			rec := b
			rec.items = append([]altItem{{sym: aux}}, b.items...)
			c.addProduction(aux, rec)
		}
		result := []alt{{items: []altItem{{sym: aux}}}}
		if !x.min1 || nullable {
			result = append(result, alt{})
		}
		return result, nil
	case fieldExpr:
		alts, err := c.expand(rule, x.body)
		if err != nil {
			return nil, err
		}
		c.field(x.name)
		for i := range alts {
			items := make([]altItem, len(alts[i].items))
			for j, it := range alts[i].items {
				if it.field == "" {
					it.field = x.name
				}
				items[j] = it
			}
			alts[i].items = items
		}
		return alts, nil
	case precExpr:
		alts, err := c.expand(rule, x.body)
		if err != nil {
			return nil, err
		}
		for i := range alts {
			switch {
			case x.dynamic:
				if alts[i].dynamic == 0 {
					alts[i].dynamic = x.level
				}
			case !alts[i].hasPrec:
				alts[i].prec = x.level
				alts[i].assoc = x.assoc
				alts[i].hasPrec = true
			}
		}
		return alts, nil
	}
	return nil, &CompileError{Rule: rule, Message: fmt.Sprintf("unknown expression %T", e)}
}

func joinAlt(a, b alt) alt {
	out := alt{
		items:   make([]altItem, 0, len(a.items)+len(b.items)),
		prec:    a.prec,
		assoc:   a.assoc,
		hasPrec: a.hasPrec,
		dynamic: a.dynamic,
	}
	out.items = append(out.items, a.items...)
	out.items = append(out.items, b.items...)
	if b.hasPrec {
		out.prec, out.assoc, out.hasPrec = b.prec, b.assoc, true
	}
	if b.dynamic != 0 {
		out.dynamic = b.dynamic
	}
	return out
}

func (c *compiler) field(name string) FieldID {
	if id, ok := c.fieldIDs[name]; ok {
		return id
	}
	c.fields = append(c.fields, name)
	id := FieldID(len(c.fields) - 1)
	c.fieldIDs[name] = id
	return id
}

func (c *compiler) addProduction(lhs Symbol, a alt) {
	p := Production{
		LHS:               lhs,
		RHS:               make([]Symbol, len(a.items)),
		Precedence:        a.prec,
		Assoc:             a.assoc,
		DynamicPrecedence: a.dynamic,
	}
	for i, it := range a.items {
		p.RHS[i] = it.sym
		if it.field != "" {
			if p.Fields == nil {
				p.Fields = make([]FieldID, len(a.items))
			}
			p.Fields[i] = c.field(it.field)
		}
	}
	for _, existing := range c.byLHS[lhs] {
		if sameProduction(c.prods[existing], p) {
			return
		}
	}
	c.prods = append(c.prods, p)
	c.byLHS[lhs] = append(c.byLHS[lhs], len(c.prods)-1)
}

func sameProduction(a, b Production) bool {
	if len(a.RHS) != len(b.RHS) || (a.Fields == nil) != (b.Fields == nil) {
		return false
	}
	for i := range a.RHS {
		if a.RHS[i] != b.RHS[i] {
			return false
		}
		if a.Fields != nil && a.Fields[i] != b.Fields[i] {
			return false
		}
	}
	return true
}

func (c *compiler) language(version uint16) *Language {
	l := &Language{
		name:        c.g.Name,
		version:     version,
		start:       c.start,
		symbols:     c.symbols,
		tokenCount:  c.tokenCount,
		fields:      c.fields,
		productions: c.prods,
		tokens:      c.tokens,
		externals:   c.externals,
		stateCount:  len(c.states),
		actionIndex: c.actionIndex,
		actionLists: c.actionLists,
		gotos:       c.gotos,
		lexModes:    c.lexModes,
		stateModes:  c.stateModes,
		conflicts:   c.conflicts,
	}
	l.finish()
	return l
}

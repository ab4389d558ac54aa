package query

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/dhamidi/arbor/grammar"
)

type patternKind uint8

const (
	kindSymbol   patternKind = iota // (name ...) or "literal"
	kindWildcard                    // (_ ...) or _
	kindMissing                     // (MISSING) with no symbol
	kindAlt                         // [ ... ]
	kindGroup                       // ( (a) (b) )
)

type quantifier uint8

const (
	quantOne quantifier = iota
	quantOptional
	quantStar
	quantPlus
)

// pattern is one node of a compiled query pattern.
type pattern struct {
	kind    patternKind
	sym     grammar.Symbol
	named   bool // wildcard only matches named nodes
	missing bool // symbol must be a MISSING node

	field     grammar.FieldID
	fieldName string
	negated   []grammar.FieldID

	children []*pattern
	alts     []*pattern
	quant    quantifier
	captures []int
}

type predicateOp uint8

const (
	opEq predicateOp = iota
	opMatch
	opAnyOf
)

type predicate struct {
	op      predicateOp
	negate  bool
	capture int
	other   int // second capture for #eq?, or -1
	text    string
	values  []string
	re      *regexp.Regexp
}

type rootPattern struct {
	*pattern
	offset     int
	predicates []predicate
}

// queryParser reads query source into patterns. It follows the
// S-expression layout used by tree queries: nodes in parentheses,
// alternations in brackets, captures after '@' and ';' line comments.
type queryParser struct {
	lang  *grammar.Language
	src   string
	pos   int
	q     *Query
	preds *[]predicate
}

func (p *queryParser) syntaxError(format string, args ...any) error {
	return &QuerySyntaxError{Offset: p.pos, Message: fmt.Sprintf(format, args...)}
}

func (p *queryParser) parse() error {
	for {
		p.skipSpace()
		if p.pos >= len(p.src) {
			return nil
		}
		start := p.pos
		var preds []predicate
		p.preds = &preds
		pat, err := p.parsePattern()
		if err != nil {
			return err
		}
		if pat == nil {
			return &QuerySyntaxError{Offset: start, Message: "predicate outside of a pattern"}
		}
		if pat.field != 0 {
			return &QuerySyntaxError{Offset: start, Message: "field on a top-level pattern"}
		}
		if pat.quant == quantOptional || pat.quant == quantStar {
			return &QuerySyntaxError{Offset: start, Message: "top-level pattern can match nothing"}
		}
		p.q.patterns = append(p.q.patterns, rootPattern{pattern: pat, offset: start, predicates: preds})
	}
}

// parsePattern reads one pattern with its field prefix, quantifier and
// captures. It returns a nil pattern after consuming a predicate.
func (p *queryParser) parsePattern() (*pattern, error) {
	p.skipSpace()
	fieldStart := p.pos
	var field grammar.FieldID
	var fieldName string
	if name := p.peekIdentifier(); name != "" && p.followedByColon(name) {
		id, ok := p.lang.FieldIDForName(name)
		if !ok {
			return nil, &QueryError{Offset: fieldStart, Kind: ErrorField, Name: name}
		}
		p.pos += len(name)
		p.skipSpace()
		p.pos++ // ':'
		p.skipSpace()
		field, fieldName = id, name
	}

	if p.pos >= len(p.src) {
		return nil, p.syntaxError("unexpected end of query")
	}
	var pat *pattern
	var err error
	switch c := p.src[p.pos]; {
	case c == '(':
		pat, err = p.parseParen()
	case c == '[':
		pat, err = p.parseAlternation()
	case c == '"':
		pat, err = p.parseLiteral()
	case c == '_' && !isIdentByte(p.at(p.pos+1)):
		p.pos++
		pat = &pattern{kind: kindWildcard}
	default:
		return nil, p.syntaxError("unexpected %q", string(c))
	}
	if err != nil || pat == nil {
		if err == nil && field != 0 {
			return nil, &QuerySyntaxError{Offset: fieldStart, Message: "field on a predicate"}
		}
		return pat, err
	}
	pat.field, pat.fieldName = field, fieldName

	p.skipSpace()
	switch p.at(p.pos) {
	case '?':
		pat.quant = quantOptional
		p.pos++
	case '*':
		pat.quant = quantStar
		p.pos++
	case '+':
		pat.quant = quantPlus
		p.pos++
	}
	for {
		p.skipSpace()
		if p.at(p.pos) != '@' {
			break
		}
		start := p.pos
		p.pos++
		name := p.readIdentifier()
		if name == "" {
			return nil, p.syntaxError("expected capture name")
		}
		if pat.kind == kindGroup {
			return nil, &QuerySyntaxError{Offset: start, Message: "capture on a group"}
		}
		pat.captures = append(pat.captures, p.q.captureID(name))
	}
	return pat, nil
}

func (p *queryParser) parseParen() (*pattern, error) {
	open := p.pos
	p.pos++
	p.skipSpace()
	switch c := p.at(p.pos); {
	case c == '#':
		return nil, p.parsePredicate(open)
	case c == '(' || c == '[' || c == '"':
		return p.parseGroup(open)
	case c == '_' && !isIdentByte(p.at(p.pos+1)):
		p.pos++
		pat := &pattern{kind: kindWildcard, named: true}
		return pat, p.parseChildren(pat)
	}

	nameStart := p.pos
	name := p.readIdentifier()
	if name == "" {
		return nil, p.syntaxError("expected node type")
	}
	pat := &pattern{kind: kindSymbol}
	switch name {
	case "ERROR":
		pat.sym = grammar.SymbolError
	case "MISSING":
		p.skipSpace()
		pat.missing = true
		switch c := p.at(p.pos); {
		case c == '"':
			lit, err := p.parseLiteral()
			if err != nil {
				return nil, err
			}
			pat.sym = lit.sym
		case isIdentByte(c):
			start := p.pos
			sym, ok := p.lang.SymbolForName(p.readIdentifier(), true)
			if !ok {
				return nil, &QueryError{Offset: start, Kind: ErrorNodeType, Name: p.src[start:p.pos]}
			}
			pat.sym = sym
		default:
			pat.kind = kindMissing
		}
	default:
		sym, ok := p.lang.SymbolForName(name, true)
		if !ok {
			return nil, &QueryError{Offset: nameStart, Kind: ErrorNodeType, Name: name}
		}
		pat.sym = sym
	}
	return pat, p.parseChildren(pat)
}

// parseChildren reads child patterns, negated fields and predicates up to
// the closing parenthesis.
func (p *queryParser) parseChildren(pat *pattern) error {
	for {
		p.skipSpace()
		switch p.at(p.pos) {
		case 0:
			return p.syntaxError("unclosed parenthesis")
		case ')':
			p.pos++
			return nil
		case '!':
			p.pos++
			start := p.pos
			name := p.readIdentifier()
			id, ok := p.lang.FieldIDForName(name)
			if !ok {
				return &QueryError{Offset: start, Kind: ErrorField, Name: name}
			}
			pat.negated = append(pat.negated, id)
			continue
		}
		child, err := p.parsePattern()
		if err != nil {
			return err
		}
		if child != nil {
			pat.children = append(pat.children, child)
		}
	}
}

func (p *queryParser) parseGroup(open int) (*pattern, error) {
	pat := &pattern{kind: kindGroup}
	if err := p.parseChildren(pat); err != nil {
		return nil, err
	}
	if len(pat.negated) > 0 {
		return nil, &QuerySyntaxError{Offset: open, Message: "negated field in a group"}
	}
	if len(pat.children) == 0 {
		return nil, &QuerySyntaxError{Offset: open, Message: "empty group"}
	}
	if len(pat.children) == 1 && pat.children[0].quant == quantOne {
		inner := pat.children[0]
		return inner, nil
	}
	return pat, nil
}

func (p *queryParser) parseAlternation() (*pattern, error) {
	open := p.pos
	p.pos++
	pat := &pattern{kind: kindAlt}
	for {
		p.skipSpace()
		switch p.at(p.pos) {
		case 0:
			return nil, p.syntaxError("unclosed bracket")
		case ']':
			p.pos++
			if len(pat.alts) == 0 {
				return nil, &QuerySyntaxError{Offset: open, Message: "empty alternation"}
			}
			return pat, nil
		}
		alt, err := p.parsePattern()
		if err != nil {
			return nil, err
		}
		if alt == nil {
			return nil, &QuerySyntaxError{Offset: open, Message: "predicate inside an alternation"}
		}
		if alt.field != 0 || alt.kind == kindGroup || alt.quant != quantOne {
			return nil, &QuerySyntaxError{Offset: open, Message: "alternatives must be single node patterns"}
		}
		pat.alts = append(pat.alts, alt)
	}
}

func (p *queryParser) parseLiteral() (*pattern, error) {
	start := p.pos
	text, err := p.readString()
	if err != nil {
		return nil, err
	}
	sym, ok := p.lang.SymbolForName(text, false)
	if !ok {
		return nil, &QueryError{Offset: start, Kind: ErrorNodeType, Name: text}
	}
	return &pattern{kind: kindSymbol, sym: sym}, nil
}

func (p *queryParser) parsePredicate(open int) error {
	p.pos++ // '#'
	nameStart := p.pos
	name := p.readIdentifier()
	var args []predicateArg
	for {
		p.skipSpace()
		start := p.pos
		switch c := p.at(p.pos); c {
		case 0:
			return p.syntaxError("unclosed predicate")
		case ')':
			p.pos++
			return p.addPredicate(name, nameStart, args)
		case '@':
			p.pos++
			capName := p.readIdentifier()
			id, ok := p.q.captureIndex[capName]
			if !ok {
				return &QueryError{Offset: start, Kind: ErrorCapture, Name: capName}
			}
			args = append(args, predicateArg{capture: id})
		case '"':
			text, err := p.readString()
			if err != nil {
				return err
			}
			args = append(args, predicateArg{capture: -1, text: text})
		default:
			word := p.readIdentifier()
			if word == "" {
				return p.syntaxError("unexpected %q in predicate", string(c))
			}
			args = append(args, predicateArg{capture: -1, text: word})
		}
	}
}

type predicateArg struct {
	capture int
	text    string
}

func (p *queryParser) addPredicate(name string, offset int, args []predicateArg) error {
	bad := func(msg string) error {
		return &QueryError{Offset: offset, Kind: ErrorPredicate, Name: name, Message: msg}
	}
	if len(args) == 0 || args[0].capture < 0 {
		return bad("first argument must be a capture")
	}
	pred := predicate{capture: args[0].capture, other: -1}
	switch name {
	case "eq?", "not-eq?":
		if len(args) != 2 {
			return bad("expected two arguments")
		}
		pred.op, pred.negate = opEq, name == "not-eq?"
		pred.other, pred.text = args[1].capture, args[1].text
	case "match?", "not-match?":
		if len(args) != 2 || args[1].capture >= 0 {
			return bad("expected a capture and a pattern")
		}
		re, err := regexp.Compile(args[1].text)
		if err != nil {
			return bad(err.Error())
		}
		pred.op, pred.negate, pred.re = opMatch, name == "not-match?", re
	case "any-of?", "not-any-of?":
		if len(args) < 2 {
			return bad("expected at least one value")
		}
		for _, a := range args[1:] {
			if a.capture >= 0 {
				return bad("values must be strings")
			}
			pred.values = append(pred.values, a.text)
		}
		pred.op, pred.negate = opAnyOf, name == "not-any-of?"
	default:
		return bad("unknown predicate")
	}
	*p.preds = append(*p.preds, pred)
	return nil
}

func (p *queryParser) at(i int) byte {
	if i >= len(p.src) {
		return 0
	}
	return p.src[i]
}

func (p *queryParser) skipSpace() {
	for p.pos < len(p.src) {
		switch c := p.src[p.pos]; {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			p.pos++
		case c == ';':
			for p.pos < len(p.src) && p.src[p.pos] != '\n' {
				p.pos++
			}
		default:
			return
		}
	}
}

func isIdentByte(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' ||
		c == '_' || c == '-' || c == '.' || c == '?' || c == '!'
}

func (p *queryParser) peekIdentifier() string {
	end := p.pos
	for end < len(p.src) && isIdentByte(p.src[end]) {
		end++
	}
	return p.src[p.pos:end]
}

func (p *queryParser) readIdentifier() string {
	name := p.peekIdentifier()
	p.pos += len(name)
	return name
}

func (p *queryParser) followedByColon(name string) bool {
	i := p.pos + len(name)
	for i < len(p.src) && strings.IndexByte(" \t\r\n", p.src[i]) >= 0 {
		i++
	}
	return p.at(i) == ':'
}

func (p *queryParser) readString() (string, error) {
	start := p.pos
	p.pos++ // opening quote
	var b strings.Builder
	for p.pos < len(p.src) {
		c := p.src[p.pos]
		switch c {
		case '"':
			p.pos++
			return b.String(), nil
		case '\\':
			p.pos++
			switch e := p.at(p.pos); e {
			case 'n':
				b.WriteByte('\n')
			case 't':
				b.WriteByte('\t')
			case 'r':
				b.WriteByte('\r')
			case 0:
				return "", &QuerySyntaxError{Offset: start, Message: "unterminated string"}
			default:
				b.WriteByte(e)
			}
			p.pos++
		default:
			b.WriteByte(c)
			p.pos++
		}
	}
	return "", &QuerySyntaxError{Offset: start, Message: "unterminated string"}
}

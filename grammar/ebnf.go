package grammar

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/dhamidi/arbor/lexer"
	"github.com/pelletier/go-toml/v2"
	"golang.org/x/exp/ebnf"
	"gopkg.in/yaml.v3"
)

// Manifest carries what EBNF cannot express: the start rule, extras,
// externals, precedence, fields and token patterns given as regular
// expressions.
type Manifest struct {
	Name       string            `yaml:"name" toml:"name"`
	Grammar    string            `yaml:"grammar" toml:"grammar"`
	Start      string            `yaml:"start" toml:"start"`
	Extras     []string          `yaml:"extras" toml:"extras"`
	Externals  []string          `yaml:"externals" toml:"externals"`
	Hidden     []string          `yaml:"hidden" toml:"hidden"`
	Tokens     map[string]string `yaml:"tokens" toml:"tokens"`
	Precedence []PrecDecl        `yaml:"precedence" toml:"precedence"`
	Fields     []FieldDecl       `yaml:"fields" toml:"fields"`
}

// PrecDecl assigns precedence to a rule, or to one of its top-level
// alternatives when Alternative is set (zero-based).
type PrecDecl struct {
	Rule        string `yaml:"rule" toml:"rule"`
	Alternative *int   `yaml:"alternative" toml:"alternative"`
	Level       int    `yaml:"level" toml:"level"`
	Assoc       string `yaml:"assoc" toml:"assoc"`
	Dynamic     int    `yaml:"dynamic" toml:"dynamic"`
}

// FieldDecl names occurrences of Symbol inside Rule. Symbol is a
// production name or a quoted literal such as "\"+\"". Occurrence counts
// from 1 in source order and restarts with each top-level alternative;
// zero names every occurrence.
type FieldDecl struct {
	Rule       string `yaml:"rule" toml:"rule"`
	Symbol     string `yaml:"symbol" toml:"symbol"`
	Name       string `yaml:"name" toml:"name"`
	Occurrence int    `yaml:"occurrence" toml:"occurrence"`
}

// ParseManifest decodes a manifest. format is "yaml" or "toml".
func ParseManifest(data []byte, format string) (*Manifest, error) {
	m := &Manifest{}
	var err error
	switch strings.TrimPrefix(strings.ToLower(format), ".") {
	case "yaml", "yml":
		err = yaml.Unmarshal(data, m)
	case "toml":
		err = toml.Unmarshal(data, m)
	default:
		return nil, fmt.Errorf("unknown manifest format %q", format)
	}
	if err != nil {
		return nil, fmt.Errorf("decode manifest: %w", err)
	}
	return m, nil
}

// LoadManifest reads a manifest file, choosing the decoder by extension.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("open manifest: %w", err)
	}
	return ParseManifest(data, filepath.Ext(path))
}

// LoadFile loads a grammar from a manifest (.yaml, .yml, .toml) or from a
// bare .ebnf file. A manifest's grammar path is relative to the manifest.
func LoadFile(path string) (*Grammar, error) {
	m := &Manifest{}
	src := path
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml", ".toml":
		var err error
		if m, err = LoadManifest(path); err != nil {
			return nil, err
		}
		if m.Grammar == "" {
			return nil, fmt.Errorf("manifest %s: no grammar file", path)
		}
		src = filepath.Join(filepath.Dir(path), m.Grammar)
	}
	f, err := os.Open(src)
	if err != nil {
		return nil, fmt.Errorf("open grammar: %w", err)
	}
	defer f.Close()
	if m.Name == "" {
		m.Name = strings.TrimSuffix(filepath.Base(src), filepath.Ext(src))
	}
	return LoadEBNF(src, f, m)
}

// rootProduction ties the start rule, extras, externals and manifest
// tokens together so ebnf.Verify sees them as used.
const rootProduction = "ArborRoot"

// LoadEBNF reads a grammar in golang.org/x/exp/ebnf notation. Productions
// with a capitalized name are rules. Lower-case productions are lexical;
// those a rule refers to, and those named as extras, become tokens. A
// manifest token pattern replaces the lexical production of that name.
func LoadEBNF(filename string, r io.Reader, m *Manifest) (*Grammar, error) {
	if m == nil {
		m = &Manifest{}
	}
	src, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("open grammar: %w", err)
	}
	eg, err := ebnf.Parse(filename, bytes.NewReader(src))
	if err != nil {
		return nil, fmt.Errorf("parse grammar: %w", err)
	}

	l := &ebnfLoader{eg: eg, m: m, tokens: make(map[string]bool), inlining: make(map[string]bool)}
	rules := l.ruleOrder()
	if len(rules) == 0 {
		return nil, &CompileError{Message: "grammar has no rules"}
	}
	start := m.Start
	if start == "" {
		start = rules[0].Name.String
	}
	if err := l.verify(start); err != nil {
		return nil, fmt.Errorf("verify grammar: %w", err)
	}

	name := m.Name
	if name == "" {
		name = strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename))
	}
	g := New(name)
	g.Start = start
	hidden := make(map[string]bool)
	for _, h := range m.Hidden {
		hidden[h] = true
	}
	externals := make(map[string]bool)
	for _, e := range m.Externals {
		externals[e] = true
	}
	l.externals = externals

	for _, prod := range rules {
		body, err := l.rule(prod)
		if err != nil {
			return nil, err
		}
		g.Rules = append(g.Rules, RuleDef{Name: prod.Name.String, Body: body, Hidden: hidden[prod.Name.String]})
	}

	for _, extra := range m.Extras {
		l.tokens[extra] = true
	}
	// Tokens are declared in the order their productions appear, manifest
	// only tokens last, so symbol numbering follows the grammar file.
	var names []string
	for name := range l.tokens {
		if !externals[name] {
			names = append(names, name)
		}
	}
	slices.SortFunc(names, func(a, b string) int {
		pa, pb := l.offset(a), l.offset(b)
		if pa != pb {
			return pa - pb
		}
		return strings.Compare(a, b)
	})
	for _, name := range names {
		p, err := l.token(name)
		if err != nil {
			return nil, err
		}
		g.TokenPattern(name, p)
	}
	g.Extra(m.Extras...)
	g.External(m.Externals...)
	return g, nil
}

type ebnfLoader struct {
	eg        ebnf.Grammar
	m         *Manifest
	tokens    map[string]bool
	externals map[string]bool
	inlining  map[string]bool

	current string
	seen    map[string]int
}

func isRule(name string) bool {
	ch, _ := utf8.DecodeRuneInString(name)
	return unicode.IsUpper(ch)
}

func (l *ebnfLoader) ruleOrder() []*ebnf.Production {
	var rules []*ebnf.Production
	for name, prod := range l.eg {
		if isRule(name) && name != rootProduction && prod.Pos().Line > 0 {
			rules = append(rules, prod)
		}
	}
	slices.SortFunc(rules, func(a, b *ebnf.Production) int {
		return a.Pos().Offset - b.Pos().Offset
	})
	return rules
}

func (l *ebnfLoader) offset(name string) int {
	if prod, ok := l.eg[name]; ok && prod.Pos().Line > 0 {
		return prod.Pos().Offset
	}
	return int(^uint(0) >> 1)
}

func (l *ebnfLoader) verify(start string) error {
	var root ebnf.Alternative
	add := func(name string) {
		if _, ok := l.eg[name]; !ok {
			l.eg[name] = &ebnf.Production{Name: &ebnf.Name{String: name}}
		}
		root = append(root, &ebnf.Name{String: name})
	}
	root = append(root, &ebnf.Name{String: start})
	for _, name := range l.m.Extras {
		add(name)
	}
	for _, name := range l.m.Externals {
		add(name)
	}
	tokenNames := make([]string, 0, len(l.m.Tokens))
	for name := range l.m.Tokens {
		tokenNames = append(tokenNames, name)
	}
	slices.Sort(tokenNames)
	for _, name := range tokenNames {
		add(name)
	}
	l.eg[rootProduction] = &ebnf.Production{Name: &ebnf.Name{String: rootProduction}, Expr: root}
	defer delete(l.eg, rootProduction)
	return ebnf.Verify(l.eg, rootProduction)
}

func (l *ebnfLoader) rule(prod *ebnf.Production) (Expr, error) {
	l.current = prod.Name.String
	l.seen = make(map[string]int)

	var body Expr
	if alts, ok := prod.Expr.(ebnf.Alternative); ok {
		out := make([]Expr, len(alts))
		for i, a := range alts {
			l.seen = make(map[string]int)
			e, err := l.expr(a)
			if err != nil {
				return nil, err
			}
			out[i] = l.precFor(i, e)
		}
		body = Choice(out...)
	} else {
		e, err := l.expr(prod.Expr)
		if err != nil {
			return nil, err
		}
		body = l.precFor(0, e)
	}

	for _, p := range l.m.Precedence {
		if p.Rule == l.current && p.Alternative == nil {
			body = wrapPrec(p, body)
		}
	}
	return body, nil
}

func (l *ebnfLoader) precFor(alt int, e Expr) Expr {
	for _, p := range l.m.Precedence {
		if p.Rule == l.current && p.Alternative != nil && *p.Alternative == alt {
			e = wrapPrec(p, e)
		}
	}
	return e
}

func wrapPrec(p PrecDecl, e Expr) Expr {
	if p.Dynamic != 0 {
		e = PrecDynamic(p.Dynamic, e)
	}
	switch strings.ToLower(p.Assoc) {
	case "left":
		return PrecLeft(p.Level, e)
	case "right":
		return PrecRight(p.Level, e)
	}
	if p.Level != 0 || p.Dynamic == 0 {
		return Prec(p.Level, e)
	}
	return e
}

// withField wraps a leaf in the field the manifest declares for this
// occurrence, if any.
func (l *ebnfLoader) withField(key string, e Expr) Expr {
	l.seen[key]++
	n := l.seen[key]
	for _, f := range l.m.Fields {
		if f.Rule == l.current && f.Symbol == key && (f.Occurrence == 0 || f.Occurrence == n) {
			return Field(f.Name, e)
		}
	}
	return e
}

func (l *ebnfLoader) expr(e ebnf.Expression) (Expr, error) {
	switch x := e.(type) {
	case nil:
		return Blank(), nil
	case *ebnf.Name:
		if !isRule(x.String) {
			if !l.externals[x.String] {
				l.tokens[x.String] = true
			}
		}
		return l.withField(x.String, Sym(x.String)), nil
	case *ebnf.Token:
		if x.String == "" {
			return Blank(), nil
		}
		return l.withField(fmt.Sprintf("%q", x.String), Str(x.String)), nil
	case ebnf.Sequence:
		out := make([]Expr, 0, len(x))
		for _, sub := range x {
			s, err := l.expr(sub)
			if err != nil {
				return nil, err
			}
			out = append(out, s)
		}
		return Seq(out...), nil
	case ebnf.Alternative:
		out := make([]Expr, 0, len(x))
		for _, sub := range x {
			s, err := l.expr(sub)
			if err != nil {
				return nil, err
			}
			out = append(out, s)
		}
		return Choice(out...), nil
	case *ebnf.Group:
		return l.expr(x.Body)
	case *ebnf.Option:
		body, err := l.expr(x.Body)
		if err != nil {
			return nil, err
		}
		return Optional(body), nil
	case *ebnf.Repetition:
		body, err := l.expr(x.Body)
		if err != nil {
			return nil, err
		}
		return Repeat(body), nil
	case *ebnf.Range:
		return nil, &CompileError{Rule: l.current, Message: "character range outside a lexical production"}
	}
	return nil, &CompileError{Rule: l.current, Message: fmt.Sprintf("unsupported expression %T", e)}
}

// token builds the pattern of a lexical production, inlining the lexical
// productions it refers to.
func (l *ebnfLoader) token(name string) (*lexer.Pattern, error) {
	if re, ok := l.m.Tokens[name]; ok {
		p, err := lexer.FromRegexp(re)
		if err != nil {
			return nil, &CompileError{Rule: name, Message: err.Error()}
		}
		return p, nil
	}
	prod, ok := l.eg[name]
	if !ok || prod.Expr == nil {
		return nil, &CompileError{Rule: name, Message: "token has no pattern"}
	}
	if l.inlining[name] {
		return nil, &CompileError{Rule: name, Message: "recursive lexical production"}
	}
	l.inlining[name] = true
	defer delete(l.inlining, name)
	return l.pattern(name, prod.Expr)
}

func (l *ebnfLoader) pattern(tok string, e ebnf.Expression) (*lexer.Pattern, error) {
	switch x := e.(type) {
	case nil:
		return lexer.Empty(), nil
	case *ebnf.Name:
		return l.token(x.String)
	case *ebnf.Token:
		return lexer.Literal(x.String), nil
	case *ebnf.Range:
		lo, n1 := utf8.DecodeRuneInString(x.Begin.String)
		hi, n2 := utf8.DecodeRuneInString(x.End.String)
		if n1 != len(x.Begin.String) || n2 != len(x.End.String) || lo > hi {
			return nil, &CompileError{Rule: tok, Message: fmt.Sprintf("bad range %q…%q", x.Begin.String, x.End.String)}
		}
		return lexer.Class(lo, hi), nil
	case ebnf.Sequence:
		subs, err := l.patterns(tok, x)
		if err != nil {
			return nil, err
		}
		return lexer.Concat(subs...), nil
	case ebnf.Alternative:
		subs, err := l.patterns(tok, x)
		if err != nil {
			return nil, err
		}
		return lexer.Alternate(subs...), nil
	case *ebnf.Group:
		return l.pattern(tok, x.Body)
	case *ebnf.Option:
		p, err := l.pattern(tok, x.Body)
		if err != nil {
			return nil, err
		}
		return lexer.Quest(p), nil
	case *ebnf.Repetition:
		p, err := l.pattern(tok, x.Body)
		if err != nil {
			return nil, err
		}
		return lexer.Star(p), nil
	}
	return nil, &CompileError{Rule: tok, Message: fmt.Sprintf("unsupported expression %T", e)}
}

func (l *ebnfLoader) patterns(tok string, list []ebnf.Expression) ([]*lexer.Pattern, error) {
	out := make([]*lexer.Pattern, 0, len(list))
	for _, e := range list {
		p, err := l.pattern(tok, e)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

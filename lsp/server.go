// Package lsp serves parse trees over the Language Server Protocol. Open
// documents are kept with their last tree and reparsed incrementally on
// every change; syntax errors are published as diagnostics.
package lsp

import (
	"cmp"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/tliron/commonlog"
	"github.com/tliron/glsp"
	protocol "github.com/tliron/glsp/protocol_3_16"
	"github.com/tliron/glsp/server"

	"github.com/dhamidi/arbor/format"
	"github.com/dhamidi/arbor/grammar"
	"github.com/dhamidi/arbor/parser"
	"github.com/dhamidi/arbor/query"
	"github.com/dhamidi/arbor/syntax"
)

const lsName = "arbor"

// Server holds the open documents of one client connection.
type Server struct {
	lang    *grammar.Language
	version string
	log     commonlog.Logger

	symbolsText string
	foldsText   string
	parserOpts  []parser.Option

	symbols *query.Query
	folds   *query.Query

	handler protocol.Handler
	server  *server.Server

	mu     sync.Mutex
	parser *parser.Parser
	docs   map[protocol.DocumentUri]*document
}

type document struct {
	version protocol.Integer
	text    []byte
	lines   []int
	tree    *syntax.Tree
}

type Option func(*Server)

func WithVersion(v string) Option {
	return func(s *Server) {
		s.version = v
	}
}

func WithLogger(log commonlog.Logger) Option {
	return func(s *Server) {
		s.log = log
	}
}

// WithSymbolsQuery sets the query behind documentSymbol. Each match
// becomes a symbol named by its @name capture; the other capture gives
// the symbol's extent and kind.
func WithSymbolsQuery(text string) Option {
	return func(s *Server) {
		s.symbolsText = text
	}
}

// WithFoldsQuery sets the query whose @fold captures become folding
// ranges.
func WithFoldsQuery(text string) Option {
	return func(s *Server) {
		s.foldsText = text
	}
}

func WithParserOptions(opts ...parser.Option) Option {
	return func(s *Server) {
		s.parserOpts = append(s.parserOpts, opts...)
	}
}

// New builds a server for lang. It fails if a configured query does not
// compile against the language.
func New(lang *grammar.Language, opts ...Option) (*Server, error) {
	s := &Server{
		lang:    lang,
		version: "dev",
		log:     commonlog.GetLogger("arbor.lsp"),
		docs:    make(map[protocol.DocumentUri]*document),
	}
	for _, opt := range opts {
		opt(s)
	}

	var err error
	if s.symbolsText != "" {
		if s.symbols, err = query.New(lang, s.symbolsText); err != nil {
			return nil, fmt.Errorf("symbols query: %w", err)
		}
	}
	if s.foldsText != "" {
		if s.folds, err = query.New(lang, s.foldsText); err != nil {
			return nil, fmt.Errorf("folds query: %w", err)
		}
	}
	s.parser = parser.New(append([]parser.Option{parser.WithLogger(s.log)}, s.parserOpts...)...)
	if err := s.parser.SetLanguage(lang); err != nil {
		return nil, err
	}

	s.handler = protocol.Handler{
		Initialize:                 s.initialize,
		Initialized:                s.initialized,
		Shutdown:                   s.shutdown,
		SetTrace:                   s.setTrace,
		TextDocumentDidOpen:        s.textDocumentDidOpen,
		TextDocumentDidChange:      s.textDocumentDidChange,
		TextDocumentDidClose:       s.textDocumentDidClose,
		TextDocumentHover:          s.textDocumentHover,
		TextDocumentDocumentSymbol: s.textDocumentDocumentSymbol,
		TextDocumentFoldingRange:   s.textDocumentFoldingRange,
	}
	s.server = server.NewServer(&s.handler, lsName, false)
	return s, nil
}

func (s *Server) RunStdio() error {
	return s.server.RunStdio()
}

func (s *Server) initialize(ctx *glsp.Context, params *protocol.InitializeParams) (any, error) {
	capabilities := s.handler.CreateServerCapabilities()
	change := protocol.TextDocumentSyncKindIncremental
	capabilities.TextDocumentSync = &protocol.TextDocumentSyncOptions{
		OpenClose: boolPtr(true),
		Change:    &change,
	}
	if s.symbols == nil {
		capabilities.DocumentSymbolProvider = nil
	}
	if s.folds == nil {
		capabilities.FoldingRangeProvider = nil
	}
	return protocol.InitializeResult{
		Capabilities: capabilities,
		ServerInfo: &protocol.InitializeResultServerInfo{
			Name:    lsName,
			Version: &s.version,
		},
	}, nil
}

func (s *Server) initialized(ctx *glsp.Context, params *protocol.InitializedParams) error {
	s.log.Infof("serving %s", s.lang.Name())
	return nil
}

func (s *Server) shutdown(ctx *glsp.Context) error {
	return nil
}

func (s *Server) setTrace(ctx *glsp.Context, params *protocol.SetTraceParams) error {
	protocol.SetTraceValue(params.Value)
	return nil
}

func (s *Server) textDocumentDidOpen(ctx *glsp.Context, params *protocol.DidOpenTextDocumentParams) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	text := []byte(params.TextDocument.Text)
	tree, err := s.parser.Parse(text, nil)
	if err != nil {
		return err
	}
	doc := &document{version: params.TextDocument.Version, text: text, lines: lineOffsets(text), tree: tree}
	s.docs[params.TextDocument.URI] = doc
	s.publish(ctx, params.TextDocument.URI, doc)
	return nil
}

func (s *Server) textDocumentDidChange(ctx *glsp.Context, params *protocol.DidChangeTextDocumentParams) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	uri := params.TextDocument.URI
	doc, ok := s.docs[uri]
	if !ok {
		s.log.Warningf("change to unopened document %s", uri)
		return nil
	}
	text, tree := doc.text, doc.tree
	for _, change := range params.ContentChanges {
		switch c := change.(type) {
		case protocol.TextDocumentContentChangeEvent:
			if c.Range == nil {
				text, tree = replaceAll(text, tree, []byte(c.Text))
				continue
			}
			lines := lineOffsets(text)
			start := offsetAt(lines, text, c.Range.Start)
			end := max(start, offsetAt(lines, text, c.Range.End))
			e := syntax.EditFromText(text, start, end, []byte(c.Text))
			text = syntax.Apply(text, start, end, []byte(c.Text))
			tree = tree.Edit(e)
		case protocol.TextDocumentContentChangeEventWhole:
			text, tree = replaceAll(text, tree, []byte(c.Text))
		}
	}

	next, err := s.parser.Parse(text, tree)
	if err != nil {
		return err
	}
	stats := s.parser.Stats()
	s.log.Debugf("reparsed %s: %d nodes reused", uri, stats.ReusedNodes)
	doc.version, doc.text, doc.lines, doc.tree = params.TextDocument.Version, text, lineOffsets(text), next
	s.publish(ctx, uri, doc)
	return nil
}

// replaceAll turns a full-text change into the smallest single edit so
// the old tree can still be reused.
func replaceAll(text []byte, tree *syntax.Tree, next []byte) ([]byte, *syntax.Tree) {
	if e, ok := syntax.Diff(text, next); ok {
		return next, tree.Edit(e)
	}
	return next, tree
}

func (s *Server) textDocumentDidClose(ctx *glsp.Context, params *protocol.DidCloseTextDocumentParams) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.docs, params.TextDocument.URI)
	ctx.Notify(protocol.ServerTextDocumentPublishDiagnostics, protocol.PublishDiagnosticsParams{
		URI:         params.TextDocument.URI,
		Diagnostics: []protocol.Diagnostic{},
	})
	return nil
}

// publish sends one diagnostic per ERROR and MISSING node.
func (s *Server) publish(ctx *glsp.Context, uri protocol.DocumentUri, doc *document) {
	diags := []protocol.Diagnostic{}
	severity := protocol.DiagnosticSeverityError
	source := lsName
	problems, err := format.Problems(doc.tree, doc.text)
	if err != nil {
		s.log.Errorf("diagnostics for %s: %s", uri, err)
	}
	for _, p := range problems {
		diags = append(diags, protocol.Diagnostic{
			Range:    rangeAt(doc.lines, doc.text, p.StartByte, p.EndByte),
			Severity: &severity,
			Source:   &source,
			Message:  p.Message,
		})
	}
	version := protocol.UInteger(doc.version)
	ctx.Notify(protocol.ServerTextDocumentPublishDiagnostics, protocol.PublishDiagnosticsParams{
		URI:         uri,
		Version:     &version,
		Diagnostics: diags,
	})
}

func (s *Server) document(uri protocol.DocumentUri) *document {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.docs[uri]
}

// textDocumentHover shows the chain of named nodes at the cursor.
func (s *Server) textDocumentHover(ctx *glsp.Context, params *protocol.HoverParams) (*protocol.Hover, error) {
	doc := s.document(params.TextDocument.URI)
	if doc == nil {
		return nil, nil
	}
	off := offsetAt(doc.lines, doc.text, params.Position)
	n := doc.tree.RootNode().NamedDescendantForByteRange(off, off)
	if n.IsNull() {
		return nil, nil
	}

	var path []string
	for p := n; !p.IsNull(); p = p.Parent() {
		if !p.IsNamed() {
			continue
		}
		kind := p.Kind()
		if field := p.FieldName(); field != "" {
			kind = field + ": " + kind
		}
		path = append(path, kind)
	}
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	r := rangeAt(doc.lines, doc.text, n.StartByte(), n.EndByte())
	return &protocol.Hover{
		Contents: protocol.MarkupContent{
			Kind:  protocol.MarkupKindMarkdown,
			Value: "`" + strings.Join(path, " > ") + "`",
		},
		Range: &r,
	}, nil
}

func (s *Server) textDocumentDocumentSymbol(ctx *glsp.Context, params *protocol.DocumentSymbolParams) (any, error) {
	doc := s.document(params.TextDocument.URI)
	if doc == nil || s.symbols == nil {
		return []protocol.DocumentSymbol{}, nil
	}
	return s.documentSymbols(doc), nil
}

// documentSymbols nests each symbol inside the smallest symbol whose
// extent contains it.
func (s *Server) documentSymbols(doc *document) []protocol.DocumentSymbol {
	type entry struct {
		sym        protocol.DocumentSymbol
		start, end int
		children   []*entry
	}
	var entries []*entry
	m := s.symbols.Matches(doc.tree.RootNode(), doc.text)
	for match, ok := m.Next(); ok; match, ok = m.Next() {
		var name, extent syntax.Node
		kind := protocol.SymbolKindVariable
		for _, c := range match.Captures {
			if c.Name == "name" {
				name = c.Node
				continue
			}
			extent = c.Node
			kind = symbolKind(c.Name)
		}
		if name.IsNull() {
			continue
		}
		if extent.IsNull() {
			extent = name
		}
		start := min(extent.StartByte(), name.StartByte())
		entries = append(entries, &entry{
			sym: protocol.DocumentSymbol{
				Name:           name.Content(doc.text),
				Kind:           kind,
				Range:          rangeAt(doc.lines, doc.text, start, extent.EndByte()),
				SelectionRange: rangeAt(doc.lines, doc.text, name.StartByte(), name.EndByte()),
			},
			start: start,
			end:   extent.EndByte(),
		})
	}
	slices.SortStableFunc(entries, func(a, b *entry) int {
		return cmp.Or(cmp.Compare(a.start, b.start), cmp.Compare(b.end, a.end))
	})

	var roots, stack []*entry
	for _, e := range entries {
		for len(stack) > 0 && stack[len(stack)-1].end < e.end {
			stack = stack[:len(stack)-1]
		}
		if len(stack) == 0 {
			roots = append(roots, e)
		} else {
			top := stack[len(stack)-1]
			top.children = append(top.children, e)
		}
		stack = append(stack, e)
	}

	var build func([]*entry) []protocol.DocumentSymbol
	build = func(es []*entry) []protocol.DocumentSymbol {
		out := make([]protocol.DocumentSymbol, 0, len(es))
		for _, e := range es {
			sym := e.sym
			if len(e.children) > 0 {
				sym.Children = build(e.children)
			}
			out = append(out, sym)
		}
		return out
	}
	return build(roots)
}

func symbolKind(capture string) protocol.SymbolKind {
	switch capture {
	case "function":
		return protocol.SymbolKindFunction
	case "module":
		return protocol.SymbolKindModule
	case "method":
		return protocol.SymbolKindMethod
	case "type":
		return protocol.SymbolKindClass
	case "constant":
		return protocol.SymbolKindConstant
	case "field":
		return protocol.SymbolKindField
	default:
		return protocol.SymbolKindVariable
	}
}

func (s *Server) textDocumentFoldingRange(ctx *glsp.Context, params *protocol.FoldingRangeParams) ([]protocol.FoldingRange, error) {
	doc := s.document(params.TextDocument.URI)
	out := []protocol.FoldingRange{}
	if doc == nil || s.folds == nil {
		return out, nil
	}
	for _, c := range s.folds.Captures(doc.tree.RootNode(), doc.text) {
		if c.Name != "fold" {
			continue
		}
		r := rangeAt(doc.lines, doc.text, c.Node.StartByte(), c.Node.EndByte())
		if r.End.Line > r.Start.Line {
			out = append(out, protocol.FoldingRange{StartLine: r.Start.Line, EndLine: r.End.Line})
		}
	}
	return out, nil
}

func boolPtr(b bool) *bool {
	return &b
}

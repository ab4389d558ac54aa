// Package parser builds syntax trees from source text using the tables of
// a compiled grammar.Language.
//
// The parser is a GLR interpreter. Where the tables hold more than one
// action it follows every alternative on a graph-structured stack and
// merges versions that reach the same state at the same position. Syntax
// errors never fail a parse: they are recorded in the tree as ERROR and
// MISSING nodes. Given the previous tree, edited to match the new text,
// the parser reuses every old subtree that a fresh parse would rebuild
// identically.
package parser

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync/atomic"
	"time"

	"github.com/tliron/commonlog"
	"go.opentelemetry.io/otel/metric"

	"github.com/dhamidi/arbor/grammar"
	"github.com/dhamidi/arbor/lexer"
	"github.com/dhamidi/arbor/syntax"
)

const (
	// checkInterval is how many steps pass between context and
	// deadline checks.
	checkInterval = 64
	// maxReductions bounds the stack paths popped and reduced for one
	// token.
	maxReductions = 20000
	// maxMissing bounds the missing tokens inserted at one position.
	maxMissing = 3
	// maxRecoveriesAt bounds the recoveries attempted at one position
	// before tokens are skipped unconditionally.
	maxRecoveriesAt = 8
	// maxStall is the number of steps without progress after which the
	// external scanner is bypassed at the current position.
	maxStall = 256
)

// Stats describes the last parse.
type Stats struct {
	ReusedNodes int
	Recoveries  int
	// MaxVersions is the largest number of stack versions alive at once.
	MaxVersions int
}

// Parser turns source text into trees. A Parser must not be used by more
// than one goroutine at a time; create one parser per goroutine and share
// the Language.
type Parser struct {
	lang        *grammar.Language
	builder     *syntax.Builder
	cache       *syntax.Cache
	log         commonlog.Logger
	meter       metric.Meter
	ins         *instruments
	maxVersions int
	timeout     time.Duration
	cancelFlag  *atomic.Bool

	ctx      context.Context
	halted   bool
	src      []byte
	stack    stack
	heads    []int
	finished []*syntax.Subtree
	reduced  map[reduction]int
	reuse    reuser
	reusing  bool
	undo     reuseUndo
	forked   bool

	recovering bool

	external     lexer.ExternalScanner
	extLexer     *lexer.ExternalLexer
	lexCache     map[lexKey]token
	lexPos       int
	noExternalAt int

	recoverAt  int
	recoverRun int
	lastPos    int
	stall      int
	ops        int
	deadline   time.Time
	stats      Stats
}

// reduction identifies a node built while one token is processed.
// Paths that reduce the same production onto the same base share it.
type reduction struct {
	base       int
	production uint32
}

// reuseUndo records the last reused subtree so that it can be taken back
// when the token after it needs error recovery.
type reuseUndo struct {
	node  int
	head  int
	reuse []reuseEntry
}

// New returns a parser without a language.
func New(opts ...Option) *Parser {
	p := &Parser{
		maxVersions: DefaultMaxVersions,
		lexCache:    make(map[lexKey]token),
		reduced:     make(map[reduction]int),
		extLexer:    newExtLexer(),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.log == nil {
		p.log = commonlog.GetLogger("arbor.parser")
	}
	if p.cache == nil {
		p.cache = syntax.NewCache(syntax.DefaultCacheSize)
	}
	p.ins = newInstruments(p.meter)
	return p
}

// SetLanguage selects the language for subsequent parses. Tables with a
// format version this build cannot read are rejected with a
// *grammar.VersionMismatchError.
func (p *Parser) SetLanguage(lang *grammar.Language) error {
	if lang == nil {
		return ErrNoLanguage
	}
	if err := grammar.CheckVersion(lang.Version()); err != nil {
		return fmt.Errorf("set language %s: %w", lang.Name(), err)
	}
	p.lang = lang
	p.builder = syntax.NewBuilder(lang, p.cache)
	return nil
}

func (p *Parser) Language() *grammar.Language { return p.lang }

// Stats returns counters for the last parse.
func (p *Parser) Stats() Stats { return p.stats }

// Parse parses src. If old is not nil it must be the previous tree for
// this parser's language, with every edit since then applied through
// Tree.Edit; its unchanged subtrees are reused.
func (p *Parser) Parse(src []byte, old *syntax.Tree) (*syntax.Tree, error) {
	return p.ParseContext(context.Background(), src, old)
}

// ParseContext is like Parse but stops with ErrCancelled when ctx is
// done.
func (p *Parser) ParseContext(ctx context.Context, src []byte, old *syntax.Tree) (*syntax.Tree, error) {
	if p.lang == nil {
		return nil, ErrNoLanguage
	}
	start := time.Now()
	p.ctx = ctx
	p.begin(src, old, start)
	defer p.release()

	for len(p.heads) > 0 && !p.cancelled() {
		p.step()
	}
	if p.halted {
		p.log.Debugf("parse cancelled after %d checks", p.ops)
		return nil, ErrCancelled
	}

	tree := syntax.NewTree(p.best(), p.lang)
	elapsed := time.Since(start)
	p.ins.record(ctx, p.lang.Name(), p.reusing, p.stats, elapsed)
	p.log.Debugf("parsed %d bytes in %s: %d reused, %d recoveries, %d versions at most",
		len(src), elapsed, p.stats.ReusedNodes, p.stats.Recoveries, p.stats.MaxVersions)
	return tree, nil
}

func (p *Parser) begin(src []byte, old *syntax.Tree, start time.Time) {
	p.src = src
	p.stats = Stats{}
	p.heads = p.heads[:0]
	p.finished = p.finished[:0]
	p.lexPos, p.noExternalAt = -1, -1
	p.recoverAt, p.recoverRun = -1, 0
	p.lastPos, p.stall = 0, 0
	p.ops = 0
	p.halted, p.recovering = false, false
	p.undo = reuseUndo{node: -1}
	p.deadline = time.Time{}
	if p.timeout > 0 {
		p.deadline = start.Add(p.timeout)
	}

	ext := ""
	p.external = p.lang.NewExternalScanner()
	if p.external != nil {
		p.external.Deserialize(nil)
		ext = string(p.external.Serialize())
	}
	p.heads = append(p.heads, p.stack.reset(ext))

	p.reusing = false
	switch {
	case old == nil:
	case old.Language() != p.lang:
		p.log.Debugf("previous tree has another language; parsing from scratch")
	case old.Len() != len(src):
		p.log.Warningf("previous tree covers %d bytes but the source has %d; parsing from scratch", old.Len(), len(src))
	default:
		p.reuse.reset(old)
		p.reusing = true
	}
}

func (p *Parser) release() {
	p.ctx = nil
	p.src = nil
	p.undo = reuseUndo{node: -1}
	p.external = nil
	p.extLexer.Reset(nil, 0)
	clear(p.lexCache)
}

// cancelled reports whether the parse must stop. It is called from every
// loop that may run long within a step; once it reports true the parse
// stays halted.
func (p *Parser) cancelled() bool {
	if p.halted {
		return true
	}
	if p.cancelFlag != nil && p.cancelFlag.Load() {
		p.halted = true
		return true
	}
	p.ops++
	if p.ops%checkInterval != 1 {
		return false
	}
	if p.ctx.Err() != nil || !p.deadline.IsZero() && !time.Now().Before(p.deadline) {
		p.halted = true
	}
	return p.halted
}

// step advances the version furthest behind by one token.
func (p *Parser) step() {
	i := 0
	for j, h := range p.heads {
		if p.stack.nodes[h].pos.Bytes < p.stack.nodes[p.heads[i]].pos.Bytes {
			i = j
		}
	}
	h := p.heads[i]
	p.heads = slices.Delete(p.heads, i, i+1)
	p.forked = false

	n := p.stack.nodes[h]
	if n.pos.Bytes == p.lastPos {
		p.stall++
		if p.stall > maxStall && p.noExternalAt != n.pos.Bytes {
			p.log.Warningf("no progress at byte %d; bypassing the external scanner", n.pos.Bytes)
			p.noExternalAt = n.pos.Bytes
		}
	} else {
		p.lastPos, p.stall = n.pos.Bytes, 0
	}

	if p.reusing && len(p.heads) == 0 && p.tryReuse(h) {
		p.prune()
		return
	}
	if p.halted {
		return
	}

	tok := p.lex(n.state, n.pos, n.ext)
	end := n.pos.Bytes + tok.size.Bytes + tok.la
	if p.process(h, tok, end) {
		p.prune()
		return
	}
	if p.halted {
		return
	}
	if len(p.heads) > 0 {
		p.log.Debugf("version in state %d has no action for %s at byte %d", n.state, p.lang.Symbol(tok.sym), n.pos.Bytes)
		return
	}
	p.recover(h, tok, end)
	p.prune()
}

// process applies the actions for tok to the version at h, following
// every reduction until the token is shifted, accepted or rejected. end
// is the offset just past the text examined to produce tok. It reports
// whether any version consumed the token.
func (p *Parser) process(h int, tok token, end int) bool {
	lexed := p.stack.nodes[h]
	others := len(p.heads)
	progress := false
	var shifted *syntax.Subtree
	work := []int{h}
	budget := maxReductions
	clear(p.reduced)

	for len(work) > 0 {
		if p.cancelled() {
			return false
		}
		if budget <= 0 {
			p.log.Errorf("too many reductions at byte %d", lexed.pos.Bytes)
			break
		}
		budget--
		n := work[0]
		work = work[1:]
		ambiguous := func() bool { return others > 0 || p.forked || p.recovering || len(work) > 0 }

		state := p.stack.nodes[n].state
		actions := p.lang.Actions(state, tok.sym)
		if len(actions) == 0 {
			if p.lang.IsExtra(tok.sym) && !tok.missing {
				leaf := p.leaf(tok, lexed.state, lexed.ext, true, ambiguous())
				p.addHead(n, leaf, state, tok.extAfter)
				progress = true
			}
			continue
		}
		if len(actions) > 1 {
			p.forked = true
			p.log.Debugf("forking %d ways in state %d on %s at byte %d", len(actions), state, p.lang.Symbol(tok.sym), lexed.pos.Bytes)
		}

		for _, a := range actions {
			switch a.Type {
			case grammar.ActionShift:
				if shifted == nil {
					shifted = p.leaf(tok, lexed.state, lexed.ext, false, ambiguous())
				}
				p.addHead(n, shifted, a.State, tok.extAfter)
				progress = true
			case grammar.ActionReduce:
				count := p.lang.Production(a.Production).ChildCount()
				paths := p.stack.pop(n, count, max(1, min(p.maxVersions, budget)))
				budget -= len(paths)
				if len(paths) > 1 {
					p.forked = true
				}
				for _, path := range paths {
					if m, ok := p.reduce(path, a.Production, end, ambiguous()); ok {
						work = append(work, m)
					}
				}
			case grammar.ActionAccept:
				p.accept(n)
				progress = true
			}
		}
	}
	return progress
}

// reduce builds the node for production id from path and pushes it,
// followed by the trailing extras the reduction left out. A path that
// repeats a reduction already made for this token is joined into the
// earlier node, keeping the better subtree, and reports false.
func (p *Parser) reduce(path popPath, id uint32, end int, fragile bool) (int, bool) {
	prod := p.lang.Production(id)
	base := p.stack.nodes[path.base]
	target, ok := p.lang.Goto(base.state, prod.LHS)
	if !ok {
		return 0, false
	}
	tree := p.builder.Node(id, path.children, base.state, end-base.pos.Bytes, fragile)
	key := reduction{base: path.base, production: id}
	if m, ok := p.reduced[key]; ok {
		p.stack.link(m, path.base, tree)
		return 0, false
	}
	m := p.stack.push(path.base, tree, target, path.ext)
	p.reduced[key] = m
	return p.pushExtras(m, path.trailing), true
}

// pushExtras pushes extras onto node i without changing its state.
func (p *Parser) pushExtras(i int, extras []*syntax.Subtree) int {
	for _, x := range extras {
		_, after := x.ExternalState()
		i = p.stack.push(i, x, p.stack.nodes[i].state, after)
	}
	return i
}

// addHead pushes tree onto prev as a new version, or joins it into an
// existing version in the same state at the same position.
func (p *Parser) addHead(prev int, tree *syntax.Subtree, state grammar.StateID, ext string) {
	pos := p.stack.nodes[prev].pos.Add(tree.Size())
	for _, h := range p.heads {
		n := &p.stack.nodes[h]
		if n.state == state && n.pos.Bytes == pos.Bytes && n.ext == ext {
			p.stack.link(h, prev, tree)
			p.log.Debugf("merged versions in state %d at byte %d", state, pos.Bytes)
			return
		}
	}
	p.heads = append(p.heads, p.stack.push(prev, tree, state, ext))
}

func (p *Parser) accept(n int) {
	for _, path := range p.stack.pop(n, 1, p.maxVersions) {
		leading := p.stack.below(path.base)
		p.finished = append(p.finished, p.builder.Root(path.children[0], leading, path.trailing))
	}
}

func (p *Parser) best() *syntax.Subtree {
	var best *syntax.Subtree
	for _, root := range p.finished {
		if best == nil || better(root, best) {
			best = root
		}
	}
	return best
}

// prune drops the worst versions beyond the configured maximum.
func (p *Parser) prune() {
	p.stats.MaxVersions = max(p.stats.MaxVersions, len(p.heads))
	if len(p.heads) <= p.maxVersions {
		return
	}
	slices.SortStableFunc(p.heads, func(a, b int) int {
		x, y := &p.stack.nodes[a], &p.stack.nodes[b]
		if x.cost != y.cost {
			return cmp.Compare(x.cost, y.cost)
		}
		if x.dynPrec != y.dynPrec {
			return cmp.Compare(y.dynPrec, x.dynPrec)
		}
		return cmp.Compare(a, b)
	})
	p.log.Debugf("dropping %d versions", len(p.heads)-p.maxVersions)
	p.heads = p.heads[:p.maxVersions]
	slices.Sort(p.heads)
}

// tryReuse pushes the old subtree at the position of the only version,
// if one is valid there. Reductions that a fresh parse would perform
// before the subtree's first token are performed first.
//
// The first leaf only has to have been lexed with the same lex mode as
// the current state: a reused subtree leaves the stack reduced further
// than the old parse had it when that leaf was scanned.
func (p *Parser) tryReuse(h int) bool {
	pos := p.stack.nodes[h].pos.Bytes
	for {
		st := p.reuse.candidate(pos)
		if st == nil {
			return false
		}
		if !p.reusable(h, st) {
			p.reuse.breakdown()
			continue
		}

		if st.IsLeaf() {
			tok := token{sym: st.Symbol(), size: st.Size(), la: st.Lookahead()}
			_, tok.extAfter = st.ExternalState()
			p.reuse.advance()
			if !p.process(h, tok, pos+tok.size.Bytes+tok.la) {
				return false
			}
			p.stats.ReusedNodes++
			return true
		}

		first := st.FirstLeaf()
		m, ok := p.reduceBefore(h, first.Symbol(), pos+first.Size().Bytes+first.Lookahead())
		if !ok || p.stack.nodes[m].state != st.ParseState() {
			p.reuse.breakdown()
			continue
		}
		target, ok := p.lang.Goto(p.stack.nodes[m].state, st.Symbol())
		if !ok {
			p.reuse.breakdown()
			continue
		}
		_, after := st.ExternalState()
		n := p.stack.push(m, st, target, after)
		p.heads = append(p.heads, n)
		p.undo = reuseUndo{node: n, head: h, reuse: slices.Clone(p.reuse.stack)}
		p.reuse.advance()
		p.stats.ReusedNodes++
		p.log.Debugf("reused %s at byte %d", p.lang.Symbol(st.Symbol()), pos)
		return true
	}
}

func (p *Parser) reusable(h int, st *syntax.Subtree) bool {
	n := p.stack.nodes[h]
	first := st.FirstLeaf()
	before, _ := st.ExternalState()
	return !st.HasChanges() &&
		!st.IsFragile() &&
		!st.HasError() &&
		!st.IsExtra() &&
		st.Size().Bytes > 0 &&
		!first.IsExtra() &&
		p.lang.LexMode(first.ParseState()) == p.lang.LexMode(n.state) &&
		before == n.ext
}

// reduceBefore performs the reductions the tables prescribe for
// lookahead sym, as long as they are unambiguous, and returns the
// version that would shift sym.
func (p *Parser) reduceBefore(h int, sym grammar.Symbol, end int) (int, bool) {
	clear(p.reduced)
	for range maxReductions {
		if p.cancelled() {
			return 0, false
		}
		actions := p.lang.Actions(p.stack.nodes[h].state, sym)
		if len(actions) != 1 {
			return 0, false
		}
		switch a := actions[0]; a.Type {
		case grammar.ActionShift:
			return h, true
		case grammar.ActionReduce:
			paths := p.stack.pop(h, p.lang.Production(a.Production).ChildCount(), 2)
			if len(paths) != 1 {
				return 0, false
			}
			m, ok := p.reduce(paths[0], a.Production, end, false)
			if !ok {
				return 0, false
			}
			h = m
		default:
			return 0, false
		}
	}
	return 0, false
}

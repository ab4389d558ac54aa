package parser

import (
	"github.com/dhamidi/arbor/grammar"
	"github.com/dhamidi/arbor/syntax"
)

// recover handles a token that the last remaining version cannot use.
// It tries, in order, to insert a missing token, to unwind the stack into
// an ERROR node, and finally skips the token. At the end of input a
// version that cannot accept becomes an ERROR root.
//
// A subtree reused just before tok is taken back first: a fresh parse
// would have tok's error recovery see that subtree's children unreduced.
func (p *Parser) recover(h int, tok token, end int) {
	if p.cancelled() || p.undoReuse(h) {
		return
	}
	p.recovering = true
	defer func() { p.recovering = false }()

	n := p.stack.nodes[h]
	p.stats.Recoveries++
	if p.recoverAt != n.pos.Bytes {
		p.recoverAt, p.recoverRun = n.pos.Bytes, 0
	}
	p.recoverRun++

	if p.recoverRun <= maxRecoveriesAt {
		if p.recoverRun <= maxMissing && p.insertMissing(h, tok, end) {
			return
		}
		if p.unwind(h, tok, end) {
			return
		}
	}
	if tok.sym == grammar.SymbolEnd {
		p.finishError(h)
		return
	}
	p.skip(h, tok)
}

// undoReuse restores the version from before the last reused subtree
// when that subtree, followed only by extras, is on top of h. The reuser
// then offers the subtree's children one by one.
func (p *Parser) undoReuse(h int) bool {
	if p.undo.node < 0 {
		return false
	}
	if below, _ := p.stack.trailing(h); below != p.undo.node {
		return false
	}
	p.log.Debugf("taking back reused %s at byte %d",
		p.lang.Symbol(p.stack.nodes[p.undo.node].links[0].tree.Symbol()), p.stack.nodes[p.undo.head].pos.Bytes)
	p.heads = append(p.heads, p.undo.head)
	p.reuse.stack = p.undo.reuse
	p.reuse.breakdown()
	p.stats.ReusedNodes--
	p.undo = reuseUndo{node: -1}
	return true
}

// simulate runs the first action of each table cell for sym over a copy
// of states and reports whether sym ends up shifted or accepted.
func (p *Parser) simulate(states []grammar.StateID, sym grammar.Symbol) ([]grammar.StateID, bool) {
	states = append([]grammar.StateID(nil), states...)
	for range maxReductions {
		if p.cancelled() {
			return nil, false
		}
		actions := p.lang.Actions(states[len(states)-1], sym)
		if len(actions) == 0 {
			return nil, false
		}
		switch a := actions[0]; a.Type {
		case grammar.ActionShift:
			return append(states, a.State), true
		case grammar.ActionAccept:
			return states, true
		case grammar.ActionReduce:
			prod := p.lang.Production(a.Production)
			if prod.ChildCount() >= len(states) {
				return nil, false
			}
			states = states[:len(states)-prod.ChildCount()]
			next, ok := p.lang.Goto(states[len(states)-1], prod.LHS)
			if !ok {
				return nil, false
			}
			states = append(states, next)
		}
	}
	return nil, false
}

func statesOf(frames []frame) []grammar.StateID {
	out := make([]grammar.StateID, len(frames))
	for i, f := range frames {
		out[i] = f.state
	}
	return out
}

// insertMissing shifts a zero-width token when that lets tok be used. The
// lowest numbered such terminal is chosen. It goes right after the last
// token, before any extras that follow it.
func (p *Parser) insertMissing(h int, tok token, end int) bool {
	if tok.sym == grammar.SymbolError {
		return false
	}
	below, extras := p.stack.trailing(h)
	states := statesOf(p.stack.frames(h))
	for sym := grammar.Symbol(2); int(sym) < p.lang.TokenCount() && !p.halted; sym++ {
		if p.lang.IsExtra(sym) {
			continue
		}
		after, ok := p.simulate(states, sym)
		if !ok {
			continue
		}
		if _, ok := p.simulate(after, tok.sym); !ok {
			continue
		}
		n := p.stack.nodes[below]
		p.log.Debugf("inserting missing %s at byte %d", p.lang.Symbol(sym), n.pos.Bytes)
		if p.process(below, token{sym: sym, missing: true, extAfter: n.ext}, end) {
			for i, head := range p.heads {
				p.heads[i] = p.pushExtras(head, extras)
			}
			return true
		}
	}
	return false
}

// unwind pops the shallowest run of subtrees whose removal lets tok be
// used, and keeps them in an ERROR node on the remaining stack. Extras
// after the last popped token stay outside the ERROR.
func (p *Parser) unwind(h int, tok token, end int) bool {
	below, extras := p.stack.trailing(h)
	frames := p.stack.frames(h)
	states := statesOf(frames)
	for depth := 1; depth < len(frames) && !p.halted; depth++ {
		keep := len(frames) - depth
		if _, ok := p.simulate(states[:keep], tok.sym); !ok {
			continue
		}
		base := frames[keep-1].node
		var rev []*syntax.Subtree
		for i := below; i != base; {
			l := p.stack.nodes[i].links[0]
			rev = append(rev, l.tree)
			i = l.prev
		}
		popped := make([]*syntax.Subtree, len(rev))
		for i, t := range rev {
			popped[len(rev)-1-i] = t
		}

		b := p.stack.nodes[base]
		errNode := p.builder.Extra(p.builder.Error(popped, b.state, end-b.pos.Bytes, false))
		m := p.stack.push(base, errNode, b.state, p.stack.nodes[below].ext)
		m = p.pushExtras(m, extras)
		p.log.Debugf("unwound %d subtrees into an error at byte %d", len(popped), b.pos.Bytes)
		return p.process(m, tok, end)
	}
	return false
}

// skip moves tok into an ERROR node on top of the stack, extending the
// one left by the previous skip across the extras between them.
func (p *Parser) skip(h int, tok token) {
	n := p.stack.nodes[h]
	leaf := p.leaf(tok, n.state, n.ext, false, false)
	prev := h
	children := []*syntax.Subtree{leaf}
	below, extras := p.stack.trailing(h)
	if links := p.stack.nodes[below].links; len(links) > 0 {
		if top := links[0]; top.tree.IsError() && top.tree.IsExtra() {
			prev = top.prev
			children = children[:0]
			if top.tree.ChildCount() == 0 {
				children = append(children, top.tree)
			}
			for i := range top.tree.ChildCount() {
				children = append(children, top.tree.Child(i))
			}
			children = append(children, extras...)
			children = append(children, leaf)
		}
	}

	b := p.stack.nodes[prev]
	examined := n.pos.Bytes + tok.size.Bytes + tok.la - b.pos.Bytes
	errNode := p.builder.Extra(p.builder.Error(children, b.state, examined, false))
	p.heads = append(p.heads, p.stack.push(prev, errNode, b.state, tok.extAfter))
	if tok.size.Bytes == 0 {
		p.noExternalAt = n.pos.Bytes
	}
	p.log.Debugf("skipped %s at byte %d", p.lang.Symbol(tok.sym), n.pos.Bytes)
}

// finishError ends the parse with an ERROR root holding the whole stack.
func (p *Parser) finishError(h int) {
	trees := p.stack.below(h)
	n := p.stack.nodes[h]
	p.finished = append(p.finished, p.builder.Error(trees, 0, n.pos.Bytes, false))
	p.log.Debugf("no parse for %d bytes; returning an error tree", n.pos.Bytes)
}

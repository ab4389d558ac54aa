package grammar

import (
	"fmt"
	"math/bits"
	"slices"
	"strings"
)

// item is an LR(0) item: a production with a dot position.
type item struct {
	prod int
	dot  int
}

type lrState struct {
	kernel []item
	la     []bitset
	kidx   map[item]int
	trans  map[Symbol]int
}

type bitset []uint64

func newBitset(n int) bitset { return make(bitset, (n+63)/64) }

func (b bitset) set(i int)      { b[i/64] |= 1 << (uint(i) % 64) }
func (b bitset) has(i int) bool { return b[i/64]&(1<<(uint(i)%64)) != 0 }

func (b bitset) union(o bitset) bool {
	changed := false
	for i := range b {
		n := b[i] | o[i]
		if n != b[i] {
			b[i] = n
			changed = true
		}
	}
	return changed
}

func (b bitset) clone() bitset { return slices.Clone(b) }

// each calls f for every member in ascending order.
func (b bitset) each(f func(int)) {
	for i, w := range b {
		for w != 0 {
			j := bits.TrailingZeros64(w)
			f(i*64 + j)
			w &= w - 1
		}
	}
}

func (c *compiler) isTerminal(s Symbol) bool { return int(s) < c.tokenCount }

func (c *compiler) computeFirst() {
	n := len(c.symbols)
	c.nullable = make([]bool, n)
	c.first = make([]bitset, n)
	for i := range c.first {
		c.first[i] = newBitset(c.tokenCount)
		if i < c.tokenCount {
			c.first[i].set(i)
		}
	}
	for changed := true; changed; {
		changed = false
		for _, p := range c.prods {
			allNullable := true
			for _, s := range p.RHS {
				if c.first[p.LHS].union(c.first[s]) {
					changed = true
				}
				if !c.nullable[s] {
					allNullable = false
					break
				}
			}
			if allNullable && !c.nullable[p.LHS] {
				c.nullable[p.LHS] = true
				changed = true
			}
		}
	}
}

// firstOf returns FIRST(seq) plus follow when seq is nullable.
func (c *compiler) firstOf(seq []Symbol, follow bitset) bitset {
	out := newBitset(c.tokenCount)
	for _, s := range seq {
		out.union(c.first[s])
		if !c.nullable[s] {
			return out
		}
	}
	out.union(follow)
	return out
}

func (c *compiler) closure0(kernel []item) []item {
	items := slices.Clone(kernel)
	added := make(map[Symbol]bool)
	for i := 0; i < len(items); i++ {
		p := c.prods[items[i].prod]
		if items[i].dot >= len(p.RHS) {
			continue
		}
		b := p.RHS[items[i].dot]
		if c.isTerminal(b) || added[b] {
			continue
		}
		added[b] = true
		for _, q := range c.byLHS[b] {
			items = append(items, item{q, 0})
		}
	}
	return items
}

func kernelKey(kernel []item) string {
	var sb strings.Builder
	for _, it := range kernel {
		fmt.Fprintf(&sb, "%d.%d;", it.prod, it.dot)
	}
	return sb.String()
}

func (c *compiler) buildStates() {
	index := make(map[string]int)
	add := func(kernel []item) int {
		slices.SortFunc(kernel, func(a, b item) int {
			if a.prod != b.prod {
				return a.prod - b.prod
			}
			return a.dot - b.dot
		})
		key := kernelKey(kernel)
		if i, ok := index[key]; ok {
			return i
		}
		st := &lrState{kernel: kernel, kidx: make(map[item]int), trans: make(map[Symbol]int)}
		for i, it := range kernel {
			st.kidx[it] = i
			st.la = append(st.la, newBitset(c.tokenCount))
		}
		c.states = append(c.states, st)
		index[key] = len(c.states) - 1
		return len(c.states) - 1
	}
	add([]item{{0, 0}})

	for i := 0; i < len(c.states); i++ {
		next := make(map[Symbol][]item)
		for _, it := range c.closure0(c.states[i].kernel) {
			p := c.prods[it.prod]
			if it.dot < len(p.RHS) {
				x := p.RHS[it.dot]
				next[x] = append(next[x], item{it.prod, it.dot + 1})
			}
		}
		syms := make([]Symbol, 0, len(next))
		for x := range next {
			syms = append(syms, x)
		}
		slices.Sort(syms)
		for _, x := range syms {
			c.states[i].trans[x] = add(next[x])
		}
	}
}

// closure1 computes the LR(1) closure of a state's kernel with the
// current lookahead sets.
func (c *compiler) closure1(st *lrState) ([]item, []bitset) {
	items := slices.Clone(st.kernel)
	las := make([]bitset, len(items))
	pos := make(map[item]int, len(items))
	queue := make([]int, 0, len(items))
	for i, it := range items {
		las[i] = st.la[i].clone()
		pos[it] = i
		queue = append(queue, i)
	}
	for len(queue) > 0 {
		i := queue[0]
		queue = queue[1:]
		p := c.prods[items[i].prod]
		dot := items[i].dot
		if dot >= len(p.RHS) || c.isTerminal(p.RHS[dot]) {
			continue
		}
		look := c.firstOf(p.RHS[dot+1:], las[i])
		for _, q := range c.byLHS[p.RHS[dot]] {
			ni := item{q, 0}
			if j, ok := pos[ni]; ok {
				if las[j].union(look) {
					queue = append(queue, j)
				}
				continue
			}
			pos[ni] = len(items)
			items = append(items, ni)
			las = append(las, look.clone())
			queue = append(queue, len(items)-1)
		}
	}
	return items, las
}

// propagate runs lookahead propagation to a fixpoint, giving LALR(1)
// lookaheads on the LR(0) automaton.
func (c *compiler) propagate() {
	c.states[0].la[0].set(int(SymbolEnd))
	for changed := true; changed; {
		changed = false
		for _, st := range c.states {
			items, las := c.closure1(st)
			for j, it := range items {
				p := c.prods[it.prod]
				if it.dot >= len(p.RHS) {
					continue
				}
				target := c.states[st.trans[p.RHS[it.dot]]]
				k := target.kidx[item{it.prod, it.dot + 1}]
				if target.la[k].union(las[j]) {
					changed = true
				}
			}
		}
	}
}

type cell struct {
	shift     StateID
	hasShift  bool
	shiftPrec int
	accept    bool
	reduces   []int
}

func (c *compiler) buildTables() {
	c.computeFirst()
	c.buildStates()
	c.propagate()

	nonterminals := len(c.symbols) - c.tokenCount
	c.actionIndex = make([]uint32, len(c.states)*c.tokenCount)
	c.gotos = make([]StateID, len(c.states)*nonterminals)
	for i := range c.gotos {
		c.gotos[i] = NoState
	}
	c.actionLists = [][]Action{nil}
	listIndex := map[string]uint32{"": 0}
	c.stateModes = make([]uint32, len(c.states))
	modeIndex := make(map[string]uint32)

	for s, st := range c.states {
		items, las := c.closure1(st)
		cells := make(map[Symbol]*cell)
		get := func(sym Symbol) *cell {
			if cl, ok := cells[sym]; ok {
				return cl
			}
			cl := &cell{}
			cells[sym] = cl
			return cl
		}
		for j, it := range items {
			p := c.prods[it.prod]
			if it.dot < len(p.RHS) {
				x := p.RHS[it.dot]
				target := StateID(st.trans[x])
				if !c.isTerminal(x) {
					c.gotos[s*nonterminals+int(x)-c.tokenCount] = target
					continue
				}
				cl := get(x)
				cl.shift, cl.hasShift = target, true
				cl.shiftPrec = max(cl.shiftPrec, p.Precedence)
				continue
			}
			if it.prod == 0 {
				get(SymbolEnd).accept = true
				continue
			}
			las[j].each(func(t int) {
				cl := get(Symbol(t))
				if !slices.Contains(cl.reduces, it.prod) {
					cl.reduces = append(cl.reduces, it.prod)
				}
			})
		}

		syms := make([]Symbol, 0, len(cells))
		for sym := range cells {
			syms = append(syms, sym)
		}
		slices.Sort(syms)
		for _, sym := range syms {
			actions := c.resolve(cells[sym])
			if len(actions) > 1 {
				c.conflicts = append(c.conflicts, Conflict{State: StateID(s), Symbol: sym, Actions: actions})
			}
			key := actionKey(actions)
			idx, ok := listIndex[key]
			if !ok {
				idx = uint32(len(c.actionLists))
				c.actionLists = append(c.actionLists, actions)
				listIndex[key] = idx
			}
			c.actionIndex[s*c.tokenCount+int(sym)] = idx
		}

		mode := c.lexMode(s)
		key := modeKey(mode)
		idx, ok := modeIndex[key]
		if !ok {
			idx = uint32(len(c.lexModes))
			c.lexModes = append(c.lexModes, mode)
			modeIndex[key] = idx
		}
		c.stateModes[s] = idx
	}
	slices.SortFunc(c.conflicts, func(a, b Conflict) int {
		if a.State != b.State {
			return int(a.State) - int(b.State)
		}
		return int(a.Symbol) - int(b.Symbol)
	})
}

// resolve orders the candidate actions of a cell. Static precedence
// decides first, then associativity. Whatever remains is kept as a
// conflict: shift before reduces, reduces by production order.
func (c *compiler) resolve(cl *cell) []Action {
	reduces := slices.Clone(cl.reduces)
	slices.Sort(reduces)
	if len(reduces) > 1 {
		best := c.prods[reduces[0]].Precedence
		for _, r := range reduces[1:] {
			best = max(best, c.prods[r].Precedence)
		}
		reduces = slices.DeleteFunc(reduces, func(r int) bool {
			return c.prods[r].Precedence < best
		})
	}

	shift := cl.hasShift
	var kept []int
	for _, r := range reduces {
		if !cl.hasShift {
			kept = append(kept, r)
			continue
		}
		p := c.prods[r]
		switch {
		case p.Precedence > cl.shiftPrec:
			shift = false
			kept = append(kept, r)
		case p.Precedence < cl.shiftPrec:
		case p.Assoc == AssocLeft:
			shift = false
			kept = append(kept, r)
		case p.Assoc == AssocRight:
		default:
			kept = append(kept, r)
		}
	}

	var actions []Action
	if cl.accept {
		actions = append(actions, Action{Type: ActionAccept})
	}
	if shift {
		actions = append(actions, Action{Type: ActionShift, State: cl.shift})
	}
	for _, r := range kept {
		actions = append(actions, Action{Type: ActionReduce, Production: uint32(r)})
	}
	return actions
}

func actionKey(actions []Action) string {
	var sb strings.Builder
	for _, a := range actions {
		fmt.Fprintf(&sb, "%d:%d:%d;", a.Type, a.State, a.Production)
	}
	return sb.String()
}

func (c *compiler) lexMode(s int) LexMode {
	mode := LexMode{
		tokens:    make([]bool, len(c.tokens)),
		externals: make([]bool, len(c.externals)),
	}
	for i := range c.tokens {
		sym := i + firstToken
		mode.tokens[i] = c.actionIndex[s*c.tokenCount+sym] != 0 || c.symbols[sym].Extra
	}
	for i, sym := range c.externals {
		ok := c.actionIndex[s*c.tokenCount+int(sym)] != 0 || c.symbols[sym].Extra
		mode.externals[i] = ok
		mode.external = mode.external || ok
	}
	return mode
}

func modeKey(m LexMode) string {
	var sb strings.Builder
	for _, v := range m.tokens {
		sb.WriteByte('0' + boolByte(v))
	}
	sb.WriteByte('|')
	for _, v := range m.externals {
		sb.WriteByte('0' + boolByte(v))
	}
	return sb.String()
}

func boolByte(v bool) byte {
	if v {
		return 1
	}
	return 0
}

package parser

import (
	"github.com/dhamidi/arbor/grammar"
	"github.com/dhamidi/arbor/lexer"
	"github.com/dhamidi/arbor/syntax"
)

// token is a lexed terminal that has not been turned into a leaf yet,
// since the leaf records which version shifted it.
type token struct {
	sym      grammar.Symbol
	size     syntax.Length
	la       int
	extAfter string
	missing  bool
}

type lexKey struct {
	mode  *grammar.LexMode
	ext   string
	noExt bool
}

// lex returns the token at pos for a version in state. Versions at the
// same position in states with the same lex mode share the result.
func (p *Parser) lex(state grammar.StateID, pos syntax.Length, ext string) token {
	mode := p.lang.LexMode(state)
	if p.lexPos != pos.Bytes {
		clear(p.lexCache)
		p.lexPos = pos.Bytes
	}
	key := lexKey{mode: mode, ext: ext, noExt: p.noExternalAt == pos.Bytes}
	if tok, ok := p.lexCache[key]; ok {
		return tok
	}
	tok := p.scan(mode, pos, ext, key.noExt)
	p.lexCache[key] = tok
	return tok
}

func (p *Parser) scan(mode *grammar.LexMode, pos syntax.Length, ext string, noExt bool) token {
	src, at := p.src, pos.Bytes
	examined := at

	if p.external != nil && mode.HasExternal() && !noExt {
		p.external.Deserialize([]byte(ext))
		p.extLexer.Reset(src, at)
		if p.external.Scan(p.extLexer, mode.Externals()) {
			i, n := p.extLexer.Result()
			if i >= 0 && i < len(p.lang.Externals()) && at+n <= len(src) {
				return token{
					sym:      p.lang.Externals()[i],
					size:     syntax.LengthOf(src[at : at+n]),
					la:       max(0, p.extLexer.Examined()-n),
					extAfter: string(p.external.Serialize()),
				}
			}
		}
		examined = max(examined, at+p.extLexer.Examined())
	}

	if at >= len(src) {
		return token{sym: grammar.SymbolEnd, la: max(0, examined-at), extAfter: ext}
	}

	scanner := p.lang.Scanner()
	m := scanner.Scan(src, at, mode.Valid)
	examined = max(examined, at+m.Length+m.Lookahead)
	if !m.OK() {
		// Nothing valid here. Lex without context so recovery sees the
		// token that is actually present.
		m = scanner.Scan(src, at, nil)
		examined = max(examined, at+m.Length+m.Lookahead)
	}
	if !m.OK() {
		return token{
			sym:      grammar.SymbolError,
			size:     syntax.LengthOf(src[at : at+1]),
			la:       max(0, examined-at-1),
			extAfter: ext,
		}
	}
	return token{
		sym:      p.lang.ScannerSymbol(m.Token),
		size:     syntax.LengthOf(src[at : at+m.Length]),
		la:       max(0, examined-at-m.Length),
		extAfter: ext,
	}
}

// leaf builds the subtree for tok, shifted by a version that lexed it in
// state with external scanner state ext.
func (p *Parser) leaf(tok token, state grammar.StateID, ext string, extra, fragile bool) *syntax.Subtree {
	if tok.missing {
		return p.builder.Missing(tok.sym, state, ext)
	}
	return p.builder.Leaf(syntax.Leaf{
		Symbol:    tok.sym,
		Size:      tok.size,
		Lookahead: tok.la,
		State:     state,
		ExtBefore: ext,
		ExtAfter:  tok.extAfter,
		Extra:     extra,
		Fragile:   fragile,
	})
}

func newExtLexer() *lexer.ExternalLexer { return lexer.NewExternalLexer(nil, 0) }

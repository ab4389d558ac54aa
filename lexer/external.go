package lexer

import "unicode/utf8"

// ExternalScanner recognizes context-sensitive tokens the pattern scanner
// cannot express. An instance belongs to a single parse.
//
// Scan inspects the input through l and reports whether it produced a
// token; valid[i] tells whether the i-th external token is acceptable at
// this point. Serialize and Deserialize save and restore all state that
// influences Scan, so a parse can resume scanning from any saved point.
type ExternalScanner interface {
	Scan(l *ExternalLexer, valid []bool) bool
	Serialize() []byte
	Deserialize(state []byte)
}

// ExternalLexer is the view of the input handed to an ExternalScanner.
type ExternalLexer struct {
	src      []byte
	start    int
	pos      int
	end      int
	marked   bool
	examined int
	result   int
}

// NewExternalLexer returns a lexer positioned at offset.
func NewExternalLexer(src []byte, offset int) *ExternalLexer {
	l := &ExternalLexer{}
	l.Reset(src, offset)
	return l
}

// Reset repositions the lexer and clears any result.
func (l *ExternalLexer) Reset(src []byte, offset int) {
	*l = ExternalLexer{src: src, start: offset, pos: offset, end: offset, examined: offset, result: -1}
}

// Lookahead returns the rune at the current position, or 0 at the end of
// input.
func (l *ExternalLexer) Lookahead() rune {
	if l.pos >= len(l.src) {
		l.see(l.pos + 1)
		return 0
	}
	r, w := utf8.DecodeRune(l.src[l.pos:])
	l.see(l.pos + w)
	return r
}

// Advance moves past the current rune.
func (l *ExternalLexer) Advance() {
	if l.pos >= len(l.src) {
		return
	}
	_, w := utf8.DecodeRune(l.src[l.pos:])
	l.pos += w
	l.see(l.pos)
}

// MarkEnd sets the end of the token to the current position. Without a
// call to MarkEnd the token ends where scanning stopped.
func (l *ExternalLexer) MarkEnd() {
	l.end = l.pos
	l.marked = true
}

// EOF reports whether the current position is at the end of input.
func (l *ExternalLexer) EOF() bool { return l.pos >= len(l.src) }

// Column returns the byte column of the current position.
func (l *ExternalLexer) Column() int {
	i := l.pos
	for i > 0 && l.src[i-1] != '\n' {
		i--
	}
	return l.pos - i
}

// AtLineStart reports whether only blanks precede the current position on
// its line.
func (l *ExternalLexer) AtLineStart() bool {
	for i := l.pos - 1; i >= 0; i-- {
		switch l.src[i] {
		case '\n':
			return true
		case ' ', '\t', '\f', '\r':
		default:
			return false
		}
	}
	return true
}

// SetResult records which external token was recognized, by its index in
// the grammar's external token list.
func (l *ExternalLexer) SetResult(token int) { l.result = token }

// Result returns the recognized token index and the byte length of the
// token. The index is -1 when no token was recorded.
func (l *ExternalLexer) Result() (token, length int) {
	end := l.pos
	if l.marked {
		end = l.end
	}
	return l.result, end - l.start
}

// Examined returns how many bytes from the token start were inspected,
// counting the end of input as one byte.
func (l *ExternalLexer) Examined() int { return l.examined - l.start }

func (l *ExternalLexer) see(pos int) {
	if pos > l.examined {
		l.examined = pos
	}
}

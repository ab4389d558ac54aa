package lexer

import "encoding/binary"

// Stack is a stack of indentation widths.
type Stack []int

// Top returns the width at the top of the stack, or 0 when empty.
func (ss *Stack) Top() int {
	sz := len(*ss)
	if sz == 0 {
		return 0
	}
	return (*ss)[sz-1]
}

// Push appends a width to the stack.
func (ss *Stack) Push(width int) {
	*ss = append(*ss, width)
}

// Pop takes a width off the stack and returns it.
func (ss *Stack) Pop() int {
	sz := len(*ss)
	if sz == 0 {
		return 0
	}
	w := (*ss)[sz-1]
	*ss = (*ss)[:sz-1]
	return w
}

// Clone returns a copy of the stack.
func (ss *Stack) Clone() Stack {
	if len(*ss) == 0 {
		return nil
	}
	cl := make(Stack, len(*ss))
	copy(cl, *ss)
	return cl
}

// Reset empties the stack.
func (ss *Stack) Reset() {
	*ss = nil
}

// Indices of the tokens produced by IndentScanner, in the order they must
// be declared as the grammar's external tokens.
const (
	IndentNewline = iota
	IndentIndent
	IndentDedent
)

// IndentScanner produces newline, indent and dedent tokens for
// layout-sensitive grammars.
//
// A newline token covers the line break plus any following blank lines
// and the leading blanks of the next line. Indent and dedent are
// zero-width and are emitted at the first non-blank of a line whose
// column differs from the current indentation level.
//
// The serialized state includes the indentation of the line following
// the last newline, so tokens at the start of a re-indented line are
// never taken from an older parse.
type IndentScanner struct {
	stack  Stack
	atEOF  bool
	column int
}

// NewIndentScanner returns a scanner at indentation level zero.
func NewIndentScanner() *IndentScanner {
	return &IndentScanner{}
}

func (s *IndentScanner) Scan(l *ExternalLexer, valid []bool) bool {
	if l.EOF() {
		if valid[IndentDedent] && len(s.stack) > 0 {
			s.stack.Pop()
			l.SetResult(IndentDedent)
			return true
		}
		if valid[IndentNewline] && !s.atEOF {
			s.atEOF = true
			l.SetResult(IndentNewline)
			return true
		}
		return false
	}

	if l.AtLineStart() && !isLineBreak(l.Lookahead()) {
		col := l.Column()
		if valid[IndentIndent] && col > s.stack.Top() {
			s.stack.Push(col)
			l.SetResult(IndentIndent)
			return true
		}
		if valid[IndentDedent] && col < s.stack.Top() {
			s.stack.Pop()
			l.SetResult(IndentDedent)
			return true
		}
	}

	if !valid[IndentNewline] || !isLineBreak(l.Lookahead()) {
		return false
	}
	for isLineBreak(l.Lookahead()) {
		l.Advance()
		for IsBlank(l.Lookahead()) {
			l.Advance()
		}
	}
	l.MarkEnd()
	s.column = l.Column()
	l.SetResult(IndentNewline)
	return true
}

func (s *IndentScanner) Serialize() []byte {
	buf := make([]byte, 1, 3+2*len(s.stack))
	if s.atEOF {
		buf[0] = 1
	}
	buf = binary.LittleEndian.AppendUint16(buf, uint16(s.column))
	for _, w := range s.stack {
		buf = binary.LittleEndian.AppendUint16(buf, uint16(w))
	}
	return buf
}

func (s *IndentScanner) Deserialize(state []byte) {
	s.stack.Reset()
	s.atEOF = false
	s.column = 0
	if len(state) < 3 {
		return
	}
	s.atEOF = state[0] == 1
	s.column = int(binary.LittleEndian.Uint16(state[1:]))
	for i := 3; i+1 < len(state); i += 2 {
		s.stack.Push(int(binary.LittleEndian.Uint16(state[i:])))
	}
}

func isLineBreak(r rune) bool { return r == '\n' || r == '\r' }

// IsBlank reports whether r is a horizontal blank.
func IsBlank(r rune) bool { return r == ' ' || r == '\t' || r == '\f' }

package lexer

import (
	"reflect"
	"testing"
)

type scanned struct {
	token  int
	offset int
	length int
}

// drive runs the indent scanner over src, skipping one byte whenever no
// external token applies, which stands in for the pattern lexer.
func drive(s ExternalScanner, src string) []scanned {
	valid := []bool{true, true, true}
	var out []scanned
	l := &ExternalLexer{}
	for pos := 0; pos <= len(src); {
		l.Reset([]byte(src), pos)
		if s.Scan(l, valid) {
			tok, n := l.Result()
			out = append(out, scanned{tok, pos, n})
			pos += n
			continue
		}
		if pos == len(src) {
			break
		}
		pos++
	}
	return out
}

func TestIndentScanner(t *testing.T) {
	src := "a:\n  b\n\n  c\nd"
	got := drive(NewIndentScanner(), src)
	want := []scanned{
		{IndentNewline, 2, 3},
		{IndentIndent, 5, 0},
		{IndentNewline, 6, 4},
		{IndentNewline, 11, 1},
		{IndentDedent, 12, 0},
		{IndentNewline, 13, 0},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("tokens = %v\nwant     %v", got, want)
	}
}

func TestIndentScannerSerialize(t *testing.T) {
	s := NewIndentScanner()
	s.stack.Push(2)
	s.stack.Push(6)
	s.atEOF = true
	s.column = 6

	restored := NewIndentScanner()
	restored.Deserialize(s.Serialize())
	if !reflect.DeepEqual(restored.stack, s.stack) || restored.atEOF != s.atEOF || restored.column != 6 {
		t.Errorf("restored = %+v, want %+v", restored, s)
	}

	restored.Deserialize(nil)
	if len(restored.stack) != 0 || restored.atEOF || restored.column != 0 {
		t.Errorf("Deserialize(nil) left state %+v", restored)
	}
}

func TestStack(t *testing.T) {
	var ss Stack
	if ss.Top() != 0 || ss.Pop() != 0 {
		t.Fatal("empty stack should report zero")
	}
	ss.Push(4)
	ss.Push(8)
	cl := ss.Clone()
	if got := ss.Pop(); got != 8 {
		t.Errorf("Pop() = %d, want 8", got)
	}
	if cl.Top() != 8 {
		t.Errorf("clone Top() = %d, want 8", cl.Top())
	}
}

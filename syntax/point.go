// Package syntax holds concrete syntax trees.
//
// Trees are made of immutable Subtrees that store only relative sizes, so
// identical subtrees are shared between positions and between versions of
// a tree. Node is a positioned view computed while walking down from the
// root. Edits produce a new tree by copying the path to each changed
// subtree; the old tree stays valid.
package syntax

import (
	"bytes"
	"fmt"
)

// Point is a zero-based row and byte column.
type Point struct {
	Row    int
	Column int
}

func (p Point) String() string {
	return fmt.Sprintf("%d:%d", p.Row, p.Column)
}

// Compare returns -1, 0 or 1 as p is before, at or after o.
func (p Point) Compare(o Point) int {
	switch {
	case p.Row < o.Row:
		return -1
	case p.Row > o.Row:
		return 1
	case p.Column < o.Column:
		return -1
	case p.Column > o.Column:
		return 1
	}
	return 0
}

// Length is the size of a span of text: a byte count and the point
// reached when starting at 0:0.
type Length struct {
	Bytes  int
	Extent Point
}

// Add returns the length of a followed by b. A row change in b resets
// the column.
func (a Length) Add(b Length) Length {
	if b.Extent.Row > 0 {
		return Length{
			Bytes:  a.Bytes + b.Bytes,
			Extent: Point{Row: a.Extent.Row + b.Extent.Row, Column: b.Extent.Column},
		}
	}
	return Length{
		Bytes:  a.Bytes + b.Bytes,
		Extent: Point{Row: a.Extent.Row, Column: a.Extent.Column + b.Extent.Column},
	}
}

// Sub returns the length of a once its prefix b is removed. b must not
// be longer than a.
func (a Length) Sub(b Length) Length {
	if a.Extent.Row > b.Extent.Row {
		return Length{
			Bytes:  a.Bytes - b.Bytes,
			Extent: Point{Row: a.Extent.Row - b.Extent.Row, Column: a.Extent.Column},
		}
	}
	return Length{
		Bytes:  a.Bytes - b.Bytes,
		Extent: Point{Column: a.Extent.Column - b.Extent.Column},
	}
}

func satSub(a, b Length) Length {
	if b.Bytes >= a.Bytes {
		return Length{}
	}
	return a.Sub(b)
}

// LengthOf measures text.
func LengthOf(text []byte) Length {
	l := Length{Bytes: len(text)}
	if i := bytes.LastIndexByte(text, '\n'); i >= 0 {
		l.Extent.Row = bytes.Count(text, []byte{'\n'})
		l.Extent.Column = len(text) - i - 1
	} else {
		l.Extent.Column = len(text)
	}
	return l
}

// Range is a span of source with both byte and point coordinates.
type Range struct {
	StartByte  int
	EndByte    int
	StartPoint Point
	EndPoint   Point
}

func (r Range) String() string {
	return fmt.Sprintf("[%s-%s]", r.StartPoint, r.EndPoint)
}

// Edit describes a replacement of [StartByte, OldEndByte) by text ending
// at NewEndByte.
type Edit struct {
	StartByte   int
	OldEndByte  int
	NewEndByte  int
	StartPoint  Point
	OldEndPoint Point
	NewEndPoint Point
}

func (e Edit) start() Length  { return Length{e.StartByte, e.StartPoint} }
func (e Edit) oldEnd() Length { return Length{e.OldEndByte, e.OldEndPoint} }
func (e Edit) newEnd() Length { return Length{e.NewEndByte, e.NewEndPoint} }

// EditFromText builds the edit that replaces old[start:oldEnd] with
// replacement.
func EditFromText(old []byte, start, oldEnd int, replacement []byte) Edit {
	startLen := LengthOf(old[:start])
	oldEndLen := LengthOf(old[:oldEnd])
	newEndLen := startLen.Add(LengthOf(replacement))
	return Edit{
		StartByte:   start,
		OldEndByte:  oldEnd,
		NewEndByte:  newEndLen.Bytes,
		StartPoint:  startLen.Extent,
		OldEndPoint: oldEndLen.Extent,
		NewEndPoint: newEndLen.Extent,
	}
}

// Diff returns the single edit that turns before into after, found by
// trimming the common prefix and suffix. ok is false when the texts are
// equal.
func Diff(before, after []byte) (e Edit, ok bool) {
	if bytes.Equal(before, after) {
		return Edit{}, false
	}
	prefix := 0
	for prefix < len(before) && prefix < len(after) && before[prefix] == after[prefix] {
		prefix++
	}
	suffix := 0
	for suffix < len(before)-prefix && suffix < len(after)-prefix &&
		before[len(before)-1-suffix] == after[len(after)-1-suffix] {
		suffix++
	}
	return EditFromText(before, prefix, len(before)-suffix, after[prefix:len(after)-suffix]), true
}

// Apply returns the text produced by replacing src[start:oldEnd] with
// replacement.
func Apply(src []byte, start, oldEnd int, replacement []byte) []byte {
	out := make([]byte, 0, len(src)-(oldEnd-start)+len(replacement))
	out = append(out, src[:start]...)
	out = append(out, replacement...)
	return append(out, src[oldEnd:]...)
}

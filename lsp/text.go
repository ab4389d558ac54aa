package lsp

import (
	"unicode/utf8"

	protocol "github.com/tliron/glsp/protocol_3_16"
)

// lineOffsets returns the byte offset at which each line starts.
func lineOffsets(text []byte) []int {
	offs := []int{0}
	for i, c := range text {
		if c == '\n' {
			offs = append(offs, i+1)
		}
	}
	return offs
}

func utf16Len(r rune) int {
	if r < 0x10000 {
		return 1
	}
	return 2
}

// offsetAt converts a UTF-16 based position to a byte offset, clamping to
// the end of the line or text.
func offsetAt(lines []int, text []byte, p protocol.Position) int {
	line := int(p.Line)
	if line >= len(lines) {
		return len(text)
	}
	i := lines[line]
	need := int(p.Character)
	for i < len(text) && need > 0 {
		r, size := utf8.DecodeRune(text[i:])
		if r == '\n' || r == '\r' && i+1 < len(text) && text[i+1] == '\n' {
			break
		}
		need -= utf16Len(r)
		i += size
	}
	return i
}

// positionAt converts a byte offset to a UTF-16 based position.
func positionAt(lines []int, text []byte, off int) protocol.Position {
	off = max(0, min(off, len(text)))
	lo, hi := 0, len(lines)
	for lo+1 < hi {
		mid := (lo + hi) / 2
		if lines[mid] <= off {
			lo = mid
		} else {
			hi = mid
		}
	}
	col := 0
	for k := lines[lo]; k < off; {
		r, size := utf8.DecodeRune(text[k:])
		col += utf16Len(r)
		k += size
	}
	return protocol.Position{Line: protocol.UInteger(lo), Character: protocol.UInteger(col)}
}

func rangeAt(lines []int, text []byte, start, end int) protocol.Range {
	return protocol.Range{Start: positionAt(lines, text, start), End: positionAt(lines, text, end)}
}

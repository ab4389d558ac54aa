package grammar

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/dhamidi/arbor/lexer"
	"github.com/klauspost/compress/zstd"
)

// HeaderSize is the size of the fixed binary table header.
const HeaderSize = 16

// MaxBodySize bounds the stored and the decompressed size of a table
// body. Decode rejects larger bodies as corrupt.
const MaxBodySize = 64 << 20

var magic = [4]byte{'A', 'R', 'B', 'R'}

// Compression identifies how a table body is stored.
type Compression uint16

const (
	CompressionNone Compression = 0
	CompressionZstd Compression = 1
)

// Header is the fixed-width prefix of a binary table file.
type Header struct {
	Version     uint16
	SymbolCount uint16
	FieldCount  uint16
	Compression Compression
	BodyLength  uint32
}

func (h Header) String() string {
	comp := "none"
	if h.Compression == CompressionZstd {
		comp = "zstd"
	}
	return fmt.Sprintf("version=%d symbols=%d fields=%d compression=%s body=%d",
		h.Version, h.SymbolCount, h.FieldCount, comp, h.BodyLength)
}

// EncodeOption configures Encode.
type EncodeOption func(*encodeConfig)

type encodeConfig struct {
	compression Compression
}

// WithoutCompression stores the body uncompressed.
func WithoutCompression() EncodeOption {
	return func(c *encodeConfig) {
		c.compression = CompressionNone
	}
}

// Encode writes l in the binary table format.
func Encode(w io.Writer, l *Language, opts ...EncodeOption) error {
	cfg := encodeConfig{compression: CompressionZstd}
	for _, opt := range opts {
		opt(&cfg)
	}
	if len(l.symbols) > 0xFFFF || len(l.fields) > 0x10000 {
		return fmt.Errorf("encode tables: language too large")
	}

	var e encoder
	e.language(l)
	body := e.buf
	if cfg.compression == CompressionZstd {
		enc, err := zstd.NewWriter(nil)
		if err != nil {
			return fmt.Errorf("encode tables: %w", err)
		}
		body = enc.EncodeAll(body, nil)
		if err := enc.Close(); err != nil {
			return fmt.Errorf("encode tables: %w", err)
		}
	}

	var hdr [HeaderSize]byte
	copy(hdr[:4], magic[:])
	binary.LittleEndian.PutUint16(hdr[4:], l.version)
	binary.LittleEndian.PutUint16(hdr[6:], uint16(len(l.symbols)))
	binary.LittleEndian.PutUint16(hdr[8:], uint16(len(l.fields)-1))
	binary.LittleEndian.PutUint16(hdr[10:], uint16(cfg.compression))
	binary.LittleEndian.PutUint32(hdr[12:], uint32(len(body)))
	if _, err := w.Write(hdr[:]); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	if _, err := w.Write(body); err != nil {
		return fmt.Errorf("write tables: %w", err)
	}
	return nil
}

// ReadHeader reads and checks the fixed header.
func ReadHeader(r io.Reader) (Header, error) {
	var hdr [HeaderSize]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return Header{}, fmt.Errorf("read header: %w", err)
	}
	if !bytes.Equal(hdr[:4], magic[:]) {
		return Header{}, corrupt("bad magic %q", hdr[:4])
	}
	return Header{
		Version:     binary.LittleEndian.Uint16(hdr[4:]),
		SymbolCount: binary.LittleEndian.Uint16(hdr[6:]),
		FieldCount:  binary.LittleEndian.Uint16(hdr[8:]),
		Compression: Compression(binary.LittleEndian.Uint16(hdr[10:])),
		BodyLength:  binary.LittleEndian.Uint32(hdr[12:]),
	}, nil
}

// Decode reads a language written by Encode. Tables newer than this
// build fail with a *VersionMismatchError; older stamps are decoded and
// left for Parser.SetLanguage to judge.
func Decode(r io.Reader) (*Language, error) {
	h, err := ReadHeader(r)
	if err != nil {
		return nil, err
	}
	if h.Version == 0 || h.Version > FormatVersion {
		return nil, &VersionMismatchError{Got: h.Version, Min: MinCompatibleVersion, Max: FormatVersion}
	}
	if h.BodyLength > MaxBodySize {
		return nil, corrupt("body of %d bytes exceeds %d", h.BodyLength, MaxBodySize)
	}
	body, err := io.ReadAll(io.LimitReader(r, int64(h.BodyLength)))
	if err != nil {
		return nil, fmt.Errorf("read tables: %w", err)
	}
	if len(body) != int(h.BodyLength) {
		return nil, corrupt("truncated body: %d of %d bytes", len(body), h.BodyLength)
	}
	switch h.Compression {
	case CompressionNone:
	case CompressionZstd:
		dec, err := zstd.NewReader(nil, zstd.WithDecoderMaxMemory(MaxBodySize), zstd.WithDecoderConcurrency(1))
		if err != nil {
			return nil, fmt.Errorf("read tables: %w", err)
		}
		body, err = dec.DecodeAll(body, nil)
		dec.Close()
		if err != nil {
			return nil, corrupt("decompress: %v", err)
		}
	default:
		return nil, corrupt("unknown compression %d", h.Compression)
	}

	d := decoder{buf: body}
	l := d.language(h)
	if d.err != nil {
		return nil, d.err
	}
	l.version = h.Version
	l.finish()
	return l, nil
}

type encoder struct {
	buf []byte
}

func (e *encoder) uint(v uint64) { e.buf = binary.AppendUvarint(e.buf, v) }
func (e *encoder) int(v int64)   { e.buf = binary.AppendVarint(e.buf, v) }
func (e *encoder) byte(b byte)   { e.buf = append(e.buf, b) }

func (e *encoder) str(s string) {
	e.uint(uint64(len(s)))
	e.buf = append(e.buf, s...)
}

func (e *encoder) bools(v []bool) {
	e.uint(uint64(len(v)))
	packed := make([]byte, (len(v)+7)/8)
	for i, b := range v {
		if b {
			packed[i/8] |= 1 << (i % 8)
		}
	}
	e.buf = append(e.buf, packed...)
}

const (
	flagNamed = 1 << iota
	flagVisible
	flagTerminal
	flagExternal
	flagExtra
)

func (e *encoder) language(l *Language) {
	e.str(l.name)
	e.uint(uint64(l.start))
	e.uint(uint64(l.tokenCount))

	for _, s := range l.symbols {
		e.str(s.Name)
		var f byte
		for bit, on := range map[byte]bool{
			flagNamed: s.Named, flagVisible: s.Visible, flagTerminal: s.Terminal,
			flagExternal: s.External, flagExtra: s.Extra,
		} {
			if on {
				f |= bit
			}
		}
		e.byte(f)
	}
	for _, f := range l.fields[1:] {
		e.str(f)
	}

	e.uint(uint64(len(l.productions)))
	for _, p := range l.productions {
		e.uint(uint64(p.LHS))
		e.uint(uint64(len(p.RHS)))
		for _, s := range p.RHS {
			e.uint(uint64(s))
		}
		e.int(int64(p.Precedence))
		e.byte(byte(p.Assoc))
		e.int(int64(p.DynamicPrecedence))
		if p.Fields == nil {
			e.byte(0)
		} else {
			e.byte(1)
			for _, f := range p.Fields {
				e.uint(uint64(f))
			}
		}
	}

	e.uint(uint64(len(l.tokens)))
	for _, t := range l.tokens {
		e.str(t.Name)
		e.pattern(t.Pattern)
	}
	e.uint(uint64(len(l.externals)))
	for _, s := range l.externals {
		e.uint(uint64(s))
	}

	e.uint(uint64(l.stateCount))
	e.uint(uint64(len(l.actionLists)))
	for _, list := range l.actionLists {
		e.uint(uint64(len(list)))
		for _, a := range list {
			e.byte(byte(a.Type))
			e.uint(uint64(a.State))
			e.uint(uint64(a.Production))
		}
	}
	for _, idx := range l.actionIndex {
		e.uint(uint64(idx))
	}
	for _, g := range l.gotos {
		e.uint(uint64(g + 1))
	}
	e.uint(uint64(len(l.lexModes)))
	for _, m := range l.lexModes {
		e.bools(m.tokens)
		e.bools(m.externals)
	}
	for _, m := range l.stateModes {
		e.uint(uint64(m))
	}
}

func (e *encoder) pattern(p *lexer.Pattern) {
	e.byte(byte(p.Op))
	e.uint(uint64(len(p.Runes)))
	for _, r := range p.Runes {
		e.int(int64(r))
	}
	e.uint(uint64(len(p.Subs)))
	for _, s := range p.Subs {
		e.pattern(s)
	}
}

type decoder struct {
	buf []byte
	err error
}

func (d *decoder) fail(format string, args ...any) {
	if d.err == nil {
		d.err = corrupt(format, args...)
	}
}

func (d *decoder) uint() uint64 {
	if d.err != nil {
		return 0
	}
	v, n := binary.Uvarint(d.buf)
	if n <= 0 {
		d.fail("truncated body")
		return 0
	}
	d.buf = d.buf[n:]
	return v
}

func (d *decoder) int() int64 {
	if d.err != nil {
		return 0
	}
	v, n := binary.Varint(d.buf)
	if n <= 0 {
		d.fail("truncated body")
		return 0
	}
	d.buf = d.buf[n:]
	return v
}

func (d *decoder) byte() byte {
	if d.err != nil {
		return 0
	}
	if len(d.buf) == 0 {
		d.fail("truncated body")
		return 0
	}
	b := d.buf[0]
	d.buf = d.buf[1:]
	return b
}

// count reads a length and checks it against the remaining input, so a
// corrupt length cannot trigger a huge allocation.
func (d *decoder) count(unit int) int {
	n := d.uint()
	if n > uint64(len(d.buf))/uint64(max(unit, 1))+1 {
		d.fail("length %d exceeds body", n)
		return 0
	}
	return int(n)
}

func (d *decoder) str() string {
	n := d.count(1)
	if d.err != nil || n > len(d.buf) {
		d.fail("truncated string")
		return ""
	}
	s := string(d.buf[:n])
	d.buf = d.buf[n:]
	return s
}

func (d *decoder) bools() []bool {
	raw := d.uint()
	if d.err != nil || (raw+7)/8 > uint64(len(d.buf)) {
		d.fail("truncated set")
		return nil
	}
	n := int(raw)
	size := (n + 7) / 8
	v := make([]bool, n)
	for i := range v {
		v[i] = d.buf[i/8]&(1<<(i%8)) != 0
	}
	d.buf = d.buf[size:]
	return v
}

func (d *decoder) language(h Header) *Language {
	l := &Language{}
	l.name = d.str()
	l.start = Symbol(d.uint())
	l.tokenCount = int(d.uint())

	l.symbols = make([]SymbolInfo, h.SymbolCount)
	for i := range l.symbols {
		name := d.str()
		f := d.byte()
		l.symbols[i] = SymbolInfo{
			Name:     name,
			Named:    f&flagNamed != 0,
			Visible:  f&flagVisible != 0,
			Terminal: f&flagTerminal != 0,
			External: f&flagExternal != 0,
			Extra:    f&flagExtra != 0,
		}
	}
	l.fields = make([]string, int(h.FieldCount)+1)
	for i := 1; i < len(l.fields); i++ {
		l.fields[i] = d.str()
	}
	if d.err != nil {
		return nil
	}
	if l.tokenCount < firstToken || l.tokenCount > len(l.symbols) || int(l.start) >= len(l.symbols) {
		d.fail("symbol counts do not match header")
		return nil
	}
	symbolOK := func(s uint64) bool { return s < uint64(len(l.symbols)) }

	l.productions = make([]Production, d.count(3))
	for i := range l.productions {
		p := &l.productions[i]
		lhs := d.uint()
		p.RHS = make([]Symbol, d.count(1))
		for j := range p.RHS {
			s := d.uint()
			if !symbolOK(s) {
				d.fail("production %d: symbol %d out of range", i, s)
			}
			p.RHS[j] = Symbol(s)
		}
		if !symbolOK(lhs) {
			d.fail("production %d: symbol %d out of range", i, lhs)
		}
		p.LHS = Symbol(lhs)
		p.Precedence = int(d.int())
		p.Assoc = Assoc(d.byte())
		p.DynamicPrecedence = int(d.int())
		if d.byte() == 1 {
			p.Fields = make([]FieldID, len(p.RHS))
			for j := range p.Fields {
				f := d.uint()
				if f >= uint64(len(l.fields)) {
					d.fail("production %d: field %d out of range", i, f)
				}
				p.Fields[j] = FieldID(f)
			}
		}
	}

	l.tokens = make([]lexer.TokenSpec, d.count(2))
	for i := range l.tokens {
		l.tokens[i].Name = d.str()
		l.tokens[i].Pattern = d.pattern(0)
	}
	l.externals = make([]Symbol, d.count(1))
	for i := range l.externals {
		s := d.uint()
		if !symbolOK(s) {
			d.fail("external %d out of range", s)
		}
		l.externals[i] = Symbol(s)
	}
	if d.err == nil && firstToken+len(l.tokens)+len(l.externals) != l.tokenCount {
		d.fail("token counts do not match")
	}
	if d.err != nil {
		return nil
	}

	l.stateCount = d.count(1)
	l.actionLists = make([][]Action, d.count(1))
	for i := range l.actionLists {
		n := d.count(3)
		if n == 0 {
			continue
		}
		list := make([]Action, n)
		for j := range list {
			list[j].Type = ActionType(d.byte())
			list[j].State = StateID(d.uint())
			list[j].Production = uint32(d.uint())
			if int(list[j].State) >= l.stateCount && list[j].Type == ActionShift {
				d.fail("shift to state %d out of range", list[j].State)
			}
			if int(list[j].Production) >= len(l.productions) && list[j].Type == ActionReduce {
				d.fail("reduce by production %d out of range", list[j].Production)
			}
		}
		l.actionLists[i] = list
	}
	if d.err != nil {
		return nil
	}

	l.actionIndex = make([]uint32, l.stateCount*l.tokenCount)
	for i := range l.actionIndex {
		idx := d.uint()
		if idx >= uint64(len(l.actionLists)) {
			d.fail("action list %d out of range", idx)
			return nil
		}
		l.actionIndex[i] = uint32(idx)
	}
	l.gotos = make([]StateID, l.stateCount*(len(l.symbols)-l.tokenCount))
	for i := range l.gotos {
		g := d.uint()
		if g > uint64(l.stateCount) {
			d.fail("goto state %d out of range", g)
			return nil
		}
		l.gotos[i] = StateID(g) - 1
	}

	l.lexModes = make([]LexMode, d.count(2))
	for i := range l.lexModes {
		m := &l.lexModes[i]
		m.tokens = d.bools()
		m.externals = d.bools()
		if d.err == nil && (len(m.tokens) != len(l.tokens) || len(m.externals) != len(l.externals)) {
			d.fail("lex mode %d has wrong size", i)
		}
		for _, v := range m.externals {
			m.external = m.external || v
		}
	}
	l.stateModes = make([]uint32, l.stateCount)
	for i := range l.stateModes {
		m := d.uint()
		if m >= uint64(len(l.lexModes)) {
			d.fail("lex mode %d out of range", m)
			return nil
		}
		l.stateModes[i] = uint32(m)
	}
	if d.err == nil && len(d.buf) != 0 {
		d.fail("%d trailing bytes", len(d.buf))
	}
	return l
}

const maxPatternDepth = 256

func (d *decoder) pattern(depth int) *lexer.Pattern {
	if depth > maxPatternDepth {
		d.fail("pattern nested too deeply")
		return lexer.Empty()
	}
	p := &lexer.Pattern{Op: lexer.Op(d.byte())}
	if p.Op > lexer.OpQuest {
		d.fail("unknown pattern op %d", p.Op)
		return lexer.Empty()
	}
	if n := d.count(1); n > 0 {
		p.Runes = make([]rune, n)
		for i := range p.Runes {
			p.Runes[i] = rune(d.int())
		}
	}
	if n := d.count(2); n > 0 {
		p.Subs = make([]*lexer.Pattern, n)
		for i := range p.Subs {
			p.Subs[i] = d.pattern(depth + 1)
		}
	}
	if d.err == nil {
		switch p.Op {
		case lexer.OpStar, lexer.OpPlus, lexer.OpQuest:
			if len(p.Subs) != 1 {
				d.fail("repetition needs one operand")
			}
		case lexer.OpClass:
			if len(p.Runes)%2 != 0 {
				d.fail("class needs rune pairs")
			}
		}
	}
	if d.err != nil {
		return lexer.Empty()
	}
	return p
}

package codec

import "fmt"

// SymbolFormat selects how a symbolic segment carries its name.
type SymbolFormat uint8

const (
	SymbolASCII      SymbolFormat = 0
	SymbolDoubleByte SymbolFormat = 1
	SymbolTripleByte SymbolFormat = 2
	SymbolNumeric    SymbolFormat = 6
)

const (
	symbolicSegmentByte = SegmentSymbolic << segmentTypeShift
	maxSymbolSize       = 0x1F

	numericSymbolUSINT = 6
	numericSymbolUINT  = 7
	numericSymbolUDINT = 8
)

// Symbolic names an object by symbol, such as a controller tag name.
//
// ASCII symbols of 1 to 31 characters are carried inline. Double and triple
// byte symbols hold Size characters of raw bytes in Chars. Numeric symbols
// carry Number in a width selected by Size.
type Symbolic struct {
	Format SymbolFormat
	Name   string
	Chars  []byte
	Number uint32
	Size   uint8
}

// NewSymbol returns an inline ASCII symbolic segment.
func NewSymbol(name string) (Symbolic, error) {
	if len(name) == 0 || len(name) > maxSymbolSize {
		return Symbolic{}, invalidf("symbol %q must be 1 to %d characters", name, maxSymbolSize)
	}
	for i := 0; i < len(name); i++ {
		if name[i] >= 0x80 {
			return Symbolic{}, invalidf("symbol %q is not ASCII", name)
		}
	}
	return Symbolic{Format: SymbolASCII, Name: name, Size: uint8(len(name))}, nil
}

// NewWideSymbol returns an extended symbolic segment of double or triple
// byte characters.
func NewWideSymbol(format SymbolFormat, chars []byte) (Symbolic, error) {
	w := format.charWidth()
	if w == 0 {
		return Symbolic{}, invalidf("symbol format %d is not a character format", format)
	}
	if len(chars) == 0 || len(chars)%w != 0 || len(chars)/w > maxSymbolSize {
		return Symbolic{}, invalidf("%d bytes is not 1 to %d characters of %d bytes", len(chars), maxSymbolSize, w)
	}
	return Symbolic{Format: format, Chars: append([]byte(nil), chars...), Size: uint8(len(chars) / w)}, nil
}

// NewNumericSymbol returns an extended numeric symbol in the narrowest
// width that holds n.
func NewNumericSymbol(n uint32) Symbolic {
	size := uint8(numericSymbolUSINT)
	switch uintWidth(n) {
	case 2:
		size = numericSymbolUINT
	case 4:
		size = numericSymbolUDINT
	}
	return Symbolic{Format: SymbolNumeric, Number: n, Size: size}
}

func (f SymbolFormat) charWidth() int {
	switch f {
	case SymbolDoubleByte:
		return 2
	case SymbolTripleByte:
		return 3
	}
	return 0
}

func numericWidth(size uint8) int {
	switch size {
	case numericSymbolUSINT:
		return 1
	case numericSymbolUINT:
		return 2
	case numericSymbolUDINT:
		return 4
	}
	return 0
}

// body returns the size of the segment without any pad byte.
func (s Symbolic) body() int {
	switch s.Format {
	case SymbolASCII:
		return 1 + len(s.Name)
	case SymbolDoubleByte, SymbolTripleByte:
		return 2 + len(s.Chars)
	case SymbolNumeric:
		w := numericWidth(s.Size)
		if w == 0 {
			assertf("numeric symbol size %d", s.Size)
		}
		return 2 + w
	}
	assertf("symbol format %d", s.Format)
	return 0
}

func (s Symbolic) EncodeSize(padded bool) int {
	n := s.body()
	if padded && n%2 != 0 {
		n++
	}
	return n
}

func (s Symbolic) EncodeTo(buf []byte, off int, padded bool) int {
	start := off
	switch s.Format {
	case SymbolASCII:
		buf[off] = symbolicSegmentByte | uint8(len(s.Name))
		off++
		off += copy(buf[off:], s.Name)
	case SymbolDoubleByte, SymbolTripleByte:
		buf[off] = symbolicSegmentByte
		buf[off+1] = uint8(s.Format)<<5 | s.Size
		off += 2
		off += copy(buf[off:], s.Chars)
	case SymbolNumeric:
		buf[off] = symbolicSegmentByte
		buf[off+1] = uint8(s.Format)<<5 | s.Size
		off += 2
		w := numericWidth(s.Size)
		putUint(buf[off:], w, uint64(s.Number))
		off += w
	}
	if padded && (off-start)%2 != 0 {
		buf[off] = 0
		off++
	}
	return off
}

func (s Symbolic) String() string {
	switch s.Format {
	case SymbolASCII:
		return fmt.Sprintf("Symbol(%q)", s.Name)
	case SymbolNumeric:
		return fmt.Sprintf("Symbol(#%d)", s.Number)
	}
	return fmt.Sprintf("Symbol(% X)", s.Chars)
}

func decodeSymbolic(buf []byte, off int, padded bool) (Segment, int, error) {
	start := off
	size := buf[off] & segmentSpecificBitsMask
	off++
	var seg Symbolic
	if size > 0 {
		name, err := segmentBytes(buf, off, int(size), "symbol")
		if err != nil {
			return nil, start, err
		}
		seg = Symbolic{Format: SymbolASCII, Name: string(name), Size: size}
		off += int(size)
	} else {
		ext, err := segmentBytes(buf, off, 1, "extended symbol format")
		if err != nil {
			return nil, start, err
		}
		off++
		format := SymbolFormat(ext[0] >> 5)
		esize := ext[0] & segmentSpecificBitsMask
		switch format {
		case SymbolDoubleByte, SymbolTripleByte:
			n := int(esize) * format.charWidth()
			chars, err := segmentBytes(buf, off, n, "extended symbol characters")
			if err != nil {
				return nil, start, err
			}
			if esize == 0 {
				return nil, start, malformedf("extended symbol of %d characters", esize)
			}
			seg = Symbolic{Format: format, Chars: append([]byte(nil), chars...), Size: esize}
			off += n
		case SymbolNumeric:
			w := numericWidth(esize)
			if w == 0 {
				return nil, start, malformedf("numeric symbol size %d", esize)
			}
			raw, err := segmentBytes(buf, off, w, "numeric symbol")
			if err != nil {
				return nil, start, err
			}
			seg = Symbolic{Format: format, Number: uint32(readUint(raw, w)), Size: esize}
			off += w
		default:
			return nil, start, malformedf("extended symbol format %d", format)
		}
	}
	if padded && (off-start)%2 != 0 {
		if _, err := segmentBytes(buf, off, 1, "symbol pad"); err != nil {
			return nil, start, err
		}
		off++
	}
	return seg, off, nil
}

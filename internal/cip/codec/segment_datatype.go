package codec

import "fmt"

// DataTypeSegment carries a data type descriptor, the form a device uses to
// report the layout of its own data.
//
// Elementary types encode as their one-byte code. STRUCT, ARRAY,
// ABBREV_STRUCT and ABBREV_ARRAY encode as the constructed code, a length
// byte and their contents. Array bounds are packed Member ID segments. An
// abbreviated array carries no item count and decodes as running to the
// end of its buffer.
type DataTypeSegment struct {
	Type DataType
}

// NewDataTypeSegment returns a segment for dt, or an error if dt has no
// wire form.
func NewDataTypeSegment(dt DataType) (DataTypeSegment, error) {
	if _, err := typeSize(dt); err != nil {
		return DataTypeSegment{}, err
	}
	return DataTypeSegment{Type: dt}, nil
}

func (s DataTypeSegment) EncodeSize(bool) int {
	n, err := typeSize(s.Type)
	if err != nil {
		assertf("data type segment: %v", err)
	}
	return n
}

func (s DataTypeSegment) EncodeTo(buf []byte, off int, _ bool) int {
	return encodeType(buf, off, s.Type)
}

func (s DataTypeSegment) String() string {
	return "DataType(" + s.Type.String() + ")"
}

// typeSize returns the encoded size of a descriptor.
func typeSize(dt DataType) (int, error) {
	switch t := dt.(type) {
	case Elementary, Bool, EPathType, Unknown:
		return 1, nil
	case Transform:
		if t.Wire != 0 {
			if _, ok := TypeFor(t.Wire); ok {
				return 1, nil
			}
		}
		return typeSize(t.Inner)
	case AbbrevStruct:
		return 4, nil
	case Struct:
		n := 0
		for i, m := range t.Members {
			size, err := typeSize(m)
			if err != nil {
				return 0, fmt.Errorf("member %d: %w", i, err)
			}
			n += size
		}
		return constructedSize(TypeStruct, n)
	case Array:
		lower, upper, err := t.bounds()
		if err != nil {
			return 0, err
		}
		item, err := typeSize(t.Item)
		if err != nil {
			return 0, err
		}
		return constructedSize(TypeArray, lower.EncodeSize(false)+upper.EncodeSize(false)+item)
	case AbbrevArray:
		item, err := typeSize(t.Item)
		if err != nil {
			return 0, err
		}
		return constructedSize(TypeAbbrevArray, item)
	case Placeholder:
		return 0, invalidf("placeholder has no data type encoding")
	}
	return 0, invalidf("descriptor %T has no data type encoding", dt)
}

func constructedSize(code TypeCode, body int) (int, error) {
	if body > 0xFF {
		return 0, invalidf("%s descriptor of %d bytes exceeds 255", code, body)
	}
	return 2 + body, nil
}

func (a Array) bounds() (Logical, Logical, error) {
	if _, err := a.count(); err != nil {
		return Logical{}, Logical{}, err
	}
	if a.Lower < 0 || a.Upper > 0xFFFF {
		return Logical{}, Logical{}, invalidf("array bounds [%d..%d] do not fit member segments", a.Lower, a.Upper)
	}
	lower, err := NewLogical(MemberID, uint32(a.Lower))
	if err != nil {
		return Logical{}, Logical{}, err
	}
	upper, err := NewLogical(MemberID, uint32(a.Upper))
	if err != nil {
		return Logical{}, Logical{}, err
	}
	return lower, upper, nil
}

func encodeType(buf []byte, off int, dt DataType) int {
	switch t := dt.(type) {
	case Elementary, Bool, EPathType, Unknown:
		buf[off] = uint8(t.Code())
		return off + 1
	case Transform:
		if t.Wire != 0 {
			if _, ok := TypeFor(t.Wire); ok {
				buf[off] = uint8(t.Wire)
				return off + 1
			}
		}
		return encodeType(buf, off, t.Inner)
	case AbbrevStruct:
		buf[off] = uint8(TypeAbbrevStruct)
		buf[off+1] = 2
		order.PutUint16(buf[off+2:], t.CRC)
		return off + 4
	}

	size, err := typeSize(dt)
	if err != nil {
		assertf("data type segment: %v", err)
	}
	buf[off] = uint8(dt.Code())
	buf[off+1] = uint8(size - 2)
	off += 2
	switch t := dt.(type) {
	case Struct:
		for _, m := range t.Members {
			off = encodeType(buf, off, m)
		}
	case Array:
		lower, upper, _ := t.bounds()
		off = lower.EncodeTo(buf, off, false)
		off = upper.EncodeTo(buf, off, false)
		off = encodeType(buf, off, t.Item)
	case AbbrevArray:
		off = encodeType(buf, off, t.Item)
	}
	return off
}

func decodeDataTypeSegment(buf []byte, off int) (Segment, int, error) {
	dt, next, err := decodeType(buf, off)
	if err != nil {
		return nil, off, err
	}
	return DataTypeSegment{Type: dt}, next, nil
}

func decodeType(buf []byte, off int) (DataType, int, error) {
	code := TypeCode(buf[off])
	if code>>segmentTypeShift == SegmentDataTypeAtomic {
		dt, ok := TypeFor(code)
		if !ok {
			dt = Unknown{Type: code}
		}
		return dt, off + 1, nil
	}

	size, err := segmentBytes(buf, off+1, 1, code.String()+" descriptor length")
	if err != nil {
		return nil, off, err
	}
	start := off + 2
	end := start + int(size[0])
	if _, err := segmentBytes(buf, start, int(size[0]), code.String()+" descriptor"); err != nil {
		return nil, off, err
	}
	window := buf[:end]

	var dt DataType
	next := start
	switch code {
	case TypeAbbrevStruct:
		if size[0] != 2 {
			return nil, off, malformedf("ABBREV_STRUCT descriptor length %d", size[0])
		}
		dt, next = AbbrevStruct{CRC: order.Uint16(buf[start:])}, end
	case TypeStruct:
		s := Struct{}
		for next < end {
			m, n, err := decodeType(window, next)
			if err != nil {
				return nil, off, fmt.Errorf("member %d: %w", len(s.Members), err)
			}
			s.Members = append(s.Members, m)
			next = n
		}
		dt = s
	case TypeArray:
		var bounds [2]uint32
		for i := range bounds {
			if next >= end || window[next]>>segmentTypeShift != SegmentLogical {
				return nil, off, malformedf("ARRAY descriptor bound %d is not a member segment", i)
			}
			seg, n, err := decodeLogical(window, next, false)
			if err != nil {
				return nil, off, err
			}
			l := seg.(Logical)
			if l.Type != MemberID {
				return nil, off, malformedf("ARRAY descriptor bound %d is a %s segment", i, l.Type)
			}
			bounds[i] = l.Value
			next = n
		}
		if next >= end {
			return nil, off, malformedf("ARRAY descriptor has no item type")
		}
		item, n, err := decodeType(window, next)
		if err != nil {
			return nil, off, err
		}
		dt, next = Array{Item: item, Lower: int(bounds[0]), Upper: int(bounds[1])}, n
	case TypeAbbrevArray:
		if next >= end {
			return nil, off, malformedf("ABBREV_ARRAY descriptor has no item type")
		}
		item, n, err := decodeType(window, next)
		if err != nil {
			return nil, off, err
		}
		dt, next = ArrayToEnd(item), n
	default:
		return nil, off, malformedf("data type segment 0x%02X at offset %d", uint8(code), off)
	}
	if next != end {
		return nil, off, malformedf("%s descriptor declared %d bytes, used %d", code, size[0], next-start)
	}
	return dt, end, nil
}

package codec

import "fmt"

// DataSegmentType is the subtype of a data segment.
type DataSegmentType uint8

const (
	DataSimple     DataSegmentType = 0x80
	DataANSISymbol DataSegmentType = 0x91
)

// Data carries either a simple word-aligned parameter block or an ANSI
// extended symbol, the form Logix controllers use for tag names.
type Data struct {
	Type  DataSegmentType
	Value []byte
}

// NewSimpleData returns a simple data segment. The payload must be an even
// number of bytes.
func NewSimpleData(value []byte) (Data, error) {
	if len(value)%2 != 0 {
		return Data{}, invalidf("simple data of %d bytes is not word aligned", len(value))
	}
	if len(value)/2 > 0xFF {
		return Data{}, invalidf("simple data of %d bytes exceeds 255 words", len(value))
	}
	return Data{Type: DataSimple, Value: append([]byte(nil), value...)}, nil
}

// NewANSISymbol returns an ANSI extended symbol segment.
func NewANSISymbol(name string) (Data, error) {
	if len(name) == 0 || len(name) > 0xFF {
		return Data{}, invalidf("ANSI symbol %q must be 1 to 255 characters", name)
	}
	for i := 0; i < len(name); i++ {
		if name[i] >= 0x80 {
			return Data{}, invalidf("ANSI symbol %q is not ASCII", name)
		}
	}
	return Data{Type: DataANSISymbol, Value: []byte(name)}, nil
}

// MustANSISymbol is NewANSISymbol for names known to be valid.
func MustANSISymbol(name string) Data {
	d, err := NewANSISymbol(name)
	if err != nil {
		panic(err)
	}
	return d
}

func (d Data) EncodeSize(bool) int {
	n := 2 + len(d.Value)
	if d.Type == DataANSISymbol && len(d.Value)%2 != 0 {
		n++
	}
	return n
}

func (d Data) EncodeTo(buf []byte, off int, _ bool) int {
	buf[off] = uint8(d.Type)
	switch d.Type {
	case DataSimple:
		buf[off+1] = uint8(len(d.Value) / 2)
	case DataANSISymbol:
		buf[off+1] = uint8(len(d.Value))
	default:
		assertf("data segment type 0x%02X", uint8(d.Type))
	}
	off += 2
	off += copy(buf[off:], d.Value)
	if d.Type == DataANSISymbol && len(d.Value)%2 != 0 {
		buf[off] = 0
		off++
	}
	return off
}

func (d Data) String() string {
	if d.Type == DataANSISymbol {
		return fmt.Sprintf("ANSI(%q)", d.Value)
	}
	return fmt.Sprintf("Data(% X)", d.Value)
}

func decodeData(buf []byte, off int) (Segment, int, error) {
	start := off
	t := DataSegmentType(buf[off])
	size, err := segmentBytes(buf, off+1, 1, "data segment length")
	if err != nil {
		return nil, start, err
	}
	off += 2
	switch t {
	case DataSimple:
		n := int(size[0]) * 2
		value, err := segmentBytes(buf, off, n, "simple data")
		if err != nil {
			return nil, start, err
		}
		return Data{Type: t, Value: append([]byte(nil), value...)}, off + n, nil
	case DataANSISymbol:
		n := int(size[0])
		value, err := segmentBytes(buf, off, n, "ANSI symbol")
		if err != nil {
			return nil, start, err
		}
		off += n
		if n%2 != 0 {
			pad, err := segmentBytes(buf, off, 1, "ANSI symbol pad")
			if err != nil {
				return nil, start, err
			}
			if pad[0] != 0 {
				return nil, start, malformedf("ANSI symbol pad byte 0x%02X at offset %d", pad[0], off)
			}
			off++
		}
		return Data{Type: t, Value: append([]byte(nil), value...)}, off, nil
	}
	return nil, start, malformedf("data segment type 0x%02X at offset %d", uint8(t), start)
}

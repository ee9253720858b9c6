package codec

import "fmt"

// LogicalType selects what a logical segment addresses.
type LogicalType uint8

const (
	ClassID         LogicalType = 0
	InstanceID      LogicalType = 1
	MemberID        LogicalType = 2
	ConnectionPoint LogicalType = 3
	AttributeID     LogicalType = 4
	Special         LogicalType = 5
	ServiceID       LogicalType = 6
)

var logicalTypeNames = [...]string{"Class", "Instance", "Member", "ConnectionPoint", "Attribute", "Special", "Service"}

func (t LogicalType) String() string {
	if int(t) < len(logicalTypeNames) {
		return logicalTypeNames[t]
	}
	return fmt.Sprintf("LogicalType(%d)", uint8(t))
}

// LogicalFormat is the width of a logical segment's value.
type LogicalFormat uint8

const (
	Format8  LogicalFormat = 0
	Format16 LogicalFormat = 1
	Format32 LogicalFormat = 2
)

func (f LogicalFormat) width() int {
	switch f {
	case Format8:
		return 1
	case Format16:
		return 2
	case Format32:
		return 4
	}
	assertf("logical format %d", f)
	return 0
}

const (
	logicalSegmentByte   = SegmentLogical << segmentTypeShift
	electronicKeyFormat  = 0x04
	electronicKeySize    = 9
	keyCompatibilityBit  = 0x80
	keyMajorRevisionMask = 0x7F
)

// ElectronicKey identifies the device a connection expects to reach.
type ElectronicKey struct {
	VendorID      uint16
	DeviceType    uint16
	ProductCode   uint16
	MajorRevision uint8 // 7 bits
	MinorRevision uint8
	Compatibility bool
}

// Logical addresses a class, instance, attribute, member, connection point
// or service, or carries an electronic key.
type Logical struct {
	Type   LogicalType
	Format LogicalFormat
	Value  uint32
	Key    *ElectronicKey
}

// NewLogical returns a logical segment using the narrowest format that
// holds value.
func NewLogical(t LogicalType, value uint32) (Logical, error) {
	format := Format8
	switch uintWidth(value) {
	case 2:
		format = Format16
	case 4:
		format = Format32
	}
	return NewLogicalFormat(t, format, value)
}

// NewLogicalFormat returns a logical segment with an explicit format.
func NewLogicalFormat(t LogicalType, format LogicalFormat, value uint32) (Logical, error) {
	if t > ServiceID {
		return Logical{}, invalidf("logical type %d", t)
	}
	if t == Special {
		return Logical{}, invalidf("special logical segments carry an electronic key; use NewElectronicKey")
	}
	if format > Format32 {
		return Logical{}, invalidf("logical format %d", format)
	}
	if format == Format32 && t != InstanceID && t != ConnectionPoint {
		return Logical{}, invalidf("32-bit format is not allowed for %s segments (value %d)", t, value)
	}
	if t == ServiceID && format != Format8 {
		return Logical{}, invalidf("service segments are 8-bit only (value %d)", value)
	}
	if uintWidth(value) > format.width() {
		return Logical{}, invalidf("%s value %d does not fit %d-bit format", t, value, format.width()*8)
	}
	return Logical{Type: t, Format: format, Value: value}, nil
}

// MustLogical is NewLogical for values known to be valid.
func MustLogical(t LogicalType, value uint32) Logical {
	l, err := NewLogical(t, value)
	if err != nil {
		panic(err)
	}
	return l
}

// NewElectronicKey returns a special logical segment carrying key.
func NewElectronicKey(key ElectronicKey) Logical {
	k := key
	return Logical{Type: Special, Format: Format8, Key: &k}
}

func (l Logical) padded(padded bool) bool {
	return padded && l.Format != Format8
}

func (l Logical) EncodeSize(padded bool) int {
	if l.Type == Special {
		return 1 + electronicKeySize
	}
	n := 1 + l.Format.width()
	if l.padded(padded) {
		n++
	}
	return n
}

func (l Logical) EncodeTo(buf []byte, off int, padded bool) int {
	buf[off] = logicalSegmentByte | uint8(l.Type)<<2 | uint8(l.Format)
	off++
	if l.Type == Special {
		k := l.Key
		if k == nil {
			assertf("special logical segment without an electronic key")
		}
		buf[off] = electronicKeyFormat
		order.PutUint16(buf[off+1:], k.VendorID)
		order.PutUint16(buf[off+3:], k.DeviceType)
		order.PutUint16(buf[off+5:], k.ProductCode)
		major := k.MajorRevision & keyMajorRevisionMask
		if k.Compatibility {
			major |= keyCompatibilityBit
		}
		buf[off+7] = major
		buf[off+8] = k.MinorRevision
		return off + electronicKeySize
	}
	if l.padded(padded) {
		buf[off] = 0
		off++
	}
	w := l.Format.width()
	putUint(buf[off:], w, uint64(l.Value))
	return off + w
}

func (l Logical) String() string {
	if l.Type == Special && l.Key != nil {
		k := l.Key
		return fmt.Sprintf("Key(vendor=%d, type=%d, product=%d, rev=%d.%d, compat=%t)",
			k.VendorID, k.DeviceType, k.ProductCode, k.MajorRevision, k.MinorRevision, k.Compatibility)
	}
	return fmt.Sprintf("%s(0x%02X)", l.Type, l.Value)
}

func decodeLogical(buf []byte, off int, padded bool) (Segment, int, error) {
	start := off
	b := buf[off]
	t := LogicalType(b>>2&0x07)
	format := LogicalFormat(b & 0x03)
	off++

	if t == Special {
		if format != Format8 {
			return nil, start, fmt.Errorf("%w: special logical segment format %d", ErrNotImplemented, format)
		}
		raw, err := segmentBytes(buf, off, electronicKeySize, "electronic key")
		if err != nil {
			return nil, start, err
		}
		if raw[0] != electronicKeyFormat {
			return nil, start, malformedf("electronic key format %d", raw[0])
		}
		key := ElectronicKey{
			VendorID:      order.Uint16(raw[1:]),
			DeviceType:    order.Uint16(raw[3:]),
			ProductCode:   order.Uint16(raw[5:]),
			MajorRevision: raw[7] & keyMajorRevisionMask,
			Compatibility: raw[7]&keyCompatibilityBit != 0,
			MinorRevision: raw[8],
		}
		return NewElectronicKey(key), off + electronicKeySize, nil
	}
	if format > Format32 || t > ServiceID {
		return nil, start, malformedf("logical segment byte 0x%02X", b)
	}
	if padded && format != Format8 {
		if _, err := segmentBytes(buf, off, 1, "logical segment pad"); err != nil {
			return nil, start, err
		}
		off++
	}
	w := format.width()
	raw, err := segmentBytes(buf, off, w, "logical segment value")
	if err != nil {
		return nil, start, err
	}
	l, err := NewLogicalFormat(t, format, uint32(readUint(raw, w)))
	if err != nil {
		return nil, start, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return l, off + w, nil
}

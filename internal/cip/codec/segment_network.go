package codec

import "fmt"

// NetworkType is the subtype of a network segment.
type NetworkType uint8

const (
	NetworkSchedule              NetworkType = 0x01
	NetworkFixedTag              NetworkType = 0x02
	NetworkProductionInhibitTime NetworkType = 0x03
	NetworkSafety                NetworkType = 0x10
	NetworkExtended              NetworkType = 0x1F
)

func (t NetworkType) String() string {
	switch t {
	case NetworkSchedule:
		return "Schedule"
	case NetworkFixedTag:
		return "FixedTag"
	case NetworkProductionInhibitTime:
		return "ProductionInhibitTime"
	case NetworkSafety:
		return "Safety"
	case NetworkExtended:
		return "Extended"
	}
	return fmt.Sprintf("NetworkType(0x%02X)", uint8(t))
}

const networkSegmentByte = SegmentNetwork << segmentTypeShift

// Network carries a one-byte network parameter such as a production
// inhibit time in milliseconds.
type Network struct {
	Type  NetworkType
	Value uint8
}

// NewNetwork returns a network segment. Safety and extended network
// segments are variable length and not supported.
func NewNetwork(t NetworkType, value uint8) (Network, error) {
	switch t {
	case NetworkSchedule, NetworkFixedTag, NetworkProductionInhibitTime:
		return Network{Type: t, Value: value}, nil
	case NetworkSafety, NetworkExtended:
		return Network{}, fmt.Errorf("%w: %s network segment", ErrNotImplemented, t)
	}
	return Network{}, invalidf("network segment type 0x%02X", uint8(t))
}

func (Network) EncodeSize(bool) int { return 2 }

func (n Network) EncodeTo(buf []byte, off int, _ bool) int {
	buf[off] = networkSegmentByte | uint8(n.Type)
	buf[off+1] = n.Value
	return off + 2
}

func (n Network) String() string {
	return fmt.Sprintf("%s(%d)", n.Type, n.Value)
}

func decodeNetwork(buf []byte, off int) (Segment, int, error) {
	t := NetworkType(buf[off] & segmentSpecificBitsMask)
	switch t {
	case NetworkSafety, NetworkExtended:
		return nil, off, fmt.Errorf("%w: %s network segment at offset %d", ErrNotImplemented, t, off)
	case NetworkSchedule, NetworkFixedTag, NetworkProductionInhibitTime:
	default:
		return nil, off, malformedf("network segment type 0x%02X at offset %d", uint8(t), off)
	}
	raw, err := segmentBytes(buf, off+1, 1, "network segment value")
	if err != nil {
		return nil, off, err
	}
	return Network{Type: t, Value: raw[0]}, off + 2, nil
}

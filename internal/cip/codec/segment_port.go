package codec

import "fmt"

const (
	portExtendedID   = 0x0F
	portExtendedLink = 0x10
)

// Port routes a message out of a device port to a link address, for example
// backplane port 1 slot 0.
type Port struct {
	Port uint16
	Link []byte
}

// NewPort returns a port segment, validating the link address length.
func NewPort(port uint16, link ...byte) (Port, error) {
	if len(link) > 0xFF {
		return Port{}, invalidf("port link address of %d bytes exceeds 255", len(link))
	}
	return Port{Port: port, Link: append([]byte(nil), link...)}, nil
}

func (p Port) extendedLink() bool { return len(p.Link) != 1 }

func (p Port) EncodeSize(bool) int {
	n := 1 + len(p.Link)
	if p.extendedLink() {
		n++
	}
	if p.Port >= portExtendedID {
		n += 2
	}
	return n + n%2
}

func (p Port) EncodeTo(buf []byte, off int, padded bool) int {
	start := off
	b := uint8(p.Port)
	if p.Port >= portExtendedID {
		b = portExtendedID
	}
	if p.extendedLink() {
		b |= portExtendedLink
	}
	buf[off] = b
	off++
	if p.extendedLink() {
		buf[off] = uint8(len(p.Link))
		off++
	}
	if p.Port >= portExtendedID {
		order.PutUint16(buf[off:], p.Port)
		off += 2
	}
	off += copy(buf[off:], p.Link)
	if (off-start)%2 != 0 {
		buf[off] = 0
		off++
	}
	return off
}

func (p Port) String() string {
	return fmt.Sprintf("Port(%d, % X)", p.Port, p.Link)
}

func decodePort(buf []byte, off int) (Segment, int, error) {
	start := off
	b := buf[off]
	off++
	linkLen := 1
	if b&portExtendedLink != 0 {
		size, err := segmentBytes(buf, off, 1, "port link address size")
		if err != nil {
			return nil, start, err
		}
		linkLen = int(size[0])
		off++
	}
	port := uint16(b & portExtendedID)
	if port == portExtendedID {
		id, err := segmentBytes(buf, off, 2, "extended port identifier")
		if err != nil {
			return nil, start, err
		}
		port = order.Uint16(id)
		off += 2
	}
	link, err := segmentBytes(buf, off, linkLen, "port link address")
	if err != nil {
		return nil, start, err
	}
	off += linkLen
	if (off-start)%2 != 0 {
		if _, err := segmentBytes(buf, off, 1, "port segment pad"); err != nil {
			return nil, start, err
		}
		off++
	}
	return Port{Port: port, Link: append([]byte(nil), link...)}, off, nil
}

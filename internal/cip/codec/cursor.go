package codec

// Cursor is the read position shared by every branch of one decode tree.
// Each decoder advances it by exactly the bytes it consumed.
type Cursor struct {
	buf []byte
	off int
}

// NewCursor returns a cursor over buf starting at off.
func NewCursor(buf []byte, off int) *Cursor {
	return &Cursor{buf: buf, off: off}
}

// Offset returns the current read position.
func (c *Cursor) Offset() int { return c.off }

// Len returns the length of the underlying buffer.
func (c *Cursor) Len() int { return len(c.buf) }

// Remaining returns the number of unread bytes.
func (c *Cursor) Remaining() int {
	if c.off >= len(c.buf) {
		return 0
	}
	return len(c.buf) - c.off
}

// Buffer returns the underlying buffer.
func (c *Cursor) Buffer() []byte { return c.buf }

// Next returns the next n bytes and advances past them.
func (c *Cursor) Next(n int) ([]byte, error) {
	b, err := c.Peek(n)
	if err != nil {
		return nil, err
	}
	c.off += n
	return b, nil
}

// Peek returns the next n bytes without advancing.
func (c *Cursor) Peek(n int) ([]byte, error) {
	if n < 0 {
		return nil, invalidf("negative read length %d", n)
	}
	if c.Remaining() < n {
		return nil, shortf("need %d bytes at offset %d, have %d", n, c.off, c.Remaining())
	}
	return c.buf[c.off : c.off+n], nil
}

// Seek moves the cursor to an absolute offset.
func (c *Cursor) Seek(off int) error {
	if off < 0 || off > len(c.buf) {
		return shortf("offset %d outside buffer of %d bytes", off, len(c.buf))
	}
	c.off = off
	return nil
}

func (c *Cursor) uint(width int) (uint64, error) {
	b, err := c.Next(width)
	if err != nil {
		return 0, err
	}
	return readUint(b, width), nil
}

// Uint8 reads one byte.
func (c *Cursor) Uint8() (uint8, error) {
	v, err := c.uint(1)
	return uint8(v), err
}

// Uint16 reads a little-endian uint16.
func (c *Cursor) Uint16() (uint16, error) {
	v, err := c.uint(2)
	return uint16(v), err
}

// Uint32 reads a little-endian uint32.
func (c *Cursor) Uint32() (uint32, error) {
	v, err := c.uint(4)
	return uint32(v), err
}

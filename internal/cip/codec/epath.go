package codec

import (
	"fmt"
	"strings"
)

// Segment is one addressing unit of an EPATH.
//
// EncodeTo writes exactly EncodeSize(padded) bytes at buf[off:] and
// returns the offset after the segment.
type Segment interface {
	EncodeSize(padded bool) int
	EncodeTo(buf []byte, off int, padded bool) int
	String() string
}

// Segment type selectors, the top three bits of a segment's first byte.
const (
	SegmentPort             = 0
	SegmentLogical          = 1
	SegmentNetwork          = 2
	SegmentSymbolic         = 3
	SegmentData             = 4
	SegmentDataTypeComplex  = 5
	SegmentDataTypeAtomic   = 6
	segmentTypeShift        = 5
	segmentSpecificBitsMask = 0x1F
)

// EPath is an ordered list of segments. Padded paths word-align 16 and 32
// bit logical values and odd-length symbolic segments.
type EPath struct {
	Padded   bool
	Segments []Segment
}

// NewEPath returns a path of the given segments.
func NewEPath(padded bool, segments ...Segment) EPath {
	return EPath{Padded: padded, Segments: segments}
}

// EncodeSize returns the encoded length of the path in bytes.
func (p EPath) EncodeSize() int {
	return p.encodeSize(p.Padded)
}

// EncodeTo writes the path at buf[off:] and returns the offset after it.
func (p EPath) EncodeTo(buf []byte, off int) int {
	return p.encodeTo(buf, off, p.Padded)
}

// Bytes returns the encoded path.
func (p EPath) Bytes() []byte {
	buf := make([]byte, p.EncodeSize())
	p.EncodeTo(buf, 0)
	return buf
}

func (p EPath) encodeSize(padded bool) int {
	n := 0
	for _, s := range p.Segments {
		n += s.EncodeSize(padded)
	}
	return n
}

func (p EPath) encodeTo(buf []byte, off int, padded bool) int {
	for _, s := range p.Segments {
		size := s.EncodeSize(padded)
		if off+size > len(buf) {
			assertf("segment %s needs %d bytes at offset %d of %d byte buffer", s, size, off, len(buf))
		}
		next := s.EncodeTo(buf, off, padded)
		if next-off != size {
			assertf("segment %s wrote %d bytes, declared %d", s, next-off, size)
		}
		off = next
	}
	return off
}

func (p EPath) String() string {
	parts := make([]string, len(p.Segments))
	for i, s := range p.Segments {
		parts[i] = s.String()
	}
	return strings.Join(parts, " ")
}

// EncodePath returns the encoded form of segments.
func EncodePath(padded bool, segments ...Segment) []byte {
	return NewEPath(padded, segments...).Bytes()
}

// DecodePath decodes segments starting at buf[off]. length is the encoded
// length in bytes, PathRest to consume the rest of buf, or PathSingle to
// decode exactly one segment. It returns the path and the offset after it.
func DecodePath(buf []byte, off int, length int, padded bool) (EPath, int, error) {
	path := EPath{Padded: padded}
	end := len(buf)
	switch {
	case length >= 0:
		end = off + length
		if end > len(buf) {
			return path, off, shortf("path of %d bytes at offset %d exceeds %d byte buffer", length, off, len(buf))
		}
	case length != PathRest && length != PathSingle:
		return path, off, invalidf("path length %d", length)
	}
	if off > end {
		return path, off, shortf("path offset %d beyond buffer end %d", off, end)
	}

	window := buf[:end]
	for off < end {
		seg, next, err := decodeSegment(window, off, padded)
		if err != nil {
			return path, off, fmt.Errorf("segment %d: %w", len(path.Segments), err)
		}
		path.Segments = append(path.Segments, seg)
		off = next
		if length == PathSingle {
			break
		}
	}
	if length == PathSingle && len(path.Segments) == 0 {
		return path, off, shortf("no segment at offset %d", off)
	}
	return path, off, nil
}

func decodeSegment(buf []byte, off int, padded bool) (Segment, int, error) {
	b := buf[off]
	switch b >> segmentTypeShift {
	case SegmentPort:
		return decodePort(buf, off)
	case SegmentLogical:
		return decodeLogical(buf, off, padded)
	case SegmentNetwork:
		return decodeNetwork(buf, off)
	case SegmentSymbolic:
		return decodeSymbolic(buf, off, padded)
	case SegmentData:
		return decodeData(buf, off)
	case SegmentDataTypeComplex, SegmentDataTypeAtomic:
		return decodeDataTypeSegment(buf, off)
	}
	return nil, off, malformedf("reserved segment type 0x%02X at offset %d", b, off)
}

// segmentBytes returns buf[off:off+n] or a short-buffer error naming what.
func segmentBytes(buf []byte, off, n int, what string) ([]byte, error) {
	if n < 0 || off+n > len(buf) {
		return nil, shortf("%s needs %d bytes at offset %d, have %d", what, n, off, len(buf)-off)
	}
	return buf[off : off+n], nil
}

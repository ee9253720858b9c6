// Package codec implements the CIP wire codecs: EPATH segments and the
// self-describing data types carried in request and reply bodies.
//
// All multi-byte values are little-endian.
package codec

import "encoding/binary"

var order = binary.LittleEndian

// AppendUint16 appends a little-endian uint16 to dst.
func AppendUint16(dst []byte, value uint16) []byte {
	return order.AppendUint16(dst, value)
}

// AppendUint32 appends a little-endian uint32 to dst.
func AppendUint32(dst []byte, value uint32) []byte {
	return order.AppendUint32(dst, value)
}

// PutUint16 writes a little-endian uint16 at the start of dst.
func PutUint16(dst []byte, value uint16) {
	order.PutUint16(dst, value)
}

// PutUint32 writes a little-endian uint32 at the start of dst.
func PutUint32(dst []byte, value uint32) {
	order.PutUint32(dst, value)
}

// Uint16 reads a little-endian uint16 from the start of src.
func Uint16(src []byte) uint16 {
	return order.Uint16(src)
}

// Uint32 reads a little-endian uint32 from the start of src.
func Uint32(src []byte) uint32 {
	return order.Uint32(src)
}

func putUint(dst []byte, width int, value uint64) {
	switch width {
	case 1:
		dst[0] = uint8(value)
	case 2:
		order.PutUint16(dst, uint16(value))
	case 4:
		order.PutUint32(dst, uint32(value))
	case 8:
		order.PutUint64(dst, value)
	default:
		assertf("unsupported integer width %d", width)
	}
}

func readUint(src []byte, width int) uint64 {
	switch width {
	case 1:
		return uint64(src[0])
	case 2:
		return uint64(order.Uint16(src))
	case 4:
		return uint64(order.Uint32(src))
	case 8:
		return order.Uint64(src)
	}
	assertf("unsupported integer width %d", width)
	return 0
}

// uintWidth returns the smallest wire width (1, 2 or 4) that holds value.
func uintWidth(value uint32) int {
	switch {
	case value <= 0xFF:
		return 1
	case value <= 0xFFFF:
		return 2
	default:
		return 4
	}
}

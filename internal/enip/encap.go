// Package enip frames CIP messages in EtherNet/IP encapsulation.
package enip

import (
	"errors"
	"fmt"
	"io"

	"github.com/tturner/cipstack/internal/cip/codec"
)

// Encapsulation commands.
const (
	CommandNOP               uint16 = 0x0000
	CommandListServices      uint16 = 0x0004
	CommandListIdentity      uint16 = 0x0063
	CommandListInterfaces    uint16 = 0x0064
	CommandRegisterSession   uint16 = 0x0065
	CommandUnregisterSession uint16 = 0x0066
	CommandSendRRData        uint16 = 0x006F
	CommandSendUnitData      uint16 = 0x0070
)

// HeaderSize is the length of the encapsulation header.
const HeaderSize = 24

// ErrEncapStatus is wrapped by errors for frames with a non-zero status.
var ErrEncapStatus = errors.New("encapsulation error status")

var statusText = map[uint32]string{
	0x0001: "invalid or unsupported command",
	0x0002: "insufficient memory",
	0x0003: "incorrect data",
	0x0064: "invalid session handle",
	0x0065: "invalid length",
	0x0069: "unsupported protocol revision",
}

// StatusText describes an encapsulation status code.
func StatusText(status uint32) string {
	if s, ok := statusText[status]; ok {
		return s
	}
	return fmt.Sprintf("status 0x%08X", status)
}

// Encapsulation is one EtherNet/IP frame. All fields are little-endian on
// the wire.
type Encapsulation struct {
	Command       uint16
	SessionID     uint32
	Status        uint32
	SenderContext [8]byte
	Options       uint32
	Data          []byte
}

// Encode returns the frame. The length field is taken from Data.
func (e Encapsulation) Encode() []byte {
	frame := make([]byte, HeaderSize, HeaderSize+len(e.Data))
	codec.PutUint16(frame[0:], e.Command)
	codec.PutUint16(frame[2:], uint16(len(e.Data)))
	codec.PutUint32(frame[4:], e.SessionID)
	codec.PutUint32(frame[8:], e.Status)
	copy(frame[12:20], e.SenderContext[:])
	codec.PutUint32(frame[20:], e.Options)
	return append(frame, e.Data...)
}

// Decode parses one frame. Trailing bytes beyond the declared length are
// an error.
func Decode(frame []byte) (Encapsulation, error) {
	var e Encapsulation
	if len(frame) < HeaderSize {
		return e, fmt.Errorf("%w: frame of %d bytes (minimum %d)", codec.ErrShortBuffer, len(frame), HeaderSize)
	}
	e.Command = codec.Uint16(frame[0:])
	length := int(codec.Uint16(frame[2:]))
	e.SessionID = codec.Uint32(frame[4:])
	e.Status = codec.Uint32(frame[8:])
	copy(e.SenderContext[:], frame[12:20])
	e.Options = codec.Uint32(frame[20:])
	switch {
	case len(frame) < HeaderSize+length:
		return e, fmt.Errorf("%w: frame declares %d data bytes, %d present", codec.ErrShortBuffer, length, len(frame)-HeaderSize)
	case len(frame) > HeaderSize+length:
		return e, fmt.Errorf("%w: %d bytes after frame data", codec.ErrMalformed, len(frame)-HeaderSize-length)
	}
	if length > 0 {
		e.Data = frame[HeaderSize:]
	}
	return e, nil
}

// ReadFrame reads one whole frame from r.
func ReadFrame(r io.Reader) ([]byte, error) {
	header := make([]byte, HeaderSize)
	if _, err := io.ReadFull(r, header); err != nil {
		return nil, err
	}
	length := int(codec.Uint16(header[2:]))
	frame := make([]byte, HeaderSize+length)
	copy(frame, header)
	if _, err := io.ReadFull(r, frame[HeaderSize:]); err != nil {
		return nil, fmt.Errorf("read frame data: %w", err)
	}
	return frame, nil
}

// ContextBytes packs a correlation token into a sender context.
func ContextBytes(token uint64) [8]byte {
	var ctx [8]byte
	codec.PutUint32(ctx[0:], uint32(token))
	codec.PutUint32(ctx[4:], uint32(token>>32))
	return ctx
}

// ContextToken unpacks a sender context.
func ContextToken(ctx [8]byte) uint64 {
	return uint64(codec.Uint32(ctx[0:])) | uint64(codec.Uint32(ctx[4:]))<<32
}

// RegisterSessionData is the body of a RegisterSession request: protocol
// version 1 and no option flags.
func RegisterSessionData() []byte {
	return []byte{0x01, 0x00, 0x00, 0x00}
}

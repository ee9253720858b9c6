package protocol

import (
	"fmt"

	"github.com/tturner/cipstack/internal/cip/codec"
)

// Status is the general status of a reply.
type Status struct {
	Code        uint8
	Description string
	Error       bool
}

// Response represents a CIP service reply.
type Response struct {
	Service   ServiceCode // reply bit masked off
	Status    Status
	ExtStatus []byte // extended status words, little-endian
	Data      []byte
	Value     any // decoded Data, when the request carries a decoder
}

// ExtendedStatus returns the extended status words.
func (r *Response) ExtendedStatus() []uint16 {
	words := make([]uint16, len(r.ExtStatus)/2)
	for i := range words {
		words[i] = codec.Uint16(r.ExtStatus[i*2:])
	}
	return words
}

// Err returns a *StatusError for error replies and nil otherwise.
func (r *Response) Err() error {
	if !r.Status.Error {
		return nil
	}
	return &StatusError{
		Service:     r.Service,
		Code:        r.Status.Code,
		Description: r.Status.Description,
		Extended:    r.ExtendedStatus(),
		Diagnostic:  r.Value,
	}
}

// NewStatus returns the status for a general status code.
func NewStatus(code uint8) Status {
	return Status{
		Code:        code,
		Description: StatusDescription(code),
		Error:       code != StatusSuccess && code != StatusPartialTransfer,
	}
}

// ParseResponse decodes the reply framing without interpreting the data.
func ParseResponse(buf []byte) (*Response, error) {
	if len(buf) < 4 {
		return nil, fmt.Errorf("%w: reply of %d bytes (minimum 4: service + reserved + status + ext size)", codec.ErrShortBuffer, len(buf))
	}
	if buf[0]&ReplyFlag == 0 {
		return nil, fmt.Errorf("%w: service byte 0x%02X lacks the reply bit", codec.ErrMalformed, buf[0])
	}
	resp := &Response{
		Service: ServiceCode(buf[0] &^ ReplyFlag),
		Status:  NewStatus(buf[2]),
	}
	extLen := int(buf[3]) * 2
	if len(buf) < 4+extLen {
		return nil, fmt.Errorf("%w: extended status of %d words, %d bytes present", codec.ErrShortBuffer, buf[3], len(buf)-4)
	}
	if extLen > 0 {
		resp.ExtStatus = buf[4 : 4+extLen]
	}
	if len(buf) > 4+extLen {
		resp.Data = buf[4+extLen:]
	}
	return resp, nil
}

// EncodeResponse encodes a reply. ExtStatus is padded to whole words.
func EncodeResponse(resp *Response) ([]byte, error) {
	words := (len(resp.ExtStatus) + 1) / 2
	if words > 0xFF {
		return nil, fmt.Errorf("extended status of %d bytes exceeds 255 words", len(resp.ExtStatus))
	}
	data := make([]byte, 0, 4+words*2+len(resp.Data))
	data = append(data, uint8(resp.Service)|ReplyFlag, 0x00, resp.Status.Code, uint8(words))
	data = append(data, resp.ExtStatus...)
	if len(resp.ExtStatus)%2 != 0 {
		data = append(data, 0x00)
	}
	return append(data, resp.Data...), nil
}

// StatusError is a reply whose general status is neither success nor
// partial transfer.
type StatusError struct {
	Service     ServiceCode
	Code        uint8
	Description string
	Extended    []uint16
	Diagnostic  any
}

func (e *StatusError) Error() string {
	msg := fmt.Sprintf("service 0x%02X failed: status 0x%02X (%s)", uint8(e.Service), e.Code, e.Description)
	if len(e.Extended) > 0 {
		msg += fmt.Sprintf(", extended status 0x%04X", e.Extended[0])
		if desc, ok := ExtendedStatusDescription(e.Code, e.Extended[0]); ok {
			msg += " (" + desc + ")"
		}
	}
	return msg
}

package protocol

// CIP Message Router request and reply framing.

import (
	"errors"
	"fmt"
	"slices"

	"github.com/tturner/cipstack/internal/cip/codec"
)

// ServiceCode represents a CIP service code.
type ServiceCode uint8

// ReplyFlag is set in the service byte of every reply.
const ReplyFlag = 0x80

// Services this package frames itself.
const (
	ServiceMultipleService ServiceCode = 0x0A
	ServiceUnconnectedSend ServiceCode = 0x52
)

var (
	// ErrServiceMismatch is returned when a reply echoes a service the
	// request did not send.
	ErrServiceMismatch = errors.New("reply service does not match request")
	// ErrReplyCount is returned when a Multiple Service Packet reply holds
	// a different number of replies than requests were sent.
	ErrReplyCount = errors.New("reply count does not match request count")
)

// ResponseDecoder interprets the data region of a reply.
type ResponseDecoder interface {
	DecodeResponse(data []byte) (any, error)
}

// DecoderFunc adapts a function to ResponseDecoder.
type DecoderFunc func(data []byte) (any, error)

func (f DecoderFunc) DecodeResponse(data []byte) (any, error) { return f(data) }

// TypeDecoder decodes reply data with a data type descriptor.
type TypeDecoder struct {
	Type codec.DataType
}

func (d TypeDecoder) DecodeResponse(data []byte) (any, error) {
	return codec.DecodeBytes(data, d.Type)
}

// Request represents a CIP service request.
type Request struct {
	Service ServiceCode
	Path    codec.EPath
	RawPath []byte // encoded path, used instead of Path when set
	Data    []byte // request body after the path

	// Decoder interprets successful reply data. ErrorDecoder interprets the
	// data of an error reply, such as vendor diagnostics.
	Decoder      ResponseDecoder
	ErrorDecoder ResponseDecoder

	// Accept lists further service codes a reply may echo.
	Accept []ServiceCode

	// embedded is the request carried by an Unconnected Send. Replies echo
	// its service and are parsed by it.
	embedded *Request
}

// NewRequest returns a request for service on path.
func NewRequest(service ServiceCode, path codec.EPath, data []byte) *Request {
	return &Request{Service: service, Path: path, Data: data}
}

// WithDecoder sets the decoder for successful reply data.
func (r *Request) WithDecoder(d ResponseDecoder) *Request {
	r.Decoder = d
	return r
}

// WithType decodes successful reply data as dt.
func (r *Request) WithType(dt codec.DataType) *Request {
	return r.WithDecoder(TypeDecoder{Type: dt})
}

func (r *Request) pathBytes() []byte {
	if r.RawPath != nil {
		return r.RawPath
	}
	return r.Path.Bytes()
}

// EncodeSize returns the encoded length of the request.
func (r *Request) EncodeSize() int {
	n := len(r.pathBytes())
	return 2 + n + n%2 + len(r.Data)
}

// EncodeTo writes the request at buf[off:] and returns the offset after it.
func (r *Request) EncodeTo(buf []byte, off int) (int, error) {
	path := r.pathBytes()
	words := (len(path) + 1) / 2
	if words > 0xFF {
		return off, fmt.Errorf("path of %d bytes exceeds 255 words", len(path))
	}
	if r.Service&ReplyFlag != 0 {
		return off, fmt.Errorf("service 0x%02X has the reply bit set", uint8(r.Service))
	}
	if off+r.EncodeSize() > len(buf) {
		return off, fmt.Errorf("request needs %d bytes at offset %d, buffer holds %d", r.EncodeSize(), off, len(buf))
	}
	buf[off] = uint8(r.Service)
	buf[off+1] = uint8(words)
	off += 2
	off += copy(buf[off:], path)
	if len(path)%2 != 0 {
		buf[off] = 0
		off++
	}
	off += copy(buf[off:], r.Data)
	return off, nil
}

// Encode returns the wire form of the request.
func (r *Request) Encode() ([]byte, error) {
	buf := make([]byte, r.EncodeSize())
	if _, err := r.EncodeTo(buf, 0); err != nil {
		return nil, err
	}
	return buf, nil
}

func (r *Request) accepts(service ServiceCode) bool {
	return service == r.Service || slices.Contains(r.Accept, service)
}

// Response parses a reply to this request. Data of a successful reply is
// decoded with the request's decoder. A reply with an error status is
// returned together with a *StatusError.
func (r *Request) Response(buf []byte) (*Response, error) {
	resp, err := ParseResponse(buf)
	if err != nil {
		return nil, err
	}
	if r.embedded != nil && resp.Service == r.embedded.Service && resp.Service != r.Service {
		return r.embedded.Response(buf)
	}
	if !r.accepts(resp.Service) {
		return resp, fmt.Errorf("%w: sent 0x%02X, reply echoes 0x%02X", ErrServiceMismatch, uint8(r.Service), uint8(resp.Service))
	}

	if !resp.Status.Error {
		if len(resp.Data) > 0 && r.Decoder != nil {
			if resp.Value, err = r.Decoder.DecodeResponse(resp.Data); err != nil {
				return resp, fmt.Errorf("decode service 0x%02X reply: %w", uint8(resp.Service), err)
			}
		}
		return resp, nil
	}

	if len(resp.Data) > 0 && r.ErrorDecoder != nil {
		if resp.Value, err = r.ErrorDecoder.DecodeResponse(resp.Data); err != nil {
			return resp, fmt.Errorf("decode service 0x%02X error reply: %w", uint8(resp.Service), err)
		}
	}
	return resp, resp.Err()
}

// ParseRequest decodes a request from bytes. When the path cannot be
// decoded the raw path is kept and Path is left empty.
func ParseRequest(buf []byte) (*Request, error) {
	if len(buf) < 2 {
		return nil, fmt.Errorf("request too short: %d bytes (minimum 2: service + path size)", len(buf))
	}
	req := &Request{Service: ServiceCode(buf[0])}
	if req.Service&ReplyFlag != 0 {
		return nil, fmt.Errorf("service byte 0x%02X is a reply", buf[0])
	}
	pathLen := int(buf[1]) * 2
	if len(buf) < 2+pathLen {
		return nil, fmt.Errorf("incomplete EPATH: %d bytes declared, %d present", pathLen, len(buf)-2)
	}
	req.RawPath = append([]byte(nil), buf[2:2+pathLen]...)
	if path, _, err := codec.DecodePath(buf, 2, pathLen, true); err == nil {
		req.Path = path
		req.RawPath = nil
	}
	if len(buf) > 2+pathLen {
		req.Data = buf[2+pathLen:]
	}
	return req, nil
}

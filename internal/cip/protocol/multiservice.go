package protocol

import (
	"errors"
	"fmt"

	"github.com/tturner/cipstack/internal/cip/codec"
)

// MessageRouterPath addresses the Message Router instance that executes
// Multiple Service Packets.
func MessageRouterPath() codec.EPath {
	return codec.NewEPath(true, codec.MustLogical(codec.ClassID, 0x02), codec.MustLogical(codec.InstanceID, 0x01))
}

// NewMultiServiceRequest aggregates requests into one Multiple Service
// Packet addressed to path. A successful or embedded-error reply decodes
// to []*Response, one per request in order, each parsed by its own
// request.
func NewMultiServiceRequest(path codec.EPath, requests ...*Request) (*Request, error) {
	if len(requests) == 0 || len(requests) > 0xFFFF {
		return nil, fmt.Errorf("multiple service packet needs 1 to 65535 requests, got %d", len(requests))
	}
	headerLen := 2 + 2*len(requests)
	size := headerLen
	for _, r := range requests {
		size += r.EncodeSize()
	}
	if size > 0xFFFF {
		return nil, fmt.Errorf("multiple service packet body of %d bytes exceeds 65535", size)
	}

	data := make([]byte, size)
	codec.PutUint16(data, uint16(len(requests)))
	off := headerLen
	for i, r := range requests {
		codec.PutUint16(data[2+2*i:], uint16(off))
		var err error
		if off, err = r.EncodeTo(data, off); err != nil {
			return nil, fmt.Errorf("request %d: %w", i, err)
		}
	}

	dec := multiDecoder(requests)
	return &Request{
		Service:      ServiceMultipleService,
		Path:         path,
		Data:         data,
		Decoder:      dec,
		ErrorDecoder: dec,
	}, nil
}

type multiDecoder []*Request

// DecodeResponse splits a Multiple Service Packet reply at its offsets,
// which are relative to the reply count field.
func (m multiDecoder) DecodeResponse(data []byte) (any, error) {
	parts, err := splitPacket(data, "reply")
	if err != nil {
		return nil, err
	}
	if len(parts) != len(m) {
		return nil, fmt.Errorf("%w: sent %d requests, reply holds %d", ErrReplyCount, len(m), len(parts))
	}

	out := make([]*Response, len(parts))
	for i, req := range m {
		resp, err := req.Response(parts[i])
		var statusErr *StatusError
		if err != nil && !errors.As(err, &statusErr) {
			return nil, fmt.Errorf("reply %d: %w", i, err)
		}
		out[i] = resp
	}
	return out, nil
}

// SplitMultiServiceRequest returns the embedded requests of a Multiple
// Service Packet request body, in order.
func SplitMultiServiceRequest(data []byte) ([][]byte, error) {
	return splitPacket(data, "request")
}

// JoinMultiServiceReply builds the body of a Multiple Service Packet reply
// from encoded replies.
func JoinMultiServiceReply(replies [][]byte) ([]byte, error) {
	headerLen := 2 + 2*len(replies)
	size := headerLen
	for _, r := range replies {
		size += len(r)
	}
	if len(replies) > 0xFFFF || size > 0xFFFF {
		return nil, fmt.Errorf("multiple service reply of %d replies and %d bytes is too large", len(replies), size)
	}
	data := make([]byte, headerLen, size)
	codec.PutUint16(data, uint16(len(replies)))
	for i, r := range replies {
		codec.PutUint16(data[2+2*i:], uint16(len(data)))
		data = append(data, r...)
	}
	return data, nil
}

// splitPacket cuts a count, offset table and bodies apart. Offsets are
// relative to the count field and must ascend within data.
func splitPacket(data []byte, what string) ([][]byte, error) {
	if len(data) < 2 {
		return nil, fmt.Errorf("%w: multiple service %s of %d bytes", codec.ErrShortBuffer, what, len(data))
	}
	count := int(codec.Uint16(data))
	if len(data) < 2+2*count {
		return nil, fmt.Errorf("%w: multiple service %s offsets", codec.ErrShortBuffer, what)
	}
	offsets := make([]int, count+1)
	for i := 0; i < count; i++ {
		offsets[i] = int(codec.Uint16(data[2+2*i:]))
	}
	offsets[count] = len(data)
	for i := 0; i < count; i++ {
		if offsets[i] < 2+2*count || offsets[i] > offsets[i+1] {
			return nil, fmt.Errorf("%w: %s %d offset %d out of order or range", codec.ErrMalformed, what, i, offsets[i])
		}
	}
	parts := make([][]byte, count)
	for i := range parts {
		parts[i] = data[offsets[i]:offsets[i+1]]
	}
	return parts, nil
}

// Replies returns the per-request replies of a Multiple Service Packet.
func Replies(resp *Response) ([]*Response, bool) {
	if resp == nil {
		return nil, false
	}
	out, ok := resp.Value.([]*Response)
	return out, ok
}

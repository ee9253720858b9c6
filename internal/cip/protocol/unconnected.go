package protocol

import (
	"fmt"

	"github.com/tturner/cipstack/internal/cip/codec"
)

// ConnectionManagerPath addresses the Connection Manager instance.
func ConnectionManagerPath() codec.EPath {
	return codec.NewEPath(true, codec.MustLogical(codec.ClassID, 0x06), codec.MustLogical(codec.InstanceID, 0x01))
}

// UnconnectedSend is the body of an Unconnected Send request: a message
// routed through intermediate devices to its target.
type UnconnectedSend struct {
	PriorityTick uint8 // priority bit and tick time
	TimeoutTicks uint8
	Message      []byte
	Route        codec.EPath
	RawRoute     []byte // set when the route cannot be decoded
}

// NewUnconnectedSend wraps req for delivery along route. A reply from the
// target echoes the embedded service and is parsed by req; a routing
// failure echoes Unconnected Send.
func NewUnconnectedSend(req *Request, route codec.EPath, priorityTick, timeoutTicks uint8) (*Request, error) {
	msg, err := req.Encode()
	if err != nil {
		return nil, fmt.Errorf("embedded request: %w", err)
	}
	routeBytes := route.Bytes()
	if len(msg) > 0xFFFF {
		return nil, fmt.Errorf("embedded request of %d bytes exceeds 65535", len(msg))
	}
	if len(routeBytes)%2 != 0 || len(routeBytes)/2 > 0xFF {
		return nil, fmt.Errorf("route of %d bytes is not 1 to 255 words", len(routeBytes))
	}

	data := make([]byte, 0, 4+len(msg)+1+2+len(routeBytes))
	data = append(data, priorityTick, timeoutTicks)
	data = codec.AppendUint16(data, uint16(len(msg)))
	data = append(data, msg...)
	if len(msg)%2 != 0 {
		data = append(data, 0x00)
	}
	data = append(data, uint8(len(routeBytes)/2), 0x00)
	data = append(data, routeBytes...)

	return &Request{
		Service:  ServiceUnconnectedSend,
		Path:     ConnectionManagerPath(),
		Data:     data,
		embedded: req,
	}, nil
}

// ParseUnconnectedSend decodes the body of an Unconnected Send request.
func ParseUnconnectedSend(data []byte) (*UnconnectedSend, error) {
	if len(data) < 4 {
		return nil, fmt.Errorf("%w: unconnected send body of %d bytes", codec.ErrShortBuffer, len(data))
	}
	us := &UnconnectedSend{PriorityTick: data[0], TimeoutTicks: data[1]}
	size := int(codec.Uint16(data[2:]))
	off := 4
	if size == 0 || len(data) < off+size {
		return nil, fmt.Errorf("%w: embedded message of %d bytes, %d present", codec.ErrShortBuffer, size, len(data)-off)
	}
	us.Message = data[off : off+size]
	off += size + size%2
	if len(data) < off+2 {
		return nil, fmt.Errorf("%w: route path size missing", codec.ErrShortBuffer)
	}
	routeLen := int(data[off]) * 2
	off += 2
	if len(data) < off+routeLen {
		return nil, fmt.Errorf("%w: route of %d bytes, %d present", codec.ErrShortBuffer, routeLen, len(data)-off)
	}
	route, _, err := codec.DecodePath(data, off, routeLen, true)
	if err != nil {
		us.RawRoute = data[off : off+routeLen]
	} else {
		us.Route = route
	}
	return us, nil
}

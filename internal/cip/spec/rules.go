package spec

import (
	"fmt"

	"github.com/tturner/cipstack/internal/cip/codec"
	"github.com/tturner/cipstack/internal/cip/protocol"
)

// UnconnectedSendRule enforces an embedded request and a route.
type UnconnectedSendRule struct{}

func (UnconnectedSendRule) Name() string {
	return "unconnected_send_embedded"
}

func (UnconnectedSendRule) CheckRequest(payload []byte) error {
	us, err := protocol.ParseUnconnectedSend(payload)
	if err != nil {
		return err
	}
	if _, err := protocol.ParseRequest(us.Message); err != nil {
		return fmt.Errorf("embedded request: %w", err)
	}
	if len(us.Route.Segments) == 0 && len(us.RawRoute) == 0 {
		return fmt.Errorf("missing route path")
	}
	return nil
}

// CheckResponse passes: a successful reply carries the embedded reply,
// which is checked against its own service.
func (UnconnectedSendRule) CheckResponse([]byte) error {
	return nil
}

// MultipleServiceRule checks the reply offsets of a Multiple Service Packet.
type MultipleServiceRule struct{}

func (MultipleServiceRule) Name() string {
	return "multiple_service_offsets"
}

func (MultipleServiceRule) CheckRequest(payload []byte) error {
	return checkOffsets(payload)
}

func (MultipleServiceRule) CheckResponse(payload []byte) error {
	return checkOffsets(payload)
}

func checkOffsets(payload []byte) error {
	count := int(codec.Uint16(payload))
	if count == 0 {
		return fmt.Errorf("no embedded services")
	}
	if len(payload) < 2+2*count {
		return fmt.Errorf("%d offsets need %d bytes, have %d", count, 2+2*count, len(payload))
	}
	prev := 2 + 2*count
	for i := 0; i < count; i++ {
		off := int(codec.Uint16(payload[2+2*i:]))
		if off < prev || off >= len(payload) {
			return fmt.Errorf("offset %d of service %d out of order or range", off, i)
		}
		prev = off
	}
	return nil
}

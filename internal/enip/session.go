package enip

import (
	"fmt"
	"io"
	"sync"

	"github.com/tturner/cipstack/internal/cip/codec"
)

// Route says how a CIP message travels. Unconnected messages are matched
// by Context, connected messages by ConnectionID.
type Route struct {
	Connected    bool
	ConnectionID uint32
	Context      uint64
}

// Session frames CIP messages for one registered session and writes them
// to W. Inbound frames are unwrapped with Unwrap.
type Session struct {
	Handle  uint32
	Timeout uint16 // SendRRData timeout in seconds

	mu sync.Mutex
	W  io.Writer
}

// Wrap returns the frame carrying msg along route.
func (s *Session) Wrap(msg []byte, route Route) []byte {
	cmd := CommandSendRRData
	var cpf []byte
	if route.Connected {
		cmd = CommandSendUnitData
		cpf = EncodeCPF(
			Item{Type: ItemConnectedAddress, Data: codec.AppendUint32(nil, route.ConnectionID)},
			Item{Type: ItemConnectedData, Data: msg},
		)
	} else {
		cpf = EncodeCPF(
			Item{Type: ItemNullAddress},
			Item{Type: ItemUnconnectedData, Data: msg},
		)
	}
	data := make([]byte, 0, 6+len(cpf))
	data = codec.AppendUint32(data, 0) // interface handle: CIP
	data = codec.AppendUint16(data, s.Timeout)
	data = append(data, cpf...)

	e := Encapsulation{Command: cmd, SessionID: s.Handle, Data: data}
	if !route.Connected {
		e.SenderContext = ContextBytes(route.Context)
	}
	return e.Encode()
}

// Submit writes msg to W along route.
func (s *Session) Submit(msg []byte, route Route) error {
	frame := s.Wrap(msg, route)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.W == nil {
		return fmt.Errorf("session 0x%08X has no writer", s.Handle)
	}
	if _, err := s.W.Write(frame); err != nil {
		return fmt.Errorf("write %d byte frame: %w", len(frame), err)
	}
	return nil
}

// Unwrap extracts the CIP message and its route from a SendRRData or
// SendUnitData frame.
func Unwrap(frame []byte) ([]byte, Route, error) {
	e, err := Decode(frame)
	if err != nil {
		return nil, Route{}, err
	}
	return UnwrapEncapsulation(e)
}

// UnwrapEncapsulation is Unwrap for an already decoded frame.
func UnwrapEncapsulation(e Encapsulation) ([]byte, Route, error) {
	var route Route
	if e.Status != 0 {
		return nil, route, fmt.Errorf("%w: %s", ErrEncapStatus, StatusText(e.Status))
	}
	if e.Command != CommandSendRRData && e.Command != CommandSendUnitData {
		return nil, route, fmt.Errorf("command 0x%04X does not carry a CIP message", e.Command)
	}
	if len(e.Data) < 6 {
		return nil, route, fmt.Errorf("%w: command data of %d bytes (minimum 6)", codec.ErrShortBuffer, len(e.Data))
	}
	items, err := DecodeCPF(e.Data[6:])
	if err != nil {
		return nil, route, err
	}

	if e.Command == CommandSendRRData {
		route.Context = ContextToken(e.SenderContext)
		data, ok := FindItem(items, ItemUnconnectedData)
		if !ok {
			return nil, route, fmt.Errorf("%w: SendRRData without unconnected data item", codec.ErrMalformed)
		}
		return data.Data, route, nil
	}

	route.Connected = true
	addr, ok := FindItem(items, ItemConnectedAddress)
	if !ok || len(addr.Data) != 4 {
		return nil, route, fmt.Errorf("%w: SendUnitData without connected address item", codec.ErrMalformed)
	}
	route.ConnectionID = codec.Uint32(addr.Data)
	data, ok := FindItem(items, ItemConnectedData)
	if !ok {
		return nil, route, fmt.Errorf("%w: SendUnitData without connected data item", codec.ErrMalformed)
	}
	return data.Data, route, nil
}

// ParseRegisterSession returns the session handle of a RegisterSession reply.
func ParseRegisterSession(frame []byte) (uint32, error) {
	e, err := Decode(frame)
	if err != nil {
		return 0, err
	}
	if e.Command != CommandRegisterSession {
		return 0, fmt.Errorf("command 0x%04X is not RegisterSession", e.Command)
	}
	if e.Status != 0 {
		return 0, fmt.Errorf("%w: %s", ErrEncapStatus, StatusText(e.Status))
	}
	if e.SessionID == 0 {
		return 0, fmt.Errorf("%w: RegisterSession reply without a session handle", codec.ErrMalformed)
	}
	return e.SessionID, nil
}

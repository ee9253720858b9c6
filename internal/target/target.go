// Package target is an in-memory EtherNet/IP device. It answers session,
// Connection Manager, Identity, Modbus and PCCC traffic frame by frame and
// is used to exercise the messaging stack without a network.
package target

import (
	"fmt"
	"sync"

	"github.com/tturner/cipstack/internal/cip/codec"
	"github.com/tturner/cipstack/internal/enip"
	"github.com/tturner/cipstack/internal/logging"
	"github.com/tturner/cipstack/internal/modbus"
	"github.com/tturner/cipstack/internal/pccc"
)

// Encapsulation status codes sent by the target.
const (
	statusInvalidCommand  uint32 = 0x0001
	statusIncorrectData   uint32 = 0x0003
	statusInvalidSession  uint32 = 0x0064
	statusInvalidLength   uint32 = 0x0065
	statusUnsupportedProt uint32 = 0x0069
)

// Identity is the Identity object (class 0x01, instance 1).
type Identity struct {
	VendorID    uint16
	DeviceType  uint16
	ProductCode uint16
	RevMajor    uint8
	RevMinor    uint8
	Status      uint16
	Serial      uint32
	ProductName string
}

// DefaultIdentity describes a generic communications adapter.
func DefaultIdentity() Identity {
	return Identity{
		VendorID:    0x0001,
		DeviceType:  0x000C,
		ProductCode: 0x0001,
		RevMajor:    1,
		RevMinor:    1,
		Serial:      0x00C0FFEE,
		ProductName: "cipstack target",
	}
}

// Stats counts frames and connections handled by the target.
type Stats struct {
	Frames      int
	Requests    int
	Errors      int
	Opened      int
	Closed      int
	Connections int
}

// Option configures a Target.
type Option func(*Target)

// WithLogger routes target diagnostics to logger.
func WithLogger(logger *logging.Logger) Option {
	return func(t *Target) {
		if logger != nil {
			t.log = logger
		}
	}
}

// WithIdentity sets the Identity object.
func WithIdentity(id Identity) Option {
	return func(t *Target) { t.identity = id }
}

// WithModbus serves the Modbus object from store.
func WithModbus(store *modbus.Store) Option {
	return func(t *Target) { t.modbus = store }
}

// WithPCCC serves Execute PCCC from table.
func WithPCCC(table *pccc.DataTable) Option {
	return func(t *Target) { t.pccc = table }
}

// Target is safe for concurrent use.
type Target struct {
	log      *logging.Logger
	identity Identity
	modbus   *modbus.Store
	pccc     *pccc.DataTable

	mu          sync.Mutex
	nextSession uint32
	sessions    map[uint32]bool
	nextConnID  uint32
	byTriad     map[triad]*conn
	byOtoT      map[uint32]*conn
	stats       Stats
}

// New returns a target with no registered sessions.
func New(opts ...Option) *Target {
	t := &Target{
		log:         logging.Nop(),
		identity:    DefaultIdentity(),
		nextSession: 0x1000,
		sessions:    make(map[uint32]bool),
		nextConnID:  0x8000_0001,
		byTriad:     make(map[triad]*conn),
		byOtoT:      make(map[uint32]*conn),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Stats returns a snapshot of the counters.
func (t *Target) Stats() Stats {
	t.mu.Lock()
	defer t.mu.Unlock()
	s := t.stats
	s.Connections = len(t.byOtoT)
	return s
}

// HandleFrame answers one encapsulation frame. A nil reply with a nil error
// means the command has no reply, as for UnregisterSession. Errors report
// frames that cannot be decoded at all.
func (t *Target) HandleFrame(frame []byte) ([]byte, error) {
	e, err := enip.Decode(frame)
	if err != nil {
		t.count(func(s *Stats) { s.Frames++; s.Errors++ })
		return nil, err
	}
	t.count(func(s *Stats) { s.Frames++ })
	t.log.LogHex("target rx", frame)

	switch e.Command {
	case enip.CommandRegisterSession:
		return t.registerSession(e), nil
	case enip.CommandUnregisterSession:
		t.mu.Lock()
		delete(t.sessions, e.SessionID)
		t.mu.Unlock()
		t.log.Verbose("target: session 0x%08X unregistered", e.SessionID)
		return nil, nil
	case enip.CommandNOP:
		return nil, nil
	case enip.CommandSendRRData, enip.CommandSendUnitData:
		if !t.hasSession(e.SessionID) {
			return errorFrame(e, statusInvalidSession), nil
		}
		return t.sendData(e), nil
	}
	t.log.Info("target: unsupported command 0x%04X", e.Command)
	return errorFrame(e, statusInvalidCommand), nil
}

func (t *Target) count(f func(*Stats)) {
	t.mu.Lock()
	f(&t.stats)
	t.mu.Unlock()
}

func (t *Target) hasSession(handle uint32) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.sessions[handle]
}

func errorFrame(req enip.Encapsulation, status uint32) []byte {
	return enip.Encapsulation{
		Command:       req.Command,
		SessionID:     req.SessionID,
		Status:        status,
		SenderContext: req.SenderContext,
	}.Encode()
}

func (t *Target) registerSession(e enip.Encapsulation) []byte {
	if len(e.Data) != 4 {
		return errorFrame(e, statusInvalidLength)
	}
	if codec.Uint16(e.Data) != 1 || codec.Uint16(e.Data[2:]) != 0 {
		return errorFrame(e, statusUnsupportedProt)
	}
	t.mu.Lock()
	handle := t.nextSession
	t.nextSession++
	t.sessions[handle] = true
	t.mu.Unlock()

	t.log.Verbose("target: session 0x%08X registered", handle)
	return enip.Encapsulation{
		Command:       e.Command,
		SessionID:     handle,
		SenderContext: e.SenderContext,
		Data:          e.Data,
	}.Encode()
}

var identityLayout = codec.Struct{Members: []codec.DataType{
	codec.UINT, codec.UINT, codec.UINT, // vendor, device type, product code
	codec.USINT, codec.USINT, // revision
	codec.WORD, // status
	codec.UDINT,
	codec.SHORTSTRING,
}}

func (id Identity) encode() ([]byte, error) {
	return codec.Encode(identityLayout, []any{
		id.VendorID, id.DeviceType, id.ProductCode,
		id.RevMajor, id.RevMinor, id.Status, id.Serial, id.ProductName,
	})
}

// DecodeIdentity decodes Get_Attributes_All data of the Identity object.
func DecodeIdentity(data []byte) (Identity, error) {
	raw, err := codec.DecodeBytes(data, identityLayout)
	if err != nil {
		return Identity{}, fmt.Errorf("identity: %w", err)
	}
	v := raw.([]any)
	return Identity{
		VendorID:    v[0].(uint16),
		DeviceType:  v[1].(uint16),
		ProductCode: v[2].(uint16),
		RevMajor:    v[3].(uint8),
		RevMinor:    v[4].(uint8),
		Status:      v[5].(uint16),
		Serial:      v[6].(uint32),
		ProductName: v[7].(string),
	}, nil
}

// sendData answers SendRRData and SendUnitData frames.
func (t *Target) sendData(e enip.Encapsulation) []byte {
	msg, route, err := enip.UnwrapEncapsulation(e)
	if err != nil {
		t.log.Debug("target: %v", err)
		t.count(func(s *Stats) { s.Errors++ })
		return errorFrame(e, statusIncorrectData)
	}
	session := enip.Session{Handle: e.SessionID}

	if !route.Connected {
		reply := t.handleMessage(msg, e.SessionID)
		return session.Wrap(reply, route)
	}

	t.mu.Lock()
	c, ok := t.byOtoT[route.ConnectionID]
	t.mu.Unlock()
	if !ok || c.session != e.SessionID || len(msg) < 2 {
		t.log.Debug("target: connected data for unknown connection 0x%08X", route.ConnectionID)
		t.count(func(s *Stats) { s.Errors++ })
		return errorFrame(e, statusIncorrectData)
	}
	seq := codec.Uint16(msg)
	reply := t.handleMessage(msg[2:], e.SessionID)
	out := codec.AppendUint16(make([]byte, 0, 2+len(reply)), seq)
	return session.Wrap(append(out, reply...), enip.Route{Connected: true, ConnectionID: c.ttoO})
}

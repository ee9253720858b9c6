package connection

// Forward Open / Forward Close request and reply layouts

import (
	"fmt"

	"github.com/tturner/cipstack/internal/cip/codec"
	"github.com/tturner/cipstack/internal/cip/protocol"
)

// Connection Manager services.
const (
	ServiceForwardClose     protocol.ServiceCode = 0x4E
	ServiceForwardOpen      protocol.ServiceCode = 0x54
	ServiceLargeForwardOpen protocol.ServiceCode = 0x5B
)

// ForwardOpen is the body of a Forward Open or Large Forward Open request.
// Large requests carry 32-bit network connection parameters.
type ForwardOpen struct {
	PriorityTick      uint8
	TimeoutTicks      uint8
	OtoTID            uint32
	TtoOID            uint32
	Serial            uint16
	VendorID          uint16
	OriginatorSerial  uint32
	TimeoutMultiplier uint8
	OtoTRPI           uint32 // microseconds
	OtoTParams        uint32
	TtoORPI           uint32
	TtoOParams        uint32
	TransportTrigger  uint8
	Path              codec.EPath
	Large             bool
}

// ForwardOpenReply is the data of a successful Forward Open reply.
type ForwardOpenReply struct {
	OtoTID           uint32
	TtoOID           uint32
	Serial           uint16
	VendorID         uint16
	OriginatorSerial uint32
	OtoTAPI          uint32 // actual packet interval, microseconds
	TtoOAPI          uint32
	AppReply         []byte
}

// ForwardClose is the body of a Forward Close request.
type ForwardClose struct {
	PriorityTick     uint8
	TimeoutTicks     uint8
	Serial           uint16
	VendorID         uint16
	OriginatorSerial uint32
	Path             codec.EPath
}

// ForwardCloseReply is the data of a successful Forward Close reply.
type ForwardCloseReply struct {
	Serial           uint16
	VendorID         uint16
	OriginatorSerial uint32
	AppReply         []byte
}

// FailureReply is the data of an unsuccessful Forward Open or Forward Close
// reply. RemainingPathSize is only set by devices that route the request.
type FailureReply struct {
	Serial            uint16
	VendorID          uint16
	OriginatorSerial  uint32
	RemainingPathSize uint8
	HasRemainingPath  bool
}

func (f FailureReply) String() string {
	s := fmt.Sprintf("serial=0x%04X vendor=0x%04X originator=0x%08X", f.Serial, f.VendorID, f.OriginatorSerial)
	if f.HasRemainingPath {
		s += fmt.Sprintf(" remaining_path=%d", f.RemainingPathSize)
	}
	return s
}

// pathAt resolves member index to a padded path whose word count is the
// value of member words.
func pathAt(index, words int) codec.DecodeHook {
	return func(values []any, next codec.DataType) codec.DataType {
		if len(values) != index {
			return nil
		}
		return codec.EPathType{Padded: true, Length: 2 * int(values[words].(uint8))}
	}
}

// appReplyAt resolves member index to the application reply bytes, sized in
// words by member words.
func appReplyAt(index, words int) codec.DecodeHook {
	return func(values []any, next codec.DataType) codec.DataType {
		if len(values) != index {
			return nil
		}
		return codec.ArrayOf(codec.BYTE, 2*int(values[words].(uint8)))
	}
}

func forwardOpenLayout(large bool) codec.Struct {
	params := codec.WORD
	if large {
		params = codec.DWORD
	}
	return codec.Struct{
		Members: []codec.DataType{
			codec.USINT, // priority/time tick
			codec.USINT, // timeout ticks
			codec.UDINT, // O->T connection id
			codec.UDINT, // T->O connection id
			codec.UINT,  // connection serial
			codec.UINT,  // originator vendor id
			codec.UDINT, // originator serial
			codec.USINT, // timeout multiplier
			codec.ArrayOf(codec.BYTE, 3),
			codec.UDINT, // O->T RPI
			params,
			codec.UDINT, // T->O RPI
			params,
			codec.USINT, // transport class/trigger
			codec.USINT, // path size in words
			codec.Placeholder{Resolve: func(prior any) codec.DataType {
				return codec.EPathType{Padded: true, Length: 2 * int(prior.(uint8))}
			}},
		},
	}
}

var (
	forwardOpenReplyLayout = codec.Struct{
		Members: []codec.DataType{
			codec.UDINT, codec.UDINT, // connection ids
			codec.UINT, codec.UINT, codec.UDINT, // serial, vendor, originator serial
			codec.UDINT, codec.UDINT, // actual packet intervals
			codec.USINT, // application reply size in words
			codec.USINT, // reserved
			codec.Placeholder{},
		},
		Hook: appReplyAt(9, 7),
	}

	forwardCloseLayout = codec.Struct{
		Members: []codec.DataType{
			codec.USINT, codec.USINT, // priority/time tick, timeout ticks
			codec.UINT, codec.UINT, codec.UDINT, // serial, vendor, originator serial
			codec.USINT, // path size in words
			codec.USINT, // reserved
			codec.Placeholder{},
		},
		Hook: pathAt(7, 5),
	}

	forwardCloseReplyLayout = codec.Struct{
		Members: []codec.DataType{
			codec.UINT, codec.UINT, codec.UDINT,
			codec.USINT, // application reply size in words
			codec.USINT, // reserved
			codec.Placeholder{},
		},
		Hook: appReplyAt(5, 3),
	}

	failureReplyLayout = codec.Struct{
		Members: []codec.DataType{
			codec.UINT, codec.UINT, codec.UDINT,
			codec.ArrayToEnd(codec.USINT), // remaining path size and reserved, when routed
		},
	}
)

// ForwardOpenReplyType decodes Forward Open reply data into *ForwardOpenReply.
var ForwardOpenReplyType codec.DataType = codec.Transform{
	Inner: forwardOpenReplyLayout,
	Decode: func(raw any) (any, error) {
		v := raw.([]any)
		return &ForwardOpenReply{
			OtoTID:           v[0].(uint32),
			TtoOID:           v[1].(uint32),
			Serial:           v[2].(uint16),
			VendorID:         v[3].(uint16),
			OriginatorSerial: v[4].(uint32),
			OtoTAPI:          v[5].(uint32),
			TtoOAPI:          v[6].(uint32),
			AppReply:         byteValues(v[9]),
		}, nil
	},
	Encode: func(value any) (any, error) {
		r, ok := value.(*ForwardOpenReply)
		if !ok {
			return nil, fmt.Errorf("%w: forward open reply %T", codec.ErrInvalidValue, value)
		}
		if len(r.AppReply)%2 != 0 || len(r.AppReply) > 2*0xFF {
			return nil, fmt.Errorf("%w: application reply of %d bytes", codec.ErrInvalidValue, len(r.AppReply))
		}
		return []any{r.OtoTID, r.TtoOID, r.Serial, r.VendorID, r.OriginatorSerial,
			r.OtoTAPI, r.TtoOAPI, uint8(len(r.AppReply) / 2), uint8(0), r.AppReply}, nil
	},
}

// ForwardCloseReplyType decodes Forward Close reply data into *ForwardCloseReply.
var ForwardCloseReplyType codec.DataType = codec.Transform{
	Inner: forwardCloseReplyLayout,
	Decode: func(raw any) (any, error) {
		v := raw.([]any)
		return &ForwardCloseReply{
			Serial:           v[0].(uint16),
			VendorID:         v[1].(uint16),
			OriginatorSerial: v[2].(uint32),
			AppReply:         byteValues(v[5]),
		}, nil
	},
	Encode: func(value any) (any, error) {
		r, ok := value.(*ForwardCloseReply)
		if !ok {
			return nil, fmt.Errorf("%w: forward close reply %T", codec.ErrInvalidValue, value)
		}
		if len(r.AppReply)%2 != 0 || len(r.AppReply) > 2*0xFF {
			return nil, fmt.Errorf("%w: application reply of %d bytes", codec.ErrInvalidValue, len(r.AppReply))
		}
		return []any{r.Serial, r.VendorID, r.OriginatorSerial, uint8(len(r.AppReply) / 2), uint8(0), r.AppReply}, nil
	},
}

// FailureReplyType decodes the data of a failed Forward Open or Forward
// Close into FailureReply.
var FailureReplyType codec.DataType = codec.Transform{
	Inner: failureReplyLayout,
	Decode: func(raw any) (any, error) {
		v := raw.([]any)
		f := FailureReply{
			Serial:           v[0].(uint16),
			VendorID:         v[1].(uint16),
			OriginatorSerial: v[2].(uint32),
		}
		if rest := byteValues(v[3]); len(rest) > 0 {
			f.RemainingPathSize = rest[0]
			f.HasRemainingPath = true
		}
		return f, nil
	},
	Encode: func(value any) (any, error) {
		f, ok := value.(FailureReply)
		if !ok {
			return nil, fmt.Errorf("%w: failure reply %T", codec.ErrInvalidValue, value)
		}
		var rest []byte
		if f.HasRemainingPath {
			rest = []byte{f.RemainingPathSize, 0}
		}
		return []any{f.Serial, f.VendorID, f.OriginatorSerial, rest}, nil
	},
}

func byteValues(v any) []byte {
	items, _ := v.([]any)
	out := make([]byte, len(items))
	for i, item := range items {
		out[i] = item.(uint8)
	}
	return out
}

// Service returns the service code the request is sent with.
func (f *ForwardOpen) Service() protocol.ServiceCode {
	if f.Large {
		return ServiceLargeForwardOpen
	}
	return ServiceForwardOpen
}

// Encode returns the request body.
func (f *ForwardOpen) Encode() ([]byte, error) {
	if !f.Large && (f.OtoTParams > 0xFFFF || f.TtoOParams > 0xFFFF) {
		return nil, fmt.Errorf("network connection parameters 0x%X/0x%X need a large forward open", f.OtoTParams, f.TtoOParams)
	}
	words, err := pathWords(f.Path)
	if err != nil {
		return nil, err
	}
	var otParams, toParams any = uint16(f.OtoTParams), uint16(f.TtoOParams)
	if f.Large {
		otParams, toParams = f.OtoTParams, f.TtoOParams
	}
	return codec.Encode(forwardOpenLayout(f.Large), []any{
		f.PriorityTick, f.TimeoutTicks,
		f.OtoTID, f.TtoOID,
		f.Serial, f.VendorID, f.OriginatorSerial,
		f.TimeoutMultiplier, []byte{0, 0, 0},
		f.OtoTRPI, otParams,
		f.TtoORPI, toParams,
		f.TransportTrigger,
		words, f.Path,
	})
}

// Request returns the Connection Manager request carrying f. Successful
// replies decode to *ForwardOpenReply, failures to FailureReply.
func (f *ForwardOpen) Request() (*protocol.Request, error) {
	data, err := f.Encode()
	if err != nil {
		return nil, err
	}
	req := protocol.NewRequest(f.Service(), protocol.ConnectionManagerPath(), data).WithType(ForwardOpenReplyType)
	req.ErrorDecoder = protocol.TypeDecoder{Type: FailureReplyType}
	return req, nil
}

// ParseForwardOpen decodes a Forward Open request body. large selects the
// Large Forward Open layout.
func ParseForwardOpen(data []byte, large bool) (*ForwardOpen, error) {
	raw, err := codec.DecodeBytes(data, forwardOpenLayout(large))
	if err != nil {
		return nil, fmt.Errorf("forward open: %w", err)
	}
	v := raw.([]any)
	f := &ForwardOpen{
		PriorityTick:      v[0].(uint8),
		TimeoutTicks:      v[1].(uint8),
		OtoTID:            v[2].(uint32),
		TtoOID:            v[3].(uint32),
		Serial:            v[4].(uint16),
		VendorID:          v[5].(uint16),
		OriginatorSerial:  v[6].(uint32),
		TimeoutMultiplier: v[7].(uint8),
		OtoTRPI:           v[9].(uint32),
		TtoORPI:           v[11].(uint32),
		TransportTrigger:  v[13].(uint8),
		Path:              v[15].(codec.EPath),
		Large:             large,
	}
	if large {
		f.OtoTParams, f.TtoOParams = v[10].(uint32), v[12].(uint32)
	} else {
		f.OtoTParams, f.TtoOParams = uint32(v[10].(uint16)), uint32(v[12].(uint16))
	}
	return f, nil
}

// Encode returns the request body.
func (f *ForwardClose) Encode() ([]byte, error) {
	words, err := pathWords(f.Path)
	if err != nil {
		return nil, err
	}
	return codec.Encode(forwardCloseLayout, []any{
		f.PriorityTick, f.TimeoutTicks,
		f.Serial, f.VendorID, f.OriginatorSerial,
		words, uint8(0), f.Path,
	})
}

// Request returns the Connection Manager request carrying f.
func (f *ForwardClose) Request() (*protocol.Request, error) {
	data, err := f.Encode()
	if err != nil {
		return nil, err
	}
	req := protocol.NewRequest(ServiceForwardClose, protocol.ConnectionManagerPath(), data).WithType(ForwardCloseReplyType)
	req.ErrorDecoder = protocol.TypeDecoder{Type: FailureReplyType}
	return req, nil
}

// ParseForwardClose decodes a Forward Close request body.
func ParseForwardClose(data []byte) (*ForwardClose, error) {
	raw, err := codec.DecodeBytes(data, forwardCloseLayout)
	if err != nil {
		return nil, fmt.Errorf("forward close: %w", err)
	}
	v := raw.([]any)
	return &ForwardClose{
		PriorityTick:     v[0].(uint8),
		TimeoutTicks:     v[1].(uint8),
		Serial:           v[2].(uint16),
		VendorID:         v[3].(uint16),
		OriginatorSerial: v[4].(uint32),
		Path:             v[7].(codec.EPath),
	}, nil
}

func pathWords(path codec.EPath) (uint8, error) {
	path.Padded = true
	size := path.EncodeSize()
	if size%2 != 0 || size/2 > 0xFF {
		return 0, fmt.Errorf("connection path of %d bytes is not up to 255 words", size)
	}
	return uint8(size / 2), nil
}

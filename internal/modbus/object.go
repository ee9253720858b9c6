package modbus

import (
	"fmt"

	"github.com/tturner/cipstack/internal/cip/codec"
	"github.com/tturner/cipstack/internal/cip/protocol"
	"github.com/tturner/cipstack/internal/cip/spec"
)

// ObjectPath addresses instance 1 of the Modbus object.
func ObjectPath() codec.EPath {
	return codec.NewEPath(true,
		codec.MustLogical(codec.ClassID, spec.ClassModbus),
		codec.MustLogical(codec.InstanceID, 1))
}

// Object service request bodies. Fields are CIP little-endian, unlike the
// big-endian fields inside a passthrough PDU.
var (
	readLayout = codec.Struct{Members: []codec.DataType{
		codec.UINT, // starting address
		codec.UINT, // quantity
	}}

	writeRegistersLayout = codec.Struct{Members: []codec.DataType{
		codec.UINT,
		codec.UINT,
		codec.CountedBy(codec.UINT),
	}}

	writeCoilsLayout = codec.Struct{Members: []codec.DataType{
		codec.UINT,
		codec.UINT,
		codec.Placeholder{Resolve: func(prior any) codec.DataType {
			return codec.ArrayOf(codec.BYTE, (int(prior.(uint16))+7)/8)
		}},
	}}
)

// ObjectRequest is a decoded Modbus object service request.
type ObjectRequest struct {
	Service   protocol.ServiceCode
	Address   uint16
	Quantity  uint16
	Coils     []bool   // Write Coils
	Registers []uint16 // Write Holding Registers
	PDU       PDU      // Passthrough
}

func isBitService(s protocol.ServiceCode) bool {
	return s == spec.ServiceModbusReadDiscreteInputs || s == spec.ServiceModbusReadCoils
}

// BitsType describes a reply of qty packed bits. It decodes to []bool.
func BitsType(qty int) codec.DataType {
	return codec.Transform{
		Inner: codec.ArrayToEnd(codec.BYTE),
		Decode: func(raw any) (any, error) {
			packed := toBytes(raw)
			if len(packed) != (qty+7)/8 {
				return nil, fmt.Errorf("%w: %d bytes for %d bits", codec.ErrMalformed, len(packed), qty)
			}
			return UnpackBits(packed, qty), nil
		},
		Encode: func(value any) (any, error) {
			bits, ok := value.([]bool)
			if !ok || len(bits) != qty {
				return nil, fmt.Errorf("%w: want %d bits, got %T", codec.ErrInvalidValue, qty, value)
			}
			return PackBits(bits), nil
		},
	}
}

// RegistersType describes a reply of qty registers. It decodes to []uint16.
func RegistersType(qty int) codec.DataType {
	return codec.Transform{
		Inner: codec.ArrayToEnd(codec.UINT),
		Decode: func(raw any) (any, error) {
			items := raw.([]any)
			if len(items) != qty {
				return nil, fmt.Errorf("%w: %d registers, want %d", codec.ErrMalformed, len(items), qty)
			}
			regs := make([]uint16, len(items))
			for i, it := range items {
				regs[i] = it.(uint16)
			}
			return regs, nil
		},
	}
}

// NewReadRequest returns an object read of qty items from addr. service is
// one of the four read services; the reply decodes to []bool for coils and
// discrete inputs and to []uint16 for registers.
func NewReadRequest(service protocol.ServiceCode, addr, qty uint16) (*protocol.Request, error) {
	limit := MaxReadRegisters
	switch {
	case isBitService(service):
		limit = MaxReadBits
	case service == spec.ServiceModbusReadInputRegisters, service == spec.ServiceModbusReadHoldingRegisters:
	default:
		return nil, fmt.Errorf("service 0x%02X is not a modbus read", uint8(service))
	}
	if qty == 0 || int(qty) > limit {
		return nil, fmt.Errorf("read quantity %d outside 1..%d", qty, limit)
	}
	data, err := codec.Encode(readLayout, []any{addr, qty})
	if err != nil {
		return nil, err
	}
	req := protocol.NewRequest(service, ObjectPath(), data)
	if isBitService(service) {
		return req.WithType(BitsType(int(qty))), nil
	}
	return req.WithType(RegistersType(int(qty))), nil
}

// NewWriteCoilsRequest writes values to the coils from addr.
func NewWriteCoilsRequest(addr uint16, values []bool) (*protocol.Request, error) {
	if len(values) == 0 || len(values) > MaxWriteBits {
		return nil, fmt.Errorf("write of %d coils outside 1..%d", len(values), MaxWriteBits)
	}
	data, err := codec.Encode(writeCoilsLayout, []any{addr, uint16(len(values)), PackBits(values)})
	if err != nil {
		return nil, err
	}
	return protocol.NewRequest(spec.ServiceModbusWriteCoils, ObjectPath(), data), nil
}

// NewWriteRegistersRequest writes values to the holding registers from addr.
func NewWriteRegistersRequest(addr uint16, values []uint16) (*protocol.Request, error) {
	if len(values) == 0 || len(values) > MaxWriteRegisters {
		return nil, fmt.Errorf("write of %d registers outside 1..%d", len(values), MaxWriteRegisters)
	}
	data, err := codec.Encode(writeRegistersLayout, []any{addr, uint16(len(values)), values})
	if err != nil {
		return nil, err
	}
	return protocol.NewRequest(spec.ServiceModbusWriteHoldingRegs, ObjectPath(), data), nil
}

// NewPassthroughRequest tunnels pdu through the Modbus object. The reply
// decodes to a PDU; exception replies are successful CIP replies whose PDU
// carries the exception.
func NewPassthroughRequest(pdu PDU) *protocol.Request {
	return protocol.NewRequest(spec.ServiceModbusPassthrough, ObjectPath(), pdu.Encode()).
		WithDecoder(protocol.DecoderFunc(func(data []byte) (any, error) {
			return ParsePDU(data)
		}))
}

// ParseObjectRequest decodes the body of a Modbus object request.
func ParseObjectRequest(req *protocol.Request) (*ObjectRequest, error) {
	out := &ObjectRequest{Service: req.Service}
	var layout codec.DataType
	switch {
	case req.Service == spec.ServiceModbusPassthrough:
		pdu, err := ParsePDU(req.Data)
		if err != nil {
			return nil, err
		}
		out.PDU = pdu
		return out, nil
	case req.Service == spec.ServiceModbusWriteCoils:
		layout = writeCoilsLayout
	case req.Service == spec.ServiceModbusWriteHoldingRegs:
		layout = writeRegistersLayout
	case isBitService(req.Service),
		req.Service == spec.ServiceModbusReadInputRegisters,
		req.Service == spec.ServiceModbusReadHoldingRegisters:
		layout = readLayout
	default:
		return nil, fmt.Errorf("service 0x%02X is not a modbus object service", uint8(req.Service))
	}

	cur := codec.NewCursor(req.Data, 0)
	raw, err := codec.Decode(cur, layout)
	if err != nil {
		return nil, fmt.Errorf("modbus service 0x%02X: %w", uint8(req.Service), err)
	}
	if cur.Remaining() != 0 {
		return nil, fmt.Errorf("%w: %d bytes after modbus request", codec.ErrMalformed, cur.Remaining())
	}
	v := raw.([]any)
	out.Address, out.Quantity = v[0].(uint16), v[1].(uint16)
	switch req.Service {
	case spec.ServiceModbusWriteCoils:
		out.Coils = UnpackBits(toBytes(v[2]), int(out.Quantity))
	case spec.ServiceModbusWriteHoldingRegs:
		for _, it := range v[2].([]any) {
			out.Registers = append(out.Registers, it.(uint16))
		}
	}
	return out, nil
}

func toBytes(raw any) []byte {
	items, _ := raw.([]any)
	out := make([]byte, len(items))
	for i, it := range items {
		out[i] = it.(uint8)
	}
	return out
}

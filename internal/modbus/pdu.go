// Package modbus carries Modbus requests through the CIP Modbus object
// (class 0x44), either as object services or as passthrough PDUs.
package modbus

import (
	"encoding/binary"
	"fmt"

	"github.com/tturner/cipstack/internal/cip/codec"
)

// FunctionCode is a Modbus function code.
type FunctionCode uint8

const (
	FcReadCoils                  FunctionCode = 0x01
	FcReadDiscreteInputs         FunctionCode = 0x02
	FcReadHoldingRegisters       FunctionCode = 0x03
	FcReadInputRegisters         FunctionCode = 0x04
	FcWriteSingleCoil            FunctionCode = 0x05
	FcWriteSingleRegister        FunctionCode = 0x06
	FcWriteMultipleCoils         FunctionCode = 0x0F
	FcWriteMultipleRegisters     FunctionCode = 0x10
	FcMaskWriteRegister          FunctionCode = 0x16
	FcReadWriteMultipleRegisters FunctionCode = 0x17
)

// ExceptionFlag marks an exception reply's function code.
const ExceptionFlag FunctionCode = 0x80

// Limits per request.
const (
	MaxReadBits       = 2000
	MaxReadRegisters  = 125
	MaxWriteBits      = 1968
	MaxWriteRegisters = 123
)

var functionNames = map[FunctionCode]string{
	FcReadCoils:                  "Read_Coils",
	FcReadDiscreteInputs:         "Read_Discrete_Inputs",
	FcReadHoldingRegisters:       "Read_Holding_Registers",
	FcReadInputRegisters:         "Read_Input_Registers",
	FcWriteSingleCoil:            "Write_Single_Coil",
	FcWriteSingleRegister:        "Write_Single_Register",
	FcWriteMultipleCoils:         "Write_Multiple_Coils",
	FcWriteMultipleRegisters:     "Write_Multiple_Registers",
	FcMaskWriteRegister:          "Mask_Write_Register",
	FcReadWriteMultipleRegisters: "Read_Write_Multiple_Registers",
}

func (fc FunctionCode) String() string {
	if name, ok := functionNames[fc&^ExceptionFlag]; ok {
		return name
	}
	return fmt.Sprintf("Function(0x%02X)", uint8(fc))
}

// ExceptionCode is the single data byte of an exception reply.
type ExceptionCode uint8

const (
	ExceptionIllegalFunction    ExceptionCode = 0x01
	ExceptionIllegalDataAddress ExceptionCode = 0x02
	ExceptionIllegalDataValue   ExceptionCode = 0x03
	ExceptionDeviceFailure      ExceptionCode = 0x04
	ExceptionAcknowledge        ExceptionCode = 0x05
	ExceptionDeviceBusy         ExceptionCode = 0x06
	ExceptionGatewayPath        ExceptionCode = 0x0A
	ExceptionGatewayTarget      ExceptionCode = 0x0B
)

func (e ExceptionCode) String() string {
	switch e {
	case ExceptionIllegalFunction:
		return "illegal function"
	case ExceptionIllegalDataAddress:
		return "illegal data address"
	case ExceptionIllegalDataValue:
		return "illegal data value"
	case ExceptionDeviceFailure:
		return "server device failure"
	case ExceptionAcknowledge:
		return "acknowledge"
	case ExceptionDeviceBusy:
		return "server device busy"
	case ExceptionGatewayPath:
		return "gateway path unavailable"
	case ExceptionGatewayTarget:
		return "gateway target failed to respond"
	}
	return fmt.Sprintf("exception 0x%02X", uint8(e))
}

// Exception is a Modbus exception reply.
type Exception struct {
	Function FunctionCode
	Code     ExceptionCode
}

func (e *Exception) Error() string {
	return fmt.Sprintf("modbus %s: %s", e.Function, e.Code)
}

// PDU is a Modbus protocol data unit: a function code and its data. Fields
// inside Data are big-endian.
type PDU struct {
	Function FunctionCode
	Data     []byte
}

// Encode returns the PDU bytes.
func (p PDU) Encode() []byte {
	out := make([]byte, 0, 1+len(p.Data))
	out = append(out, byte(p.Function))
	return append(out, p.Data...)
}

// ParsePDU splits a PDU into function code and data.
func ParsePDU(b []byte) (PDU, error) {
	if len(b) == 0 {
		return PDU{}, fmt.Errorf("%w: empty modbus pdu", codec.ErrShortBuffer)
	}
	return PDU{Function: FunctionCode(b[0]), Data: b[1:]}, nil
}

// Err returns an *Exception for exception replies.
func (p PDU) Err() error {
	if p.Function&ExceptionFlag == 0 {
		return nil
	}
	code := ExceptionCode(0)
	if len(p.Data) > 0 {
		code = ExceptionCode(p.Data[0])
	}
	return &Exception{Function: p.Function &^ ExceptionFlag, Code: code}
}

// ExceptionPDU returns the exception reply to fc.
func ExceptionPDU(fc FunctionCode, code ExceptionCode) PDU {
	return PDU{Function: fc | ExceptionFlag, Data: []byte{byte(code)}}
}

func addrQty(fc FunctionCode, addr, qty uint16) PDU {
	data := make([]byte, 4)
	binary.BigEndian.PutUint16(data[0:], addr)
	binary.BigEndian.PutUint16(data[2:], qty)
	return PDU{Function: fc, Data: data}
}

// ReadCoils requests qty coils from addr.
func ReadCoils(addr, qty uint16) PDU { return addrQty(FcReadCoils, addr, qty) }

// ReadDiscreteInputs requests qty discrete inputs from addr.
func ReadDiscreteInputs(addr, qty uint16) PDU { return addrQty(FcReadDiscreteInputs, addr, qty) }

// ReadHoldingRegisters requests qty holding registers from addr.
func ReadHoldingRegisters(addr, qty uint16) PDU { return addrQty(FcReadHoldingRegisters, addr, qty) }

// ReadInputRegisters requests qty input registers from addr.
func ReadInputRegisters(addr, qty uint16) PDU { return addrQty(FcReadInputRegisters, addr, qty) }

// WriteSingleCoil sets or clears one coil.
func WriteSingleCoil(addr uint16, on bool) PDU {
	var v uint16
	if on {
		v = 0xFF00
	}
	return addrQty(FcWriteSingleCoil, addr, v)
}

// WriteSingleRegister writes one holding register.
func WriteSingleRegister(addr, value uint16) PDU {
	return addrQty(FcWriteSingleRegister, addr, value)
}

// WriteMultipleCoils writes len(values) coils from addr.
func WriteMultipleCoils(addr uint16, values []bool) PDU {
	packed := PackBits(values)
	p := addrQty(FcWriteMultipleCoils, addr, uint16(len(values)))
	p.Data = append(p.Data, byte(len(packed)))
	p.Data = append(p.Data, packed...)
	return p
}

// WriteMultipleRegisters writes len(values) holding registers from addr.
func WriteMultipleRegisters(addr uint16, values []uint16) PDU {
	p := addrQty(FcWriteMultipleRegisters, addr, uint16(len(values)))
	p.Data = append(p.Data, byte(2*len(values)))
	for _, v := range values {
		p.Data = binary.BigEndian.AppendUint16(p.Data, v)
	}
	return p
}

// MaskWriteRegister applies (current AND and) OR (or AND NOT and).
func MaskWriteRegister(addr, and, or uint16) PDU {
	p := addrQty(FcMaskWriteRegister, addr, and)
	p.Data = binary.BigEndian.AppendUint16(p.Data, or)
	return p
}

// Registers decodes the reply to a register read.
func Registers(reply PDU) ([]uint16, error) {
	if err := reply.Err(); err != nil {
		return nil, err
	}
	if len(reply.Data) < 1 {
		return nil, fmt.Errorf("%s reply without byte count", reply.Function)
	}
	n := int(reply.Data[0])
	if n%2 != 0 || len(reply.Data) != 1+n {
		return nil, fmt.Errorf("%s reply: byte count %d, %d data bytes", reply.Function, n, len(reply.Data)-1)
	}
	regs := make([]uint16, n/2)
	for i := range regs {
		regs[i] = binary.BigEndian.Uint16(reply.Data[1+2*i:])
	}
	return regs, nil
}

// Bits decodes the reply to a coil or discrete input read of qty bits.
func Bits(reply PDU, qty int) ([]bool, error) {
	if err := reply.Err(); err != nil {
		return nil, err
	}
	if len(reply.Data) < 1 {
		return nil, fmt.Errorf("%s reply without byte count", reply.Function)
	}
	n := int(reply.Data[0])
	if len(reply.Data) != 1+n || n*8 < qty {
		return nil, fmt.Errorf("%s reply: byte count %d for %d bits", reply.Function, n, qty)
	}
	return UnpackBits(reply.Data[1:], qty), nil
}

// PackBits packs values least significant bit first.
func PackBits(values []bool) []byte {
	out := make([]byte, (len(values)+7)/8)
	for i, v := range values {
		if v {
			out[i/8] |= 1 << (i % 8)
		}
	}
	return out
}

// UnpackBits returns the first n bits of packed.
func UnpackBits(packed []byte, n int) []bool {
	out := make([]bool, n)
	for i := range out {
		out[i] = packed[i/8]&(1<<(i%8)) != 0
	}
	return out
}

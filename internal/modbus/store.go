package modbus

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"github.com/tturner/cipstack/internal/cip/codec"
	"github.com/tturner/cipstack/internal/cip/protocol"
	"github.com/tturner/cipstack/internal/cip/spec"
)

// Store holds the four Modbus address spaces of a simulated device.
// Addresses are 0-based.
type Store struct {
	mu       sync.RWMutex
	coils    []bool
	discrete []bool
	input    []uint16
	holding  []uint16
}

// NewStore returns a store with size entries in each address space.
func NewStore(size int) *Store {
	return &Store{
		coils:    make([]bool, size),
		discrete: make([]bool, size),
		input:    make([]uint16, size),
		holding:  make([]uint16, size),
	}
}

// SetCoil sets one coil.
func (s *Store) SetCoil(addr int, v bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return setAt(s.coils, addr, v, "coil")
}

// SetDiscreteInput sets one discrete input.
func (s *Store) SetDiscreteInput(addr int, v bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return setAt(s.discrete, addr, v, "discrete input")
}

// SetInputRegister sets one input register.
func (s *Store) SetInputRegister(addr int, v uint16) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return setAt(s.input, addr, v, "input register")
}

// SetHoldingRegister sets one holding register.
func (s *Store) SetHoldingRegister(addr int, v uint16) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return setAt(s.holding, addr, v, "holding register")
}

// HoldingRegister returns one holding register.
func (s *Store) HoldingRegister(addr int) (uint16, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if addr < 0 || addr >= len(s.holding) {
		return 0, fmt.Errorf("holding register %d out of range 0..%d", addr, len(s.holding)-1)
	}
	return s.holding[addr], nil
}

// Coil returns one coil.
func (s *Store) Coil(addr int) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if addr < 0 || addr >= len(s.coils) {
		return false, fmt.Errorf("coil %d out of range 0..%d", addr, len(s.coils)-1)
	}
	return s.coils[addr], nil
}

func setAt[T any](space []T, addr int, v T, what string) error {
	if addr < 0 || addr >= len(space) {
		return fmt.Errorf("%s %d out of range 0..%d", what, addr, len(space)-1)
	}
	space[addr] = v
	return nil
}

func window(size int, addr, qty uint16) (int, int, bool) {
	start, end := int(addr), int(addr)+int(qty)
	return start, end, qty > 0 && end <= size
}

// HandleObject answers a Modbus object request.
func (s *Store) HandleObject(req *protocol.Request) *protocol.Response {
	resp := &protocol.Response{Service: req.Service, Status: protocol.NewStatus(protocol.StatusSuccess)}
	obj, err := ParseObjectRequest(req)
	switch {
	case errors.Is(err, codec.ErrShortBuffer):
		resp.Status = protocol.NewStatus(protocol.StatusNotEnoughData)
		return resp
	case errors.Is(err, codec.ErrMalformed):
		resp.Status = protocol.NewStatus(protocol.StatusTooMuchData)
		return resp
	case err != nil:
		resp.Status = protocol.NewStatus(protocol.StatusServiceNotSupported)
		return resp
	}
	if obj.Service == spec.ServiceModbusPassthrough {
		resp.Data = s.HandlePDU(obj.PDU).Encode()
		return resp
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	var dt codec.DataType
	var value any
	switch obj.Service {
	case spec.ServiceModbusReadCoils, spec.ServiceModbusReadDiscreteInputs:
		space := s.coils
		if obj.Service == spec.ServiceModbusReadDiscreteInputs {
			space = s.discrete
		}
		start, end, ok := window(len(space), obj.Address, obj.Quantity)
		if !ok || obj.Quantity > MaxReadBits {
			resp.Status = protocol.NewStatus(protocol.StatusInvalidParameter)
			return resp
		}
		dt, value = BitsType(int(obj.Quantity)), append([]bool(nil), space[start:end]...)
	case spec.ServiceModbusReadInputRegisters, spec.ServiceModbusReadHoldingRegisters:
		space := s.holding
		if obj.Service == spec.ServiceModbusReadInputRegisters {
			space = s.input
		}
		start, end, ok := window(len(space), obj.Address, obj.Quantity)
		if !ok || obj.Quantity > MaxReadRegisters {
			resp.Status = protocol.NewStatus(protocol.StatusInvalidParameter)
			return resp
		}
		dt, value = RegistersType(int(obj.Quantity)), append([]uint16(nil), space[start:end]...)
	case spec.ServiceModbusWriteCoils:
		start, _, ok := window(len(s.coils), obj.Address, obj.Quantity)
		if !ok {
			resp.Status = protocol.NewStatus(protocol.StatusInvalidParameter)
			return resp
		}
		copy(s.coils[start:], obj.Coils)
		return resp
	case spec.ServiceModbusWriteHoldingRegs:
		start, _, ok := window(len(s.holding), obj.Address, obj.Quantity)
		if !ok {
			resp.Status = protocol.NewStatus(protocol.StatusInvalidParameter)
			return resp
		}
		copy(s.holding[start:], obj.Registers)
		return resp
	}
	data, err := codec.Encode(dt, value)
	if err != nil {
		resp.Status = protocol.NewStatus(protocol.StatusInvalidParameter)
		return resp
	}
	resp.Data = data
	return resp
}

// HandlePDU executes a passthrough PDU and returns the reply PDU.
func (s *Store) HandlePDU(req PDU) PDU {
	s.mu.Lock()
	defer s.mu.Unlock()
	d := req.Data
	switch req.Function {
	case FcReadCoils, FcReadDiscreteInputs:
		if len(d) != 4 {
			return ExceptionPDU(req.Function, ExceptionIllegalDataValue)
		}
		space := s.coils
		if req.Function == FcReadDiscreteInputs {
			space = s.discrete
		}
		addr, qty := binary.BigEndian.Uint16(d), binary.BigEndian.Uint16(d[2:])
		if qty == 0 || qty > MaxReadBits {
			return ExceptionPDU(req.Function, ExceptionIllegalDataValue)
		}
		start, end, ok := window(len(space), addr, qty)
		if !ok {
			return ExceptionPDU(req.Function, ExceptionIllegalDataAddress)
		}
		packed := PackBits(space[start:end])
		return PDU{Function: req.Function, Data: append([]byte{byte(len(packed))}, packed...)}

	case FcReadHoldingRegisters, FcReadInputRegisters:
		if len(d) != 4 {
			return ExceptionPDU(req.Function, ExceptionIllegalDataValue)
		}
		space := s.holding
		if req.Function == FcReadInputRegisters {
			space = s.input
		}
		addr, qty := binary.BigEndian.Uint16(d), binary.BigEndian.Uint16(d[2:])
		if qty == 0 || qty > MaxReadRegisters {
			return ExceptionPDU(req.Function, ExceptionIllegalDataValue)
		}
		start, end, ok := window(len(space), addr, qty)
		if !ok {
			return ExceptionPDU(req.Function, ExceptionIllegalDataAddress)
		}
		out := []byte{byte(2 * qty)}
		for _, v := range space[start:end] {
			out = binary.BigEndian.AppendUint16(out, v)
		}
		return PDU{Function: req.Function, Data: out}

	case FcWriteSingleCoil:
		if len(d) != 4 {
			return ExceptionPDU(req.Function, ExceptionIllegalDataValue)
		}
		addr, v := binary.BigEndian.Uint16(d), binary.BigEndian.Uint16(d[2:])
		if v != 0 && v != 0xFF00 {
			return ExceptionPDU(req.Function, ExceptionIllegalDataValue)
		}
		if int(addr) >= len(s.coils) {
			return ExceptionPDU(req.Function, ExceptionIllegalDataAddress)
		}
		s.coils[addr] = v == 0xFF00
		return PDU{Function: req.Function, Data: append([]byte(nil), d...)}

	case FcWriteSingleRegister:
		if len(d) != 4 {
			return ExceptionPDU(req.Function, ExceptionIllegalDataValue)
		}
		addr := binary.BigEndian.Uint16(d)
		if int(addr) >= len(s.holding) {
			return ExceptionPDU(req.Function, ExceptionIllegalDataAddress)
		}
		s.holding[addr] = binary.BigEndian.Uint16(d[2:])
		return PDU{Function: req.Function, Data: append([]byte(nil), d...)}

	case FcWriteMultipleCoils:
		if len(d) < 5 {
			return ExceptionPDU(req.Function, ExceptionIllegalDataValue)
		}
		addr, qty, n := binary.BigEndian.Uint16(d), binary.BigEndian.Uint16(d[2:]), int(d[4])
		if qty == 0 || qty > MaxWriteBits || n != (int(qty)+7)/8 || len(d) != 5+n {
			return ExceptionPDU(req.Function, ExceptionIllegalDataValue)
		}
		start, _, ok := window(len(s.coils), addr, qty)
		if !ok {
			return ExceptionPDU(req.Function, ExceptionIllegalDataAddress)
		}
		copy(s.coils[start:], UnpackBits(d[5:], int(qty)))
		return PDU{Function: req.Function, Data: append([]byte(nil), d[:4]...)}

	case FcWriteMultipleRegisters:
		if len(d) < 5 {
			return ExceptionPDU(req.Function, ExceptionIllegalDataValue)
		}
		addr, qty, n := binary.BigEndian.Uint16(d), binary.BigEndian.Uint16(d[2:]), int(d[4])
		if qty == 0 || qty > MaxWriteRegisters || n != 2*int(qty) || len(d) != 5+n {
			return ExceptionPDU(req.Function, ExceptionIllegalDataValue)
		}
		start, _, ok := window(len(s.holding), addr, qty)
		if !ok {
			return ExceptionPDU(req.Function, ExceptionIllegalDataAddress)
		}
		for i := 0; i < int(qty); i++ {
			s.holding[start+i] = binary.BigEndian.Uint16(d[5+2*i:])
		}
		return PDU{Function: req.Function, Data: append([]byte(nil), d[:4]...)}

	case FcMaskWriteRegister:
		if len(d) != 6 {
			return ExceptionPDU(req.Function, ExceptionIllegalDataValue)
		}
		addr := binary.BigEndian.Uint16(d)
		and, or := binary.BigEndian.Uint16(d[2:]), binary.BigEndian.Uint16(d[4:])
		if int(addr) >= len(s.holding) {
			return ExceptionPDU(req.Function, ExceptionIllegalDataAddress)
		}
		s.holding[addr] = (s.holding[addr] & and) | (or &^ and)
		return PDU{Function: req.Function, Data: append([]byte(nil), d...)}
	}
	return ExceptionPDU(req.Function, ExceptionIllegalFunction)
}

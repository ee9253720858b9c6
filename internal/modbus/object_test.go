package modbus

import (
	"bytes"
	"errors"
	"reflect"
	"testing"

	"github.com/tturner/cipstack/internal/cip/protocol"
	"github.com/tturner/cipstack/internal/cip/spec"
)

func encodeReply(t *testing.T, resp *protocol.Response) []byte {
	t.Helper()
	buf, err := protocol.EncodeResponse(resp)
	if err != nil {
		t.Fatalf("EncodeResponse() error = %v", err)
	}
	return buf
}

func TestNewReadRequest_Encode(t *testing.T) {
	req, err := NewReadRequest(spec.ServiceModbusReadHoldingRegisters, 0x0010, 2)
	if err != nil {
		t.Fatalf("NewReadRequest() error = %v", err)
	}
	got, err := req.Encode()
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	want := []byte{0x4E, 0x02, 0x20, 0x44, 0x24, 0x01, 0x10, 0x00, 0x02, 0x00}
	if !bytes.Equal(got, want) {
		t.Errorf("Encode() = % X, want % X", got, want)
	}
}

func TestNewReadRequest_Limits(t *testing.T) {
	tests := []struct {
		name    string
		service protocol.ServiceCode
		qty     uint16
	}{
		{"zero", spec.ServiceModbusReadCoils, 0},
		{"too many bits", spec.ServiceModbusReadCoils, MaxReadBits + 1},
		{"too many registers", spec.ServiceModbusReadInputRegisters, MaxReadRegisters + 1},
		{"not a read", spec.ServiceModbusWriteCoils, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewReadRequest(tt.service, 0, tt.qty); err == nil {
				t.Errorf("NewReadRequest() succeeded")
			}
		})
	}
}

func TestReadReplies_Decode(t *testing.T) {
	req, _ := NewReadRequest(spec.ServiceModbusReadInputRegisters, 0, 2)
	resp, err := req.Response(encodeReply(t, &protocol.Response{
		Service: spec.ServiceModbusReadInputRegisters,
		Status:  protocol.NewStatus(0),
		Data:    []byte{0x34, 0x12, 0x78, 0x56},
	}))
	if err != nil {
		t.Fatalf("Response() error = %v", err)
	}
	if want := []uint16{0x1234, 0x5678}; !reflect.DeepEqual(resp.Value, want) {
		t.Errorf("value = %#v, want %#v", resp.Value, want)
	}

	req, _ = NewReadRequest(spec.ServiceModbusReadCoils, 0, 10)
	resp, err = req.Response(encodeReply(t, &protocol.Response{
		Service: spec.ServiceModbusReadCoils,
		Status:  protocol.NewStatus(0),
		Data:    []byte{0x01, 0x02},
	}))
	if err != nil {
		t.Fatalf("Response() error = %v", err)
	}
	want := []bool{true, false, false, false, false, false, false, false, false, true}
	if !reflect.DeepEqual(resp.Value, want) {
		t.Errorf("value = %v, want %v", resp.Value, want)
	}
}

func TestParseObjectRequest(t *testing.T) {
	coils, _ := NewWriteCoilsRequest(3, []bool{true, false, true})
	regs, _ := NewWriteRegistersRequest(7, []uint16{1, 0xBEEF})
	read, _ := NewReadRequest(spec.ServiceModbusReadDiscreteInputs, 5, 4)

	tests := []struct {
		name string
		req  *protocol.Request
		want ObjectRequest
	}{
		{"write coils", coils, ObjectRequest{Service: spec.ServiceModbusWriteCoils, Address: 3, Quantity: 3, Coils: []bool{true, false, true}}},
		{"write registers", regs, ObjectRequest{Service: spec.ServiceModbusWriteHoldingRegs, Address: 7, Quantity: 2, Registers: []uint16{1, 0xBEEF}}},
		{"read", read, ObjectRequest{Service: spec.ServiceModbusReadDiscreteInputs, Address: 5, Quantity: 4}},
		{"passthrough", NewPassthroughRequest(ReadCoils(1, 2)), ObjectRequest{Service: spec.ServiceModbusPassthrough, PDU: PDU{Function: FcReadCoils, Data: []byte{0x00, 0x01, 0x00, 0x02}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseObjectRequest(tt.req)
			if err != nil {
				t.Fatalf("ParseObjectRequest() error = %v", err)
			}
			if !reflect.DeepEqual(*got, tt.want) {
				t.Errorf("ParseObjectRequest() = %+v, want %+v", *got, tt.want)
			}
		})
	}
}

func TestStore_HandleObject(t *testing.T) {
	store := NewStore(16)
	_ = store.SetHoldingRegister(2, 0x1111)
	_ = store.SetDiscreteInput(1, true)

	write, _ := NewWriteRegistersRequest(3, []uint16{0x2222, 0x3333})
	if resp := store.HandleObject(write); resp.Status.Error {
		t.Fatalf("write status = %+v", resp.Status)
	}

	read, _ := NewReadRequest(spec.ServiceModbusReadHoldingRegisters, 2, 3)
	reply := store.HandleObject(read)
	resp, err := read.Response(encodeReply(t, reply))
	if err != nil {
		t.Fatalf("Response() error = %v", err)
	}
	if want := []uint16{0x1111, 0x2222, 0x3333}; !reflect.DeepEqual(resp.Value, want) {
		t.Errorf("registers = %v, want %v", resp.Value, want)
	}

	inputs, _ := NewReadRequest(spec.ServiceModbusReadDiscreteInputs, 0, 3)
	resp, err = inputs.Response(encodeReply(t, store.HandleObject(inputs)))
	if err != nil {
		t.Fatalf("Response() error = %v", err)
	}
	if want := []bool{false, true, false}; !reflect.DeepEqual(resp.Value, want) {
		t.Errorf("inputs = %v, want %v", resp.Value, want)
	}

	outOfRange, _ := NewReadRequest(spec.ServiceModbusReadHoldingRegisters, 15, 2)
	_, err = outOfRange.Response(encodeReply(t, store.HandleObject(outOfRange)))
	var se *protocol.StatusError
	if !errors.As(err, &se) || se.Code != protocol.StatusInvalidParameter {
		t.Errorf("out of range error = %v, want invalid parameter", err)
	}

	short := protocol.NewRequest(spec.ServiceModbusReadCoils, ObjectPath(), []byte{0x01})
	if got := store.HandleObject(short).Status.Code; got != protocol.StatusNotEnoughData {
		t.Errorf("short request status = 0x%02X, want 0x%02X", got, protocol.StatusNotEnoughData)
	}
}

func TestStore_Passthrough(t *testing.T) {
	store := NewStore(8)
	req := NewPassthroughRequest(WriteMultipleCoils(1, []bool{true, true}))
	resp, err := req.Response(encodeReply(t, store.HandleObject(req)))
	if err != nil {
		t.Fatalf("Response() error = %v", err)
	}
	if pdu := resp.Value.(PDU); pdu.Err() != nil {
		t.Fatalf("write coils reply = %v", pdu.Err())
	}
	if on, _ := store.Coil(2); !on {
		t.Errorf("Coil(2) = false, want true")
	}

	req = NewPassthroughRequest(ReadHoldingRegisters(7, 2))
	resp, err = req.Response(encodeReply(t, store.HandleObject(req)))
	if err != nil {
		t.Fatalf("Response() error = %v", err)
	}
	var exc *Exception
	if err := resp.Value.(PDU).Err(); !errors.As(err, &exc) || exc.Code != ExceptionIllegalDataAddress {
		t.Errorf("read past end = %v, want illegal data address", err)
	}
}

func TestStore_HandlePDU(t *testing.T) {
	store := NewStore(8)
	tests := []struct {
		name string
		req  PDU
		want []byte
	}{
		{"write register", WriteSingleRegister(1, 0x00F0), []byte{0x06, 0x00, 0x01, 0x00, 0xF0}},
		{"mask write", MaskWriteRegister(1, 0x00F2, 0x0025), []byte{0x16, 0x00, 0x01, 0x00, 0xF2, 0x00, 0x25}},
		{"read back", ReadHoldingRegisters(1, 1), []byte{0x03, 0x02, 0x00, 0xF5}},
		{"bad coil value", PDU{Function: FcWriteSingleCoil, Data: []byte{0, 0, 0x12, 0x34}}, []byte{0x85, 0x03}},
		{"unknown function", PDU{Function: 0x2B}, []byte{0xAB, 0x01}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := store.HandlePDU(tt.req).Encode(); !bytes.Equal(got, tt.want) {
				t.Errorf("HandlePDU() = % X, want % X", got, tt.want)
			}
		})
	}
}

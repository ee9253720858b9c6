package protocol

import (
	"bytes"
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/tturner/cipstack/internal/cip/codec"
)

func attributePath(class, instance, attribute uint32) codec.EPath {
	path, err := codec.NewPath().Class(class).Instance(instance).Attribute(attribute).Build()
	if err != nil {
		panic(err)
	}
	return path
}

func TestRequestEncode_GetAttributeSingle(t *testing.T) {
	req := NewRequest(0x0E, attributePath(0x01, 1, 7), nil)
	got, err := req.Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	want := []byte{0x0E, 0x03, 0x20, 0x01, 0x24, 0x01, 0x30, 0x07}
	if !bytes.Equal(got, want) {
		t.Fatalf("Encode = % X, want % X", got, want)
	}
	if req.EncodeSize() != len(want) {
		t.Errorf("EncodeSize = %d, want %d", req.EncodeSize(), len(want))
	}
}

func TestRequestResponse_DecodesUINT(t *testing.T) {
	req := NewRequest(0x0E, attributePath(0x01, 1, 7), nil).WithType(codec.UINT)
	resp, err := req.Response([]byte{0x8E, 0x00, 0x00, 0x00, 0xC7, 0x00})
	if err != nil {
		t.Fatalf("Response: %v", err)
	}
	if resp.Service != 0x0E {
		t.Errorf("Service = 0x%02X, want 0x0E", uint8(resp.Service))
	}
	if resp.Status.Code != 0 || resp.Status.Error {
		t.Errorf("Status = %+v, want success", resp.Status)
	}
	if !bytes.Equal(resp.Data, []byte{0xC7, 0x00}) {
		t.Errorf("Data = % X, want C7 00", resp.Data)
	}
	if resp.Value != uint16(0x00C7) {
		t.Errorf("Value = %#v, want 0x00C7", resp.Value)
	}
}

func TestRequestEncode_PadsOddPath(t *testing.T) {
	req := &Request{Service: 0x4C, RawPath: []byte{0x20, 0x01, 0x24}, Data: []byte{0x01, 0x00}}
	got, err := req.Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	want := []byte{0x4C, 0x02, 0x20, 0x01, 0x24, 0x00, 0x01, 0x00}
	if !bytes.Equal(got, want) {
		t.Fatalf("Encode = % X, want % X", got, want)
	}
}

func TestRequestEncode_Rejects(t *testing.T) {
	if _, err := (&Request{Service: 0x8E}).Encode(); err == nil {
		t.Error("expected error for service with reply bit")
	}
	if _, err := (&Request{Service: 0x0E, RawPath: make([]byte, 512)}).Encode(); err == nil {
		t.Error("expected error for oversized path")
	}
}

func TestRequestResponse_ServiceMismatch(t *testing.T) {
	req := NewRequest(0x0E, attributePath(1, 1, 1), nil)
	reply := []byte{0x90, 0x00, 0x00, 0x00}
	if _, err := req.Response(reply); !errors.Is(err, ErrServiceMismatch) {
		t.Fatalf("Response error = %v, want ErrServiceMismatch", err)
	}
	req.Accept = []ServiceCode{0x10}
	if _, err := req.Response(reply); err != nil {
		t.Fatalf("Response with accepted service: %v", err)
	}
}

func TestRequestResponse_StatusError(t *testing.T) {
	req := NewRequest(0x0E, attributePath(1, 1, 99), nil).WithType(codec.UINT)
	resp, err := req.Response([]byte{0x8E, 0x00, 0x14, 0x00})
	var statusErr *StatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("Response error = %v, want *StatusError", err)
	}
	if statusErr.Code != 0x14 || statusErr.Description != "Attribute not supported" {
		t.Errorf("StatusError = %+v", statusErr)
	}
	if resp == nil || !resp.Status.Error {
		t.Fatalf("response = %+v, want error status", resp)
	}
}

func TestRequestResponse_PartialTransferIsNotAnError(t *testing.T) {
	req := NewRequest(0x52, attributePath(0x6B, 1, 1), nil).WithType(codec.ArrayToEnd(codec.DINT))
	resp, err := req.Response([]byte{0xD2, 0x00, 0x06, 0x00, 0x01, 0x00, 0x00, 0x00})
	if err != nil {
		t.Fatalf("Response: %v", err)
	}
	if want := []any{int32(1)}; !reflect.DeepEqual(resp.Value, want) {
		t.Errorf("Value = %v, want %v", resp.Value, want)
	}
}

func TestRequestResponse_ExtendedStatus(t *testing.T) {
	req := NewRequest(0x54, ConnectionManagerPath(), nil)
	_, err := req.Response([]byte{0xD4, 0x00, 0x01, 0x01, 0x00, 0x01})
	var statusErr *StatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("Response error = %v, want *StatusError", err)
	}
	if !reflect.DeepEqual(statusErr.Extended, []uint16{0x0100}) {
		t.Errorf("Extended = %v, want [0x0100]", statusErr.Extended)
	}
	if !strings.Contains(err.Error(), "duplicate forward open") {
		t.Errorf("Error() = %q, want extended description", err.Error())
	}
}

func TestRequestResponse_ErrorDecoder(t *testing.T) {
	req := NewRequest(0x4C, attributePath(0x6B, 1, 1), nil)
	req.ErrorDecoder = TypeDecoder{Type: codec.UINT}
	_, err := req.Response([]byte{0xCC, 0x00, 0x1F, 0x00, 0x34, 0x12})
	var statusErr *StatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("Response error = %v, want *StatusError", err)
	}
	if statusErr.Diagnostic != uint16(0x1234) {
		t.Errorf("Diagnostic = %#v, want 0x1234", statusErr.Diagnostic)
	}
}

func TestRequestResponse_DecoderFailure(t *testing.T) {
	req := NewRequest(0x0E, attributePath(1, 1, 1), nil).WithType(codec.UDINT)
	if _, err := req.Response([]byte{0x8E, 0x00, 0x00, 0x00, 0x01}); !errors.Is(err, codec.ErrShortBuffer) {
		t.Fatalf("Response error = %v, want ErrShortBuffer", err)
	}
}

func TestParseResponse_Errors(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want error
	}{
		{"too short", []byte{0x8E, 0x00, 0x00}, codec.ErrShortBuffer},
		{"no reply bit", []byte{0x0E, 0x00, 0x00, 0x00}, codec.ErrMalformed},
		{"extended status overrun", []byte{0x8E, 0x00, 0x01, 0x02, 0x00, 0x01}, codec.ErrShortBuffer},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseResponse(tt.data); !errors.Is(err, tt.want) {
				t.Fatalf("ParseResponse error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestEncodeResponse_RoundTrip(t *testing.T) {
	in := &Response{Service: 0x4C, Status: NewStatus(0x01), ExtStatus: []byte{0x07, 0x01}, Data: []byte{0xAA}}
	wire, err := EncodeResponse(in)
	if err != nil {
		t.Fatalf("EncodeResponse: %v", err)
	}
	if want := []byte{0xCC, 0x00, 0x01, 0x01, 0x07, 0x01, 0xAA}; !bytes.Equal(wire, want) {
		t.Fatalf("EncodeResponse = % X, want % X", wire, want)
	}
	out, err := ParseResponse(wire)
	if err != nil {
		t.Fatalf("ParseResponse: %v", err)
	}
	if !reflect.DeepEqual(out, in) {
		t.Errorf("ParseResponse = %+v, want %+v", out, in)
	}
}

func TestParseRequest(t *testing.T) {
	req, err := ParseRequest([]byte{0x10, 0x03, 0x20, 0x04, 0x24, 0x64, 0x30, 0x03, 0x01, 0x02})
	if err != nil {
		t.Fatalf("ParseRequest: %v", err)
	}
	if req.Service != 0x10 {
		t.Errorf("Service = 0x%02X, want 0x10", uint8(req.Service))
	}
	if want := attributePath(0x04, 0x64, 0x03); !reflect.DeepEqual(req.Path, want) {
		t.Errorf("Path = %v, want %v", req.Path, want)
	}
	if !bytes.Equal(req.Data, []byte{0x01, 0x02}) {
		t.Errorf("Data = % X, want 01 02", req.Data)
	}

	if _, err := ParseRequest([]byte{0x0E, 0x04, 0x20}); err == nil {
		t.Error("expected error for truncated path")
	}
	raw, err := ParseRequest([]byte{0x0E, 0x01, 0xE0, 0x00})
	if err != nil {
		t.Fatalf("ParseRequest with undecodable path: %v", err)
	}
	if !bytes.Equal(raw.RawPath, []byte{0xE0, 0x00}) {
		t.Errorf("RawPath = % X, want E0 00", raw.RawPath)
	}
}

func TestStatusDescription(t *testing.T) {
	tests := []struct {
		code uint8
		want string
	}{
		{0x00, "Success"},
		{0x05, "Path destination unknown"},
		{0x2A, "Group 2 only server general failure"},
		{0x40, "Reserved"},
		{0xD0, "Object class specific error (0xD0)"},
	}
	for _, tt := range tests {
		if got := StatusDescription(tt.code); got != tt.want {
			t.Errorf("StatusDescription(0x%02X) = %q, want %q", tt.code, got, tt.want)
		}
	}
	if NewStatus(StatusPartialTransfer).Error {
		t.Error("partial transfer reported as error")
	}
}

package connection

import (
	"bytes"
	"errors"
	"reflect"
	"testing"

	"github.com/tturner/cipstack/internal/cip/codec"
	"github.com/tturner/cipstack/internal/cip/protocol"
)

func backplanePath() codec.EPath {
	return codec.NewEPath(true,
		codec.Port{Port: 1, Link: []byte{0}},
		codec.MustLogical(codec.ClassID, 0x02),
		codec.MustLogical(codec.InstanceID, 1))
}

func sampleForwardOpen(large bool) *ForwardOpen {
	return &ForwardOpen{
		PriorityTick:      0x0A,
		TimeoutTicks:      0x0E,
		OtoTID:            1,
		TtoOID:            2,
		Serial:            3,
		VendorID:          0x1337,
		OriginatorSerial:  42,
		TimeoutMultiplier: 1,
		OtoTRPI:           2_000_000,
		OtoTParams:        0x43F8,
		TtoORPI:           2_000_000,
		TtoOParams:        0x43F8,
		TransportTrigger:  TriggerClass3Cyclic,
		Path:              backplanePath(),
		Large:             large,
	}
}

func TestForwardOpen_Encode(t *testing.T) {
	got, err := sampleForwardOpen(false).Encode()
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	want := []byte{
		0x0A, 0x0E,
		0x01, 0x00, 0x00, 0x00,
		0x02, 0x00, 0x00, 0x00,
		0x03, 0x00,
		0x37, 0x13,
		0x2A, 0x00, 0x00, 0x00,
		0x01, 0x00, 0x00, 0x00,
		0x80, 0x84, 0x1E, 0x00, 0xF8, 0x43,
		0x80, 0x84, 0x1E, 0x00, 0xF8, 0x43,
		0xA3,
		0x03, 0x01, 0x00, 0x20, 0x02, 0x24, 0x01,
	}
	if !bytes.Equal(got, want) {
		t.Errorf("Encode() = % X, want % X", got, want)
	}
}

func TestForwardOpen_LargeParams(t *testing.T) {
	f := sampleForwardOpen(true)
	f.OtoTParams = 0x42000FA0
	got, err := f.Encode()
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	if len(got) != 46 {
		t.Fatalf("len(Encode()) = %d, want 46", len(got))
	}
	if p := codec.Uint32(got[26:]); p != 0x42000FA0 {
		t.Errorf("O->T parameters = 0x%08X, want 0x42000FA0", p)
	}
	if f.Service() != ServiceLargeForwardOpen {
		t.Errorf("Service() = 0x%02X, want 0x5B", uint8(f.Service()))
	}

	f.Large = false
	if _, err := f.Encode(); err == nil {
		t.Errorf("Encode() of 32-bit parameters without Large succeeded")
	}
}

func TestForwardOpen_RoundTrip(t *testing.T) {
	for _, large := range []bool{false, true} {
		f := sampleForwardOpen(large)
		data, err := f.Encode()
		if err != nil {
			t.Fatalf("Encode() error = %v", err)
		}
		got, err := ParseForwardOpen(data, large)
		if err != nil {
			t.Fatalf("ParseForwardOpen() error = %v", err)
		}
		if !reflect.DeepEqual(got, f) {
			t.Errorf("ParseForwardOpen() = %+v, want %+v", got, f)
		}
	}
}

func TestParseForwardOpen_Truncated(t *testing.T) {
	data, err := sampleForwardOpen(false).Encode()
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	if _, err := ParseForwardOpen(data[:len(data)-2], false); !errors.Is(err, codec.ErrShortBuffer) {
		t.Errorf("ParseForwardOpen() error = %v, want ErrShortBuffer", err)
	}
}

func TestForwardClose_EncodeAndParse(t *testing.T) {
	f := &ForwardClose{
		PriorityTick:     0x0A,
		TimeoutTicks:     0x0E,
		Serial:           3,
		VendorID:         0x1337,
		OriginatorSerial: 42,
		Path:             backplanePath(),
	}
	got, err := f.Encode()
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	want := []byte{
		0x0A, 0x0E, 0x03, 0x00, 0x37, 0x13, 0x2A, 0x00, 0x00, 0x00,
		0x03, 0x00, 0x01, 0x00, 0x20, 0x02, 0x24, 0x01,
	}
	if !bytes.Equal(got, want) {
		t.Fatalf("Encode() = % X, want % X", got, want)
	}
	parsed, err := ParseForwardClose(got)
	if err != nil {
		t.Fatalf("ParseForwardClose() error = %v", err)
	}
	if !reflect.DeepEqual(parsed, f) {
		t.Errorf("ParseForwardClose() = %+v, want %+v", parsed, f)
	}
}

func TestForwardOpenReply_Decode(t *testing.T) {
	data := []byte{
		0x44, 0x33, 0x22, 0x11, // O->T id chosen by the target
		0x02, 0x00, 0x00, 0x00,
		0x03, 0x00, 0x37, 0x13, 0x2A, 0x00, 0x00, 0x00,
		0x10, 0x27, 0x00, 0x00, // 10000 us
		0x20, 0x4E, 0x00, 0x00, // 20000 us
		0x01, 0x00, // one word of application reply
		0xAB, 0xCD,
	}
	v, err := codec.DecodeBytes(data, ForwardOpenReplyType)
	if err != nil {
		t.Fatalf("DecodeBytes() error = %v", err)
	}
	want := &ForwardOpenReply{
		OtoTID:           0x11223344,
		TtoOID:           2,
		Serial:           3,
		VendorID:         0x1337,
		OriginatorSerial: 42,
		OtoTAPI:          10000,
		TtoOAPI:          20000,
		AppReply:         []byte{0xAB, 0xCD},
	}
	if !reflect.DeepEqual(v, want) {
		t.Fatalf("DecodeBytes() = %+v, want %+v", v, want)
	}

	enc, err := codec.Encode(ForwardOpenReplyType, want)
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	if !bytes.Equal(enc, data) {
		t.Errorf("Encode() = % X, want % X", enc, data)
	}
}

func TestForwardOpen_FailureDiagnostic(t *testing.T) {
	req, err := sampleForwardOpen(false).Request()
	if err != nil {
		t.Fatalf("Request() error = %v", err)
	}
	reply := []byte{
		0xD4, 0x00, 0x01, 0x01, 0x00, 0x01, // connection failure, duplicate forward open
		0x03, 0x00, 0x37, 0x13, 0x2A, 0x00, 0x00, 0x00,
		0x00, 0x00,
	}
	_, err = req.Response(reply)
	var se *protocol.StatusError
	if !errors.As(err, &se) {
		t.Fatalf("Response() error = %v, want *StatusError", err)
	}
	if se.Code != 0x01 || len(se.Extended) != 1 || se.Extended[0] != 0x0100 {
		t.Errorf("StatusError = %+v", se)
	}
	want := FailureReply{Serial: 3, VendorID: 0x1337, OriginatorSerial: 42, HasRemainingPath: true}
	if se.Diagnostic != want {
		t.Errorf("Diagnostic = %+v, want %+v", se.Diagnostic, want)
	}
}

func TestForwardCloseReply_Decode(t *testing.T) {
	data := []byte{0x03, 0x00, 0x37, 0x13, 0x2A, 0x00, 0x00, 0x00, 0x00, 0x00}
	v, err := codec.DecodeBytes(data, ForwardCloseReplyType)
	if err != nil {
		t.Fatalf("DecodeBytes() error = %v", err)
	}
	want := &ForwardCloseReply{Serial: 3, VendorID: 0x1337, OriginatorSerial: 42, AppReply: []byte{}}
	if !reflect.DeepEqual(v, want) {
		t.Errorf("DecodeBytes() = %+v, want %+v", v, want)
	}
}

func TestNetworkParams(t *testing.T) {
	tests := []struct {
		name     string
		size     uint16
		variable bool
		priority uint8
		connType uint8
		large    bool
		want     uint32
		wantErr  bool
	}{
		{"explicit 504", 504, true, PriorityLow, TypePointToPoint, false, 0x43F8, false},
		{"fixed high", 32, false, PriorityHigh, TypePointToPoint, false, 0x4420, false},
		{"large 4000", 4000, true, PriorityLow, TypePointToPoint, true, 0x42000FA0, false},
		{"too big", 512, true, PriorityLow, TypePointToPoint, false, 0, true},
		{"zero", 0, true, PriorityLow, TypePointToPoint, false, 0, true},
		{"bad priority", 8, true, 4, TypePointToPoint, false, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NetworkParams(tt.size, tt.variable, tt.priority, tt.connType, tt.large)
			if (err != nil) != tt.wantErr {
				t.Fatalf("NetworkParams() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("NetworkParams() = 0x%X, want 0x%X", got, tt.want)
			}
		})
	}
}

package pccc

import (
	"bytes"
	"errors"
	"reflect"
	"testing"

	"github.com/tturner/cipstack/internal/cip/codec"
	"github.com/tturner/cipstack/internal/cip/protocol"
)

func mustAddress(t *testing.T, s string) Address {
	t.Helper()
	a, err := ParseAddress(s)
	if err != nil {
		t.Fatalf("ParseAddress(%q) error = %v", s, err)
	}
	return a
}

func TestMessage_Encode(t *testing.T) {
	tests := []struct {
		name string
		msg  Message
		want []byte
	}{
		{
			name: "request",
			msg:  Message{Command: CmdExtended, TNS: 0x1234, Function: FncEcho, Data: []byte{0xAA}},
			want: []byte{0x0F, 0x00, 0x34, 0x12, 0x06, 0xAA},
		},
		{
			name: "reply",
			msg:  Message{Command: CmdExtended | ReplyFlag, TNS: 0x1234, Data: []byte{0xAA}},
			want: []byte{0x4F, 0x00, 0x34, 0x12, 0xAA},
		},
		{
			name: "extended status reply",
			msg:  Message{Command: CmdExtended | ReplyFlag, Status: StatusExtended, ExtStatus: ExtNoSuchFile, TNS: 1},
			want: []byte{0x4F, 0xF0, 0x01, 0x00, 0x0A},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.msg.Encode()
			if !bytes.Equal(got, tt.want) {
				t.Fatalf("Encode() = % X, want % X", got, tt.want)
			}
			back, err := ParseMessage(got)
			if err != nil {
				t.Fatalf("ParseMessage() error = %v", err)
			}
			if !reflect.DeepEqual(back, tt.msg) {
				t.Errorf("ParseMessage() = %+v, want %+v", back, tt.msg)
			}
		})
	}
}

func TestParseMessage_Short(t *testing.T) {
	for _, in := range [][]byte{nil, {0x0F, 0x00, 0x01}, {0x0F, 0x00, 0x01, 0x00}, {0x4F, 0xF0, 0x01, 0x00}} {
		if _, err := ParseMessage(in); !errors.Is(err, codec.ErrShortBuffer) {
			t.Errorf("ParseMessage(% X) error = %v, want ErrShortBuffer", in, err)
		}
	}
}

func TestMessage_Err(t *testing.T) {
	ok := Message{Command: CmdExtended | ReplyFlag}
	if err := ok.Err(); err != nil {
		t.Errorf("Err() = %v, want nil", err)
	}
	bad := Message{Command: CmdExtended | ReplyFlag, Status: StatusExtended, ExtStatus: ExtIllegalAddress}
	var perr *Error
	if !errors.As(bad.Err(), &perr) || perr.ExtStatus != ExtIllegalAddress {
		t.Errorf("Err() = %v, want ext status 0x%02X", bad.Err(), ExtIllegalAddress)
	}
}

func TestNewExecuteRequest_Encode(t *testing.T) {
	req, err := NewExecuteRequest(Requester{Vendor: 0x1234, Serial: 0xAABBCCDD}, TypedRead(1, mustAddress(t, "N7:0")))
	if err != nil {
		t.Fatalf("NewExecuteRequest() error = %v", err)
	}
	got, err := req.Encode()
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	want := []byte{
		0x4B, 0x02, 0x20, 0x67, 0x24, 0x01,
		0x07, 0x34, 0x12, 0xDD, 0xCC, 0xBB, 0xAA,
		0x0F, 0x00, 0x01, 0x00, 0xA2,
		0x02, 0x07, 0x89, 0x00, 0x00,
	}
	if !bytes.Equal(got, want) {
		t.Errorf("Encode() = % X, want % X", got, want)
	}
}

func TestParseExecute_Requester(t *testing.T) {
	in := Execute{
		Requester: Requester{Vendor: 1, Serial: 2, Extra: []byte{0xEE, 0xFF}},
		Message:   Message{Command: CmdExtended, TNS: 9, Function: FncEcho},
	}
	data, err := in.Encode()
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	if data[0] != 9 {
		t.Errorf("requester length = %d, want 9", data[0])
	}
	got, err := ParseExecute(data)
	if err != nil {
		t.Fatalf("ParseExecute() error = %v", err)
	}
	if !reflect.DeepEqual(got, in) {
		t.Errorf("ParseExecute() = %+v, want %+v", got, in)
	}

	if _, err := ParseExecute([]byte{0x06, 0, 0, 0, 0, 0, 0x0F, 0, 0, 0, 6}); !errors.Is(err, codec.ErrMalformed) {
		t.Errorf("ParseExecute(length 6) error = %v, want ErrMalformed", err)
	}
	if _, err := ParseExecute([]byte{0x07, 0, 0}); !errors.Is(err, codec.ErrShortBuffer) {
		t.Errorf("ParseExecute(short) error = %v, want ErrShortBuffer", err)
	}
}

func TestTypedCommand_WideFields(t *testing.T) {
	cmd := TypedCommand{Size: 2, FileNumber: 300, FileType: FileTypeInteger, Element: 1000}
	got := cmd.Encode()
	want := []byte{0x02, 0xFF, 0x2C, 0x01, 0x89, 0xFF, 0xE8, 0x03, 0x00}
	if !bytes.Equal(got, want) {
		t.Fatalf("Encode() = % X, want % X", got, want)
	}
	back, err := ParseTypedCommand(got)
	if err != nil {
		t.Fatalf("ParseTypedCommand() error = %v", err)
	}
	if !reflect.DeepEqual(back, cmd) {
		t.Errorf("ParseTypedCommand() = %+v, want %+v", back, cmd)
	}
	if _, err := ParseTypedCommand(got[:3]); !errors.Is(err, codec.ErrShortBuffer) {
		t.Errorf("ParseTypedCommand(short) error = %v, want ErrShortBuffer", err)
	}
}

func TestTypedWrite(t *testing.T) {
	tests := []struct {
		addr  string
		value any
		data  []byte
	}{
		{"N7:1", int16(-2), []byte{0x02, 0x07, 0x89, 0x01, 0x00, 0xFE, 0xFF}},
		{"F8:0", float32(1.5), []byte{0x04, 0x08, 0x8A, 0x00, 0x00, 0x00, 0x00, 0xC0, 0x3F}},
		{"T4:1.PRE", int16(100), []byte{0x02, 0x04, 0x86, 0x01, 0x01, 0x64, 0x00}},
	}
	for _, tt := range tests {
		t.Run(tt.addr, func(t *testing.T) {
			msg, err := TypedWrite(5, mustAddress(t, tt.addr), tt.value)
			if err != nil {
				t.Fatalf("TypedWrite() error = %v", err)
			}
			if msg.Function != FncTypedWrite || msg.TNS != 5 {
				t.Errorf("TypedWrite() = %+v, want function 0xAA tns 5", msg)
			}
			if !bytes.Equal(msg.Data, tt.data) {
				t.Errorf("Data = % X, want % X", msg.Data, tt.data)
			}
		})
	}

	if _, err := TypedWrite(1, mustAddress(t, "B3:0/2"), true); err == nil {
		t.Error("TypedWrite(bit) error = nil, want error")
	}
	if _, err := TypedWrite(1, mustAddress(t, "N7:0"), "x"); !errors.Is(err, codec.ErrInvalidValue) {
		t.Errorf("TypedWrite(string to N) error = %v, want ErrInvalidValue", err)
	}
}

func TestDecodeValue(t *testing.T) {
	str := make([]byte, 84)
	str[0] = 3
	copy(str[2:], []byte{'B', 'A', 0, 'C'})
	tests := []struct {
		addr string
		data []byte
		want any
	}{
		{"N7:0", []byte{0x39, 0x30}, int16(12345)},
		{"L9:0", []byte{0x01, 0x00, 0x01, 0x00}, int32(65537)},
		{"F8:0", []byte{0x00, 0x00, 0xC0, 0x3F}, float32(1.5)},
		{"B3:0/9", []byte{0x00, 0x02}, true},
		{"B3:0/1", []byte{0x00, 0x02}, false},
		{"T4:0", []byte{0x00, 0x20, 0x0A, 0x00, 0x05, 0x00}, []any{int16(0x2000), int16(10), int16(5)}},
		{"ST9:0", str, "ABC"},
	}
	for _, tt := range tests {
		t.Run(tt.addr, func(t *testing.T) {
			got, err := DecodeValue(mustAddress(t, tt.addr), tt.data)
			if err != nil {
				t.Fatalf("DecodeValue() error = %v", err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("DecodeValue() = %#v, want %#v", got, tt.want)
			}
		})
	}

	if _, err := DecodeValue(mustAddress(t, "N7:0"), []byte{1, 2, 3}); !errors.Is(err, codec.ErrMalformed) {
		t.Errorf("DecodeValue(trailing) error = %v, want ErrMalformed", err)
	}
}

func TestExecute_ReplyDecode(t *testing.T) {
	req, err := NewExecuteRequest(Requester{Vendor: 1, Serial: 2}, TypedRead(7, mustAddress(t, "N7:0")))
	if err != nil {
		t.Fatalf("NewExecuteRequest() error = %v", err)
	}
	body, _ := Execute{
		Requester: Requester{Vendor: 1, Serial: 2},
		Message:   Message{Command: CmdExtended | ReplyFlag, TNS: 7, Data: []byte{0x2A, 0x00}},
	}.Encode()
	buf, err := protocol.EncodeResponse(&protocol.Response{
		Service: req.Service,
		Status:  protocol.NewStatus(protocol.StatusSuccess),
		Data:    body,
	})
	if err != nil {
		t.Fatalf("EncodeResponse() error = %v", err)
	}
	resp, err := req.Response(buf)
	if err != nil {
		t.Fatalf("Response() error = %v", err)
	}
	exec, ok := resp.Value.(Execute)
	if !ok {
		t.Fatalf("Value = %T, want Execute", resp.Value)
	}
	if exec.Message.TNS != 7 || !bytes.Equal(exec.Message.Data, []byte{0x2A, 0x00}) {
		t.Errorf("Message = %+v, want tns 7 data 2A 00", exec.Message)
	}
}

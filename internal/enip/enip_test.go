package enip

import (
	"bytes"
	"errors"
	"testing"

	"github.com/tturner/cipstack/internal/cip/codec"
)

func TestEncapsulation_EncodeDecode(t *testing.T) {
	e := Encapsulation{
		Command:       CommandRegisterSession,
		SessionID:     0x12345678,
		SenderContext: [8]byte{0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08},
		Data:          RegisterSessionData(),
	}
	frame := e.Encode()
	want := []byte{
		0x65, 0x00, 0x04, 0x00,
		0x78, 0x56, 0x34, 0x12,
		0x00, 0x00, 0x00, 0x00,
		0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08,
		0x00, 0x00, 0x00, 0x00,
		0x01, 0x00, 0x00, 0x00,
	}
	if !bytes.Equal(frame, want) {
		t.Fatalf("Encode() = % X, want % X", frame, want)
	}

	got, err := Decode(frame)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if got.Command != e.Command || got.SessionID != e.SessionID || got.SenderContext != e.SenderContext {
		t.Errorf("Decode() = %+v, want %+v", got, e)
	}
	if !bytes.Equal(got.Data, e.Data) {
		t.Errorf("data = % X, want % X", got.Data, e.Data)
	}
}

func TestDecode_LengthErrors(t *testing.T) {
	frame := Encapsulation{Command: CommandNOP, Data: []byte{1, 2}}.Encode()
	tests := []struct {
		name  string
		frame []byte
		want  error
	}{
		{"too short", frame[:10], codec.ErrShortBuffer},
		{"truncated data", frame[:len(frame)-1], codec.ErrShortBuffer},
		{"trailing bytes", append(append([]byte(nil), frame...), 0xFF), codec.ErrMalformed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Decode(tt.frame); !errors.Is(err, tt.want) {
				t.Errorf("Decode() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestReadFrame(t *testing.T) {
	first := Encapsulation{Command: CommandNOP, Data: []byte{0xAA}}.Encode()
	second := Encapsulation{Command: CommandListIdentity}.Encode()
	r := bytes.NewReader(append(append([]byte(nil), first...), second...))

	got, err := ReadFrame(r)
	if err != nil || !bytes.Equal(got, first) {
		t.Fatalf("ReadFrame() = % X, %v", got, err)
	}
	got, err = ReadFrame(r)
	if err != nil || !bytes.Equal(got, second) {
		t.Fatalf("ReadFrame() = % X, %v", got, err)
	}
	if _, err := ReadFrame(r); err == nil {
		t.Errorf("ReadFrame() at EOF succeeded")
	}
}

func TestSession_WrapUnconnected(t *testing.T) {
	s := &Session{Handle: 0x01020304}
	msg := []byte{0x0E, 0x03, 0x20, 0x01, 0x24, 0x01, 0x30, 0x07}
	frame := s.Wrap(msg, Route{Context: 0x1122334455667788})

	e, err := Decode(frame)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if e.Command != CommandSendRRData || e.SessionID != 0x01020304 {
		t.Errorf("header = %+v", e)
	}
	wantData := append([]byte{
		0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
		0x02, 0x00,
		0x00, 0x00, 0x00, 0x00,
		0xB2, 0x00, 0x08, 0x00,
	}, msg...)
	if !bytes.Equal(e.Data, wantData) {
		t.Errorf("data = % X, want % X", e.Data, wantData)
	}

	got, route, err := Unwrap(frame)
	if err != nil {
		t.Fatalf("Unwrap() error = %v", err)
	}
	if !bytes.Equal(got, msg) || route.Connected || route.Context != 0x1122334455667788 {
		t.Errorf("Unwrap() = % X, %+v", got, route)
	}
}

func TestSession_WrapConnected(t *testing.T) {
	s := &Session{Handle: 7}
	msg := []byte{0x01, 0x00, 0x0E, 0x03, 0x20, 0x01, 0x24, 0x01, 0x30, 0x07}
	frame := s.Wrap(msg, Route{Connected: true, ConnectionID: 0xA0000001})

	got, route, err := Unwrap(frame)
	if err != nil {
		t.Fatalf("Unwrap() error = %v", err)
	}
	if !route.Connected || route.ConnectionID != 0xA0000001 {
		t.Errorf("route = %+v", route)
	}
	if !bytes.Equal(got, msg) {
		t.Errorf("Unwrap() = % X, want % X", got, msg)
	}
}

func TestUnwrap_Errors(t *testing.T) {
	bad := Encapsulation{Command: CommandSendRRData, Status: 0x0064, Data: make([]byte, 6)}.Encode()
	if _, _, err := Unwrap(bad); !errors.Is(err, ErrEncapStatus) {
		t.Errorf("Unwrap(status) error = %v, want ErrEncapStatus", err)
	}

	noItem := Encapsulation{
		Command: CommandSendRRData,
		Data:    append(make([]byte, 6), EncodeCPF(Item{Type: ItemNullAddress})...),
	}.Encode()
	if _, _, err := Unwrap(noItem); !errors.Is(err, codec.ErrMalformed) {
		t.Errorf("Unwrap(no data item) error = %v, want ErrMalformed", err)
	}

	other := Encapsulation{Command: CommandListIdentity}.Encode()
	if _, _, err := Unwrap(other); err == nil {
		t.Errorf("Unwrap(ListIdentity) succeeded")
	}
}

func TestDecodeCPF_Errors(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"item header cut", []byte{0x01, 0x00, 0xB2}},
		{"item data cut", []byte{0x01, 0x00, 0xB2, 0x00, 0x04, 0x00, 0x01}},
		{"trailing", []byte{0x00, 0x00, 0xFF}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := DecodeCPF(tt.data); err == nil {
				t.Errorf("DecodeCPF(% X) succeeded", tt.data)
			}
		})
	}
}

func TestContextToken_RoundTrip(t *testing.T) {
	for _, token := range []uint64{0, 1, 0xFFFFFFFF, 0x0102030405060708, ^uint64(0)} {
		if got := ContextToken(ContextBytes(token)); got != token {
			t.Errorf("ContextToken(ContextBytes(0x%X)) = 0x%X", token, got)
		}
	}
}

func TestParseRegisterSession(t *testing.T) {
	reply := Encapsulation{Command: CommandRegisterSession, SessionID: 0x55, Data: RegisterSessionData()}.Encode()
	handle, err := ParseRegisterSession(reply)
	if err != nil || handle != 0x55 {
		t.Fatalf("ParseRegisterSession() = 0x%X, %v", handle, err)
	}
	refused := Encapsulation{Command: CommandRegisterSession, Status: 0x0069}.Encode()
	if _, err := ParseRegisterSession(refused); !errors.Is(err, ErrEncapStatus) {
		t.Errorf("ParseRegisterSession() error = %v, want ErrEncapStatus", err)
	}
}

func TestSession_Submit(t *testing.T) {
	var buf bytes.Buffer
	s := &Session{Handle: 1, W: &buf}
	if err := s.Submit([]byte{0x01}, Route{}); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if buf.Len() != HeaderSize+6+2+4+4+1 {
		t.Errorf("wrote %d bytes", buf.Len())
	}
	if err := (&Session{}).Submit([]byte{0x01}, Route{}); err == nil {
		t.Errorf("Submit() without writer succeeded")
	}
}

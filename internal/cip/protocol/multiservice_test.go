package protocol

import (
	"bytes"
	"errors"
	"testing"

	"github.com/tturner/cipstack/internal/cip/codec"
)

func threeReads() []*Request {
	return []*Request{
		NewRequest(0x0E, attributePath(0x01, 1, 1), nil).WithType(codec.UINT),
		NewRequest(0x0E, attributePath(0x01, 1, 2), nil).WithType(codec.UINT),
		NewRequest(0x0E, attributePath(0x01, 1, 3), nil).WithType(codec.UINT),
	}
}

func TestMultiService_Encode(t *testing.T) {
	req, err := NewMultiServiceRequest(MessageRouterPath(), threeReads()...)
	if err != nil {
		t.Fatalf("NewMultiServiceRequest: %v", err)
	}
	got, err := req.Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	want := []byte{
		0x0A, 0x02, 0x20, 0x02, 0x24, 0x01,
		0x03, 0x00, 0x08, 0x00, 0x10, 0x00, 0x18, 0x00,
		0x0E, 0x03, 0x20, 0x01, 0x24, 0x01, 0x30, 0x01,
		0x0E, 0x03, 0x20, 0x01, 0x24, 0x01, 0x30, 0x02,
		0x0E, 0x03, 0x20, 0x01, 0x24, 0x01, 0x30, 0x03,
	}
	if !bytes.Equal(got, want) {
		t.Fatalf("Encode =\n% X\nwant\n% X", got, want)
	}
}

func multiReply(status uint8, count uint16, third []byte) []byte {
	reply := []byte{0x8A, 0x00, status, 0x00}
	reply = codec.AppendUint16(reply, count)
	reply = append(reply, 0x08, 0x00, 0x0E, 0x00, 0x14, 0x00)
	reply = append(reply, 0x8E, 0x00, 0x00, 0x00, 0x01, 0x00)
	reply = append(reply, 0x8E, 0x00, 0x00, 0x00, 0x02, 0x00)
	return append(reply, third...)
}

func TestMultiService_DecodesEachReply(t *testing.T) {
	req, _ := NewMultiServiceRequest(MessageRouterPath(), threeReads()...)
	resp, err := req.Response(multiReply(0x00, 3, []byte{0x8E, 0x00, 0x00, 0x00, 0x03, 0x00}))
	if err != nil {
		t.Fatalf("Response: %v", err)
	}
	replies, ok := Replies(resp)
	if !ok || len(replies) != 3 {
		t.Fatalf("Replies = %v, %t", replies, ok)
	}
	for i, r := range replies {
		if r.Value != uint16(i+1) {
			t.Errorf("reply %d value = %#v, want %d", i, r.Value, i+1)
		}
	}
}

func TestMultiService_ReplyCountMismatch(t *testing.T) {
	req, _ := NewMultiServiceRequest(MessageRouterPath(), threeReads()...)
	_, err := req.Response(multiReply(0x00, 2, []byte{0x8E, 0x00, 0x00, 0x00, 0x03, 0x00}))
	if !errors.Is(err, ErrReplyCount) {
		t.Fatalf("Response error = %v, want ErrReplyCount", err)
	}
}

func TestMultiService_EmbeddedServiceError(t *testing.T) {
	req, _ := NewMultiServiceRequest(MessageRouterPath(), threeReads()...)
	resp, err := req.Response(multiReply(StatusEmbeddedServiceError, 3, []byte{0x8E, 0x00, 0x05, 0x00}))
	var statusErr *StatusError
	if !errors.As(err, &statusErr) || statusErr.Code != StatusEmbeddedServiceError {
		t.Fatalf("Response error = %v, want embedded service error", err)
	}
	replies, ok := Replies(resp)
	if !ok || len(replies) != 3 {
		t.Fatalf("Replies = %v, %t", replies, ok)
	}
	if replies[0].Err() != nil || replies[1].Err() != nil {
		t.Errorf("first replies failed: %v, %v", replies[0].Err(), replies[1].Err())
	}
	if replies[2].Err() == nil || replies[2].Status.Code != StatusPathDestUnknown {
		t.Errorf("third reply status = %+v, want path destination unknown", replies[2].Status)
	}
}

func TestMultiService_MalformedSubReply(t *testing.T) {
	req, _ := NewMultiServiceRequest(MessageRouterPath(), threeReads()...)
	_, err := req.Response(multiReply(0x00, 3, []byte{0x8F, 0x00, 0x00, 0x00}))
	if !errors.Is(err, ErrServiceMismatch) {
		t.Fatalf("Response error = %v, want ErrServiceMismatch", err)
	}

	bad := multiReply(0x00, 3, []byte{0x8E, 0x00, 0x00, 0x00})
	bad[8] = 0x30 // second offset beyond the third
	if _, err := req.Response(bad); !errors.Is(err, codec.ErrMalformed) {
		t.Fatalf("Response error = %v, want ErrMalformed", err)
	}
}

func TestMultiService_RequiresRequests(t *testing.T) {
	if _, err := NewMultiServiceRequest(MessageRouterPath()); err == nil {
		t.Fatal("expected error for empty packet")
	}
}

func TestSplitMultiServiceRequest(t *testing.T) {
	req, _ := NewMultiServiceRequest(MessageRouterPath(), threeReads()...)
	parts, err := SplitMultiServiceRequest(req.Data)
	if err != nil {
		t.Fatalf("SplitMultiServiceRequest: %v", err)
	}
	if len(parts) != 3 {
		t.Fatalf("parts = %d, want 3", len(parts))
	}
	for i, part := range parts {
		embedded, err := ParseRequest(part)
		if err != nil {
			t.Fatalf("ParseRequest(part %d): %v", i, err)
		}
		if embedded.Service != 0x0E {
			t.Errorf("part %d service = 0x%02X, want 0x0E", i, uint8(embedded.Service))
		}
	}
	if _, err := SplitMultiServiceRequest([]byte{0x02, 0x00, 0x06}); !errors.Is(err, codec.ErrShortBuffer) {
		t.Errorf("SplitMultiServiceRequest(short) error = %v, want ErrShortBuffer", err)
	}
}

func TestJoinMultiServiceReply(t *testing.T) {
	replies := [][]byte{
		{0x8E, 0x00, 0x00, 0x00, 0x01, 0x00},
		{0x8E, 0x00, 0x00, 0x00, 0x02, 0x00},
		{0x8E, 0x00, 0x00, 0x00, 0x03, 0x00},
	}
	data, err := JoinMultiServiceReply(replies)
	if err != nil {
		t.Fatalf("JoinMultiServiceReply: %v", err)
	}
	want := multiReply(0x00, 3, replies[2])[4:]
	if !bytes.Equal(data, want) {
		t.Fatalf("JoinMultiServiceReply =\n% X\nwant\n% X", data, want)
	}
}

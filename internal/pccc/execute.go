package pccc

import (
	"fmt"

	"github.com/tturner/cipstack/internal/cip/codec"
	"github.com/tturner/cipstack/internal/cip/protocol"
	"github.com/tturner/cipstack/internal/cip/spec"
)

// ObjectPath addresses instance 1 of the PCCC object.
func ObjectPath() codec.EPath {
	return codec.NewEPath(true,
		codec.MustLogical(codec.ClassID, spec.ClassPCCC),
		codec.MustLogical(codec.InstanceID, 1))
}

// requesterIDSize is the length byte of a requester ID without vendor
// specific trailing bytes.
const requesterIDSize = 7

// Requester identifies the originator of an Execute PCCC request. The target
// echoes it at the front of the reply.
type Requester struct {
	Vendor uint16
	Serial uint32
	Extra  []byte
}

// requesterLayout is length, vendor ID, serial number and length-7 vendor
// specific bytes.
var requesterLayout = codec.Struct{
	Members: []codec.DataType{codec.USINT, codec.UINT, codec.UDINT, codec.ArrayOf(codec.BYTE, 0)},
	Hook: func(values []any, next codec.DataType) codec.DataType {
		if len(values) != 3 {
			return nil
		}
		n := int(values[0].(uint8)) - requesterIDSize
		if n < 0 {
			n = 0
		}
		return codec.ArrayOf(codec.BYTE, n)
	},
}

func (r Requester) encode() ([]byte, error) {
	if len(r.Extra) > 0xFF-requesterIDSize {
		return nil, fmt.Errorf("%w: %d vendor specific requester bytes", codec.ErrInvalidValue, len(r.Extra))
	}
	return codec.Encode(requesterLayout, []any{uint8(requesterIDSize + len(r.Extra)), r.Vendor, r.Serial, r.Extra})
}

func decodeRequester(data []byte) (Requester, []byte, error) {
	cur := codec.NewCursor(data, 0)
	raw, err := codec.Decode(cur, requesterLayout)
	if err != nil {
		return Requester{}, nil, fmt.Errorf("requester id: %w", err)
	}
	v := raw.([]any)
	if v[0].(uint8) < requesterIDSize {
		return Requester{}, nil, fmt.Errorf("%w: requester id length %d", codec.ErrMalformed, v[0])
	}
	r := Requester{Vendor: v[1].(uint16), Serial: v[2].(uint32)}
	if extra := toBytes(v[3]); len(extra) > 0 {
		r.Extra = extra
	}
	rest, _ := cur.Next(cur.Remaining())
	return r, rest, nil
}

// Execute is a decoded Execute PCCC request or reply body.
type Execute struct {
	Requester Requester
	Message   Message
}

// Encode returns the requester ID followed by the PCCC message.
func (e Execute) Encode() ([]byte, error) {
	head, err := e.Requester.encode()
	if err != nil {
		return nil, err
	}
	return append(head, e.Message.Encode()...), nil
}

// ParseExecute decodes an Execute PCCC request or reply body.
func ParseExecute(data []byte) (Execute, error) {
	r, rest, err := decodeRequester(data)
	if err != nil {
		return Execute{}, err
	}
	m, err := ParseMessage(rest)
	if err != nil {
		return Execute{}, err
	}
	return Execute{Requester: r, Message: m}, nil
}

// NewExecuteRequest wraps msg in an Execute PCCC request. The reply decodes
// to an Execute whose message carries the PCCC status; a non-zero PCCC
// status is reported through the decoded value, not the CIP status.
func NewExecuteRequest(requester Requester, msg Message) (*protocol.Request, error) {
	data, err := Execute{Requester: requester, Message: msg}.Encode()
	if err != nil {
		return nil, err
	}
	return protocol.NewRequest(spec.ServiceExecutePCCC, ObjectPath(), data).
		WithDecoder(protocol.DecoderFunc(func(data []byte) (any, error) {
			return ParseExecute(data)
		})), nil
}

// appendField writes a typed logical address field: one byte below 0xFF,
// otherwise 0xFF followed by a UINT.
func appendField(buf []byte, v uint16) []byte {
	if v < 0xFF {
		return append(buf, uint8(v))
	}
	return codec.AppendUint16(append(buf, 0xFF), v)
}

func readField(cur *codec.Cursor) (uint16, error) {
	b, err := cur.Uint8()
	if err != nil {
		return 0, err
	}
	if b != 0xFF {
		return uint16(b), nil
	}
	return cur.Uint16()
}

// TypedCommand is the body of a typed logical read or write.
type TypedCommand struct {
	Size       uint8
	FileNumber uint16
	FileType   FileType
	Element    uint16
	SubElement uint16
	Data       []byte // write only
}

// Encode returns the byte size, the three address fields and any write data.
func (c TypedCommand) Encode() []byte {
	buf := []byte{c.Size}
	buf = appendField(buf, c.FileNumber)
	buf = append(buf, uint8(c.FileType))
	buf = appendField(buf, c.Element)
	buf = appendField(buf, c.SubElement)
	return append(buf, c.Data...)
}

// ParseTypedCommand decodes the data of a typed logical read or write.
func ParseTypedCommand(data []byte) (TypedCommand, error) {
	var c TypedCommand
	cur := codec.NewCursor(data, 0)
	size, err := cur.Uint8()
	if err != nil {
		return c, fmt.Errorf("typed command size: %w", err)
	}
	c.Size = size
	if c.FileNumber, err = readField(cur); err != nil {
		return c, fmt.Errorf("file number: %w", err)
	}
	ft, err := cur.Uint8()
	if err != nil {
		return c, fmt.Errorf("file type: %w", err)
	}
	c.FileType = FileType(ft)
	if c.Element, err = readField(cur); err != nil {
		return c, fmt.Errorf("element: %w", err)
	}
	if c.SubElement, err = readField(cur); err != nil {
		return c, fmt.Errorf("sub-element: %w", err)
	}
	rest, _ := cur.Next(cur.Remaining())
	if len(rest) > 0 {
		c.Data = append([]byte(nil), rest...)
	}
	return c, nil
}

func typedCommand(a Address, size int) TypedCommand {
	return TypedCommand{
		Size:       uint8(size),
		FileNumber: a.FileNumber,
		FileType:   a.FileType,
		Element:    a.Element,
		SubElement: a.SubElement,
	}
}

// TypedRead returns a typed logical read of a.
func TypedRead(tns uint16, a Address) Message {
	return Message{
		Command:  CmdExtended,
		TNS:      tns,
		Function: FncTypedRead,
		Data:     typedCommand(a, a.ReadSize()).Encode(),
	}
}

// TypedWrite returns a typed logical write of value to a. value must match
// ValueType(a). Bit addresses are rejected; use a masked write for bits.
func TypedWrite(tns uint16, a Address, value any) (Message, error) {
	if a.Bit >= 0 {
		return Message{}, fmt.Errorf("typed write to bit address %s", a)
	}
	data, err := codec.Encode(ValueType(a), value)
	if err != nil {
		return Message{}, fmt.Errorf("write %s: %w", a, err)
	}
	cmd := typedCommand(a, len(data))
	cmd.Data = data
	return Message{
		Command:  CmdExtended,
		TNS:      tns,
		Function: FncTypedWrite,
		Data:     cmd.Encode(),
	}, nil
}

// ValueType describes the value a typed read of a returns.
//
// Words decode to int16 and bits to bool. Float files decode to float32 and
// long files to int32. Whole structured elements decode to three int16
// words. Strings decode to a Go string.
func ValueType(a Address) codec.DataType {
	switch {
	case a.Bit >= 0:
		return codec.Struct{Members: []codec.DataType{codec.Bool{Bit: uint8(a.Bit)}, codec.INT}}
	case a.HasSub:
		return codec.INT
	}
	switch a.FileType {
	case FileTypeFloat:
		return codec.REAL
	case FileTypeLong:
		return codec.DINT
	case FileTypeTimer, FileTypeCounter, FileTypeControl:
		return codec.ArrayOf(codec.INT, 3)
	case FileTypeString:
		return stringType
	}
	return codec.INT
}

// stringType is a length word and 82 characters stored with each byte pair
// swapped.
var stringType = codec.Transform{
	Inner: codec.Struct{Members: []codec.DataType{codec.UINT, codec.ArrayOf(codec.BYTE, 82)}},
	Decode: func(raw any) (any, error) {
		v := raw.([]any)
		n := int(v[0].(uint16))
		if n > 82 {
			return nil, fmt.Errorf("%w: string length %d", codec.ErrMalformed, n)
		}
		return string(swapPairs(toBytes(v[1]))[:n]), nil
	},
	Encode: func(value any) (any, error) {
		s, ok := value.(string)
		if !ok || len(s) > 82 {
			return nil, fmt.Errorf("%w: string value %T of at most 82 bytes", codec.ErrInvalidValue, value)
		}
		chars := make([]byte, 82)
		copy(chars, s)
		return []any{uint16(len(s)), swapPairs(chars)}, nil
	},
}

func swapPairs(b []byte) []byte {
	out := make([]byte, len(b))
	for i := 0; i+1 < len(b); i += 2 {
		out[i], out[i+1] = b[i+1], b[i]
	}
	return out
}

// DecodeValue decodes the data of a typed read reply for a.
func DecodeValue(a Address, data []byte) (any, error) {
	cur := codec.NewCursor(data, 0)
	v, err := codec.Decode(cur, ValueType(a))
	if err != nil {
		return nil, fmt.Errorf("value of %s: %w", a, err)
	}
	if a.Bit >= 0 {
		return v.([]any)[0], nil
	}
	if cur.Remaining() != 0 {
		return nil, fmt.Errorf("%w: %d bytes after value of %s", codec.ErrMalformed, cur.Remaining(), a)
	}
	return v, nil
}

func toBytes(raw any) []byte {
	items, _ := raw.([]any)
	out := make([]byte, len(items))
	for i, it := range items {
		out[i] = it.(uint8)
	}
	return out
}

// Package pccc encodes PCCC commands tunneled through the CIP Execute PCCC
// service, covering the SLC typed logical read and write subset.
package pccc

import (
	"fmt"

	"github.com/tturner/cipstack/internal/cip/codec"
)

// Command is the CMD byte of a PCCC message.
type Command uint8

const (
	CmdProtectedWrite   Command = 0x01
	CmdUnprotectedRead  Command = 0x02
	CmdProtectedRead    Command = 0x05
	CmdUnprotectedWrite Command = 0x08
	CmdExtended         Command = 0x0F

	// ReplyFlag is set in the CMD byte of every reply.
	ReplyFlag Command = 0x40
)

// FunctionCode is the FNC byte of an extended command.
type FunctionCode uint8

const (
	FncDiagnosticStatus FunctionCode = 0x03
	FncEcho             FunctionCode = 0x06
	FncChangeMode       FunctionCode = 0x80
	FncTypedRead        FunctionCode = 0xA2 // protected typed logical read, three address fields
	FncTypedWrite       FunctionCode = 0xAA // protected typed logical write, three address fields
	FncMaskedWrite      FunctionCode = 0xAB
)

var functionNames = map[FunctionCode]string{
	FncDiagnosticStatus: "Diagnostic Status",
	FncEcho:             "Echo",
	FncChangeMode:       "Change Mode",
	FncTypedRead:        "Typed Logical Read",
	FncTypedWrite:       "Typed Logical Write",
	FncMaskedWrite:      "Masked Write",
}

func (f FunctionCode) String() string {
	if name, ok := functionNames[f]; ok {
		return name
	}
	return fmt.Sprintf("Function(0x%02X)", uint8(f))
}

// Status codes in the STS byte. StatusExtended means an EXT STS byte follows.
const (
	StatusSuccess       uint8 = 0x00
	StatusIllegalCmd    uint8 = 0x10
	StatusHostProblem   uint8 = 0x20
	StatusRemoteProblem uint8 = 0x30
	StatusExtended      uint8 = 0xF0
)

// Extended status codes used by the data table.
const (
	ExtIllegalAddress  uint8 = 0x06
	ExtFileWrongSize   uint8 = 0x07
	ExtNoSuchFile      uint8 = 0x0A
	ExtIllegalDataType uint8 = 0x10
)

// Error is a PCCC reply with a non-zero status.
type Error struct {
	Status    uint8
	ExtStatus uint8
}

func (e *Error) Error() string {
	if e.Status == StatusExtended {
		return fmt.Sprintf("pccc status 0x%02X ext 0x%02X", e.Status, e.ExtStatus)
	}
	return fmt.Sprintf("pccc status 0x%02X", e.Status)
}

// Message is one PCCC request or reply. Function is carried by requests
// only; ExtStatus by replies whose Status is StatusExtended.
type Message struct {
	Command   Command
	Status    uint8
	TNS       uint16
	Function  FunctionCode
	ExtStatus uint8
	Data      []byte
}

// IsReply reports whether ReplyFlag is set.
func (m Message) IsReply() bool { return m.Command&ReplyFlag != 0 }

// Err returns the reply's status as an *Error, or nil on success.
func (m Message) Err() error {
	if m.Status == StatusSuccess {
		return nil
	}
	return &Error{Status: m.Status, ExtStatus: m.ExtStatus}
}

// Encode returns the wire form: CMD STS TNS followed by FNC for requests or
// EXT STS for extended-status replies, then the data.
func (m Message) Encode() []byte {
	buf := make([]byte, 4, 6+len(m.Data))
	buf[0] = uint8(m.Command)
	buf[1] = m.Status
	codec.PutUint16(buf[2:], m.TNS)
	switch {
	case !m.IsReply():
		buf = append(buf, uint8(m.Function))
	case m.Status == StatusExtended:
		buf = append(buf, m.ExtStatus)
	}
	return append(buf, m.Data...)
}

// ParseMessage decodes a request or reply, selected by ReplyFlag.
func ParseMessage(data []byte) (Message, error) {
	cur := codec.NewCursor(data, 0)
	if cur.Remaining() < 4 {
		return Message{}, fmt.Errorf("%w: pccc header needs 4 bytes, have %d", codec.ErrShortBuffer, len(data))
	}
	cmd, _ := cur.Uint8()
	sts, _ := cur.Uint8()
	tns, _ := cur.Uint16()
	m := Message{Command: Command(cmd), Status: sts, TNS: tns}
	switch {
	case !m.IsReply():
		fnc, err := cur.Uint8()
		if err != nil {
			return Message{}, fmt.Errorf("pccc function code: %w", err)
		}
		m.Function = FunctionCode(fnc)
	case sts == StatusExtended:
		ext, err := cur.Uint8()
		if err != nil {
			return Message{}, fmt.Errorf("pccc extended status: %w", err)
		}
		m.ExtStatus = ext
	}
	rest, _ := cur.Next(cur.Remaining())
	m.Data = append([]byte(nil), rest...)
	return m, nil
}

// Reply returns the reply skeleton for request m.
func (m Message) Reply(status, ext uint8, data []byte) Message {
	return Message{
		Command:   m.Command | ReplyFlag,
		Status:    status,
		TNS:       m.TNS,
		ExtStatus: ext,
		Data:      data,
	}
}

package pccc

import (
	"errors"
	"fmt"
	"sync"

	"github.com/tturner/cipstack/internal/cip/codec"
	"github.com/tturner/cipstack/internal/cip/protocol"
)

type fileKey struct {
	Type   FileType
	Number uint16
}

// DataTable is an in-memory set of data files served to Execute PCCC
// requests. It is safe for concurrent use.
type DataTable struct {
	mu    sync.Mutex
	files map[fileKey][]byte
}

// NewDataTable returns an empty data table.
func NewDataTable() *DataTable {
	return &DataTable{files: make(map[fileKey][]byte)}
}

// AddFile creates or replaces file ft:number with elements zeroed elements.
func (t *DataTable) AddFile(ft FileType, number uint16, elements int) error {
	size := ft.ElementSize()
	if size == 0 {
		return fmt.Errorf("file type 0x%02X has no element size", uint8(ft))
	}
	if elements <= 0 {
		return fmt.Errorf("file %s%d needs at least one element", ft, number)
	}
	t.mu.Lock()
	t.files[fileKey{ft, number}] = make([]byte, size*elements)
	t.mu.Unlock()
	return nil
}

// Read returns the decoded value at a.
func (t *DataTable) Read(a Address) (any, error) {
	data, ext := t.read(typedCommand(a, a.ReadSize()))
	if ext != 0 {
		return nil, &Error{Status: StatusExtended, ExtStatus: ext}
	}
	return DecodeValue(a, data)
}

// Write encodes value and stores it at a.
func (t *DataTable) Write(a Address, value any) error {
	msg, err := TypedWrite(0, a, value)
	if err != nil {
		return err
	}
	cmd, err := ParseTypedCommand(msg.Data)
	if err != nil {
		return err
	}
	if ext := t.write(cmd); ext != 0 {
		return &Error{Status: StatusExtended, ExtStatus: ext}
	}
	return nil
}

// locate returns the byte range of cmd within its file, or an extended
// status. Sub-elements address one word inside a structured element.
func (t *DataTable) locate(cmd TypedCommand) ([]byte, int, uint8) {
	file, ok := t.files[fileKey{cmd.FileType, cmd.FileNumber}]
	if !ok {
		return nil, 0, ExtNoSuchFile
	}
	off := int(cmd.Element)*cmd.FileType.ElementSize() + int(cmd.SubElement)*2
	if int(cmd.Size) == 0 || off+int(cmd.Size) > len(file) {
		return nil, 0, ExtIllegalAddress
	}
	return file, off, 0
}

func (t *DataTable) read(cmd TypedCommand) ([]byte, uint8) {
	t.mu.Lock()
	defer t.mu.Unlock()
	file, off, ext := t.locate(cmd)
	if ext != 0 {
		return nil, ext
	}
	return append([]byte(nil), file[off:off+int(cmd.Size)]...), 0
}

func (t *DataTable) write(cmd TypedCommand) uint8 {
	if len(cmd.Data) != int(cmd.Size) {
		return ExtFileWrongSize
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	file, off, ext := t.locate(cmd)
	if ext != 0 {
		return ext
	}
	copy(file[off:], cmd.Data)
	return 0
}

// Handle executes one PCCC request message and returns its reply.
func (t *DataTable) Handle(m Message) Message {
	if m.Command != CmdExtended {
		return m.Reply(StatusIllegalCmd, 0, nil)
	}
	switch m.Function {
	case FncEcho:
		return m.Reply(StatusSuccess, 0, m.Data)
	case FncTypedRead, FncTypedWrite:
	default:
		return m.Reply(StatusIllegalCmd, 0, nil)
	}
	cmd, err := ParseTypedCommand(m.Data)
	if err != nil {
		return m.Reply(StatusExtended, ExtIllegalAddress, nil)
	}
	if m.Function == FncTypedRead {
		if len(cmd.Data) != 0 {
			return m.Reply(StatusExtended, ExtFileWrongSize, nil)
		}
		data, ext := t.read(cmd)
		if ext != 0 {
			return m.Reply(StatusExtended, ext, nil)
		}
		return m.Reply(StatusSuccess, 0, data)
	}
	if ext := t.write(cmd); ext != 0 {
		return m.Reply(StatusExtended, ext, nil)
	}
	return m.Reply(StatusSuccess, 0, nil)
}

// HandleExecute serves an Execute PCCC request. PCCC failures travel in the
// reply message; the CIP status reports only malformed request bodies.
func (t *DataTable) HandleExecute(req *protocol.Request) *protocol.Response {
	resp := &protocol.Response{Service: req.Service}
	exec, err := ParseExecute(req.Data)
	if err != nil {
		code := protocol.StatusInvalidParameter
		if errors.Is(err, codec.ErrShortBuffer) {
			code = protocol.StatusNotEnoughData
		}
		resp.Status = protocol.NewStatus(code)
		return resp
	}
	reply := Execute{Requester: exec.Requester, Message: t.Handle(exec.Message)}
	data, err := reply.Encode()
	if err != nil {
		resp.Status = protocol.NewStatus(protocol.StatusInvalidParameter)
		return resp
	}
	resp.Status = protocol.NewStatus(protocol.StatusSuccess)
	resp.Data = data
	return resp
}


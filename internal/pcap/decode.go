package pcap

import (
	"fmt"

	"github.com/tturner/cipstack/internal/cip/codec"
	"github.com/tturner/cipstack/internal/cip/protocol"
	"github.com/tturner/cipstack/internal/cip/spec"
	"github.com/tturner/cipstack/internal/enip"
)

// Record is the decoded content of one frame.
type Record struct {
	Frame    Frame
	Command  string
	Route    enip.Route
	Sequence uint16 // connected messages only
	CIP      bool   // the frame carries a CIP message
	Response bool
	Service  protocol.ServiceCode
	Label    string
	Path     string
	Embedded string // label of the request inside an Unconnected Send
	Status   protocol.Status
	Issues   []string
}

// String renders the record on one line.
func (r Record) String() string {
	dir := "->"
	if !r.Frame.ToServer() {
		dir = "<-"
	}
	s := fmt.Sprintf("%s %s", dir, r.Command)
	if !r.CIP {
		return s
	}
	s += " " + r.Label
	if r.Embedded != "" {
		s += " [" + r.Embedded + "]"
	}
	if r.Path != "" {
		s += " " + r.Path
	}
	if r.Response {
		s += fmt.Sprintf(" status=0x%02X", r.Status.Code)
		if r.Status.Error {
			s += " (" + r.Status.Description + ")"
		}
	}
	return s
}

type unconnKey struct {
	session uint32
	context uint64
}

type connKey struct {
	session  uint32
	sequence uint16
}

// Decoder turns frames into records. Replies are labelled with the target
// of the request they answer: unconnected replies are matched by sender
// context, connected replies by sequence count.
type Decoder struct {
	registry *spec.Registry
	unconn   map[unconnKey]spec.Target
	conn     map[connKey]spec.Target
}

// NewDecoder returns a decoder checking message shapes against registry.
// A nil registry uses spec.DefaultRegistry.
func NewDecoder(registry *spec.Registry) *Decoder {
	if registry == nil {
		registry = spec.DefaultRegistry()
	}
	return &Decoder{
		registry: registry,
		unconn:   make(map[unconnKey]spec.Target),
		conn:     make(map[connKey]spec.Target),
	}
}

// Decode decodes every frame with a fresh Decoder.
func Decode(frames []Frame) []Record {
	d := NewDecoder(nil)
	records := make([]Record, len(frames))
	for i, f := range frames {
		records[i] = d.Decode(f)
	}
	return records
}

// Decode decodes one frame. Problems are reported in Issues rather than
// as errors so a capture can be walked to the end.
func (d *Decoder) Decode(f Frame) Record {
	r := Record{Frame: f, Command: CommandName(f.Encap.Command)}
	if f.Encap.Status != 0 {
		r.Issues = append(r.Issues, enip.StatusText(f.Encap.Status))
	}
	if f.Encap.Command != enip.CommandSendRRData && f.Encap.Command != enip.CommandSendUnitData {
		return r
	}
	if f.Encap.Status != 0 {
		return r
	}
	msg, route, err := enip.UnwrapEncapsulation(f.Encap)
	if err != nil {
		r.Issues = append(r.Issues, err.Error())
		return r
	}
	r.Route = route
	if route.Connected {
		if len(msg) < 2 {
			r.Issues = append(r.Issues, "connected message without sequence count")
			return r
		}
		r.Sequence = codec.Uint16(msg)
		msg = msg[2:]
	}
	if len(msg) == 0 {
		r.Issues = append(r.Issues, "empty CIP message")
		return r
	}
	r.CIP = true
	r.Response = msg[0]&protocol.ReplyFlag != 0
	if r.Response {
		d.decodeResponse(&r, msg)
	} else {
		d.decodeRequest(&r, msg)
	}
	return r
}

func (d *Decoder) decodeRequest(r *Record, msg []byte) {
	req, err := protocol.ParseRequest(msg)
	if err != nil {
		r.Service = protocol.ServiceCode(msg[0])
		r.Label, _ = spec.LabelService(r.Service, spec.Target{}, false)
		r.Issues = append(r.Issues, err.Error())
		return
	}
	r.Service = req.Service
	if req.RawPath != nil {
		r.Label, _ = spec.LabelService(req.Service, spec.Target{}, false)
		r.Issues = append(r.Issues, fmt.Sprintf("undecodable path % X", req.RawPath))
		return
	}
	target := spec.TargetOf(req.Path)
	r.Label, _ = spec.LabelService(req.Service, target, false)
	r.Path = req.Path.String()
	if err := d.registry.CheckRequest(target.Class, req.Service, req.Data); err != nil {
		r.Issues = append(r.Issues, err.Error())
	}
	if req.Service == spec.ServiceUnconnectedSend && target.Class == spec.ClassConnectionManager {
		r.Embedded = embeddedLabel(req.Data)
	}

	session := r.Frame.Encap.SessionID
	if r.Route.Connected {
		d.conn[connKey{session, r.Sequence}] = target
	} else {
		d.unconn[unconnKey{session, r.Route.Context}] = target
	}
}

// decodeResponse labels a reply with its request's service name; the
// direction is carried by Record.Response.
func (d *Decoder) decodeResponse(r *Record, msg []byte) {
	resp, err := protocol.ParseResponse(msg)
	if err != nil {
		r.Service = protocol.ServiceCode(msg[0] &^ protocol.ReplyFlag)
		r.Label, _ = spec.LabelService(r.Service, spec.Target{}, false)
		r.Issues = append(r.Issues, err.Error())
		return
	}
	r.Service, r.Status = resp.Service, resp.Status

	session := r.Frame.Encap.SessionID
	var (
		target spec.Target
		found  bool
	)
	if r.Route.Connected {
		key := connKey{session, r.Sequence}
		target, found = d.conn[key]
		delete(d.conn, key)
	} else {
		key := unconnKey{session, r.Route.Context}
		target, found = d.unconn[key]
		delete(d.unconn, key)
	}
	r.Label, _ = spec.LabelService(resp.Service, target, false)
	if !found {
		r.Issues = append(r.Issues, "reply without a matching request")
		return
	}
	if !resp.Status.Error {
		if err := d.registry.CheckResponse(target.Class, resp.Service, resp.Data); err != nil {
			r.Issues = append(r.Issues, err.Error())
		}
	}
}

func embeddedLabel(data []byte) string {
	us, err := protocol.ParseUnconnectedSend(data)
	if err != nil {
		return ""
	}
	inner, err := protocol.ParseRequest(us.Message)
	if err != nil || inner.RawPath != nil {
		return ""
	}
	label, _ := spec.LabelService(inner.Service, spec.TargetOf(inner.Path), false)
	return label
}

var commandNames = map[uint16]string{
	enip.CommandNOP:               "NOP",
	enip.CommandListServices:      "ListServices",
	enip.CommandListIdentity:      "ListIdentity",
	enip.CommandListInterfaces:    "ListInterfaces",
	enip.CommandRegisterSession:   "RegisterSession",
	enip.CommandUnregisterSession: "UnregisterSession",
	enip.CommandSendRRData:        "SendRRData",
	enip.CommandSendUnitData:      "SendUnitData",
}

// CommandName names an encapsulation command.
func CommandName(cmd uint16) string {
	if name, ok := commandNames[cmd]; ok {
		return name
	}
	return fmt.Sprintf("Command(0x%04X)", cmd)
}

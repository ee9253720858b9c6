package target

import (
	"errors"

	"github.com/tturner/cipstack/internal/cip/codec"
	"github.com/tturner/cipstack/internal/cip/protocol"
	"github.com/tturner/cipstack/internal/cip/spec"
	"github.com/tturner/cipstack/internal/logging"
)

// handleMessage answers one encoded CIP request with an encoded reply.
func (t *Target) handleMessage(msg []byte, session uint32) []byte {
	t.count(func(s *Stats) { s.Requests++ })
	var resp *protocol.Response
	req, err := protocol.ParseRequest(msg)
	switch {
	case err != nil && len(msg) > 0:
		resp = reply(protocol.ServiceCode(msg[0]&^protocol.ReplyFlag), protocol.StatusPathSegmentError)
	case err != nil:
		resp = reply(0, protocol.StatusNotEnoughData)
	case req.RawPath != nil:
		resp = reply(req.Service, protocol.StatusPathSegmentError)
	default:
		resp = t.dispatch(req, session)
	}
	out, err := protocol.EncodeResponse(resp)
	if err != nil {
		t.log.Error("target: encode reply to service 0x%02X: %v", uint8(resp.Service), err)
		out, _ = protocol.EncodeResponse(reply(resp.Service, protocol.StatusInvalidParameter))
	}
	if resp.Status.Error {
		t.count(func(s *Stats) { s.Errors++ })
	}
	if t.log.Enabled(logging.LogLevelDebug) {
		var path codec.EPath
		if req != nil {
			path = req.Path
		}
		label, _ := spec.LabelService(resp.Service, spec.TargetOf(path), false)
		t.log.Debug("target: %s -> status 0x%02X", label, resp.Status.Code)
	}
	return out
}

func reply(service protocol.ServiceCode, code uint8) *protocol.Response {
	return &protocol.Response{Service: service, Status: protocol.NewStatus(code)}
}

// address returns the class, instance and attribute a path names. Missing
// segments are zero.
func address(path codec.EPath) (class, instance, attribute uint32) {
	for _, seg := range path.Segments {
		l, ok := seg.(codec.Logical)
		if !ok {
			continue
		}
		switch l.Type {
		case codec.ClassID:
			class = l.Value
		case codec.InstanceID:
			instance = l.Value
		case codec.AttributeID:
			attribute = l.Value
		}
	}
	return class, instance, attribute
}

func (t *Target) dispatch(req *protocol.Request, session uint32) *protocol.Response {
	class, instance, attribute := address(req.Path)
	switch class {
	case spec.ClassConnectionManager:
		switch req.Service {
		case spec.ServiceForwardOpen, spec.ServiceLargeForwardOpen:
			return t.forwardOpen(req, session)
		case spec.ServiceForwardClose:
			return t.forwardClose(req)
		case spec.ServiceUnconnectedSend:
			return t.unconnectedSend(req, session)
		}
	case spec.ClassMessageRouter:
		if req.Service == spec.ServiceMultipleService {
			return t.multipleService(req, session)
		}
	case spec.ClassIdentity:
		if instance == 1 {
			return t.identityService(req, attribute)
		}
		return reply(req.Service, protocol.StatusObjectDoesNotExist)
	case spec.ClassModbus:
		if t.modbus != nil {
			return t.modbus.HandleObject(req)
		}
		return reply(req.Service, protocol.StatusPathDestUnknown)
	case spec.ClassPCCC:
		if t.pccc == nil {
			return reply(req.Service, protocol.StatusPathDestUnknown)
		}
		if req.Service == spec.ServiceExecutePCCC {
			return t.pccc.HandleExecute(req)
		}
	default:
		return reply(req.Service, protocol.StatusPathDestUnknown)
	}
	return reply(req.Service, protocol.StatusServiceNotSupported)
}

func (t *Target) identityService(req *protocol.Request, attribute uint32) *protocol.Response {
	id := t.identity
	var (
		dt    codec.DataType
		value any
	)
	switch req.Service {
	case spec.ServiceGetAttributeAll:
		data, err := id.encode()
		if err != nil {
			return reply(req.Service, protocol.StatusInvalidParameter)
		}
		resp := reply(req.Service, protocol.StatusSuccess)
		resp.Data = data
		return resp
	case spec.ServiceGetAttributeSingle:
	default:
		return reply(req.Service, protocol.StatusServiceNotSupported)
	}

	switch attribute {
	case 1:
		dt, value = codec.UINT, id.VendorID
	case 2:
		dt, value = codec.UINT, id.DeviceType
	case 3:
		dt, value = codec.UINT, id.ProductCode
	case 4:
		dt, value = codec.ArrayOf(codec.USINT, 2), []uint8{id.RevMajor, id.RevMinor}
	case 5:
		dt, value = codec.WORD, id.Status
	case 6:
		dt, value = codec.UDINT, id.Serial
	case 7:
		dt, value = codec.SHORTSTRING, id.ProductName
	default:
		return reply(req.Service, protocol.StatusAttributeNotSupported)
	}
	data, err := codec.Encode(dt, value)
	if err != nil {
		return reply(req.Service, protocol.StatusInvalidParameter)
	}
	resp := reply(req.Service, protocol.StatusSuccess)
	resp.Data = data
	return resp
}

// unconnectedSend delivers the embedded request locally; the target is the
// end of every route. The embedded reply is returned as is.
func (t *Target) unconnectedSend(req *protocol.Request, session uint32) *protocol.Response {
	us, err := protocol.ParseUnconnectedSend(req.Data)
	if err != nil {
		if errors.Is(err, codec.ErrShortBuffer) {
			return reply(req.Service, protocol.StatusNotEnoughData)
		}
		return reply(req.Service, protocol.StatusPathSegmentError)
	}
	inner, err := protocol.ParseRequest(us.Message)
	if err != nil || inner.RawPath != nil {
		return reply(req.Service, protocol.StatusPathSegmentError)
	}
	return t.dispatch(inner, session)
}

func (t *Target) multipleService(req *protocol.Request, session uint32) *protocol.Response {
	parts, err := protocol.SplitMultiServiceRequest(req.Data)
	if err != nil {
		return reply(req.Service, protocol.StatusNotEnoughData)
	}
	replies := make([][]byte, len(parts))
	failed := false
	for i, part := range parts {
		replies[i] = t.handleMessage(part, session)
		if len(replies[i]) > 2 && replies[i][2] != protocol.StatusSuccess {
			failed = true
		}
	}
	data, err := protocol.JoinMultiServiceReply(replies)
	if err != nil {
		return reply(req.Service, protocol.StatusTooMuchData)
	}
	resp := reply(req.Service, protocol.StatusSuccess)
	if failed {
		resp.Status = protocol.NewStatus(protocol.StatusEmbeddedServiceError)
	}
	resp.Data = data
	return resp
}

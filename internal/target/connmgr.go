package target

import (
	"errors"

	"github.com/tturner/cipstack/internal/cip/codec"
	"github.com/tturner/cipstack/internal/cip/connection"
	"github.com/tturner/cipstack/internal/cip/protocol"
	"github.com/tturner/cipstack/internal/cip/spec"
)

// Connection Manager extended status codes.
const (
	extDuplicateForwardOpen uint16 = 0x0100
	extConnectionNotFound   uint16 = 0x0107
)

// triad identifies a connection across Forward Open and Forward Close.
type triad struct {
	serial           uint16
	vendor           uint16
	originatorSerial uint32
}

type conn struct {
	triad
	otoT, ttoO uint32
	session    uint32
}

func failure(req *protocol.Request, ext uint16, t triad) *protocol.Response {
	resp := reply(req.Service, protocol.StatusConnectionFailure)
	resp.ExtStatus = codec.AppendUint16(nil, ext)
	resp.Data, _ = codec.Encode(connection.FailureReplyType, connection.FailureReply{
		Serial:           t.serial,
		VendorID:         t.vendor,
		OriginatorSerial: t.originatorSerial,
	})
	return resp
}

func parseError(req *protocol.Request, err error) *protocol.Response {
	if errors.Is(err, codec.ErrShortBuffer) {
		return reply(req.Service, protocol.StatusNotEnoughData)
	}
	return reply(req.Service, protocol.StatusInvalidParameter)
}

// forwardOpen accepts every well-formed request whose triad is not already
// open. The target picks the O->T id and keeps the T->O id the originator
// proposed; actual packet intervals equal the requested ones.
func (t *Target) forwardOpen(req *protocol.Request, session uint32) *protocol.Response {
	fo, err := connection.ParseForwardOpen(req.Data, req.Service == spec.ServiceLargeForwardOpen)
	if err != nil {
		t.log.Debug("target: %v", err)
		return parseError(req, err)
	}
	key := triad{fo.Serial, fo.VendorID, fo.OriginatorSerial}

	t.mu.Lock()
	if _, dup := t.byTriad[key]; dup {
		t.mu.Unlock()
		t.log.Info("target: duplicate forward open for serial 0x%04X", fo.Serial)
		return failure(req, extDuplicateForwardOpen, key)
	}
	c := &conn{triad: key, otoT: t.nextConnID, ttoO: fo.TtoOID, session: session}
	t.nextConnID++
	t.byTriad[key] = c
	t.byOtoT[c.otoT] = c
	t.stats.Opened++
	t.mu.Unlock()

	t.log.Verbose("target: connection 0x%04X open (O->T 0x%08X, T->O 0x%08X)", fo.Serial, c.otoT, c.ttoO)
	resp := reply(req.Service, protocol.StatusSuccess)
	resp.Data, err = codec.Encode(connection.ForwardOpenReplyType, &connection.ForwardOpenReply{
		OtoTID:           c.otoT,
		TtoOID:           c.ttoO,
		Serial:           fo.Serial,
		VendorID:         fo.VendorID,
		OriginatorSerial: fo.OriginatorSerial,
		OtoTAPI:          fo.OtoTRPI,
		TtoOAPI:          fo.TtoORPI,
	})
	if err != nil {
		return reply(req.Service, protocol.StatusInvalidParameter)
	}
	return resp
}

func (t *Target) forwardClose(req *protocol.Request) *protocol.Response {
	fc, err := connection.ParseForwardClose(req.Data)
	if err != nil {
		t.log.Debug("target: %v", err)
		return parseError(req, err)
	}
	key := triad{fc.Serial, fc.VendorID, fc.OriginatorSerial}

	t.mu.Lock()
	c, ok := t.byTriad[key]
	if ok {
		delete(t.byTriad, key)
		delete(t.byOtoT, c.otoT)
		t.stats.Closed++
	}
	t.mu.Unlock()
	if !ok {
		t.log.Info("target: forward close for unknown serial 0x%04X", fc.Serial)
		return failure(req, extConnectionNotFound, key)
	}

	t.log.Verbose("target: connection 0x%04X closed", fc.Serial)
	resp := reply(req.Service, protocol.StatusSuccess)
	resp.Data, err = codec.Encode(connection.ForwardCloseReplyType, &connection.ForwardCloseReply{
		Serial:           fc.Serial,
		VendorID:         fc.VendorID,
		OriginatorSerial: fc.OriginatorSerial,
	})
	if err != nil {
		return reply(req.Service, protocol.StatusInvalidParameter)
	}
	return resp
}

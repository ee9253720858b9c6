package connection

import (
	"fmt"
	"time"

	"github.com/tturner/cipstack/internal/cip/codec"
)

// Connection types carried in the network connection parameters.
const (
	TypeNull         = 0
	TypeMulticast    = 1
	TypePointToPoint = 2
)

// Connection priorities.
const (
	PriorityLow       = 0
	PriorityHigh      = 1
	PriorityScheduled = 2
	PriorityUrgent    = 3
)

// TriggerClass3Cyclic is the transport class and trigger byte of a class 3
// explicit messaging connection.
const TriggerClass3Cyclic = 0xA3

// NetworkParams builds a network connection parameter word. Standard
// Forward Open uses a 9-bit size in the low 16 bits; large uses a 16-bit
// size with the flags shifted into the high word.
func NetworkParams(size uint16, variable bool, priority, connType uint8, large bool) (uint32, error) {
	shift := 9
	if large {
		shift = 25
		if size == 0 {
			return 0, fmt.Errorf("connection size must be positive")
		}
	} else if size == 0 || size > 0x1FF {
		return 0, fmt.Errorf("connection size %d out of range [1, 511]", size)
	}
	if priority > 3 || connType > 3 {
		return 0, fmt.Errorf("priority %d or connection type %d out of range", priority, connType)
	}
	v := uint32(size)
	if variable {
		v |= 1 << shift
	}
	v |= uint32(priority) << (shift + 1)
	v |= uint32(connType) << (shift + 4)
	return v, nil
}

// Params configures the Forward Open a connection sends.
type Params struct {
	VendorID          uint16
	OriginatorSerial  uint32
	PriorityTick      uint8
	TimeoutTicks      uint8
	TimeoutMultiplier uint8
	OtoTRPI           uint32 // microseconds
	TtoORPI           uint32
	OtoTParams        uint32
	TtoOParams        uint32
	TransportTrigger  uint8
	Large             bool

	// Path routes to the target and ends at its Message Router.
	Path codec.EPath

	// OpenTimeout bounds the wait for the Forward Open reply and
	// CloseTimeout the wait for the Forward Close reply.
	OpenTimeout  time.Duration
	CloseTimeout time.Duration
}

// DefaultParams returns parameters for an explicit messaging connection
// of 504 byte variable-size messages to the local backplane.
func DefaultParams() Params {
	ot, _ := NetworkParams(504, true, PriorityLow, TypePointToPoint, false)
	return Params{
		VendorID:          0x1337,
		OriginatorSerial:  42,
		PriorityTick:      0x0A,
		TimeoutTicks:      0x0E,
		TimeoutMultiplier: 1,
		OtoTRPI:           2_000_000,
		TtoORPI:           2_000_000,
		OtoTParams:        ot,
		TtoOParams:        ot,
		TransportTrigger:  TriggerClass3Cyclic,
		Path: codec.NewEPath(true,
			codec.Port{Port: 1, Link: []byte{0}},
			codec.MustLogical(codec.ClassID, 0x02),
			codec.MustLogical(codec.InstanceID, 1)),
		OpenTimeout:  5 * time.Second,
		CloseTimeout: 2 * time.Second,
	}
}

// Timeout returns the inactivity timeout a target applies to a connection:
// 4 x min(rate) x 2^multiplier, rates in microseconds.
func Timeout(otoTRate, ttoORate uint32, multiplier uint8) time.Duration {
	rate := min(otoTRate, ttoORate)
	return time.Duration(rate) * time.Microsecond * 4 << multiplier
}

// ForwardOpen returns the Forward Open request body for ids.
func (p Params) ForwardOpen(ids IDs) *ForwardOpen {
	return &ForwardOpen{
		PriorityTick:      p.PriorityTick,
		TimeoutTicks:      p.TimeoutTicks,
		OtoTID:            ids.OtoTID,
		TtoOID:            ids.TtoOID,
		Serial:            ids.Serial,
		VendorID:          p.VendorID,
		OriginatorSerial:  p.OriginatorSerial,
		TimeoutMultiplier: p.TimeoutMultiplier,
		OtoTRPI:           p.OtoTRPI,
		OtoTParams:        p.OtoTParams,
		TtoORPI:           p.TtoORPI,
		TtoOParams:        p.TtoOParams,
		TransportTrigger:  p.TransportTrigger,
		Path:              p.Path,
		Large:             p.Large,
	}
}

// ForwardClose returns the Forward Close request body for the connection
// with the given serial number.
func (p Params) ForwardClose(serial uint16) *ForwardClose {
	return &ForwardClose{
		PriorityTick:     p.PriorityTick,
		TimeoutTicks:     p.TimeoutTicks,
		Serial:           serial,
		VendorID:         p.VendorID,
		OriginatorSerial: p.OriginatorSerial,
		Path:             p.Path,
	}
}

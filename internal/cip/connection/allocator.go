package connection

import (
	"errors"
	"sync"
)

// ErrExhausted is returned when every identifier is in use.
var ErrExhausted = errors.New("connection identifiers exhausted")

// IDs are the identifiers an originator proposes in a Forward Open.
type IDs struct {
	Serial uint16
	OtoTID uint32
	TtoOID uint32
}

// Allocator hands out connection serial numbers and connection ids from
// incrementing counters. Values held by a live connection are skipped until
// released. One Allocator is shared by every connection to a device.
type Allocator struct {
	mu      sync.Mutex
	serial  uint16
	id      uint32
	serials map[uint16]bool
	ids     map[uint32]bool
}

// NewAllocator returns an allocator whose first serial is serial+1 and
// first connection id is id+1.
func NewAllocator(serial uint16, id uint32) *Allocator {
	return &Allocator{
		serial:  serial,
		id:      id,
		serials: make(map[uint16]bool),
		ids:     make(map[uint32]bool),
	}
}

// Allocate reserves a serial number and two connection ids.
func (a *Allocator) Allocate() (IDs, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	var out IDs
	found := false
	for range 1 << 16 {
		a.serial++
		if !a.serials[a.serial] {
			out.Serial, found = a.serial, true
			break
		}
	}
	if !found {
		return IDs{}, ErrExhausted
	}

	first, err := a.nextID()
	if err != nil {
		return IDs{}, err
	}
	a.ids[first] = true
	second, err := a.nextID()
	if err != nil {
		delete(a.ids, first)
		return IDs{}, err
	}
	a.ids[second] = true
	a.serials[out.Serial] = true
	out.OtoTID, out.TtoOID = first, second
	return out, nil
}

// nextID returns the next unused non-zero id. The scan is bounded so a
// saturated table reports exhaustion instead of spinning.
func (a *Allocator) nextID() (uint32, error) {
	for range 1 << 20 {
		a.id++
		if a.id != 0 && !a.ids[a.id] {
			return a.id, nil
		}
	}
	return 0, ErrExhausted
}

// Release returns ids to the pool.
func (a *Allocator) Release(ids IDs) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.serials, ids.Serial)
	delete(a.ids, ids.OtoTID)
	delete(a.ids, ids.TtoOID)
}

// InUse returns the number of serials currently reserved.
func (a *Allocator) InUse() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.serials)
}

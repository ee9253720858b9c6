// Package connection implements CIP connected explicit messaging: the
// Forward Open and Forward Close exchange, sequenced sends and keep-alive.
package connection

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/tturner/cipstack/internal/cip/codec"
	"github.com/tturner/cipstack/internal/cip/protocol"
	"github.com/tturner/cipstack/internal/correlate"
	"github.com/tturner/cipstack/internal/logging"
)

var (
	ErrNotEstablished    = errors.New("connection not established")
	ErrInvalidState      = errors.New("invalid connection state")
	ErrConnectionClosing = errors.New("connection closing")
)

// State is the lifecycle state of a connection.
type State int

const (
	Idle State = iota
	Connecting
	Established
	Closing
)

func (s State) String() string {
	switch s {
	case Idle:
		return "Idle"
	case Connecting:
		return "Connecting"
	case Established:
		return "Established"
	case Closing:
		return "Closing"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Transport is the lower layer a connection sends through.
type Transport interface {
	// SendUnconnected sends req as an unconnected message. done is invoked
	// once with the parsed reply or an error; a positive timeout bounds the
	// wait.
	SendUnconnected(req *protocol.Request, timeout time.Duration, done func(*protocol.Response, error)) error
	// SendConnected submits a connected message on the O->T connection id.
	SendConnected(connID uint32, data []byte) error
}

// Stats counts connected traffic.
type Stats struct {
	Sent    uint64
	Resent  uint64
	Replies uint64
	Dropped uint64
}

// Option configures a Connection.
type Option func(*Connection)

// WithClock replaces the system clock.
func WithClock(clock correlate.Clock) Option {
	return func(c *Connection) { c.clock = clock }
}

// WithLogger sets the logger.
func WithLogger(logger *logging.Logger) Option {
	return func(c *Connection) { c.log = logger }
}

// Connection is one connected messaging session with a target.
//
// Callbacks never run with the connection's lock held, so they may call
// back into the connection.
type Connection struct {
	transport Transport
	alloc     *Allocator
	params    Params
	clock     correlate.Clock
	log       *logging.Logger
	pending   *correlate.Table[uint16, []byte]

	mu         sync.Mutex
	state      State
	gen        uint64 // advanced whenever the connection returns to Idle
	ids        IDs
	otoTID     uint32
	ttoOID     uint32
	otoTAPI    uint32
	ttoOAPI    uint32
	timeout    time.Duration
	seq        uint16
	last       []byte
	resend     correlate.Timer
	resendGen  uint64
	closeTimer correlate.Timer

	openDone       func(error)
	closeRequested bool
	closeWaiters   []func(error)
	stats          Stats
}

// New returns an idle connection that allocates its identifiers from alloc.
func New(transport Transport, alloc *Allocator, params Params, opts ...Option) *Connection {
	c := &Connection{
		transport: transport,
		alloc:     alloc,
		params:    params,
		clock:     correlate.SystemClock{},
		log:       logging.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.pending = correlate.NewTable[uint16, []byte](c.clock)
	return c
}

// Open sends a Forward Open. done is invoked once when the connection is
// established or the open fails. Open itself only fails when the request
// cannot be started.
func (c *Connection) Open(done func(error)) error {
	c.mu.Lock()
	if c.state != Idle {
		state := c.state
		c.mu.Unlock()
		return fmt.Errorf("%w: open in state %s", ErrInvalidState, state)
	}
	ids, err := c.alloc.Allocate()
	if err != nil {
		c.mu.Unlock()
		return err
	}
	req, err := c.params.ForwardOpen(ids).Request()
	if err != nil {
		c.alloc.Release(ids)
		c.mu.Unlock()
		return err
	}
	c.ids = ids
	c.state = Connecting
	c.openDone = done
	gen := c.gen
	c.mu.Unlock()

	c.log.Verbose("connection 0x%04X: Idle -> Connecting (O->T 0x%08X, T->O 0x%08X)", ids.Serial, ids.OtoTID, ids.TtoOID)
	err = c.transport.SendUnconnected(req, c.params.OpenTimeout, func(resp *protocol.Response, err error) {
		c.opened(gen, resp, err)
	})
	if err != nil {
		c.opened(gen, nil, err)
	}
	return nil
}

func (c *Connection) opened(gen uint64, resp *protocol.Response, err error) {
	c.mu.Lock()
	if c.gen != gen || c.state != Connecting {
		c.mu.Unlock()
		return
	}
	done := c.openDone
	c.openDone = nil

	var reply *ForwardOpenReply
	if err == nil {
		var ok bool
		if reply, ok = resp.Value.(*ForwardOpenReply); !ok {
			err = fmt.Errorf("%w: forward open reply carries no connection data", codec.ErrMalformed)
		}
	}
	if err != nil {
		serial := c.ids.Serial
		c.toIdleLocked()
		waiters := c.takeWaitersLocked()
		c.mu.Unlock()

		c.log.Info("connection 0x%04X: forward open failed: %v", serial, err)
		notify(waiters, nil)
		if done != nil {
			done(fmt.Errorf("forward open: %w", err))
		}
		return
	}

	c.otoTID, c.ttoOID = reply.OtoTID, reply.TtoOID
	c.otoTAPI, c.ttoOAPI = reply.OtoTAPI, reply.TtoOAPI
	c.timeout = Timeout(reply.OtoTAPI, reply.TtoOAPI, c.params.TimeoutMultiplier)
	c.state = Established
	var startClose func()
	if c.closeRequested {
		startClose = c.beginCloseLocked()
	}
	serial := c.ids.Serial
	c.mu.Unlock()

	c.log.Verbose("connection 0x%04X: Connecting -> Established (O->T 0x%08X, T->O 0x%08X, timeout %s)",
		serial, reply.OtoTID, reply.TtoOID, c.timeout)
	if done != nil {
		done(nil)
	}
	if startClose != nil {
		startClose()
	}
}

// Send transmits req on the connection and returns its sequence count. done
// is invoked once with the parsed reply, a timeout after a positive timeout,
// or the error that ended the connection. Send itself only fails when the
// message cannot be sent.
func (c *Connection) Send(req *protocol.Request, timeout time.Duration, done func(*protocol.Response, error)) (uint16, error) {
	if done == nil {
		done = func(*protocol.Response, error) {}
	}
	body, err := req.Encode()
	if err != nil {
		return 0, err
	}

	c.mu.Lock()
	if c.state != Established {
		state := c.state
		c.mu.Unlock()
		return 0, fmt.Errorf("%w: send in state %s", ErrNotEstablished, state)
	}
	c.seq++
	seq := c.seq
	msg := make([]byte, 2+len(body))
	codec.PutUint16(msg, seq)
	copy(msg[2:], body)

	err = c.pending.Register(seq, timeout, func(data []byte, err error) {
		if err != nil {
			done(nil, err)
			return
		}
		done(req.Response(data))
	})
	if err != nil {
		c.mu.Unlock()
		return 0, err
	}
	c.last = msg
	c.stats.Sent++
	c.armResendLocked()
	id, gen := c.otoTID, c.gen
	c.mu.Unlock()

	c.log.LogHex(fmt.Sprintf("connected send seq %d", seq), msg)
	if err := c.transport.SendConnected(id, msg); err != nil {
		c.fault(gen, err)
	}
	return seq, nil
}

// Cancel drops the pending send with sequence seq without invoking its
// continuation. It reports whether the send was still pending.
func (c *Connection) Cancel(seq uint16) bool {
	return c.pending.Cancel(seq)
}

// HandleMessage accepts a connected message from the target: a sequence
// count followed by a reply. Replies for sequences that are not pending,
// such as echoes of a keep-alive resend, are dropped.
func (c *Connection) HandleMessage(data []byte) error {
	if len(data) < 2 {
		return fmt.Errorf("%w: connected message of %d bytes", codec.ErrShortBuffer, len(data))
	}
	seq := codec.Uint16(data)
	if c.pending.Resolve(seq, data[2:]) {
		c.mu.Lock()
		c.stats.Replies++
		c.mu.Unlock()
		return nil
	}
	c.mu.Lock()
	c.stats.Dropped++
	c.mu.Unlock()
	c.log.Debug("connection: dropped reply for sequence %d", seq)
	return nil
}

// Close sends a Forward Close. A close requested while the connection is
// still opening is sent once the open completes. done is invoked once the
// connection is idle again: with nil after a successful reply or an open
// that never completed, or with the error that ended the close.
func (c *Connection) Close(done func(error)) error {
	c.mu.Lock()
	switch c.state {
	case Idle:
		c.mu.Unlock()
		return fmt.Errorf("%w: close in state %s", ErrInvalidState, Idle)
	case Connecting:
		c.closeRequested = true
		c.addWaiterLocked(done)
		serial := c.ids.Serial
		c.mu.Unlock()
		c.log.Verbose("connection 0x%04X: close deferred until open completes", serial)
		return nil
	case Closing:
		c.addWaiterLocked(done)
		c.mu.Unlock()
		return nil
	}
	c.addWaiterLocked(done)
	start := c.beginCloseLocked()
	c.mu.Unlock()
	start()
	return nil
}

// beginCloseLocked moves to Closing and returns the work to run once the
// lock is released.
func (c *Connection) beginCloseLocked() func() {
	c.state = Closing
	c.closeRequested = false
	c.stopResendLocked()
	gen, serial := c.gen, c.ids.Serial
	req, reqErr := c.params.ForwardClose(serial).Request()
	if c.params.CloseTimeout > 0 {
		c.closeTimer = c.clock.AfterFunc(c.params.CloseTimeout, func() {
			c.closed(gen, fmt.Errorf("forward close: %w", correlate.ErrTimeout))
		})
	}

	return func() {
		c.log.Verbose("connection 0x%04X: Established -> Closing", serial)
		c.pending.RejectAll(ErrConnectionClosing)
		if reqErr != nil {
			c.closed(gen, reqErr)
			return
		}
		err := c.transport.SendUnconnected(req, c.params.CloseTimeout, func(_ *protocol.Response, err error) {
			if err != nil {
				err = fmt.Errorf("forward close: %w", err)
			}
			c.closed(gen, err)
		})
		if err != nil {
			c.closed(gen, err)
		}
	}
}

func (c *Connection) closed(gen uint64, err error) {
	c.mu.Lock()
	if c.gen != gen || c.state != Closing {
		c.mu.Unlock()
		return
	}
	serial := c.ids.Serial
	c.toIdleLocked()
	waiters := c.takeWaitersLocked()
	c.mu.Unlock()

	if err != nil {
		c.log.Info("connection 0x%04X: Closing -> Idle: %v", serial, err)
	} else {
		c.log.Verbose("connection 0x%04X: Closing -> Idle", serial)
	}
	notify(waiters, err)
}

// Fault returns the connection to Idle after a transport error. Pending
// sends, an open in progress and close waiters all receive err.
func (c *Connection) Fault(err error) {
	c.mu.Lock()
	gen := c.gen
	c.mu.Unlock()
	c.fault(gen, err)
}

func (c *Connection) fault(gen uint64, err error) {
	c.mu.Lock()
	if c.gen != gen || c.state == Idle {
		c.mu.Unlock()
		return
	}
	prev, serial := c.state, c.ids.Serial
	done := c.openDone
	c.openDone = nil
	c.toIdleLocked()
	waiters := c.takeWaitersLocked()
	c.mu.Unlock()

	c.log.Error("connection 0x%04X: %s -> Idle: %v", serial, prev, err)
	c.pending.RejectAll(fmt.Errorf("connection fault: %w", err))
	if done != nil {
		done(err)
	}
	notify(waiters, err)
}

func (c *Connection) toIdleLocked() {
	c.stopResendLocked()
	if c.closeTimer != nil {
		c.closeTimer.Stop()
		c.closeTimer = nil
	}
	c.alloc.Release(c.ids)
	c.ids = IDs{}
	c.otoTID, c.ttoOID = 0, 0
	c.otoTAPI, c.ttoOAPI = 0, 0
	c.timeout = 0
	c.last = nil
	c.closeRequested = false
	c.state = Idle
	c.gen++
}

// armResendLocked schedules a resend of the last message at three quarters
// of the target's inactivity timeout, replacing any earlier schedule.
func (c *Connection) armResendLocked() {
	c.stopResendLocked()
	if c.timeout <= 0 {
		return
	}
	rg := c.resendGen
	c.resend = c.clock.AfterFunc(c.timeout*3/4, func() { c.keepAlive(rg) })
}

func (c *Connection) stopResendLocked() {
	if c.resend != nil {
		c.resend.Stop()
		c.resend = nil
	}
	c.resendGen++
}

func (c *Connection) keepAlive(rg uint64) {
	c.mu.Lock()
	if c.state != Established || rg != c.resendGen || c.last == nil {
		c.mu.Unlock()
		return
	}
	msg, id, gen := c.last, c.otoTID, c.gen
	c.stats.Resent++
	c.armResendLocked()
	c.mu.Unlock()

	c.log.Debug("connection: keep-alive resend of sequence %d", codec.Uint16(msg))
	if err := c.transport.SendConnected(id, msg); err != nil {
		c.fault(gen, err)
	}
}

func (c *Connection) addWaiterLocked(done func(error)) {
	if done != nil {
		c.closeWaiters = append(c.closeWaiters, done)
	}
}

func (c *Connection) takeWaitersLocked() []func(error) {
	waiters := c.closeWaiters
	c.closeWaiters = nil
	return waiters
}

func notify(waiters []func(error), err error) {
	for _, w := range waiters {
		w(err)
	}
}

// State returns the current state.
func (c *Connection) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// ConnectionIDs returns the negotiated O->T and T->O connection ids.
func (c *Connection) ConnectionIDs() (otoT, ttoO uint32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.otoTID, c.ttoOID
}

// Serial returns the connection serial number of the current session.
func (c *Connection) Serial() uint16 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ids.Serial
}

// Rates returns the actual packet intervals granted by the target.
func (c *Connection) Rates() (otoT, ttoO uint32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.otoTAPI, c.ttoOAPI
}

// Timeout returns the target's inactivity timeout for the established
// connection.
func (c *Connection) Timeout() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.timeout
}

// Sequence returns the sequence count of the last connected send.
func (c *Connection) Sequence() uint16 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.seq
}

// Outstanding returns the number of sends awaiting a reply.
func (c *Connection) Outstanding() int {
	return c.pending.Len()
}

// Stats returns traffic counters.
func (c *Connection) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

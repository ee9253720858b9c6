// Package messenger is the upper layer of the stack. It correlates
// unconnected requests with replies by a sender context token, routes
// connected replies to their connection by connection id and offers
// blocking helpers bounded by a context.Context.
package messenger

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/tturner/cipstack/internal/cip/connection"
	"github.com/tturner/cipstack/internal/cip/protocol"
	"github.com/tturner/cipstack/internal/correlate"
	"github.com/tturner/cipstack/internal/enip"
	"github.com/tturner/cipstack/internal/logging"
)

var (
	ErrUnknownConnection = errors.New("no connection for connection id")
	ErrClosed            = errors.New("messenger closed")
)

// DefaultRequestTimeout bounds unconnected and connected requests when no
// timeout is configured.
const DefaultRequestTimeout = 5 * time.Second

// Lower submits CIP messages to the network along a route.
type Lower interface {
	Submit(msg []byte, route enip.Route) error
}

// Stats counts unconnected traffic.
type Stats struct {
	Requests uint64
	Replies  uint64
	Dropped  uint64
}

// Option configures a Messenger.
type Option func(*Messenger)

// WithClock replaces the system clock.
func WithClock(clock correlate.Clock) Option {
	return func(m *Messenger) { m.clock = clock }
}

// WithLogger sets the logger.
func WithLogger(logger *logging.Logger) Option {
	return func(m *Messenger) {
		if logger != nil {
			m.log = logger
		}
	}
}

// WithAllocator shares a connection id allocator between messengers.
func WithAllocator(alloc *connection.Allocator) Option {
	return func(m *Messenger) { m.alloc = alloc }
}

// WithRequestTimeout sets the timeout of the blocking helpers.
func WithRequestTimeout(d time.Duration) Option {
	return func(m *Messenger) { m.timeout = d }
}

// Messenger implements connection.Transport on top of a Lower.
type Messenger struct {
	lower   Lower
	clock   correlate.Clock
	log     *logging.Logger
	alloc   *connection.Allocator
	timeout time.Duration
	pending *correlate.Table[uint64, []byte]

	mu     sync.Mutex
	token  uint64
	conns  map[uint32]*connection.Connection // by T->O connection id
	closed bool
	stats  Stats
}

// New returns a messenger submitting through lower.
func New(lower Lower, opts ...Option) *Messenger {
	m := &Messenger{
		lower:   lower,
		clock:   correlate.SystemClock{},
		log:     logging.Nop(),
		timeout: DefaultRequestTimeout,
		conns:   make(map[uint32]*connection.Connection),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.alloc == nil {
		m.alloc = connection.NewAllocator(uint16(m.clock.Now().UnixNano()), uint32(m.clock.Now().Unix()))
	}
	m.pending = correlate.NewTable[uint64, []byte](m.clock)
	return m
}

// SendUnconnected submits req with a fresh context token. done is invoked
// once with the parsed reply or an error, unless submission fails, in
// which case done is never invoked and the error is returned.
func (m *Messenger) SendUnconnected(req *protocol.Request, timeout time.Duration, done func(*protocol.Response, error)) error {
	_, err := m.sendUnconnected(req, timeout, done)
	return err
}

func (m *Messenger) sendUnconnected(req *protocol.Request, timeout time.Duration, done func(*protocol.Response, error)) (uint64, error) {
	if done == nil {
		done = func(*protocol.Response, error) {}
	}
	msg, err := req.Encode()
	if err != nil {
		return 0, err
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return 0, ErrClosed
	}
	m.token++
	token := m.token
	m.stats.Requests++
	m.mu.Unlock()

	err = m.pending.Register(token, timeout, func(data []byte, err error) {
		if err != nil {
			done(nil, err)
			return
		}
		done(req.Response(data))
	})
	if err != nil {
		return 0, err
	}

	m.log.LogHex(fmt.Sprintf("unconnected request 0x%02X context %d", uint8(req.Service), token), msg)
	if err := m.lower.Submit(msg, enip.Route{Context: token}); err != nil {
		m.pending.Cancel(token)
		return 0, fmt.Errorf("submit unconnected request: %w", err)
	}
	return token, nil
}

// SendConnected submits data on the O->T connection id.
func (m *Messenger) SendConnected(connID uint32, data []byte) error {
	m.mu.Lock()
	closed := m.closed
	m.mu.Unlock()
	if closed {
		return ErrClosed
	}
	m.log.LogHex(fmt.Sprintf("connected send on 0x%08X", connID), data)
	if err := m.lower.Submit(data, enip.Route{Connected: true, ConnectionID: connID}); err != nil {
		return fmt.Errorf("submit connected message: %w", err)
	}
	return nil
}

// Deliver accepts a message from the network. Unconnected replies are
// matched by context token; connected messages go to the connection whose
// T->O id they carry. Replies nobody waits for are dropped.
func (m *Messenger) Deliver(msg []byte, route enip.Route) error {
	if route.Connected {
		m.mu.Lock()
		conn := m.conns[route.ConnectionID]
		m.mu.Unlock()
		if conn == nil {
			m.log.Debug("messenger: dropped connected message for unknown id 0x%08X", route.ConnectionID)
			return fmt.Errorf("%w 0x%08X", ErrUnknownConnection, route.ConnectionID)
		}
		return conn.HandleMessage(msg)
	}

	m.log.LogHex(fmt.Sprintf("unconnected reply context %d", route.Context), msg)
	if m.pending.Resolve(route.Context, msg) {
		m.mu.Lock()
		m.stats.Replies++
		m.mu.Unlock()
		return nil
	}
	m.mu.Lock()
	m.stats.Dropped++
	m.mu.Unlock()
	m.log.Debug("messenger: dropped reply for context %d", route.Context)
	return nil
}

// HandleFrame unwraps an encapsulation frame and delivers its message.
func (m *Messenger) HandleFrame(frame []byte) error {
	msg, route, err := enip.Unwrap(frame)
	if err != nil {
		return err
	}
	return m.Deliver(msg, route)
}

// Fault reports a lower layer failure. Pending requests and every attached
// connection fail with err.
func (m *Messenger) Fault(err error) {
	m.mu.Lock()
	conns := m.takeConnsLocked()
	m.mu.Unlock()

	m.log.Error("messenger: transport fault: %v", err)
	m.pending.RejectAll(err)
	for _, c := range conns {
		c.Fault(err)
	}
}

// Close fails everything outstanding with ErrClosed and rejects further
// submissions.
func (m *Messenger) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	conns := m.takeConnsLocked()
	m.mu.Unlock()

	m.pending.RejectAll(ErrClosed)
	for _, c := range conns {
		c.Fault(ErrClosed)
	}
}

func (m *Messenger) takeConnsLocked() []*connection.Connection {
	conns := make([]*connection.Connection, 0, len(m.conns))
	for id, c := range m.conns {
		conns = append(conns, c)
		delete(m.conns, id)
	}
	return conns
}

// Attach routes connected messages carrying the T->O id of c to c.
func (m *Messenger) Attach(c *connection.Connection) {
	_, ttoO := c.ConnectionIDs()
	m.mu.Lock()
	m.conns[ttoO] = c
	m.mu.Unlock()
}

// Detach stops routing to the connection registered for ttoO.
func (m *Messenger) Detach(ttoO uint32) {
	m.mu.Lock()
	delete(m.conns, ttoO)
	m.mu.Unlock()
}

// Outstanding returns the number of unconnected requests awaiting a reply.
func (m *Messenger) Outstanding() int {
	return m.pending.Len()
}

// Stats returns traffic counters.
func (m *Messenger) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stats
}

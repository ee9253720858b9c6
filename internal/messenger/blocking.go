package messenger

import (
	"context"
	"fmt"

	"github.com/tturner/cipstack/internal/cip/connection"
	"github.com/tturner/cipstack/internal/cip/protocol"
)

type result struct {
	resp *protocol.Response
	err  error
}

// Request sends req unconnected and waits for the reply. The reply is
// returned with its error for error statuses, so callers can inspect both.
func (m *Messenger) Request(ctx context.Context, req *protocol.Request) (*protocol.Response, error) {
	ch := make(chan result, 1)
	token, err := m.sendUnconnected(req, m.timeout, func(resp *protocol.Response, err error) {
		ch <- result{resp, err}
	})
	if err != nil {
		return nil, err
	}
	select {
	case r := <-ch:
		return r.resp, r.err
	case <-ctx.Done():
		m.pending.Cancel(token)
		return nil, ctx.Err()
	}
}

// Connect opens a connection with params and waits until it is
// established. If ctx ends first the connection is closed once the open
// completes.
func (m *Messenger) Connect(ctx context.Context, params connection.Params) (*connection.Connection, error) {
	c := connection.New(m, m.alloc, params, connection.WithClock(m.clock), connection.WithLogger(m.log))
	ch := make(chan error, 1)
	if err := c.Open(func(err error) { ch <- err }); err != nil {
		return nil, err
	}
	select {
	case err := <-ch:
		if err != nil {
			return nil, err
		}
	case <-ctx.Done():
		if err := c.Close(nil); err != nil {
			m.log.Debug("messenger: abandon open: %v", err)
		}
		return nil, ctx.Err()
	}
	m.Attach(c)
	otoT, ttoO := c.ConnectionIDs()
	m.log.Info("connected: serial 0x%04X, O->T 0x%08X, T->O 0x%08X", c.Serial(), otoT, ttoO)
	return c, nil
}

// Send sends req on c and waits for the reply.
func (m *Messenger) Send(ctx context.Context, c *connection.Connection, req *protocol.Request) (*protocol.Response, error) {
	ch := make(chan result, 1)
	seq, err := c.Send(req, m.timeout, func(resp *protocol.Response, err error) {
		ch <- result{resp, err}
	})
	if err != nil {
		return nil, err
	}
	select {
	case r := <-ch:
		return r.resp, r.err
	case <-ctx.Done():
		c.Cancel(seq)
		return nil, ctx.Err()
	}
}

// Disconnect closes c and waits for the Forward Close to finish. Routing
// to c stops either way.
func (m *Messenger) Disconnect(ctx context.Context, c *connection.Connection) error {
	_, ttoO := c.ConnectionIDs()
	defer m.Detach(ttoO)

	ch := make(chan error, 1)
	if err := c.Close(func(err error) { ch <- err }); err != nil {
		return err
	}
	select {
	case err := <-ch:
		if err != nil {
			return fmt.Errorf("disconnect: %w", err)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

package target

import (
	"context"
	"errors"
	"sync"
)

// ErrPipeClosed is returned by Write after Close.
var ErrPipeClosed = errors.New("target pipe closed")

// Pipe connects a frame writer to a Target. Frames written to the pipe are
// answered by Run on its own goroutine, so a writer holding a lock never
// receives its reply synchronously.
type Pipe struct {
	target *Target
	frames chan []byte

	once sync.Once
	done chan struct{}
}

// NewPipe returns a pipe buffering up to depth frames.
func NewPipe(t *Target, depth int) *Pipe {
	if depth < 1 {
		depth = 1
	}
	return &Pipe{target: t, frames: make(chan []byte, depth), done: make(chan struct{})}
}

// Write queues one whole frame. It blocks while the queue is full.
func (p *Pipe) Write(frame []byte) (int, error) {
	buf := append([]byte(nil), frame...)
	select {
	case <-p.done:
		return 0, ErrPipeClosed
	default:
	}
	select {
	case p.frames <- buf:
		return len(frame), nil
	case <-p.done:
		return 0, ErrPipeClosed
	}
}

// Close stops Run and fails later writes.
func (p *Pipe) Close() error {
	p.once.Do(func() { close(p.done) })
	return nil
}

// Run answers queued frames and passes each reply to deliver until ctx is
// done or the pipe is closed. Frames the target cannot decode are dropped.
func (p *Pipe) Run(ctx context.Context, deliver func(frame []byte)) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-p.done:
			return nil
		case frame := <-p.frames:
			reply, err := p.target.HandleFrame(frame)
			if err != nil {
				p.target.log.Debug("target: dropped frame: %v", err)
				continue
			}
			if reply != nil {
				deliver(reply)
			}
		}
	}
}

// Package correlate matches replies to outstanding requests by token.
package correlate

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

var (
	// ErrTimeout is passed to a continuation whose reply did not arrive in time.
	ErrTimeout = errors.New("request timed out")
	// ErrDuplicateToken is returned when a token is already outstanding.
	ErrDuplicateToken = errors.New("token already pending")
)

// Continuation receives the reply for a token, or the error that ended it.
// It is invoked exactly once.
type Continuation[V any] func(reply V, err error)

type entry[V any] struct {
	fn    Continuation[V]
	timer Timer
}

// Table maps outstanding tokens to continuations. Continuations run outside
// the table lock, so they may register new tokens.
type Table[K comparable, V any] struct {
	mu      sync.Mutex
	clock   Clock
	pending map[K]*entry[V]
}

// NewTable returns an empty table. A nil clock uses the system clock.
func NewTable[K comparable, V any](clock Clock) *Table[K, V] {
	if clock == nil {
		clock = SystemClock{}
	}
	return &Table[K, V]{clock: clock, pending: make(map[K]*entry[V])}
}

// Register adds a continuation for key. A positive timeout evicts the entry
// and invokes fn with ErrTimeout once it elapses.
func (t *Table[K, V]) Register(key K, timeout time.Duration, fn Continuation[V]) error {
	if fn == nil {
		panic("correlate: nil continuation")
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.pending[key]; ok {
		return fmt.Errorf("%w: %v", ErrDuplicateToken, key)
	}
	e := &entry[V]{fn: fn}
	if timeout > 0 {
		e.timer = t.clock.AfterFunc(timeout, func() {
			if t.take(key, e) {
				var zero V
				fn(zero, fmt.Errorf("%w after %s", ErrTimeout, timeout))
			}
		})
	}
	t.pending[key] = e
	return nil
}

// Resolve completes key with reply. It returns false when key is not
// pending, which covers late and duplicate replies.
func (t *Table[K, V]) Resolve(key K, reply V) bool {
	e := t.remove(key)
	if e == nil {
		return false
	}
	e.fn(reply, nil)
	return true
}

// Reject completes key with err.
func (t *Table[K, V]) Reject(key K, err error) bool {
	e := t.remove(key)
	if e == nil {
		return false
	}
	var zero V
	e.fn(zero, err)
	return true
}

// Cancel removes key without invoking its continuation.
func (t *Table[K, V]) Cancel(key K) bool {
	return t.remove(key) != nil
}

// RejectAll completes every pending key with err and returns how many
// there were.
func (t *Table[K, V]) RejectAll(err error) int {
	t.mu.Lock()
	entries := make([]*entry[V], 0, len(t.pending))
	for key, e := range t.pending {
		if e.timer != nil {
			e.timer.Stop()
		}
		delete(t.pending, key)
		entries = append(entries, e)
	}
	t.mu.Unlock()

	var zero V
	for _, e := range entries {
		e.fn(zero, err)
	}
	return len(entries)
}

// Pending reports whether key is outstanding.
func (t *Table[K, V]) Pending(key K) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.pending[key]
	return ok
}

// Len returns the number of outstanding keys.
func (t *Table[K, V]) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.pending)
}

func (t *Table[K, V]) remove(key K) *entry[V] {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.pending[key]
	if !ok {
		return nil
	}
	delete(t.pending, key)
	if e.timer != nil {
		e.timer.Stop()
	}
	return e
}

// take removes key only if it still maps to e, so a timer never evicts a
// later registration that reused the key.
func (t *Table[K, V]) take(key K, e *entry[V]) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.pending[key] != e {
		return false
	}
	delete(t.pending, key)
	return true
}

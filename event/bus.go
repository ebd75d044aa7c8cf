package event

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
)

// DefaultCapacity is the per-receiver queue size used when none is given.
const DefaultCapacity = 256

// ErrClosed is returned by Recv once the receiver (or its bus) is closed and
// its queue has been drained.
var ErrClosed = errors.New("event: receiver closed")

// LaggedError reports that a receiver fell behind and Missed events were
// dropped from its queue. The next Recv resumes with the oldest retained event.
type LaggedError struct {
	Missed uint64
}

func (e *LaggedError) Error() string {
	return fmt.Sprintf("event: receiver lagged, %d events dropped", e.Missed)
}

// IsLagged reports whether err is a *LaggedError.
func IsLagged(err error) bool {
	var lag *LaggedError
	return errors.As(err, &lag)
}

// Publisher is the publish half of the bus handed to handlers.
type Publisher interface {
	Publish(ev Event) int
}

// Stats is a snapshot of bus counters.
type Stats struct {
	Published uint64 // events accepted by Publish
	Discarded uint64 // events published while nobody was subscribed
	Dropped   uint64 // events dropped from lagging receivers
	Receivers int
}

// Bus is a bounded, lossy broadcast channel. Publish never blocks: a slow
// receiver loses its own oldest events instead of stalling the publisher.
type Bus struct {
	capacity int

	mu        sync.RWMutex
	receivers map[*Receiver]struct{}
	closed    bool

	published atomic.Uint64
	discarded atomic.Uint64
	dropped   atomic.Uint64
}

// NewBus returns a bus whose receivers each buffer up to capacity events.
func NewBus(capacity int) *Bus {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Bus{
		capacity:  capacity,
		receivers: make(map[*Receiver]struct{}),
	}
}

// Capacity returns the per-receiver queue size.
func (b *Bus) Capacity() int { return b.capacity }

// Subscribe creates a receiver that observes every event published from now on.
// Subscribing to a closed bus returns an already closed receiver.
func (b *Bus) Subscribe() *Receiver {
	r := &Receiver{
		bus:    b,
		buf:    make([]Event, b.capacity),
		notify: make(chan struct{}, 1),
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		r.closed = true
		return r
	}
	b.receivers[r] = struct{}{}
	return r
}

// Publish delivers ev to every current receiver and returns how many were
// reached. Zero receivers is not an error; the event is discarded.
func (b *Bus) Publish(ev Event) int {
	if ev == nil {
		return 0
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return 0
	}
	b.published.Add(1)
	if len(b.receivers) == 0 {
		b.discarded.Add(1)
		return 0
	}
	for r := range b.receivers {
		if r.push(ev) {
			b.dropped.Add(1)
		}
	}
	return len(b.receivers)
}

// ReceiverCount returns the number of live receivers.
func (b *Bus) ReceiverCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.receivers)
}

// Stats returns the current counters.
func (b *Bus) Stats() Stats {
	return Stats{
		Published: b.published.Load(),
		Discarded: b.discarded.Load(),
		Dropped:   b.dropped.Load(),
		Receivers: b.ReceiverCount(),
	}
}

// Close closes every receiver. Buffered events can still be drained.
func (b *Bus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	rs := make([]*Receiver, 0, len(b.receivers))
	for r := range b.receivers {
		rs = append(rs, r)
	}
	b.receivers = map[*Receiver]struct{}{}
	b.mu.Unlock()
	for _, r := range rs {
		r.markClosed()
	}
}

func (b *Bus) remove(r *Receiver) {
	b.mu.Lock()
	delete(b.receivers, r)
	b.mu.Unlock()
}

// Receiver is one subscription: a ring buffer of pending events.
type Receiver struct {
	bus    *Bus
	notify chan struct{}

	mu     sync.Mutex
	buf    []Event
	head   int
	count  int
	missed uint64
	closed bool
}

// push enqueues ev and reports whether an older event had to be dropped.
func (r *Receiver) push(ev Event) (dropped bool) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return false
	}
	if r.count == len(r.buf) {
		r.buf[r.head] = nil
		r.head = (r.head + 1) % len(r.buf)
		r.count--
		r.missed++
		dropped = true
	}
	r.buf[(r.head+r.count)%len(r.buf)] = ev
	r.count++
	r.mu.Unlock()

	select {
	case r.notify <- struct{}{}:
	default:
	}
	return dropped
}

// TryRecv returns the next pending event without waiting. ok is false when the
// queue is empty; err carries lag or close information.
func (r *Receiver) TryRecv() (ev Event, ok bool, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.missed > 0 {
		n := r.missed
		r.missed = 0
		return nil, false, &LaggedError{Missed: n}
	}
	if r.count > 0 {
		ev = r.buf[r.head]
		r.buf[r.head] = nil
		r.head = (r.head + 1) % len(r.buf)
		r.count--
		return ev, true, nil
	}
	if r.closed {
		return nil, false, ErrClosed
	}
	return nil, false, nil
}

// Recv waits for the next event. It returns a *LaggedError once after events
// were dropped, ErrClosed after close, or the context's error.
func (r *Receiver) Recv(ctx context.Context) (Event, error) {
	for {
		ev, ok, err := r.TryRecv()
		if err != nil {
			return nil, err
		}
		if ok {
			return ev, nil
		}
		select {
		case <-r.notify:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// Len returns the number of queued events.
func (r *Receiver) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.count
}

// Close unsubscribes the receiver. Queued events can still be drained.
func (r *Receiver) Close() {
	r.bus.remove(r)
	r.markClosed()
}

func (r *Receiver) markClosed() {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
	select {
	case r.notify <- struct{}{}:
	default:
	}
}

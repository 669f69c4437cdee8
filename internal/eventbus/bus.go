// Package eventbus carries events and commands between the booth's
// long-lived tasks.
//
// Bus is an at-most-once, most-recent-wins multicast: every subscriber owns
// a one-slot buffer and a publish into a full slot replaces the stale value
// instead of queueing behind it. A slow subscriber therefore misses
// intermediate values but always sees the newest one. Publishing never
// blocks.
//
// Mailbox is the single-consumer command side: capacity one, so a sender
// waits until the previous command was drained.
package eventbus

import (
	"errors"
	"sync"
	"sync/atomic"
)

var (
	// ErrNoSubscribers is returned by Publish when nobody is listening.
	ErrNoSubscribers = errors.New("event has no live subscribers")

	// ErrBusClosed is returned by Publish and Subscribe after Close.
	ErrBusClosed = errors.New("event bus is closed")
)

// Stats is a snapshot of bus counters.
type Stats struct {
	Published   uint64
	Delivered   uint64
	Replaced    uint64
	Subscribers int
}

// Bus multicasts values of type T.
type Bus[T any] struct {
	mu     sync.Mutex
	subs   map[uint64]*Subscription[T]
	nextID uint64
	closed bool

	published atomic.Uint64
	delivered atomic.Uint64
	replaced  atomic.Uint64
}

// New creates an empty bus.
func New[T any]() *Bus[T] {
	return &Bus[T]{subs: make(map[uint64]*Subscription[T])}
}

// Subscription is one receiver of a Bus.
type Subscription[T any] struct {
	bus  *Bus[T]
	id   uint64
	ch   chan T
	once sync.Once
}

// Subscribe registers a new receiver. Values published before this call are
// not replayed. On a closed bus the returned subscription's channel is
// already closed.
func (b *Bus[T]) Subscribe() *Subscription[T] {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub := &Subscription[T]{bus: b, ch: make(chan T, 1)}
	if b.closed {
		close(sub.ch)
		sub.once.Do(func() {})
		return sub
	}
	b.nextID++
	sub.id = b.nextID
	b.subs[sub.id] = sub
	return sub
}

// C returns the receive channel. It is closed when the subscription or the
// bus is closed.
func (s *Subscription[T]) C() <-chan T {
	return s.ch
}

// Close unregisters the subscription. Safe to call more than once.
func (s *Subscription[T]) Close() {
	s.bus.mu.Lock()
	defer s.bus.mu.Unlock()
	s.closeLocked()
}

func (s *Subscription[T]) closeLocked() {
	s.once.Do(func() {
		delete(s.bus.subs, s.id)
		close(s.ch)
	})
}

// Publish hands v to every subscriber without blocking. A subscriber whose
// slot is still occupied gets its stale value replaced by v.
func (b *Bus[T]) Publish(v T) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrBusClosed
	}
	b.published.Add(1)
	if len(b.subs) == 0 {
		return ErrNoSubscribers
	}

	for _, sub := range b.subs {
		select {
		case sub.ch <- v:
			b.delivered.Add(1)
			continue
		default:
		}
		// Slot full: drop the stale value so the newest one wins.
		select {
		case <-sub.ch:
			b.replaced.Add(1)
		default:
		}
		select {
		case sub.ch <- v:
			b.delivered.Add(1)
		default:
		}
	}
	return nil
}

// Close closes every subscription and rejects further use.
func (b *Bus[T]) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	for _, sub := range b.subs {
		sub.closeLocked()
	}
}

// Stats returns the current counters.
func (b *Bus[T]) Stats() Stats {
	b.mu.Lock()
	n := len(b.subs)
	b.mu.Unlock()
	return Stats{
		Published:   b.published.Load(),
		Delivered:   b.delivered.Load(),
		Replaced:    b.replaced.Load(),
		Subscribers: n,
	}
}

package eventbus

import (
	"context"
	"errors"
	"sync"
)

// ErrConsumerGone is returned by Send once the consumer closed the mailbox.
var ErrConsumerGone = errors.New("command consumer has gone away")

// Mailbox is a capacity-one command channel with a single consumer.
//
// The data channel is never closed, so a Send racing with Close cannot
// panic; the consumer signals its departure through done instead.
type Mailbox[T any] struct {
	ch   chan T
	done chan struct{}
	once sync.Once
}

// NewMailbox creates an open mailbox.
func NewMailbox[T any]() *Mailbox[T] {
	return &Mailbox[T]{
		ch:   make(chan T, 1),
		done: make(chan struct{}),
	}
}

// Send enqueues v, waiting while the previous command is still undrained.
func (m *Mailbox[T]) Send(ctx context.Context, v T) error {
	select {
	case <-m.done:
		return ErrConsumerGone
	default:
	}
	select {
	case m.ch <- v:
		return nil
	case <-m.done:
		return ErrConsumerGone
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Receive is the consumer side.
func (m *Mailbox[T]) Receive() <-chan T {
	return m.ch
}

// Close marks the consumer as gone. Pending and future sends fail.
func (m *Mailbox[T]) Close() {
	m.once.Do(func() { close(m.done) })
}

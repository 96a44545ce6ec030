// Package bus carries chat events from channel adapters to the ingestion
// workers.
package bus

import (
	"context"
	"errors"
	"sync/atomic"
)

// ErrBusClosed is returned when publishing to a closed MessageBus.
var ErrBusClosed = errors.New("message bus closed")

const defaultBufferSize = 100

type MessageBus struct {
	inbound chan Event
	done    chan struct{}
	closed  atomic.Bool
}

func NewMessageBus() *MessageBus {
	return NewMessageBusSize(defaultBufferSize)
}

// NewMessageBusSize creates a bus whose inbound queue holds size events.
func NewMessageBusSize(size int) *MessageBus {
	if size < 0 {
		size = 0
	}
	return &MessageBus{
		inbound: make(chan Event, size),
		done:    make(chan struct{}),
	}
}

func (mb *MessageBus) PublishInbound(ctx context.Context, ev Event) error {
	if mb.closed.Load() {
		return ErrBusClosed
	}
	select {
	case mb.inbound <- ev:
		return nil
	case <-mb.done:
		return ErrBusClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (mb *MessageBus) ConsumeInbound(ctx context.Context) (Event, bool) {
	select {
	case ev, ok := <-mb.inbound:
		return ev, ok
	case <-mb.done:
		return Event{}, false
	case <-ctx.Done():
		return Event{}, false
	}
}

// TryConsumeInbound returns a queued event without blocking. It keeps
// returning events left in the queue after Close.
func (mb *MessageBus) TryConsumeInbound() (Event, bool) {
	select {
	case ev, ok := <-mb.inbound:
		return ev, ok
	default:
		return Event{}, false
	}
}

func (mb *MessageBus) Close() {
	if mb.closed.CompareAndSwap(false, true) {
		close(mb.done)
	}
}

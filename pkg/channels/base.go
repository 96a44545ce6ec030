// Package channels connects chat networks to the message bus.
package channels

import (
	"context"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/tinyland-inc/tgminer/pkg/bus"
)

// Channel is a source of chat events.
type Channel interface {
	Name() string
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	IsRunning() bool
}

type BaseChannel struct {
	bus     *bus.MessageBus
	running atomic.Bool
	name    string
}

func NewBaseChannel(name string, mb *bus.MessageBus) *BaseChannel {
	return &BaseChannel{
		bus:  mb,
		name: name,
	}
}

func (c *BaseChannel) Name() string {
	return c.name
}

func (c *BaseChannel) IsRunning() bool {
	return c.running.Load()
}

func (c *BaseChannel) SetRunning(running bool) {
	c.running.Store(running)
}

// Publish stamps ev with the channel name, and a message id when it has
// none, and hands it to the bus.
func (c *BaseChannel) Publish(ctx context.Context, ev bus.Event) error {
	ev.Channel = c.name
	if ev.MessageID == "" {
		ev.MessageID = uuid.NewString()
	}
	return c.bus.PublishInbound(ctx, ev)
}

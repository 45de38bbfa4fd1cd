package control

import (
	"context"
	"errors"
)

// ErrChannelFull is returned by TrySend when the scheduler is behind.
var ErrChannelFull = errors.New("control: command channel full")

// defaultCapacity is enough for an operator mashing keys during a slow cycle.
const defaultCapacity = 16

// Channel carries commands from any number of sources to the scheduler.
// It is never closed; sources stop when their context ends.
type Channel struct {
	ch chan Command
}

// NewChannel creates a Channel. capacity < 1 uses the default.
func NewChannel(capacity int) *Channel {
	if capacity < 1 {
		capacity = defaultCapacity
	}
	return &Channel{ch: make(chan Command, capacity)}
}

// C returns the receive side for the scheduler.
func (c *Channel) C() <-chan Command {
	return c.ch
}

// Send queues cmd, waiting for space until ctx ends.
func (c *Channel) Send(ctx context.Context, cmd Command) error {
	select {
	case c.ch <- cmd:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// TrySend queues cmd without waiting. Callers on a library's callback
// goroutine (MQTT, HTTP) use this so a stalled scheduler cannot wedge them.
func (c *Channel) TrySend(cmd Command) error {
	select {
	case c.ch <- cmd:
		return nil
	default:
		return ErrChannelFull
	}
}

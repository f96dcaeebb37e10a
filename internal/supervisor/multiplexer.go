// Package supervisor ties the WebSocket control plane and the pool
// sessions together into one cooperative tick loop. Every connection,
// accept loop, and pool session runs on its own goroutine, but all of them
// only ever send onto a shared channel; nothing outside this package reads
// or writes connection state except the single goroutine running Run.
package supervisor

import "time"

// Multiplexer is the process's one suspension point. Every producer
// goroutine (a WS accept loop, a WS connection reader, the pool
// supervisor's event forwarder) sends tagged values on the same channel;
// the tick loop is the only consumer.
type Multiplexer struct {
	events chan any
}

// NewMultiplexer creates a multiplexer with the given channel buffer.
func NewMultiplexer(buffer int) *Multiplexer {
	return &Multiplexer{events: make(chan any, buffer)}
}

// Push enqueues an event. Producer goroutines call this and nothing else.
func (m *Multiplexer) Push(ev any) { m.events <- ev }

// Wait blocks for up to timeout waiting for the first event, then drains
// whatever else is already queued without blocking further. It returns the
// events collected, in arrival order; a nil/empty result means the timeout
// elapsed with no activity.
func (m *Multiplexer) Wait(timeout time.Duration) []any {
	var out []any
	select {
	case ev := <-m.events:
		out = append(out, ev)
	case <-time.After(timeout):
		return out
	}
	for {
		select {
		case ev := <-m.events:
			out = append(out, ev)
		default:
			return out
		}
	}
}

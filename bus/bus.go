// Package bus is the fire-and-forget event channel between the scheduler
// and whatever notification layer observes it. Emitting never blocks a
// tick; when no consumer keeps up, events are dropped and counted.
package bus

import (
	"sync/atomic"

	"github.com/bytedance/sonic"

	"github.com/quantfold/strata/metrics"
)

// EventType classifies an event.
type EventType string

const (
	EventRun    EventType = "run"
	EventError  EventType = "error"
	EventStatus EventType = "status"
)

// Event is one notification about an instance.
type Event struct {
	Type       EventType `json:"type"`
	InstanceID int64     `json:"instanceId"`
	UserID     int64     `json:"userId"`
	Payload    any       `json:"payload,omitempty"`
}

// EncodePayload renders the payload for transport.
func (e Event) EncodePayload() ([]byte, error) {
	return sonic.Marshal(e.Payload)
}

// Bus delivers events to an observer.
type Bus interface {
	Emit(ev Event)
}

// ChannelBus is a buffered in-process bus. Emit drops instead of blocking
// when the buffer is full.
type ChannelBus struct {
	ch      chan Event
	dropped atomic.Int64
}

// NewChannelBus returns a bus with the given buffer size (minimum 1).
func NewChannelBus(buffer int) *ChannelBus {
	if buffer < 1 {
		buffer = 1
	}
	return &ChannelBus{ch: make(chan Event, buffer)}
}

// Emit enqueues the event without blocking.
func (b *ChannelBus) Emit(ev Event) {
	select {
	case b.ch <- ev:
	default:
		b.dropped.Add(1)
		metrics.BusDropped.Inc()
	}
}

// Subscribe returns the delivery channel.
func (b *ChannelBus) Subscribe() <-chan Event {
	return b.ch
}

// Dropped reports how many events were discarded so far.
func (b *ChannelBus) Dropped() int64 {
	return b.dropped.Load()
}

package testutils

import (
	"sync"

	"github.com/quantfold/strata/bus"
)

// MockBus records every emitted event for assertions.
type MockBus struct {
	mu     sync.Mutex
	events []bus.Event
}

// NewMockBus returns an empty recording bus.
func NewMockBus() *MockBus { return &MockBus{} }

func (b *MockBus) Emit(ev bus.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, ev)
}

// Events returns a copy of everything emitted so far.
func (b *MockBus) Events() []bus.Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]bus.Event, len(b.events))
	copy(out, b.events)
	return out
}

package bus

import (
	"context"
	"sync"
)

// Memory is an in-process Bus. Production runs use the MQTT adapter; Memory
// backs tests and the offline preview path.
//
// Publish dispatches synchronously on the caller's goroutine, which gives
// tests a deterministic "event fully handled" point without sleeping.
type Memory struct {
	mu        sync.Mutex
	nextID    int
	handlers  map[string]map[int]Handler
	connected bool
}

// NewMemory creates an empty in-process bus.
func NewMemory() *Memory {
	return &Memory{handlers: make(map[string]map[int]Handler)}
}

// Connect marks the bus connected. No-op otherwise.
func (b *Memory) Connect(_ context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.connected = true
	return nil
}

// Disconnect drops the connected flag. Subscriptions survive so a test can
// reconnect.
func (b *Memory) Disconnect() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.connected = false
}

// Connected reports whether Connect has been called. Test hook.
func (b *Memory) Connected() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.connected
}

// Subscribe registers h for eventType.
func (b *Memory) Subscribe(eventType string, h Handler) (UnsubscribeFunc, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.handlers[eventType] == nil {
		b.handlers[eventType] = make(map[int]Handler)
	}
	id := b.nextID
	b.nextID++
	b.handlers[eventType][id] = h

	return func() error {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.handlers[eventType], id)
		return nil
	}, nil
}

// Publish delivers data to every handler subscribed to eventType and
// returns after all of them have run.
func (b *Memory) Publish(eventType string, data map[string]any) {
	b.mu.Lock()
	hs := make([]Handler, 0, len(b.handlers[eventType]))
	for _, h := range b.handlers[eventType] {
		hs = append(hs, h)
	}
	b.mu.Unlock()

	for _, h := range hs {
		h(context.Background(), data)
	}
}

// SubscriberCount returns the number of live subscriptions for eventType.
// Test hook.
func (b *Memory) SubscriberCount(eventType string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.handlers[eventType])
}

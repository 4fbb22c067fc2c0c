// Package bus defines the event-bus collaborator the router consumes, plus
// the MQTT adapter used in production and an in-process bus for tests.
package bus

import "context"

// Well-known event types delivered over the bus.
const (
	// EventRefresh asks for a content refresh.
	EventRefresh = "vestaboard_refresh"
	// EventStateChanged reports an external entity state transition.
	EventStateChanged = "state_changed"
	// EventCircuitControl toggles or resets a circuit breaker.
	EventCircuitControl = "vestaboard_circuit_control"
)

// Handler processes one event payload. Handlers for distinct events may run
// concurrently; the bus never serializes deliveries behind a slow handler.
type Handler func(ctx context.Context, data map[string]any)

// UnsubscribeFunc removes a subscription. Safe to call once.
type UnsubscribeFunc func() error

// Bus is the event-bus collaborator.
type Bus interface {
	// Subscribe registers h for events of the given type.
	Subscribe(eventType string, h Handler) (UnsubscribeFunc, error)

	// Connect establishes the underlying connection. Subscriptions may be
	// made before or after connecting.
	Connect(ctx context.Context) error

	// Disconnect tears the connection down. In-flight handlers are not
	// cancelled.
	Disconnect()
}

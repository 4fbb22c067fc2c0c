// Package router subscribes to the external event bus and decides, per
// event, whether and how to invoke the content orchestrator.
//
// The router is stateless between events apart from the debounce state
// owned by its TriggerMatcher. It does not serialize events: two events
// arriving close together may have their handling interleave. Within a
// single event the orderings around SLEEP_MODE transitions are strict.
//
// Nothing inside a handler is allowed to escape as a panic or returned
// error; every collaborator failure becomes a log line. A blocked MASTER
// circuit silently produces no update.
package router

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/pmorrell/splitboard/internal/bus"
	"github.com/pmorrell/splitboard/internal/catalog"
	"github.com/pmorrell/splitboard/internal/trigger"
)

// Breaker is the circuit-breaker collaborator. true from IsCircuitOpen
// means blocked.
type Breaker interface {
	SetCircuitState(ctx context.Context, circuitID, state string) error
	ResetProviderCircuit(ctx context.Context, circuitID string) error
	IsCircuitOpen(ctx context.Context, circuitID string) (bool, error)
}

// Orchestrator is the content orchestrator collaborator.
type Orchestrator interface {
	GenerateAndSend(ctx context.Context, gctx catalog.Context) error
}

// Router routes bus events to the orchestrator under circuit gating.
type Router struct {
	bus     bus.Bus
	orch    Orchestrator
	breaker Breaker
	matcher *trigger.Matcher
	rules   map[string]CircuitRule
	tokens  TokenGenerator
	now     func() time.Time

	unsubs []bus.UnsubscribeFunc
}

// Option configures a Router.
type Option func(*Router)

// WithBreaker attaches the circuit-breaker collaborator. Without one, no
// gating happens and circuit-control events are not subscribed.
func WithBreaker(b Breaker) Option {
	return func(r *Router) { r.breaker = b }
}

// WithTriggerMatcher attaches the state-change trigger matcher. Without
// one, state-change events are not subscribed.
func WithTriggerMatcher(m *trigger.Matcher) Option {
	return func(r *Router) { r.matcher = m }
}

// WithCircuitRules replaces the per-circuit semantics table.
func WithCircuitRules(rules map[string]CircuitRule) Option {
	return func(r *Router) { r.rules = rules }
}

// WithTokenGenerator overrides the correlation token generator (for tests).
func WithTokenGenerator(g TokenGenerator) Option {
	return func(r *Router) { r.tokens = g }
}

// WithNow overrides the time source (for tests).
func WithNow(now func() time.Time) Option {
	return func(r *Router) { r.now = now }
}

// New creates a Router over b that invokes orch.
func New(b bus.Bus, orch Orchestrator, opts ...Option) *Router {
	r := &Router{
		bus:    b,
		orch:   orch,
		rules:  map[string]CircuitRule{},
		tokens: UUIDv7Generator{},
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Start connects the bus and subscribes the event handlers. State-change
// and circuit-control subscriptions are made only when their collaborator
// is configured.
func (r *Router) Start(ctx context.Context) error {
	if err := r.bus.Connect(ctx); err != nil {
		return fmt.Errorf("connect event bus: %w", err)
	}

	unsub, err := r.bus.Subscribe(bus.EventRefresh, r.handleRefresh)
	if err != nil {
		return fmt.Errorf("subscribe refresh events: %w", err)
	}
	r.unsubs = append(r.unsubs, unsub)

	if r.matcher != nil {
		unsub, err = r.bus.Subscribe(bus.EventStateChanged, r.handleStateChanged)
		if err != nil {
			return fmt.Errorf("subscribe state-change events: %w", err)
		}
		r.unsubs = append(r.unsubs, unsub)
	}

	if r.breaker != nil {
		unsub, err = r.bus.Subscribe(bus.EventCircuitControl, r.handleCircuitControl)
		if err != nil {
			return fmt.Errorf("subscribe circuit-control events: %w", err)
		}
		r.unsubs = append(r.unsubs, unsub)
	}

	slog.Info("event router started",
		"state_changes", r.matcher != nil,
		"circuit_control", r.breaker != nil,
	)
	return nil
}

// Close unsubscribes, disconnects the bus, and releases the trigger
// matcher's debounce state. In-flight handlers are not cancelled.
func (r *Router) Close() {
	for _, unsub := range r.unsubs {
		if err := unsub(); err != nil {
			slog.Warn("unsubscribe failed during shutdown", "error", err)
		}
	}
	r.unsubs = nil

	r.bus.Disconnect()

	if r.matcher != nil {
		r.matcher.Cleanup()
	}
	slog.Info("event router stopped")
}

// handleRefresh handles vestaboard_refresh events: always intended to
// produce content, subject to the MASTER gate.
func (r *Router) handleRefresh(ctx context.Context, data map[string]any) {
	token := r.tokens.Generate()

	if r.masterBlocked(ctx, token) {
		return
	}
	r.generate(ctx, token, catalog.Context{
		UpdateType: catalog.UpdateMajor,
		Timestamp:  r.now(),
		EventData:  data,
	})
}

// handleStateChanged handles state_changed events. The trigger matcher is
// consulted before any breaker I/O, so non-matching events cost nothing.
func (r *Router) handleStateChanged(ctx context.Context, data map[string]any) {
	entityID, ok := data["entity_id"].(string)
	if !ok || entityID == "" {
		return
	}
	newState, ok := nestedState(data, "new_state")
	if !ok {
		return
	}

	if !r.matcher.Matches(entityID, newState) {
		return
	}

	token := r.tokens.Generate()
	slog.Info("state change triggered refresh",
		"event_token", token,
		"entity_id", entityID,
		"state", newState,
	)

	if r.masterBlocked(ctx, token) {
		return
	}
	r.generate(ctx, token, catalog.Context{
		UpdateType: catalog.UpdateMajor,
		Timestamp:  r.now(),
		EventData:  data,
	})
}

// handleCircuitControl handles vestaboard_circuit_control events.
func (r *Router) handleCircuitControl(ctx context.Context, data map[string]any) {
	token := r.tokens.Generate()

	circuitID, _ := data["circuit_id"].(string)
	action, _ := data["action"].(string)
	if circuitID == "" || action == "" {
		slog.Warn("circuit control event missing circuit_id or action",
			"event_token", token,
			"circuit_id", circuitID,
			"action", action,
		)
		return
	}
	if action != ActionOn && action != ActionOff && action != ActionReset {
		slog.Warn("circuit control event with unrecognized action",
			"event_token", token,
			"circuit_id", circuitID,
			"action", action,
		)
		return
	}

	if isProviderCircuit(circuitID) {
		if action != ActionReset {
			slog.Warn("provider circuits support only the reset action",
				"event_token", token,
				"circuit_id", circuitID,
				"action", action,
			)
			return
		}
		if err := r.breaker.ResetProviderCircuit(ctx, circuitID); err != nil {
			slog.Error("provider circuit reset failed",
				"event_token", token,
				"circuit_id", circuitID,
				"error", err,
			)
			return
		}
		slog.Info("provider circuit reset", "event_token", token, "circuit_id", circuitID)
		return
	}

	if action == ActionReset {
		slog.Warn("reset is only valid for provider circuits",
			"event_token", token,
			"circuit_id", circuitID,
		)
		return
	}

	rule := r.rules[circuitID] // zero value: direct semantics, no artifacts
	state := rule.resolveState(action)

	// Entering a blocked state: show the block artifact while the content
	// path is still open. Failures are logged; the breaker change below
	// happens regardless.
	if state == StateOff && rule.BlockArtifact != "" {
		r.generate(ctx, token, catalog.Context{
			UpdateType:  catalog.UpdateMajor,
			Timestamp:   r.now(),
			GeneratorID: rule.BlockArtifact,
		})
	}

	if err := r.breaker.SetCircuitState(ctx, circuitID, state); err != nil {
		slog.Error("circuit state change failed",
			"event_token", token,
			"circuit_id", circuitID,
			"state", state,
			"error", err,
		)
	} else {
		slog.Info("circuit state changed",
			"event_token", token,
			"circuit_id", circuitID,
			"action", action,
			"state", state,
		)
	}

	// Leaving the blocked state: the path is open again, greet through it.
	if state == StateOn && rule.UnblockArtifact != "" {
		r.generate(ctx, token, catalog.Context{
			UpdateType:  catalog.UpdateMajor,
			Timestamp:   r.now(),
			GeneratorID: rule.UnblockArtifact,
		})
	}
}

// masterBlocked consults the MASTER circuit. When the gate itself is
// unhealthy the router fails open: availability of the board takes
// precedence over strict gating.
func (r *Router) masterBlocked(ctx context.Context, token string) bool {
	if r.breaker == nil {
		return false
	}

	open, err := r.breaker.IsCircuitOpen(ctx, CircuitMaster)
	if err != nil {
		slog.Warn("master circuit check failed, failing open",
			"event_token", token,
			"error", err,
		)
		return false
	}
	if open {
		slog.Info("master circuit open, skipping content generation",
			"event_token", token,
		)
	}
	return open
}

// generate invokes the orchestrator, downgrading any failure to a log line.
// Generation errors must never propagate out of an event callback.
func (r *Router) generate(ctx context.Context, token string, gctx catalog.Context) {
	if err := r.orch.GenerateAndSend(ctx, gctx); err != nil {
		slog.Error("content generation failed",
			"event_token", token,
			"update_type", string(gctx.UpdateType),
			"generator_id", gctx.GeneratorID,
			"error", err,
		)
	}
}

// nestedState extracts payload[key].state from a state_changed payload.
func nestedState(data map[string]any, key string) (string, bool) {
	obj, ok := data[key].(map[string]any)
	if !ok {
		return "", false
	}
	s, ok := obj["state"].(string)
	if !ok || s == "" {
		return "", false
	}
	return s, true
}

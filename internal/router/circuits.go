package router

import "strings"

// Well-known circuit identifiers.
const (
	// CircuitMaster gates all content generation.
	CircuitMaster = "MASTER"
	// CircuitSleepMode gates content generation while the board sleeps.
	// Its rule carries the sleep and wake artifacts: the sleep visual runs
	// before the circuit blocks, the wake greeting after it reopens.
	CircuitSleepMode = "SLEEP_MODE"
	// ProviderCircuitPrefix marks circuits that gate a single upstream AI
	// provider. Provider circuits support only the reset action.
	ProviderCircuitPrefix = "PROVIDER_"
)

// Breaker states. "on" means content generation is allowed.
const (
	StateOn       = "on"
	StateOff      = "off"
	StateHalfOpen = "half_open"
)

// Circuit-control actions accepted on the bus.
const (
	ActionOn    = "on"
	ActionOff   = "off"
	ActionReset = "reset"
)

// Semantics maps a user-facing circuit action onto a breaker state.
type Semantics int

const (
	// SemanticsDirect passes the action through unchanged.
	SemanticsDirect Semantics = iota
	// SemanticsInverted flips on/off. For circuits phrased as a
	// user-facing toggle whose "on" means "block the gated behavior".
	SemanticsInverted
)

// CircuitRule is the per-circuit configuration resolved once at startup.
// One generic inversion step here replaces a hardcoded special case in the
// router, so future inverted circuits need no router changes.
type CircuitRule struct {
	Semantics Semantics

	// BlockArtifact, when set, names a generator to run BEFORE the
	// breaker moves to "off", so the artifact is shown while the content
	// path is still open.
	BlockArtifact string

	// UnblockArtifact, when set, names a generator to run AFTER the
	// breaker moves to "on", so the just-unblocked path is free to run.
	UnblockArtifact string
}

// resolveState applies the rule's semantics to a user action and returns
// the breaker state to store.
func (r CircuitRule) resolveState(action string) string {
	if r.Semantics != SemanticsInverted {
		return action
	}
	switch action {
	case ActionOn:
		return StateOff
	case ActionOff:
		return StateOn
	default:
		return action
	}
}

// isProviderCircuit reports whether circuitID names a provider circuit.
func isProviderCircuit(circuitID string) bool {
	return strings.HasPrefix(circuitID, ProviderCircuitPrefix)
}

package router

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pmorrell/splitboard/internal/bus"
	"github.com/pmorrell/splitboard/internal/catalog"
	"github.com/pmorrell/splitboard/internal/testutil"
	"github.com/pmorrell/splitboard/internal/trigger"
)

// callLog records collaborator invocations across fakes so tests can assert
// cross-collaborator ordering.
type callLog struct {
	mu    sync.Mutex
	calls []string
}

func (l *callLog) add(format string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, fmt.Sprintf(format, args...))
}

func (l *callLog) snapshot() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.calls...)
}

type fakeBreaker struct {
	log      *callLog
	open     bool
	openErr  error
	setErr   error
	resetErr error
}

func (b *fakeBreaker) SetCircuitState(_ context.Context, circuitID, state string) error {
	b.log.add("setCircuitState(%s,%s)", circuitID, state)
	return b.setErr
}

func (b *fakeBreaker) ResetProviderCircuit(_ context.Context, circuitID string) error {
	b.log.add("resetProviderCircuit(%s)", circuitID)
	return b.resetErr
}

func (b *fakeBreaker) IsCircuitOpen(_ context.Context, circuitID string) (bool, error) {
	b.log.add("isCircuitOpen(%s)", circuitID)
	return b.open, b.openErr
}

type fakeOrchestrator struct {
	log      *callLog
	err      error
	contexts []catalog.Context
}

func (o *fakeOrchestrator) GenerateAndSend(_ context.Context, gctx catalog.Context) error {
	if gctx.GeneratorID != "" {
		o.log.add("generateAndSend(%s)", gctx.GeneratorID)
	} else {
		o.log.add("generateAndSend")
	}
	o.contexts = append(o.contexts, gctx)
	return o.err
}

// testRouter wires a router onto a memory bus with the sleep-mode rule
// configured the way production config does.
func testRouter(t *testing.T, opts ...Option) (*bus.Memory, *fakeBreaker, *fakeOrchestrator) {
	t.Helper()

	log := &callLog{}
	breaker := &fakeBreaker{log: log}
	orch := &fakeOrchestrator{log: log}
	memory := bus.NewMemory()

	rules := map[string]CircuitRule{
		CircuitSleepMode: {
			Semantics:       SemanticsDirect,
			BlockArtifact:   "sleep-mode-generator",
			UnblockArtifact: "wakeup-greeting-generator",
		},
	}

	all := append([]Option{
		WithBreaker(breaker),
		WithCircuitRules(rules),
	}, opts...)

	r := New(memory, orch, all...)
	require.NoError(t, r.Start(context.Background()))
	t.Cleanup(r.Close)

	return memory, breaker, orch
}

func TestRefresh_MasterClosedGeneratesContent(t *testing.T) {
	memory, breaker, orch := testRouter(t)

	memory.Publish(bus.EventRefresh, map[string]any{"trigger": "schedule"})

	assert.Equal(t, []string{"isCircuitOpen(MASTER)", "generateAndSend"}, breaker.log.snapshot())
	require.Len(t, orch.contexts, 1)
	assert.Equal(t, catalog.UpdateMajor, orch.contexts[0].UpdateType)
	assert.Equal(t, "schedule", orch.contexts[0].EventData["trigger"])
	assert.Empty(t, orch.contexts[0].GeneratorID)
}

func TestRefresh_MasterOpenBlocksContent(t *testing.T) {
	memory, breaker, orch := testRouter(t)
	breaker.open = true

	memory.Publish(bus.EventRefresh, nil)

	assert.Equal(t, []string{"isCircuitOpen(MASTER)"}, breaker.log.snapshot())
	assert.Empty(t, orch.contexts)
}

func TestRefresh_GateCheckFailureFailsOpen(t *testing.T) {
	memory, breaker, orch := testRouter(t)
	breaker.openErr = errors.New("store unavailable")
	breaker.open = true // would block, but the check failed

	memory.Publish(bus.EventRefresh, nil)

	require.Len(t, orch.contexts, 1,
		"a failed gate check must not prevent content generation")
}

func TestRefresh_GenerationErrorDoesNotEscapeHandler(t *testing.T) {
	memory, _, orch := testRouter(t)
	orch.err = errors.New("both providers failed")

	assert.NotPanics(t, func() {
		memory.Publish(bus.EventRefresh, nil)
	})
	assert.Len(t, orch.contexts, 1)
}

func TestSleepMode_EnterSleepOrdering(t *testing.T) {
	memory, breaker, orch := testRouter(t)

	// Action "off" enters sleep. The sleep visual must be shown before
	// the breaker blocks the content path.
	memory.Publish(bus.EventCircuitControl, map[string]any{
		"circuit_id": "SLEEP_MODE",
		"action":     "off",
	})

	assert.Equal(t, []string{
		"generateAndSend(sleep-mode-generator)",
		"setCircuitState(SLEEP_MODE,off)",
	}, breaker.log.snapshot())
	require.Len(t, orch.contexts, 1)
	assert.Equal(t, catalog.UpdateMajor, orch.contexts[0].UpdateType)
}

func TestSleepMode_WakeOrdering(t *testing.T) {
	memory, breaker, _ := testRouter(t)

	// Action "on" wakes the board. The breaker reopens first so the
	// greeting runs through an unblocked path.
	memory.Publish(bus.EventCircuitControl, map[string]any{
		"circuit_id": "SLEEP_MODE",
		"action":     "on",
	})

	assert.Equal(t, []string{
		"setCircuitState(SLEEP_MODE,on)",
		"generateAndSend(wakeup-greeting-generator)",
	}, breaker.log.snapshot())
}

func TestSleepMode_BreakerChangesEvenWhenArtifactFails(t *testing.T) {
	memory, breaker, orch := testRouter(t)
	orch.err = errors.New("provider down")

	memory.Publish(bus.EventCircuitControl, map[string]any{
		"circuit_id": "SLEEP_MODE",
		"action":     "off",
	})

	assert.Equal(t, []string{
		"generateAndSend(sleep-mode-generator)",
		"setCircuitState(SLEEP_MODE,off)",
	}, breaker.log.snapshot())
}

func TestCircuitControl_InvertedSemanticsFlipTheAction(t *testing.T) {
	memory, breaker, orch := testRouter(t, WithCircuitRules(map[string]CircuitRule{
		"QUIET_HOURS": {Semantics: SemanticsInverted},
	}))

	memory.Publish(bus.EventCircuitControl, map[string]any{
		"circuit_id": "QUIET_HOURS",
		"action":     "on",
	})
	memory.Publish(bus.EventCircuitControl, map[string]any{
		"circuit_id": "QUIET_HOURS",
		"action":     "off",
	})

	assert.Equal(t, []string{
		"setCircuitState(QUIET_HOURS,off)",
		"setCircuitState(QUIET_HOURS,on)",
	}, breaker.log.snapshot())
	assert.Empty(t, orch.contexts, "no artifacts configured, no generation")
}

func TestCircuitControl_MasterOffIsDirect(t *testing.T) {
	memory, breaker, orch := testRouter(t)

	memory.Publish(bus.EventCircuitControl, map[string]any{
		"circuit_id": "MASTER",
		"action":     "off",
	})

	assert.Equal(t, []string{"setCircuitState(MASTER,off)"}, breaker.log.snapshot())
	assert.Empty(t, orch.contexts, "direct circuits trigger no content generation")
}

func TestCircuitControl_UnknownCircuitDefaultsToDirect(t *testing.T) {
	memory, breaker, _ := testRouter(t)

	memory.Publish(bus.EventCircuitControl, map[string]any{
		"circuit_id": "PARTY_MODE",
		"action":     "on",
	})

	assert.Equal(t, []string{"setCircuitState(PARTY_MODE,on)"}, breaker.log.snapshot())
}

func TestCircuitControl_ProviderReset(t *testing.T) {
	memory, breaker, orch := testRouter(t)

	memory.Publish(bus.EventCircuitControl, map[string]any{
		"circuit_id": "PROVIDER_OPENAI",
		"action":     "reset",
	})

	assert.Equal(t, []string{"resetProviderCircuit(PROVIDER_OPENAI)"}, breaker.log.snapshot())
	assert.Empty(t, orch.contexts)
}

func TestCircuitControl_ProviderDirectStateAssignmentRejected(t *testing.T) {
	memory, breaker, _ := testRouter(t)

	memory.Publish(bus.EventCircuitControl, map[string]any{
		"circuit_id": "PROVIDER_OPENAI",
		"action":     "off",
	})

	assert.Empty(t, breaker.log.snapshot(),
		"provider circuits support only reset")
}

func TestCircuitControl_MalformedPayloadsAreNoOps(t *testing.T) {
	memory, breaker, _ := testRouter(t)

	payloads := []map[string]any{
		{"action": "on"},                                  // missing circuit_id
		{"circuit_id": "MASTER"},                          // missing action
		{"circuit_id": "MASTER", "action": "explode"},     // unrecognized action
		{"circuit_id": "MASTER", "action": "reset"},       // reset on non-provider
		{"circuit_id": 7, "action": "on"},                 // wrong type
		{"circuit_id": "MASTER", "action": []string{"x"}}, // wrong type
	}
	for _, p := range payloads {
		memory.Publish(bus.EventCircuitControl, p)
	}

	assert.Empty(t, breaker.log.snapshot(), "malformed events make zero breaker calls")
}

func TestCircuitControl_BreakerFailureIsSwallowed(t *testing.T) {
	memory, breaker, _ := testRouter(t)
	breaker.setErr = errors.New("storage unavailable")
	breaker.resetErr = errors.New("storage unavailable")

	assert.NotPanics(t, func() {
		memory.Publish(bus.EventCircuitControl, map[string]any{
			"circuit_id": "MASTER", "action": "off",
		})
		memory.Publish(bus.EventCircuitControl, map[string]any{
			"circuit_id": "PROVIDER_OPENAI", "action": "reset",
		})
	})
}

func TestSleepMode_WakeGreetingRunsEvenIfBreakerChangeFails(t *testing.T) {
	memory, breaker, _ := testRouter(t)
	breaker.setErr = errors.New("storage unavailable")

	memory.Publish(bus.EventCircuitControl, map[string]any{
		"circuit_id": "SLEEP_MODE",
		"action":     "on",
	})

	assert.Equal(t, []string{
		"setCircuitState(SLEEP_MODE,on)",
		"generateAndSend(wakeup-greeting-generator)",
	}, breaker.log.snapshot())
}

func newStateChangeRouter(t *testing.T) (*bus.Memory, *fakeBreaker, *fakeOrchestrator, *testutil.Clock) {
	t.Helper()

	clock := testutil.NewClock(time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC))
	matcher, err := trigger.NewWithNow([]trigger.Config{
		{Name: "arrival", EntityPattern: "person.*", StateFilter: "home", DebounceSeconds: 60},
	}, clock.Now)
	require.NoError(t, err)

	log := &callLog{}
	breaker := &fakeBreaker{log: log}
	orch := &fakeOrchestrator{log: log}
	memory := bus.NewMemory()

	r := New(memory, orch,
		WithBreaker(breaker),
		WithTriggerMatcher(matcher),
		WithNow(clock.Now),
	)
	require.NoError(t, r.Start(context.Background()))
	t.Cleanup(r.Close)

	return memory, breaker, orch, clock
}

func stateChange(entityID, oldState, newState string) map[string]any {
	return map[string]any{
		"entity_id": entityID,
		"old_state": map[string]any{"state": oldState},
		"new_state": map[string]any{"state": newState},
	}
}

func TestStateChange_MatchingTriggerGeneratesContent(t *testing.T) {
	memory, breaker, orch, _ := newStateChangeRouter(t)

	memory.Publish(bus.EventStateChanged, stateChange("person.john", "away", "home"))

	assert.Equal(t, []string{"isCircuitOpen(MASTER)", "generateAndSend"}, breaker.log.snapshot())
	require.Len(t, orch.contexts, 1)
	assert.Equal(t, "person.john", orch.contexts[0].EventData["entity_id"],
		"raw event payload is passed through as event data")
}

func TestStateChange_NonMatchingSkipsBreakerCheck(t *testing.T) {
	memory, breaker, orch, _ := newStateChangeRouter(t)

	memory.Publish(bus.EventStateChanged, stateChange("sensor.kitchen", "off", "on"))

	assert.Empty(t, breaker.log.snapshot(),
		"the breaker is consulted only when a trigger actually fired")
	assert.Empty(t, orch.contexts)
}

func TestStateChange_DebouncedWithinWindow(t *testing.T) {
	memory, breaker, orch, clock := newStateChangeRouter(t)

	memory.Publish(bus.EventStateChanged, stateChange("person.john", "away", "home"))
	clock.Advance(30 * time.Second)
	memory.Publish(bus.EventStateChanged, stateChange("person.john", "away", "home"))

	assert.Len(t, orch.contexts, 1)

	clock.Advance(31 * time.Second)
	memory.Publish(bus.EventStateChanged, stateChange("person.john", "away", "home"))
	assert.Len(t, orch.contexts, 2)
	assert.Equal(t, 2, countPrefix(breaker.log.snapshot(), "isCircuitOpen"))
}

func TestStateChange_MissingFieldsAreNoOps(t *testing.T) {
	memory, breaker, orch, _ := newStateChangeRouter(t)

	payloads := []map[string]any{
		{"new_state": map[string]any{"state": "home"}},         // no entity_id
		{"entity_id": "person.john"},                           // no new_state
		{"entity_id": "person.john", "new_state": "home"},      // new_state not an object
		{"entity_id": "person.john", "new_state": map[string]any{}}, // no state value
	}
	for _, p := range payloads {
		memory.Publish(bus.EventStateChanged, p)
	}

	assert.Empty(t, breaker.log.snapshot())
	assert.Empty(t, orch.contexts)
}

func TestClose_ReleasesSubscriptionsAndDebounce(t *testing.T) {
	clock := testutil.NewClock(time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC))
	matcher, err := trigger.NewWithNow([]trigger.Config{
		{Name: "arrival", EntityPattern: "person.*", StateFilter: "home", DebounceSeconds: 60},
	}, clock.Now)
	require.NoError(t, err)

	log := &callLog{}
	orch := &fakeOrchestrator{log: log}
	memory := bus.NewMemory()

	r := New(memory, orch,
		WithBreaker(&fakeBreaker{log: log}),
		WithTriggerMatcher(matcher),
		WithNow(clock.Now),
	)
	require.NoError(t, r.Start(context.Background()))

	require.Equal(t, 1, memory.SubscriberCount(bus.EventRefresh))
	require.Equal(t, 1, memory.SubscriberCount(bus.EventStateChanged))
	require.Equal(t, 1, memory.SubscriberCount(bus.EventCircuitControl))

	r.Close()

	assert.Zero(t, memory.SubscriberCount(bus.EventRefresh))
	assert.Zero(t, memory.SubscriberCount(bus.EventStateChanged))
	assert.Zero(t, memory.SubscriberCount(bus.EventCircuitControl))
	assert.False(t, memory.Connected())
}

func countPrefix(calls []string, prefix string) int {
	n := 0
	for _, c := range calls {
		if strings.HasPrefix(c, prefix) {
			n++
		}
	}
	return n
}

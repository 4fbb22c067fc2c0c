package harness

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/pmorrell/splitboard/internal/breakerstore"
	"github.com/pmorrell/splitboard/internal/bus"
	"github.com/pmorrell/splitboard/internal/catalog"
	"github.com/pmorrell/splitboard/internal/content"
	"github.com/pmorrell/splitboard/internal/failover"
	"github.com/pmorrell/splitboard/internal/layout"
	"github.com/pmorrell/splitboard/internal/orchestrate"
	"github.com/pmorrell/splitboard/internal/router"
	"github.com/pmorrell/splitboard/internal/trigger"
)

// Result captures what a scenario run produced.
type Result struct {
	// Boards holds the rendered grids, in send order.
	Boards []string

	// Failures holds assertion failures. Empty means the scenario passed.
	Failures []error
}

// Pass reports whether every assertion held.
func (r *Result) Pass() bool {
	return len(r.Failures) == 0
}

// scenarioTime is the fixed timestamp every generated board sees.
var scenarioTime = time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

// Run executes a scenario against a fresh stack. dbPath locates the
// breaker database; callers pass a per-test temp path.
func Run(s *Scenario, dbPath string) (*Result, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}

	store, err := breakerstore.Open(dbPath)
	if err != nil {
		return nil, fmt.Errorf("open breaker store: %w", err)
	}
	defer store.Close()

	ctx := context.Background()
	for _, seed := range s.Circuits {
		if err := store.SetCircuitState(ctx, seed.CircuitID, seed.State); err != nil {
			return nil, fmt.Errorf("seed circuit %s: %w", seed.CircuitID, err)
		}
	}

	factory := &content.EchoFactory{
		Responses: s.Responses,
		Errors:    make(map[string]error, len(s.ProviderErrors)),
	}
	for provider, msg := range s.ProviderErrors {
		factory.Errors[provider] = errors.New(msg)
	}

	mapper := echoTiers{}
	cat := catalog.New()
	deps := content.Deps{
		Executor: failover.NewExecutor(mapper, failover.WithOutcomeRecorder(store)),
		Mapper:   mapper,
		Factory:  factory,
	}
	if err := content.RegisterAll(cat, deps); err != nil {
		return nil, fmt.Errorf("register generators: %w", err)
	}

	matcher, err := trigger.New(s.Triggers)
	if err != nil {
		return nil, fmt.Errorf("build trigger matcher: %w", err)
	}

	recorder := &boardRecorder{}
	selector := catalog.NewSelector(cat, newCycleChooser(s.Picks))
	orch := orchestrate.New(cat, selector, recorder)

	memBus := bus.NewMemory()
	rtr := router.New(memBus, orch,
		router.WithBreaker(store),
		router.WithTriggerMatcher(matcher),
		router.WithCircuitRules(defaultRules()),
		router.WithNow(func() time.Time { return scenarioTime }),
	)
	if err := rtr.Start(ctx); err != nil {
		return nil, fmt.Errorf("start router: %w", err)
	}
	defer rtr.Close()

	// Memory bus publishes synchronously, so each event is fully handled
	// before the next is published.
	for _, e := range s.Events {
		memBus.Publish(e.Type, e.Payload)
	}

	result := &Result{Boards: recorder.snapshot()}
	result.Failures = evaluate(ctx, s.Expect, result.Boards, store)
	return result, nil
}

// defaultRules is the circuit rule table scenarios run under: the sleep
// circuit with the sleep/wake artifacts attached.
func defaultRules() map[string]router.CircuitRule {
	return map[string]router.CircuitRule{
		router.CircuitSleepMode: {
			Semantics:       router.SemanticsDirect,
			BlockArtifact:   content.SleepModeID,
			UnblockArtifact: content.WakeupGreetingID,
		},
	}
}

// boardRecorder implements orchestrate.Sender by recording grids.
type boardRecorder struct {
	mu     sync.Mutex
	boards []string
}

func (r *boardRecorder) Send(_ context.Context, grid layout.Grid) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.boards = append(r.boards, grid.String())
	return nil
}

func (r *boardRecorder) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.boards...)
}

// echoTiers maps every tier onto the offline echo provider.
type echoTiers struct{}

func (echoTiers) Primary(tier string) (failover.ModelSelection, bool) {
	return failover.ModelSelection{Provider: "echo", Model: "offline", Tier: tier}, true
}

func (echoTiers) Alternate(tier string) (failover.ModelSelection, bool) {
	return failover.ModelSelection{Provider: "echo-alt", Model: "offline", Tier: tier}, true
}

// cycleChooser replays a pick sequence, cycling when exhausted. Unlike
// catalog.FixedChooser it never panics, so a scenario does not need to
// count its normal-tier selections up front.
type cycleChooser struct {
	mu    sync.Mutex
	picks []int
	pos   int
}

func newCycleChooser(picks []int) *cycleChooser {
	if len(picks) == 0 {
		picks = []int{0}
	}
	return &cycleChooser{picks: picks}
}

func (c *cycleChooser) ChooseIndex(n int) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	pick := c.picks[c.pos%len(c.picks)]
	c.pos++
	if pick >= n {
		pick = pick % n
	}
	return pick
}

// Package content holds the concrete board generators and the startup
// registration pass that loads them into the catalog.
//
// The generators themselves are thin: templated prompts plus the shared
// failover protocol. The interesting machinery (selection, gating,
// failover) lives in the packages they plug into.
package content

import (
	"context"
	"fmt"

	"github.com/pmorrell/splitboard/internal/catalog"
	"github.com/pmorrell/splitboard/internal/failover"
)

// Well-known generator identifiers. The router invokes the sleep and wake
// artifacts by ID when the sleep-mode circuit transitions.
const (
	SleepModeID      = "sleep-mode-generator"
	WakeupGreetingID = "wakeup-greeting-generator"
	DoorbellID       = "doorbell-announcer"
	ArrivalID        = "arrival-greeting"
	FunFactID        = "fun-fact"
	WordOfDayID      = "word-of-the-day"
	StatusCardID     = "status-card"
)

// Provider is a constructed AI provider client.
type Provider interface {
	Generate(ctx context.Context, prompt string) (*failover.Generation, error)
}

// Factory builds a provider client for one model selection. The provider
// factory collaborator owns API keys and transport details.
type Factory interface {
	NewProvider(sel failover.ModelSelection) (Provider, error)
}

// Deps is everything the AI-backed generators need.
type Deps struct {
	Executor *failover.Executor
	Mapper   failover.ModelMapper
	Factory  Factory
}

// RegisterAll performs the startup registration pass: every generator in
// its tier, notification generators with their event patterns. Fails on
// the first registration error; the process should not start with a
// partial catalog.
func RegisterAll(cat *catalog.Catalog, deps Deps) error {
	regs := []struct {
		reg catalog.Registration
		gen catalog.Generator
	}{
		{
			reg: catalog.Registration{
				ID:           DoorbellID,
				Name:         "Doorbell Announcer",
				Priority:     catalog.PriorityNotification,
				EventPattern: catalog.MustCompileMatcher(`doorbell`),
				Tags:         []string{"event", "ai"},
			},
			gen: newAIGenerator(deps, "standard", doorbellPrompt),
		},
		{
			reg: catalog.Registration{
				ID:           ArrivalID,
				Name:         "Arrival Greeting",
				Priority:     catalog.PriorityNotification,
				EventPattern: catalog.MustCompileMatcher(`^person\.`),
				Tags:         []string{"event", "ai"},
			},
			gen: newAIGenerator(deps, "standard", arrivalPrompt),
		},
		{
			reg: catalog.Registration{
				ID:       FunFactID,
				Name:     "Fun Fact",
				Priority: catalog.PriorityNormal,
				Tags:     []string{"rotation", "ai"},
			},
			gen: newAIGenerator(deps, "standard", funFactPrompt),
		},
		{
			reg: catalog.Registration{
				ID:       WordOfDayID,
				Name:     "Word of the Day",
				Priority: catalog.PriorityNormal,
				Tags:     []string{"rotation", "ai"},
			},
			gen: newAIGenerator(deps, "standard", wordOfDayPrompt),
		},
		{
			// First fallback registered wins deterministically, so the
			// status card goes in before the sleep/wake artifacts.
			reg: catalog.Registration{
				ID:       StatusCardID,
				Name:     "Status Card",
				Priority: catalog.PriorityFallback,
			},
			gen: GeneratorFunc(statusCard),
		},
		{
			reg: catalog.Registration{
				ID:       SleepModeID,
				Name:     "Going To Sleep",
				Priority: catalog.PriorityFallback,
				Tags:     []string{"artifact"},
			},
			gen: GeneratorFunc(sleepCard),
		},
		{
			reg: catalog.Registration{
				ID:       WakeupGreetingID,
				Name:     "Waking Up",
				Priority: catalog.PriorityFallback,
				Tags:     []string{"artifact"},
			},
			gen: GeneratorFunc(wakeupCard),
		},
	}

	for _, r := range regs {
		if err := cat.Register(r.reg, r.gen); err != nil {
			return fmt.Errorf("register %s: %w", r.reg.ID, err)
		}
	}
	return nil
}

// GeneratorFunc adapts a function to the catalog.Generator interface.
type GeneratorFunc func(ctx context.Context, gctx catalog.Context) (*catalog.Output, error)

// Generate implements catalog.Generator.
func (f GeneratorFunc) Generate(ctx context.Context, gctx catalog.Context) (*catalog.Output, error) {
	return f(ctx, gctx)
}

func sleepCard(_ context.Context, _ catalog.Context) (*catalog.Output, error) {
	return &catalog.Output{Text: "GOOD NIGHT SLEEP TIGHT"}, nil
}

func wakeupCard(_ context.Context, gctx catalog.Context) (*catalog.Output, error) {
	greeting := "GOOD MORNING"
	if h := gctx.Timestamp.Hour(); h >= 12 && h < 18 {
		greeting = "GOOD AFTERNOON"
	} else if h >= 18 {
		greeting = "GOOD EVENING"
	}
	return &catalog.Output{Text: greeting + " THE BOARD IS AWAKE"}, nil
}

func statusCard(_ context.Context, gctx catalog.Context) (*catalog.Output, error) {
	return &catalog.Output{
		Text: "SPLITBOARD " + gctx.Timestamp.Format("MON JAN 2 15:04"),
	}, nil
}

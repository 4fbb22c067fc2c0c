package content

import (
	"context"
	"fmt"

	"github.com/pmorrell/splitboard/internal/catalog"
	"github.com/pmorrell/splitboard/internal/failover"
)

// aiGenerator calls an AI provider through the shared failover protocol.
// All AI-backed generators are instances of this with a different prompt
// builder.
type aiGenerator struct {
	deps   Deps
	tier   string
	prompt func(gctx catalog.Context) string
}

func newAIGenerator(deps Deps, tier string, prompt func(gctx catalog.Context) string) *aiGenerator {
	return &aiGenerator{deps: deps, tier: tier, prompt: prompt}
}

// Generate runs the prompt against the tier's primary provider, failing
// over per the shared protocol. Generation metadata (model, tokens,
// failover markers) is surfaced through Output.Meta for the orchestrator
// to record.
func (g *aiGenerator) Generate(ctx context.Context, gctx catalog.Context) (*catalog.Output, error) {
	primary, ok := g.deps.Mapper.Primary(g.tier)
	if !ok {
		return nil, fmt.Errorf("no primary provider configured for tier %q", g.tier)
	}

	prompt := g.prompt(gctx)
	res, err := g.deps.Executor.ExecuteWithFailover(ctx, g.tier, primary,
		func(ctx context.Context, sel failover.ModelSelection) (*failover.Generation, error) {
			provider, err := g.deps.Factory.NewProvider(sel)
			if err != nil {
				return nil, fmt.Errorf("construct %s client: %w", sel.Provider, err)
			}
			return provider.Generate(ctx, prompt)
		})
	if err != nil {
		return nil, err
	}

	meta := map[string]any{
		"provider":    res.Provider,
		"model":       res.Model,
		"tokens_used": res.TokensUsed,
	}
	if res.FailedOver {
		meta["failed_over"] = true
		meta["primary_error"] = res.PrimaryError
	}

	return &catalog.Output{Text: res.Text, Meta: meta}, nil
}

func doorbellPrompt(gctx catalog.Context) string {
	return "Someone rang the doorbell. Write a short, playful announcement " +
		"for a household display. At most 15 words."
}

func arrivalPrompt(gctx catalog.Context) string {
	who := "someone"
	if id, ok := gctx.EventData["entity_id"].(string); ok && len(id) > len("person.") {
		who = id[len("person."):]
	}
	return fmt.Sprintf("Welcome %s home with a short warm greeting for a "+
		"household display. At most 12 words.", who)
}

func funFactPrompt(gctx catalog.Context) string {
	topics := []string{
		"space", "the deep ocean", "animal behavior", "language",
		"food history", "weather", "music", "mathematics",
	}
	topic := topics[gctx.Timestamp.YearDay()%len(topics)]
	return fmt.Sprintf("Share one surprising fun fact about %s. "+
		"At most 20 words, no preamble.", topic)
}

func wordOfDayPrompt(gctx catalog.Context) string {
	return "Pick an uncommon English word, then give its meaning in at " +
		"most 12 words. Format: WORD: meaning."
}

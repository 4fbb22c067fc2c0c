// Package orchestrate runs one full refresh cycle: pick a generator,
// execute it, lay the text out on the board grid, and hand the grid to
// the display client.
package orchestrate

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/pmorrell/splitboard/internal/catalog"
	"github.com/pmorrell/splitboard/internal/layout"
)

// Sender delivers a rendered grid to the physical display. The production
// implementation talks to the board's HTTP API; tests substitute a
// recorder.
type Sender interface {
	Send(ctx context.Context, grid layout.Grid) error
}

// SenderFunc adapts a function to the Sender interface.
type SenderFunc func(ctx context.Context, grid layout.Grid) error

// Send implements Sender.
func (f SenderFunc) Send(ctx context.Context, grid layout.Grid) error {
	return f(ctx, grid)
}

// Orchestrator coordinates one content cycle end to end.
type Orchestrator struct {
	catalog  *catalog.Catalog
	selector *catalog.Selector
	sender   Sender
}

// New creates an Orchestrator over cat, using selector for the tier
// cascade and sender for delivery.
func New(cat *catalog.Catalog, selector *catalog.Selector, sender Sender) *Orchestrator {
	return &Orchestrator{catalog: cat, selector: selector, sender: sender}
}

// GenerateAndSend runs one cycle. A context naming a GeneratorID bypasses
// selection and invokes that generator directly; an unknown ID is an
// error. Without an override the selector cascade picks, and an empty
// cascade result skips the cycle without error.
func (o *Orchestrator) GenerateAndSend(ctx context.Context, gctx catalog.Context) error {
	var entry *catalog.RegisteredGenerator
	if gctx.GeneratorID != "" {
		entry = o.catalog.ByID(gctx.GeneratorID)
		if entry == nil {
			return fmt.Errorf("no generator registered with id %q", gctx.GeneratorID)
		}
	} else {
		entry = o.selector.Select(gctx)
		if entry == nil {
			slog.Info("no generator available, skipping cycle")
			return nil
		}
	}

	id := entry.Registration.ID
	out, err := entry.Generator.Generate(ctx, gctx)
	if err != nil {
		return fmt.Errorf("generate %s: %w", id, err)
	}

	grid := layout.Render(out.Text)
	if err := o.sender.Send(ctx, grid); err != nil {
		return fmt.Errorf("send %s output to display: %w", id, err)
	}

	attrs := []any{
		"generator_id", id,
		"priority", entry.Registration.Priority.String(),
		"chars", len(out.Text),
	}
	for k, v := range out.Meta {
		attrs = append(attrs, k, v)
	}
	slog.Info("board updated", attrs...)
	return nil
}

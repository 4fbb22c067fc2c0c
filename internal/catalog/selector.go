package catalog

import (
	"log/slog"
	"math/rand"
	"sync"
)

// Chooser picks one index out of n. Implemented by UniformChooser
// (production) and FixedChooser (tests), so the normal-tier lottery can be
// made deterministic under test.
type Chooser interface {
	ChooseIndex(n int) int
}

// UniformChooser picks uniformly at random.
//
// Thread-safety: guarded by a mutex; rand.Rand is not safe for concurrent
// use on its own.
type UniformChooser struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewUniformChooser creates a UniformChooser seeded from src.
func NewUniformChooser(seed int64) *UniformChooser {
	return &UniformChooser{rng: rand.New(rand.NewSource(seed))}
}

// ChooseIndex returns a uniformly random index in [0, n).
func (u *UniformChooser) ChooseIndex(n int) int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.rng.Intn(n)
}

// FixedChooser returns predetermined indices for testing.
//
// Panics when the sequence is exhausted. Fail-fast catches test
// misconfiguration (test triggered more selections than expected).
type FixedChooser struct {
	mu      sync.Mutex
	indices []int
	pos     int
}

// NewFixedChooser creates a chooser that returns indices in order.
func NewFixedChooser(indices ...int) *FixedChooser {
	return &FixedChooser{indices: indices}
}

// ChooseIndex returns the next predetermined index.
func (f *FixedChooser) ChooseIndex(n int) int {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.pos >= len(f.indices) {
		panic("FixedChooser: all indices exhausted")
	}
	idx := f.indices[f.pos]
	f.pos++
	if idx >= n {
		panic("FixedChooser: index out of range for choice")
	}
	return idx
}

// Selector picks one registered generator for a refresh using the
// three-tier cascade:
//
//  1. Notification tier: if the context carries event data with a derivable
//     event identifier, the first notification generator whose pattern
//     matches wins (registration order, first match - not best match).
//  2. Normal tier: one generator chosen uniformly at random.
//  3. Fallback tier: the first registered fallback generator.
//
// A cascade that reaches the bottom returns nil. Absence is a legitimate
// terminal outcome, not an error: callers skip the cycle.
type Selector struct {
	catalog *Catalog
	chooser Chooser
}

// NewSelector creates a Selector over catalog using chooser for the
// normal-tier lottery.
func NewSelector(catalog *Catalog, chooser Chooser) *Selector {
	return &Selector{catalog: catalog, chooser: chooser}
}

// Select returns the generator to run for gctx, or nil when no generator of
// any applicable tier exists.
func (s *Selector) Select(gctx Context) *RegisteredGenerator {
	// Tier 1: event-triggered notification generators.
	if eventID, ok := deriveEventID(gctx.EventData); ok {
		for _, e := range s.catalog.ByPriority(PriorityNotification) {
			m := e.Registration.EventPattern
			if m != nil && m.Matches(eventID) {
				slog.Debug("selected notification generator",
					"generator_id", e.Registration.ID,
					"event_id", eventID,
				)
				entry := e
				return &entry
			}
		}
		// A non-matching event identifier falls through as if no event
		// had occurred.
	}

	// Tier 2: uniform pick from the normal pool. Event data is
	// deliberately ignored here.
	if normal := s.catalog.ByPriority(PriorityNormal); len(normal) > 0 {
		entry := normal[s.chooser.ChooseIndex(len(normal))]
		slog.Debug("selected normal generator", "generator_id", entry.Registration.ID)
		return &entry
	}

	// Tier 3: first registered fallback.
	if fallback := s.catalog.ByPriority(PriorityFallback); len(fallback) > 0 {
		entry := fallback[0]
		slog.Debug("selected fallback generator", "generator_id", entry.Registration.ID)
		return &entry
	}

	slog.Debug("no generator available for selection")
	return nil
}

// deriveEventID extracts the identifier used for notification-tier pattern
// matching. event_type is preferred over entity_id; with neither present
// there is no identifier and the notification tier is skipped entirely.
func deriveEventID(eventData map[string]any) (string, bool) {
	if eventData == nil {
		return "", false
	}
	if v, ok := eventData["event_type"].(string); ok && v != "" {
		return v, true
	}
	if v, ok := eventData["entity_id"].(string); ok && v != "" {
		return v, true
	}
	return "", false
}

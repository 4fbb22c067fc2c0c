// Package trigger converts raw state-change events into refresh decisions.
//
// A trigger is a configured rule: entity pattern + required state +
// debounce window. The upstream event bus can emit bursts of near-duplicate
// transitions (a flapping sensor), and every accepted match costs a paid AI
// call downstream, so repeated fires inside the window are suppressed.
package trigger

import (
	"fmt"
	"log/slog"
	"regexp"
	"sync"
	"time"
)

// Config describes one trigger rule.
type Config struct {
	// Name identifies the trigger in logs.
	Name string `yaml:"name"`

	// EntityPattern is a regular expression matched against entity IDs
	// (e.g. "person.*").
	EntityPattern string `yaml:"entity_pattern"`

	// StateFilter is the resulting state value required for a match
	// (e.g. "home").
	StateFilter string `yaml:"state"`

	// DebounceSeconds is the minimum spacing between fires of this
	// trigger. Zero means the trigger always fires when pattern and state
	// match.
	DebounceSeconds int `yaml:"debounce_seconds"`
}

// compiled pairs a Config with its compiled pattern and debounce state.
// lastFired is overwritten on each accepted match and ages out naturally
// once the window elapses; there is no explicit reset.
type compiled struct {
	cfg       Config
	pattern   *regexp.Regexp
	lastFired time.Time
}

// Matcher evaluates inbound state changes against the configured triggers.
//
// Thread-safety: the debounce check and the timestamp update happen under a
// single mutex hold (check-and-set), so two near-simultaneous events cannot
// both pass the debounce window.
type Matcher struct {
	mu       sync.Mutex
	triggers []*compiled
	now      func() time.Time
}

// New compiles the given trigger configs into a Matcher.
func New(configs []Config) (*Matcher, error) {
	return NewWithNow(configs, time.Now)
}

// NewWithNow is New with an injected time source for deterministic tests.
func NewWithNow(configs []Config, now func() time.Time) (*Matcher, error) {
	m := &Matcher{now: now}
	for _, cfg := range configs {
		re, err := regexp.Compile(cfg.EntityPattern)
		if err != nil {
			return nil, fmt.Errorf("trigger %q: compile entity pattern %q: %w", cfg.Name, cfg.EntityPattern, err)
		}
		if cfg.DebounceSeconds < 0 {
			return nil, fmt.Errorf("trigger %q: negative debounce window %d", cfg.Name, cfg.DebounceSeconds)
		}
		m.triggers = append(m.triggers, &compiled{cfg: cfg, pattern: re})
	}
	return m, nil
}

// Matches reports whether the state change (entityID -> newState) should
// cause a content refresh.
//
// A trigger qualifies when its entity pattern matches, its state filter
// equals newState, and its debounce window has elapsed since its own last
// accepted match. Suppressed triggers do NOT have their timestamp updated;
// the window is measured from the last successful match only.
func (m *Matcher) Matches(entityID, newState string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	fired := false

	for _, tr := range m.triggers {
		if !tr.pattern.MatchString(entityID) {
			continue
		}
		if newState != tr.cfg.StateFilter {
			continue
		}

		if tr.cfg.DebounceSeconds > 0 && !tr.lastFired.IsZero() {
			window := time.Duration(tr.cfg.DebounceSeconds) * time.Second
			if elapsed := now.Sub(tr.lastFired); elapsed < window {
				slog.Debug("trigger suppressed by debounce",
					"trigger", tr.cfg.Name,
					"entity_id", entityID,
					"elapsed", elapsed,
					"window", window,
				)
				continue
			}
		}

		tr.lastFired = now
		fired = true
		slog.Debug("trigger fired",
			"trigger", tr.cfg.Name,
			"entity_id", entityID,
			"state", newState,
		)
	}

	return fired
}

// Cleanup releases per-trigger debounce state. Safe to call multiple times
// and on a Matcher that never matched anything.
func (m *Matcher) Cleanup() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, tr := range m.triggers {
		tr.lastFired = time.Time{}
	}
}

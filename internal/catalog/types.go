package catalog

import (
	"context"
	"fmt"
	"regexp"
	"time"
)

// Priority classifies generators by operational precedence, not numeric
// magnitude: Notification outranks Normal, Normal outranks Fallback.
type Priority int

const (
	// PriorityNotification generators react to a specific external event
	// and preempt everything else when their pattern matches.
	PriorityNotification Priority = iota + 1
	// PriorityNormal generators are the default rotation pool.
	PriorityNormal
	// PriorityFallback generators run only when no Normal generator exists.
	PriorityFallback
)

// String returns the lowercase name used in logs and config files.
func (p Priority) String() string {
	switch p {
	case PriorityNotification:
		return "notification"
	case PriorityNormal:
		return "normal"
	case PriorityFallback:
		return "fallback"
	default:
		return fmt.Sprintf("priority(%d)", int(p))
	}
}

// Matcher decides whether a candidate identifier matches a registered
// pattern. Keeping this behind an interface lets the underlying matcher be
// a compiled regular expression, a glob, or a structured predicate without
// changing any caller.
type Matcher interface {
	Matches(candidate string) bool
}

// RegexpMatcher is the production Matcher backed by a compiled regexp.
type RegexpMatcher struct {
	re *regexp.Regexp
}

// CompileMatcher compiles pattern into a RegexpMatcher.
func CompileMatcher(pattern string) (*RegexpMatcher, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("compile event pattern %q: %w", pattern, err)
	}
	return &RegexpMatcher{re: re}, nil
}

// MustCompileMatcher is CompileMatcher that panics on invalid patterns.
// Intended for the startup registration pass where patterns are literals.
func MustCompileMatcher(pattern string) *RegexpMatcher {
	m, err := CompileMatcher(pattern)
	if err != nil {
		panic(err)
	}
	return m
}

// Matches reports whether the compiled pattern matches candidate.
func (m *RegexpMatcher) Matches(candidate string) bool {
	return m.re.MatchString(candidate)
}

// Registration is the metadata a generator is registered under.
// Immutable once stored in a Catalog.
type Registration struct {
	// ID uniquely identifies the generator within a catalog.
	ID string

	// Name is the human-readable display name.
	Name string

	// Priority is the selection tier.
	Priority Priority

	// EventPattern, when non-nil, makes this generator eligible for
	// event-driven selection. Generators without a pattern are never
	// treated as wildcard matches.
	EventPattern Matcher

	// Tags are optional free-form labels.
	Tags []string

	// Format holds optional rendering hints passed through to the layout
	// step (e.g. "align": "center").
	Format map[string]string
}

// UpdateType hints how disruptive a refresh is allowed to be.
type UpdateType string

const (
	// UpdateMajor replaces the whole board.
	UpdateMajor UpdateType = "major"
	// UpdateMinor touches only part of the board.
	UpdateMinor UpdateType = "minor"
)

// Context carries the inputs to a selection and generation pass.
type Context struct {
	UpdateType UpdateType
	Timestamp  time.Time

	// EventData is the raw payload of the event that caused this refresh,
	// when there was one.
	EventData map[string]any

	// GeneratorID, when set, bypasses selection entirely and names the
	// generator to run. Used for the sleep/wake artifacts.
	GeneratorID string
}

// Output is what a generator produces for one refresh.
type Output struct {
	// Text is the content to lay out on the board.
	Text string

	// Meta carries generation metadata (model, tokens_used, failed_over,
	// primary_error) for the orchestrator to record.
	Meta map[string]any
}

// Generator produces board content. Implementations call out to AI
// providers through the failover executor, or build text locally.
type Generator interface {
	Generate(ctx context.Context, gctx Context) (*Output, error)
}

// RegisteredGenerator pairs a Registration with the generator instance the
// orchestrator will invoke.
type RegisteredGenerator struct {
	Registration Registration
	Generator    Generator
}

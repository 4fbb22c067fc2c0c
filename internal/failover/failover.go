// Package failover implements the two-tier AI provider failover protocol
// shared by every content generator: try the primary provider, fall back to
// the alternate for the same tier, else fail with the tier and the last
// underlying error.
//
// The protocol is provider-agnostic. It does not know which vendors sit
// behind a selection, only that each selection carries enough information
// for the caller to construct a client and that providers fail
// independently.
package failover

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

// ModelSelection names one provider/model pair for a generation attempt.
// Immutable per attempt; produced by a ModelMapper.
type ModelSelection struct {
	Provider string
	Model    string
	Tier     string
}

// Generation is the raw result of a single provider call.
type Generation struct {
	Text       string
	Model      string
	TokensUsed int
}

// GenerateFunc is the actual provider call. The executor invokes it once
// per attempt with the selection for that attempt.
type GenerateFunc func(ctx context.Context, sel ModelSelection) (*Generation, error)

// ModelMapper maps a tier to provider selections. Implemented by the
// config-driven tier map in production and by stubs in tests.
type ModelMapper interface {
	// Primary returns the first-choice selection for a tier.
	Primary(tier string) (ModelSelection, bool)

	// Alternate returns the fallback selection for a tier, if one is
	// configured.
	Alternate(tier string) (ModelSelection, bool)
}

// Result is a successful generation, tagged with the provider that actually
// served it. FailedOver and PrimaryError are set only when the second
// attempt succeeded after the first failed.
type Result struct {
	Text       string
	Model      string
	TokensUsed int
	Provider   string

	FailedOver   bool
	PrimaryError string
}

// FailoverError is the terminal failure raised when no alternate exists or
// both attempts fail. Its message names the tier and the last underlying
// error.
type FailoverError struct {
	Tier string
	Err  error
}

// Error implements the error interface.
func (e *FailoverError) Error() string {
	return fmt.Sprintf("generation failed for tier %q: %s", e.Tier, e.Err)
}

// Unwrap exposes the last underlying provider error.
func (e *FailoverError) Unwrap() error {
	return e.Err
}

// IsFailoverError reports whether err is a terminal failover error.
// Uses errors.As to handle wrapped errors.
func IsFailoverError(err error) bool {
	var fe *FailoverError
	return errors.As(err, &fe)
}

// OutcomeRecorder tracks per-provider generation outcomes against the
// provider's breaker circuit. Implemented by the breaker store, which
// trips the circuit after enough consecutive failures.
type OutcomeRecorder interface {
	RecordProviderFailure(ctx context.Context, circuitID, reason string) (int, error)
	RecordProviderSuccess(ctx context.Context, circuitID string) error
}

// ProviderCircuitID returns the breaker circuit gating one upstream
// provider, e.g. "openai" -> "PROVIDER_OPENAI".
func ProviderCircuitID(provider string) string {
	return "PROVIDER_" + strings.ToUpper(provider)
}

// Executor runs the failover protocol.
type Executor struct {
	mapper   ModelMapper
	recorder OutcomeRecorder
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// WithOutcomeRecorder attaches the per-provider outcome recorder. Without
// one, outcomes are not recorded.
func WithOutcomeRecorder(r OutcomeRecorder) ExecutorOption {
	return func(e *Executor) { e.recorder = r }
}

// NewExecutor creates an Executor using mapper for alternate lookups.
func NewExecutor(mapper ModelMapper, opts ...ExecutorOption) *Executor {
	e := &Executor{mapper: mapper}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ExecuteWithFailover attempts call with primary, then with the tier's
// alternate selection if the primary fails. The mapper is never consulted
// when the primary succeeds.
func (e *Executor) ExecuteWithFailover(ctx context.Context, tier string, primary ModelSelection, call GenerateFunc) (*Result, error) {
	gen, primaryErr := call(ctx, primary)
	if primaryErr == nil {
		e.recordSuccess(ctx, primary)
		return &Result{
			Text:       gen.Text,
			Model:      gen.Model,
			TokensUsed: gen.TokensUsed,
			Provider:   primary.Provider,
		}, nil
	}
	e.recordFailure(ctx, primary, primaryErr)

	slog.Warn("primary provider failed, attempting failover",
		"tier", tier,
		"provider", primary.Provider,
		"model", primary.Model,
		"error", primaryErr,
	)

	alternate, ok := e.mapper.Alternate(tier)
	if !ok {
		return nil, &FailoverError{Tier: tier, Err: primaryErr}
	}

	gen, altErr := call(ctx, alternate)
	if altErr != nil {
		e.recordFailure(ctx, alternate, altErr)
		slog.Error("alternate provider failed, generation is terminal",
			"tier", tier,
			"provider", alternate.Provider,
			"model", alternate.Model,
			"error", altErr,
		)
		return nil, &FailoverError{Tier: tier, Err: altErr}
	}

	e.recordSuccess(ctx, alternate)

	slog.Info("generation served by alternate provider",
		"tier", tier,
		"provider", alternate.Provider,
		"primary_error", primaryErr.Error(),
	)

	return &Result{
		Text:         gen.Text,
		Model:        gen.Model,
		TokensUsed:   gen.TokensUsed,
		Provider:     alternate.Provider,
		FailedOver:   true,
		PrimaryError: primaryErr.Error(),
	}, nil
}

// recordSuccess zeroes the provider's failure streak. Recording failures
// never affect the generation result.
func (e *Executor) recordSuccess(ctx context.Context, sel ModelSelection) {
	if e.recorder == nil {
		return
	}
	if err := e.recorder.RecordProviderSuccess(ctx, ProviderCircuitID(sel.Provider)); err != nil {
		slog.Warn("failed to record provider success",
			"provider", sel.Provider,
			"error", err,
		)
	}
}

// recordFailure counts one failure against the provider's circuit.
func (e *Executor) recordFailure(ctx context.Context, sel ModelSelection, genErr error) {
	if e.recorder == nil {
		return
	}
	count, err := e.recorder.RecordProviderFailure(ctx, ProviderCircuitID(sel.Provider), genErr.Error())
	if err != nil {
		slog.Warn("failed to record provider failure",
			"provider", sel.Provider,
			"error", err,
		)
		return
	}
	slog.Debug("provider failure recorded",
		"provider", sel.Provider,
		"consecutive_failures", count,
	)
}

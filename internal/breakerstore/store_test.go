package breakerstore

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pmorrell/splitboard/internal/testutil"
)

func openTestStore(t *testing.T, opts ...Option) *Store {
	t.Helper()

	clock := testutil.NewClock(time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC))
	all := append([]Option{WithNow(clock.Now)}, opts...)
	s, err := Open(filepath.Join(t.TempDir(), "breakers.db"), all...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestOpen_Idempotent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "breakers.db")

	s1, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s1.SetCircuitState(context.Background(), "MASTER", StateOff))
	require.NoError(t, s1.Close())

	// State survives a reopen.
	s2, err := Open(path)
	require.NoError(t, err)
	defer s2.Close()

	open, err := s2.IsCircuitOpen(context.Background(), "MASTER")
	require.NoError(t, err)
	assert.True(t, open)
}

func TestSetCircuitState_Validation(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SetCircuitState(ctx, "MASTER", StateOn))
	require.NoError(t, s.SetCircuitState(ctx, "MASTER", StateHalfOpen))
	require.Error(t, s.SetCircuitState(ctx, "MASTER", "sideways"))

	state, err := s.CircuitState(ctx, "MASTER")
	require.NoError(t, err)
	assert.Equal(t, StateHalfOpen, state, "invalid write must not clobber state")
}

func TestIsCircuitOpen_Semantics(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	// Never-written circuits are closed (allowed).
	open, err := s.IsCircuitOpen(ctx, "MASTER")
	require.NoError(t, err)
	assert.False(t, open)

	require.NoError(t, s.SetCircuitState(ctx, "MASTER", StateOff))
	open, err = s.IsCircuitOpen(ctx, "MASTER")
	require.NoError(t, err)
	assert.True(t, open, "off blocks")

	// half_open lets a probe through.
	require.NoError(t, s.SetCircuitState(ctx, "MASTER", StateHalfOpen))
	open, err = s.IsCircuitOpen(ctx, "MASTER")
	require.NoError(t, err)
	assert.False(t, open)
}

func TestCircuitState_Unknown(t *testing.T) {
	s := openTestStore(t)

	_, err := s.CircuitState(context.Background(), "NEVER_SEEN")
	require.ErrorIs(t, err, ErrUnknownCircuit)
}

func TestProviderFailures_TripAtThreshold(t *testing.T) {
	s := openTestStore(t, WithFailureThreshold(3))
	ctx := context.Background()
	const circuit = "PROVIDER_OPENAI"

	for i := 1; i <= 2; i++ {
		count, err := s.RecordProviderFailure(ctx, circuit, "timeout")
		require.NoError(t, err)
		assert.Equal(t, i, count)

		open, err := s.IsCircuitOpen(ctx, circuit)
		require.NoError(t, err)
		assert.False(t, open, "circuit stays closed below the threshold")
	}

	count, err := s.RecordProviderFailure(ctx, circuit, "timeout")
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	open, err := s.IsCircuitOpen(ctx, circuit)
	require.NoError(t, err)
	assert.True(t, open, "third consecutive failure trips the circuit")
}

func TestProviderSuccess_ResetsCountButNotTrip(t *testing.T) {
	s := openTestStore(t, WithFailureThreshold(2))
	ctx := context.Background()
	const circuit = "PROVIDER_ANTHROPIC"

	_, err := s.RecordProviderFailure(ctx, circuit, "rate limited")
	require.NoError(t, err)
	require.NoError(t, s.RecordProviderSuccess(ctx, circuit))

	// The streak restarts after a success.
	count, err := s.RecordProviderFailure(ctx, circuit, "rate limited")
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	// A tripped circuit stays off through later successes; only an
	// explicit reset closes it.
	_, err = s.RecordProviderFailure(ctx, circuit, "rate limited")
	require.NoError(t, err)
	require.NoError(t, s.RecordProviderSuccess(ctx, circuit))

	open, err := s.IsCircuitOpen(ctx, circuit)
	require.NoError(t, err)
	assert.True(t, open)
}

func TestProviderSuccess_ClosesHalfOpen(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	const circuit = "PROVIDER_OPENAI"

	require.NoError(t, s.SetCircuitState(ctx, circuit, StateHalfOpen))
	require.NoError(t, s.RecordProviderSuccess(ctx, circuit))

	state, err := s.CircuitState(ctx, circuit)
	require.NoError(t, err)
	assert.Equal(t, StateOn, state)
}

func TestResetProviderCircuit(t *testing.T) {
	s := openTestStore(t, WithFailureThreshold(1))
	ctx := context.Background()
	const circuit = "PROVIDER_OPENAI"

	_, err := s.RecordProviderFailure(ctx, circuit, "boom")
	require.NoError(t, err)

	open, err := s.IsCircuitOpen(ctx, circuit)
	require.NoError(t, err)
	require.True(t, open)

	require.NoError(t, s.ResetProviderCircuit(ctx, circuit))

	open, err = s.IsCircuitOpen(ctx, circuit)
	require.NoError(t, err)
	assert.False(t, open)

	// The failure streak is gone too: one more failure re-trips only
	// because the threshold is 1.
	count, err := s.RecordProviderFailure(ctx, circuit, "boom")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestListCircuits(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SetCircuitState(ctx, "SLEEP_MODE", StateOn))
	require.NoError(t, s.SetCircuitState(ctx, "MASTER", StateOff))

	circuits, err := s.ListCircuits(ctx)
	require.NoError(t, err)
	require.Len(t, circuits, 2)
	assert.Equal(t, "MASTER", circuits[0].ID)
	assert.Equal(t, StateOff, circuits[0].State)
	assert.Equal(t, "SLEEP_MODE", circuits[1].ID)
	assert.Equal(t, "2026-03-14T09:00:00Z", circuits[1].UpdatedAt)
}

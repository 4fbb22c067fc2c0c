package harness

import (
	"context"
	"fmt"
	"strings"

	"github.com/pmorrell/splitboard/internal/breakerstore"
)

// evaluate checks every expectation and returns one error per failure.
func evaluate(ctx context.Context, expect Expectation, boards []string, store *breakerstore.Store) []error {
	var failures []error

	if expect.BoardCount != nil && len(boards) != *expect.BoardCount {
		failures = append(failures, fmt.Errorf(
			"expected %d boards, got %d", *expect.BoardCount, len(boards)))
	}

	for i, be := range expect.Boards {
		idx := i
		if be.Index != nil {
			idx = *be.Index
		}
		if idx >= len(boards) {
			failures = append(failures, fmt.Errorf(
				"board %d: expected %q but only %d boards were rendered",
				idx, be.Contains, len(boards)))
			continue
		}
		if !strings.Contains(boards[idx], strings.ToUpper(be.Contains)) {
			failures = append(failures, fmt.Errorf(
				"board %d: expected to contain %q, got:\n%s",
				idx, strings.ToUpper(be.Contains), boards[idx]))
		}
	}

	for _, ce := range expect.Circuits {
		state, err := store.CircuitState(ctx, ce.CircuitID)
		if err != nil {
			failures = append(failures, fmt.Errorf(
				"circuit %s: %w", ce.CircuitID, err))
			continue
		}
		if state != ce.State {
			failures = append(failures, fmt.Errorf(
				"circuit %s: expected state %q, got %q", ce.CircuitID, ce.State, state))
		}
	}

	return failures
}

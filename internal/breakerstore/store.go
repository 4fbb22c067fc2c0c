// Package breakerstore is the SQLite-backed circuit breaker store.
//
// The router consumes only the breaker interface; this package is one
// reasonable persistence choice behind it. Circuits live in a single table
// keyed by circuit ID with an on/off/half_open state. Provider circuits
// additionally carry a consecutive-failure count that trips the circuit
// open when it reaches the configured threshold.
package breakerstore

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

// Valid circuit states. "on" means the gated behavior is allowed.
const (
	StateOn       = "on"
	StateOff      = "off"
	StateHalfOpen = "half_open"
)

// DefaultFailureThreshold is the consecutive-failure count that trips a
// provider circuit open.
const DefaultFailureThreshold = 3

// ErrUnknownCircuit is returned when a read targets a circuit that has
// never been written.
var ErrUnknownCircuit = errors.New("unknown circuit")

// Store persists circuit state in SQLite.
type Store struct {
	db        *sql.DB
	threshold int
	now       func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithFailureThreshold overrides the provider trip threshold.
func WithFailureThreshold(n int) Option {
	return func(s *Store) { s.threshold = n }
}

// WithNow overrides the timestamp source (for tests).
func WithNow(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// Open creates or opens the breaker database at path.
//
// The database is configured with WAL mode for concurrent reads, NORMAL
// synchronous mode, a 5-second busy timeout, and foreign key enforcement.
// Idempotent - safe to call against an existing database.
func Open(path string, opts ...Option) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open breaker database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect to breaker database: %w", err)
	}

	// SQLite supports one writer at a time; a single connection avoids
	// SQLITE_BUSY under concurrent handlers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply pragmas: %w", err)
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	s := &Store{db: db, threshold: DefaultFailureThreshold, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// SetCircuitState stores the given state for circuitID, creating the row if
// needed. The state must be one of on, off, half_open.
func (s *Store) SetCircuitState(ctx context.Context, circuitID, state string) error {
	if state != StateOn && state != StateOff && state != StateHalfOpen {
		return fmt.Errorf("invalid circuit state %q", state)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO circuits (circuit_id, state, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(circuit_id) DO UPDATE SET
			state = excluded.state,
			updated_at = excluded.updated_at
	`, circuitID, state, s.now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("set circuit %s: %w", circuitID, err)
	}
	return nil
}

// IsCircuitOpen reports whether circuitID currently blocks its gated
// behavior (true = blocked). A circuit that has never been written is
// closed; half_open allows a probe through.
func (s *Store) IsCircuitOpen(ctx context.Context, circuitID string) (bool, error) {
	var state string
	err := s.db.QueryRowContext(ctx,
		`SELECT state FROM circuits WHERE circuit_id = ?`, circuitID,
	).Scan(&state)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("read circuit %s: %w", circuitID, err)
	}
	return state == StateOff, nil
}

// ResetProviderCircuit closes circuitID and zeroes its failure count, in
// one transaction.
func (s *Store) ResetProviderCircuit(ctx context.Context, circuitID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("reset circuit %s: begin tx: %w", circuitID, err)
	}
	defer tx.Rollback() // No-op if committed

	ts := s.now().UTC().Format(time.RFC3339)
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO circuits (circuit_id, state, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(circuit_id) DO UPDATE SET
			state = excluded.state,
			updated_at = excluded.updated_at
	`, circuitID, StateOn, ts); err != nil {
		return fmt.Errorf("reset circuit %s: %w", circuitID, err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO provider_failures (circuit_id, consecutive_failures)
		VALUES (?, 0)
		ON CONFLICT(circuit_id) DO UPDATE SET
			consecutive_failures = 0,
			last_failure_at = NULL,
			last_failure_reason = NULL
	`, circuitID); err != nil {
		return fmt.Errorf("reset circuit %s failures: %w", circuitID, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("reset circuit %s: commit: %w", circuitID, err)
	}
	return nil
}

// RecordProviderFailure increments the consecutive-failure count for a
// provider circuit and trips it open once the threshold is reached.
// Returns the new count.
func (s *Store) RecordProviderFailure(ctx context.Context, circuitID, reason string) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("record failure %s: begin tx: %w", circuitID, err)
	}
	defer tx.Rollback()

	ts := s.now().UTC().Format(time.RFC3339)
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO provider_failures
			(circuit_id, consecutive_failures, last_failure_at, last_failure_reason)
		VALUES (?, 1, ?, ?)
		ON CONFLICT(circuit_id) DO UPDATE SET
			consecutive_failures = consecutive_failures + 1,
			last_failure_at = excluded.last_failure_at,
			last_failure_reason = excluded.last_failure_reason
	`, circuitID, ts, reason); err != nil {
		return 0, fmt.Errorf("record failure %s: %w", circuitID, err)
	}

	var count int
	if err := tx.QueryRowContext(ctx,
		`SELECT consecutive_failures FROM provider_failures WHERE circuit_id = ?`, circuitID,
	).Scan(&count); err != nil {
		return 0, fmt.Errorf("record failure %s: read count: %w", circuitID, err)
	}

	if count >= s.threshold {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO circuits (circuit_id, state, updated_at)
			VALUES (?, ?, ?)
			ON CONFLICT(circuit_id) DO UPDATE SET
				state = excluded.state,
				updated_at = excluded.updated_at
		`, circuitID, StateOff, ts); err != nil {
			return 0, fmt.Errorf("trip circuit %s: %w", circuitID, err)
		}
		slog.Warn("provider circuit tripped open",
			"circuit_id", circuitID,
			"consecutive_failures", count,
			"threshold", s.threshold,
		)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("record failure %s: commit: %w", circuitID, err)
	}
	return count, nil
}

// RecordProviderSuccess zeroes the consecutive-failure count. A half_open
// circuit closes again; a tripped (off) circuit stays off until an explicit
// reset.
func (s *Store) RecordProviderSuccess(ctx context.Context, circuitID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("record success %s: begin tx: %w", circuitID, err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO provider_failures (circuit_id, consecutive_failures)
		VALUES (?, 0)
		ON CONFLICT(circuit_id) DO UPDATE SET consecutive_failures = 0
	`, circuitID); err != nil {
		return fmt.Errorf("record success %s: %w", circuitID, err)
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE circuits SET state = ?, updated_at = ?
		WHERE circuit_id = ? AND state = ?
	`, StateOn, s.now().UTC().Format(time.RFC3339), circuitID, StateHalfOpen); err != nil {
		return fmt.Errorf("record success %s: close half-open: %w", circuitID, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("record success %s: commit: %w", circuitID, err)
	}
	return nil
}

// CircuitState returns the stored state for circuitID.
// Returns ErrUnknownCircuit for circuits that were never written.
func (s *Store) CircuitState(ctx context.Context, circuitID string) (string, error) {
	var state string
	err := s.db.QueryRowContext(ctx,
		`SELECT state FROM circuits WHERE circuit_id = ?`, circuitID,
	).Scan(&state)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("circuit %s: %w", circuitID, ErrUnknownCircuit)
	}
	if err != nil {
		return "", fmt.Errorf("read circuit %s: %w", circuitID, err)
	}
	return state, nil
}

// Circuit is one row of ListCircuits output.
type Circuit struct {
	ID        string
	State     string
	UpdatedAt string
}

// ListCircuits returns every stored circuit ordered by ID. Used by the CLI.
func (s *Store) ListCircuits(ctx context.Context) ([]Circuit, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT circuit_id, state, updated_at FROM circuits ORDER BY circuit_id`)
	if err != nil {
		return nil, fmt.Errorf("list circuits: %w", err)
	}
	defer rows.Close()

	var out []Circuit
	for rows.Next() {
		var c Circuit
		if err := rows.Scan(&c.ID, &c.State, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("list circuits: scan: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list circuits: %w", err)
	}
	return out, nil
}

// applyPragmas sets required SQLite configuration.
func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("execute %q: %w", pragma, err)
		}
	}
	return nil
}

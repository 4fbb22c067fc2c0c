package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pmorrell/splitboard/internal/breakerstore"
)

// CircuitOptions holds flags for the circuit command tree.
type CircuitOptions struct {
	*RootOptions
	Database string
}

// NewCircuitCommand creates the circuit command and its subcommands.
func NewCircuitCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CircuitOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "circuit",
		Short: "Inspect and control circuit breakers",
		Long: `Inspect and control circuit breakers in the store.

Example:
  splitboard circuit list --db ./circuits.db
  splitboard circuit show MASTER --db ./circuits.db
  splitboard circuit set MASTER off --db ./circuits.db
  splitboard circuit reset PROVIDER_OPENAI --db ./circuits.db`,
	}

	cmd.PersistentFlags().StringVar(&opts.Database, "db", "", "path to breaker database (required)")
	_ = cmd.MarkPersistentFlagRequired("db")

	cmd.AddCommand(newCircuitListCommand(opts))
	cmd.AddCommand(newCircuitShowCommand(opts))
	cmd.AddCommand(newCircuitSetCommand(opts))
	cmd.AddCommand(newCircuitResetCommand(opts))

	return cmd
}

func newCircuitListCommand(opts *CircuitOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "list",
		Short:         "List all stored circuits",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(opts, func(ctx context.Context, store *breakerstore.Store) error {
				circuits, err := store.ListCircuits(ctx)
				if err != nil {
					return WrapExitError(ExitCommandError, "failed to list circuits", err)
				}

				f := formatter(opts.RootOptions, cmd)
				if f.Format == "json" {
					return f.Success(circuits)
				}
				if len(circuits) == 0 {
					fmt.Fprintln(f.Writer, "no circuits stored")
					return nil
				}
				for _, c := range circuits {
					fmt.Fprintf(f.Writer, "%-24s %-10s %s\n", c.ID, c.State, c.UpdatedAt)
				}
				return nil
			})
		},
	}
}

func newCircuitShowCommand(opts *CircuitOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "show <circuit-id>",
		Short:         "Show the state of one circuit",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(opts, func(ctx context.Context, store *breakerstore.Store) error {
				state, err := store.CircuitState(ctx, args[0])
				if errors.Is(err, breakerstore.ErrUnknownCircuit) {
					f := formatter(opts.RootOptions, cmd)
					_ = f.Error(ErrCodeNotFound, err.Error(), nil)
					return NewExitError(ExitCommandError, err.Error())
				}
				if err != nil {
					return WrapExitError(ExitCommandError, "failed to read circuit", err)
				}

				f := formatter(opts.RootOptions, cmd)
				if f.Format == "json" {
					return f.Success(map[string]string{"circuit_id": args[0], "state": state})
				}
				fmt.Fprintf(f.Writer, "%s: %s\n", args[0], state)
				return nil
			})
		},
	}
}

func newCircuitSetCommand(opts *CircuitOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "set <circuit-id> <on|off|half_open>",
		Short:         "Set a circuit's state",
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(opts, func(ctx context.Context, store *breakerstore.Store) error {
				circuitID, state := args[0], args[1]
				if err := store.SetCircuitState(ctx, circuitID, state); err != nil {
					f := formatter(opts.RootOptions, cmd)
					_ = f.Error(ErrCodeBadInput, err.Error(), nil)
					return NewExitError(ExitCommandError, err.Error())
				}

				f := formatter(opts.RootOptions, cmd)
				if f.Format == "json" {
					return f.Success(map[string]string{"circuit_id": circuitID, "state": state})
				}
				fmt.Fprintf(f.Writer, "%s set to %s\n", circuitID, state)
				return nil
			})
		},
	}
}

func newCircuitResetCommand(opts *CircuitOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "reset <circuit-id>",
		Short:         "Close a provider circuit and clear its failure count",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(opts, func(ctx context.Context, store *breakerstore.Store) error {
				if err := store.ResetProviderCircuit(ctx, args[0]); err != nil {
					return WrapExitError(ExitCommandError, "failed to reset circuit", err)
				}

				f := formatter(opts.RootOptions, cmd)
				if f.Format == "json" {
					return f.Success(map[string]string{"circuit_id": args[0], "state": breakerstore.StateOn})
				}
				fmt.Fprintf(f.Writer, "%s reset\n", args[0])
				return nil
			})
		},
	}
}

// withStore opens the breaker database, runs fn, and closes it.
func withStore(opts *CircuitOptions, fn func(ctx context.Context, store *breakerstore.Store) error) error {
	store, err := breakerstore.Open(opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open breaker store", err)
	}
	defer store.Close()

	return fn(context.Background(), store)
}

// formatter builds an OutputFormatter bound to the command's writers.
func formatter(opts *RootOptions, cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}
}

package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/pmorrell/splitboard/internal/breakerstore"
	"github.com/pmorrell/splitboard/internal/bus"
	"github.com/pmorrell/splitboard/internal/catalog"
	"github.com/pmorrell/splitboard/internal/config"
	"github.com/pmorrell/splitboard/internal/content"
	"github.com/pmorrell/splitboard/internal/failover"
	"github.com/pmorrell/splitboard/internal/layout"
	"github.com/pmorrell/splitboard/internal/orchestrate"
	"github.com/pmorrell/splitboard/internal/router"
	"github.com/pmorrell/splitboard/internal/trigger"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	ConfigPath string

	// Bus allows overriding the event bus (for testing).
	// If nil, an MQTT bus is built from the config.
	Bus bus.Bus

	// Factory allows overriding the provider factory (for testing).
	// If nil, defaults to the offline echo factory.
	// TODO: wire real OpenAI/Anthropic clients behind content.Factory.
	Factory content.Factory
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start the event router",
		Long: `Start the splitboard event router.

Loads the YAML config, opens the circuit-breaker database (creating it if
it doesn't exist), registers the content generators, connects to the MQTT
event bus, and routes events until interrupted.

Example:
  splitboard run --config ./splitboard.yaml
  splitboard run --config /etc/splitboard/config.yaml --verbose`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDaemon(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.ConfigPath, "config", "", "path to YAML config (required)")
	_ = cmd.MarkFlagRequired("config")

	return cmd
}

func runDaemon(opts *RunOptions, cmd *cobra.Command) error {
	logLevel := slog.LevelInfo
	if opts.Verbose {
		logLevel = slog.LevelDebug
	}
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	})
	slog.SetDefault(slog.New(handler))

	slog.Info("loading config", "path", opts.ConfigPath)
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load config", err)
	}

	slog.Info("opening breaker store", "path", cfg.Store.Path)
	store, err := breakerstore.Open(cfg.Store.Path)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open breaker store", err)
	}
	defer func() {
		if closeErr := store.Close(); closeErr != nil {
			slog.Error("error closing breaker store", "error", closeErr)
		}
	}()

	factory := opts.Factory
	if factory == nil {
		factory = &content.EchoFactory{}
	}

	cat := catalog.New()
	deps := content.Deps{
		Executor: failover.NewExecutor(cfg.Providers, failover.WithOutcomeRecorder(store)),
		Mapper:   cfg.Providers,
		Factory:  factory,
	}
	if err := content.RegisterAll(cat, deps); err != nil {
		return WrapExitError(ExitCommandError, "failed to register generators", err)
	}
	slog.Info("generators registered", "count", cat.Len())

	matcher, err := trigger.New(cfg.Triggers)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid trigger config", err)
	}

	selector := catalog.NewSelector(cat, catalog.NewUniformChooser(time.Now().UnixNano()))
	orch := orchestrate.New(cat, selector, boardSender(cmd))

	eventBus := opts.Bus
	if eventBus == nil {
		eventBus = bus.NewMQTT(cfg.MQTT)
	}

	rtr := router.New(eventBus, orch,
		router.WithBreaker(store),
		router.WithTriggerMatcher(matcher),
		router.WithCircuitRules(cfg.CircuitRules()),
	)

	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()

	if err := rtr.Start(ctx); err != nil {
		return WrapExitError(ExitFailure, "failed to start router", err)
	}
	defer rtr.Close()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	fmt.Fprintln(cmd.OutOrStdout(), "Router started. Listening for events...")
	fmt.Fprintln(cmd.OutOrStdout(), "Press Ctrl-C to stop.")

	select {
	case sig := <-sigChan:
		slog.Info("received signal, shutting down", "signal", sig)
	case <-ctx.Done():
		// Parent context cancelled (e.g., from test)
	}

	slog.Info("router stopped gracefully")
	return nil
}

// boardSender writes rendered grids to the command's stdout. The physical
// display transport plugs in behind orchestrate.Sender.
func boardSender(cmd *cobra.Command) orchestrate.Sender {
	return orchestrate.SenderFunc(func(_ context.Context, grid layout.Grid) error {
		_, err := fmt.Fprintln(cmd.OutOrStdout(), grid.String())
		return err
	})
}

package cli

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/tillworks/basketd/internal/basket"
	"github.com/tillworks/basketd/internal/checkout"
	"github.com/tillworks/basketd/internal/config"
	"github.com/tillworks/basketd/internal/fraud"
	"github.com/tillworks/basketd/internal/httpapi"
	"github.com/tillworks/basketd/internal/journal"
	"github.com/tillworks/basketd/internal/orchestrator"
	"github.com/tillworks/basketd/internal/posclient"
	"github.com/tillworks/basketd/internal/recommend"
	"github.com/tillworks/basketd/internal/stream"
	"github.com/tillworks/basketd/internal/verification"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run <config.yaml>",
		Short: "Start the terminal orchestrator",
		Long: `Start the basket orchestrator for one terminal.

Loads the terminal config, resumes the action journal, connects the enabled
realtime channels, and serves the local API for the presentation layer.

Example:
  basketd run /etc/basketd/terminal.yaml
  basketd run ./terminal.yaml --verbose`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTerminal(opts, args[0])
		},
	}

	return cmd
}

func runTerminal(opts *RunOptions, configPath string) error {
	logLevel := slog.LevelInfo
	if opts.Verbose {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	cfg, err := config.Load(configPath)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load config", err)
	}
	logger.Info("config loaded", "terminal", cfg.TerminalID, "transport", cfg.Transport)

	jrnl, err := journal.Open(cfg.JournalPath)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open journal", err)
	}
	defer func() {
		if closeErr := jrnl.Close(); closeErr != nil {
			logger.Error("error closing journal", "error", closeErr)
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Resume mid-session state from the journal; the clock continues from
	// the last journaled seq so appended dispatches never collide.
	replayed, err := journal.Replay(ctx, jrnl)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to replay journal", err)
	}
	if verifyErr := replayed.VerifyTotal(); verifyErr != nil {
		return WrapExitError(ExitFailure, "journal replay diverged", verifyErr)
	}
	if len(replayed.Steps) > 0 {
		logger.Info("session resumed", "actions", len(replayed.Steps), "seq", replayed.LastSeq)
	}

	orch := orchestrator.New(logger,
		orchestrator.WithJournal(jrnl),
		orchestrator.WithClock(orchestrator.NewClockAt(replayed.LastSeq)),
		orchestrator.WithInitialState(replayed.Final),
	)

	client := posclient.New(cfg.Backend.BaseURL, cfg.TerminalID, logger)

	verifier := verification.NewCoordinator(client, orch, logger,
		verification.WithAgeGate(cfg.Enabled("age_verification")),
		verification.WithPendingTimeout(cfg.PendingTimeout.Std()),
	)
	payments := checkout.NewFlow(client, orch, logger)
	recs := recommend.NewService(client, orch, logger)
	alerts := fraud.NewHandler(orch, logger)

	supervisor := stream.NewSupervisor(logger,
		stream.WithReconnectDelay(cfg.ReconnectDelay.Std()),
	)
	session := stream.NewSessionMonitor(orch, supervisor, logger)

	transport := channelTransport(cfg)
	supervisor.Register(stream.ChannelSession, transport, session)
	if cfg.Enabled("age_verification") {
		supervisor.Register(stream.ChannelAgeVerification, transport, verifier)
	}
	if cfg.Enabled("fraud_detection") {
		supervisor.Register(stream.ChannelFraudAlerts, transport, alerts)
	}
	if cfg.Enabled("purchase_recommender") {
		supervisor.Register(stream.ChannelRecommendations, transport, recs)
	}

	// Start the dispatch loop before anything can enqueue.
	loopDone := make(chan error, 1)
	go func() { loopDone <- orch.Run(ctx) }()

	// An existing basket survives restarts via the journal; otherwise open
	// a fresh one for the operator.
	if orch.Snapshot().Basket == nil {
		b, err := client.CreateBasket(ctx, cfg.EmployeeID)
		if err != nil {
			logger.Error("could not open basket, continuing without", "error", err)
			orch.Dispatch(basket.SetError{Message: "failed to open basket"})
		} else {
			orch.Dispatch(basket.SetBasket{Basket: *b})
			logger.Info("basket opened", "basket", b.ID)
		}
	}

	for name := range supervisor.States() {
		if err := supervisor.Connect(ctx, name); err != nil {
			// The supervisor has already scheduled the reconnect.
			logger.Warn("initial channel connect failed", "channel", name, "error", err)
		}
	}

	api := httpapi.NewServer(orch, verifier, payments, recs, alerts, client, client,
		cfg.Enabled("customer_lookup"), supervisor, cfg.Currency, logger)
	httpServer := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: api.Router(),
	}
	serveDone := make(chan error, 1)
	go func() {
		logger.Info("api listening", "addr", cfg.ListenAddr)
		serveDone <- httpServer.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	loopExited := false
	select {
	case sig := <-sigCh:
		logger.Info("shutting down", "signal", sig.String())
	case err := <-serveDone:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return WrapExitError(ExitCommandError, "api server failed", err)
		}
	case err := <-loopDone:
		loopExited = true
		if err != nil && !errors.Is(err, context.Canceled) {
			return WrapExitError(ExitCommandError, "dispatch loop failed", err)
		}
	}

	supervisor.DisconnectAll()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("api shutdown error", "error", err)
	}

	orch.Stop()
	cancel()
	if !loopExited {
		<-loopDone
	}

	logger.Info("terminal stopped")
	return nil
}

func channelTransport(cfg *config.Config) stream.Transport {
	if cfg.Transport == config.TransportAMQP {
		return &stream.AMQPTransport{
			URL:        cfg.AMQP.URL,
			Exchange:   cfg.AMQP.Exchange,
			TerminalID: cfg.TerminalID,
		}
	}
	return &stream.SSETransport{
		BaseURL:    cfg.Backend.BaseURL,
		TerminalID: cfg.TerminalID,
	}
}

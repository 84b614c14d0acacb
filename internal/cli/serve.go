package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"agentdesk/internal/config"
	"agentdesk/internal/diagnostics"
	"agentdesk/internal/gateway"
	"agentdesk/internal/gateway/handlers"
	"agentdesk/internal/gateway/websocket"
	"agentdesk/internal/notify"
	"agentdesk/pkg/logger"
)

// NewServeCmd creates the serve command.
func NewServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the observer gateway",
		Long: `Start the observer gateway.

This command runs one operator session and exposes it over HTTP:
- REST endpoints to send messages and resolve interrupts
- A WebSocket that pushes every snapshot and notification
- A health endpoint backed by scheduled server diagnostics

The gateway listens on the configured host and port (default: 127.0.0.1:18790).
Changes to server.assistant_id in the config file apply without a restart.`,
		Example: `  # Start with default configuration
  agentdesk serve

  # Listen on another port
  agentdesk serve --port 8080`,
		RunE: runServe,
	}

	cmd.Flags().IntP("port", "p", 0, "port to listen on (overrides config)")
	cmd.Flags().String("host", "", "host to bind to (overrides config)")
	cmd.Flags().StringSlice("origin", nil, "allowed browser origin (repeatable, default any)")

	return cmd
}

func runServe(cmd *cobra.Command, args []string) error {
	cliCtx := GetCLIContext(cmd)
	if cliCtx == nil {
		return errNoContext
	}

	cfg := cliCtx.Config
	log := cliCtx.Log()

	// Override config with flags if provided
	if port, _ := cmd.Flags().GetInt("port"); port > 0 {
		cfg.Gateway.Port = port
	}
	if host, _ := cmd.Flags().GetString("host"); host != "" {
		cfg.Gateway.Host = host
	}
	origins, _ := cmd.Flags().GetStringSlice("origin")

	hub := websocket.NewHub()
	sink := notify.Multi{
		notify.NewLogSink(logger.Named("notify")),
		notify.NewBroadcastSink(hub),
	}

	tr := cliCtx.Transport()
	op, err := cliCtx.NewOperator(tr, sink)
	if err != nil {
		return err
	}
	defer op.Close()

	audit, err := cliCtx.GetAudit()
	if err != nil {
		return err
	}
	var decisions handlers.DecisionLister
	if audit != nil {
		decisions = audit
	}

	prober, err := diagnostics.NewProber(tr, cfg.Diagnostics.MinServerVersion)
	if err != nil {
		return err
	}
	monitor, err := diagnostics.NewMonitor(prober, sink, cfg.Diagnostics.Schedule, log)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	if err := monitor.Start(ctx); err != nil {
		return err
	}
	defer func() {
		<-monitor.Stop().Done()
	}()

	config.Watch(func(updated *config.Config) {
		id := updated.Server.AssistantID
		if id == "" || id == op.Session().AssistantID() {
			return
		}
		if err := op.Session().SetAssistantID(id); err != nil {
			log.Warn().Err(err).Str("assistant_id", id).Msg("Assistant change not applied")
			return
		}
		log.Info().Str("assistant_id", id).Msg("Assistant changed")
	})

	srv := gateway.NewServer(gateway.Options{
		Version:   Version,
		Addr:      cfg.Gateway.Addr(),
		Operator:  op,
		Hub:       hub,
		Decisions: decisions,
		Health:    monitor.Last,
		Origins:   origins,
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	log.Info().
		Str("address", "http://"+cfg.Gateway.Addr()).
		Str("assistant_id", op.Session().AssistantID()).
		Str("api_url", cfg.Server.APIURL).
		Msg("Gateway started")

	// Wait for interrupt signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case <-sigCh:
		log.Info().Msg("Shutting down gateway...")
	case err := <-errCh:
		if err != nil {
			log.Error().Err(err).Msg("Gateway error")
			return err
		}
	}

	// Graceful shutdown
	shutdownCtx, stop := context.WithTimeout(context.Background(), 10*time.Second)
	defer stop()
	if err := op.Session().Stop(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("Run did not stop cleanly")
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error during shutdown")
		return fmt.Errorf("shutdown: %w", err)
	}

	log.Info().Msg("Gateway stopped")
	return nil
}

package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/teemow/venuedesk/internal/config"
	"github.com/teemow/venuedesk/internal/instrumentation"
	"github.com/teemow/venuedesk/internal/logging"
	"github.com/teemow/venuedesk/internal/server"
	smsgateway "github.com/teemow/venuedesk/internal/signal"
	"github.com/teemow/venuedesk/internal/tools/venue_tools"
)

// Supported MCP transports.
const (
	transportStdio          = "stdio"
	transportStreamableHTTP = "streamable-http"
	transportNone           = "none"
)

// MetricsConfig holds configuration for the metrics server
type MetricsConfig struct {
	Enabled bool
	Addr    string
}

type serveOptions struct {
	transport      string
	httpAddr       string
	apiAddr        string
	yolo           bool
	allowedNumbers string
	metrics        MetricsConfig
}

func newServeCmd() *cobra.Command {
	var opts serveOptions

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the venuedesk service",
		Long: `Run the scheduled inbox sync, the suggestion step, the SMS approval
poller, the JSON API and an MCP server exposing the venue tools.

Supports multiple MCP transports:
  - stdio: Standard input/output (default)
  - streamable-http: Streamable HTTP transport on --http-addr
  - none: No MCP server, only the API and background work`,
		RunE: func(cmd *cobra.Command, args []string) error {
			// Load metrics config from environment if not set via flags
			if !cmd.Flags().Changed("metrics-enabled") {
				if v := os.Getenv("METRICS_ENABLED"); v != "" {
					opts.metrics.Enabled = v == "true"
				}
			}
			if !cmd.Flags().Changed("metrics-addr") {
				if addr := os.Getenv("METRICS_ADDR"); addr != "" {
					opts.metrics.Addr = addr
				}
			}
			if !cmd.Flags().Changed("allowed-numbers") {
				opts.allowedNumbers = os.Getenv("VENUEDESK_ALLOWED_NUMBERS")
			}
			return runServe(opts)
		},
	}

	cmd.Flags().StringVar(&opts.transport, "transport", transportStdio, "MCP transport type: stdio, streamable-http or none")
	cmd.Flags().StringVar(&opts.httpAddr, "http-addr", ":8081", "MCP HTTP server address (for streamable-http transport)")
	cmd.Flags().StringVar(&opts.apiAddr, "api-addr", server.DefaultAPIAddr, "JSON API and SMS webhook address. Empty disables the API.")
	cmd.Flags().BoolVar(&opts.yolo, "yolo", false, "Enable write tools (archiving, sending approved replies, running suggestions). Default is read-only mode.")
	cmd.Flags().StringVar(&opts.allowedNumbers, "allowed-numbers", "", "Comma-separated phone numbers allowed to approve, added to approval.allowed_numbers. Can also use VENUEDESK_ALLOWED_NUMBERS env var.")
	cmd.Flags().BoolVar(&opts.metrics.Enabled, "metrics-enabled", true, "Enable the metrics server on a dedicated port. Can also use METRICS_ENABLED env var.")
	cmd.Flags().StringVar(&opts.metrics.Addr, "metrics-addr", ":9090", "Metrics server address. Can also use METRICS_ADDR env var.")

	return cmd
}

func runServe(opts serveOptions) (err error) {
	switch opts.transport {
	case transportStdio, transportStreamableHTTP, transportNone:
	default:
		return fmt.Errorf("unsupported transport type: %s (supported: stdio, streamable-http, none)", opts.transport)
	}

	// Setup graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	logger, err := newLogger()
	if err != nil {
		return err
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	cfg.Approval.AllowedNumbers = append(cfg.Approval.AllowedNumbers, parseCommaSeparatedList(opts.allowedNumbers)...)

	// Initialize instrumentation provider
	instrConfig := instrumentation.DefaultConfig()
	instrConfig.ServiceVersion = version
	if instrConfig.VenueName == "" {
		instrConfig.VenueName = cfg.VenueName
	}

	provider, err := instrumentation.NewProvider(ctx, instrConfig)
	if err != nil {
		return fmt.Errorf("failed to create instrumentation provider: %w", err)
	}

	var (
		metrics *instrumentation.Metrics
		audit   *instrumentation.AuditLogger
	)
	if provider.Enabled() {
		metrics = provider.Metrics()
		audit = instrumentation.NewAuditLogger(logging.WithComponent(logger, "audit"), instrConfig.AuditLogging, logging.AnonymizeEmail)
	}

	var metricsServer *server.MetricsServer
	if opts.metrics.Enabled && provider.Enabled() {
		metricsServer, err = startMetricsServer(opts.metrics.Addr, provider, logger)
		if err != nil {
			_ = provider.Shutdown(context.Background())
			return err
		}
	}

	a, err := newApp(ctx, cfg, logger, metrics, audit)
	if err != nil {
		return errors.Join(err, shutdownAll(logger, provider, metricsServer, nil, nil))
	}

	serverContext := server.NewServerContext(ctx, a.components())
	serverContext.SetMetrics(metrics)
	serverContext.SetAuditLogger(audit)
	defer func() {
		err = errors.Join(err, shutdownAll(logger, provider, metricsServer, serverContext, a))
	}()

	health := server.NewHealthChecker(serverContext)

	// readOnly is the inverse of yolo
	readOnly := !opts.yolo
	if readOnly {
		logger.Info("MCP tools are READ-ONLY (use --yolo to enable write operations)")
	} else {
		logger.Info("MCP write tools enabled (--yolo flag is set)")
	}

	mcpSrv := mcpserver.NewMCPServer("venuedesk", version,
		mcpserver.WithToolCapabilities(true),
	)
	if err := registerAllTools(mcpSrv, serverContext, readOnly); err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)

	if opts.apiAddr != "" {
		api := server.NewAPIServer(serverContext, server.APIServerConfig{
			Addr:         opts.apiAddr,
			WebhookToken: cfg.Approval.WebhookToken,
			MaxResults:   cfg.Sync.MaxResults,
			Health:       health,
		})
		g.Go(func() error {
			return serveUntilDone(gctx, "API", api.StartWithReadySignal, api.Shutdown, func() string { return api.Addr() }, logger)
		})
	}

	g.Go(func() error {
		runSyncLoop(gctx, a, health, logger)
		return nil
	})

	if a.signal != nil {
		g.Go(func() error {
			err := a.signal.Poll(gctx, cfg.Approval.PollInterval, func(ctx context.Context, m smsgateway.InboundMessage) {
				res := a.interpreter.ResolveCommand(ctx, m.Text, m.From)
				logger.InfoContext(ctx, "sms command handled", slog.Bool("success", res.Success))
			})
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
	} else {
		logger.Warn("approval.signal_account is not set, SMS commands are only accepted on the webhook")
	}

	switch opts.transport {
	case transportStdio:
		g.Go(func() error {
			defer cancel()
			return runStdioServer(gctx, mcpSrv)
		})
	case transportStreamableHTTP:
		mcpHTTP := newMCPHTTPServer(mcpSrv, opts.httpAddr)
		g.Go(func() error {
			return serveUntilDone(gctx, "MCP HTTP", mcpHTTP.StartWithReadySignal, mcpHTTP.Shutdown, mcpHTTP.Addr, logger)
		})
	}

	return g.Wait()
}

// startMetricsServer starts the Prometheus endpoint and waits until it is
// listening.
func startMetricsServer(addr string, provider *instrumentation.Provider, logger *slog.Logger) (*server.MetricsServer, error) {
	metricsServer, err := server.NewMetricsServer(server.MetricsServerConfig{
		Addr:                    addr,
		InstrumentationProvider: provider,
		Logger:                  logger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create metrics server: %w", err)
	}

	// Use ready channel to confirm metrics server started successfully
	metricsReady := make(chan struct{})
	metricsErr := make(chan error, 1)
	go func() {
		if err := metricsServer.StartWithReadySignal(metricsReady); err != nil && !errors.Is(err, http.ErrServerClosed) {
			metricsErr <- err
		}
		close(metricsErr)
	}()

	// Wait for metrics server to be ready or fail
	select {
	case <-metricsReady:
		logger.Info("metrics server started", slog.String("addr", metricsServer.Addr()))
		return metricsServer, nil
	case err := <-metricsErr:
		return nil, fmt.Errorf("metrics server failed to start: %w", err)
	case <-time.After(5 * time.Second):
		return nil, fmt.Errorf("metrics server startup timed out")
	}
}

// serveUntilDone runs an HTTP server until ctx is done and then shuts it
// down within 30 seconds.
func serveUntilDone(ctx context.Context, name string, start func(chan<- struct{}) error, shutdown func(context.Context) error, addr func() string, logger *slog.Logger) error {
	ready := make(chan struct{})
	serverDone := make(chan error, 1)
	go func() {
		defer close(serverDone)
		if err := start(ready); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverDone <- err
		}
	}()

	select {
	case <-ready:
		logger.Info(name+" server started", slog.String("addr", addr()))
	case err := <-serverDone:
		if err != nil {
			return fmt.Errorf("%s server stopped with error: %w", name, err)
		}
		return nil
	}

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("error shutting down %s server: %w", name, err)
		}
		logger.Info(name + " server gracefully stopped")
		return nil
	case err := <-serverDone:
		if err != nil {
			return fmt.Errorf("%s server stopped with error: %w", name, err)
		}
		return nil
	}
}

// runSyncLoop syncs the inbox on the configured interval and, when an
// operator can be reached, runs one suggestion pass after each sync.
func runSyncLoop(ctx context.Context, a *app, health *server.HealthChecker, logger *slog.Logger) {
	logger = logging.WithComponent(logger, "scheduler")
	interval := a.cfg.Sync.Interval
	if interval <= 0 {
		interval = 5 * time.Minute
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		runScheduledPass(ctx, a, health, logger)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func runScheduledPass(ctx context.Context, a *app, health *server.HealthChecker, logger *slog.Logger) {
	summary, err := a.sync(ctx, false)
	if err != nil {
		if ctx.Err() == nil {
			logger.ErrorContext(ctx, "scheduled sync failed", logging.Err(err))
		}
		return
	}
	health.SetReady(true)
	logger.InfoContext(ctx, "scheduled sync finished",
		slog.Int("messages", summary.Total),
		slog.Int("replied", summary.Replied),
		slog.Int("indexed_addresses", a.index.Size()))

	if !a.canSuggest() {
		return
	}
	out, err := a.step.Run(ctx)
	if err != nil {
		logger.ErrorContext(ctx, "suggestion step failed", logging.Err(err))
		return
	}
	logger.InfoContext(ctx, "suggestion step finished", slog.String("result", out.Result))
}

func runStdioServer(ctx context.Context, mcpSrv *mcpserver.MCPServer) error {
	stdio := mcpserver.NewStdioServer(mcpSrv)
	if err := stdio.Listen(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("server stopped with error: %w", err)
	}
	return nil
}

// registerAllTools registers all MCP tools.
func registerAllTools(mcpSrv *mcpserver.MCPServer, ctx *server.ServerContext, readOnly bool) error {
	type toolRegistration struct {
		name     string
		register func() error
	}

	registrations := []toolRegistration{
		{
			name: "Venue",
			register: func() error {
				return venue_tools.RegisterVenueTools(mcpSrv, ctx, readOnly)
			},
		},
	}

	for _, reg := range registrations {
		if err := reg.register(); err != nil {
			return fmt.Errorf("failed to register %s tools: %w", reg.name, err)
		}
	}

	return nil
}

// shutdownAll releases everything runServe started. Any argument may be nil.
func shutdownAll(logger *slog.Logger, provider *instrumentation.Provider, metricsServer *server.MetricsServer, sc *server.ServerContext, a *app) error {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var errs []error
	if metricsServer != nil {
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("metrics server: %w", err))
		}
	}
	if sc != nil {
		if err := sc.Shutdown(); err != nil {
			errs = append(errs, fmt.Errorf("server context: %w", err))
		}
	}
	if a != nil {
		if err := a.Close(); err != nil {
			errs = append(errs, fmt.Errorf("cache: %w", err))
		}
	}
	if provider != nil {
		if err := provider.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("instrumentation: %w", err))
		}
	}

	err := errors.Join(errs...)
	if err != nil {
		logger.Error("shutdown finished with errors", logging.Err(err))
	}
	return err
}

// parseCommaSeparatedList parses a comma-separated string into a slice,
// trimming whitespace from each element and filtering out empty strings.
// Returns nil if the input is empty or contains only whitespace/commas.
func parseCommaSeparatedList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	if len(result) == 0 {
		return nil
	}
	return result
}

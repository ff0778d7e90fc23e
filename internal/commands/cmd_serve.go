package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hiroki-koketsu/focusflow/internal/advisor"
	"github.com/hiroki-koketsu/focusflow/internal/coach"
	"github.com/hiroki-koketsu/focusflow/internal/handler"
	"github.com/hiroki-koketsu/focusflow/internal/repository"
	"github.com/hiroki-koketsu/focusflow/internal/telemetry"
	"github.com/urfave/cli/v3"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
)

type ServeCmd struct {
	flags *Flags

	// flags
	port string
}

// NewServeCmd creates a new serve command
func NewServeCmd(flags *Flags) *ServeCmd {
	return &ServeCmd{flags: flags}
}

// Register adds the serve command to the application
func (cmd *ServeCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:      "serve",
		Usage:     "Run the HTTP API",
		UsageText: "focusflow serve [--port PORT]",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "port",
				Usage:       "listen port (overrides SERVER_PORT)",
				Destination: &cmd.port,
			},
		},
		Action: cmd.run,
	})

	return app
}

func (cmd *ServeCmd) run(ctx context.Context, c *cli.Command) error {
	cfg := cmd.flags.Config
	if cmd.port != "" {
		cfg.ServerPort = cmd.port
	}

	startupLogger := cmd.flags.Logger
	startupLogger.Info("starting application",
		slog.String("service", cfg.ServiceName),
		slog.String("environment", cfg.Environment),
		slog.String("port", cfg.ServerPort),
		slog.String("store", cfg.Store.Driver),
		slog.Bool("otel", cfg.OTelEnabled),
	)

	providers, logger, err := telemetry.Setup(ctx, telemetry.Options{
		Enabled:      cfg.OTelEnabled,
		ServiceName:  cfg.ServiceName,
		Environment:  cfg.Environment,
		OTLPEndpoint: cfg.OTLPEndpoint,
		Level:        cfg.Level(),
		Output:       c.Root().ErrWriter,
	})
	if err != nil {
		return fmt.Errorf("initialize telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := providers.Shutdown(shutdownCtx); err != nil {
			startupLogger.Error("failed to shutdown telemetry providers", slog.Any("error", err))
		}
	}()

	// Assigned before the server accepts requests, so before any write can
	// run the conflict hook.
	var metrics *telemetry.Metrics

	rt, err := cmd.flags.Open(ctx, logger,
		repository.WithConflictHook(func(ctx context.Context) { metrics.PersistConflict(ctx) }),
	)
	if err != nil {
		return err
	}
	defer func() {
		if err := rt.Close(); err != nil {
			logger.Error("failed to close store", slog.Any("error", err))
		}
	}()

	metrics, err = telemetry.NewMetrics(otel.Meter(cfg.ServiceName), rt.Tasks.Count)
	if err != nil {
		return fmt.Errorf("create metrics: %w", err)
	}

	gemini := advisor.NewGemini(cfg.AdvisorOptions(),
		logger.With(slog.String("component", "advisor")),
		advisor.WithFallbackHook(metrics.AdvisorFallback),
	)
	studyCoach := coach.New(rt.Tasks, gemini, rt.Store,
		logger.With(slog.String("component", "coach")),
		coach.WithLocation(rt.Location),
	)

	router := handler.NewRouter(
		handler.NewTaskHandler(rt.Tasks, studyCoach, logger, metrics),
		handler.NewCoachHandler(studyCoach, logger, metrics),
		handler.NewChatHandler(gemini, logger, metrics),
	)

	// Wrap router with OpenTelemetry HTTP instrumentation
	otelHandler := otelhttp.NewHandler(router, "http-server",
		otelhttp.WithFilter(func(r *http.Request) bool {
			// Skip tracing for health checks
			return r.URL.Path != "/health"
		}),
	)

	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      otelHandler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("server listening", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	// Wait for interrupt signal for graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	case <-quit:
	case <-ctx.Done():
	}

	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", slog.Any("error", err))
	}

	logger.Info("server stopped")
	return nil
}

// atdsync serves the ATD integration: admin endpoints, MCP tools, metrics
// and the scheduled tracking sweep.
package main

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

	"golang.org/x/sync/errgroup"

	"atd-sync/internal/app"
	"atd-sync/internal/config"
	"atd-sync/internal/handler"
	"atd-sync/internal/middleware"
	"atd-sync/internal/scheduler"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(ctx)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := app.NewLogger(cfg.Environment, cfg.LogLevel)
	logger.Info("configuration loaded",
		slog.String("environment", cfg.Environment),
		slog.Bool("postgres", cfg.DatabaseURL != ""),
		slog.Bool("woocommerce", cfg.WooCommerce.Enabled()),
		slog.Bool("pricing", cfg.Pricing != nil),
		slog.Duration("sweep_interval", cfg.SweepInterval),
	)

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	h := handler.New(a.Services(), logger)

	mux := http.NewServeMux()
	h.RegisterRoutes(mux)

	// Recovery must be outermost to catch panics from logging middleware.
	// Health checks stay open for the load balancer.
	httpHandler := middleware.Chain(
		middleware.Recovery(logger),
		middleware.RequestID(),
		middleware.Logging(logger),
		middleware.RequireToken(cfg.AdminToken, "/health", "/healthz"),
	)(mux)
	if cfg.AdminToken == "" {
		logger.Warn("ADMIN_TOKEN not set; admin endpoints are unauthenticated")
	}

	// Inventory sync batches can run for minutes.
	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      httpHandler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 15 * time.Minute,
		IdleTimeout:  120 * time.Second,
	}

	sweep := scheduler.New(scheduler.Config{
		Name:     "tracking_sweep",
		Interval: cfg.SweepInterval,
	}, func(ctx context.Context) error {
		_, err := a.Sweeper.Run(ctx)
		return err
	}, logger)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("server starting", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		return sweep.Run(gctx)
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")

		// Give outstanding requests time to complete
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			// Force close if graceful shutdown fails
			server.Close()
			return fmt.Errorf("shutdown error: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("server stopped")
	return nil
}

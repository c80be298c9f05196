// Package app wires configuration into the running services. Both the
// HTTP service and the operator CLI build from here.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"atd-sync/internal/config"
	"atd-sync/internal/handler"
	"atd-sync/internal/inventory"
	"atd-sync/internal/metrics"
	"atd-sync/internal/ordering"
	"atd-sync/internal/soap"
	"atd-sync/internal/store"
	"atd-sync/internal/store/memory"
	"atd-sync/internal/store/postgres"
	"atd-sync/internal/tracking"
	"atd-sync/internal/transport"
	"atd-sync/internal/woocommerce"
)

// App holds the constructed services.
type App struct {
	Config      *config.Config
	Store       store.Store
	Distributor *soap.Client
	Metrics     *metrics.Metrics
	Scrubber    *inventory.Scrubber
	Syncer      *inventory.Syncer
	Orders      *ordering.Service
	Sweeper     *tracking.Sweeper
	Publisher   *woocommerce.Client // nil when WooCommerce is not configured
}

// New opens the store and builds every service. Close releases the store.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	st, err := OpenStore(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	a, err := build(cfg, st, logger)
	if err != nil {
		st.Close()
		return nil, err
	}
	return a, nil
}

// OpenStore returns the postgres store when DatabaseURL is set, migrated to
// the latest schema, and the in-memory store otherwise.
func OpenStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (store.Store, error) {
	if cfg.DatabaseURL == "" {
		if cfg.StoreSeedFile == "" {
			logger.Warn("no DATABASE_URL; using empty in-memory store")
			return memory.New(), nil
		}
		st, err := memory.Load(cfg.StoreSeedFile)
		if err != nil {
			return nil, fmt.Errorf("loading store seed: %w", err)
		}
		logger.Info("using in-memory store", slog.String("seed", cfg.StoreSeedFile))
		return st, nil
	}

	st, err := postgres.Open(ctx, postgres.Config{DSN: cfg.DatabaseURL}, logger)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(); err != nil {
		st.Close()
		return nil, fmt.Errorf("migrating database: %w", err)
	}
	return st, nil
}

func build(cfg *config.Config, st store.Store, logger *slog.Logger) (*App, error) {
	m := metrics.New()

	soapCfg := cfg.SOAPConfig()
	soapCfg.HTTPClient = &http.Client{
		Timeout:   cfg.SOAPTimeout(),
		Transport: transport.New(cfg.TransportKind(), cfg.SOAPTimeout()),
	}
	soapCfg.Observer = m
	soapCfg.Logger = logger
	dist, err := soap.New(soapCfg)
	if err != nil {
		return nil, fmt.Errorf("creating ATD client: %w", err)
	}
	if !dist.Configured() {
		logger.Warn("ATD credentials missing; distributor calls will fail",
			slog.Any("missing", dist.MissingConfig()))
	}

	a := &App{Config: cfg, Store: st, Distributor: dist, Metrics: m}

	a.Scrubber = inventory.NewScrubber(st, dist, logger)
	a.Scrubber.Recorder = m

	a.Syncer = inventory.NewSyncer(st, dist, cfg.Pricing, logger)
	a.Syncer.Recorder = m

	a.Orders = ordering.New(st, dist, cfg.OrderEditURL, logger)
	a.Orders.Recorder = m

	a.Sweeper = tracking.NewSweeper(st, dist, logger)
	a.Sweeper.Lookback = cfg.SweepLookback
	a.Sweeper.Recorder = m

	if cfg.WooCommerce.Enabled() {
		pub, err := woocommerce.New(woocommerce.Config{
			StoreURL:  cfg.WooCommerce.StoreURL,
			APIKey:    cfg.WooCommerce.APIKey,
			APISecret: cfg.WooCommerce.APISecret,
			Transport: cfg.TransportKind(),
		})
		if err != nil {
			return nil, fmt.Errorf("creating WooCommerce client: %w", err)
		}
		a.Publisher = pub
		a.Sweeper.Publisher = pub
	}
	return a, nil
}

// Services returns the handler's view of the app.
func (a *App) Services() handler.Services {
	return handler.Services{
		Distributor: a.Distributor,
		Scrubber:    a.Scrubber,
		Syncer:      a.Syncer,
		Orders:      a.Orders,
		Sweeper:     a.Sweeper,
		Metrics:     a.Metrics.Handler(),
	}
}

// Close releases the store.
func (a *App) Close() error {
	return a.Store.Close()
}

// NewLogger creates a structured logger configured for the environment.
// Production uses JSON format for GCP Cloud Logging compatibility.
// Development uses text format for readability.
func NewLogger(environment, level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: lvl,
		// Add source location in debug mode
		AddSource: lvl == slog.LevelDebug,
	}

	if environment == "production" {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}

package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"

	"trade_ingest/internal/infra"
	"trade_ingest/internal/infra/finnhub"
	"trade_ingest/internal/infra/storage"
)

// DefaultConfigPath is used when no -config flag is given.
const DefaultConfigPath = "configs/config.yaml"

// Bootstrap orchestrates the application startup sequence
type Bootstrap struct {
	Config   *infra.Config
	Logger   *slog.Logger
	Sink     storage.Sink
	Metrics  *infra.Metrics
	Registry *prometheus.Registry

	metricsServer *http.Server
}

// NewBootstrap creates a new Bootstrap instance
func NewBootstrap() *Bootstrap {
	return &Bootstrap{Metrics: infra.GlobalMetrics}
}

// Initialize loads config, installs the logger, opens the sink and starts the metrics endpoint.
func (b *Bootstrap) Initialize(ctx context.Context, configPath string) error {
	// 1. Load Config
	cfg, err := infra.LoadConfig(configPath)
	if err != nil {
		return err // Let main handle the error
	}
	b.Config = cfg

	// 2. Setup Logger
	b.Logger = infra.NewLogger(cfg)
	slog.SetDefault(b.Logger)
	slog.Info("🚀 Bootstrapping trade ingest...",
		slog.String("app", cfg.App.Name),
		slog.String("version", cfg.App.Version),
		slog.Int("symbols", len(cfg.Feed.Symbols)),
	)

	// 3. Open Sink
	sink, err := storage.Open(ctx, cfg.Storage.DSN)
	if err != nil {
		return fmt.Errorf("open sink: %w", err)
	}
	b.Sink = sink
	slog.Info("✅ Trade sink ready", slog.String("kind", fmt.Sprintf("%T", sink)))

	// 4. Metrics
	b.Registry = prometheus.NewRegistry()
	if err := infra.RegisterMetrics(b.Registry, b.Metrics); err != nil {
		return fmt.Errorf("register metrics: %w", err)
	}
	if cfg.Metrics.Addr != "" {
		b.metricsServer = infra.ServeMetrics(cfg.Metrics.Addr, b.Registry, cfg.Metrics.Pprof)
	}

	return nil
}

// NewFeedWorker wires a feed worker from the loaded config.
func (b *Bootstrap) NewFeedWorker() (*finnhub.Worker, error) {
	if b.Config == nil || b.Sink == nil {
		return nil, errors.New("bootstrap not initialized")
	}
	cfg := b.Config

	return finnhub.NewWorker(cfg.FeedURL(), cfg.Feed.Symbols, b.Sink,
		finnhub.WithLogger(b.Logger),
		finnhub.WithMetrics(b.Metrics),
		finnhub.WithDialOptions(finnhub.DialOptions{
			HandshakeTimeout: cfg.HandshakeTimeout(),
			ReadTimeout:      cfg.ReadTimeout(),
			WriteTimeout:     cfg.WriteTimeout(),
		}),
		finnhub.WithSubscribeInterval(cfg.SubscribeInterval()),
		finnhub.WithSinkTimeout(cfg.SinkWriteTimeout()),
		finnhub.WithDrainTimeout(cfg.DrainTimeout()),
		finnhub.WithReconnect(cfg.Feed.Reconnect),
	)
}

// Shutdown stops the metrics endpoint and closes the sink.
func (b *Bootstrap) Shutdown(ctx context.Context) error {
	var errs []error
	if b.metricsServer != nil {
		if err := b.metricsServer.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("metrics server: %w", err))
		}
	}
	if b.Sink != nil {
		if err := b.Sink.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close sink: %w", err))
		}
	}
	return errors.Join(errs...)
}

package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/errgroup"

	httpadapter "github.com/couchcryptid/church-discovery-engine/internal/adapter/http"
	kafkaadapter "github.com/couchcryptid/church-discovery-engine/internal/adapter/kafka"
	"github.com/couchcryptid/church-discovery-engine/internal/adapter/mapbox"
	"github.com/couchcryptid/church-discovery-engine/internal/catalog"
	"github.com/couchcryptid/church-discovery-engine/internal/config"
	"github.com/couchcryptid/church-discovery-engine/internal/discovery"
	"github.com/couchcryptid/church-discovery-engine/internal/domain"
	"github.com/couchcryptid/church-discovery-engine/internal/observability"
	"github.com/couchcryptid/church-discovery-engine/internal/pipeline"
	"github.com/couchcryptid/church-discovery-engine/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg)
	if err := run(cfg, logger); err != nil {
		logger.Error("engine stopped with error", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	metrics := observability.NewMetrics()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Geocoding is feature-flagged via MAPBOX_ENABLED / MAPBOX_TOKEN.
	var geocoder domain.Geocoder
	if cfg.MapboxEnabled {
		client := mapbox.NewClient(cfg.MapboxToken, cfg.MapboxTimeout, cfg.MapboxRPS, metrics, logger)
		geocoder = mapbox.NewCachedGeocoder(client, cfg.MapboxCacheSize, metrics)
		metrics.GeocodeEnabled.Set(1)
		logger.Info("mapbox geocoding enabled",
			"cache_size", cfg.MapboxCacheSize,
			"timeout", cfg.MapboxTimeout,
			"rps", cfg.MapboxRPS,
		)
	} else {
		logger.Info("mapbox geocoding disabled")
	}

	venues, err := catalog.Load(ctx, cfg.CatalogPath, geocoder, logger)
	if err != nil {
		return err
	}

	prefs, err := store.Open(ctx, cfg.StorePath)
	if err != nil {
		return err
	}
	defer func() {
		if err := prefs.Close(); err != nil {
			logger.Error("preference store close error", "error", err)
		}
	}()

	svc := discovery.NewService(venues, prefs, clockwork.NewRealClock(), metrics, logger,
		discovery.WithSearchRadius(cfg.SearchRadiusMiles))
	srv := httpadapter.NewServer(cfg.HTTPAddr, svc, svc, httpadapter.RateLimit{
		Requests: cfg.RateLimitRequests,
		Window:   cfg.RateLimitWindow,
	}, logger)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	if cfg.PipelineEnabled {
		reader := kafkaadapter.NewReader(cfg, logger)
		writer := kafkaadapter.NewWriter(cfg, logger)
		defer func() {
			if err := reader.Close(); err != nil {
				logger.Error("kafka reader close error", "error", err)
			}
			if err := writer.Close(); err != nil {
				logger.Error("kafka writer close error", "error", err)
			}
		}()

		p := pipeline.New(reader, pipeline.NewTransformer(svc, logger), writer, logger, metrics, cfg.BatchSize)
		g.Go(func() error { return p.Run(gctx) })
	} else {
		logger.Info("reminder pipeline disabled")
	}

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	err = g.Wait()
	logger.Info("shutdown complete")
	return err
}

package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/shortloop/gateway/internal/clicks"
	"github.com/shortloop/gateway/internal/config"
	"github.com/shortloop/gateway/internal/infra"
	"github.com/shortloop/gateway/internal/observability"
	"github.com/shortloop/gateway/internal/repository"
)

// The analytics worker consumes click messages from the queue and
// persists enriched click events. It shares the gateway's configuration.
func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if !cfg.Broker.Enabled() {
		log.Fatal("MQ_HOST must be set for the analytics worker")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	obs, err := observability.Setup(ctx, observability.Config{
		ServiceName:  "analytics-worker",
		Environment:  cfg.App.Environment,
		OTLPEndpoint: cfg.App.OTLPEndpoint,
		SampleRatio:  cfg.App.TraceSampleRatio,
	})
	if err != nil {
		log.Fatalf("Failed to setup observability: %v", err)
	}
	logger := obs.Logger

	db, err := infra.NewPostgresPool(ctx, cfg.Database.ConnectionString())
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	conn, ch, err := infra.NewBrokerConnection(cfg.Broker.ConnectionString(), cfg.Broker.Queue)
	if err != nil {
		log.Fatalf("Failed to connect to broker: %v", err)
	}
	defer conn.Close()
	defer ch.Close()

	var geo clicks.GeoSource
	if cfg.App.GeoTablePath != "" {
		table, err := clicks.LoadGeoTable(cfg.App.GeoTablePath)
		if err != nil {
			log.Fatalf("Failed to load geo table: %v", err)
		}
		geo = table
	}

	linkRepo := repository.NewLinkRepository(db)
	clickRepo := repository.NewClickRepository(db)
	hasher := clicks.NewIPHasher(cfg.App.IPHashSecret)
	recorder := clicks.NewRecorder(clickRepo, linkRepo, hasher, geo, cfg.App.UniqueWindow, logger)
	consumer := clicks.NewConsumer(ch, cfg.Broker.Queue, recorder, logger)

	logger.Info("worker consuming", slog.String("queue", cfg.Broker.Queue))
	if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("consumer stopped", slog.String("error", err.Error()))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	obs.Shutdown(shutdownCtx)
	logger.Info("worker exited gracefully")
}

package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/shortloop/gateway/internal/clicks"
	"github.com/shortloop/gateway/internal/config"
	"github.com/shortloop/gateway/internal/infra"
	"github.com/shortloop/gateway/internal/observability"
	"github.com/shortloop/gateway/internal/server"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	obs, err := observability.Setup(ctx, observability.Config{
		ServiceName:  "gateway",
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
	logger.Info("database connected")

	deps := server.Deps{Cfg: cfg, DB: db, Obs: obs}

	// A missing cache degrades to store-only lookups; the redirect path
	// still works.
	cache, err := infra.NewCacheClient(ctx, cfg.Cache.ConnectionString())
	if err != nil {
		logger.Warn("cache unavailable, running without it", slog.String("error", err.Error()))
	} else {
		defer cache.Close()
		deps.Cache = cache
	}

	if cfg.Broker.Enabled() {
		conn, ch, err := infra.NewBrokerConnection(cfg.Broker.ConnectionString(), cfg.Broker.Queue)
		if err != nil {
			log.Fatalf("Failed to connect to broker: %v", err)
		}
		defer conn.Close()
		defer ch.Close()
		deps.BrokerCh = ch
		logger.Info("click broker connected", slog.String("queue", cfg.Broker.Queue))
	} else {
		logger.Info("no click broker configured, recording clicks in-process")
	}

	if cfg.App.GeoTablePath != "" {
		geo, err := clicks.LoadGeoTable(cfg.App.GeoTablePath)
		if err != nil {
			log.Fatalf("Failed to load geo table: %v", err)
		}
		deps.Geo = geo
	}

	srv, dispatcher := server.NewServer(deps)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		dispatcher.Run(gctx)
		return nil
	})

	g.Go(func() error {
		logger.Info("server starting",
			slog.String("port", cfg.Server.Port),
			slog.String("base_url", cfg.App.BaseURL))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("server exited with error", slog.String("error", err.Error()))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	obs.Shutdown(shutdownCtx)
	logger.Info("server exited gracefully")
}

package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"github.com/shortloop/gateway/internal/api"
	"github.com/shortloop/gateway/internal/clicks"
	"github.com/shortloop/gateway/internal/config"
	"github.com/shortloop/gateway/internal/middleware"
	"github.com/shortloop/gateway/internal/observability"
	"github.com/shortloop/gateway/internal/repository"
	"github.com/shortloop/gateway/internal/service"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"golang.org/x/time/rate"
)

// Deps bundles the external collaborators the server wires together.
// BrokerCh may be nil: clicks are then recorded in-process instead of
// being published to the queue. Geo may be nil: no location data.
type Deps struct {
	Cfg      *config.Config
	DB       *pgxpool.Pool
	Cache    *redis.Client
	BrokerCh *amqp.Channel
	Geo      clicks.GeoSource
	Obs      *observability.Observability
}

// redisPinger adapts *redis.Client to api.CacheInterface.
type redisPinger struct{ client *redis.Client }

func (r *redisPinger) Ping(ctx context.Context) error {
	if r.client == nil {
		return nil
	}
	return r.client.Ping(ctx).Err()
}

// NewRouter initializes all dependencies and returns a configured Gin
// router plus the click dispatcher the caller must run. Split from
// NewServer so tests can drive the router directly.
func NewRouter(d Deps) (*gin.Engine, *clicks.Dispatcher) {
	cfg := d.Cfg
	obs := d.Obs
	metrics := obs.Metrics

	linkRepo := repository.NewLinkRepository(d.DB)
	cachedRepo := repository.NewCachedLinkRepository(linkRepo, d.Cache, cfg.Cache.TTL, obs.Logger)
	cachedRepo.SetLookupHooks(metrics.CacheHits.Inc, metrics.CacheMisses.Inc)
	clickRepo := repository.NewClickRepository(d.DB)

	generator := service.NewShortCodeGenerator(cfg.App.ShortCodeLen, cfg.App.MinAliasLen, cfg.App.MaxAliasLen, service.UnambiguousChars)
	checker := service.NewURLChecker(cfg.App.Production())
	linkService := service.NewLinkService(cachedRepo, linkRepo, clickRepo, generator, checker, cfg.App.BaseURL, cfg.App.ShortCodeRetries)

	hasher := clicks.NewIPHasher(cfg.App.IPHashSecret)
	recorder := clicks.NewRecorder(clickRepo, linkRepo, hasher, d.Geo, cfg.App.UniqueWindow, obs.Logger)
	recorder.SetRecordHook(metrics.ClicksRecorded.Inc)

	var sink clicks.Sink = recorder
	if d.BrokerCh != nil {
		sink = clicks.NewPublisher(d.BrokerCh, cfg.Broker.Queue)
	}
	dispatcher := clicks.NewDispatcher(sink, cfg.App.ClickBuffer, obs.Logger)
	dispatcher.SetDropHook(metrics.ClicksDropped.Inc)

	resolver := service.NewResolver(cachedRepo, d.Geo, dispatcher, clicks.DeviceType, obs.Logger)
	resolver.SetResultHook(func(allowed bool, reason service.DenyReason) {
		if allowed {
			metrics.Redirects.Inc()
		} else {
			metrics.RedirectsDeny.WithLabelValues(string(reason)).Inc()
		}
	})

	handler := api.NewHandler(linkService, resolver, d.DB, &redisPinger{client: d.Cache}, obs.Logger)

	if cfg.App.Production() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware("gateway"))
	router.Use(middleware.Logging(obs.Logger, "/health", "/metrics"))

	limiter := middleware.NewRateLimiter(rate.Limit(cfg.App.RateLimitRPS), cfg.App.RateLimitBurst)
	metricsHandler := promhttp.HandlerFor(obs.Registry, promhttp.HandlerOpts{})
	handler.RegisterRoutes(router, metricsHandler, middleware.Auth(cfg.App.JWTSecret), limiter.Limit())

	return router, dispatcher
}

// NewServer returns the configured HTTP server plus the click dispatcher.
func NewServer(d Deps) (*http.Server, *clicks.Dispatcher) {
	router, dispatcher := NewRouter(d)

	return &http.Server{
		Addr:         ":" + d.Cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}, dispatcher
}

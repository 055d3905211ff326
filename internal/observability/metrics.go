package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.opentelemetry.io/otel"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// Metrics holds the application-level counters.
type Metrics struct {
	Redirects      prometheus.Counter
	RedirectsDeny  *prometheus.CounterVec
	CacheHits      prometheus.Counter
	CacheMisses    prometheus.Counter
	ClicksDropped  prometheus.Counter
	ClicksRecorded prometheus.Counter
}

// NewMetrics builds a standalone prometheus registry carrying the app
// counters, the Go runtime collectors and an OTel meter provider bridged
// into the same registry so instrumented libraries export through it too.
func NewMetrics(serviceName string) (*prometheus.Registry, *Metrics, error) {
	registry := prometheus.NewRegistry()

	exporter, err := otelprom.New(otelprom.WithRegisterer(registry))
	if err != nil {
		return nil, nil, err
	}
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	otel.SetMeterProvider(mp)

	m := &Metrics{
		Redirects: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "redirect_requests_total",
			Help: "Total redirect requests that resolved to a destination.",
		}),
		RedirectsDeny: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "redirect_denied_total",
			Help: "Redirect requests denied by policy, by reason.",
		}, []string{"reason"}),
		CacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "link_cache_hit_total",
			Help: "Link lookups served from the cache.",
		}),
		CacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "link_cache_miss_total",
			Help: "Link lookups that fell through to the record store.",
		}),
		ClicksDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "clicks_dropped_total",
			Help: "Click events dropped due to a full dispatch buffer.",
		}),
		ClicksRecorded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "clicks_recorded_total",
			Help: "Click events persisted by the recorder.",
		}),
	}

	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.Redirects, m.RedirectsDeny,
		m.CacheHits, m.CacheMisses,
		m.ClicksDropped, m.ClicksRecorded,
	)

	return registry, m, nil
}

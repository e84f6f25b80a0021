// Package metrics exports pipeline activity to Prometheus. The Collector
// observes every stage call and reports the size of the plugin registry.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tjfontaine/stageline/internal/core/domain"
	"github.com/tjfontaine/stageline/internal/core/ports"
)

// Config configures the Collector.
type Config struct {
	// Namespace is the metrics namespace (default: "stageline").
	Namespace string
	// Buckets are the stage duration histogram buckets.
	// Default: prometheus.DefBuckets
	Buckets []float64
	// Registry registers and gathers the metrics.
	// Default: a fresh prometheus.Registry.
	Registry *prometheus.Registry
	// PluginCount reports the number of registered plugins. Optional.
	PluginCount func() int
}

// Option configures the Collector.
type Option func(*Config)

// WithNamespace sets the metrics namespace.
func WithNamespace(namespace string) Option {
	return func(c *Config) { c.Namespace = namespace }
}

// WithBuckets sets the histogram buckets.
func WithBuckets(buckets []float64) Option {
	return func(c *Config) { c.Buckets = buckets }
}

// WithRegistry sets the Prometheus registry.
func WithRegistry(registry *prometheus.Registry) Option {
	return func(c *Config) { c.Registry = registry }
}

// WithPluginCount exports a gauge backed by count.
func WithPluginCount(count func() int) Option {
	return func(c *Config) { c.PluginCount = count }
}

// Collector records stage outcomes and durations.
type Collector struct {
	registry *prometheus.Registry

	stageCalls    *prometheus.CounterVec
	stageDuration *prometheus.HistogramVec
	stageErrors   *prometheus.CounterVec
}

var _ ports.StageObserver = (*Collector)(nil)

// New creates a Collector and registers its metrics.
func New(opts ...Option) *Collector {
	cfg := Config{Namespace: "stageline", Buckets: prometheus.DefBuckets}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Registry == nil {
		cfg.Registry = prometheus.NewRegistry()
	}
	factory := promauto.With(cfg.Registry)

	c := &Collector{
		registry: cfg.Registry,

		stageCalls: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Name:      "stage_calls_total",
			Help:      "Total number of pipeline stage calls by outcome",
		}, []string{"stage", "outcome"}),

		stageDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: cfg.Namespace,
			Name:      "stage_duration_seconds",
			Help:      "Pipeline stage duration in seconds",
			Buckets:   cfg.Buckets,
		}, []string{"stage"}),

		stageErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Name:      "stage_errors_total",
			Help:      "Total number of stage failures by error code",
		}, []string{"stage", "code"}),
	}

	if cfg.PluginCount != nil {
		count := cfg.PluginCount
		factory.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: cfg.Namespace,
			Name:      "plugins_registered",
			Help:      "Number of plugins in the registry",
		}, func() float64 { return float64(count()) })
	}
	return c
}

// ObserveStage implements ports.StageObserver.
func (c *Collector) ObserveStage(stage string, res domain.Result, elapsed time.Duration) {
	outcome := "success"
	if res.IsFailure() {
		outcome = "failure"
		c.stageErrors.WithLabelValues(stage, res.Err().Code).Inc()
	}
	c.stageCalls.WithLabelValues(stage, outcome).Inc()
	c.stageDuration.WithLabelValues(stage).Observe(elapsed.Seconds())
}

// Registry returns the registry the metrics live in.
func (c *Collector) Registry() *prometheus.Registry { return c.registry }

// Handler serves the metrics in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

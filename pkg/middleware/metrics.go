package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/vango-go/terminal/pkg/server"
)

// MetricsConfig configures the Prometheus metrics.
type MetricsConfig struct {
	// Namespace is the metrics namespace (default: "vango").
	Namespace string

	// Subsystem is the metrics subsystem (default: "terminal").
	Subsystem string

	// ConstLabels are constant labels added to all metrics.
	ConstLabels prometheus.Labels

	// Buckets are the histogram buckets for request durations.
	// Default: prometheus.DefBuckets
	Buckets []float64

	// Registry is the Prometheus registry to use.
	// Default: prometheus.DefaultRegisterer
	Registry prometheus.Registerer
}

// MetricsOption configures the Prometheus metrics.
type MetricsOption func(*MetricsConfig)

// WithNamespace sets the metrics namespace.
func WithNamespace(namespace string) MetricsOption {
	return func(c *MetricsConfig) {
		c.Namespace = namespace
	}
}

// WithSubsystem sets the metrics subsystem.
func WithSubsystem(subsystem string) MetricsOption {
	return func(c *MetricsConfig) {
		c.Subsystem = subsystem
	}
}

// WithConstLabels sets constant labels for all metrics.
func WithConstLabels(labels prometheus.Labels) MetricsOption {
	return func(c *MetricsConfig) {
		c.ConstLabels = labels
	}
}

// WithBuckets sets the histogram buckets.
func WithBuckets(buckets []float64) MetricsOption {
	return func(c *MetricsConfig) {
		c.Buckets = buckets
	}
}

// WithRegistry sets the Prometheus registry.
func WithRegistry(registry prometheus.Registerer) MetricsOption {
	return func(c *MetricsConfig) {
		c.Registry = registry
	}
}

// defaultMetricsConfig returns the default metrics configuration.
func defaultMetricsConfig() MetricsConfig {
	return MetricsConfig{
		Namespace: "vango",
		Subsystem: "terminal",
		Buckets:   prometheus.DefBuckets,
		Registry:  prometheus.DefaultRegisterer,
	}
}

// Metrics collects Prometheus metrics for the terminal. It implements
// server.Observer and provides an HTTP middleware.
//
// Metrics collected:
//   - uidl_requests_total: UIDL requests by result
//   - uidl_request_duration_seconds: UIDL processing duration
//   - variable_changes_total: variable changes received from clients
//   - paints_sent_total: component paints sent to clients
//   - uploads_total: uploads by result
//   - upload_duration_seconds: upload streaming duration
//   - critical_notifications_total: critical notifications by catalogue code
//   - http_requests_total: HTTP requests by route, method and status
//   - http_request_duration_seconds: HTTP request duration by route
//   - active_sessions: live sessions (after TrackSessions)
type Metrics struct {
	config MetricsConfig

	uidlTotal      *prometheus.CounterVec
	uidlDuration   prometheus.Histogram
	changesTotal   prometheus.Counter
	paintsSent     prometheus.Counter
	uploadsTotal   *prometheus.CounterVec
	uploadDuration prometheus.Histogram
	criticalTotal  *prometheus.CounterVec
	httpTotal      *prometheus.CounterVec
	httpDuration   *prometheus.HistogramVec
}

var _ server.Observer = (*Metrics)(nil)

// NewMetrics creates and registers the metrics. Registering twice with the
// same registry panics.
//
// Example:
//
//	metrics := middleware.NewMetrics(middleware.WithRegistry(reg))
//	servlet := server.NewServlet(cfg, sessions, newApp,
//	    server.WithMiddleware(metrics.Handler),
//	    server.WithManagerOptions(server.WithObserver(metrics)),
//	)
//
//	// Expose metrics endpoint
//	http.Handle("/metrics", promhttp.Handler())
func NewMetrics(opts ...MetricsOption) *Metrics {
	config := defaultMetricsConfig()
	for _, opt := range opts {
		opt(&config)
	}
	factory := promauto.With(config.Registry)

	return &Metrics{
		config: config,

		uidlTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "uidl_requests_total",
			Help:        "Total number of UIDL requests by result",
			ConstLabels: config.ConstLabels,
		}, []string{"result"}),

		uidlDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "uidl_request_duration_seconds",
			Help:        "UIDL request processing duration in seconds",
			ConstLabels: config.ConstLabels,
			Buckets:     config.Buckets,
		}),

		changesTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "variable_changes_total",
			Help:        "Total number of variable changes received from clients",
			ConstLabels: config.ConstLabels,
		}),

		paintsSent: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "paints_sent_total",
			Help:        "Total number of component paints sent to clients",
			ConstLabels: config.ConstLabels,
		}),

		uploadsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "uploads_total",
			Help:        "Total number of uploads by result",
			ConstLabels: config.ConstLabels,
		}, []string{"result"}),

		uploadDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "upload_duration_seconds",
			Help:        "Upload streaming duration in seconds",
			ConstLabels: config.ConstLabels,
			Buckets:     config.Buckets,
		}),

		criticalTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "critical_notifications_total",
			Help:        "Total number of critical notifications by error code",
			ConstLabels: config.ConstLabels,
		}, []string{"code"}),

		httpTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "http_requests_total",
			Help:        "Total number of HTTP requests",
			ConstLabels: config.ConstLabels,
		}, []string{"route", "method", "status"}),

		httpDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "http_request_duration_seconds",
			Help:        "HTTP request duration in seconds",
			ConstLabels: config.ConstLabels,
			Buckets:     config.Buckets,
		}, []string{"route"}),
	}
}

// ObserveUIDL implements server.Observer.
func (m *Metrics) ObserveUIDL(result string, changes, paints int, d time.Duration) {
	m.uidlTotal.WithLabelValues(result).Inc()
	m.uidlDuration.Observe(d.Seconds())
	m.changesTotal.Add(float64(changes))
	m.paintsSent.Add(float64(paints))
}

// ObserveUpload implements server.Observer.
func (m *Metrics) ObserveUpload(result string, d time.Duration) {
	m.uploadsTotal.WithLabelValues(result).Inc()
	m.uploadDuration.Observe(d.Seconds())
}

// ObserveCritical implements server.Observer.
func (m *Metrics) ObserveCritical(code string) {
	m.criticalTotal.WithLabelValues(code).Inc()
}

// TrackSessions registers a gauge reporting count() as the number of live
// sessions.
func (m *Metrics) TrackSessions(count func() int) {
	promauto.With(m.config.Registry).NewGaugeFunc(prometheus.GaugeOpts{
		Namespace:   m.config.Namespace,
		Subsystem:   m.config.Subsystem,
		Name:        "active_sessions",
		Help:        "Number of live sessions",
		ConstLabels: m.config.ConstLabels,
	}, func() float64 { return float64(count()) })
}

// Handler is HTTP middleware recording request counts and durations. The
// route label is the chi route pattern, so high-cardinality paths such as
// upload URLs collapse into one series.
func (m *Metrics) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		route := routePattern(r)
		m.httpDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
		m.httpTotal.WithLabelValues(route, r.Method, strconv.Itoa(status)).Inc()
	})
}

// routePattern returns the matched chi route pattern, or "unmatched".
func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unmatched"
}

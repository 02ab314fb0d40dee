package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "sodav"

// Metrics holds all Prometheus metrics
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Access control
	AuthAttemptsTotal *prometheus.CounterVec
	RateLimitedTotal  *prometheus.CounterVec

	// Detection pipeline
	DetectionsTotal        *prometheus.CounterVec
	ProviderRequestsTotal  *prometheus.CounterVec
	ProviderRequestSeconds *prometheus.HistogramVec
	ProviderBreakerState   *prometheus.GaugeVec

	// Realtime
	EventsPublishedTotal *prometheus.CounterVec
	WebSocketClients     prometheus.Gauge

	// Reports
	ReportsGeneratedTotal *prometheus.CounterVec
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(registry prometheus.Registerer) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		AuthAttemptsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "auth_attempts_total",
				Help:      "Credential checks by method and outcome",
			},
			[]string{"method", "outcome"},
		),
		RateLimitedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rate_limited_total",
				Help:      "Requests rejected by the rate limiter",
			},
			[]string{"class"},
		),
		DetectionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "detections_total",
				Help:      "Detections processed by source and result",
			},
			[]string{"source", "result"},
		),
		ProviderRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "provider_requests_total",
				Help:      "Fingerprint provider calls by provider and result",
			},
			[]string{"provider", "result"},
		),
		ProviderRequestSeconds: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "provider_request_duration_seconds",
				Help:      "Fingerprint provider call duration in seconds",
				Buckets:   []float64{.1, .25, .5, 1, 2.5, 5, 10, 30},
			},
			[]string{"provider"},
		),
		ProviderBreakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "provider_breaker_state",
				Help:      "Circuit breaker state per provider (0 closed, 1 half-open, 2 open)",
			},
			[]string{"provider"},
		),
		EventsPublishedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "events_published_total",
				Help:      "Domain events published by type",
			},
			[]string{"type"},
		),
		WebSocketClients: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "websocket_clients",
				Help:      "Connected realtime clients",
			},
		),
		ReportsGeneratedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "reports_generated_total",
				Help:      "Airplay reports generated by trigger and result",
			},
			[]string{"trigger", "result"},
		),
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.AuthAttemptsTotal,
		m.RateLimitedTotal,
		m.DetectionsTotal,
		m.ProviderRequestsTotal,
		m.ProviderRequestSeconds,
		m.ProviderBreakerState,
		m.EventsPublishedTotal,
		m.WebSocketClients,
		m.ReportsGeneratedTotal,
	)

	return m
}

// ObserveAuth counts a credential check.
func (m *Metrics) ObserveAuth(method, outcome string) {
	m.AuthAttemptsTotal.WithLabelValues(method, outcome).Inc()
}

// ObserveRateLimited counts a throttled request.
func (m *Metrics) ObserveRateLimited(class string) {
	m.RateLimitedTotal.WithLabelValues(class).Inc()
}

// ObserveDetection counts a processed detection.
func (m *Metrics) ObserveDetection(source, result string) {
	m.DetectionsTotal.WithLabelValues(source, result).Inc()
}

// ObserveProvider records one provider call.
func (m *Metrics) ObserveProvider(provider, result string, elapsed time.Duration) {
	m.ProviderRequestsTotal.WithLabelValues(provider, result).Inc()
	m.ProviderRequestSeconds.WithLabelValues(provider).Observe(elapsed.Seconds())
}

// SetBreakerState records a breaker transition.
func (m *Metrics) SetBreakerState(provider string, state int) {
	m.ProviderBreakerState.WithLabelValues(provider).Set(float64(state))
}

// ObserveEvent counts a published event.
func (m *Metrics) ObserveEvent(eventType string) {
	m.EventsPublishedTotal.WithLabelValues(eventType).Inc()
}

// ClientConnected increments the websocket gauge.
func (m *Metrics) ClientConnected() {
	m.WebSocketClients.Inc()
}

// ClientDisconnected decrements the websocket gauge.
func (m *Metrics) ClientDisconnected() {
	m.WebSocketClients.Dec()
}

// ObserveReport counts a generated report.
func (m *Metrics) ObserveReport(trigger, result string) {
	m.ReportsGeneratedTotal.WithLabelValues(trigger, result).Inc()
}

type statusWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *statusWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *statusWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// HTTPMetricsMiddleware instruments requests. Install it with router.Use so
// the matched route template is used as the label instead of the raw path.
func HTTPMetricsMiddleware(metrics *Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := &statusWriter{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(rw, r)

			route := routeLabel(r)
			metrics.HTTPRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(rw.statusCode)).Inc()
			metrics.HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
		})
	}
}

func routeLabel(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tpl, err := route.GetPathTemplate(); err == nil {
			return tpl
		}
	}
	return "unmatched"
}

// MetricsHandler serves the registry in Prometheus text format.
func MetricsHandler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

package monitoring

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics. A nil *Metrics is valid and records nothing.
type Metrics struct {
	// HTTP metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	// Session metrics
	SessionsActive  prometheus.Gauge
	SessionsCreated *prometheus.CounterVec
	SessionsClosed  *prometheus.CounterVec
	DisposeDuration *prometheus.HistogramVec
	AutoCloses      prometheus.Counter

	// Resource metrics
	ResourcesTracked prometheus.Gauge
	ResourcesOpened  prometheus.Counter
	ResourcesClosed  prometheus.Counter
	ResourcesFaulted prometheus.Counter

	// Cleanup errors collected during cascading disposal
	CleanupErrors *prometheus.CounterVec

	// Event delivery
	EventsPublished  *prometheus.CounterVec
	SubscriberPanics prometheus.Counter

	// System metrics
	Uptime    prometheus.Gauge
	startTime time.Time

	snapshot Snapshot
	mu       sync.RWMutex
}

// Snapshot holds current values for the JSON API
type Snapshot struct {
	ActiveSessions   int64 `json:"active_sessions"`
	TrackedResources int64 `json:"tracked_resources"`
	TotalRequests    int64 `json:"total_requests"`
	TotalErrors      int64 `json:"total_errors"`
	CleanupErrors    int64 `json:"cleanup_errors"`
}

// NewMetrics creates a metrics collector registered with reg. Pass
// prometheus.NewRegistry() in tests to avoid duplicate registration.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	m := &Metrics{
		startTime: time.Now(),

		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lifescope_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "lifescope_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),

		SessionsActive: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "lifescope_sessions_active",
				Help: "Number of registered sessions",
			},
		),
		SessionsCreated: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lifescope_sessions_created_total",
				Help: "Total number of sessions created",
			},
			[]string{"category"},
		),
		SessionsClosed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lifescope_sessions_closed_total",
				Help: "Total number of sessions disposed",
			},
			[]string{"category"},
		),
		DisposeDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "lifescope_session_dispose_duration_seconds",
				Help:    "Time spent in cascading session disposal",
				Buckets: []float64{.0001, .0005, .001, .005, .01, .05, .1, .5, 1, 5},
			},
			[]string{"category"},
		),
		AutoCloses: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "lifescope_sessions_auto_closed_total",
				Help: "Sessions disposed because their last resource closed",
			},
		),

		ResourcesTracked: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "lifescope_resources_tracked",
				Help: "Number of resources in the tracker",
			},
		),
		ResourcesOpened: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "lifescope_resources_opened_total",
				Help: "Total number of resources that reached Open",
			},
		),
		ResourcesClosed: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "lifescope_resources_closed_total",
				Help: "Total number of resources that reached Closed",
			},
		),
		ResourcesFaulted: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "lifescope_resources_faulted_total",
				Help: "Total number of resources that reached Faulted",
			},
		),

		CleanupErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lifescope_cleanup_errors_total",
				Help: "Errors collected during disposal, by kind",
			},
			[]string{"kind"},
		),

		EventsPublished: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lifescope_events_published_total",
				Help: "Session lifecycle events published",
			},
			[]string{"type"},
		),
		SubscriberPanics: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "lifescope_event_subscriber_panics_total",
				Help: "Event subscribers that panicked during delivery",
			},
		),

		Uptime: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "lifescope_uptime_seconds",
				Help: "Process uptime in seconds",
			},
		),
	}

	return m
}

// UpdateUptime sets the uptime gauge; called on each scrape by the server.
func (m *Metrics) UpdateUptime() {
	if m == nil {
		return
	}
	m.Uptime.Set(time.Since(m.startTime).Seconds())
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(method, path, status).Inc()
	m.RequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())

	m.mu.Lock()
	m.snapshot.TotalRequests++
	if status[0] == '4' || status[0] == '5' {
		m.snapshot.TotalErrors++
	}
	m.mu.Unlock()
}

// SessionCreated records a new session
func (m *Metrics) SessionCreated(category string) {
	if m == nil {
		return
	}
	m.SessionsCreated.WithLabelValues(category).Inc()
	m.SessionsActive.Inc()
	m.mu.Lock()
	m.snapshot.ActiveSessions++
	m.mu.Unlock()
}

// SessionClosed records a completed disposal
func (m *Metrics) SessionClosed(category string, duration time.Duration) {
	if m == nil {
		return
	}
	m.SessionsClosed.WithLabelValues(category).Inc()
	m.DisposeDuration.WithLabelValues(category).Observe(duration.Seconds())
	m.SessionsActive.Dec()
	m.mu.Lock()
	m.snapshot.ActiveSessions--
	m.mu.Unlock()
}

// IncAutoCloses counts a session disposed by auto-close
func (m *Metrics) IncAutoCloses() {
	if m == nil {
		return
	}
	m.AutoCloses.Inc()
}

// ResourceRegistered records a tracker insertion
func (m *Metrics) ResourceRegistered() {
	if m == nil {
		return
	}
	m.ResourcesTracked.Inc()
	m.mu.Lock()
	m.snapshot.TrackedResources++
	m.mu.Unlock()
}

// ResourceUnregistered records a tracker removal
func (m *Metrics) ResourceUnregistered() {
	if m == nil {
		return
	}
	m.ResourcesTracked.Dec()
	m.mu.Lock()
	m.snapshot.TrackedResources--
	m.mu.Unlock()
}

// IncResourcesOpened counts a resource reaching Open
func (m *Metrics) IncResourcesOpened() {
	if m == nil {
		return
	}
	m.ResourcesOpened.Inc()
}

// IncResourcesClosed counts a resource reaching Closed
func (m *Metrics) IncResourcesClosed() {
	if m == nil {
		return
	}
	m.ResourcesClosed.Inc()
}

// IncResourcesFaulted counts a resource reaching Faulted
func (m *Metrics) IncResourcesFaulted() {
	if m == nil {
		return
	}
	m.ResourcesFaulted.Inc()
}

// RecordCleanupError counts a secondary error swallowed during disposal
func (m *Metrics) RecordCleanupError(kind string) {
	if m == nil {
		return
	}
	m.CleanupErrors.WithLabelValues(kind).Inc()
	m.mu.Lock()
	m.snapshot.CleanupErrors++
	m.mu.Unlock()
}

// RecordEvent counts a published event
func (m *Metrics) RecordEvent(eventType string) {
	if m == nil {
		return
	}
	m.EventsPublished.WithLabelValues(eventType).Inc()
}

// IncSubscriberPanics counts a recovered subscriber panic
func (m *Metrics) IncSubscriberPanics() {
	if m == nil {
		return
	}
	m.SubscriberPanics.Inc()
}

// GetSnapshot returns a copy of the current snapshot
func (m *Metrics) GetSnapshot() Snapshot {
	if m == nil {
		return Snapshot{}
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snapshot
}

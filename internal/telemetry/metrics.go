package telemetry

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds the crawl-specific Prometheus collectors. All() feeds a
// registry the same way internal/telemetry/metrics.go's All() did for the
// alerting domain this package was adapted from.
//
// Only NotesCompleted, NotesFailed, CommentsFetched (always with the level
// label "all") and PoolSize are updated; CredentialsAcquired,
// CredentialsExhausted, CredentialCooldowns and RetryActions are registered
// but nothing increments them, so they stay at zero.
type Metrics struct {
	CredentialsAcquired  *prometheus.CounterVec
	CredentialsExhausted prometheus.Counter
	CredentialCooldowns  *prometheus.CounterVec
	RetryActions         *prometheus.CounterVec
	CommentsFetched      *prometheus.CounterVec
	NotesCompleted       prometheus.Counter
	NotesFailed          prometheus.Counter
	PoolSize             prometheus.Gauge
}

// NewMetrics builds the collector set with the "xhscrawl" namespace.
func NewMetrics() *Metrics {
	return &Metrics{
		CredentialsAcquired: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "xhscrawl",
			Name:      "credentials_acquired_total",
			Help:      "Credential pool acquisitions, labeled by rotation strategy.",
		}, []string{"strategy"}),
		CredentialsExhausted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "xhscrawl",
			Name:      "credentials_exhausted_total",
			Help:      "Times Acquire() found no eligible credential.",
		}),
		CredentialCooldowns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "xhscrawl",
			Name:      "credential_cooldowns_total",
			Help:      "Times a credential entered cooldown or was hard-disabled.",
		}, []string{"kind"}),
		RetryActions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "xhscrawl",
			Name:      "retry_actions_total",
			Help:      "Retry Strategy decisions, labeled by action kind.",
		}, []string{"action"}),
		CommentsFetched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "xhscrawl",
			Name:      "comments_fetched_total",
			Help:      "Comments emitted to sinks, labeled by level bucket.",
		}, []string{"level"}),
		NotesCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "xhscrawl",
			Name:      "notes_completed_total",
			Help:      "Notes whose crawl finished with status=completed.",
		}),
		NotesFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "xhscrawl",
			Name:      "notes_failed_total",
			Help:      "Notes whose crawl finished with status=failed.",
		}),
		PoolSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "xhscrawl",
			Name:      "credential_pool_size",
			Help:      "Number of credentials currently held by the pool.",
		}),
	}
}

// ObserveNoteCompleted implements coordinator.Metrics.
func (m *Metrics) ObserveNoteCompleted() {
	m.NotesCompleted.Inc()
}

// ObserveNoteFailed implements coordinator.Metrics.
func (m *Metrics) ObserveNoteFailed() {
	m.NotesFailed.Inc()
}

// ObserveCommentsFetched implements coordinator.Metrics.
func (m *Metrics) ObserveCommentsFetched(level string, n int) {
	m.CommentsFetched.WithLabelValues(level).Add(float64(n))
}

// All returns every collector so it can be registered in one call.
func (m *Metrics) All() []prometheus.Collector {
	return []prometheus.Collector{
		m.CredentialsAcquired,
		m.CredentialsExhausted,
		m.CredentialCooldowns,
		m.RetryActions,
		m.CommentsFetched,
		m.NotesCompleted,
		m.NotesFailed,
		m.PoolSize,
	}
}

// NewRegistry builds a registry pre-loaded with the given collector sets,
// mirroring internal/telemetry's NewMetricsRegistry(nightowlmetrics.All()...) shape.
func NewRegistry(collectors ...prometheus.Collector) *prometheus.Registry {
	reg := prometheus.NewRegistry()
	for _, c := range collectors {
		reg.MustRegister(c)
	}
	return reg
}

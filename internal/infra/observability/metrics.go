package observability

import (
	"time"

	"github.com/boddenberg/nuvex-bfa-go/internal/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	dto "github.com/prometheus/client_model/go"
)

// Signup outcomes recorded in bfa_signups_total.
const (
	OutcomeCreated    = "created"
	OutcomeRejected   = "rejected"
	OutcomeConflicted = "conflicted"
	OutcomeFailed     = "failed"
	OutcomePartial    = "partial"
)

// Orphan events recorded in bfa_orphans_total.
const (
	OrphanRecorded   = "recorded"
	OrphanCompleted  = "completed"
	OrphanDeleted    = "deleted"
	OrphanSweepError = "sweep_error"
)

// Metrics holds all Prometheus metrics for the BFA.
type Metrics struct {
	// Registry is the Prometheus registry that owns these metrics.
	// Exposed so the /metrics endpoint can use it.
	Registry *prometheus.Registry

	requestDuration *prometheus.HistogramVec
	externalErrors  *prometheus.CounterVec
	cacheHits       *prometheus.CounterVec
	cacheMisses     *prometheus.CounterVec
	signups         *prometheus.CounterVec
	validations     *prometheus.CounterVec
	orphans         *prometheus.CounterVec
}

// NewMetrics creates a dedicated Prometheus registry and registers all
// application metrics in it. Using a private registry avoids "duplicate
// collector" panics when NewMetrics is called more than once (e.g. in tests).
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,

		requestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "bfa_request_duration_seconds",
				Help:    "Duration of requests by operation.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		externalErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bfa_external_errors_total",
				Help: "Total errors from external services.",
			},
			[]string{"service"},
		),
		cacheHits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bfa_cache_hits_total",
				Help: "Total cache hits.",
			},
			[]string{"cache"},
		),
		cacheMisses: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bfa_cache_misses_total",
				Help: "Total cache misses.",
			},
			[]string{"cache"},
		),
		signups: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bfa_signups_total",
				Help: "Signup attempts by outcome.",
			},
			[]string{"outcome"},
		),
		validations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bfa_validations_total",
				Help: "Uniqueness validations by kind and result.",
			},
			[]string{"kind", "result"},
		),
		orphans: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bfa_orphans_total",
				Help: "Orphaned signup journal events.",
			},
			[]string{"event"},
		),
	}
}

// RecordRequestDuration records the duration of an operation.
func (m *Metrics) RecordRequestDuration(operation string, d time.Duration) {
	m.requestDuration.WithLabelValues(operation).Observe(d.Seconds())
}

// IncrExternalError increments the external error counter.
func (m *Metrics) IncrExternalError(service string) {
	m.externalErrors.WithLabelValues(service).Inc()
}

// IncrCacheHit increments the cache hit counter.
func (m *Metrics) IncrCacheHit(cache string) {
	m.cacheHits.WithLabelValues(cache).Inc()
}

// IncrCacheMiss increments the cache miss counter.
func (m *Metrics) IncrCacheMiss(cache string) {
	m.cacheMisses.WithLabelValues(cache).Inc()
}

// IncrSignup counts a signup by outcome.
func (m *Metrics) IncrSignup(outcome string) {
	m.signups.WithLabelValues(outcome).Inc()
}

// IncrValidation counts a validation call; result is "valid", "taken" or "error".
func (m *Metrics) IncrValidation(kind, result string) {
	m.validations.WithLabelValues(kind, result).Inc()
}

// IncrOrphan counts an orphan journal event.
func (m *Metrics) IncrOrphan(event string) {
	m.orphans.WithLabelValues(event).Inc()
}

// GetSignupSnapshot returns a snapshot of signup metrics for GET /metrics/signup.
func (m *Metrics) GetSignupSnapshot() *domain.SignupMetrics {
	created := getCounterValue(m.signups, OutcomeCreated)
	rejected := getCounterValue(m.signups, OutcomeRejected)
	conflicted := getCounterValue(m.signups, OutcomeConflicted)
	failed := getCounterValue(m.signups, OutcomeFailed)
	partial := getCounterValue(m.signups, OutcomePartial)
	hits := getCounterValue(m.cacheHits, "access_token")
	misses := getCounterValue(m.cacheMisses, "access_token")

	total := created + rejected + conflicted + failed + partial
	conflictRate := float64(0)
	if total > 0 {
		conflictRate = conflicted / total
	}
	hitRate := float64(0)
	if hits+misses > 0 {
		hitRate = hits / (hits + misses)
	}

	return &domain.SignupMetrics{
		SignupsCreated:    int64(created),
		SignupsRejected:   int64(rejected),
		SignupsConflicted: int64(conflicted),
		SignupsFailed:     int64(failed),
		PartialSignups:    int64(partial),
		OrphansReconciled: int64(getCounterValue(m.orphans, OrphanCompleted)),
		OrphansDeleted:    int64(getCounterValue(m.orphans, OrphanDeleted)),
		TokenCacheHitRate: hitRate,
		ConflictRate:      conflictRate,
		Period:            "all_time",
	}
}

// getCounterValue extracts the current float64 value from a CounterVec for a given label.
func getCounterValue(cv *prometheus.CounterVec, labels ...string) float64 {
	counter := cv.WithLabelValues(labels...)
	m := &dto.Metric{}
	if err := counter.Write(m); err != nil {
		return 0
	}
	if m.Counter != nil && m.Counter.Value != nil {
		return *m.Counter.Value
	}
	return 0
}

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the vault process.
type Metrics struct {
	EntriesCreated  prometheus.Counter
	EntriesUnlocked prometheus.Counter
	EntriesLocked   prometheus.Counter
	EntriesDeleted  prometheus.Counter
	EntriesSwept    prometheus.Counter
	UnlockFailures  prometheus.Counter
	ActiveEntries   prometheus.Gauge

	// Refresh metrics
	RefreshesCompleted *prometheus.CounterVec
	RefreshesFailed    prometheus.Counter
	RefreshLatency     prometheus.Histogram

	// Biometric metrics
	SessionsCreated     prometheus.Counter
	VerificationsFailed prometheus.Counter

	UnlockLatency prometheus.Histogram
}

// New creates all Prometheus metrics and registers them on the default registerer.
func New() *Metrics {
	return NewWith(prometheus.DefaultRegisterer)
}

// NewWith creates all Prometheus metrics and registers them on reg. Tests use
// it with a private registry to avoid duplicate registration.
func NewWith(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		EntriesCreated: factory.NewCounter(prometheus.CounterOpts{
			Name: "credvault_entries_created_total",
			Help: "Total number of vault entries created",
		}),
		EntriesUnlocked: factory.NewCounter(prometheus.CounterOpts{
			Name: "credvault_entries_unlocked_total",
			Help: "Total number of successful unlocks",
		}),
		EntriesLocked: factory.NewCounter(prometheus.CounterOpts{
			Name: "credvault_entries_locked_total",
			Help: "Total number of entries locked out after exhausted unlock attempts",
		}),
		EntriesDeleted: factory.NewCounter(prometheus.CounterOpts{
			Name: "credvault_entries_deleted_total",
			Help: "Total number of vault entries deleted",
		}),
		EntriesSwept: factory.NewCounter(prometheus.CounterOpts{
			Name: "credvault_entries_swept_total",
			Help: "Total number of entries transitioned to expired by the sweeper",
		}),
		UnlockFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "credvault_unlock_failures_total",
			Help: "Total number of failed unlock attempts",
		}),
		ActiveEntries: factory.NewGauge(prometheus.GaugeOpts{
			Name: "credvault_active_entries",
			Help: "Current number of entries in active status",
		}),
		RefreshesCompleted: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "credvault_refreshes_completed_total",
			Help: "Total number of completed credential refreshes, labeled by reason",
		}, []string{"reason"}),
		RefreshesFailed: factory.NewCounter(prometheus.CounterOpts{
			Name: "credvault_refreshes_failed_total",
			Help: "Total number of refreshes that failed and rolled back",
		}),
		RefreshLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "credvault_refresh_latency_seconds",
			Help:    "Latency of refresh operations in seconds",
			Buckets: prometheus.DefBuckets,
		}),
		SessionsCreated: factory.NewCounter(prometheus.CounterOpts{
			Name: "credvault_biometric_sessions_created_total",
			Help: "Total number of biometric sessions created",
		}),
		VerificationsFailed: factory.NewCounter(prometheus.CounterOpts{
			Name: "credvault_biometric_verifications_failed_total",
			Help: "Total number of failed biometric verifications",
		}),
		UnlockLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "credvault_unlock_latency_seconds",
			Help:    "Latency of unlock operations in seconds",
			Buckets: prometheus.DefBuckets,
		}),
	}
}

// IncrementEntriesCreated increments the entries created counter by 1.
func (m *Metrics) IncrementEntriesCreated() {
	m.EntriesCreated.Inc()
}

func (m *Metrics) IncrementEntriesUnlocked() {
	m.EntriesUnlocked.Inc()
}

func (m *Metrics) IncrementEntriesLocked() {
	m.EntriesLocked.Inc()
}

func (m *Metrics) IncrementEntriesDeleted() {
	m.EntriesDeleted.Inc()
}

func (m *Metrics) IncrementEntriesSwept(count int) {
	m.EntriesSwept.Add(float64(count))
}

func (m *Metrics) IncrementUnlockFailures() {
	m.UnlockFailures.Inc()
}

// SetActiveEntries pins the active-entries gauge to the store's current count.
// Callers rederive the value from store statistics rather than adjusting it
// incrementally, so lazy status flips inside the store cannot drift the gauge.
func (m *Metrics) SetActiveEntries(count int) {
	m.ActiveEntries.Set(float64(count))
}

// IncrementRefreshesCompleted increments the refresh counter with a reason label.
func (m *Metrics) IncrementRefreshesCompleted(reason string) {
	m.RefreshesCompleted.WithLabelValues(reason).Inc()
}

func (m *Metrics) IncrementRefreshesFailed() {
	m.RefreshesFailed.Inc()
}

// ObserveRefreshLatency records the latency for refresh operations.
func (m *Metrics) ObserveRefreshLatency(durationSeconds float64) {
	m.RefreshLatency.Observe(durationSeconds)
}

func (m *Metrics) IncrementSessionsCreated() {
	m.SessionsCreated.Inc()
}

func (m *Metrics) IncrementVerificationsFailed() {
	m.VerificationsFailed.Inc()
}

// ObserveUnlockLatency records the latency for unlock operations.
func (m *Metrics) ObserveUnlockLatency(durationSeconds float64) {
	m.UnlockLatency.Observe(durationSeconds)
}

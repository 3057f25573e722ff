package metrics

import "github.com/prometheus/client_golang/prometheus"

// IdempotencyMetrics описывает очистку и повторы запросов по idempotency-key.
type IdempotencyMetrics struct {
	cleanupRuns    *prometheus.CounterVec
	cleanupDeleted prometheus.Counter
	lastDeleted    prometheus.Gauge
	replays        *prometheus.CounterVec
}

// NewIdempotencyMetrics регистрирует метрики в заданном registerer.
func NewIdempotencyMetrics(registerer prometheus.Registerer) *IdempotencyMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	return &IdempotencyMetrics{
		cleanupRuns: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "workshop_idempotency_cleanup_runs_total",
			Help: "Total number of idempotency cleanup runs grouped by result.",
		}, []string{"result"}),
		cleanupDeleted: registerCounter(registerer, prometheus.CounterOpts{
			Name: "workshop_idempotency_cleanup_deleted_total",
			Help: "Total number of deleted expired idempotency records.",
		}),
		lastDeleted: registerGauge(registerer, prometheus.GaugeOpts{
			Name: "workshop_idempotency_cleanup_last_deleted",
			Help: "Number of deleted records during the last cleanup run.",
		}),
		replays: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "workshop_idempotency_requests_total",
			Help: "Total number of idempotent requests grouped by outcome.",
		}, []string{"outcome"}),
	}
}

// RecordCleanup фиксирует результат цикла очистки.
func (m *IdempotencyMetrics) RecordCleanup(result string, deleted int) {
	if m == nil {
		return
	}
	m.cleanupRuns.WithLabelValues(result).Inc()
	if result == "ok" {
		m.lastDeleted.Set(float64(deleted))
	}
}

// AddDeleted увеличивает счётчик удалённых записей.
func (m *IdempotencyMetrics) AddDeleted(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.cleanupDeleted.Add(float64(n))
}

// RecordRequest фиксирует исход запроса: new, replay, conflict, in_progress.
func (m *IdempotencyMetrics) RecordRequest(outcome string) {
	if m == nil {
		return
	}
	m.replays.WithLabelValues(outcome).Inc()
}

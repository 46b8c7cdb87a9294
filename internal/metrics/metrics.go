// Package metrics: Prometheus-метрики ядра голосования.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	// Голосование
	MetricVotesApplied    = "curator_votes_applied_total"
	MetricVoteDuration    = "curator_vote_apply_duration_seconds"
	MetricVoteErrors      = "curator_vote_errors_total"
	MetricVoteRetries     = "curator_vote_serialization_retries_total"
	MetricStatusChanges   = "curator_status_changes_total"
	MetricVerifiedChanges = "curator_verified_changes_total"
	// Алерты
	MetricAlertsCreated  = "curator_alerts_created_total"
	MetricNotifyFailures = "curator_alert_notify_failures_total"
	// Сверка
	MetricTallyDrift     = "curator_tally_drift_total"
	MetricReconcileRuns  = "curator_reconcile_runs_total"
	MetricReconcileError = "curator_reconcile_errors_total"
)

// MetricService хранит коллекторы. Все методы безопасны для nil-получателя:
// сервисы в тестах работают без метрик.
type MetricService struct {
	registry *prometheus.Registry

	votesApplied    *prometheus.CounterVec
	voteDuration    prometheus.Histogram
	voteErrors      *prometheus.CounterVec
	voteRetries     prometheus.Counter
	statusChanges   *prometheus.CounterVec
	verifiedChanges *prometheus.CounterVec
	alertsCreated   *prometheus.CounterVec
	notifyFailures  prometheus.Counter
	tallyDrift      prometheus.Counter
	reconcileRuns   prometheus.Counter
	reconcileErrors prometheus.Counter
}

// NewMetricService регистрирует коллекторы в собственном реестре.
func NewMetricService() *MetricService {
	m := &MetricService{
		registry: prometheus.NewRegistry(),

		votesApplied: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: MetricVotesApplied,
			Help: "Applied vote mutations by operation",
		}, []string{"op"}),
		voteDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    MetricVoteDuration,
			Help:    "Duration of one vote mutation transaction",
			Buckets: prometheus.DefBuckets,
		}),
		voteErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: MetricVoteErrors,
			Help: "Rejected or failed vote mutations by error kind",
		}, []string{"kind"}),
		voteRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Name: MetricVoteRetries,
			Help: "Vote transactions retried after serialization failure or deadlock",
		}),
		statusChanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: MetricStatusChanges,
			Help: "Project status transitions by new status and source",
		}, []string{"status", "source"}),
		verifiedChanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: MetricVerifiedChanges,
			Help: "Verification flag flips",
		}, []string{"verified"}),
		alertsCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: MetricAlertsCreated,
			Help: "Created alerts by type",
		}, []string{"type"}),
		notifyFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: MetricNotifyFailures,
			Help: "Failed alert notification deliveries",
		}),
		tallyDrift: prometheus.NewCounter(prometheus.CounterOpts{
			Name: MetricTallyDrift,
			Help: "Projects whose stored tallies differed from recount",
		}),
		reconcileRuns: prometheus.NewCounter(prometheus.CounterOpts{
			Name: MetricReconcileRuns,
			Help: "Tally reconciliation runs",
		}),
		reconcileErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: MetricReconcileError,
			Help: "Tally reconciliation failures",
		}),
	}

	m.registry.MustRegister(
		m.votesApplied, m.voteDuration, m.voteErrors, m.voteRetries,
		m.statusChanges, m.verifiedChanges, m.alertsCreated, m.notifyFailures,
		m.tallyDrift, m.reconcileRuns, m.reconcileErrors,
		prometheus.NewGoCollector(),
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
	)
	return m
}

// Handler: GET /metrics.
func (m *MetricService) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry нужен тестам.
func (m *MetricService) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Голосование

func (m *MetricService) VoteApplied(op string, took time.Duration) {
	if m == nil {
		return
	}
	m.votesApplied.WithLabelValues(op).Inc()
	m.voteDuration.Observe(took.Seconds())
}

func (m *MetricService) VoteFailed(kind string) {
	if m == nil {
		return
	}
	m.voteErrors.WithLabelValues(kind).Inc()
}

func (m *MetricService) VoteRetried() {
	if m == nil {
		return
	}
	m.voteRetries.Inc()
}

func (m *MetricService) StatusChanged(status, source string) {
	if m == nil {
		return
	}
	m.statusChanges.WithLabelValues(status, source).Inc()
}

func (m *MetricService) VerifiedChanged(verified bool) {
	if m == nil {
		return
	}
	label := "false"
	if verified {
		label = "true"
	}
	m.verifiedChanges.WithLabelValues(label).Inc()
}

// Алерты

func (m *MetricService) AlertCreated(alertType string) {
	if m == nil {
		return
	}
	m.alertsCreated.WithLabelValues(alertType).Inc()
}

func (m *MetricService) NotifyFailed() {
	if m == nil {
		return
	}
	m.notifyFailures.Inc()
}

// Сверка

func (m *MetricService) ReconcileRun(drifted int, err error) {
	if m == nil {
		return
	}
	m.reconcileRuns.Inc()
	m.tallyDrift.Add(float64(drifted))
	if err != nil {
		m.reconcileErrors.Inc()
	}
}

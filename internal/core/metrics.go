package core

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Prometheus metrics (registered once).
var (
	promAlertsReceived = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "ghost_enforcer_alerts_received_total",
		Help: "Total alerts received by the policy engine",
	})
	promAlertsMatched = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ghost_enforcer_alerts_matched_total",
		Help: "Total alerts matched to a policy rule",
	}, []string{"policy"})
	promActionsExecuted = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ghost_enforcer_actions_executed_total",
		Help: "Total enforcement actions executed",
	}, []string{"action"})
	promActionsFailed = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "ghost_enforcer_actions_failed_total",
		Help: "Total enforcement actions that failed",
	})
	promActionsSkipped = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ghost_enforcer_actions_skipped_total",
		Help: "Total actions skipped before dispatch",
	}, []string{"reason"})
)

func init() {
	prometheus.MustRegister(promAlertsReceived)
	prometheus.MustRegister(promAlertsMatched)
	prometheus.MustRegister(promActionsExecuted)
	prometheus.MustRegister(promActionsFailed)
	prometheus.MustRegister(promActionsSkipped)
}

// Metrics accumulates pipeline counters. All counters are monotonic and are
// mutated only by the policy engine; Snapshot gives readers a consistent
// point-in-time view.
type Metrics struct {
	mu              sync.Mutex
	alertsReceived  uint64
	alertsMatched   uint64
	executed        map[string]uint64
	skippedCooldown uint64
	skippedExcluded uint64
	failed          uint64
}

// MetricsSnapshot is a point-in-time copy of all counters.
type MetricsSnapshot struct {
	AlertsReceived         uint64            `json:"alerts_received"`
	AlertsMatched          uint64            `json:"alerts_matched"`
	ActionsExecuted        map[string]uint64 `json:"actions_executed"`
	ActionsSkippedCooldown uint64            `json:"actions_skipped_cooldown"`
	ActionsSkippedExcluded uint64            `json:"actions_skipped_excluded"`
	ActionsFailed          uint64            `json:"actions_failed"`
}

// NewMetrics creates an empty Metrics accumulator.
func NewMetrics() *Metrics {
	return &Metrics{executed: make(map[string]uint64)}
}

func (m *Metrics) AlertReceived() {
	m.mu.Lock()
	m.alertsReceived++
	m.mu.Unlock()
	promAlertsReceived.Inc()
}

func (m *Metrics) AlertMatched(policy string) {
	m.mu.Lock()
	m.alertsMatched++
	m.mu.Unlock()
	promAlertsMatched.WithLabelValues(policy).Inc()
}

func (m *Metrics) ActionExecuted(action ActionType) {
	m.mu.Lock()
	m.executed[string(action)]++
	m.mu.Unlock()
	promActionsExecuted.WithLabelValues(string(action)).Inc()
}

func (m *Metrics) ActionFailed() {
	m.mu.Lock()
	m.failed++
	m.mu.Unlock()
	promActionsFailed.Inc()
}

func (m *Metrics) SkippedCooldown() {
	m.mu.Lock()
	m.skippedCooldown++
	m.mu.Unlock()
	promActionsSkipped.WithLabelValues("cooldown").Inc()
}

func (m *Metrics) SkippedExcluded() {
	m.mu.Lock()
	m.skippedExcluded++
	m.mu.Unlock()
	promActionsSkipped.WithLabelValues("excluded").Inc()
}

// Snapshot returns a consistent copy of all counters.
func (m *Metrics) Snapshot() MetricsSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	executed := make(map[string]uint64, len(m.executed))
	for k, v := range m.executed {
		executed[k] = v
	}
	return MetricsSnapshot{
		AlertsReceived:         m.alertsReceived,
		AlertsMatched:          m.alertsMatched,
		ActionsExecuted:        executed,
		ActionsSkippedCooldown: m.skippedCooldown,
		ActionsSkippedExcluded: m.skippedExcluded,
		ActionsFailed:          m.failed,
	}
}

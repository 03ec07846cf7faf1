// Package metrics holds the Prometheus instrumentation for the guild bot.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager groups every collector the bot exports.
// All record methods are safe on a nil *Manager.
type Manager struct {
	// counters
	CounterXPAwarded     *prometheus.CounterVec
	CounterWorkouts      *prometheus.CounterVec
	CounterDailyResets   prometheus.Counter
	CounterStreaksBroken prometheus.Counter
	CounterStreakFreezes prometheus.Counter
	CounterQuestBonuses  prometheus.Counter
	CounterBatchFailures prometheus.Counter
	CounterRequests      *prometheus.CounterVec
	CounterHandlerPanics prometheus.Counter
	CounterIgnored       *prometheus.CounterVec

	// gauges
	GaugeActiveRegen prometheus.Gauge

	// histograms
	HistBatchDuration   prometheus.Histogram
	HistRequestDuration prometheus.Histogram
}

// NewTestManagerAndRegistry returns a Manager on a private registry.
func NewTestManagerAndRegistry() (*Manager, *prometheus.Registry) {
	reg := prometheus.NewRegistry()
	return NewManager("guild", "test", reg), reg
}

// NewManager registers all collectors on reg.
func NewManager(namespace, subsystem string, reg prometheus.Registerer) *Manager {
	factory := promauto.With(reg)

	return &Manager{
		CounterXPAwarded: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "xp_awarded_total",
			Help:      "Total XP awarded, by source",
		}, []string{"source"}),
		CounterWorkouts: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "workouts_total",
			Help:      "Completed workouts, by source",
		}, []string{"source"}),
		CounterDailyResets: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "daily_resets_total",
			Help:      "Daily quest sheets created",
		}),
		CounterStreaksBroken: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "streaks_broken_total",
			Help:      "Streaks reset to zero after a missed day",
		}),
		CounterStreakFreezes: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "streak_freezes_consumed_total",
			Help:      "Streak freezes consumed automatically",
		}),
		CounterQuestBonuses: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "quest_bonuses_total",
			Help:      "All-quests-complete bonuses awarded",
		}),
		CounterBatchFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "batch_reset_failures_total",
			Help:      "Per-user failures during batch daily resets",
		}),
		CounterRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "requests_total",
			Help:      "API and bot requests, by route and status",
		}, []string{"route", "status"}),
		CounterHandlerPanics: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "handler_panics_total",
			Help:      "Recovered panics in handlers",
		}),
		CounterIgnored: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "ignored_updates_total",
			Help:      "Telegram updates dropped by the chat whitelist, by reason",
		}, []string{"reason"}),
		GaugeActiveRegen: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "active_regen_services",
			Help:      "Running per-user HP regen services",
		}),
		HistBatchDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "batch_reset_duration_seconds",
			Help:      "Duration of a batch daily reset run",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
		}),
		HistRequestDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "request_duration_seconds",
			Help:      "API request duration",
			Buckets:   prometheus.DefBuckets,
		}),
	}
}

// XPAwarded records a workout's XP under source.
func (m *Manager) XPAwarded(source string, xp int64) {
	if m == nil {
		return
	}
	m.CounterWorkouts.WithLabelValues(source).Inc()
	if xp > 0 {
		m.CounterXPAwarded.WithLabelValues(source).Add(float64(xp))
	}
}

// QuestBonus records an all-quests bonus of xp.
func (m *Manager) QuestBonus(xp int64) {
	if m == nil {
		return
	}
	m.CounterQuestBonuses.Inc()
	if xp > 0 {
		m.CounterXPAwarded.WithLabelValues("quest_bonus").Add(float64(xp))
	}
}

func (m *Manager) DailyReset() {
	if m != nil {
		m.CounterDailyResets.Inc()
	}
}

func (m *Manager) StreakBroken() {
	if m != nil {
		m.CounterStreaksBroken.Inc()
	}
}

func (m *Manager) StreakFreezeConsumed() {
	if m != nil {
		m.CounterStreakFreezes.Inc()
	}
}

// BatchRun records one batch run's duration and failure count.
func (m *Manager) BatchRun(seconds float64, failures int) {
	if m == nil {
		return
	}
	m.HistBatchDuration.Observe(seconds)
	m.CounterBatchFailures.Add(float64(failures))
}

// Request records a handled request.
func (m *Manager) Request(route, status string, seconds float64) {
	if m == nil {
		return
	}
	m.CounterRequests.WithLabelValues(route, status).Inc()
	m.HistRequestDuration.Observe(seconds)
}

func (m *Manager) HandlerPanic() {
	if m != nil {
		m.CounterHandlerPanics.Inc()
	}
}

// UpdateIgnored counts an update dropped before any handler ran.
func (m *Manager) UpdateIgnored(reason string) {
	if m != nil {
		m.CounterIgnored.WithLabelValues(reason).Inc()
	}
}

// RegenActive adjusts the running regen service gauge by delta.
func (m *Manager) RegenActive(delta int) {
	if m != nil {
		m.GaugeActiveRegen.Add(float64(delta))
	}
}

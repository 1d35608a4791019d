package quest

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the engine's Prometheus counters. A nil *Metrics records
// nothing.
type Metrics struct {
	started     prometheus.Counter
	completed   prometheus.Counter
	abandoned   prometheus.Counter
	failed      prometheus.Counter
	choices     *prometheus.CounterVec
	skillChecks *prometheus.CounterVec
}

// NewMetrics registers the quest counters on reg. Pass a private
// prometheus.NewRegistry() to keep them off the global default registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		started: f.NewCounter(prometheus.CounterOpts{
			Name: "quest_started_total",
			Help: "Total number of quest instances started.",
		}),
		completed: f.NewCounter(prometheus.CounterOpts{
			Name: "quest_completed_total",
			Help: "Total number of quest instances completed.",
		}),
		abandoned: f.NewCounter(prometheus.CounterOpts{
			Name: "quest_abandoned_total",
			Help: "Total number of quest instances abandoned.",
		}),
		failed: f.NewCounter(prometheus.CounterOpts{
			Name: "quest_failed_total",
			Help: "Total number of quest instances failed.",
		}),
		choices: f.NewCounterVec(prometheus.CounterOpts{
			Name: "quest_dialogue_choices_total",
			Help: "Dialogue choices by outcome (advanced, check_failed).",
		}, []string{"outcome"}),
		skillChecks: f.NewCounterVec(prometheus.CounterOpts{
			Name: "quest_skill_checks_total",
			Help: "Skill checks by result (success, failure).",
		}, []string{"result"}),
	}
}

func (m *Metrics) incStarted() {
	if m != nil {
		m.started.Inc()
	}
}

func (m *Metrics) incCompleted() {
	if m != nil {
		m.completed.Inc()
	}
}

func (m *Metrics) incAbandoned() {
	if m != nil {
		m.abandoned.Inc()
	}
}

func (m *Metrics) incFailed() {
	if m != nil {
		m.failed.Inc()
	}
}

func (m *Metrics) observeChoice(advanced bool) {
	if m == nil {
		return
	}
	outcome := "advanced"
	if !advanced {
		outcome = "check_failed"
	}
	m.choices.WithLabelValues(outcome).Inc()
}

func (m *Metrics) observeSkillCheck(success bool) {
	if m == nil {
		return
	}
	result := "failure"
	if success {
		result = "success"
	}
	m.skillChecks.WithLabelValues(result).Inc()
}

package intake

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the intake Prometheus instruments.
type Metrics struct {
	SessionsStarted  prometheus.Counter
	Autosaves        prometheus.Counter
	Responses        prometheus.Counter
	GateConflicts    *prometheus.CounterVec
	InvitationsSwept prometheus.Counter
}

// NewMetrics registers the intake instruments on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		SessionsStarted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "vox",
			Subsystem: "intake",
			Name:      "sessions_started_total",
			Help:      "Sessions created from invitation tokens.",
		}),
		Autosaves: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "vox",
			Subsystem: "intake",
			Name:      "autosaves_total",
			Help:      "Accepted autosave merges.",
		}),
		Responses: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "vox",
			Subsystem: "intake",
			Name:      "responses_total",
			Help:      "Responses persisted by completed sessions.",
		}),
		GateConflicts: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "vox",
			Subsystem: "intake",
			Name:      "gate_conflicts_total",
			Help:      "Completions rejected at the invitation gate, by reason.",
		}, []string{"reason"}),
		InvitationsSwept: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "vox",
			Subsystem: "intake",
			Name:      "invitations_swept_total",
			Help:      "Invitations expired by the sweeper.",
		}),
	}
}

func (m *Metrics) incSessionsStarted() {
	if m != nil {
		m.SessionsStarted.Inc()
	}
}

func (m *Metrics) incAutosaves() {
	if m != nil {
		m.Autosaves.Inc()
	}
}

func (m *Metrics) incResponses() {
	if m != nil {
		m.Responses.Inc()
	}
}

func (m *Metrics) incGateConflict(reason string) {
	if m != nil {
		m.GateConflicts.WithLabelValues(reason).Inc()
	}
}

func (m *Metrics) addInvitationsSwept(n int64) {
	if m != nil && n > 0 {
		m.InvitationsSwept.Add(float64(n))
	}
}

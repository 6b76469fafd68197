package reconcile

import "github.com/prometheus/client_golang/prometheus"

const (
	outcomeApplied   = "applied"
	outcomeQueued    = "queued"
	outcomeDeferred  = "deferred"
	outcomeRetry     = "retry"
	outcomeAbandoned = "abandoned"
)

// Metrics counts effect outcomes by kind.
type Metrics struct {
	effects *prometheus.CounterVec
}

// NewMetrics registers the reconcile collectors. A nil registerer uses the
// Prometheus default registerer.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	effects := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "backoffice_reconcile_effects_total",
		Help: "Side effects partitioned by kind and outcome.",
	}, []string{"kind", "outcome"})
	registerer.MustRegister(effects)
	return &Metrics{effects: effects}
}

func (m *Metrics) observe(kind Kind, outcome string) {
	if m == nil {
		return
	}
	m.effects.WithLabelValues(string(kind), outcome).Inc()
}

package sqlloader

import "github.com/prometheus/client_golang/prometheus"

// Load outcomes.
const (
	outcomeCommitted  = "committed"
	outcomeRolledBack = "rolled_back"
)

// Metrics counts what loaders do.
type Metrics struct {
	saved   *prometheus.CounterVec
	cleared *prometheus.CounterVec
	loads   *prometheus.CounterVec
}

// NewMetrics creates the loader collectors and registers them with reg
// when it is not nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		saved: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fixtures",
			Name:      "rows_saved_total",
			Help:      "Rows persisted by loaders, by target.",
		}, []string{"target"}),
		cleared: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fixtures",
			Name:      "rows_cleared_total",
			Help:      "Rows removed by loaders on unload, by target.",
		}, []string{"target"}),
		loads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fixtures",
			Name:      "loads_total",
			Help:      "Load calls, by outcome.",
		}, []string{"outcome"}),
	}
	if reg != nil {
		reg.MustRegister(m.saved, m.cleared, m.loads)
	}
	return m
}

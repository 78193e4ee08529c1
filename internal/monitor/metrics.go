package monitor

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics owns its registry so several agents (or tests) never collide on
// the global one.
type Metrics struct {
	registry *prometheus.Registry

	CyclesTotal         *prometheus.CounterVec
	CycleDuration       *prometheus.HistogramVec
	RejectionsTotal     *prometheus.CounterVec
	AdvisoryUnavailable *prometheus.CounterVec
	FillsTotal          *prometheus.CounterVec
	SnapshotsTotal      *prometheus.CounterVec
	StaleDropsTotal     *prometheus.CounterVec
	CycleErrorsTotal    *prometheus.CounterVec
	ExitsHeldTotal      *prometheus.CounterVec
}

func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		CyclesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "agent_cycles_total", Help: "Decision cycles by resulting direction"},
			[]string{"symbol", "direction"},
		),
		CycleDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "agent_cycle_duration_seconds",
				Help:    "Wall time of one decision cycle",
				Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"symbol"},
		),
		RejectionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "agent_risk_rejections_total", Help: "Intents rejected by the risk guard"},
			[]string{"symbol", "code"},
		),
		AdvisoryUnavailable: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "agent_advisory_unavailable_total", Help: "Cycles that fell back to the sentinel advisory signal"},
			[]string{"symbol"},
		),
		FillsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "agent_orders_total", Help: "Paper orders by terminal state"},
			[]string{"symbol", "side", "state"},
		),
		SnapshotsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "agent_snapshots_total", Help: "Market snapshots accepted into the buffer"},
			[]string{"symbol"},
		),
		StaleDropsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "agent_snapshots_dropped_total", Help: "Snapshots refused by the buffer"},
			[]string{"symbol"},
		),
		CycleErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "agent_cycle_errors_total", Help: "Cycles that ended with an error"},
			[]string{"symbol"},
		),
		ExitsHeldTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "agent_exits_held_total", Help: "Take-profit or stop-loss exits the arbiter turned into a hold"},
			[]string{"symbol", "exit"},
		),
	}
	m.registry.MustRegister(
		m.CyclesTotal,
		m.CycleDuration,
		m.RejectionsTotal,
		m.AdvisoryUnavailable,
		m.FillsTotal,
		m.SnapshotsTotal,
		m.StaleDropsTotal,
		m.CycleErrorsTotal,
		m.ExitsHeldTotal,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

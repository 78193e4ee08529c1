package monitor

import (
	"context"
	"sync"

	"aitradebot/internal/advisory"
	"aitradebot/internal/signal"
	"aitradebot/internal/types"
)

const DefaultHistory = 100

// Recorder keeps the most recent cycle outcomes and feeds the metrics.
type Recorder struct {
	metrics *Metrics

	mu      sync.RWMutex
	ring    []types.StepResult
	head    int
	size    int
	total   int64
	orders  int64
	lastErr string
}

func NewRecorder(history int, m *Metrics) *Recorder {
	if history <= 0 {
		history = DefaultHistory
	}
	return &Recorder{metrics: m, ring: make([]types.StepResult, history)}
}

func (r *Recorder) ObserveCycle(ctx context.Context, res types.StepResult) {
	r.mu.Lock()
	r.ring[r.head] = res
	r.head = (r.head + 1) % len(r.ring)
	if r.size < len(r.ring) {
		r.size++
	}
	r.total++
	if res.Order != nil {
		r.orders++
	}
	if res.Err != "" {
		r.lastErr = res.Err
	}
	r.mu.Unlock()

	if r.metrics == nil {
		return
	}
	dir := string(res.Intent.Direction)
	if dir == "" {
		dir = string(types.Hold)
	}
	r.metrics.CyclesTotal.WithLabelValues(res.Symbol, dir).Inc()
	r.metrics.CycleDuration.WithLabelValues(res.Symbol).Observe(float64(res.DurationMS) / 1000)
	if kind, ok := signal.ProtectiveExit(res.Rule); ok && res.Intent.Direction == types.Hold {
		r.metrics.ExitsHeldTotal.WithLabelValues(res.Symbol, kind).Inc()
	}
	if advisory.IsUnavailable(res.Advisory) {
		r.metrics.AdvisoryUnavailable.WithLabelValues(res.Symbol).Inc()
	}
	if res.Verdict != nil {
		for _, v := range res.Verdict.Violations {
			r.metrics.RejectionsTotal.WithLabelValues(res.Symbol, v.Code).Inc()
		}
	}
	if res.Order != nil {
		r.metrics.FillsTotal.WithLabelValues(res.Symbol, string(res.Order.Side), string(res.Order.State)).Inc()
	}
	if res.Err != "" {
		r.metrics.CycleErrorsTotal.WithLabelValues(res.Symbol).Inc()
	}
}

func (r *Recorder) ObserveSnapshot(s types.Snapshot, err error) {
	if r.metrics == nil {
		return
	}
	if err != nil {
		r.metrics.StaleDropsTotal.WithLabelValues(s.Symbol).Inc()
		return
	}
	r.metrics.SnapshotsTotal.WithLabelValues(s.Symbol).Inc()
}

// Cycles returns up to limit outcomes, newest first. limit <= 0 means all kept.
func (r *Recorder) Cycles(limit int) []types.StepResult {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n := r.size
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]types.StepResult, 0, n)
	for i := 1; i <= n; i++ {
		idx := (r.head - i + len(r.ring)) % len(r.ring)
		out = append(out, r.ring[idx])
	}
	return out
}

// Stats are lifetime counters, not limited to the kept history.
type Stats struct {
	Cycles    int64  `json:"cycles"`
	Orders    int64  `json:"orders"`
	LastError string `json:"last_error,omitempty"`
}

func (r *Recorder) Stats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return Stats{Cycles: r.total, Orders: r.orders, LastError: r.lastErr}
}

package monitor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"aitradebot/internal/advisory"
	"aitradebot/internal/store"
	"aitradebot/internal/tracker"
	"aitradebot/internal/types"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)

func cycle(i int) types.StepResult {
	return types.StepResult{
		ID:       fmt.Sprintf("c%03d", i),
		Symbol:   "BTCUSDT",
		Time:     t0.Add(time.Duration(i) * time.Second),
		Intent:   types.Intent{Symbol: "BTCUSDT", Direction: types.Hold},
		Advisory: advisory.Unavailable(t0),
	}
}

func TestRecorderKeepsNewestFirst(t *testing.T) {
	r := NewRecorder(3, nil)
	for i := range 5 {
		r.ObserveCycle(context.Background(), cycle(i))
	}

	got := r.Cycles(0)
	require.Len(t, got, 3)
	assert.Equal(t, "c004", got[0].ID)
	assert.Equal(t, "c002", got[2].ID)

	assert.Len(t, r.Cycles(2), 2)
	assert.Equal(t, int64(5), r.Stats().Cycles)
}

func TestRecorderFeedsMetrics(t *testing.T) {
	m := NewMetrics()
	r := NewRecorder(10, m)
	ctx := context.Background()

	r.ObserveCycle(ctx, cycle(0))

	rejected := cycle(1)
	rejected.Intent.Direction = types.Buy
	rejected.Verdict = &types.Verdict{Violations: []types.Violation{{Code: "FLOOR_BREACH"}}}
	r.ObserveCycle(ctx, rejected)

	filled := cycle(2)
	filled.Intent.Direction = types.Buy
	filled.Order = &types.Order{Side: types.Buy, State: types.OrderFilled}
	r.ObserveCycle(ctx, filled)

	r.ObserveSnapshot(types.Snapshot{Symbol: "BTCUSDT"}, nil)
	r.ObserveSnapshot(types.Snapshot{Symbol: "BTCUSDT"}, errors.New("stale"))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.CyclesTotal.WithLabelValues("BTCUSDT", "HOLD")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.CyclesTotal.WithLabelValues("BTCUSDT", "BUY")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RejectionsTotal.WithLabelValues("BTCUSDT", "FLOOR_BREACH")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.AdvisoryUnavailable.WithLabelValues("BTCUSDT")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.FillsTotal.WithLabelValues("BTCUSDT", "BUY", "FILLED")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SnapshotsTotal.WithLabelValues("BTCUSDT")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.StaleDropsTotal.WithLabelValues("BTCUSDT")))
	assert.Equal(t, int64(1), r.Stats().Orders)
}

func TestRecorderCountsHeldExits(t *testing.T) {
	m := NewMetrics()
	r := NewRecorder(10, m)
	ctx := context.Background()
	stop := types.Signal{Source: types.SourceRule, Direction: types.Sell, Strength: 1, Rationale: "stop_loss change=-1.200%"}

	held := cycle(0)
	held.Rule = stop
	r.ObserveCycle(ctx, held)

	taken := cycle(1)
	taken.Rule = stop
	taken.Intent.Direction = types.Sell
	r.ObserveCycle(ctx, taken)

	plainHold := cycle(2)
	plainHold.Rule = types.Signal{Source: types.SourceRule, Direction: types.Sell, Strength: 0.6, Rationale: "ema_cross"}
	r.ObserveCycle(ctx, plainHold)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.ExitsHeldTotal.WithLabelValues("BTCUSDT", "stop_loss")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.ExitsHeldTotal.WithLabelValues("BTCUSDT", "take_profit")))
}

type fixedSummary struct{ s tracker.Summary }

func (f fixedSummary) Snapshot() tracker.Summary { return f.s }

type haltSet map[string]bool

func (h haltSet) Halted(symbol string) bool { return h[symbol] }

func newTestServer(t *testing.T) (*httptest.Server, *Recorder) {
	t.Helper()
	cfg := store.Default()
	cfg.Symbols = []string{"BTCUSDT", "ETHUSDT"}
	m := NewMetrics()
	rec := NewRecorder(10, m)
	sum := tracker.Summary{
		Capital: types.CapitalLedger{
			Available: decimal.NewFromInt(20),
			Reserved:  decimal.Zero,
			Floor:     decimal.NewFromInt(20),
			Total:     decimal.NewFromInt(100),
		},
		Positions:  []tracker.PnL{{Symbol: "BTCUSDT", Quantity: decimal.NewFromInt(80)}},
		Realized:   decimal.NewFromInt(2),
		Unrealized: decimal.NewFromInt(3),
		Equity:     decimal.NewFromInt(105),
	}
	srv := NewServer(cfg, rec, fixedSummary{sum}, haltSet{"ETHUSDT": true}, m)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts, rec
}

func getJSON(t *testing.T, url string) map[string]any {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func TestServerStatus(t *testing.T) {
	ts, rec := newTestServer(t)
	rec.ObserveCycle(context.Background(), cycle(1))

	out := getJSON(t, ts.URL+"/api/status")
	assert.Equal(t, "DRY_RUN", out["mode"])
	syms := out["symbols"].([]any)
	require.Len(t, syms, 2)
	assert.Equal(t, false, syms[0].(map[string]any)["halted"])
	assert.Equal(t, true, syms[1].(map[string]any)["halted"])
	assert.Equal(t, 1.0, out["stats"].(map[string]any)["cycles"])
}

func TestServerPositionsAndPnL(t *testing.T) {
	ts, _ := newTestServer(t)

	pos := getJSON(t, ts.URL+"/api/positions")
	require.Len(t, pos["positions"], 1)

	pnl := getJSON(t, ts.URL+"/api/pnl")
	assert.Equal(t, "5", pnl["total_pnl"])
	assert.Equal(t, "105", pnl["equity"])
}

func TestServerCycles(t *testing.T) {
	ts, rec := newTestServer(t)
	for i := range 4 {
		rec.ObserveCycle(context.Background(), cycle(i))
	}

	out := getJSON(t, ts.URL+"/api/cycles?limit=2")
	cycles := out["cycles"].([]any)
	require.Len(t, cycles, 2)
	assert.Equal(t, "c003", cycles[0].(map[string]any)["id"])

	resp, err := http.Get(ts.URL + "/api/cycles?limit=abc")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestServerMetrics(t *testing.T) {
	ts, rec := newTestServer(t)
	rec.ObserveSnapshot(types.Snapshot{Symbol: "BTCUSDT"}, nil)

	resp, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(body), `agent_snapshots_total{symbol="BTCUSDT"} 1`))
}

func TestServerRejectsWrites(t *testing.T) {
	ts, _ := newTestServer(t)
	resp, err := http.Post(ts.URL+"/api/status", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

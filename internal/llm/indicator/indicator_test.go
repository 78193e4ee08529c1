package indicator

import (
	"context"
	"testing"

	"aitradebot/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func request(prices []float64) types.AdvisoryRequest {
	req := types.AdvisoryRequest{Symbol: "BTCUSDT"}
	for _, p := range prices {
		req.Snapshots = append(req.Snapshots, types.Snapshot{Symbol: "BTCUSDT", LastTradePrice: p})
	}
	return req
}

func TestAdviseInsufficientData(t *testing.T) {
	got, err := NewAdvisor().Advise(context.Background(), request(make([]float64, minPoints-1)))
	require.NoError(t, err)
	assert.Equal(t, "HOLD", got.Action)
	assert.Equal(t, "insufficient_data", got.Reason)
}

func TestAdviseTrendAndCondition(t *testing.T) {
	// a long climb then a short pullback: short EMA still above long, RSI low
	var upPullback []float64
	for i := range 40 {
		upPullback = append(upPullback, 100+float64(i))
	}
	for i := range 8 {
		upPullback = append(upPullback, 139-float64(i+1)*1.5)
	}

	var straightUp []float64
	for i := range 40 {
		straightUp = append(straightUp, 100+float64(i))
	}

	var straightDown []float64
	for i := range 40 {
		straightDown = append(straightDown, 200-float64(i))
	}

	tests := []struct {
		name   string
		prices []float64
		action string
		reason string
	}{
		{"uptrend pullback", upPullback, "BUY", "uptrend_oversold"},
		{"uptrend stretched", straightUp, "SELL", "uptrend_overbought_scale_out"},
		{"downtrend washed out", straightDown, "HOLD", "downtrend_oversold_caution"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NewAdvisor().Advise(context.Background(), request(tt.prices))
			require.NoError(t, err)
			assert.Equal(t, tt.action, got.Action)
			assert.Equal(t, tt.reason, got.Reason)
		})
	}
}

func TestAdviseFlatMarket(t *testing.T) {
	prices := make([]float64, 40)
	for i := range prices {
		prices[i] = 100
	}
	got, err := NewAdvisor().Advise(context.Background(), request(prices))
	require.NoError(t, err)
	assert.Equal(t, "HOLD", got.Action)
	assert.Equal(t, "no_clear_signal", got.Reason)
}

func TestAdviseRespectsCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewAdvisor().Advise(ctx, request(make([]float64, 40)))
	assert.ErrorIs(t, err, context.Canceled)
}

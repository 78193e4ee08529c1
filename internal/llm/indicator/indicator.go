// Package indicator is an offline advisor. It reads trend from an EMA cross
// and condition from RSI bands wider than the rule engine's, so it gives a
// second opinion without any network dependency.
package indicator

import (
	"context"
	"math"

	"aitradebot/internal/ta"
	"aitradebot/internal/types"
)

const (
	minPoints  = 30
	shortEMA   = 12
	longEMA    = 26
	rsiPeriod  = 14
	overbought = 60.0
	oversold   = 40.0
)

type Advisor struct{}

func NewAdvisor() *Advisor {
	return &Advisor{}
}

func (a *Advisor) Advise(ctx context.Context, req types.AdvisoryRequest) (types.Advice, error) {
	if err := ctx.Err(); err != nil {
		return types.Advice{}, err
	}
	if len(req.Snapshots) < minPoints {
		return types.Advice{Action: string(types.Hold), Reason: "insufficient_data"}, nil
	}

	closes := make([]float64, len(req.Snapshots))
	for i, s := range req.Snapshots {
		closes[i] = s.LastTradePrice
	}
	short, long, rsi := ta.EMA(closes, shortEMA), ta.EMA(closes, longEMA), ta.RSI(closes, rsiPeriod)
	if math.IsNaN(short) || math.IsNaN(long) || math.IsNaN(rsi) {
		return types.Advice{Action: string(types.Hold), Reason: "insufficient_data"}, nil
	}

	up := short > long
	switch {
	case up && rsi < oversold:
		return types.Advice{Action: string(types.Buy), Confidence: 0.7, Reason: "uptrend_oversold"}, nil
	case !up && rsi > overbought:
		return types.Advice{Action: string(types.Sell), Confidence: 0.7, Reason: "downtrend_overbought"}, nil
	case up && rsi > overbought:
		return types.Advice{Action: string(types.Sell), Confidence: 0.4, Reason: "uptrend_overbought_scale_out"}, nil
	case !up && rsi < oversold:
		return types.Advice{Action: string(types.Hold), Confidence: 0.2, Reason: "downtrend_oversold_caution"}, nil
	}
	return types.Advice{Action: string(types.Hold), Reason: "no_clear_signal"}, nil
}

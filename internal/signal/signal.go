package signal

import (
	"fmt"
	"iter"
	"math"
	"strings"
	"time"

	"aitradebot/internal/store"
	"aitradebot/internal/ta"
	"aitradebot/internal/types"
)

// fullGapPct is the EMA spread (in percent of the long EMA) that counts as a full-strength cross.
const fullGapPct = 0.5

const (
	ExitTakeProfit = "take_profit"
	ExitStopLoss   = "stop_loss"
)

// PositionHint tells the generator about an open position so it can emit
// take-profit and stop-loss exits.
type PositionHint struct {
	Open       bool
	EntryPrice float64
}

// Generator is the deterministic rule engine. It holds configuration only.
type Generator struct {
	emaShort             int
	emaLong              int
	rsiPeriod            int
	rsiOversold          float64
	rsiOverbought        float64
	momentumLookback     int
	momentumThresholdPct float64
	takeProfitPct        float64
	stopLossPct          float64
}

func New(cfg *store.Config) *Generator {
	s := cfg.Signal
	return &Generator{
		emaShort:             s.EMAShort,
		emaLong:              s.EMALong,
		rsiPeriod:            s.RSIPeriod,
		rsiOversold:          s.RSIOversold,
		rsiOverbought:        s.RSIOverbought,
		momentumLookback:     s.MomentumLookback,
		momentumThresholdPct: s.MomentumThresholdPct,
		takeProfitPct:        s.TakeProfitPct,
		stopLossPct:          s.StopLossPct,
	}
}

// MinPoints is the number of snapshots needed before any indicator votes.
func (g *Generator) MinPoints() int {
	return g.emaLong + 1
}

type vote struct {
	name      string
	direction types.Direction
	strength  float64
}

// Generate reduces the indicator votes over seq to one rule signal.
func (g *Generator) Generate(symbol string, seq iter.Seq[types.Snapshot], hint PositionHint) (types.Signal, types.Indicators) {
	var (
		closes []float64
		last   time.Time
	)
	for s := range seq {
		closes = append(closes, s.LastTradePrice)
		last = s.Timestamp
	}

	sig := types.Signal{Source: types.SourceRule, Direction: types.Hold, Timestamp: last}
	if len(closes) < g.MinPoints() {
		sig.Rationale = "insufficient_data"
		return sig, types.Indicators{}
	}

	inds := types.Indicators{
		EMAShort: ta.EMA(closes, g.emaShort),
		EMALong:  ta.EMA(closes, g.emaLong),
		RSI:      ta.RSI(closes, g.rsiPeriod),
		Momentum: ta.Momentum(closes, g.momentumLookback),
	}
	price := closes[len(closes)-1]

	// Protective exits win outright: a position past its stop or target is closed.
	if hint.Open && hint.EntryPrice > 0 {
		change := (price - hint.EntryPrice) / hint.EntryPrice * 100
		switch {
		case g.takeProfitPct > 0 && change >= g.takeProfitPct:
			sig.Direction, sig.Strength = types.Sell, 1
			sig.Rationale = fmt.Sprintf("%s change=%.3f%%", ExitTakeProfit, change)
			return sig, inds
		case g.stopLossPct > 0 && change <= -g.stopLossPct:
			sig.Direction, sig.Strength = types.Sell, 1
			sig.Rationale = fmt.Sprintf("%s change=%.3f%%", ExitStopLoss, change)
			return sig, inds
		}
	}

	votes := []vote{
		g.emaVote(inds),
		g.rsiVote(inds),
		g.momentumVote(inds),
	}
	return reduce(sig, votes), inds
}

// ProtectiveExit reports whether sig is a take-profit or stop-loss exit and which.
func ProtectiveExit(sig types.Signal) (string, bool) {
	if sig.Source != types.SourceRule || sig.Direction != types.Sell {
		return "", false
	}
	for _, kind := range []string{ExitTakeProfit, ExitStopLoss} {
		if strings.HasPrefix(sig.Rationale, kind+" ") {
			return kind, true
		}
	}
	return "", false
}

func (g *Generator) emaVote(inds types.Indicators) vote {
	v := vote{name: "ema_cross", direction: types.Hold}
	if math.IsNaN(inds.EMAShort) || math.IsNaN(inds.EMALong) || inds.EMALong == 0 {
		return v
	}
	gap := (inds.EMAShort - inds.EMALong) / inds.EMALong * 100
	switch {
	case gap > 0:
		v.direction = types.Buy
	case gap < 0:
		v.direction = types.Sell
	default:
		return v
	}
	v.strength = clamp01(math.Abs(gap) / fullGapPct)
	return v
}

func (g *Generator) rsiVote(inds types.Indicators) vote {
	v := vote{name: "rsi", direction: types.Hold}
	if math.IsNaN(inds.RSI) {
		return v
	}
	switch {
	case inds.RSI < g.rsiOversold:
		v.direction = types.Buy
		v.strength = clamp01((g.rsiOversold - inds.RSI) / g.rsiOversold)
	case inds.RSI > g.rsiOverbought:
		v.direction = types.Sell
		v.strength = clamp01((inds.RSI - g.rsiOverbought) / (100 - g.rsiOverbought))
	}
	return v
}

func (g *Generator) momentumVote(inds types.Indicators) vote {
	v := vote{name: "momentum", direction: types.Hold}
	if math.IsNaN(inds.Momentum) || g.momentumThresholdPct <= 0 {
		return v
	}
	if math.Abs(inds.Momentum) < g.momentumThresholdPct {
		return v
	}
	if inds.Momentum > 0 {
		v.direction = types.Buy
	} else {
		v.direction = types.Sell
	}
	v.strength = clamp01(math.Abs(inds.Momentum) / (4 * g.momentumThresholdPct))
	return v
}

// reduce picks the side with strictly more votes; a tie is HOLD. Strength is the
// winning side's summed strength over all votes cast, so dissent dilutes it.
func reduce(sig types.Signal, votes []vote) types.Signal {
	var (
		buys, sells     int
		buySum, sellSum float64
		parts           []string
	)
	for _, v := range votes {
		if v.direction == types.Hold || v.strength <= 0 {
			parts = append(parts, v.name+"=none")
			continue
		}
		parts = append(parts, fmt.Sprintf("%s=%s(%.2f)", v.name, strings.ToLower(string(v.direction)), v.strength))
		if v.direction == types.Buy {
			buys++
			buySum += v.strength
		} else {
			sells++
			sellSum += v.strength
		}
	}
	sig.Rationale = strings.Join(parts, " ")

	total := float64(buys + sells)
	switch {
	case buys > sells:
		sig.Direction = types.Buy
		sig.Strength = clamp01(buySum / total)
	case sells > buys:
		sig.Direction = types.Sell
		sig.Strength = clamp01(sellSum / total)
	default:
		sig.Direction = types.Hold
		sig.Strength = 0
	}
	return sig
}

func clamp01(x float64) float64 {
	if math.IsNaN(x) || x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}

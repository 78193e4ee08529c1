// Package arbiter merges the rule and advisory signals into one intent.
//
// The merge table:
//
//	rule \ advisory   BUY               SELL              HOLD
//	BUY               BUY  mean         HOLD              BUY  rule×d
//	SELL              HOLD              SELL mean         SELL rule×d
//	HOLD              BUY  adv×d        SELL adv×d        HOLD
//
// where d is the solo discount. A signal with zero strength counts as HOLD.
package arbiter

import (
	"fmt"
	"time"

	"aitradebot/internal/store"
	"aitradebot/internal/types"
)

type Arbiter struct {
	soloDiscount float64
	maxSize      float64
}

func New(cfg *store.Config) *Arbiter {
	return &Arbiter{
		soloDiscount: cfg.Arbiter.SoloDiscount,
		maxSize:      cfg.Arbiter.MaxSize,
	}
}

// Decide is total and deterministic. Signals are kept in rule, advisory order.
func (a *Arbiter) Decide(symbol string, rule, advisory types.Signal, refPrice float64, at time.Time) types.Intent {
	in := types.Intent{
		Symbol:         symbol,
		Direction:      types.Hold,
		Signals:        []types.Signal{rule, advisory},
		ReferencePrice: refPrice,
		CreatedAt:      at,
	}

	r, v := rule.Effective(), advisory.Effective()
	var conf float64
	switch {
	case r == types.Hold && v == types.Hold:
		return in
	case r == v:
		in.Direction = r
		conf = (rule.Strength + advisory.Strength) / 2
	case r != types.Hold && v != types.Hold:
		// disagreement
		return in
	case r != types.Hold:
		in.Direction = r
		conf = rule.Strength * a.soloDiscount
	default:
		in.Direction = v
		conf = advisory.Strength * a.soloDiscount
	}

	in.Confidence = clamp01(conf)
	in.Size = clamp01(a.maxSize * in.Confidence)
	if in.Size == 0 {
		in.Direction = types.Hold
		in.Confidence = 0
	}
	return in
}

// Explain renders a one-line reason for logs and the cycle record.
func Explain(in types.Intent) string {
	if len(in.Signals) != 2 {
		return string(in.Direction)
	}
	r, v := in.Signals[0], in.Signals[1]
	return fmt.Sprintf("rule=%s(%.2f) advisory=%s(%.2f) => %s conf=%.2f size=%.2f",
		r.Effective(), r.Strength, v.Effective(), v.Strength, in.Direction, in.Confidence, in.Size)
}

func clamp01(x float64) float64 {
	if x != x || x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}

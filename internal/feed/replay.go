// Package feed holds market data sources for the agent runner.
package feed

import (
	"context"
	"time"

	"aitradebot/internal/interfaces"
	"aitradebot/internal/types"
)

// Replay emits a fixed list of snapshots, optionally paced, then returns nil.
type Replay struct {
	snaps    []types.Snapshot
	interval time.Duration
}

var _ interfaces.Feed = (*Replay)(nil)

func NewReplay(snaps []types.Snapshot, interval time.Duration) *Replay {
	return &Replay{snaps: snaps, interval: interval}
}

func (r *Replay) Run(ctx context.Context, out chan<- types.Snapshot) error {
	var tick <-chan time.Time
	if r.interval > 0 {
		t := time.NewTicker(r.interval)
		defer t.Stop()
		tick = t.C
	}
	for i, s := range r.snaps {
		if tick != nil && i > 0 {
			select {
			case <-tick:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		select {
		case out <- s:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// Synthetic builds n snapshots drifting upward from start, one per step.
// Used for dry runs without network access.
func Synthetic(symbol string, start float64, n int, from time.Time, step time.Duration) []types.Snapshot {
	out := make([]types.Snapshot, n)
	p := start
	for i := range out {
		// three up, two down
		switch i % 5 {
		case 0, 1, 2:
			p *= 1.001
		default:
			p *= 0.9995
		}
		out[i] = types.Snapshot{
			Symbol:         symbol,
			Timestamp:      from.Add(time.Duration(i) * step),
			Bid:            p * 0.9999,
			Ask:            p * 1.0001,
			LastTradePrice: p,
			Volume:         1,
		}
	}
	return out
}

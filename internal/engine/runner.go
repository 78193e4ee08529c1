package engine

import (
	"context"
	"errors"

	"aitradebot/internal/interfaces"
	"aitradebot/internal/ledger"
	"aitradebot/internal/logger"
	"aitradebot/internal/market"
	"aitradebot/internal/types"

	"golang.org/x/sync/errgroup"
)

// IngestObserver is told about every snapshot the runner receives; err is
// non-nil when the buffer refused it.
type IngestObserver interface {
	ObserveSnapshot(s types.Snapshot, err error)
}

// Runner feeds snapshots into the buffer and triggers one worker per symbol.
// Triggers coalesce: while a cycle runs, any number of new snapshots leave at
// most one cycle pending.
type Runner struct {
	engine  interfaces.Engine
	buf     *market.Buffer
	symbols []string
	ingest  IngestObserver
}

func NewRunner(eng interfaces.Engine, buf *market.Buffer, symbols []string, ingest IngestObserver) *Runner {
	return &Runner{engine: eng, buf: buf, symbols: symbols, ingest: ingest}
}

// Run blocks until ctx is done or the feed stops. A feed that returns nil
// lets the workers finish their pending cycles before Run returns.
func (r *Runner) Run(ctx context.Context, feed interfaces.Feed) error {
	g, ctx := errgroup.WithContext(ctx)

	snaps := make(chan types.Snapshot, 256)
	triggers := make(map[string]chan struct{}, len(r.symbols))
	for _, s := range r.symbols {
		triggers[s] = make(chan struct{}, 1)
	}

	g.Go(func() error {
		defer close(snaps)
		return feed.Run(ctx, snaps)
	})

	g.Go(func() error {
		defer func() {
			for _, t := range triggers {
				close(t)
			}
		}()
		for s := range snaps {
			err := r.buf.Push(s)
			if r.ingest != nil {
				r.ingest.ObserveSnapshot(s, err)
			}
			if err != nil {
				if errors.Is(err, market.ErrStaleData) {
					logger.Debug(ctx, "Dropped stale snapshot", "symbol", s.Symbol, "error", err)
				} else {
					logger.Warn(ctx, "Dropped invalid snapshot", "error", err)
				}
				continue
			}
			t, ok := triggers[s.Symbol]
			if !ok {
				continue
			}
			select {
			case t <- struct{}{}:
			default:
			}
		}
		return nil
	})

	for symbol, t := range triggers {
		g.Go(func() error {
			return r.work(ctx, symbol, t)
		})
	}

	return g.Wait()
}

func (r *Runner) work(ctx context.Context, symbol string, trigger <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case _, ok := <-trigger:
			if !ok {
				return nil
			}
			if _, err := r.engine.Step(ctx, symbol); err != nil {
				if errors.Is(err, ledger.ErrLedgerInvariant) || errors.Is(err, ledger.ErrSymbolHalted) {
					logger.ErrorWithErr(ctx, "Symbol stopped", err, "symbol", symbol)
					return nil
				}
				logger.ErrorWithErr(ctx, "Decision cycle error", err, "symbol", symbol)
			}
		}
	}
}

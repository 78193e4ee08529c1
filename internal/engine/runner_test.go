package engine

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"aitradebot/internal/ledger"
	"aitradebot/internal/market"
	"aitradebot/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sliceFeed []types.Snapshot

func (f sliceFeed) Run(ctx context.Context, out chan<- types.Snapshot) error {
	for _, s := range f {
		select {
		case out <- s:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

type countingEngine struct {
	mu    sync.Mutex
	steps map[string]int
	err   error
	delay time.Duration
}

func (c *countingEngine) Step(ctx context.Context, symbol string) (*types.StepResult, error) {
	time.Sleep(c.delay)
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.steps == nil {
		c.steps = map[string]int{}
	}
	c.steps[symbol]++
	return &types.StepResult{Symbol: symbol}, c.err
}

type ingestCounter struct {
	accepted atomic.Int64
	dropped  atomic.Int64
}

func (i *ingestCounter) ObserveSnapshot(s types.Snapshot, err error) {
	if err != nil {
		i.dropped.Add(1)
		return
	}
	i.accepted.Add(1)
}

func snaps(symbol string, n int) []types.Snapshot {
	out := make([]types.Snapshot, n)
	for i := range out {
		out[i] = types.Snapshot{Symbol: symbol, Timestamp: t0.Add(time.Duration(i) * time.Second), LastTradePrice: 100}
	}
	return out
}

func TestRunnerPushesAndTriggers(t *testing.T) {
	buf := market.NewBuffer(100)
	eng := &countingEngine{delay: time.Millisecond}
	ing := &ingestCounter{}

	feed := append(snaps("BTCUSDT", 20), snaps("ETHUSDT", 20)...)
	feed = append(feed, snaps("BTCUSDT", 1)...) // stale duplicate

	r := NewRunner(eng, buf, []string{"BTCUSDT", "ETHUSDT"}, ing)
	require.NoError(t, r.Run(context.Background(), sliceFeed(feed)))

	assert.Equal(t, int64(40), ing.accepted.Load())
	assert.Equal(t, int64(1), ing.dropped.Load())
	assert.Equal(t, 20, buf.Len("BTCUSDT"))

	for _, s := range []string{"BTCUSDT", "ETHUSDT"} {
		n := eng.steps[s]
		assert.GreaterOrEqual(t, n, 1, s)
		assert.LessOrEqual(t, n, 20, s)
	}
}

func TestRunnerIgnoresUnconfiguredSymbols(t *testing.T) {
	buf := market.NewBuffer(100)
	eng := &countingEngine{}

	r := NewRunner(eng, buf, []string{"BTCUSDT"}, nil)
	require.NoError(t, r.Run(context.Background(), sliceFeed(snaps("DOGEUSDT", 5))))

	assert.Equal(t, 5, buf.Len("DOGEUSDT"))
	assert.Zero(t, eng.steps["DOGEUSDT"])
}

func TestRunnerStopsSymbolOnInvariantViolation(t *testing.T) {
	buf := market.NewBuffer(100)
	eng := &countingEngine{err: &ledger.LedgerInvariantViolation{Symbol: "BTCUSDT", Detail: "test"}, delay: time.Millisecond}

	r := NewRunner(eng, buf, []string{"BTCUSDT"}, nil)
	require.NoError(t, r.Run(context.Background(), sliceFeed(snaps("BTCUSDT", 50))))

	assert.Equal(t, 1, eng.steps["BTCUSDT"])
}

func TestRunnerStopsOnCancel(t *testing.T) {
	buf := market.NewBuffer(100)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r := NewRunner(&countingEngine{}, buf, []string{"BTCUSDT"}, nil)
	err := r.Run(ctx, blockingFeed{})
	assert.ErrorIs(t, err, context.Canceled)
}

type blockingFeed struct{}

func (blockingFeed) Run(ctx context.Context, out chan<- types.Snapshot) error {
	<-ctx.Done()
	return ctx.Err()
}

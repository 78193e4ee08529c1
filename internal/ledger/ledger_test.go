package ledger

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"testing"
	"time"

	"aitradebot/internal/journal"
	"aitradebot/internal/risk"
	"aitradebot/internal/store"
	"aitradebot/internal/types"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

func newLedger(t *testing.T, mutate func(*store.Config)) (*Ledger, *risk.Guard, *journal.MemorySink) {
	t.Helper()
	cfg := store.Default()
	if mutate != nil {
		mutate(cfg)
	}
	sink := journal.NewMemorySink(1024)
	var n int
	var mu sync.Mutex
	l := New(cfg, sink,
		WithClock(func() time.Time { return now }),
		WithIDs(func() string {
			mu.Lock()
			defer mu.Unlock()
			n++
			return fmt.Sprintf("ord_%04d", n)
		}),
	)
	return l, risk.New(cfg), sink
}

func snap(symbol string, price float64) types.Snapshot {
	return types.Snapshot{Symbol: symbol, Timestamp: now, LastTradePrice: price, Bid: price, Ask: price}
}

func intent(symbol string, dir types.Direction, size, ref float64) types.Intent {
	return types.Intent{Symbol: symbol, Direction: dir, Size: size, Confidence: size, ReferencePrice: ref, CreatedAt: now}
}

func approve(t *testing.T, l *Ledger, g *risk.Guard, in types.Intent) types.Verdict {
	t.Helper()
	v := g.Evaluate(in, l.RiskState(in.Symbol))
	require.True(t, v.Approved, "%+v", v.Violations)
	return v
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestBuyClampedToFloorScenario(t *testing.T) {
	l, g, _ := newLedger(t, nil)
	ctx := context.Background()

	v := approve(t, l, g, intent("BTCUSDT", types.Buy, 0.9, 1.0))
	o, err := l.Submit(ctx, v)
	require.NoError(t, err)
	assert.Equal(t, types.OrderPending, o.State)
	assert.True(t, l.Capital().Reserved.Equal(dec("80")))

	o, err = l.Fill(ctx, o.ID, snap("BTCUSDT", 1.0))
	require.NoError(t, err)
	assert.Equal(t, types.OrderFilled, o.State)
	assert.True(t, o.FilledQty.Equal(dec("80")), o.FilledQty.String())

	c := l.Capital()
	assert.True(t, c.Available.Equal(dec("20")), c.Available.String())
	assert.True(t, c.Reserved.IsZero())
	assert.True(t, l.Position("BTCUSDT").Quantity.Equal(dec("80")))
}

func TestRoundTripRestoresCapital(t *testing.T) {
	r := rand.New(rand.NewSource(42))
	for i := range 200 {
		t.Run(fmt.Sprint(i), func(t *testing.T) {
			l, g, _ := newLedger(t, nil)
			ctx := context.Background()
			price := float64(r.Intn(9_000_000)+1) / 100
			size := 0.05 + r.Float64()*0.95

			before := l.Capital()
			buy, err := l.Submit(ctx, approve(t, l, g, intent("BTCUSDT", types.Buy, size, price)))
			require.NoError(t, err)
			_, err = l.Fill(ctx, buy.ID, snap("BTCUSDT", price))
			require.NoError(t, err)

			sell, err := l.Submit(ctx, approve(t, l, g, intent("BTCUSDT", types.Sell, 1, price)))
			require.NoError(t, err)
			sell, err = l.Fill(ctx, sell.ID, snap("BTCUSDT", price))
			require.NoError(t, err)

			after := l.Capital()
			assert.True(t, before.Available.Equal(after.Available), "%s != %s", before.Available, after.Available)
			assert.True(t, before.Total.Equal(after.Total))
			assert.True(t, after.Reserved.IsZero())
			assert.True(t, sell.RealizedPnL.IsZero())
			assert.False(t, l.Position("BTCUSDT").IsOpen())
		})
	}
}

func TestSellRealizesPnLAndFees(t *testing.T) {
	l, g, _ := newLedger(t, func(c *store.Config) {
		c.Ledger.FeeRate = 0.001
		c.Ledger.MaxSlippagePct = 5
	})
	ctx := context.Background()

	buy, err := l.Submit(ctx, approve(t, l, g, intent("ETHUSDT", types.Buy, 0.5, 10)))
	require.NoError(t, err)
	buy, err = l.Fill(ctx, buy.ID, snap("ETHUSDT", 10))
	require.NoError(t, err)
	// 50 reserved buys floor(50 / 10.01, 8) units
	assert.True(t, buy.FilledQty.Equal(dec("4.99500499")), buy.FilledQty.String())

	sell, err := l.Submit(ctx, approve(t, l, g, intent("ETHUSDT", types.Sell, 1, 10.2)))
	require.NoError(t, err)
	sell, err = l.Fill(ctx, sell.ID, snap("ETHUSDT", 10.2))
	require.NoError(t, err)

	cost := dec("4.99500499").Mul(dec("10"))
	proceeds := dec("4.99500499").Mul(dec("10.2"))
	sellFee := proceeds.Mul(dec("0.001"))
	assert.True(t, sell.RealizedPnL.Equal(proceeds.Sub(cost).Sub(sellFee)), sell.RealizedPnL.String())

	c := l.Capital()
	buyFee := cost.Mul(dec("0.001"))
	want := dec("100").Sub(buyFee).Add(sell.RealizedPnL)
	assert.True(t, c.Total.Equal(want), "%s != %s", c.Total, want)
	assert.True(t, c.Available.Equal(c.Total))
	assert.True(t, l.RealizedToday().Equal(sell.RealizedPnL.Sub(buyFee)))
	assert.True(t, l.Position("ETHUSDT").RealizedPnL.Equal(sell.RealizedPnL.Sub(buyFee)))
	assert.True(t, l.Position("ETHUSDT").RealizedPnL.Equal(c.Total.Sub(dec("100"))))
}

func TestBuyFeeIsRealizedOnThePosition(t *testing.T) {
	l, g, _ := newLedger(t, func(c *store.Config) {
		c.Ledger.FeeRate = 0.001
	})
	ctx := context.Background()

	buy, err := l.Submit(ctx, approve(t, l, g, intent("ETHUSDT", types.Buy, 0.5, 10)))
	require.NoError(t, err)
	buy, err = l.Fill(ctx, buy.ID, snap("ETHUSDT", 10))
	require.NoError(t, err)

	p := l.Position("ETHUSDT")
	assert.True(t, p.RealizedPnL.Equal(buy.Fee.Neg()), p.RealizedPnL.String())
	assert.True(t, p.AverageCostBasis.Equal(dec("10")), p.AverageCostBasis.String())
	assert.True(t, l.RealizedToday().Equal(p.RealizedPnL))
}

func TestResolutionIsIdempotent(t *testing.T) {
	l, g, sink := newLedger(t, nil)
	ctx := context.Background()

	o, err := l.Submit(ctx, approve(t, l, g, intent("BTCUSDT", types.Buy, 0.5, 100)))
	require.NoError(t, err)

	filled, err := l.Fill(ctx, o.ID, snap("BTCUSDT", 100))
	require.NoError(t, err)
	capAfter := l.Capital()
	events := len(sink.Drain())

	again, err := l.Fill(ctx, o.ID, snap("BTCUSDT", 100.2))
	require.NoError(t, err)
	assert.Equal(t, filled, again)

	cancelled, err := l.Cancel(ctx, o.ID, "operator")
	require.NoError(t, err)
	assert.Equal(t, filled, cancelled)

	rejected, err := l.Reject(ctx, o.ID, "late")
	require.NoError(t, err)
	assert.Equal(t, filled, rejected)

	assert.Equal(t, capAfter, l.Capital())
	assert.Positive(t, events)
	assert.Empty(t, sink.Drain())
}

func TestUnknownOrder(t *testing.T) {
	l, _, _ := newLedger(t, nil)
	ctx := context.Background()

	_, err := l.Fill(ctx, "ord_missing", snap("BTCUSDT", 1))
	assert.ErrorIs(t, err, ErrUnknownOrder)
	_, err = l.Cancel(ctx, "ord_missing", "x")
	assert.ErrorIs(t, err, ErrUnknownOrder)
}

func TestFillRejectsOnSlippageAndReleasesReserve(t *testing.T) {
	l, g, sink := newLedger(t, nil)
	ctx := context.Background()

	o, err := l.Submit(ctx, approve(t, l, g, intent("BTCUSDT", types.Buy, 0.5, 100)))
	require.NoError(t, err)
	sink.Drain()

	o, err = l.Fill(ctx, o.ID, snap("BTCUSDT", 101))
	require.NoError(t, err)
	assert.Equal(t, types.OrderRejected, o.State)
	assert.Contains(t, o.Reason, "slippage")

	c := l.Capital()
	assert.True(t, c.Available.Equal(dec("100")))
	assert.True(t, c.Reserved.IsZero())
	_, pending := l.OpenOrder("BTCUSDT")
	assert.False(t, pending)

	events := sink.Drain()
	require.Len(t, events, 1)
	assert.Equal(t, journal.KindOrder, events[0].Kind)
	assert.Equal(t, "REJECTED", events[0].State)
}

func TestFillRejectsInvalidPrice(t *testing.T) {
	l, g, _ := newLedger(t, nil)
	ctx := context.Background()

	o, err := l.Submit(ctx, approve(t, l, g, intent("BTCUSDT", types.Buy, 0.5, 100)))
	require.NoError(t, err)
	o, err = l.Fill(ctx, o.ID, snap("BTCUSDT", 0))
	require.NoError(t, err)
	assert.Equal(t, types.OrderRejected, o.State)
	assert.Equal(t, "invalid_price", o.Reason)
	assert.True(t, l.Capital().Available.Equal(dec("100")))
}

func TestCancelReleasesReserve(t *testing.T) {
	l, g, _ := newLedger(t, nil)
	ctx := context.Background()

	o, err := l.Submit(ctx, approve(t, l, g, intent("BTCUSDT", types.Buy, 0.3, 100)))
	require.NoError(t, err)
	assert.True(t, l.Capital().Available.Equal(dec("70")))

	o, err = l.Cancel(ctx, o.ID, "operator")
	require.NoError(t, err)
	assert.Equal(t, types.OrderCancelled, o.State)
	assert.Equal(t, now, o.ResolvedAt)
	assert.True(t, l.Capital().Available.Equal(dec("100")))
}

func TestSubmitGuards(t *testing.T) {
	l, g, _ := newLedger(t, nil)
	ctx := context.Background()

	v := approve(t, l, g, intent("BTCUSDT", types.Buy, 0.3, 100))
	_, err := l.Submit(ctx, v)
	require.NoError(t, err)

	_, err = l.Submit(ctx, v)
	assert.ErrorIs(t, err, ErrOrderPending)

	_, err = l.Submit(ctx, types.Verdict{Intent: v.Intent})
	assert.ErrorIs(t, err, ErrNotApproved)

	_, err = l.Submit(ctx, types.Verdict{Approved: true, Intent: intent("ETHUSDT", types.Sell, 1, 10)})
	assert.ErrorIs(t, err, ErrNothingToClose)

	big := types.Verdict{Approved: true, Intent: intent("SOLUSDT", types.Buy, 1, 10), Commitment: dec("60")}
	_, err = l.Submit(ctx, big)
	assert.ErrorIs(t, err, ErrInsufficientFunds)
}

func TestInvariantViolationHaltsSymbol(t *testing.T) {
	l, g, sink := newLedger(t, nil)
	ctx := context.Background()

	v := approve(t, l, g, intent("BTCUSDT", types.Buy, 0.3, 100))

	l.cap.mu.Lock()
	l.cap.ledger.Total = l.cap.ledger.Total.Add(dec("1"))
	l.cap.mu.Unlock()

	_, err := l.Submit(ctx, v)
	var liv *LedgerInvariantViolation
	require.ErrorAs(t, err, &liv)
	assert.ErrorIs(t, err, ErrLedgerInvariant)
	assert.Equal(t, "BTCUSDT", liv.Symbol)
	assert.True(t, l.Halted("BTCUSDT"))
	assert.False(t, l.Halted("ETHUSDT"))

	_, err = l.Submit(ctx, v)
	assert.ErrorIs(t, err, ErrSymbolHalted)

	var halts int
	for _, e := range sink.Drain() {
		if e.Kind == journal.KindHalt {
			halts++
		}
	}
	assert.Equal(t, 1, halts)
	assert.True(t, l.RiskState("BTCUSDT").Halted)
}

func TestJournalEventsOnFill(t *testing.T) {
	l, g, sink := newLedger(t, nil)
	ctx := context.Background()

	o, err := l.Submit(ctx, approve(t, l, g, intent("BTCUSDT", types.Buy, 0.5, 100)))
	require.NoError(t, err)
	_, err = l.Fill(ctx, o.ID, snap("BTCUSDT", 100))
	require.NoError(t, err)

	events := sink.Drain()
	require.Len(t, events, 2)
	assert.Equal(t, journal.KindOrder, events[0].Kind)
	assert.Equal(t, "FILLED", events[0].State)
	assert.Equal(t, o.ID, events[0].OrderID)
	assert.True(t, events[0].Qty.Equal(dec("0.5")))
	assert.Equal(t, journal.KindPosition, events[1].Kind)
	assert.True(t, events[1].Available.Equal(dec("50")))
}

func TestRiskStateReflectsPendingOrder(t *testing.T) {
	l, g, _ := newLedger(t, nil)
	ctx := context.Background()

	_, err := l.Submit(ctx, approve(t, l, g, intent("BTCUSDT", types.Buy, 0.3, 100)))
	require.NoError(t, err)

	st := l.RiskState("BTCUSDT")
	assert.True(t, st.PendingOrder)
	assert.False(t, st.Position.IsOpen())

	v := g.Evaluate(intent("BTCUSDT", types.Buy, 0.3, 100), st)
	assert.False(t, v.Approved)
}

func TestConcurrentSymbolsKeepBooksBalanced(t *testing.T) {
	l, g, _ := newLedger(t, func(c *store.Config) {
		c.Capital.Starting = 10_000
		c.Capital.Floor = 1_000
	})
	ctx := context.Background()
	symbols := []string{"BTCUSDT", "ETHUSDT", "SOLUSDT", "BNBUSDT", "XRPUSDT"}

	var wg sync.WaitGroup
	for i, s := range symbols {
		wg.Add(1)
		go func(symbol string, seed int64) {
			defer wg.Done()
			r := rand.New(rand.NewSource(seed))
			for range 50 {
				price := 10 + r.Float64()*10
				v := g.Evaluate(intent(symbol, types.Buy, 0.1, price), l.RiskState(symbol))
				if v.Approved {
					if o, err := l.Submit(ctx, v); err == nil {
						_, _ = l.Fill(ctx, o.ID, snap(symbol, price))
					}
				}
				v = g.Evaluate(intent(symbol, types.Sell, 1, price), l.RiskState(symbol))
				if v.Approved {
					if o, err := l.Submit(ctx, v); err == nil {
						_, _ = l.Fill(ctx, o.ID, snap(symbol, price*(1+(r.Float64()-0.5)/500)))
					}
				}
			}
		}(s, int64(i))
	}
	wg.Wait()

	c := l.Capital()
	invested := decimal.Zero
	for _, p := range l.Positions() {
		invested = invested.Add(p.CostValue())
		assert.False(t, l.Halted(p.Symbol), p.Symbol)
	}
	assert.True(t, c.Available.Add(c.Reserved).Add(invested).Sub(c.Total).Abs().LessThan(dec("0.000001")))
	assert.True(t, c.Available.GreaterThanOrEqual(c.Floor))
	assert.True(t, c.Reserved.IsZero())
}

func TestErrorsWrap(t *testing.T) {
	err := fmt.Errorf("cycle: %w", &LedgerInvariantViolation{Symbol: "X", Detail: "d"})
	assert.True(t, errors.Is(err, ErrLedgerInvariant))
}

// Package ledger owns orders, positions and the capital ledger. It is the
// only place they are mutated; every read returns a copy.
//
// Locking: a symbol's book lock is always taken before the capital lock.
package ledger

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"aitradebot/internal/id"
	"aitradebot/internal/journal"
	"aitradebot/internal/logger"
	"aitradebot/internal/risk"
	"aitradebot/internal/store"
	"aitradebot/internal/types"

	"github.com/shopspring/decimal"
)

type book struct {
	mu       sync.Mutex
	position types.Position
	pending  *types.Order
	halted   bool
}

// capital is the cash side plus per-symbol bookkeeping used by the invariant check.
type capital struct {
	mu            sync.Mutex
	ledger        types.CapitalLedger
	invested      map[string]decimal.Decimal
	reservedBy    map[string]decimal.Decimal
	realizedDay   string
	realizedToday decimal.Decimal
}

type Ledger struct {
	maxSlippagePct float64
	feeRate        decimal.Decimal
	qtyPrecision   int32

	sink  journal.Sink
	now   func() time.Time
	newID func() string

	booksMu sync.Mutex
	books   map[string]*book

	ordersMu sync.RWMutex
	orders   map[string]*types.Order

	cap capital
}

type Option func(*Ledger)

func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

func WithIDs(next func() string) Option {
	return func(l *Ledger) { l.newID = next }
}

func New(cfg *store.Config, sink journal.Sink, opts ...Option) *Ledger {
	if sink == nil {
		sink = journal.NopSink{}
	}
	start := decimal.NewFromFloat(cfg.Capital.Starting)
	l := &Ledger{
		maxSlippagePct: cfg.Ledger.MaxSlippagePct,
		feeRate:        decimal.NewFromFloat(cfg.Ledger.FeeRate),
		qtyPrecision:   cfg.Ledger.QtyPrecision,
		sink:           sink,
		now:            time.Now,
		newID:          id.Order,
		books:          make(map[string]*book),
		orders:         make(map[string]*types.Order),
		cap: capital{
			ledger: types.CapitalLedger{
				Available: start,
				Reserved:  decimal.Zero,
				Floor:     decimal.NewFromFloat(cfg.Capital.Floor),
				Total:     start,
			},
			invested:      make(map[string]decimal.Decimal),
			reservedBy:    make(map[string]decimal.Decimal),
			realizedToday: decimal.Zero,
		},
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *Ledger) book(symbol string) *book {
	l.booksMu.Lock()
	defer l.booksMu.Unlock()
	b, ok := l.books[symbol]
	if !ok {
		b = &book{position: types.Position{
			Symbol:           symbol,
			Quantity:         decimal.Zero,
			AverageCostBasis: decimal.Zero,
			RealizedPnL:      decimal.Zero,
		}}
		l.books[symbol] = b
	}
	return b
}

func (l *Ledger) lookup(orderID string) (*types.Order, bool) {
	l.ordersMu.RLock()
	defer l.ordersMu.RUnlock()
	o, ok := l.orders[orderID]
	return o, ok
}

// Submit creates a PENDING order from an approved verdict. A buy moves its
// commitment from available to reserved.
func (l *Ledger) Submit(ctx context.Context, v types.Verdict) (types.Order, error) {
	if !v.Approved {
		return types.Order{}, ErrNotApproved
	}
	in := v.Intent
	if in.Direction != types.Buy && in.Direction != types.Sell {
		return types.Order{}, ErrNotActionable
	}

	b := l.book(in.Symbol)
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.halted {
		return types.Order{}, fmt.Errorf("submit %s: %w", in.Symbol, ErrSymbolHalted)
	}
	if b.pending != nil {
		return types.Order{}, fmt.Errorf("submit %s: %w", in.Symbol, ErrOrderPending)
	}

	o := &types.Order{
		ID:            l.newID(),
		Symbol:        in.Symbol,
		Side:          in.Direction,
		Intent:        in,
		State:         types.OrderPending,
		RequestedSize: in.Size,
		Reserved:      decimal.Zero,
		FilledQty:     decimal.Zero,
		FillPrice:     decimal.Zero,
		Fee:           decimal.Zero,
		RealizedPnL:   decimal.Zero,
		CreatedAt:     l.now(),
	}

	l.cap.mu.Lock()
	defer l.cap.mu.Unlock()

	switch in.Direction {
	case types.Buy:
		c := v.Commitment
		if !c.IsPositive() || c.GreaterThan(l.cap.ledger.Available.Sub(l.cap.ledger.Floor)) {
			return types.Order{}, fmt.Errorf("submit %s commitment %s: %w", in.Symbol, c, ErrInsufficientFunds)
		}
		l.cap.ledger.Available = l.cap.ledger.Available.Sub(c)
		l.cap.ledger.Reserved = l.cap.ledger.Reserved.Add(c)
		l.cap.reservedBy[in.Symbol] = l.cap.reservedBy[in.Symbol].Add(c)
		o.Reserved = c
	case types.Sell:
		if !b.position.IsOpen() {
			return types.Order{}, fmt.Errorf("submit %s: %w", in.Symbol, ErrNothingToClose)
		}
	}

	l.ordersMu.Lock()
	l.orders[o.ID] = o
	l.ordersMu.Unlock()
	b.pending = o

	logger.Info(ctx, "Paper order submitted",
		"order_id", o.ID,
		"symbol", o.Symbol,
		"side", string(o.Side),
		"reserved", o.Reserved.String(),
	)

	if err := l.checkLocked(ctx, b, in.Symbol); err != nil {
		return *o, err
	}
	return *o, nil
}

// Fill executes a PENDING order at snap's last trade price. A price outside the
// slippage band, or a non-positive one, rejects the order instead. Resolving an
// already terminal order returns it unchanged.
func (l *Ledger) Fill(ctx context.Context, orderID string, snap types.Snapshot) (types.Order, error) {
	o, ok := l.lookup(orderID)
	if !ok {
		return types.Order{}, fmt.Errorf("fill %s: %w", orderID, ErrUnknownOrder)
	}

	b := l.book(o.Symbol)
	b.mu.Lock()
	defer b.mu.Unlock()

	if o.State.Terminal() {
		return *o, nil
	}

	price := snap.LastTradePrice
	if !(price > 0) {
		return l.releaseLocked(ctx, b, o, types.OrderRejected, "invalid_price")
	}
	if ref := o.Intent.ReferencePrice; ref > 0 && l.maxSlippagePct > 0 {
		moved := (price - ref) / ref * 100
		if moved < 0 {
			moved = -moved
		}
		if moved > l.maxSlippagePct {
			return l.releaseLocked(ctx, b, o, types.OrderRejected,
				fmt.Sprintf("slippage %.3f%% exceeds %.3f%%", moved, l.maxSlippagePct))
		}
	}

	px := decimal.NewFromFloat(price)
	l.cap.mu.Lock()
	defer l.cap.mu.Unlock()

	switch o.Side {
	case types.Buy:
		qty := o.Reserved.Div(px.Mul(decimal.NewFromInt(1).Add(l.feeRate))).Truncate(l.qtyPrecision)
		if !qty.IsPositive() {
			l.releaseCapitalLocked(o)
			l.resolveLocked(b, o, types.OrderRejected, "quantity_below_precision")
			l.emitOrder(ctx, o)
			return *o, nil
		}
		cost := qty.Mul(px)
		fee := cost.Mul(l.feeRate)

		l.cap.ledger.Reserved = l.cap.ledger.Reserved.Sub(o.Reserved)
		l.cap.reservedBy[o.Symbol] = l.cap.reservedBy[o.Symbol].Sub(o.Reserved)
		l.cap.ledger.Available = l.cap.ledger.Available.Add(o.Reserved).Sub(cost).Sub(fee)
		l.cap.ledger.Total = l.cap.ledger.Total.Sub(fee)
		l.addRealizedLocked(fee.Neg())

		p := &b.position
		if !p.IsOpen() {
			p.OpenedAt = l.now()
		}
		invested := l.cap.invested[o.Symbol].Add(cost)
		l.cap.invested[o.Symbol] = invested
		p.Quantity = p.Quantity.Add(qty)
		p.AverageCostBasis = invested.Div(p.Quantity)
		// the buy fee is realized when paid
		p.RealizedPnL = p.RealizedPnL.Sub(fee)

		o.FilledQty, o.FillPrice, o.Fee = qty, px, fee
		o.RealizedPnL = fee.Neg()

	case types.Sell:
		p := &b.position
		if !p.IsOpen() {
			l.resolveLocked(b, o, types.OrderRejected, "nothing_to_close")
			l.emitOrder(ctx, o)
			return *o, nil
		}
		qty := p.Quantity
		proceeds := qty.Mul(px)
		fee := proceeds.Mul(l.feeRate)
		// (price - avg) * qty - fee, taken against the exact cost so the books balance
		pnl := proceeds.Sub(l.cap.invested[o.Symbol]).Sub(fee)

		l.cap.ledger.Available = l.cap.ledger.Available.Add(proceeds).Sub(fee)
		l.cap.ledger.Total = l.cap.ledger.Total.Add(pnl)
		l.addRealizedLocked(pnl)

		p.RealizedPnL = p.RealizedPnL.Add(pnl)
		p.Quantity = decimal.Zero
		p.AverageCostBasis = decimal.Zero
		p.OpenedAt = time.Time{}
		delete(l.cap.invested, o.Symbol)

		o.FilledQty, o.FillPrice, o.Fee, o.RealizedPnL = qty, px, fee, pnl
	}

	l.resolveLocked(b, o, types.OrderFilled, "")

	logger.Trade(ctx, o.Symbol, string(o.Side), o.FilledQty.String(), o.FillPrice.String(), o.ID,
		"fee", o.Fee.String(),
		"realized_pnl", o.RealizedPnL.String(),
		"available", l.cap.ledger.Available.String(),
	)
	l.emitOrder(ctx, o)
	l.emitPosition(ctx, b)

	if err := l.checkLocked(ctx, b, o.Symbol); err != nil {
		return *o, err
	}
	return *o, nil
}

// Cancel withdraws a PENDING order and releases its reservation.
func (l *Ledger) Cancel(ctx context.Context, orderID, reason string) (types.Order, error) {
	return l.resolveExternal(ctx, orderID, types.OrderCancelled, reason)
}

// Reject invalidates a PENDING order after submission.
func (l *Ledger) Reject(ctx context.Context, orderID, reason string) (types.Order, error) {
	return l.resolveExternal(ctx, orderID, types.OrderRejected, reason)
}

func (l *Ledger) resolveExternal(ctx context.Context, orderID string, state types.OrderState, reason string) (types.Order, error) {
	o, ok := l.lookup(orderID)
	if !ok {
		return types.Order{}, fmt.Errorf("%s %s: %w", state, orderID, ErrUnknownOrder)
	}
	b := l.book(o.Symbol)
	b.mu.Lock()
	defer b.mu.Unlock()

	if o.State.Terminal() {
		return *o, nil
	}
	return l.releaseLocked(ctx, b, o, state, reason)
}

// releaseLocked ends a PENDING order without a fill. Caller holds b.mu.
func (l *Ledger) releaseLocked(ctx context.Context, b *book, o *types.Order, state types.OrderState, reason string) (types.Order, error) {
	l.cap.mu.Lock()
	defer l.cap.mu.Unlock()

	l.releaseCapitalLocked(o)
	l.resolveLocked(b, o, state, reason)

	logger.Risk(ctx, o.Symbol, "ORDER_"+string(state),
		"order_id", o.ID,
		"reason", reason,
	)
	l.emitOrder(ctx, o)

	if err := l.checkLocked(ctx, b, o.Symbol); err != nil {
		return *o, err
	}
	return *o, nil
}

func (l *Ledger) releaseCapitalLocked(o *types.Order) {
	if !o.Reserved.IsPositive() {
		return
	}
	l.cap.ledger.Reserved = l.cap.ledger.Reserved.Sub(o.Reserved)
	l.cap.ledger.Available = l.cap.ledger.Available.Add(o.Reserved)
	l.cap.reservedBy[o.Symbol] = l.cap.reservedBy[o.Symbol].Sub(o.Reserved)
}

func (l *Ledger) resolveLocked(b *book, o *types.Order, state types.OrderState, reason string) {
	o.State = state
	o.Reason = reason
	o.ResolvedAt = l.now()
	if b.pending == o {
		b.pending = nil
	}
}

func (l *Ledger) addRealizedLocked(delta decimal.Decimal) {
	day := l.now().UTC().Format("2006-01-02")
	if day != l.cap.realizedDay {
		l.cap.realizedDay = day
		l.cap.realizedToday = decimal.Zero
	}
	l.cap.realizedToday = l.cap.realizedToday.Add(delta)
}

// checkLocked verifies the accounting identities and halts the symbol on a
// breach. Caller holds b.mu and cap.mu.
func (l *Ledger) checkLocked(ctx context.Context, b *book, symbol string) error {
	detail := l.violation(b, symbol)
	if detail == "" {
		return nil
	}
	b.halted = true
	err := &LedgerInvariantViolation{Symbol: symbol, Detail: detail}
	logger.ErrorWithErr(ctx, "LEDGER INVARIANT VIOLATED - symbol halted", err,
		"symbol", symbol,
		"available", l.cap.ledger.Available.String(),
		"reserved", l.cap.ledger.Reserved.String(),
		"total", l.cap.ledger.Total.String(),
	)
	l.record(ctx, journal.Event{
		Time:        l.now(),
		Kind:        journal.KindHalt,
		Symbol:      symbol,
		Qty:         decimal.Zero,
		Price:       decimal.Zero,
		Fee:         decimal.Zero,
		RealizedPnL: decimal.Zero,
		Available:   l.cap.ledger.Available,
		Reserved:    l.cap.ledger.Reserved,
		Total:       l.cap.ledger.Total,
		Reason:      detail,
	})
	return err
}

func (l *Ledger) violation(b *book, symbol string) string {
	c := l.cap.ledger
	switch {
	case c.Available.IsNegative():
		return "available is negative: " + c.Available.String()
	case c.Reserved.IsNegative():
		return "reserved is negative: " + c.Reserved.String()
	case c.Available.LessThan(c.Floor):
		return fmt.Sprintf("available %s below floor %s", c.Available, c.Floor)
	case b.position.Quantity.IsNegative():
		return "position quantity is negative: " + b.position.Quantity.String()
	}

	var reserved, invested decimal.Decimal
	for _, r := range l.cap.reservedBy {
		reserved = reserved.Add(r)
	}
	for _, v := range l.cap.invested {
		invested = invested.Add(v)
	}
	if !reserved.Equal(c.Reserved) {
		return fmt.Sprintf("reserved %s does not match pending reservations %s", c.Reserved, reserved)
	}
	if !c.Available.Add(c.Reserved).Add(invested).Equal(c.Total) {
		return fmt.Sprintf("available %s + reserved %s + invested %s != total %s", c.Available, c.Reserved, invested, c.Total)
	}
	if b.position.IsOpen() != l.cap.invested[symbol].IsPositive() {
		return fmt.Sprintf("position quantity %s inconsistent with invested %s", b.position.Quantity, l.cap.invested[symbol])
	}
	return ""
}

func (l *Ledger) emitOrder(ctx context.Context, o *types.Order) {
	l.record(ctx, journal.Event{
		Time:        o.ResolvedAt,
		Kind:        journal.KindOrder,
		Symbol:      o.Symbol,
		OrderID:     o.ID,
		State:       string(o.State),
		Side:        string(o.Side),
		Qty:         o.FilledQty,
		Price:       o.FillPrice,
		Fee:         o.Fee,
		RealizedPnL: o.RealizedPnL,
		Available:   l.cap.ledger.Available,
		Reserved:    l.cap.ledger.Reserved,
		Total:       l.cap.ledger.Total,
		Reason:      o.Reason,
	})
}

func (l *Ledger) emitPosition(ctx context.Context, b *book) {
	p := b.position
	l.record(ctx, journal.Event{
		Time:        l.now(),
		Kind:        journal.KindPosition,
		Symbol:      p.Symbol,
		Qty:         p.Quantity,
		Price:       p.AverageCostBasis,
		Fee:         decimal.Zero,
		RealizedPnL: p.RealizedPnL,
		Available:   l.cap.ledger.Available,
		Reserved:    l.cap.ledger.Reserved,
		Total:       l.cap.ledger.Total,
	})
}

func (l *Ledger) record(ctx context.Context, e journal.Event) {
	if err := l.sink.Record(ctx, e); err != nil {
		logger.ErrorWithErr(ctx, "Failed to journal ledger event", err, "kind", string(e.Kind), "symbol", e.Symbol)
	}
}

// Read access. Everything below returns copies.

func (l *Ledger) Capital() types.CapitalLedger {
	l.cap.mu.Lock()
	defer l.cap.mu.Unlock()
	return l.cap.ledger
}

func (l *Ledger) Position(symbol string) types.Position {
	b := l.book(symbol)
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.position
}

// Positions lists every symbol the ledger has seen, sorted by symbol.
func (l *Ledger) Positions() []types.Position {
	l.booksMu.Lock()
	symbols := make([]string, 0, len(l.books))
	for s := range l.books {
		symbols = append(symbols, s)
	}
	l.booksMu.Unlock()
	sort.Strings(symbols)

	out := make([]types.Position, 0, len(symbols))
	for _, s := range symbols {
		out = append(out, l.Position(s))
	}
	return out
}

func (l *Ledger) Order(orderID string) (types.Order, bool) {
	o, ok := l.lookup(orderID)
	if !ok {
		return types.Order{}, false
	}
	b := l.book(o.Symbol)
	b.mu.Lock()
	defer b.mu.Unlock()
	return *o, true
}

func (l *Ledger) OpenOrder(symbol string) (types.Order, bool) {
	b := l.book(symbol)
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.pending == nil {
		return types.Order{}, false
	}
	return *b.pending, true
}

func (l *Ledger) Halted(symbol string) bool {
	b := l.book(symbol)
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.halted
}

// RealizedToday is realized P&L net of fees since UTC midnight.
func (l *Ledger) RealizedToday() decimal.Decimal {
	l.cap.mu.Lock()
	defer l.cap.mu.Unlock()
	if l.cap.realizedDay != l.now().UTC().Format("2006-01-02") {
		return decimal.Zero
	}
	return l.cap.realizedToday
}

// RiskState is a consistent view of one symbol for the risk guard.
func (l *Ledger) RiskState(symbol string) risk.State {
	b := l.book(symbol)
	b.mu.Lock()
	defer b.mu.Unlock()
	l.cap.mu.Lock()
	defer l.cap.mu.Unlock()

	today := decimal.Zero
	if l.cap.realizedDay == l.now().UTC().Format("2006-01-02") {
		today = l.cap.realizedToday
	}
	return risk.State{
		Capital:       l.cap.ledger,
		Position:      b.position,
		PendingOrder:  b.pending != nil,
		Halted:        b.halted,
		RealizedToday: today,
	}
}

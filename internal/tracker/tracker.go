package tracker

import (
	"time"

	"aitradebot/internal/types"

	"github.com/shopspring/decimal"
)

// Positions is the read side of the ledger the tracker needs.
type Positions interface {
	Position(symbol string) types.Position
	Positions() []types.Position
	Capital() types.CapitalLedger
	RealizedToday() decimal.Decimal
}

// Prices supplies mark prices.
type Prices interface {
	Latest(symbol string) (types.Snapshot, bool)
}

type PnL struct {
	Symbol     string          `json:"symbol"`
	Quantity   decimal.Decimal `json:"quantity"`
	AvgCost    decimal.Decimal `json:"avg_cost"`
	MarkPrice  decimal.Decimal `json:"mark_price"`
	Realized   decimal.Decimal `json:"realized"`
	Unrealized decimal.Decimal `json:"unrealized"`
	MarkedAt   time.Time       `json:"marked_at,omitzero"`
}

type Summary struct {
	Capital       types.CapitalLedger `json:"capital"`
	Positions     []PnL               `json:"positions"`
	Realized      decimal.Decimal     `json:"realized"`
	RealizedToday decimal.Decimal     `json:"realized_today"`
	Unrealized    decimal.Decimal     `json:"unrealized"`
	Equity        decimal.Decimal     `json:"equity"`
}

// Tracker derives holdings and P&L. It never mutates anything.
type Tracker struct {
	ledger Positions
	prices Prices
}

func New(ledger Positions, prices Prices) *Tracker {
	return &Tracker{ledger: ledger, prices: prices}
}

func (t *Tracker) Holdings(symbol string) types.Position {
	return t.ledger.Position(symbol)
}

// PnL marks the position at the latest trade price; without one it marks at cost.
func (t *Tracker) PnL(symbol string) PnL {
	return t.mark(t.ledger.Position(symbol))
}

func (t *Tracker) mark(p types.Position) PnL {
	out := PnL{
		Symbol:     p.Symbol,
		Quantity:   p.Quantity,
		AvgCost:    p.AverageCostBasis,
		MarkPrice:  p.AverageCostBasis,
		Realized:   p.RealizedPnL,
		Unrealized: decimal.Zero,
	}
	if s, ok := t.prices.Latest(p.Symbol); ok && s.LastTradePrice > 0 {
		out.MarkPrice = decimal.NewFromFloat(s.LastTradePrice)
		out.MarkedAt = s.Timestamp
	}
	if p.IsOpen() {
		out.Unrealized = out.MarkPrice.Sub(p.AverageCostBasis).Mul(p.Quantity)
	}
	return out
}

// Snapshot is the monitoring view: capital, every position and totals.
func (t *Tracker) Snapshot() Summary {
	s := Summary{
		Capital:       t.ledger.Capital(),
		RealizedToday: t.ledger.RealizedToday(),
		Realized:      decimal.Zero,
		Unrealized:    decimal.Zero,
	}
	marketValue := decimal.Zero
	for _, p := range t.ledger.Positions() {
		m := t.mark(p)
		s.Positions = append(s.Positions, m)
		s.Realized = s.Realized.Add(m.Realized)
		s.Unrealized = s.Unrealized.Add(m.Unrealized)
		marketValue = marketValue.Add(m.MarkPrice.Mul(p.Quantity))
	}
	s.Equity = s.Capital.Available.Add(s.Capital.Reserved).Add(marketValue)
	return s
}

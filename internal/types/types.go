package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// Direction is the trading side carried by signals, intents and orders.
type Direction string

const (
	Buy  Direction = "BUY"
	Sell Direction = "SELL"
	Hold Direction = "HOLD"
)

// ParseDirection normalizes free-form provider output. Anything unknown is HOLD.
func ParseDirection(s string) Direction {
	switch Direction(s) {
	case Buy, Sell:
		return Direction(s)
	default:
		return Hold
	}
}

// Opposite returns the closing side for d. HOLD has no opposite.
func (d Direction) Opposite() Direction {
	switch d {
	case Buy:
		return Sell
	case Sell:
		return Buy
	default:
		return Hold
	}
}

type Source string

const (
	SourceRule     Source = "RULE"
	SourceAdvisory Source = "ADVISORY"
)

// Snapshot is one normalized market observation.
type Snapshot struct {
	Symbol         string    `json:"symbol"`
	Timestamp      time.Time `json:"timestamp"`
	Bid            float64   `json:"bid"`
	Ask            float64   `json:"ask"`
	LastTradePrice float64   `json:"last_trade_price"`
	Volume         float64   `json:"volume"`
}

func (s Snapshot) Mid() float64 {
	if s.Bid <= 0 || s.Ask <= 0 {
		return s.LastTradePrice
	}
	return (s.Bid + s.Ask) / 2
}

type Signal struct {
	Source    Source    `json:"source"`
	Direction Direction `json:"direction"`
	Strength  float64   `json:"strength"`
	Timestamp time.Time `json:"timestamp"`
	Rationale string    `json:"rationale"`
}

// Effective is the direction a signal actually votes for; zero strength never votes.
func (s Signal) Effective() Direction {
	if s.Strength <= 0 {
		return Hold
	}
	return s.Direction
}

type Intent struct {
	Symbol         string    `json:"symbol"`
	Direction      Direction `json:"direction"`
	Size           float64   `json:"size"`
	Confidence     float64   `json:"confidence"`
	Signals        []Signal  `json:"signals"`
	ReferencePrice float64   `json:"reference_price"`
	CreatedAt      time.Time `json:"created_at"`
}

// Indicators summarizes what the rule engine saw; it is also handed to advisors.
type Indicators struct {
	EMAShort float64 `json:"ema_short"`
	EMALong  float64 `json:"ema_long"`
	RSI      float64 `json:"rsi"`
	Momentum float64 `json:"momentum_pct"`
}

// AdvisoryRequest is what an advisory provider receives.
type AdvisoryRequest struct {
	Symbol     string         `json:"symbol"`
	Snapshots  []Snapshot     `json:"snapshots"`
	Indicators Indicators     `json:"indicators"`
	Context    map[string]any `json:"context,omitempty"`
}

// Advice is the provider response before it is turned into a Signal.
type Advice struct {
	Action     string  `json:"action"`
	Confidence float64 `json:"confidence"`
	Reason     string  `json:"reason"`
}

type OrderState string

const (
	OrderPending   OrderState = "PENDING"
	OrderFilled    OrderState = "FILLED"
	OrderRejected  OrderState = "REJECTED"
	OrderCancelled OrderState = "CANCELLED"
)

func (s OrderState) Terminal() bool {
	return s == OrderFilled || s == OrderRejected || s == OrderCancelled
}

type Order struct {
	ID            string          `json:"id"`
	Symbol        string          `json:"symbol"`
	Side          Direction       `json:"side"`
	Intent        Intent          `json:"intent"`
	State         OrderState      `json:"state"`
	RequestedSize float64         `json:"requested_size"`
	Reserved      decimal.Decimal `json:"reserved"`
	FilledQty     decimal.Decimal `json:"filled_qty"`
	FillPrice     decimal.Decimal `json:"fill_price"`
	Fee           decimal.Decimal `json:"fee"`
	RealizedPnL   decimal.Decimal `json:"realized_pnl"`
	CreatedAt     time.Time       `json:"created_at"`
	ResolvedAt    time.Time       `json:"resolved_at,omitzero"`
	Reason        string          `json:"reason,omitempty"`
}

type Position struct {
	Symbol           string          `json:"symbol"`
	Quantity         decimal.Decimal `json:"quantity"`
	AverageCostBasis decimal.Decimal `json:"average_cost_basis"`
	RealizedPnL      decimal.Decimal `json:"realized_pnl"`
	OpenedAt         time.Time       `json:"opened_at,omitzero"`
}

func (p Position) IsOpen() bool { return p.Quantity.IsPositive() }

// CostValue is the capital currently tied up in the position.
func (p Position) CostValue() decimal.Decimal { return p.Quantity.Mul(p.AverageCostBasis) }

// CapitalLedger is the cash side of the account. Total is starting capital plus
// realized P&L net of fees.
type CapitalLedger struct {
	Available decimal.Decimal `json:"available"`
	Reserved  decimal.Decimal `json:"reserved"`
	Floor     decimal.Decimal `json:"floor"`
	Total     decimal.Decimal `json:"total"`
}

// Invested is capital that left the cash side into open positions.
func (c CapitalLedger) Invested() decimal.Decimal {
	return c.Total.Sub(c.Available).Sub(c.Reserved)
}

type Violation struct {
	Code string `json:"code"`
	Msg  string `json:"msg"`
}

// Verdict is the RiskGuard outcome for one intent. A rejection is a value, not an error.
type Verdict struct {
	Approved   bool            `json:"approved"`
	Intent     Intent          `json:"intent"`
	Commitment decimal.Decimal `json:"commitment"`
	Clamped    bool            `json:"clamped"`
	Violations []Violation     `json:"violations,omitempty"`
}

func (v *Verdict) Reject(code, msg string) {
	v.Approved = false
	v.Violations = append(v.Violations, Violation{Code: code, Msg: msg})
}

// StepResult is the outcome of one decision cycle, kept for monitoring.
type StepResult struct {
	ID         string     `json:"id"`
	Symbol     string     `json:"symbol"`
	Time       time.Time  `json:"time"`
	Price      float64    `json:"price"`
	Rule       Signal     `json:"rule"`
	Advisory   Signal     `json:"advisory"`
	Intent     Intent     `json:"intent"`
	Verdict    *Verdict   `json:"verdict,omitempty"`
	Order      *Order     `json:"order,omitempty"`
	Reason     string     `json:"reason"`
	DurationMS int64      `json:"duration_ms"`
	Indicators Indicators `json:"indicators"`
	Err        string     `json:"error,omitempty"`
}

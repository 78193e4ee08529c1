package risk

import (
	"fmt"

	"aitradebot/internal/store"
	"aitradebot/internal/types"

	"github.com/shopspring/decimal"
)

// Violation codes.
const (
	CodeNotActionable  = "NOT_ACTIONABLE"
	CodeSymbolHalted   = "SYMBOL_HALTED"
	CodeNoPyramiding   = "NO_PYRAMIDING"
	CodeNothingToClose = "NOTHING_TO_CLOSE"
	CodeOrderPending   = "ORDER_PENDING"
	CodeFloorBreach    = "FLOOR_BREACH"
	CodeBelowMinimum   = "BELOW_MINIMUM"
	CodeDailyDrawdown  = "DAILY_DRAWDOWN"
)

// State is the ledger view the guard decides against. Callers pass copies.
type State struct {
	Capital       types.CapitalLedger
	Position      types.Position
	PendingOrder  bool
	Halted        bool
	RealizedToday decimal.Decimal
}

// Guard is stateless; every verdict depends only on its inputs.
type Guard struct {
	minSize         float64
	minNotional     decimal.Decimal
	drawdownPct     float64
	startingCapital decimal.Decimal
}

func New(cfg *store.Config) *Guard {
	return &Guard{
		minSize:         cfg.Risk.MinSize,
		minNotional:     decimal.NewFromFloat(cfg.Risk.MinNotional),
		drawdownPct:     cfg.Risk.MaxDailyDrawdownPct,
		startingCapital: decimal.NewFromFloat(cfg.Capital.Starting),
	}
}

// Evaluate approves, clamps or rejects in. A buy never commits capital that
// would take Available below Floor, and size is never increased.
func (g *Guard) Evaluate(in types.Intent, st State) types.Verdict {
	v := types.Verdict{Approved: true, Intent: in, Commitment: decimal.Zero}

	if in.Direction != types.Buy && in.Direction != types.Sell {
		v.Reject(CodeNotActionable, "hold intents are not evaluated")
		return v
	}
	if st.Halted {
		v.Reject(CodeSymbolHalted, fmt.Sprintf("%s is halted", in.Symbol))
	}

	if in.Direction == types.Sell {
		if !st.Position.IsOpen() {
			v.Reject(CodeNothingToClose, fmt.Sprintf("no open %s position", in.Symbol))
		}
		if st.PendingOrder {
			v.Reject(CodeOrderPending, "an order is already pending")
		}
		return v
	}

	if st.Position.IsOpen() || st.PendingOrder {
		v.Reject(CodeNoPyramiding, "position or pending order already exists")
	}
	if g.drawdownPct > 0 {
		limit := g.startingCapital.Mul(decimal.NewFromFloat(g.drawdownPct)).Div(decimal.NewFromInt(100)).Neg()
		if st.RealizedToday.LessThan(limit) {
			v.Reject(CodeDailyDrawdown, fmt.Sprintf("realized today %s below limit %s", st.RealizedToday, limit))
		}
	}

	g.sizeBuy(&v, st.Capital)
	return v
}

func (g *Guard) sizeBuy(v *types.Verdict, c types.CapitalLedger) {
	headroom := c.Available.Sub(c.Floor)
	if !headroom.IsPositive() {
		v.Reject(CodeFloorBreach, fmt.Sprintf("available %s at or below floor %s", c.Available, c.Floor))
		return
	}

	size := v.Intent.Size
	commitment := c.Available.Mul(decimal.NewFromFloat(size))
	if commitment.GreaterThan(headroom) {
		commitment = headroom
		size = headroom.Div(c.Available).InexactFloat64()
		v.Clamped = true
	}

	if size < g.minSize || commitment.LessThan(g.minNotional) {
		code := CodeBelowMinimum
		if v.Clamped {
			code = CodeFloorBreach
		}
		v.Reject(code, fmt.Sprintf("size %.4f / commitment %s below minimum (%.4f / %s)", size, commitment, g.minSize, g.minNotional))
		return
	}

	v.Intent.Size = size
	v.Commitment = commitment
}

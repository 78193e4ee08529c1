package ledger

import (
	"errors"
	"fmt"
)

var (
	ErrUnknownOrder      = errors.New("unknown order")
	ErrSymbolHalted      = errors.New("symbol halted")
	ErrLedgerInvariant   = errors.New("ledger invariant violated")
	ErrNotApproved       = errors.New("verdict not approved")
	ErrOrderPending      = errors.New("order already pending for symbol")
	ErrNothingToClose    = errors.New("no open position to close")
	ErrInsufficientFunds = errors.New("commitment exceeds available capital above floor")
	ErrNotActionable     = errors.New("intent direction is not actionable")
)

// LedgerInvariantViolation is fatal for the symbol it names.
type LedgerInvariantViolation struct {
	Symbol string
	Detail string
}

func (e *LedgerInvariantViolation) Error() string {
	return fmt.Sprintf("ledger invariant violated for %s: %s", e.Symbol, e.Detail)
}

func (e *LedgerInvariantViolation) Unwrap() error { return ErrLedgerInvariant }

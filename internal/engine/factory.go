package engine

import (
	"time"

	"aitradebot/internal/advisory"
	"aitradebot/internal/arbiter"
	"aitradebot/internal/interfaces"
	"aitradebot/internal/ledger"
	"aitradebot/internal/market"
	"aitradebot/internal/risk"
	"aitradebot/internal/signal"
	"aitradebot/internal/store"
)

// Deps are the collaborators of an Engine. Buffer, Scorer and Ledger are
// required; the rest default from cfg.
type Deps struct {
	Buffer   *market.Buffer
	Scorer   *advisory.Scorer
	Ledger   *ledger.Ledger
	Signals  *signal.Generator
	Arbiter  *arbiter.Arbiter
	Guard    *risk.Guard
	Observer Observer
	Now      func() time.Time
}

func New(cfg *store.Config, d Deps) interfaces.Engine {
	return newEngine(cfg, d)
}

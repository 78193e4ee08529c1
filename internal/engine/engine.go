package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"aitradebot/internal/advisory"
	"aitradebot/internal/arbiter"
	"aitradebot/internal/ledger"
	"aitradebot/internal/logger"
	"aitradebot/internal/market"
	"aitradebot/internal/risk"
	"aitradebot/internal/signal"
	"aitradebot/internal/store"
	"aitradebot/internal/types"

	"github.com/google/uuid"
)

// Observer receives every finished cycle, including holds and rejections.
type Observer interface {
	ObserveCycle(ctx context.Context, res types.StepResult)
}

// Engine runs the decision pipeline for one symbol at a time:
// buffer, rule signal and advisory, arbiter, risk guard, ledger.
type Engine struct {
	cfg      *store.Config
	buf      *market.Buffer
	gen      *signal.Generator
	scorer   *advisory.Scorer
	arb      *arbiter.Arbiter
	guard    *risk.Guard
	ledger   *ledger.Ledger
	observer Observer
	now      func() time.Time

	mu     sync.Mutex
	cycles map[string]*sync.Mutex
}

func newEngine(cfg *store.Config, d Deps) *Engine {
	e := &Engine{
		cfg:      cfg,
		buf:      d.Buffer,
		gen:      d.Signals,
		scorer:   d.Scorer,
		arb:      d.Arbiter,
		guard:    d.Guard,
		ledger:   d.Ledger,
		observer: d.Observer,
		now:      d.Now,
		cycles:   make(map[string]*sync.Mutex),
	}
	if e.gen == nil {
		e.gen = signal.New(cfg)
	}
	if e.arb == nil {
		e.arb = arbiter.New(cfg)
	}
	if e.guard == nil {
		e.guard = risk.New(cfg)
	}
	if e.now == nil {
		e.now = time.Now
	}
	return e
}

// cycleLock serializes Step per symbol; different symbols never contend.
func (e *Engine) cycleLock(symbol string) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()
	m, ok := e.cycles[symbol]
	if !ok {
		m = &sync.Mutex{}
		e.cycles[symbol] = m
	}
	return m
}

// Step runs one decision cycle for symbol. The only error it returns is a
// ledger failure that stops the symbol (invariant breach or halt); every other
// outcome is described by the result.
func (e *Engine) Step(ctx context.Context, symbol string) (*types.StepResult, error) {
	m := e.cycleLock(symbol)
	m.Lock()
	defer m.Unlock()

	start := e.now()
	res := &types.StepResult{ID: uuid.NewString(), Symbol: symbol, Time: start}
	err := e.step(ctx, res)
	res.DurationMS = e.now().Sub(start).Milliseconds()
	if err != nil {
		res.Err = err.Error()
	}
	if e.observer != nil {
		e.observer.ObserveCycle(ctx, *res)
	}
	return res, err
}

func (e *Engine) step(ctx context.Context, res *types.StepResult) error {
	symbol := res.Symbol

	if e.ledger.Halted(symbol) {
		res.Reason = "halted"
		return fmt.Errorf("step %s: %w", symbol, ledger.ErrSymbolHalted)
	}

	latest, ok := e.buf.Latest(symbol)
	if !ok {
		res.Reason = "no_market_data"
		logger.Debug(ctx, "No market data yet", "symbol", symbol)
		return nil
	}
	res.Price = latest.LastTradePrice

	window := e.buf.Recent(symbol, e.cfg.Market.Window)
	pos := e.ledger.Position(symbol)
	hint := signal.PositionHint{Open: pos.IsOpen()}
	if hint.Open {
		hint.EntryPrice = pos.AverageCostBasis.InexactFloat64()
	}

	rule, inds := e.gen.Generate(symbol, window, hint)
	res.Rule, res.Indicators = rule, inds

	res.Advisory = e.scorer.Score(ctx, symbol, window, inds, map[string]any{
		"position_open": hint.Open,
		"entry_price":   hint.EntryPrice,
		"mode":          e.cfg.Mode,
	})

	intent := e.arb.Decide(symbol, rule, res.Advisory, latest.LastTradePrice, e.now())
	res.Intent = intent
	explain := arbiter.Explain(intent)
	logger.Decision(ctx, symbol, string(intent.Direction), intent.Confidence, intent.Size, explain,
		"cycle_id", res.ID,
		"rule_rationale", rule.Rationale,
		"advisory_rationale", res.Advisory.Rationale,
	)

	if intent.Direction == types.Hold {
		res.Reason = "hold: " + explain
		if kind, ok := signal.ProtectiveExit(rule); ok {
			logger.Risk(ctx, symbol, "EXIT_HELD_BACK",
				"cycle_id", res.ID,
				"exit", kind,
				"rule_rationale", rule.Rationale,
				"advisory_direction", string(res.Advisory.Direction),
				"advisory_strength", res.Advisory.Strength,
			)
		}
		return nil
	}

	verdict := e.guard.Evaluate(intent, e.ledger.RiskState(symbol))
	res.Verdict = &verdict
	if !verdict.Approved {
		codes := make([]string, 0, len(verdict.Violations))
		for _, v := range verdict.Violations {
			codes = append(codes, v.Code)
		}
		res.Reason = "rejected: " + strings.Join(codes, ",")
		logger.Risk(ctx, symbol, "INTENT_REJECTED",
			"cycle_id", res.ID,
			"violations", codes,
			"direction", string(intent.Direction),
			"size", intent.Size,
		)
		return nil
	}
	if verdict.Clamped {
		logger.Risk(ctx, symbol, "INTENT_CLAMPED",
			"cycle_id", res.ID,
			"requested_size", intent.Size,
			"commitment", verdict.Commitment.String(),
		)
	}

	if e.cfg.Mode == "DRY_RUN" {
		res.Reason = "dry_run: " + explain
		logger.Info(ctx, "DRY_RUN: order not submitted", "symbol", symbol, "direction", string(intent.Direction))
		return nil
	}

	order, err := e.ledger.Submit(ctx, verdict)
	if err != nil {
		return e.ledgerFailure(ctx, res, "submit", err)
	}

	// Paper fills happen at whatever the market shows once the decision is made,
	// so a slow advisory call can move the fill away from the reference price.
	fillSnap, _ := e.buf.Latest(symbol)
	order, err = e.ledger.Fill(ctx, order.ID, fillSnap)
	res.Order = &order
	if err != nil {
		return e.ledgerFailure(ctx, res, "fill", err)
	}

	res.Reason = strings.ToLower(string(order.State)) + ": " + explain
	if order.Reason != "" {
		res.Reason += " (" + order.Reason + ")"
	}
	return nil
}

// ledgerFailure surfaces errors that stop the symbol and records the rest on the result.
func (e *Engine) ledgerFailure(ctx context.Context, res *types.StepResult, op string, err error) error {
	if errors.Is(err, ledger.ErrLedgerInvariant) || errors.Is(err, ledger.ErrSymbolHalted) {
		res.Reason = op + "_failed"
		return err
	}
	logger.ErrorWithErr(ctx, "Ledger "+op+" failed", err, "symbol", res.Symbol, "cycle_id", res.ID)
	res.Reason = op + "_failed: " + err.Error()
	return nil
}

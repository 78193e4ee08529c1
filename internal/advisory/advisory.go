package advisory

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"math"
	"slices"
	"strings"
	"time"

	"aitradebot/internal/interfaces"
	"aitradebot/internal/logger"
	"aitradebot/internal/store"
	"aitradebot/internal/types"
)

// ErrUnavailable marks an advisory call that timed out, failed or answered out of range.
var ErrUnavailable = errors.New("advisory unavailable")

const unavailableRationale = "unavailable"

// Unavailable is the sentinel signal used whenever the provider cannot be trusted.
func Unavailable(at time.Time) types.Signal {
	return types.Signal{
		Source:    types.SourceAdvisory,
		Direction: types.Hold,
		Strength:  0,
		Timestamp: at,
		Rationale: unavailableRationale,
	}
}

// IsUnavailable reports whether sig is the sentinel.
func IsUnavailable(sig types.Signal) bool {
	return sig.Source == types.SourceAdvisory && sig.Strength == 0 && sig.Rationale == unavailableRationale
}

// HeadlineSource supplies recent news for the provider's context.
type HeadlineSource interface {
	Headlines(ctx context.Context) ([]string, error)
}

// Scorer turns a provider opinion into a Signal under a hard deadline.
// It keeps no per-call state, so one Scorer serves every symbol.
type Scorer struct {
	advisor   interfaces.Advisor
	timeout   time.Duration
	headlines HeadlineSource
	now       func() time.Time
}

type Option func(*Scorer)

func WithHeadlines(h HeadlineSource) Option {
	return func(s *Scorer) { s.headlines = h }
}

func WithClock(now func() time.Time) Option {
	return func(s *Scorer) { s.now = now }
}

func NewScorer(cfg *store.Config, advisor interfaces.Advisor, opts ...Option) *Scorer {
	s := &Scorer{
		advisor: advisor,
		timeout: cfg.Advisory.Timeout,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type result struct {
	advice types.Advice
	err    error
}

// Score never fails: any problem degrades to the sentinel signal and is logged.
func (s *Scorer) Score(ctx context.Context, symbol string, seq iter.Seq[types.Snapshot], inds types.Indicators, extra map[string]any) types.Signal {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	req := types.AdvisoryRequest{
		Symbol:     symbol,
		Snapshots:  slices.Collect(seq),
		Indicators: inds,
		Context:    s.buildContext(ctx, extra),
	}

	// Buffered so a provider that ignores ctx can still finish without leaking.
	done := make(chan result, 1)
	go func() {
		a, err := s.advisor.Advise(ctx, req)
		done <- result{advice: a, err: err}
	}()

	var r result
	select {
	case r = <-done:
	case <-ctx.Done():
		r.err = ctx.Err()
	}

	at := s.now()
	if r.err != nil {
		s.logUnavailable(ctx, symbol, fmt.Errorf("%w: %w", ErrUnavailable, r.err))
		return Unavailable(at)
	}

	dir, ok := parseAction(r.advice.Action)
	conf := r.advice.Confidence
	if !ok || math.IsNaN(conf) || conf < 0 || conf > 1 {
		s.logUnavailable(ctx, symbol, fmt.Errorf("%w: out of range response action=%q confidence=%v", ErrUnavailable, r.advice.Action, conf))
		return Unavailable(at)
	}

	return types.Signal{
		Source:    types.SourceAdvisory,
		Direction: dir,
		Strength:  conf,
		Timestamp: at,
		Rationale: r.advice.Reason,
	}
}

func (s *Scorer) buildContext(ctx context.Context, extra map[string]any) map[string]any {
	out := make(map[string]any, len(extra)+1)
	for k, v := range extra {
		out[k] = v
	}
	if s.headlines != nil {
		if hs, err := s.headlines.Headlines(ctx); err != nil {
			logger.Debug(ctx, "Headlines unavailable for advisory context", "error", err)
		} else if len(hs) > 0 {
			out["headlines"] = hs
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func (s *Scorer) logUnavailable(ctx context.Context, symbol string, err error) {
	logger.Warn(ctx, "AdvisoryUnavailable", "symbol", symbol, "error", err)
}

func parseAction(a string) (types.Direction, bool) {
	switch d := types.Direction(strings.ToUpper(strings.TrimSpace(a))); d {
	case types.Buy, types.Sell, types.Hold:
		return d, true
	default:
		return types.Hold, false
	}
}

package advisory

import (
	"context"
	"errors"
	"iter"
	"testing"
	"time"

	"aitradebot/internal/store"
	"aitradebot/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type advisorFunc func(ctx context.Context, req types.AdvisoryRequest) (types.Advice, error)

func (f advisorFunc) Advise(ctx context.Context, req types.AdvisoryRequest) (types.Advice, error) {
	return f(ctx, req)
}

type staticHeadlines []string

func (h staticHeadlines) Headlines(context.Context) ([]string, error) { return h, nil }

var fixedNow = time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)

func snaps(n int) iter.Seq[types.Snapshot] {
	return func(yield func(types.Snapshot) bool) {
		for i := range n {
			if !yield(types.Snapshot{Symbol: "BTCUSDT", LastTradePrice: 100 + float64(i)}) {
				return
			}
		}
	}
}

func newScorer(timeout time.Duration, a advisorFunc, opts ...Option) *Scorer {
	cfg := store.Default()
	cfg.Advisory.Timeout = timeout
	return NewScorer(cfg, a, append([]Option{WithClock(func() time.Time { return fixedNow })}, opts...)...)
}

func TestScoreMapsAdvice(t *testing.T) {
	s := newScorer(time.Second, func(ctx context.Context, req types.AdvisoryRequest) (types.Advice, error) {
		assert.Equal(t, "BTCUSDT", req.Symbol)
		assert.Len(t, req.Snapshots, 5)
		return types.Advice{Action: "sell", Confidence: 0.6, Reason: "fade"}, nil
	})

	sig := s.Score(context.Background(), "BTCUSDT", snaps(5), types.Indicators{}, nil)
	assert.Equal(t, types.Signal{
		Source:    types.SourceAdvisory,
		Direction: types.Sell,
		Strength:  0.6,
		Timestamp: fixedNow,
		Rationale: "fade",
	}, sig)
	assert.False(t, IsUnavailable(sig))
}

func TestScoreDegradesToSentinel(t *testing.T) {
	tests := []struct {
		name string
		fn   advisorFunc
	}{
		{"provider error", func(context.Context, types.AdvisoryRequest) (types.Advice, error) {
			return types.Advice{}, errors.New("boom")
		}},
		{"confidence above one", func(context.Context, types.AdvisoryRequest) (types.Advice, error) {
			return types.Advice{Action: "BUY", Confidence: 1.2}, nil
		}},
		{"negative confidence", func(context.Context, types.AdvisoryRequest) (types.Advice, error) {
			return types.Advice{Action: "BUY", Confidence: -0.1}, nil
		}},
		{"unknown action", func(context.Context, types.AdvisoryRequest) (types.Advice, error) {
			return types.Advice{Action: "MOON", Confidence: 0.9}, nil
		}},
		{"honours deadline", func(ctx context.Context, _ types.AdvisoryRequest) (types.Advice, error) {
			<-ctx.Done()
			return types.Advice{}, ctx.Err()
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sig := newScorer(20*time.Millisecond, tt.fn).Score(context.Background(), "BTCUSDT", snaps(3), types.Indicators{}, nil)
			assert.Equal(t, Unavailable(fixedNow), sig)
			assert.True(t, IsUnavailable(sig))
		})
	}
}

func TestScoreDoesNotWaitForProviderIgnoringDeadline(t *testing.T) {
	release := make(chan struct{})
	defer close(release)

	s := newScorer(20*time.Millisecond, func(context.Context, types.AdvisoryRequest) (types.Advice, error) {
		<-release
		return types.Advice{Action: "BUY", Confidence: 1}, nil
	})

	start := time.Now()
	sig := s.Score(context.Background(), "BTCUSDT", snaps(3), types.Indicators{}, nil)
	assert.True(t, IsUnavailable(sig))
	assert.Less(t, time.Since(start), time.Second)
}

func TestScoreCancelledParent(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s := newScorer(time.Second, func(ctx context.Context, _ types.AdvisoryRequest) (types.Advice, error) {
		<-ctx.Done()
		return types.Advice{}, ctx.Err()
	})
	assert.True(t, IsUnavailable(s.Score(ctx, "BTCUSDT", snaps(1), types.Indicators{}, nil)))
}

func TestScoreAddsHeadlinesToContext(t *testing.T) {
	var got map[string]any
	s := newScorer(time.Second, func(_ context.Context, req types.AdvisoryRequest) (types.Advice, error) {
		got = req.Context
		return types.Advice{Action: "HOLD"}, nil
	}, WithHeadlines(staticHeadlines{"ETF inflows rise"}))

	s.Score(context.Background(), "BTCUSDT", snaps(1), types.Indicators{}, map[string]any{"position_open": true})
	require.NotNil(t, got)
	assert.Equal(t, []string{"ETF inflows rise"}, got["headlines"])
	assert.Equal(t, true, got["position_open"])
}

func TestNewProvider(t *testing.T) {
	for _, p := range []string{"CLAUDE", "OPENAI", "INDICATOR", "NOOP"} {
		cfg := store.Default()
		cfg.LLM.Provider = p
		a, err := NewProvider(cfg)
		require.NoError(t, err, p)
		assert.NotNil(t, a)
	}

	cfg := store.Default()
	cfg.LLM.Provider = "GEMINI"
	_, err := NewProvider(cfg)
	assert.Error(t, err)
}

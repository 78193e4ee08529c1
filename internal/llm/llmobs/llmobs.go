package llmobs

import (
	"context"
	"time"

	"aitradebot/internal/interfaces"
	"aitradebot/internal/logger"
	"aitradebot/internal/trace"
	"aitradebot/internal/types"
)

// observableAdvisor wraps an Advisor with logging and tracing
type observableAdvisor struct {
	advisor  interfaces.Advisor
	provider string
}

var _ interfaces.Advisor = (*observableAdvisor)(nil)

// Wrap decorates advisor; provider names it in logs and spans.
func Wrap(advisor interfaces.Advisor, provider string) interfaces.Advisor {
	return &observableAdvisor{advisor: advisor, provider: provider}
}

func (oa *observableAdvisor) Advise(ctx context.Context, req types.AdvisoryRequest) (types.Advice, error) {
	ctx, span := trace.StartSpan(ctx, "advisor.Advise")
	defer span.End()

	logger.DebugSkip(ctx, 1, "Requesting advisory opinion",
		"provider", oa.provider,
		"symbol", req.Symbol,
		"snapshots", len(req.Snapshots),
	)

	start := time.Now()
	advice, err := oa.advisor.Advise(ctx, req)
	if err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Advisory provider failed", err,
			"provider", oa.provider,
			"symbol", req.Symbol,
			"latency_ms", time.Since(start).Milliseconds(),
		)
		return types.Advice{}, err
	}

	if ctx.Err() != nil {
		logger.WarnSkip(ctx, 1, "Advisory opinion arrived after deadline",
			"provider", oa.provider,
			"symbol", req.Symbol,
			"action", advice.Action,
			"latency_ms", time.Since(start).Milliseconds(),
			"error", ctx.Err(),
		)
		return advice, nil
	}

	logger.InfoSkip(ctx, 1, "Advisory opinion received",
		"provider", oa.provider,
		"symbol", req.Symbol,
		"action", advice.Action,
		"confidence", advice.Confidence,
		"reason", advice.Reason,
		"latency_ms", time.Since(start).Milliseconds(),
	)
	return advice, nil
}

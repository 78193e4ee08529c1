package engineobs

import (
	"context"
	"time"

	"aitradebot/internal/interfaces"
	"aitradebot/internal/logger"
	"aitradebot/internal/trace"
	"aitradebot/internal/types"

	"go.opentelemetry.io/otel/attribute"
)

type observableEngine struct {
	engine interfaces.Engine
}

var _ interfaces.Engine = (*observableEngine)(nil)

func Wrap(eng interfaces.Engine) interfaces.Engine {
	return &observableEngine{
		engine: eng,
	}
}

func (oe *observableEngine) Step(ctx context.Context, symbol string) (*types.StepResult, error) {
	ctx, span := trace.StartSpan(ctx, "engine.Step")
	defer span.End()
	span.SetAttributes(attribute.String("symbol", symbol))

	start := time.Now()

	logger.DebugSkip(ctx, 1, "Starting decision cycle",
		"symbol", symbol,
	)

	result, err := oe.engine.Step(ctx, symbol)
	if err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Decision cycle failed", err,
			"symbol", symbol,
			"duration_ms", time.Since(start).Milliseconds(),
		)
		return result, err
	}

	span.SetAttributes(
		attribute.String("cycle_id", result.ID),
		attribute.String("direction", string(result.Intent.Direction)),
	)
	logger.InfoSkip(ctx, 1, "Decision cycle completed",
		"symbol", symbol,
		"cycle_id", result.ID,
		"direction", string(result.Intent.Direction),
		"confidence", result.Intent.Confidence,
		"reason", result.Reason,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return result, nil
}

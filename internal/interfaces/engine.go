package interfaces

import (
	"context"

	"aitradebot/internal/types"
)

type Engine interface {
	Step(ctx context.Context, symbol string) (*types.StepResult, error)
}

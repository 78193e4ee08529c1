package noop

import (
	"context"

	"aitradebot/internal/logger"
	"aitradebot/internal/types"
)

// Advisor always abstains; used when no provider is configured.
type Advisor struct{}

func NewAdvisor() *Advisor {
	return &Advisor{}
}

func (a *Advisor) Advise(ctx context.Context, req types.AdvisoryRequest) (types.Advice, error) {
	logger.Debug(ctx, "Noop advisor called - always returns HOLD", "symbol", req.Symbol)
	return types.Advice{
		Action: string(types.Hold),
		Reason: "noop_advisor",
	}, nil
}

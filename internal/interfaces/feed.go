package interfaces

import (
	"context"

	"aitradebot/internal/types"
)

// Feed pushes normalized snapshots into out until ctx is done or the source fails.
type Feed interface {
	Run(ctx context.Context, out chan<- types.Snapshot) error
}

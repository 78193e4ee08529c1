package interfaces

import (
	"context"

	"aitradebot/internal/types"
)

// Advisor is a pluggable advisory provider. Implementations may be slow or fail;
// callers bound them with a deadline.
type Advisor interface {
	Advise(ctx context.Context, req types.AdvisoryRequest) (types.Advice, error)
}

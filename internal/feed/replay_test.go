package feed

import (
	"context"
	"testing"
	"time"

	"aitradebot/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)

func TestReplayEmitsInOrder(t *testing.T) {
	snaps := Synthetic("BTCUSDT", 100, 10, t0, time.Second)
	out := make(chan types.Snapshot, len(snaps))

	require.NoError(t, NewReplay(snaps, 0).Run(context.Background(), out))
	close(out)

	var got []types.Snapshot
	for s := range out {
		got = append(got, s)
	}
	assert.Equal(t, snaps, got)
}

func TestReplayHonorsCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	out := make(chan types.Snapshot)

	err := NewReplay(Synthetic("BTCUSDT", 100, 3, t0, time.Second), time.Millisecond).Run(ctx, out)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSyntheticIsStrictlyOrdered(t *testing.T) {
	snaps := Synthetic("ETHUSDT", 50, 20, t0, time.Second)
	require.Len(t, snaps, 20)
	for i := 1; i < len(snaps); i++ {
		assert.True(t, snaps[i].Timestamp.After(snaps[i-1].Timestamp))
		assert.Positive(t, snaps[i].LastTradePrice)
		assert.Less(t, snaps[i].Bid, snaps[i].Ask)
	}
	assert.Greater(t, snaps[19].LastTradePrice, snaps[0].LastTradePrice)
}

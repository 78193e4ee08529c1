package market

import (
	"errors"
	"fmt"
	"iter"
	"sort"
	"sync"
	"time"

	"aitradebot/internal/types"
)

// DefaultRetention is how many snapshots are kept per symbol.
const DefaultRetention = 500

var ErrStaleData = errors.New("stale market data")

// StaleDataError reports a snapshot that is not newer than the last accepted one.
type StaleDataError struct {
	Symbol   string
	Incoming time.Time
	Last     time.Time
}

func (e *StaleDataError) Error() string {
	return fmt.Sprintf("stale snapshot for %s: %s is not after %s",
		e.Symbol, e.Incoming.Format(time.RFC3339Nano), e.Last.Format(time.RFC3339Nano))
}

func (e *StaleDataError) Unwrap() error { return ErrStaleData }

// Buffer holds recent snapshots per symbol. Each symbol has its own lock so
// ingestion for one symbol never waits on readers of another.
type Buffer struct {
	retention int

	mu    sync.RWMutex
	rings map[string]*ring
}

// ring is a fixed-capacity circular buffer of snapshots for one symbol.
type ring struct {
	mu   sync.RWMutex
	data []types.Snapshot
	head int // next write position
	size int
	last time.Time
}

func NewBuffer(retention int) *Buffer {
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &Buffer{
		retention: retention,
		rings:     make(map[string]*ring),
	}
}

func (b *Buffer) ringFor(symbol string, create bool) *ring {
	b.mu.RLock()
	r, ok := b.rings[symbol]
	b.mu.RUnlock()
	if ok || !create {
		return r
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if r, ok = b.rings[symbol]; ok {
		return r
	}
	r = &ring{data: make([]types.Snapshot, b.retention)}
	b.rings[symbol] = r
	return r
}

// Push stores s, evicting the oldest snapshot once retention is reached.
func (b *Buffer) Push(s types.Snapshot) error {
	if s.Symbol == "" {
		return errors.New("snapshot without symbol")
	}
	r := b.ringFor(s.Symbol, true)

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.size > 0 && !s.Timestamp.After(r.last) {
		return &StaleDataError{Symbol: s.Symbol, Incoming: s.Timestamp, Last: r.last}
	}

	r.data[r.head] = s
	r.head = (r.head + 1) % len(r.data)
	if r.size < len(r.data) {
		r.size++
	}
	r.last = s.Timestamp
	return nil
}

// Recent returns the last window snapshots in chronological order. The
// sequence is eager: the window is copied under the ring's read lock when
// Recent is called, so later pushes never show up in it and ranging over it
// again replays the same snapshots.
func (b *Buffer) Recent(symbol string, window int) iter.Seq[types.Snapshot] {
	var out []types.Snapshot
	if r := b.ringFor(symbol, false); r != nil && window > 0 {
		out = r.tail(window)
	}
	return func(yield func(types.Snapshot) bool) {
		for _, s := range out {
			if !yield(s) {
				return
			}
		}
	}
}

func (r *ring) tail(n int) []types.Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if n > r.size {
		n = r.size
	}
	out := make([]types.Snapshot, n)
	start := r.head - n
	if start < 0 {
		start += len(r.data)
	}
	for i := 0; i < n; i++ {
		out[i] = r.data[(start+i)%len(r.data)]
	}
	return out
}

// Latest returns the newest snapshot for symbol.
func (b *Buffer) Latest(symbol string) (types.Snapshot, bool) {
	r := b.ringFor(symbol, false)
	if r == nil {
		return types.Snapshot{}, false
	}
	last := r.tail(1)
	if len(last) == 0 {
		return types.Snapshot{}, false
	}
	return last[0], true
}

// Len reports how many snapshots are held for symbol.
func (b *Buffer) Len(symbol string) int {
	r := b.ringFor(symbol, false)
	if r == nil {
		return 0
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.size
}

func (b *Buffer) Symbols() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]string, 0, len(b.rings))
	for s := range b.rings {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// Prices extracts last trade prices from a snapshot sequence.
func Prices(seq iter.Seq[types.Snapshot]) []float64 {
	var out []float64
	for s := range seq {
		out = append(out, s.LastTradePrice)
	}
	return out
}

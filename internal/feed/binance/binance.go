// Package binance streams 24h ticker updates from Binance public websockets.
package binance

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"aitradebot/internal/interfaces"
	"aitradebot/internal/logger"
	"aitradebot/internal/store"
	"aitradebot/internal/types"

	"github.com/gorilla/websocket"
)

const (
	defaultMinBackoff = time.Second
	defaultMaxBackoff = 30 * time.Second
	readTimeout       = 30 * time.Second
	pingInterval      = 15 * time.Second
)

// envelope is the combined-stream wrapper: {"stream":"btcusdt@ticker","data":{...}}.
type envelope struct {
	Stream string `json:"stream"`
	Data   ticker `json:"data"`
}

type ticker struct {
	EventType string `json:"e"`
	EventTime int64  `json:"E"`
	Symbol    string `json:"s"`
	Last      string `json:"c"`
	Bid       string `json:"b"`
	Ask       string `json:"a"`
	Volume    string `json:"v"`
}

type Feed struct {
	baseURL    string
	symbols    []string
	dialer     *websocket.Dialer
	minBackoff time.Duration
	maxBackoff time.Duration
}

var _ interfaces.Feed = (*Feed)(nil)

type Option func(*Feed)

func WithBackoff(lo, hi time.Duration) Option {
	return func(f *Feed) {
		f.minBackoff, f.maxBackoff = lo, hi
	}
}

func New(cfg *store.Config, opts ...Option) *Feed {
	f := &Feed{
		baseURL:    strings.TrimSuffix(cfg.Feed.URL, "/"),
		symbols:    cfg.Symbols,
		dialer:     &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		minBackoff: defaultMinBackoff,
		maxBackoff: defaultMaxBackoff,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// StreamURL is the combined-stream URL for every configured symbol.
func (f *Feed) StreamURL() string {
	streams := make([]string, len(f.symbols))
	for i, s := range f.symbols {
		streams[i] = strings.ToLower(s) + "@ticker"
	}
	return f.baseURL + "/stream?streams=" + strings.Join(streams, "/")
}

// Run reconnects with exponential backoff until ctx is done.
func (f *Feed) Run(ctx context.Context, out chan<- types.Snapshot) error {
	if len(f.symbols) == 0 {
		return errors.New("binance feed requires at least one symbol")
	}
	url := f.StreamURL()
	backoff := f.minBackoff

	for {
		connected, err := f.consume(ctx, url, out)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if connected {
			backoff = f.minBackoff
		}
		logger.Warn(ctx, "Binance feed disconnected, retrying",
			"error", err,
			"backoff", backoff.String(),
		)
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return ctx.Err()
		}
		backoff = min(backoff*2, f.maxBackoff)
	}
}

// consume reads one connection until it fails. connected reports whether the
// dial succeeded, so a healthy session resets the backoff.
func (f *Feed) consume(ctx context.Context, url string, out chan<- types.Snapshot) (connected bool, err error) {
	conn, _, err := f.dialer.DialContext(ctx, url, nil)
	if err != nil {
		return false, err
	}
	defer conn.Close()
	logger.Info(ctx, "Binance feed connected", "symbols", f.symbols)

	conn.SetReadLimit(1 << 20)
	_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(readTimeout))
	})

	pingCtx, stopPing := context.WithCancel(ctx)
	defer stopPing()
	go func() {
		t := time.NewTicker(pingInterval)
		defer t.Stop()
		for {
			select {
			case <-t.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
					return
				}
			case <-pingCtx.Done():
				return
			}
		}
	}()

	// Unblock ReadMessage on cancellation.
	go func() {
		<-pingCtx.Done()
		_ = conn.Close()
	}()

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return true, err
		}
		_ = conn.SetReadDeadline(time.Now().Add(readTimeout))

		snap, err := Parse(msg)
		if err != nil {
			logger.Debug(ctx, "Skipping binance message", "error", err)
			continue
		}
		select {
		case out <- snap:
		case <-ctx.Done():
			return true, ctx.Err()
		}
	}
}

// Parse converts one combined-stream ticker message into a Snapshot.
func Parse(msg []byte) (types.Snapshot, error) {
	var env envelope
	if err := json.Unmarshal(msg, &env); err != nil {
		return types.Snapshot{}, fmt.Errorf("decode ticker: %w", err)
	}
	t := env.Data
	if t.EventType != "24hrTicker" {
		return types.Snapshot{}, fmt.Errorf("unexpected event %q on %s", t.EventType, env.Stream)
	}
	last, err := strconv.ParseFloat(t.Last, 64)
	if err != nil || last <= 0 {
		return types.Snapshot{}, fmt.Errorf("invalid last price %q", t.Last)
	}
	s := types.Snapshot{
		Symbol:         strings.ToUpper(t.Symbol),
		Timestamp:      time.UnixMilli(t.EventTime).UTC(),
		LastTradePrice: last,
	}
	// Bid, ask and volume are optional; a bad value leaves the field zero.
	s.Bid, _ = strconv.ParseFloat(t.Bid, 64)
	s.Ask, _ = strconv.ParseFloat(t.Ask, 64)
	s.Volume, _ = strconv.ParseFloat(t.Volume, 64)
	return s, nil
}

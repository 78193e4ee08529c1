package monitor

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"aitradebot/internal/logger"
	"aitradebot/internal/store"
	"aitradebot/internal/tracker"
)

// Summarizer is the read model over positions and capital.
type Summarizer interface {
	Snapshot() tracker.Summary
}

// Halts reports symbols stopped by a ledger invariant breach.
type Halts interface {
	Halted(symbol string) bool
}

// Server is the read-only monitoring API. Handlers never mutate agent state.
type Server struct {
	httpServer *http.Server
	mode       string
	symbols    []string
	recorder   *Recorder
	summary    Summarizer
	halts      Halts
	startedAt  time.Time
}

func NewServer(cfg *store.Config, rec *Recorder, summary Summarizer, halts Halts, m *Metrics) *Server {
	s := &Server{
		mode:      cfg.Mode,
		symbols:   cfg.Symbols,
		recorder:  rec,
		summary:   summary,
		halts:     halts,
		startedAt: time.Now(),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/status", s.handleStatus)
	mux.HandleFunc("GET /api/positions", s.handlePositions)
	mux.HandleFunc("GET /api/pnl", s.handlePnL)
	mux.HandleFunc("GET /api/cycles", s.handleCycles)
	if m != nil {
		mux.Handle("GET /metrics", m.Handler())
	}

	s.httpServer = &http.Server{
		Addr:              cfg.Monitor.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

func (s *Server) Handler() http.Handler { return s.httpServer.Handler }

// Start listens in the background; Shutdown stops it.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return err
	}
	logger.Info(ctx, "Monitor server listening", "addr", ln.Addr().String())
	go func() {
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.ErrorWithErr(ctx, "Monitor server stopped", err)
		}
	}()
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

type symbolStatus struct {
	Symbol string `json:"symbol"`
	Halted bool   `json:"halted"`
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	syms := make([]symbolStatus, 0, len(s.symbols))
	for _, sym := range s.symbols {
		st := symbolStatus{Symbol: sym}
		if s.halts != nil {
			st.Halted = s.halts.Halted(sym)
		}
		syms = append(syms, st)
	}
	sum := s.summary.Snapshot()
	writeJSON(w, map[string]any{
		"mode":     s.mode,
		"uptime_s": time.Since(s.startedAt).Seconds(),
		"symbols":  syms,
		"stats":    s.recorder.Stats(),
		"capital":  sum.Capital,
	})
}

func (s *Server) handlePositions(w http.ResponseWriter, _ *http.Request) {
	sum := s.summary.Snapshot()
	writeJSON(w, map[string]any{"positions": sum.Positions})
}

func (s *Server) handlePnL(w http.ResponseWriter, _ *http.Request) {
	sum := s.summary.Snapshot()
	writeJSON(w, map[string]any{
		"realized_pnl":       sum.Realized,
		"realized_today_pnl": sum.RealizedToday,
		"unrealized_pnl":     sum.Unrealized,
		"total_pnl":          sum.Realized.Add(sum.Unrealized),
		"equity":             sum.Equity,
	})
}

// GET /api/cycles?limit=20
func (s *Server) handleCycles(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			http.Error(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		limit = n
	}
	writeJSON(w, map[string]any{"cycles": s.recorder.Cycles(limit)})
}

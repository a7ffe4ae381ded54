package transport

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"tickscalper/internal/decision"
	"tickscalper/internal/market"
	"tickscalper/internal/observ"
	"tickscalper/internal/paper"
	"tickscalper/internal/store"
)

// Core is the dispatcher surface the HTTP layer reads from and trades through.
type Core interface {
	Stats() map[string]market.Metrics
	Signals() map[string]decision.Reason
	Positions() []paper.Position
	Summary() map[string]any
	OpenManual(symbol string, side decision.Side, qty, stop, take float64, leverage int, marginUSD float64) (*paper.Position, error)
	CloseManual(symbol string) (*paper.ClosedPosition, error)
}

// History serves the closed-position query; reads go straight to the store,
// not through the dispatcher lock.
type History interface {
	RecentClosedPositions(limit int) ([]store.ClosedPositionRow, error)
	ClearClosedPositions() error
	RecentSignalSamples(symbol string, lookback time.Duration, limit int) ([]store.SignalSampleRow, error)
}

// Server is the HTTP control surface.
type Server struct {
	core    Core
	history History
	srv     *http.Server
}

func NewServer(addr string, core Core, history History) *Server {
	s := &Server{core: core, history: history}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealthz)
	mux.HandleFunc("/stats", s.handleStats)
	mux.HandleFunc("/signals", s.handleSignals)
	mux.HandleFunc("/positions", s.handlePositions)
	mux.HandleFunc("/positions/open", s.handleOpen)
	mux.HandleFunc("/positions/close", s.handleClose)
	mux.HandleFunc("/history", s.handleHistory)
	mux.HandleFunc("/history/clear", s.handleHistoryClear)
	mux.HandleFunc("/signals/history", s.handleSignalHistory)
	mux.Handle("/metrics", observ.Handler())

	s.srv = &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	return s
}

// ListenAndServe blocks until the listener fails or Shutdown is called.
func (s *Server) ListenAndServe() error {
	observ.Log("http_listening", map[string]any{"addr": s.srv.Addr})
	err := s.srv.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeOK(w http.ResponseWriter, v any) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "data": v})
}

// writeErr maps domain errors to 4xx and everything else to 500.
func writeErr(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, paper.ErrPositionExists),
		errors.Is(err, paper.ErrMaxPositions),
		errors.Is(err, paper.ErrNoPosition),
		errors.Is(err, paper.ErrInvalidQuantity),
		errors.Is(err, paper.ErrInvalidSide),
		errors.Is(err, paper.ErrNoMarketData):
		status = http.StatusBadRequest
	}
	writeJSON(w, status, map[string]any{"ok": false, "error": err.Error()})
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeOK(w, s.core.Summary())
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	writeOK(w, s.core.Stats())
}

func (s *Server) handleSignals(w http.ResponseWriter, r *http.Request) {
	writeOK(w, s.core.Signals())
}

func (s *Server) handlePositions(w http.ResponseWriter, r *http.Request) {
	writeOK(w, s.core.Positions())
}

type openRequest struct {
	Symbol     string  `json:"symbol"`
	Side       string  `json:"side"`
	Qty        float64 `json:"qty"`
	Stop       float64 `json:"stop"`
	TakeProfit float64 `json:"take_profit"`
	Leverage   int     `json:"leverage"`
	MarginUSD  float64 `json:"margin_usd"`
}

func (s *Server) handleOpen(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]any{"ok": false, "error": "POST required"})
		return
	}
	var req openRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"ok": false, "error": "invalid body: " + err.Error()})
		return
	}
	if req.Symbol == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"ok": false, "error": "symbol required"})
		return
	}

	var side decision.Side
	switch strings.ToLower(req.Side) {
	case "long", "buy":
		side = decision.Long
	case "short", "sell":
		side = decision.Short
	default:
		writeErr(w, paper.ErrInvalidSide)
		return
	}

	pos, err := s.core.OpenManual(req.Symbol, side, req.Qty, req.Stop, req.TakeProfit, req.Leverage, req.MarginUSD)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeOK(w, pos)
}

type closeRequest struct {
	Symbol string `json:"symbol"`
}

func (s *Server) handleClose(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]any{"ok": false, "error": "POST required"})
		return
	}
	var req closeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"ok": false, "error": "invalid body: " + err.Error()})
		return
	}
	if req.Symbol == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"ok": false, "error": "symbol required"})
		return
	}

	rec, err := s.core.CloseManual(req.Symbol)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeOK(w, rec)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if q := r.URL.Query().Get("limit"); q != "" {
		n, err := strconv.Atoi(q)
		if err != nil || n <= 0 {
			writeJSON(w, http.StatusBadRequest, map[string]any{"ok": false, "error": "limit must be a positive integer"})
			return
		}
		if n > 1000 {
			n = 1000
		}
		limit = n
	}
	rows, err := s.history.RecentClosedPositions(limit)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeOK(w, rows)
}

func (s *Server) handleHistoryClear(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]any{"ok": false, "error": "POST required"})
		return
	}
	if err := s.history.ClearClosedPositions(); err != nil {
		writeErr(w, err)
		return
	}
	writeOK(w, map[string]any{"cleared": true})
}

func (s *Server) handleSignalHistory(w http.ResponseWriter, r *http.Request) {
	hours := 48
	if q := r.URL.Query().Get("hours"); q != "" {
		n, err := strconv.Atoi(q)
		if err != nil || n <= 0 {
			writeJSON(w, http.StatusBadRequest, map[string]any{"ok": false, "error": "hours must be a positive integer"})
			return
		}
		hours = n
	}
	limit := 5000
	if q := r.URL.Query().Get("limit"); q != "" {
		n, err := strconv.Atoi(q)
		if err != nil || n <= 0 {
			writeJSON(w, http.StatusBadRequest, map[string]any{"ok": false, "error": "limit must be a positive integer"})
			return
		}
		if n > 5000 {
			n = 5000
		}
		limit = n
	}
	symbol := r.URL.Query().Get("symbol")

	rows, err := s.history.RecentSignalSamples(symbol, time.Duration(hours)*time.Hour, limit)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeOK(w, rows)
}

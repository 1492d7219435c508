// Package server exposes the trading venue over HTTP: coin creation, buy and
// sell, the read surface the UI consumes, and the operational endpoints.
package server

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"os"
	"time"

	"curve-exchange/internal/engine"
	"curve-exchange/internal/feed"
	"curve-exchange/internal/observability"
	"curve-exchange/internal/storage"
)

// Server holds the HTTP surface over the engine and the read stores.
type Server struct {
	engine  *engine.Engine
	coins   storage.CoinStore
	holders storage.HolderStore
	trades  storage.TradeStore
	ticks   storage.TradeTickStore // optional, enables 24h volume
	hub     *feed.Hub              // optional, enables /ws/trades

	logger    *log.Logger
	startedAt time.Time
}

// Options for creating a Server.
type Options struct {
	Engine      *engine.Engine
	CoinStore   storage.CoinStore
	HolderStore storage.HolderStore
	TradeStore  storage.TradeStore
	TickStore   storage.TradeTickStore
	Hub         *feed.Hub
	Logger      *log.Logger
}

// New creates a new Server.
func New(opts Options) (*Server, error) {
	if opts.Engine == nil || opts.CoinStore == nil || opts.HolderStore == nil || opts.TradeStore == nil {
		return nil, errors.New("server requires an engine and coin, holder, and trade stores")
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lshortfile)
	}

	return &Server{
		engine:    opts.Engine,
		coins:     opts.CoinStore,
		holders:   opts.HolderStore,
		trades:    opts.TradeStore,
		ticks:     opts.TickStore,
		hub:       opts.Hub,
		logger:    logger,
		startedAt: time.Now(),
	}, nil
}

// Handler returns the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /coins", s.handleCreateCoin)
	mux.HandleFunc("GET /coins", s.handleListCoins)
	mux.HandleFunc("GET /coins/{id}", s.handleGetCoin)
	mux.HandleFunc("POST /coins/{id}/buy", s.handleBuy)
	mux.HandleFunc("POST /coins/{id}/sell", s.handleSell)
	mux.HandleFunc("POST /coins/{id}/deactivate", s.handleDeactivateCoin)
	mux.HandleFunc("GET /coins/{id}/trades", s.handleCoinTrades)
	mux.HandleFunc("GET /coins/{id}/holders", s.handleCoinHolders)
	mux.HandleFunc("GET /users/{id}/trades", s.handleUserTrades)

	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /status", s.handleStatus)
	mux.Handle("GET /metrics", observability.Handler())

	if s.hub != nil {
		mux.Handle("GET /ws/trades", s.hub)
	}

	return mux
}

// writeJSON encodes v as the response body.
func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Printf("encode response: %v", err)
	}
}

// writeError maps an engine or storage error to an HTTP status with a
// {"error": ...} body.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	s.writeJSON(w, statusForError(err), map[string]string{"error": err.Error()})
}

func statusForError(err error) int {
	switch {
	case errors.Is(err, engine.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, engine.ErrNotFound), errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, engine.ErrInvalidAmount), errors.Is(err, engine.ErrInvalidParams):
		return http.StatusBadRequest
	case errors.Is(err, engine.ErrInsufficientBalance),
		errors.Is(err, engine.ErrCoinInactive),
		errors.Is(err, engine.ErrCoinGraduated),
		errors.Is(err, engine.ErrDuplicateCoin):
		return http.StatusConflict
	case errors.Is(err, engine.ErrApplyFailure):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

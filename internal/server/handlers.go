package server

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"curve-exchange/internal/domain"
	"curve-exchange/internal/engine"
)

// coinResponse is the wire shape of one coin. Monetary fields stay decimal
// so they round-trip without precision loss.
type coinResponse struct {
	CoinID              string          `json:"coin_id"`
	CreatorID           string          `json:"creator_id"`
	Symbol              string          `json:"symbol"`
	Name                string          `json:"name"`
	InitialPrice        decimal.Decimal `json:"initial_price"`
	PriceIncrement      decimal.Decimal `json:"price_increment"`
	TotalSupply         int64           `json:"total_supply"`
	GraduationThreshold decimal.Decimal `json:"graduation_threshold"`
	TokensSold          int64           `json:"tokens_sold"`
	CurrentPrice        decimal.Decimal `json:"current_price"`
	MarketCap           decimal.Decimal `json:"market_cap"`
	LiquidityRaised     decimal.Decimal `json:"liquidity_raised"`
	HolderCount         int             `json:"holder_count"`
	IsActive            bool            `json:"is_active"`
	Graduated           bool            `json:"graduated"`
	CreatedAt           int64           `json:"created_at"`
	UpdatedAt           int64           `json:"updated_at"`

	// Volume24h is filled on the detail endpoint when tick storage is wired.
	Volume24h *decimal.Decimal `json:"volume_24h,omitempty"`
}

func toCoinResponse(c *domain.Coin) coinResponse {
	return coinResponse{
		CoinID:              c.CoinID,
		CreatorID:           c.CreatorID,
		Symbol:              c.Symbol,
		Name:                c.Name,
		InitialPrice:        c.InitialPrice,
		PriceIncrement:      c.PriceIncrement,
		TotalSupply:         c.TotalSupply,
		GraduationThreshold: c.GraduationThreshold,
		TokensSold:          c.TokensSold,
		CurrentPrice:        c.CurrentPrice,
		MarketCap:           c.MarketCap,
		LiquidityRaised:     c.LiquidityRaised,
		HolderCount:         c.HolderCount,
		IsActive:            c.IsActive,
		Graduated:           c.Graduated,
		CreatedAt:           c.CreatedAt,
		UpdatedAt:           c.UpdatedAt,
	}
}

type holderResponse struct {
	CoinID         string          `json:"coin_id"`
	UserID         string          `json:"user_id"`
	TokenBalance   int64           `json:"token_balance"`
	TotalBought    int64           `json:"total_bought"`
	TotalSold      int64           `json:"total_sold"`
	AvgCost        decimal.Decimal `json:"avg_cost"`
	RealizedProfit decimal.Decimal `json:"realized_profit"`
}

type tradeResponse struct {
	Signature     string          `json:"signature"`
	CoinID        string          `json:"coin_id"`
	UserID        string          `json:"user_id"`
	Side          string          `json:"side"`
	TokenAmount   int64           `json:"token_amount"`
	QuoteAmount   decimal.Decimal `json:"quote_amount"`
	PricePerToken decimal.Decimal `json:"price_per_token"`
	WalletAddress string          `json:"wallet_address,omitempty"`
	Status        string          `json:"status"`
	ExecutedAt    int64           `json:"executed_at"`
}

func toTradeResponses(trades []*domain.Trade) []tradeResponse {
	out := make([]tradeResponse, 0, len(trades))
	for _, t := range trades {
		out = append(out, tradeResponse{
			Signature:     t.Signature,
			CoinID:        t.CoinID,
			UserID:        t.UserID,
			Side:          t.Side,
			TokenAmount:   t.TokenAmount,
			QuoteAmount:   t.QuoteAmount,
			PricePerToken: t.PricePerToken,
			WalletAddress: t.WalletAddress,
			Status:        t.Status,
			ExecutedAt:    t.ExecutedAt,
		})
	}
	return out
}

type createCoinRequest struct {
	CreatorID string `json:"creator_id"`
	Symbol    string `json:"symbol"`
	Name      string `json:"name"`
}

func (s *Server) handleCreateCoin(w http.ResponseWriter, r *http.Request) {
	var req createCoinRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	coin, err := s.engine.CreateCoin(r.Context(), engine.CreateCoinParams{
		CreatorID: req.CreatorID,
		Symbol:    req.Symbol,
		Name:      req.Name,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJSON(w, http.StatusCreated, toCoinResponse(coin))
}

func (s *Server) handleListCoins(w http.ResponseWriter, r *http.Request) {
	var (
		coins []*domain.Coin
		err   error
	)
	if creator := r.URL.Query().Get("creator"); creator != "" {
		coins, err = s.coins.ListByCreator(r.Context(), creator)
	} else {
		coins, err = s.coins.ListActive(r.Context())
	}
	if err != nil {
		s.logger.Printf("list coins: %v", err)
		s.writeError(w, err)
		return
	}

	out := make([]coinResponse, 0, len(coins))
	for _, c := range coins {
		out = append(out, toCoinResponse(c))
	}
	s.writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetCoin(w http.ResponseWriter, r *http.Request) {
	coin, err := s.coins.GetByID(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, err)
		return
	}

	resp := toCoinResponse(coin)
	if s.ticks != nil {
		volume, err := s.ticks.Volume24h(r.Context(), coin.CoinID, time.Now().UnixMilli())
		if err != nil {
			// Analytics store outage never blocks the detail view.
			s.logger.Printf("24h volume for %s: %v", coin.CoinID, err)
		} else {
			resp.Volume24h = &volume
		}
	}

	s.writeJSON(w, http.StatusOK, resp)
}

type tradeRequest struct {
	UserID        string `json:"user_id"`
	TokenAmount   int64  `json:"token_amount"`
	WalletAddress string `json:"wallet_address"`
}

func (s *Server) handleBuy(w http.ResponseWriter, r *http.Request) {
	var req tradeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	result, err := s.engine.Buy(r.Context(), r.PathValue("id"), req.UserID, req.TokenAmount)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleSell(w http.ResponseWriter, r *http.Request) {
	var req tradeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	result, err := s.engine.Sell(r.Context(), r.PathValue("id"), req.UserID, req.TokenAmount, req.WalletAddress)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, result)
}

type deactivateRequest struct {
	UserID string `json:"user_id"`
}

func (s *Server) handleDeactivateCoin(w http.ResponseWriter, r *http.Request) {
	var req deactivateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	if err := s.engine.DeactivateCoin(r.Context(), r.PathValue("id"), req.UserID); err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]string{"status": "deactivated"})
}

func (s *Server) handleCoinTrades(w http.ResponseWriter, r *http.Request) {
	trades, err := s.trades.ListByCoin(r.Context(), r.PathValue("id"), parseLimit(r))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, toTradeResponses(trades))
}

func (s *Server) handleCoinHolders(w http.ResponseWriter, r *http.Request) {
	holders, err := s.holders.ListByCoin(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, err)
		return
	}

	out := make([]holderResponse, 0, len(holders))
	for _, h := range holders {
		out = append(out, holderResponse{
			CoinID:         h.CoinID,
			UserID:         h.UserID,
			TokenBalance:   h.TokenBalance,
			TotalBought:    h.TotalBought,
			TotalSold:      h.TotalSold,
			AvgCost:        h.AvgCost,
			RealizedProfit: h.RealizedProfit,
		})
	}
	s.writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleUserTrades(w http.ResponseWriter, r *http.Request) {
	trades, err := s.trades.ListByUser(r.Context(), r.PathValue("id"), parseLimit(r))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, toTradeResponses(trades))
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

// statusResponse is the JSON response for /status.
type statusResponse struct {
	Status      string       `json:"status"`
	Uptime      string       `json:"uptime"`
	Engine      engine.Stats `json:"engine"`
	FeedClients int          `json:"feed_clients"`
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	resp := statusResponse{
		Status: "running",
		Uptime: time.Since(s.startedAt).String(),
		Engine: s.engine.Stats(),
	}
	if s.hub != nil {
		resp.FeedClients = s.hub.ClientCount()
	}

	s.writeJSON(w, http.StatusOK, resp)
}

// parseLimit reads the optional ?limit= query parameter.
func parseLimit(r *http.Request) int {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return 0
	}
	limit, err := strconv.Atoi(raw)
	if err != nil {
		return 0
	}
	return limit
}

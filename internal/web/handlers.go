package web

import (
	"encoding/json"
	"net/http"

	"github.com/smalltimedevs/aramid-trader/internal/domain"
	"github.com/smalltimedevs/aramid-trader/internal/usecase"
	"go.uber.org/zap"
)

const historyLimit = 100

func (s *Server) handleActiveTrades(w http.ResponseWriter, r *http.Request) {
	trades, err := s.trades.ListActive(r.Context())
	if err != nil {
		s.logger.Error("Failed to list active trades", zap.Error(err))
		http.Error(w, "Failed to list active trades", http.StatusInternalServerError)
		return
	}
	writeJSON(w, s.logger, trades)
}

func (s *Server) handleTradeHistory(w http.ResponseWriter, r *http.Request) {
	trades, err := s.trades.ListClosed(r.Context(), historyLimit)
	if err != nil {
		s.logger.Error("Failed to list closed trades", zap.Error(err))
		http.Error(w, "Failed to list closed trades", http.StatusInternalServerError)
		return
	}
	writeJSON(w, s.logger, trades)
}

type buyRequestBody struct {
	TokenAddress  string  `json:"tokenAddress"`
	TokenName     string  `json:"tokenName"`
	Amount        float64 `json:"amount"`
	TargetGainPct float64 `json:"targetGainPct"`
	TargetLossPct float64 `json:"targetLossPct"`
	TradeType     string  `json:"tradeType"`
}

func (s *Server) handleBuy(w http.ResponseWriter, r *http.Request) {
	var body buyRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if body.TokenAddress == "" {
		http.Error(w, "tokenAddress is required", http.StatusBadRequest)
		return
	}

	trade, err := s.buyer.Execute(r.Context(), usecase.BuyRequest{
		TokenAddress:  body.TokenAddress,
		TokenName:     body.TokenName,
		Amount:        body.Amount,
		TargetGainPct: body.TargetGainPct,
		TargetLossPct: body.TargetLossPct,
		TradeType:     domain.TradeType(body.TradeType),
	})
	if err != nil {
		s.logger.Error("Buy failed", zap.String("token", body.TokenAddress), zap.Error(err))
		http.Error(w, "Buy failed: "+err.Error(), http.StatusBadGateway)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	if err := json.NewEncoder(w).Encode(trade); err != nil {
		s.logger.Error("Failed to encode response", zap.Error(err))
	}
}

func (s *Server) handleManualClose(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		http.Error(w, "trade id is required", http.StatusBadRequest)
		return
	}

	if err := s.seller.Close(r.Context(), id, 0, "manual"); err != nil {
		s.logger.Error("Manual close failed", zap.String("trade_id", id), zap.Error(err))
		http.Error(w, "Close failed: "+err.Error(), http.StatusBadGateway)
		return
	}

	writeJSON(w, s.logger, map[string]string{"status": "closed", "id": id})
}

func (s *Server) handleMonitors(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.logger, s.monitors.Running())
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.logger, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, logger *zap.Logger, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("Failed to encode response", zap.Error(err))
	}
}

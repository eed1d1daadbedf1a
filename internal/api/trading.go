package api

import (
	"net/http"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"alphaflow-backend/internal/auth"
	"alphaflow-backend/internal/store"
	"alphaflow-backend/internal/trading"
)

func (s *Server) handleBackendAddress(w http.ResponseWriter, r *http.Request) {
	addr, err := s.trading.BackendAddress()
	if err != nil {
		s.writeTradingError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"backendAddress": addr})
}

func (s *Server) handleDelegationStatus(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.UserFromContext(r.Context())
	if !ok {
		s.writeError(w, http.StatusUnauthorized, "Authorization required")
		return
	}
	status, err := s.trading.Status(r.Context(), user.WalletAddress)
	if err != nil {
		s.writeTradingError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, status)
}

func (s *Server) handleDelegationBuild(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.UserFromContext(r.Context())
	if !ok {
		s.writeError(w, http.StatusUnauthorized, "Authorization required")
		return
	}
	var body struct {
		SubaccountAddress string `json:"subaccountAddress"`
	}
	if !s.decodeBody(w, r, &body) {
		return
	}
	tx, err := s.trading.BuildDelegationTransaction(r.Context(), user.WalletAddress, body.SubaccountAddress)
	if err != nil {
		s.writeTradingError(w, err)
		return
	}
	s.metrics.DelegationsBuilt.Inc()
	s.writeJSON(w, http.StatusOK, tx)
}

type orderBody struct {
	Market        string           `json:"market"`
	Side          string           `json:"side"`
	OrderType     string           `json:"orderType"`
	Size          decimal.Decimal  `json:"size"`
	Price         *decimal.Decimal `json:"price"`
	TpPrice       *decimal.Decimal `json:"tpPrice"`
	SlPrice       *decimal.Decimal `json:"slPrice"`
	ClientOrderID string           `json:"clientOrderId"`
	ReduceOnly    bool             `json:"reduceOnly"`
}

func (s *Server) orderRequest(w http.ResponseWriter, r *http.Request) (trading.OrderRequest, bool) {
	var body orderBody
	if !s.decodeBody(w, r, &body) {
		return trading.OrderRequest{}, false
	}
	if body.Market == "" {
		s.writeError(w, http.StatusBadRequest, "Market is required")
		return trading.OrderRequest{}, false
	}
	side := strings.ToLower(body.Side)
	if side != "buy" && side != "sell" {
		s.writeError(w, http.StatusBadRequest, `Side must be "buy" or "sell"`)
		return trading.OrderRequest{}, false
	}
	orderType := strings.ToLower(body.OrderType)
	if orderType == "" {
		orderType = "market"
	}
	if orderType != "market" && orderType != "limit" {
		s.writeError(w, http.StatusBadRequest, `Order type must be "market" or "limit"`)
		return trading.OrderRequest{}, false
	}
	if !body.Size.IsPositive() {
		s.writeError(w, http.StatusBadRequest, "Size must be greater than zero")
		return trading.OrderRequest{}, false
	}
	return trading.OrderRequest{
		Market:        body.Market,
		Side:          side,
		OrderType:     orderType,
		Size:          body.Size,
		Price:         body.Price,
		TpPrice:       body.TpPrice,
		SlPrice:       body.SlPrice,
		ClientOrderID: body.ClientOrderID,
		ReduceOnly:    body.ReduceOnly,
	}, true
}

func (s *Server) handleOrderBuild(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.UserFromContext(r.Context())
	if !ok {
		s.writeError(w, http.StatusUnauthorized, "Authorization required")
		return
	}
	req, ok := s.orderRequest(w, r)
	if !ok {
		return
	}
	tx, err := s.trading.BuildOrderTransaction(r.Context(), user.WalletAddress, req)
	if err != nil {
		s.writeTradingError(w, err)
		return
	}
	s.metrics.OrdersBuilt.Inc()
	s.writeJSON(w, http.StatusOK, tx)
}

// handleExecute submits a custody-signed order on the user's behalf and
// records it in trade history. A history write failure never fails the
// trade.
func (s *Server) handleExecute(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.UserFromContext(r.Context())
	if !ok {
		s.writeError(w, http.StatusUnauthorized, "Authorization required")
		return
	}
	req, ok := s.orderRequest(w, r)
	if !ok {
		return
	}
	result, err := s.trading.PlaceOrder(r.Context(), user.WalletAddress, req)
	if err != nil {
		s.metrics.OrdersFailed.Inc()
		s.writeTradingError(w, err)
		return
	}
	s.metrics.OrdersExecuted.Inc()
	s.recordTrade(r, user.ID, req, result)

	s.writeJSON(w, http.StatusOK, map[string]any{
		"success":         true,
		"transactionHash": result.TransactionHash,
		"orderId":         result.OrderID,
		"message":         "Trade executed successfully",
	})
}

func (s *Server) recordTrade(r *http.Request, userID string, req trading.OrderRequest, result *trading.ExecutionResult) {
	if s.trades == nil {
		return
	}
	size, _ := req.Size.Float64()
	price, _ := result.Price.Float64()
	orderType := req.OrderType
	if orderType == "" {
		orderType = "limit"
	}
	hash := result.TransactionHash
	reasoning := "AI Trading Assistant"
	confidence := 0.75
	row := store.Trade{
		UserID:            userID,
		TradeType:         "ai",
		Side:              strings.ToLower(req.Side),
		Asset:             result.Market.MarketName,
		Amount:            size,
		Price:             price,
		TotalValue:        size * price,
		OrderType:         orderType,
		Status:            "submitted",
		DecibelTxHash:     &hash,
		AIReasoning:       &reasoning,
		AIConfidenceScore: &confidence,
	}
	if _, err := s.trades.InsertTrade(r.Context(), row); err != nil {
		s.log.Warn("trade history write failed",
			zap.String("user_id", userID),
			zap.String("tx_hash", hash),
			zap.Error(err))
	}
}

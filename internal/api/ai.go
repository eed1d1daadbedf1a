package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"regexp"
	"time"

	"go.uber.org/zap"

	"alphaflow-backend/internal/ai"
	"alphaflow-backend/internal/auth"
	"alphaflow-backend/internal/decibel"
	"alphaflow-backend/internal/store"
)

// Balance questions skip the full market-data aggregation: the answer
// only needs account overviews, and the aggregation costs dozens of
// upstream calls.
var balanceQuery = regexp.MustCompile(`(?i)balance|funds|money|usdc|equity|available|how much`)

type chatBody struct {
	Message string `json:"message"`
	Market  string `json:"market"`
}

type chatMetadata struct {
	Sentiment      any            `json:"sentiment,omitempty"`
	DataPoints     chatDataPoints `json:"dataPoints"`
	ResponseTimeMS int            `json:"responseTimeMs"`
}

type chatDataPoints struct {
	Candles         int `json:"candles"`
	OrderbookLevels int `json:"orderbookLevels"`
	Trades          int `json:"trades"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.UserFromContext(r.Context())
	if !ok {
		s.writeError(w, http.StatusUnauthorized, "Authorization required")
		return
	}
	var body chatBody
	if !s.decodeBody(w, r, &body) {
		return
	}
	if body.Message == "" {
		s.writeError(w, http.StatusBadRequest, "Message is required")
		return
	}
	ctx := r.Context()
	start := s.now()

	if _, err := s.chat.SaveChatMessage(ctx, user.ID, "user", body.Message, nil); err != nil {
		s.log.Warn("chat history write failed", zap.Error(err))
	}

	var (
		tradingCtx *ai.Context
		progress   []string
	)
	if balanceQuery.MatchString(body.Message) {
		tradingCtx = s.balanceContext(r, user.WalletAddress)
		progress = []string{"Checking account balances"}
	} else {
		tradingCtx = s.contexts.Build(ctx, user.WalletAddress, body.Market)
		progress = []string{
			"Gathering market data",
			"Analyzing market conditions",
			"Generating response",
		}
	}

	result, err := s.assistant.ProcessQuery(ctx, body.Message, tradingCtx)
	if err != nil {
		s.metrics.ChatFailed.Inc()
		if errors.Is(err, ai.ErrMissingAPIKey) {
			s.writeError(w, http.StatusServiceUnavailable, "AI assistant is not configured")
			return
		}
		s.log.Error("chat completion failed", zap.Error(err))
		s.writeError(w, http.StatusBadGateway, "AI assistant is unavailable")
		return
	}
	s.metrics.ChatCompletions.Inc()
	elapsed := int(s.now().Sub(start) / time.Millisecond)

	opts := &store.ChatMessageOptions{
		AIModel:            result.Model,
		TokensUsed:         result.TokensUsed,
		ResponseTimeMS:     elapsed,
		TradeSignal:        tradeSignal(&result.Response),
		MarketDataSnapshot: marketSnapshot(tradingCtx, s.now()),
	}
	if _, err := s.chat.SaveChatMessage(ctx, user.ID, "assistant", result.Response.Message, opts); err != nil {
		s.log.Warn("chat history write failed", zap.Error(err))
	}

	metadata := chatMetadata{ResponseTimeMS: elapsed}
	if tradingCtx != nil {
		if tradingCtx.Sentiment != nil {
			metadata.Sentiment = tradingCtx.Sentiment
		}
		metadata.DataPoints = dataPoints(tradingCtx)
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"response": result.Response,
		"progress": progress,
		"metadata": metadata,
	})
}

// balanceContext fetches just the two account overviews and merges them,
// so the prompt reports totals across the main wallet and subaccount.
func (s *Server) balanceContext(r *http.Request, wallet string) *ai.Context {
	ctx := r.Context()
	main, err := s.dex.AccountOverview(ctx, wallet)
	if err != nil {
		s.log.Warn("account overview failed", zap.Error(err))
	}
	var sub *decibel.AccountOverview
	if subAddr := s.primaryActiveSubaccount(r, wallet); subAddr != "" {
		sub, err = s.dex.AccountOverview(ctx, subAddr)
		if err != nil {
			s.log.Warn("subaccount overview failed", zap.Error(err))
		}
	}
	return &ai.Context{
		WalletAddress:             wallet,
		AccountOverview:           mergeOverviews(main, sub),
		PrimarySubaccountOverview: sub,
	}
}

func tradeSignal(resp *ai.Response) json.RawMessage {
	if resp.TradeSuggestion != nil {
		raw, err := json.Marshal(resp.TradeSuggestion)
		if err != nil {
			return nil
		}
		return raw
	}
	if len(resp.TradeSuggestions) > 0 {
		raw, err := json.Marshal(map[string]any{
			"multiple":    true,
			"count":       len(resp.TradeSuggestions),
			"suggestions": resp.TradeSuggestions,
		})
		if err != nil {
			return nil
		}
		return raw
	}
	return nil
}

func marketSnapshot(tradingCtx *ai.Context, now time.Time) json.RawMessage {
	if tradingCtx == nil || len(tradingCtx.Prices) == 0 {
		return nil
	}
	prices := tradingCtx.Prices
	if len(prices) > 5 {
		prices = prices[:5]
	}
	raw, err := json.Marshal(map[string]any{
		"prices":    prices,
		"timestamp": now.UnixMilli(),
	})
	if err != nil {
		return nil
	}
	return raw
}

func dataPoints(tradingCtx *ai.Context) chatDataPoints {
	var points chatDataPoints
	if tradingCtx.Primary == nil {
		return points
	}
	for _, candles := range tradingCtx.Primary.Candlesticks {
		points.Candles += len(candles)
	}
	if book := tradingCtx.Primary.OrderBook; book != nil {
		points.OrderbookLevels = len(book.Bids) + len(book.Asks)
	}
	points.Trades = len(tradingCtx.Primary.Trades)
	return points
}

func (s *Server) handleChatHistory(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.UserFromContext(r.Context())
	if !ok {
		s.writeError(w, http.StatusUnauthorized, "Authorization required")
		return
	}
	limit := intQuery(r, "limit", 50)
	offset := intQuery(r, "offset", 0)

	messages, err := s.chat.ChatHistory(r.Context(), user.ID, limit, offset)
	if err != nil {
		s.log.Error("chat history read failed", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "Could not fetch chat history")
		return
	}
	if messages == nil {
		messages = []store.ChatMessage{}
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"messages": messages,
		"count":    len(messages),
	})
}

func (s *Server) handleDeleteChatHistory(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.UserFromContext(r.Context())
	if !ok {
		s.writeError(w, http.StatusUnauthorized, "Authorization required")
		return
	}
	if err := s.chat.DeleteChatHistory(r.Context(), user.ID); err != nil {
		s.log.Error("chat history delete failed", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "Could not delete chat history")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Chat history deleted successfully",
	})
}

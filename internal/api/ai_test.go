package api

import (
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"alphaflow-backend/internal/ai"
	"alphaflow-backend/internal/decibel"
	"alphaflow-backend/internal/sentiment"
	"alphaflow-backend/internal/store"
)

func chatResult(message string) *ai.Result {
	return &ai.Result{
		Response:   ai.Response{Action: "chat", Message: message},
		Model:      "anthropic/claude-3.5-sonnet",
		TokensUsed: 321,
	}
}

func TestChatRequiresMessage(t *testing.T) {
	env := newTestEnv(t)
	_, token := env.user(t, "0xowner")

	rec := env.do(t, http.MethodPost, "/api/ai/chat", token, map[string]string{})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
	var out struct {
		Error string `json:"error"`
	}
	decodeJSON(t, rec, &out)
	if out.Error != "Message is required" {
		t.Fatalf("error = %q", out.Error)
	}
}

func TestChatBuildsMarketContext(t *testing.T) {
	env := newTestEnv(t)
	fixed := time.Date(2026, 2, 14, 9, 30, 0, 0, time.UTC)
	env.server.now = func() time.Time { return fixed }
	_, token := env.user(t, "0xowner")
	env.contexts.ctx = &ai.Context{
		WalletAddress: "0xowner",
		Prices: []decibel.Price{
			{Market: "0xbtc", MarkPx: 50000}, {Market: "0xeth", MarkPx: 3000},
			{Market: "0x3", MarkPx: 3}, {Market: "0x4", MarkPx: 4},
			{Market: "0x5", MarkPx: 5}, {Market: "0x6", MarkPx: 6},
		},
		Primary: &ai.MarketBundle{
			OrderBook: &decibel.OrderBook{
				Bids: []decibel.BookLevel{{Price: 49999, Size: 1}},
				Asks: []decibel.BookLevel{{Price: 50001, Size: 1}, {Price: 50002, Size: 2}},
			},
			Trades:       []decibel.Trade{{TradeID: 1}, {TradeID: 2}},
			Candlesticks: map[string][]decibel.Candle{"1h": {{Close: 1}, {Close: 2}, {Close: 3}}},
		},
		Sentiment: &sentiment.Sentiment{OverallSentiment: "Greed", Value: 72},
	}
	env.assistant.result = chatResult("BTC looks strong.")

	rec := env.do(t, http.MethodPost, "/api/ai/chat", token, map[string]string{
		"message": "What do you think about BTC here?",
		"market":  "BTC/USD",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	if !env.contexts.built || env.contexts.gotWallet != "0xowner" || env.contexts.gotMarket != "BTC/USD" {
		t.Fatalf("contexts = %+v", env.contexts)
	}
	if env.assistant.gotMessage != "What do you think about BTC here?" {
		t.Fatalf("message = %q", env.assistant.gotMessage)
	}

	var out struct {
		Response ai.Response `json:"response"`
		Progress []string    `json:"progress"`
		Metadata struct {
			Sentiment  *sentiment.Sentiment `json:"sentiment"`
			DataPoints chatDataPoints       `json:"dataPoints"`
		} `json:"metadata"`
	}
	decodeJSON(t, rec, &out)
	if out.Response.Message != "BTC looks strong." {
		t.Fatalf("response = %+v", out.Response)
	}
	if len(out.Progress) == 0 {
		t.Fatal("missing progress")
	}
	if out.Metadata.Sentiment == nil || out.Metadata.Sentiment.Value != 72 {
		t.Fatalf("sentiment = %+v", out.Metadata.Sentiment)
	}
	dp := out.Metadata.DataPoints
	if dp.Candles != 3 || dp.OrderbookLevels != 3 || dp.Trades != 2 {
		t.Fatalf("data points = %+v", dp)
	}

	// User message first, then the assistant reply with its metadata.
	if len(env.chat.saved) != 2 {
		t.Fatalf("saved = %d", len(env.chat.saved))
	}
	if env.chat.saved[0].role != "user" || env.chat.saved[0].opts != nil {
		t.Fatalf("saved[0] = %+v", env.chat.saved[0])
	}
	assistant := env.chat.saved[1]
	if assistant.role != "assistant" || assistant.opts == nil {
		t.Fatalf("saved[1] = %+v", assistant)
	}
	if assistant.opts.AIModel != "anthropic/claude-3.5-sonnet" || assistant.opts.TokensUsed != 321 {
		t.Fatalf("opts = %+v", assistant.opts)
	}
	var snapshot struct {
		Prices    []decibel.Price `json:"prices"`
		Timestamp int64           `json:"timestamp"`
	}
	if err := json.Unmarshal(assistant.opts.MarketDataSnapshot, &snapshot); err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if len(snapshot.Prices) != 5 {
		t.Fatalf("snapshot prices = %d", len(snapshot.Prices))
	}
	if snapshot.Timestamp != fixed.UnixMilli() {
		t.Fatalf("snapshot timestamp = %d, want %d", snapshot.Timestamp, fixed.UnixMilli())
	}
}

func TestChatBalanceFastPath(t *testing.T) {
	env := newTestEnv(t)
	_, token := env.user(t, "0xowner")
	env.dex.subaccounts = []decibel.Subaccount{{SubaccountAddress: "0xsub", IsPrimary: true, IsActive: true}}
	env.dex.overviews["0xowner"] = &decibel.AccountOverview{PerpEquityBalance: 1000}
	env.dex.overviews["0xsub"] = &decibel.AccountOverview{PerpEquityBalance: 400}
	env.assistant.result = chatResult("You have $1,400 across your accounts.")

	rec := env.do(t, http.MethodPost, "/api/ai/chat", token, map[string]string{
		"message": "How much USDC do I have available?",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	if env.contexts.built {
		t.Fatal("balance query should skip market aggregation")
	}
	got := env.assistant.gotCtx
	if got == nil || got.AccountOverview == nil {
		t.Fatalf("ctx = %+v", got)
	}
	if got.AccountOverview.PerpEquityBalance != 1400 {
		t.Fatalf("overview = %+v", got.AccountOverview)
	}
	if got.PrimarySubaccountOverview == nil || got.PrimarySubaccountOverview.PerpEquityBalance != 400 {
		t.Fatalf("sub overview = %+v", got.PrimarySubaccountOverview)
	}
}

func TestChatSavesTradeSignal(t *testing.T) {
	env := newTestEnv(t)
	_, token := env.user(t, "0xowner")
	env.contexts.ctx = &ai.Context{WalletAddress: "0xowner"}
	env.assistant.result = &ai.Result{
		Response: ai.Response{
			Action:  "suggest_trade",
			Message: "Consider a long.",
			TradeSuggestions: []ai.TradeSuggestion{
				{Market: "BTC/USD", Side: "buy", Size: 0.1},
				{Market: "ETH/USD", Side: "buy", Size: 1},
			},
		},
		Model: "anthropic/claude-3.5-sonnet",
	}

	rec := env.do(t, http.MethodPost, "/api/ai/chat", token, map[string]string{"message": "Any setups today?"})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	assistant := env.chat.saved[len(env.chat.saved)-1]
	var signal struct {
		Multiple    bool                 `json:"multiple"`
		Count       int                  `json:"count"`
		Suggestions []ai.TradeSuggestion `json:"suggestions"`
	}
	if err := json.Unmarshal(assistant.opts.TradeSignal, &signal); err != nil {
		t.Fatalf("signal: %v", err)
	}
	if !signal.Multiple || signal.Count != 2 || len(signal.Suggestions) != 2 {
		t.Fatalf("signal = %+v", signal)
	}
}

func TestChatUnavailableAssistant(t *testing.T) {
	env := newTestEnv(t)
	_, token := env.user(t, "0xowner")
	env.contexts.ctx = &ai.Context{}
	env.assistant.err = ai.ErrMissingAPIKey

	rec := env.do(t, http.MethodPost, "/api/ai/chat", token, map[string]string{"message": "Hello there"})
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
}

func TestChatHistory(t *testing.T) {
	env := newTestEnv(t)
	_, token := env.user(t, "0xowner")
	env.chat.history = []store.ChatMessage{
		{Role: "user", Content: "hi"},
		{Role: "assistant", Content: "hello"},
	}

	rec := env.do(t, http.MethodGet, "/api/ai/history?limit=10", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	var out struct {
		Messages []store.ChatMessage `json:"messages"`
		Count    int                 `json:"count"`
	}
	decodeJSON(t, rec, &out)
	if out.Count != 2 || len(out.Messages) != 2 {
		t.Fatalf("out = %+v", out)
	}
}

func TestDeleteChatHistory(t *testing.T) {
	env := newTestEnv(t)
	u, token := env.user(t, "0xowner")

	rec := env.do(t, http.MethodDelete, "/api/ai/history", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	var out struct {
		Success bool   `json:"success"`
		Message string `json:"message"`
	}
	decodeJSON(t, rec, &out)
	if !out.Success || out.Message != "Chat history deleted successfully" {
		t.Fatalf("out = %+v", out)
	}
	if len(env.chat.deleted) != 1 || env.chat.deleted[0] != u.ID {
		t.Fatalf("deleted = %+v", env.chat.deleted)
	}
}

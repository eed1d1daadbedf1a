package ai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func openRouterStub(t *testing.T, content string, capture *map[string]any) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		if capture != nil {
			if err := json.NewDecoder(r.Body).Decode(capture); err != nil {
				t.Fatalf("decode: %v", err)
			}
		}
		resp := map[string]any{
			"choices": []any{
				map[string]any{"message": map[string]any{"content": content}},
			},
			"usage": map[string]any{"total_tokens": 321},
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
}

func TestProcessQueryParsesStrictJSON(t *testing.T) {
	var body map[string]any
	srv := openRouterStub(t, `{"action": "suggest_trade", "message": "Buy the dip", "tradeSuggestion": {"market": "BTC/USD", "side": "buy", "size": 0.1, "orderType": "market", "reasoning": "trend", "risk": "medium", "confidence": 0.8}}`, &body)
	defer srv.Close()

	client := New("key", Options{BaseURL: srv.URL, Referer: "https://app.example.com"}, nil)
	result, err := client.ProcessQuery(context.Background(), "should I buy BTC?", &Context{})
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if result.Response.Action != "suggest_trade" || result.Response.Message != "Buy the dip" {
		t.Fatalf("response = %+v", result.Response)
	}
	if result.Response.TradeSuggestion == nil || result.Response.TradeSuggestion.Market != "BTC/USD" {
		t.Fatalf("suggestion = %+v", result.Response.TradeSuggestion)
	}
	if result.TokensUsed != 321 {
		t.Fatalf("tokens = %d", result.TokensUsed)
	}
	if body["model"] != "anthropic/claude-3.5-sonnet" {
		t.Fatalf("model = %v", body["model"])
	}
	if body["temperature"] != 0.7 || body["max_tokens"] != float64(2000) {
		t.Fatalf("params = %v %v", body["temperature"], body["max_tokens"])
	}
	messages := body["messages"].([]any)
	if len(messages) != 2 {
		t.Fatalf("messages = %d", len(messages))
	}
	system := messages[0].(map[string]any)
	if system["role"] != "system" {
		t.Fatalf("first role = %v", system["role"])
	}
}

func TestProcessQueryStripsCodeFences(t *testing.T) {
	srv := openRouterStub(t, "```json\n{\"action\": \"chat\", \"message\": \"hello\"}\n```", nil)
	defer srv.Close()

	client := New("key", Options{BaseURL: srv.URL}, nil)
	result, err := client.ProcessQuery(context.Background(), "hi", &Context{})
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if result.Response.Action != "chat" || result.Response.Message != "hello" {
		t.Fatalf("response = %+v", result.Response)
	}
}

func TestProcessQueryFallsBackOnBadJSON(t *testing.T) {
	srv := openRouterStub(t, "Sure! I think you should buy.", nil)
	defer srv.Close()

	client := New("key", Options{BaseURL: srv.URL}, nil)
	result, err := client.ProcessQuery(context.Background(), "hi", &Context{})
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if result.Response.Action != "chat" || result.Response.Message != fallbackMessage {
		t.Fatalf("response = %+v", result.Response)
	}
}

func TestProcessQueryRequiresAPIKey(t *testing.T) {
	client := New("", Options{}, nil)
	if _, err := client.ProcessQuery(context.Background(), "hi", &Context{}); !errors.Is(err, ErrMissingAPIKey) {
		t.Fatalf("err = %v", err)
	}
}

func TestProcessQuerySurfacesUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusPaymentRequired)
		w.Write([]byte(`{"error": "out of credits"}`))
	}))
	defer srv.Close()

	client := New("key", Options{BaseURL: srv.URL}, nil)
	if _, err := client.ProcessQuery(context.Background(), "hi", &Context{}); err == nil {
		t.Fatal("expected error")
	}
}

func TestChatSendsAttributionHeaders(t *testing.T) {
	var referer, title, auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		referer = r.Header.Get("HTTP-Referer")
		title = r.Header.Get("X-Title")
		auth = r.Header.Get("Authorization")
		w.Write([]byte(`{"choices": [{"message": {"content": "{}"}}]}`))
	}))
	defer srv.Close()

	client := New("key", Options{BaseURL: srv.URL, Referer: "https://app.example.com"}, nil)
	_, _, err := client.chat(context.Background(), []Message{{Role: "user", Content: "hi"}})
	if err != nil {
		t.Fatalf("chat: %v", err)
	}
	if referer != "https://app.example.com" || title != "AlphaFlow AI Trading Assistant" {
		t.Fatalf("headers = %q %q", referer, title)
	}
	if auth != "Bearer key" {
		t.Fatalf("auth = %q", auth)
	}
}

package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

var ErrMissingAPIKey = errors.New("openrouter api key is not set")

const fallbackMessage = "I apologize, but I encountered an error processing your request. Please try again."

type TradeSuggestion struct {
	Market    string   `json:"market"`
	Side      string   `json:"side"`
	Size      float64  `json:"size"`
	OrderType string   `json:"orderType"`
	Price     *float64 `json:"price,omitempty"`
	SlPrice   *float64 `json:"slPrice,omitempty"`
	TpPrice   *float64 `json:"tpPrice,omitempty"`
	Leverage  *float64 `json:"leverage,omitempty"`
	Reasoning string   `json:"reasoning"`
	Risk      string   `json:"risk"`
	Confidence float64 `json:"confidence"`
	Preferred bool     `json:"preferred,omitempty"`
}

// Response is the assistant's structured reply. Action is one of
// query_balance, analyze_market, suggest_trade, place_order or chat.
type Response struct {
	Action           string            `json:"action"`
	Message          string            `json:"message"`
	Data             json.RawMessage   `json:"data,omitempty"`
	TradeSuggestion  *TradeSuggestion  `json:"tradeSuggestion,omitempty"`
	TradeSuggestions []TradeSuggestion `json:"tradeSuggestions,omitempty"`
}

// Result carries the parsed response plus the metadata persisted with chat
// history.
type Result struct {
	Response       Response
	Model          string
	TokensUsed     int
	ResponseTimeMS int
}

// Client speaks the OpenRouter chat-completions protocol.
type Client struct {
	baseURL     string
	apiKey      string
	model       string
	referer     string
	title       string
	temperature float64
	maxTokens   int
	http        *http.Client
	now         func() time.Time
	log         *zap.Logger
}

type Options struct {
	BaseURL string
	Model   string
	Referer string
	Title   string
	Timeout time.Duration
}

func New(apiKey string, opts Options, log *zap.Logger) *Client {
	if opts.BaseURL == "" {
		opts.BaseURL = "https://openrouter.ai/api/v1"
	}
	if opts.Model == "" {
		opts.Model = "anthropic/claude-3.5-sonnet"
	}
	if opts.Title == "" {
		opts.Title = "AlphaFlow AI Trading Assistant"
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 60 * time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		baseURL:     opts.BaseURL,
		apiKey:      apiKey,
		model:       opts.Model,
		referer:     opts.Referer,
		title:       opts.Title,
		temperature: 0.7,
		maxTokens:   2000,
		http:        &http.Client{Timeout: opts.Timeout},
		now:         time.Now,
		log:         log,
	}
}

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ProcessQuery sends the user's message with the trading context as the
// system prompt and parses the strict-JSON reply. A malformed reply becomes
// a plain chat response instead of an error.
func (c *Client) ProcessQuery(ctx context.Context, userMessage string, tradingCtx *Context) (*Result, error) {
	messages := []Message{
		{Role: "system", Content: BuildSystemPrompt(tradingCtx)},
		{Role: "user", Content: userMessage},
	}
	started := c.now()
	content, tokens, err := c.chat(ctx, messages)
	if err != nil {
		return nil, err
	}
	elapsed := int(c.now().Sub(started).Milliseconds())

	result := &Result{
		Model:          c.model,
		TokensUsed:     tokens,
		ResponseTimeMS: elapsed,
	}
	parsed, err := parseResponse(content)
	if err != nil {
		c.log.Warn("ai response parse failed", zap.Error(err))
		result.Response = Response{Action: "chat", Message: fallbackMessage}
		return result, nil
	}
	result.Response = *parsed
	return result, nil
}

func (c *Client) chat(ctx context.Context, messages []Message) (string, int, error) {
	if c.apiKey == "" {
		return "", 0, ErrMissingAPIKey
	}
	body, err := json.Marshal(map[string]any{
		"model":       c.model,
		"messages":    messages,
		"temperature": c.temperature,
		"max_tokens":  c.maxTokens,
	})
	if err != nil {
		return "", 0, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", 0, err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	if c.referer != "" {
		req.Header.Set("HTTP-Referer", c.referer)
	}
	req.Header.Set("X-Title", c.title)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", 0, fmt.Errorf("ai service error: %w", err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", 0, err
	}
	if resp.StatusCode != http.StatusOK {
		return "", 0, fmt.Errorf("ai service error: http %d: %s", resp.StatusCode, data)
	}
	var payload struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
		Usage struct {
			TotalTokens int `json:"total_tokens"`
		} `json:"usage"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return "", 0, err
	}
	if len(payload.Choices) == 0 {
		return "", payload.Usage.TotalTokens, nil
	}
	return payload.Choices[0].Message.Content, payload.Usage.TotalTokens, nil
}

func parseResponse(content string) (*Response, error) {
	cleaned := strings.TrimSpace(content)
	if strings.HasPrefix(cleaned, "```") {
		cleaned = strings.ReplaceAll(cleaned, "```json", "")
		cleaned = strings.ReplaceAll(cleaned, "```", "")
		cleaned = strings.TrimSpace(cleaned)
	}
	var parsed Response
	if err := json.Unmarshal([]byte(cleaned), &parsed); err != nil {
		return nil, err
	}
	if parsed.Action == "" || parsed.Message == "" {
		return nil, errors.New("missing action or message")
	}
	return &parsed, nil
}

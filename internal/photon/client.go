package photon

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// Client talks to the Photon embedded-wallet provider. Registration turns a
// signed identity token into a custodial wallet; events feed campaign
// attribution.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
	log     *zap.Logger
}

func New(baseURL, apiKey string, timeout time.Duration, log *zap.Logger) *Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		http:    &http.Client{Timeout: timeout},
		log:     log,
	}
}

type Identity struct {
	ID         string `json:"id"`
	UserID     string `json:"user_id"`
	Provider   string `json:"provider"`
	ProviderID string `json:"provider_id"`
}

type RegisterResponse struct {
	Success bool `json:"success"`
	Data    struct {
		User struct {
			User struct {
				ID     string `json:"id"`
				Name   string `json:"name"`
				Avatar string `json:"avatar"`
			} `json:"user"`
			UserIdentities []Identity `json:"user_identities"`
		} `json:"user"`
		Tokens struct {
			AccessToken  string `json:"access_token"`
			TokenType    string `json:"token_type"`
			ExpiresIn    int    `json:"expires_in"`
			RefreshToken string `json:"refresh_token"`
		} `json:"tokens"`
		Wallet struct {
			WalletAddress string `json:"walletAddress"`
			PhotonUserID  string `json:"photonUserId"`
		} `json:"wallet"`
	} `json:"data"`
}

// Register exchanges an identity token for a Photon wallet.
func (c *Client) Register(ctx context.Context, identityToken, clientUserID string) (*RegisterResponse, error) {
	body := map[string]any{
		"provider": "jwt",
		"data": map[string]any{
			"token":          identityToken,
			"client_user_id": clientUserID,
		},
	}
	var out RegisterResponse
	if err := c.post(ctx, "/identity/register", body, "", &out); err != nil {
		return nil, fmt.Errorf("photon registration failed: %w", err)
	}
	return &out, nil
}

type Event struct {
	EventID     string         `json:"event_id"`
	EventType   string         `json:"event_type"`
	UserID      string         `json:"user_id"`
	CampaignID  string         `json:"campaign_id"`
	Metadata    map[string]any `json:"metadata"`
	Timestamp   string         `json:"timestamp"`
	AccessToken string         `json:"-"`
}

type EventResponse struct {
	Success bool `json:"success"`
	Data    struct {
		Success     bool    `json:"success"`
		EventID     string  `json:"event_id"`
		TokenAmount float64 `json:"token_amount"`
		TokenSymbol string  `json:"token_symbol"`
		CampaignID  string  `json:"campaign_id"`
	} `json:"data"`
}

// SendEvent reports a campaign attribution event on behalf of a user.
func (c *Client) SendEvent(ctx context.Context, event Event) (*EventResponse, error) {
	if event.Metadata == nil {
		event.Metadata = map[string]any{}
	}
	if event.Timestamp == "" {
		event.Timestamp = time.Now().UTC().Format(time.RFC3339)
	}
	var out EventResponse
	if err := c.post(ctx, "/attribution/events/campaign", event, event.AccessToken, &out); err != nil {
		return nil, fmt.Errorf("photon event failed: %w", err)
	}
	return &out, nil
}

func (c *Client) post(ctx context.Context, path string, body any, bearer string, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-Key", c.apiKey)
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode >= 400 {
		c.log.Warn("photon request failed",
			zap.String("path", path),
			zap.Int("status", resp.StatusCode),
			zap.ByteString("body", data))
		return fmt.Errorf("http %d: %s", resp.StatusCode, data)
	}
	return json.Unmarshal(data, out)
}

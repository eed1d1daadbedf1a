package decibel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"
)

// ErrMarketNotFound is returned when a market name has no listing.
var ErrMarketNotFound = errors.New("market not found")

type Client struct {
	baseURL string
	origin  string
	apiKey  string
	http    *http.Client
	log     *zap.Logger
}

func New(baseURL, origin, apiKey string, timeout time.Duration, log *zap.Logger) *Client {
	return &Client{
		baseURL: baseURL,
		origin:  origin,
		apiKey:  apiKey,
		http: &http.Client{
			Timeout: timeout,
		},
		log: log,
	}
}

func (c *Client) Markets(ctx context.Context) ([]Market, error) {
	var markets []Market
	if err := c.get(ctx, "/api/v1/markets", nil, false, &markets); err != nil {
		return nil, err
	}
	return markets, nil
}

// MarketByName resolves an exact market name such as "BTC/USD".
func (c *Client) MarketByName(ctx context.Context, name string) (Market, error) {
	markets, err := c.Markets(ctx)
	if err != nil {
		return Market{}, err
	}
	for _, m := range markets {
		if m.MarketName == name {
			return m, nil
		}
	}
	return Market{}, fmt.Errorf("%w: %s", ErrMarketNotFound, name)
}

func (c *Client) Prices(ctx context.Context, marketAddr string) ([]Price, error) {
	params := url.Values{}
	if marketAddr != "" {
		params.Set("market", marketAddr)
	}
	var prices []Price
	if err := c.get(ctx, "/api/v1/prices", params, false, &prices); err != nil {
		return nil, err
	}
	return prices, nil
}

func (c *Client) Depth(ctx context.Context, marketAddr string, limit int) (OrderBook, error) {
	params := url.Values{}
	params.Set("market", marketAddr)
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}
	var book OrderBook
	if err := c.get(ctx, "/api/v1/depth", params, false, &book); err != nil {
		return OrderBook{}, err
	}
	return book, nil
}

func (c *Client) Trades(ctx context.Context, marketAddr string, limit int) ([]Trade, error) {
	params := url.Values{}
	params.Set("market", marketAddr)
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}
	var trades []Trade
	if err := c.get(ctx, "/api/v1/trades", params, false, &trades); err != nil {
		return nil, err
	}
	return trades, nil
}

func (c *Client) Candlesticks(ctx context.Context, marketAddr, interval string, startMS, endMS int64) ([]Candle, error) {
	params := url.Values{}
	params.Set("market", marketAddr)
	params.Set("interval", interval)
	params.Set("startTime", strconv.FormatInt(startMS, 10))
	params.Set("endTime", strconv.FormatInt(endMS, 10))
	var candles []Candle
	if err := c.get(ctx, "/api/v1/candlesticks", params, false, &candles); err != nil {
		return nil, err
	}
	return candles, nil
}

// Subaccounts lists subaccounts for an owner. Before the owner has touched
// the exchange the upstream answers 400/401/404; that reads as "none yet".
func (c *Client) Subaccounts(ctx context.Context, owner string) ([]Subaccount, error) {
	params := url.Values{}
	params.Set("owner", owner)
	var subs []Subaccount
	if err := c.get(ctx, "/api/v1/subaccounts", params, true, &subs); err != nil {
		if isNoAccount(err) {
			return nil, nil
		}
		return nil, err
	}
	return subs, nil
}

// PrimarySubaccount picks the primary subaccount, preferring an active one.
func (c *Client) PrimarySubaccount(ctx context.Context, owner string) (Subaccount, bool, error) {
	subs, err := c.Subaccounts(ctx, owner)
	if err != nil {
		return Subaccount{}, false, err
	}
	var fallback *Subaccount
	for i := range subs {
		sub := subs[i]
		if !sub.IsPrimary {
			continue
		}
		if sub.IsActive {
			return sub, true, nil
		}
		if fallback == nil {
			fallback = &subs[i]
		}
	}
	if fallback != nil {
		return *fallback, true, nil
	}
	if len(subs) > 0 {
		return subs[0], true, nil
	}
	return Subaccount{}, false, nil
}

func (c *Client) AccountOverview(ctx context.Context, user string) (*AccountOverview, error) {
	params := url.Values{}
	params.Set("user", user)
	var overview AccountOverview
	if err := c.get(ctx, "/api/v1/account_overviews", params, true, &overview); err != nil {
		if isNoAccount(err) {
			return nil, nil
		}
		return nil, err
	}
	return &overview, nil
}

func (c *Client) Positions(ctx context.Context, user string, limit int) ([]Position, error) {
	params := url.Values{}
	params.Set("user", user)
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}
	var positions []Position
	if err := c.get(ctx, "/api/v1/user_positions", params, true, &positions); err != nil {
		if isNoAccount(err) {
			return nil, nil
		}
		return nil, err
	}
	return positions, nil
}

func (c *Client) OpenOrders(ctx context.Context, user string, limit int) ([]Order, error) {
	params := url.Values{}
	params.Set("user", user)
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}
	var orders []Order
	if err := c.get(ctx, "/api/v1/open_orders", params, true, &orders); err != nil {
		if isNoAccount(err) {
			return nil, nil
		}
		return nil, err
	}
	return orders, nil
}

func (c *Client) TradeHistory(ctx context.Context, user string, limit int) ([]Trade, error) {
	params := url.Values{}
	params.Set("user", user)
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}
	var trades []Trade
	if err := c.get(ctx, "/api/v1/trade_history", params, true, &trades); err != nil {
		if isNoAccount(err) {
			return nil, nil
		}
		return nil, err
	}
	return trades, nil
}

func (c *Client) OrderHistory(ctx context.Context, user string) (OrderHistory, error) {
	params := url.Values{}
	params.Set("user", user)
	var history OrderHistory
	if err := c.get(ctx, "/api/v1/order_history", params, true, &history); err != nil {
		if isNoAccount(err) {
			return OrderHistory{}, nil
		}
		return OrderHistory{}, err
	}
	return history, nil
}

// Delegations returns trading delegations for a subaccount. A 404 means no
// delegation has ever been recorded.
func (c *Client) Delegations(ctx context.Context, subaccount string) ([]Delegation, error) {
	params := url.Values{}
	params.Set("subaccount", subaccount)
	var delegations []Delegation
	if err := c.get(ctx, "/api/v1/delegations", params, true, &delegations); err != nil {
		var statusErr *StatusError
		if errors.As(err, &statusErr) && statusErr.Status == http.StatusNotFound {
			return nil, nil
		}
		return nil, err
	}
	return delegations, nil
}

type StatusError struct {
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("decibel http %d: %s", e.Status, e.Body)
}

func isNoAccount(err error) bool {
	var statusErr *StatusError
	if !errors.As(err, &statusErr) {
		return false
	}
	switch statusErr.Status {
	case http.StatusBadRequest, http.StatusUnauthorized, http.StatusNotFound:
		return true
	}
	return false
}

func (c *Client) get(ctx context.Context, path string, params url.Values, authed bool, out any) error {
	reqURL := c.baseURL + path
	if len(params) > 0 {
		reqURL += "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Origin", c.origin)
	if authed && c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return &StatusError{Status: resp.StatusCode, Body: string(body)}
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

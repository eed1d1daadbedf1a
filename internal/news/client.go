package news

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"alphaflow-backend/internal/state"
)

// The upstream free plan caps every request at three items.
const freePlanMaxItems = 3

type Item struct {
	NewsURL    string   `json:"news_url"`
	ImageURL   string   `json:"image_url"`
	Title      string   `json:"title"`
	Text       string   `json:"text"`
	SourceName string   `json:"source_name"`
	Date       string   `json:"date"`
	Topics     []string `json:"topics"`
	Sentiment  string   `json:"sentiment"`
	Type       string   `json:"type"`
	Tickers    []string `json:"tickers,omitempty"`
}

type Response struct {
	Data       []Item `json:"data"`
	TotalPages int    `json:"total_pages"`
	TotalItems int    `json:"total_items"`
	Error      string `json:"error,omitempty"`
}

type Filters struct {
	Tickers   []string
	Sentiment string
	Type      string
	Source    string
	SortBy    string
	Days      int
	Items     int
	Page      int
}

// Client fetches crypto news with a TTL cache in front of the upstream API.
// Plan-limit rejections (403) come back as empty results carrying the
// upstream message rather than errors.
type Client struct {
	baseURL     string
	token       string
	http        *http.Client
	cache       state.Store
	cacheTTL    time.Duration
	trendingTTL time.Duration
	maxItems    int
	log         *zap.Logger
}

type Options struct {
	BaseURL     string
	Timeout     time.Duration
	CacheTTL    time.Duration
	TrendingTTL time.Duration
	MaxItems    int
}

func New(token string, cache state.Store, opts Options, log *zap.Logger) *Client {
	if opts.BaseURL == "" {
		opts.BaseURL = "https://cryptonews-api.com/api/v1"
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = 5 * time.Minute
	}
	if opts.TrendingTTL <= 0 {
		opts.TrendingTTL = 10 * time.Minute
	}
	if opts.MaxItems <= 0 {
		opts.MaxItems = freePlanMaxItems
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		baseURL:     opts.BaseURL,
		token:       token,
		http:        &http.Client{Timeout: opts.Timeout},
		cache:       cache,
		cacheTTL:    opts.CacheTTL,
		trendingTTL: opts.TrendingTTL,
		maxItems:    opts.MaxItems,
		log:         log,
	}
}

// News fetches ticker-scoped news.
func (c *Client) News(ctx context.Context, filters Filters) (*Response, error) {
	return c.cached(ctx, c.cacheKey("ticker", filters), c.cacheTTL, func() (*Response, error) {
		return c.fetchTicker(ctx, filters)
	})
}

func (c *Client) fetchTicker(ctx context.Context, filters Filters) (*Response, error) {
	params := c.baseParams(filters)
	if len(filters.Tickers) > 0 {
		params.Set("tickers", strings.Join(filters.Tickers, ","))
	}
	if filters.Source != "" {
		params.Set("source", filters.Source)
	}
	if filters.SortBy != "" {
		params.Set("sortby", filters.SortBy)
		if filters.Days > 0 {
			params.Set("days", strconv.Itoa(filters.Days))
		}
	}
	return c.fetch(ctx, "", params)
}

// GeneralNews fetches the general (non-ticker) section.
func (c *Client) GeneralNews(ctx context.Context, filters Filters) (*Response, error) {
	return c.cached(ctx, c.cacheKey("general", filters), c.cacheTTL, func() (*Response, error) {
		params := c.baseParams(filters)
		params.Set("section", "general")
		return c.fetch(ctx, "/category", params)
	})
}

// TrendingNews fetches rank-sorted news over the last three days. Failures
// degrade to an empty list.
func (c *Client) TrendingNews(ctx context.Context, tickers []string, limit int) []Item {
	filters := Filters{
		Tickers: tickers,
		SortBy:  "rank",
		Days:    3,
		Items:   c.clampItems(limit),
		Page:    1,
	}
	resp, err := c.cached(ctx, c.cacheKey("trending", filters), c.trendingTTL, func() (*Response, error) {
		return c.fetchTicker(ctx, filters)
	})
	if err != nil {
		c.log.Warn("trending news fetch failed", zap.Error(err))
		return []Item{}
	}
	return resp.Data
}

func (c *Client) baseParams(filters Filters) url.Values {
	params := url.Values{}
	params.Set("token", c.token)
	params.Set("items", strconv.Itoa(c.clampItems(filters.Items)))
	page := filters.Page
	if page <= 0 {
		page = 1
	}
	params.Set("page", strconv.Itoa(page))
	if filters.Sentiment != "" {
		params.Set("sentiment", filters.Sentiment)
	}
	if filters.Type != "" {
		params.Set("type", filters.Type)
	}
	return params
}

func (c *Client) fetch(ctx context.Context, path string, params url.Values) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusForbidden {
		message := planLimitMessage(body)
		c.log.Warn("news plan limit hit", zap.String("message", message))
		return &Response{Data: []Item{}, Error: message}, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("http %d: %s", resp.StatusCode, body)
	}
	var out Response
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, err
	}
	if out.Data == nil {
		out.Data = []Item{}
	}
	return &out, nil
}

func (c *Client) cached(ctx context.Context, key string, ttl time.Duration, fetch func() (*Response, error)) (*Response, error) {
	if c.cache != nil {
		if raw, ok, err := c.cache.Get(ctx, key); err == nil && ok {
			var cached Response
			if err := json.Unmarshal([]byte(raw), &cached); err == nil {
				return &cached, nil
			}
		}
	}
	resp, err := fetch()
	if err != nil {
		return nil, err
	}
	// plan-limit responses are not worth caching
	if c.cache != nil && resp.Error == "" {
		if raw, err := json.Marshal(resp); err == nil {
			if err := c.cache.SetTTL(ctx, key, string(raw), ttl); err != nil {
				c.log.Warn("news cache write failed", zap.Error(err))
			}
		}
	}
	return resp, nil
}

func (c *Client) cacheKey(category string, filters Filters) string {
	tickers := "all"
	if len(filters.Tickers) > 0 {
		sorted := append([]string(nil), filters.Tickers...)
		sort.Strings(sorted)
		tickers = strings.Join(sorted, ",")
	}
	parts := []string{
		"news:" + category,
		tickers,
		orDefault(filters.Sentiment, "all"),
		orDefault(filters.Type, "all"),
		orDefault(filters.Source, "all"),
		orDefault(filters.SortBy, "default"),
		strconv.Itoa(filters.Days),
		strconv.Itoa(c.clampItems(filters.Items)),
		strconv.Itoa(max(filters.Page, 1)),
	}
	return strings.Join(parts, "|")
}

func orDefault(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}

func (c *Client) clampItems(items int) int {
	if items <= 0 || items > c.maxItems {
		return c.maxItems
	}
	return items
}

func planLimitMessage(body []byte) string {
	var payload struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &payload); err == nil && payload.Message != "" {
		return payload.Message
	}
	return "API request limit reached"
}

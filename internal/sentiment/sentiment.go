package sentiment

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"
)

type AssetAnalysis struct {
	Sentiment string  `json:"sentiment"`
	Price     float64 `json:"price,omitempty"`
	Change24H float64 `json:"change24h,omitempty"`
}

type MarketAnalysis struct {
	BTC *AssetAnalysis `json:"btc,omitempty"`
	ETH *AssetAnalysis `json:"eth,omitempty"`
}

type Sentiment struct {
	OverallSentiment string          `json:"overallSentiment"`
	Value            int             `json:"value"`
	Classification   string          `json:"classification"`
	Timestamp        int64           `json:"timestamp"`
	Source           string          `json:"source"`
	MarketAnalysis   *MarketAnalysis `json:"marketAnalysis,omitempty"`
}

// Client reads the crowd's mood from the Fear & Greed index and colors it
// with BTC/ETH price moves. Everything here is best effort: the fallback is
// a neutral reading, never an error.
type Client struct {
	fngURL    string
	pricesURL string
	http      *http.Client
	now       func() time.Time
	log       *zap.Logger
}

func New(fngURL, pricesURL string, timeout time.Duration, log *zap.Logger) *Client {
	if fngURL == "" {
		fngURL = "https://api.alternative.me/fng/"
	}
	if pricesURL == "" {
		pricesURL = "https://api.coingecko.com/api/v3"
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		fngURL:    fngURL,
		pricesURL: pricesURL,
		http:      &http.Client{Timeout: timeout},
		now:       time.Now,
		log:       log,
	}
}

func (c *Client) MarketSentiment(ctx context.Context) Sentiment {
	value, classification, ts, err := c.fetchFearGreed(ctx)
	if err != nil {
		c.log.Warn("fear & greed fetch failed", zap.Error(err))
		return Sentiment{
			OverallSentiment: "Neutral",
			Value:            50,
			Classification:   "Neutral",
			Timestamp:        c.now().UnixMilli(),
			Source:           "fear_greed_index",
		}
	}
	out := Sentiment{
		OverallSentiment: Classify(value),
		Value:            value,
		Classification:   classification,
		Timestamp:        ts * 1000,
		Source:           "fear_greed_index",
	}
	if out.Classification == "" {
		out.Classification = out.OverallSentiment
	}
	if analysis, err := c.fetchMarketAnalysis(ctx, value); err != nil {
		c.log.Warn("price context fetch failed", zap.Error(err))
	} else {
		out.MarketAnalysis = analysis
	}
	return out
}

func (c *Client) fetchFearGreed(ctx context.Context) (value int, classification string, ts int64, err error) {
	var payload struct {
		Data []struct {
			Value               string `json:"value"`
			ValueClassification string `json:"value_classification"`
			Timestamp           string `json:"timestamp"`
		} `json:"data"`
	}
	if err = c.getJSON(ctx, c.fngURL+"?limit=1", &payload); err != nil {
		return 0, "", 0, err
	}
	if len(payload.Data) == 0 {
		return 0, "", 0, fmt.Errorf("empty fear & greed response")
	}
	entry := payload.Data[0]
	value, err = strconv.Atoi(entry.Value)
	if err != nil {
		return 0, "", 0, fmt.Errorf("bad index value %q", entry.Value)
	}
	ts, _ = strconv.ParseInt(entry.Timestamp, 10, 64)
	return value, entry.ValueClassification, ts, nil
}

func (c *Client) fetchMarketAnalysis(ctx context.Context, overall int) (*MarketAnalysis, error) {
	params := url.Values{}
	params.Set("ids", "bitcoin,ethereum")
	params.Set("vs_currencies", "usd")
	params.Set("include_24h_change", "true")
	var payload map[string]struct {
		USD          float64 `json:"usd"`
		USD24HChange float64 `json:"usd_24h_change"`
	}
	if err := c.getJSON(ctx, c.pricesURL+"/simple/price?"+params.Encode(), &payload); err != nil {
		return nil, err
	}
	analysis := &MarketAnalysis{}
	if btc, ok := payload["bitcoin"]; ok {
		analysis.BTC = &AssetAnalysis{
			Sentiment: AssetSentiment(overall, btc.USD24HChange),
			Price:     btc.USD,
			Change24H: btc.USD24HChange,
		}
	}
	if eth, ok := payload["ethereum"]; ok {
		analysis.ETH = &AssetAnalysis{
			Sentiment: AssetSentiment(overall, eth.USD24HChange),
			Price:     eth.USD,
			Change24H: eth.USD24HChange,
		}
	}
	return analysis, nil
}

func (c *Client) getJSON(ctx context.Context, rawURL string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("http %d: %s", resp.StatusCode, body)
	}
	return json.Unmarshal(body, out)
}

// Classify maps a 0-100 index value to its sentiment band.
func Classify(value int) string {
	switch {
	case value <= 20:
		return "Extreme Fear"
	case value <= 40:
		return "Fear"
	case value <= 60:
		return "Neutral"
	case value <= 80:
		return "Greed"
	default:
		return "Extreme Greed"
	}
}

// AssetSentiment combines the overall index with an asset's 24h move.
func AssetSentiment(overall int, change24h float64) string {
	switch {
	case overall >= 75 && change24h > 2:
		return "Very Bullish"
	case overall >= 60 && change24h > 0:
		return "Bullish"
	case overall <= 25 && change24h < -2:
		return "Very Bearish"
	case overall <= 40 && change24h < 0:
		return "Bearish"
	default:
		return "Neutral"
	}
}

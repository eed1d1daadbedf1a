package ai

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"alphaflow-backend/internal/decibel"
	"alphaflow-backend/internal/sentiment"
)

var majorMarkets = []string{"BTC/USD", "APT/USD", "ETH/USD"}

// Candle windows per interval, chosen so each timeframe shows a meaningful
// slice of history without flooding the prompt.
var candleWindows = []struct {
	Interval string
	Span     time.Duration
}{
	{"15m", 12 * time.Hour},
	{"1h", 3 * 24 * time.Hour},
	{"4h", 7 * 24 * time.Hour},
	{"1d", 30 * 24 * time.Hour},
	{"1w", 30 * 24 * time.Hour},
}

// MarketBundle is the depth, tape and chart data for one market.
type MarketBundle struct {
	Market       decibel.Market
	OrderBook    *decibel.OrderBook
	Trades       []decibel.Trade
	Candlesticks map[string][]decibel.Candle
}

// Context is everything the model sees about the user and the market.
type Context struct {
	WalletAddress             string
	AccountOverview           *decibel.AccountOverview
	PrimarySubaccountOverview *decibel.AccountOverview
	Positions                 []decibel.Position
	OpenOrders                []decibel.Order
	Markets                   []decibel.Market
	Prices                    []decibel.Price
	Primary                   *MarketBundle
	AllMarkets                map[string]*MarketBundle
	Sentiment                 *sentiment.Sentiment
}

// MarketDataAPI is the slice of the exchange client the context builder
// reads from.
type MarketDataAPI interface {
	Markets(ctx context.Context) ([]decibel.Market, error)
	MarketByName(ctx context.Context, name string) (decibel.Market, error)
	Prices(ctx context.Context, marketAddr string) ([]decibel.Price, error)
	Depth(ctx context.Context, marketAddr string, limit int) (decibel.OrderBook, error)
	Trades(ctx context.Context, marketAddr string, limit int) ([]decibel.Trade, error)
	Candlesticks(ctx context.Context, marketAddr, interval string, startMS, endMS int64) ([]decibel.Candle, error)
	AccountOverview(ctx context.Context, user string) (*decibel.AccountOverview, error)
	Positions(ctx context.Context, user string, limit int) ([]decibel.Position, error)
	OpenOrders(ctx context.Context, user string, limit int) ([]decibel.Order, error)
	PrimarySubaccount(ctx context.Context, owner string) (decibel.Subaccount, bool, error)
}

type SentimentSource interface {
	MarketSentiment(ctx context.Context) sentiment.Sentiment
}

// ContextBuilder aggregates account and market data for the system prompt.
// Every fetch is best effort: a failed call leaves its section empty.
type ContextBuilder struct {
	dex  MarketDataAPI
	mood SentimentSource
	now  func() time.Time
	log  *zap.Logger
}

func NewContextBuilder(dex MarketDataAPI, mood SentimentSource, log *zap.Logger) *ContextBuilder {
	if log == nil {
		log = zap.NewNop()
	}
	return &ContextBuilder{dex: dex, mood: mood, now: time.Now, log: log}
}

// Build gathers the trading context for a wallet, focusing on marketName
// when given and always covering the majors.
func (b *ContextBuilder) Build(ctx context.Context, walletAddress, marketName string) *Context {
	out := &Context{
		WalletAddress: walletAddress,
		AllMarkets:    map[string]*MarketBundle{},
	}

	var wg sync.WaitGroup
	run := func(fn func()) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			fn()
		}()
	}

	run(func() {
		overview, err := b.dex.AccountOverview(ctx, walletAddress)
		if err != nil {
			b.log.Debug("account overview fetch failed", zap.Error(err))
			return
		}
		out.AccountOverview = overview
	})
	run(func() {
		sub, ok, err := b.dex.PrimarySubaccount(ctx, walletAddress)
		if err != nil || !ok {
			return
		}
		overview, err := b.dex.AccountOverview(ctx, sub.SubaccountAddress)
		if err != nil {
			return
		}
		out.PrimarySubaccountOverview = overview
	})
	run(func() {
		positions, err := b.dex.Positions(ctx, walletAddress, 100)
		if err == nil {
			out.Positions = positions
		}
	})
	run(func() {
		orders, err := b.dex.OpenOrders(ctx, walletAddress, 100)
		if err == nil {
			out.OpenOrders = orders
		}
	})
	run(func() {
		markets, err := b.dex.Markets(ctx)
		if err == nil {
			out.Markets = markets
		}
	})
	run(func() {
		prices, err := b.dex.Prices(ctx, "")
		if err == nil {
			out.Prices = prices
		}
	})
	if b.mood != nil {
		run(func() {
			mood := b.mood.MarketSentiment(ctx)
			out.Sentiment = &mood
		})
	}

	names := marketsToFetch(marketName)
	bundles := make([]*MarketBundle, len(names))
	for i, name := range names {
		i, name := i, name
		run(func() {
			bundles[i] = b.fetchBundle(ctx, name)
		})
	}
	wg.Wait()

	for i, bundle := range bundles {
		if bundle == nil {
			continue
		}
		out.AllMarkets[names[i]] = bundle
		if out.Primary == nil {
			out.Primary = bundle
		}
	}
	return out
}

func (b *ContextBuilder) fetchBundle(ctx context.Context, marketName string) *MarketBundle {
	market, err := b.dex.MarketByName(ctx, marketName)
	if err != nil {
		b.log.Debug("market lookup failed", zap.String("market", marketName), zap.Error(err))
		return nil
	}
	bundle := &MarketBundle{
		Market:       market,
		Candlesticks: map[string][]decibel.Candle{},
	}
	end := b.now().UnixMilli()

	var wg sync.WaitGroup
	var mu sync.Mutex
	for _, window := range candleWindows {
		window := window
		wg.Add(1)
		go func() {
			defer wg.Done()
			start := end - window.Span.Milliseconds()
			candles, err := b.dex.Candlesticks(ctx, market.MarketAddr, window.Interval, start, end)
			if err != nil {
				b.log.Debug("candlestick fetch failed",
					zap.String("market", marketName),
					zap.String("interval", window.Interval),
					zap.Error(err))
				return
			}
			mu.Lock()
			bundle.Candlesticks[window.Interval] = candles
			mu.Unlock()
		}()
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		book, err := b.dex.Depth(ctx, market.MarketAddr, 50)
		if err == nil {
			bundle.OrderBook = &book
		}
	}()
	wg.Add(1)
	go func() {
		defer wg.Done()
		trades, err := b.dex.Trades(ctx, market.MarketAddr, 100)
		if err == nil {
			bundle.Trades = trades
		}
	}()
	wg.Wait()
	return bundle
}

func marketsToFetch(marketName string) []string {
	if marketName == "" {
		return majorMarkets
	}
	names := []string{marketName}
	for _, major := range majorMarkets {
		if major != marketName {
			names = append(names, major)
		}
	}
	return names
}

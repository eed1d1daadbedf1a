package ai

import (
	"context"
	"errors"
	"sync"
	"testing"

	"alphaflow-backend/internal/decibel"
	"alphaflow-backend/internal/sentiment"
)

type fakeMarketData struct {
	mu        sync.Mutex
	markets   map[string]decibel.Market
	overview  map[string]*decibel.AccountOverview
	primary   *decibel.Subaccount
	positions []decibel.Position
	orders    []decibel.Order
	prices    []decibel.Price
	candles   map[string][]decibel.Candle
	intervals []string
}

func (f *fakeMarketData) Markets(context.Context) ([]decibel.Market, error) {
	var out []decibel.Market
	for _, m := range f.markets {
		out = append(out, m)
	}
	return out, nil
}

func (f *fakeMarketData) MarketByName(_ context.Context, name string) (decibel.Market, error) {
	if m, ok := f.markets[name]; ok {
		return m, nil
	}
	return decibel.Market{}, decibel.ErrMarketNotFound
}

func (f *fakeMarketData) Prices(context.Context, string) ([]decibel.Price, error) {
	return f.prices, nil
}

func (f *fakeMarketData) Depth(_ context.Context, marketAddr string, _ int) (decibel.OrderBook, error) {
	return decibel.OrderBook{Market: marketAddr, Bids: []decibel.BookLevel{{Price: 1, Size: 1}}}, nil
}

func (f *fakeMarketData) Trades(_ context.Context, marketAddr string, _ int) ([]decibel.Trade, error) {
	return []decibel.Trade{{Market: marketAddr}}, nil
}

func (f *fakeMarketData) Candlesticks(_ context.Context, marketAddr, interval string, _, _ int64) ([]decibel.Candle, error) {
	f.mu.Lock()
	f.intervals = append(f.intervals, interval)
	f.mu.Unlock()
	return f.candles[interval], nil
}

func (f *fakeMarketData) AccountOverview(_ context.Context, user string) (*decibel.AccountOverview, error) {
	if o, ok := f.overview[user]; ok {
		return o, nil
	}
	return nil, errors.New("unavailable")
}

func (f *fakeMarketData) Positions(context.Context, string, int) ([]decibel.Position, error) {
	return f.positions, nil
}

func (f *fakeMarketData) OpenOrders(context.Context, string, int) ([]decibel.Order, error) {
	return f.orders, nil
}

func (f *fakeMarketData) PrimarySubaccount(context.Context, string) (decibel.Subaccount, bool, error) {
	if f.primary == nil {
		return decibel.Subaccount{}, false, nil
	}
	return *f.primary, true, nil
}

type fakeMood struct{}

func (fakeMood) MarketSentiment(context.Context) sentiment.Sentiment {
	return sentiment.Sentiment{OverallSentiment: "Neutral", Value: 50}
}

func newFakeMarketData() *fakeMarketData {
	return &fakeMarketData{
		markets: map[string]decibel.Market{
			"BTC/USD": {MarketAddr: "0xbtc", MarketName: "BTC/USD"},
			"APT/USD": {MarketAddr: "0xapt", MarketName: "APT/USD"},
			"ETH/USD": {MarketAddr: "0xeth", MarketName: "ETH/USD"},
			"SOL/USD": {MarketAddr: "0xsol", MarketName: "SOL/USD"},
		},
		overview: map[string]*decibel.AccountOverview{
			"0xowner": {PerpEquityBalance: 1000},
			"0xsub":   {PerpEquityBalance: 400},
		},
		primary: &decibel.Subaccount{SubaccountAddress: "0xsub", IsPrimary: true, IsActive: true},
		candles: map[string][]decibel.Candle{
			"1h": {{Close: 100}},
		},
	}
}

func TestBuildContextAggregates(t *testing.T) {
	dex := newFakeMarketData()
	builder := NewContextBuilder(dex, fakeMood{}, nil)

	out := builder.Build(context.Background(), "0xowner", "")
	if out.AccountOverview == nil || out.AccountOverview.PerpEquityBalance != 1000 {
		t.Fatalf("overview = %+v", out.AccountOverview)
	}
	if out.PrimarySubaccountOverview == nil || out.PrimarySubaccountOverview.PerpEquityBalance != 400 {
		t.Fatalf("sub overview = %+v", out.PrimarySubaccountOverview)
	}
	if out.Sentiment == nil || out.Sentiment.Value != 50 {
		t.Fatalf("sentiment = %+v", out.Sentiment)
	}
	if len(out.AllMarkets) != 3 {
		t.Fatalf("markets fetched = %d", len(out.AllMarkets))
	}
	if out.Primary == nil || out.Primary.Market.MarketName != "BTC/USD" {
		t.Fatalf("primary = %+v", out.Primary)
	}
	if out.Primary.OrderBook == nil || len(out.Primary.Trades) != 1 {
		t.Fatalf("primary bundle = %+v", out.Primary)
	}
	if len(out.Primary.Candlesticks["1h"]) != 1 {
		t.Fatalf("candles = %+v", out.Primary.Candlesticks)
	}
}

func TestBuildContextRequestedMarketFirst(t *testing.T) {
	dex := newFakeMarketData()
	builder := NewContextBuilder(dex, nil, nil)

	out := builder.Build(context.Background(), "0xowner", "SOL/USD")
	if out.Primary == nil || out.Primary.Market.MarketName != "SOL/USD" {
		t.Fatalf("primary = %+v", out.Primary)
	}
	if len(out.AllMarkets) != 4 {
		t.Fatalf("markets fetched = %d", len(out.AllMarkets))
	}
}

func TestBuildContextToleratesMissingAccount(t *testing.T) {
	dex := newFakeMarketData()
	dex.overview = map[string]*decibel.AccountOverview{}
	dex.primary = nil
	builder := NewContextBuilder(dex, nil, nil)

	out := builder.Build(context.Background(), "0xnobody", "")
	if out.AccountOverview != nil || out.PrimarySubaccountOverview != nil {
		t.Fatalf("expected nil overviews, got %+v / %+v", out.AccountOverview, out.PrimarySubaccountOverview)
	}
	if out.Primary == nil {
		t.Fatal("market data should still load")
	}
}

func TestMarketsToFetchDeduplicates(t *testing.T) {
	names := marketsToFetch("BTC/USD")
	if len(names) != 3 || names[0] != "BTC/USD" {
		t.Fatalf("names = %v", names)
	}
}

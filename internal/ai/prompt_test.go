package ai

import (
	"strings"
	"testing"

	"alphaflow-backend/internal/decibel"
	"alphaflow-backend/internal/sentiment"
)

func TestBuildSystemPromptEmptyContext(t *testing.T) {
	prompt := BuildSystemPrompt(&Context{})
	for _, want := range []string{
		"STRICT JSON format",
		"No sentiment data available",
		"No market data available",
		"No account data available",
		"No open positions",
		"No open orders",
		"No chart data available",
		"No order book data available",
		"No recent trades",
		"Risk Management:",
	} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
}

func TestBuildSystemPromptRendersContext(t *testing.T) {
	price := 50000.0
	size := 0.25
	ctx := &Context{
		WalletAddress: "0xowner",
		Sentiment: &sentiment.Sentiment{
			OverallSentiment: "Greed",
			Value:            72,
			Classification:   "Greed",
		},
		Markets: []decibel.Market{
			{MarketAddr: "0xbtc", MarketName: "BTC/USD", MaxLeverage: 50, MinSize: 100, TickSize: 50},
		},
		Prices: []decibel.Price{
			{Market: "0xbtc", OraclePx: 50010, MarkPx: 50000, MidPx: 50005, FundingRateBps: 12, OpenInterest: 1000000},
		},
		AccountOverview: &decibel.AccountOverview{
			PerpEquityBalance:            12345.67,
			USDCCrossWithdrawableBalance: 4000,
		},
		Positions: []decibel.Position{
			{Market: "0xbtc", Size: 0.5, EntryPrice: 48000, UserLeverage: 5, EstimatedLiquidationPrice: 40000},
		},
		OpenOrders: []decibel.Order{
			{Market: "0xbtc", IsBuy: true, Price: &price, RemainingSize: &size, Status: "open"},
		},
		Primary: &MarketBundle{
			Market: decibel.Market{MarketAddr: "0xbtc", MarketName: "BTC/USD"},
			OrderBook: &decibel.OrderBook{
				Bids: []decibel.BookLevel{{Price: 49990, Size: 1}},
				Asks: []decibel.BookLevel{{Price: 50010, Size: 2}},
			},
			Trades: []decibel.Trade{
				{Action: "buy", Size: 0.1, Price: 50000, TransactionUnixMS: 1700000000000},
			},
			Candlesticks: map[string][]decibel.Candle{
				"1h": {
					{Start: 1700000000000, Open: 49000, High: 50500, Low: 48800, Close: 50000, Volume: 12},
				},
			},
		},
	}
	prompt := BuildSystemPrompt(ctx)
	for _, want := range []string{
		"Overall Sentiment: Greed (Value: 72/100)",
		"BTC/USD (0xbtc): Max leverage 50x",
		"- BTC/USD: Oracle $50010, Mark $50000",
		"Funding 0.1200%",
		"- Equity: $12345.67",
		"1. BTC/USD: Size 0.5, Entry $48000",
		"BUY 0.25 @ $50000, Status: open",
		"1H Timeframe (last 1 candles)",
		"Spread: $20.00",
		"1. BUY 0.1 @ $50000.00",
	} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
	// position and order markets are resolved to names
	if strings.Contains(prompt, "1. 0xbtc:") {
		t.Error("market address leaked into positions section")
	}
}

func TestBuildSystemPromptElidesLongCandleRuns(t *testing.T) {
	candles := make([]decibel.Candle, 30)
	for i := range candles {
		candles[i] = decibel.Candle{
			Start: int64(1700000000000 + i*3600000),
			Open:  100, High: 110, Low: 90, Close: 105, Volume: 1,
		}
	}
	ctx := &Context{
		Primary: &MarketBundle{
			Candlesticks: map[string][]decibel.Candle{"1h": candles},
		},
	}
	prompt := BuildSystemPrompt(ctx)
	if !strings.Contains(prompt, "... (20 more candles) ...") {
		t.Fatal("expected elision marker for long candle run")
	}
	if !strings.Contains(prompt, "Summary: Current=$105.00") {
		t.Fatal("expected timeframe summary")
	}
}

func TestBuildSystemPromptCapsCandlesPerTimeframe(t *testing.T) {
	candles := make([]decibel.Candle, 100)
	for i := range candles {
		candles[i] = decibel.Candle{Close: float64(i), Volume: 1}
	}
	ctx := &Context{
		Primary: &MarketBundle{
			Candlesticks: map[string][]decibel.Candle{"1w": candles},
		},
	}
	prompt := BuildSystemPrompt(ctx)
	if !strings.Contains(prompt, "1W Timeframe (last 10 candles)") {
		t.Fatal("expected 1w limit of 10 candles")
	}
}

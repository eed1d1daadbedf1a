package ai

import (
	"fmt"
	"math"
	"strings"
	"time"

	"alphaflow-backend/internal/decibel"
)

// How many candles of each timeframe make it into the prompt.
var candleLimits = map[string]int{
	"15m": 48,
	"1h":  72,
	"4h":  42,
	"1d":  30,
	"1w":  10,
}

var promptTimeframes = []string{"15m", "1h", "4h", "1d", "1w"}

const promptHeader = `You are an expert AI Trading Assistant for Decibel, a decentralized perpetual futures exchange on Aptos blockchain.

Your role is to:
1. Analyze market conditions and provide insights
2. Answer questions about user's account, positions, and orders
3. Suggest trades based on market analysis and user's risk profile
4. Provide clear, actionable trading advice

CRITICAL: You MUST respond in STRICT JSON format only. No markdown, no code blocks, just pure JSON.

Response Format (ALWAYS use this exact structure):
{
  "action": "query_balance" | "analyze_market" | "suggest_trade" | "place_order" | "chat",
  "message": "Human-readable response message",
  "data": { /* optional additional data */ },
  "tradeSuggestion": { /* use for SINGLE trade suggestion */
    "market": "BTC/USD" | "APT/USD" | "ETH/USD" | etc (use forward slash format),
    "side": "buy" | "sell",
    "size": 0.5,
    "orderType": "market" | "limit",
    "price": 45000, /* required if orderType is "limit" */
    "slPrice": 44000, /* optional stop loss */
    "tpPrice": 46000, /* optional take profit */
    "leverage": 5, /* optional, 1-50 */
    "reasoning": "Detailed explanation of why this trade is suggested",
    "risk": "low" | "medium" | "high",
    "confidence": 0.85 /* 0-1 scale */
  }
  OR (if user asks for MULTIPLE trades like "give 2-3 trades"):
  "tradeSuggestions": [ /* array of trade suggestions, mark ONE as "preferred": true */ ]
}`

const promptGuidelines = `Market Analysis Guidelines:
1. Analyze price trends, volume, and funding rates
2. Consider order book depth and recent trades
3. Assess market sentiment (bullish/bearish/neutral)
4. Identify support/resistance levels from candlestick data
5. Evaluate risk/reward ratios

Trade Suggestion Guidelines:
1. Always consider user's current balance and margin requirements
2. Suggest appropriate position sizes (don't over-leverage)
3. Recommend stop losses for risk management
4. Provide clear reasoning based on technical and fundamental analysis
5. Indicate confidence level (0-1) and risk level (low/medium/high)
6. Use market orders for immediate execution, limit orders for better prices
7. When providing multiple trade suggestions, mark ONE as "preferred": true - the trade with the best risk-reward ratio or highest confidence
8. The preferred trade should be called out in the reasoning as the primary recommendation

Risk Management:
- Never suggest trades that would exceed user's available balance
- Always recommend stop losses for leveraged positions
- Consider current leverage ratio when suggesting new positions
- Warn about high-risk trades

Remember:
- Respond ONLY in valid JSON format
- Be concise but informative
- Provide actionable insights
- Always include reasoning for trade suggestions
- Consider user's current positions when suggesting new trades`

// BuildSystemPrompt renders the trading context into the system prompt.
func BuildSystemPrompt(ctx *Context) string {
	if ctx == nil {
		ctx = &Context{}
	}
	var b strings.Builder
	b.WriteString(promptHeader)
	b.WriteString("\n\n")

	writeSentiment(&b, ctx)
	writeMarkets(&b, ctx)
	writePrices(&b, ctx)
	writeAccount(&b, ctx)
	writePositions(&b, ctx)
	writeOpenOrders(&b, ctx)
	writeCandles(&b, ctx)
	writeOrderBook(&b, ctx)
	writeTrades(&b, ctx)

	b.WriteString(promptGuidelines)
	return b.String()
}

func writeSentiment(b *strings.Builder, ctx *Context) {
	b.WriteString("Market Sentiment (Current):\n")
	s := ctx.Sentiment
	if s == nil {
		b.WriteString("No sentiment data available\n\n")
		return
	}
	fmt.Fprintf(b, "- Overall Sentiment: %s (Value: %d/100)\n", s.OverallSentiment, s.Value)
	fmt.Fprintf(b, "- Classification: %s\n", s.Classification)
	if s.MarketAnalysis != nil {
		if btc := s.MarketAnalysis.BTC; btc != nil {
			fmt.Fprintf(b, "- BTC: %s (Price: $%.2f, 24h: %.2f%%)\n", btc.Sentiment, btc.Price, btc.Change24H)
		}
		if eth := s.MarketAnalysis.ETH; eth != nil {
			fmt.Fprintf(b, "- ETH: %s (Price: $%.2f, 24h: %.2f%%)\n", eth.Sentiment, eth.Price, eth.Change24H)
		}
	}
	b.WriteString("\n")
}

func writeMarkets(b *strings.Builder, ctx *Context) {
	b.WriteString("Available Markets:\n")
	if len(ctx.Markets) == 0 {
		b.WriteString("No market data available\n\n")
		return
	}
	for _, m := range ctx.Markets {
		fmt.Fprintf(b, "- %s (%s): Max leverage %.0fx, Min size %v, Tick size %d\n",
			m.MarketName, m.MarketAddr, m.MaxLeverage, m.MinSize, m.TickSize)
	}
	b.WriteString("\n")
}

func writePrices(b *strings.Builder, ctx *Context) {
	b.WriteString("Current Market Prices:\n")
	if len(ctx.Prices) == 0 {
		b.WriteString("No price data available\n\n")
		return
	}
	for _, p := range ctx.Prices {
		fmt.Fprintf(b, "- %s: Oracle $%v, Mark $%v, Mid $%v, Funding %.4f%%, OI $%.2f\n",
			ctx.marketName(p.Market), p.OraclePx, p.MarkPx, p.MidPx, p.FundingRateBps/100, p.OpenInterest)
	}
	b.WriteString("\n")
}

func writeAccount(b *strings.Builder, ctx *Context) {
	b.WriteString("User Account Status:\n")
	overview := ctx.AccountOverview
	if overview == nil {
		b.WriteString("No account data available\n\n")
		return
	}
	fmt.Fprintf(b, "- Equity: $%.2f\n", overview.PerpEquityBalance)
	fmt.Fprintf(b, "- Unrealized P&L: $%.2f\n", overview.UnrealizedPnl)
	fmt.Fprintf(b, "- Available Balance: $%.2f\n", overview.USDCCrossWithdrawableBalance)
	fmt.Fprintf(b, "- Total Margin: $%.2f\n", overview.TotalMargin)
	fmt.Fprintf(b, "- Leverage Ratio: %.2fx\n", overview.CrossAccountLeverageRatio)
	fmt.Fprintf(b, "- Maintenance Margin: $%.2f\n", overview.MaintenanceMargin)
	if sub := ctx.PrimarySubaccountOverview; sub != nil {
		b.WriteString("Primary Subaccount Balance:\n")
		fmt.Fprintf(b, "- Primary Subaccount Equity: $%.2f\n", sub.PerpEquityBalance)
		fmt.Fprintf(b, "- Primary Subaccount Available Balance: $%.2f\n", sub.USDCCrossWithdrawableBalance)
		fmt.Fprintf(b, "- Primary Subaccount Total Margin: $%.2f\n", sub.TotalMargin)
		fmt.Fprintf(b, "NOTE: The Available Balance shown above ($%.2f) is the TOTAL balance including both main wallet and primary subaccount. The primary subaccount balance is $%.2f.\n",
			overview.USDCCrossWithdrawableBalance, sub.USDCCrossWithdrawableBalance)
	}
	b.WriteString("\n")
}

func writePositions(b *strings.Builder, ctx *Context) {
	b.WriteString("User Positions:\n")
	if len(ctx.Positions) == 0 {
		b.WriteString("No open positions\n\n")
		return
	}
	for i, pos := range ctx.Positions {
		fmt.Fprintf(b, "%d. %s: Size %v, Entry $%v, Leverage %vx, Liq Price $%v\n",
			i+1, ctx.marketName(pos.Market), pos.Size, pos.EntryPrice, pos.UserLeverage, pos.EstimatedLiquidationPrice)
	}
	b.WriteString("\n")
}

func writeOpenOrders(b *strings.Builder, ctx *Context) {
	b.WriteString("User Open Orders:\n")
	if len(ctx.OpenOrders) == 0 {
		b.WriteString("No open orders\n\n")
		return
	}
	for i, order := range ctx.OpenOrders {
		side := "SELL"
		if order.IsBuy {
			side = "BUY"
		}
		size := order.OrigSize
		if order.RemainingSize != nil {
			size = order.RemainingSize
		}
		price := "Market"
		if order.Price != nil {
			price = fmt.Sprintf("%v", *order.Price)
		}
		fmt.Fprintf(b, "%d. %s: %s %v @ $%s, Status: %s\n",
			i+1, ctx.marketName(order.Market), side, deref(size), price, order.Status)
	}
	b.WriteString("\n")
}

func writeCandles(b *strings.Builder, ctx *Context) {
	b.WriteString("Chart Data (Candlestick/OHLC):\n")
	if ctx.Primary == nil || len(ctx.Primary.Candlesticks) == 0 {
		b.WriteString("No chart data available\n\n")
		return
	}
	for _, tf := range promptTimeframes {
		candles := ctx.Primary.Candlesticks[tf]
		if len(candles) == 0 {
			continue
		}
		limit := candleLimits[tf]
		if limit == 0 {
			limit = 20
		}
		recent := candles
		if len(recent) > limit {
			recent = recent[len(recent)-limit:]
		}
		fmt.Fprintf(b, "\n%s Timeframe (last %d candles):\n", strings.ToUpper(tf), len(recent))
		if len(recent) > 10 {
			writeCandleLines(b, recent[:5], 1)
			fmt.Fprintf(b, "  ... (%d more candles) ...\n", len(recent)-10)
			writeCandleLines(b, recent[len(recent)-5:], len(recent)-4)
		} else {
			writeCandleLines(b, recent, 1)
		}
		writeCandleSummary(b, recent)
	}
	b.WriteString("\n\n")
}

func writeCandleLines(b *strings.Builder, candles []decibel.Candle, startIndex int) {
	for i, c := range candles {
		fmt.Fprintf(b, "  %d. %s: O=$%.2f, H=$%.2f, L=$%.2f, C=$%.2f, Vol=%.2f\n",
			startIndex+i, time.UnixMilli(c.Start).UTC().Format(time.RFC3339),
			c.Open, c.High, c.Low, c.Close, c.Volume)
	}
}

func writeCandleSummary(b *strings.Builder, candles []decibel.Candle) {
	if len(candles) == 0 {
		return
	}
	var sumClose, sumVolume, highest, lowest float64
	lowest = math.MaxFloat64
	for _, c := range candles {
		sumClose += c.Close
		sumVolume += c.Volume
		highest = math.Max(highest, c.High)
		lowest = math.Min(lowest, c.Low)
	}
	n := float64(len(candles))
	avg := sumClose / n
	current := candles[len(candles)-1].Close
	change := 0.0
	if first := candles[0].Close; first != 0 {
		change = (current - first) / first * 100
	}
	var variance float64
	for _, c := range candles {
		variance += (c.Close - avg) * (c.Close - avg)
	}
	volatility := math.Sqrt(variance / n)
	fmt.Fprintf(b, "  Summary: Current=$%.2f, Avg=$%.2f, High=$%.2f, Low=$%.2f, Change=%.2f%%, Volatility=$%.2f, Avg Vol=%.2f\n",
		current, avg, highest, lowest, change, volatility, sumVolume/n)
}

func writeOrderBook(b *strings.Builder, ctx *Context) {
	b.WriteString("Order Book Depth:\n")
	if ctx.Primary == nil || ctx.Primary.OrderBook == nil {
		b.WriteString("No order book data available\n\n")
		return
	}
	book := ctx.Primary.OrderBook
	b.WriteString("Bids (Top 20):\n")
	writeBookSide(b, book.Bids)
	b.WriteString("Asks (Top 20):\n")
	writeBookSide(b, book.Asks)
	if len(book.Asks) > 0 && len(book.Bids) > 0 {
		fmt.Fprintf(b, "Spread: $%.2f\n", book.Asks[0].Price-book.Bids[0].Price)
	} else {
		b.WriteString("Spread: N/A\n")
	}
	b.WriteString("\n")
}

func writeBookSide(b *strings.Builder, levels []decibel.BookLevel) {
	if len(levels) == 0 {
		b.WriteString("  (empty)\n")
		return
	}
	if len(levels) > 20 {
		levels = levels[:20]
	}
	for i, level := range levels {
		fmt.Fprintf(b, "  %d. $%.2f (Size: %v)\n", i+1, level.Price, level.Size)
	}
}

func writeTrades(b *strings.Builder, ctx *Context) {
	b.WriteString("Recent Trades (Last 50):\n")
	if ctx.Primary == nil || len(ctx.Primary.Trades) == 0 {
		b.WriteString("No recent trades\n\n")
		return
	}
	trades := ctx.Primary.Trades
	if len(trades) > 50 {
		trades = trades[:50]
	}
	for i, trade := range trades {
		fmt.Fprintf(b, "%d. %s %v @ $%.2f (%s)\n",
			i+1, strings.ToUpper(trade.Action), trade.Size, trade.Price,
			time.UnixMilli(trade.TransactionUnixMS).UTC().Format(time.RFC3339))
	}
	b.WriteString("\n")
}

func (c *Context) marketName(addr string) string {
	for _, m := range c.Markets {
		if m.MarketAddr == addr {
			return m.MarketName
		}
	}
	return addr
}

func deref(f *float64) float64 {
	if f == nil {
		return 0
	}
	return *f
}

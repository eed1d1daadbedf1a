package rewards

import (
	"math"

	"alphaflow-backend/internal/decibel"
)

// Stats summarizes a user's trading activity for points purposes.
type Stats struct {
	TotalVolume      float64 `json:"totalVolume"`
	TotalTrades      int     `json:"totalTrades"`
	ProfitableTrades int     `json:"profitableTrades"`
	TotalPnL         float64 `json:"totalPnL"`
	WinRate          float64 `json:"winRate"`
}

// StatsFromTrades folds exchange fills into aggregate stats.
func StatsFromTrades(trades []decibel.Trade) Stats {
	var stats Stats
	for _, t := range trades {
		stats.TotalVolume += t.Size * t.Price
		stats.TotalPnL += t.RealizedPnlAmount
		if t.IsProfit {
			stats.ProfitableTrades++
		}
	}
	stats.TotalTrades = len(trades)
	if stats.TotalTrades > 0 {
		stats.WinRate = float64(stats.ProfitableTrades) / float64(stats.TotalTrades) * 100
	}
	return stats
}

// Points scores trading activity: a point per $100 of volume, 5 per trade,
// 10 per profitable trade, and a point per $10 of positive PnL.
func Points(stats Stats) int64 {
	points := int64(math.Floor(stats.TotalVolume / 100))
	points += int64(stats.TotalTrades) * 5
	points += int64(stats.ProfitableTrades) * 10
	if stats.TotalPnL > 0 {
		points += int64(math.Floor(stats.TotalPnL / 10))
	}
	if points < 0 {
		return 0
	}
	return points
}

type tier struct {
	Name      string
	MinPoints int64
}

var tiers = []tier{
	{"bronze", 0},
	{"silver", 1000},
	{"gold", 5000},
	{"platinum", 10000},
	{"vip", 50000},
}

// TierInfo places a points total on the tier ladder.
type TierInfo struct {
	Tier         string  `json:"tier"`
	NextTier     string  `json:"nextTier"`
	PointsToNext int64   `json:"pointsToNext"`
	Progress     float64 `json:"progress"`
}

func Tier(points int64) TierInfo {
	current := tiers[0]
	next := tiers[1]
	for i := len(tiers) - 1; i >= 0; i-- {
		if points >= tiers[i].MinPoints {
			current = tiers[i]
			if i+1 < len(tiers) {
				next = tiers[i+1]
			} else {
				next = tiers[i]
			}
			break
		}
	}
	info := TierInfo{Tier: current.Name, NextTier: next.Name}
	if current == next {
		info.Progress = 100
		return info
	}
	info.PointsToNext = next.MinPoints - points
	if info.PointsToNext < 0 {
		info.PointsToNext = 0
	}
	progress := float64(points-current.MinPoints) / float64(next.MinPoints-current.MinPoints) * 100
	info.Progress = math.Max(0, math.Min(100, progress))
	return info
}

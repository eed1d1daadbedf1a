package rewards

import (
	"testing"

	"alphaflow-backend/internal/decibel"
)

func TestPoints(t *testing.T) {
	cases := []struct {
		name  string
		stats Stats
		want  int64
	}{
		{"zero activity", Stats{}, 0},
		{"volume only", Stats{TotalVolume: 1050}, 10},
		{"trades only", Stats{TotalTrades: 3}, 15},
		{"profitable bonus", Stats{TotalTrades: 2, ProfitableTrades: 2}, 30},
		{"positive pnl", Stats{TotalPnL: 95}, 9},
		{"negative pnl ignored", Stats{TotalVolume: 200, TotalPnL: -500}, 2},
		{
			"combined",
			Stats{TotalVolume: 10000, TotalTrades: 10, ProfitableTrades: 6, TotalPnL: 250},
			100 + 50 + 60 + 25,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Points(tc.stats); got != tc.want {
				t.Fatalf("Points(%+v) = %d, want %d", tc.stats, got, tc.want)
			}
		})
	}
}

func TestTierLadder(t *testing.T) {
	cases := []struct {
		points       int64
		tier         string
		nextTier     string
		pointsToNext int64
	}{
		{0, "bronze", "silver", 1000},
		{999, "bronze", "silver", 1},
		{1000, "silver", "gold", 4000},
		{5000, "gold", "platinum", 5000},
		{10000, "platinum", "vip", 40000},
		{50000, "vip", "vip", 0},
		{90000, "vip", "vip", 0},
	}
	for _, tc := range cases {
		info := Tier(tc.points)
		if info.Tier != tc.tier || info.NextTier != tc.nextTier || info.PointsToNext != tc.pointsToNext {
			t.Errorf("Tier(%d) = %+v", tc.points, info)
		}
	}
}

func TestTierProgress(t *testing.T) {
	info := Tier(500)
	if info.Progress != 50 {
		t.Fatalf("progress = %v", info.Progress)
	}
	if top := Tier(60000); top.Progress != 100 {
		t.Fatalf("vip progress = %v", top.Progress)
	}
}

func TestStatsFromTrades(t *testing.T) {
	trades := []decibel.Trade{
		{Size: 0.5, Price: 50000, IsProfit: true, RealizedPnlAmount: 120},
		{Size: 1, Price: 3000, IsProfit: false, RealizedPnlAmount: -40},
	}
	stats := StatsFromTrades(trades)
	if stats.TotalVolume != 28000 {
		t.Fatalf("volume = %v", stats.TotalVolume)
	}
	if stats.TotalTrades != 2 || stats.ProfitableTrades != 1 {
		t.Fatalf("stats = %+v", stats)
	}
	if stats.TotalPnL != 80 {
		t.Fatalf("pnl = %v", stats.TotalPnL)
	}
	if stats.WinRate != 50 {
		t.Fatalf("win rate = %v", stats.WinRate)
	}
}

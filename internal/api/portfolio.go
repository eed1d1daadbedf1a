package api

import (
	"net/http"
	"sort"
	"strconv"

	"go.uber.org/zap"

	"alphaflow-backend/internal/decibel"
	"alphaflow-backend/internal/rewards"
)

// userAddress pulls the wallet address the portfolio endpoints operate
// on. These routes are public: the frontend also shows read-only
// portfolios for delegated subaccounts.
func (s *Server) userAddress(w http.ResponseWriter, r *http.Request) (string, bool) {
	addr := r.URL.Query().Get("user")
	if addr == "" {
		s.writeError(w, http.StatusBadRequest, "User address is required")
		return "", false
	}
	return addr, true
}

func intQuery(r *http.Request, name string, fallback int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return fallback
	}
	return n
}

// primaryActiveSubaccount finds the subaccount portfolio data is merged
// from. Lookup failures degrade to main-wallet-only results.
func (s *Server) primaryActiveSubaccount(r *http.Request, owner string) string {
	subaccounts, err := s.dex.Subaccounts(r.Context(), owner)
	if err != nil {
		s.log.Warn("subaccount lookup failed", zap.String("owner", owner), zap.Error(err))
		return ""
	}
	for _, sub := range subaccounts {
		if sub.IsPrimary && sub.IsActive {
			return sub.SubaccountAddress
		}
	}
	return ""
}

// mergeOverviews sums balances across the main wallet and subaccount.
// Ratio fields are not additive, so the subaccount's are preferred: that
// is where positions live once trading is delegated.
func mergeOverviews(main, sub *decibel.AccountOverview) *decibel.AccountOverview {
	if main == nil && sub == nil {
		return nil
	}
	if main == nil {
		main = &decibel.AccountOverview{}
	}
	combined := *main
	if sub != nil {
		combined.PerpEquityBalance += sub.PerpEquityBalance
		combined.UnrealizedPnl += sub.UnrealizedPnl
		combined.UnrealizedFundingCost += sub.UnrealizedFundingCost
		combined.MaintenanceMargin += sub.MaintenanceMargin
		combined.TotalMargin += sub.TotalMargin
		combined.USDCCrossWithdrawableBalance += sub.USDCCrossWithdrawableBalance
		combined.USDCIsolatedWithdrawableBalance += sub.USDCIsolatedWithdrawableBalance
		combined.CrossMarginRatio = sub.CrossMarginRatio
		combined.CrossAccountLeverageRatio = sub.CrossAccountLeverageRatio
	}
	return &combined
}

func (s *Server) handlePortfolioOverview(w http.ResponseWriter, r *http.Request) {
	owner, ok := s.userAddress(w, r)
	if !ok {
		return
	}
	ctx := r.Context()

	main, err := s.dex.AccountOverview(ctx, owner)
	if err != nil {
		s.log.Warn("account overview failed", zap.Error(err))
		s.writeError(w, http.StatusBadGateway, "Could not fetch account overview")
		return
	}

	subAddr := s.primaryActiveSubaccount(r, owner)
	var sub *decibel.AccountOverview
	if subAddr != "" {
		sub, err = s.dex.AccountOverview(ctx, subAddr)
		if err != nil {
			s.log.Warn("subaccount overview failed", zap.Error(err))
			sub = nil
		}
	}

	s.writeJSON(w, http.StatusOK, map[string]any{
		"mainWallet":               main,
		"primarySubaccount":        sub,
		"primarySubaccountAddress": subAddr,
		"combined":                 mergeOverviews(main, sub),
	})
}

func (s *Server) handlePortfolioPositions(w http.ResponseWriter, r *http.Request) {
	owner, ok := s.userAddress(w, r)
	if !ok {
		return
	}
	limit := intQuery(r, "limit", 100)

	positions, err := s.dex.Positions(r.Context(), owner, limit)
	if err != nil {
		s.writeError(w, http.StatusBadGateway, "Could not fetch positions")
		return
	}
	if subAddr := s.primaryActiveSubaccount(r, owner); subAddr != "" {
		subPositions, err := s.dex.Positions(r.Context(), subAddr, limit)
		if err != nil {
			s.log.Warn("subaccount positions failed", zap.Error(err))
		} else {
			positions = append(positions, subPositions...)
		}
	}
	if positions == nil {
		positions = []decibel.Position{}
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"positions": positions})
}

func (s *Server) handlePortfolioTrades(w http.ResponseWriter, r *http.Request) {
	owner, ok := s.userAddress(w, r)
	if !ok {
		return
	}
	limit := intQuery(r, "limit", 50)

	trades, err := s.mergedTradeHistory(r, owner, limit)
	if err != nil {
		s.writeError(w, http.StatusBadGateway, "Could not fetch trade history")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"trades": trades})
}

// mergedTradeHistory combines main wallet and subaccount fills, newest
// first.
func (s *Server) mergedTradeHistory(r *http.Request, owner string, limit int) ([]decibel.Trade, error) {
	trades, err := s.dex.TradeHistory(r.Context(), owner, limit)
	if err != nil {
		return nil, err
	}
	if subAddr := s.primaryActiveSubaccount(r, owner); subAddr != "" {
		subTrades, err := s.dex.TradeHistory(r.Context(), subAddr, limit)
		if err != nil {
			s.log.Warn("subaccount trade history failed", zap.Error(err))
		} else {
			trades = append(trades, subTrades...)
		}
	}
	sort.Slice(trades, func(i, j int) bool {
		return trades[i].TransactionUnixMS > trades[j].TransactionUnixMS
	})
	if trades == nil {
		trades = []decibel.Trade{}
	}
	return trades, nil
}

func (s *Server) handleOpenOrders(w http.ResponseWriter, r *http.Request) {
	owner, ok := s.userAddress(w, r)
	if !ok {
		return
	}
	limit := intQuery(r, "limit", 100)

	orders, err := s.dex.OpenOrders(r.Context(), owner, limit)
	if err != nil {
		s.writeError(w, http.StatusBadGateway, "Could not fetch open orders")
		return
	}
	if subAddr := s.primaryActiveSubaccount(r, owner); subAddr != "" {
		subOrders, err := s.dex.OpenOrders(r.Context(), subAddr, limit)
		if err != nil {
			s.log.Warn("subaccount open orders failed", zap.Error(err))
		} else {
			orders = append(orders, subOrders...)
		}
	}
	if orders == nil {
		orders = []decibel.Order{}
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"orders": orders})
}

func (s *Server) handleOrderHistory(w http.ResponseWriter, r *http.Request) {
	owner, ok := s.userAddress(w, r)
	if !ok {
		return
	}

	history, err := s.dex.OrderHistory(r.Context(), owner)
	if err != nil {
		s.writeError(w, http.StatusBadGateway, "Could not fetch order history")
		return
	}
	orders := history.Items
	total := history.TotalCount
	if subAddr := s.primaryActiveSubaccount(r, owner); subAddr != "" {
		subHistory, err := s.dex.OrderHistory(r.Context(), subAddr)
		if err != nil {
			s.log.Warn("subaccount order history failed", zap.Error(err))
		} else {
			orders = append(orders, subHistory.Items...)
			total += subHistory.TotalCount
		}
	}
	if orders == nil {
		orders = []decibel.Order{}
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"orders":     orders,
		"totalCount": total,
	})
}

func (s *Server) handleRewardsPoints(w http.ResponseWriter, r *http.Request) {
	owner, ok := s.userAddress(w, r)
	if !ok {
		return
	}

	trades, err := s.mergedTradeHistory(r, owner, 1000)
	if err != nil {
		s.writeError(w, http.StatusBadGateway, "Could not fetch trade history")
		return
	}
	stats := rewards.StatsFromTrades(trades)
	points := rewards.Points(stats)
	tier := rewards.Tier(points)

	s.writeJSON(w, http.StatusOK, map[string]any{
		"points":       points,
		"tier":         tier.Tier,
		"nextTier":     tier.NextTier,
		"pointsToNext": tier.PointsToNext,
		"progress":     tier.Progress,
		"stats":        stats,
	})
}

package api

import (
	"net/http"

	"go.uber.org/zap"

	"alphaflow-backend/internal/auth"
	"alphaflow-backend/internal/decibel"
)

type subaccountStatus struct {
	Address  string                   `json:"address"`
	IsActive bool                     `json:"isActive"`
	Balance  float64                  `json:"balance"`
	Overview *decibel.AccountOverview `json:"overview,omitempty"`
}

type accountStatusResponse struct {
	HasAccount         bool                     `json:"hasAccount"`
	HasBalance         bool                     `json:"hasBalance"`
	Balance            float64                  `json:"balance"`
	Subaccounts        []decibel.Subaccount     `json:"subaccounts"`
	PrimarySubaccount  *subaccountStatus        `json:"primarySubaccount,omitempty"`
	MainWalletOverview *decibel.AccountOverview `json:"mainWalletOverview,omitempty"`
}

// handleAccountStatus reports whether the caller has an exchange account,
// a funded main wallet and a primary subaccount. Upstream failures degrade
// to an empty status rather than an error.
func (s *Server) handleAccountStatus(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.UserFromContext(r.Context())
	if !ok {
		s.writeError(w, http.StatusUnauthorized, "Authorization required")
		return
	}
	ctx := r.Context()
	resp := accountStatusResponse{Subaccounts: []decibel.Subaccount{}}

	subaccounts, err := s.dex.Subaccounts(ctx, user.WalletAddress)
	if err != nil {
		s.log.Warn("subaccount lookup failed", zap.Error(err))
	} else {
		resp.Subaccounts = subaccounts
		resp.HasAccount = len(subaccounts) > 0
	}

	main, err := s.dex.AccountOverview(ctx, user.WalletAddress)
	if err != nil {
		s.log.Warn("main wallet overview failed", zap.Error(err))
	} else if main != nil {
		resp.MainWalletOverview = main
		resp.Balance = main.USDCCrossWithdrawableBalance
		resp.HasBalance = resp.Balance > 0
	}

	for _, sub := range subaccounts {
		if !sub.IsPrimary {
			continue
		}
		primary := &subaccountStatus{
			Address:  sub.SubaccountAddress,
			IsActive: sub.IsActive,
		}
		overview, err := s.dex.AccountOverview(ctx, sub.SubaccountAddress)
		if err != nil {
			s.log.Warn("subaccount overview failed", zap.Error(err))
		} else if overview != nil {
			primary.Overview = overview
			primary.Balance = overview.USDCCrossWithdrawableBalance
		}
		resp.PrimarySubaccount = primary
		break
	}

	s.writeJSON(w, http.StatusOK, resp)
}

package api

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"alphaflow-backend/internal/auth"
	"alphaflow-backend/internal/store"
)

type walletBody struct {
	WalletAddress string `json:"walletAddress"`
}

func (s *Server) handleWalletCheck(w http.ResponseWriter, r *http.Request) {
	var body walletBody
	if !s.decodeBody(w, r, &body) {
		return
	}
	if body.WalletAddress == "" {
		s.writeError(w, http.StatusBadRequest, "Wallet address is required")
		return
	}

	user, err := s.users.FindUserByWallet(r.Context(), body.WalletAddress)
	if errors.Is(err, store.ErrNotFound) {
		s.writeJSON(w, http.StatusOK, map[string]any{"exists": false})
		return
	}
	if err != nil {
		s.log.Error("wallet lookup failed", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "Could not check wallet")
		return
	}

	token, err := s.tokens.IssueSession(user.ID)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "Could not issue session")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"exists": true,
		"token":  token,
		"user":   user,
	})
}

func (s *Server) handleWalletLogin(w http.ResponseWriter, r *http.Request) {
	var body walletBody
	if !s.decodeBody(w, r, &body) {
		return
	}
	if body.WalletAddress == "" {
		s.writeError(w, http.StatusBadRequest, "Wallet address is required")
		return
	}

	user, err := s.users.FindOrCreateUser(r.Context(), body.WalletAddress, "petra")
	if err != nil {
		s.log.Error("wallet login failed", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "Could not log in")
		return
	}
	token, err := s.tokens.IssueSession(user.ID)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "Could not issue session")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"token": token,
		"user":  user,
	})
}

type photonOnboardBody struct {
	Email string `json:"email"`
}

// handlePhotonOnboard provisions an embedded wallet. A valid Bearer token
// links the wallet to the existing user; otherwise a fresh user is created
// for the returned wallet address.
func (s *Server) handlePhotonOnboard(w http.ResponseWriter, r *http.Request) {
	if s.photon == nil {
		s.writeError(w, http.StatusServiceUnavailable, "Photon is not configured")
		return
	}
	var body photonOnboardBody
	if !s.decodeBody(w, r, &body) {
		return
	}
	ctx := r.Context()

	existing := s.sessionUser(r)
	if existing != nil && existing.PhotonIdentityID != nil {
		token, err := s.tokens.IssueSession(existing.ID)
		if err != nil {
			s.writeError(w, http.StatusInternalServerError, "Could not issue session")
			return
		}
		s.writeJSON(w, http.StatusOK, map[string]any{
			"success":            true,
			"token":              token,
			"wallet_address":     existing.WalletAddress,
			"photon_identity_id": *existing.PhotonIdentityID,
			"user":               existing,
		})
		return
	}

	clientUserID := body.Email
	if clientUserID == "" {
		clientUserID = fmt.Sprintf("photon_%d_%s", s.now().UnixMilli(), randomHex(4))
	}
	subject := auth.IdentitySubject{
		Subject: clientUserID,
		Email:   body.Email,
		Name:    identityName(body.Email, clientUserID),
	}
	identityToken, err := s.tokens.IssueIdentity(subject)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "Could not issue identity token")
		return
	}

	reg, err := s.photon.Register(ctx, identityToken, clientUserID)
	if err != nil {
		s.log.Error("photon registration failed", zap.Error(err))
		s.writeError(w, http.StatusBadGateway, "Photon registration failed")
		return
	}
	walletAddress := reg.Data.Wallet.WalletAddress
	if walletAddress == "" {
		s.writeError(w, http.StatusInternalServerError, "Photon response missing wallet address")
		return
	}
	photonUserID := reg.Data.User.User.ID
	if photonUserID == "" {
		s.writeError(w, http.StatusInternalServerError, "Photon response missing user ID")
		return
	}

	user, err := s.onboardUser(r, existing, walletAddress, photonUserID, body.Email)
	if err != nil {
		s.log.Error("photon onboarding failed", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "Could not save user")
		return
	}
	token, err := s.tokens.IssueSession(user.ID)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "Could not issue session")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"success":            true,
		"token":              token,
		"wallet_address":     walletAddress,
		"photon_identity_id": photonUserID,
		"access_token":       reg.Data.Tokens.AccessToken,
		"refresh_token":      reg.Data.Tokens.RefreshToken,
		"user":               user,
	})
}

func (s *Server) onboardUser(r *http.Request, existing *store.User, walletAddress, photonUserID, email string) (*store.User, error) {
	ctx := r.Context()
	if existing != nil {
		return s.users.AttachPhotonIdentity(ctx, existing.ID, photonUserID, walletAddress)
	}
	user, err := s.users.FindUserByWallet(ctx, walletAddress)
	if errors.Is(err, store.ErrNotFound) {
		var emailPtr *string
		if email != "" {
			emailPtr = &email
		}
		user, err = s.users.CreateUser(ctx, walletAddress, "photon", emailPtr, nil)
	}
	if err != nil {
		return nil, err
	}
	return s.users.AttachPhotonIdentity(ctx, user.ID, photonUserID, walletAddress)
}

// sessionUser resolves an optional Bearer token; nil means anonymous.
func (s *Server) sessionUser(r *http.Request) *store.User {
	header := r.Header.Get("Authorization")
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || token == "" {
		return nil
	}
	userID, err := s.tokens.VerifySession(token)
	if err != nil {
		return nil
	}
	user, err := s.users.FindUserByID(r.Context(), userID)
	if err != nil {
		return nil
	}
	return user
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.UserFromContext(r.Context())
	if !ok {
		s.writeError(w, http.StatusUnauthorized, "Authorization required")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"user": user})
}

func (s *Server) handleUpdateMe(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.UserFromContext(r.Context())
	if !ok {
		s.writeError(w, http.StatusUnauthorized, "Authorization required")
		return
	}
	var update store.UserUpdate
	if !s.decodeBody(w, r, &update) {
		return
	}
	updated, err := s.users.UpdateUser(r.Context(), user.ID, update)
	if err != nil {
		s.log.Error("user update failed", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "Could not update user")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"user": updated})
}

func identityName(email, fallback string) string {
	if email != "" {
		if i := strings.IndexByte(email, '@'); i > 0 {
			return email[:i]
		}
		return email
	}
	return fallback
}

func randomHex(n int) string {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "00000000"[:n*2]
	}
	return hex.EncodeToString(b)
}

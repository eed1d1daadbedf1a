package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"alphaflow-backend/internal/trading"
)

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Warn("response encode failed", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}

func (s *Server) rejectAuth(w http.ResponseWriter, status int, message string) {
	s.writeError(w, status, message)
}

func (s *Server) decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid request body")
		return false
	}
	return true
}

// writeTradingError maps service errors onto HTTP statuses: caller
// mistakes are 400s, a missing custody wallet is a 500, everything else
// is an upstream failure.
func (s *Server) writeTradingError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, trading.ErrBackendWalletNotConfigured):
		s.writeError(w, http.StatusInternalServerError, err.Error())
	case trading.IsInputError(err):
		s.writeError(w, http.StatusBadRequest, err.Error())
	default:
		s.log.Warn("trading request failed", zap.Error(err))
		s.writeError(w, http.StatusBadGateway, err.Error())
	}
}

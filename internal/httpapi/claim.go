package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"devbridge-go/internal/credentials"
)

const maxClaimBody = 16 << 10

type claimRequest struct {
	AuthCode  string `json:"authCode"`
	SessionID string `json:"sessionId"`
}

type claimResponse struct {
	Success bool `json:"success"`
}

// handleClaimSession moves a pending credential entry into a live session.
func (s *Server) handleClaimSession(w http.ResponseWriter, r *http.Request) {
	log := GetLogger(r.Context())

	if !s.claimLimiter.Allow(clientKey(r)) {
		s.writeError(w, http.StatusTooManyRequests, "too many claim attempts, retry later")
		return
	}

	var req claimRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxClaimBody)).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.AuthCode == "" || req.SessionID == "" {
		s.writeError(w, http.StatusBadRequest, "authCode and sessionId are required")
		return
	}
	var alive func(string) bool
	if s.sessions != nil {
		alive = s.sessions.Known
	}

	err := s.claimer.ClaimLive(r.Context(), req.AuthCode, req.SessionID, alive)
	switch {
	case errors.Is(err, credentials.ErrSessionClosed):
		s.writeError(w, http.StatusNotFound, "unknown session")
	case errors.Is(err, credentials.ErrInvalidArgument):
		s.writeError(w, http.StatusBadRequest, "authCode and sessionId are required")
	case errors.Is(err, credentials.ErrNotFound):
		s.writeError(w, http.StatusNotFound, "auth code not found or already used")
	case err != nil:
		log.Errorw("Claim failed", "session_id", req.SessionID, "error", err)
		s.writeError(w, http.StatusInternalServerError, "internal error")
	default:
		s.writeJSON(w, http.StatusOK, claimResponse{Success: true})
	}
}

package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/marcus/taskflow/internal/store"
)

const maxKeyLifetimeDays = 3650

// createKeyRequest is the JSON body for POST /v1/me/keys.
type createKeyRequest struct {
	Name          string `json:"name"`
	ExpiresInDays int    `json:"expires_in_days"` // 0 = never
}

// createKeyResponse carries the plaintext key, which is only shown here.
type createKeyResponse struct {
	APIKey string        `json:"api_key"`
	Key    *store.APIKey `json:"key"`
}

// handleMe handles GET /v1/me.
func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, callerFrom(r.Context()))
}

// handleListKeys handles GET /v1/me/keys.
func (s *Server) handleListKeys(w http.ResponseWriter, r *http.Request) {
	keys, err := s.keys.ListAPIKeys(r.Context(), callerFrom(r.Context()).ID)
	if err != nil {
		writeServiceError(w, r, "list api keys", err)
		return
	}
	if keys == nil {
		keys = []*store.APIKey{}
	}
	writeJSON(w, http.StatusOK, keys)
}

// handleCreateKey handles POST /v1/me/keys.
func (s *Server) handleCreateKey(w http.ResponseWriter, r *http.Request) {
	caller := callerFrom(r.Context())

	var req createKeyRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, ErrCodeBadRequest, "name is required")
		return
	}
	if req.ExpiresInDays < 0 || req.ExpiresInDays > maxKeyLifetimeDays {
		writeError(w, http.StatusBadRequest, ErrCodeBadRequest, "expires_in_days must be between 0 and 3650")
		return
	}

	var expiresAt *time.Time
	if req.ExpiresInDays > 0 {
		t := time.Now().UTC().Add(time.Duration(req.ExpiresInDays) * 24 * time.Hour)
		expiresAt = &t
	}

	plaintext, ak, err := s.keys.GenerateAPIKey(r.Context(), caller.ID, req.Name, expiresAt)
	if err != nil {
		writeServiceError(w, r, "create api key", err)
		return
	}
	logFor(r.Context()).Info("api key created", "key_id", ak.ID)
	writeJSON(w, http.StatusCreated, createKeyResponse{APIKey: plaintext, Key: ak})
}

// handleRevokeKey handles DELETE /v1/me/keys/{id}.
func (s *Server) handleRevokeKey(w http.ResponseWriter, r *http.Request) {
	keyID := r.PathValue("id")
	if err := s.keys.RevokeAPIKey(r.Context(), keyID, callerFrom(r.Context()).ID); err != nil {
		writeServiceError(w, r, "revoke api key", err)
		return
	}
	logFor(r.Context()).Info("api key revoked", "key_id", keyID)
	w.WriteHeader(http.StatusNoContent)
}

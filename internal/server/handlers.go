package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/vitalsync/vitalsync/internal/auth/oauth"
	"github.com/vitalsync/vitalsync/internal/identity"
	"github.com/vitalsync/vitalsync/internal/sync"
	"github.com/vitalsync/vitalsync/internal/version"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"version": version.Version,
	})
}

// handleLink starts the OAuth link flow for an account and returns the
// provider authorization URL the caller must visit.
func (s *Server) handleLink(w http.ResponseWriter, r *http.Request) {
	accountID, ok := s.accountIDParam(w, r)
	if !ok {
		return
	}

	auth, err := s.deps.Flow.Initiate(r.Context(), accountID)
	if err != nil {
		s.log.Error().Err(err).Str("account_id", accountID).Msg("initiate link failed")
		respondError(w, http.StatusInternalServerError, "internal_error", "could not start authorization")
		return
	}
	respondJSON(w, http.StatusOK, auth)
}

// handleCallback is the provider redirect target. It finishes the PKCE
// exchange and links the account.
func (s *Server) handleCallback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if provErr := q.Get("error"); provErr != "" {
		respondError(w, http.StatusBadRequest, "authorization_denied", provErr)
		return
	}
	code, state := q.Get("code"), q.Get("state")
	if code == "" || state == "" {
		respondError(w, http.StatusBadRequest, "invalid_callback", "code and state are required")
		return
	}

	cred, err := s.deps.Flow.CompleteCallback(r.Context(), code, state)
	if err != nil {
		var exchangeErr *oauth.TokenExchangeError
		switch {
		case errors.Is(err, oauth.ErrInvalidState):
			respondError(w, http.StatusBadRequest, "invalid_state", "state is unknown, expired, or already used")
		case errors.As(err, &exchangeErr):
			s.log.Warn().Err(err).Msg("token exchange failed")
			respondError(w, http.StatusBadGateway, "exchange_failed", "provider rejected the authorization code")
		default:
			s.log.Error().Err(err).Msg("callback failed")
			respondError(w, http.StatusInternalServerError, "internal_error", "could not complete authorization")
		}
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{
		"status":           "linked",
		"account_id":       cred.AccountID,
		"provider_user_id": cred.ProviderUserID,
	})
}

// handleData serves metric records, syncing from the provider when the
// cached copy is stale.
func (s *Server) handleData(w http.ResponseWriter, r *http.Request) {
	accountID, ok := s.accountIDParam(w, r)
	if !ok {
		return
	}
	dataType := chi.URLParam(r, "dataType")
	if _, known := s.deps.Catalog.DataType(dataType); !known {
		respondError(w, http.StatusNotFound, "unknown_data_type", "data type is not configured")
		return
	}

	opts := sync.Options{}
	q := r.URL.Query()
	if v := q.Get("force_refresh"); v != "" {
		force, err := strconv.ParseBool(v)
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid_parameter", "force_refresh must be a boolean")
			return
		}
		opts.ForceRefresh = force
	}
	if v := q.Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit < 0 {
			respondError(w, http.StatusBadRequest, "invalid_parameter", "limit must be a non-negative integer")
			return
		}
		opts.Limit = limit
	}

	result, err := s.deps.Data.GetData(r.Context(), accountID, dataType, opts)
	if err != nil {
		if errors.Is(err, sync.ErrNoData) {
			respondError(w, http.StatusBadGateway, "no_data", err.Error())
			return
		}
		s.log.Error().Err(err).Str("account_id", accountID).Str("data_type", dataType).Msg("get data failed")
		respondError(w, http.StatusInternalServerError, "internal_error", "could not serve data")
		return
	}
	respondJSON(w, http.StatusOK, result)
}

type dataTypeInfo struct {
	Name          string `json:"name"`
	HighFrequency bool   `json:"high_frequency"`
	Threshold     string `json:"threshold"`
}

func (s *Server) handleDataTypes(w http.ResponseWriter, r *http.Request) {
	types := s.deps.Catalog.DataTypes()
	out := make([]dataTypeInfo, 0, len(types))
	for _, dt := range types {
		out = append(out, dataTypeInfo{
			Name:          dt.Name,
			HighFrequency: dt.HighFrequency,
			Threshold:     dt.Threshold.String(),
		})
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"data_types": out})
}

type syncStatusEntry struct {
	DataType      string `json:"data_type"`
	LastSyncAt    string `json:"last_sync_at"`
	Status        string `json:"status"`
	RecordsSynced int    `json:"records_synced"`
	ErrorMessage  string `json:"error_message,omitempty"`
}

func (s *Server) handleSyncStatus(w http.ResponseWriter, r *http.Request) {
	accountID, ok := s.accountIDParam(w, r)
	if !ok {
		return
	}

	entries, err := s.deps.SyncLog.ListByAccount(r.Context(), accountID)
	if err != nil {
		s.log.Error().Err(err).Str("account_id", accountID).Msg("list sync status failed")
		respondError(w, http.StatusInternalServerError, "internal_error", "could not load sync status")
		return
	}

	out := make([]syncStatusEntry, 0, len(entries))
	for _, e := range entries {
		out = append(out, syncStatusEntry{
			DataType:      e.DataType,
			LastSyncAt:    e.LastSyncAt.UTC().Format(time.RFC3339),
			Status:        e.Status,
			RecordsSynced: e.RecordsSynced,
			ErrorMessage:  e.ErrorMessage,
		})
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"account_id": accountID,
		"data_types": out,
	})
}

func (s *Server) handleLimits(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.deps.Limits.Status())
}

// accountIDParam parses and canonicalizes the account_id query
// parameter, writing the error response itself on failure.
func (s *Server) accountIDParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	raw := r.URL.Query().Get("account_id")
	if raw == "" {
		respondError(w, http.StatusBadRequest, "missing_account_id", "account_id query parameter is required")
		return "", false
	}
	id, err := identity.Parse(raw)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_account_id", "account_id must be a positive integer or a UUID")
		return "", false
	}
	return id.String(), true
}

func respondJSON(w http.ResponseWriter, statusCode int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}

func respondError(w http.ResponseWriter, statusCode int, code, message string) {
	respondJSON(w, statusCode, map[string]interface{}{
		"error": map[string]string{
			"code":    code,
			"message": message,
		},
	})
}

// -----------------------------------------------------------------------
// Session Handler - HTTP surface over the interactive session manager.
// -----------------------------------------------------------------------

package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/billfetch/internal/common"
	"github.com/ternarybob/billfetch/internal/models"
	"github.com/ternarybob/billfetch/internal/services/session"
	"github.com/ternarybob/billfetch/internal/services/vendors"
)

// SessionHandler handles interactive session HTTP requests
type SessionHandler struct {
	manager  *session.Manager
	registry *vendors.Registry
	logger   arbor.ILogger
}

// NewSessionHandler creates a new session handler
func NewSessionHandler(manager *session.Manager, registry *vendors.Registry, logger arbor.ILogger) *SessionHandler {
	return &SessionHandler{
		manager:  manager,
		registry: registry,
		logger:   logger,
	}
}

// StartHandler handles POST /session/start - provisions the interactive
// session stack
func (h *SessionHandler) StartHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "POST") {
		return
	}

	var request struct {
		VendorKey string `json:"vendorKey"`
		RecordID  string `json:"recordId,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		WriteError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}
	if request.VendorKey == "" {
		WriteError(w, http.StatusBadRequest, "vendorKey is required")
		return
	}
	if _, err := h.registry.Config(request.VendorKey); err != nil {
		WriteError(w, http.StatusForbidden, err.Error())
		return
	}
	if request.RecordID == "" {
		request.RecordID = common.NewRecordID()
	}

	sess, accessURL, err := h.manager.StartSession(r.Context(), request.VendorKey, request.RecordID)
	if err != nil {
		if errors.Is(err, models.ErrSessionActive) {
			WriteError(w, http.StatusConflict, err.Error())
			return
		}
		var perr *models.ProvisioningError
		if errors.As(err, &perr) {
			h.logger.Error().Err(err).Str("vendor", request.VendorKey).Msg("Session provisioning failed")
		}
		WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"session":   sess,
		"accessUrl": accessURL,
	})
}

// SessionRoutesHandler dispatches /session/{id}/{action} requests.
func (h *SessionHandler) SessionRoutesHandler(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/session/")
	parts := strings.SplitN(rest, "/", 2)
	if len(parts) != 2 || parts[0] == "" {
		WriteError(w, http.StatusNotFound, "session not found")
		return
	}
	sessionID, action := parts[0], parts[1]
	token := r.URL.Query().Get("token")

	switch action {
	case "bridge":
		h.bridge(w, r, sessionID, token)
	case "status":
		h.status(w, r, sessionID, token)
	case "complete":
		h.finish(w, r, sessionID, token, h.manager.Complete)
	case "fail":
		h.finish(w, r, sessionID, token, h.manager.Fail)
	default:
		WriteError(w, http.StatusNotFound, "session not found")
	}
}

// bridge proxies the websocket connection after token gating. Unknown id,
// wrong token, and expiry all present as "not found".
func (h *SessionHandler) bridge(w http.ResponseWriter, r *http.Request, sessionID, token string) {
	sess, err := h.manager.Lookup(sessionID, token)
	if err != nil {
		WriteError(w, http.StatusNotFound, "session not found")
		return
	}

	if err := h.manager.ProxyBridge(w, r, sess); err != nil {
		h.logger.Warn().Err(err).Str("session_id", sessionID).Msg("Bridge proxy ended with error")
	}
}

// status reports the session document, token-gated like the bridge.
func (h *SessionHandler) status(w http.ResponseWriter, r *http.Request, sessionID, token string) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	sess, err := h.manager.Lookup(sessionID, token)
	if err != nil {
		WriteError(w, http.StatusNotFound, "session not found")
		return
	}
	WriteJSON(w, http.StatusOK, sess)
}

func (h *SessionHandler) finish(w http.ResponseWriter, r *http.Request, sessionID, token string, op func(string, string) error) {
	if !RequireMethod(w, r, "POST") {
		return
	}

	if err := op(sessionID, token); err != nil {
		WriteError(w, http.StatusNotFound, "session not found")
		return
	}
	WriteJSON(w, http.StatusOK, map[string]string{"status": "success"})
}

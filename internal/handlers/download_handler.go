// -----------------------------------------------------------------------
// Download Handler - HTTP surface over the download orchestrator and the
// manual login flow.
// -----------------------------------------------------------------------

package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/billfetch/internal/common"
	"github.com/ternarybob/billfetch/internal/interfaces"
	"github.com/ternarybob/billfetch/internal/models"
	"github.com/ternarybob/billfetch/internal/services/manuallogin"
	"github.com/ternarybob/billfetch/internal/services/vendors"
)

// DownloadHandler handles invoice download and manual login HTTP requests
type DownloadHandler struct {
	orchestrator *vendors.Orchestrator
	manualLogin  *manuallogin.Service
	history      interfaces.RunHistory
	logger       arbor.ILogger
}

// NewDownloadHandler creates a new download handler. history may be nil.
func NewDownloadHandler(orchestrator *vendors.Orchestrator, manualLogin *manuallogin.Service, history interfaces.RunHistory, logger arbor.ILogger) *DownloadHandler {
	return &DownloadHandler{
		orchestrator: orchestrator,
		manualLogin:  manualLogin,
		history:      history,
		logger:       logger,
	}
}

// DownloadHandler handles POST /download - executes a download run
func (h *DownloadHandler) DownloadHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "POST") {
		return
	}

	var request models.DownloadRequest
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		WriteError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}
	if request.VendorKey == "" {
		WriteError(w, http.StatusBadRequest, "vendorKey is required")
		return
	}

	started := time.Now()
	response, err := h.orchestrator.Run(r.Context(), &request)
	h.recordRun(r, &request, response, err, started)
	if err != nil {
		status := statusForError(err)
		h.logger.Warn().
			Err(err).
			Str("vendor", request.VendorKey).
			Int("status", status).
			Msg("Download run failed")

		if response != nil {
			// Automation failures carry the debug trail back to the caller.
			response.Error = err.Error()
			WriteJSON(w, status, response)
			return
		}
		WriteError(w, status, err.Error())
		return
	}

	h.logger.Info().
		Str("vendor", request.VendorKey).
		Int("files", len(response.Files)).
		Msg("Download run finished")

	WriteJSON(w, http.StatusOK, response)
}

// recordRun persists the run summary. Best effort; a storage failure never
// affects the caller's response.
func (h *DownloadHandler) recordRun(r *http.Request, request *models.DownloadRequest, response *models.DownloadResponse, runErr error, started time.Time) {
	if h.history == nil {
		return
	}

	record := &models.RunRecord{
		ID:        common.NewRecordID(),
		VendorKey: request.VendorKey,
		Success:   runErr == nil,
		Duration:  time.Since(started).Round(time.Millisecond).String(),
		StartedAt: started,
	}
	if runErr != nil {
		record.Error = runErr.Error()
	}
	if response != nil {
		record.Files = len(response.Files)
	}

	if err := h.history.Record(r.Context(), record); err != nil {
		h.logger.Warn().Err(err).Str("vendor", request.VendorKey).Msg("Failed to persist run history")
	}
}

// HistoryHandler handles GET /download/history - recent run summaries,
// newest first
func (h *DownloadHandler) HistoryHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}
	if h.history == nil {
		WriteJSON(w, http.StatusOK, map[string]interface{}{"runs": []models.RunRecord{}})
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			limit = n
		}
	}

	runs, err := h.history.Recent(r.Context(), limit)
	if err != nil {
		WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if runs == nil {
		runs = []models.RunRecord{}
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{"runs": runs})
}

// StatusHandler handles GET /download/status - registry, browser, and
// secret-store health snapshot
func (h *DownloadHandler) StatusHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}
	WriteJSON(w, http.StatusOK, h.orchestrator.Status(r.Context()))
}

// TestHandler handles POST /download/test - readiness probe without
// executing automation
func (h *DownloadHandler) TestHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "POST") {
		return
	}

	var request struct {
		VendorKey string `json:"vendorKey"`
	}
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		WriteError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}

	if err := h.orchestrator.Validate(request.VendorKey); err != nil {
		WriteError(w, statusForError(err), err.Error())
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "ready",
		"vendorKey": request.VendorKey,
	})
}

// LoginHandler handles POST /download/login - drives the manual login flow
func (h *DownloadHandler) LoginHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "POST") {
		return
	}

	var request struct {
		VendorKey string `json:"vendorKey"`
		Timeout   int    `json:"timeout,omitempty"` // seconds
	}
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		WriteError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}
	if request.VendorKey == "" {
		WriteError(w, http.StatusBadRequest, "vendorKey is required")
		return
	}

	result, err := h.manualLogin.Capture(r.Context(), request.VendorKey, time.Duration(request.Timeout)*time.Second)
	if err != nil {
		status := statusForError(err)
		h.logger.Warn().Err(err).Str("vendor", request.VendorKey).Msg("Manual login failed")
		WriteError(w, status, err.Error())
		return
	}

	WriteJSON(w, http.StatusOK, result)
}

// statusForError maps the error taxonomy onto HTTP status codes.
func statusForError(err error) int {
	var verr *models.ValidationError
	if errors.As(err, &verr) {
		if verr.Kind == models.ValidationMissingField {
			return http.StatusBadRequest
		}
		return http.StatusForbidden
	}

	var nerr *models.NotImplementedError
	if errors.As(err, &nerr) {
		return http.StatusNotImplemented
	}

	var cerr *models.ConfigMissingError
	if errors.As(err, &cerr) {
		return http.StatusNotFound
	}

	var terr *models.LoginTimeoutError
	if errors.As(err, &terr) {
		return http.StatusRequestTimeout
	}

	return http.StatusInternalServerError
}

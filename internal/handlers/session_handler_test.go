package handlers

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/billfetch/internal/common"
	"github.com/ternarybob/billfetch/internal/models"
	"github.com/ternarybob/billfetch/internal/services/browser"
	"github.com/ternarybob/billfetch/internal/services/session"
	"github.com/ternarybob/billfetch/internal/services/vendors"
)

func newTestSessionHandler(t *testing.T) *SessionHandler {
	t.Helper()

	logger := arbor.NewLogger()
	registry := vendors.NewRegistry([]models.VendorConfig{
		{Key: "freee", Enabled: true},
	}, nil, logger)

	manager := session.NewManager(common.SessionConfig{
		Display:        ":99",
		VNCPort:        5900,
		BridgePort:     6080,
		SettleDelay:    50 * time.Millisecond,
		SessionTimeout: time.Minute,
		PublicBaseURL:  "http://localhost:8085",
	}, browser.NewPool(common.BrowserConfig{}, logger), logger)

	return NewSessionHandler(manager, registry, logger)
}

func TestSessionStartValidation(t *testing.T) {
	h := newTestSessionHandler(t)

	rec := httptest.NewRecorder()
	h.StartHandler(rec, httptest.NewRequest(http.MethodPost, "/session/start", strings.NewReader(`{}`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	h.StartHandler(rec, httptest.NewRequest(http.MethodPost, "/session/start", strings.NewReader(`{"vendorKey":"unknown-vendor"}`)))
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestSessionBridgeUnknownSession(t *testing.T) {
	h := newTestSessionHandler(t)

	rec := httptest.NewRecorder()
	h.SessionRoutesHandler(rec, httptest.NewRequest(http.MethodGet, "/session/ses_missing/bridge?token=whatever", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSessionRouteParsing(t *testing.T) {
	h := newTestSessionHandler(t)

	// No action segment.
	rec := httptest.NewRecorder()
	h.SessionRoutesHandler(rec, httptest.NewRequest(http.MethodGet, "/session/ses_x", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// Unknown action.
	rec = httptest.NewRecorder()
	h.SessionRoutesHandler(rec, httptest.NewRequest(http.MethodGet, "/session/ses_x/screenshot", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSessionStatusUnknownSession(t *testing.T) {
	h := newTestSessionHandler(t)

	rec := httptest.NewRecorder()
	h.SessionRoutesHandler(rec, httptest.NewRequest(http.MethodGet, "/session/ses_x/status?token=tok", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSessionCompleteUnknownSession(t *testing.T) {
	h := newTestSessionHandler(t)

	rec := httptest.NewRecorder()
	h.SessionRoutesHandler(rec, httptest.NewRequest(http.MethodPost, "/session/ses_x/complete?token=tok", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

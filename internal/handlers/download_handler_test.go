package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/billfetch/internal/common"
	"github.com/ternarybob/billfetch/internal/interfaces"
	"github.com/ternarybob/billfetch/internal/models"
	"github.com/ternarybob/billfetch/internal/services/browser"
	"github.com/ternarybob/billfetch/internal/services/vendors"
)

type stubAuthStore struct{}

func (s *stubAuthStore) Save(context.Context, *models.StoredAuthRecord) error { return nil }
func (s *stubAuthStore) Load(context.Context, string) (*models.StoredAuthRecord, error) {
	return nil, interfaces.ErrAuthNotFound
}
func (s *stubAuthStore) Delete(context.Context, string) error { return nil }
func (s *stubAuthStore) List(context.Context) ([]string, error) {
	return nil, nil
}

type stubSecrets struct {
	creds map[string]*models.Credentials
}

func (s *stubSecrets) CredentialsFor(_ context.Context, vendor *models.VendorConfig) (*models.Credentials, error) {
	creds, ok := s.creds[vendor.Key]
	if !ok {
		return nil, errors.New("no secret stored")
	}
	return creds, nil
}

func (s *stubSecrets) Count(context.Context) (int, error) { return len(s.creds), nil }

type apiConnector struct {
	key       string
	artifacts []models.DownloadedArtifact
}

func (c *apiConnector) Key() string                                      { return c.key }
func (c *apiConnector) Login(context.Context, *models.Credentials) error { return nil }
func (c *apiConnector) RestoreSession(context.Context, *models.StoredAuthRecord) error {
	return errors.New("not applicable")
}
func (c *apiConnector) NavigateToInvoices(context.Context) error { return nil }
func (c *apiConnector) DownloadInvoices(context.Context, *models.DownloadOptions) ([]models.DownloadedArtifact, error) {
	return c.artifacts, nil
}
func (c *apiConnector) IsLoggedIn(context.Context) (bool, error) { return true, nil }

type memoryRunHistory struct {
	records []models.RunRecord
}

func (m *memoryRunHistory) Record(_ context.Context, record *models.RunRecord) error {
	m.records = append([]models.RunRecord{*record}, m.records...)
	return nil
}

func (m *memoryRunHistory) Recent(_ context.Context, limit int) ([]models.RunRecord, error) {
	if limit <= 0 || limit > len(m.records) {
		limit = len(m.records)
	}
	return m.records[:limit], nil
}

func newTestDownloadHandler(t *testing.T) *DownloadHandler {
	t.Helper()

	logger := arbor.NewLogger()
	configs := []models.VendorConfig{
		{Key: "googleads", Enabled: true, SpecialHandling: "api", SecretRef: "vendor_googleads"},
		{Key: "freee", Enabled: true, SpecialHandling: "cookie_oauth", SecretRef: "vendor_freee"},
	}
	registry := vendors.NewRegistry(configs, nil, logger)
	registry.Register(&apiConnector{
		key: "googleads",
		artifacts: []models.DownloadedArtifact{
			{Filename: "GoogleAds-請求書-2024-03.pdf", MimeType: "application/pdf", Size: 12},
		},
	})

	secrets := &stubSecrets{creds: map[string]*models.Credentials{
		"googleads": {Type: models.CredentialAPIOAuth, APIOAuth: &models.APIOAuthCredentials{RefreshToken: "rt"}},
	}}
	resolver := vendors.NewResolver(&stubAuthStore{}, secrets, logger)
	pool := browser.NewPool(common.BrowserConfig{}, logger)
	orchestrator := vendors.NewOrchestrator(registry, resolver, pool, nil, nil, secrets, logger)

	return NewDownloadHandler(orchestrator, nil, &memoryRunHistory{}, logger)
}

func postJSON(t *testing.T, handler http.HandlerFunc, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	handler(rec, req)
	return rec
}

func TestStatusForErrorValidationKinds(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{
			name: "missing field is a bad request",
			err:  models.NewValidationError(models.ValidationMissingField, "vendorKey is required"),
			want: http.StatusBadRequest,
		},
		{
			name: "not permitted is forbidden regardless of message",
			err:  models.NewValidationError(models.ValidationNotPermitted, "vendorKey is required"),
			want: http.StatusForbidden,
		},
		{
			name: "unwhitelisted vendor is forbidden",
			err:  models.NewValidationError(models.ValidationNotPermitted, "Vendor 'acme' is not whitelisted"),
			want: http.StatusForbidden,
		},
		{
			name: "wrapped validation error is unwrapped",
			err:  fmt.Errorf("handling request: %w", models.NewValidationError(models.ValidationMissingField, "vendorKey is required")),
			want: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, statusForError(tt.err))
		})
	}
}

func TestDownloadMissingVendorKey(t *testing.T) {
	h := newTestDownloadHandler(t)

	rec := postJSON(t, h.DownloadHandler, "/download", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDownloadUnknownVendor(t *testing.T) {
	h := newTestDownloadHandler(t)

	rec := postJSON(t, h.DownloadHandler, "/download", `{"vendorKey":"unknown-vendor"}`)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "Vendor 'unknown-vendor' is not whitelisted", body["error"])
}

func TestDownloadWhitelistedButUnimplemented(t *testing.T) {
	h := newTestDownloadHandler(t)

	rec := postJSON(t, h.DownloadHandler, "/download", `{"vendorKey":"freee"}`)
	assert.Equal(t, http.StatusNotImplemented, rec.Code)
}

func TestDownloadAPIVendorSuccess(t *testing.T) {
	h := newTestDownloadHandler(t)

	rec := postJSON(t, h.DownloadHandler, "/download", `{"vendorKey":"googleads","options":{"target_month":"2024-03"}}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var response models.DownloadResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &response))
	assert.True(t, response.Success)
	require.Len(t, response.Files, 1)
	assert.Equal(t, "GoogleAds-請求書-2024-03.pdf", response.Files[0].Filename)
	assert.NotEmpty(t, response.Debug.Logs)
}

func TestDownloadRejectsGET(t *testing.T) {
	h := newTestDownloadHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/download", nil)
	rec := httptest.NewRecorder()
	h.DownloadHandler(rec, req)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestStatusSnapshotEndpoint(t *testing.T) {
	h := newTestDownloadHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/download/status", nil)
	rec := httptest.NewRecorder()
	h.StatusHandler(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var snapshot vendors.StatusSnapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snapshot))
	assert.ElementsMatch(t, []string{"googleads", "freee"}, snapshot.Vendors)
	assert.Equal(t, []string{"googleads"}, snapshot.Implemented)
	assert.False(t, snapshot.BrowserRunning)
}

func TestHistoryRecordsRuns(t *testing.T) {
	h := newTestDownloadHandler(t)

	postJSON(t, h.DownloadHandler, "/download", `{"vendorKey":"googleads","options":{"target_month":"2024-03"}}`)
	postJSON(t, h.DownloadHandler, "/download", `{"vendorKey":"freee"}`)

	req := httptest.NewRequest(http.MethodGet, "/download/history", nil)
	rec := httptest.NewRecorder()
	h.HistoryHandler(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Runs []models.RunRecord `json:"runs"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Runs, 2)

	// Newest first: the failed freee run, then the successful googleads run.
	assert.Equal(t, "freee", body.Runs[0].VendorKey)
	assert.False(t, body.Runs[0].Success)
	assert.NotEmpty(t, body.Runs[0].Error)
	assert.Equal(t, "googleads", body.Runs[1].VendorKey)
	assert.True(t, body.Runs[1].Success)
	assert.Equal(t, 1, body.Runs[1].Files)
}

func TestHistoryLimit(t *testing.T) {
	h := newTestDownloadHandler(t)

	postJSON(t, h.DownloadHandler, "/download", `{"vendorKey":"googleads"}`)
	postJSON(t, h.DownloadHandler, "/download", `{"vendorKey":"googleads"}`)

	req := httptest.NewRequest(http.MethodGet, "/download/history?limit=1", nil)
	rec := httptest.NewRecorder()
	h.HistoryHandler(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Runs []models.RunRecord `json:"runs"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Len(t, body.Runs, 1)
}

func TestTestEndpoint(t *testing.T) {
	h := newTestDownloadHandler(t)

	rec := postJSON(t, h.TestHandler, "/download/test", `{"vendorKey":"googleads"}`)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = postJSON(t, h.TestHandler, "/download/test", `{"vendorKey":"unknown-vendor"}`)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = postJSON(t, h.TestHandler, "/download/test", `{"vendorKey":"freee"}`)
	assert.Equal(t, http.StatusNotImplemented, rec.Code)

	rec = postJSON(t, h.TestHandler, "/download/test", `{"vendorKey":""}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

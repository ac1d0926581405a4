package vendors

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/billfetch/internal/common"
	"github.com/ternarybob/billfetch/internal/interfaces"
	"github.com/ternarybob/billfetch/internal/models"
	"github.com/ternarybob/billfetch/internal/services/browser"
)

// apiStubConnector is an API-variant connector that records calls.
type apiStubConnector struct {
	stubConnector
	loginErr  error
	artifacts []models.DownloadedArtifact
	loggedIn  bool
}

func (c *apiStubConnector) Login(_ context.Context, _ *models.Credentials) error {
	if c.loginErr != nil {
		return c.loginErr
	}
	c.loggedIn = true
	return nil
}

func (c *apiStubConnector) DownloadInvoices(_ context.Context, _ *models.DownloadOptions) ([]models.DownloadedArtifact, error) {
	return c.artifacts, nil
}

func (c *apiStubConnector) IsLoggedIn(_ context.Context) (bool, error) {
	return c.loggedIn, nil
}

func newTestOrchestrator(t *testing.T, connector *apiStubConnector) (*Orchestrator, *browser.Pool) {
	t.Helper()

	configs := []models.VendorConfig{
		{Key: "googleads", Enabled: true, SpecialHandling: "api", SecretRef: "vendor_googleads"},
		{Key: "freee", Enabled: true, SpecialHandling: "cookie_oauth", SecretRef: "vendor_freee"},
	}

	logger := arbor.NewLogger()
	registry := NewRegistry(configs, nil, logger)
	if connector != nil {
		registry.Register(connector)
	}

	secrets := &fakeSecrets{creds: map[string]*models.Credentials{
		"googleads": googleAdsCreds(),
	}}
	resolver := NewResolver(&fakeAuthStore{records: map[string]*models.StoredAuthRecord{}}, secrets, logger)
	pool := browser.NewPool(common.BrowserConfig{}, logger)

	return NewOrchestrator(registry, resolver, pool, nil, nil, secrets, logger), pool
}

func TestRunUnknownVendorTouchesNoBrowser(t *testing.T) {
	o, pool := newTestOrchestrator(t, nil)

	_, err := o.Run(context.Background(), &models.DownloadRequest{VendorKey: "unknown-vendor"})
	require.Error(t, err)

	var verr *models.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "Vendor 'unknown-vendor' is not whitelisted", err.Error())
	assert.False(t, pool.IsRunning())
}

func TestRunWhitelistedButUnimplemented(t *testing.T) {
	o, pool := newTestOrchestrator(t, nil)

	_, err := o.Run(context.Background(), &models.DownloadRequest{VendorKey: "freee"})
	require.Error(t, err)

	var nerr *models.NotImplementedError
	require.ErrorAs(t, err, &nerr)
	assert.False(t, pool.IsRunning())
}

func TestRunAPIVendor(t *testing.T) {
	connector := &apiStubConnector{
		stubConnector: stubConnector{key: "googleads"},
		artifacts: []models.DownloadedArtifact{
			{Filename: "GoogleAds-請求書-2024-03.pdf", MimeType: "application/pdf", Size: 10},
		},
	}
	o, pool := newTestOrchestrator(t, connector)

	response, err := o.Run(context.Background(), &models.DownloadRequest{
		VendorKey: "googleads",
		Options:   &models.DownloadOptions{TargetMonth: "2024-03"},
	})
	require.NoError(t, err)

	assert.True(t, response.Success)
	require.Len(t, response.Files, 1)
	assert.NotEmpty(t, response.Debug.Logs)
	assert.NotEmpty(t, response.Debug.Duration)
	// API vendors never launch the shared browser.
	assert.False(t, pool.IsRunning())
}

func TestRunAPIVendorLoginFailure(t *testing.T) {
	connector := &apiStubConnector{
		stubConnector: stubConnector{key: "googleads"},
		loginErr: &models.APIError{
			Kind:    models.APIErrorUnauthenticated,
			Message: "token exchange failed",
		},
	}
	o, _ := newTestOrchestrator(t, connector)

	response, err := o.Run(context.Background(), &models.DownloadRequest{VendorKey: "googleads"})
	require.Error(t, err)

	var apiErr *models.APIError
	require.ErrorAs(t, err, &apiErr)
	require.NotNil(t, response)
	assert.False(t, response.Success)
	assert.Contains(t, response.Error, "token exchange failed")
	assert.NotEmpty(t, response.Debug.Logs)

	loggedIn, err := connector.IsLoggedIn(context.Background())
	require.NoError(t, err)
	assert.False(t, loggedIn)
}

type fakeAgent struct {
	success bool
	err     error
	called  bool
}

func (a *fakeAgent) AttemptLogin(_ context.Context, _ string, _ *models.Credentials) (*interfaces.AgentResult, error) {
	a.called = true
	if a.err != nil {
		return nil, a.err
	}
	return &interfaces.AgentResult{Success: a.success}, nil
}

func (a *fakeAgent) Available() bool { return true }

func TestAgentLoginFallback(t *testing.T) {
	creds := &models.Credentials{Type: models.CredentialUsernamePassword, Username: "u", Password: "p"}
	vendor := &models.VendorConfig{Key: "freee", LoginURL: "https://accounts.secure.freee.co.jp/login"}

	t.Run("agent recovers a verified session", func(t *testing.T) {
		o, _ := newTestOrchestrator(t, nil)
		agent := &fakeAgent{success: true}
		o.agent = agent
		connector := &apiStubConnector{stubConnector: stubConnector{key: "freee"}, loggedIn: true}

		ok := o.agentLogin(context.Background(), vendor, connector, creds, &runLog{})
		assert.True(t, ok)
		assert.True(t, agent.called)
	})

	t.Run("agent success without a verified session fails", func(t *testing.T) {
		o, _ := newTestOrchestrator(t, nil)
		o.agent = &fakeAgent{success: true}
		connector := &apiStubConnector{stubConnector: stubConnector{key: "freee"}, loggedIn: false}

		assert.False(t, o.agentLogin(context.Background(), vendor, connector, creds, &runLog{}))
	})

	t.Run("non password credentials never invoke the agent", func(t *testing.T) {
		o, _ := newTestOrchestrator(t, nil)
		agent := &fakeAgent{success: true}
		o.agent = agent
		connector := &apiStubConnector{stubConnector: stubConnector{key: "freee"}, loggedIn: true}

		cookieCreds := &models.Credentials{Type: models.CredentialCookieBundle}
		assert.False(t, o.agentLogin(context.Background(), vendor, connector, cookieCreds, &runLog{}))
		assert.False(t, agent.called)
	})

	t.Run("nil agent is a no-op", func(t *testing.T) {
		o, _ := newTestOrchestrator(t, nil)
		connector := &apiStubConnector{stubConnector: stubConnector{key: "freee"}, loggedIn: true}

		assert.False(t, o.agentLogin(context.Background(), vendor, connector, creds, &runLog{}))
	})
}

func TestValidate(t *testing.T) {
	o, _ := newTestOrchestrator(t, &apiStubConnector{stubConnector: stubConnector{key: "googleads"}})

	require.NoError(t, o.Validate("googleads"))

	err := o.Validate("")
	var verr *models.ValidationError
	require.ErrorAs(t, err, &verr)

	err = o.Validate("unknown-vendor")
	require.ErrorAs(t, err, &verr)

	err = o.Validate("freee")
	var nerr *models.NotImplementedError
	require.True(t, errors.As(err, &nerr))
}

func TestStatusSnapshot(t *testing.T) {
	o, _ := newTestOrchestrator(t, &apiStubConnector{stubConnector: stubConnector{key: "googleads"}})

	snapshot := o.Status(context.Background())
	assert.ElementsMatch(t, []string{"googleads", "freee"}, snapshot.Vendors)
	assert.Equal(t, []string{"googleads"}, snapshot.Implemented)
	assert.False(t, snapshot.BrowserRunning)
	assert.Equal(t, 1, snapshot.SecretCount)
}

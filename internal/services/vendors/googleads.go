// -----------------------------------------------------------------------
// Google Ads connector - pure API variant, no browser involved. A refresh
// token is exchanged for an access token, invoices are listed for the
// target month, and each PDF is fetched with bearer auth.
// -----------------------------------------------------------------------

package vendors

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/billfetch/internal/models"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"
)

const (
	defaultAdsAPIBaseURL = "https://googleads.googleapis.com"
	defaultTokenURL      = "https://oauth2.googleapis.com/token"
	adsAPIVersion        = "v16"

	// apiRequestsPerSecond keeps bursts of PDF fetches under the Ads API
	// per-developer-token quota.
	apiRequestsPerSecond = 5
)

// GoogleAdsConnector downloads invoices through the Google Ads API.
type GoogleAdsConnector struct {
	config *models.VendorConfig
	logger arbor.ILogger

	// overridable for tests
	BaseURL    string
	TokenURL   string
	HTTPClient *http.Client

	creds   *models.APIOAuthCredentials
	token   *oauth2.Token
	limiter *rate.Limiter
}

// NewGoogleAdsConnector creates the google ads connector
func NewGoogleAdsConnector(config *models.VendorConfig, logger arbor.ILogger) *GoogleAdsConnector {
	return &GoogleAdsConnector{
		config:     config,
		logger:     logger,
		BaseURL:    defaultAdsAPIBaseURL,
		TokenURL:   defaultTokenURL,
		HTTPClient: &http.Client{Timeout: 60 * time.Second},
		limiter:    rate.NewLimiter(rate.Limit(apiRequestsPerSecond), apiRequestsPerSecond),
	}
}

func (c *GoogleAdsConnector) Key() string { return c.config.Key }

// Login exchanges the refresh token for an access token.
func (c *GoogleAdsConnector) Login(ctx context.Context, creds *models.Credentials) error {
	if creds == nil || creds.Type != models.CredentialAPIOAuth || creds.APIOAuth == nil {
		return fmt.Errorf("google ads requires API OAuth credentials")
	}
	c.creds = creds.APIOAuth

	conf := &oauth2.Config{
		ClientID:     c.creds.ClientID,
		ClientSecret: c.creds.ClientSecret,
		Endpoint:     oauth2.Endpoint{TokenURL: c.TokenURL},
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.HTTPClient)
	source := conf.TokenSource(ctx, &oauth2.Token{RefreshToken: c.creds.RefreshToken})

	token, err := source.Token()
	if err != nil {
		c.token = nil
		return &models.APIError{
			Kind:    models.APIErrorUnauthenticated,
			Message: "Google Ads token exchange failed, check the refresh token and OAuth client",
			Err:     err,
		}
	}

	c.token = token
	c.logger.Info().Msg("Google Ads access token obtained")
	return nil
}

// RestoreSession has no meaning for an API vendor.
func (c *GoogleAdsConnector) RestoreSession(ctx context.Context, record *models.StoredAuthRecord) error {
	return fmt.Errorf("google ads is API-only and has no browser session to restore")
}

// NavigateToInvoices is a no-op for an API vendor.
func (c *GoogleAdsConnector) NavigateToInvoices(ctx context.Context) error {
	return nil
}

// invoiceList is the relevant slice of the API's ListInvoices response.
type invoiceList struct {
	Invoices []struct {
		ResourceName string `json:"resourceName"`
		ID           string `json:"id"`
		PDFURL       string `json:"pdfUrl"`
	} `json:"invoices"`
}

// apiErrorBody is the error envelope the API wraps failures in.
type apiErrorBody struct {
	Error struct {
		Status  string `json:"status"`
		Message string `json:"message"`
	} `json:"error"`
}

// DownloadInvoices lists invoices for the target month and fetches each
// PDF. A failed PDF fetch skips that invoice; it never fails the batch.
func (c *GoogleAdsConnector) DownloadInvoices(ctx context.Context, opts *models.DownloadOptions) ([]models.DownloadedArtifact, error) {
	if c.token == nil || c.creds == nil {
		return nil, &models.APIError{
			Kind:    models.APIErrorUnauthenticated,
			Message: "Google Ads connector is not logged in",
		}
	}

	month, err := ResolveTargetMonth(optsMonth(opts), time.Now())
	if err != nil {
		return nil, err
	}

	list, err := c.listInvoices(ctx, month)
	if err != nil {
		return nil, err
	}

	c.logger.Info().
		Str("month", month.String()).
		Int("invoices", len(list.Invoices)).
		Msg("Google Ads invoices listed")

	var artifacts []models.DownloadedArtifact
	for _, inv := range list.Invoices {
		if inv.PDFURL == "" {
			c.logger.Debug().Str("invoice", inv.ID).Msg("Invoice has no PDF URL, skipping")
			continue
		}

		data, err := c.fetchPDF(ctx, inv.PDFURL)
		if err != nil {
			c.logger.Warn().Err(err).Str("invoice", inv.ID).Msg("PDF fetch failed, skipping invoice")
			continue
		}

		artifacts = append(artifacts, models.DownloadedArtifact{
			Filename: fmt.Sprintf("GoogleAds-請求書-%s.pdf", month),
			Content:  data,
			MimeType: "application/pdf",
			Size:     len(data),
		})
	}

	return artifacts, nil
}

// IsLoggedIn reports whether a usable access token is held.
func (c *GoogleAdsConnector) IsLoggedIn(ctx context.Context) (bool, error) {
	return c.token != nil && c.token.Valid(), nil
}

func (c *GoogleAdsConnector) listInvoices(ctx context.Context, month BillingMonth) (*invoiceList, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	url := fmt.Sprintf("%s/%s/customers/%s/invoices?billingSetup=customers/%s/billingSetups/%s&issueYear=%d&issueMonth=%s",
		c.BaseURL, adsAPIVersion, c.creds.CustomerID, c.creds.CustomerID, c.creds.BillingSetupID, month.Year, month.APIName())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build invoice list request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token.AccessToken)
	req.Header.Set("developer-token", c.creds.DeveloperToken)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, &models.APIError{Kind: models.APIErrorOther, Message: "Google Ads API unreachable", Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read invoice list response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, mapAPIError(resp.StatusCode, body)
	}

	var list invoiceList
	if err := json.Unmarshal(body, &list); err != nil {
		return nil, fmt.Errorf("failed to decode invoice list: %w", err)
	}
	return &list, nil
}

func (c *GoogleAdsConnector) fetchPDF(ctx context.Context, pdfURL string) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pdfURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.token.AccessToken)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("pdf fetch returned status %d", resp.StatusCode)
	}

	return io.ReadAll(resp.Body)
}

// mapAPIError translates upstream status codes into the fixed error
// taxonomy with a vendor-actionable message.
func mapAPIError(status int, body []byte) *models.APIError {
	var envelope apiErrorBody
	_ = json.Unmarshal(body, &envelope)

	upstream := envelope.Error.Message
	if upstream == "" {
		upstream = strings.TrimSpace(string(body))
		if len(upstream) > 200 {
			upstream = upstream[:200]
		}
	}

	switch {
	case status == http.StatusForbidden || envelope.Error.Status == "PERMISSION_DENIED":
		return &models.APIError{
			Kind:    models.APIErrorPermissionDenied,
			Message: fmt.Sprintf("Google Ads denied access, check the developer token and customer access: %s", upstream),
		}
	case status == http.StatusBadRequest || envelope.Error.Status == "INVALID_ARGUMENT":
		return &models.APIError{
			Kind:    models.APIErrorInvalidArgument,
			Message: fmt.Sprintf("Google Ads rejected the request, check the customer and billing setup IDs: %s", upstream),
		}
	case status == http.StatusUnauthorized || envelope.Error.Status == "UNAUTHENTICATED":
		return &models.APIError{
			Kind:    models.APIErrorUnauthenticated,
			Message: fmt.Sprintf("Google Ads authentication failed, re-issue the refresh token: %s", upstream),
		}
	default:
		return &models.APIError{
			Kind:    models.APIErrorOther,
			Message: fmt.Sprintf("Google Ads API error (status %d): %s", status, upstream),
		}
	}
}

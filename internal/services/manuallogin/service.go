// -----------------------------------------------------------------------
// Manual Login Service - drives a human-assisted login in a dedicated
// headful browser and persists the captured cookie+localStorage bundle for
// later automated use.
// -----------------------------------------------------------------------

package manuallogin

import (
	"context"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/billfetch/internal/interfaces"
	"github.com/ternarybob/billfetch/internal/models"
	"github.com/ternarybob/billfetch/internal/services/browser"
	"github.com/ternarybob/billfetch/internal/services/vendors"
)

// pollInterval is the fixed gap between login-completion checks.
const pollInterval = 2 * time.Second

// confirmationQuality is the JPEG-style quality for the full-page
// confirmation screenshot returned to the operator.
const confirmationQuality = 90

// Result reports a completed capture.
type Result struct {
	VendorKey   string `json:"vendorKey"`
	CookieCount int    `json:"cookieCount"`
	Screenshot  string `json:"screenshot,omitempty"` // base64 PNG
}

// Service runs the human-assisted login capture flow.
type Service struct {
	pool      *browser.Pool
	registry  *vendors.Registry
	authStore interfaces.AuthStore
	timeout   time.Duration
	logger    arbor.ILogger
}

// NewService creates the manual login service
func NewService(pool *browser.Pool, registry *vendors.Registry, authStore interfaces.AuthStore, timeout time.Duration, logger arbor.ILogger) *Service {
	return &Service{
		pool:      pool,
		registry:  registry,
		authStore: authStore,
		timeout:   timeout,
		logger:    logger,
	}
}

// Capture opens the vendor's login page in a headful browser, waits for the
// operator to finish logging in, then extracts the full cookie set and
// localStorage into a stored auth record that overwrites any prior one.
func (s *Service) Capture(ctx context.Context, vendorKey string, timeout time.Duration) (*Result, error) {
	vendor, err := s.registry.Config(vendorKey)
	if err != nil {
		return nil, err
	}
	connector, err := s.registry.Connector(vendorKey)
	if err != nil {
		return nil, err
	}
	if vendor.LoginURL == "" {
		return nil, models.NewValidationError(models.ValidationNotPermitted, "vendor '%s' has no login URL, manual capture does not apply", vendorKey)
	}

	if timeout <= 0 {
		timeout = s.timeout
	}

	// The operator needs exclusive control of Chrome.
	s.pool.CloseBrowser()

	pageCtx, release, err := s.pool.AcquirePage(ctx, browser.PageOptions{Headful: true})
	if err != nil {
		return nil, fmt.Errorf("failed to launch headful browser: %w", err)
	}
	defer release()
	defer s.pool.CloseBrowser()

	if err := chromedp.Run(pageCtx,
		chromedp.Navigate(vendor.LoginURL),
		chromedp.Sleep(2*time.Second),
	); err != nil {
		return nil, fmt.Errorf("failed to open login page: %w", err)
	}

	startURL, err := s.currentURL(pageCtx)
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("vendor", vendorKey).
		Str("login_url", startURL).
		Dur("timeout", timeout).
		Msg("Waiting for operator to complete login")

	if err := s.waitForLogin(pageCtx, connector, startURL, timeout, vendorKey); err != nil {
		return nil, err
	}

	record, err := s.captureAuthState(pageCtx, vendorKey)
	if err != nil {
		return nil, err
	}

	if err := s.authStore.Save(ctx, record); err != nil {
		return nil, fmt.Errorf("failed to persist captured auth: %w", err)
	}

	result := &Result{
		VendorKey:   vendorKey,
		CookieCount: len(record.Cookies),
	}
	// Full-page capture so the confirmation evidence includes content below
	// the fold on dashboard landing pages.
	if png, err := browser.CaptureFullScreenshot(pageCtx, confirmationQuality); err == nil {
		result.Screenshot = base64.StdEncoding.EncodeToString(png)
	}

	s.logger.Info().
		Str("vendor", vendorKey).
		Int("cookies", result.CookieCount).
		Int("local_storage", len(record.LocalStorage)).
		Msg("Manual login captured")

	return result, nil
}

// loginTransitionComplete gates the connector's IsLoggedIn re-check. Both
// conditions must hold: a same-page widget login that never changes the URL
// is not trusted, and neither is a redirect still sitting on a login path.
func loginTransitionComplete(currentURL, startURL string) bool {
	return !vendors.IsLoginURL(currentURL) && currentURL != startURL
}

// waitForLogin polls until the page has both left the login-page heuristic
// and moved away from the starting URL, then re-verifies with the
// connector. Expiry of the bound is a timeout error, never silent success.
func (s *Service) waitForLogin(pageCtx context.Context, connector interfaces.VendorConnector, startURL string, timeout time.Duration, vendorKey string) error {
	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		u, err := s.currentURL(pageCtx)
		if err != nil {
			return err
		}

		if loginTransitionComplete(u, startURL) {
			ok, err := connector.IsLoggedIn(pageCtx)
			if err != nil {
				return err
			}
			if ok {
				s.logger.Info().Str("url", u).Msg("Login confirmed")
				return nil
			}
		}

		if time.Now().After(deadline) {
			return &models.LoginTimeoutError{VendorKey: vendorKey, Stage: "manual login"}
		}

		select {
		case <-pageCtx.Done():
			return pageCtx.Err()
		case <-ticker.C:
		}
	}
}

// captureAuthState reads the complete cookie set through the DevTools
// protocol, which includes HttpOnly values page scripts never see, and the
// page's localStorage via in-page evaluation.
func (s *Service) captureAuthState(pageCtx context.Context, vendorKey string) (*models.StoredAuthRecord, error) {
	var cookies []*network.Cookie
	err := chromedp.Run(pageCtx, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		cookies, err = network.GetCookies().Do(ctx)
		return err
	}))
	if err != nil {
		return nil, fmt.Errorf("failed to read cookies: %w", err)
	}

	var localStorage map[string]string
	err = chromedp.Run(pageCtx, chromedp.Evaluate(
		`(() => { const out = {}; for (let i = 0; i < localStorage.length; i++) { const k = localStorage.key(i); out[k] = localStorage.getItem(k); } return out; })()`,
		&localStorage,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to read localStorage: %w", err)
	}

	record := &models.StoredAuthRecord{
		VendorKey:    vendorKey,
		Cookies:      make([]models.CookieRecord, 0, len(cookies)),
		LocalStorage: localStorage,
	}
	for _, c := range cookies {
		record.Cookies = append(record.Cookies, models.CookieRecord{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Expires:  c.Expires,
			HTTPOnly: c.HTTPOnly,
			Secure:   c.Secure,
			SameSite: string(c.SameSite),
		})
	}

	return record, nil
}

func (s *Service) currentURL(pageCtx context.Context) (string, error) {
	var u string
	if err := chromedp.Run(pageCtx, chromedp.Location(&u)); err != nil {
		return "", fmt.Errorf("failed to read page location: %w", err)
	}
	return u, nil
}

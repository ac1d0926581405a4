// -----------------------------------------------------------------------
// Rakuten connector - credential + CAPTCHA + OTP hybrid. The CAPTCHA step
// cannot be scripted, so automation opens the login page, waits for a human
// to clear credentials and CAPTCHA, then takes over for the emailed
// one-time code.
// -----------------------------------------------------------------------

package vendors

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/billfetch/internal/interfaces"
	"github.com/ternarybob/billfetch/internal/models"
	"github.com/ternarybob/billfetch/internal/services/browser"
)

const (
	// humanStepTimeout bounds the wait for the manual credential+CAPTCHA
	// step.
	humanStepTimeout = 120 * time.Second
	// humanStepPollInterval is the fixed gap between checks.
	humanStepPollInterval = 3 * time.Second
)

// rakutenOTPSelectors locate the one-time-code controls.
var (
	rakutenSendCodeSelectors = []string{
		"button[data-testid='send-code']",
		"button.send-otp",
		"input[type='submit'][value*='送信']",
	}
	rakutenCodeInputSelector   = "input[name='otp'], input[autocomplete='one-time-code']"
	rakutenSubmitCodeSelectors = []string{
		"button[type='submit']",
		"input[type='submit']",
	}
)

var rakutenLoggedInMarkers = []string{
	"[data-testid='account-menu']",
	".member-menu",
}

// RakutenConnector drives the Rakuten Mobile portal.
type RakutenConnector struct {
	config      *models.VendorConfig
	interceptor *browser.Interceptor
	inbox       interfaces.OTPInbox
	otpWait     time.Duration
	otpMaxAge   time.Duration
	logger      arbor.ILogger
}

// NewRakutenConnector creates the rakuten connector
func NewRakutenConnector(config *models.VendorConfig, interceptor *browser.Interceptor, inbox interfaces.OTPInbox, otpWait, otpMaxAge time.Duration, logger arbor.ILogger) *RakutenConnector {
	return &RakutenConnector{
		config:      config,
		interceptor: interceptor,
		inbox:       inbox,
		otpWait:     otpWait,
		otpMaxAge:   otpMaxAge,
		logger:      logger,
	}
}

func (c *RakutenConnector) Key() string { return c.config.Key }

// Login opens the login page and waits for the human-completed credential
// and CAPTCHA step, then drives the emailed one-time code itself.
func (c *RakutenConnector) Login(ctx context.Context, creds *models.Credentials) error {
	if err := chromedp.Run(ctx,
		chromedp.Navigate(c.config.LoginURL),
		chromedp.Sleep(2*time.Second),
	); err != nil {
		return fmt.Errorf("failed to open rakuten login page: %w", err)
	}

	// Best effort prefill so the human only has to solve the CAPTCHA.
	if creds != nil && creds.Type == models.CredentialUsernamePassword {
		if err := chromedp.Run(ctx,
			chromedp.SendKeys("input[name='username'], input[name='user_id']", creds.Username, chromedp.ByQuery),
		); err != nil {
			c.logger.Debug().Err(err).Msg("Username prefill failed, leaving it to the operator")
		}
	}

	if err := c.waitForHumanStep(ctx); err != nil {
		return err
	}

	if err := c.completeOTP(ctx); err != nil {
		return err
	}

	ok, err := c.IsLoggedIn(ctx)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("rakuten login could not be verified after OTP entry")
	}
	return nil
}

// waitForHumanStep polls until the URL leaves the login path or an OTP
// request control appears, either of which means the operator has cleared
// credentials and CAPTCHA.
func (c *RakutenConnector) waitForHumanStep(ctx context.Context) error {
	c.logger.Info().
		Dur("timeout", humanStepTimeout).
		Msg("Waiting for operator to complete credentials and CAPTCHA")

	deadline := time.Now().Add(humanStepTimeout)
	ticker := time.NewTicker(humanStepPollInterval)
	defer ticker.Stop()

	for {
		u, err := currentURL(ctx)
		if err != nil {
			return err
		}
		if !IsLoginURL(u) {
			c.logger.Info().Str("url", u).Msg("Login page left, continuing")
			return nil
		}

		otpVisible, err := anyMarkerPresent(ctx, rakutenSendCodeSelectors)
		if err != nil {
			return err
		}
		if otpVisible {
			c.logger.Info().Msg("OTP request control appeared, continuing")
			return nil
		}

		if time.Now().After(deadline) {
			return &models.LoginTimeoutError{VendorKey: c.config.Key, Stage: "credential and CAPTCHA entry"}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// completeOTP clicks "send code", waits for the emailed code, and submits
// it. When no send-code control exists the flow already moved past OTP.
func (c *RakutenConnector) completeOTP(ctx context.Context) error {
	sel, err := clickFirstMatch(ctx, rakutenSendCodeSelectors, c.logger)
	if err != nil {
		return err
	}
	if sel == "" {
		c.logger.Debug().Msg("No send-code control present, skipping OTP step")
		return nil
	}

	if !c.inbox.IsConfigured() {
		return fmt.Errorf("rakuten requires an OTP email inbox but IMAP is not configured")
	}

	waitCtx, cancel := context.WithTimeout(ctx, c.otpWait)
	defer cancel()

	code, err := c.inbox.WaitForCode(waitCtx, "rakuten", c.otpMaxAge)
	if err != nil {
		return &models.LoginTimeoutError{VendorKey: c.config.Key, Stage: "one-time code wait"}
	}

	if err := chromedp.Run(ctx,
		chromedp.WaitVisible(rakutenCodeInputSelector, chromedp.ByQuery),
		chromedp.SendKeys(rakutenCodeInputSelector, code, chromedp.ByQuery),
	); err != nil {
		return fmt.Errorf("failed to enter one-time code: %w", err)
	}

	if sel, err := clickFirstMatch(ctx, rakutenSubmitCodeSelectors, c.logger); err != nil {
		return err
	} else if sel == "" {
		return fmt.Errorf("no submit control found for one-time code")
	}

	return chromedp.Run(ctx, chromedp.Sleep(3*time.Second))
}

// RestoreSession injects a captured cookie bundle.
func (c *RakutenConnector) RestoreSession(ctx context.Context, record *models.StoredAuthRecord) error {
	if err := restoreCookies(ctx, record.Cookies); err != nil {
		return err
	}
	if err := chromedp.Run(ctx, chromedp.Navigate(c.config.AppRootURL)); err != nil {
		return fmt.Errorf("failed to navigate to rakuten portal: %w", err)
	}
	if err := restoreLocalStorage(ctx, record.LocalStorage); err != nil {
		return err
	}
	return chromedp.Run(ctx,
		chromedp.Reload(),
		chromedp.Sleep(2*time.Second),
	)
}

func (c *RakutenConnector) NavigateToInvoices(ctx context.Context) error {
	err := chromedp.Run(ctx,
		chromedp.Navigate(c.config.AppRootURL+"/bill"),
		chromedp.Sleep(2*time.Second),
	)
	if err != nil {
		return fmt.Errorf("failed to navigate to rakuten billing: %w", err)
	}
	return nil
}

func (c *RakutenConnector) DownloadInvoices(ctx context.Context, opts *models.DownloadOptions) ([]models.DownloadedArtifact, error) {
	month, err := ResolveTargetMonth(optsMonth(opts), time.Now())
	if err != nil {
		return nil, err
	}

	strategies := []downloadStrategy{
		{
			name: "row_click",
			run: func(ctx context.Context) ([]models.DownloadedArtifact, error) {
				artifact, err := c.interceptor.Capture(ctx, pdfPredicate(), func(ctx context.Context) error {
					sel, err := clickFirstMatch(ctx, []string{
						fmt.Sprintf("a[data-month='%s']", month),
						"button[data-testid='bill-download']",
						"a[href*='bill/download']",
					}, c.logger)
					if err != nil {
						return err
					}
					if sel == "" {
						return fmt.Errorf("no bill row control found")
					}
					return nil
				})
				if err != nil {
					return nil, err
				}
				return []models.DownloadedArtifact{*artifact}, nil
			},
		},
		{
			name: "direct_link",
			run: func(ctx context.Context) ([]models.DownloadedArtifact, error) {
				artifact, err := c.interceptor.Capture(ctx, pdfPredicate(), func(ctx context.Context) error {
					sel, err := clickFirstMatch(ctx, []string{"a[href$='.pdf']", "a[href*='.pdf?']"}, c.logger)
					if err != nil {
						return err
					}
					if sel == "" {
						return fmt.Errorf("no direct pdf link found")
					}
					return nil
				})
				if err != nil {
					return nil, err
				}
				return []models.DownloadedArtifact{*artifact}, nil
			},
		},
		{
			name: "page_capture",
			run: func(ctx context.Context) ([]models.DownloadedArtifact, error) {
				return renderPageAsPDF(ctx, fmt.Sprintf("rakuten-%s.pdf", month))
			},
		},
	}

	return runStrategies(ctx, strategies, c.logger)
}

func (c *RakutenConnector) IsLoggedIn(ctx context.Context) (bool, error) {
	return verifyLoggedIn(ctx, rakutenLoggedInMarkers)
}

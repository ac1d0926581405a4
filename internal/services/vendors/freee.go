// -----------------------------------------------------------------------
// freee connector - cookie/localStorage OAuth variant. The normal path is
// RestoreSession from a manual capture; scripted login is best-effort.
// -----------------------------------------------------------------------

package vendors

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/billfetch/internal/models"
	"github.com/ternarybob/billfetch/internal/services/browser"
)

// freeeLoggedInMarkers are dashboard elements only present after login.
var freeeLoggedInMarkers = []string{
	"[data-testid='user-menu']",
	".global-navigation",
	"#dashboard",
}

// FreeeConnector drives the freee accounting portal.
type FreeeConnector struct {
	config      *models.VendorConfig
	interceptor *browser.Interceptor
	logger      arbor.ILogger
}

// NewFreeeConnector creates the freee connector
func NewFreeeConnector(config *models.VendorConfig, interceptor *browser.Interceptor, logger arbor.ILogger) *FreeeConnector {
	return &FreeeConnector{config: config, interceptor: interceptor, logger: logger}
}

func (c *FreeeConnector) Key() string { return c.config.Key }

// Login attempts a scripted form login. freee usually requires the manual
// capture flow, so an unverifiable outcome is reported as an auth error
// rather than retried.
func (c *FreeeConnector) Login(ctx context.Context, creds *models.Credentials) error {
	if creds == nil || creds.Type != models.CredentialUsernamePassword {
		return fmt.Errorf("freee login requires username/password credentials")
	}

	err := chromedp.Run(ctx,
		chromedp.Navigate(c.config.LoginURL),
		chromedp.WaitVisible("input[type='email'], input[name='email']", chromedp.ByQuery),
		chromedp.SendKeys("input[type='email'], input[name='email']", creds.Username, chromedp.ByQuery),
		chromedp.SendKeys("input[type='password']", creds.Password, chromedp.ByQuery),
		chromedp.Click("button[type='submit']", chromedp.ByQuery),
		chromedp.Sleep(3*time.Second),
	)
	if err != nil {
		return fmt.Errorf("freee login form submission failed: %w", err)
	}

	ok, err := c.IsLoggedIn(ctx)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("freee login could not be verified, run the manual login flow to capture a session")
	}
	return nil
}

// RestoreSession injects a captured cookie+localStorage bundle. The page is
// reloaded once after the localStorage write so the SPA picks it up.
func (c *FreeeConnector) RestoreSession(ctx context.Context, record *models.StoredAuthRecord) error {
	if err := restoreCookies(ctx, record.Cookies); err != nil {
		return err
	}

	if err := chromedp.Run(ctx, chromedp.Navigate(c.config.AppRootURL)); err != nil {
		return fmt.Errorf("failed to navigate to freee: %w", err)
	}

	if err := restoreLocalStorage(ctx, record.LocalStorage); err != nil {
		return err
	}

	if err := chromedp.Run(ctx,
		chromedp.Reload(),
		chromedp.Sleep(2*time.Second),
	); err != nil {
		return fmt.Errorf("failed to reload freee after restore: %w", err)
	}

	c.logger.Info().
		Int("cookies", len(record.Cookies)).
		Int("local_storage", len(record.LocalStorage)).
		Msg("freee session restored")

	return nil
}

func (c *FreeeConnector) NavigateToInvoices(ctx context.Context) error {
	err := chromedp.Run(ctx,
		chromedp.Navigate(c.config.AppRootURL+"/payments"),
		chromedp.Sleep(2*time.Second),
	)
	if err != nil {
		return fmt.Errorf("failed to navigate to freee payments: %w", err)
	}
	return nil
}

// DownloadInvoices tries the invoice row's download control first, then any
// direct PDF link, then a full-page PDF render as the last resort.
func (c *FreeeConnector) DownloadInvoices(ctx context.Context, opts *models.DownloadOptions) ([]models.DownloadedArtifact, error) {
	month, err := ResolveTargetMonth(optsMonth(opts), time.Now())
	if err != nil {
		return nil, err
	}

	strategies := []downloadStrategy{
		{
			name: "row_click",
			run: func(ctx context.Context) ([]models.DownloadedArtifact, error) {
				return c.captureOne(ctx, func(ctx context.Context) error {
					sel, err := clickFirstMatch(ctx, []string{
						fmt.Sprintf("a[aria-label*='%s']", month.JapaneseLabel()),
						"button[data-testid='invoice-download']",
						"a[href*='receipt']",
					}, c.logger)
					if err != nil {
						return err
					}
					if sel == "" {
						return fmt.Errorf("no invoice row control found")
					}
					return nil
				})
			},
		},
		{
			name: "direct_link",
			run: func(ctx context.Context) ([]models.DownloadedArtifact, error) {
				return c.captureOne(ctx, func(ctx context.Context) error {
					sel, err := clickFirstMatch(ctx, []string{"a[href$='.pdf']", "a[href*='.pdf?']"}, c.logger)
					if err != nil {
						return err
					}
					if sel == "" {
						return fmt.Errorf("no direct pdf link found")
					}
					return nil
				})
			},
		},
		{
			name: "page_capture",
			run: func(ctx context.Context) ([]models.DownloadedArtifact, error) {
				return renderPageAsPDF(ctx, fmt.Sprintf("freee-%s.pdf", month))
			},
		},
	}

	return runStrategies(ctx, strategies, c.logger)
}

func (c *FreeeConnector) captureOne(ctx context.Context, trigger func(ctx context.Context) error) ([]models.DownloadedArtifact, error) {
	artifact, err := c.interceptor.Capture(ctx, pdfPredicate(), trigger)
	if err != nil {
		return nil, err
	}
	return []models.DownloadedArtifact{*artifact}, nil
}

// IsLoggedIn checks for the dashboard markers, falling back to the URL
// heuristic.
func (c *FreeeConnector) IsLoggedIn(ctx context.Context) (bool, error) {
	return verifyLoggedIn(ctx, freeeLoggedInMarkers)
}

// optsMonth unwraps the optional target month.
func optsMonth(opts *models.DownloadOptions) string {
	if opts == nil {
		return ""
	}
	return opts.TargetMonth
}

// renderPageAsPDF captures the current page via the browser's print path.
// Used as the final download strategy when no downloadable response exists.
func renderPageAsPDF(ctx context.Context, filename string) ([]models.DownloadedArtifact, error) {
	var data []byte
	err := chromedp.Run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		data, _, err = page.PrintToPDF().WithPrintBackground(true).Do(ctx)
		return err
	}))
	if err != nil {
		return nil, fmt.Errorf("page capture failed: %w", err)
	}

	return []models.DownloadedArtifact{{
		Filename: filename,
		Content:  data,
		MimeType: "application/pdf",
		Size:     len(data),
	}}, nil
}

// -----------------------------------------------------------------------
// Chatwork connector - persistent-profile OAuth variant. The browser is
// bound to a durable profile directory that already carries the Google
// session; login just clicks through the social-login button when needed.
// -----------------------------------------------------------------------

package vendors

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/billfetch/internal/models"
	"github.com/ternarybob/billfetch/internal/services/browser"
)

// chatworkSocialLoginSelectors are probed in priority order when the login
// page still shows.
var chatworkSocialLoginSelectors = []string{
	"button[data-provider='google']",
	"a[href*='auth/google']",
	".social-login-google",
	"button.google-login",
	"#login_google",
}

var chatworkLoggedInMarkers = []string{
	"#_myStatusButton",
	".userIconImage",
	"[data-testid='sidebar']",
}

// ChatworkConnector drives the Chatwork billing pages.
type ChatworkConnector struct {
	config      *models.VendorConfig
	interceptor *browser.Interceptor
	logger      arbor.ILogger
}

// NewChatworkConnector creates the chatwork connector
func NewChatworkConnector(config *models.VendorConfig, interceptor *browser.Interceptor, logger arbor.ILogger) *ChatworkConnector {
	return &ChatworkConnector{config: config, interceptor: interceptor, logger: logger}
}

func (c *ChatworkConnector) Key() string { return c.config.Key }

// Login navigates to the login page on the profile-bound browser. When the
// profile session is still valid the page redirects straight into the app;
// otherwise the social-login button is probed and clicked.
func (c *ChatworkConnector) Login(ctx context.Context, creds *models.Credentials) error {
	if creds != nil && creds.Type != models.CredentialChromeProfile {
		c.logger.Warn().Str("type", string(creds.Type)).Msg("Chatwork expects a profile credential, proceeding with profile session")
	}

	if err := chromedp.Run(ctx,
		chromedp.Navigate(c.config.LoginURL),
		chromedp.Sleep(3*time.Second),
	); err != nil {
		return fmt.Errorf("failed to open chatwork login page: %w", err)
	}

	u, err := currentURL(ctx)
	if err != nil {
		return err
	}

	if IsLoginURL(u) {
		sel, err := clickFirstMatch(ctx, chatworkSocialLoginSelectors, c.logger)
		if err != nil {
			return err
		}
		if sel == "" {
			return fmt.Errorf("chatwork login page shows but no social-login button was found")
		}
		c.logger.Info().Str("selector", sel).Msg("Clicked social login button")

		if err := chromedp.Run(ctx, chromedp.Sleep(5*time.Second)); err != nil {
			return err
		}
	}

	ok, err := c.IsLoggedIn(ctx)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("chatwork login could not be verified, the profile session may have expired")
	}
	return nil
}

// RestoreSession injects a captured cookie bundle. The profile path is the
// primary mechanism for Chatwork, but a stored record works the same way as
// for the cookie-OAuth vendors.
func (c *ChatworkConnector) RestoreSession(ctx context.Context, record *models.StoredAuthRecord) error {
	if err := restoreCookies(ctx, record.Cookies); err != nil {
		return err
	}
	if err := chromedp.Run(ctx, chromedp.Navigate(c.config.AppRootURL)); err != nil {
		return fmt.Errorf("failed to navigate to chatwork: %w", err)
	}
	if err := restoreLocalStorage(ctx, record.LocalStorage); err != nil {
		return err
	}
	return chromedp.Run(ctx,
		chromedp.Reload(),
		chromedp.Sleep(2*time.Second),
	)
}

func (c *ChatworkConnector) NavigateToInvoices(ctx context.Context) error {
	err := chromedp.Run(ctx,
		chromedp.Navigate(c.config.AppRootURL+"/service/packages/chatwork/subpackages/payment/history.php"),
		chromedp.Sleep(2*time.Second),
	)
	if err != nil {
		return fmt.Errorf("failed to navigate to chatwork payment history: %w", err)
	}
	return nil
}

func (c *ChatworkConnector) DownloadInvoices(ctx context.Context, opts *models.DownloadOptions) ([]models.DownloadedArtifact, error) {
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
						fmt.Sprintf("tr[data-month='%s'] a", month),
						"a[href*='receipt.php']",
						"td.receipt a",
					}, c.logger)
					if err != nil {
						return err
					}
					if sel == "" {
						return fmt.Errorf("no receipt row control found")
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
				return renderPageAsPDF(ctx, fmt.Sprintf("chatwork-%s.pdf", month))
			},
		},
	}

	return runStrategies(ctx, strategies, c.logger)
}

func (c *ChatworkConnector) IsLoggedIn(ctx context.Context) (bool, error) {
	return verifyLoggedIn(ctx, chatworkLoggedInMarkers)
}

// Shared browser helpers used by the vendor connectors. These are small
// composable utilities injected into each connector rather than a common
// base type, since the vendors share mechanics but not flow.

package vendors

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/billfetch/internal/models"
	"github.com/ternarybob/billfetch/internal/services/browser"
)

// loginPathPattern is the heuristic for "this URL is still a login page".
var loginPathPattern = regexp.MustCompile(`(?i)/(login|signin|sign_in|sign-in|sso|authorize)([/.?]|$)|login\.php`)

// IsLoginURL reports whether the URL still looks like a login page. Shared
// with the manual login flow, which gates capture on the same heuristic.
func IsLoginURL(u string) bool {
	return loginPathPattern.MatchString(u)
}

// currentURL reads the page's current location.
func currentURL(pageCtx context.Context) (string, error) {
	var u string
	if err := chromedp.Run(pageCtx, chromedp.Location(&u)); err != nil {
		return "", fmt.Errorf("failed to read page location: %w", err)
	}
	return u, nil
}

// anyMarkerPresent checks a list of CSS selectors and reports whether any of
// them matches an element on the page.
func anyMarkerPresent(pageCtx context.Context, selectors []string) (bool, error) {
	for _, sel := range selectors {
		var found bool
		script := fmt.Sprintf("document.querySelector(%q) !== null", sel)
		if err := chromedp.Run(pageCtx, chromedp.Evaluate(script, &found)); err != nil {
			return false, fmt.Errorf("marker probe failed for '%s': %w", sel, err)
		}
		if found {
			return true, nil
		}
	}
	return false, nil
}

// verifyLoggedIn applies the shared login heuristics: a dashboard/user-menu
// marker counts as logged in, with "URL no longer on a login path" as the
// fallback signal when no marker list is given or none matched.
func verifyLoggedIn(pageCtx context.Context, markers []string) (bool, error) {
	if len(markers) > 0 {
		found, err := anyMarkerPresent(pageCtx, markers)
		if err != nil {
			return false, err
		}
		if found {
			return true, nil
		}
	}

	u, err := currentURL(pageCtx)
	if err != nil {
		return false, err
	}
	return !IsLoginURL(u), nil
}

// clickFirstMatch probes a prioritized selector list and clicks the first
// one present on the page. Returns the clicked selector, or "" when none
// matched.
func clickFirstMatch(pageCtx context.Context, selectors []string, logger arbor.ILogger) (string, error) {
	for _, sel := range selectors {
		var found bool
		script := fmt.Sprintf("document.querySelector(%q) !== null", sel)
		if err := chromedp.Run(pageCtx, chromedp.Evaluate(script, &found)); err != nil {
			return "", fmt.Errorf("selector probe failed for '%s': %w", sel, err)
		}
		if !found {
			continue
		}
		if err := chromedp.Run(pageCtx, chromedp.Click(sel, chromedp.ByQuery)); err != nil {
			logger.Warn().Err(err).Str("selector", sel).Msg("Click failed, trying next selector")
			continue
		}
		return sel, nil
	}
	return "", nil
}

// restoreCookies injects captured cookies through the DevTools protocol so
// HttpOnly values round-trip intact.
func restoreCookies(pageCtx context.Context, cookies []models.CookieRecord) error {
	return chromedp.Run(pageCtx, chromedp.ActionFunc(func(ctx context.Context) error {
		for _, c := range cookies {
			param := network.SetCookie(c.Name, c.Value).
				WithDomain(c.Domain).
				WithPath(c.Path).
				WithHTTPOnly(c.HTTPOnly).
				WithSecure(c.Secure)
			if c.Expires > 0 {
				expires := cdp.TimeSinceEpoch(time.Unix(int64(c.Expires), 0))
				param = param.WithExpires(&expires)
			}
			if err := param.Do(ctx); err != nil {
				return fmt.Errorf("failed to set cookie '%s': %w", c.Name, err)
			}
		}
		return nil
	}))
}

// restoreLocalStorage writes captured localStorage entries via in-page
// evaluation. Must run after navigating to the target origin.
func restoreLocalStorage(pageCtx context.Context, entries map[string]string) error {
	if len(entries) == 0 {
		return nil
	}
	var sb strings.Builder
	for k, v := range entries {
		fmt.Fprintf(&sb, "localStorage.setItem(%q, %q);", k, v)
	}
	var ignored interface{}
	if err := chromedp.Run(pageCtx, chromedp.Evaluate(sb.String(), &ignored)); err != nil {
		return fmt.Errorf("failed to restore localStorage: %w", err)
	}
	return nil
}

// downloadStrategy is one attempt at producing artifacts. Connectors fall
// through an ordered strategy list so a single missing UI element is not
// fatal.
type downloadStrategy struct {
	name string
	run  func(ctx context.Context) ([]models.DownloadedArtifact, error)
}

// runStrategies tries each strategy in order and returns the first
// non-empty result. ErrNoMatchingResponse from a strategy means "try the
// next one"; any other error surfaces immediately.
func runStrategies(ctx context.Context, strategies []downloadStrategy, logger arbor.ILogger) ([]models.DownloadedArtifact, error) {
	for _, s := range strategies {
		artifacts, err := s.run(ctx)
		if err != nil {
			if errors.Is(err, models.ErrNoMatchingResponse) {
				logger.Debug().Str("strategy", s.name).Msg("Strategy produced nothing, falling through")
				continue
			}
			return nil, fmt.Errorf("download strategy '%s' failed: %w", s.name, err)
		}
		if len(artifacts) > 0 {
			logger.Info().Str("strategy", s.name).Int("count", len(artifacts)).Msg("Download strategy succeeded")
			return artifacts, nil
		}
		logger.Debug().Str("strategy", s.name).Msg("Strategy returned no artifacts, falling through")
	}
	return nil, models.ErrNoMatchingResponse
}

// pdfPredicate matches PDF responses by MIME type or URL extension.
func pdfPredicate() browser.ResponsePredicate {
	return browser.ResponsePredicate{
		URLPatterns: []*regexp.Regexp{regexp.MustCompile(`(?i)\.pdf(\?|$)`)},
		MimeTypes:   []string{"application/pdf", "application/octet-stream"},
	}
}

// Shared browser resource. A single Chrome instance is launched lazily and
// reused across requests; each request gets its own page (tab) context.
// Relaunches are destructive: binding a different profile or requesting a
// headful instance tears down the running browser, so callers needing
// different profiles must serialize themselves.

package browser

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/billfetch/internal/common"
)

// PageOptions selects how a page is acquired from the pool.
type PageOptions struct {
	// ProfileDir binds the browser to a durable user-data directory.
	// Empty means the default ephemeral profile.
	ProfileDir string
	// Headful forces a fresh visible instance, discarding any running
	// headless one. Used by demo mode and the manual login flow.
	Headful bool
	// Display sets the DISPLAY environment for the browser process.
	// Only meaningful with Headful.
	Display string
}

// Pool owns the shared browser instance.
type Pool struct {
	mu     sync.Mutex
	config common.BrowserConfig
	logger arbor.ILogger

	browserCtx    context.Context
	browserCancel context.CancelFunc
	allocCancel   context.CancelFunc

	// current binding
	profileDir string
	headful    bool
	running    bool
}

// NewPool creates a browser pool. No browser is launched until the first
// AcquirePage call.
func NewPool(config common.BrowserConfig, logger arbor.ILogger) *Pool {
	return &Pool{
		config: config,
		logger: logger,
	}
}

// AcquirePage returns a new page context on the shared browser plus a
// release function. The release function closes the page only; the browser
// persists until Close or a destructive relaunch.
func (p *Pool) AcquirePage(ctx context.Context, opts PageOptions) (context.Context, context.CancelFunc, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	needsRelaunch := p.running && (opts.ProfileDir != p.profileDir || opts.Headful)
	if needsRelaunch {
		p.logger.Info().
			Str("profile", opts.ProfileDir).
			Bool("headful", opts.Headful).
			Msg("Relaunching browser for new binding")
		p.shutdownLocked()
	}

	if !p.running {
		if err := p.launchLocked(ctx, opts); err != nil {
			return nil, nil, err
		}
	}

	pageCtx, pageCancel := chromedp.NewContext(p.browserCtx)

	release := func() {
		pageCancel()
		p.logger.Debug().Msg("Page context released")
	}

	return pageCtx, release, nil
}

// CloseBrowser tears down the shared instance so a caller (the manual login
// flow) can take exclusive control of Chrome. Safe to call when nothing is
// running.
func (p *Pool) CloseBrowser() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		p.logger.Info().Msg("Closing shared browser for exclusive takeover")
		p.shutdownLocked()
	}
}

// IsRunning reports whether a browser instance is currently live.
func (p *Pool) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

// Close shuts the pool down. Called once at process shutdown.
func (p *Pool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.shutdownLocked()
	return nil
}

// launchLocked starts a browser with the requested binding. Must be called
// with the mutex held.
func (p *Pool) launchLocked(ctx context.Context, opts PageOptions) error {
	start := time.Now()

	headless := p.config.Headless && !opts.Headful

	allocOpts := append(
		chromedp.DefaultExecAllocatorOptions[:],
		chromedp.NoFirstRun,
		chromedp.NoDefaultBrowserCheck,
		chromedp.Flag("headless", headless),
		chromedp.Flag("disable-gpu", p.config.DisableGPU),
		chromedp.Flag("no-sandbox", p.config.NoSandbox),
		chromedp.Flag("disable-dev-shm-usage", true),
		// Hide the automation flag and its infobar
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("disable-infobars", true),
		chromedp.Flag("excludeSwitches", "enable-automation"),
		chromedp.Flag("useAutomationExtension", false),
		chromedp.WindowSize(1920, 1080),
		chromedp.UserAgent(p.config.UserAgent),
	)

	if opts.ProfileDir != "" {
		allocOpts = append(allocOpts, chromedp.UserDataDir(opts.ProfileDir))
	}
	if opts.Headful && opts.Display != "" {
		allocOpts = append(allocOpts, chromedp.ModifyCmdFunc(func(cmd *exec.Cmd) {
			cmd.Env = append(os.Environ(), "DISPLAY="+opts.Display)
		}))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), allocOpts...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)

	// Startup test: the allocator only spawns Chrome on first use
	testCtx, testCancel := context.WithTimeout(browserCtx, 30*time.Second)
	defer testCancel()
	if err := chromedp.Run(testCtx, chromedp.Navigate("about:blank")); err != nil {
		browserCancel()
		allocCancel()
		return fmt.Errorf("browser failed startup test: %w", err)
	}

	p.browserCtx = browserCtx
	p.browserCancel = browserCancel
	p.allocCancel = allocCancel
	p.profileDir = opts.ProfileDir
	p.headful = opts.Headful
	p.running = true

	p.logger.Info().
		Bool("headless", headless).
		Str("profile", opts.ProfileDir).
		Dur("startup_time", time.Since(start)).
		Msg("Browser launched")

	return nil
}

// shutdownLocked cancels the browser and allocator contexts. Must be called
// with the mutex held.
func (p *Pool) shutdownLocked() {
	if p.browserCancel != nil {
		p.browserCancel()
		p.browserCancel = nil
	}
	if p.allocCancel != nil {
		p.allocCancel()
		p.allocCancel = nil
	}
	p.browserCtx = nil
	p.profileDir = ""
	p.headful = false
	p.running = false
}

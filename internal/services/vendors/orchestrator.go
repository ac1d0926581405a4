// -----------------------------------------------------------------------
// Download Orchestrator - runs one download request end to end: vendor
// lookup, credential resolution, page acquisition, connector dispatch, and
// the debug trail (log buffer, screenshots, duration) on every outcome.
// -----------------------------------------------------------------------

package vendors

import (
	"context"
	"encoding/base64"
	"fmt"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/billfetch/internal/interfaces"
	"github.com/ternarybob/billfetch/internal/models"
	"github.com/ternarybob/billfetch/internal/services/browser"
)

// runLog is the chronological log buffer attached to download responses.
type runLog struct {
	mu    sync.Mutex
	lines []string
}

func (l *runLog) Add(format string, args ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	line := fmt.Sprintf("%s %s", time.Now().Format("15:04:05.000"), fmt.Sprintf(format, args...))
	l.lines = append(l.lines, line)
}

func (l *runLog) Lines() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.lines...)
}

// Orchestrator executes download requests against the registered vendors.
type Orchestrator struct {
	registry   *Registry
	resolver   *Resolver
	pool       *browser.Pool
	classifier interfaces.Classifier
	agent      interfaces.LoginAgent
	secrets    interfaces.SecretService
	logger     arbor.ILogger
}

// NewOrchestrator creates the download orchestrator. classifier and agent
// may be nil when the respective backend is not configured.
func NewOrchestrator(registry *Registry, resolver *Resolver, pool *browser.Pool, classifier interfaces.Classifier, agent interfaces.LoginAgent, secrets interfaces.SecretService, logger arbor.ILogger) *Orchestrator {
	return &Orchestrator{
		registry:   registry,
		resolver:   resolver,
		pool:       pool,
		classifier: classifier,
		agent:      agent,
		secrets:    secrets,
		logger:     logger,
	}
}

// Validate checks a vendor key without executing automation. It surfaces
// the same ValidationError / NotImplementedError the full run would.
func (o *Orchestrator) Validate(vendorKey string) error {
	if vendorKey == "" {
		return models.NewValidationError(models.ValidationMissingField, "vendorKey is required")
	}
	_, err := o.registry.Connector(vendorKey)
	return err
}

// StatusSnapshot is the health summary for GET /download/status.
type StatusSnapshot struct {
	Vendors        []string `json:"vendors"`
	Implemented    []string `json:"implemented"`
	BrowserRunning bool     `json:"browser_running"`
	SecretCount    int      `json:"secret_count"`
}

// Status reports registry, browser, and secret-store health.
func (o *Orchestrator) Status(ctx context.Context) *StatusSnapshot {
	snapshot := &StatusSnapshot{
		Vendors:        o.registry.Keys(),
		BrowserRunning: o.pool.IsRunning(),
	}
	for _, key := range o.registry.Keys() {
		if o.registry.Implemented(key) {
			snapshot.Implemented = append(snapshot.Implemented, key)
		}
	}
	if count, err := o.secrets.Count(ctx); err == nil {
		snapshot.SecretCount = count
	}
	return snapshot
}

// Run executes one download request. The response always carries the debug
// trail; errors are folded into it rather than returned raw.
func (o *Orchestrator) Run(ctx context.Context, request *models.DownloadRequest) (*models.DownloadResponse, error) {
	start := time.Now()
	log := &runLog{}

	response := &models.DownloadResponse{VendorKey: request.VendorKey}
	defer func() {
		response.Debug.Logs = log.Lines()
		response.Debug.Duration = time.Since(start).Round(time.Millisecond).String()
	}()

	vendor, err := o.registry.Config(request.VendorKey)
	if err != nil {
		return nil, err
	}
	connector, err := o.registry.Connector(request.VendorKey)
	if err != nil {
		return nil, err
	}

	log.Add("run started for vendor %s", vendor.Key)

	auth, err := o.resolver.Resolve(ctx, vendor, request.Credentials)
	if err != nil {
		cfgErr := &models.ConfigMissingError{VendorKey: vendor.Key, Reason: err.Error()}
		response.Error = cfgErr.Error()
		return response, cfgErr
	}
	log.Add("credentials resolved from %s", auth.Source)

	artifacts, runErr := o.execute(ctx, vendor, connector, auth, request, log, response)
	if runErr != nil {
		log.Add("run failed: %v", runErr)
		response.Error = runErr.Error()
		return response, runErr
	}

	inspectArtifacts(artifacts, log, o.logger)
	o.classify(ctx, artifacts, log)

	response.Success = true
	response.Files = artifacts
	log.Add("run finished with %d artifact(s)", len(artifacts))
	return response, nil
}

// execute performs the vendor-specific phase of a run.
func (o *Orchestrator) execute(ctx context.Context, vendor *models.VendorConfig, connector interfaces.VendorConnector, auth *ResolvedAuth, request *models.DownloadRequest, log *runLog, response *models.DownloadResponse) ([]models.DownloadedArtifact, error) {
	// API vendors never touch the browser.
	if vendor.SpecialHandling == "api" {
		if auth.Credentials == nil {
			return nil, fmt.Errorf("vendor '%s' requires API credentials, stored auth is not applicable", vendor.Key)
		}
		if err := connector.Login(ctx, auth.Credentials); err != nil {
			return nil, err
		}
		log.Add("API login succeeded")
		return connector.DownloadInvoices(ctx, request.Options)
	}

	pageOpts := browser.PageOptions{Headful: request.Demo}
	if auth.Credentials != nil && auth.Credentials.Type == models.CredentialChromeProfile {
		pageOpts.ProfileDir = auth.Credentials.ProfileDir
	}

	pageCtx, release, err := o.pool.AcquirePage(ctx, pageOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire browser page: %w", err)
	}
	defer release()
	defer o.snapshot(pageCtx, response, log)

	log.Add("browser page acquired (headful=%v profile=%q)", pageOpts.Headful, pageOpts.ProfileDir)

	switch auth.Source {
	case AuthSourceStored:
		if err := connector.RestoreSession(pageCtx, auth.StoredRecord); err != nil {
			return nil, fmt.Errorf("failed to restore stored session: %w", err)
		}
		log.Add("stored session injected (%d cookies)", len(auth.StoredRecord.Cookies))

		ok, err := connector.IsLoggedIn(pageCtx)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, &models.AuthExpiredError{VendorKey: vendor.Key}
		}
		log.Add("stored session verified")
	default:
		if err := connector.Login(pageCtx, auth.Credentials); err != nil {
			if !o.agentLogin(pageCtx, vendor, connector, auth.Credentials, log) {
				return nil, err
			}
		}
		log.Add("login succeeded")
	}

	if err := connector.NavigateToInvoices(pageCtx); err != nil {
		return nil, err
	}
	log.Add("invoice page reached")

	return connector.DownloadInvoices(pageCtx, request.Options)
}

// agentLogin retries a failed form login through the external AI agent, then
// re-verifies the page. Only applies to username/password credentials.
func (o *Orchestrator) agentLogin(pageCtx context.Context, vendor *models.VendorConfig, connector interfaces.VendorConnector, creds *models.Credentials, log *runLog) bool {
	if o.agent == nil || !o.agent.Available() {
		return false
	}
	if creds == nil || creds.Type != models.CredentialUsernamePassword {
		return false
	}

	log.Add("form login failed, handing off to the login agent")
	result, err := o.agent.AttemptLogin(pageCtx, vendor.LoginURL, creds)
	if err != nil || !result.Success {
		o.logger.Warn().Err(err).Str("vendor", vendor.Key).Msg("Login agent attempt failed")
		return false
	}

	ok, err := connector.IsLoggedIn(pageCtx)
	if err != nil || !ok {
		log.Add("login agent reported success but the session did not verify")
		return false
	}
	return true
}

// classify runs the optional classification collaborator over the captured
// artifacts. Failures are logged and never affect the download result.
func (o *Orchestrator) classify(ctx context.Context, artifacts []models.DownloadedArtifact, log *runLog) {
	if o.classifier == nil {
		return
	}
	for i := range artifacts {
		result, err := o.classifier.Classify(ctx, &artifacts[i])
		if err != nil {
			o.logger.Warn().Err(err).Str("filename", artifacts[i].Filename).Msg("Classification failed")
			log.Add("classification failed for %s: %v", artifacts[i].Filename, err)
			continue
		}
		artifacts[i].Classification = result
		log.Add("classified %s as %s", artifacts[i].Filename, result.DocumentType)
	}
}

// snapshot appends the page's current screenshot to the debug trail. Runs
// on both success and failure paths.
func (o *Orchestrator) snapshot(pageCtx context.Context, response *models.DownloadResponse, log *runLog) {
	png, err := browser.CaptureScreenshot(pageCtx)
	if err != nil {
		o.logger.Debug().Err(err).Msg("Debug screenshot failed")
		return
	}
	response.Debug.Screenshots = append(response.Debug.Screenshots, base64.StdEncoding.EncodeToString(png))
	log.Add("screenshot captured (%d bytes)", len(png))
}

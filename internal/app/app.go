// -----------------------------------------------------------------------
// Application assembly: construct every service once at startup, wire the
// dependencies, and tear everything down in reverse on shutdown.
// -----------------------------------------------------------------------

package app

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/billfetch/internal/common"
	"github.com/ternarybob/billfetch/internal/handlers"
	"github.com/ternarybob/billfetch/internal/interfaces"
	"github.com/ternarybob/billfetch/internal/models"
	"github.com/ternarybob/billfetch/internal/services/agent"
	"github.com/ternarybob/billfetch/internal/services/browser"
	"github.com/ternarybob/billfetch/internal/services/classify"
	"github.com/ternarybob/billfetch/internal/services/imap"
	"github.com/ternarybob/billfetch/internal/services/manuallogin"
	"github.com/ternarybob/billfetch/internal/services/scheduler"
	"github.com/ternarybob/billfetch/internal/services/secrets"
	"github.com/ternarybob/billfetch/internal/services/session"
	"github.com/ternarybob/billfetch/internal/services/vendors"
	badgerstore "github.com/ternarybob/billfetch/internal/storage/badger"
)

// App holds all application components and dependencies
type App struct {
	Config *common.Config
	Logger arbor.ILogger

	StorageManager interfaces.StorageManager

	// Browser and automation
	BrowserPool  *browser.Pool
	Interceptor  *browser.Interceptor
	Registry     *vendors.Registry
	Resolver     *vendors.Resolver
	Orchestrator *vendors.Orchestrator

	// Collaborators
	SecretService  *secrets.Service
	ImapService    *imap.Service
	Classifier     *classify.Service
	AgentService   *agent.Service
	ManualLogin    *manuallogin.Service
	SessionManager *session.Manager
	Scheduler      *scheduler.Service

	// HTTP handlers
	DownloadHandler *handlers.DownloadHandler
	SessionHandler  *handlers.SessionHandler
}

// New assembles the application.
func New(ctx context.Context, config *common.Config, logger arbor.ILogger) (*App, error) {
	a := &App{
		Config: config,
		Logger: logger,
	}

	storageManager, err := badgerstore.NewManager(logger, &config.Storage)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	a.StorageManager = storageManager

	if config.Storage.KeysDir != "" {
		if err := storageManager.LoadKeysFromFiles(ctx, config.Storage.KeysDir); err != nil {
			logger.Warn().Err(err).Str("dir", config.Storage.KeysDir).Msg("Key file load failed")
		}
	}

	a.SecretService = secrets.NewService(storageManager.KeyValueStorage(), logger)
	a.ImapService = imap.NewService(config.Imap, logger)

	a.Classifier, err = classify.NewService(config.Classifier, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize classifier: %w", err)
	}

	a.AgentService = agent.NewService(config.Agent, logger)
	if a.AgentService.Available() {
		logger.Info().Str("command", config.Agent.Command).Msg("External login agent enabled")
	}

	a.BrowserPool = browser.NewPool(config.Browser, logger)
	a.Interceptor = browser.NewInterceptor(config.Browser.InterceptTimeout, logger)

	a.Registry = vendors.NewRegistry(models.DefaultVendorConfigs(), config.Vendors.Whitelist, logger)
	a.registerConnectors()

	a.Resolver = vendors.NewResolver(storageManager.AuthStore(), a.SecretService, logger)

	// classify.NewService returns a typed nil when unconfigured; keep the
	// interface nil in that case. Same for the optional login agent.
	var classifier interfaces.Classifier
	if a.Classifier != nil {
		classifier = a.Classifier
	}
	var loginAgent interfaces.LoginAgent
	if a.AgentService.Available() {
		loginAgent = a.AgentService
	}
	a.Orchestrator = vendors.NewOrchestrator(a.Registry, a.Resolver, a.BrowserPool, classifier, loginAgent, a.SecretService, logger)

	a.ManualLogin = manuallogin.NewService(a.BrowserPool, a.Registry, storageManager.AuthStore(), config.Vendors.LoginTimeout, logger)
	a.SessionManager = session.NewManager(config.Session, a.BrowserPool, logger)
	a.Scheduler = scheduler.NewService(config.Scheduler, a.Orchestrator, a.Registry, logger)

	a.DownloadHandler = handlers.NewDownloadHandler(a.Orchestrator, a.ManualLogin, storageManager.RunHistory(), logger)
	a.SessionHandler = handlers.NewSessionHandler(a.SessionManager, a.Registry, logger)

	logger.Info().
		Strs("vendors", a.Registry.Keys()).
		Msg("Application initialized")

	return a, nil
}

// registerConnectors attaches one connector per built-in vendor.
func (a *App) registerConnectors() {
	for _, key := range a.Registry.Keys() {
		cfg, err := a.Registry.Config(key)
		if err != nil {
			continue
		}
		switch cfg.SpecialHandling {
		case "cookie_oauth":
			a.Registry.Register(vendors.NewFreeeConnector(cfg, a.Interceptor, a.Logger))
		case "profile_oauth":
			a.Registry.Register(vendors.NewChatworkConnector(cfg, a.Interceptor, a.Logger))
		case "otp_hybrid":
			a.Registry.Register(vendors.NewRakutenConnector(
				cfg, a.Interceptor, a.ImapService,
				a.Config.Vendors.OTPWaitTimeout, a.Config.Vendors.OTPMaxAge, a.Logger))
		case "api":
			a.Registry.Register(vendors.NewGoogleAdsConnector(cfg, a.Logger))
		}
	}
}

// Start brings up the background services.
func (a *App) Start() error {
	return a.Scheduler.Start()
}

// Close shuts everything down: sessions first so their browser and display
// processes die, then the shared browser, then storage.
func (a *App) Close() error {
	a.Logger.Info().Msg("Shutting down application...")

	a.Scheduler.Stop()

	if err := a.SessionManager.Close(); err != nil {
		a.Logger.Warn().Err(err).Msg("Session manager shutdown failed")
	}

	if err := a.BrowserPool.Close(); err != nil {
		a.Logger.Warn().Err(err).Msg("Browser pool shutdown failed")
	}

	if err := a.StorageManager.Close(); err != nil {
		a.Logger.Warn().Err(err).Msg("Storage shutdown failed")
	}

	a.Logger.Info().Msg("Application stopped")
	return nil
}

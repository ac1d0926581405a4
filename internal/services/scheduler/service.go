// -----------------------------------------------------------------------
// Scheduler Service - monthly automated download runs for every
// implemented vendor, driven by a cron expression.
// -----------------------------------------------------------------------

package scheduler

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/billfetch/internal/common"
	"github.com/ternarybob/billfetch/internal/models"
	"github.com/ternarybob/billfetch/internal/services/vendors"
)

// runTimeout bounds one vendor's scheduled run.
const runTimeout = 15 * time.Minute

// Service triggers scheduled downloads.
type Service struct {
	config       common.SchedulerConfig
	orchestrator *vendors.Orchestrator
	registry     *vendors.Registry
	logger       arbor.ILogger
	cron         *cron.Cron
}

// NewService creates the scheduler service
func NewService(config common.SchedulerConfig, orchestrator *vendors.Orchestrator, registry *vendors.Registry, logger arbor.ILogger) *Service {
	return &Service{
		config:       config,
		orchestrator: orchestrator,
		registry:     registry,
		logger:       logger,
	}
}

// Start registers the cron entry and begins scheduling. No-op when the
// scheduler is disabled.
func (s *Service) Start() error {
	if !s.config.Enabled {
		s.logger.Info().Msg("Scheduler disabled")
		return nil
	}

	s.cron = cron.New()
	if _, err := s.cron.AddFunc(s.config.Schedule, s.runAll); err != nil {
		return err
	}
	s.cron.Start()

	s.logger.Info().Str("schedule", s.config.Schedule).Msg("Scheduler started")
	return nil
}

// Stop halts scheduling and waits for a running job to finish.
func (s *Service) Stop() {
	if s.cron != nil {
		ctx := s.cron.Stop()
		<-ctx.Done()
		s.logger.Info().Msg("Scheduler stopped")
	}
}

// runAll downloads last month's invoices for every implemented vendor,
// sequentially so the shared browser is never contended.
func (s *Service) runAll() {
	s.logger.Info().Msg("Scheduled download run starting")

	for _, key := range s.registry.Keys() {
		if !s.registry.Implemented(key) {
			continue
		}

		ctx, cancel := context.WithTimeout(context.Background(), runTimeout)
		response, err := s.orchestrator.Run(ctx, &models.DownloadRequest{VendorKey: key})
		cancel()

		if err != nil {
			s.logger.Warn().Err(err).Str("vendor", key).Msg("Scheduled download failed")
			continue
		}
		s.logger.Info().
			Str("vendor", key).
			Int("files", len(response.Files)).
			Msg("Scheduled download finished")
	}
}

package scheduler

import (
	"time"

	"github.com/robfig/cron/v3"

	"affiliate-network-backend/internal/jobs"
	"affiliate-network-backend/internal/logger"
)

// Scheduler manages cron job scheduling
type Scheduler struct {
	cron *cron.Cron
	jobs *jobs.JobRunner
}

// NewScheduler creates a new scheduler with the provided job runner
func NewScheduler(jobRunner *jobs.JobRunner) *Scheduler {
	// Create cron with UTC timezone and seconds precision
	c := cron.New(
		cron.WithLocation(time.UTC),
		cron.WithSeconds(),
	)

	s := &Scheduler{
		cron: c,
		jobs: jobRunner,
	}

	s.registerJobs()
	return s
}

// registerJobs registers all scheduled jobs with the cron scheduler
func (s *Scheduler) registerJobs() {
	cfg := s.jobs.Config().Scheduler

	// Hourly: expire invites past their expiry
	_, err := s.cron.AddFunc(cfg.ExpireInvites, s.jobs.ExpireInvites)
	if err != nil {
		logger.Error("Failed to register ExpireInvites job", "error", err, "schedule", cfg.ExpireInvites)
	}

	// Nightly: auto-approve pending commissions
	_, err = s.cron.AddFunc(cfg.ApproveCommissions, s.jobs.ApproveCommissions)
	if err != nil {
		logger.Error("Failed to register ApproveCommissions job", "error", err, "schedule", cfg.ApproveCommissions)
	}

	logger.Info("Cron jobs registered", "count", len(s.cron.Entries()))
}

// Start begins the cron scheduler
func (s *Scheduler) Start() {
	logger.Info("Starting cron scheduler...")
	s.cron.Start()
	logger.Info("Cron scheduler started successfully")
}

// Stop gracefully stops the cron scheduler, waiting for running jobs
func (s *Scheduler) Stop() {
	logger.Info("Stopping cron scheduler...")
	ctx := s.cron.Stop()
	<-ctx.Done()
	logger.Info("Cron scheduler stopped")
}

// Entries returns the number of registered jobs
func (s *Scheduler) Entries() int {
	return len(s.cron.Entries())
}

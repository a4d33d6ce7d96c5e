package scheduler

import (
	"time"

	"github.com/robfig/cron/v3"

	"clubledger-backend/internal/jobs"
	"clubledger-backend/internal/logger"
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

	_, err := s.cron.AddFunc(cfg.UpdateLiabilities, s.jobs.UpdateAllLiabilities)
	if err != nil {
		logger.Error("Failed to register UpdateAllLiabilities job", "error", err)
	}

	_, err = s.cron.AddFunc(cfg.TakeBalanceSnapshots, s.jobs.TakeBalanceSnapshots)
	if err != nil {
		logger.Error("Failed to register TakeBalanceSnapshots job", "error", err)
	}

	_, err = s.cron.AddFunc(cfg.StatuteBarredReport, s.jobs.ReportStatuteBarredDebt)
	if err != nil {
		logger.Error("Failed to register ReportStatuteBarredDebt job", "error", err)
	}

	_, err = s.cron.AddFunc(cfg.UnbalancedReport, s.jobs.ReportUnbalancedTransactions)
	if err != nil {
		logger.Error("Failed to register ReportUnbalancedTransactions job", "error", err)
	}
}

// Start begins running scheduled jobs
func (s *Scheduler) Start() {
	s.cron.Start()
	logger.WithService("scheduler").Info("Scheduler started", "jobs", len(s.cron.Entries()))
}

// Stop gracefully stops the scheduler
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	logger.WithService("scheduler").Info("Scheduler stopped")
}

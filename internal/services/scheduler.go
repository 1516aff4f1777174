package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/robfig/cron/v3"

	"dobkap/internal/log"
)

// Scheduler starts sync jobs on a cron schedule.
type Scheduler struct {
	cron   *cron.Cron
	sync   *SyncService
	logger *slog.Logger
}

func NewScheduler(sync *SyncService) *Scheduler {
	return &Scheduler{
		cron:   cron.New(),
		sync:   sync,
		logger: slog.With(log.FieldComponent, log.ComponentScheduler),
	}
}

// Schedule registers a sync on a standard five-field cron spec or a
// descriptor such as "@hourly".
func (s *Scheduler) Schedule(ctx context.Context, spec string) error {
	_, err := s.cron.AddFunc(spec, func() {
		job, started := s.sync.StartSync(ctx)
		if !started {
			s.logger.InfoContext(ctx, "Scheduled sync skipped, a job is still running", log.FieldJobID, job.ID())
		}
	})
	if err != nil {
		return fmt.Errorf("schedule sync %q: %w", spec, err)
	}
	s.logger.InfoContext(ctx, "Sync scheduled", "schedule", spec)
	return nil
}

// Run starts the scheduler and blocks until ctx is done.
func (s *Scheduler) Run(ctx context.Context) error {
	s.cron.Start()
	s.logger.InfoContext(ctx, "Scheduler started", "entries", len(s.cron.Entries()))
	<-ctx.Done()
	stopped := s.cron.Stop()
	<-stopped.Done()
	s.logger.InfoContext(ctx, "Scheduler stopped")
	return nil
}

// Package services runs sync jobs: mailbox capture followed by filing of
// every unprocessed report.
package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"dobkap/internal/calendar"
	"dobkap/internal/core"
	"dobkap/internal/filing"
	"dobkap/internal/jobs"
	"dobkap/internal/log"
	"dobkap/internal/mailbox"
)

type Store interface {
	GetMailbox(ctx context.Context) (core.Mailbox, error)
	ListImporters(ctx context.Context) ([]core.Importer, error)
	ListUnprocessedReports(ctx context.Context) ([]core.Report, error)
	GetProfile(ctx context.Context) (core.TaxpayerProfile, error)
	GetHolidayConf(ctx context.Context) (calendar.HolidayConf, error)
}

type MailboxRunner interface {
	Run(ctx context.Context, mb core.Mailbox, importers []core.Importer, progress mailbox.Progress) error
}

type FilingProcessor interface {
	Process(ctx context.Context, reports []core.Report, importers []core.Importer, profile core.TaxpayerProfile, conf calendar.HolidayConf, progress filing.Progress) ([]core.Filing, error)
}

// Publisher announces new filings to the export worker.
type Publisher interface {
	PublishFilingCreated(ctx context.Context, id int64) error
}

type SyncService struct {
	store     Store
	jobs      *jobs.Store
	mailbox   MailboxRunner
	pipeline  FilingProcessor
	publisher Publisher

	mu      sync.Mutex
	current *jobs.Job
}

// NewSyncService wires a sync service. publisher may be nil, in which case
// new filings are left to the export worker's sweep.
func NewSyncService(store Store, jobStore *jobs.Store, mb MailboxRunner, pipeline FilingProcessor, publisher Publisher) *SyncService {
	return &SyncService{
		store:     store,
		jobs:      jobStore,
		mailbox:   mb,
		pipeline:  pipeline,
		publisher: publisher,
	}
}

// StartSync spawns a sync job and returns it. While one is still running it
// returns that job instead and started is false. The job outlives ctx's
// cancellation; it stops only through Cancel.
func (s *SyncService) StartSync(ctx context.Context) (job *jobs.Job, started bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current != nil && !s.current.Completed() {
		return s.current, false
	}
	s.current = s.jobs.Spawn(context.WithoutCancel(ctx), s.run)
	slog.InfoContext(ctx, "Sync job started", log.FieldOperation, log.OpSync, log.FieldJobID, s.current.ID())
	return s.current, true
}

func (s *SyncService) run(ctx context.Context, job *jobs.Job) {
	logger := slog.With(log.FieldComponent, log.ComponentJobs, log.FieldJobID, job.ID())

	importers, err := s.store.ListImporters(ctx)
	if err != nil {
		logger.ErrorContext(ctx, "Failed to load importers", log.FieldError, err)
		job.Error(fmt.Sprintf("load importers: %v", err))
		return
	}

	mb, err := s.store.GetMailbox(ctx)
	switch {
	case errors.Is(err, core.ErrNotFound):
		logger.InfoContext(ctx, "No mailbox configured, skipping mailbox sync")
	case err != nil:
		logger.ErrorContext(ctx, "Failed to load mailbox", log.FieldError, err)
		job.Error(fmt.Sprintf("load mailbox: %v", err))
		return
	default:
		err := s.mailbox.Run(ctx, mb, importers, job)
		if errors.Is(err, mailbox.ErrCanceled) {
			logger.InfoContext(ctx, "Sync job cancelled during mailbox sync")
			return
		}
		if err != nil {
			logger.ErrorContext(ctx, "Mailbox sync failed", log.FieldError, err)
			job.Error(err.Error())
			return
		}
	}

	if job.Canceled() {
		job.Error("cancelled")
		return
	}

	reports, err := s.store.ListUnprocessedReports(ctx)
	if err != nil {
		job.Error(fmt.Sprintf("list reports: %v", err))
		return
	}
	profile, err := s.store.GetProfile(ctx)
	if err != nil {
		job.Error(fmt.Sprintf("load taxpayer profile: %v", err))
		return
	}
	conf, err := s.store.GetHolidayConf(ctx)
	if err != nil {
		job.Error(fmt.Sprintf("load holiday conf: %v", err))
		return
	}

	created, err := s.pipeline.Process(ctx, reports, importers, profile, conf, job)
	s.publish(ctx, created)
	if err != nil {
		if ctx.Err() != nil {
			job.Error("cancelled")
			return
		}
		logger.ErrorContext(ctx, "Filing pipeline failed", log.FieldError, err)
		job.Error(err.Error())
		return
	}
	logger.InfoContext(ctx, "Sync job finished", "reports", len(reports), "filings", len(created))
}

// publish announces each filing. Publish failures are only logged; the
// export worker picks unexported filings up on its sweep.
func (s *SyncService) publish(ctx context.Context, created []core.Filing) {
	if s.publisher == nil {
		return
	}
	// Announce even when the job was cancelled mid-pipeline.
	ctx = context.WithoutCancel(ctx)
	for _, f := range created {
		if err := s.publisher.PublishFilingCreated(ctx, f.ID); err != nil {
			slog.WarnContext(ctx, "Failed to publish filing created", log.FieldFilingID, f.ID, log.FieldError, err)
		}
	}
}

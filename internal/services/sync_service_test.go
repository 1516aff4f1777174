package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dobkap/internal/calendar"
	"dobkap/internal/core"
	"dobkap/internal/filing"
	"dobkap/internal/jobs"
	"dobkap/internal/mailbox"
)

type fakeStore struct {
	mailbox    core.Mailbox
	mailboxErr error
	importers  []core.Importer
	reports    []core.Report
}

func (s *fakeStore) GetMailbox(context.Context) (core.Mailbox, error) {
	return s.mailbox, s.mailboxErr
}

func (s *fakeStore) ListImporters(context.Context) ([]core.Importer, error) {
	return s.importers, nil
}

func (s *fakeStore) ListUnprocessedReports(context.Context) ([]core.Report, error) {
	return s.reports, nil
}

func (s *fakeStore) GetProfile(context.Context) (core.TaxpayerProfile, error) {
	return core.TaxpayerProfile{FullName: "Petar Petrović"}, nil
}

func (s *fakeStore) GetHolidayConf(context.Context) (calendar.HolidayConf, error) {
	return calendar.DefaultHolidayConf(), nil
}

type fakeMailbox struct {
	calls int
	err   error
	block chan struct{}
}

func (m *fakeMailbox) Run(ctx context.Context, _ core.Mailbox, _ []core.Importer, progress mailbox.Progress) error {
	m.calls++
	if m.block != nil {
		select {
		case <-m.block:
		case <-ctx.Done():
			progress.Error("cancelled")
			return mailbox.ErrCanceled
		}
	}
	if m.err != nil {
		return m.err
	}
	progress.Report("broker@example.com", "Monthly statement", "statement.csv")
	progress.Success("Processed 1 emails")
	return nil
}

type fakePipeline struct {
	calls   int
	reports []core.Report
	created []core.Filing
}

func (p *fakePipeline) Process(_ context.Context, reports []core.Report, _ []core.Importer, profile core.TaxpayerProfile, _ calendar.HolidayConf, progress filing.Progress) ([]core.Filing, error) {
	p.calls++
	p.reports = reports
	if len(p.created) > 0 {
		progress.Success(fmt.Sprintf("Processed %d passive incomes", len(p.created)))
	}
	return p.created, nil
}

type fakePublisher struct {
	mu  sync.Mutex
	ids []int64
	err error
}

func (p *fakePublisher) PublishFilingCreated(_ context.Context, id int64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ids = append(p.ids, id)
	return p.err
}

func waitDone(t *testing.T, store *jobs.Store, id string) jobs.Snapshot {
	t.Helper()
	var snap jobs.Snapshot
	require.Eventually(t, func() bool {
		var ok bool
		snap, ok = store.Get(id)
		return ok && snap.Completed
	}, 2*time.Second, 5*time.Millisecond)
	return snap
}

func texts(snap jobs.Snapshot) []string {
	out := make([]string, 0, len(snap.Messages))
	for _, m := range snap.Messages {
		if m.Type == jobs.MessageReport {
			out = append(out, "report:"+m.AttachmentName)
			continue
		}
		out = append(out, string(m.Type)+":"+m.Text)
	}
	return out
}

func TestStartSyncRunsMailboxThenPipeline(t *testing.T) {
	store := &fakeStore{
		mailbox: core.Mailbox{ID: 1, EmailAddress: "me@example.com"},
		reports: []core.Report{{ID: 3, Name: "statement.csv"}},
	}
	mb := &fakeMailbox{}
	pipeline := &fakePipeline{created: []core.Filing{{ID: 10}, {ID: 11}}}
	publisher := &fakePublisher{}
	jobStore := jobs.NewStore(time.Hour)
	svc := NewSyncService(store, jobStore, mb, pipeline, publisher)

	job, started := svc.StartSync(context.Background())
	require.True(t, started)
	snap := waitDone(t, jobStore, job.ID())

	assert.Equal(t, 1, mb.calls)
	assert.Equal(t, 1, pipeline.calls)
	assert.Equal(t, store.reports, pipeline.reports)
	assert.Equal(t, []string{
		"report:statement.csv",
		"success:Processed 1 emails",
		"success:Processed 2 passive incomes",
	}, texts(snap))
	assert.Equal(t, []int64{10, 11}, publisher.ids)
}

func TestStartSyncWithoutMailboxStillFilesReports(t *testing.T) {
	store := &fakeStore{mailboxErr: fmt.Errorf("get mailbox: %w", core.ErrNotFound)}
	mb := &fakeMailbox{}
	pipeline := &fakePipeline{}
	jobStore := jobs.NewStore(time.Hour)
	svc := NewSyncService(store, jobStore, mb, pipeline, nil)

	job, _ := svc.StartSync(context.Background())
	snap := waitDone(t, jobStore, job.ID())

	assert.Equal(t, 0, mb.calls)
	assert.Equal(t, 1, pipeline.calls)
	assert.Empty(t, snap.Messages)
}

func TestStartSyncMailboxFailureStopsJob(t *testing.T) {
	store := &fakeStore{mailbox: core.Mailbox{ID: 1}}
	mb := &fakeMailbox{err: errors.New("connect mailbox: dial tcp: connection refused")}
	pipeline := &fakePipeline{}
	jobStore := jobs.NewStore(time.Hour)
	svc := NewSyncService(store, jobStore, mb, pipeline, nil)

	job, _ := svc.StartSync(context.Background())
	snap := waitDone(t, jobStore, job.ID())

	assert.Equal(t, 0, pipeline.calls)
	assert.Equal(t, []string{"error:connect mailbox: dial tcp: connection refused"}, texts(snap))
}

func TestStartSyncReturnsRunningJob(t *testing.T) {
	store := &fakeStore{mailbox: core.Mailbox{ID: 1}}
	mb := &fakeMailbox{block: make(chan struct{})}
	jobStore := jobs.NewStore(time.Hour)
	svc := NewSyncService(store, jobStore, mb, &fakePipeline{}, nil)

	first, started := svc.StartSync(context.Background())
	require.True(t, started)

	second, started := svc.StartSync(context.Background())
	assert.False(t, started)
	assert.Equal(t, first.ID(), second.ID())

	close(mb.block)
	waitDone(t, jobStore, first.ID())

	third, started := svc.StartSync(context.Background())
	assert.True(t, started)
	assert.NotEqual(t, first.ID(), third.ID())
	waitDone(t, jobStore, third.ID())
}

func TestCancelStopsBeforePipeline(t *testing.T) {
	store := &fakeStore{mailbox: core.Mailbox{ID: 1}}
	mb := &fakeMailbox{block: make(chan struct{})}
	pipeline := &fakePipeline{}
	jobStore := jobs.NewStore(time.Hour)
	svc := NewSyncService(store, jobStore, mb, pipeline, nil)

	job, _ := svc.StartSync(context.Background())
	require.True(t, jobStore.Cancel(job.ID()))
	snap := waitDone(t, jobStore, job.ID())

	assert.True(t, snap.Canceled)
	assert.Equal(t, 0, pipeline.calls)
	assert.Equal(t, []string{"error:cancelled"}, texts(snap))
}

func TestStartSyncOutlivesCallerContext(t *testing.T) {
	store := &fakeStore{mailbox: core.Mailbox{ID: 1}}
	mb := &fakeMailbox{block: make(chan struct{})}
	pipeline := &fakePipeline{}
	jobStore := jobs.NewStore(time.Hour)
	svc := NewSyncService(store, jobStore, mb, pipeline, nil)

	ctx, cancel := context.WithCancel(context.Background())
	job, _ := svc.StartSync(ctx)
	cancel()
	close(mb.block)

	snap := waitDone(t, jobStore, job.ID())
	assert.False(t, snap.Canceled)
	assert.Equal(t, 1, pipeline.calls)
}

func TestPublishFailureDoesNotFailJob(t *testing.T) {
	store := &fakeStore{mailboxErr: core.ErrNotFound}
	pipeline := &fakePipeline{created: []core.Filing{{ID: 5}}}
	publisher := &fakePublisher{err: errors.New("circuit breaker is open")}
	jobStore := jobs.NewStore(time.Hour)
	svc := NewSyncService(store, jobStore, &fakeMailbox{}, pipeline, publisher)

	job, _ := svc.StartSync(context.Background())
	snap := waitDone(t, jobStore, job.ID())

	assert.Equal(t, []string{"success:Processed 1 passive incomes"}, texts(snap))
	assert.Equal(t, []int64{5}, publisher.ids)
}

func TestSchedulerRejectsBadSpec(t *testing.T) {
	svc := NewSyncService(&fakeStore{}, jobs.NewStore(time.Hour), &fakeMailbox{}, &fakePipeline{}, nil)
	s := NewScheduler(svc)

	assert.Error(t, s.Schedule(context.Background(), "every day"))
	assert.NoError(t, s.Schedule(context.Background(), "@hourly"))
	assert.Len(t, s.cron.Entries(), 1)
}

func TestSchedulerRunStopsOnCancel(t *testing.T) {
	svc := NewSyncService(&fakeStore{}, jobs.NewStore(time.Hour), &fakeMailbox{}, &fakePipeline{}, nil)
	s := NewScheduler(svc)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("scheduler did not stop")
	}
}

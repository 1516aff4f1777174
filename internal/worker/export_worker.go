// Package worker exports stored filings to the spreadsheet ledger.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"dobkap/internal/amqp"
	"dobkap/internal/core"
	"dobkap/internal/log"
	"dobkap/internal/sheets"
)

type Store interface {
	GetFiling(ctx context.Context, id int64) (core.Filing, error)
	ListUnexportedFilings(ctx context.Context, limit int) ([]core.Filing, error)
	MarkFilingExported(ctx context.Context, id int64) error
}

// DefaultRetryDelay is how long the sweep leaves a filing alone after its
// export failed.
const DefaultRetryDelay = 15 * time.Minute

// ExportWorker writes filings to the ledger, driven by filing messages and
// by a periodic sweep over filings not yet exported.
type ExportWorker struct {
	store      Store
	ledger     sheets.FilingExporter
	batchSize  int
	retryDelay time.Duration
	now        func() time.Time

	mu      sync.Mutex
	retryAt map[int64]time.Time // filing id to the next sweep attempt
}

func NewExportWorker(store Store, ledger sheets.FilingExporter, batchSize int) *ExportWorker {
	if batchSize < 1 {
		batchSize = 10
	}
	return &ExportWorker{
		store:      store,
		ledger:     ledger,
		batchSize:  batchSize,
		retryDelay: DefaultRetryDelay,
		now:        time.Now,
		retryAt:    make(map[int64]time.Time),
	}
}

// HandleFilingCreated exports the filing named by msg. A filing deleted
// since the message was published is acknowledged without export.
func (w *ExportWorker) HandleFilingCreated(ctx context.Context, msg *amqp.FilingCreatedMessage) error {
	slog.InfoContext(ctx, "Processing filing message", log.FieldFilingID, msg.ID, "published_at", msg.Timestamp)

	f, err := w.store.GetFiling(ctx, msg.ID)
	if errors.Is(err, core.ErrNotFound) {
		slog.WarnContext(ctx, "Filing no longer exists, skipping export", log.FieldFilingID, msg.ID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("get filing from storage: %w", err)
	}
	return w.export(ctx, f)
}

// ProcessPending exports up to one batch of filings not yet marked
// exported. Filings whose export failed recently are passed over, so they
// cannot hold back newer ones. It returns how many were exported.
func (w *ExportWorker) ProcessPending(ctx context.Context) (int, error) {
	deferred := w.deferred()
	pending, err := w.store.ListUnexportedFilings(ctx, w.batchSize+len(deferred))
	if err != nil {
		return 0, fmt.Errorf("list unexported filings: %w", err)
	}

	batch := make([]core.Filing, 0, w.batchSize)
	for _, f := range pending {
		if deferred[f.ID] {
			continue
		}
		if len(batch) == w.batchSize {
			break
		}
		batch = append(batch, f)
	}
	if len(batch) == 0 {
		return 0, nil
	}

	slog.InfoContext(ctx, "Processing pending filings", "count", len(batch), "deferred", len(deferred))
	exported := 0
	for _, f := range batch {
		if err := ctx.Err(); err != nil {
			return exported, err
		}
		if err := w.export(ctx, f); err != nil {
			slog.ErrorContext(ctx, "Failed to export filing", log.FieldFilingID, f.ID, log.FieldError, err, "retry_in", w.retryDelay)
			continue
		}
		exported++
	}
	return exported, nil
}

// deferred returns the filings still waiting out their retry delay and
// forgets those whose delay has passed.
func (w *ExportWorker) deferred() map[int64]bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	now := w.now()
	out := make(map[int64]bool, len(w.retryAt))
	for id, at := range w.retryAt {
		if now.Before(at) {
			out[id] = true
			continue
		}
		delete(w.retryAt, id)
	}
	return out
}

func (w *ExportWorker) recordAttempt(id int64, err error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err != nil {
		w.retryAt[id] = w.now().Add(w.retryDelay)
		return
	}
	delete(w.retryAt, id)
}

// Run sweeps pending filings every interval until ctx is done.
func (w *ExportWorker) Run(ctx context.Context, interval time.Duration) error {
	if _, err := w.ProcessPending(ctx); err != nil && ctx.Err() == nil {
		slog.ErrorContext(ctx, "Startup export sweep failed", log.FieldError, err)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := w.ProcessPending(ctx); err != nil && ctx.Err() == nil {
				slog.ErrorContext(ctx, "Export sweep failed", log.FieldError, err)
			}
		}
	}
}

func (w *ExportWorker) export(ctx context.Context, f core.Filing) error {
	ref, err := w.ledger.ExportFiling(ctx, f)
	w.recordAttempt(f.ID, err)
	if err != nil {
		return fmt.Errorf("export filing %d: %w", f.ID, err)
	}

	// The row is written; a failed mark only means it is written again.
	if err := w.store.MarkFilingExported(ctx, f.ID); err != nil {
		slog.ErrorContext(ctx, "Failed to mark filing exported", log.FieldFilingID, f.ID, log.FieldError, err)
	}

	slog.InfoContext(ctx, "Filing exported",
		log.FieldOperation, log.OpExport,
		log.FieldFilingID, f.ID,
		"sheets_ref", ref,
		"deadline", core.FormatDate(f.FilingDeadline),
		log.FieldTaxPayable, f.TaxPayable.String())
	return nil
}

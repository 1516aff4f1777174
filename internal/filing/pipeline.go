// Package filing turns captured reports into filings with rendered OPO
// declarations.
package filing

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"dobkap/internal/calendar"
	"dobkap/internal/core"
	"dobkap/internal/log"
	"dobkap/internal/statement"
	"dobkap/internal/tax"
)

// Resolver returns the RSD value of one unit of currency on date.
type Resolver interface {
	Rate(ctx context.Context, date time.Time, currency string) (float64, error)
}

// ResolverFor binds a resolver to the exchange rates one statement
// discloses about itself.
type ResolverFor func(obs []core.ExchangeRateObservation) Resolver

type Store interface {
	GetReportContent(ctx context.Context, id int64) ([]byte, error)
	// RecordFilings stores the drafts of one report and marks it processed
	// atomically.
	RecordFilings(ctx context.Context, reportID int64, drafts []core.FilingDraft) ([]core.Filing, error)
}

type Progress interface {
	Error(text string)
	Success(text string)
}

type Pipeline struct {
	store  Store
	rates  ResolverFor
	render func(Form) ([]byte, error)
}

func NewPipeline(store Store, rates ResolverFor) *Pipeline {
	return &Pipeline{store: store, rates: rates, render: RenderOPO}
}

// Process files every event of every report. A report's filings are
// stored and the report marked processed in one step, so a report is either
// filed completely or left untouched for the next run. Cancellation is
// honored between reports only.
func (p *Pipeline) Process(ctx context.Context, reports []core.Report, importers []core.Importer, profile core.TaxpayerProfile, conf calendar.HolidayConf, progress Progress) ([]core.Filing, error) {
	cal, err := calendar.New(conf)
	if err != nil {
		return nil, fmt.Errorf("holiday conf: %w", err)
	}
	byID := make(map[int64]core.Importer, len(importers))
	for _, im := range importers {
		byID[im.ID] = im
	}

	var (
		created          []core.Filing
		processedReports int
	)
	for _, report := range reports {
		if err := ctx.Err(); err != nil {
			return created, err
		}
		logger := slog.With(log.FieldComponent, log.ComponentFiling, log.FieldReportID, report.ID, "report_name", report.Name)

		var notes string
		if report.ImporterID != nil {
			im, ok := byID[*report.ImporterID]
			if !ok {
				logger.WarnContext(ctx, "Skipping report of unknown importer", log.FieldImporterID, *report.ImporterID)
				continue
			}
			notes = im.PaymentNotes
		}

		batch, err := p.prepare(ctx, report, notes, profile, cal)
		if err != nil {
			if ctx.Err() != nil {
				return created, ctx.Err()
			}
			logger.ErrorContext(ctx, "Failed to process report", log.FieldError, err)
			progress.Error(fmt.Sprintf("%s: %v", report.Name, err))
			continue
		}

		filings, err := p.store.RecordFilings(context.WithoutCancel(ctx), report.ID, batch)
		if err != nil {
			logger.ErrorContext(ctx, "Failed to store filings", log.FieldError, err)
			progress.Error(fmt.Sprintf("%s: %v", report.Name, err))
			continue
		}
		created = append(created, filings...)
		processedReports++
		logger.InfoContext(ctx, "Report processed", "filings", len(filings))
	}

	if processedReports > 0 {
		progress.Success(fmt.Sprintf("Processed %d reports", processedReports))
	}
	if len(created) > 0 {
		progress.Success(fmt.Sprintf("Processed %d passive incomes", len(created)))
	}
	return created, nil
}

// prepare extracts the report and computes every filing without storing
// anything.
func (p *Pipeline) prepare(ctx context.Context, report core.Report, notes string, profile core.TaxpayerProfile, cal *calendar.Calendar) ([]core.FilingDraft, error) {
	extractor, err := statement.For(report.Format)
	if err != nil {
		return nil, err
	}
	raw, err := p.store.GetReportContent(ctx, report.ID)
	if err != nil {
		return nil, err
	}
	extraction, err := extractor.Extract(raw)
	if err != nil {
		return nil, err
	}
	rates := p.rates(extraction.Observations)

	batch := make([]core.FilingDraft, 0, len(extraction.Events))
	for _, ev := range extraction.Events {
		assessment, err := assess(ctx, rates, ev)
		if err != nil {
			return nil, err
		}
		deadline, err := cal.FilingDeadline(ev.IncomeDate)
		if err != nil {
			return nil, err
		}
		form, err := p.render(Form{
			Kind:           ev.Kind,
			IncomeDate:     ev.IncomeDate,
			FilingDeadline: deadline,
			Profile:        profile,
			PaymentNotes:   notes,
			Assessment:     assessment,
		})
		if err != nil {
			return nil, fmt.Errorf("render form: %w", err)
		}
		batch = append(batch, core.FilingDraft{
			Filing: core.Filing{
				ReportID:       report.ID,
				Kind:           ev.Kind,
				PayingEntity:   ev.PayingEntity,
				IncomeDate:     ev.IncomeDate,
				FilingDeadline: deadline,
				TaxPayable:     assessment.TaxPayable,
				Status:         core.FilingInit,
			},
			Form: form,
		})
	}
	return batch, nil
}

func assess(ctx context.Context, rates Resolver, ev core.PassiveIncomeEvent) (tax.Assessment, error) {
	incomeRate, err := rates.Rate(ctx, ev.IncomeDate, ev.IncomeCurrency)
	if err != nil {
		return tax.Assessment{}, err
	}
	withholdingRate := incomeRate
	if ev.WithholdingCurrency != ev.IncomeCurrency && !ev.WithholdingAmount.IsZero() {
		if withholdingRate, err = rates.Rate(ctx, ev.IncomeDate, ev.WithholdingCurrency); err != nil {
			return tax.Assessment{}, err
		}
	}
	return tax.Assess(ev, incomeRate, withholdingRate), nil
}

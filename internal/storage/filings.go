package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"dobkap/internal/core"
	"dobkap/internal/log"
)

const filingColumns = `id, report_id, kind, paying_entity, income_date, filing_deadline, tax_payable_cents, status, payment_reference`

func scanFiling(row interface{ Scan(...any) error }) (core.Filing, error) {
	var (
		f              core.Filing
		incomeDate     string
		filingDeadline string
	)
	if err := row.Scan(&f.ID, &f.ReportID, &f.Kind, &f.PayingEntity, &incomeDate, &filingDeadline, &f.TaxPayable.Cents, &f.Status, &f.PaymentReference); err != nil {
		return core.Filing{}, err
	}
	var err error
	if f.IncomeDate, err = core.ParseDate(incomeDate); err != nil {
		return core.Filing{}, fmt.Errorf("filing %d: %w", f.ID, err)
	}
	if f.FilingDeadline, err = core.ParseDate(filingDeadline); err != nil {
		return core.Filing{}, fmt.Errorf("filing %d: %w", f.ID, err)
	}
	return f, nil
}

func (r *SQLiteRepository) queryFilings(ctx context.Context, query string, args ...any) ([]core.Filing, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []core.Filing
	for rows.Next() {
		f, err := scanFiling(rows)
		if err != nil {
			return nil, fmt.Errorf("scan filing: %w", err)
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

// CreateFiling inserts f and returns it with its assigned id.
func (r *SQLiteRepository) CreateFiling(ctx context.Context, f core.Filing) (core.Filing, error) {
	var out core.Filing
	err := r.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		out, err = insertFiling(ctx, tx, f, nil)
		return err
	})
	if err != nil {
		return core.Filing{}, err
	}
	logFilingCreated(ctx, out)
	return out, nil
}

// RecordFilings stores every draft of one report with its form and marks
// the report processed in the same transaction. Either all drafts are
// stored or none is.
func (r *SQLiteRepository) RecordFilings(ctx context.Context, reportID int64, drafts []core.FilingDraft) ([]core.Filing, error) {
	out := make([]core.Filing, 0, len(drafts))
	err := r.withTx(ctx, func(tx *sql.Tx) error {
		for _, d := range drafts {
			if d.Filing.ReportID != reportID {
				return fmt.Errorf("filing of report %d recorded under report %d", d.Filing.ReportID, reportID)
			}
			f, err := insertFiling(ctx, tx, d.Filing, d.Form)
			if err != nil {
				return err
			}
			out = append(out, f)
		}
		res, err := tx.ExecContext(ctx, `UPDATE reports SET status = ? WHERE id = ?`, core.ReportProcessed, reportID)
		if err != nil {
			return fmt.Errorf("mark report processed: %w", err)
		}
		return rowsAffected(res, "mark report processed", reportID)
	})
	if err != nil {
		return nil, err
	}
	for _, f := range out {
		logFilingCreated(ctx, f)
	}
	return out, nil
}

func insertFiling(ctx context.Context, tx *sql.Tx, f core.Filing, form []byte) (core.Filing, error) {
	if !f.Kind.Valid() {
		return core.Filing{}, fmt.Errorf("%w: %q", core.ErrInvalidKind, f.Kind)
	}
	if f.Status == "" {
		f.Status = core.FilingInit
	}
	res, err := tx.ExecContext(ctx,
		`INSERT INTO filings (report_id, kind, paying_entity, income_date, filing_deadline, tax_payable_cents, status, payment_reference, content) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		f.ReportID, f.Kind, f.PayingEntity, core.FormatDate(f.IncomeDate), core.FormatDate(f.FilingDeadline), f.TaxPayable.Cents, f.Status, f.PaymentReference, form)
	if err != nil {
		return core.Filing{}, fmt.Errorf("create filing: %w", err)
	}
	if f.ID, err = res.LastInsertId(); err != nil {
		return core.Filing{}, fmt.Errorf("create filing: %w", err)
	}
	return f, nil
}

func logFilingCreated(ctx context.Context, f core.Filing) {
	slog.InfoContext(ctx, "Filing created",
		log.FieldComponent, log.ComponentStorage,
		log.FieldFilingID, f.ID,
		log.FieldReportID, f.ReportID,
		"kind", f.Kind,
		"paying_entity", f.PayingEntity,
		"deadline", core.FormatDate(f.FilingDeadline),
		log.FieldTaxPayable, f.TaxPayable.String())
}

func (r *SQLiteRepository) SaveFilingContent(ctx context.Context, id int64, content []byte) error {
	res, err := r.db.ExecContext(ctx, `UPDATE filings SET content = ? WHERE id = ?`, content, id)
	if err != nil {
		return fmt.Errorf("save filing content: %w", err)
	}
	return rowsAffected(res, "save filing content", id)
}

func (r *SQLiteRepository) GetFilingContent(ctx context.Context, id int64) ([]byte, error) {
	var content []byte
	err := r.db.QueryRowContext(ctx, `SELECT content FROM filings WHERE id = ?`, id).Scan(&content)
	if notFound(err) || (err == nil && content == nil) {
		return nil, fmt.Errorf("get filing content %d: %w", id, core.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get filing content %d: %w", id, err)
	}
	return content, nil
}

func (r *SQLiteRepository) ListFilings(ctx context.Context) ([]core.Filing, error) {
	out, err := r.queryFilings(ctx, `SELECT `+filingColumns+` FROM filings ORDER BY filing_deadline, id`)
	if err != nil {
		return nil, fmt.Errorf("list filings: %w", err)
	}
	return out, nil
}

func (r *SQLiteRepository) GetFiling(ctx context.Context, id int64) (core.Filing, error) {
	f, err := scanFiling(r.db.QueryRowContext(ctx, `SELECT `+filingColumns+` FROM filings WHERE id = ?`, id))
	if notFound(err) {
		return core.Filing{}, fmt.Errorf("get filing %d: %w", id, core.ErrNotFound)
	}
	if err != nil {
		return core.Filing{}, fmt.Errorf("get filing %d: %w", id, err)
	}
	return f, nil
}

// UpdateFiling changes the operator-managed fields of a filing.
func (r *SQLiteRepository) UpdateFiling(ctx context.Context, id int64, status core.FilingStatus, paymentReference string) (core.Filing, error) {
	if !status.Valid() {
		return core.Filing{}, fmt.Errorf("%w: %q", core.ErrInvalidStatus, status)
	}
	res, err := r.db.ExecContext(ctx,
		`UPDATE filings SET status = ?, payment_reference = ?, exported_at = NULL WHERE id = ?`,
		status, paymentReference, id)
	if err != nil {
		return core.Filing{}, fmt.Errorf("update filing: %w", err)
	}
	if err := rowsAffected(res, "update filing", id); err != nil {
		return core.Filing{}, err
	}
	slog.InfoContext(ctx, "Filing updated", log.FieldFilingID, id, "status", status)
	return r.GetFiling(ctx, id)
}

func (r *SQLiteRepository) DeleteFiling(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM filings WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete filing: %w", err)
	}
	if err := rowsAffected(res, "delete filing", id); err != nil {
		return err
	}
	slog.InfoContext(ctx, "Filing deleted", log.FieldFilingID, id)
	return nil
}

// ListUnexportedFilings returns up to limit filings not yet written to the
// spreadsheet, oldest first.
func (r *SQLiteRepository) ListUnexportedFilings(ctx context.Context, limit int) ([]core.Filing, error) {
	out, err := r.queryFilings(ctx, `SELECT `+filingColumns+` FROM filings WHERE exported_at IS NULL ORDER BY id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list unexported filings: %w", err)
	}
	return out, nil
}

func (r *SQLiteRepository) MarkFilingExported(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `UPDATE filings SET exported_at = CURRENT_TIMESTAMP WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("mark filing exported: %w", err)
	}
	return rowsAffected(res, "mark filing exported", id)
}

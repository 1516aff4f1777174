package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"dobkap/internal/core"
	"dobkap/internal/log"
)

const reportColumns = `id, mailbox_id, mailbox_message_uid, importer_id, report_name, report_type, status, created_at`

func scanReport(row interface{ Scan(...any) error }) (core.Report, error) {
	var (
		rep        core.Report
		mailboxID  sql.NullInt64
		messageUID sql.NullInt64
		importerID sql.NullInt64
	)
	if err := row.Scan(&rep.ID, &mailboxID, &messageUID, &importerID, &rep.Name, &rep.Format, &rep.Status, &rep.CreatedAt); err != nil {
		return core.Report{}, err
	}
	if mailboxID.Valid {
		rep.MailboxID = &mailboxID.Int64
	}
	if messageUID.Valid {
		uid := uint32(messageUID.Int64)
		rep.MessageUID = &uid
	}
	if importerID.Valid {
		rep.ImporterID = &importerID.Int64
	}
	return rep, nil
}

func (r *SQLiteRepository) queryReports(ctx context.Context, query string, args ...any) ([]core.Report, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []core.Report
	for rows.Next() {
		rep, err := scanReport(rows)
		if err != nil {
			return nil, fmt.Errorf("scan report: %w", err)
		}
		out = append(out, rep)
	}
	return out, rows.Err()
}

// ListReportUIDs returns the message uids that already produced a report in
// the mailbox.
func (r *SQLiteRepository) ListReportUIDs(ctx context.Context, mailboxID int64) ([]uint32, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT DISTINCT mailbox_message_uid FROM reports WHERE mailbox_id = ? AND mailbox_message_uid IS NOT NULL ORDER BY mailbox_message_uid`,
		mailboxID)
	if err != nil {
		return nil, fmt.Errorf("list report uids: %w", err)
	}
	defer rows.Close()

	var out []uint32
	for rows.Next() {
		var uid int64
		if err := rows.Scan(&uid); err != nil {
			return nil, fmt.Errorf("scan report uid: %w", err)
		}
		out = append(out, uint32(uid))
	}
	return out, rows.Err()
}

// RecordMessage stores the reports captured from one message and advances
// the mailbox cursor in the same transaction.
func (r *SQLiteRepository) RecordMessage(ctx context.Context, mailboxID int64, reports []core.NewReport, cursor core.MailboxCursor) error {
	return r.withTx(ctx, func(tx *sql.Tx) error {
		for _, rep := range reports {
			if err := insertReport(ctx, tx, &mailboxID, rep); err != nil {
				return err
			}
		}
		res, err := tx.ExecContext(ctx,
			`UPDATE mailboxes SET cursor = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
			cursor.String(), mailboxID)
		if err != nil {
			return fmt.Errorf("advance mailbox cursor: %w", err)
		}
		return rowsAffected(res, "advance mailbox cursor", mailboxID)
	})
}

func insertReport(ctx context.Context, tx *sql.Tx, mailboxID *int64, rep core.NewReport) error {
	var uid any
	if rep.MessageUID != nil {
		uid = int64(*rep.MessageUID)
	}
	var importerID, mbID any
	if rep.ImporterID != nil {
		importerID = *rep.ImporterID
	}
	if mailboxID != nil {
		mbID = *mailboxID
	}
	_, err := tx.ExecContext(ctx,
		`INSERT INTO reports (importer_id, mailbox_id, mailbox_message_uid, report_name, report_type, status, content) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		importerID, mbID, uid, rep.Name, rep.Format, core.ReportInit, rep.Content)
	if isUniqueViolation(err) {
		return fmt.Errorf("report %q: %w", rep.Name, core.ErrConflict)
	}
	if err != nil {
		return fmt.Errorf("create report %q: %w", rep.Name, err)
	}
	return nil
}

// CreateManualReport stores operator-provided native JSON content.
func (r *SQLiteRepository) CreateManualReport(ctx context.Context, content []byte) (core.Report, error) {
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO reports (report_name, report_type, status, content) VALUES (?, ?, ?, ?)`,
		core.ManualReportName, core.FormatNativeJSON, core.ReportInit, content)
	if err != nil {
		return core.Report{}, fmt.Errorf("create manual report: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return core.Report{}, fmt.Errorf("create manual report: %w", err)
	}
	slog.InfoContext(ctx, "Manual report created", log.FieldReportID, id, "size", len(content))
	return r.GetReport(ctx, id)
}

func (r *SQLiteRepository) GetReport(ctx context.Context, id int64) (core.Report, error) {
	rep, err := scanReport(r.db.QueryRowContext(ctx, `SELECT `+reportColumns+` FROM reports WHERE id = ?`, id))
	if notFound(err) {
		return core.Report{}, fmt.Errorf("get report %d: %w", id, core.ErrNotFound)
	}
	if err != nil {
		return core.Report{}, fmt.Errorf("get report %d: %w", id, err)
	}
	return rep, nil
}

func (r *SQLiteRepository) ListReports(ctx context.Context) ([]core.Report, error) {
	out, err := r.queryReports(ctx, `SELECT `+reportColumns+` FROM reports ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list reports: %w", err)
	}
	return out, nil
}

func (r *SQLiteRepository) ListUnprocessedReports(ctx context.Context) ([]core.Report, error) {
	out, err := r.queryReports(ctx, `SELECT `+reportColumns+` FROM reports WHERE status <> ? ORDER BY id`, core.ReportProcessed)
	if err != nil {
		return nil, fmt.Errorf("list unprocessed reports: %w", err)
	}
	return out, nil
}

func (r *SQLiteRepository) GetReportContent(ctx context.Context, id int64) ([]byte, error) {
	var content []byte
	err := r.db.QueryRowContext(ctx, `SELECT content FROM reports WHERE id = ?`, id).Scan(&content)
	if notFound(err) {
		return nil, fmt.Errorf("get report content %d: %w", id, core.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get report content %d: %w", id, err)
	}
	return content, nil
}

// DeleteReport removes the report and, through the foreign key, its
// filings.
func (r *SQLiteRepository) DeleteReport(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM reports WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete report: %w", err)
	}
	if err := rowsAffected(res, "delete report", id); err != nil {
		return err
	}
	slog.InfoContext(ctx, "Report deleted", log.FieldReportID, id)
	return nil
}

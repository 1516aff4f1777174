package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"dobkap/internal/core"
	"dobkap/internal/log"
)

const mailboxColumns = `id, email_address, email_password, imap_host, imap_port, cursor`

func scanMailbox(row interface{ Scan(...any) error }) (core.Mailbox, error) {
	var (
		m      core.Mailbox
		cursor string
	)
	if err := row.Scan(&m.ID, &m.EmailAddress, &m.Password, &m.IMAPHost, &m.IMAPPort, &cursor); err != nil {
		return core.Mailbox{}, err
	}
	c, err := core.ParseCursor(cursor)
	if err != nil {
		return core.Mailbox{}, fmt.Errorf("mailbox %d: %w", m.ID, err)
	}
	m.Cursor = c
	return m, nil
}

// GetMailbox returns the configured mailbox, the oldest one when several
// exist.
func (r *SQLiteRepository) GetMailbox(ctx context.Context) (core.Mailbox, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+mailboxColumns+` FROM mailboxes ORDER BY id LIMIT 1`)
	m, err := scanMailbox(row)
	if notFound(err) {
		return core.Mailbox{}, fmt.Errorf("get mailbox: %w", core.ErrNotFound)
	}
	if err != nil {
		return core.Mailbox{}, fmt.Errorf("get mailbox: %w", err)
	}
	return m, nil
}

// SaveMailbox inserts m when its ID is zero and updates it otherwise.
func (r *SQLiteRepository) SaveMailbox(ctx context.Context, m core.Mailbox) (core.Mailbox, error) {
	if err := m.Validate(); err != nil {
		return core.Mailbox{}, err
	}
	if m.ID == 0 {
		res, err := r.db.ExecContext(ctx,
			`INSERT INTO mailboxes (email_address, email_password, imap_host, imap_port, cursor) VALUES (?, ?, ?, ?, ?)`,
			m.EmailAddress, m.Password, m.IMAPHost, m.IMAPPort, m.Cursor.String())
		if err != nil {
			return core.Mailbox{}, fmt.Errorf("create mailbox: %w", err)
		}
		if m.ID, err = res.LastInsertId(); err != nil {
			return core.Mailbox{}, fmt.Errorf("create mailbox: %w", err)
		}
		slog.InfoContext(ctx, "Mailbox created", log.FieldMailboxID, m.ID, "email", m.EmailAddress)
		return m, nil
	}

	res, err := r.db.ExecContext(ctx,
		`UPDATE mailboxes SET email_address = ?, email_password = ?, imap_host = ?, imap_port = ?, cursor = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		m.EmailAddress, m.Password, m.IMAPHost, m.IMAPPort, m.Cursor.String(), m.ID)
	if err != nil {
		return core.Mailbox{}, fmt.Errorf("update mailbox: %w", err)
	}
	if err := rowsAffected(res, "update mailbox", m.ID); err != nil {
		return core.Mailbox{}, err
	}
	return m, nil
}

const importerColumns = `id, name, report_type, mailbox_id, from_filter, subject_filter, attachment_regex, payment_notes`

func scanImporter(row interface{ Scan(...any) error }) (core.Importer, error) {
	var im core.Importer
	err := row.Scan(&im.ID, &im.Name, &im.Format, &im.MailboxID, &im.FromFilter, &im.SubjectFilter, &im.AttachmentRegex, &im.PaymentNotes)
	return im, err
}

func (r *SQLiteRepository) ListImporters(ctx context.Context) ([]core.Importer, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+importerColumns+` FROM importers ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list importers: %w", err)
	}
	defer rows.Close()

	var out []core.Importer
	for rows.Next() {
		im, err := scanImporter(rows)
		if err != nil {
			return nil, fmt.Errorf("scan importer: %w", err)
		}
		out = append(out, im)
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) GetImporter(ctx context.Context, id int64) (core.Importer, error) {
	im, err := scanImporter(r.db.QueryRowContext(ctx, `SELECT `+importerColumns+` FROM importers WHERE id = ?`, id))
	if notFound(err) {
		return core.Importer{}, fmt.Errorf("get importer %d: %w", id, core.ErrNotFound)
	}
	if err != nil {
		return core.Importer{}, fmt.Errorf("get importer %d: %w", id, err)
	}
	return im, nil
}

func (r *SQLiteRepository) CreateImporter(ctx context.Context, im core.Importer) (core.Importer, error) {
	if err := im.Validate(); err != nil {
		return core.Importer{}, err
	}
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO importers (name, report_type, mailbox_id, from_filter, subject_filter, attachment_regex, payment_notes) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		im.Name, im.Format, im.MailboxID, im.FromFilter, im.SubjectFilter, im.AttachmentRegex, im.PaymentNotes)
	if err != nil {
		return core.Importer{}, fmt.Errorf("create importer: %w", err)
	}
	if im.ID, err = res.LastInsertId(); err != nil {
		return core.Importer{}, fmt.Errorf("create importer: %w", err)
	}
	slog.InfoContext(ctx, "Importer created", log.FieldImporterID, im.ID, "name", im.Name, "format", im.Format)
	return im, nil
}

func (r *SQLiteRepository) UpdateImporter(ctx context.Context, im core.Importer) error {
	if err := im.Validate(); err != nil {
		return err
	}
	res, err := r.db.ExecContext(ctx,
		`UPDATE importers SET name = ?, report_type = ?, mailbox_id = ?, from_filter = ?, subject_filter = ?, attachment_regex = ?, payment_notes = ? WHERE id = ?`,
		im.Name, im.Format, im.MailboxID, im.FromFilter, im.SubjectFilter, im.AttachmentRegex, im.PaymentNotes, im.ID)
	if err != nil {
		return fmt.Errorf("update importer: %w", err)
	}
	return rowsAffected(res, "update importer", im.ID)
}

// DeleteImporter removes the importer. Its reports are kept with a NULL
// importer id.
func (r *SQLiteRepository) DeleteImporter(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM importers WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete importer: %w", err)
	}
	if err := rowsAffected(res, "delete importer", id); err != nil {
		return err
	}
	slog.InfoContext(ctx, "Importer deleted", log.FieldImporterID, id)
	return nil
}

func (r *SQLiteRepository) GetProfile(ctx context.Context) (core.TaxpayerProfile, error) {
	var p core.TaxpayerProfile
	err := r.db.QueryRowContext(ctx,
		`SELECT jmbg, full_name, street_address, opstina_code, phone_number, email_address FROM taxpayer_profile WHERE id = 1`).
		Scan(&p.JMBG, &p.FullName, &p.StreetAddress, &p.OpstinaCode, &p.PhoneNumber, &p.EmailAddress)
	if err != nil && err != sql.ErrNoRows {
		return core.TaxpayerProfile{}, fmt.Errorf("get taxpayer profile: %w", err)
	}
	return p, nil
}

func (r *SQLiteRepository) SaveProfile(ctx context.Context, p core.TaxpayerProfile) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO taxpayer_profile (id, jmbg, full_name, street_address, opstina_code, phone_number, email_address)
		 VALUES (1, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET
		   jmbg = excluded.jmbg,
		   full_name = excluded.full_name,
		   street_address = excluded.street_address,
		   opstina_code = excluded.opstina_code,
		   phone_number = excluded.phone_number,
		   email_address = excluded.email_address`,
		p.JMBG, p.FullName, p.StreetAddress, p.OpstinaCode, p.PhoneNumber, p.EmailAddress)
	if err != nil {
		return fmt.Errorf("save taxpayer profile: %w", err)
	}
	return nil
}

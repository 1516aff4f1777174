package mailbox

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"dobkap/internal/core"
	"dobkap/internal/log"
)

// ErrCanceled is returned by Run when the job was canceled between messages.
var ErrCanceled = errors.New("mailbox sync canceled")

// Store is the persistence the engine needs.
type Store interface {
	ListReportUIDs(ctx context.Context, mailboxID int64) ([]uint32, error)
	// RecordMessage stores reports and moves the cursor in one transaction.
	RecordMessage(ctx context.Context, mailboxID int64, reports []core.NewReport, cursor core.MailboxCursor) error
}

// Progress receives the run's log.
type Progress interface {
	Report(from, subject, attachmentName string)
	Error(text string)
	Success(text string)
	Canceled() bool
}

type Engine struct {
	dialer Dialer
	store  Store
	now    func() time.Time
}

func NewEngine(dialer Dialer, store Store) *Engine {
	return &Engine{dialer: dialer, store: store, now: time.Now}
}

// Run captures every new matching attachment of mb. Failures of single
// messages are reported through progress and do not stop the run.
func (e *Engine) Run(ctx context.Context, mb core.Mailbox, importers []core.Importer, progress Progress) error {
	logger := slog.With(log.FieldComponent, log.ComponentMailbox, log.FieldMailboxID, mb.ID, "email", mb.EmailAddress)

	session, err := e.dialer.Dial(ctx, mb)
	if err != nil {
		return core.NewProtocolError("connect mailbox", err)
	}
	defer func() {
		if err := session.Close(); err != nil {
			logger.WarnContext(ctx, "Failed to close mailbox session", log.FieldError, err)
		}
	}()

	validity, err := session.Select(Folder)
	if err != nil {
		return core.NewProtocolError("open "+Folder, err)
	}
	if validity == 0 {
		return core.NewProtocolError("mailbox does not support persistent UIDs", nil)
	}

	matched, err := e.search(session, mb.Cursor, importers)
	if err != nil {
		return err
	}
	candidates, err := e.candidates(ctx, mb, matched)
	if err != nil {
		return err
	}
	logger.InfoContext(ctx, "Mailbox scanned",
		"cursor", mb.Cursor.String(),
		"discovered", len(matched),
		"candidates", len(candidates))

	byID := make(map[int64]core.Importer, len(importers))
	for _, im := range importers {
		byID[im.ID] = im
	}

	for _, uid := range candidates {
		if progress.Canceled() || ctx.Err() != nil {
			progress.Error("cancelled")
			return ErrCanceled
		}
		if err := e.processMessage(ctx, session, mb, uid, matched[uid], byID, progress); err != nil {
			logger.ErrorContext(ctx, "Failed to process message", log.FieldMessageUID, uid, log.FieldError, err)
			progress.Error(err.Error())
		}
	}
	progress.Success(fmt.Sprintf("Processed %d emails", len(candidates)))
	return nil
}

// search runs one search per importer and returns, per message uid, the
// ids of the importers that matched it.
func (e *Engine) search(session Session, cursor core.MailboxCursor, importers []core.Importer) (map[uint32][]int64, error) {
	matched := make(map[uint32][]int64)
	for _, im := range importers {
		uids, err := session.Search(CriteriaFor(im, cursor))
		if err != nil {
			return nil, core.NewProtocolError(fmt.Sprintf("search for importer %q", im.Name), err)
		}
		for _, uid := range uids {
			matched[uid] = append(matched[uid], im.ID)
		}
	}
	return matched, nil
}

// candidates drops messages already captured and, for uid cursors, the
// last message some servers return even when it lies outside the range.
func (e *Engine) candidates(ctx context.Context, mb core.Mailbox, matched map[uint32][]int64) ([]uint32, error) {
	known, err := e.store.ListReportUIDs(ctx, mb.ID)
	if err != nil {
		return nil, fmt.Errorf("list captured messages: %w", err)
	}
	seen := make(map[uint32]bool, len(known))
	for _, uid := range known {
		seen[uid] = true
	}

	out := make([]uint32, 0, len(matched))
	for uid := range matched {
		if seen[uid] {
			continue
		}
		if mb.Cursor.Kind == core.CursorUID && uid <= mb.Cursor.LastSeenUID {
			continue
		}
		out = append(out, uid)
	}
	slices.Sort(out)
	return out, nil
}

func (e *Engine) processMessage(ctx context.Context, session Session, mb core.Mailbox, uid uint32, importerIDs []int64, importers map[int64]core.Importer, progress Progress) error {
	raw, err := session.Fetch(uid)
	if err != nil {
		return err
	}
	msg, err := ParseMessage(raw)
	if err != nil {
		return fmt.Errorf("message %d: %w", uid, err)
	}

	var reports []core.NewReport
	for _, id := range importerIDs {
		im, ok := importers[id]
		if !ok {
			continue
		}
		pattern, err := im.AttachmentPattern()
		if err != nil {
			return fmt.Errorf("importer %q: bad attachment regex: %w", im.Name, err)
		}
		for _, att := range msg.Attachments {
			if !pattern.MatchString(att.Name) {
				continue
			}
			importerID := im.ID
			messageUID := uid
			reports = append(reports, core.NewReport{
				ImporterID: &importerID,
				MessageUID: &messageUID,
				Name:       att.Name,
				Format:     im.Format,
				Content:    att.Content,
			})
		}
	}

	// once fetched, a message is recorded even if the job is cancelled now
	if err := e.store.RecordMessage(context.WithoutCancel(ctx), mb.ID, reports, core.UIDCursor(uid, e.now())); err != nil {
		return fmt.Errorf("record message %d: %w", uid, err)
	}
	for _, r := range reports {
		progress.Report(msg.From, msg.Subject, r.Name)
	}
	return nil
}

// Package mailbox scans an IMAP mailbox for statement attachments and
// captures them as reports.
package mailbox

import (
	"context"
	"time"

	"dobkap/internal/core"
)

// Folder is the only folder scanned.
const Folder = "INBOX"

// Criteria restricts a search. Since applies when UseUID is false, AfterUID
// otherwise.
type Criteria struct {
	From     string
	Subject  string
	Since    time.Time
	UseUID   bool
	AfterUID uint32
}

// CriteriaFor builds the search of one importer from the mailbox cursor.
func CriteriaFor(importer core.Importer, cursor core.MailboxCursor) Criteria {
	c := Criteria{From: importer.FromFilter, Subject: importer.SubjectFilter}
	if cursor.Kind == core.CursorUID {
		c.UseUID = true
		c.AfterUID = cursor.LastSeenUID
	} else {
		c.Since = cursor.Day
	}
	return c
}

// Session is an authenticated connection to one mailbox.
type Session interface {
	// Select opens folder read-only and returns its UIDVALIDITY, 0 when the
	// server does not report one.
	Select(folder string) (uint32, error)
	Search(c Criteria) ([]uint32, error)
	// Fetch returns the full RFC 822 message with uid.
	Fetch(uid uint32) ([]byte, error)
	Close() error
}

type Dialer interface {
	Dial(ctx context.Context, mb core.Mailbox) (Session, error)
}

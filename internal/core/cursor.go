package core

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	CursorDate CursorKind = "date"
	CursorUID  CursorKind = "uid"
)

type CursorKind string

// MailboxCursor is the incremental-scan bookmark of a mailbox. A date cursor
// scans everything received since Day; a uid cursor scans everything after
// LastSeenUID.
type MailboxCursor struct {
	Kind        CursorKind
	Day         time.Time
	LastSeenUID uint32
	LastSeenAt  time.Time
}

func DateCursor(day time.Time) MailboxCursor {
	return MailboxCursor{Kind: CursorDate, Day: Day(day)}
}

func UIDCursor(uid uint32, at time.Time) MailboxCursor {
	return MailboxCursor{Kind: CursorUID, LastSeenUID: uid, LastSeenAt: time.UnixMilli(at.UnixMilli()).UTC()}
}

// String serializes the cursor as "date,YYYY-MM-DD" or "uid,<uid>,<epoch millis>".
func (c MailboxCursor) String() string {
	if c.Kind == CursorUID {
		return fmt.Sprintf("uid,%d,%d", c.LastSeenUID, c.LastSeenAt.UnixMilli())
	}
	return "date," + FormatDate(c.Day)
}

func ParseCursor(s string) (MailboxCursor, error) {
	fragments := strings.Split(strings.TrimSpace(s), ",")
	switch fragments[0] {
	case string(CursorDate):
		if len(fragments) != 2 {
			return MailboxCursor{}, fmt.Errorf("parse cursor: expected 2 fragments, got %d", len(fragments))
		}
		day, err := ParseDate(fragments[1])
		if err != nil {
			return MailboxCursor{}, fmt.Errorf("parse cursor: %w", err)
		}
		return DateCursor(day), nil
	case string(CursorUID):
		if len(fragments) != 3 {
			return MailboxCursor{}, fmt.Errorf("parse cursor: expected 3 fragments, got %d", len(fragments))
		}
		uid, err := strconv.ParseUint(fragments[1], 10, 32)
		if err != nil {
			return MailboxCursor{}, fmt.Errorf("parse cursor uid: %w", err)
		}
		millis, err := strconv.ParseInt(fragments[2], 10, 64)
		if err != nil {
			return MailboxCursor{}, fmt.Errorf("parse cursor timestamp: %w", err)
		}
		return MailboxCursor{Kind: CursorUID, LastSeenUID: uint32(uid), LastSeenAt: time.UnixMilli(millis).UTC()}, nil
	}
	return MailboxCursor{}, fmt.Errorf("parse cursor: unknown cursor type %q", fragments[0])
}

// Increment returns a date cursor for the day after the cursor's day.
// A uid cursor contributes the day of LastSeenAt.
func (c MailboxCursor) Increment() MailboxCursor {
	return DateCursor(c.day().AddDate(0, 0, 1))
}

// Decrement moves a date cursor back one day. A uid cursor becomes a date
// cursor on the day of LastSeenAt, so that day is scanned again.
func (c MailboxCursor) Decrement() MailboxCursor {
	if c.Kind == CursorUID {
		return DateCursor(c.day())
	}
	return DateCursor(c.day().AddDate(0, 0, -1))
}

func (c MailboxCursor) day() time.Time {
	if c.Kind == CursorUID {
		return Day(c.LastSeenAt.UTC())
	}
	return c.Day
}

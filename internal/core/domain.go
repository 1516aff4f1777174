package core

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// DateLayout is the calendar-date layout used on every boundary.
const DateLayout = "2006-01-02"

const (
	KindDividend IncomeKind = "dividend"
	KindInterest IncomeKind = "interest"
)

const (
	ReportInit      ReportStatus = "init"
	ReportProcessed ReportStatus = "processed"
)

const (
	FilingInit  FilingStatus = "init"
	FilingFiled FilingStatus = "filed"
	FilingPaid  FilingStatus = "paid"
)

const (
	FormatIBKR       StatementFormat = "ibkr"
	FormatNativeJSON StatementFormat = "native-json"
)

// ManualReportName is the display name of reports imported by hand.
const ManualReportName = "Manual report"

type (
	IncomeKind      string
	ReportStatus    string
	FilingStatus    string
	StatementFormat string

	// PassiveIncomeEvent is one taxable payment extracted from a statement.
	PassiveIncomeEvent struct {
		Kind                IncomeKind
		PayingEntity        string
		IncomeDate          time.Time
		IncomeCurrency      string
		IncomeAmount        decimal.Decimal
		WithholdingCurrency string
		WithholdingAmount   decimal.Decimal
	}

	// ExchangeRateObservation is a rate disclosed by a statement itself,
	// expressing one unit of Currency in the statement's base currency.
	ExchangeRateObservation struct {
		Date     time.Time
		Currency string
		Rate     float64
	}

	Mailbox struct {
		ID           int64
		EmailAddress string
		Password     string
		IMAPHost     string
		IMAPPort     int
		Cursor       MailboxCursor
	}

	Importer struct {
		ID              int64
		Name            string
		Format          StatementFormat
		MailboxID       int64
		FromFilter      string
		SubjectFilter   string
		AttachmentRegex string
		PaymentNotes    string
	}

	TaxpayerProfile struct {
		JMBG          string
		FullName      string
		StreetAddress string
		OpstinaCode   string
		PhoneNumber   string
		EmailAddress  string
	}

	Report struct {
		ID         int64
		MailboxID  *int64
		MessageUID *uint32
		ImporterID *int64
		Name       string
		Format     StatementFormat
		Status     ReportStatus
		CreatedAt  time.Time
	}

	// NewReport is a captured attachment about to be stored.
	NewReport struct {
		ImporterID *int64
		MessageUID *uint32
		Name       string
		Format     StatementFormat
		Content    []byte
	}

	Filing struct {
		ID               int64
		ReportID         int64
		Kind             IncomeKind
		PayingEntity     string
		IncomeDate       time.Time
		FilingDeadline   time.Time
		TaxPayable       Money
		Status           FilingStatus
		PaymentReference string
	}

	// FilingDraft is a computed filing with its rendered declaration,
	// not yet stored.
	FilingDraft struct {
		Filing Filing
		Form   []byte
	}
)

var (
	ErrNotFound           = errors.New("not found")
	ErrConflict           = errors.New("already exists")
	ErrEmptyName          = errors.New("empty name")
	ErrInvalidFormat      = errors.New("invalid statement format")
	ErrInvalidPattern     = errors.New("invalid attachment pattern")
	ErrInvalidKind        = errors.New("invalid income kind")
	ErrInvalidStatus      = errors.New("invalid filing status")
	ErrInvalidMailboxPort = errors.New("invalid mailbox port")
)

// ParseDate parses a YYYY-MM-DD calendar date at UTC midnight.
func ParseDate(s string) (time.Time, error) {
	d, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, fmt.Errorf("parse date %q: %w", s, err)
	}
	return d, nil
}

// FormatDate renders a calendar date as YYYY-MM-DD.
func FormatDate(d time.Time) string {
	return d.Format(DateLayout)
}

// Day truncates t to its calendar date at UTC midnight.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func (k IncomeKind) Valid() bool {
	return k == KindDividend || k == KindInterest
}

func (s FilingStatus) Valid() bool {
	switch s {
	case FilingInit, FilingFiled, FilingPaid:
		return true
	}
	return false
}

func (f StatementFormat) Valid() bool {
	return f == FormatIBKR || f == FormatNativeJSON
}

// Validate checks the importer's static configuration.
func (i Importer) Validate() error {
	if strings.TrimSpace(i.Name) == "" {
		return ErrEmptyName
	}
	if !i.Format.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidFormat, i.Format)
	}
	if _, err := i.AttachmentPattern(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPattern, err)
	}
	return nil
}

// AttachmentPattern compiles the attachment name pattern. Names match
// regardless of letter case.
func (i Importer) AttachmentPattern() (*regexp.Regexp, error) {
	return regexp.Compile("(?i)" + i.AttachmentRegex)
}

func (m Mailbox) Validate() error {
	if m.IMAPPort < 1 || m.IMAPPort > 65535 {
		return ErrInvalidMailboxPort
	}
	return nil
}

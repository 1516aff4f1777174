package http

import (
	"time"

	"dobkap/internal/core"
)

type mailboxRequest struct {
	EmailAddress string `json:"emailAddress"`
	Password     string `json:"password"`
	IMAPHost     string `json:"imapHost"`
	IMAPPort     int    `json:"imapPort"`
	// SyncFrom resets the cursor to a date cursor. Required for a new
	// mailbox unless today is wanted.
	SyncFrom string `json:"syncFrom,omitempty"`
}

type mailboxResponse struct {
	ID           int64  `json:"id"`
	EmailAddress string `json:"emailAddress"`
	IMAPHost     string `json:"imapHost"`
	IMAPPort     int    `json:"imapPort"`
	PasswordSet  bool   `json:"passwordSet"`
	Cursor       string `json:"cursor"`
}

func toMailboxResponse(m core.Mailbox) mailboxResponse {
	return mailboxResponse{
		ID:           m.ID,
		EmailAddress: m.EmailAddress,
		IMAPHost:     m.IMAPHost,
		IMAPPort:     m.IMAPPort,
		PasswordSet:  m.Password != "",
		Cursor:       m.Cursor.String(),
	}
}

type importerDTO struct {
	ID              int64                `json:"id"`
	Name            string               `json:"name"`
	Format          core.StatementFormat `json:"format"`
	MailboxID       int64                `json:"mailboxId"`
	FromFilter      string               `json:"fromFilter"`
	SubjectFilter   string               `json:"subjectFilter"`
	AttachmentRegex string               `json:"attachmentRegex"`
	PaymentNotes    string               `json:"paymentNotes"`
}

func toImporterDTO(im core.Importer) importerDTO {
	return importerDTO{
		ID:              im.ID,
		Name:            im.Name,
		Format:          im.Format,
		MailboxID:       im.MailboxID,
		FromFilter:      im.FromFilter,
		SubjectFilter:   im.SubjectFilter,
		AttachmentRegex: im.AttachmentRegex,
		PaymentNotes:    im.PaymentNotes,
	}
}

func (d importerDTO) importer() core.Importer {
	return core.Importer{
		ID:              d.ID,
		Name:            d.Name,
		Format:          d.Format,
		MailboxID:       d.MailboxID,
		FromFilter:      d.FromFilter,
		SubjectFilter:   d.SubjectFilter,
		AttachmentRegex: d.AttachmentRegex,
		PaymentNotes:    d.PaymentNotes,
	}
}

type profileDTO struct {
	JMBG          string `json:"jmbg"`
	FullName      string `json:"fullName"`
	StreetAddress string `json:"streetAddress"`
	OpstinaCode   string `json:"opstinaCode"`
	PhoneNumber   string `json:"phoneNumber"`
	EmailAddress  string `json:"emailAddress"`
}

func toProfileDTO(p core.TaxpayerProfile) profileDTO {
	return profileDTO{
		JMBG:          p.JMBG,
		FullName:      p.FullName,
		StreetAddress: p.StreetAddress,
		OpstinaCode:   p.OpstinaCode,
		PhoneNumber:   p.PhoneNumber,
		EmailAddress:  p.EmailAddress,
	}
}

func (d profileDTO) profile() core.TaxpayerProfile {
	return core.TaxpayerProfile{
		JMBG:          d.JMBG,
		FullName:      d.FullName,
		StreetAddress: d.StreetAddress,
		OpstinaCode:   d.OpstinaCode,
		PhoneNumber:   d.PhoneNumber,
		EmailAddress:  d.EmailAddress,
	}
}

type reportDTO struct {
	ID         int64                `json:"id"`
	Name       string               `json:"name"`
	Format     core.StatementFormat `json:"format"`
	Status     core.ReportStatus    `json:"status"`
	ImporterID *int64               `json:"importerId"`
	MailboxID  *int64               `json:"mailboxId"`
	MessageUID *uint32              `json:"messageUid"`
	CreatedAt  time.Time            `json:"createdAt"`
}

func toReportDTO(r core.Report) reportDTO {
	return reportDTO{
		ID:         r.ID,
		Name:       r.Name,
		Format:     r.Format,
		Status:     r.Status,
		ImporterID: r.ImporterID,
		MailboxID:  r.MailboxID,
		MessageUID: r.MessageUID,
		CreatedAt:  r.CreatedAt,
	}
}

type filingDTO struct {
	ID               int64             `json:"id"`
	ReportID         int64             `json:"reportId"`
	Kind             core.IncomeKind   `json:"kind"`
	PayingEntity     string            `json:"payingEntity"`
	IncomeDate       string            `json:"incomeDate"`
	FilingDeadline   string            `json:"filingDeadline"`
	TaxPayable       string            `json:"taxPayable"`
	Status           core.FilingStatus `json:"status"`
	PaymentReference string            `json:"paymentReference"`
}

func toFilingDTO(f core.Filing) filingDTO {
	return filingDTO{
		ID:               f.ID,
		ReportID:         f.ReportID,
		Kind:             f.Kind,
		PayingEntity:     f.PayingEntity,
		IncomeDate:       core.FormatDate(f.IncomeDate),
		FilingDeadline:   core.FormatDate(f.FilingDeadline),
		TaxPayable:       f.TaxPayable.String(),
		Status:           f.Status,
		PaymentReference: f.PaymentReference,
	}
}

// filingPatch carries the operator-managed fields. Absent fields keep their
// current value.
type filingPatch struct {
	Status           *core.FilingStatus `json:"status"`
	PaymentReference *string            `json:"paymentReference"`
}

type jobStartResponse struct {
	ID      string `json:"id"`
	Started bool   `json:"started"`
}

func mapSlice[T, U any](in []T, fn func(T) U) []U {
	out := make([]U, 0, len(in))
	for _, v := range in {
		out = append(out, fn(v))
	}
	return out
}

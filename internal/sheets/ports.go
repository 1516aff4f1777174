// Package sheets defines the spreadsheet ledger that filings are exported
// to.
package sheets

import (
	"context"

	"dobkap/internal/core"
)

// Ports for outbound adapters.
type (
	// FilingExporter writes one row per filing. Exporting a filing again
	// replaces its row.
	FilingExporter interface {
		ExportFiling(ctx context.Context, f core.Filing) (rowRef string, err error)
	}
)

// Header is the first row of every ledger sheet.
var Header = []string{"ID", "Deadline", "Kind", "Paying entity", "Income date", "Tax payable", "Status", "Payment reference"}

// Row returns the ledger cells of f in Header order.
func Row(f core.Filing) []any {
	return []any{
		f.ID,
		core.FormatDate(f.FilingDeadline),
		string(f.Kind),
		f.PayingEntity,
		core.FormatDate(f.IncomeDate),
		f.TaxPayable.String(),
		string(f.Status),
		f.PaymentReference,
	}
}

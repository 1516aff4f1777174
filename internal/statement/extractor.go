// Package statement turns raw brokerage statements into passive income
// events and the exchange rates the statement discloses about itself.
package statement

import (
	"fmt"

	"dobkap/internal/core"
)

// Extraction is the result of parsing one statement.
type Extraction struct {
	Events       []core.PassiveIncomeEvent
	Observations []core.ExchangeRateObservation
}

// Extractor parses the raw bytes of one statement.
type Extractor interface {
	Extract(raw []byte) (Extraction, error)
}

// For returns the extractor registered for format.
func For(format core.StatementFormat) (Extractor, error) {
	switch format {
	case core.FormatIBKR:
		return IBKR{}, nil
	case core.FormatNativeJSON:
		return NativeJSON{}, nil
	}
	return nil, fmt.Errorf("%w: %q", core.ErrInvalidFormat, format)
}

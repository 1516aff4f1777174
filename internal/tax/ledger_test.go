package tax

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"dobkap/internal/core"
)

func event(income, wht string) core.PassiveIncomeEvent {
	return core.PassiveIncomeEvent{
		Kind:                core.KindDividend,
		PayingEntity:        "ABC",
		IncomeCurrency:      "EUR",
		IncomeAmount:        decimal.RequireFromString(income),
		WithholdingCurrency: "EUR",
		WithholdingAmount:   decimal.RequireFromString(wht),
	}
}

func TestAssess(t *testing.T) {
	tests := []struct {
		name       string
		event      core.PassiveIncomeEvent
		rate       float64
		gross      int64
		paidAbroad int64
		grossTax   int64
		payable    int64
	}{
		{"partial offset", event("200", "20"), 120, 2400000, 240000, 360000, 120000},
		{"withholding exceeds liability", event("200", "52"), 120, 2400000, 624000, 360000, 0},
		{"no withholding", event("200", "0"), 120, 2400000, 0, 360000, 360000},
		{"exact offset", event("200", "30"), 120, 2400000, 360000, 360000, 0},
		{"eur some tax", event("100", "10"), 117.1697, 1171697, 117170, 175755, 58585},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := Assess(tt.event, tt.rate, tt.rate)
			assert.Equal(t, tt.gross, a.GrossIncome.Cents)
			assert.Equal(t, tt.paidAbroad, a.TaxPaidAbroad.Cents)
			assert.Equal(t, tt.grossTax, a.GrossTaxPayable.Cents)
			assert.Equal(t, tt.payable, a.TaxPayable.Cents)
		})
	}
}

func TestAssessDistinctWithholdingRate(t *testing.T) {
	e := event("100", "10")
	e.WithholdingCurrency = "USD"
	a := Assess(e, 117, 100)
	assert.Equal(t, int64(1170000), a.GrossIncome.Cents)
	assert.Equal(t, int64(100000), a.TaxPaidAbroad.Cents)
	assert.Equal(t, int64(75500), a.TaxPayable.Cents)
}

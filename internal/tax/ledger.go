// Package tax applies the Serbian passive-income tax formula to a single
// extracted event.
package tax

import "dobkap/internal/core"

// Rate is the statutory flat rate on passive income.
const Rate = 0.15

// Assessment holds every figure that goes onto the tax form.
type Assessment struct {
	GrossIncome     core.Money
	TaxPaidAbroad   core.Money
	GrossTaxPayable core.Money
	TaxPayable      core.Money
}

// Assess computes the liability of event given its two resolved rates.
// Tax withheld abroad offsets the domestic liability but never below zero.
func Assess(event core.PassiveIncomeEvent, incomeRate, withholdingRate float64) Assessment {
	gross := core.FromCurrencyAmount(incomeRate, event.IncomeAmount)
	paidAbroad := core.FromCurrencyAmount(withholdingRate, event.WithholdingAmount)
	grossTax := gross.Scale(Rate)

	payable := core.Money{}
	if paidAbroad.Less(grossTax) {
		payable = grossTax.Sub(paidAbroad)
	}
	return Assessment{
		GrossIncome:     gross,
		TaxPaidAbroad:   paidAbroad,
		GrossTaxPayable: grossTax,
		TaxPayable:      payable,
	}
}

package statement

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"dobkap/internal/core"
)

const (
	dividendsLabel    = "Dividends"
	withholdingLabel  = "Withholding Tax"
	interestLabel     = "Interest"
	exchangeRateLabel = "Base Currency Exchange Rate"

	// InterestPayer is the paying entity of every interest event.
	InterestPayer = "Interactive Brokers"

	// BaseCurrency is the currency IBKR statements report in.
	BaseCurrency = "USD"

	periodLayout = "January 2, 2006"
)

var (
	dividendsHeader    = []string{dividendsLabel, "Header", "Currency", "Date", "Description", "Amount"}
	withholdingHeader  = []string{withholdingLabel, "Header", "Currency", "Date", "Description", "Amount", "Code"}
	interestHeader     = []string{interestLabel, "Header", "Currency", "Date", "Description", "Amount"}
	exchangeRateHeader = []string{exchangeRateLabel, "Header", "Currency", "Rate"}

	entityPattern = regexp.MustCompile(`^([0-9A-Za-z.]+)\s*\(([0-9A-Za-z]+)\)`)
)

// IBKR extracts events from an Interactive Brokers activity statement CSV.
type IBKR struct{}

type dividendKey struct {
	date   string
	entity string
	ident  string
}

type interestKey struct {
	date     string
	currency string
}

type ibkrParser struct {
	rows [][]string

	dividends     []*core.PassiveIncomeEvent
	dividendIndex map[dividendKey]*core.PassiveIncomeEvent

	interest      []*core.PassiveIncomeEvent
	interestIndex map[interestKey]*core.PassiveIncomeEvent

	rates []rateRow
}

type rateRow struct {
	currency string
	rate     float64
}

func (IBKR) Extract(raw []byte) (Extraction, error) {
	rows, err := readRows(raw)
	if err != nil {
		return Extraction{}, err
	}

	p := &ibkrParser{
		rows:          rows,
		dividendIndex: make(map[dividendKey]*core.PassiveIncomeEvent),
		interestIndex: make(map[interestKey]*core.PassiveIncomeEvent),
	}

	found := false
	for _, s := range []struct {
		header []string
		member func([]string) bool
		parse  func([]string) error
	}{
		{dividendsHeader, dataRow(dividendsLabel), p.dividend},
		{withholdingHeader, labelRow(withholdingLabel), p.withholding},
		{interestHeader, dataRow(interestLabel), p.interestRow},
		{exchangeRateHeader, dataRow(exchangeRateLabel), p.exchangeRate},
	} {
		ok, err := p.section(s.header, s.member, s.parse)
		if err != nil {
			return Extraction{}, err
		}
		found = found || ok
	}

	period, hasPeriod, err := p.period()
	if err != nil {
		return Extraction{}, err
	}
	if !found && !hasPeriod {
		return Extraction{}, core.NewFormatError("not an activity statement: no known sections", nil)
	}
	if len(p.rates) > 0 && !hasPeriod {
		return Extraction{}, core.NewFormatError("cannot find statement period", nil)
	}

	var out Extraction
	for _, ev := range p.dividends {
		out.Events = append(out.Events, *ev)
	}
	for _, ev := range p.interest {
		if ev.IncomeAmount.IsPositive() {
			out.Events = append(out.Events, *ev)
		}
	}
	out.Observations = p.observations(period)
	return out, nil
}

func readRows(raw []byte) ([][]string, error) {
	r := csv.NewReader(bytes.NewReader(bytes.TrimPrefix(raw, []byte("\xef\xbb\xbf"))))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	rows, err := r.ReadAll()
	if err != nil {
		return nil, core.NewFormatError(fmt.Sprintf("malformed csv: %v", err), nil)
	}
	return rows, nil
}

func dataRow(label string) func([]string) bool {
	return func(row []string) bool {
		return len(row) >= 2 && row[0] == label && row[1] == "Data"
	}
}

// Withholding sections repeat their header per currency, so any row of the
// label keeps the section open.
func labelRow(label string) func([]string) bool {
	return func(row []string) bool {
		return len(row) >= 2 && row[0] == label
	}
}

// section feeds every member row that follows an exact header match to
// parse. It reports whether the header was seen at all.
func (p *ibkrParser) section(header []string, member func([]string) bool, parse func([]string) error) (bool, error) {
	found := false
	for i := 0; i < len(p.rows); i++ {
		if !slices.Equal(p.rows[i], header) {
			continue
		}
		found = true
		for i+1 < len(p.rows) && member(p.rows[i+1]) {
			i++
			row := p.rows[i]
			if row[1] == "Header" || isTotal(row) {
				continue
			}
			if err := parse(row); err != nil {
				return found, err
			}
		}
	}
	return found, nil
}

func isTotal(row []string) bool {
	return len(row) > 2 && strings.HasPrefix(row[2], "Total")
}

type amountRow struct {
	currency    string
	date        time.Time
	description string
	amount      decimal.Decimal
}

func parseAmountRow(row []string) (amountRow, error) {
	if len(row) < 6 {
		return amountRow{}, core.NewFormatError("short row", row)
	}
	date, err := core.ParseDate(row[3])
	if err != nil {
		return amountRow{}, core.NewFormatError("invalid date", row)
	}
	amount, err := parseAmount(row[5])
	if err != nil {
		return amountRow{}, core.NewFormatError("invalid amount", row)
	}
	return amountRow{
		currency:    strings.TrimSpace(row[2]),
		date:        date,
		description: row[4],
		amount:      amount,
	}, nil
}

func parseAmount(s string) (decimal.Decimal, error) {
	return decimal.NewFromString(strings.ReplaceAll(strings.TrimSpace(s), ",", ""))
}

func entityOf(row []string, description string) (string, string, error) {
	m := entityPattern.FindStringSubmatch(description)
	if m == nil {
		return "", "", core.NewFormatError("cannot parse paying entity", row)
	}
	return m[1], m[2], nil
}

func (p *ibkrParser) dividend(row []string) error {
	r, err := parseAmountRow(row)
	if err != nil {
		return err
	}
	entity, ident, err := entityOf(row, r.description)
	if err != nil {
		return err
	}

	key := dividendKey{date: core.FormatDate(r.date), entity: entity, ident: ident}
	if ev, ok := p.dividendIndex[key]; ok {
		if ev.IncomeCurrency != r.currency {
			return core.NewDuplicateConflictError(entity+" on "+key.date, ev.IncomeCurrency, r.currency)
		}
		ev.IncomeAmount = ev.IncomeAmount.Add(r.amount)
		return nil
	}

	ev := &core.PassiveIncomeEvent{
		Kind:                core.KindDividend,
		PayingEntity:        entity,
		IncomeDate:          r.date,
		IncomeCurrency:      r.currency,
		IncomeAmount:        r.amount,
		WithholdingCurrency: r.currency,
		WithholdingAmount:   decimal.Zero,
	}
	p.dividendIndex[key] = ev
	p.dividends = append(p.dividends, ev)
	return nil
}

func (p *ibkrParser) withholding(row []string) error {
	r, err := parseAmountRow(row)
	if err != nil {
		return err
	}
	entity, ident, err := entityOf(row, r.description)
	if err != nil {
		return err
	}

	key := dividendKey{date: core.FormatDate(r.date), entity: entity, ident: ident}
	ev, ok := p.dividendIndex[key]
	if !ok {
		return core.NewFormatError("cannot match withholding to dividend", row)
	}
	if !ev.WithholdingAmount.IsZero() && ev.WithholdingCurrency != r.currency {
		return core.NewDuplicateConflictError("withholding of "+entity+" on "+key.date, ev.WithholdingCurrency, r.currency)
	}
	ev.WithholdingCurrency = r.currency
	ev.WithholdingAmount = ev.WithholdingAmount.Add(r.amount.Neg())
	return nil
}

func (p *ibkrParser) interestRow(row []string) error {
	r, err := parseAmountRow(row)
	if err != nil {
		return err
	}
	if !strings.HasPrefix(r.description, r.currency+" Credit Interest for ") &&
		!strings.HasPrefix(r.description, r.currency+" Debit Interest for ") {
		return nil
	}

	key := interestKey{date: core.FormatDate(r.date), currency: r.currency}
	if ev, ok := p.interestIndex[key]; ok {
		ev.IncomeAmount = ev.IncomeAmount.Add(r.amount)
		return nil
	}
	ev := &core.PassiveIncomeEvent{
		Kind:                core.KindInterest,
		PayingEntity:        InterestPayer,
		IncomeDate:          r.date,
		IncomeCurrency:      r.currency,
		IncomeAmount:        r.amount,
		WithholdingCurrency: r.currency,
		WithholdingAmount:   decimal.Zero,
	}
	p.interestIndex[key] = ev
	p.interest = append(p.interest, ev)
	return nil
}

func (p *ibkrParser) exchangeRate(row []string) error {
	if len(row) < 4 {
		return core.NewFormatError("short row", row)
	}
	rate, err := strconv.ParseFloat(strings.TrimSpace(row[3]), 64)
	if err != nil {
		return core.NewFormatError("invalid exchange rate", row)
	}
	p.rates = append(p.rates, rateRow{currency: strings.TrimSpace(row[2]), rate: rate})
	return nil
}

func (p *ibkrParser) period() (time.Time, bool, error) {
	for _, row := range p.rows {
		if len(row) < 4 || row[0] != "Statement" || row[1] != "Data" || row[2] != "Period" {
			continue
		}
		// Multi-month statements read "January 1, 2023 - March 31, 2023".
		value, _, _ := strings.Cut(row[3], " - ")
		d, err := time.Parse(periodLayout, strings.TrimSpace(value))
		if err != nil {
			return time.Time{}, true, core.NewFormatError("invalid statement period", row)
		}
		return d, true, nil
	}
	return time.Time{}, false, nil
}

func (p *ibkrParser) observations(period time.Time) []core.ExchangeRateObservation {
	if len(p.rates) == 0 {
		return nil
	}
	obs := make([]core.ExchangeRateObservation, 0, len(p.rates)+1)
	hasBase := false
	for _, r := range p.rates {
		hasBase = hasBase || r.currency == BaseCurrency
		obs = append(obs, core.ExchangeRateObservation{Date: period, Currency: r.currency, Rate: r.rate})
	}
	if !hasBase {
		obs = append(obs, core.ExchangeRateObservation{Date: period, Currency: BaseCurrency, Rate: 1})
	}
	return obs
}

package statement

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"dobkap/internal/core"
)

// NativeEvent is the JSON shape of one manually entered event.
type NativeEvent struct {
	Type                 core.IncomeKind `json:"type"`
	PayingEntity         string          `json:"payingEntity"`
	IncomeDate           string          `json:"incomeDate"`
	IncomeCurrencyCode   string          `json:"incomeCurrencyCode"`
	IncomeCurrencyAmount decimal.Decimal `json:"incomeCurrencyAmount"`
	WhtCurrencyCode      string          `json:"whtCurrencyCode"`
	WhtCurrencyAmount    decimal.Decimal `json:"whtCurrencyAmount"`
}

// NativeJSON extracts events from a JSON array of NativeEvent. A single
// object is accepted as a one-element array.
type NativeJSON struct{}

func (NativeJSON) Extract(raw []byte) (Extraction, error) {
	raw = bytes.TrimSpace(raw)
	var items []NativeEvent
	if len(raw) > 0 && raw[0] == '{' {
		var one NativeEvent
		if err := json.Unmarshal(raw, &one); err != nil {
			return Extraction{}, core.NewFormatError(fmt.Sprintf("could not parse manual report: %v", err), nil)
		}
		items = []NativeEvent{one}
	} else if err := json.Unmarshal(raw, &items); err != nil {
		return Extraction{}, core.NewFormatError(fmt.Sprintf("could not parse manual report: %v", err), nil)
	}
	if len(items) == 0 {
		return Extraction{}, core.NewFormatError("manual report has no events", nil)
	}

	out := Extraction{Events: make([]core.PassiveIncomeEvent, 0, len(items))}
	for i, it := range items {
		ev, err := it.Event()
		if err != nil {
			return Extraction{}, core.NewFormatError(fmt.Sprintf("event %d: %v", i, err), nil)
		}
		out.Events = append(out.Events, ev)
	}
	return out, nil
}

// Event validates n and converts it to a domain event.
func (n NativeEvent) Event() (core.PassiveIncomeEvent, error) {
	if !n.Type.Valid() {
		return core.PassiveIncomeEvent{}, fmt.Errorf("%w: %q", core.ErrInvalidKind, n.Type)
	}
	if strings.TrimSpace(n.PayingEntity) == "" {
		return core.PassiveIncomeEvent{}, core.ErrEmptyName
	}
	date, err := core.ParseDate(n.IncomeDate)
	if err != nil {
		return core.PassiveIncomeEvent{}, err
	}
	currency := strings.ToUpper(strings.TrimSpace(n.IncomeCurrencyCode))
	if currency == "" {
		return core.PassiveIncomeEvent{}, fmt.Errorf("missing income currency")
	}
	wht := strings.ToUpper(strings.TrimSpace(n.WhtCurrencyCode))
	if wht == "" {
		wht = currency
	}
	return core.PassiveIncomeEvent{
		Kind:                n.Type,
		PayingEntity:        strings.TrimSpace(n.PayingEntity),
		IncomeDate:          date,
		IncomeCurrency:      currency,
		IncomeAmount:        n.IncomeCurrencyAmount,
		WithholdingCurrency: wht,
		WithholdingAmount:   n.WhtCurrencyAmount,
	}, nil
}

// EncodeNative renders events in the native JSON format.
func EncodeNative(events []core.PassiveIncomeEvent) ([]byte, error) {
	items := make([]NativeEvent, 0, len(events))
	for _, ev := range events {
		items = append(items, NativeEvent{
			Type:                 ev.Kind,
			PayingEntity:         ev.PayingEntity,
			IncomeDate:           core.FormatDate(ev.IncomeDate),
			IncomeCurrencyCode:   ev.IncomeCurrency,
			IncomeCurrencyAmount: ev.IncomeAmount,
			WhtCurrencyCode:      ev.WithholdingCurrency,
			WhtCurrencyAmount:    ev.WithholdingAmount,
		})
	}
	return json.Marshal(items)
}

// Package rates resolves (date, currency) pairs to RSD exchange rates.
//
// Currencies quoted by the central bank are resolved directly. SGD and MXN
// are resolved through USD with a cross rate from Banxico or from the
// statement's own disclosed rates.
package rates

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"dobkap/internal/core"
	"dobkap/internal/log"
)

// Intermediate is the currency used to triangulate.
const Intermediate = "USD"

// DirectCurrencies are quoted by the primary source.
var DirectCurrencies = []string{
	"EUR", "GBP", "USD", "AED", "AUD", "CAD", "CHF", "CZK", "DKK", "HUF", "JPY", "NOK", "PLN", "SEK", "TRY",
}

// TriangulatedCurrencies are resolved through Intermediate.
var TriangulatedCurrencies = []string{"SGD", "MXN"}

// Source returns the base-currency value of one unit of currency on date.
type Source interface {
	Rate(ctx context.Context, date time.Time, currency string) (float64, error)
}

// CrossSource returns how many units of a currency one USD buys on date.
type CrossSource interface {
	Currency() string
	USDCross(ctx context.Context, date time.Time) (float64, error)
}

// Cache stores resolved rates. Entries never expire.
type Cache interface {
	Get(ctx context.Context, date time.Time, currency string) (float64, bool)
	Set(ctx context.Context, date time.Time, currency string, rate float64)
}

type Option func(*Triangulator)

func WithCache(c Cache) Option {
	return func(t *Triangulator) { t.cache = c }
}

// WithSecondary registers a dedicated cross-rate source for s.Currency().
func WithSecondary(s CrossSource) Option {
	return func(t *Triangulator) { t.secondary[s.Currency()] = s }
}

// Triangulator resolves rates. It is safe for concurrent use.
type Triangulator struct {
	primary      Source
	secondary    map[string]CrossSource
	cache        Cache
	observations []core.ExchangeRateObservation
	direct       map[string]bool
	triangulated map[string]bool
}

func New(primary Source, opts ...Option) *Triangulator {
	t := &Triangulator{
		primary:      primary,
		secondary:    make(map[string]CrossSource),
		direct:       toSet(DirectCurrencies),
		triangulated: toSet(TriangulatedCurrencies),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// WithObservations returns a copy of t that uses obs as the fallback cross
// rates. The copy shares the sources and the cache.
func (t *Triangulator) WithObservations(obs []core.ExchangeRateObservation) *Triangulator {
	c := *t
	c.observations = obs
	return &c
}

// Rate returns the value of one unit of currency in RSD on date.
func (t *Triangulator) Rate(ctx context.Context, date time.Time, currency string) (float64, error) {
	date = core.Day(date)
	switch {
	case t.direct[currency]:
		return t.cached(ctx, date, currency, t.directRate)
	case t.triangulated[currency]:
		return t.cached(ctx, date, currency, t.triangulatedRate)
	}
	return 0, core.NewRateUnavailableError(core.FormatDate(date), currency, fmt.Errorf("unsupported currency"))
}

type resolver func(ctx context.Context, date time.Time, currency string) (float64, error)

func (t *Triangulator) cached(ctx context.Context, date time.Time, currency string, resolve resolver) (float64, error) {
	if t.cache != nil {
		if v, ok := t.cache.Get(ctx, date, currency); ok {
			return v, nil
		}
	}
	v, err := resolve(ctx, date, currency)
	if err != nil {
		return 0, err
	}
	if t.cache != nil {
		t.cache.Set(ctx, date, currency, v)
	}
	return v, nil
}

func (t *Triangulator) directRate(ctx context.Context, date time.Time, currency string) (float64, error) {
	v, err := t.primary.Rate(ctx, date, currency)
	if err != nil {
		return 0, core.NewRateUnavailableError(core.FormatDate(date), currency, err)
	}
	if v <= 0 {
		return 0, core.NewRateUnavailableError(core.FormatDate(date), currency, fmt.Errorf("non-positive rate %v", v))
	}
	return v, nil
}

// triangulatedRate resolves currency through Intermediate. Only the direct
// path is used for the intermediate, so the chain never exceeds one hop.
func (t *Triangulator) triangulatedRate(ctx context.Context, date time.Time, currency string) (float64, error) {
	cross, err := t.crossRate(ctx, date, currency)
	if err != nil {
		return 0, err
	}
	usd, err := t.cached(ctx, date, Intermediate, t.directRate)
	if err != nil {
		return 0, err
	}
	return usd / cross, nil
}

// crossRate returns how many units of currency one USD buys on date.
func (t *Triangulator) crossRate(ctx context.Context, date time.Time, currency string) (float64, error) {
	if s, ok := t.secondary[currency]; ok {
		v, err := s.USDCross(ctx, date)
		if err != nil {
			return 0, core.NewRateUnavailableError(core.FormatDate(date), currency, err)
		}
		if v <= 0 {
			return 0, core.NewRateUnavailableError(core.FormatDate(date), currency, fmt.Errorf("non-positive cross rate %v", v))
		}
		return v, nil
	}
	usdBase := t.observed(ctx, date, Intermediate)
	curBase := t.observed(ctx, date, currency)
	return usdBase / curBase, nil
}

// observed returns the statement-disclosed rate of currency on date. A
// missing observation means the currency is the statement's own base and
// counts as 1.
func (t *Triangulator) observed(ctx context.Context, date time.Time, currency string) float64 {
	for _, o := range t.observations {
		if o.Currency == currency && core.Day(o.Date).Equal(date) && o.Rate > 0 {
			return o.Rate
		}
	}
	slog.WarnContext(ctx, "No statement exchange rate observation, assuming statement base currency",
		log.FieldComponent, log.ComponentRates,
		log.FieldCurrency, currency,
		log.FieldDate, core.FormatDate(date))
	return 1
}

func toSet(values []string) map[string]bool {
	set := make(map[string]bool, len(values))
	for _, v := range values {
		set[v] = true
	}
	return set
}

package rates

import (
	"context"
	"log/slog"
	"time"

	"dobkap/internal/cache"
	"dobkap/internal/core"
	"dobkap/internal/log"
)

func cacheKey(date time.Time, currency string) string {
	return core.FormatDate(date) + "-" + currency
}

// MemoryCache keeps rates for the life of the process.
type MemoryCache struct {
	items cache.Cache[float64]
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{items: cache.NewMemory[float64](cache.NoExpiration)}
}

func (m *MemoryCache) Get(_ context.Context, date time.Time, currency string) (float64, bool) {
	return m.items.Get(cacheKey(date, currency))
}

func (m *MemoryCache) Set(_ context.Context, date time.Time, currency string, rate float64) {
	m.items.Set(cacheKey(date, currency), rate)
}

// RateStore is the persistence side of the rate cache.
type RateStore interface {
	GetRate(ctx context.Context, date time.Time, currency string) (float64, bool, error)
	PutRate(ctx context.Context, date time.Time, currency string, rate float64) error
}

// StoreCache adapts a RateStore to Cache. Storage errors degrade to a miss.
type StoreCache struct {
	store RateStore
}

func NewStoreCache(store RateStore) *StoreCache {
	return &StoreCache{store: store}
}

func (s *StoreCache) Get(ctx context.Context, date time.Time, currency string) (float64, bool) {
	v, ok, err := s.store.GetRate(ctx, date, currency)
	if err != nil {
		slog.WarnContext(ctx, "Failed to read cached exchange rate",
			log.FieldComponent, log.ComponentRates,
			log.FieldCurrency, currency,
			log.FieldDate, core.FormatDate(date),
			log.FieldError, err)
		return 0, false
	}
	return v, ok
}

func (s *StoreCache) Set(ctx context.Context, date time.Time, currency string, rate float64) {
	if err := s.store.PutRate(ctx, date, currency, rate); err != nil {
		slog.WarnContext(ctx, "Failed to cache exchange rate",
			log.FieldComponent, log.ComponentRates,
			log.FieldCurrency, currency,
			log.FieldDate, core.FormatDate(date),
			log.FieldError, err)
	}
}

// Layered checks each cache in order and backfills the faster layers on a
// hit in a slower one.
type Layered []Cache

func (l Layered) Get(ctx context.Context, date time.Time, currency string) (float64, bool) {
	for i, c := range l {
		if v, ok := c.Get(ctx, date, currency); ok {
			for _, faster := range l[:i] {
				faster.Set(ctx, date, currency, v)
			}
			return v, true
		}
	}
	return 0, false
}

func (l Layered) Set(ctx context.Context, date time.Time, currency string, rate float64) {
	for _, c := range l {
		c.Set(ctx, date, currency, rate)
	}
}

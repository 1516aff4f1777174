package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"dobkap/internal/calendar"
	"dobkap/internal/core"
)

// GetHolidayConf returns the stored holiday configuration, or the built-in
// default when none was saved.
func (r *SQLiteRepository) GetHolidayConf(ctx context.Context) (calendar.HolidayConf, error) {
	var raw []byte
	err := r.db.QueryRowContext(ctx, `SELECT conf FROM holiday_conf WHERE id = 1`).Scan(&raw)
	if notFound(err) {
		return calendar.DefaultHolidayConf(), nil
	}
	if err != nil {
		return calendar.HolidayConf{}, fmt.Errorf("get holiday conf: %w", err)
	}
	return calendar.ParseHolidayConf(raw)
}

func (r *SQLiteRepository) SetHolidayConf(ctx context.Context, conf calendar.HolidayConf) error {
	if _, err := calendar.New(conf); err != nil {
		return err
	}
	raw, err := json.Marshal(conf)
	if err != nil {
		return fmt.Errorf("encode holiday conf: %w", err)
	}
	_, err = r.db.ExecContext(ctx,
		`INSERT INTO holiday_conf (id, conf) VALUES (1, ?) ON CONFLICT (id) DO UPDATE SET conf = excluded.conf`,
		string(raw))
	if err != nil {
		return fmt.Errorf("save holiday conf: %w", err)
	}
	return nil
}

// GetRate reads the persistent rate cache.
func (r *SQLiteRepository) GetRate(ctx context.Context, date time.Time, currency string) (float64, bool, error) {
	var rate float64
	err := r.db.QueryRowContext(ctx,
		`SELECT rate FROM exchange_rates WHERE date = ? AND currency = ?`,
		core.FormatDate(date), currency).Scan(&rate)
	if notFound(err) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("get rate %s %s: %w", core.FormatDate(date), currency, err)
	}
	return rate, true, nil
}

func (r *SQLiteRepository) PutRate(ctx context.Context, date time.Time, currency string, rate float64) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO exchange_rates (date, currency, rate) VALUES (?, ?, ?) ON CONFLICT (date, currency) DO UPDATE SET rate = excluded.rate`,
		core.FormatDate(date), currency, rate)
	if err != nil {
		return fmt.Errorf("put rate %s %s: %w", core.FormatDate(date), currency, err)
	}
	return nil
}

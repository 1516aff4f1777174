// Package calendar computes filing deadlines over a holiday set with a
// bounded coverage window.
package calendar

import (
	"encoding/json"
	"fmt"
	"time"

	"dobkap/internal/core"
)

// FilingDeadlineOffset is the number of calendar days between an income
// date and its filing deadline, before rolling to a working day.
const FilingDeadlineOffset = 30

// HolidayConf is the persisted holiday configuration.
type HolidayConf struct {
	HolidayRangeStart string   `json:"holidayRangeStart"`
	HolidayRangeEnd   string   `json:"holidayRangeEnd"`
	Holidays          []string `json:"holidays"`
}

// Calendar is immutable once built.
type Calendar struct {
	rangeStart time.Time
	rangeEnd   time.Time
	holidays   map[string]struct{}
}

// New validates conf and builds a Calendar from it.
func New(conf HolidayConf) (*Calendar, error) {
	start, err := core.ParseDate(conf.HolidayRangeStart)
	if err != nil {
		return nil, fmt.Errorf("holiday range start: %w", err)
	}
	end, err := core.ParseDate(conf.HolidayRangeEnd)
	if err != nil {
		return nil, fmt.Errorf("holiday range end: %w", err)
	}
	if end.Before(start) {
		return nil, fmt.Errorf("holiday range end %s precedes start %s", conf.HolidayRangeEnd, conf.HolidayRangeStart)
	}
	holidays := make(map[string]struct{}, len(conf.Holidays))
	for _, h := range conf.Holidays {
		d, err := core.ParseDate(h)
		if err != nil {
			return nil, fmt.Errorf("holiday: %w", err)
		}
		holidays[core.FormatDate(d)] = struct{}{}
	}
	return &Calendar{rangeStart: start, rangeEnd: end, holidays: holidays}, nil
}

// ParseHolidayConf decodes and validates a holiday configuration document.
func ParseHolidayConf(data []byte) (HolidayConf, error) {
	var conf HolidayConf
	if err := json.Unmarshal(data, &conf); err != nil {
		return HolidayConf{}, fmt.Errorf("decode holiday conf: %w", err)
	}
	if _, err := New(conf); err != nil {
		return HolidayConf{}, err
	}
	return conf, nil
}

// IsWorkingDay reports whether day is neither a weekend nor a holiday.
func (c *Calendar) IsWorkingDay(day time.Time) bool {
	switch day.Weekday() {
	case time.Saturday, time.Sunday:
		return false
	}
	_, holiday := c.holidays[core.FormatDate(day)]
	return !holiday
}

// WorkingDayAfter adds offsetDays calendar days to start and rolls the
// result forward to the next working day.
func (c *Calendar) WorkingDayAfter(start time.Time, offsetDays int) (time.Time, error) {
	start = core.Day(start)
	if start.Before(c.rangeStart) {
		return time.Time{}, core.NewCoverageError("holiday data coverage into the past is not sufficient", core.FormatDate(start))
	}
	candidate := start.AddDate(0, 0, offsetDays)
	for !c.IsWorkingDay(candidate) {
		candidate = candidate.AddDate(0, 0, 1)
	}
	if candidate.After(c.rangeEnd) {
		return time.Time{}, core.NewCoverageError("holiday data coverage into the future is not sufficient", core.FormatDate(candidate))
	}
	return candidate, nil
}

// FilingDeadline returns the deadline for income received on incomeDate.
func (c *Calendar) FilingDeadline(incomeDate time.Time) (time.Time, error) {
	return c.WorkingDayAfter(incomeDate, FilingDeadlineOffset)
}

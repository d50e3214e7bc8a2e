// Copyright 2024-2025
// SPDX-License-Identifier: Apache-2.0
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package calendar provides market-aware date arithmetic: enumeration of
// trading days, holiday classification, and alignment of deposit and
// rebalance cadences to the next trading day.
package calendar

import (
	"errors"
	"time"
)

var (
	ErrUnknownCalendar = errors.New("unknown market calendar")
	ErrOutOfRange      = errors.New("date is outside of the embedded holiday tables")
	ErrTimeInverted    = errors.New("start date occurs after end date")
	ErrUnknownCadence  = errors.New("unknown cadence")
)

// Cadence identifies a recurring schedule that must be aligned to
// trading days.
type Cadence string

const (
	Daily          Cadence = "daily"
	Weekly         Cadence = "weekly"
	Monthly        Cadence = "monthly"
	Quarterly      Cadence = "quarterly"
	Annually       Cadence = "yearly"
	EveryMarketDay Cadence = "every_market_day"
)

// years covered by the embedded holiday tables
const (
	tableFirstYear = 1990
	tableLastYear  = 2035
)

// Calendar classifies dates as trading or non-trading for a named market.
// Only the United States equity calendar ("NYSE") is built in.
type Calendar struct {
	Name string

	holidays map[int64]struct{}
}

// New creates a calendar for the named market. The empty string selects
// the default NYSE calendar.
func New(name string) (*Calendar, error) {
	switch name {
	case "", "NYSE", "US":
	default:
		return nil, ErrUnknownCalendar
	}

	cal := &Calendar{
		Name:     "NYSE",
		holidays: make(map[int64]struct{}, (tableLastYear-tableFirstYear+1)*10),
	}

	for year := tableFirstYear; year <= tableLastYear; year++ {
		for _, d := range usMarketHolidays(year) {
			cal.holidays[dateKey(d)] = struct{}{}
		}
	}
	for _, d := range unscheduledClosures {
		cal.holidays[dateKey(d)] = struct{}{}
	}

	return cal, nil
}

func dateKey(t time.Time) int64 {
	return int64(t.Year())*10000 + int64(t.Month())*100 + int64(t.Day())
}

// Midnight truncates a time to midnight UTC. All calendar arithmetic is
// performed on civil dates; callers must not depend on the time portion.
func Midnight(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// IsTradingDay reports whether the market is open on the given date.
// Dates beyond the embedded holiday tables return ErrOutOfRange; the
// weekend classification is still total, so callers may choose to ignore
// the error for rough answers.
func (c *Calendar) IsTradingDay(t time.Time) (bool, error) {
	d := Midnight(t)
	if d.Weekday() == time.Saturday || d.Weekday() == time.Sunday {
		return false, c.rangeCheck(d)
	}
	_, holiday := c.holidays[dateKey(d)]
	return !holiday, c.rangeCheck(d)
}

func (c *Calendar) rangeCheck(d time.Time) error {
	if d.Year() < tableFirstYear || d.Year() > tableLastYear {
		return ErrOutOfRange
	}
	return nil
}

// TradingDays enumerates every trading day in [start, end], inclusive,
// in strictly increasing order.
func (c *Calendar) TradingDays(start, end time.Time) ([]time.Time, error) {
	begin := Midnight(start)
	through := Midnight(end)
	if begin.After(through) {
		return nil, ErrTimeInverted
	}

	days := make([]time.Time, 0, int(through.Sub(begin).Hours()/24/7*5)+2)
	for d := begin; !d.After(through); d = d.AddDate(0, 0, 1) {
		open, err := c.IsTradingDay(d)
		if err != nil {
			return nil, err
		}
		if open {
			days = append(days, d)
		}
	}
	return days, nil
}

// NextTradingDay returns the first trading day strictly after t.
func (c *Calendar) NextTradingDay(t time.Time) (time.Time, error) {
	d := Midnight(t)
	for i := 0; i < 30; i++ {
		d = d.AddDate(0, 0, 1)
		open, err := c.IsTradingDay(d)
		if err != nil {
			return time.Time{}, err
		}
		if open {
			return d, nil
		}
	}
	return time.Time{}, ErrOutOfRange
}

// PrevTradingDay returns the last trading day strictly before t.
func (c *Calendar) PrevTradingDay(t time.Time) (time.Time, error) {
	d := Midnight(t)
	for i := 0; i < 30; i++ {
		d = d.AddDate(0, 0, -1)
		open, err := c.IsTradingDay(d)
		if err != nil {
			return time.Time{}, err
		}
		if open {
			return d, nil
		}
	}
	return time.Time{}, ErrOutOfRange
}

// onOrAfter returns d if it is a trading day, otherwise the next trading day.
func (c *Calendar) onOrAfter(d time.Time) (time.Time, error) {
	open, err := c.IsTradingDay(d)
	if err != nil {
		return time.Time{}, err
	}
	if open {
		return Midnight(d), nil
	}
	return c.NextTradingDay(d)
}

// FirstTradingDayOfMonth returns the first trading day of the given month.
func (c *Calendar) FirstTradingDayOfMonth(year int, month time.Month) (time.Time, error) {
	return c.onOrAfter(time.Date(year, month, 1, 0, 0, 0, 0, time.UTC))
}

// FirstTradingDayOfQuarter returns the first trading day of the quarter
// (1-4) in the given year.
func (c *Calendar) FirstTradingDayOfQuarter(year, quarter int) (time.Time, error) {
	month := time.Month((quarter-1)*3 + 1)
	return c.FirstTradingDayOfMonth(year, month)
}

// FirstTradingDayOfYear returns the first trading day in January.
func (c *Calendar) FirstTradingDayOfYear(year int) (time.Time, error) {
	return c.FirstTradingDayOfMonth(year, time.January)
}

// LastTradingDayOfMonth returns the final trading day of the given month.
func (c *Calendar) LastTradingDayOfMonth(year int, month time.Month) (time.Time, error) {
	next := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 1, 0)
	return c.PrevTradingDay(next)
}

// Align maps a date and cadence to the first trading day on or after the
// cadence's logical scheduled date:
//
//	daily / every_market_day - the date itself, or the next trading day
//	weekly                   - the Monday of the date's week
//	monthly                  - the first of the date's month
//	quarterly                - the first of the quarter (Jan/Apr/Jul/Oct)
//	yearly                   - January 1st of the date's year
func (c *Calendar) Align(t time.Time, cadence Cadence) (time.Time, error) {
	d := Midnight(t)
	switch cadence {
	case Daily, EveryMarketDay:
		return c.onOrAfter(d)
	case Weekly:
		offset := (int(d.Weekday()) + 6) % 7 // days since Monday
		return c.onOrAfter(d.AddDate(0, 0, -offset))
	case Monthly:
		return c.FirstTradingDayOfMonth(d.Year(), d.Month())
	case Quarterly:
		quarter := (int(d.Month())-1)/3 + 1
		return c.FirstTradingDayOfQuarter(d.Year(), quarter)
	case Annually:
		return c.FirstTradingDayOfYear(d.Year())
	default:
		return time.Time{}, ErrUnknownCadence
	}
}

// NextScheduled returns the first trading day of the next cadence period
// strictly after t. Used to advance deposit and calendar-rebalance
// schedules.
func (c *Calendar) NextScheduled(t time.Time, cadence Cadence) (time.Time, error) {
	d := Midnight(t)
	switch cadence {
	case Daily, EveryMarketDay:
		return c.NextTradingDay(d)
	case Weekly:
		offset := (int(d.Weekday()) + 6) % 7
		return c.onOrAfter(d.AddDate(0, 0, 7-offset))
	case Monthly:
		first := time.Date(d.Year(), d.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, 1, 0)
		return c.onOrAfter(first)
	case Quarterly:
		quarter := (int(d.Month())-1)/3 + 1
		year := d.Year()
		quarter++
		if quarter > 4 {
			quarter = 1
			year++
		}
		return c.FirstTradingDayOfQuarter(year, quarter)
	case Annually:
		return c.FirstTradingDayOfYear(d.Year() + 1)
	default:
		return time.Time{}, ErrUnknownCadence
	}
}

// IsLastTradingDayOfYear reports whether no further trading days remain in
// t's calendar year.
func (c *Calendar) IsLastTradingDayOfYear(t time.Time) (bool, error) {
	next, err := c.NextTradingDay(t)
	if err != nil {
		if errors.Is(err, ErrOutOfRange) {
			// end of the table; treat as a year boundary
			return true, nil
		}
		return false, err
	}
	return next.Year() > t.Year(), nil
}

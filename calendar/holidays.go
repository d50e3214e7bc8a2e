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

package calendar

import "time"

// unscheduledClosures lists full-day market closures that do not follow a
// holiday rule: September 11 attacks, presidential days of mourning, and
// hurricane Sandy.
var unscheduledClosures = []time.Time{
	time.Date(2001, time.September, 11, 0, 0, 0, 0, time.UTC),
	time.Date(2001, time.September, 12, 0, 0, 0, 0, time.UTC),
	time.Date(2001, time.September, 13, 0, 0, 0, 0, time.UTC),
	time.Date(2001, time.September, 14, 0, 0, 0, 0, time.UTC),
	time.Date(2004, time.June, 11, 0, 0, 0, 0, time.UTC),
	time.Date(2007, time.January, 2, 0, 0, 0, 0, time.UTC),
	time.Date(2012, time.October, 29, 0, 0, 0, 0, time.UTC),
	time.Date(2012, time.October, 30, 0, 0, 0, 0, time.UTC),
	time.Date(2018, time.December, 5, 0, 0, 0, 0, time.UTC),
	time.Date(2025, time.January, 9, 0, 0, 0, 0, time.UTC),
}

// usMarketHolidays computes the observed NYSE holidays for a year.
func usMarketHolidays(year int) []time.Time {
	days := []time.Time{
		observed(time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)),
		nthWeekday(year, time.January, time.Monday, 3),    // Martin Luther King Jr. Day
		nthWeekday(year, time.February, time.Monday, 3),   // Washington's Birthday
		goodFriday(year),
		lastWeekday(year, time.May, time.Monday),          // Memorial Day
		observed(time.Date(year, time.July, 4, 0, 0, 0, 0, time.UTC)),
		nthWeekday(year, time.September, time.Monday, 1),  // Labor Day
		nthWeekday(year, time.November, time.Thursday, 4), // Thanksgiving
		observed(time.Date(year, time.December, 25, 0, 0, 0, 0, time.UTC)),
	}

	// Juneteenth became a market holiday in 2022
	if year >= 2022 {
		days = append(days, observed(time.Date(year, time.June, 19, 0, 0, 0, 0, time.UTC)))
	}

	return days
}

// observed shifts a fixed-date holiday falling on a weekend: Saturday
// observes on Friday, Sunday observes on Monday. A New Year's Day that
// would observe on the prior year's December 31 is not observed at all,
// per NYSE Rule 7.2.
func observed(d time.Time) time.Time {
	switch d.Weekday() {
	case time.Saturday:
		prior := d.AddDate(0, 0, -1)
		if prior.Year() != d.Year() {
			return d // not observed; the weekend already closes the market
		}
		return prior
	case time.Sunday:
		return d.AddDate(0, 0, 1)
	default:
		return d
	}
}

// nthWeekday returns the nth occurrence of a weekday within a month.
func nthWeekday(year int, month time.Month, weekday time.Weekday, n int) time.Time {
	d := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	offset := (int(weekday) - int(d.Weekday()) + 7) % 7
	return d.AddDate(0, 0, offset+(n-1)*7)
}

// lastWeekday returns the final occurrence of a weekday within a month.
func lastWeekday(year int, month time.Month, weekday time.Weekday) time.Time {
	d := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 1, -1)
	offset := (int(d.Weekday()) - int(weekday) + 7) % 7
	return d.AddDate(0, 0, -offset)
}

// goodFriday returns the Friday before Easter Sunday, computed with the
// anonymous Gregorian (Meeus/Jones/Butcher) algorithm.
func goodFriday(year int) time.Time {
	a := year % 19
	b := year / 100
	c := year % 100
	d := b / 4
	e := b % 4
	f := (b + 8) / 25
	g := (b - f + 1) / 3
	h := (19*a + b - d - g + 15) % 30
	i := c / 4
	k := c % 4
	l := (32 + 2*e + 2*i - h - k) % 7
	m := (a + 11*h + 22*l) / 451
	month := (h + l - 7*m + 114) / 31
	day := (h+l-7*m+114)%31 + 1

	easter := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	return easter.AddDate(0, 0, -2)
}

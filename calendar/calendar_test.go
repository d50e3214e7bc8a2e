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

package calendar_test

import (
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/foliosim/foliosim/calendar"
)

func date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

var _ = Describe("Calendar", func() {
	var cal *calendar.Calendar

	BeforeEach(func() {
		var err error
		cal, err = calendar.New("NYSE")
		Expect(err).To(BeNil())
	})

	Describe("when constructing a calendar", func() {
		It("rejects unknown markets", func() {
			_, err := calendar.New("LSE")
			Expect(err).To(MatchError(calendar.ErrUnknownCalendar))
		})

		It("defaults to NYSE", func() {
			c, err := calendar.New("")
			Expect(err).To(BeNil())
			Expect(c.Name).To(Equal("NYSE"))
		})
	})

	Describe("when classifying trading days", func() {
		It("treats weekends as closed", func() {
			open, err := cal.IsTradingDay(date(2021, time.January, 9))
			Expect(err).To(BeNil())
			Expect(open).To(BeFalse())
		})

		It("treats regular weekdays as open", func() {
			open, err := cal.IsTradingDay(date(2021, time.January, 8))
			Expect(err).To(BeNil())
			Expect(open).To(BeTrue())
		})

		It("treats fixed holidays as closed", func() {
			open, err := cal.IsTradingDay(date(2021, time.January, 1))
			Expect(err).To(BeNil())
			Expect(open).To(BeFalse())
		})

		It("observes Independence Day on Monday when July 4 is a Sunday", func() {
			open, err := cal.IsTradingDay(date(2021, time.July, 5))
			Expect(err).To(BeNil())
			Expect(open).To(BeFalse())
		})

		It("treats Good Friday as closed", func() {
			open, err := cal.IsTradingDay(date(2021, time.April, 2))
			Expect(err).To(BeNil())
			Expect(open).To(BeFalse())
		})

		It("treats Juneteenth as closed starting in 2022", func() {
			// 2023-06-19 is a Monday
			open, err := cal.IsTradingDay(date(2023, time.June, 19))
			Expect(err).To(BeNil())
			Expect(open).To(BeFalse())

			// Juneteenth was not yet a market holiday in 2020
			open, err = cal.IsTradingDay(date(2020, time.June, 19))
			Expect(err).To(BeNil())
			Expect(open).To(BeTrue())
		})

		It("treats unscheduled closures as closed", func() {
			open, err := cal.IsTradingDay(date(2012, time.October, 29))
			Expect(err).To(BeNil())
			Expect(open).To(BeFalse())
		})

		It("returns ErrOutOfRange beyond the embedded tables", func() {
			_, err := cal.IsTradingDay(date(2050, time.June, 15))
			Expect(err).To(MatchError(calendar.ErrOutOfRange))
		})
	})

	Describe("when enumerating trading days", func() {
		It("lists days in increasing order and skips weekends and holidays", func() {
			days, err := cal.TradingDays(date(2021, time.December, 23), date(2022, time.January, 4))
			Expect(err).To(BeNil())
			Expect(days).To(Equal([]time.Time{
				date(2021, time.December, 23),
				date(2021, time.December, 27),
				date(2021, time.December, 28),
				date(2021, time.December, 29),
				date(2021, time.December, 30),
				date(2021, time.December, 31),
				date(2022, time.January, 3),
				date(2022, time.January, 4),
			}))
		})

		It("rejects inverted date ranges", func() {
			_, err := cal.TradingDays(date(2021, time.June, 2), date(2021, time.June, 1))
			Expect(err).To(MatchError(calendar.ErrTimeInverted))
		})
	})

	Describe("when aligning dates to a cadence", func() {
		It("daily returns the next trading day for a weekend date", func() {
			d, err := cal.Align(date(2021, time.January, 9), calendar.Daily)
			Expect(err).To(BeNil())
			Expect(d).To(Equal(date(2021, time.January, 11)))
		})

		It("weekly snaps to the Monday of the week", func() {
			d, err := cal.Align(date(2021, time.June, 10), calendar.Weekly)
			Expect(err).To(BeNil())
			Expect(d).To(Equal(date(2021, time.June, 7)))
		})

		It("weekly rolls forward when Monday is a holiday", func() {
			// 2021-09-06 is Labor Day
			d, err := cal.Align(date(2021, time.September, 8), calendar.Weekly)
			Expect(err).To(BeNil())
			Expect(d).To(Equal(date(2021, time.September, 7)))
		})

		It("monthly snaps to the first trading day of the month", func() {
			d, err := cal.Align(date(2021, time.August, 20), calendar.Monthly)
			Expect(err).To(BeNil())
			Expect(d).To(Equal(date(2021, time.August, 2)))
		})

		It("quarterly snaps to the first trading day of the quarter", func() {
			d, err := cal.Align(date(2021, time.June, 10), calendar.Quarterly)
			Expect(err).To(BeNil())
			Expect(d).To(Equal(date(2021, time.April, 1)))
		})

		It("yearly snaps to the first trading day in January", func() {
			d, err := cal.Align(date(2022, time.August, 10), calendar.Annually)
			Expect(err).To(BeNil())
			Expect(d).To(Equal(date(2022, time.January, 3)))
		})

		It("rejects unknown cadences", func() {
			_, err := cal.Align(date(2021, time.June, 10), calendar.Cadence("fortnightly"))
			Expect(err).To(MatchError(calendar.ErrUnknownCadence))
		})
	})

	Describe("when advancing a schedule", func() {
		It("monthly advances to the first trading day of the next month", func() {
			// 2021-05-01 is a Saturday
			d, err := cal.NextScheduled(date(2021, time.April, 15), calendar.Monthly)
			Expect(err).To(BeNil())
			Expect(d).To(Equal(date(2021, time.May, 3)))
		})

		It("monthly shifts past a New Year's holiday", func() {
			d, err := cal.NextScheduled(date(2020, time.December, 15), calendar.Monthly)
			Expect(err).To(BeNil())
			Expect(d).To(Equal(date(2021, time.January, 4)))
		})

		It("quarterly wraps across the year boundary", func() {
			d, err := cal.NextScheduled(date(2021, time.November, 15), calendar.Quarterly)
			Expect(err).To(BeNil())
			Expect(d).To(Equal(date(2022, time.January, 3)))
		})

		It("weekly advances to next Monday", func() {
			d, err := cal.NextScheduled(date(2021, time.June, 7), calendar.Weekly)
			Expect(err).To(BeNil())
			Expect(d).To(Equal(date(2021, time.June, 14)))
		})
	})

	Describe("when finding year boundaries", func() {
		It("identifies the last trading day of the year", func() {
			last, err := cal.IsLastTradingDayOfYear(date(2021, time.December, 31))
			Expect(err).To(BeNil())
			Expect(last).To(BeTrue())

			last, err = cal.IsLastTradingDayOfYear(date(2021, time.December, 30))
			Expect(err).To(BeNil())
			Expect(last).To(BeFalse())
		})
	})

	Describe("when parsing custom schedules", func() {
		It("fires a cron rule on its scheduled day", func() {
			sched, err := cal.ParseSchedule("cron:0 0 15 * *")
			Expect(err).To(BeNil())

			d, err := sched.Next(date(2021, time.June, 1))
			Expect(err).To(BeNil())
			Expect(d).To(Equal(date(2021, time.June, 15)))
		})

		It("shifts a cron fire on a weekend to the next trading day", func() {
			sched, err := cal.ParseSchedule("cron:0 0 15 * *")
			Expect(err).To(BeNil())

			// 2021-08-15 is a Sunday
			d, err := sched.Next(date(2021, time.August, 1))
			Expect(err).To(BeNil())
			Expect(d).To(Equal(date(2021, time.August, 16)))
		})

		It("reports occurrence on fire days only, after alignment", func() {
			sched, err := cal.ParseSchedule("cron:0 0 15 * *")
			Expect(err).To(BeNil())

			occurs, err := sched.Occurs(date(2021, time.June, 15))
			Expect(err).To(BeNil())
			Expect(occurs).To(BeTrue())

			occurs, err = sched.Occurs(date(2021, time.June, 16))
			Expect(err).To(BeNil())
			Expect(occurs).To(BeFalse())

			// 2021-08-15 is a Sunday; the fire lands on Monday the 16th
			occurs, err = sched.Occurs(date(2021, time.August, 16))
			Expect(err).To(BeNil())
			Expect(occurs).To(BeTrue())

			occurs, err = sched.Occurs(date(2021, time.August, 15))
			Expect(err).To(BeNil())
			Expect(occurs).To(BeFalse())
		})

		It("supports the built-in cadences", func() {
			sched, err := cal.ParseSchedule("monthly")
			Expect(err).To(BeNil())

			d, err := sched.Next(date(2021, time.April, 15))
			Expect(err).To(BeNil())
			Expect(d).To(Equal(date(2021, time.May, 3)))
		})

		It("rejects malformed expressions", func() {
			_, err := cal.ParseSchedule("cron:not a rule")
			Expect(err).To(MatchError(calendar.ErrInvalidSchedule))

			_, err = cal.ParseSchedule("sometimes")
			Expect(err).To(MatchError(calendar.ErrInvalidSchedule))
		})
	})
})

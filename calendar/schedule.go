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

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

var ErrInvalidSchedule = errors.New("invalid schedule expression")

// Schedule is a recurring set of dates: either one of the built-in
// cadences or a custom cron expression constrained to trading days. A
// cron fire landing on a weekend or holiday shifts forward to the next
// trading day.
type Schedule struct {
	cal     *Calendar
	cadence Cadence
	cron    cron.Schedule
}

var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// ParseSchedule builds a Schedule from a cadence name ("daily", "weekly",
// "monthly", "quarterly", "yearly") or a cron expression prefixed with
// "cron:", e.g. "cron:0 0 15 * *" for the 15th of every month.
func (c *Calendar) ParseSchedule(expr string) (*Schedule, error) {
	if strings.HasPrefix(expr, "cron:") {
		rule := strings.TrimPrefix(expr, "cron:")
		sched, err := cronParser.Parse(strings.TrimSpace(rule))
		if err != nil {
			return nil, fmt.Errorf("%w: %s", ErrInvalidSchedule, err.Error())
		}
		return &Schedule{cal: c, cron: sched}, nil
	}

	switch cadence := Cadence(expr); cadence {
	case Daily, Weekly, Monthly, Quarterly, Annually, EveryMarketDay:
		return &Schedule{cal: c, cadence: cadence}, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrInvalidSchedule, expr)
	}
}

// Next returns the first scheduled trading day strictly after t.
func (s *Schedule) Next(t time.Time) (time.Time, error) {
	if s.cron == nil {
		return s.cal.NextScheduled(t, s.cadence)
	}

	// end of day so same-date fires are excluded
	fire := s.cron.Next(Midnight(t).Add(23 * time.Hour))
	if fire.IsZero() {
		return time.Time{}, ErrOutOfRange
	}
	return s.cal.onOrAfter(Midnight(fire))
}

// Occurs reports whether t is a scheduled date, i.e. the schedule fires
// on t after trading-day alignment.
func (s *Schedule) Occurs(t time.Time) (bool, error) {
	prev := Midnight(t).AddDate(0, 0, -45)
	next, err := s.Next(prev)
	for err == nil && next.Before(Midnight(t)) {
		next, err = s.Next(next)
	}
	if err != nil {
		return false, err
	}
	return next.Equal(Midnight(t)), nil
}

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

// Package rebalance decides when a portfolio must trade back to its
// target weights and builds the ordered, tax-aware plan the driver
// executes.
package rebalance

import (
	"errors"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/foliosim/foliosim/calendar"
	"github.com/foliosim/foliosim/config"
)

var ErrNoPrices = errors.New("no trade price for symbol")

// Snapshot is the read-only view of the portfolio the rebalancer
// consumes. The driver assembles it each day; the rebalancer never
// touches the portfolio directly.
type Snapshot struct {
	Date  time.Time
	Value float64
	Cash  float64

	// Holdings is the marked value per symbol.
	Holdings map[string]float64

	// Prices is the per-symbol trade price for the day (open for MOO,
	// close for MOC).
	Prices map[string]float64

	// CashflowToday is cash added today by deposits and cash dividends.
	CashflowToday float64
}

// Rebalancer tracks the calendar schedule and drift thresholds for one
// simulation.
type Rebalancer struct {
	cfg     *config.StrategyConfig
	weights map[string]float64

	nextCalendar time.Time
}

// New builds a rebalancer. The first calendar trigger is the first
// trading day on or after the period start's cadence date.
func New(cfg *config.StrategyConfig, cal *calendar.Calendar) (*Rebalancer, error) {
	r := &Rebalancer{
		cfg:     cfg,
		weights: cfg.TargetWeights(),
	}

	if cfg.Rebalancing.Type == config.RebalanceCalendar || cfg.Rebalancing.Type == config.RebalanceBoth {
		first, err := cal.Align(cfg.Period.Start.Time, cfg.RebalanceCadence())
		if err != nil {
			return nil, err
		}
		// the cadence date may precede the period; the first in-period
		// trading day stands in for it
		if first.Before(calendar.Midnight(cfg.Period.Start.Time)) {
			first, err = cal.Align(cfg.Period.Start.Time, calendar.Daily)
			if err != nil {
				return nil, err
			}
		}
		r.nextCalendar = first
	}

	return r, nil
}

// TargetWeights exposes the resolved weights.
func (r *Rebalancer) TargetWeights() map[string]float64 {
	return r.weights
}

// SetWeights replaces the target weights. The driver calls this when
// signal gating or a delisting zeroes a symbol's allocation.
func (r *Rebalancer) SetWeights(weights map[string]float64) {
	r.weights = weights
}

// Due reports whether a rebalance is required on the snapshot's date and
// the trigger that fired.
func (r *Rebalancer) Due(snap *Snapshot, cal *calendar.Calendar) (bool, string, error) {
	switch r.cfg.Rebalancing.Type {
	case config.RebalanceCalendar:
		return r.calendarDue(snap.Date, cal)
	case config.RebalanceDrift:
		return r.driftDue(snap), "drift", nil
	case config.RebalanceBoth:
		due, trigger, err := r.calendarDue(snap.Date, cal)
		if err != nil || due {
			return due, trigger, err
		}
		if r.driftDue(snap) {
			return true, "drift", nil
		}
		return false, "", nil
	case config.RebalanceCashflow:
		return r.cashflowDue(snap), "cashflow", nil
	default:
		return false, "", nil
	}
}

func (r *Rebalancer) calendarDue(date time.Time, cal *calendar.Calendar) (bool, string, error) {
	if r.nextCalendar.IsZero() || date.Before(r.nextCalendar) {
		return false, "", nil
	}

	next, err := cal.NextScheduled(date, r.cfg.RebalanceCadence())
	if err != nil {
		if errors.Is(err, calendar.ErrOutOfRange) {
			// ran off the holiday tables; no further calendar triggers
			r.nextCalendar = time.Time{}
			return true, "calendar", nil
		}
		return false, "", err
	}
	r.nextCalendar = next
	return true, "calendar", nil
}

func (r *Rebalancer) driftDue(snap *Snapshot) bool {
	if snap.Value <= 0 {
		return false
	}

	for symbol, target := range r.weights {
		current := snap.Holdings[symbol] / snap.Value
		dev := current - target
		if dev < 0 {
			dev = -dev
		}

		if abs := r.cfg.Rebalancing.Drift.AbsPct; abs != nil && dev > *abs {
			log.Debug().Str("Symbol", symbol).Float64("Deviation", dev).Msg("absolute drift trigger")
			return true
		}
		if rel := r.cfg.Rebalancing.Drift.RelPct; rel != nil && target > 0 && dev/target > *rel {
			log.Debug().Str("Symbol", symbol).Float64("Deviation", dev).Msg("relative drift trigger")
			return true
		}
	}
	return false
}

func (r *Rebalancer) cashflowDue(snap *Snapshot) bool {
	if snap.CashflowToday <= 0 || snap.Value <= 0 {
		return false
	}
	return snap.Cash/snap.Value > r.cfg.Rebalancing.Cashflow.MinCashPct
}

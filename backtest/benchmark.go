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

package backtest

import (
	"context"
	"errors"
	"time"

	"github.com/foliosim/foliosim/data"
	"github.com/foliosim/foliosim/metrics"
	"github.com/foliosim/foliosim/portfolio"
)

// runBenchmark replays the period as a buy-and-hold of one symbol with
// the same deposit schedule and dividend policy as the strategy. Fresh
// external cash is deployed on arrival; cash dividends stay in cash
// unless DRIP is on.
func (d *Driver) runBenchmark(_ context.Context, symbol string, days []time.Time) ([]*metrics.EquityPoint, error) {
	port := portfolio.New(d.cfg, nil)
	deposits, err := newDepositSchedule(d.cfg, d.cal)
	if err != nil {
		return nil, err
	}

	series := make([]*metrics.EquityPoint, 0, len(days))
	deployable := d.cfg.InitialCash
	drag := 1.0

	for _, day := range days {
		bar, ok := d.ds.bar(symbol, day)
		if !ok {
			return nil, data.ErrMissingBar
		}

		for _, split := range d.ds.splitsOn(symbol, day) {
			if err := port.ApplySplit(symbol, split.Ratio, day); err != nil {
				return nil, err
			}
		}

		for _, div := range d.ds.dividendsOn(symbol, day) {
			qualified := div.QualifiedFraction
			if qualified == 0 {
				qualified = d.cfg.Account.Tax.QualifiedDividendPct
			}
			if _, err := port.ApplyDividend(symbol, div.Amount, qualified,
				bar.Close, d.cfg.Dividends.Mode, day); err != nil {
				return nil, err
			}
		}

		externalFlow := 0.0
		if deposits.due(day) {
			credited, err := port.Deposit(d.cfg.Deposits.Amount, day)
			if err != nil && !errors.Is(err, portfolio.ErrContributionCapExceeded) {
				return nil, err
			}
			externalFlow = credited
			deployable += credited
			deposits.advance(day)
		}

		if deployable >= 1 {
			switch _, err := port.Buy(symbol, deployable, bar.Close, day); {
			case err == nil:
				deployable = 0
			case errors.Is(err, portfolio.ErrInvalidAmount):
				// too small after frictions; try again with the next deposit
			default:
				return nil, err
			}
		}

		if er, ok := d.ds.expense[symbol]; ok {
			drag *= 1 - er/tradingDaysPerYear
		}
		marks := map[string]float64{symbol: bar.Close * drag}

		cash := port.Cash().InexactFloat64()
		positionsValue := port.PositionsValue(marks).InexactFloat64()
		series = append(series, &metrics.EquityPoint{
			Date:           day,
			Cash:           cash,
			PositionsValue: positionsValue,
			Value:          cash + positionsValue,
			Cashflow:       externalFlow,
		})
	}

	return series, nil
}

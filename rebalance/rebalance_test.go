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

package rebalance_test

import (
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/foliosim/foliosim/calendar"
	"github.com/foliosim/foliosim/config"
	"github.com/foliosim/foliosim/portfolio"
	"github.com/foliosim/foliosim/rebalance"
)

func day(year int, month time.Month, d int) time.Time {
	return time.Date(year, month, d, 0, 0, 0, 0, time.UTC)
}

func baseConfig() *config.StrategyConfig {
	cfg, err := config.Parse([]byte(`{
		"meta": {"name": "test"},
		"period": {"start": "2020-01-02", "end": "2020-12-31"},
		"universe": {"symbols": ["SPY", "AGG"]},
		"initial_cash": 100000,
		"account": {"type": "Taxable", "tax": {"federal_ordinary": 0.24, "federal_ltcg": 0.15, "state": 0.05}},
		"deposits": {"cadence": "monthly", "amount": 0},
		"dividends": {"mode": "CASH"},
		"rebalancing": {"type": "calendar", "calendar": {"period": "Q"}},
		"orders": {"timing": "MOC"},
		"lots": {"method": "HIFO"},
		"frictions": {"commission_per_trade": 0, "slippage_bps": 0},
		"position_sizing": {"method": "CUSTOM_WEIGHTS", "custom_weights": {"SPY": 0.6, "AGG": 0.4}},
		"benchmark": {"symbols": []}
	}`))
	Expect(err).To(BeNil())
	return cfg
}

var _ = Describe("Rebalancer", func() {
	var (
		cfg *config.StrategyConfig
		cal *calendar.Calendar
	)

	BeforeEach(func() {
		cfg = baseConfig()
		var err error
		cal, err = calendar.New("NYSE")
		Expect(err).To(BeNil())
	})

	Describe("calendar triggers", func() {
		It("fires on the first trading day of each quarter", func() {
			r, err := rebalance.New(cfg, cal)
			Expect(err).To(BeNil())

			fired := make([]time.Time, 0, 4)
			days, err := cal.TradingDays(day(2020, time.January, 2), day(2020, time.December, 31))
			Expect(err).To(BeNil())

			for _, d := range days {
				due, trigger, err := r.Due(&rebalance.Snapshot{Date: d, Value: 100000}, cal)
				Expect(err).To(BeNil())
				if due {
					Expect(trigger).To(Equal("calendar"))
					fired = append(fired, d)
				}
			}

			Expect(fired).To(Equal([]time.Time{
				day(2020, time.January, 2),
				day(2020, time.April, 1),
				day(2020, time.July, 1),
				day(2020, time.October, 1),
			}))
		})
	})

	Describe("drift triggers", func() {
		BeforeEach(func() {
			abs := 0.05
			cfg.Rebalancing.Type = config.RebalanceDrift
			cfg.Rebalancing.Drift.AbsPct = &abs
		})

		It("fires when a weight deviates beyond the absolute threshold", func() {
			r, err := rebalance.New(cfg, cal)
			Expect(err).To(BeNil())

			due, trigger, err := r.Due(&rebalance.Snapshot{
				Date:     day(2020, time.June, 1),
				Value:    100000,
				Holdings: map[string]float64{"SPY": 67000, "AGG": 33000},
			}, cal)
			Expect(err).To(BeNil())
			Expect(due).To(BeTrue())
			Expect(trigger).To(Equal("drift"))
		})

		It("stays quiet inside the threshold", func() {
			r, err := rebalance.New(cfg, cal)
			Expect(err).To(BeNil())

			due, _, err := r.Due(&rebalance.Snapshot{
				Date:     day(2020, time.June, 1),
				Value:    100000,
				Holdings: map[string]float64{"SPY": 62000, "AGG": 38000},
			}, cal)
			Expect(err).To(BeNil())
			Expect(due).To(BeFalse())
		})

		It("a zero threshold fires on any deviation", func() {
			zero := 0.0
			cfg.Rebalancing.Drift.AbsPct = &zero
			r, err := rebalance.New(cfg, cal)
			Expect(err).To(BeNil())

			due, _, err := r.Due(&rebalance.Snapshot{
				Date:     day(2020, time.June, 1),
				Value:    100000,
				Holdings: map[string]float64{"SPY": 60000.50, "AGG": 39999.50},
			}, cal)
			Expect(err).To(BeNil())
			Expect(due).To(BeTrue())
		})
	})

	Describe("cashflow triggers", func() {
		It("fires only when fresh cash exceeds the deploy threshold", func() {
			cfg.Rebalancing.Type = config.RebalanceCashflow
			cfg.Rebalancing.Cashflow.MinCashPct = 0.02
			r, err := rebalance.New(cfg, cal)
			Expect(err).To(BeNil())

			due, _, err := r.Due(&rebalance.Snapshot{
				Date: day(2020, time.June, 1), Value: 100000, Cash: 5000, CashflowToday: 500,
			}, cal)
			Expect(err).To(BeNil())
			Expect(due).To(BeTrue())

			due, _, err = r.Due(&rebalance.Snapshot{
				Date: day(2020, time.June, 2), Value: 100000, Cash: 1000, CashflowToday: 500,
			}, cal)
			Expect(err).To(BeNil())
			Expect(due).To(BeFalse())

			// no cashflow today means no trigger regardless of idle cash
			due, _, err = r.Due(&rebalance.Snapshot{
				Date: day(2020, time.June, 3), Value: 100000, Cash: 50000, CashflowToday: 0,
			}, cal)
			Expect(err).To(BeNil())
			Expect(due).To(BeFalse())
		})
	})

	Describe("plan construction", func() {
		var port *portfolio.Portfolio

		BeforeEach(func() {
			port = portfolio.New(cfg, nil)
			_, err := port.Buy("SPY", 70000, 100, day(2020, time.January, 2))
			Expect(err).To(BeNil())
			_, err = port.Buy("AGG", 30000, 50, day(2020, time.January, 2))
			Expect(err).To(BeNil())
		})

		It("sells overweight symbols before buying underweight ones", func() {
			r, err := rebalance.New(cfg, cal)
			Expect(err).To(BeNil())

			snap := &rebalance.Snapshot{
				Date:     day(2020, time.June, 1),
				Value:    100000,
				Cash:     0,
				Holdings: map[string]float64{"SPY": 70000, "AGG": 30000},
				Prices:   map[string]float64{"SPY": 100, "AGG": 50},
			}

			plan, err := r.Plan(snap, port.Positions())
			Expect(err).To(BeNil())
			Expect(plan.Sells).To(HaveLen(1))
			Expect(plan.Sells[0].Symbol).To(Equal("SPY"))
			Expect(plan.Sells[0].Shares).To(BeNumerically("~", 100, 0.001))
			Expect(plan.Buys).To(HaveLen(1))
			Expect(plan.Buys[0].Symbol).To(Equal("AGG"))
			Expect(plan.Buys[0].Notional).To(BeNumerically("~", 10000, 0.01))
			Expect(plan.ScaledDown).To(BeFalse())
		})

		It("orders loss harvesting before gain realization", func() {
			// SPY basis 100 marked at 90 (loss); AGG basis 50 marked at 70
			// (short-term gain); TLT absorbs the freed cash
			cfg.Universe.Symbols = []string{"SPY", "AGG", "TLT"}
			cfg.PositionSizing.CustomWeights = map[string]float64{"SPY": 0.3, "AGG": 0.3, "TLT": 0.4}
			r, err := rebalance.New(cfg, cal)
			Expect(err).To(BeNil())

			snap := &rebalance.Snapshot{
				Date:     day(2020, time.June, 1),
				Value:    105000,
				Cash:     0,
				Holdings: map[string]float64{"SPY": 63000, "AGG": 42000},
				Prices:   map[string]float64{"SPY": 90, "AGG": 70, "TLT": 120},
			}

			plan, err := r.Plan(snap, port.Positions())
			Expect(err).To(BeNil())
			Expect(plan.Sells).To(HaveLen(2))
			Expect(plan.Sells[0].Symbol).To(Equal("SPY"))
			Expect(plan.Sells[1].Symbol).To(Equal("AGG"))
			Expect(plan.Buys).To(HaveLen(1))
			Expect(plan.Buys[0].Symbol).To(Equal("TLT"))
		})

		It("scales buys down proportionally when cash would go negative", func() {
			r, err := rebalance.New(cfg, cal)
			Expect(err).To(BeNil())

			// nothing to sell, two underweights, not enough cash
			snap := &rebalance.Snapshot{
				Date:     day(2020, time.June, 1),
				Value:    110000,
				Cash:     5000,
				Holdings: map[string]float64{"SPY": 60000, "AGG": 40000},
				Prices:   map[string]float64{"SPY": 100, "AGG": 50},
			}

			plan, err := r.Plan(snap, port.Positions())
			Expect(err).To(BeNil())
			Expect(plan.Sells).To(BeEmpty())
			Expect(plan.ScaledDown).To(BeTrue())

			total := 0.0
			for _, leg := range plan.Buys {
				total += leg.Notional
			}
			Expect(total).To(BeNumerically("~", 5000, 0.01))
		})

		It("skips a zero-weight symbol with nothing held even without a price", func() {
			// a liquidated delisting leaves the symbol in the weight map
			// at zero and absent from the day's prices
			r, err := rebalance.New(cfg, cal)
			Expect(err).To(BeNil())
			r.SetWeights(map[string]float64{"SPY": 0.6, "AGG": 0})

			snap := &rebalance.Snapshot{
				Date:     day(2020, time.June, 1),
				Value:    100000,
				Cash:     40000,
				Holdings: map[string]float64{"SPY": 60000},
				Prices:   map[string]float64{"SPY": 100},
			}

			plan, err := r.Plan(snap, port.Positions())
			Expect(err).To(BeNil())
			Expect(plan.Sells).To(BeEmpty())
			Expect(plan.Buys).To(BeEmpty())
		})

		It("fails when a trade price is missing", func() {
			r, err := rebalance.New(cfg, cal)
			Expect(err).To(BeNil())

			snap := &rebalance.Snapshot{
				Date:     day(2020, time.June, 1),
				Value:    100000,
				Holdings: map[string]float64{"SPY": 70000, "AGG": 30000},
				Prices:   map[string]float64{"SPY": 100},
			}
			_, err = r.Plan(snap, port.Positions())
			Expect(err).To(MatchError(rebalance.ErrNoPrices))
		})
	})
})

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

package config_test

import (
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/foliosim/foliosim/config"
)

const minimalConfig = `{
	"meta": {"name": "buy and hold"},
	"period": {"start": "2020-01-02", "end": "2020-12-31"},
	"universe": {"symbols": ["SPY"]},
	"initial_cash": 10000,
	"account": {"type": "Taxable", "tax": {"federal_ordinary": 0.24, "federal_ltcg": 0.15, "state": 0.05, "apply_wash_sale": true}},
	"deposits": {"cadence": "monthly", "amount": 0},
	"dividends": {"mode": "DRIP"},
	"rebalancing": {"type": "calendar", "calendar": {"period": "Q"}},
	"orders": {"timing": "MOC"},
	"lots": {"method": "FIFO"},
	"frictions": {"commission_per_trade": 0, "slippage_bps": 0},
	"position_sizing": {"method": "EQUAL_WEIGHT"},
	"benchmark": {"symbols": ["SPY"]}
}`

var _ = Describe("StrategyConfig", func() {
	Describe("when parsing JSON", func() {
		It("accepts a complete configuration", func() {
			cfg, err := config.Parse([]byte(minimalConfig))
			Expect(err).To(BeNil())
			Expect(cfg.Meta.Name).To(Equal("buy and hold"))
			Expect(cfg.Period.Start.Time).To(Equal(time.Date(2020, time.January, 2, 0, 0, 0, 0, time.UTC)))
			Expect(cfg.Account.Type).To(Equal(config.Taxable))
			Expect(cfg.Dividends.Mode).To(Equal(config.DRIP))
		})

		It("rejects unknown keys", func() {
			_, err := config.Parse([]byte(`{"meta": {"name": "x"}, "bogus_key": 1}`))
			Expect(err).To(MatchError(config.ErrConfigurationInvalid))
		})

		It("rejects malformed dates", func() {
			raw := `{"period": {"start": "Jan 2 2020", "end": "2020-12-31"}}`
			_, err := config.Parse([]byte(raw))
			Expect(err).To(MatchError(config.ErrConfigurationInvalid))
		})
	})

	Describe("when validating", func() {
		var cfg *config.StrategyConfig

		BeforeEach(func() {
			var err error
			cfg, err = config.Parse([]byte(minimalConfig))
			Expect(err).To(BeNil())
		})

		It("requires start before end", func() {
			cfg.Period.End = cfg.Period.Start
			Expect(cfg.Validate()).To(MatchError(config.ErrConfigurationInvalid))
		})

		It("requires a non-empty universe", func() {
			cfg.Universe.Symbols = nil
			Expect(cfg.Validate()).To(MatchError(config.ErrConfigurationInvalid))
		})

		It("rejects negative initial cash", func() {
			cfg.InitialCash = -1
			Expect(cfg.Validate()).To(MatchError(config.ErrConfigurationInvalid))
		})

		It("rejects unknown enumerated values", func() {
			cfg.Lots.Method = config.LotMethod("LOWEST")
			Expect(cfg.Validate()).To(MatchError(config.ErrConfigurationInvalid))
		})

		It("requires a drift threshold for drift rebalancing", func() {
			cfg.Rebalancing.Type = config.RebalanceDrift
			Expect(cfg.Validate()).To(MatchError(config.ErrConfigurationInvalid))

			abs := 0.05
			cfg.Rebalancing.Drift.AbsPct = &abs
			Expect(cfg.Validate()).To(BeNil())
		})

		It("requires custom weights for CUSTOM_WEIGHTS sizing", func() {
			cfg.PositionSizing.Method = config.CustomWeights
			Expect(cfg.Validate()).To(MatchError(config.ErrConfigurationInvalid))
		})

		It("rejects custom weights outside the universe", func() {
			cfg.PositionSizing.Method = config.CustomWeights
			cfg.PositionSizing.CustomWeights = map[string]float64{"AGG": 1.0}
			Expect(cfg.Validate()).To(MatchError(config.ErrConfigurationInvalid))
		})

		It("rejects unknown signal indicators", func() {
			cfg.Signals = []config.SignalRule{{Symbol: "SPY", Indicator: "ASTROLOGY", Rule: "ABOVE"}}
			Expect(cfg.Validate()).To(MatchError(config.ErrConfigurationInvalid))
		})
	})

	Describe("when resolving target weights", func() {
		It("splits equally over the universe", func() {
			cfg, err := config.Parse([]byte(minimalConfig))
			Expect(err).To(BeNil())
			cfg.Universe.Symbols = []string{"SPY", "AGG"}

			weights := cfg.TargetWeights()
			Expect(weights).To(HaveLen(2))
			Expect(weights["SPY"]).To(BeNumerically("~", 0.5, 1e-12))
		})

		It("normalizes custom weights that do not sum to one", func() {
			cfg, err := config.Parse([]byte(minimalConfig))
			Expect(err).To(BeNil())
			cfg.Universe.Symbols = []string{"SPY", "AGG"}
			cfg.PositionSizing.Method = config.CustomWeights
			cfg.PositionSizing.CustomWeights = map[string]float64{"SPY": 6, "AGG": 4}

			weights := cfg.TargetWeights()
			Expect(weights["SPY"]).To(BeNumerically("~", 0.6, 1e-12))
			Expect(weights["AGG"]).To(BeNumerically("~", 0.4, 1e-12))
		})
	})

	Describe("when resolving tax rates", func() {
		It("combines federal and state rates per gain class", func() {
			cfg, err := config.Parse([]byte(minimalConfig))
			Expect(err).To(BeNil())
			cfg.Account.Tax.FederalOrdinary = 0.24
			cfg.Account.Tax.FederalLTCG = 0.15
			cfg.Account.Tax.State = 0.05

			shortTerm, longTerm := cfg.TaxRates()
			Expect(shortTerm).To(BeNumerically("~", 0.29, 1e-12))
			Expect(longTerm).To(BeNumerically("~", 0.20, 1e-12))
		})
	})

	Describe("when resolving cadences", func() {
		It("maps rebalance period codes", func() {
			cfg, err := config.Parse([]byte(minimalConfig))
			Expect(err).To(BeNil())
			Expect(string(cfg.RebalanceCadence())).To(Equal("quarterly"))
		})

		It("prefers market_day_everyday over the cadence", func() {
			cfg, err := config.Parse([]byte(minimalConfig))
			Expect(err).To(BeNil())
			cfg.Deposits.MarketDayEveryday = true
			Expect(string(cfg.DepositCadence())).To(Equal("every_market_day"))
		})
	})
})

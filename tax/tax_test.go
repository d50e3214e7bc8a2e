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

package tax_test

import (
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/shopspring/decimal"

	"github.com/foliosim/foliosim/config"
	"github.com/foliosim/foliosim/tax"
)

func money(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

func newConfig(accountType config.AccountType) *config.StrategyConfig {
	return &config.StrategyConfig{
		Account: config.Account{
			Type: accountType,
			Tax: config.TaxParams{
				FederalOrdinary:         0.24,
				FederalLTCG:             0.15,
				State:                   0.05,
				WithdrawalTaxRateForIRA: 0.22,
			},
		},
	}
}

var _ = Describe("Ledger", func() {
	var (
		ledger *tax.Ledger
		when   time.Time
	)

	BeforeEach(func() {
		ledger = tax.NewLedger(newConfig(config.Taxable))
		when = time.Date(2021, time.June, 15, 0, 0, 0, 0, time.UTC)
	})

	Describe("closing a taxable year", func() {
		It("taxes short-term gains at the ordinary rate and long-term at the LTCG rate", func() {
			ledger.RealizedGain(when, true, money(1000))
			ledger.RealizedGain(when, false, money(2000))

			summary := ledger.CloseYear(2021)
			// 1000*0.29 + 2000*0.20
			Expect(summary.TotalTax.InexactFloat64()).To(Equal(690.0))
			Expect(summary.ShortTermGains.InexactFloat64()).To(Equal(1000.0))
			Expect(summary.LongTermGains.InexactFloat64()).To(Equal(2000.0))
		})

		It("taxes qualified dividends at the LTCG rate and ordinary at the ordinary rate", func() {
			ledger.Dividend(when, money(400), money(100))
			ledger.Interest(when, money(50))

			summary := ledger.CloseYear(2021)
			// 400*0.20 + 150*0.29
			Expect(summary.TotalTax.InexactFloat64()).To(Equal(123.5))
		})

		It("offsets losses within class before cross class", func() {
			ledger.RealizedGain(when, true, money(1000))
			ledger.RealizedGain(when, true, money(-400))
			ledger.RealizedGain(when, false, money(500))

			summary := ledger.CloseYear(2021)
			// net short 600*0.29 + long 500*0.20
			Expect(summary.TotalTax.InexactFloat64()).To(Equal(274.0))
		})

		It("uses short-term losses to reduce long-term gains", func() {
			ledger.RealizedGain(when, true, money(-800))
			ledger.RealizedGain(when, false, money(1000))

			summary := ledger.CloseYear(2021)
			// long reduced to 200, taxed at 0.20
			Expect(summary.TotalTax.InexactFloat64()).To(Equal(40.0))
		})

		It("uses long-term losses to reduce short-term gains", func() {
			ledger.RealizedGain(when, false, money(-800))
			ledger.RealizedGain(when, true, money(1000))

			summary := ledger.CloseYear(2021)
			// short reduced to 200, taxed at 0.29
			Expect(summary.TotalTax.InexactFloat64()).To(Equal(58.0))
		})

		It("never taxes a net loss and never reduces dividend taxes with losses", func() {
			ledger.RealizedGain(when, true, money(-5000))
			ledger.Dividend(when, money(100), money(0))

			summary := ledger.CloseYear(2021)
			// qualified 100*0.20 only
			Expect(summary.TotalTax.InexactFloat64()).To(Equal(20.0))
		})

		It("does not carry losses into the next year", func() {
			ledger.RealizedGain(when, true, money(-5000))
			Expect(ledger.CloseYear(2021).TotalTax.IsZero()).To(BeTrue())

			nextYear := when.AddDate(1, 0, 0)
			ledger.RealizedGain(nextYear, true, money(1000))
			summary := ledger.CloseYear(2022)
			Expect(summary.TotalTax.InexactFloat64()).To(Equal(290.0))
		})

		It("counts wash-sale events and adds disallowed losses back", func() {
			ledger.RealizedGain(when, true, money(-1000))
			ledger.WashSaleAdjust(when, true, money(1000))
			ledger.RealizedGain(when, true, money(500))

			summary := ledger.CloseYear(2021)
			Expect(summary.WashSaleCount).To(Equal(1))
			Expect(summary.TotalTax.InexactFloat64()).To(Equal(145.0))
		})

		It("closes an empty year with zeros", func() {
			summary := ledger.CloseYear(2021)
			Expect(summary.TotalTax.IsZero()).To(BeTrue())
			Expect(summary.WashSaleCount).To(BeZero())
		})
	})

	Describe("sheltered accounts", func() {
		It("owes nothing in a Roth IRA", func() {
			ledger = tax.NewLedger(newConfig(config.RothIRA))
			ledger.RealizedGain(when, true, money(10000))
			ledger.Dividend(when, money(500), money(500))

			Expect(ledger.CloseYear(2021).TotalTax.IsZero()).To(BeTrue())
		})

		It("owes nothing in a Traditional IRA during the simulation", func() {
			ledger = tax.NewLedger(newConfig(config.TraditionalIRA))
			ledger.RealizedGain(when, false, money(10000))

			Expect(ledger.CloseYear(2021).TotalTax.IsZero()).To(BeTrue())
		})
	})

	Describe("payment policy", func() {
		It("accumulates an external liability when configured", func() {
			cfg := newConfig(config.Taxable)
			cfg.Account.Tax.PayTaxesFromExternal = true
			ledger = tax.NewLedger(cfg)

			ledger.RealizedGain(when, true, money(1000))
			ledger.CloseYear(2021)
			Expect(ledger.ExternalLiability().InexactFloat64()).To(Equal(290.0))
		})
	})

	Describe("after-tax equivalence", func() {
		It("discounts a Traditional IRA by the withdrawal rate", func() {
			value := tax.AfterTaxEquivalent(newConfig(config.TraditionalIRA), money(100000))
			Expect(value.InexactFloat64()).To(Equal(78000.0))
		})

		It("leaves Roth and taxable values unchanged", func() {
			Expect(tax.AfterTaxEquivalent(newConfig(config.RothIRA), money(100000)).InexactFloat64()).To(Equal(100000.0))
			Expect(tax.AfterTaxEquivalent(newConfig(config.Taxable), money(100000)).InexactFloat64()).To(Equal(100000.0))
		})
	})
})

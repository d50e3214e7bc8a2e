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

package portfolio_test

import (
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/foliosim/foliosim/portfolio"
)

var _ = Describe("Wash sales", func() {
	var (
		sink *recordingSink
		port *portfolio.Portfolio
	)

	BeforeEach(func() {
		cfg := taxableConfig()
		sink = &recordingSink{}
		port = portfolio.New(cfg, sink)
	})

	It("disallows a loss repurchased within the forward window", func() {
		_, err := port.Buy("SPY", 10000, 100, day(2021, time.January, 4))
		Expect(err).To(BeNil())

		_, err = port.SellShares("SPY", 100, 90, day(2021, time.January, 25))
		Expect(err).To(BeNil())

		// repurchase five days later, inside the 30-day window
		_, err = port.Buy("SPY", 9200, 92, day(2021, time.February, 1))
		Expect(err).To(BeNil())

		events := port.RealizedEvents()
		Expect(events).To(HaveLen(1))
		Expect(events[0].Gain.InexactFloat64()).To(Equal(-1000.0))
		Expect(events[0].WashDisallowed.InexactFloat64()).To(Equal(1000.0))

		lots := port.OpenLots()
		Expect(lots).To(HaveLen(1))
		Expect(lots[0].WashedInto).To(BeTrue())
		// $92 original basis plus $10 disallowed loss per share
		Expect(lots[0].BasisPerShare.InexactFloat64()).To(Equal(102.0))
		Expect(lots[0].DisallowedLoss.InexactFloat64()).To(Equal(1000.0))

		Expect(sink.washCount).To(Equal(1))
		Expect(sink.washTotal.InexactFloat64()).To(Equal(1000.0))
		// short-term accumulator nets to zero: -1000 loss + 1000 disallowed
		Expect(sink.shortTerm.InexactFloat64()).To(Equal(0.0))
	})

	It("matches replacement shares bought before the loss sale", func() {
		_, err := port.Buy("SPY", 10000, 100, day(2021, time.January, 4))
		Expect(err).To(BeNil())

		// replacement lot inside the backward window
		_, err = port.Buy("SPY", 4600, 92, day(2021, time.March, 1))
		Expect(err).To(BeNil())

		// sell the original lot at a loss (FIFO)
		_, err = port.SellShares("SPY", 100, 90, day(2021, time.March, 15))
		Expect(err).To(BeNil())

		events := port.RealizedEvents()
		Expect(events).To(HaveLen(1))
		// only 50 of the 100 sold shares have replacements
		Expect(events[0].WashDisallowed.InexactFloat64()).To(Equal(500.0))

		lots := port.OpenLots()
		Expect(lots).To(HaveLen(1))
		Expect(lots[0].WashedInto).To(BeTrue())
		Expect(lots[0].BasisPerShare.InexactFloat64()).To(Equal(102.0))
	})

	It("ignores buys outside the 30-day window", func() {
		_, err := port.Buy("SPY", 10000, 100, day(2021, time.January, 4))
		Expect(err).To(BeNil())

		_, err = port.SellShares("SPY", 100, 90, day(2021, time.January, 25))
		Expect(err).To(BeNil())

		// 31 days later
		_, err = port.Buy("SPY", 9200, 92, day(2021, time.February, 25))
		Expect(err).To(BeNil())

		Expect(port.RealizedEvents()[0].WashDisallowed.IsZero()).To(BeTrue())
		Expect(port.OpenLots()[0].WashedInto).To(BeFalse())
		Expect(sink.washCount).To(Equal(0))
	})

	It("matches on the last day of the window inclusively", func() {
		_, err := port.Buy("SPY", 10000, 100, day(2021, time.January, 4))
		Expect(err).To(BeNil())

		_, err = port.SellShares("SPY", 100, 90, day(2021, time.January, 25))
		Expect(err).To(BeNil())

		// exactly 30 days after the sale
		_, err = port.Buy("SPY", 9200, 92, day(2021, time.February, 24))
		Expect(err).To(BeNil())

		Expect(port.RealizedEvents()[0].WashDisallowed.InexactFloat64()).To(Equal(1000.0))
	})

	It("never disallows more than the loss that triggered it", func() {
		_, err := port.Buy("SPY", 10000, 100, day(2021, time.January, 4))
		Expect(err).To(BeNil())

		_, err = port.SellShares("SPY", 100, 90, day(2021, time.January, 25))
		Expect(err).To(BeNil())

		// buy twice the sold quantity; only 100 shares can match
		_, err = port.Buy("SPY", 18400, 92, day(2021, time.February, 1))
		Expect(err).To(BeNil())

		Expect(port.RealizedEvents()[0].WashDisallowed.InexactFloat64()).To(Equal(1000.0))
		Expect(sink.washTotal.InexactFloat64()).To(Equal(1000.0))
	})

	It("applies DRIP purchases to open windows", func() {
		// acquired well before the sale so only the DRIP lot can match
		_, err := port.Buy("SPY", 10000, 100, day(2020, time.December, 1))
		Expect(err).To(BeNil())
		_, err = port.Buy("TLT", 10000, 100, day(2020, time.December, 1))
		Expect(err).To(BeNil())

		_, err = port.SellShares("SPY", 50, 90, day(2021, time.January, 25))
		Expect(err).To(BeNil())

		// DRIP on the remaining SPY shares lands inside the window
		_, err = port.ApplyDividend("SPY", 2.0, 1.0, 90, "DRIP", day(2021, time.February, 5))
		Expect(err).To(BeNil())

		Expect(port.RealizedEvents()[0].WashDisallowed.IsPositive()).To(BeTrue())
		Expect(sink.washCount).To(Equal(1))
	})

	It("skips the wash rule in non-taxable accounts", func() {
		cfg := taxableConfig()
		cfg.Account.Type = "Roth-IRA"
		port = portfolio.New(cfg, sink)

		_, err := port.Buy("SPY", 10000, 100, day(2021, time.January, 4))
		Expect(err).To(BeNil())
		_, err = port.SellShares("SPY", 100, 90, day(2021, time.January, 25))
		Expect(err).To(BeNil())
		_, err = port.Buy("SPY", 9000, 92, day(2021, time.February, 1))
		Expect(err).To(BeNil())

		Expect(port.RealizedEvents()[0].WashDisallowed.IsZero()).To(BeTrue())
		Expect(sink.washCount).To(Equal(0))
	})
})

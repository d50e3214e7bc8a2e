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

package metrics_test

import (
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/foliosim/foliosim/metrics"
)

func day(year int, month time.Month, d int) time.Time {
	return time.Date(year, month, d, 0, 0, 0, 0, time.UTC)
}

// series builds an equity curve on consecutive calendar days.
func series(start time.Time, values ...float64) []*metrics.EquityPoint {
	points := make([]*metrics.EquityPoint, len(values))
	for i, v := range values {
		points[i] = &metrics.EquityPoint{Date: start.AddDate(0, 0, i), Value: v}
	}
	return points
}

// fromReturns builds an equity curve by compounding daily returns.
func fromReturns(start time.Time, initial float64, returns []float64) []*metrics.EquityPoint {
	points := make([]*metrics.EquityPoint, 0, len(returns)+1)
	points = append(points, &metrics.EquityPoint{Date: start, Value: initial})
	v := initial
	for i, r := range returns {
		v *= 1 + r
		points = append(points, &metrics.EquityPoint{Date: start.AddDate(0, 0, i+1), Value: v})
	}
	return points
}

var _ = Describe("Metrics", func() {
	Describe("time-weighted return", func() {
		It("chains daily returns", func() {
			points := series(day(2021, time.January, 4), 100, 110, 99)
			summary := metrics.Compute(points, nil, nil, 0)
			Expect(summary.TWR).To(BeNumerically("~", -0.01, 1e-12))
		})

		It("strips external cashflows from the day's return", func() {
			points := series(day(2021, time.January, 4), 100, 210)
			points[1].Cashflow = 100
			returns := metrics.DailyReturns(points)
			Expect(returns).To(HaveLen(1))
			Expect(returns[0]).To(BeNumerically("~", 0.10, 1e-12))
		})

		It("returns an empty summary for fewer than two points", func() {
			points := series(day(2021, time.January, 4), 100)
			summary := metrics.Compute(points, nil, nil, 0)
			Expect(summary.TWR).To(Equal(0.0))
			Expect(summary.CAGR).To(BeNil())
			Expect(summary.SharpeRatio).To(BeNil())
			Expect(summary.MaxDrawdown).To(BeNil())
		})
	})

	Describe("risk statistics", func() {
		It("leaves Sharpe null when volatility is zero", func() {
			points := series(day(2021, time.January, 4), 100, 110, 121)
			summary := metrics.Compute(points, nil, nil, 0)
			Expect(summary.AnnualizedVolatility).ToNot(BeNil())
			Expect(*summary.AnnualizedVolatility).To(BeNumerically("~", 0, 1e-12))
			Expect(summary.SharpeRatio).To(BeNil())
		})

		It("leaves Sortino null when no return is below the risk-free rate", func() {
			points := series(day(2021, time.January, 4), 100, 101, 103)
			summary := metrics.Compute(points, nil, nil, 0)
			Expect(summary.SortinoRatio).To(BeNil())
		})

		It("computes Sortino from downside deviation only", func() {
			points := series(day(2021, time.January, 4), 100, 110, 99, 105)
			summary := metrics.Compute(points, nil, nil, 0)
			Expect(summary.SortinoRatio).ToNot(BeNil())
		})
	})

	Describe("drawdowns", func() {
		It("finds the deepest peak-to-trough loss and its duration", func() {
			points := series(day(2021, time.January, 4), 100, 120, 90, 95, 130)
			summary := metrics.Compute(points, nil, nil, 0)
			Expect(summary.MaxDrawdown).ToNot(BeNil())
			Expect(*summary.MaxDrawdown).To(BeNumerically("~", -0.25, 1e-12))
			// peak Jan 5, recovered Jan 8
			Expect(*summary.MaxDrawdownDays).To(Equal(3))
		})

		It("measures an unrecovered drawdown to the end of the period", func() {
			points := series(day(2021, time.January, 4), 100, 120, 90, 95, 96)
			summary := metrics.Compute(points, nil, nil, 0)
			Expect(*summary.MaxDrawdown).To(BeNumerically("~", -0.25, 1e-12))
			Expect(*summary.MaxDrawdownDays).To(Equal(3))
		})

		It("reports zero drawdown for a monotone series", func() {
			points := series(day(2021, time.January, 4), 100, 101, 102)
			summary := metrics.Compute(points, nil, nil, 0)
			Expect(*summary.MaxDrawdown).To(Equal(0.0))
			Expect(*summary.MaxDrawdownDays).To(Equal(0))
		})
	})

	Describe("calendar buckets", func() {
		It("groups returns by month", func() {
			points := []*metrics.EquityPoint{
				{Date: day(2021, time.January, 29), Value: 100},
				{Date: day(2021, time.January, 30), Value: 110},
				{Date: day(2021, time.February, 1), Value: 99},
				{Date: day(2021, time.February, 2), Value: 108.9},
			}
			summary := metrics.Compute(points, nil, nil, 0)
			Expect(*summary.BestMonth).To(BeNumerically("~", 0.10, 1e-9))
			Expect(*summary.WorstMonth).To(BeNumerically("~", -0.01, 1e-9))
			Expect(*summary.HitRatio).To(BeNumerically("~", 0.5, 1e-12))
			// both months fall in Q1, so the single quarter chains all of it
			Expect(*summary.BestQuarter).To(BeNumerically("~", 0.089, 1e-9))
			Expect(*summary.BestQuarter).To(Equal(*summary.WorstQuarter))
		})
	})

	Describe("internal rate of return", func() {
		It("recovers the rate of a single flow over one year", func() {
			flows := []metrics.Cashflow{{Date: day(2020, time.January, 1), Amount: 1000}}
			irr, err := metrics.IRR(flows, 1100, day(2020, time.January, 1), day(2020, time.December, 31))
			Expect(err).To(BeNil())
			Expect(irr).To(BeNumerically("~", 0.10, 1e-6))
		})

		It("annualizes a doubling over two years", func() {
			flows := []metrics.Cashflow{{Date: day(2020, time.January, 1), Amount: 1000}}
			irr, err := metrics.IRR(flows, 2000, day(2020, time.January, 1), day(2021, time.December, 31))
			Expect(err).To(BeNil())
			Expect(irr).To(BeNumerically("~", 0.41421356, 1e-6))
		})

		It("fails without any flows", func() {
			_, err := metrics.IRR(nil, 1000, day(2020, time.January, 1), day(2020, time.December, 31))
			Expect(err).To(MatchError(metrics.ErrNoBracket))
		})
	})

	Describe("benchmark statistics", func() {
		It("regresses portfolio excess returns on benchmark excess returns", func() {
			bench := []float64{0.01, -0.02, 0.03, 0.01, -0.01}
			port := make([]float64, len(bench))
			for i, r := range bench {
				port[i] = 2 * r
			}

			start := day(2021, time.January, 4)
			points := fromReturns(start, 100, port)
			benchPoints := fromReturns(start, 100, bench)

			summary := metrics.Compute(points, nil, benchPoints, 0)
			Expect(summary.Beta).ToNot(BeNil())
			Expect(*summary.Beta).To(BeNumerically("~", 2.0, 1e-9))
			Expect(*summary.Alpha).To(BeNumerically("~", 0.0, 1e-9))
			Expect(summary.TrackingError).ToNot(BeNil())
			Expect(*summary.TrackingError).To(BeNumerically(">", 0))
			Expect(summary.InformationRatio).ToNot(BeNil())
		})

		It("leaves benchmark statistics null without a benchmark", func() {
			points := series(day(2021, time.January, 4), 100, 110, 99)
			summary := metrics.Compute(points, nil, nil, 0)
			Expect(summary.Alpha).To(BeNil())
			Expect(summary.Beta).To(BeNil())
			Expect(summary.TrackingError).To(BeNil())
			Expect(summary.InformationRatio).To(BeNil())
		})
	})
})

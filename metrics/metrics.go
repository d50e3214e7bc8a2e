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

package metrics

import (
	"math"
	"time"

	"gonum.org/v1/gonum/stat"
)

const (
	tradingDaysPerYear = 252
	irrTolerance       = 1e-8
	irrBracketLow      = -0.9999
	irrBracketHigh     = 10.0
)

// DailyReturns fills each point's DailyReturn from the cashflow-adjusted
// identity r_t = (V_t - C_t) / V_{t-1} - 1 and returns the series for
// days 1..n-1.
func DailyReturns(points []*EquityPoint) []float64 {
	if len(points) < 2 {
		return nil
	}

	returns := make([]float64, 0, len(points)-1)
	for i := 1; i < len(points); i++ {
		prev := points[i-1].Value
		r := 0.0
		if prev != 0 {
			r = (points[i].Value-points[i].Cashflow)/prev - 1
		}
		points[i].DailyReturn = r
		returns = append(returns, r)
	}
	return returns
}

// Compute builds the full metric block. The benchmark series may be nil;
// benchmark-relative statistics are then null. riskFree is an annual
// rate, zero unless configured.
func Compute(points []*EquityPoint, flows []Cashflow, benchmark []*EquityPoint, riskFree float64) *Summary {
	summary := &Summary{}
	if len(points) < 2 {
		return summary
	}

	returns := DailyReturns(points)
	summary.TWR = chain(returns)

	totalDays := points[len(points)-1].Date.Sub(points[0].Date).Hours() / 24
	if totalDays >= 1 {
		summary.CAGR = ptr(math.Pow(1+summary.TWR, 365/totalDays) - 1)
	}

	dailyRF := riskFree / tradingDaysPerYear
	excess := make([]float64, len(returns))
	for i, r := range returns {
		excess[i] = r - dailyRF
	}

	vol := stat.StdDev(returns, nil) * math.Sqrt(tradingDaysPerYear)
	if !math.IsNaN(vol) {
		summary.AnnualizedVolatility = ptr(vol)
	}

	meanExcess := stat.Mean(excess, nil)
	if summary.AnnualizedVolatility != nil && vol > 0 {
		summary.SharpeRatio = ptr(meanExcess * tradingDaysPerYear / vol)
	}

	if downside := downsideDeviation(excess); downside > 0 {
		summary.SortinoRatio = ptr(meanExcess * tradingDaysPerYear / downside)
	}

	maxDD, ddDays := maxDrawdown(points)
	summary.MaxDrawdown = ptr(maxDD)
	summary.MaxDrawdownDays = &ddDays
	if summary.CAGR != nil && maxDD < 0 {
		summary.CalmarRatio = ptr(*summary.CAGR / math.Abs(maxDD))
	}

	monthly := periodReturns(points, func(t time.Time) int {
		return t.Year()*100 + int(t.Month())
	})
	if len(monthly) > 0 {
		positive := 0
		best, worst := monthly[0], monthly[0]
		for _, r := range monthly {
			if r > 0 {
				positive++
			}
			best = math.Max(best, r)
			worst = math.Min(worst, r)
		}
		summary.HitRatio = ptr(float64(positive) / float64(len(monthly)))
		summary.BestMonth = ptr(best)
		summary.WorstMonth = ptr(worst)
	}

	quarterly := periodReturns(points, func(t time.Time) int {
		return t.Year()*10 + (int(t.Month())-1)/3
	})
	if len(quarterly) > 0 {
		best, worst := quarterly[0], quarterly[0]
		for _, r := range quarterly {
			best = math.Max(best, r)
			worst = math.Min(worst, r)
		}
		summary.BestQuarter = ptr(best)
		summary.WorstQuarter = ptr(worst)
	}

	if irr, err := IRR(flows, points[len(points)-1].Value, points[0].Date, points[len(points)-1].Date); err == nil {
		summary.IRR = ptr(irr)
	}

	if len(benchmark) == len(points) && len(benchmark) >= 2 {
		computeBenchmarkStats(summary, excess, benchmark, dailyRF)
	}

	return summary
}

func computeBenchmarkStats(summary *Summary, excess []float64, benchmark []*EquityPoint, dailyRF float64) {
	benchReturns := DailyReturns(benchmark)
	benchExcess := make([]float64, len(benchReturns))
	active := make([]float64, len(benchReturns))
	for i, r := range benchReturns {
		benchExcess[i] = r - dailyRF
		active[i] = excess[i] - benchExcess[i]
	}

	alpha, beta := stat.LinearRegression(benchExcess, excess, nil, false)
	if !math.IsNaN(beta) {
		summary.Alpha = ptr(alpha * tradingDaysPerYear)
		summary.Beta = ptr(beta)
	}

	te := stat.StdDev(active, nil) * math.Sqrt(tradingDaysPerYear)
	if !math.IsNaN(te) && te > 0 {
		summary.TrackingError = ptr(te)
		summary.InformationRatio = ptr(stat.Mean(active, nil) * tradingDaysPerYear / te)
	}
}

// IRR solves for the rate where the NPV of all external flows plus the
// terminal value is zero. Flows are from the investor's perspective:
// deposits are money out of pocket. The bracketed root is refined with
// Newton steps and is accurate to 1e-8.
func IRR(flows []Cashflow, terminalValue float64, start, end time.Time) (float64, error) {
	if len(flows) == 0 || !end.After(start) {
		return 0, ErrNoBracket
	}

	totalYears := end.Sub(start).Hours() / 24 / 365

	npv := func(rate float64) float64 {
		sum := 0.0
		for _, flow := range flows {
			years := flow.Date.Sub(start).Hours() / 24 / 365
			sum -= flow.Amount / math.Pow(1+rate, years)
		}
		sum += terminalValue / math.Pow(1+rate, totalYears)
		return sum
	}

	root, err := fsolve(npv, irrBracketLow, irrBracketHigh, irrTolerance)
	if err != nil {
		return 0, err
	}
	return newtonRefine(npv, root, irrTolerance), nil
}

func chain(returns []float64) float64 {
	growth := 1.0
	for _, r := range returns {
		growth *= 1 + r
	}
	return growth - 1
}

// downsideDeviation is the population standard deviation of the negative
// excess returns only.
func downsideDeviation(excess []float64) float64 {
	sumSq := 0.0
	n := 0
	for _, r := range excess {
		if r < 0 {
			sumSq += r * r
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return math.Sqrt(sumSq/float64(n)) * math.Sqrt(tradingDaysPerYear)
}

// maxDrawdown returns the deepest peak-to-trough loss and the number of
// calendar days from the peak to recovery (or to period end when the
// drawdown never recovers).
func maxDrawdown(points []*EquityPoint) (float64, int) {
	peak := points[0].Value
	peakDate := points[0].Date

	maxDD := 0.0
	var ddPeakDate time.Time
	ddDays := 0
	recovered := true

	for _, point := range points {
		if point.Value >= peak {
			if !recovered {
				// recovery of the deepest drawdown so far
				ddDays = int(point.Date.Sub(ddPeakDate).Hours() / 24)
				recovered = true
			}
			peak = point.Value
			peakDate = point.Date
			continue
		}

		dd := point.Value/peak - 1
		if dd < maxDD {
			maxDD = dd
			ddPeakDate = peakDate
			recovered = false
		}
	}

	if !recovered {
		last := points[len(points)-1].Date
		ddDays = int(last.Sub(ddPeakDate).Hours() / 24)
	}
	return maxDD, ddDays
}

// periodReturns chains daily returns within each bucket, in date order.
func periodReturns(points []*EquityPoint, bucket func(time.Time) int) []float64 {
	if len(points) < 2 {
		return nil
	}

	res := make([]float64, 0, 16)
	current := bucket(points[1].Date)
	growth := 1.0
	for i := 1; i < len(points); i++ {
		b := bucket(points[i].Date)
		if b != current {
			res = append(res, growth-1)
			growth = 1.0
			current = b
		}
		growth *= 1 + points[i].DailyReturn
	}
	res = append(res, growth-1)
	return res
}

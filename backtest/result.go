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
	"fmt"

	json "github.com/goccy/go-json"
	"github.com/rs/zerolog/log"
	"github.com/zeebo/blake3"

	"github.com/foliosim/foliosim/config"
	"github.com/foliosim/foliosim/metrics"
	"github.com/foliosim/foliosim/portfolio"
	"github.com/foliosim/foliosim/tax"
)

// Diagnostics are run counters surfaced alongside the result.
type Diagnostics struct {
	TotalDays      int `json:"totalDays"`
	Rebalances     int `json:"rebalances"`
	TradesExecuted int `json:"tradesExecuted"`
	Deposits       int `json:"deposits"`
}

// Result is the full output bundle of one simulation.
type Result struct {
	Config *config.StrategyConfig `json:"config"`

	// Partial is set when the host cancelled or a fatal error aborted
	// the loop; the series covers completed days only.
	Partial bool `json:"partial"`

	Equity           []*metrics.EquityPoint             `json:"equity"`
	Metrics          *metrics.Summary                   `json:"metrics"`
	BenchmarkEquity  map[string][]*metrics.EquityPoint  `json:"benchmarkEquity,omitempty"`
	BenchmarkMetrics map[string]*metrics.Summary        `json:"benchmarkMetrics,omitempty"`
	Trades           []*portfolio.TradeRecord           `json:"trades"`
	Positions        []*portfolio.Position              `json:"positions"`
	OpenLots         []*portfolio.Lot                   `json:"openLots"`
	TaxYears         []*tax.YearSummary                 `json:"taxYears"`
	Realized         []*portfolio.RealizedEvent         `json:"realized"`
	Warnings         []Warning                          `json:"warnings"`
	Diagnostics      Diagnostics                        `json:"diagnostics"`

	// FinalValue is the last equity point's value; AfterTaxValue applies
	// the IRA withdrawal equivalence.
	FinalValue    float64 `json:"finalValue"`
	AfterTaxValue float64 `json:"afterTaxValue"`

	// TotalDeposited is the sum of credited deposits, excluding the
	// initial cash. ExternalTaxLiability is the cumulative tax settled
	// outside the portfolio when pay_taxes_from_external is set.
	TotalDeposited       float64 `json:"totalDeposited"`
	ExternalTaxLiability float64 `json:"externalTaxLiability"`

	// Checksum fingerprints the deterministic portion of the result. Two
	// runs of the same config against the same data match byte for byte.
	Checksum string `json:"checksum"`
}

// Seal computes the result checksum over the equity series, trades, and
// tax summaries.
func (r *Result) Seal() {
	core := struct {
		Equity   []*metrics.EquityPoint   `json:"equity"`
		Trades   []*portfolio.TradeRecord `json:"trades"`
		TaxYears []*tax.YearSummary       `json:"taxYears"`
	}{r.Equity, r.Trades, r.TaxYears}

	raw, err := json.Marshal(core)
	if err != nil {
		log.Warn().Stack().Err(err).Msg("could not serialize result for checksum")
		return
	}
	sum := blake3.Sum256(raw)
	r.Checksum = fmt.Sprintf("%x", sum)
}

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

// Package tax accumulates realized gains, dividends, and interest per
// calendar year and computes the year-end liability. Losses offset gains
// within their class first, then cross class with short-term losses
// reducing long-term gains; unused losses do not carry into later years.
package tax

import (
	"sort"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/foliosim/foliosim/config"
)

// YearSummary is the closed record for one tax year.
type YearSummary struct {
	Year              int             `json:"year"`
	ShortTermGains    decimal.Decimal `json:"shortTermGains"`
	LongTermGains     decimal.Decimal `json:"longTermGains"`
	QualifiedDividend decimal.Decimal `json:"qualifiedDividends"`
	OrdinaryDividend  decimal.Decimal `json:"ordinaryDividends"`
	Interest          decimal.Decimal `json:"interest"`
	TotalTax          decimal.Decimal `json:"totalTax"`
	WashSaleCount     int             `json:"washSaleCount"`
}

type yearAccumulator struct {
	shortTerm decimal.Decimal
	longTerm  decimal.Decimal
	qualified decimal.Decimal
	ordinary  decimal.Decimal
	interest  decimal.Decimal
	washCount int
}

// Ledger implements the portfolio's tax sink. It owns the per-year
// accumulators and the closed summaries; nothing else mutates them.
type Ledger struct {
	accountType config.AccountType
	tax         config.TaxParams

	// shortRate and longRate are the combined federal+state rates for
	// the two gain classes.
	shortRate decimal.Decimal
	longRate  decimal.Decimal

	years     map[int]*yearAccumulator
	summaries []*YearSummary

	// externalLiability accumulates taxes paid from outside the
	// portfolio when pay_taxes_from_external is set.
	externalLiability decimal.Decimal
}

// NewLedger builds a ledger for the account described by cfg.
func NewLedger(cfg *config.StrategyConfig) *Ledger {
	shortTerm, longTerm := cfg.TaxRates()
	return &Ledger{
		accountType: cfg.Account.Type,
		tax:         cfg.Account.Tax,
		shortRate:   decimal.NewFromFloat(shortTerm),
		longRate:    decimal.NewFromFloat(longTerm),
		years:       make(map[int]*yearAccumulator),
	}
}

func (l *Ledger) year(date time.Time) *yearAccumulator {
	acc, ok := l.years[date.Year()]
	if !ok {
		acc = &yearAccumulator{}
		l.years[date.Year()] = acc
	}
	return acc
}

// RealizedGain records a realized gain (or loss, negative) from a sell.
func (l *Ledger) RealizedGain(date time.Time, shortTerm bool, amount decimal.Decimal) {
	acc := l.year(date)
	if shortTerm {
		acc.shortTerm = acc.shortTerm.Add(amount)
	} else {
		acc.longTerm = acc.longTerm.Add(amount)
	}
}

// WashSaleAdjust adds a disallowed loss back to the triggering class and
// counts the event.
func (l *Ledger) WashSaleAdjust(date time.Time, shortTerm bool, disallowed decimal.Decimal) {
	acc := l.year(date)
	acc.washCount++
	if shortTerm {
		acc.shortTerm = acc.shortTerm.Add(disallowed)
	} else {
		acc.longTerm = acc.longTerm.Add(disallowed)
	}
}

// Dividend records the qualified and ordinary portions of a dividend.
func (l *Ledger) Dividend(date time.Time, qualified, ordinary decimal.Decimal) {
	acc := l.year(date)
	acc.qualified = acc.qualified.Add(qualified)
	acc.ordinary = acc.ordinary.Add(ordinary)
}

// Interest records cash-yield interest income.
func (l *Ledger) Interest(date time.Time, amount decimal.Decimal) {
	acc := l.year(date)
	acc.interest = acc.interest.Add(amount)
}

// CloseYear computes the liability for the year and freezes its summary.
// IRA, Roth, and 529 accounts owe nothing during the simulation.
func (l *Ledger) CloseYear(year int) *YearSummary {
	acc, ok := l.years[year]
	if !ok {
		acc = &yearAccumulator{}
	}

	summary := &YearSummary{
		Year:              year,
		ShortTermGains:    acc.shortTerm,
		LongTermGains:     acc.longTerm,
		QualifiedDividend: acc.qualified,
		OrdinaryDividend:  acc.ordinary,
		Interest:          acc.interest,
		WashSaleCount:     acc.washCount,
	}

	if l.accountType.Taxable() {
		summary.TotalTax = l.computeTax(acc)
	}

	if l.tax.PayTaxesFromExternal {
		l.externalLiability = l.externalLiability.Add(summary.TotalTax)
	}

	l.summaries = append(l.summaries, summary)
	sort.Slice(l.summaries, func(i, j int) bool {
		return l.summaries[i].Year < l.summaries[j].Year
	})

	log.Debug().Int("Year", year).Str("TotalTax", summary.TotalTax.String()).Msg("closed tax year")
	return summary
}

// computeTax applies the loss-offset ordering: within class first (the
// accumulators are already net), then short-term losses reduce long-term
// gains and vice versa. Dividends and interest are never reduced by
// capital losses.
func (l *Ledger) computeTax(acc *yearAccumulator) decimal.Decimal {
	short := acc.shortTerm
	long := acc.longTerm

	if short.IsNegative() && long.IsPositive() {
		long = long.Add(short)
		short = decimal.Zero
		if long.IsNegative() {
			long = decimal.Zero
		}
	} else if long.IsNegative() && short.IsPositive() {
		short = short.Add(long)
		long = decimal.Zero
		if short.IsNegative() {
			short = decimal.Zero
		}
	}
	if short.IsNegative() {
		short = decimal.Zero
	}
	if long.IsNegative() {
		long = decimal.Zero
	}

	tax := short.Mul(l.shortRate)
	tax = tax.Add(long.Add(acc.qualified).Mul(l.longRate))
	tax = tax.Add(acc.ordinary.Add(acc.interest).Mul(l.shortRate))
	return tax.Round(2)
}

// Summaries returns the closed years in ascending order.
func (l *Ledger) Summaries() []*YearSummary {
	return l.summaries
}

// ExternalLiability is the cumulative tax paid from outside the
// portfolio.
func (l *Ledger) ExternalLiability() decimal.Decimal {
	return l.externalLiability
}

// AfterTaxEquivalent values a Traditional IRA as if withdrawn at the
// configured rate. Roth withdrawals are untaxed; every other account
// type is reported as-is.
func AfterTaxEquivalent(cfg *config.StrategyConfig, value decimal.Decimal) decimal.Decimal {
	if cfg.Account.Type != config.TraditionalIRA {
		return value
	}
	rate := decimal.NewFromFloat(cfg.Account.Tax.WithdrawalTaxRateForIRA)
	return value.Mul(decimal.NewFromInt(1).Sub(rate)).Round(2)
}

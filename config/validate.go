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

package config

import (
	"errors"
	"fmt"
	"math"

	"github.com/foliosim/foliosim/calendar"
)

var ErrConfigurationInvalid = errors.New("configuration invalid")

func invalid(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrConfigurationInvalid, fmt.Sprintf(format, args...))
}

// CalendarPeriodCadence maps the single-letter rebalance period codes to
// calendar cadences.
var CalendarPeriodCadence = map[string]calendar.Cadence{
	"D": calendar.Daily,
	"W": calendar.Weekly,
	"M": calendar.Monthly,
	"Q": calendar.Quarterly,
	"A": calendar.Annually,
}

var depositCadences = map[string]calendar.Cadence{
	"daily":            calendar.Daily,
	"weekly":           calendar.Weekly,
	"monthly":          calendar.Monthly,
	"quarterly":        calendar.Quarterly,
	"yearly":           calendar.Annually,
	"every_market_day": calendar.EveryMarketDay,
}

// DepositCadence resolves the configured deposit cadence.
func (cfg *StrategyConfig) DepositCadence() calendar.Cadence {
	if cfg.Deposits.MarketDayEveryday {
		return calendar.EveryMarketDay
	}
	return depositCadences[cfg.Deposits.Cadence]
}

// RebalanceCadence resolves the configured calendar rebalance period.
func (cfg *StrategyConfig) RebalanceCadence() calendar.Cadence {
	return CalendarPeriodCadence[cfg.Rebalancing.Calendar.Period]
}

// Validate checks the configuration record for internal consistency.
// All failures are fatal before the simulation starts.
func (cfg *StrategyConfig) Validate() error {
	if cfg.Period.Start.IsZero() || cfg.Period.End.IsZero() {
		return invalid("period start and end are required")
	}
	if !cfg.Period.Start.Before(cfg.Period.End.Time) {
		return invalid("period start %s must be before end %s",
			cfg.Period.Start.Format(dateLayout), cfg.Period.End.Format(dateLayout))
	}
	if len(cfg.Universe.Symbols) == 0 {
		return invalid("universe must contain at least one symbol")
	}
	if cfg.InitialCash < 0 {
		return invalid("initial_cash must not be negative")
	}

	switch cfg.Account.Type {
	case Taxable, TraditionalIRA, RothIRA, Plan529:
	default:
		return invalid("unknown account type %q", cfg.Account.Type)
	}

	if _, ok := depositCadences[cfg.Deposits.Cadence]; !ok {
		return invalid("unknown deposit cadence %q", cfg.Deposits.Cadence)
	}
	if cfg.Deposits.Amount < 0 {
		return invalid("deposit amount must not be negative")
	}

	switch cfg.Dividends.Mode {
	case DRIP, Cash:
	default:
		return invalid("unknown dividend mode %q", cfg.Dividends.Mode)
	}

	switch cfg.Rebalancing.Type {
	case RebalanceCalendar, RebalanceDrift, RebalanceBoth, RebalanceCashflow:
	default:
		return invalid("unknown rebalancing type %q", cfg.Rebalancing.Type)
	}
	if _, ok := CalendarPeriodCadence[cfg.Rebalancing.Calendar.Period]; !ok {
		return invalid("unknown rebalance period %q", cfg.Rebalancing.Calendar.Period)
	}
	if cfg.Rebalancing.Type == RebalanceDrift || cfg.Rebalancing.Type == RebalanceBoth {
		if cfg.Rebalancing.Drift.AbsPct == nil && cfg.Rebalancing.Drift.RelPct == nil {
			return invalid("drift rebalancing requires abs_pct or rel_pct")
		}
		if cfg.Rebalancing.Drift.AbsPct != nil && *cfg.Rebalancing.Drift.AbsPct < 0 {
			return invalid("drift abs_pct must not be negative")
		}
		if cfg.Rebalancing.Drift.RelPct != nil && *cfg.Rebalancing.Drift.RelPct < 0 {
			return invalid("drift rel_pct must not be negative")
		}
	}

	switch cfg.Orders.Timing {
	case MarketOnOpen, MarketOnClose:
	default:
		return invalid("unknown order timing %q", cfg.Orders.Timing)
	}

	switch cfg.Lots.Method {
	case FIFO, LIFO, HIFO:
	default:
		return invalid("unknown lot method %q", cfg.Lots.Method)
	}

	if cfg.Frictions.CommissionPerTrade < 0 || cfg.Frictions.SlippageBps < 0 {
		return invalid("frictions must not be negative")
	}

	qualified := cfg.Account.Tax.QualifiedDividendPct
	if qualified < 0 || qualified > 1 {
		return invalid("qualified_dividend_pct must be within [0, 1]")
	}

	switch cfg.PositionSizing.Method {
	case EqualWeight:
	case CustomWeights:
		if len(cfg.PositionSizing.CustomWeights) == 0 {
			return invalid("CUSTOM_WEIGHTS requires custom_weights")
		}
		total := 0.0
		for symbol, weight := range cfg.PositionSizing.CustomWeights {
			if weight < 0 {
				return invalid("custom weight for %s must not be negative", symbol)
			}
			if !contains(cfg.Universe.Symbols, symbol) {
				return invalid("custom weight symbol %s is not in the universe", symbol)
			}
			total += weight
		}
		if total <= 0 {
			return invalid("custom weights must sum to a positive value")
		}
	default:
		return invalid("unknown position sizing method %q", cfg.PositionSizing.Method)
	}

	for idx := range cfg.Signals {
		if err := cfg.Signals[idx].validate(cfg.Universe.Symbols); err != nil {
			return err
		}
	}

	return nil
}

// TargetWeights resolves the position-sizing policy to a normalized
// weight per universe symbol.
func (cfg *StrategyConfig) TargetWeights() map[string]float64 {
	weights := make(map[string]float64, len(cfg.Universe.Symbols))

	switch cfg.PositionSizing.Method {
	case CustomWeights:
		total := 0.0
		for _, weight := range cfg.PositionSizing.CustomWeights {
			total += weight
		}
		for symbol, weight := range cfg.PositionSizing.CustomWeights {
			weights[symbol] = weight / total
		}
	default:
		equal := 1.0 / float64(len(cfg.Universe.Symbols))
		for _, symbol := range cfg.Universe.Symbols {
			weights[symbol] = equal
		}
	}

	return weights
}

// TaxRates returns the combined short-term and long-term rates.
func (cfg *StrategyConfig) TaxRates() (shortTerm, longTerm float64) {
	tax := cfg.Account.Tax
	return tax.FederalOrdinary + tax.State, tax.FederalLTCG + tax.State
}

func (rule *SignalRule) validate(universe []string) error {
	if !contains(universe, rule.Symbol) {
		return invalid("signal symbol %s is not in the universe", rule.Symbol)
	}

	switch rule.Indicator {
	case "SMA", "RSI", "MOMENTUM", "BREAKOUT_52W", "BOLLINGER":
		if rule.Period <= 0 && rule.Indicator != "BREAKOUT_52W" {
			return invalid("signal %s/%s requires a positive period", rule.Symbol, rule.Indicator)
		}
	case "SMA_CROSS", "EMA_CROSS", "MACD":
		if rule.Fast <= 0 || rule.Slow <= 0 || rule.Fast >= rule.Slow {
			return invalid("signal %s/%s requires 0 < fast < slow", rule.Symbol, rule.Indicator)
		}
	default:
		return invalid("unknown signal indicator %q", rule.Indicator)
	}

	switch rule.Rule {
	case "CROSS_UP", "CROSS_DOWN", "ABOVE", "BELOW":
	default:
		return invalid("unknown signal rule %q", rule.Rule)
	}

	if math.IsNaN(rule.Threshold) {
		return invalid("signal threshold must be a number")
	}
	return nil
}

func contains(list []string, want string) bool {
	for _, item := range list {
		if item == want {
			return true
		}
	}
	return false
}

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

// Package config defines the strategy configuration record. The JSON
// schema is fully enumerated; unknown keys are rejected at parse time.
package config

import (
	"bytes"
	"fmt"
	"time"

	json "github.com/goccy/go-json"
)

// Date is a calendar day serialized as "2006-01-02".
type Date struct {
	time.Time
}

const dateLayout = "2006-01-02"

func (d *Date) UnmarshalJSON(raw []byte) error {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return err
	}
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return fmt.Errorf("%w: date %q", ErrConfigurationInvalid, s)
	}
	d.Time = t
	return nil
}

func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.Format(dateLayout))
}

type AccountType string

const (
	Taxable        AccountType = "Taxable"
	TraditionalIRA AccountType = "Traditional-IRA"
	RothIRA        AccountType = "Roth-IRA"
	Plan529        AccountType = "529-Plan"
)

// Taxable reports whether realized gains and dividends are taxed during
// the simulation.
func (a AccountType) Taxable() bool {
	return a == Taxable
}

type DividendMode string

const (
	DRIP DividendMode = "DRIP"
	Cash DividendMode = "CASH"
)

type RebalanceType string

const (
	RebalanceCalendar RebalanceType = "calendar"
	RebalanceDrift    RebalanceType = "drift"
	RebalanceBoth     RebalanceType = "both"
	RebalanceCashflow RebalanceType = "cashflow_only"
)

type OrderTiming string

const (
	MarketOnOpen  OrderTiming = "MOO"
	MarketOnClose OrderTiming = "MOC"
)

type LotMethod string

const (
	FIFO LotMethod = "FIFO"
	LIFO LotMethod = "LIFO"
	HIFO LotMethod = "HIFO"
)

type SizingMethod string

const (
	EqualWeight   SizingMethod = "EQUAL_WEIGHT"
	CustomWeights SizingMethod = "CUSTOM_WEIGHTS"
)

type Meta struct {
	Name  string `json:"name"`
	Notes string `json:"notes"`
}

type Period struct {
	Start    Date   `json:"start"`
	End      Date   `json:"end"`
	Calendar string `json:"calendar"`
}

type Universe struct {
	Symbols []string `json:"symbols"`
}

type TaxParams struct {
	FederalOrdinary         float64 `json:"federal_ordinary"`
	FederalLTCG             float64 `json:"federal_ltcg"`
	State                   float64 `json:"state"`
	QualifiedDividendPct    float64 `json:"qualified_dividend_pct"`
	ApplyWashSale           bool    `json:"apply_wash_sale"`
	PayTaxesFromExternal    bool    `json:"pay_taxes_from_external"`
	WithdrawalTaxRateForIRA float64 `json:"withdrawal_tax_rate_for_ira"`
}

type ContributionCaps struct {
	Enforce     bool    `json:"enforce"`
	IRA         float64 `json:"ira"`
	IRACatchUp  float64 `json:"ira_catch_up"`
	Roth        float64 `json:"roth"`
	RothCatchUp float64 `json:"roth_catch_up"`

	// Partial credits a capped deposit up to the remaining room instead
	// of rejecting it outright.
	Partial bool `json:"partial"`
}

// Cap returns the annual limit for the account type, or zero when no cap
// applies.
func (c ContributionCaps) Cap(account AccountType, catchUp bool) float64 {
	switch account {
	case TraditionalIRA:
		if catchUp {
			return c.IRA + c.IRACatchUp
		}
		return c.IRA
	case RothIRA:
		if catchUp {
			return c.Roth + c.RothCatchUp
		}
		return c.Roth
	default:
		return 0
	}
}

type Account struct {
	Type             AccountType      `json:"type"`
	State            string           `json:"state,omitempty"`
	Tax              TaxParams        `json:"tax"`
	ContributionCaps ContributionCaps `json:"contribution_caps"`
}

type Deposits struct {
	Cadence string  `json:"cadence"`
	Amount  float64 `json:"amount"`

	// DayRule overrides the cadence with a custom schedule, e.g.
	// "cron:0 0 15 * *" for the 15th of each month.
	DayRule string `json:"day_rule,omitempty"`

	MarketDayEveryday bool `json:"market_day_everyday"`
}

type Dividends struct {
	Mode DividendMode `json:"mode"`

	// ReinvestThresholdPct suppresses DRIP purchases smaller than this
	// percentage of portfolio value; the cash stays in the account.
	ReinvestThresholdPct float64 `json:"reinvest_threshold_pct"`
}

type CalendarRebalance struct {
	// Period is one of D, W, M, Q, A.
	Period string `json:"period"`
}

type DriftRebalance struct {
	AbsPct *float64 `json:"abs_pct,omitempty"`
	RelPct *float64 `json:"rel_pct,omitempty"`
}

type CashflowRebalance struct {
	// MinCashPct is the fraction of portfolio value that idle cash must
	// exceed before a cashflow-triggered deploy.
	MinCashPct float64 `json:"min_cash_pct"`
}

type Rebalancing struct {
	Type     RebalanceType     `json:"type"`
	Calendar CalendarRebalance `json:"calendar"`
	Drift    DriftRebalance    `json:"drift"`
	Cashflow CashflowRebalance `json:"cashflow"`
}

type Orders struct {
	Timing OrderTiming `json:"timing"`
}

type Lots struct {
	Method LotMethod `json:"method"`
}

type Frictions struct {
	CommissionPerTrade float64 `json:"commission_per_trade"`
	SlippageBps        float64 `json:"slippage_bps"`
	UseActualETFER     bool    `json:"use_actual_etf_er"`
	EquityBorrowBps    float64 `json:"equity_borrow_bps"`
}

type PositionSizing struct {
	Method        SizingMethod       `json:"method"`
	CustomWeights map[string]float64 `json:"custom_weights,omitempty"`
	TopN          int                `json:"top_n,omitempty"`
	VolTarget     float64            `json:"vol_target,omitempty"`
}

type Benchmark struct {
	Symbols []string `json:"symbols"`
}

// SignalRule gates a symbol's target weight on a technical indicator. A
// symbol with no matching rule is always held at target.
type SignalRule struct {
	Symbol       string  `json:"symbol"`
	Indicator    string  `json:"indicator"`
	Rule         string  `json:"rule"`
	Period       int     `json:"period,omitempty"`
	Fast         int     `json:"fast,omitempty"`
	Slow         int     `json:"slow,omitempty"`
	SignalPeriod int     `json:"signal_period,omitempty"`
	Threshold    float64 `json:"threshold,omitempty"`
}

// StrategyConfig is the immutable input to a simulation.
type StrategyConfig struct {
	Meta           Meta           `json:"meta"`
	Period         Period         `json:"period"`
	Universe       Universe       `json:"universe"`
	InitialCash    float64        `json:"initial_cash"`
	Account        Account        `json:"account"`
	Deposits       Deposits       `json:"deposits"`
	Dividends      Dividends      `json:"dividends"`
	Rebalancing    Rebalancing    `json:"rebalancing"`
	Orders         Orders         `json:"orders"`
	Lots           Lots           `json:"lots"`
	Frictions      Frictions      `json:"frictions"`
	PositionSizing PositionSizing `json:"position_sizing"`
	Benchmark      Benchmark      `json:"benchmark"`
	Signals        []SignalRule   `json:"signals,omitempty"`
}

// Parse decodes and validates a StrategyConfig. Unknown JSON keys are a
// configuration error.
func Parse(raw []byte) (*StrategyConfig, error) {
	cfg := &StrategyConfig{}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrConfigurationInvalid, err.Error())
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (cfg *StrategyConfig) applyDefaults() {
	if cfg.Period.Calendar == "" {
		cfg.Period.Calendar = "NYSE"
	}
	if cfg.Dividends.Mode == "" {
		cfg.Dividends.Mode = Cash
	}
	if cfg.Orders.Timing == "" {
		cfg.Orders.Timing = MarketOnClose
	}
	if cfg.Lots.Method == "" {
		cfg.Lots.Method = FIFO
	}
	if cfg.PositionSizing.Method == "" {
		cfg.PositionSizing.Method = EqualWeight
	}
	if cfg.Deposits.Cadence == "" {
		cfg.Deposits.Cadence = "monthly"
	}
	if cfg.Rebalancing.Type == "" {
		cfg.Rebalancing.Type = RebalanceCalendar
	}
	if cfg.Rebalancing.Calendar.Period == "" {
		cfg.Rebalancing.Calendar.Period = "Q"
	}
}

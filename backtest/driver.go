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

// Package backtest runs the daily simulation loop: corporate actions,
// deposits, signals, rebalancing, mark-to-market, and year-end taxes,
// producing a deterministic result bundle. Within a day the order
// prices, splits, dividends, deposits, signals, rebalance, mark is
// fixed; across days events are in strict date order.
package backtest

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"

	"github.com/foliosim/foliosim/calendar"
	"github.com/foliosim/foliosim/config"
	"github.com/foliosim/foliosim/data"
	"github.com/foliosim/foliosim/metrics"
	"github.com/foliosim/foliosim/observability/opentelemetry"
	"github.com/foliosim/foliosim/portfolio"
	"github.com/foliosim/foliosim/rebalance"
	"github.com/foliosim/foliosim/signals"
	"github.com/foliosim/foliosim/tax"
)

const tradingDaysPerYear = 252

// Driver owns every component of one simulation run. It is
// single-threaded; run separate drivers to simulate in parallel.
type Driver struct {
	cfg    *config.StrategyConfig
	source data.PriceSource
	cal    *calendar.Calendar
	ledger *tax.Ledger
	port   *portfolio.Portfolio
	reb    *rebalance.Rebalancer
	eval   *signals.Evaluator

	deposits *depositSchedule

	ds          *dataset
	baseWeights map[string]float64
	inactive    map[string]bool
	history     map[string][]float64
	lastClose   map[string]float64
	dragFactor  map[string]float64
	closedYears map[int]bool

	universe []string
	lastDay  time.Time

	result *Result
}

// New validates the environment and assembles a driver. The config must
// already have passed config.Parse.
func New(cfg *config.StrategyConfig, source data.PriceSource) (*Driver, error) {
	cal, err := calendar.New(cfg.Period.Calendar)
	if err != nil {
		return nil, fatal(KindConfigurationInvalid, cfg.Period.Start.Time, "", err)
	}

	reb, err := rebalance.New(cfg, cal)
	if err != nil {
		return nil, fatal(KindConfigurationInvalid, cfg.Period.Start.Time, "", err)
	}

	deposits, err := newDepositSchedule(cfg, cal)
	if err != nil {
		return nil, fatal(KindConfigurationInvalid, cfg.Period.Start.Time, "", err)
	}

	ledger := tax.NewLedger(cfg)
	universe := make([]string, len(cfg.Universe.Symbols))
	copy(universe, cfg.Universe.Symbols)
	sort.Strings(universe)

	return &Driver{
		cfg:         cfg,
		source:      source,
		cal:         cal,
		ledger:      ledger,
		port:        portfolio.New(cfg, ledger),
		reb:         reb,
		eval:        signals.New(cfg.Signals),
		deposits:    deposits,
		baseWeights: cfg.TargetWeights(),
		inactive:    make(map[string]bool),
		history:     make(map[string][]float64),
		lastClose:   make(map[string]float64),
		dragFactor:  make(map[string]float64),
		closedYears: make(map[int]bool),
		universe:    universe,
		result:      &Result{Config: cfg},
	}, nil
}

// Run executes the simulation. Cancellation is observed at day
// boundaries and yields a partial result with no error; fatal errors
// return the state computed through the prior day alongside the error.
func (d *Driver) Run(ctx context.Context) (*Result, error) {
	ctx, span := otel.Tracer(opentelemetry.Name).Start(ctx, "backtest.Run")
	defer span.End()

	days, err := d.cal.TradingDays(d.cfg.Period.Start.Time, d.cfg.Period.End.Time)
	if err != nil && !errors.Is(err, calendar.ErrOutOfRange) {
		return d.result, fatal(KindConfigurationInvalid, d.cfg.Period.Start.Time, "", err)
	}
	if len(days) == 0 {
		return d.result, fatal(KindConfigurationInvalid, d.cfg.Period.Start.Time, "",
			errors.New("no trading days in period"))
	}
	d.lastDay = days[len(days)-1]

	symbols := append(append([]string{}, d.universe...), d.cfg.Benchmark.Symbols...)
	warmup := 0
	if n := d.eval.MaxLookback(); n > 0 {
		warmup = n*2 + 14
	}
	d.ds, err = loadDataset(ctx, d.source, symbols, days[0], d.lastDay, warmup,
		d.cfg.Frictions.UseActualETFER)
	if err != nil {
		d.result.Partial = true
		return d.result, err
	}
	for symbol, closes := range d.ds.preHistory {
		d.history[symbol] = append([]float64{}, closes...)
	}

	for _, day := range days {
		if ctx.Err() != nil {
			d.warn(day, string(KindCancelledByHost), "", "simulation cancelled by host")
			d.result.Partial = true
			break
		}
		if err := d.step(ctx, day); err != nil {
			d.result.Partial = true
			d.finish(ctx, days)
			return d.result, err
		}
		d.result.Diagnostics.TotalDays++
	}

	d.finish(ctx, days)
	return d.result, nil
}

// step runs one trading day.
func (d *Driver) step(ctx context.Context, day time.Time) error {
	// 1. prices
	closes := make(map[string]float64, len(d.universe))
	opens := make(map[string]float64, len(d.universe))
	for _, symbol := range d.universe {
		if d.inactive[symbol] {
			continue
		}
		bar, ok := d.ds.bar(symbol, day)
		if !ok {
			delisted, err := d.source.IsDelisted(ctx, symbol, day)
			if err != nil {
				return fatal(KindDataUnavailable, day, symbol, err)
			}
			if !delisted {
				return fatal(KindDataUnavailable, day, symbol, data.ErrMissingBar)
			}
			if err := d.liquidateDelisted(symbol, day); err != nil {
				return err
			}
			continue
		}
		closes[symbol] = bar.Close
		opens[symbol] = bar.Open
	}

	// 2. splits
	for _, symbol := range d.universe {
		for _, split := range d.ds.splitsOn(symbol, day) {
			if err := d.port.ApplySplit(symbol, split.Ratio, day); err != nil {
				return fatal(KindInternalConsistency, day, symbol, err)
			}
		}
	}

	// 3. dividends
	cashInToday := 0.0
	for _, symbol := range d.universe {
		for _, div := range d.ds.dividendsOn(symbol, day) {
			mode := d.effectiveDividendMode(symbol, div, closes)
			qualified := div.QualifiedFraction
			if qualified == 0 {
				qualified = d.cfg.Account.Tax.QualifiedDividendPct
			}
			trades, err := d.port.ApplyDividend(symbol, div.Amount, qualified,
				closes[symbol], mode, day)
			if err != nil {
				return fatal(KindInsufficientCash, day, symbol, err)
			}
			if mode == config.Cash && len(trades) > 0 {
				cashInToday += trades[0].CashDelta.InexactFloat64()
			}
		}
	}

	// 4. deposits
	externalFlow := 0.0
	if d.deposits.due(day) {
		credited, err := d.port.Deposit(d.cfg.Deposits.Amount, day)
		switch {
		case errors.Is(err, portfolio.ErrContributionCapExceeded):
			d.warn(day, string(KindContributionCap), "",
				"deposit reduced by annual contribution cap")
		case err != nil:
			return fatal(KindInsufficientCash, day, "", err)
		}
		if credited > 0 {
			d.result.Diagnostics.Deposits++
			externalFlow += credited
			cashInToday += credited
		}
		d.deposits.advance(day)
	}

	// 5. signals and delisting gates
	effective := make(map[string]float64, len(d.baseWeights))
	for symbol, weight := range d.baseWeights {
		if d.inactive[symbol] {
			effective[symbol] = 0
		} else {
			effective[symbol] = weight
		}
	}
	d.reb.SetWeights(d.eval.Apply(effective, d.history))

	// 6. rebalance
	if err := d.maybeRebalance(day, opens, closes, cashInToday); err != nil {
		return err
	}

	// year-end taxes come out of cash before the day is marked so the
	// year's final equity point reflects the payment
	if err := d.maybeCloseYear(day); err != nil {
		return err
	}

	// 7-8. expense drag and mark
	marks := make(map[string]float64, len(closes))
	for symbol, close := range closes {
		if er, ok := d.ds.expense[symbol]; ok {
			factor, seeded := d.dragFactor[symbol]
			if !seeded {
				factor = 1.0
			}
			factor *= 1 - er/tradingDaysPerYear
			d.dragFactor[symbol] = factor
			marks[symbol] = close * factor
		} else {
			marks[symbol] = close
		}
	}

	cash := d.port.Cash().InexactFloat64()
	positionsValue := d.port.PositionsValue(marks).InexactFloat64()
	d.result.Equity = append(d.result.Equity, &metrics.EquityPoint{
		Date:           day,
		Cash:           cash,
		PositionsValue: positionsValue,
		Value:          cash + positionsValue,
		Cashflow:       externalFlow,
	})

	if err := d.port.CheckConsistency(); err != nil {
		return fatal(KindInternalConsistency, day, "", err)
	}

	for symbol, close := range closes {
		d.history[symbol] = append(d.history[symbol], close)
		d.lastClose[symbol] = close
	}
	return nil
}

// effectiveDividendMode downgrades DRIP to cash when the payment is
// below the configured reinvestment threshold.
func (d *Driver) effectiveDividendMode(symbol string, div *data.DividendAction,
	closes map[string]float64) config.DividendMode {
	mode := d.cfg.Dividends.Mode
	if mode != config.DRIP || d.cfg.Dividends.ReinvestThresholdPct <= 0 {
		return mode
	}

	amount := d.port.SharesOf(symbol).InexactFloat64() * div.Amount
	value := d.port.Value(closes).InexactFloat64()
	if value > 0 && amount < value*d.cfg.Dividends.ReinvestThresholdPct/100 {
		return config.Cash
	}
	return mode
}

func (d *Driver) maybeRebalance(day time.Time, opens, closes map[string]float64, cashInToday float64) error {
	prices := closes
	if d.cfg.Orders.Timing == config.MarketOnOpen {
		prices = opens
	}

	holdings := make(map[string]float64, len(prices))
	total := d.port.Cash().InexactFloat64()
	for symbol, price := range prices {
		value := d.port.SharesOf(symbol).InexactFloat64() * price
		holdings[symbol] = value
		total += value
	}

	snap := &rebalance.Snapshot{
		Date:          day,
		Value:         total,
		Cash:          d.port.Cash().InexactFloat64(),
		Holdings:      holdings,
		Prices:        prices,
		CashflowToday: cashInToday,
	}

	due, trigger, err := d.reb.Due(snap, d.cal)
	if err != nil {
		return fatal(KindInternalConsistency, day, "", err)
	}
	if !due {
		return nil
	}

	plan, err := d.reb.Plan(snap, d.port.Positions())
	if err != nil {
		return fatal(KindDataUnavailable, day, "", err)
	}
	if plan.Empty() {
		return nil
	}

	for _, leg := range plan.Sells {
		if _, err := d.port.SellShares(leg.Symbol, leg.Shares, prices[leg.Symbol], day); err != nil {
			if errors.Is(err, portfolio.ErrInsufficientShares) {
				return fatal(KindInsufficientShares, day, leg.Symbol, err)
			}
			return fatal(KindInternalConsistency, day, leg.Symbol, err)
		}
		d.result.Diagnostics.TradesExecuted++
	}

	for _, leg := range plan.Buys {
		notional := leg.Notional
		if cash := d.port.Cash().InexactFloat64(); notional > cash {
			notional = cash
		}
		if notional < 1 {
			continue
		}
		_, err := d.port.Buy(leg.Symbol, notional, prices[leg.Symbol], day)
		switch {
		case err == nil:
			d.result.Diagnostics.TradesExecuted++
		case errors.Is(err, portfolio.ErrInsufficientCash), errors.Is(err, portfolio.ErrInvalidAmount):
			d.warn(day, string(KindInsufficientCash), leg.Symbol, "buy leg skipped for lack of cash")
		default:
			return fatal(KindInternalConsistency, day, leg.Symbol, err)
		}
	}

	if plan.ScaledDown {
		d.warn(day, "PlanScaledDown", "", "buy legs scaled down to available cash")
	}

	d.result.Diagnostics.Rebalances++
	log.Debug().Time("Date", day).Str("Trigger", trigger).Msg("rebalanced")
	return nil
}

// maybeCloseYear settles taxes on the final trading day of each calendar
// year and on the period's last day.
func (d *Driver) maybeCloseYear(day time.Time) error {
	last, err := d.cal.IsLastTradingDayOfYear(day)
	if err != nil {
		return fatal(KindInternalConsistency, day, "", err)
	}
	if !last && !day.Equal(d.lastDay) {
		return nil
	}

	year := day.Year()
	if d.closedYears[year] {
		return nil
	}
	d.closedYears[year] = true

	summary := d.ledger.CloseYear(year)
	if summary.TotalTax.IsPositive() && !d.cfg.Account.Tax.PayTaxesFromExternal {
		d.port.WithdrawTax(summary.TotalTax)
	}
	return nil
}

func (d *Driver) liquidateDelisted(symbol string, day time.Time) error {
	d.inactive[symbol] = true
	d.warn(day, "Delisted", symbol, "symbol delisted; position liquidated at last close")

	shares := d.port.SharesOf(symbol)
	if !shares.IsPositive() {
		return nil
	}
	price, ok := d.lastClose[symbol]
	if !ok {
		return fatal(KindDataUnavailable, day, symbol, data.ErrMissingBar)
	}
	if _, err := d.port.SellShares(symbol, shares.InexactFloat64(), price, day); err != nil {
		return fatal(KindInternalConsistency, day, symbol, err)
	}
	d.result.Diagnostics.TradesExecuted++
	return nil
}

// finish assembles the result bundle from whatever the loop produced.
func (d *Driver) finish(ctx context.Context, days []time.Time) {
	d.result.Trades = d.port.Trades()
	d.result.Positions = d.port.Positions()
	d.result.OpenLots = d.port.OpenLots()
	d.result.Realized = d.port.RealizedEvents()
	d.result.TaxYears = d.ledger.Summaries()
	d.result.TotalDeposited = d.port.CumulativeDeposits().InexactFloat64()
	d.result.ExternalTaxLiability = d.ledger.ExternalLiability().InexactFloat64()

	flows := d.externalFlows()

	var primaryBenchmark []*metrics.EquityPoint
	if len(d.result.Equity) > 0 && len(d.cfg.Benchmark.Symbols) > 0 {
		d.result.BenchmarkEquity = make(map[string][]*metrics.EquityPoint, len(d.cfg.Benchmark.Symbols))
		d.result.BenchmarkMetrics = make(map[string]*metrics.Summary, len(d.cfg.Benchmark.Symbols))
		for _, symbol := range d.cfg.Benchmark.Symbols {
			series, err := d.runBenchmark(ctx, symbol, days[:len(d.result.Equity)])
			if err != nil {
				d.warn(d.cfg.Period.Start.Time, string(KindDataUnavailable), symbol,
					"benchmark series unavailable")
				continue
			}
			d.result.BenchmarkEquity[symbol] = series
			d.result.BenchmarkMetrics[symbol] = metrics.Compute(series, flows, nil, 0)
			if primaryBenchmark == nil {
				primaryBenchmark = series
			}
		}
	}

	d.result.Metrics = metrics.Compute(d.result.Equity, flows, primaryBenchmark, 0)

	if n := len(d.result.Equity); n > 0 {
		d.result.FinalValue = d.result.Equity[n-1].Value
		d.result.AfterTaxValue = tax.AfterTaxEquivalent(d.cfg,
			decimal.NewFromFloat(d.result.FinalValue)).InexactFloat64()
	}

	d.result.Seal()
}

// externalFlows is the IRR cashflow series: initial cash on the first
// day plus every credited deposit.
func (d *Driver) externalFlows() []metrics.Cashflow {
	if len(d.result.Equity) == 0 {
		return nil
	}

	flows := make([]metrics.Cashflow, 0, len(d.result.Equity)/20+1)
	if d.cfg.InitialCash > 0 {
		flows = append(flows, metrics.Cashflow{Date: d.result.Equity[0].Date, Amount: d.cfg.InitialCash})
	}
	for _, point := range d.result.Equity {
		if point.Cashflow != 0 {
			flows = append(flows, metrics.Cashflow{Date: point.Date, Amount: point.Cashflow})
		}
	}
	return flows
}

func (d *Driver) warn(date time.Time, kind, symbol, message string) {
	d.result.Warnings = append(d.result.Warnings, Warning{
		Date: date, Kind: kind, Symbol: symbol, Message: message,
	})
	log.Warn().Time("Date", date).Str("Kind", kind).Str("Symbol", symbol).Msg(message)
}

// depositSchedule tracks the next scheduled deposit date. Cadence
// deposits walk Align/NextScheduled; a custom day rule is asked directly
// whether it fires on the day.
type depositSchedule struct {
	cal     *calendar.Calendar
	cadence calendar.Cadence
	sched   *calendar.Schedule
	next    time.Time
}

func newDepositSchedule(cfg *config.StrategyConfig, cal *calendar.Calendar) (*depositSchedule, error) {
	s := &depositSchedule{cal: cal}
	if cfg.Deposits.Amount <= 0 {
		return s, nil
	}

	start := calendar.Midnight(cfg.Period.Start.Time)

	if cfg.Deposits.DayRule != "" {
		sched, err := cal.ParseSchedule(cfg.Deposits.DayRule)
		if err != nil {
			return nil, err
		}
		s.sched = sched
		return s, nil
	}

	s.cadence = cfg.DepositCadence()
	first, err := cal.Align(start, s.cadence)
	if err != nil {
		return nil, err
	}
	// the cadence date for the start's period may precede the period;
	// the schedule then begins with the next period
	if first.Before(start) {
		first, err = cal.NextScheduled(start, s.cadence)
		if err != nil {
			return nil, err
		}
	}
	s.next = first
	return s, nil
}

func (s *depositSchedule) due(date time.Time) bool {
	if s.sched != nil {
		occurs, err := s.sched.Occurs(date)
		return err == nil && occurs
	}
	return !s.next.IsZero() && !date.Before(s.next)
}

func (s *depositSchedule) advance(date time.Time) {
	if s.sched != nil {
		return
	}
	next, err := s.cal.NextScheduled(date, s.cadence)
	if err != nil {
		// off the end of the holiday tables; no further deposits
		s.next = time.Time{}
		return
	}
	s.next = next
}

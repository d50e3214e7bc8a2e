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

package portfolio

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/foliosim/foliosim/config"
)

// Portfolio owns the cash balance and every open tax lot. All mutation
// happens through its methods; operations either apply fully or leave
// the state untouched.
type Portfolio struct {
	accountType config.AccountType
	caps        config.ContributionCaps
	applyWash   bool
	lotMethod   config.LotMethod
	commission  decimal.Decimal
	slippage    decimal.Decimal
	sink        TaxSink

	cash    decimal.Decimal
	lots    map[string][]*Lot
	symbols []string

	trades        []*TradeRecord
	realized      []*RealizedEvent
	deposits      decimal.Decimal
	contributions map[int]decimal.Decimal
	windows       map[string][]*washWindow

	nextTradeID uint64
	lotSeq      uint64

	// flowSum is initial cash plus every cash movement since; it must
	// always equal the cash balance.
	flowSum decimal.Decimal
}

// New builds a portfolio seeded with the configured initial cash.
func New(cfg *config.StrategyConfig, sink TaxSink) *Portfolio {
	initial := roundMoney(decimal.NewFromFloat(cfg.InitialCash))
	return &Portfolio{
		accountType:   cfg.Account.Type,
		caps:          cfg.Account.ContributionCaps,
		applyWash:     cfg.Account.Tax.ApplyWashSale && cfg.Account.Type.Taxable(),
		lotMethod:     cfg.Lots.Method,
		commission:    roundMoney(decimal.NewFromFloat(cfg.Frictions.CommissionPerTrade)),
		slippage:      decimal.NewFromFloat(cfg.Frictions.SlippageBps).Div(decimal.NewFromInt(10000)),
		sink:          sink,
		cash:          initial,
		lots:          make(map[string][]*Lot),
		contributions: make(map[int]decimal.Decimal),
		windows:       make(map[string][]*washWindow),
		flowSum:       initial,
	}
}

func (p *Portfolio) newLotID() uuid.UUID {
	p.lotSeq++
	return uuid.NewSHA1(lotNamespace, []byte(fmt.Sprintf("lot-%d", p.lotSeq)))
}

func (p *Portfolio) record(trade *TradeRecord) *TradeRecord {
	p.nextTradeID++
	trade.ID = p.nextTradeID
	p.trades = append(p.trades, trade)
	return trade
}

func (p *Portfolio) creditCash(amount decimal.Decimal) {
	p.cash = p.cash.Add(amount)
	p.flowSum = p.flowSum.Add(amount)
}

func (p *Portfolio) trackSymbol(symbol string) {
	idx := sort.SearchStrings(p.symbols, symbol)
	if idx < len(p.symbols) && p.symbols[idx] == symbol {
		return
	}
	p.symbols = append(p.symbols, "")
	copy(p.symbols[idx+1:], p.symbols[idx:])
	p.symbols[idx] = symbol
}

// Deposit credits external cash, honoring annual contribution caps for
// IRA and Roth accounts. The credited amount is returned; when any
// portion is rejected the error is ErrContributionCapExceeded and the
// caller decides whether that is fatal.
func (p *Portfolio) Deposit(amount float64, date time.Time) (float64, error) {
	requested := roundMoney(decimal.NewFromFloat(amount))
	if !requested.IsPositive() {
		return 0, ErrInvalidAmount
	}

	credited := requested
	if p.caps.Enforce {
		if cap := decimal.NewFromFloat(p.caps.Cap(p.accountType, false)); cap.IsPositive() {
			room := cap.Sub(p.contributions[date.Year()])
			if room.IsNegative() {
				room = decimal.Zero
			}
			if requested.GreaterThan(room) {
				if p.caps.Partial {
					credited = room
				} else {
					credited = decimal.Zero
				}
			}
		}
	}

	if credited.IsPositive() {
		p.creditCash(credited)
		p.deposits = p.deposits.Add(credited)
		p.contributions[date.Year()] = p.contributions[date.Year()].Add(credited)
		p.record(&TradeRecord{
			Date:      date,
			Action:    DepositAction,
			CashDelta: credited,
		})
	}

	if credited.LessThan(requested) {
		return credited.InexactFloat64(), ErrContributionCapExceeded
	}
	return credited.InexactFloat64(), nil
}

// Buy converts a cash notional into shares of symbol. Slippage widens
// the executed price; commission is deducted from the notional before
// sizing. One new lot is created.
func (p *Portfolio) Buy(symbol string, notional, price float64, date time.Time) (*TradeRecord, error) {
	return p.buy(symbol, decimal.NewFromFloat(notional), decimal.NewFromFloat(price), date,
		BuyAction, p.commission, p.slippage)
}

func (p *Portfolio) buy(symbol string, notional, price decimal.Decimal, date time.Time,
	action TradeAction, commission, slippage decimal.Decimal) (*TradeRecord, error) {
	if !price.IsPositive() {
		return nil, ErrInvalidPrice
	}
	notional = roundMoney(notional)
	if !notional.IsPositive() || notional.LessThanOrEqual(commission) {
		return nil, ErrInvalidAmount
	}
	if notional.GreaterThan(p.cash) {
		return nil, ErrInsufficientCash
	}

	execPrice := roundBasis(price.Mul(decimal.NewFromInt(1).Add(slippage)))
	shares := truncQuantity(notional.Sub(commission).Div(execPrice))
	if !shares.IsPositive() {
		return nil, ErrInvalidAmount
	}

	cost := roundMoney(shares.Mul(execPrice))
	totalCost := cost.Add(commission)
	basisPerShare := roundBasis(totalCost.Div(shares))

	lot := &Lot{
		ID:            p.newLotID(),
		Symbol:        symbol,
		Quantity:      shares,
		Remaining:     shares,
		BasisPerShare: basisPerShare,
		AcquiredOn:    date,
	}
	p.lots[symbol] = append(p.lots[symbol], lot)
	p.trackSymbol(symbol)
	p.creditCash(totalCost.Neg())

	trade := p.record(&TradeRecord{
		Date:       date,
		Symbol:     symbol,
		Action:     action,
		Quantity:   shares,
		Price:      execPrice,
		Commission: commission,
		Slippage:   roundMoney(shares.Mul(execPrice.Sub(price))),
		CashDelta:  totalCost.Neg(),
		LotIDs:     []uuid.UUID{lot.ID},
	})

	if p.applyWash {
		p.matchBuyAgainstWindows(symbol, lot, date)
	}
	return trade, nil
}

// SellShares disposes of the requested share count using the configured
// lot method, emitting one RealizedEvent per consumed lot.
func (p *Portfolio) SellShares(symbol string, shares, price float64, date time.Time) (*TradeRecord, error) {
	return p.sell(symbol, roundQuantity(decimal.NewFromFloat(shares)), decimal.NewFromFloat(price), date)
}

// SellNotional sells approximately the requested cash value, capped at
// the full position.
func (p *Portfolio) SellNotional(symbol string, notional, price float64, date time.Time) (*TradeRecord, error) {
	priceD := decimal.NewFromFloat(price)
	if !priceD.IsPositive() {
		return nil, ErrInvalidPrice
	}
	execPrice := roundBasis(priceD.Mul(decimal.NewFromInt(1).Sub(p.slippage)))
	shares := truncQuantity(decimal.NewFromFloat(notional).Div(execPrice))
	if position := p.SharesOf(symbol); shares.GreaterThan(position) {
		shares = position
	}
	return p.sell(symbol, shares, priceD, date)
}

func (p *Portfolio) sell(symbol string, shares, price decimal.Decimal, date time.Time) (*TradeRecord, error) {
	if !price.IsPositive() {
		return nil, ErrInvalidPrice
	}
	if !shares.IsPositive() {
		return nil, ErrInvalidAmount
	}
	if shares.GreaterThan(p.SharesOf(symbol)) {
		return nil, ErrInsufficientShares
	}

	ordered, err := orderLots(p.lots[symbol], p.lotMethod)
	if err != nil {
		return nil, err
	}

	execPrice := roundBasis(price.Mul(decimal.NewFromInt(1).Sub(p.slippage)))
	remaining := shares
	proceeds := decimal.Zero
	consumed := make([]uuid.UUID, 0, len(ordered))
	events := make([]*RealizedEvent, 0, len(ordered))

	for _, lot := range ordered {
		if !remaining.IsPositive() {
			break
		}
		take := decimal.Min(lot.Remaining, remaining)

		lotProceeds := roundMoney(take.Mul(execPrice))
		costBasis := roundMoney(take.Mul(lot.BasisPerShare))
		holdingDays := int(date.Sub(lot.AcquiredOn).Hours() / 24)

		event := &RealizedEvent{
			Date:        date,
			Symbol:      symbol,
			Quantity:    take,
			Proceeds:    lotProceeds,
			CostBasis:   costBasis,
			Gain:        lotProceeds.Sub(costBasis),
			HoldingDays: holdingDays,
			ShortTerm:   holdingDays <= 365,
			LotID:       lot.ID,
		}
		events = append(events, event)

		lot.Remaining = lot.Remaining.Sub(take)
		if lot.washMatched.GreaterThan(lot.Remaining) {
			lot.washMatched = lot.Remaining
		}
		remaining = remaining.Sub(take)
		proceeds = proceeds.Add(lotProceeds)
		consumed = append(consumed, lot.ID)
	}

	p.dropClosedLots(symbol)

	cashDelta := proceeds.Sub(p.commission)
	p.creditCash(cashDelta)

	for _, event := range events {
		p.realized = append(p.realized, event)
		if p.sink != nil && p.accountType.Taxable() {
			p.sink.RealizedGain(event.Date, event.ShortTerm, event.Gain)
		}
		if p.applyWash && event.Gain.IsNegative() {
			p.processLossSale(event, date)
		}
	}

	return p.record(&TradeRecord{
		Date:       date,
		Symbol:     symbol,
		Action:     SellAction,
		Quantity:   shares,
		Price:      execPrice,
		Commission: p.commission,
		Slippage:   roundMoney(shares.Mul(price.Sub(execPrice))),
		CashDelta:  cashDelta,
		LotIDs:     consumed,
	}), nil
}

func (p *Portfolio) dropClosedLots(symbol string) {
	open := p.lots[symbol][:0]
	for _, lot := range p.lots[symbol] {
		if lot.Remaining.IsPositive() {
			open = append(open, lot)
		}
	}
	p.lots[symbol] = open
}

// ApplyDividend credits shares × perShare to cash. In DRIP mode the cash
// is immediately reinvested at the close with no commission or slippage.
// The qualified and ordinary portions flow to the tax sink for taxable
// accounts. Returned trades are the DIVIDEND record and, for DRIP, the
// reinvestment record.
func (p *Portfolio) ApplyDividend(symbol string, perShare, qualifiedFraction, closePrice float64,
	mode config.DividendMode, date time.Time) ([]*TradeRecord, error) {
	shares := p.SharesOf(symbol)
	if !shares.IsPositive() {
		return nil, nil
	}

	amount := roundMoney(shares.Mul(decimal.NewFromFloat(perShare)))
	if !amount.IsPositive() {
		return nil, nil
	}

	p.creditCash(amount)
	trades := []*TradeRecord{p.record(&TradeRecord{
		Date:      date,
		Symbol:    symbol,
		Action:    DividendAction,
		Quantity:  shares,
		Price:     decimal.NewFromFloat(perShare),
		CashDelta: amount,
	})}

	if p.sink != nil && p.accountType.Taxable() {
		qualified := roundMoney(amount.Mul(decimal.NewFromFloat(qualifiedFraction)))
		p.sink.Dividend(date, qualified, amount.Sub(qualified))
	}

	if mode == config.DRIP {
		drip, err := p.buy(symbol, amount, decimal.NewFromFloat(closePrice), date,
			DripAction, decimal.Zero, decimal.Zero)
		switch err {
		case nil:
			trades = append(trades, drip)
		case ErrInvalidAmount:
			// too small to purchase a fractional share; keep the cash
			log.Debug().Str("Symbol", symbol).Time("Date", date).Msg("dividend too small to reinvest")
		default:
			return trades, err
		}
	}

	return trades, nil
}

// ApplySplit multiplies every open lot's quantity by ratio and divides
// its per-share basis by ratio.
func (p *Portfolio) ApplySplit(symbol string, ratio float64, date time.Time) error {
	ratioD := decimal.NewFromFloat(ratio)
	if !ratioD.IsPositive() {
		return ErrInvalidRatio
	}

	for _, lot := range p.lots[symbol] {
		lot.Quantity = roundQuantity(lot.Quantity.Mul(ratioD))
		lot.Remaining = roundQuantity(lot.Remaining.Mul(ratioD))
		lot.washMatched = roundQuantity(lot.washMatched.Mul(ratioD))
		lot.BasisPerShare = roundBasis(lot.BasisPerShare.Div(ratioD))
	}

	log.Debug().Str("Symbol", symbol).Float64("Ratio", ratio).Time("Date", date).Msg("applied split")
	return nil
}

// WithdrawTax deducts an internal tax payment from cash. The balance may
// go negative; the next operation requiring cash fails normally.
func (p *Portfolio) WithdrawTax(amount decimal.Decimal) {
	p.creditCash(roundMoney(amount).Neg())
}

// SharesOf returns the open share count for a symbol.
func (p *Portfolio) SharesOf(symbol string) decimal.Decimal {
	total := decimal.Zero
	for _, lot := range p.lots[symbol] {
		total = total.Add(lot.Remaining)
	}
	return total
}

// PositionsValue marks all open positions with the supplied close
// prices. It never mutates the portfolio.
func (p *Portfolio) PositionsValue(closes map[string]float64) decimal.Decimal {
	total := decimal.Zero
	for _, symbol := range p.symbols {
		shares := p.SharesOf(symbol)
		if shares.IsZero() {
			continue
		}
		close, ok := closes[symbol]
		if !ok {
			log.Warn().Stack().Str("Symbol", symbol).Msg("no close price provided for open position")
			continue
		}
		total = total.Add(roundMoney(shares.Mul(decimal.NewFromFloat(close))))
	}
	return total
}

// Value is cash plus marked positions.
func (p *Portfolio) Value(closes map[string]float64) decimal.Decimal {
	return p.cash.Add(p.PositionsValue(closes))
}

// Cash returns the current balance.
func (p *Portfolio) Cash() decimal.Decimal {
	return p.cash
}

// CumulativeDeposits returns the sum of all credited deposits, excluding
// the initial cash.
func (p *Portfolio) CumulativeDeposits() decimal.Decimal {
	return p.deposits
}

// Positions returns the derived per-symbol view, sorted by symbol.
func (p *Portfolio) Positions() []*Position {
	positions := make([]*Position, 0, len(p.symbols))
	for _, symbol := range p.symbols {
		lots := p.lots[symbol]
		if len(lots) == 0 {
			continue
		}
		positions = append(positions, &Position{
			Symbol: symbol,
			Shares: p.SharesOf(symbol),
			Lots:   lots,
		})
	}
	return positions
}

// OpenLots returns every open lot, sorted by symbol then acquisition.
func (p *Portfolio) OpenLots() []*Lot {
	lots := make([]*Lot, 0)
	for _, symbol := range p.symbols {
		lots = append(lots, p.lots[symbol]...)
	}
	return lots
}

// Trades returns the append-only trade ledger.
func (p *Portfolio) Trades() []*TradeRecord {
	return p.trades
}

// RealizedEvents returns every realized gain or loss so far.
func (p *Portfolio) RealizedEvents() []*RealizedEvent {
	return p.realized
}

// consistencyTolerance allows for float-to-decimal conversion noise at
// the public API boundary.
var consistencyTolerance = decimal.New(1, -6)

// CheckConsistency verifies the ledger invariants: open lots hold
// positive quantity and the cash balance equals the accumulated flows.
func (p *Portfolio) CheckConsistency() error {
	for _, symbol := range p.symbols {
		for _, lot := range p.lots[symbol] {
			if !lot.Remaining.IsPositive() {
				return fmt.Errorf("%w: lot %s of %s has non-positive remaining quantity",
					ErrInternalConsistency, lot.ID, symbol)
			}
		}
	}
	if p.cash.Sub(p.flowSum).Abs().GreaterThan(consistencyTolerance) {
		return fmt.Errorf("%w: cash %s differs from accumulated flows %s",
			ErrInternalConsistency, p.cash, p.flowSum)
	}
	return nil
}

// orderLots returns lots in disposal order without mutating the input.
func orderLots(lots []*Lot, method config.LotMethod) ([]*Lot, error) {
	ordered := make([]*Lot, len(lots))
	copy(ordered, lots)

	switch method {
	case config.FIFO:
		sort.SliceStable(ordered, func(i, j int) bool {
			return ordered[i].AcquiredOn.Before(ordered[j].AcquiredOn)
		})
	case config.LIFO:
		sort.SliceStable(ordered, func(i, j int) bool {
			return ordered[i].AcquiredOn.After(ordered[j].AcquiredOn)
		})
	case config.HIFO:
		sort.SliceStable(ordered, func(i, j int) bool {
			cmp := ordered[i].BasisPerShare.Cmp(ordered[j].BasisPerShare)
			if cmp != 0 {
				return cmp > 0
			}
			return ordered[i].AcquiredOn.Before(ordered[j].AcquiredOn)
		})
	default:
		return nil, ErrUnknownLotMethod
	}
	return ordered, nil
}

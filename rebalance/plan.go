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

package rebalance

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/foliosim/foliosim/portfolio"
)

// minTradeValue suppresses dust legs that frictions would dominate.
const minTradeValue = 1.0

// sell categories in execution order
const (
	sellLoss = iota
	sellLongGain
	sellShortGain
)

// SellLeg disposes of a share count; BuyLeg deploys a cash notional.
type SellLeg struct {
	Symbol   string
	Shares   float64
	category int
	delta    float64
}

type BuyLeg struct {
	Symbol   string
	Notional float64
	delta    float64
}

// Plan is the ordered trade list for one rebalance: all sells execute
// before any buy so the buys are cash-feasible.
type Plan struct {
	Sells []SellLeg
	Buys  []BuyLeg

	// ScaledDown is set when projected cash could not cover the buys
	// and every buy was reduced proportionally.
	ScaledDown bool
	Scale      float64
}

// Empty reports whether the plan contains no executable leg.
func (p *Plan) Empty() bool {
	return len(p.Sells) == 0 && len(p.Buys) == 0
}

// Plan computes the trades that move holdings to target weights. Lots
// are a read-only view used to classify each sell's realized gain; in a
// taxable account losses are harvested first, then long-term gains, and
// short-term gains are deferred to the end of the sell list.
func (r *Rebalancer) Plan(snap *Snapshot, positions []*portfolio.Position) (*Plan, error) {
	plan := &Plan{Scale: 1.0}
	lotsBySymbol := make(map[string][]*portfolio.Lot, len(positions))
	for _, pos := range positions {
		lotsBySymbol[pos.Symbol] = pos.Lots
	}

	// deltas against target, symbols sorted for determinism
	symbols := make([]string, 0, len(r.weights))
	for symbol := range r.weights {
		symbols = append(symbols, symbol)
	}
	sort.Strings(symbols)

	slippage := r.cfg.Frictions.SlippageBps / 10000
	commission := r.cfg.Frictions.CommissionPerTrade

	projectedCash := snap.Cash
	for _, symbol := range symbols {
		target := snap.Value * r.weights[symbol]
		held := snap.Holdings[symbol]

		// a delisted or gated symbol stays in the weight map at zero;
		// with nothing held there is no leg and no price needed
		if target == 0 && held == 0 {
			continue
		}

		price, ok := snap.Prices[symbol]
		if !ok || price <= 0 {
			return nil, ErrNoPrices
		}

		delta := held - target
		if delta < minTradeValue && delta > -minTradeValue {
			continue
		}

		if delta > 0 {
			shares := decimal.NewFromFloat(delta / price).RoundDown(portfolio.QuantityPlaces)
			if !shares.IsPositive() {
				continue
			}
			held := decimal.Zero
			for _, lot := range lotsBySymbol[symbol] {
				held = held.Add(lot.Remaining)
			}
			if shares.GreaterThan(held) {
				shares = held
			}
			plan.Sells = append(plan.Sells, SellLeg{
				Symbol:   symbol,
				Shares:   shares.InexactFloat64(),
				category: r.classifySell(snap, lotsBySymbol[symbol], shares, price),
				delta:    delta,
			})
			projectedCash += shares.InexactFloat64()*price*(1-slippage) - commission
		} else {
			plan.Buys = append(plan.Buys, BuyLeg{
				Symbol:   symbol,
				Notional: -delta,
				delta:    delta,
			})
		}
	}

	r.orderSells(plan)
	sort.SliceStable(plan.Buys, func(i, j int) bool {
		// largest underweight first; symbol breaks ties
		if plan.Buys[i].delta != plan.Buys[j].delta {
			return plan.Buys[i].delta < plan.Buys[j].delta
		}
		return plan.Buys[i].Symbol < plan.Buys[j].Symbol
	})

	// proportional scale-down keeps the cash balance non-negative
	totalBuys := 0.0
	for _, leg := range plan.Buys {
		totalBuys += leg.Notional
	}
	if totalBuys > projectedCash {
		plan.ScaledDown = true
		if projectedCash <= 0 {
			plan.Scale = 0
			plan.Buys = nil
		} else {
			plan.Scale = projectedCash / totalBuys
			scaled := plan.Buys[:0]
			for _, leg := range plan.Buys {
				leg.Notional *= plan.Scale
				if leg.Notional >= minTradeValue {
					scaled = append(scaled, leg)
				}
			}
			plan.Buys = scaled
		}
	}

	return plan, nil
}

// classifySell estimates the realized result of selling shares at price
// by walking lots highest basis first.
func (r *Rebalancer) classifySell(snap *Snapshot, lots []*portfolio.Lot, shares decimal.Decimal, price float64) int {
	if !r.cfg.Account.Type.Taxable() {
		return sellLoss // ordering reduces to largest overweight first
	}

	ordered := make([]*portfolio.Lot, len(lots))
	copy(ordered, lots)
	sort.SliceStable(ordered, func(i, j int) bool {
		cmp := ordered[i].BasisPerShare.Cmp(ordered[j].BasisPerShare)
		if cmp != 0 {
			return cmp > 0
		}
		return ordered[i].AcquiredOn.Before(ordered[j].AcquiredOn)
	})

	priceD := decimal.NewFromFloat(price)
	remaining := shares
	gain := decimal.Zero
	shortTermGain := false

	for _, lot := range ordered {
		if !remaining.IsPositive() {
			break
		}
		take := decimal.Min(lot.Remaining, remaining)
		lotGain := take.Mul(priceD.Sub(lot.BasisPerShare))
		gain = gain.Add(lotGain)

		holdingDays := int(snap.Date.Sub(lot.AcquiredOn).Hours() / 24)
		if holdingDays <= 365 && lotGain.IsPositive() {
			shortTermGain = true
		}
		remaining = remaining.Sub(take)
	}

	switch {
	case gain.IsNegative():
		return sellLoss
	case shortTermGain:
		return sellShortGain
	default:
		return sellLongGain
	}
}

func (r *Rebalancer) orderSells(plan *Plan) {
	if r.cfg.Account.Type.Taxable() {
		sort.SliceStable(plan.Sells, func(i, j int) bool {
			if plan.Sells[i].category != plan.Sells[j].category {
				return plan.Sells[i].category < plan.Sells[j].category
			}
			if plan.Sells[i].delta != plan.Sells[j].delta {
				return plan.Sells[i].delta > plan.Sells[j].delta
			}
			return plan.Sells[i].Symbol < plan.Sells[j].Symbol
		})
		return
	}

	// non-taxable: largest overweight first
	sort.SliceStable(plan.Sells, func(i, j int) bool {
		if plan.Sells[i].delta != plan.Sells[j].delta {
			return plan.Sells[i].delta > plan.Sells[j].delta
		}
		return plan.Sells[i].Symbol < plan.Sells[j].Symbol
	})
}

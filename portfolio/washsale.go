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
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// washWindowDays is the reach of the wash-sale rule on each side of a
// loss sale, both endpoints inclusive.
const washWindowDays = 30

// washWindow tracks the unmatched portion of one realized loss. Buys of
// the same symbol within thirty calendar days after the sale consume it
// FIFO.
type washWindow struct {
	sellDate     time.Time
	expires      time.Time
	lossPerShare decimal.Decimal
	remainingQty decimal.Decimal
	event        *RealizedEvent
}

// processLossSale applies the wash-sale rule to a freshly realized loss:
// replacement shares already bought within the prior thirty days are
// matched immediately; any unmatched quantity opens a forward window.
func (p *Portfolio) processLossSale(event *RealizedEvent, date time.Time) {
	window := &washWindow{
		sellDate:     date,
		expires:      date.AddDate(0, 0, washWindowDays),
		lossPerShare: roundBasis(event.Gain.Neg().Div(event.Quantity)),
		remainingQty: event.Quantity,
		event:        event,
	}

	// backward reach: open lots acquired within the prior thirty days
	// are replacement shares
	earliest := date.AddDate(0, 0, -washWindowDays)
	for _, lot := range p.lots[event.Symbol] {
		if !window.remainingQty.IsPositive() {
			break
		}
		if lot.AcquiredOn.Before(earliest) || lot.AcquiredOn.After(date) {
			continue
		}
		p.matchWash(window, lot, date)
	}

	if window.remainingQty.IsPositive() {
		p.windows[event.Symbol] = append(p.windows[event.Symbol], window)
	}
}

// matchBuyAgainstWindows is called for every BUY and DRIP; the new lot
// absorbs disallowed losses from any open window, oldest sale first.
func (p *Portfolio) matchBuyAgainstWindows(symbol string, lot *Lot, date time.Time) {
	open := p.windows[symbol][:0]
	for _, window := range p.windows[symbol] {
		if date.After(window.expires) {
			continue // expired
		}
		if window.remainingQty.IsPositive() {
			p.matchWash(window, lot, date)
		}
		if window.remainingQty.IsPositive() {
			open = append(open, window)
		}
	}
	p.windows[symbol] = open
}

// matchWash attributes the overlap between a loss window and a
// replacement lot: the disallowed loss moves into the lot's cost basis
// and reduces the recognized loss on the triggering event.
func (p *Portfolio) matchWash(window *washWindow, lot *Lot, date time.Time) {
	capacity := lot.Remaining.Sub(lot.washMatched)
	qty := decimal.Min(window.remainingQty, capacity)
	if !qty.IsPositive() {
		return
	}

	disallowed := roundMoney(window.lossPerShare.Mul(qty))
	if !disallowed.IsPositive() {
		return
	}

	basisTotal := lot.Remaining.Mul(lot.BasisPerShare).Add(disallowed)
	lot.BasisPerShare = roundBasis(basisTotal.Div(lot.Remaining))
	lot.DisallowedLoss = lot.DisallowedLoss.Add(disallowed)
	lot.WashedInto = true
	lot.washMatched = lot.washMatched.Add(qty)

	window.remainingQty = window.remainingQty.Sub(qty)
	window.event.WashDisallowed = window.event.WashDisallowed.Add(disallowed)

	if p.sink != nil {
		p.sink.WashSaleAdjust(date, window.event.ShortTerm, disallowed)
	}

	log.Debug().
		Str("Symbol", lot.Symbol).
		Time("SellDate", window.sellDate).
		Time("BuyDate", date).
		Str("Disallowed", disallowed.String()).
		Msg("wash sale matched")
}

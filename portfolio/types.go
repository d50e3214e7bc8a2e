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

// Package portfolio implements the ledger of cash and tax lots: buys,
// sells with configurable lot disposal, dividends with optional
// reinvestment, splits, contribution-capped deposits, and the wash-sale
// rule. All money is fixed-point decimal: quantities carry four decimal
// places, cash two, and per-share basis six.
package portfolio

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// rounding scales at externally observable boundaries
const (
	QuantityPlaces = 4
	MoneyPlaces    = 2
	BasisPlaces    = 6
)

// lotNamespace seeds deterministic lot ids; two runs over the same
// config and data must produce byte-identical results.
var lotNamespace = uuid.MustParse("b2c1a0de-44c5-4d2b-9fbe-2e79a1f0c0d4")

// Lot is an open tax lot. Remaining quantity is reduced by sells; the
// per-share basis may be raised once by a wash-sale attribution.
type Lot struct {
	ID             uuid.UUID       `json:"id"`
	Symbol         string          `json:"symbol"`
	Quantity       decimal.Decimal `json:"quantity"`
	Remaining      decimal.Decimal `json:"remaining"`
	BasisPerShare  decimal.Decimal `json:"basisPerShare"`
	AcquiredOn     time.Time       `json:"acquiredOn"`
	DisallowedLoss decimal.Decimal `json:"disallowedLoss"`
	WashedInto     bool            `json:"washedInto"`

	// washMatched is the portion of this lot already attributed to a
	// wash-sale window; a share can be matched at most once.
	washMatched decimal.Decimal
}

// TradeAction enumerates ledger entries.
type TradeAction string

const (
	BuyAction      TradeAction = "BUY"
	SellAction     TradeAction = "SELL"
	DripAction     TradeAction = "DRIP"
	DividendAction TradeAction = "DIVIDEND"
	DepositAction  TradeAction = "DEPOSIT"
)

// TradeRecord is an immutable ledger entry. Ids increase monotonically
// in execution order.
type TradeRecord struct {
	ID         uint64          `json:"id"`
	Date       time.Time       `json:"date"`
	Symbol     string          `json:"symbol,omitempty"`
	Action     TradeAction     `json:"action"`
	Quantity   decimal.Decimal `json:"quantity"`
	Price      decimal.Decimal `json:"price"`
	Commission decimal.Decimal `json:"commission"`
	Slippage   decimal.Decimal `json:"slippage"`
	CashDelta  decimal.Decimal `json:"cashDelta"`
	LotIDs     []uuid.UUID     `json:"lotIds,omitempty"`
}

// RealizedEvent captures one lot consumption by a SELL.
type RealizedEvent struct {
	Date           time.Time       `json:"date"`
	Symbol         string          `json:"symbol"`
	Quantity       decimal.Decimal `json:"quantity"`
	Proceeds       decimal.Decimal `json:"proceeds"`
	CostBasis      decimal.Decimal `json:"costBasis"`
	Gain           decimal.Decimal `json:"gain"`
	HoldingDays    int             `json:"holdingDays"`
	ShortTerm      bool            `json:"shortTerm"`
	WashDisallowed decimal.Decimal `json:"washDisallowed"`
	LotID          uuid.UUID       `json:"lotId"`
}

// Position is a derived, read-only view of one symbol's open lots.
type Position struct {
	Symbol string          `json:"symbol"`
	Shares decimal.Decimal `json:"shares"`
	Lots   []*Lot          `json:"lots"`
}

// TaxSink receives taxable events as they happen. The portfolio never
// reads back from the sink; the dependency runs one way only.
type TaxSink interface {
	RealizedGain(date time.Time, shortTerm bool, amount decimal.Decimal)

	// WashSaleAdjust reduces a previously recorded loss by the
	// disallowed amount and counts the wash-sale event.
	WashSaleAdjust(date time.Time, shortTerm bool, disallowed decimal.Decimal)

	Dividend(date time.Time, qualified, ordinary decimal.Decimal)
	Interest(date time.Time, amount decimal.Decimal)
}

func roundMoney(d decimal.Decimal) decimal.Decimal {
	return d.Round(MoneyPlaces)
}

func roundBasis(d decimal.Decimal) decimal.Decimal {
	return d.Round(BasisPlaces)
}

func truncQuantity(d decimal.Decimal) decimal.Decimal {
	return d.RoundDown(QuantityPlaces)
}

func roundQuantity(d decimal.Decimal) decimal.Decimal {
	return d.Round(QuantityPlaces)
}

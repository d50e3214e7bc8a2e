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

// Package data defines the market-data contract the simulation core
// consumes and several PriceSource implementations: in-memory, CSV
// directory, PostgreSQL, and a caching decorator.
package data

import (
	"context"
	"time"
)

// Bar is one trading day of OHLCV data for a single symbol.
type Bar struct {
	Date     time.Time `json:"date"`
	Open     float64   `json:"open"`
	High     float64   `json:"high"`
	Low      float64   `json:"low"`
	Close    float64   `json:"close"`
	AdjClose float64   `json:"adjClose"`
	Volume   int64     `json:"volume"`
}

// DividendAction is a cash dividend. QualifiedFraction is the portion
// taxed at the long-term capital gains rate, in [0, 1].
type DividendAction struct {
	Symbol            string    `json:"symbol"`
	ExDate            time.Time `json:"exDate"`
	Amount            float64   `json:"amount"`
	QualifiedFraction float64   `json:"qualifiedFraction"`
}

// SplitAction is a stock split. Ratio > 1 is a forward split (2.0 for
// 2-for-1); ratio < 1 is a reverse split.
type SplitAction struct {
	Symbol string    `json:"symbol"`
	ExDate time.Time `json:"exDate"`
	Ratio  float64   `json:"ratio"`
}

// PriceSource supplies bars and corporate actions to a simulation. All
// methods must return records in non-decreasing date order and must be
// safe for concurrent readers; comparisons run simulations in parallel
// against a shared source.
type PriceSource interface {
	// Bars returns one bar per trading day in [start, end].
	Bars(ctx context.Context, symbol string, start, end time.Time) ([]*Bar, error)

	// Dividends returns cash dividends with ex-dates in [start, end].
	Dividends(ctx context.Context, symbol string, start, end time.Time) ([]*DividendAction, error)

	// Splits returns splits with ex-dates in [start, end].
	Splits(ctx context.Context, symbol string, start, end time.Time) ([]*SplitAction, error)

	// ExpenseRatio returns the fund's annual expense ratio, or nil when
	// the symbol carries none.
	ExpenseRatio(ctx context.Context, symbol string) (*float64, error)

	// IsDelisted reports whether the symbol stopped trading on or
	// before the given date.
	IsDelisted(ctx context.Context, symbol string, date time.Time) (bool, error)
}

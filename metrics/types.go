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

// Package metrics computes return, risk, and benchmark statistics from a
// daily equity series. Ratios that cannot be computed (fewer than two
// points, zero volatility, missing benchmark) are nil rather than zero.
package metrics

import "time"

// EquityPoint is one day of the simulation's equity curve. Cashflow is
// the net external flow credited that day (deposits are positive).
type EquityPoint struct {
	Date           time.Time `json:"date"`
	Cash           float64   `json:"cash"`
	PositionsValue float64   `json:"positionsValue"`
	Value          float64   `json:"value"`
	Cashflow       float64   `json:"cashflow"`
	DailyReturn    float64   `json:"dailyReturn"`
}

// Cashflow is an external flow used by the IRR calculation; Amount is
// positive for money moving into the portfolio.
type Cashflow struct {
	Date   time.Time `json:"date"`
	Amount float64   `json:"amount"`
}

// Summary is the metric block of a simulation result. Pointer fields are
// null when undefined.
type Summary struct {
	TWR                  float64  `json:"twr"`
	IRR                  *float64 `json:"irr"`
	CAGR                 *float64 `json:"cagr"`
	AnnualizedVolatility *float64 `json:"annualizedVolatility"`
	SharpeRatio          *float64 `json:"sharpeRatio"`
	SortinoRatio         *float64 `json:"sortinoRatio"`
	CalmarRatio          *float64 `json:"calmarRatio"`
	MaxDrawdown          *float64 `json:"maxDrawdown"`
	MaxDrawdownDays      *int     `json:"maxDrawdownDays"`
	HitRatio             *float64 `json:"hitRatio"`
	BestMonth            *float64 `json:"bestMonth"`
	WorstMonth           *float64 `json:"worstMonth"`
	BestQuarter          *float64 `json:"bestQuarter"`
	WorstQuarter         *float64 `json:"worstQuarter"`
	Alpha                *float64 `json:"alpha"`
	Beta                 *float64 `json:"beta"`
	TrackingError        *float64 `json:"trackingError"`
	InformationRatio     *float64 `json:"informationRatio"`
}

func ptr(v float64) *float64 {
	return &v
}

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

package backtest

import (
	"fmt"
	"time"
)

// Kind classifies a simulation error for the host.
type Kind string

const (
	KindConfigurationInvalid Kind = "ConfigurationInvalid"
	KindDataUnavailable      Kind = "DataUnavailable"
	KindInsufficientCash     Kind = "InsufficientCash"
	KindInsufficientShares   Kind = "InsufficientShares"
	KindContributionCap      Kind = "ContributionCapExceeded"
	KindCancelledByHost      Kind = "CancelledByHost"
	KindInternalConsistency  Kind = "InternalConsistency"
)

// Error is a fatal simulation failure. Date and Symbol identify the
// offending day and instrument when known.
type Error struct {
	Kind   Kind
	Date   time.Time
	Symbol string
	Err    error
}

func (e *Error) Error() string {
	msg := string(e.Kind)
	if e.Symbol != "" {
		msg += " symbol=" + e.Symbol
	}
	if !e.Date.IsZero() {
		msg += " date=" + e.Date.Format("2006-01-02")
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %s", msg, e.Err.Error())
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

func fatal(kind Kind, date time.Time, symbol string, err error) *Error {
	return &Error{Kind: kind, Date: date, Symbol: symbol, Err: err}
}

// Warning is a non-fatal event surfaced in the result bundle.
type Warning struct {
	Date    time.Time `json:"date"`
	Kind    string    `json:"kind"`
	Symbol  string    `json:"symbol,omitempty"`
	Message string    `json:"message"`
}

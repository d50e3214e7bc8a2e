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

package data

import (
	"context"
	"sort"
	"time"
)

// MemorySource is a PriceSource backed by preloaded slices. Once handed
// to a simulation it must not be mutated, which makes it trivially safe
// for concurrent readers. The CSV loader and the test suites build on it.
type MemorySource struct {
	bars      map[string][]*Bar
	dividends map[string][]*DividendAction
	splits    map[string][]*SplitAction
	expense   map[string]float64
	delisted  map[string]time.Time
}

func NewMemorySource() *MemorySource {
	return &MemorySource{
		bars:      make(map[string][]*Bar),
		dividends: make(map[string][]*DividendAction),
		splits:    make(map[string][]*SplitAction),
		expense:   make(map[string]float64),
		delisted:  make(map[string]time.Time),
	}
}

// AddBars registers bars for a symbol, keeping the series date-sorted.
func (m *MemorySource) AddBars(symbol string, bars ...*Bar) {
	m.bars[symbol] = append(m.bars[symbol], bars...)
	sort.SliceStable(m.bars[symbol], func(i, j int) bool {
		return m.bars[symbol][i].Date.Before(m.bars[symbol][j].Date)
	})
}

func (m *MemorySource) AddDividends(symbol string, dividends ...*DividendAction) {
	m.dividends[symbol] = append(m.dividends[symbol], dividends...)
	sort.SliceStable(m.dividends[symbol], func(i, j int) bool {
		return m.dividends[symbol][i].ExDate.Before(m.dividends[symbol][j].ExDate)
	})
}

func (m *MemorySource) AddSplits(symbol string, splits ...*SplitAction) {
	m.splits[symbol] = append(m.splits[symbol], splits...)
	sort.SliceStable(m.splits[symbol], func(i, j int) bool {
		return m.splits[symbol][i].ExDate.Before(m.splits[symbol][j].ExDate)
	})
}

func (m *MemorySource) SetExpenseRatio(symbol string, ratio float64) {
	m.expense[symbol] = ratio
}

// SetDelisted marks the symbol as no longer trading after the given date.
func (m *MemorySource) SetDelisted(symbol string, date time.Time) {
	m.delisted[symbol] = date
}

func (m *MemorySource) Bars(_ context.Context, symbol string, start, end time.Time) ([]*Bar, error) {
	if start.After(end) {
		return nil, ErrInvalidTimeRange
	}
	series, ok := m.bars[symbol]
	if !ok {
		return nil, ErrSymbolNotFound
	}

	res := make([]*Bar, 0, len(series))
	for _, bar := range series {
		if !bar.Date.Before(start) && !bar.Date.After(end) {
			res = append(res, bar)
		}
	}
	return res, nil
}

func (m *MemorySource) Dividends(_ context.Context, symbol string, start, end time.Time) ([]*DividendAction, error) {
	if start.After(end) {
		return nil, ErrInvalidTimeRange
	}

	res := make([]*DividendAction, 0)
	for _, div := range m.dividends[symbol] {
		if !div.ExDate.Before(start) && !div.ExDate.After(end) {
			res = append(res, div)
		}
	}
	return res, nil
}

func (m *MemorySource) Splits(_ context.Context, symbol string, start, end time.Time) ([]*SplitAction, error) {
	if start.After(end) {
		return nil, ErrInvalidTimeRange
	}

	res := make([]*SplitAction, 0)
	for _, split := range m.splits[symbol] {
		if !split.ExDate.Before(start) && !split.ExDate.After(end) {
			res = append(res, split)
		}
	}
	return res, nil
}

func (m *MemorySource) ExpenseRatio(_ context.Context, symbol string) (*float64, error) {
	if ratio, ok := m.expense[symbol]; ok {
		return &ratio, nil
	}
	return nil, nil
}

func (m *MemorySource) IsDelisted(_ context.Context, symbol string, date time.Time) (bool, error) {
	if _, ok := m.bars[symbol]; !ok {
		return false, ErrSymbolNotFound
	}
	last, ok := m.delisted[symbol]
	if !ok {
		return false, nil
	}
	return date.After(last), nil
}

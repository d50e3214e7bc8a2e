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
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"

	"github.com/foliosim/foliosim/calendar"
	"github.com/foliosim/foliosim/data"
	"github.com/foliosim/foliosim/observability/opentelemetry"
)

func dayKey(t time.Time) int64 {
	return int64(t.Year())*10000 + int64(t.Month())*100 + int64(t.Day())
}

// dataset is the preloaded, day-indexed view of the PriceSource for one
// simulation. Loading everything up front keeps the daily loop free of
// I/O and makes the run deterministic with respect to the source.
type dataset struct {
	bars      map[string]map[int64]*data.Bar
	dividends map[string]map[int64][]*data.DividendAction
	splits    map[string]map[int64][]*data.SplitAction
	expense   map[string]float64

	// preHistory holds closes before the period start, oldest first,
	// used to warm up signal indicators.
	preHistory map[string][]float64
}

// loadDataset fetches bars and corporate actions for every symbol. The
// bar fetch reaches back warmupDays calendar days before the period so
// indicators have history on day one.
func loadDataset(ctx context.Context, source data.PriceSource, symbols []string,
	start, end time.Time, warmupDays int, useExpenseRatios bool) (*dataset, error) {
	ctx, span := otel.Tracer(opentelemetry.Name).Start(ctx, "backtest.loadDataset")
	defer span.End()

	ds := &dataset{
		bars:       make(map[string]map[int64]*data.Bar, len(symbols)),
		dividends:  make(map[string]map[int64][]*data.DividendAction, len(symbols)),
		splits:     make(map[string]map[int64][]*data.SplitAction, len(symbols)),
		expense:    make(map[string]float64),
		preHistory: make(map[string][]float64),
	}

	histStart := calendar.Midnight(start).AddDate(0, 0, -warmupDays)
	periodStart := calendar.Midnight(start)

	for _, symbol := range symbols {
		if _, ok := ds.bars[symbol]; ok {
			continue // universe and benchmark may overlap
		}

		bars, err := source.Bars(ctx, symbol, histStart, end)
		if err != nil {
			return nil, fatal(KindDataUnavailable, start, symbol, err)
		}
		byDay := make(map[int64]*data.Bar, len(bars))
		for _, bar := range bars {
			byDay[dayKey(bar.Date)] = bar
			if bar.Date.Before(periodStart) {
				ds.preHistory[symbol] = append(ds.preHistory[symbol], bar.Close)
			}
		}
		ds.bars[symbol] = byDay

		dividends, err := source.Dividends(ctx, symbol, start, end)
		if err != nil {
			return nil, fatal(KindDataUnavailable, start, symbol, err)
		}
		divsByDay := make(map[int64][]*data.DividendAction)
		for _, div := range dividends {
			key := dayKey(div.ExDate)
			divsByDay[key] = append(divsByDay[key], div)
		}
		ds.dividends[symbol] = divsByDay

		splits, err := source.Splits(ctx, symbol, start, end)
		if err != nil {
			return nil, fatal(KindDataUnavailable, start, symbol, err)
		}
		splitsByDay := make(map[int64][]*data.SplitAction)
		for _, split := range splits {
			key := dayKey(split.ExDate)
			splitsByDay[key] = append(splitsByDay[key], split)
		}
		ds.splits[symbol] = splitsByDay

		if useExpenseRatios {
			er, err := source.ExpenseRatio(ctx, symbol)
			if err != nil {
				return nil, fatal(KindDataUnavailable, start, symbol, err)
			}
			if er != nil && *er > 0 {
				ds.expense[symbol] = *er
			}
		}
	}

	log.Debug().Int("Symbols", len(ds.bars)).Msg("dataset loaded")
	return ds, nil
}

func (ds *dataset) bar(symbol string, date time.Time) (*data.Bar, bool) {
	bar, ok := ds.bars[symbol][dayKey(date)]
	return bar, ok
}

func (ds *dataset) dividendsOn(symbol string, date time.Time) []*data.DividendAction {
	return ds.dividends[symbol][dayKey(date)]
}

func (ds *dataset) splitsOn(symbol string, date time.Time) []*data.SplitAction {
	return ds.splits[symbol][dayKey(date)]
}

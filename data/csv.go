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
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"github.com/rs/zerolog/log"
)

// csvDateLayout is the date format used by all CSV inputs.
const csvDateLayout = "2006-01-02"

// securityMeta is the per-symbol entry in securities.json.
type securityMeta struct {
	ExpenseRatio *float64 `json:"expenseRatio"`
	DelistedOn   string   `json:"delistedOn"`
}

// LoadCSVDir builds a MemorySource from a directory of CSV files:
//
//	<SYMBOL>.csv            date,open,high,low,close,adj_close,volume
//	<SYMBOL>.dividends.csv  ex_date,amount,qualified_fraction
//	<SYMBOL>.splits.csv     ex_date,ratio
//	securities.json         optional expense ratios and delisting dates
//
// Every file carries a header row. The whole directory is read eagerly
// so the resulting source is immutable and safe to share.
func LoadCSVDir(dir string) (*MemorySource, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	src := NewMemorySource()
	for _, entry := range entries {
		name := entry.Name()
		full := filepath.Join(dir, name)
		switch {
		case entry.IsDir():
			continue
		case name == "securities.json":
			if err := loadSecurityMeta(full, src); err != nil {
				return nil, err
			}
		case strings.HasSuffix(name, ".dividends.csv"):
			symbol := strings.TrimSuffix(name, ".dividends.csv")
			if err := loadDividendCSV(full, symbol, src); err != nil {
				return nil, err
			}
		case strings.HasSuffix(name, ".splits.csv"):
			symbol := strings.TrimSuffix(name, ".splits.csv")
			if err := loadSplitCSV(full, symbol, src); err != nil {
				return nil, err
			}
		case strings.HasSuffix(name, ".csv"):
			symbol := strings.TrimSuffix(name, ".csv")
			if err := loadBarCSV(full, symbol, src); err != nil {
				return nil, err
			}
		default:
			log.Debug().Str("File", name).Msg("skipping unrecognized file in data directory")
		}
	}
	return src, nil
}

func loadSecurityMeta(path string, src *MemorySource) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	meta := make(map[string]securityMeta)
	if err := json.Unmarshal(raw, &meta); err != nil {
		return fmt.Errorf("%w: securities.json: %s", ErrMalformedRecord, err.Error())
	}

	for symbol, entry := range meta {
		if entry.ExpenseRatio != nil {
			src.SetExpenseRatio(symbol, *entry.ExpenseRatio)
		}
		if entry.DelistedOn != "" {
			d, err := time.Parse(csvDateLayout, entry.DelistedOn)
			if err != nil {
				return fmt.Errorf("%w: securities.json delistedOn for %s", ErrMalformedRecord, symbol)
			}
			src.SetDelisted(symbol, d)
		}
	}
	return nil
}

func readCSVRows(path string, wantFields int) ([][]string, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer fh.Close()

	reader := csv.NewReader(fh)
	reader.FieldsPerRecord = wantFields
	reader.TrimLeadingSpace = true

	rows := make([][]string, 0, 256)
	header := true
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %s", ErrMalformedRecord, filepath.Base(path), err.Error())
		}
		if header {
			header = false
			continue
		}
		rows = append(rows, record)
	}
	return rows, nil
}

func loadBarCSV(path, symbol string, src *MemorySource) error {
	rows, err := readCSVRows(path, 7)
	if err != nil {
		return err
	}

	bars := make([]*Bar, 0, len(rows))
	for _, row := range rows {
		d, err := time.Parse(csvDateLayout, row[0])
		if err != nil {
			return fmt.Errorf("%w: %s date %q", ErrMalformedRecord, symbol, row[0])
		}

		fields := make([]float64, 5)
		for idx := 0; idx < 5; idx++ {
			fields[idx], err = strconv.ParseFloat(row[idx+1], 64)
			if err != nil {
				return fmt.Errorf("%w: %s %s field %d", ErrMalformedRecord, symbol, row[0], idx+1)
			}
		}
		volume, err := strconv.ParseInt(row[6], 10, 64)
		if err != nil {
			return fmt.Errorf("%w: %s %s volume", ErrMalformedRecord, symbol, row[0])
		}

		bars = append(bars, &Bar{
			Date:     d,
			Open:     fields[0],
			High:     fields[1],
			Low:      fields[2],
			Close:    fields[3],
			AdjClose: fields[4],
			Volume:   volume,
		})
	}

	src.AddBars(symbol, bars...)
	return nil
}

func loadDividendCSV(path, symbol string, src *MemorySource) error {
	rows, err := readCSVRows(path, 3)
	if err != nil {
		return err
	}

	for _, row := range rows {
		d, err := time.Parse(csvDateLayout, row[0])
		if err != nil {
			return fmt.Errorf("%w: %s dividend date %q", ErrMalformedRecord, symbol, row[0])
		}
		amount, err := strconv.ParseFloat(row[1], 64)
		if err != nil {
			return fmt.Errorf("%w: %s dividend amount", ErrMalformedRecord, symbol)
		}
		qualified, err := strconv.ParseFloat(row[2], 64)
		if err != nil || qualified < 0 || qualified > 1 {
			return fmt.Errorf("%w: %s qualified fraction", ErrMalformedRecord, symbol)
		}

		src.AddDividends(symbol, &DividendAction{
			Symbol:            symbol,
			ExDate:            d,
			Amount:            amount,
			QualifiedFraction: qualified,
		})
	}
	return nil
}

func loadSplitCSV(path, symbol string, src *MemorySource) error {
	rows, err := readCSVRows(path, 2)
	if err != nil {
		return err
	}

	for _, row := range rows {
		d, err := time.Parse(csvDateLayout, row[0])
		if err != nil {
			return fmt.Errorf("%w: %s split date %q", ErrMalformedRecord, symbol, row[0])
		}
		ratio, err := strconv.ParseFloat(row[1], 64)
		if err != nil || ratio <= 0 {
			return fmt.Errorf("%w: %s split ratio", ErrMalformedRecord, symbol)
		}

		src.AddSplits(symbol, &SplitAction{Symbol: symbol, ExDate: d, Ratio: ratio})
	}
	return nil
}

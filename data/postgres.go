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
	"time"

	"github.com/jackc/pgtype"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"

	"github.com/foliosim/foliosim/observability/opentelemetry"
)

// PostgresSource reads bars and corporate actions from a PostgreSQL
// database with the schema:
//
//	eod(ticker, event_date, open, high, low, close, adj_close, volume)
//	dividends(ticker, ex_date, amount, qualified_fraction)
//	splits(ticker, ex_date, ratio)
//	securities(ticker, expense_ratio, delisted_on)
//
// Reads run against a pgx connection pool and are safe for concurrent use.
type PostgresSource struct {
	pool *pgxpool.Pool
}

// NewPostgresSource connects to the database named by the database.url
// viper setting.
func NewPostgresSource(ctx context.Context) (*PostgresSource, error) {
	pool, err := pgxpool.Connect(ctx, viper.GetString("database.url"))
	if err != nil {
		log.Error().Stack().Err(err).Msg("could not connect to database")
		return nil, err
	}
	return &PostgresSource{pool: pool}, nil
}

// Close releases the underlying connection pool.
func (p *PostgresSource) Close() {
	p.pool.Close()
}

func (p *PostgresSource) Bars(ctx context.Context, symbol string, start, end time.Time) ([]*Bar, error) {
	ctx, span := otel.Tracer(opentelemetry.Name).Start(ctx, "postgres.Bars")
	defer span.End()

	if start.After(end) {
		return nil, ErrInvalidTimeRange
	}

	subLog := log.With().Str("Symbol", symbol).Time("Start", start).Time("End", end).Logger()
	rows, err := p.pool.Query(ctx,
		`SELECT event_date, open, high, low, close, adj_close, volume
		 FROM eod WHERE ticker=$1 AND event_date BETWEEN $2 AND $3
		 ORDER BY event_date`, symbol, start, end)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "database query failed")
		subLog.Warn().Stack().Err(err).Msg("could not query eod bars")
		return nil, err
	}
	defer rows.Close()

	bars := make([]*Bar, 0, 252)
	for rows.Next() {
		bar := &Bar{}
		var volume pgtype.Int8
		if err := rows.Scan(&bar.Date, &bar.Open, &bar.High, &bar.Low, &bar.Close, &bar.AdjClose, &volume); err != nil {
			subLog.Warn().Stack().Err(err).Msg("could not scan eod row")
			return nil, err
		}
		if volume.Status == pgtype.Present {
			bar.Volume = volume.Int
		}
		bar.Date = midnightUTC(bar.Date)
		bars = append(bars, bar)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}

	if len(bars) == 0 {
		span.SetStatus(codes.Error, "no bars found")
		subLog.Warn().Stack().Msg("no bars found for symbol")
		return nil, ErrSymbolNotFound
	}
	return bars, nil
}

func (p *PostgresSource) Dividends(ctx context.Context, symbol string, start, end time.Time) ([]*DividendAction, error) {
	ctx, span := otel.Tracer(opentelemetry.Name).Start(ctx, "postgres.Dividends")
	defer span.End()

	if start.After(end) {
		return nil, ErrInvalidTimeRange
	}

	rows, err := p.pool.Query(ctx,
		`SELECT ex_date, amount, qualified_fraction
		 FROM dividends WHERE ticker=$1 AND ex_date BETWEEN $2 AND $3
		 ORDER BY ex_date`, symbol, start, end)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "database query failed")
		log.Warn().Stack().Err(err).Str("Symbol", symbol).Msg("could not query dividends")
		return nil, err
	}
	defer rows.Close()

	dividends := make([]*DividendAction, 0)
	for rows.Next() {
		div := &DividendAction{Symbol: symbol}
		var qualified pgtype.Float8
		if err := rows.Scan(&div.ExDate, &div.Amount, &qualified); err != nil {
			log.Warn().Stack().Err(err).Str("Symbol", symbol).Msg("could not scan dividend row")
			return nil, err
		}
		if qualified.Status == pgtype.Present {
			div.QualifiedFraction = qualified.Float
		}
		div.ExDate = midnightUTC(div.ExDate)
		dividends = append(dividends, div)
	}
	return dividends, rows.Err()
}

func (p *PostgresSource) Splits(ctx context.Context, symbol string, start, end time.Time) ([]*SplitAction, error) {
	ctx, span := otel.Tracer(opentelemetry.Name).Start(ctx, "postgres.Splits")
	defer span.End()

	if start.After(end) {
		return nil, ErrInvalidTimeRange
	}

	rows, err := p.pool.Query(ctx,
		`SELECT ex_date, ratio FROM splits
		 WHERE ticker=$1 AND ex_date BETWEEN $2 AND $3
		 ORDER BY ex_date`, symbol, start, end)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "database query failed")
		log.Warn().Stack().Err(err).Str("Symbol", symbol).Msg("could not query splits")
		return nil, err
	}
	defer rows.Close()

	splits := make([]*SplitAction, 0)
	for rows.Next() {
		split := &SplitAction{Symbol: symbol}
		if err := rows.Scan(&split.ExDate, &split.Ratio); err != nil {
			log.Warn().Stack().Err(err).Str("Symbol", symbol).Msg("could not scan split row")
			return nil, err
		}
		split.ExDate = midnightUTC(split.ExDate)
		splits = append(splits, split)
	}
	return splits, rows.Err()
}

func (p *PostgresSource) ExpenseRatio(ctx context.Context, symbol string) (*float64, error) {
	ctx, span := otel.Tracer(opentelemetry.Name).Start(ctx, "postgres.ExpenseRatio")
	defer span.End()

	var ratio pgtype.Float8
	err := p.pool.QueryRow(ctx,
		"SELECT expense_ratio FROM securities WHERE ticker=$1", symbol).Scan(&ratio)
	if err != nil {
		span.RecordError(err)
		log.Warn().Stack().Err(err).Str("Symbol", symbol).Msg("could not query expense ratio")
		return nil, ErrSymbolNotFound
	}
	if ratio.Status != pgtype.Present {
		return nil, nil
	}
	return &ratio.Float, nil
}

func (p *PostgresSource) IsDelisted(ctx context.Context, symbol string, date time.Time) (bool, error) {
	ctx, span := otel.Tracer(opentelemetry.Name).Start(ctx, "postgres.IsDelisted")
	defer span.End()

	var delistedOn pgtype.Date
	err := p.pool.QueryRow(ctx,
		"SELECT delisted_on FROM securities WHERE ticker=$1", symbol).Scan(&delistedOn)
	if err != nil {
		span.RecordError(err)
		log.Warn().Stack().Err(err).Str("Symbol", symbol).Msg("could not query delisting status")
		return false, ErrSymbolNotFound
	}
	if delistedOn.Status != pgtype.Present {
		return false, nil
	}
	return date.After(delistedOn.Time), nil
}

func midnightUTC(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

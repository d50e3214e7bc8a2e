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

package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"

	"github.com/foliosim/foliosim/config"
	"github.com/foliosim/foliosim/data"
	"github.com/foliosim/foliosim/observability/opentelemetry"
)

// loadStrategy reads and validates a strategy configuration file.
func loadStrategy(path string) (*config.StrategyConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg, err := config.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// buildSource selects the price source: a CSV directory when --data-dir
// is set, otherwise PostgreSQL behind the caching tier.
func buildSource(ctx context.Context, dataDir string) (data.PriceSource, error) {
	if dataDir != "" {
		log.Debug().Str("Dir", dataDir).Msg("loading prices from CSV directory")
		return data.LoadCSVDir(dataDir)
	}

	pg, err := data.NewPostgresSource(ctx)
	if err != nil {
		return nil, err
	}
	return data.NewCachingSource(pg)
}

// setupTracing starts the OTLP exporter when an endpoint is configured.
// The returned shutdown function is always safe to call.
func setupTracing(ctx context.Context) func() {
	if viper.GetString("otlp.endpoint") == "" {
		return func() {}
	}

	shutdown, err := opentelemetry.Setup()
	if err != nil {
		log.Warn().Stack().Err(err).Msg("could not initialize tracing")
		return func() {}
	}
	return func() {
		if err := shutdown(ctx); err != nil {
			log.Warn().Stack().Err(err).Msg("could not flush trace spans")
		}
	}
}

func fmtMoney(v float64) string {
	return fmt.Sprintf("%.2f", v)
}

func fmtPct(v *float64) string {
	if v == nil {
		return "n/a"
	}
	return fmt.Sprintf("%.2f%%", *v*100)
}

func fmtRatio(v *float64) string {
	if v == nil {
		return "n/a"
	}
	return fmt.Sprintf("%.2f", *v)
}

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
	"os"
	"os/signal"

	"github.com/olekukonko/tablewriter"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/foliosim/foliosim/backtest"
)

var compareDataDir string

func init() {
	rootCmd.AddCommand(compareCmd)

	compareCmd.Flags().StringVar(&compareDataDir, "data-dir", "", "Directory of CSV price files; overrides the database source")
}

var compareCmd = &cobra.Command{
	Use:   "compare [flags] strategy.json strategy.json...",
	Short: "Run several strategies and tabulate their metrics side by side",
	Args:  cobra.MinimumNArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		flush := setupTracing(ctx)
		defer flush()

		source, err := buildSource(ctx, compareDataDir)
		if err != nil {
			log.Fatal().Err(err).Msg("could not build price source")
		}

		results := make([]*backtest.Result, len(args))
		group, groupCtx := errgroup.WithContext(ctx)
		for idx, path := range args {
			idx, path := idx, path
			group.Go(func() error {
				cfg, err := loadStrategy(path)
				if err != nil {
					return err
				}

				driver, err := backtest.New(cfg, source)
				if err != nil {
					return err
				}

				res, err := driver.Run(groupCtx)
				if err != nil {
					log.Error().Stack().Err(err).Str("Strategy", cfg.Meta.Name).Msg("simulation aborted; result is partial")
				}
				results[idx] = res
				return nil
			})
		}

		if err := group.Wait(); err != nil {
			log.Fatal().Err(err).Msg("comparison failed")
		}

		table := tablewriter.NewWriter(os.Stdout)
		table.SetHeader([]string{"Strategy", "TWR", "CAGR", "Volatility", "Sharpe", "Max DD", "Final Value"})
		table.SetBorder(false)

		for _, res := range results {
			if res == nil || res.Metrics == nil {
				continue
			}

			name := res.Config.Meta.Name
			if res.Partial {
				name += " (partial)"
			}
			twr := res.Metrics.TWR
			table.Append([]string{
				name,
				fmtPct(&twr),
				fmtPct(res.Metrics.CAGR),
				fmtPct(res.Metrics.AnnualizedVolatility),
				fmtRatio(res.Metrics.SharpeRatio),
				fmtPct(res.Metrics.MaxDrawdown),
				fmtMoney(res.FinalValue),
			})
		}

		table.Render()
	},
}

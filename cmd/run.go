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
	"os/signal"
	"strconv"

	json "github.com/goccy/go-json"
	"github.com/olekukonko/tablewriter"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/foliosim/foliosim/backtest"
	"github.com/foliosim/foliosim/metrics"
	"github.com/foliosim/foliosim/tax"
)

var (
	runDataDir string
	runOutput  string
)

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVar(&runDataDir, "data-dir", "", "Directory of CSV price files; overrides the database source")
	runCmd.Flags().StringVar(&runOutput, "output", "", "Write the full result bundle as JSON to the given path")
}

var runCmd = &cobra.Command{
	Use:   "run [flags] strategy.json",
	Short: "Run a backtest of a strategy configuration",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		flush := setupTracing(ctx)
		defer flush()

		cfg, err := loadStrategy(args[0])
		if err != nil {
			log.Fatal().Err(err).Msg("could not load strategy configuration")
		}

		source, err := buildSource(ctx, runDataDir)
		if err != nil {
			log.Fatal().Err(err).Msg("could not build price source")
		}

		driver, err := backtest.New(cfg, source)
		if err != nil {
			log.Fatal().Err(err).Msg("could not construct simulation")
		}

		res, err := driver.Run(ctx)
		if err != nil {
			log.Error().Stack().Err(err).Msg("simulation aborted; result is partial")
		}
		if res == nil {
			os.Exit(1)
		}

		printResult(res)

		if runOutput != "" {
			if err := writeResult(res, runOutput); err != nil {
				log.Fatal().Err(err).Str("Path", runOutput).Msg("could not write result")
			}
			fmt.Printf("\nResult written to %s\n", runOutput)
		}

		if res.Partial {
			os.Exit(1)
		}
	},
}

func printResult(res *backtest.Result) {
	fmt.Printf("Strategy: %s\n", res.Config.Meta.Name)
	if res.Partial {
		fmt.Println("*** PARTIAL RESULT ***")
	}
	if len(res.Equity) > 0 {
		first := res.Equity[0]
		last := res.Equity[len(res.Equity)-1]
		fmt.Printf("Period: %s to %s (%d trading days)\n",
			first.Date.Format("2006-01-02"), last.Date.Format("2006-01-02"), len(res.Equity))
	}
	fmt.Printf("Final Value: %s  After-Tax Equivalent: %s\n",
		fmtMoney(res.FinalValue), fmtMoney(res.AfterTaxValue))
	fmt.Printf("Total Deposited: %s  External Tax Paid: %s\n",
		fmtMoney(res.TotalDeposited), fmtMoney(res.ExternalTaxLiability))
	fmt.Printf("Rebalances: %d  Trades: %d  Deposits: %d\n",
		res.Diagnostics.Rebalances, res.Diagnostics.TradesExecuted, res.Diagnostics.Deposits)

	if res.Metrics != nil {
		fmt.Println()
		printMetrics(res.Metrics)
	}

	if len(res.TaxYears) > 0 {
		fmt.Println()
		printTaxYears(res.TaxYears)
	}

	if len(res.Warnings) > 0 {
		fmt.Printf("\nWarnings: %d\n", len(res.Warnings))
		for _, w := range res.Warnings {
			fmt.Printf("  %s %s %s: %s\n", w.Date.Format("2006-01-02"), w.Kind, w.Symbol, w.Message)
		}
	}

	fmt.Printf("\nChecksum: %s\n", res.Checksum)
}

func printMetrics(m *metrics.Summary) {
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Metric", "Value"})
	table.SetBorder(false)

	twr := m.TWR
	table.Append([]string{"Time-Weighted Return", fmtPct(&twr)})
	table.Append([]string{"Money-Weighted Return (IRR)", fmtPct(m.IRR)})
	table.Append([]string{"CAGR", fmtPct(m.CAGR)})
	table.Append([]string{"Annualized Volatility", fmtPct(m.AnnualizedVolatility)})
	table.Append([]string{"Sharpe Ratio", fmtRatio(m.SharpeRatio)})
	table.Append([]string{"Sortino Ratio", fmtRatio(m.SortinoRatio)})
	table.Append([]string{"Calmar Ratio", fmtRatio(m.CalmarRatio)})
	table.Append([]string{"Max Drawdown", fmtPct(m.MaxDrawdown)})
	if m.MaxDrawdownDays != nil {
		table.Append([]string{"Max Drawdown Duration", fmt.Sprintf("%d days", *m.MaxDrawdownDays)})
	}
	table.Append([]string{"Hit Ratio", fmtPct(m.HitRatio)})
	table.Append([]string{"Best Month", fmtPct(m.BestMonth)})
	table.Append([]string{"Worst Month", fmtPct(m.WorstMonth)})
	table.Append([]string{"Best Quarter", fmtPct(m.BestQuarter)})
	table.Append([]string{"Worst Quarter", fmtPct(m.WorstQuarter)})
	if m.Beta != nil {
		table.Append([]string{"Alpha", fmtPct(m.Alpha)})
		table.Append([]string{"Beta", fmtRatio(m.Beta)})
		table.Append([]string{"Tracking Error", fmtPct(m.TrackingError)})
		table.Append([]string{"Information Ratio", fmtRatio(m.InformationRatio)})
	}

	table.Render()
}

func printTaxYears(years []*tax.YearSummary) {
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Year", "Short-Term", "Long-Term", "Qualified Div", "Ordinary Div", "Interest", "Wash Sales", "Tax"})
	table.SetBorder(false)

	for _, y := range years {
		table.Append([]string{
			strconv.Itoa(y.Year),
			y.ShortTermGains.StringFixed(2),
			y.LongTermGains.StringFixed(2),
			y.QualifiedDividend.StringFixed(2),
			y.OrdinaryDividend.StringFixed(2),
			y.Interest.StringFixed(2),
			strconv.Itoa(y.WashSaleCount),
			y.TotalTax.StringFixed(2),
		})
	}

	table.Render()
}

func writeResult(res *backtest.Result, path string) error {
	raw, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, raw, 0o644)
}

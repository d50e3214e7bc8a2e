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

// Package signals gates target weights on technical indicator rules. All
// indicators are evaluated on closes up to and including the prior
// trading day; the current day's close never feeds a decision made that
// day. A symbol whose rules are not all satisfied has its target weight
// forced to zero. Freed weight is left as cash, not redistributed.
package signals

import (
	"math"

	"github.com/markcheno/go-talib"

	"github.com/foliosim/foliosim/config"
)

// breakoutDefaultPeriod is the 52-week lookback in trading days.
const breakoutDefaultPeriod = 252

type Evaluator struct {
	rules map[string][]config.SignalRule
}

func New(rules []config.SignalRule) *Evaluator {
	bySymbol := make(map[string][]config.SignalRule, len(rules))
	for _, rule := range rules {
		bySymbol[rule.Symbol] = append(bySymbol[rule.Symbol], rule)
	}
	return &Evaluator{rules: bySymbol}
}

func (eval *Evaluator) HasRules(symbol string) bool {
	return len(eval.rules[symbol]) > 0
}

// MaxLookback reports the longest close history any rule needs, plus a
// bar for the cross comparison. The driver uses it to size the rolling
// window it feeds Active.
func (eval *Evaluator) MaxLookback() int {
	max := 0
	for _, rules := range eval.rules {
		for _, rule := range rules {
			if n := minBars(&rule); n > max {
				max = n
			}
		}
	}
	return max
}

// Active reports whether every rule configured for symbol passes on the
// supplied close history. Symbols without rules are always active.
// Insufficient history fails the rule: the symbol stays out of the
// market until the indicator warms up.
func (eval *Evaluator) Active(symbol string, closes []float64) bool {
	rules, ok := eval.rules[symbol]
	if !ok {
		return true
	}
	for i := range rules {
		if !evaluate(&rules[i], closes) {
			return false
		}
	}
	return true
}

// Apply zeroes the weight of every gated symbol. closes maps each symbol
// to its history through the prior day.
func (eval *Evaluator) Apply(weights map[string]float64, closes map[string][]float64) map[string]float64 {
	if len(eval.rules) == 0 {
		return weights
	}

	gated := make(map[string]float64, len(weights))
	for symbol, weight := range weights {
		if eval.Active(symbol, closes[symbol]) {
			gated[symbol] = weight
		} else {
			gated[symbol] = 0
		}
	}
	return gated
}

func breakoutPeriod(rule *config.SignalRule) int {
	if rule.Period > 0 {
		return rule.Period
	}
	return breakoutDefaultPeriod
}

func signalPeriod(rule *config.SignalRule) int {
	if rule.SignalPeriod > 0 {
		return rule.SignalPeriod
	}
	return 9
}

// minBars is the history length needed before the rule's comparison and
// its one-bar cross lookback are both fed by warmed-up values.
func minBars(rule *config.SignalRule) int {
	switch rule.Indicator {
	case "SMA", "BOLLINGER":
		return rule.Period + 2
	case "SMA_CROSS", "EMA_CROSS":
		return rule.Slow + 2
	case "RSI", "MOMENTUM":
		return rule.Period + 3
	case "MACD":
		return rule.Slow + signalPeriod(rule) + 2
	case "BREAKOUT_52W":
		return breakoutPeriod(rule) + 3
	}
	return 0
}

// evaluate builds the rule's two comparison series and applies the rule
// operator at the final bar.
func evaluate(rule *config.SignalRule, closes []float64) bool {
	if len(closes) < minBars(rule) {
		return false
	}

	var line, reference []float64
	switch rule.Indicator {
	case "SMA":
		// price relative to its own moving average
		line = closes
		reference = talib.Sma(closes, rule.Period)
	case "SMA_CROSS":
		line = talib.Sma(closes, rule.Fast)
		reference = talib.Sma(closes, rule.Slow)
	case "EMA_CROSS":
		line = talib.Ema(closes, rule.Fast)
		reference = talib.Ema(closes, rule.Slow)
	case "RSI":
		line = talib.Rsi(closes, rule.Period)
		reference = constant(len(line), rule.Threshold)
	case "MACD":
		macd, signal, _ := talib.Macd(closes, rule.Fast, rule.Slow, signalPeriod(rule))
		line = macd
		reference = signal
	case "MOMENTUM":
		line = talib.Mom(closes, rule.Period)
		reference = constant(len(line), rule.Threshold)
	case "BREAKOUT_52W":
		// prior rolling high, excluding the current bar
		line = closes
		reference = shift(talib.Max(closes, breakoutPeriod(rule)), 1)
	case "BOLLINGER":
		upper, _, lower := talib.BBands(closes, rule.Period, 2, 2, talib.SMA)
		line = closes
		if rule.Rule == "BELOW" || rule.Rule == "CROSS_DOWN" {
			reference = lower
		} else {
			reference = upper
		}
	default:
		return false
	}

	return compare(rule.Rule, line, reference)
}

func compare(op string, line, reference []float64) bool {
	n := len(line)
	if len(reference) < n {
		n = len(reference)
	}
	if n < 2 {
		return false
	}

	cur, prev := n-1, n-2
	if bad(line[cur]) || bad(reference[cur]) || bad(line[prev]) || bad(reference[prev]) {
		return false
	}

	switch op {
	case "ABOVE":
		return line[cur] > reference[cur]
	case "BELOW":
		return line[cur] < reference[cur]
	case "CROSS_UP":
		return line[prev] <= reference[prev] && line[cur] > reference[cur]
	case "CROSS_DOWN":
		return line[prev] >= reference[prev] && line[cur] < reference[cur]
	}
	return false
}

func bad(v float64) bool {
	return math.IsNaN(v) || math.IsInf(v, 0)
}

func constant(n int, v float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = v
	}
	return out
}

// shift moves values right by k, dropping the tail; the head is NaN so a
// comparison against it always fails.
func shift(values []float64, k int) []float64 {
	out := make([]float64, len(values))
	for i := range out {
		if i < k {
			out[i] = math.NaN()
		} else {
			out[i] = values[i-k]
		}
	}
	return out
}

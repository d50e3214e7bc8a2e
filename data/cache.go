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
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	json "github.com/goccy/go-json"
	lru "github.com/hashicorp/golang-lru"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

const cacheKeyDateLayout = "20060102"

// CachingSource decorates a PriceSource with a process-local LRU and an
// optional shared redis tier. Entries are keyed by symbol and requested
// range; a cache failure never fails the read, it falls through to the
// underlying source.
type CachingSource struct {
	source PriceSource
	local  *lru.Cache
	rdb    *redis.Client
	ttl    time.Duration
}

// NewCachingSource wraps source using viper settings cache.local_size,
// cache.redis, cache.redis_url, and cache.ttl (seconds).
func NewCachingSource(source PriceSource) (*CachingSource, error) {
	size := viper.GetInt("cache.local_size")
	if size <= 0 {
		size = 1024
	}
	local, err := lru.New(size)
	if err != nil {
		return nil, err
	}

	c := &CachingSource{
		source: source,
		local:  local,
		ttl:    time.Duration(viper.GetInt("cache.ttl")) * time.Second,
	}

	if viper.GetBool("cache.redis") {
		opt, err := redis.ParseURL(viper.GetString("cache.redis_url"))
		if err != nil {
			log.Error().Stack().Err(err).Msg("could not parse redis URL")
			return nil, err
		}
		c.rdb = redis.NewClient(opt)
	}

	return c, nil
}

func (c *CachingSource) get(ctx context.Context, key string, out interface{}) error {
	if raw, ok := c.local.Get(key); ok {
		return json.Unmarshal(raw.([]byte), out)
	}

	if c.rdb != nil {
		raw, err := c.rdb.GetEx(ctx, key, c.ttl).Bytes()
		if err == nil {
			c.local.Add(key, raw)
			return json.Unmarshal(raw, out)
		}
	}

	return ErrCacheMiss
}

func (c *CachingSource) put(ctx context.Context, key string, val interface{}) {
	raw, err := json.Marshal(val)
	if err != nil {
		log.Warn().Stack().Err(err).Str("Key", key).Msg("could not marshal cache entry")
		return
	}
	c.local.Add(key, raw)

	if c.rdb != nil {
		if err := c.rdb.Set(ctx, key, raw, c.ttl).Err(); err != nil {
			log.Warn().Stack().Err(err).Str("Key", key).Msg("could not store cache entry in redis")
		}
	}
}

func rangeKey(kind, symbol string, start, end time.Time) string {
	return fmt.Sprintf("foliosim:%s:%s:%s:%s", kind, symbol,
		start.Format(cacheKeyDateLayout), end.Format(cacheKeyDateLayout))
}

func (c *CachingSource) Bars(ctx context.Context, symbol string, start, end time.Time) ([]*Bar, error) {
	key := rangeKey("bars", symbol, start, end)

	var cached []*Bar
	if err := c.get(ctx, key, &cached); err == nil {
		return cached, nil
	}

	bars, err := c.source.Bars(ctx, symbol, start, end)
	if err != nil {
		return nil, err
	}
	c.put(ctx, key, bars)
	return bars, nil
}

func (c *CachingSource) Dividends(ctx context.Context, symbol string, start, end time.Time) ([]*DividendAction, error) {
	key := rangeKey("dividends", symbol, start, end)

	var cached []*DividendAction
	if err := c.get(ctx, key, &cached); err == nil {
		return cached, nil
	}

	dividends, err := c.source.Dividends(ctx, symbol, start, end)
	if err != nil {
		return nil, err
	}
	c.put(ctx, key, dividends)
	return dividends, nil
}

func (c *CachingSource) Splits(ctx context.Context, symbol string, start, end time.Time) ([]*SplitAction, error) {
	key := rangeKey("splits", symbol, start, end)

	var cached []*SplitAction
	if err := c.get(ctx, key, &cached); err == nil {
		return cached, nil
	}

	splits, err := c.source.Splits(ctx, symbol, start, end)
	if err != nil {
		return nil, err
	}
	c.put(ctx, key, splits)
	return splits, nil
}

// ExpenseRatio and IsDelisted are single-row lookups; only the expense
// ratio is worth caching since the driver asks once per run per symbol.
func (c *CachingSource) ExpenseRatio(ctx context.Context, symbol string) (*float64, error) {
	key := fmt.Sprintf("foliosim:er:%s", symbol)

	var cached *float64
	if err := c.get(ctx, key, &cached); err == nil {
		return cached, nil
	}

	ratio, err := c.source.ExpenseRatio(ctx, symbol)
	if err != nil {
		return nil, err
	}
	c.put(ctx, key, ratio)
	return ratio, nil
}

func (c *CachingSource) IsDelisted(ctx context.Context, symbol string, date time.Time) (bool, error) {
	return c.source.IsDelisted(ctx, symbol, date)
}

// Copyright 2021-2024
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

package common

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	lru "github.com/hashicorp/golang-lru"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

// Two level response cache: an in-process LRU in front of an optional redis.
// Values are lz4 compressed. Before SetupCache is called every lookup misses
// and every store is dropped.

type cacheEntry struct {
	data    []byte
	expires time.Time
}

var (
	cacheLocker sync.RWMutex
	rdb         *redis.Client
	cache       *lru.Cache
	cacheTTL    time.Duration
)

func SetupCache() error {
	ttl := viper.GetDuration("pricing.cache_ttl")
	if ttl <= 0 {
		log.Info().Msg("pricing.cache_ttl not positive; response cache disabled")
		return nil
	}

	var client *redis.Client
	if viper.GetBool("cache.redis") {
		opt, err := redis.ParseURL(viper.GetString("cache.redis_url"))
		if err != nil {
			log.Error().Err(err).Msg("could not parse redis URL")
			return err
		}
		client = redis.NewClient(opt)
	}

	local, err := lru.New(viper.GetInt("cache.local_size"))
	if err != nil {
		log.Error().Err(err).Msg("could not create LRU cache")
		return err
	}

	cacheLocker.Lock()
	defer cacheLocker.Unlock()
	rdb = client
	cache = local
	cacheTTL = ttl

	return nil
}

// DisableCache turns the cache back into a no-op
func DisableCache() {
	cacheLocker.Lock()
	defer cacheLocker.Unlock()
	if rdb != nil {
		if err := rdb.Close(); err != nil {
			log.Warn().Err(err).Msg("could not close redis client")
		}
	}
	rdb = nil
	cache = nil
	cacheTTL = 0
}

func CacheSet(ctx context.Context, key string, data []byte) error {
	cacheLocker.RLock()
	defer cacheLocker.RUnlock()

	if cache == nil {
		return nil
	}

	compressed, err := Compress(data)
	if err != nil {
		return err
	}

	cache.Add(key, &cacheEntry{data: compressed, expires: time.Now().Add(cacheTTL)})

	if rdb != nil {
		return rdb.Set(ctx, key, compressed, cacheTTL).Err()
	}
	return nil
}

// CacheGet returns the cached value of key; ok is false on a miss
func CacheGet(ctx context.Context, key string) (data []byte, ok bool, err error) {
	cacheLocker.RLock()
	defer cacheLocker.RUnlock()

	if cache == nil {
		return nil, false, nil
	}

	if val, found := cache.Get(key); found {
		entry := val.(*cacheEntry)
		if time.Now().Before(entry.expires) {
			data, err = Decompress(entry.data)
			return data, err == nil, err
		}
		cache.Remove(key)
	}

	if rdb == nil {
		return nil, false, nil
	}

	compressed, err := rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	// redis still had it; keep a local copy until the configured ttl
	cache.Add(key, &cacheEntry{data: compressed, expires: time.Now().Add(cacheTTL)})

	data, err = Decompress(compressed)
	return data, err == nil, err
}

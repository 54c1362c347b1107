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

// Package pricing fetches external price history for instruments. A fetch that
// fails for one instrument never affects the others.
package pricing

import (
	"context"
	"time"

	"github.com/penny-vault/pv-ledger/common"
	"github.com/penny-vault/pv-ledger/ledger"
	"github.com/rs/zerolog/log"
)

// Provider returns the price history of a single instrument in whatever order the
// source delivers it
type Provider interface {
	History(ctx context.Context, code string) ([]ledger.PricePoint, error)
}

type FetchResult struct {
	Instrument ledger.InstrumentRef
	Points     []ledger.PricePoint
	Err        error
}

// FetchAll fetches the history of every instrument, at most concurrency at a time,
// each bounded by timeout. Results are returned in the order of instruments.
func FetchAll(ctx context.Context, provider Provider, instruments []ledger.InstrumentRef, concurrency int, timeout time.Duration) []*FetchResult {
	results := make([]*FetchResult, len(instruments))
	chunks := common.Partition(instruments, concurrency)

	type indexed struct {
		idx    int
		result *FetchResult
	}

	ch := make(chan indexed)
	offset := 0
	for chunkIdx, chunk := range chunks {
		log.Debug().Int("Chunk", chunkIdx).Int("TotalChunks", len(chunks)).Msg("fetching price history chunk")

		for ii := range chunk {
			go func(idx int, instrument ledger.InstrumentRef) {
				ch <- indexed{idx: idx, result: fetchOne(ctx, provider, instrument, timeout)}
			}(offset+ii, chunk[ii])
		}

		for range chunk {
			v := <-ch
			results[v.idx] = v.result
			if v.result.Err != nil {
				log.Warn().Err(v.result.Err).Str("Code", v.result.Instrument.GlobalCode).Msg("cannot download price history")
			}
		}

		offset += len(chunk)
	}

	return results
}

func fetchOne(ctx context.Context, provider Provider, instrument ledger.InstrumentRef, timeout time.Duration) *FetchResult {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	points, err := provider.History(ctx, instrument.GlobalCode)
	return &FetchResult{
		Instrument: instrument,
		Points:     points,
		Err:        err,
	}
}

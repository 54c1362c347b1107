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

// Package valuation keeps holding valuations current. Price history is merged
// incrementally (only dates not yet stored are inserted) and every holding's
// snapshot is then moved to the latest known price.
package valuation

import (
	"context"
	"time"

	"github.com/penny-vault/pv-ledger/ledger"
	"github.com/penny-vault/pv-ledger/observability/opentelemetry"
	"github.com/penny-vault/pv-ledger/pricing"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

const (
	DefaultConcurrency = 10
	DefaultTimeout     = 10 * time.Second
)

type Synchronizer struct {
	provider    pricing.Provider
	concurrency int
	timeout     time.Duration
}

type InstrumentResult struct {
	Instrument ledger.InstrumentRef `json:"instrument"`
	Inserted   int                  `json:"inserted"`
	Err        error                `json:"-"`
}

// SyncReport lists the outcome of every instrument in a batch; failures are
// expected and do not fail the batch
type SyncReport struct {
	Results  []*InstrumentResult `json:"results"`
	Inserted int                 `json:"inserted"`
	Failed   int                 `json:"failed"`
}

func New(provider pricing.Provider, concurrency int, timeout time.Duration) *Synchronizer {
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Synchronizer{
		provider:    provider,
		concurrency: concurrency,
		timeout:     timeout,
	}
}

// NewFromConfig reads pricing.concurrency and pricing.timeout
func NewFromConfig(provider pricing.Provider) *Synchronizer {
	return New(provider, viper.GetInt("pricing.concurrency"), viper.GetDuration("pricing.timeout"))
}

// SyncPriceHistory fetches one instrument's history and stores the dates not yet known
func (sync *Synchronizer) SyncPriceHistory(ctx context.Context, instrument ledger.InstrumentRef) (int, error) {
	fetchCtx, cancel := context.WithTimeout(ctx, sync.timeout)
	defer cancel()

	points, err := sync.provider.History(fetchCtx, instrument.GlobalCode)
	if err != nil {
		return 0, err
	}

	return StorePriceHistory(ctx, instrument.ID, points)
}

// SyncAll fetches concurrently and stores each instrument in its own transaction
func (sync *Synchronizer) SyncAll(ctx context.Context, instruments []ledger.InstrumentRef) *SyncReport {
	ctx, span := otel.Tracer(opentelemetry.Name).Start(ctx, "valuation.SyncAll")
	defer span.End()

	report := &SyncReport{
		Results: make([]*InstrumentResult, 0, len(instruments)),
	}

	fetched := pricing.FetchAll(ctx, sync.provider, instruments, sync.concurrency, sync.timeout)
	for _, res := range fetched {
		result := &InstrumentResult{
			Instrument: res.Instrument,
			Err:        res.Err,
		}

		if res.Err == nil {
			result.Inserted, result.Err = StorePriceHistory(ctx, res.Instrument.ID, res.Points)
		}

		if result.Err != nil {
			report.Failed++
			log.Warn().Err(result.Err).Int64("InstrumentID", res.Instrument.ID).Str("Code", res.Instrument.GlobalCode).Msg("price history sync failed")
		}

		report.Inserted += result.Inserted
		report.Results = append(report.Results, result)
	}

	span.SetAttributes(
		attribute.Int("instruments", len(instruments)),
		attribute.Int("inserted", report.Inserted),
		attribute.Int("failed", report.Failed),
	)

	log.Info().Int("Instruments", len(instruments)).Int("Inserted", report.Inserted).Int("Failed", report.Failed).Msg("price history sync complete")

	return report
}

// Run syncs the price history of instruments and then recomputes every
// valuation. Instrument failures are reported; only a recompute failure is an error.
func (sync *Synchronizer) Run(ctx context.Context, instruments []ledger.InstrumentRef) (*SyncReport, int, error) {
	report := sync.SyncAll(ctx, instruments)
	updated, err := RecomputeValuations(ctx)
	return report, updated, err
}

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

package cmd

import (
	"context"
	"os"
	"sort"

	"github.com/penny-vault/pv-ledger/ledger"
	"github.com/penny-vault/pv-ledger/messenger"
	"github.com/penny-vault/pv-ledger/pricing"
	"github.com/penny-vault/pv-ledger/reconcile"
	"github.com/penny-vault/pv-ledger/registry"
	"github.com/penny-vault/pv-ledger/statement"
	"github.com/penny-vault/pv-ledger/valuation"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var reconcileInvestorID string
var reconcileSync bool

func init() {
	reconcileCmd.Flags().StringVar(&reconcileInvestorID, "investor", "", "Investor the statements belong to")
	reconcileCmd.Flags().BoolVar(&reconcileSync, "sync", false, "Synchronize prices of touched instruments immediately instead of queueing a request")
	reconcileCmd.MarkFlagRequired("investor")
	rootCmd.AddCommand(reconcileCmd)
}

var reconcileCmd = &cobra.Command{
	Use:   "reconcile --investor ID FILE...",
	Short: "Reconcile parsed statements into the ledger",
	Long: `Reconcile one or more parsed statement documents (JSON) into the investor's ledger.
Each document is applied in its own transaction; a rejected document leaves the
ledger untouched. Instruments touched by accepted documents are queued for price
synchronization when NATS is configured, or synchronized inline with --sync.`,
	Args: cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		shutdown := initialize(ctx)

		reg, err := registry.New(viper.GetInt("registry.cache_size"))
		if err != nil {
			log.Fatal().Err(err).Msg("could not create identity registry")
		}
		reconciler := reconcile.New(reg)

		touched := make(map[int64]ledger.InstrumentRef)
		rejected := 0
		for _, fn := range args {
			subLog := log.With().Str("File", fn).Str("InvestorID", reconcileInvestorID).Logger()

			doc, err := readDocument(fn)
			if err != nil {
				subLog.Error().Err(err).Msg("could not read statement")
				rejected++
				continue
			}

			result, err := reconciler.Reconcile(ctx, doc, reconcileInvestorID)
			if err != nil {
				subLog.Error().Err(err).Bool("DocumentError", reconcile.IsDocumentError(err)).Msg("statement rejected")
				rejected++
				continue
			}

			for _, warning := range result.Errors {
				subLog.Warn().Err(warning).Msg("holding skipped")
			}

			for _, ref := range result.Instruments {
				touched[ref.ID] = ref
			}

			subLog.Info().Int("AccountsTouched", result.AccountsTouched).Int("TransactionsAdded", result.TransactionsAdded).Msg("statement reconciled")
		}

		if len(touched) > 0 {
			afterIngest(ctx, reconcileInvestorID, sortedRefs(touched))
		}

		shutdown()
		if rejected > 0 {
			os.Exit(1)
		}
	},
}

func readDocument(fn string) (*statement.Document, error) {
	fh, err := os.Open(fn)
	if err != nil {
		return nil, err
	}
	defer fh.Close()

	return statement.Decode(fh)
}

func sortedRefs(refs map[int64]ledger.InstrumentRef) []ledger.InstrumentRef {
	res := make([]ledger.InstrumentRef, 0, len(refs))
	for _, ref := range refs {
		res = append(res, ref)
	}
	sort.Slice(res, func(i, j int) bool {
		return res[i].ID < res[j].ID
	})
	return res
}

// afterIngest refreshes the price history of newly touched instruments. Failures
// are logged only; the statements are already committed.
func afterIngest(ctx context.Context, investorID string, refs []ledger.InstrumentRef) {
	if reconcileSync {
		sync := valuation.NewFromConfig(pricing.NewMFAPIFromConfig().WithoutCache())
		report, updated, err := sync.Run(ctx, refs)
		if err != nil {
			log.Error().Err(err).Msg("could not recompute valuations")
			return
		}
		log.Info().Int("Inserted", report.Inserted).Int("Failed", report.Failed).Int("ValuationsUpdated", updated).Msg("price sync complete")
		return
	}

	if !messenger.Enabled() {
		log.Info().Int("NumInstruments", len(refs)).Msg("NATS not configured; run `pvledger sync` to refresh prices")
		return
	}

	if err := messenger.Initialize(); err != nil {
		return
	}
	defer messenger.Close()

	if err := messenger.PublishSyncRequest(messenger.NewSyncRequest(investorID, refs)); err != nil {
		log.Error().Err(err).Msg("could not queue sync request")
	}
}

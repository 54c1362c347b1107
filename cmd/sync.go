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

	"github.com/penny-vault/pv-ledger/pricing"
	"github.com/penny-vault/pv-ledger/valuation"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var syncInvestorID string

func init() {
	syncCmd.Flags().StringVar(&syncInvestorID, "investor", "", "Only synchronize instruments held by this investor")
	rootCmd.AddCommand(syncCmd)
}

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Synchronize price history and recompute valuations",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		shutdown := initialize(ctx)
		defer shutdown()

		if err := runSync(ctx, syncInvestorID); err != nil {
			log.Error().Err(err).Msg("sync failed")
		}
	},
}

// runSync refreshes every instrument with a global code, optionally limited to
// those held by investorID
func runSync(ctx context.Context, investorID string) error {
	instruments, err := valuation.ListInstruments(ctx, investorID)
	if err != nil {
		return err
	}

	log.Info().Int("NumInstruments", len(instruments)).Str("InvestorID", investorID).Msg("synchronizing price history")

	sync := valuation.NewFromConfig(pricing.NewMFAPIFromConfig())
	report, updated, err := sync.Run(ctx, instruments)
	if err != nil {
		return err
	}

	log.Info().Int("Inserted", report.Inserted).Int("Failed", report.Failed).Int("ValuationsUpdated", updated).Msg("sync complete")
	return nil
}

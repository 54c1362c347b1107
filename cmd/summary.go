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
	"fmt"

	"github.com/goccy/go-json"
	"github.com/penny-vault/pv-ledger/portfolio"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var (
	summaryInvestorID  string
	summaryIncludeZero bool
	summaryHoldingID   int64
	summaryIssuerID    int64
	summaryExcludeZero bool
)

func init() {
	summaryCmd.PersistentFlags().StringVar(&summaryInvestorID, "investor", "", "Investor to summarize")
	summaryCmd.MarkPersistentFlagRequired("investor")
	summaryCmd.Flags().BoolVar(&summaryIncludeZero, "include-zero", false, "Include holdings with a zero closing quantity")

	transactionsCmd.Flags().Int64Var(&summaryHoldingID, "holding", 0, "Only list transactions of this holding")

	issuerCmd.Flags().Int64Var(&summaryIssuerID, "issuer", 0, "Issuer whose holdings are listed")
	issuerCmd.Flags().BoolVar(&summaryExcludeZero, "exclude-zero", false, "Skip holdings with a zero closing quantity")
	issuerCmd.MarkFlagRequired("issuer")

	instrumentCmd.Flags().Int64Var(&summaryHoldingID, "holding", 0, "Holding to show")
	instrumentCmd.MarkFlagRequired("holding")

	summaryCmd.AddCommand(transactionsCmd)
	summaryCmd.AddCommand(issuerCmd)
	summaryCmd.AddCommand(instrumentCmd)
	rootCmd.AddCommand(summaryCmd)
}

func printJSON(v interface{}) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		log.Fatal().Err(err).Msg("could not serialize output")
	}
	fmt.Println(string(out))
}

var summaryCmd = &cobra.Command{
	Use:   "summary --investor ID",
	Short: "Print the investor's portfolio totals as JSON",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		shutdown := initialize(ctx)
		defer shutdown()

		summary, err := portfolio.Build(ctx, summaryInvestorID, summaryIncludeZero)
		if err != nil {
			log.Fatal().Err(err).Msg("could not build portfolio summary")
		}

		printJSON(summary)
	},
}

var transactionsCmd = &cobra.Command{
	Use:   "transactions",
	Short: "List the investor's transactions with money paid in shown as negative",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		shutdown := initialize(ctx)
		defer shutdown()

		lines, err := portfolio.Transactions(ctx, summaryInvestorID, summaryHoldingID)
		if err != nil {
			log.Fatal().Err(err).Msg("could not list transactions")
		}

		printJSON(lines)
	},
}

var issuerCmd = &cobra.Command{
	Use:   "issuer --issuer ID",
	Short: "List the investor's holdings with one issuer",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		shutdown := initialize(ctx)
		defer shutdown()

		holdings, err := portfolio.IssuerHoldings(ctx, summaryInvestorID, summaryIssuerID, summaryExcludeZero)
		if err != nil {
			log.Fatal().Err(err).Msg("could not list issuer holdings")
		}

		printJSON(holdings)
	},
}

var instrumentCmd = &cobra.Command{
	Use:   "instrument --holding ID",
	Short: "Show a holding with the stored price history of its instrument",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		shutdown := initialize(ctx)
		defer shutdown()

		detail, err := portfolio.Instrument(ctx, summaryInvestorID, summaryHoldingID)
		if err != nil {
			log.Fatal().Err(err).Msg("could not load instrument detail")
		}

		printJSON(detail)
	},
}

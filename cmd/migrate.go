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

	"github.com/penny-vault/pv-ledger/database"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var printSchema bool

func init() {
	migrateCmd.Flags().BoolVar(&printSchema, "print", false, "Print the schema instead of applying it")
	rootCmd.AddCommand(migrateCmd)
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the ledger schema",
	Run: func(cmd *cobra.Command, args []string) {
		if printSchema {
			cmd.Print(database.Schema())
			return
		}

		ctx := context.Background()
		shutdown := initialize(ctx)
		defer shutdown()

		if err := database.Migrate(ctx); err != nil {
			log.Fatal().Err(err).Msg("migration failed")
		}

		log.Info().Msg("schema is up to date")
	},
}

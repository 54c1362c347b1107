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

	"github.com/penny-vault/pv-ledger/common"
	"github.com/penny-vault/pv-ledger/database"
	"github.com/penny-vault/pv-ledger/observability/opentelemetry"
	"github.com/rs/zerolog/log"
)

// initialize configures logging, caching, tracing and the database pool. The
// returned function flushes traces and reports leaked transactions.
func initialize(ctx context.Context) func() {
	common.SetupLogging()

	if err := common.SetupCache(); err != nil {
		log.Fatal().Err(err).Msg("could not setup cache")
	}

	shutdownTracing, err := opentelemetry.Setup(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("could not setup tracing")
	}

	if err := database.Connect(ctx); err != nil {
		log.Fatal().Err(err).Msg("database connection failed")
	}

	return func() {
		database.LogOpenTransactions()
		if err := shutdownTracing(context.Background()); err != nil {
			log.Warn().Err(err).Msg("could not flush traces")
		}
	}
}

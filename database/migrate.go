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

package database

import (
	"context"
	_ "embed"

	"github.com/rs/zerolog/log"
)

//go:embed schema.sql
var schema string

// Schema returns the DDL applied by Migrate
func Schema() string {
	return schema
}

// Migrate creates any missing tables and indexes in a single transaction
func Migrate(ctx context.Context) error {
	trx, err := Begin(ctx)
	if err != nil {
		return err
	}

	if _, err := trx.Exec(ctx, schema); err != nil {
		log.Error().Stack().Err(err).Msg("could not apply schema")
		if err := trx.Rollback(ctx); err != nil {
			log.Error().Stack().Err(err).Msg("could not rollback transaction")
		}
		return Wrap(err)
	}

	if err := trx.Commit(ctx); err != nil {
		log.Error().Stack().Err(err).Msg("could not commit schema")
		return Wrap(err)
	}

	log.Info().Msg("schema up to date")
	return nil
}

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

package reconcile

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v4"
	"github.com/penny-vault/pv-ledger/database"
	"github.com/penny-vault/pv-ledger/ledger"
	"github.com/penny-vault/pv-ledger/statement"
)

// updateInvestor fills profile fields that are still empty; populated fields are
// never overwritten
func (r *run) updateInvestor(ctx context.Context, info *statement.InvestorInfo) error {
	investor := ledger.Investor{ID: r.investorID}

	selectSQL := "SELECT email, full_name, mobile, address, tax_id FROM investors WHERE id=$1 FOR UPDATE"
	err := r.tx.QueryRow(ctx, selectSQL, r.investorID).Scan(&investor.Email, &investor.FullName, &investor.Mobile, &investor.Address, &investor.TaxID)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%w: %s", ledger.ErrInvestorNotFound, r.investorID)
	}
	if err != nil {
		r.subLog.Error().Stack().Err(err).Str("Query", selectSQL).Msg("could not load investor")
		return database.Wrap(err)
	}

	changed := false
	fill := func(field *string, val string) {
		val = strings.TrimSpace(val)
		if *field == "" && val != "" {
			*field = val
			changed = true
		}
	}

	fill(&investor.Email, info.Email)
	fill(&investor.FullName, info.Name)
	fill(&investor.Mobile, info.Mobile)
	fill(&investor.Address, info.Address)
	fill(&investor.TaxID, info.TaxID)

	if !changed {
		return nil
	}

	updateSQL := "UPDATE investors SET email=$2, full_name=$3, mobile=$4, address=$5, tax_id=$6 WHERE id=$1"
	if _, err := r.tx.Exec(ctx, updateSQL, investor.ID, investor.Email, investor.FullName, investor.Mobile, investor.Address, investor.TaxID); err != nil {
		r.subLog.Error().Stack().Err(err).Str("Query", updateSQL).Msg("could not update investor profile")
		return database.Wrap(err)
	}

	r.subLog.Debug().Msg("filled empty investor profile fields")
	return nil
}

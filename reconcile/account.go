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
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/penny-vault/pv-ledger/database"
	"github.com/penny-vault/pv-ledger/ledger"
	"github.com/penny-vault/pv-ledger/statement"
)

type storedAccount struct {
	InvestorID string
	period     ledger.ReportingPeriod
}

// loadAccount returns nil when the external account id is unknown
func (r *run) loadAccount(ctx context.Context, externalID string) (*storedAccount, error) {
	acct := &storedAccount{}
	var begin, end time.Time

	accountSQL := `SELECT a.investor_id, a.reporting_period_id, p.from_date, p.to_date
	FROM accounts a
	JOIN reporting_periods p ON p.id = a.reporting_period_id
	WHERE a.external_id=$1
	FOR UPDATE OF a`
	err := r.tx.QueryRow(ctx, accountSQL, externalID).Scan(&acct.InvestorID, &acct.period.ID, &begin, &end)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		r.subLog.Error().Stack().Err(err).Str("Query", accountSQL).Msg("could not load account")
		return nil, database.Wrap(err)
	}

	acct.period.InvestorID = acct.InvestorID
	acct.period.Interval = ledger.Interval{Begin: ledger.InDays(begin), End: ledger.InDays(end)}
	return acct, nil
}

func (r *run) createAccount(ctx context.Context, acct *statement.Account, issuerID, periodID int64) error {
	insertSQL := `INSERT INTO accounts (external_id, investor_id, issuer_id, reporting_period_id, tax_id)
	VALUES ($1, $2, $3, $4, $5)`
	if _, err := r.tx.Exec(ctx, insertSQL, acct.ExternalID, r.investorID, issuerID, periodID, acct.TaxID); err != nil {
		r.subLog.Error().Stack().Err(err).Str("Query", insertSQL).Msg("could not create account")
		return database.Wrap(err)
	}
	return nil
}

// findPeriod returns 0 if the investor has no reporting period with exactly these bounds
func (r *run) findPeriod(ctx context.Context, interval ledger.Interval) (int64, error) {
	var id int64
	selectSQL := "SELECT id FROM reporting_periods WHERE investor_id=$1 AND from_date=$2 AND to_date=$3"
	err := r.tx.QueryRow(ctx, selectSQL, r.investorID, interval.Begin, interval.End).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		r.subLog.Error().Stack().Err(err).Str("Query", selectSQL).Msg("could not query reporting period")
		return 0, database.Wrap(err)
	}
	return id, nil
}

// findOrCreatePeriod keeps at most one row per (investor, from, to)
func (r *run) findOrCreatePeriod(ctx context.Context, interval ledger.Interval) (int64, error) {
	id, err := r.findPeriod(ctx, interval)
	if err != nil || id != 0 {
		return id, err
	}

	insertSQL := `INSERT INTO reporting_periods (investor_id, from_date, to_date) VALUES ($1, $2, $3)
	ON CONFLICT ON CONSTRAINT reporting_periods_investor_range_key DO NOTHING
	RETURNING id`
	err = r.tx.QueryRow(ctx, insertSQL, r.investorID, interval.Begin, interval.End).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return r.findPeriod(ctx, interval)
	}
	if err != nil {
		r.subLog.Error().Stack().Err(err).Str("Query", insertSQL).Msg("could not create reporting period")
		return 0, database.Wrap(err)
	}

	return id, nil
}

// widenPeriod moves the account's reporting period to the union of what is
// covered and the statement. An exactly matching row is reused, a row shared
// with other accounts is left alone and the account is repointed, otherwise the
// row is updated in place.
func (r *run) widenPeriod(ctx context.Context, accountID string, current ledger.ReportingPeriod) error {
	union := current.Union(r.period)
	if union.Equal(current.Interval) {
		return nil
	}

	subLog := r.subLog.With().Str("AccountID", accountID).Int64("PeriodID", current.ID).Object("Union", union).Logger()

	targetID, err := r.findPeriod(ctx, union)
	if err != nil {
		return err
	}

	if targetID == 0 {
		var shared int64
		countSQL := "SELECT count(*) FROM accounts WHERE reporting_period_id=$1 AND external_id<>$2"
		if err := r.tx.QueryRow(ctx, countSQL, current.ID, accountID).Scan(&shared); err != nil {
			subLog.Error().Stack().Err(err).Str("Query", countSQL).Msg("could not count accounts sharing reporting period")
			return database.Wrap(err)
		}

		if shared == 0 {
			updateSQL := "UPDATE reporting_periods SET from_date=$2, to_date=$3 WHERE id=$1"
			if _, err := r.tx.Exec(ctx, updateSQL, current.ID, union.Begin, union.End); err != nil {
				subLog.Error().Stack().Err(err).Str("Query", updateSQL).Msg("could not widen reporting period")
				return database.Wrap(err)
			}
			subLog.Debug().Msg("widened reporting period in place")
			return nil
		}

		targetID, err = r.findOrCreatePeriod(ctx, union)
		if err != nil {
			return err
		}
	}

	repointSQL := "UPDATE accounts SET reporting_period_id=$2 WHERE external_id=$1"
	if _, err := r.tx.Exec(ctx, repointSQL, accountID, targetID); err != nil {
		subLog.Error().Stack().Err(err).Str("Query", repointSQL).Msg("could not repoint account reporting period")
		return database.Wrap(err)
	}

	subLog.Debug().Int64("TargetPeriodID", targetID).Msg("account moved to reporting period")
	return nil
}

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
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v4"
	"github.com/penny-vault/pv-ledger/database"
	"github.com/penny-vault/pv-ledger/ledger"
	"github.com/penny-vault/pv-ledger/statement"
	"github.com/rs/zerolog"
)

type storedHolding struct {
	ID   int64
	AsOf sql.NullTime
}

// reconcileHolding applies one holding block. covered is the account's reporting
// period before this statement or nil for an account created by this statement.
func (r *run) reconcileHolding(ctx context.Context, acct *statement.Account, issuerID int64, holding *statement.Holding, covered *ledger.Interval) error {
	if holding == nil {
		return nil
	}

	if !holding.HasIdentity() {
		r.warn(fmt.Errorf("%w: account %s holding %q", ledger.ErrUnresolvableIdentity, acct.ExternalID, holding.Name))
		return nil
	}

	instrumentID, err := r.session.ResolveInstrument(ctx, issuerID, holding.Instrument())
	if err != nil {
		return err
	}
	r.addInstrument(instrumentID, holding.InstrumentCode)

	subLog := r.subLog.With().Str("AccountID", acct.ExternalID).Int64("InstrumentID", instrumentID).Logger()

	key := fmt.Sprintf("%s/%d", acct.ExternalID, instrumentID)
	if holdingID, ok := r.created[key]; ok {
		// repeated block for a holding created earlier in this document
		return r.insertTransactions(ctx, subLog, holdingID, holding.Transactions, nil)
	}

	var existing *storedHolding
	if covered != nil {
		existing, err = r.loadHolding(ctx, acct.ExternalID, instrumentID)
		if err != nil {
			return err
		}
	}

	if existing == nil {
		holdingID, err := r.createHolding(ctx, subLog, acct.ExternalID, instrumentID, holding)
		if err != nil {
			return err
		}
		r.created[key] = holdingID
		return r.insertTransactions(ctx, subLog, holdingID, holding.Transactions, nil)
	}

	gaps := r.period.Gaps(*covered)
	if err := r.insertTransactions(ctx, subLog, existing.ID, holding.Transactions, gaps); err != nil {
		return err
	}

	if err := r.refreshValuation(ctx, subLog, existing, holding.Valuation); err != nil {
		return err
	}

	return r.refreshQuantities(ctx, subLog, existing.ID, holding, *covered)
}

func (r *run) loadHolding(ctx context.Context, accountID string, instrumentID int64) (*storedHolding, error) {
	holding := &storedHolding{}

	holdingSQL := `SELECT h.id, v.as_of_date
	FROM holdings h
	LEFT JOIN valuations v ON v.holding_id = h.id
	WHERE h.account_id=$1 AND h.instrument_master_id=$2`
	err := r.tx.QueryRow(ctx, holdingSQL, accountID, instrumentID).Scan(&holding.ID, &holding.AsOf)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		r.subLog.Error().Stack().Err(err).Str("Query", holdingSQL).Msg("could not load holding")
		return nil, database.Wrap(err)
	}

	return holding, nil
}

func (r *run) createHolding(ctx context.Context, subLog zerolog.Logger, accountID string, instrumentID int64, holding *statement.Holding) (int64, error) {
	var holdingID int64

	insertSQL := `INSERT INTO holdings (account_id, instrument_master_id, quantity_open, quantity_close)
	VALUES ($1, $2, $3, $4)
	RETURNING id`
	if err := r.tx.QueryRow(ctx, insertSQL, accountID, instrumentID, holding.QuantityOpen, holding.QuantityClose).Scan(&holdingID); err != nil {
		subLog.Error().Stack().Err(err).Str("Query", insertSQL).Msg("could not create holding")
		return 0, database.Wrap(err)
	}

	if holding.Valuation != nil {
		valuation, err := holding.Valuation.Ledger()
		if err != nil {
			return 0, err
		}
		valuation.HoldingID = holdingID
		if err := r.insertValuation(ctx, subLog, valuation); err != nil {
			return 0, err
		}
	}

	subLog.Debug().Int64("HoldingID", holdingID).Msg("created holding")
	return holdingID, nil
}

func (r *run) insertValuation(ctx context.Context, subLog zerolog.Logger, valuation *ledger.Valuation) error {
	insertSQL := `INSERT INTO valuations (holding_id, as_of_date, price, cost_basis, market_value)
	VALUES ($1, $2, $3, $4, $5)`
	if _, err := r.tx.Exec(ctx, insertSQL, valuation.HoldingID, valuation.AsOf, valuation.Price, valuation.CostBasis, valuation.MarketValue); err != nil {
		subLog.Error().Stack().Err(err).Str("Query", insertSQL).Msg("could not insert valuation")
		return database.Wrap(err)
	}
	return nil
}

// refreshValuation replaces the stored snapshot only when the statement's is
// newer. A stored cost basis is kept.
func (r *run) refreshValuation(ctx context.Context, subLog zerolog.Logger, existing *storedHolding, block *statement.Valuation) error {
	if block == nil {
		return nil
	}

	valuation, err := block.Ledger()
	if err != nil {
		return err
	}
	valuation.HoldingID = existing.ID

	if !existing.AsOf.Valid {
		return r.insertValuation(ctx, subLog, valuation)
	}

	if !valuation.AsOf.After(ledger.InDays(existing.AsOf.Time)) {
		return nil
	}

	updateSQL := `UPDATE valuations SET as_of_date=$2, price=$3, market_value=$4, cost_basis=COALESCE(cost_basis, $5)
	WHERE holding_id=$1 AND as_of_date < $2`
	if _, err := r.tx.Exec(ctx, updateSQL, existing.ID, valuation.AsOf, valuation.Price, valuation.MarketValue, valuation.CostBasis); err != nil {
		subLog.Error().Stack().Err(err).Str("Query", updateSQL).Msg("could not update valuation")
		return database.Wrap(err)
	}

	return nil
}

// refreshQuantities takes the closing quantity from a statement that reaches the
// end of what is covered and the opening quantity from one that reaches its start
func (r *run) refreshQuantities(ctx context.Context, subLog zerolog.Logger, holdingID int64, holding *statement.Holding, covered ledger.Interval) error {
	if !r.period.End.Before(covered.End) {
		closeSQL := "UPDATE holdings SET quantity_close=$2 WHERE id=$1"
		if _, err := r.tx.Exec(ctx, closeSQL, holdingID, holding.QuantityClose); err != nil {
			subLog.Error().Stack().Err(err).Str("Query", closeSQL).Msg("could not update closing quantity")
			return database.Wrap(err)
		}
	}

	if !r.period.Begin.After(covered.Begin) {
		openSQL := "UPDATE holdings SET quantity_open=$2 WHERE id=$1"
		if _, err := r.tx.Exec(ctx, openSQL, holdingID, holding.QuantityOpen); err != nil {
			subLog.Error().Stack().Err(err).Str("Query", openSQL).Msg("could not update opening quantity")
			return database.Wrap(err)
		}
	}

	return nil
}

// insertTransactions writes the line items of a holding. When gaps is non-nil only
// items dated inside a gap are written; everything else is already covered.
func (r *run) insertTransactions(ctx context.Context, subLog zerolog.Logger, holdingID int64, items []*statement.Transaction, gaps []ledger.Interval) error {
	insertSQL := `INSERT INTO transactions (holding_id, event_date, description, amount, quantity, price, running_balance, kind, dividend_rate, natural_key)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	ON CONFLICT ON CONSTRAINT transactions_holding_natural_key DO NOTHING`

	skipped := 0
	for _, item := range items {
		trx, err := item.Ledger()
		if err != nil {
			return err
		}

		if gaps != nil && !ledger.InAny(gaps, trx.Date) {
			skipped++
			continue
		}

		key, err := naturalKey(trx)
		if err != nil {
			return err
		}

		tag, err := r.tx.Exec(ctx, insertSQL, holdingID, trx.Date, trx.Description, trx.Amount, trx.Quantity, trx.Price, trx.RunningBalance, string(trx.Kind), trx.DividendRate, key)
		if err != nil {
			subLog.Error().Stack().Err(err).Str("Query", insertSQL).Time("Date", trx.Date).Msg("could not insert transaction")
			return database.Wrap(err)
		}
		r.result.TransactionsAdded += int(tag.RowsAffected())
	}

	if skipped > 0 {
		subLog.Debug().Int("Skipped", skipped).Msg("transactions inside covered period skipped")
	}

	return nil
}

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

package valuation

import (
	"context"
	"database/sql"
	"time"

	"github.com/penny-vault/pv-ledger/database"
	"github.com/penny-vault/pv-ledger/ledger"
	"github.com/penny-vault/pv-ledger/observability/opentelemetry"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

type latestPrice struct {
	holdingID int64
	quantity  decimal.Decimal
	priceDate time.Time
	price     decimal.Decimal
	asOf      sql.NullTime
}

// stale reports whether the stored valuation is missing or older than the latest price
func (lp *latestPrice) stale() bool {
	return !lp.asOf.Valid || lp.priceDate.After(ledger.InDays(lp.asOf.Time))
}

// RecomputeValuations moves every holding's valuation to the latest stored price
// when that price is newer. Cost basis is never touched. All holdings are updated
// in one transaction; any failure rolls back the whole pass.
func RecomputeValuations(ctx context.Context) (int, error) {
	ctx, span := otel.Tracer(opentelemetry.Name).Start(ctx, "valuation.RecomputeValuations")
	defer span.End()

	trx, err := database.Begin(ctx)
	if err != nil {
		opentelemetry.Fail(span, err, "could not begin transaction")
		return 0, err
	}

	// holdings without any price history drop out of the lateral join
	latestSQL := `SELECT h.id, h.quantity_close, p.price_date, p.price, v.as_of_date
	FROM holdings h
	JOIN LATERAL (
		SELECT ph.price_date, ph.price FROM price_history ph
		WHERE ph.instrument_master_id = h.instrument_master_id
		ORDER BY ph.price_date DESC
		LIMIT 1
	) p ON true
	LEFT JOIN valuations v ON v.holding_id = h.id
	ORDER BY h.id`
	rows, err := trx.Query(ctx, latestSQL)
	if err != nil {
		log.Error().Stack().Err(err).Str("Query", latestSQL).Msg("could not load latest prices")
		if err := trx.Rollback(ctx); err != nil {
			log.Error().Stack().Err(err).Msg("could not rollback transaction")
		}
		opentelemetry.Fail(span, err, "could not load latest prices")
		return 0, database.Wrap(err)
	}

	pending := make([]*latestPrice, 0, 128)
	for rows.Next() {
		lp := &latestPrice{}
		if err := rows.Scan(&lp.holdingID, &lp.quantity, &lp.priceDate, &lp.price, &lp.asOf); err != nil {
			rows.Close()
			log.Error().Stack().Err(err).Msg("could not scan latest price")
			if err := trx.Rollback(ctx); err != nil {
				log.Error().Stack().Err(err).Msg("could not rollback transaction")
			}
			return 0, database.Wrap(err)
		}
		if lp.stale() {
			pending = append(pending, lp)
		}
	}
	rows.Close()

	if err := rows.Err(); err != nil {
		log.Error().Stack().Err(err).Msg("could not read latest prices")
		if err := trx.Rollback(ctx); err != nil {
			log.Error().Stack().Err(err).Msg("could not rollback transaction")
		}
		return 0, database.Wrap(err)
	}

	// the as_of_date guards keep a concurrent writer's newer valuation in place
	updateSQL := "UPDATE valuations SET as_of_date=$2, price=$3, market_value=$4 WHERE holding_id=$1 AND as_of_date < $2"
	insertSQL := `INSERT INTO valuations (holding_id, as_of_date, price, cost_basis, market_value)
	VALUES ($1, $2, $3, NULL, $4)
	ON CONFLICT (holding_id) DO UPDATE SET as_of_date=EXCLUDED.as_of_date, price=EXCLUDED.price, market_value=EXCLUDED.market_value
	WHERE valuations.as_of_date < EXCLUDED.as_of_date`

	var updated int64
	for _, lp := range pending {
		marketValue := lp.quantity.Mul(lp.price)

		query := updateSQL
		if !lp.asOf.Valid {
			query = insertSQL
		}

		tag, err := trx.Exec(ctx, query, lp.holdingID, ledger.InDays(lp.priceDate), lp.price, marketValue)
		if err != nil {
			log.Error().Stack().Err(err).Int64("HoldingID", lp.holdingID).Str("Query", query).Msg("could not write valuation")
			if err := trx.Rollback(ctx); err != nil {
				log.Error().Stack().Err(err).Msg("could not rollback transaction")
			}
			opentelemetry.Fail(span, err, "could not write valuation")
			return 0, database.Wrap(err)
		}
		updated += tag.RowsAffected()
	}

	if err := trx.Commit(ctx); err != nil {
		log.Error().Stack().Err(err).Msg("could not commit valuations")
		return 0, database.Wrap(err)
	}

	span.SetAttributes(attribute.Int64("updated", updated))
	log.Info().Int64("Updated", updated).Int("Candidates", len(pending)).Msg("valuations recomputed")

	return int(updated), nil
}

// ListInstruments returns the instruments with a global code that are held by
// investorID, or by anyone when investorID is empty
func ListInstruments(ctx context.Context, investorID string) ([]ledger.InstrumentRef, error) {
	trx, err := database.Begin(ctx)
	if err != nil {
		return nil, err
	}

	subLog := log.With().Str("InvestorID", investorID).Logger()

	instrumentSQL := `SELECT DISTINCT m.id, m.global_code
	FROM instrument_masters m
	JOIN holdings h ON h.instrument_master_id = m.id
	JOIN accounts a ON a.external_id = h.account_id
	WHERE m.global_code IS NOT NULL AND ($1 = '' OR a.investor_id = $1)
	ORDER BY m.id`
	rows, err := trx.Query(ctx, instrumentSQL, investorID)
	if err != nil {
		subLog.Error().Stack().Err(err).Str("Query", instrumentSQL).Msg("could not list instruments")
		if err := trx.Rollback(ctx); err != nil {
			subLog.Error().Stack().Err(err).Msg("could not rollback transaction")
		}
		return nil, database.Wrap(err)
	}

	instruments := make([]ledger.InstrumentRef, 0, 64)
	for rows.Next() {
		var ref ledger.InstrumentRef
		if err := rows.Scan(&ref.ID, &ref.GlobalCode); err != nil {
			rows.Close()
			subLog.Error().Stack().Err(err).Msg("could not scan instrument")
			if err := trx.Rollback(ctx); err != nil {
				subLog.Error().Stack().Err(err).Msg("could not rollback transaction")
			}
			return nil, database.Wrap(err)
		}
		instruments = append(instruments, ref)
	}
	rows.Close()

	if err := rows.Err(); err != nil {
		if err := trx.Rollback(ctx); err != nil {
			subLog.Error().Stack().Err(err).Msg("could not rollback transaction")
		}
		return nil, database.Wrap(err)
	}

	if err := trx.Commit(ctx); err != nil {
		subLog.Error().Stack().Err(err).Msg("could not commit transaction")
		return nil, database.Wrap(err)
	}

	return instruments, nil
}

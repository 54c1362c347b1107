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
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/penny-vault/pv-ledger/common"
	"github.com/penny-vault/pv-ledger/database"
	"github.com/penny-vault/pv-ledger/ledger"
	"github.com/penny-vault/pv-ledger/observability/opentelemetry"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
)

// rows per INSERT statement; keeps the bind parameter count under the
// postgres limit of 65535
const insertChunkSize = 5000

// StorePriceHistory inserts the points whose date is not yet stored for the
// instrument and returns how many were written
func StorePriceHistory(ctx context.Context, instrumentID int64, points []ledger.PricePoint) (int, error) {
	ctx, span := otel.Tracer(opentelemetry.Name).Start(ctx, "valuation.StorePriceHistory")
	defer span.End()

	subLog := log.With().Int64("InstrumentID", instrumentID).Logger()

	trx, err := database.Begin(ctx)
	if err != nil {
		opentelemetry.Fail(span, err, "could not begin transaction")
		return 0, err
	}

	datesSQL := "SELECT price_date FROM price_history WHERE instrument_master_id=$1"
	rows, err := trx.Query(ctx, datesSQL, instrumentID)
	if err != nil {
		subLog.Error().Stack().Err(err).Str("Query", datesSQL).Msg("could not load stored price dates")
		if err := trx.Rollback(ctx); err != nil {
			subLog.Error().Stack().Err(err).Msg("could not rollback transaction")
		}
		opentelemetry.Fail(span, err, "could not load stored price dates")
		return 0, database.Wrap(err)
	}

	known := make(map[string]bool)
	for rows.Next() {
		var dt time.Time
		if err := rows.Scan(&dt); err != nil {
			rows.Close()
			subLog.Error().Stack().Err(err).Msg("could not scan price date")
			if err := trx.Rollback(ctx); err != nil {
				subLog.Error().Stack().Err(err).Msg("could not rollback transaction")
			}
			return 0, database.Wrap(err)
		}
		known[dayKey(dt)] = true
	}
	rows.Close()

	if err := rows.Err(); err != nil {
		subLog.Error().Stack().Err(err).Msg("could not read stored price dates")
		if err := trx.Rollback(ctx); err != nil {
			subLog.Error().Stack().Err(err).Msg("could not rollback transaction")
		}
		return 0, database.Wrap(err)
	}

	fresh := newPoints(points, known)

	inserted := 0
	for _, chunk := range common.Partition(fresh, insertChunkSize) {
		sql, args := buildInsert(instrumentID, chunk)
		tag, err := trx.Exec(ctx, sql, args...)
		if err != nil {
			subLog.Error().Stack().Err(err).Int("NumPoints", len(chunk)).Msg("could not insert price history")
			if err := trx.Rollback(ctx); err != nil {
				subLog.Error().Stack().Err(err).Msg("could not rollback transaction")
			}
			opentelemetry.Fail(span, err, "could not insert price history")
			return 0, database.Wrap(err)
		}
		inserted += int(tag.RowsAffected())
	}

	if err := trx.Commit(ctx); err != nil {
		subLog.Error().Stack().Err(err).Msg("could not commit price history")
		return 0, database.Wrap(err)
	}

	subLog.Debug().Int("Fetched", len(points)).Int("Inserted", inserted).Msg("stored price history")
	return inserted, nil
}

// newPoints returns points whose date is not in known, at most one per date,
// sorted by date
func newPoints(points []ledger.PricePoint, known map[string]bool) []ledger.PricePoint {
	fresh := make([]ledger.PricePoint, 0, len(points))
	seen := make(map[string]bool, len(points))

	for _, point := range points {
		key := dayKey(point.Date)
		if known[key] || seen[key] {
			continue
		}
		seen[key] = true
		fresh = append(fresh, ledger.PricePoint{Date: ledger.InDays(point.Date), Price: point.Price})
	}

	sort.Slice(fresh, func(i, j int) bool {
		return fresh[i].Date.Before(fresh[j].Date)
	})

	return fresh
}

func buildInsert(instrumentID int64, points []ledger.PricePoint) (string, []interface{}) {
	var sb strings.Builder
	args := make([]interface{}, 0, len(points)*3)

	sb.WriteString("INSERT INTO price_history (instrument_master_id, price_date, price) VALUES ")
	for idx, point := range points {
		if idx > 0 {
			sb.WriteString(", ")
		}
		n := idx * 3
		fmt.Fprintf(&sb, "($%d, $%d, $%d)", n+1, n+2, n+3)
		args = append(args, instrumentID, point.Date, point.Price)
	}
	sb.WriteString(" ON CONFLICT (instrument_master_id, price_date) DO NOTHING")

	return sb.String(), args
}

func dayKey(dt time.Time) string {
	return dt.Format("2006-01-02")
}

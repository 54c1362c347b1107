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

package portfolio

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/penny-vault/pv-ledger/database"
	"github.com/penny-vault/pv-ledger/ledger"
	"github.com/penny-vault/pv-ledger/observability/opentelemetry"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

const amountPlaces = 4

// TransactionLine is a transaction as the investor sees it: money paid in is
// negative
type TransactionLine struct {
	ID           int64                  `json:"id"`
	AccountID    string                 `json:"accountId"`
	Instrument   string                 `json:"instrument"`
	Date         time.Time              `json:"date"`
	Description  string                 `json:"description"`
	Amount       decimal.Decimal        `json:"amount"`
	Quantity     decimal.Decimal        `json:"quantity"`
	Price        decimal.Decimal        `json:"price"`
	Balance      decimal.Decimal        `json:"balance"`
	Kind         ledger.TransactionKind `json:"kind"`
	DividendRate decimal.NullDecimal    `json:"dividendRate"`
}

type InstrumentInfo struct {
	ID         int64  `json:"id"`
	IssuerID   int64  `json:"issuerId"`
	IssuerCode string `json:"issuerCode,omitempty"`
	GlobalCode string `json:"globalCode,omitempty"`
	Name       string `json:"name"`
	Category   string `json:"category"`
}

type HoldingDetail struct {
	ID            int64             `json:"id"`
	AccountID     string            `json:"accountId"`
	Instrument    InstrumentInfo    `json:"instrument"`
	QuantityOpen  decimal.Decimal   `json:"quantityOpen"`
	QuantityClose decimal.Decimal   `json:"quantityClose"`
	Valuation     *ledger.Valuation `json:"valuation,omitempty"`
}

type InstrumentDetail struct {
	Holding      *HoldingDetail      `json:"holding"`
	PriceHistory []ledger.PricePoint `json:"priceHistory"`
}

// SignedAmount flips the sign of amount for kinds that move money into a holding
func SignedAmount(kind ledger.TransactionKind, amount decimal.Decimal) decimal.Decimal {
	if kind.IsOutflow() {
		return amount.Neg()
	}
	return amount
}

type scanner interface {
	Scan(dest ...interface{}) error
}

const holdingColumns = `h.id, a.external_id, m.id, m.issuer_id, m.issuer_code, m.global_code, m.name, m.category,
		h.quantity_open, h.quantity_close, v.as_of_date, v.price, v.cost_basis, v.market_value`

func scanHoldingDetail(row scanner) (*HoldingDetail, error) {
	var (
		holding     HoldingDetail
		issuerCode  sql.NullString
		globalCode  sql.NullString
		asOf        sql.NullTime
		price       decimal.NullDecimal
		costBasis   decimal.NullDecimal
		marketValue decimal.NullDecimal
	)

	if err := row.Scan(&holding.ID, &holding.AccountID, &holding.Instrument.ID, &holding.Instrument.IssuerID,
		&issuerCode, &globalCode, &holding.Instrument.Name, &holding.Instrument.Category,
		&holding.QuantityOpen, &holding.QuantityClose, &asOf, &price, &costBasis, &marketValue); err != nil {
		return nil, err
	}

	holding.Instrument.IssuerCode = issuerCode.String
	holding.Instrument.GlobalCode = globalCode.String
	if asOf.Valid {
		holding.Valuation = &ledger.Valuation{
			HoldingID:   holding.ID,
			AsOf:        asOf.Time,
			Price:       price.Decimal,
			CostBasis:   costBasis,
			MarketValue: marketValue.Decimal,
		}
	}

	return &holding, nil
}

func rollback(ctx context.Context, trx pgx.Tx, subLog zerolog.Logger) {
	if err := trx.Rollback(ctx); err != nil {
		subLog.Error().Stack().Err(err).Msg("could not rollback transaction")
	}
}

// Transactions lists the investor's transactions in date order. A non-zero
// holdingID restricts the listing to that holding.
func Transactions(ctx context.Context, investorID string, holdingID int64) ([]*TransactionLine, error) {
	ctx, span := otel.Tracer(opentelemetry.Name).Start(ctx, "portfolio.Transactions")
	defer span.End()

	span.SetAttributes(opentelemetry.InvestorAttributes(investorID)...)
	subLog := log.With().Str("InvestorID", investorID).Int64("HoldingID", holdingID).Logger()

	trx, err := database.Begin(ctx)
	if err != nil {
		opentelemetry.Fail(span, err, "could not begin transaction")
		return nil, err
	}

	transactionSQL := `SELECT t.id, a.external_id, m.name, t.event_date, t.description, t.amount, t.quantity,
		t.price, t.running_balance, t.kind, t.dividend_rate
	FROM transactions t
	JOIN holdings h ON h.id = t.holding_id
	JOIN accounts a ON a.external_id = h.account_id
	JOIN instrument_masters m ON m.id = h.instrument_master_id
	WHERE a.investor_id = $1 AND ($2 = 0 OR h.id = $2)
	ORDER BY t.event_date, t.id`
	rows, err := trx.Query(ctx, transactionSQL, investorID, holdingID)
	if err != nil {
		subLog.Error().Stack().Err(err).Str("Query", transactionSQL).Msg("could not load transactions")
		rollback(ctx, trx, subLog)
		opentelemetry.Fail(span, err, "could not load transactions")
		return nil, database.Wrap(err)
	}

	lines := make([]*TransactionLine, 0, 128)
	for rows.Next() {
		var (
			line TransactionLine
			kind string
		)
		if err := rows.Scan(&line.ID, &line.AccountID, &line.Instrument, &line.Date, &line.Description, &line.Amount,
			&line.Quantity, &line.Price, &line.Balance, &kind, &line.DividendRate); err != nil {
			rows.Close()
			subLog.Error().Stack().Err(err).Msg("could not scan transaction")
			rollback(ctx, trx, subLog)
			return nil, database.Wrap(err)
		}

		line.Kind = ledger.TransactionKind(kind)
		line.Amount = SignedAmount(line.Kind, line.Amount).Round(amountPlaces)
		line.Quantity = line.Quantity.Round(amountPlaces)
		line.Price = line.Price.Round(amountPlaces)
		line.Balance = line.Balance.Round(amountPlaces)
		lines = append(lines, &line)
	}
	rows.Close()

	if err := rows.Err(); err != nil {
		subLog.Error().Stack().Err(err).Msg("could not read transactions")
		rollback(ctx, trx, subLog)
		return nil, database.Wrap(err)
	}

	if err := trx.Commit(ctx); err != nil {
		subLog.Error().Stack().Err(err).Msg("could not commit transaction")
		return nil, database.Wrap(err)
	}

	span.SetAttributes(attribute.Int("transactions", len(lines)))
	return lines, nil
}

// IssuerHoldings lists the investor's holdings in accounts with the given
// issuer. Holdings with a zero closing quantity are skipped when excludeZero
// is set.
func IssuerHoldings(ctx context.Context, investorID string, issuerID int64, excludeZero bool) ([]*HoldingDetail, error) {
	ctx, span := otel.Tracer(opentelemetry.Name).Start(ctx, "portfolio.IssuerHoldings")
	defer span.End()

	span.SetAttributes(opentelemetry.InvestorAttributes(investorID)...)
	span.SetAttributes(attribute.Int64("issuer.id", issuerID))
	subLog := log.With().Str("InvestorID", investorID).Int64("IssuerID", issuerID).Logger()

	trx, err := database.Begin(ctx)
	if err != nil {
		opentelemetry.Fail(span, err, "could not begin transaction")
		return nil, err
	}

	holdingSQL := `SELECT ` + holdingColumns + `
	FROM holdings h
	JOIN accounts a ON a.external_id = h.account_id
	JOIN instrument_masters m ON m.id = h.instrument_master_id
	LEFT JOIN valuations v ON v.holding_id = h.id
	WHERE a.investor_id = $1 AND a.issuer_id = $2 AND (NOT $3 OR h.quantity_close > 0)
	ORDER BY m.name, a.external_id`
	rows, err := trx.Query(ctx, holdingSQL, investorID, issuerID, excludeZero)
	if err != nil {
		subLog.Error().Stack().Err(err).Str("Query", holdingSQL).Msg("could not load issuer holdings")
		rollback(ctx, trx, subLog)
		opentelemetry.Fail(span, err, "could not load issuer holdings")
		return nil, database.Wrap(err)
	}

	holdings := make([]*HoldingDetail, 0, 16)
	for rows.Next() {
		holding, err := scanHoldingDetail(rows)
		if err != nil {
			rows.Close()
			subLog.Error().Stack().Err(err).Msg("could not scan holding")
			rollback(ctx, trx, subLog)
			return nil, database.Wrap(err)
		}
		holdings = append(holdings, holding)
	}
	rows.Close()

	if err := rows.Err(); err != nil {
		subLog.Error().Stack().Err(err).Msg("could not read issuer holdings")
		rollback(ctx, trx, subLog)
		return nil, database.Wrap(err)
	}

	if err := trx.Commit(ctx); err != nil {
		subLog.Error().Stack().Err(err).Msg("could not commit transaction")
		return nil, database.Wrap(err)
	}

	return holdings, nil
}

// Instrument returns one of the investor's holdings together with every stored
// price of its instrument, oldest first
func Instrument(ctx context.Context, investorID string, holdingID int64) (*InstrumentDetail, error) {
	ctx, span := otel.Tracer(opentelemetry.Name).Start(ctx, "portfolio.Instrument")
	defer span.End()

	span.SetAttributes(opentelemetry.InvestorAttributes(investorID)...)
	span.SetAttributes(attribute.Int64("holding.id", holdingID))
	subLog := log.With().Str("InvestorID", investorID).Int64("HoldingID", holdingID).Logger()

	trx, err := database.Begin(ctx)
	if err != nil {
		opentelemetry.Fail(span, err, "could not begin transaction")
		return nil, err
	}

	holdingSQL := `SELECT ` + holdingColumns + `
	FROM holdings h
	JOIN accounts a ON a.external_id = h.account_id
	JOIN instrument_masters m ON m.id = h.instrument_master_id
	LEFT JOIN valuations v ON v.holding_id = h.id
	WHERE h.id = $1 AND a.investor_id = $2`
	holding, err := scanHoldingDetail(trx.QueryRow(ctx, holdingSQL, holdingID, investorID))
	if errors.Is(err, pgx.ErrNoRows) {
		rollback(ctx, trx, subLog)
		return nil, ledger.ErrHoldingNotFound
	}
	if err != nil {
		subLog.Error().Stack().Err(err).Str("Query", holdingSQL).Msg("could not load holding")
		rollback(ctx, trx, subLog)
		opentelemetry.Fail(span, err, "could not load holding")
		return nil, database.Wrap(err)
	}

	priceSQL := `SELECT price_date, price FROM price_history WHERE instrument_master_id = $1 ORDER BY price_date`
	rows, err := trx.Query(ctx, priceSQL, holding.Instrument.ID)
	if err != nil {
		subLog.Error().Stack().Err(err).Str("Query", priceSQL).Msg("could not load price history")
		rollback(ctx, trx, subLog)
		opentelemetry.Fail(span, err, "could not load price history")
		return nil, database.Wrap(err)
	}

	detail := &InstrumentDetail{
		Holding:      holding,
		PriceHistory: make([]ledger.PricePoint, 0, 256),
	}
	for rows.Next() {
		var point ledger.PricePoint
		if err := rows.Scan(&point.Date, &point.Price); err != nil {
			rows.Close()
			subLog.Error().Stack().Err(err).Msg("could not scan price")
			rollback(ctx, trx, subLog)
			return nil, database.Wrap(err)
		}
		detail.PriceHistory = append(detail.PriceHistory, point)
	}
	rows.Close()

	if err := rows.Err(); err != nil {
		subLog.Error().Stack().Err(err).Msg("could not read price history")
		rollback(ctx, trx, subLog)
		return nil, database.Wrap(err)
	}

	if err := trx.Commit(ctx); err != nil {
		subLog.Error().Stack().Err(err).Msg("could not commit transaction")
		return nil, database.Wrap(err)
	}

	return detail, nil
}

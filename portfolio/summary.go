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

// Package portfolio builds read-side summaries of an investor's ledger
package portfolio

import (
	"context"
	"database/sql"
	"time"

	"github.com/penny-vault/pv-ledger/database"
	"github.com/penny-vault/pv-ledger/observability/opentelemetry"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
)

const percentPlaces = 4

var hundred = decimal.NewFromInt(100)

type HoldingSummary struct {
	AccountID   string              `json:"accountId"`
	Issuer      string              `json:"issuer"`
	Instrument  string              `json:"instrument"`
	GlobalCode  string              `json:"globalCode,omitempty"`
	Quantity    decimal.Decimal     `json:"quantity"`
	Price       decimal.NullDecimal `json:"price"`
	CostBasis   decimal.Decimal     `json:"costBasis"`
	MarketValue decimal.Decimal     `json:"marketValue"`
	AsOf        *time.Time          `json:"asOf,omitempty"`
}

type IssuerSummary struct {
	Issuer          string          `json:"issuer"`
	CostBasis       decimal.Decimal `json:"costBasis"`
	MarketValue     decimal.Decimal `json:"marketValue"`
	GainLoss        decimal.Decimal `json:"gainLoss"`
	GainLossPercent decimal.Decimal `json:"gainLossPercent"`
}

type Summary struct {
	InvestorID      string            `json:"investorId"`
	CostBasis       decimal.Decimal   `json:"costBasis"`
	MarketValue     decimal.Decimal   `json:"marketValue"`
	GainLoss        decimal.Decimal   `json:"gainLoss"`
	GainLossPercent decimal.Decimal   `json:"gainLossPercent"`
	Issuers         []*IssuerSummary  `json:"issuers"`
	Holdings        []*HoldingSummary `json:"holdings"`
}

// GainLossPercent returns (value - cost) / cost as a percentage rounded to 4
// places, or 0 when nothing was invested
func GainLossPercent(cost, value decimal.Decimal) decimal.Decimal {
	if cost.IsZero() {
		return decimal.Zero
	}
	return value.Sub(cost).Div(cost).Mul(hundred).Round(percentPlaces)
}

// Summarize aggregates holdings into investor and per-issuer totals. Holdings
// with a zero closing quantity are skipped unless includeZero is set.
func Summarize(investorID string, holdings []*HoldingSummary, includeZero bool) *Summary {
	summary := &Summary{
		InvestorID: investorID,
		Issuers:    make([]*IssuerSummary, 0, 8),
		Holdings:   make([]*HoldingSummary, 0, len(holdings)),
	}

	byIssuer := make(map[string]*IssuerSummary)
	for _, holding := range holdings {
		if holding.Quantity.IsZero() && !includeZero {
			continue
		}

		summary.Holdings = append(summary.Holdings, holding)
		summary.CostBasis = summary.CostBasis.Add(holding.CostBasis)
		summary.MarketValue = summary.MarketValue.Add(holding.MarketValue)

		issuer, ok := byIssuer[holding.Issuer]
		if !ok {
			issuer = &IssuerSummary{Issuer: holding.Issuer}
			byIssuer[holding.Issuer] = issuer
			summary.Issuers = append(summary.Issuers, issuer)
		}
		issuer.CostBasis = issuer.CostBasis.Add(holding.CostBasis)
		issuer.MarketValue = issuer.MarketValue.Add(holding.MarketValue)
	}

	for _, issuer := range summary.Issuers {
		issuer.GainLoss = issuer.MarketValue.Sub(issuer.CostBasis)
		issuer.GainLossPercent = GainLossPercent(issuer.CostBasis, issuer.MarketValue)
	}

	summary.GainLoss = summary.MarketValue.Sub(summary.CostBasis)
	summary.GainLossPercent = GainLossPercent(summary.CostBasis, summary.MarketValue)

	return summary
}

// Load reads every holding of the investor together with its current valuation
func Load(ctx context.Context, investorID string) ([]*HoldingSummary, error) {
	ctx, span := otel.Tracer(opentelemetry.Name).Start(ctx, "portfolio.Load")
	defer span.End()

	span.SetAttributes(opentelemetry.InvestorAttributes(investorID)...)
	subLog := log.With().Str("InvestorID", investorID).Logger()

	trx, err := database.Begin(ctx)
	if err != nil {
		opentelemetry.Fail(span, err, "could not begin transaction")
		return nil, err
	}

	holdingSQL := `SELECT a.external_id, i.name, m.name, m.global_code, h.quantity_close,
		v.price, v.cost_basis, v.market_value, v.as_of_date
	FROM holdings h
	JOIN accounts a ON a.external_id = h.account_id
	JOIN issuers i ON i.id = a.issuer_id
	JOIN instrument_masters m ON m.id = h.instrument_master_id
	LEFT JOIN valuations v ON v.holding_id = h.id
	WHERE a.investor_id = $1
	ORDER BY i.name, m.name, a.external_id`
	rows, err := trx.Query(ctx, holdingSQL, investorID)
	if err != nil {
		subLog.Error().Stack().Err(err).Str("Query", holdingSQL).Msg("could not load holdings")
		if err := trx.Rollback(ctx); err != nil {
			subLog.Error().Stack().Err(err).Msg("could not rollback transaction")
		}
		opentelemetry.Fail(span, err, "could not load holdings")
		return nil, database.Wrap(err)
	}

	holdings := make([]*HoldingSummary, 0, 32)
	for rows.Next() {
		var (
			holding     HoldingSummary
			globalCode  sql.NullString
			costBasis   decimal.NullDecimal
			marketValue decimal.NullDecimal
			asOf        sql.NullTime
		)
		if err := rows.Scan(&holding.AccountID, &holding.Issuer, &holding.Instrument, &globalCode, &holding.Quantity,
			&holding.Price, &costBasis, &marketValue, &asOf); err != nil {
			rows.Close()
			subLog.Error().Stack().Err(err).Msg("could not scan holding")
			if err := trx.Rollback(ctx); err != nil {
				subLog.Error().Stack().Err(err).Msg("could not rollback transaction")
			}
			return nil, database.Wrap(err)
		}

		holding.GlobalCode = globalCode.String
		holding.CostBasis = costBasis.Decimal
		holding.MarketValue = marketValue.Decimal
		if asOf.Valid {
			holding.AsOf = &asOf.Time
		}

		holdings = append(holdings, &holding)
	}
	rows.Close()

	if err := rows.Err(); err != nil {
		subLog.Error().Stack().Err(err).Msg("could not read holdings")
		if err := trx.Rollback(ctx); err != nil {
			subLog.Error().Stack().Err(err).Msg("could not rollback transaction")
		}
		return nil, database.Wrap(err)
	}

	if err := trx.Commit(ctx); err != nil {
		subLog.Error().Stack().Err(err).Msg("could not commit transaction")
		return nil, database.Wrap(err)
	}

	return holdings, nil
}

// Build loads the investor's holdings and summarizes them
func Build(ctx context.Context, investorID string, includeZero bool) (*Summary, error) {
	holdings, err := Load(ctx, investorID)
	if err != nil {
		return nil, err
	}
	return Summarize(investorID, holdings, includeZero), nil
}

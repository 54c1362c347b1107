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

package portfolio_test

import (
	"context"
	"database/sql"
	"errors"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/pashagolub/pgxmock"
	"github.com/penny-vault/pv-ledger/database"
	"github.com/penny-vault/pv-ledger/ledger"
	"github.com/penny-vault/pv-ledger/portfolio"
	"github.com/shopspring/decimal"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func nd(s string) decimal.NullDecimal {
	return decimal.NullDecimal{Decimal: d(s), Valid: true}
}

var _ = Describe("Summary", func() {
	var holdings []*portfolio.HoldingSummary

	BeforeEach(func() {
		holdings = []*portfolio.HoldingSummary{
			{AccountID: "1/1", Issuer: "Axis Mutual Fund", Instrument: "Axis Long Term", Quantity: d("100"), CostBasis: d("850"), MarketValue: d("1000")},
			{AccountID: "1/1", Issuer: "Axis Mutual Fund", Instrument: "Axis Liquid", Quantity: d("5"), CostBasis: d("150"), MarketValue: d("140")},
			{AccountID: "2/2", Issuer: "HDFC Mutual Fund", Instrument: "HDFC Top 100", Quantity: d("10"), CostBasis: d("0"), MarketValue: d("60")},
			{AccountID: "2/2", Issuer: "HDFC Mutual Fund", Instrument: "HDFC Redeemed", Quantity: d("0"), CostBasis: d("300"), MarketValue: d("0")},
		}
	})

	DescribeTable("gain loss percent",
		func(cost, value, expected string) {
			Expect(portfolio.GainLossPercent(d(cost), d(value)).Equal(d(expected))).To(BeTrue())
		},
		Entry("gain", "850", "1000", "17.6471"),
		Entry("loss", "150", "140", "-6.6667"),
		Entry("nothing invested", "0", "60", "0"),
	)

	It("totals holdings per issuer and skips closed positions", func() {
		summary := portfolio.Summarize("inv-1", holdings, false)

		Expect(summary.Holdings).To(HaveLen(3))
		Expect(summary.CostBasis.Equal(d("1000"))).To(BeTrue())
		Expect(summary.MarketValue.Equal(d("1200"))).To(BeTrue())
		Expect(summary.GainLoss.Equal(d("200"))).To(BeTrue())
		Expect(summary.GainLossPercent.Equal(d("20"))).To(BeTrue())

		Expect(summary.Issuers).To(HaveLen(2))
		Expect(summary.Issuers[0].Issuer).To(Equal("Axis Mutual Fund"))
		Expect(summary.Issuers[0].CostBasis.Equal(d("1000"))).To(BeTrue())
		Expect(summary.Issuers[0].MarketValue.Equal(d("1140"))).To(BeTrue())
		Expect(summary.Issuers[0].GainLossPercent.Equal(d("14"))).To(BeTrue())
		Expect(summary.Issuers[1].Issuer).To(Equal("HDFC Mutual Fund"))
		Expect(summary.Issuers[1].GainLossPercent.IsZero()).To(BeTrue())
	})

	It("includes closed positions when asked", func() {
		summary := portfolio.Summarize("inv-1", holdings, true)

		Expect(summary.Holdings).To(HaveLen(4))
		Expect(summary.CostBasis.Equal(d("1300"))).To(BeTrue())
		Expect(summary.Issuers[1].CostBasis.Equal(d("300"))).To(BeTrue())
		Expect(summary.Issuers[1].GainLoss.Equal(d("-240"))).To(BeTrue())
	})

	It("returns zero totals for an empty portfolio", func() {
		summary := portfolio.Summarize("inv-1", nil, false)
		Expect(summary.Holdings).To(BeEmpty())
		Expect(summary.Issuers).To(BeEmpty())
		Expect(summary.GainLossPercent.IsZero()).To(BeTrue())
	})

	Context("loading from storage", func() {
		var (
			dbPool  pgxmock.PgxConnIface
			columns = []string{"external_id", "issuer", "instrument", "global_code", "quantity_close",
				"price", "cost_basis", "market_value", "as_of_date"}
		)

		BeforeEach(func() {
			var err error
			dbPool, err = pgxmock.NewConn()
			Expect(err).To(BeNil())
			database.SetPool(dbPool)
		})

		AfterEach(func() {
			Expect(dbPool.ExpectationsWereMet()).To(BeNil())
			Expect(database.NumOpenTransactions()).To(Equal(0))
		})

		It("reads holdings with and without a valuation", func() {
			asOf := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
			dbPool.ExpectBegin()
			dbPool.ExpectQuery("SELECT a.external_id, i.name").WithArgs("inv-1").WillReturnRows(
				pgxmock.NewRows(columns).
					AddRow("1/1", "Axis Mutual Fund", "Axis Long Term", sql.NullString{String: "120503", Valid: true}, d("100"),
						nd("10"), nd("850"), nd("1000"), sql.NullTime{Time: asOf, Valid: true}).
					AddRow("1/1", "Axis Mutual Fund", "Axis Unlisted", sql.NullString{}, d("3"),
						decimal.NullDecimal{}, decimal.NullDecimal{}, decimal.NullDecimal{}, sql.NullTime{}))
			dbPool.ExpectCommit()

			summary, err := portfolio.Build(context.Background(), "inv-1", false)
			Expect(err).To(BeNil())
			Expect(summary.Holdings).To(HaveLen(2))
			Expect(summary.Holdings[0].GlobalCode).To(Equal("120503"))
			Expect(*summary.Holdings[0].AsOf).To(Equal(asOf))
			Expect(summary.Holdings[1].AsOf).To(BeNil())
			Expect(summary.Holdings[1].MarketValue.IsZero()).To(BeTrue())
			Expect(summary.MarketValue.Equal(d("1000"))).To(BeTrue())
		})

		It("wraps storage errors", func() {
			dbPool.ExpectBegin()
			dbPool.ExpectQuery("SELECT a.external_id, i.name").WillReturnError(errors.New("connection reset"))
			dbPool.ExpectRollback()

			_, err := portfolio.Build(context.Background(), "inv-1", false)
			Expect(errors.Is(err, ledger.ErrStorageFailure)).To(BeTrue())
		})
	})
})

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

package reconcile_test

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"time"

	"github.com/jackc/pgx/v4"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/pashagolub/pgxmock"
	"github.com/penny-vault/pv-ledger/database"
	"github.com/penny-vault/pv-ledger/ledger"
	"github.com/penny-vault/pv-ledger/reconcile"
	"github.com/penny-vault/pv-ledger/registry"
	"github.com/penny-vault/pv-ledger/statement"
	"github.com/shopspring/decimal"
)

const investorID = "inv-1"

func loadFixture() *statement.Document {
	fh, err := os.Open("../statement/testdata/q1.json")
	Expect(err).To(BeNil())
	defer fh.Close()
	doc, err := statement.Decode(fh)
	Expect(err).To(BeNil())
	return doc
}

func purchase(date, amount string) *statement.Transaction {
	return &statement.Transaction{
		Date:        date,
		Description: "Purchase",
		Amount:      decimal.RequireFromString(amount),
		Quantity:    decimal.RequireFromString(amount).Div(decimal.NewFromInt(10)),
		Price:       decimal.NewFromInt(10),
		Balance:     decimal.NewFromInt(100),
		Kind:        "PURCHASE",
	}
}

// extensionDoc covers 2024-02-01..2024-04-30 with one transaction per month
func extensionDoc() *statement.Document {
	return &statement.Document{
		InvestorInfo:    statement.InvestorInfo{Email: "a@x.com"},
		ReportingPeriod: &statement.ReportingPeriod{From: "2024-02-01", To: "2024-04-30"},
		Accounts: []*statement.Account{
			{
				ExternalID: "1234567/89",
				IssuerName: "Axis Mutual Fund",
				Holdings: []*statement.Holding{
					{
						InstrumentCode:   "120503",
						IssuerScopedCode: "AXIS-LT-DG",
						QuantityOpen:     decimal.NewFromInt(95),
						QuantityClose:    decimal.NewFromInt(120),
						Valuation: &statement.Valuation{
							Date:  "2024-04-30",
							Price: decimal.NewFromInt(11),
							Value: decimal.NewFromInt(1320),
						},
						Transactions: []*statement.Transaction{
							purchase("2024-02-05", "100"),
							purchase("2024-03-05", "150"),
							purchase("2024-04-05", "200"),
							purchase("30-Apr-2024", "50"),
						},
					},
				},
			},
		},
	}
}

var _ = Describe("Reconcile", func() {
	var (
		dbPool     pgxmock.PgxConnIface
		reconciler *reconcile.Reconciler
		ctx        context.Context
	)

	investorRow := func(email, name string) *pgxmock.Rows {
		return pgxmock.NewRows([]string{"email", "full_name", "mobile", "address", "tax_id"}).
			AddRow(email, name, "+91 98450 00000", "12 MG Road, Bengaluru", "ABCDE1234F")
	}

	accountRows := func() *pgxmock.Rows {
		return pgxmock.NewRows([]string{"investor_id", "reporting_period_id", "from_date", "to_date"})
	}

	idRows := func(ids ...int64) *pgxmock.Rows {
		rows := pgxmock.NewRows([]string{"id"})
		for _, id := range ids {
			rows.AddRow(id)
		}
		return rows
	}

	holdingRow := func(id int64, asOf time.Time) *pgxmock.Rows {
		return pgxmock.NewRows([]string{"id", "as_of_date"}).AddRow(id, sql.NullTime{Time: asOf, Valid: true})
	}

	// expectExistingAccount covers 2024-01-01..2024-03-31 with one holding valued on 2024-03-31
	expectExistingAccount := func() {
		dbPool.ExpectBegin()
		dbPool.ExpectQuery("SELECT email, full_name").WithArgs(investorID).WillReturnRows(investorRow("a@x.com", "Asha Rao"))
		dbPool.ExpectQuery("SELECT id FROM issuers").WillReturnRows(idRows(7))
		dbPool.ExpectQuery("SELECT a.investor_id").WithArgs("1234567/89").
			WillReturnRows(accountRows().AddRow(investorID, int64(3), day(2024, 1, 1), day(2024, 3, 31)))
	}

	BeforeEach(func() {
		var err error
		ctx = context.Background()
		dbPool, err = pgxmock.NewConn()
		Expect(err).To(BeNil())
		database.SetPool(dbPool)

		reg, err := registry.New(16)
		Expect(err).To(BeNil())
		reconciler = reconcile.New(reg)
	})

	AfterEach(func() {
		Expect(dbPool.ExpectationsWereMet()).To(BeNil())
		Expect(database.NumOpenTransactions()).To(Equal(0))
	})

	Context("with a new account", func() {
		It("creates the account, holding, valuation and every transaction", func() {
			doc := loadFixture()

			dbPool.ExpectBegin()
			dbPool.ExpectQuery("SELECT email, full_name").WithArgs(investorID).WillReturnRows(investorRow("a@x.com", ""))
			dbPool.ExpectExec("UPDATE investors").
				WithArgs(investorID, "a@x.com", "Asha Rao", "+91 98450 00000", "12 MG Road, Bengaluru", "ABCDE1234F").
				WillReturnResult(pgxmock.NewResult("UPDATE", 1))
			dbPool.ExpectQuery("SELECT id FROM issuers").WithArgs("Axis Mutual Fund").WillReturnError(pgx.ErrNoRows)
			dbPool.ExpectQuery("INSERT INTO issuers").WillReturnRows(idRows(7))
			dbPool.ExpectQuery("SELECT a.investor_id").WithArgs("1234567/89").WillReturnError(pgx.ErrNoRows)
			dbPool.ExpectQuery("SELECT id FROM reporting_periods").
				WithArgs(investorID, day(2024, 1, 1), day(2024, 3, 31)).WillReturnError(pgx.ErrNoRows)
			dbPool.ExpectQuery("INSERT INTO reporting_periods").WillReturnRows(idRows(3))
			dbPool.ExpectExec("INSERT INTO accounts").
				WithArgs("1234567/89", investorID, int64(7), int64(3), "ABCDE1234F").
				WillReturnResult(pgxmock.NewResult("INSERT", 1))
			dbPool.ExpectQuery("SELECT id FROM instrument_masters").WillReturnRows(idRows(42))
			dbPool.ExpectQuery("INSERT INTO holdings").WillReturnRows(idRows(100))
			dbPool.ExpectExec("INSERT INTO valuations").WillReturnResult(pgxmock.NewResult("INSERT", 1))
			dbPool.ExpectExec("INSERT INTO transactions").WillReturnResult(pgxmock.NewResult("INSERT", 1))
			dbPool.ExpectExec("INSERT INTO transactions").WillReturnResult(pgxmock.NewResult("INSERT", 1))
			dbPool.ExpectCommit()

			result, err := reconciler.Reconcile(ctx, doc, investorID)
			Expect(err).To(BeNil())
			Expect(result.AccountsTouched).To(Equal(1))
			Expect(result.TransactionsAdded).To(Equal(2))
			Expect(result.Instruments).To(Equal([]ledger.InstrumentRef{{ID: 42, GlobalCode: "120503"}}))

			// the second holding has no instrument code
			Expect(result.Errors).To(HaveLen(1))
			Expect(errors.Is(result.Errors[0], ledger.ErrUnresolvableIdentity)).To(BeTrue())
		})
	})

	Context("with an existing account", func() {
		It("adds nothing when the same statement is reconciled again", func() {
			doc := loadFixture()

			expectExistingAccount()
			dbPool.ExpectQuery("SELECT id FROM instrument_masters").WillReturnRows(idRows(42))
			dbPool.ExpectQuery("SELECT h.id, v.as_of_date").WithArgs("1234567/89", int64(42)).
				WillReturnRows(holdingRow(100, day(2024, 3, 31)))
			dbPool.ExpectExec("UPDATE holdings SET quantity_close").WillReturnResult(pgxmock.NewResult("UPDATE", 1))
			dbPool.ExpectExec("UPDATE holdings SET quantity_open").WillReturnResult(pgxmock.NewResult("UPDATE", 1))
			dbPool.ExpectCommit()

			result, err := reconciler.Reconcile(ctx, doc, investorID)
			Expect(err).To(BeNil())
			Expect(result.AccountsTouched).To(Equal(1))
			Expect(result.TransactionsAdded).To(Equal(0))
		})

		It("only inserts transactions dated in the trailing gap", func() {
			doc := extensionDoc()

			expectExistingAccount()
			dbPool.ExpectQuery("SELECT id FROM reporting_periods").
				WithArgs(investorID, day(2024, 1, 1), day(2024, 4, 30)).WillReturnError(pgx.ErrNoRows)
			dbPool.ExpectQuery("SELECT count").WithArgs(int64(3), "1234567/89").
				WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(int64(0)))
			dbPool.ExpectExec("UPDATE reporting_periods").WithArgs(int64(3), day(2024, 1, 1), day(2024, 4, 30)).
				WillReturnResult(pgxmock.NewResult("UPDATE", 1))
			dbPool.ExpectQuery("SELECT id FROM instrument_masters").WillReturnRows(idRows(42))
			dbPool.ExpectQuery("SELECT h.id, v.as_of_date").WillReturnRows(holdingRow(100, day(2024, 3, 31)))
			dbPool.ExpectExec("INSERT INTO transactions").
				WithArgs(int64(100), day(2024, 4, 5), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), "PURCHASE", pgxmock.AnyArg(), pgxmock.AnyArg()).
				WillReturnResult(pgxmock.NewResult("INSERT", 1))
			dbPool.ExpectExec("INSERT INTO transactions").
				WithArgs(int64(100), day(2024, 4, 30), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), "PURCHASE", pgxmock.AnyArg(), pgxmock.AnyArg()).
				WillReturnResult(pgxmock.NewResult("INSERT", 1))
			dbPool.ExpectExec(`(?s)UPDATE valuations.*WHERE holding_id=\$1 AND as_of_date < \$2`).WithArgs(int64(100), day(2024, 4, 30), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
				WillReturnResult(pgxmock.NewResult("UPDATE", 1))
			dbPool.ExpectExec("UPDATE holdings SET quantity_close").WillReturnResult(pgxmock.NewResult("UPDATE", 1))
			dbPool.ExpectCommit()

			result, err := reconciler.Reconcile(ctx, doc, investorID)
			Expect(err).To(BeNil())
			Expect(result.TransactionsAdded).To(Equal(2))
		})

		It("reuses an existing reporting period that matches the union", func() {
			doc := extensionDoc()
			doc.Accounts[0].Holdings = nil

			expectExistingAccount()
			dbPool.ExpectQuery("SELECT id FROM reporting_periods").WillReturnRows(idRows(5))
			dbPool.ExpectExec("UPDATE accounts SET reporting_period_id").WithArgs("1234567/89", int64(5)).
				WillReturnResult(pgxmock.NewResult("UPDATE", 1))
			dbPool.ExpectCommit()

			_, err := reconciler.Reconcile(ctx, doc, investorID)
			Expect(err).To(BeNil())
		})

		It("moves the account off a reporting period shared with other accounts", func() {
			doc := extensionDoc()
			doc.Accounts[0].Holdings = nil

			expectExistingAccount()
			dbPool.ExpectQuery("SELECT id FROM reporting_periods").WillReturnError(pgx.ErrNoRows)
			dbPool.ExpectQuery("SELECT count").WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(int64(2)))
			dbPool.ExpectQuery("SELECT id FROM reporting_periods").WillReturnError(pgx.ErrNoRows)
			dbPool.ExpectQuery("INSERT INTO reporting_periods").WithArgs(investorID, day(2024, 1, 1), day(2024, 4, 30)).
				WillReturnRows(idRows(6))
			dbPool.ExpectExec("UPDATE accounts SET reporting_period_id").WithArgs("1234567/89", int64(6)).
				WillReturnResult(pgxmock.NewResult("UPDATE", 1))
			dbPool.ExpectCommit()

			_, err := reconciler.Reconcile(ctx, doc, investorID)
			Expect(err).To(BeNil())
		})

		It("creates a holding first seen in a later statement with all of its transactions", func() {
			doc := extensionDoc()
			doc.ReportingPeriod = &statement.ReportingPeriod{From: "2024-01-01", To: "2024-03-31"}
			doc.Accounts[0].Holdings[0].Transactions = doc.Accounts[0].Holdings[0].Transactions[:2]
			doc.Accounts[0].Holdings[0].Valuation = nil

			expectExistingAccount()
			dbPool.ExpectQuery("SELECT id FROM instrument_masters").WillReturnRows(idRows(43))
			dbPool.ExpectQuery("SELECT h.id, v.as_of_date").WillReturnError(pgx.ErrNoRows)
			dbPool.ExpectQuery("INSERT INTO holdings").WillReturnRows(idRows(101))
			dbPool.ExpectExec("INSERT INTO transactions").WillReturnResult(pgxmock.NewResult("INSERT", 1))
			dbPool.ExpectExec("INSERT INTO transactions").WillReturnResult(pgxmock.NewResult("INSERT", 1))
			dbPool.ExpectCommit()

			result, err := reconciler.Reconcile(ctx, doc, investorID)
			Expect(err).To(BeNil())
			Expect(result.TransactionsAdded).To(Equal(2))
		})

		It("refuses an account owned by another investor", func() {
			doc := loadFixture()

			dbPool.ExpectBegin()
			dbPool.ExpectQuery("SELECT email, full_name").WillReturnRows(investorRow("a@x.com", "Asha Rao"))
			dbPool.ExpectQuery("SELECT id FROM issuers").WillReturnRows(idRows(7))
			dbPool.ExpectQuery("SELECT a.investor_id").
				WillReturnRows(accountRows().AddRow("inv-2", int64(9), day(2024, 1, 1), day(2024, 3, 31)))
			dbPool.ExpectRollback()

			_, err := reconciler.Reconcile(ctx, doc, investorID)
			Expect(errors.Is(err, ledger.ErrAccountConflict)).To(BeTrue())
			Expect(reconcile.IsDocumentError(err)).To(BeTrue())
		})
	})

	Context("with invalid input", func() {
		It("persists nothing when a dividend is missing its rate", func() {
			doc := loadFixture()
			doc.Accounts[0].Holdings[0].Transactions[1].DividendRate = decimal.NullDecimal{}

			_, err := reconciler.Reconcile(ctx, doc, investorID)
			Expect(errors.Is(err, ledger.ErrMissingDividendRate)).To(BeTrue())
		})

		It("persists nothing without a reporting period", func() {
			doc := loadFixture()
			doc.ReportingPeriod = nil

			_, err := reconciler.Reconcile(ctx, doc, investorID)
			Expect(errors.Is(err, ledger.ErrMalformedDocument)).To(BeTrue())
		})

		It("fails for an unknown investor", func() {
			doc := loadFixture()

			dbPool.ExpectBegin()
			dbPool.ExpectQuery("SELECT email, full_name").WillReturnError(pgx.ErrNoRows)
			dbPool.ExpectRollback()

			_, err := reconciler.Reconcile(ctx, doc, investorID)
			Expect(errors.Is(err, ledger.ErrInvestorNotFound)).To(BeTrue())
		})
	})

	Context("when storage fails", func() {
		It("rolls back the whole document", func() {
			doc := extensionDoc()

			expectExistingAccount()
			dbPool.ExpectQuery("SELECT id FROM reporting_periods").WillReturnError(pgx.ErrNoRows)
			dbPool.ExpectQuery("SELECT count").WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(int64(0)))
			dbPool.ExpectExec("UPDATE reporting_periods").WillReturnResult(pgxmock.NewResult("UPDATE", 1))
			dbPool.ExpectQuery("SELECT id FROM instrument_masters").WillReturnRows(idRows(42))
			dbPool.ExpectQuery("SELECT h.id, v.as_of_date").WillReturnRows(holdingRow(100, day(2024, 3, 31)))
			dbPool.ExpectExec("INSERT INTO transactions").WillReturnError(errors.New("deadlock detected"))
			dbPool.ExpectRollback()

			_, err := reconciler.Reconcile(ctx, doc, investorID)
			Expect(errors.Is(err, ledger.ErrStorageFailure)).To(BeTrue())
			Expect(reconcile.IsDocumentError(err)).To(BeFalse())
		})
	})
})

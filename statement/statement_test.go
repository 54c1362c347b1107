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

package statement_test

import (
	"errors"
	"os"
	"strings"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/penny-vault/pv-ledger/ledger"
	"github.com/penny-vault/pv-ledger/statement"
	"github.com/shopspring/decimal"
)

var _ = Describe("Statement", func() {
	Context("parsing dates", func() {
		DescribeTable("supported layouts",
			func(input string, expected time.Time) {
				dt, err := statement.ParseDate(input)
				Expect(err).To(BeNil())
				Expect(dt).To(Equal(expected))
			},
			Entry("ISO", "2024-03-31", time.Date(2024, 3, 31, 0, 0, 0, 0, time.UTC)),
			Entry("year first with month name", "2024-Mar-31", time.Date(2024, 3, 31, 0, 0, 0, 0, time.UTC)),
			Entry("day first with month name", "31-Mar-2024", time.Date(2024, 3, 31, 0, 0, 0, 0, time.UTC)),
			Entry("surrounding whitespace", " 05-Feb-2024 ", time.Date(2024, 2, 5, 0, 0, 0, 0, time.UTC)),
		)

		DescribeTable("unsupported layouts",
			func(input string) {
				_, err := statement.ParseDate(input)
				Expect(errors.Is(err, statement.ErrDateFormat)).To(BeTrue())
			},
			Entry("day first numeric", "31-03-2024"),
			Entry("slashes", "2024/03/31"),
			Entry("empty", ""),
		)
	})

	Context("decoding a document", func() {
		var doc *statement.Document

		BeforeEach(func() {
			fh, err := os.Open("testdata/q1.json")
			Expect(err).To(BeNil())
			defer fh.Close()

			doc, err = statement.Decode(fh)
			Expect(err).To(BeNil())
		})

		It("reads investor info", func() {
			Expect(doc.InvestorInfo.Email).To(Equal("a@x.com"))
			Expect(doc.InvestorInfo.TaxID).To(Equal("ABCDE1234F"))
		})

		It("parses the reporting period", func() {
			period, err := doc.Period()
			Expect(err).To(BeNil())
			Expect(period.Begin).To(Equal(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)))
			Expect(period.End).To(Equal(time.Date(2024, 3, 31, 0, 0, 0, 0, time.UTC)))
		})

		It("reads decimal amounts and optional dividend rates", func() {
			holding := doc.Accounts[0].Holdings[0]
			Expect(holding.QuantityClose.Equal(decimal.NewFromInt(100))).To(BeTrue())
			Expect(holding.Valuation).ToNot(BeNil())
			Expect(holding.Valuation.Cost.Valid).To(BeTrue())
			Expect(holding.Transactions[0].DividendRate.Valid).To(BeFalse())
			Expect(holding.Transactions[1].DividendRate.Decimal.String()).To(Equal("0.125"))
		})

		It("distinguishes holdings without identity", func() {
			Expect(doc.Accounts[0].Holdings[0].HasIdentity()).To(BeTrue())
			Expect(doc.Accounts[0].Holdings[1].HasIdentity()).To(BeFalse())
		})

		It("validates", func() {
			Expect(doc.Validate()).To(BeNil())
		})

		It("rejects a dividend without a rate", func() {
			doc.Accounts[0].Holdings[0].Transactions[1].DividendRate = decimal.NullDecimal{}
			err := doc.Validate()
			Expect(errors.Is(err, ledger.ErrMissingDividendRate)).To(BeTrue())
		})

		It("rejects a rate on a purchase", func() {
			doc.Accounts[0].Holdings[0].Transactions[0].DividendRate = decimal.NewNullDecimal(decimal.NewFromFloat(0.1))
			err := doc.Validate()
			Expect(errors.Is(err, ledger.ErrUnexpectedDividendRate)).To(BeTrue())
		})

		It("rejects an unknown kind", func() {
			doc.Accounts[0].Holdings[0].Transactions[0].Kind = "GIFT"
			err := doc.Validate()
			Expect(errors.Is(err, ledger.ErrInvalidTransactionKind)).To(BeTrue())
		})

		It("ignores bad rows of holdings without identity", func() {
			doc.Accounts[0].Holdings[1].Transactions = []*statement.Transaction{{Date: "yesterday", Kind: "GIFT"}}
			Expect(doc.Validate()).To(BeNil())
		})

		It("converts line items", func() {
			trx, err := doc.Accounts[0].Holdings[0].Transactions[0].Ledger()
			Expect(err).To(BeNil())
			Expect(trx.Date).To(Equal(time.Date(2024, 2, 5, 0, 0, 0, 0, time.UTC)))
			Expect(trx.Kind).To(Equal(ledger.PurchaseSIPTransaction))
			Expect(trx.Amount.Equal(decimal.NewFromInt(100))).To(BeTrue())
		})
	})

	Context("malformed documents", func() {
		It("fails on invalid JSON", func() {
			_, err := statement.Decode(strings.NewReader("{"))
			Expect(errors.Is(err, ledger.ErrMalformedDocument)).To(BeTrue())
		})

		It("fails without a reporting period", func() {
			doc, err := statement.Decode(strings.NewReader(`{"accounts": []}`))
			Expect(err).To(BeNil())
			_, err = doc.Period()
			Expect(errors.Is(err, ledger.ErrMalformedDocument)).To(BeTrue())
		})

		It("fails with an inverted reporting period", func() {
			doc, err := statement.Decode(strings.NewReader(`{"reporting_period": {"from": "2024-04-01", "to": "2024-03-01"}}`))
			Expect(err).To(BeNil())
			_, err = doc.Period()
			Expect(errors.Is(err, ledger.ErrMalformedDocument)).To(BeTrue())
		})

		It("fails with an unparseable bound", func() {
			doc, err := statement.Decode(strings.NewReader(`{"reporting_period": {"from": "Q1 2024", "to": "2024-03-01"}}`))
			Expect(err).To(BeNil())
			Expect(errors.Is(doc.Validate(), ledger.ErrMalformedDocument)).To(BeTrue())
		})
	})
})

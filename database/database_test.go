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

package database_test

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgconn"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/pashagolub/pgxmock"
	"github.com/penny-vault/pv-ledger/database"
	"github.com/penny-vault/pv-ledger/ledger"
)

var _ = Describe("Database", func() {
	var (
		dbPool pgxmock.PgxConnIface
		ctx    context.Context
	)

	BeforeEach(func() {
		var err error
		dbPool, err = pgxmock.NewConn()
		Expect(err).To(BeNil())
		database.SetPool(dbPool)
		ctx = context.Background()
	})

	AfterEach(func() {
		Expect(dbPool.ExpectationsWereMet()).To(BeNil())
	})

	Context("tracking transactions", func() {
		It("forgets a transaction once it is committed", func() {
			dbPool.ExpectBegin()
			dbPool.ExpectCommit()

			trx, err := database.Begin(ctx)
			Expect(err).To(BeNil())
			Expect(database.NumOpenTransactions()).To(Equal(1))

			Expect(trx.Commit(ctx)).To(BeNil())
			Expect(database.NumOpenTransactions()).To(Equal(0))
		})

		It("forgets a transaction once it is rolled back", func() {
			dbPool.ExpectBegin()
			dbPool.ExpectRollback()

			trx, err := database.Begin(ctx)
			Expect(err).To(BeNil())
			Expect(trx.Rollback(ctx)).To(BeNil())
			Expect(database.NumOpenTransactions()).To(Equal(0))
		})

		It("wraps begin failures as storage failures", func() {
			dbPool.ExpectBegin().WillReturnError(errors.New("connection refused"))

			_, err := database.Begin(ctx)
			Expect(errors.Is(err, ledger.ErrStorageFailure)).To(BeTrue())
			Expect(database.NumOpenTransactions()).To(Equal(0))
		})
	})

	Context("migrating", func() {
		It("applies the embedded schema in one transaction", func() {
			Expect(strings.Contains(database.Schema(), "transactions_holding_natural_key")).To(BeTrue())

			dbPool.ExpectBegin()
			dbPool.ExpectExec("CREATE TABLE IF NOT EXISTS investors").WillReturnResult(pgconn.CommandTag("CREATE TABLE"))
			dbPool.ExpectCommit()

			Expect(database.Migrate(ctx)).To(BeNil())
		})

		It("rolls back when the schema cannot be applied", func() {
			dbPool.ExpectBegin()
			dbPool.ExpectExec("CREATE TABLE IF NOT EXISTS investors").WillReturnError(errors.New("permission denied"))
			dbPool.ExpectRollback()

			err := database.Migrate(ctx)
			Expect(errors.Is(err, ledger.ErrStorageFailure)).To(BeTrue())
		})
	})

	It("leaves nil errors alone", func() {
		Expect(database.Wrap(nil)).To(BeNil())
	})
})

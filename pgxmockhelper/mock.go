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

package pgxmockhelper

import (
	"github.com/pashagolub/pgxmock"
)

// MockPriceDates expects the transaction opened by StorePriceHistory and the
// lookup of already stored dates, answered from the price_date column of fn
func MockPriceDates(db pgxmock.PgxConnIface, fn string) {
	db.ExpectBegin()
	db.ExpectQuery("SELECT price_date FROM price_history").WillReturnRows(
		NewCSVRows(fn, map[string]string{
			"price_date": TypeDate,
			"price":      TypeDecimal,
		}).Columns("price_date").Rows())
}

// MockLatestPrices expects the transaction opened by RecomputeValuations and its
// latest price query, answered from fn
func MockLatestPrices(db pgxmock.PgxConnIface, fn string) {
	db.ExpectBegin()
	db.ExpectQuery("SELECT h.id, h.quantity_close").WillReturnRows(
		NewCSVRows(fn, map[string]string{
			"id":             TypeInt64,
			"quantity_close": TypeDecimal,
			"price_date":     TypeDate,
			"price":          TypeDecimal,
			"as_of_date":     TypeNullDate,
		}).Rows())
}

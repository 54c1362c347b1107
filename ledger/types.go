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

package ledger

import (
	"time"

	"github.com/shopspring/decimal"
)

// Investor owns accounts; profile fields are filled from statements but never
// overwritten once set
type Investor struct {
	ID       string `json:"id"`
	Email    string `json:"email"`
	FullName string `json:"fullName"`
	Mobile   string `json:"mobile"`
	Address  string `json:"address"`
	TaxID    string `json:"taxId"`
}

// ReportingPeriod is the union of statement ranges currently known for an account
type ReportingPeriod struct {
	ID         int64  `json:"id"`
	InvestorID string `json:"investorId"`
	Interval
}

type Issuer struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Instrument is the shared instrument master. IssuerCode is unique per issuer,
// GlobalCode is unique across all issuers. Either may be empty but not both.
type Instrument struct {
	ID         int64  `json:"id"`
	IssuerID   int64  `json:"issuerId"`
	IssuerCode string `json:"issuerCode"`
	GlobalCode string `json:"globalCode"`
	Name       string `json:"name"`
	Category   string `json:"category"`
}

// HasIdentity reports whether the instrument can be resolved against the master
func (inst *Instrument) HasIdentity() bool {
	return inst.IssuerCode != "" || inst.GlobalCode != ""
}

// InstrumentRef is the minimal information needed to sync an instrument's price history
type InstrumentRef struct {
	ID         int64  `json:"id"`
	GlobalCode string `json:"globalCode"`
}

type Account struct {
	ExternalID        string `json:"externalId"`
	InvestorID        string `json:"investorId"`
	IssuerID          int64  `json:"issuerId"`
	ReportingPeriodID int64  `json:"reportingPeriodId"`
	TaxID             string `json:"taxId"`
}

type Holding struct {
	ID            int64           `json:"id"`
	AccountID     string          `json:"accountId"`
	InstrumentID  int64           `json:"instrumentId"`
	QuantityOpen  decimal.Decimal `json:"quantityOpen"`
	QuantityClose decimal.Decimal `json:"quantityClose"`
}

// Valuation is the single current snapshot of a holding. CostBasis is supplied
// by statements and never recomputed.
type Valuation struct {
	HoldingID   int64               `json:"holdingId"`
	AsOf        time.Time           `json:"asOf"`
	Price       decimal.Decimal     `json:"price"`
	CostBasis   decimal.NullDecimal `json:"costBasis"`
	MarketValue decimal.Decimal     `json:"marketValue"`
}

type Transaction struct {
	ID             int64               `json:"id"`
	HoldingID      int64               `json:"holdingId"`
	Date           time.Time           `json:"date"`
	Description    string              `json:"description"`
	Amount         decimal.Decimal     `json:"amount"`
	Quantity       decimal.Decimal     `json:"quantity"`
	Price          decimal.Decimal     `json:"price"`
	RunningBalance decimal.Decimal     `json:"runningBalance"`
	Kind           TransactionKind     `json:"kind"`
	DividendRate   decimal.NullDecimal `json:"dividendRate"`
}

type PricePoint struct {
	Date  time.Time       `json:"date"`
	Price decimal.Decimal `json:"price"`
}

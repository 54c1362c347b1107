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

// Package statement holds the structure handed over by the external statement
// parser: one reporting window for one investor with its account blocks,
// holdings, valuations and transaction line items.
package statement

import (
	"fmt"
	"io"

	"github.com/goccy/go-json"
	"github.com/penny-vault/pv-ledger/ledger"
	"github.com/shopspring/decimal"
)

type Document struct {
	InvestorInfo    InvestorInfo     `json:"investor_info"`
	ReportingPeriod *ReportingPeriod `json:"reporting_period"`
	Accounts        []*Account       `json:"accounts"`
}

type InvestorInfo struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Mobile  string `json:"mobile"`
	Address string `json:"address"`
	TaxID   string `json:"tax_id"`
}

type ReportingPeriod struct {
	From string `json:"from"`
	To   string `json:"to"`
}

type Account struct {
	ExternalID string     `json:"external_account_id"`
	IssuerName string     `json:"issuer_name"`
	TaxID      string     `json:"tax_id"`
	Holdings   []*Holding `json:"holdings"`
}

type Holding struct {
	InstrumentCode   string          `json:"instrument_code"`
	IssuerScopedCode string          `json:"issuer_scoped_code"`
	Name             string          `json:"name"`
	Category         string          `json:"category"`
	QuantityOpen     decimal.Decimal `json:"quantity_open"`
	QuantityClose    decimal.Decimal `json:"quantity_close"`
	Valuation        *Valuation      `json:"valuation"`
	Transactions     []*Transaction  `json:"transactions"`
}

type Valuation struct {
	Date  string              `json:"date"`
	Price decimal.Decimal     `json:"price"`
	Cost  decimal.NullDecimal `json:"cost"`
	Value decimal.Decimal     `json:"value"`
}

type Transaction struct {
	Date         string              `json:"date"`
	Description  string              `json:"description"`
	Amount       decimal.Decimal     `json:"amount"`
	Quantity     decimal.Decimal     `json:"quantity"`
	Price        decimal.Decimal     `json:"price"`
	Balance      decimal.Decimal     `json:"balance"`
	Kind         string              `json:"kind"`
	DividendRate decimal.NullDecimal `json:"dividend_rate"`
}

// Decode reads a JSON encoded statement document
func Decode(r io.Reader) (*Document, error) {
	doc := &Document{}
	if err := json.NewDecoder(r).Decode(doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ledger.ErrMalformedDocument, err)
	}
	return doc, nil
}

// Period parses the reporting period bounds of the document
func (doc *Document) Period() (ledger.Interval, error) {
	if doc.ReportingPeriod == nil {
		return ledger.Interval{}, fmt.Errorf("%w: reporting period missing", ledger.ErrMalformedDocument)
	}

	from, err := ParseDate(doc.ReportingPeriod.From)
	if err != nil {
		return ledger.Interval{}, fmt.Errorf("%w: reporting period start: %v", ledger.ErrMalformedDocument, err)
	}

	to, err := ParseDate(doc.ReportingPeriod.To)
	if err != nil {
		return ledger.Interval{}, fmt.Errorf("%w: reporting period end: %v", ledger.ErrMalformedDocument, err)
	}

	period, err := ledger.NewInterval(from, to)
	if err != nil {
		return ledger.Interval{}, fmt.Errorf("%w: %v", ledger.ErrMalformedDocument, err)
	}

	return period, nil
}

// Instrument returns the identity fields of the holding block
func (h *Holding) Instrument() *ledger.Instrument {
	return &ledger.Instrument{
		IssuerCode: h.IssuerScopedCode,
		GlobalCode: h.InstrumentCode,
		Name:       h.Name,
		Category:   h.Category,
	}
}

// HasIdentity reports if either the issuer scoped or the global instrument code is set
func (h *Holding) HasIdentity() bool {
	return h.Instrument().HasIdentity()
}

// Ledger converts the line item into a ledger transaction; the item is expected
// to have passed Validate.
func (t *Transaction) Ledger() (*ledger.Transaction, error) {
	dt, err := ParseDate(t.Date)
	if err != nil {
		return nil, fmt.Errorf("%w: transaction date: %v", ledger.ErrMalformedDocument, err)
	}

	kind, err := ledger.ParseTransactionKind(t.Kind)
	if err != nil {
		return nil, err
	}

	return &ledger.Transaction{
		Date:           dt,
		Description:    t.Description,
		Amount:         t.Amount,
		Quantity:       t.Quantity,
		Price:          t.Price,
		RunningBalance: t.Balance,
		Kind:           kind,
		DividendRate:   t.DividendRate,
	}, nil
}

// Ledger converts the valuation block; holdingID is left for the caller
func (v *Valuation) Ledger() (*ledger.Valuation, error) {
	dt, err := ParseDate(v.Date)
	if err != nil {
		return nil, fmt.Errorf("%w: valuation date: %v", ledger.ErrMalformedDocument, err)
	}

	return &ledger.Valuation{
		AsOf:        dt,
		Price:       v.Price,
		CostBasis:   v.Cost,
		MarketValue: v.Value,
	}, nil
}

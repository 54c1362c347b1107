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

// Package reconcile merges a parsed statement document into an investor's
// holdings graph. Reporting periods are unioned, accounts and holdings are
// created or extended and only transactions dated inside the part of the
// statement not already covered by the account are inserted. One document is
// applied atomically.
package reconcile

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v4"
	"github.com/penny-vault/pv-ledger/database"
	"github.com/penny-vault/pv-ledger/ledger"
	"github.com/penny-vault/pv-ledger/observability/opentelemetry"
	"github.com/penny-vault/pv-ledger/registry"
	"github.com/penny-vault/pv-ledger/statement"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

type Reconciler struct {
	registry *registry.Registry
}

// Result summarizes one reconciled document. Errors holds non-fatal per-holding
// warnings; the document was still committed.
type Result struct {
	AccountsTouched   int                    `json:"accountsTouched"`
	TransactionsAdded int                    `json:"transactionsAdded"`
	Instruments       []ledger.InstrumentRef `json:"instruments"`
	Errors            []error                `json:"-"`
}

// run carries the state of a single Reconcile call
type run struct {
	tx         pgx.Tx
	session    *registry.Session
	investorID string
	period     ledger.Interval
	result     *Result
	seen       map[int64]bool
	created    map[string]int64
	subLog     zerolog.Logger
}

func New(reg *registry.Registry) *Reconciler {
	return &Reconciler{
		registry: reg,
	}
}

// Reconcile applies doc to the holdings of investorID. Either every change is
// committed or none is.
func (reconciler *Reconciler) Reconcile(ctx context.Context, doc *statement.Document, investorID string) (*Result, error) {
	ctx, span := otel.Tracer(opentelemetry.Name).Start(ctx, "reconcile.Reconcile")
	defer span.End()
	span.SetAttributes(opentelemetry.InvestorAttributes(investorID)...)

	subLog := log.With().Str("InvestorID", investorID).Logger()

	period, err := doc.Period()
	if err != nil {
		subLog.Error().Err(err).Msg("statement rejected")
		opentelemetry.Fail(span, err, "statement rejected")
		return nil, err
	}

	subLog = subLog.With().Object("Period", period).Logger()

	// everything that can be checked without storage is checked before the
	// transaction opens
	if err := doc.Validate(); err != nil {
		subLog.Error().Err(err).Msg("statement rejected")
		opentelemetry.Fail(span, err, "statement rejected")
		return nil, err
	}

	trx, err := database.Begin(ctx)
	if err != nil {
		opentelemetry.Fail(span, err, "could not begin transaction")
		return nil, err
	}

	r := &run{
		tx:         trx,
		session:    reconciler.registry.Session(trx),
		investorID: investorID,
		period:     period,
		result: &Result{
			Instruments: []ledger.InstrumentRef{},
			Errors:      []error{},
		},
		seen:    make(map[int64]bool),
		created: make(map[string]int64),
		subLog:  subLog,
	}

	if err := r.apply(ctx, doc); err != nil {
		subLog.Error().Stack().Err(err).Msg("reconciliation failed; rolling back")
		if err := trx.Rollback(ctx); err != nil {
			subLog.Error().Stack().Err(err).Msg("could not rollback transaction")
		}
		opentelemetry.Fail(span, err, "reconciliation failed")
		return nil, err
	}

	if err := trx.Commit(ctx); err != nil {
		subLog.Error().Stack().Err(err).Msg("could not commit reconciliation")
		opentelemetry.Fail(span, err, "could not commit")
		return nil, database.Wrap(err)
	}

	r.session.Promote()

	span.SetAttributes(
		attribute.Int("accounts", r.result.AccountsTouched),
		attribute.Int("transactions.added", r.result.TransactionsAdded),
		attribute.Int("warnings", len(r.result.Errors)),
	)

	subLog.Info().
		Int("AccountsTouched", r.result.AccountsTouched).
		Int("TransactionsAdded", r.result.TransactionsAdded).
		Int("Warnings", len(r.result.Errors)).
		Msg("statement reconciled")

	return r.result, nil
}

func (r *run) apply(ctx context.Context, doc *statement.Document) error {
	if err := r.updateInvestor(ctx, &doc.InvestorInfo); err != nil {
		return err
	}

	for _, acct := range doc.Accounts {
		if err := r.reconcileAccount(ctx, acct); err != nil {
			return err
		}
		r.result.AccountsTouched++
	}

	return nil
}

func (r *run) reconcileAccount(ctx context.Context, acct *statement.Account) error {
	subLog := r.subLog.With().Str("AccountID", acct.ExternalID).Logger()

	issuerID, err := r.session.ResolveIssuer(ctx, acct.IssuerName)
	if err != nil {
		return err
	}

	existing, err := r.loadAccount(ctx, acct.ExternalID)
	if err != nil {
		return err
	}

	if existing == nil {
		subLog.Info().Msg("creating account")

		periodID, err := r.findOrCreatePeriod(ctx, r.period)
		if err != nil {
			return err
		}

		if err := r.createAccount(ctx, acct, issuerID, periodID); err != nil {
			return err
		}

		for _, holding := range acct.Holdings {
			if err := r.reconcileHolding(ctx, acct, issuerID, holding, nil); err != nil {
				return err
			}
		}

		return nil
	}

	if existing.InvestorID != r.investorID {
		return fmt.Errorf("%w: account %s", ledger.ErrAccountConflict, acct.ExternalID)
	}

	if err := r.widenPeriod(ctx, acct.ExternalID, existing.period); err != nil {
		return err
	}

	subLog.Info().Object("Covered", existing.period.Interval).Msg("extending account")

	for _, holding := range acct.Holdings {
		if err := r.reconcileHolding(ctx, acct, issuerID, holding, &existing.period.Interval); err != nil {
			return err
		}
	}

	return nil
}

// warn records a holding that could not be applied without failing the document
func (r *run) warn(err error) {
	r.subLog.Warn().Err(err).Msg("holding skipped")
	r.result.Errors = append(r.result.Errors, err)
}

func (r *run) addInstrument(instrumentID int64, globalCode string) {
	if globalCode == "" || r.seen[instrumentID] {
		return
	}
	r.seen[instrumentID] = true
	r.result.Instruments = append(r.result.Instruments, ledger.InstrumentRef{
		ID:         instrumentID,
		GlobalCode: globalCode,
	})
}

// IsDocumentError reports whether err rejected the document itself rather than
// failing in storage
func IsDocumentError(err error) bool {
	return errors.Is(err, ledger.ErrMalformedDocument) ||
		errors.Is(err, ledger.ErrInvalidTransactionKind) ||
		errors.Is(err, ledger.ErrMissingDividendRate) ||
		errors.Is(err, ledger.ErrUnexpectedDividendRate) ||
		errors.Is(err, ledger.ErrInvestorNotFound) ||
		errors.Is(err, ledger.ErrAccountConflict)
}

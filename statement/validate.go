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

package statement

import (
	"fmt"

	"github.com/penny-vault/pv-ledger/ledger"
)

// Validate checks every resolvable holding's transactions before anything is
// persisted. Holdings without identity are skipped here; the reconciler records
// them as warnings.
func (doc *Document) Validate() error {
	if _, err := doc.Period(); err != nil {
		return err
	}

	for _, acct := range doc.Accounts {
		if acct == nil {
			return fmt.Errorf("%w: empty account block", ledger.ErrMalformedDocument)
		}
		if acct.ExternalID == "" {
			return fmt.Errorf("%w: account block without external account id", ledger.ErrMalformedDocument)
		}

		for _, holding := range acct.Holdings {
			if holding == nil || !holding.HasIdentity() {
				continue
			}

			if holding.Valuation != nil {
				if _, err := ParseDate(holding.Valuation.Date); err != nil {
					return fmt.Errorf("%w: account %s valuation date: %v", ledger.ErrMalformedDocument, acct.ExternalID, err)
				}
			}

			for _, trx := range holding.Transactions {
				if err := trx.Validate(); err != nil {
					return fmt.Errorf("account %s: %w", acct.ExternalID, err)
				}
			}
		}
	}

	return nil
}

// Validate checks a single line item; the dividend rate must be present iff the
// kind is a dividend kind
func (t *Transaction) Validate() error {
	if _, err := ParseDate(t.Date); err != nil {
		return fmt.Errorf("%w: transaction date: %v", ledger.ErrMalformedDocument, err)
	}

	kind, err := ledger.ParseTransactionKind(t.Kind)
	if err != nil {
		return err
	}

	if kind.IsDividend() && !t.DividendRate.Valid {
		return fmt.Errorf("%w: %s on %s", ledger.ErrMissingDividendRate, kind, t.Date)
	}

	if !kind.IsDividend() && t.DividendRate.Valid {
		return fmt.Errorf("%w: %s on %s", ledger.ErrUnexpectedDividendRate, kind, t.Date)
	}

	return nil
}

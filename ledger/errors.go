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

import "errors"

var (
	// document level; nothing is persisted
	ErrMalformedDocument      = errors.New("malformed statement document")
	ErrInvalidTransactionKind = errors.New("invalid transaction kind")
	ErrMissingDividendRate    = errors.New("dividend transaction is missing its dividend rate")
	ErrUnexpectedDividendRate = errors.New("dividend rate present on a non-dividend transaction")
	ErrInvestorNotFound       = errors.New("investor not found")
	ErrAccountConflict        = errors.New("account belongs to a different investor")

	// holding level; recorded as a warning and the holding is skipped
	ErrUnresolvableIdentity = errors.New("holding has no usable instrument code")

	ErrHoldingNotFound      = errors.New("holding not found")
	ErrExternalFetchFailure = errors.New("external price fetch failed")
	ErrStorageFailure       = errors.New("storage failure")
	ErrBeginAfterEnd        = errors.New("invalid interval; begin after end date")
)

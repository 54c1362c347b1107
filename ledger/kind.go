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
	"fmt"
	"strings"
)

type TransactionKind string

const (
	PurchaseTransaction             TransactionKind = "PURCHASE"
	PurchaseSIPTransaction          TransactionKind = "PURCHASE_SIP"
	RedemptionTransaction           TransactionKind = "REDEMPTION"
	SwitchInTransaction             TransactionKind = "SWITCH_IN"
	SwitchInMergerTransaction       TransactionKind = "SWITCH_IN_MERGER"
	SwitchOutTransaction            TransactionKind = "SWITCH_OUT"
	SwitchOutMergerTransaction      TransactionKind = "SWITCH_OUT_MERGER"
	DividendPayoutTransaction       TransactionKind = "DIVIDEND_PAYOUT"
	DividendReinvestmentTransaction TransactionKind = "DIVIDEND_REINVESTMENT"
	SegregationTransaction          TransactionKind = "SEGREGATION"
	StampDutyTransaction            TransactionKind = "STAMP_DUTY_TAX"
	TDSTransaction                  TransactionKind = "TDS_TAX"
	STTTransaction                  TransactionKind = "STT_TAX"
	MiscTransaction                 TransactionKind = "MISC"
	ReversalTransaction             TransactionKind = "REVERSAL"
)

var knownKinds = map[TransactionKind]bool{
	PurchaseTransaction:             true,
	PurchaseSIPTransaction:          true,
	RedemptionTransaction:           true,
	SwitchInTransaction:             true,
	SwitchInMergerTransaction:       true,
	SwitchOutTransaction:            true,
	SwitchOutMergerTransaction:      true,
	DividendPayoutTransaction:       true,
	DividendReinvestmentTransaction: true,
	SegregationTransaction:          true,
	StampDutyTransaction:            true,
	TDSTransaction:                  true,
	STTTransaction:                  true,
	MiscTransaction:                 true,
	ReversalTransaction:             true,
}

// ParseTransactionKind normalizes s and checks it against the known kinds
func ParseTransactionKind(s string) (TransactionKind, error) {
	kind := TransactionKind(strings.ToUpper(strings.TrimSpace(s)))
	if !knownKinds[kind] {
		return "", fmt.Errorf("%w: %q", ErrInvalidTransactionKind, s)
	}
	return kind, nil
}

// IsDividend returns true for kinds that must carry a dividend rate
func (kind TransactionKind) IsDividend() bool {
	return kind == DividendPayoutTransaction || kind == DividendReinvestmentTransaction
}

// IsOutflow returns true for kinds where the investor pays money in
func (kind TransactionKind) IsOutflow() bool {
	switch kind {
	case PurchaseTransaction, PurchaseSIPTransaction, SwitchInTransaction:
		return true
	default:
		return false
	}
}

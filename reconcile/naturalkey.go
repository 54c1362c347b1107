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

package reconcile

import (
	"github.com/penny-vault/pv-ledger/ledger"
	"github.com/rs/zerolog/log"
	"github.com/zeebo/blake3"
)

const naturalKeySize = 16

// naturalKey hashes the (date, amount, quantity) triple that identifies a
// transaction within its holding. Decimals are normalized so 10 and 10.00 match.
func naturalKey(trx *ledger.Transaction) ([]byte, error) {
	h := blake3.New()

	d, err := ledger.InDays(trx.Date).MarshalText()
	if err != nil {
		return nil, err
	}

	parts := [][]byte{
		d,
		[]byte(trx.Amount.String()),
		[]byte(trx.Quantity.String()),
	}

	for _, part := range parts {
		if _, err := h.Write(part); err != nil {
			log.Error().Stack().Err(err).Msg("could not write to blake3 hasher")
			return nil, err
		}
		// separator so ("1", "23") and ("12", "3") differ
		if _, err := h.Write([]byte{0}); err != nil {
			return nil, err
		}
	}

	buf := make([]byte, naturalKeySize)
	if _, err := h.Digest().Read(buf); err != nil {
		return nil, err
	}

	return buf, nil
}

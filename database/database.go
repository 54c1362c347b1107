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

package database

import (
	"context"
	"fmt"
	"runtime"
	"sync"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/penny-vault/pv-ledger/ledger"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

// types

type PgxIface interface {
	Begin(context.Context) (pgx.Tx, error)
}

// Private

var (
	pool             PgxIface
	openTransactions map[string]string
	openLocker       sync.Mutex
)

// Public

func SetPool(myPool PgxIface) {
	openLocker.Lock()
	openTransactions = make(map[string]string)
	openLocker.Unlock()
	pool = myPool
}

func Connect(ctx context.Context) error {
	myPool, err := pgxpool.Connect(ctx, viper.GetString("database.url"))
	if err != nil {
		log.Error().Stack().Err(err).Msg("could not connect to pool")
		return Wrap(err)
	}
	if err = myPool.Ping(ctx); err != nil {
		log.Error().Stack().Err(err).Msg("could not ping database server")
		return Wrap(err)
	}
	SetPool(myPool)
	return nil
}

// Begin starts a transaction on the configured pool; the transaction is tracked
// until it is committed or rolled back
func Begin(ctx context.Context) (pgx.Tx, error) {
	if pool == nil {
		return nil, fmt.Errorf("%w: database pool not configured", ledger.ErrStorageFailure)
	}

	trx, err := pool.Begin(ctx)
	if err != nil {
		log.Error().Stack().Err(err).Msg("could not begin transaction")
		return nil, Wrap(err)
	}

	_, file, lineno, ok := runtime.Caller(1)
	caller := fmt.Sprintf("[%v] %s:%d", ok, file, lineno)
	trxID := uuid.New().String()

	openLocker.Lock()
	openTransactions[trxID] = caller
	openLocker.Unlock()

	return &LedgerTx{
		id: trxID,
		tx: trx,
	}, nil
}

// LogOpenTransactions writes an INFO log for each open transaction
func LogOpenTransactions() {
	openLocker.Lock()
	defer openLocker.Unlock()
	for k, v := range openTransactions {
		log.Info().Str("TrxId", k).Str("Caller", v).Msg("open transaction")
	}
}

// NumOpenTransactions returns the count of transactions that have not been closed
func NumOpenTransactions() int {
	openLocker.Lock()
	defer openLocker.Unlock()
	return len(openTransactions)
}

// Wrap marks err as a persistence-layer failure; nil stays nil
func Wrap(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %v", ledger.ErrStorageFailure, err)
}

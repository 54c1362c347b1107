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

// Wrapper around a pgx transaction to help debug if transactions are leaking

import (
	"context"
	"errors"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog/log"
)

var (
	ErrUnsupported = errors.New("unsupported function")
)

type LedgerTx struct {
	id string
	tx pgx.Tx
}

func (t *LedgerTx) release() {
	openLocker.Lock()
	delete(openTransactions, t.id)
	openLocker.Unlock()
}

// Begin is not supported; every unit of work is a single flat transaction
func (t *LedgerTx) Begin(ctx context.Context) (pgx.Tx, error) {
	log.Panic().Msg("nested transactions are not supported")
	return nil, ErrUnsupported
}

func (t *LedgerTx) BeginFunc(ctx context.Context, f func(pgx.Tx) error) (err error) {
	log.Panic().Msg("nested transactions are not supported")
	return ErrUnsupported
}

func (t *LedgerTx) Commit(ctx context.Context) error {
	t.release()
	return t.tx.Commit(ctx)
}

// Rollback is safe to call after Commit; pgx returns ErrTxClosed in that case
func (t *LedgerTx) Rollback(ctx context.Context) error {
	t.release()
	return t.tx.Rollback(ctx)
}

func (t *LedgerTx) CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error) {
	return t.tx.CopyFrom(ctx, tableName, columnNames, rowSrc)
}

func (t *LedgerTx) SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults {
	return t.tx.SendBatch(ctx, b)
}

func (t *LedgerTx) LargeObjects() pgx.LargeObjects {
	return t.tx.LargeObjects()
}

func (t *LedgerTx) Prepare(ctx context.Context, name, sql string) (*pgconn.StatementDescription, error) {
	return t.tx.Prepare(ctx, name, sql)
}

func (t *LedgerTx) Exec(ctx context.Context, sql string, arguments ...interface{}) (commandTag pgconn.CommandTag, err error) {
	return t.tx.Exec(ctx, sql, arguments...)
}

func (t *LedgerTx) Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error) {
	return t.tx.Query(ctx, sql, args...)
}

func (t *LedgerTx) QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row {
	return t.tx.QueryRow(ctx, sql, args...)
}

func (t *LedgerTx) QueryFunc(ctx context.Context, sql string, args []interface{}, scans []interface{}, f func(pgx.QueryFuncRow) error) (pgconn.CommandTag, error) {
	return t.tx.QueryFunc(ctx, sql, args, scans, f)
}

func (t *LedgerTx) Conn() *pgx.Conn {
	return t.tx.Conn()
}

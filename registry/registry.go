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

// Package registry resolves the reference entities shared by every investor:
// issuers (deduplicated by name) and instrument masters (deduplicated by an
// issuer scoped code and, independently, a global code). Resolution is
// get-or-create; the storage layer's unique constraints are the authority and a
// lost insert race is answered by re-reading the winning row.
package registry

import (
	"context"
	"errors"
	"fmt"
	"strings"

	lru "github.com/hashicorp/golang-lru"
	"github.com/jackc/pgx/v4"
	"github.com/penny-vault/pv-ledger/database"
	"github.com/penny-vault/pv-ledger/ledger"
	"github.com/rs/zerolog/log"
)

const DefaultCacheSize = 1024

type Registry struct {
	issuers     *lru.Cache
	instruments *lru.Cache
}

// Session resolves identities inside a single database transaction. Resolved ids
// become visible to other sessions only after Promote.
type Session struct {
	registry    *Registry
	tx          pgx.Tx
	issuers     map[string]int64
	instruments map[string]int64
}

// New creates a registry whose shared caches hold up to size entries each
func New(size int) (*Registry, error) {
	if size <= 0 {
		size = DefaultCacheSize
	}

	issuers, err := lru.New(size)
	if err != nil {
		return nil, err
	}

	instruments, err := lru.New(size)
	if err != nil {
		return nil, err
	}

	return &Registry{
		issuers:     issuers,
		instruments: instruments,
	}, nil
}

func (registry *Registry) Session(tx pgx.Tx) *Session {
	return &Session{
		registry:    registry,
		tx:          tx,
		issuers:     make(map[string]int64),
		instruments: make(map[string]int64),
	}
}

// Purge drops everything held in the shared caches
func (registry *Registry) Purge() {
	registry.issuers.Purge()
	registry.instruments.Purge()
}

// Promote copies identities resolved in this session to the shared caches. Call
// only after the session's transaction committed.
func (session *Session) Promote() {
	for k, v := range session.issuers {
		session.registry.issuers.Add(k, v)
	}
	for k, v := range session.instruments {
		session.registry.instruments.Add(k, v)
	}
}

// ResolveIssuer returns the id of the issuer with the given name, creating it if needed
func (session *Session) ResolveIssuer(ctx context.Context, name string) (int64, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return 0, fmt.Errorf("%w: issuer name is empty", ledger.ErrMalformedDocument)
	}

	if id, ok := session.issuers[name]; ok {
		return id, nil
	}
	if id, ok := session.registry.issuers.Get(name); ok {
		return id.(int64), nil
	}

	subLog := log.With().Str("Issuer", name).Logger()

	selectSQL := "SELECT id FROM issuers WHERE name=$1"
	insertSQL := "INSERT INTO issuers (name) VALUES ($1) ON CONFLICT (name) DO NOTHING RETURNING id"

	id, err := session.getOrCreate(ctx, selectSQL, []interface{}{name}, insertSQL, []interface{}{name})
	if err != nil {
		subLog.Error().Stack().Err(err).Msg("could not resolve issuer")
		return 0, err
	}

	session.issuers[name] = id
	return id, nil
}

// ResolveInstrument returns the id of the instrument master matching either of the
// codes in inst, creating it under issuerID if neither matches. Existing rows are
// never updated.
func (session *Session) ResolveInstrument(ctx context.Context, issuerID int64, inst *ledger.Instrument) (int64, error) {
	if !inst.HasIdentity() {
		return 0, fmt.Errorf("%w: %q", ledger.ErrUnresolvableIdentity, inst.Name)
	}

	keys := instrumentKeys(issuerID, inst)
	for _, key := range keys {
		if id, ok := session.instruments[key]; ok {
			return id, nil
		}
		if id, ok := session.registry.instruments.Get(key); ok {
			return id.(int64), nil
		}
	}

	subLog := log.With().Int64("IssuerID", issuerID).Str("IssuerCode", inst.IssuerCode).Str("GlobalCode", inst.GlobalCode).Logger()

	// a global code match wins over an issuer scoped match
	selectSQL := `SELECT id FROM instrument_masters
	WHERE (issuer_id=$1 AND issuer_code=NULLIF($2, '')) OR global_code=NULLIF($3, '')
	ORDER BY global_code=NULLIF($3, '') DESC NULLS LAST, id
	LIMIT 1`
	insertSQL := `INSERT INTO instrument_masters (issuer_id, issuer_code, global_code, name, category)
	VALUES ($1, NULLIF($2, ''), NULLIF($3, ''), $4, $5)
	ON CONFLICT DO NOTHING
	RETURNING id`

	id, err := session.getOrCreate(ctx,
		selectSQL, []interface{}{issuerID, inst.IssuerCode, inst.GlobalCode},
		insertSQL, []interface{}{issuerID, inst.IssuerCode, inst.GlobalCode, inst.Name, inst.Category})
	if err != nil {
		subLog.Error().Stack().Err(err).Msg("could not resolve instrument")
		return 0, err
	}

	for _, key := range keys {
		session.instruments[key] = id
	}

	return id, nil
}

// getOrCreate reads, inserts when missing and re-reads if a concurrent writer
// won the insert
func (session *Session) getOrCreate(ctx context.Context, selectSQL string, selectArgs []interface{}, insertSQL string, insertArgs []interface{}) (int64, error) {
	var id int64

	err := session.tx.QueryRow(ctx, selectSQL, selectArgs...).Scan(&id)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return 0, database.Wrap(err)
	}

	err = session.tx.QueryRow(ctx, insertSQL, insertArgs...).Scan(&id)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return 0, database.Wrap(err)
	}

	log.Debug().Str("Query", selectSQL).Msg("insert lost a race; reading the winning row")
	if err := session.tx.QueryRow(ctx, selectSQL, selectArgs...).Scan(&id); err != nil {
		return 0, database.Wrap(err)
	}

	return id, nil
}

func instrumentKeys(issuerID int64, inst *ledger.Instrument) []string {
	keys := make([]string, 0, 2)
	if inst.GlobalCode != "" {
		keys = append(keys, "global:"+inst.GlobalCode)
	}
	if inst.IssuerCode != "" {
		keys = append(keys, fmt.Sprintf("issuer:%d:%s", issuerID, inst.IssuerCode))
	}
	return keys
}

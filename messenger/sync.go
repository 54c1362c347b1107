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

package messenger

import (
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/penny-vault/pv-ledger/ledger"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

var ErrInvalidRequest = errors.New("invalid sync request")

// SyncRequest asks a worker to refresh the price history of instruments touched
// by a reconciled statement
type SyncRequest struct {
	ID          uuid.UUID              `json:"id"`
	InvestorID  string                 `json:"investor_id"`
	Instruments []ledger.InstrumentRef `json:"instruments"`
	RequestTime time.Time              `json:"request_time"`
}

func NewSyncRequest(investorID string, instruments []ledger.InstrumentRef) *SyncRequest {
	return &SyncRequest{
		ID:          uuid.New(),
		InvestorID:  investorID,
		Instruments: instruments,
		RequestTime: time.Now().UTC(),
	}
}

func (req *SyncRequest) Encode() ([]byte, error) {
	return json.Marshal(req)
}

// DecodeSyncRequest parses a message body; requests without an id or instruments are rejected
func DecodeSyncRequest(data []byte) (*SyncRequest, error) {
	req := &SyncRequest{}
	if err := json.Unmarshal(data, req); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}

	if req.ID == uuid.Nil {
		return nil, fmt.Errorf("%w: missing id", ErrInvalidRequest)
	}

	if len(req.Instruments) == 0 {
		return nil, fmt.Errorf("%w: no instruments", ErrInvalidRequest)
	}

	return req, nil
}

// PublishSyncRequest places req on the sync subject
func PublishSyncRequest(req *SyncRequest) error {
	if jetStream == nil {
		return ErrNotConnected
	}

	subLog := log.With().Str("RequestID", req.ID.String()).Str("InvestorID", req.InvestorID).Logger()

	data, err := req.Encode()
	if err != nil {
		subLog.Error().Err(err).Msg("could not serialize request to JSON")
		return err
	}

	if _, err := jetStream.Publish(viper.GetString("nats.sync_subject"), data); err != nil {
		subLog.Error().Err(err).Msg("could not publish a sync request")
		return err
	}

	subLog.Info().Int("NumInstruments", len(req.Instruments)).Msg("published sync request")
	return nil
}

// FetchSyncRequest pulls a single request from the durable consumer. A nil
// request with a nil error means the queue is empty. The caller must Ack the
// returned message once the request is processed.
func FetchSyncRequest(maxWait time.Duration) (*SyncRequest, *nats.Msg, error) {
	if jetStream == nil {
		return nil, nil, ErrNotConnected
	}

	if syncSubscription == nil {
		sub, err := jetStream.PullSubscribe(viper.GetString("nats.sync_subject"), viper.GetString("nats.sync_consumer"))
		if err != nil {
			log.Error().Err(err).Msg("could not connect to durable consumer (note: make sure the consumer already exists)")
			return nil, nil, err
		}
		syncSubscription = sub
	}

	msgs, err := syncSubscription.Fetch(1, nats.MaxWait(maxWait))
	if err != nil {
		if errors.Is(err, nats.ErrTimeout) {
			log.Debug().Msg("no sync requests available in queue")
			return nil, nil, nil
		}
		log.Error().Err(err).Msg("could not fetch new messages")
		return nil, nil, err
	}

	if len(msgs) == 0 {
		return nil, nil, nil
	}

	req, err := DecodeSyncRequest(msgs[0].Data)
	if err != nil {
		log.Warn().Err(err).Msg("discarding malformed sync request")
		if err := msgs[0].Term(); err != nil {
			log.Error().Err(err).Msg("could not terminate malformed message")
		}
		return nil, nil, err
	}

	return req, msgs[0], nil
}

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

package messenger_test

import (
	"errors"
	"time"

	"github.com/google/uuid"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/penny-vault/pv-ledger/ledger"
	"github.com/penny-vault/pv-ledger/messenger"
	"github.com/spf13/viper"
)

var _ = Describe("SyncRequest", func() {
	instruments := []ledger.InstrumentRef{{ID: 42, GlobalCode: "120503"}}

	It("uses snake case keys on the wire", func() {
		req := messenger.NewSyncRequest("inv-1", instruments)
		data, err := req.Encode()
		Expect(err).To(BeNil())
		Expect(string(data)).To(ContainSubstring(`"investor_id":"inv-1"`))
		Expect(string(data)).To(ContainSubstring(`"globalCode":"120503"`))

		decoded, err := messenger.DecodeSyncRequest(data)
		Expect(err).To(BeNil())
		Expect(decoded.ID).To(Equal(req.ID))
		Expect(decoded.Instruments).To(Equal(instruments))
		Expect(decoded.RequestTime.Equal(req.RequestTime)).To(BeTrue())
	})

	It("assigns a fresh id to every request", func() {
		a := messenger.NewSyncRequest("inv-1", instruments)
		b := messenger.NewSyncRequest("inv-1", instruments)
		Expect(a.ID).ToNot(Equal(b.ID))
		Expect(a.ID).ToNot(Equal(uuid.Nil))
	})

	DescribeTable("rejects invalid requests",
		func(body string) {
			_, err := messenger.DecodeSyncRequest([]byte(body))
			Expect(errors.Is(err, messenger.ErrInvalidRequest)).To(BeTrue())
		},
		Entry("not json", `{"id":`),
		Entry("missing id", `{"investor_id":"inv-1","instruments":[{"id":1,"globalCode":"1"}]}`),
		Entry("no instruments", `{"id":"9f3c8a55-5d3e-4f4e-9d8c-0a6b6a3f1d11","investor_id":"inv-1"}`),
	)

	It("refuses to publish or fetch before connecting", func() {
		Expect(messenger.PublishSyncRequest(messenger.NewSyncRequest("inv-1", instruments))).To(MatchError(messenger.ErrNotConnected))
		_, _, err := messenger.FetchSyncRequest(time.Millisecond)
		Expect(err).To(MatchError(messenger.ErrNotConnected))
	})

	It("is enabled only when a server is configured", func() {
		defer viper.Reset()
		Expect(messenger.Enabled()).To(BeFalse())
		viper.Set("nats.server", "nats://localhost:4222")
		Expect(messenger.Enabled()).To(BeTrue())
	})
})

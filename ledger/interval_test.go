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

package ledger_test

import (
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/penny-vault/pv-ledger/ledger"
)

var _ = Describe("Interval tests", func() {
	Describe("When applying interval functions", func() {
		Context("with various date ranges", func() {
			DescribeTable("check adjacency",
				func(a, b ledger.Interval, expected bool) {
					Expect(a.Adjacent(b)).To(Equal(expected))
				},

				Entry("When intervals are disjoint (left)",
					ledger.Interval{Begin: day(2022, 8, 3), End: day(2022, 8, 8)},
					ledger.Interval{Begin: day(2021, 8, 3), End: day(2021, 8, 8)}, false),

				Entry("When intervals are left adjacent",
					ledger.Interval{Begin: day(2021, 8, 3), End: day(2021, 8, 8)},
					ledger.Interval{Begin: day(2021, 8, 1), End: day(2021, 8, 2)}, true),

				Entry("When intervals are right adjacent",
					ledger.Interval{Begin: day(2021, 8, 3), End: day(2021, 8, 8)},
					ledger.Interval{Begin: day(2021, 8, 9), End: day(2021, 8, 12)}, true),

				Entry("When intervals overlap",
					ledger.Interval{Begin: day(2021, 8, 3), End: day(2021, 8, 8)},
					ledger.Interval{Begin: day(2021, 8, 8), End: day(2021, 8, 12)}, false),
			)

			DescribeTable("check overlap",
				func(a, b ledger.Interval, expected bool) {
					Expect(a.Overlaps(b)).To(Equal(expected))
					Expect(b.Overlaps(a)).To(Equal(expected))
				},

				Entry("When intervals are disjoint",
					ledger.Interval{Begin: day(2024, 1, 1), End: day(2024, 1, 31)},
					ledger.Interval{Begin: day(2024, 2, 1), End: day(2024, 2, 28)}, false),

				Entry("When intervals share a single day",
					ledger.Interval{Begin: day(2024, 1, 1), End: day(2024, 1, 31)},
					ledger.Interval{Begin: day(2024, 1, 31), End: day(2024, 2, 28)}, true),

				Entry("When one contains the other",
					ledger.Interval{Begin: day(2024, 1, 1), End: day(2024, 12, 31)},
					ledger.Interval{Begin: day(2024, 3, 1), End: day(2024, 3, 31)}, true),
			)
		})

		Context("when computing gaps against a covered range", func() {
			covered := ledger.Interval{Begin: day(2024, 1, 1), End: day(2024, 3, 31)}

			It("yields only the trailing gap when the statement advances", func() {
				stmt := ledger.Interval{Begin: day(2024, 2, 1), End: day(2024, 4, 30)}
				Expect(stmt.Gaps(covered)).To(Equal([]ledger.Interval{
					{Begin: day(2024, 4, 1), End: day(2024, 4, 30)},
				}))
			})

			It("yields only the leading gap when the statement reaches back", func() {
				stmt := ledger.Interval{Begin: day(2023, 12, 1), End: day(2024, 2, 15)}
				Expect(stmt.Gaps(covered)).To(Equal([]ledger.Interval{
					{Begin: day(2023, 12, 1), End: day(2023, 12, 31)},
				}))
			})

			It("yields both gaps when the statement encloses the covered range", func() {
				stmt := ledger.Interval{Begin: day(2023, 11, 1), End: day(2024, 5, 31)}
				Expect(stmt.Gaps(covered)).To(Equal([]ledger.Interval{
					{Begin: day(2023, 11, 1), End: day(2023, 12, 31)},
					{Begin: day(2024, 4, 1), End: day(2024, 5, 31)},
				}))
			})

			It("yields no gaps for a fully covered statement", func() {
				Expect(covered.Gaps(covered)).To(BeEmpty())
				inner := ledger.Interval{Begin: day(2024, 2, 1), End: day(2024, 2, 29)}
				Expect(inner.Gaps(covered)).To(BeEmpty())
			})

			It("keeps a disjoint later statement whole", func() {
				stmt := ledger.Interval{Begin: day(2024, 6, 1), End: day(2024, 6, 30)}
				Expect(stmt.Gaps(covered)).To(Equal([]ledger.Interval{stmt}))
			})
		})

		Context("when computing unions", func() {
			It("never shrinks the covered range", func() {
				covered := ledger.Interval{Begin: day(2024, 1, 1), End: day(2024, 3, 31)}
				for _, stmt := range []ledger.Interval{
					{Begin: day(2024, 2, 1), End: day(2024, 4, 30)},
					{Begin: day(2024, 2, 1), End: day(2024, 2, 2)},
					{Begin: day(2023, 6, 1), End: day(2023, 6, 30)},
				} {
					union := covered.Union(stmt)
					Expect(union.Contains(covered)).To(BeTrue())
					Expect(union.Contains(stmt)).To(BeTrue())
					covered = union
				}
				Expect(covered).To(Equal(ledger.Interval{Begin: day(2023, 6, 1), End: day(2024, 4, 30)}))
			})
		})

		It("normalizes times to whole days", func() {
			interval, err := ledger.NewInterval(time.Date(2024, 1, 1, 15, 4, 5, 0, time.UTC), day(2024, 1, 2))
			Expect(err).To(BeNil())
			Expect(interval.Begin).To(Equal(day(2024, 1, 1)))
			Expect(interval.ContainsDate(time.Date(2024, 1, 2, 23, 0, 0, 0, time.UTC))).To(BeTrue())
		})

		It("rejects inverted ranges", func() {
			_, err := ledger.NewInterval(day(2024, 2, 1), day(2024, 1, 1))
			Expect(err).To(MatchError(ledger.ErrBeginAfterEnd))
		})
	})
})

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
	"time"

	"github.com/rs/zerolog"
)

// Interval is an inclusive range of calendar days
type Interval struct {
	Begin time.Time
	End   time.Time
}

// InDays truncates t to midnight UTC of the same calendar day
func InDays(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// NewInterval builds a day-resolution interval and validates it
func NewInterval(begin, end time.Time) (Interval, error) {
	interval := Interval{
		Begin: InDays(begin),
		End:   InDays(end),
	}
	return interval, interval.Valid()
}

// Adjacent checks if other touches the beginning or ending of interval (daily resolution)
// NOTE: Adjaceny implies the two intervals DO NOT overlap
func (interval Interval) Adjacent(other Interval) bool {
	return interval.AdjacentLeft(other) || interval.AdjacentRight(other)
}

// AdjacentLeft checks if other ends the day before interval begins
func (interval Interval) AdjacentLeft(other Interval) bool {
	return other.End.AddDate(0, 0, 1).Equal(interval.Begin)
}

// AdjacentRight checks if other begins the day after interval ends
func (interval Interval) AdjacentRight(other Interval) bool {
	return other.Begin.AddDate(0, 0, -1).Equal(interval.End)
}

// Contains returns true if interval completely contains other
func (interval Interval) Contains(other Interval) bool {
	return !other.Begin.Before(interval.Begin) && !other.End.After(interval.End)
}

// ContainsDate returns true if the day of dt falls within the interval
func (interval Interval) ContainsDate(dt time.Time) bool {
	dt = InDays(dt)
	return !dt.Before(interval.Begin) && !dt.After(interval.End)
}

// Overlaps returns true if interval and other share at least one day
func (interval Interval) Overlaps(other Interval) bool {
	return !other.Begin.After(interval.End) && !other.End.Before(interval.Begin)
}

// Equal returns true if both intervals cover exactly the same days
func (interval Interval) Equal(other Interval) bool {
	return interval.Begin.Equal(other.Begin) && interval.End.Equal(other.End)
}

// Union returns the smallest interval covering both interval and other. Disjoint
// intervals are bridged.
func (interval Interval) Union(other Interval) Interval {
	res := interval
	if other.Begin.Before(res.Begin) {
		res.Begin = other.Begin
	}
	if other.End.After(res.End) {
		res.End = other.End
	}
	return res
}

// Gaps returns the parts of interval that fall outside of covered. There is at
// most one gap before covered and one gap after it, returned in that order.
func (interval Interval) Gaps(covered Interval) []Interval {
	gaps := make([]Interval, 0, 2)

	if interval.Begin.Before(covered.Begin) {
		end := covered.Begin.AddDate(0, 0, -1)
		if interval.End.Before(end) {
			end = interval.End
		}
		gaps = append(gaps, Interval{Begin: interval.Begin, End: end})
	}

	if interval.End.After(covered.End) {
		begin := covered.End.AddDate(0, 0, 1)
		if interval.Begin.After(begin) {
			begin = interval.Begin
		}
		gaps = append(gaps, Interval{Begin: begin, End: interval.End})
	}

	return gaps
}

// Valid checks if the given interval is valid range and returns an error if not
func (interval Interval) Valid() error {
	if interval.Begin.After(interval.End) {
		return ErrBeginAfterEnd
	}
	return nil
}

// MarshalZerologObject implement the log marshaller interface for zerolog
func (interval Interval) MarshalZerologObject(e *zerolog.Event) {
	e.Str("Begin", interval.Begin.Format("2006-01-02")).Str("End", interval.End.Format("2006-01-02"))
}

// InAny returns true if dt falls within any of the intervals
func InAny(intervals []Interval, dt time.Time) bool {
	for _, interval := range intervals {
		if interval.ContainsDate(dt) {
			return true
		}
	}
	return false
}

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

package statement

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var ErrDateFormat = errors.New("date does not match any supported format")

// dateLayouts are tried in order
var dateLayouts = []string{
	"2006-01-02",
	"2006-Jan-02",
	"02-Jan-2006",
}

// ParseDate accepts YYYY-MM-DD, YYYY-Mon-DD and DD-Mon-YYYY and returns the day at
// midnight UTC
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if dt, err := time.Parse(layout, s); err == nil {
			return dt, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: %q", ErrDateFormat, s)
}

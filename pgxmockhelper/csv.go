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

// Package pgxmockhelper loads CSV fixtures into pgxmock rows. Column types are
// converted per a type map so scanned values match the destination Go types.
package pgxmockhelper

import (
	"database/sql"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pashagolub/pgxmock"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

const (
	TypeDate        = "date"
	TypeNullDate    = "nulldate"
	TypeInt64       = "int64"
	TypeDecimal     = "decimal"
	TypeNullDecimal = "nulldecimal"
)

type CSVRows struct {
	rows    [][]any
	header  []string
	types   map[string]string
	dateCol int
}

func NewCSVRows(csvFn string, typeMap map[string]string) *CSVRows {
	subLog := log.With().Str("CsvFn", csvFn).Logger()

	rows := &CSVRows{
		dateCol: -1,
		types:   typeMap,
		rows:    make([][]any, 0),
	}
	rawData, err := os.ReadFile(csvFn)
	if err != nil {
		subLog.Panic().Err(err).Msg("could not read file")
	}

	// header + at least a trailing new line
	lines := strings.Split(string(rawData), "\n")
	if len(lines) < 2 {
		subLog.Panic().Int("NumLines", len(lines)).Msg("input file does not have enough lines, need at least 2 (header + trailing new line)")
	}
	if lines[len(lines)-1] != "" {
		subLog.Panic().Msg("input file is missing a trailing new line")
	}

	rows.header = strings.Split(lines[0], ",")
	rows.findDateCol()

	for _, ll := range lines[1 : len(lines)-1] {
		parts := strings.Split(ll, ",")
		if len(parts) != len(rows.header) {
			subLog.Panic().Str("Line", ll).Msg("column count does not match header")
		}

		cols := make([]any, len(rows.header))
		for idx, val := range parts {
			colName := rows.header[idx]
			converted, err := convert(typeMap[colName], val)
			if err != nil {
				subLog.Panic().Err(err).Str("Column", colName).Str("Val", val).Str("Type", typeMap[colName]).Msg("could not convert value")
			}
			cols[idx] = converted
		}
		rows.rows = append(rows.rows, cols)
	}

	return rows
}

func convert(typeConv, val string) (any, error) {
	switch typeConv {
	case TypeDate:
		return time.Parse("2006-01-02", val)
	case TypeNullDate:
		if val == "" {
			return sql.NullTime{}, nil
		}
		parsed, err := time.Parse("2006-01-02", val)
		return sql.NullTime{Time: parsed, Valid: err == nil}, err
	case TypeInt64:
		return strconv.ParseInt(val, 10, 64)
	case TypeDecimal:
		return decimal.NewFromString(val)
	case TypeNullDecimal:
		if val == "" {
			return decimal.NullDecimal{}, nil
		}
		parsed, err := decimal.NewFromString(val)
		return decimal.NewNullDecimal(parsed), err
	default:
		// no type conversion specified - use as is
		return val, nil
	}
}

// Between keeps rows whose first date column falls in [a, b]
func (csvRows *CSVRows) Between(a time.Time, b time.Time) *CSVRows {
	if len(csvRows.rows) == 0 {
		return csvRows
	}
	if csvRows.dateCol == -1 {
		log.Panic().Time("a", a).Time("b", b).Msg("no date column found")
	}

	newRows := make([][]any, 0, len(csvRows.rows))
	for _, row := range csvRows.rows {
		t := row[csvRows.dateCol].(time.Time)
		if !t.Before(a) && !t.After(b) {
			newRows = append(newRows, row)
		}
	}
	csvRows.rows = newRows
	return csvRows
}

// Columns keeps only the named columns, in the given order
func (csvRows *CSVRows) Columns(names ...string) *CSVRows {
	idx := make([]int, len(names))
	for ii, name := range names {
		idx[ii] = -1
		for jj, col := range csvRows.header {
			if col == name {
				idx[ii] = jj
			}
		}
		if idx[ii] == -1 {
			log.Panic().Str("Column", name).Msg("column not in fixture")
		}
	}

	newRows := make([][]any, len(csvRows.rows))
	for rr, row := range csvRows.rows {
		newRow := make([]any, len(idx))
		for ii, jj := range idx {
			newRow[ii] = row[jj]
		}
		newRows[rr] = newRow
	}

	csvRows.rows = newRows
	csvRows.header = names
	csvRows.findDateCol()
	return csvRows
}

func (csvRows *CSVRows) findDateCol() {
	csvRows.dateCol = -1
	for idx, colName := range csvRows.header {
		if csvRows.types[colName] == TypeDate {
			csvRows.dateCol = idx
			return
		}
	}
}

func (csvRows *CSVRows) Len() int {
	return len(csvRows.rows)
}

func (csvRows *CSVRows) Rows() *pgxmock.Rows {
	r := pgxmock.NewRows(csvRows.header)
	for _, row := range csvRows.rows {
		r.AddRow(row...)
	}
	return r
}

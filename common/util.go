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

package common

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/rs/zerolog/pkgerrors"
	"github.com/spf13/viper"
)

var logLevels = map[string]zerolog.Level{
	"trace":   zerolog.TraceLevel,
	"debug":   zerolog.DebugLevel,
	"info":    zerolog.InfoLevel,
	"warning": zerolog.WarnLevel,
	"warn":    zerolog.WarnLevel,
	"error":   zerolog.ErrorLevel,
	"fatal":   zerolog.FatalLevel,
	"panic":   zerolog.PanicLevel,
}

// SetupLogging configures the global zerolog logger from the log.* settings
func SetupLogging() {
	level := strings.ToLower(viper.GetString("log.level"))
	if lvl, ok := logLevels[level]; ok {
		log.Info().Str("Level", level).Msg("setting logging level")
		zerolog.SetGlobalLevel(lvl)
	} else {
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	}

	var out io.Writer
	switch output := viper.GetString("log.output"); output {
	case "", "stderr":
		out = os.Stderr
	case "stdout":
		out = os.Stdout
	default:
		// the file stays open for the life of the process
		fh, err := os.OpenFile(output, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0600)
		if err != nil {
			log.Panic().Err(err).Str("Output", output).Msg("could not open log file")
		}
		out = fh
	}

	if viper.GetBool("log.pretty") {
		out = zerolog.ConsoleWriter{Out: out}
	}
	log.Logger = log.Output(out)

	if viper.GetBool("log.report_caller") {
		log.Logger = log.With().Caller().Logger()
	}

	zerolog.ErrorStackMarshaler = pkgerrors.MarshalStack
}

// Partition splits xs into consecutive chunks of at most chunkSize items
func Partition[T any](xs []T, chunkSize int) [][]T {
	if len(xs) == 0 {
		return nil
	}
	if chunkSize <= 0 {
		chunkSize = len(xs)
	}

	divided := make([][]T, 0, (len(xs)+chunkSize-1)/chunkSize)
	for prev := 0; prev < len(xs); prev += chunkSize {
		next := prev + chunkSize
		if next > len(xs) {
			next = len(xs)
		}
		divided = append(divided, xs[prev:next])
	}
	return divided
}

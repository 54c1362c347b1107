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

package cmd

import (
	"fmt"
	"os"

	"github.com/penny-vault/pv-ledger/common"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func init() {
	// Database
	viper.BindEnv("database.url", "DATABASE_URL")
	rootCmd.PersistentFlags().String("database-url", "", "PostgreSQL connection string")
	viper.BindPFlag("database.url", rootCmd.PersistentFlags().Lookup("database-url"))

	// Logging configuration
	viper.BindEnv("log.level", "PVLEDGER_LOG_LEVEL")
	rootCmd.PersistentFlags().String("log-level", "warning", "Logging level")
	viper.BindPFlag("log.level", rootCmd.PersistentFlags().Lookup("log-level"))

	viper.BindEnv("log.report_caller", "PVLEDGER_LOG_REPORT_CALLER")
	rootCmd.PersistentFlags().Bool("log-report-caller", false, "Log function name that called log statement")
	viper.BindPFlag("log.report_caller", rootCmd.PersistentFlags().Lookup("log-report-caller"))

	viper.BindEnv("log.output", "PVLEDGER_LOG_OUTPUT")
	rootCmd.PersistentFlags().String("log-output", "stderr", "Write logs to specified output one of: file path, `stdout`, or `stderr`")
	viper.BindPFlag("log.output", rootCmd.PersistentFlags().Lookup("log-output"))

	viper.BindEnv("log.pretty", "PVLEDGER_LOG_PRETTY")
	rootCmd.PersistentFlags().Bool("log-pretty", false, "Write human readable logs instead of JSON")
	viper.BindPFlag("log.pretty", rootCmd.PersistentFlags().Lookup("log-pretty"))

	// Pricing
	viper.BindEnv("pricing.base_url", "PVLEDGER_PRICING_URL")
	rootCmd.PersistentFlags().String("pricing-url", "", "Base URL of the price history service")
	viper.BindPFlag("pricing.base_url", rootCmd.PersistentFlags().Lookup("pricing-url"))

	// NATS
	viper.BindEnv("nats.server", "NATS_SERVER")
	rootCmd.PersistentFlags().String("nats-server", "", "NATS server used to queue sync requests, if blank requests are not queued")
	viper.BindPFlag("nats.server", rootCmd.PersistentFlags().Lookup("nats-server"))

	viper.BindEnv("nats.credentials", "NATS_CREDENTIALS")
	viper.BindEnv("cache.redis_url", "REDIS_URL")
	viper.BindEnv("otlp.endpoint", "OTEL_EXPORTER_OTLP_ENDPOINT")
}

var rootCmd = &cobra.Command{
	Use:     "pvledger",
	Version: common.CurrentVersion.String(),
	Short:   "pvledger maintains a consolidated investment ledger",
	Long: `Reconcile parsed investment statements into a consolidated ledger and keep
holding valuations current with published price history.`,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

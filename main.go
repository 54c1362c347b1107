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

package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/penny-vault/pv-ledger/cmd"
	"github.com/penny-vault/pv-ledger/pricing"
	"github.com/spf13/viper"
)

func configureViper() {
	viper.SetDefault("log.level", "warning")
	viper.SetDefault("log.output", "stderr")
	viper.SetDefault("database.url", "postgres://localhost/pvledger")
	viper.SetDefault("registry.cache_size", 1024)
	viper.SetDefault("pricing.base_url", pricing.DefaultBaseURL)
	viper.SetDefault("pricing.timeout", "10s")
	viper.SetDefault("pricing.concurrency", 10)
	viper.SetDefault("pricing.max_retries", 2)
	viper.SetDefault("pricing.cache_ttl", "1h")
	viper.SetDefault("cache.local_size", 256)
	viper.SetDefault("nats.sync_subject", "pvledger.sync")
	viper.SetDefault("nats.sync_consumer", "pvledger-sync")
	viper.SetDefault("nats.poll_wait", "5s")
	viper.SetDefault("schedule.sync", "0 20 * * 1-5")
	viper.SetDefault("schedule.timezone", "Asia/Kolkata")

	// read config file
	viper.SetConfigName("pvledger")
	viper.SetConfigType("toml")
	viper.AddConfigPath("/etc/pv-ledger/")
	viper.AddConfigPath("$HOME/.config/pv-ledger")
	viper.AddConfigPath(".")

	err := viper.ReadInConfig()
	if err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			fmt.Fprintf(os.Stderr, "fatal error config file: %s\n", err)
			os.Exit(1)
		}
	}
}

func main() {
	configureViper()
	cmd.Execute()
}

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
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/penny-vault/pv-ledger/messenger"
	"github.com/penny-vault/pv-ledger/pricing"
	"github.com/penny-vault/pv-ledger/valuation"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func init() {
	viper.BindEnv("schedule.sync", "PVLEDGER_SYNC_SCHEDULE")
	serveCmd.Flags().String("schedule", "", "Cron schedule for synchronizing all instruments")
	viper.BindPFlag("schedule.sync", serveCmd.Flags().Lookup("schedule"))

	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run scheduled price synchronization and the sync request worker",
	Long: `Synchronize the price history of every instrument on the configured cron
schedule. When NATS is configured sync requests queued by reconcile are processed
as they arrive.`,
	Run: func(cmd *cobra.Command, args []string) {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		shutdown := initialize(ctx)
		defer shutdown()

		scheduler, err := newScheduler(ctx, viper.GetString("schedule.sync"), viper.GetString("schedule.timezone"))
		if err != nil {
			log.Fatal().Err(err).Msg("could not create scheduler")
		}
		scheduler.StartAsync()
		defer scheduler.Stop()

		if messenger.Enabled() {
			if err := messenger.Initialize(); err != nil {
				log.Fatal().Err(err).Msg("could not connect to NATS")
			}
			defer messenger.Close()

			sync := valuation.NewFromConfig(pricing.NewMFAPIFromConfig().WithoutCache())
			go processSyncRequests(ctx, sync, viper.GetDuration("nats.poll_wait"))
		}

		log.Info().Msg("pvledger worker started")
		<-ctx.Done()
		log.Info().Msg("received signal; shutting down")
	},
}

// newScheduler validates expr as a standard 5 field cron expression and
// schedules a full sync on it
func newScheduler(ctx context.Context, expr, timezone string) (*gocron.Scheduler, error) {
	if _, err := cron.ParseStandard(expr); err != nil {
		return nil, err
	}

	tz, err := time.LoadLocation(timezone)
	if err != nil {
		return nil, err
	}

	scheduler := gocron.NewScheduler(tz)
	scheduler.SingletonModeAll()

	if _, err := scheduler.Cron(expr).Do(func() {
		if err := runSync(ctx, ""); err != nil {
			log.Error().Err(err).Msg("scheduled sync failed")
		}
	}); err != nil {
		return nil, err
	}

	log.Info().Str("Schedule", expr).Str("Timezone", timezone).Msg("scheduled price sync")
	return scheduler, nil
}

func processSyncRequests(ctx context.Context, sync *valuation.Synchronizer, wait time.Duration) {
	for ctx.Err() == nil {
		req, msg, err := messenger.FetchSyncRequest(wait)
		if err != nil {
			if !errors.Is(err, messenger.ErrInvalidRequest) {
				select {
				case <-ctx.Done():
				case <-time.After(wait):
				}
			}
			continue
		}

		if req == nil {
			continue
		}

		subLog := log.With().Str("RequestID", req.ID.String()).Str("InvestorID", req.InvestorID).Logger()

		report, updated, err := sync.Run(ctx, req.Instruments)
		if err != nil {
			subLog.Error().Err(err).Msg("could not recompute valuations")
			if err := msg.Nak(); err != nil {
				subLog.Error().Err(err).Msg("could not nak sync request")
			}
			continue
		}

		if err := msg.Ack(); err != nil {
			subLog.Error().Err(err).Msg("could not ack sync request")
		}

		subLog.Info().Int("Inserted", report.Inserted).Int("Failed", report.Failed).Int("ValuationsUpdated", updated).Msg("sync request processed")
	}
}

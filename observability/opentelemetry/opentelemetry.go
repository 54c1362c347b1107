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

// Package opentelemetry wires the global tracer provider used for spans around
// reconciliation, price fetches and valuation passes
package opentelemetry

import (
	"context"
	"fmt"
	"time"

	"github.com/penny-vault/pv-ledger/common"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.10.0"
	"go.opentelemetry.io/otel/trace"
)

const (
	Name        = "github.com/penny-vault/pv-ledger"
	serviceName = "pvledger"
)

// Setup installs a global tracer provider exporting to otlp.endpoint and returns
// its shutdown function. Without an endpoint the no-op provider stays in place.
func Setup(ctx context.Context) (func(context.Context) error, error) {
	endpoint := viper.GetString("otlp.endpoint")
	if endpoint == "" {
		log.Debug().Msg("otlp.endpoint not set; tracing disabled")
		return func(context.Context) error { return nil }, nil
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceNameKey.String(serviceName),
			semconv.ServiceVersionKey.String(common.CurrentVersion.String()),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	exportCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()

	exporter, err := otlptrace.New(exportCtx, newClient(endpoint))
	if err != nil {
		return nil, fmt.Errorf("failed to create trace exporter: %w", err)
	}

	tracerProvider := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(Sampler(viper.GetFloat64("otlp.sample_ratio"))),
		sdktrace.WithResource(res),
		sdktrace.WithBatcher(exporter),
	)
	otel.SetTracerProvider(tracerProvider)
	otel.SetTextMapPropagator(propagation.TraceContext{})

	log.Info().Str("Endpoint", endpoint).Bool("HTTP", viper.GetBool("otlp.http")).Msg("tracing enabled")
	return tracerProvider.Shutdown, nil
}

// newClient picks the OTLP transport; gRPC unless otlp.http is set
func newClient(endpoint string) otlptrace.Client {
	headers := viper.GetStringMapString("otlp.headers")

	if viper.GetBool("otlp.http") {
		opts := []otlptracehttp.Option{
			otlptracehttp.WithEndpoint(endpoint),
			otlptracehttp.WithHeaders(headers),
		}
		if viper.GetBool("otlp.insecure") {
			opts = append(opts, otlptracehttp.WithInsecure())
		}
		return otlptracehttp.NewClient(opts...)
	}

	opts := []otlptracegrpc.Option{
		otlptracegrpc.WithEndpoint(endpoint),
		otlptracegrpc.WithHeaders(headers),
	}
	if viper.GetBool("otlp.insecure") {
		opts = append(opts, otlptracegrpc.WithInsecure())
	}
	return otlptracegrpc.NewClient(opts...)
}

// Sampler samples every trace for ratios outside (0, 1)
func Sampler(ratio float64) sdktrace.Sampler {
	if ratio <= 0 || ratio >= 1 {
		return sdktrace.AlwaysSample()
	}
	return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(ratio))
}

// Fail records err on span and marks the span as errored
func Fail(span trace.Span, err error, msg string) {
	span.RecordError(err)
	span.SetStatus(codes.Error, msg)
}

func InvestorAttributes(investorID string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String("investor.id", investorID),
	}
}

func InstrumentAttributes(instrumentID int64, code string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Int64("instrument.id", instrumentID),
		attribute.String("instrument.code", code),
	}
}

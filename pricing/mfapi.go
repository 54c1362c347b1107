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

package pricing

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/goccy/go-json"
	"github.com/penny-vault/pv-ledger/common"
	"github.com/penny-vault/pv-ledger/ledger"
	"github.com/penny-vault/pv-ledger/observability/opentelemetry"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

const (
	DefaultBaseURL = "https://api.mfapi.in/mf"
	mfapiDateFmt   = "02-01-2006"
	successStatus  = "SUCCESS"
)

// MFAPI reads mutual fund NAV history keyed by scheme code
type MFAPI struct {
	baseURL       string
	client        *http.Client
	maxRetries    uint64
	retryInterval time.Duration
	skipCache     bool
}

type mfapiResponse struct {
	Status string       `json:"status"`
	Data   []mfapiPoint `json:"data"`
}

type mfapiPoint struct {
	Date  string              `json:"date"`
	Nav   decimal.NullDecimal `json:"nav"`
	Price decimal.NullDecimal `json:"price"`
}

func NewMFAPI(baseURL string, maxRetries int) *MFAPI {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if maxRetries < 0 {
		maxRetries = 0
	}

	return &MFAPI{
		baseURL:       strings.TrimRight(baseURL, "/"),
		client:        &http.Client{},
		maxRetries:    uint64(maxRetries),
		retryInterval: 500 * time.Millisecond,
	}
}

// NewMFAPIFromConfig builds the provider from the pricing.* settings
func NewMFAPIFromConfig() *MFAPI {
	return NewMFAPI(viper.GetString("pricing.base_url"), viper.GetInt("pricing.max_retries"))
}

// WithRetryInterval sets the initial wait between retries
func (m *MFAPI) WithRetryInterval(d time.Duration) *MFAPI {
	m.retryInterval = d
	return m
}

// WithoutCache always downloads; fresh responses still refresh the cache
func (m *MFAPI) WithoutCache() *MFAPI {
	m.skipCache = true
	return m
}

func (m *MFAPI) History(ctx context.Context, code string) ([]ledger.PricePoint, error) {
	ctx, span := otel.Tracer(opentelemetry.Name).Start(ctx, "mfapi.History")
	defer span.End()

	subLog := log.With().Str("Code", code).Logger()

	if strings.TrimSpace(code) == "" {
		err := fmt.Errorf("%w: empty instrument code", ledger.ErrExternalFetchFailure)
		opentelemetry.Fail(span, err, "empty instrument code")
		return nil, err
	}

	reqURL := fmt.Sprintf("%s/%s", m.baseURL, url.PathEscape(code))
	span.SetAttributes(attribute.String("Url", reqURL))

	cacheKey := "mfapi:" + code
	var (
		body   []byte
		cached bool
		err    error
	)
	if !m.skipCache {
		body, cached, err = common.CacheGet(ctx, cacheKey)
		if err != nil {
			subLog.Warn().Err(err).Msg("response cache lookup failed")
		}
	}

	if !cached {
		body, err = m.download(ctx, reqURL)
		if err != nil {
			subLog.Error().Err(err).Msg("price history download failed")
			opentelemetry.Fail(span, err, "price history download failed")
			return nil, err
		}
	}

	points, err := parseMFAPI(body)
	if err != nil {
		subLog.Error().Err(err).Bytes("Body", truncate(body, 256)).Msg("could not parse price history")
		opentelemetry.Fail(span, err, "could not parse price history")
		return nil, err
	}

	if !cached {
		if err := common.CacheSet(ctx, cacheKey, body); err != nil {
			subLog.Warn().Err(err).Msg("could not cache price history response")
		}
	}

	span.SetAttributes(attribute.Int("Points", len(points)), attribute.Bool("Cached", cached))
	subLog.Debug().Int("Points", len(points)).Bool("Cached", cached).Msg("fetched price history")

	return points, nil
}

// download retries network failures and 5xx responses; 4xx responses are final
func (m *MFAPI) download(ctx context.Context, reqURL string) ([]byte, error) {
	var body []byte

	operation := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
		if err != nil {
			return backoff.Permanent(err)
		}

		resp, err := m.client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(err)
			}
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 400 {
			err := fmt.Errorf("HTTP request returned invalid status code: %d", resp.StatusCode)
			if resp.StatusCode < 500 {
				return backoff.Permanent(err)
			}
			return err
		}

		body, err = io.ReadAll(resp.Body)
		return err
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = m.retryInterval

	err := backoff.Retry(operation, backoff.WithContext(backoff.WithMaxRetries(policy, m.maxRetries), ctx))
	if err != nil {
		var permanent *backoff.PermanentError
		if errors.As(err, &permanent) {
			err = permanent.Err
		}
		return nil, fmt.Errorf("%w: %v", ledger.ErrExternalFetchFailure, err)
	}

	return body, nil
}

func parseMFAPI(body []byte) ([]ledger.PricePoint, error) {
	resp := mfapiResponse{}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("%w: malformed payload: %v", ledger.ErrExternalFetchFailure, err)
	}

	if resp.Status != "" && !strings.EqualFold(resp.Status, successStatus) {
		return nil, fmt.Errorf("%w: provider status %q", ledger.ErrExternalFetchFailure, resp.Status)
	}

	points := make([]ledger.PricePoint, 0, len(resp.Data))
	for _, item := range resp.Data {
		dt, err := time.Parse(mfapiDateFmt, strings.TrimSpace(item.Date))
		if err != nil {
			return nil, fmt.Errorf("%w: malformed date %q", ledger.ErrExternalFetchFailure, item.Date)
		}

		price := item.Nav
		if !price.Valid {
			price = item.Price
		}
		if !price.Valid {
			return nil, fmt.Errorf("%w: no price on %s", ledger.ErrExternalFetchFailure, item.Date)
		}

		points = append(points, ledger.PricePoint{
			Date:  dt,
			Price: price.Decimal,
		})
	}

	return points, nil
}

func truncate(b []byte, n int) []byte {
	if len(b) <= n {
		return b
	}
	return b[:n]
}

/**
 * Copyright 2025-present Coinbase Global, Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *  http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"pix-deposit-go/internal/chain"
	"pix-deposit-go/internal/metrics"
	"pix-deposit-go/internal/models"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"golang.org/x/net/http2"
)

var validate *validator.Validate

func init() {
	validate = validator.New()
	_ = validate.RegisterValidation("evm_address", func(fl validator.FieldLevel) bool {
		return chain.IsValidAddress(fl.Field().String())
	})
}

// Client is a stateless wrapper over the PIX backend. It does not retry and
// does not cache; callers own both.
type Client struct {
	baseURL       string
	httpClient    *http.Client
	metrics       metrics.Recorder
	asset         string
	network       string
	explorerTxURL string
	description   string
	beneficiary   string
	now           func() time.Time
}

type Option func(*Client)

// WithHTTPClient replaces the default HTTP/2 capable client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

func WithMetrics(r metrics.Recorder) Option {
	return func(c *Client) { c.metrics = r }
}

// WithClock overrides time.Now for charge expiry and transform fallbacks
func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

func NewClient(cfg *models.Config, opts ...Option) (*Client, error) {
	if cfg.Backend.BaseURL == "" {
		return nil, fmt.Errorf("backend base URL is required")
	}

	c := &Client{
		baseURL:       strings.TrimRight(cfg.Backend.BaseURL, "/"),
		metrics:       metrics.NoopRecorder{},
		asset:         cfg.Deposit.Asset,
		network:       cfg.Deposit.Network,
		explorerTxURL: cfg.Chain.ExplorerTxURL,
		description:   cfg.Deposit.Description,
		beneficiary:   cfg.Deposit.Beneficiary,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.httpClient == nil {
		hc, err := createCustomHttpClient(cfg.Backend.HTTPTimeout)
		if err != nil {
			return nil, fmt.Errorf("unable to create custom http client: %w", err)
		}
		c.httpClient = hc
	}

	return c, nil
}

func createCustomHttpClient(timeout time.Duration) (*http.Client, error) {
	tr := &http.Transport{
		ResponseHeaderTimeout: 30 * time.Second,
		Proxy:                 http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			KeepAlive: 30 * time.Second,
			Timeout:   15 * time.Second,
		}).DialContext,
		MaxIdleConns:          10,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		MaxIdleConnsPerHost:   5,
		ExpectContinueTimeout: 5 * time.Second,
	}

	if err := http2.ConfigureTransport(tr); err != nil {
		return nil, err
	}

	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	return &http.Client{
		Transport: tr,
		Timeout:   timeout,
	}, nil
}

// response is a decoded backend reply. JSON is set when the content type is
// JSON, otherwise Text holds the raw body.
type response struct {
	JSON []byte
	Text string
}

func (c *Client) do(ctx context.Context, op, method, path string, body any) (*response, error) {
	start := time.Now()
	resp, err := c.send(ctx, op, method, path, body)
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	c.metrics.ObserveLatency("gateway_"+op, time.Since(start), map[string]string{"outcome": outcome})
	return resp, err
}

func (c *Client) send(ctx context.Context, op, method, path string, body any) (*response, error) {
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	url := c.baseURL + path

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, &Error{Kind: KindValidation, Op: op, Message: "unable to encode request", Err: err}
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, &Error{Kind: KindValidation, Op: op, Message: "unable to build request", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	zap.L().Debug("Calling backend", zap.String("op", op), zap.String("method", method), zap.String("url", url))

	res, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &Error{Kind: KindNetwork, Op: op, Message: err.Error(), Err: err}
	}
	defer res.Body.Close()

	raw, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, &Error{Kind: KindNetwork, Op: op, Message: "unable to read response body", Err: err}
	}

	if res.StatusCode < 200 || res.StatusCode > 299 {
		msg := strings.TrimSpace(string(raw))
		if msg == "" {
			msg = fmt.Sprintf("HTTP %d", res.StatusCode)
		}
		zap.L().Warn("Backend returned non-OK status",
			zap.String("op", op),
			zap.Int("status", res.StatusCode),
			zap.String("body", msg))
		return nil, &Error{Kind: KindHTTP, Op: op, Status: res.StatusCode, Message: msg}
	}

	if strings.Contains(res.Header.Get("Content-Type"), "application/json") {
		return &response{JSON: raw}, nil
	}
	return &response{Text: string(raw)}, nil
}

// decode unmarshals a JSON reply into out. A text reply is a shape error.
func decode(op string, resp *response, out any) error {
	if resp.JSON == nil {
		return &Error{Kind: KindResponse, Op: op, Message: fmt.Sprintf("expected JSON response, got %q", truncate(resp.Text, 120))}
	}
	if err := json.Unmarshal(resp.JSON, out); err != nil {
		return &Error{Kind: KindResponse, Op: op, Message: "unable to decode response", Err: err}
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

func checkAddress(op, address string) (string, error) {
	address = strings.TrimSpace(address)
	if err := validate.Var(address, "required,evm_address"); err != nil {
		if address == "" {
			return "", validationError(op, "wallet address is required")
		}
		return "", validationError(op, fmt.Sprintf("invalid wallet address %q", address))
	}
	return address, nil
}

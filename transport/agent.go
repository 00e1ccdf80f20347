// Copyright 2025 The Rivaas Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package transport

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/go-retryablehttp"
)

// DefaultAgentURL is the trace agent address used when none is configured.
const DefaultAgentURL = "http://localhost:8126"

const tracesPath = "/v0.4/traces"

// Agent sends msgpack payloads to a trace agent. Failed requests are
// retried by the HTTP client; Send returns the final error.
type Agent struct {
	url     string
	client  *retryablehttp.Client
	encoder Encoder

	mu      sync.RWMutex
	headers map[string]string
}

// AgentOption configures an Agent.
type AgentOption func(*Agent)

// WithHTTPClient sets the underlying HTTP client.
func WithHTTPClient(c *http.Client) AgentOption {
	return func(a *Agent) {
		a.client.HTTPClient = c
	}
}

// WithRetries sets the retry budget and backoff bounds.
func WithRetries(maxRetries int, waitMin, waitMax time.Duration) AgentOption {
	return func(a *Agent) {
		a.client.RetryMax = maxRetries
		a.client.RetryWaitMin = waitMin
		a.client.RetryWaitMax = waitMax
	}
}

// WithEncoder replaces the msgpack encoder.
func WithEncoder(e Encoder) AgentOption {
	return func(a *Agent) {
		a.encoder = e
	}
}

// NewAgent returns an Agent posting to url, or DefaultAgentURL when url is
// empty.
func NewAgent(url string, opts ...AgentOption) *Agent {
	if url == "" {
		url = DefaultAgentURL
	}

	client := retryablehttp.NewClient()
	client.RetryMax = 3
	client.RetryWaitMin = 100 * time.Millisecond
	client.RetryWaitMax = 2 * time.Second
	client.Logger = nil

	a := &Agent{
		url:     strings.TrimRight(url, "/"),
		client:  client,
		encoder: MsgpackEncoder{},
		headers: map[string]string{
			"Datadog-Meta-Lang":         "go",
			"Datadog-Meta-Lang-Version": runtime.Version(),
		},
	}
	for _, opt := range opts {
		opt(a)
	}

	return a
}

// URL returns the traces endpoint.
func (a *Agent) URL() string {
	return a.url + tracesPath
}

// SetHeader implements Transport.
func (a *Agent) SetHeader(key, value string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.headers[key] = value
}

// Send encodes traces and POSTs them to the agent. An empty batch is not
// sent.
func (a *Agent) Send(ctx context.Context, traces []Trace) error {
	if len(traces) == 0 {
		return nil
	}

	body, err := a.encoder.Encode(traces)
	if err != nil {
		return err
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, a.URL(), body)
	if err != nil {
		return fmt.Errorf("transport: build agent request: %w", err)
	}
	req.Header.Set("Content-Type", a.encoder.ContentType())
	req.Header.Set("X-Datadog-Trace-Count", strconv.Itoa(len(traces)))
	a.mu.RLock()
	for k, v := range a.headers {
		req.Header.Set(k, v)
	}
	a.mu.RUnlock()

	resp, err := a.client.Do(req)
	if err != nil {
		return fmt.Errorf("transport: send to agent: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("transport: agent responded %s", resp.Status)
	}

	return nil
}

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

// Package transport delivers finished traces to a backend.
//
// The tracer talks only to the Transport interface. Concrete transports:
//
//   - Agent: msgpack v0.4 payloads POSTed to a trace agent over HTTP, with
//     retries.
//   - Exporter: adapts an OpenTelemetry SpanExporter (stdout, OTLP gRPC,
//     OTLP HTTP).
//   - InMemory: records every send, for tests.
//   - Noop: discards everything.
package transport

import (
	"context"
	"maps"
	"sync"

	"rivaas.dev/tracer/ids"
	"rivaas.dev/tracer/span"
)

// Trace is the set of finished spans of one trace, in finish order.
type Trace struct {
	ID    ids.TraceID
	Spans []*span.Record
}

// Transport sends traces to a backend.
type Transport interface {
	// Send delivers traces. It is called on every flush, possibly with an
	// empty slice.
	Send(ctx context.Context, traces []Trace) error

	// SetHeader sets a header sent with every payload, where the transport
	// has such a notion.
	SetHeader(key, value string)
}

// Encoder serializes traces into a payload.
type Encoder interface {
	Encode(traces []Trace) ([]byte, error)
	ContentType() string
}

// Shutdowner is implemented by transports holding resources.
type Shutdowner interface {
	Shutdown(ctx context.Context) error
}

// Noop discards all traces.
type Noop struct{}

// Send implements Transport.
func (Noop) Send(context.Context, []Trace) error { return nil }

// SetHeader implements Transport.
func (Noop) SetHeader(string, string) {}

// InMemory records every send. It is safe for concurrent use.
type InMemory struct {
	mu      sync.Mutex
	sends   [][]Trace
	headers map[string]string
	err     error
}

// NewInMemory returns an empty InMemory transport.
func NewInMemory() *InMemory {
	return &InMemory{headers: make(map[string]string)}
}

// Send records traces and returns the configured error, if any.
func (m *InMemory) Send(_ context.Context, traces []Trace) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.sends = append(m.sends, traces)

	return m.err
}

// SetHeader implements Transport.
func (m *InMemory) SetHeader(key, value string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.headers[key] = value
}

// SetError makes subsequent sends fail with err.
func (m *InMemory) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.err = err
}

// Sends returns every recorded send, including empty ones.
func (m *InMemory) Sends() [][]Trace {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([][]Trace, len(m.sends))
	copy(out, m.sends)

	return out
}

// Traces returns all recorded traces across sends.
func (m *InMemory) Traces() []Trace {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []Trace
	for _, s := range m.sends {
		out = append(out, s...)
	}

	return out
}

// Spans returns all recorded spans in send order.
func (m *InMemory) Spans() []*span.Record {
	var out []*span.Record
	for _, t := range m.Traces() {
		out = append(out, t.Spans...)
	}

	return out
}

// Headers returns a copy of the headers set so far.
func (m *InMemory) Headers() map[string]string {
	m.mu.Lock()
	defer m.mu.Unlock()

	return maps.Clone(m.headers)
}

// Reset forgets all recorded sends.
func (m *InMemory) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.sends = nil
}

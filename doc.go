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

// Package tracer is a request-tracing client. It creates native spans,
// buffers them per trace once finished and flushes them to a transport:
// a trace agent, an OpenTelemetry exporter or a caller-supplied one.
//
// # Basic Usage
//
//	import (
//	    "context"
//	    "log"
//	    "rivaas.dev/tracer"
//	)
//
//	t, err := tracer.New(
//	    tracer.WithServiceName("my-service"),
//	    tracer.WithServiceVersion("v1.0.0"),
//	    tracer.WithAgent("http://localhost:8126"),
//	    tracer.WithFlushInterval(2*time.Second),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer t.Shutdown(context.Background())
//
// # Providers
//
//   - NoopProvider (default): traces are discarded
//   - AgentProvider: msgpack payloads to a trace agent
//   - StdoutProvider: OpenTelemetry stdout exporter (development)
//   - OTLPProvider / OTLPHTTPProvider: OpenTelemetry collector; call Start
//   - CustomProvider: any transport.Transport via WithTransport
//
// # Spans and Scopes
//
// StartSpan creates a span; StartActiveSpan also pushes it on the scope
// manager carried by the context, so later spans become its children:
//
//	ctx = scope.WithManager(ctx, scope.NewManager())
//	s, err := t.StartActiveSpan(ctx, "checkout")
//	if err != nil {
//	    return err
//	}
//	defer s.Close()
//
//	child, _ := t.StartSpan(ctx, "db.query", tracer.SpanType("sql"))
//	child.Finish()
//
// # Context Propagation
//
// Inject and Extract speak Datadog headers and W3C trace context:
//
//	remote, err := t.Extract(tracer.FormatHTTPHeaders, req.Header)
//	rec, _ := t.StartSpan(ctx, "web.request", tracer.ChildOfRemote(remote))
//	t.Inject(rec, tracer.FormatHTTPHeaders, outgoing.Header)
//
// # Configuration From the Environment
//
// FromEnv reads DD_SERVICE, DD_ENV, DD_VERSION, DD_TAGS, DD_TRACE_ENABLED,
// DD_TRACE_AGENT_URL and related variables:
//
//	t := tracer.MustNew(tracer.FromEnv())
//
// # OpenTelemetry
//
// The bridge package exposes a trace.TracerProvider whose spans mirror
// native records, so OpenTelemetry-instrumented code reports into the same
// traces.
//
// # Log Correlation
//
// ContextLogger adds dd.trace_id, dd.span_id, dd.service, dd.env and
// dd.version to a slog logger from the active span of ctx:
//
//	t.ContextLogger(ctx, slog.Default()).InfoContext(ctx, "order placed")
//
// # Thread Safety
//
// All methods are safe for concurrent use. Configuration is fixed after New.
package tracer

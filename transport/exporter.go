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
	"strings"
	"time"

	"github.com/spf13/cast"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/instrumentation"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/trace"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"rivaas.dev/tracer/ids"
	"rivaas.dev/tracer/span"
)

// InstrumentationName identifies spans produced by this tracer.
const InstrumentationName = "rivaas.dev/tracer"

// Exporter adapts an OpenTelemetry SpanExporter to Transport. Finished
// records are converted to read-only span snapshots.
type Exporter struct {
	exporter sdktrace.SpanExporter
	resource *resource.Resource
	scope    instrumentation.Scope
}

// NewExporter wraps exp. res describes the emitting service.
func NewExporter(exp sdktrace.SpanExporter, res *resource.Resource) *Exporter {
	if res == nil {
		res = resource.Empty()
	}

	return &Exporter{
		exporter: exp,
		resource: res,
		scope:    instrumentation.Scope{Name: InstrumentationName},
	}
}

// NewStdoutExporter writes spans as pretty-printed JSON to stdout.
func NewStdoutExporter(res *resource.Resource, opts ...stdouttrace.Option) (*Exporter, error) {
	if len(opts) == 0 {
		opts = []stdouttrace.Option{stdouttrace.WithPrettyPrint()}
	}
	exp, err := stdouttrace.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create stdout exporter: %w", err)
	}

	return NewExporter(exp, res), nil
}

// NewOTLPExporter exports over OTLP gRPC. An empty endpoint uses the
// exporter's default.
func NewOTLPExporter(ctx context.Context, res *resource.Resource, endpoint string, insecure bool) (*Exporter, error) {
	var opts []otlptracegrpc.Option
	if endpoint != "" {
		opts = append(opts, otlptracegrpc.WithEndpoint(endpoint))
	}
	if insecure {
		opts = append(opts, otlptracegrpc.WithInsecure())
	}

	exp, err := otlptracegrpc.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create OTLP gRPC exporter: %w", err)
	}

	return NewExporter(exp, res), nil
}

// NewOTLPHTTPExporter exports over OTLP HTTP. An http:// endpoint disables
// TLS; any path is ignored.
func NewOTLPHTTPExporter(ctx context.Context, res *resource.Resource, endpoint string) (*Exporter, error) {
	var opts []otlptracehttp.Option
	if endpoint != "" {
		host := endpoint
		insecure := false
		if trimmed, ok := strings.CutPrefix(host, "http://"); ok {
			host = trimmed
			insecure = true
		} else if trimmed, ok := strings.CutPrefix(host, "https://"); ok {
			host = trimmed
		}
		if idx := strings.Index(host, "/"); idx != -1 {
			host = host[:idx]
		}

		opts = append(opts, otlptracehttp.WithEndpoint(host))
		if insecure {
			opts = append(opts, otlptracehttp.WithInsecure())
		}
	}

	exp, err := otlptracehttp.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create OTLP HTTP exporter: %w", err)
	}

	return NewExporter(exp, res), nil
}

// Send implements Transport.
func (e *Exporter) Send(ctx context.Context, traces []Trace) error {
	var spans []sdktrace.ReadOnlySpan
	for _, t := range traces {
		for _, rec := range t.Spans {
			spans = append(spans, e.stub(rec).Snapshot())
		}
	}
	if len(spans) == 0 {
		return nil
	}

	if err := e.exporter.ExportSpans(ctx, spans); err != nil {
		return fmt.Errorf("transport: export spans: %w", err)
	}

	return nil
}

// SetHeader is a no-op; exporters carry their own headers.
func (e *Exporter) SetHeader(string, string) {}

// Shutdown flushes and closes the wrapped exporter.
func (e *Exporter) Shutdown(ctx context.Context) error {
	return e.exporter.Shutdown(ctx)
}

func (e *Exporter) stub(rec *span.Record) tracetest.SpanStub {
	var flags trace.TraceFlags
	if p, ok := rec.Trace().SamplingPriority(); !ok || p > 0 {
		flags = trace.FlagsSampled
	}
	traceID := trace.TraceID(rec.TraceID().Bytes())

	stub := tracetest.SpanStub{
		Name: rec.Name(),
		SpanContext: trace.NewSpanContext(trace.SpanContextConfig{
			TraceID:    traceID,
			SpanID:     trace.SpanID(ids.SpanIDBytes(rec.SpanID())),
			TraceFlags: flags,
		}),
		SpanKind:             spanKind(rec),
		StartTime:            rec.StartTime(),
		Resource:             e.resource,
		InstrumentationScope: e.scope,
	}
	if pid := rec.ParentID(); pid != 0 {
		stub.Parent = trace.NewSpanContext(trace.SpanContextConfig{
			TraceID:    traceID,
			SpanID:     trace.SpanID(ids.SpanIDBytes(pid)),
			TraceFlags: flags,
			Remote:     rec.Parent() == nil,
		})
	}
	if d, ok := rec.Duration(); ok {
		stub.EndTime = rec.StartTime().Add(time.Duration(d))
	}

	stub.Attributes = append(stub.Attributes, attribute.String(span.ServiceName, rec.Service()))
	if r := rec.Resource(); r != "" {
		stub.Attributes = append(stub.Attributes, attribute.String(span.ResourceName, r))
	}
	if typ := rec.Type(); typ != "" {
		stub.Attributes = append(stub.Attributes, attribute.String(span.SpanType, typ))
	}
	meta := rec.Meta()
	for _, k := range rec.MetaKeys() {
		stub.Attributes = append(stub.Attributes, attribute.String(k, meta[k]))
	}
	for k, v := range rec.Metrics() {
		stub.Attributes = append(stub.Attributes, attribute.Float64(k, v))
	}

	for _, ev := range rec.Events() {
		event := sdktrace.Event{Name: ev.Name, Time: time.Unix(0, ev.Time)}
		for k, v := range ev.Attributes {
			event.Attributes = append(event.Attributes, attributeOf(k, v))
		}
		stub.Events = append(stub.Events, event)
	}

	for _, l := range rec.Links() {
		ts, _ := trace.ParseTraceState(l.TraceState)
		link := sdktrace.Link{
			SpanContext: trace.NewSpanContext(trace.SpanContextConfig{
				TraceID:    trace.TraceID(l.TraceID.Bytes()),
				SpanID:     trace.SpanID(ids.SpanIDBytes(l.SpanID)),
				TraceFlags: trace.TraceFlags(l.Flags),
				TraceState: ts,
			}),
		}
		for k, v := range l.Attributes {
			link.Attributes = append(link.Attributes, attribute.String(k, v))
		}
		stub.Links = append(stub.Links, link)
	}

	if rec.HasError() {
		stub.Status = sdktrace.Status{Code: codes.Error, Description: meta[span.ErrorMsg]}
	}

	return stub
}

func spanKind(rec *span.Record) trace.SpanKind {
	kind, _ := rec.Tag(span.SpanKind)
	switch kind {
	case span.SpanKindServer:
		return trace.SpanKindServer
	case span.SpanKindClient:
		return trace.SpanKindClient
	case span.SpanKindProducer:
		return trace.SpanKindProducer
	case span.SpanKindConsumer:
		return trace.SpanKindConsumer
	default:
		return trace.SpanKindInternal
	}
}

func attributeOf(key string, v any) attribute.KeyValue {
	switch val := v.(type) {
	case string:
		return attribute.String(key, val)
	case bool:
		return attribute.Bool(key, val)
	case int:
		return attribute.Int(key, val)
	case int64:
		return attribute.Int64(key, val)
	case float64:
		return attribute.Float64(key, val)
	case []string:
		return attribute.StringSlice(key, val)
	case []bool:
		return attribute.BoolSlice(key, val)
	case []int64:
		return attribute.Int64Slice(key, val)
	case []float64:
		return attribute.Float64Slice(key, val)
	default:
		return attribute.String(key, cast.ToString(v))
	}
}

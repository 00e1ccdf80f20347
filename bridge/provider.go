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

package bridge

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/sdk/instrumentation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/embedded"

	"rivaas.dev/tracer"
	"rivaas.dev/tracer/span"
	"rivaas.dev/tracer/transport"
)

// MetricMirrorsCreated counts mirrors stored in the side-table.
const MetricMirrorsCreated = "tracer.mirrors.created"

// ErrNilTracer is returned by New when no tracer is given.
var ErrNilTracer = errors.New("bridge: tracer is required")

// Option configures a TracerProvider.
type Option func(*TracerProvider)

// WithSampler sets the sampler consulted by Tracer.Start. It defaults to
// the sampler of the native tracer.
func WithSampler(s sdktrace.Sampler) Option {
	return func(p *TracerProvider) {
		if s != nil {
			p.sampler = s
		}
	}
}

// WithActiveSpanProvider overrides where the resolver reads the active
// native span from. It defaults to the native tracer.
func WithActiveSpanProvider(a ActiveSpanProvider) Option {
	return func(p *TracerProvider) {
		if a != nil {
			p.active = a
		}
	}
}

// TracerProvider is an OpenTelemetry TracerProvider whose spans are native
// records of a *tracer.Tracer.
type TracerProvider struct {
	embedded.TracerProvider

	tracer   *tracer.Tracer
	active   ActiveSpanProvider
	sampler  sdktrace.Sampler
	mirrors  *sideTable
	resolver *Resolver

	mirrorsCreated metric.Int64Counter
}

var _ trace.TracerProvider = (*TracerProvider)(nil)

// New returns a TracerProvider backed by t. Mirrors are dropped from the
// side-table when t flushes their records.
//
// Example:
//
//	provider, err := bridge.New(t)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	otel.SetTracerProvider(provider)
//	otel.SetTextMapPropagator(provider.Propagator())
func New(t *tracer.Tracer, opts ...Option) (*TracerProvider, error) {
	if t == nil {
		return nil, ErrNilTracer
	}

	p := &TracerProvider{
		tracer:  t,
		active:  t,
		sampler: t.Sampler(),
		mirrors: newSideTable(),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.sampler == nil {
		p.sampler = sdktrace.ParentBased(sdktrace.AlwaysSample())
	}

	counter, err := t.Meter().Int64Counter(MetricMirrorsCreated,
		metric.WithDescription("Number of OpenTelemetry mirrors created for native spans"))
	if err != nil {
		return nil, fmt.Errorf("failed to create %s counter: %w", MetricMirrorsCreated, err)
	}
	p.mirrorsCreated = counter

	p.resolver = &Resolver{active: p.active, provider: p}
	t.OnFlush(p.evictFlushed)

	return p, nil
}

// MustNew is New that panics on error.
func MustNew(t *tracer.Tracer, opts ...Option) *TracerProvider {
	p, err := New(t, opts...)
	if err != nil {
		panic(fmt.Sprintf("bridge: failed to create tracer provider: %v", err))
	}

	return p
}

// Tracer returns a tracer whose spans carry the given instrumentation
// scope.
func (p *TracerProvider) Tracer(name string, opts ...trace.TracerOption) trace.Tracer {
	cfg := trace.NewTracerConfig(opts...)

	return &Tracer{
		provider: p,
		instr: instrumentation.Scope{
			Name:      name,
			Version:   cfg.InstrumentationVersion(),
			SchemaURL: cfg.SchemaURL(),
		},
	}
}

// Resolver returns the context resolver of p.
func (p *TracerProvider) Resolver() *Resolver {
	return p.resolver
}

// NativeTracer returns the tracer behind p.
func (p *TracerProvider) NativeTracer() *tracer.Tracer {
	return p.tracer
}

// MirrorOf returns the mirror of rec, if one was created and not yet
// evicted.
func (p *TracerProvider) MirrorOf(rec *span.Record) (*Span, bool) {
	if rec == nil {
		return nil, false
	}

	return p.mirrors.load(rec)
}

// Mirrors returns the number of mirrors in the side-table.
func (p *TracerProvider) Mirrors() int {
	return p.mirrors.len()
}

// mirrorOf builds, without storing, a mirror for a record created natively.
// Records continuing a remote trace get a remote parent context.
func (p *TracerProvider) mirrorOf(rec *span.Record, parent trace.SpanContext) *Span {
	sampled := traceSampled(rec)
	if !parent.IsValid() && rec.Parent() == nil && rec.ParentID() != 0 {
		parent = newSpanContext(rec.TraceID(), rec.ParentID(), sampled, trace.TraceState{}, true)
	}

	meta, _ := rec.Tag(span.SpanKind)
	s := newSpan(p, rec, kindFromString(meta), parent, instrumentation.Scope{Name: transport.InstrumentationName}, sampled)
	s.updateConvention()

	return s
}

func (p *TracerProvider) mirrorCreated(ctx context.Context) {
	p.mirrorsCreated.Add(ctx, 1)
}

// evictFlushed drops the mirrors of flushed records and ends them. Flushed
// records are finished, so their mirrors can never end through the
// resolver once they are gone from the side-table.
func (p *TracerProvider) evictFlushed(traces []transport.Trace) {
	for _, tr := range traces {
		for _, m := range p.mirrors.evict(tr.Spans) {
			m.endMirror()
		}
	}
}

func traceSampled(rec *span.Record) bool {
	prio, ok := rec.Trace().SamplingPriority()

	return ok && prio > 0
}

func kindString(k trace.SpanKind) string {
	switch k {
	case trace.SpanKindServer:
		return span.SpanKindServer
	case trace.SpanKindClient:
		return span.SpanKindClient
	case trace.SpanKindProducer:
		return span.SpanKindProducer
	case trace.SpanKindConsumer:
		return span.SpanKindConsumer
	default:
		return span.SpanKindInternal
	}
}

func kindFromString(s string) trace.SpanKind {
	switch s {
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

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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/baggage"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"

	"rivaas.dev/tracer/ids"
	"rivaas.dev/tracer/span"
)

// staticSampler returns a fixed decision and tracestate.
type staticSampler struct {
	decision   sdktrace.SamplingDecision
	tracestate string
	attributes []attribute.KeyValue
}

func (s staticSampler) ShouldSample(sdktrace.SamplingParameters) sdktrace.SamplingResult {
	ts, _ := trace.ParseTraceState(s.tracestate)

	return sdktrace.SamplingResult{Decision: s.decision, Tracestate: ts, Attributes: s.attributes}
}

func (s staticSampler) Description() string { return "static" }

// TestTracer_StartRoot tests a span started without any parent.
func TestTracer_StartRoot(t *testing.T) {
	t.Parallel()

	p, tr, _ := newTestProvider(t)
	ctx := requestContext(t)

	spanCtx, s := p.Tracer("test").Start(ctx, "GET /users")
	defer s.End()

	m, ok := s.(*Span)
	require.True(t, ok)
	assert.Same(t, s, trace.SpanFromContext(spanCtx))

	rec := m.Record()
	assert.True(t, rec.IsLocalRoot())
	assert.Equal(t, "GET /users", rec.Resource())
	assert.Equal(t, "internal", rec.Name())
	assert.Equal(t, "test-service", rec.Service())
	prio, ok := rec.Trace().SamplingPriority()
	require.True(t, ok)
	assert.Equal(t, span.PriorityAutoKeep, prio)
	assert.Same(t, rec, tr.ActiveSpan(ctx))
	assert.False(t, m.Parent().IsValid())
}

// TestTracer_StartChildOfMirror tests that a mirror in ctx is a local parent.
func TestTracer_StartChildOfMirror(t *testing.T) {
	t.Parallel()

	p, _, _ := newTestProvider(t)
	ctx := requestContext(t)
	otelTracer := p.Tracer("test")

	ctx, parent := otelTracer.Start(ctx, "parent")
	defer parent.End()
	_, child := otelTracer.Start(ctx, "child")
	defer child.End()

	parentRec := parent.(*Span).Record()
	childRec := child.(*Span).Record()
	assert.Same(t, parentRec, childRec.Parent())
	assert.Equal(t, parentRec.SpanID(), childRec.ParentID())
	assert.Equal(t, parent.SpanContext(), child.(*Span).Parent())
}

// TestTracer_StartUnderNativeSpan tests that the active native span becomes
// the parent when ctx carries no span.
func TestTracer_StartUnderNativeSpan(t *testing.T) {
	t.Parallel()

	p, tr, _ := newTestProvider(t)
	ctx := requestContext(t)

	native, err := tr.StartActiveSpan(ctx, "web.request")
	require.NoError(t, err)
	defer native.Close()

	_, s := p.Tracer("test").Start(ctx, "render")
	defer s.End()

	rec := s.(*Span).Record()
	assert.Same(t, native.Span(), rec.Parent())
	_, ok := p.MirrorOf(native.Span())
	assert.True(t, ok, "the native parent was mirrored")
}

// TestTracer_StartRemoteParent tests that a foreign parent is consumed as a
// traceparent with its tracestate.
func TestTracer_StartRemoteParent(t *testing.T) {
	t.Parallel()

	p, _, _ := newTestProvider(t)

	ts, err := trace.ParseTraceState("dd=s:2;o:synthetics;t.dm:-4,vendor=x")
	require.NoError(t, err)
	remote := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    trace.TraceID{15: 0x2a},
		SpanID:     trace.SpanID{7: 0x07},
		TraceFlags: trace.FlagsSampled,
		TraceState: ts,
		Remote:     true,
	})
	ctx := trace.ContextWithRemoteSpanContext(requestContext(t), remote)

	_, s := p.Tracer("test").Start(ctx, "consume")
	defer s.End()

	rec := s.(*Span).Record()
	assert.Equal(t, ids.TraceID{Low: 42}, rec.TraceID())
	assert.Equal(t, uint64(7), rec.ParentID())
	assert.Nil(t, rec.Parent())

	prio, _ := rec.Trace().SamplingPriority()
	assert.Equal(t, span.PriorityUserKeep, prio)
	assert.Equal(t, "synthetics", rec.Trace().Origin())
	dm, _ := rec.Trace().PropagatingTag("dm")
	assert.Equal(t, "-4", dm)
	assert.Contains(t, rec.Trace().TraceState(), "vendor=x")
	assert.Equal(t, remote, s.(*Span).Parent())
}

// TestTracer_StartNewRoot tests that WithNewRoot ignores the span in ctx.
func TestTracer_StartNewRoot(t *testing.T) {
	t.Parallel()

	p, _, _ := newTestProvider(t)
	ctx := requestContext(t)
	otelTracer := p.Tracer("test")

	ctx, parent := otelTracer.Start(ctx, "parent")
	defer parent.End()
	_, s := otelTracer.Start(ctx, "detached", trace.WithNewRoot())
	defer s.End()

	rec := s.(*Span).Record()
	assert.True(t, rec.IsLocalRoot())
	assert.NotEqual(t, parent.(*Span).Record().TraceID(), rec.TraceID())
}

// TestTracer_StartDrop tests that a dropped span creates no record.
func TestTracer_StartDrop(t *testing.T) {
	t.Parallel()

	p, tr, mem := newTestProvider(t, WithSampler(sdktrace.NeverSample()))
	ctx := requestContext(t)

	ctx, s := p.Tracer("test").Start(ctx, "noise")
	_, isMirror := s.(*Span)
	assert.False(t, isMirror)
	assert.False(t, s.IsRecording())
	assert.True(t, s.SpanContext().IsValid())
	assert.False(t, s.SpanContext().IsSampled())
	assert.Equal(t, s.SpanContext(), trace.SpanContextFromContext(ctx))
	s.End()

	assert.Nil(t, tr.ActiveSpan(ctx))
	assert.Equal(t, 0, p.Mirrors())
	require.NoError(t, tr.Flush(t.Context()))
	assert.Empty(t, mem.Spans())
}

// TestTracer_StartRecordOnly tests that a record-only decision keeps the span
// but rejects the trace.
func TestTracer_StartRecordOnly(t *testing.T) {
	t.Parallel()

	p, _, _ := newTestProvider(t, WithSampler(staticSampler{decision: sdktrace.RecordOnly}))

	_, s := p.Tracer("test").Start(requestContext(t), "op")
	defer s.End()

	assert.True(t, s.IsRecording())
	assert.False(t, s.SpanContext().IsSampled())
	prio, _ := s.(*Span).Record().Trace().SamplingPriority()
	assert.Equal(t, span.PriorityAutoReject, prio)
}

// TestTracer_StartSamplerResult tests that the sampler's tracestate and
// attributes reach a root record.
func TestTracer_StartSamplerResult(t *testing.T) {
	t.Parallel()

	p, _, _ := newTestProvider(t, WithSampler(staticSampler{
		decision:   sdktrace.RecordAndSample,
		tracestate: "dd=s:1,vendor=value",
		attributes: []attribute.KeyValue{attribute.String("sampler.rule", "default")},
	}))

	_, s := p.Tracer("test").Start(requestContext(t), "op")
	defer s.End()

	rec := s.(*Span).Record()
	assert.Equal(t, "vendor=value", rec.Trace().TraceState())
	rule, _ := rec.Tag("sampler.rule")
	assert.Equal(t, "default", rule)
}

// TestTracer_StartOptions tests start attributes, links, timestamp and baggage.
func TestTracer_StartOptions(t *testing.T) {
	t.Parallel()

	p, _, _ := newTestProvider(t)

	member, err := baggage.NewMember("tenant", "acme")
	require.NoError(t, err)
	bag, err := baggage.New(member)
	require.NoError(t, err)
	ctx := baggage.ContextWithBaggage(requestContext(t), bag)

	linked := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID: trace.TraceID{0x01},
		SpanID:  trace.SpanID{0x01},
	})
	start := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)

	_, s := p.Tracer("test").Start(ctx, "op",
		trace.WithSpanKind(trace.SpanKindProducer),
		trace.WithAttributes(attribute.Int("batch.size", 10)),
		trace.WithLinks(trace.Link{SpanContext: linked}, trace.Link{}),
		trace.WithTimestamp(start),
	)
	defer s.End()

	rec := s.(*Span).Record()
	size, ok := rec.Metric("batch.size")
	require.True(t, ok)
	assert.InDelta(t, 10.0, size, 0)
	assert.Len(t, rec.Links(), 1)
	assert.Equal(t, start, rec.StartTime())
	assert.Equal(t, "acme", rec.BaggageItem("tenant"))
	assert.Equal(t, "producer", rec.Name())
}

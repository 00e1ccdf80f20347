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

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.opentelemetry.io/otel/baggage"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"rivaas.dev/tracer"
	"rivaas.dev/tracer/ids"
	"rivaas.dev/tracer/propagator"
)

// TestPropagator_RoundTrip tests injecting a mirror and extracting it as a
// remote parent of a new span.
func TestPropagator_RoundTrip(t *testing.T) {
	t.Parallel()

	p, _, _ := newTestProvider(t)
	prop := p.Propagator()

	ctx, s := p.Tracer("client").Start(requestContext(t), "call")
	rec := s.(*Span).Record()
	rec.Trace().SetOrigin("synthetics")
	rec.SetBaggageItem("tenant", "acme")

	carrier := propagation.MapCarrier{}
	prop.Inject(ctx, carrier)
	s.End()

	assert.Equal(t, ids.ToDecimalString(rec.SpanID()), carrier.Get(propagator.HeaderParentID))
	assert.Equal(t, "synthetics", carrier.Get(propagator.HeaderOrigin))
	assert.NotEmpty(t, carrier.Get(propagator.HeaderTraceParent))
	assert.Equal(t, "acme", carrier.Get(propagator.BaggagePrefix+"tenant"))

	extracted := prop.Extract(requestContext(t), carrier)
	remote := trace.SpanContextFromContext(extracted)
	require.True(t, remote.IsValid())
	assert.True(t, remote.IsRemote())
	assert.True(t, remote.IsSampled())
	assert.Equal(t, rec.TraceID(), ids.TraceIDFromBytes(remote.TraceID()))
	assert.Equal(t, rec.SpanID(), ids.SpanIDFromBytes(remote.SpanID()))
	assert.Equal(t, "acme", baggage.FromContext(extracted).Member("tenant").Value())

	_, server := p.Tracer("server").Start(extracted, "handle")
	defer server.End()

	serverRec := server.(*Span).Record()
	assert.Equal(t, rec.TraceID(), serverRec.TraceID())
	assert.Equal(t, rec.SpanID(), serverRec.ParentID())
	assert.Equal(t, "synthetics", serverRec.Trace().Origin())
	assert.Equal(t, "acme", serverRec.BaggageItem("tenant"))
}

// TestPropagator_InjectForeignSpan tests injecting a span context that is not
// a mirror.
func TestPropagator_InjectForeignSpan(t *testing.T) {
	t.Parallel()

	p, _, _ := newTestProvider(t)

	sc := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    trace.TraceID{15: 0x2a},
		SpanID:     trace.SpanID{7: 0x07},
		TraceFlags: trace.FlagsSampled,
	})
	ctx := trace.ContextWithSpanContext(t.Context(), sc)

	carrier := propagation.MapCarrier{}
	p.Propagator().Inject(ctx, carrier)

	assert.Equal(t, "42", carrier.Get(propagator.HeaderTraceID))
	assert.Equal(t, "7", carrier.Get(propagator.HeaderParentID))
	assert.Equal(t, "1", carrier.Get(propagator.HeaderSamplingPriority))
	assert.Equal(t, "00-0000000000000000000000000000002a-0000000000000007-01", carrier.Get(propagator.HeaderTraceParent))
}

func TestPropagator_NothingToDo(t *testing.T) {
	t.Parallel()

	p, _, _ := newTestProvider(t)
	prop := p.Propagator()

	carrier := propagation.MapCarrier{}
	prop.Inject(t.Context(), carrier)
	assert.Empty(t, carrier)

	ctx := t.Context()
	assert.Equal(t, ctx, prop.Extract(ctx, propagation.MapCarrier{}))
}

// TestPropagator_DistributedTracingDisabled tests that the tracer switch
// applies to the adapter.
func TestPropagator_DistributedTracingDisabled(t *testing.T) {
	t.Parallel()

	tr, _ := tracer.TestingTracerWithTransport(t, tracer.WithDistributedTracing(false))
	p := MustNew(tr)

	ctx, s := p.Tracer("test").Start(requestContext(t), "op")
	defer s.End()

	carrier := propagation.MapCarrier{}
	p.Propagator().Inject(ctx, carrier)
	assert.Empty(t, carrier)
}

func TestPropagator_Fields(t *testing.T) {
	t.Parallel()

	tr, _ := tracer.TestingTracerWithTransport(t, tracer.WithPropagationStyles(propagator.StyleTraceContext))
	p := MustNew(tr)

	assert.Equal(t, []string{propagator.HeaderTraceParent, propagator.HeaderTraceState}, p.Propagator().Fields())
}

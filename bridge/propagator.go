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

	"go.opentelemetry.io/otel/baggage"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"rivaas.dev/tracer"
	"rivaas.dev/tracer/propagator"
)

// Propagator is an OpenTelemetry TextMapPropagator backed by the tracer's
// header codec. It reads and writes every configured style.
type Propagator struct {
	tracer *tracer.Tracer
}

var _ propagation.TextMapPropagator = Propagator{}

// Propagator returns a TextMapPropagator for the native tracer of p.
func (p *TracerProvider) Propagator() Propagator {
	return Propagator{tracer: p.tracer}
}

// Inject writes the span in ctx into carrier. Mirrors carry the full native
// context; other spans are converted from their W3C identity.
func (p Propagator) Inject(ctx context.Context, carrier propagation.TextMapCarrier) {
	var sc propagator.SpanContext
	if m, ok := trace.SpanFromContext(ctx).(*Span); ok {
		sc = propagator.SpanContextOf(m.rec)
	} else {
		otelSC := trace.SpanContextFromContext(ctx)
		if !otelSC.IsValid() {
			return
		}
		var ok bool
		sc, ok = propagator.FromTraceParent(traceParent(otelSC, otelSC.IsSampled()), otelSC.TraceState().String())
		if !ok {
			return
		}
		sc.LastParentID = ""
	}

	for _, m := range baggage.FromContext(ctx).Members() {
		if sc.Baggage == nil {
			sc.Baggage = make(map[string]string)
		}
		if _, ok := sc.Baggage[m.Key()]; !ok {
			sc.Baggage[m.Key()] = m.Value()
		}
	}

	// Errors only come from malformed distributed tracing flags, which the
	// tracer reports when it starts.
	_ = p.tracer.InjectSpanContext(sc, tracer.FormatTextMap, carrier)
}

// Extract returns ctx carrying the remote span context and baggage found in
// carrier. ctx is returned unchanged when nothing valid is found.
func (p Propagator) Extract(ctx context.Context, carrier propagation.TextMapCarrier) context.Context {
	sc, err := p.tracer.Extract(tracer.FormatTextMap, carrier)
	if err != nil || sc == nil {
		return ctx
	}

	ts, err := trace.ParseTraceState(propagator.TraceStateOf(*sc))
	if err != nil {
		ts = trace.TraceState{}
	}
	remote := newSpanContext(sc.TraceID, sc.SpanID, sc.Sampled(), ts, true)
	if !remote.IsValid() {
		return ctx
	}
	ctx = trace.ContextWithRemoteSpanContext(ctx, remote)

	if len(sc.Baggage) == 0 {
		return ctx
	}
	bag := baggage.FromContext(ctx)
	for k, v := range sc.Baggage {
		m, err := baggage.NewMemberRaw(k, v)
		if err != nil {
			continue
		}
		if b, err := bag.SetMember(m); err == nil {
			bag = b
		}
	}

	return baggage.ContextWithBaggage(ctx, bag)
}

// Fields returns the header keys the codec may set.
func (p Propagator) Fields() []string {
	return p.tracer.Propagator().Fields()
}

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
	"fmt"

	"go.opentelemetry.io/otel/baggage"
	"go.opentelemetry.io/otel/sdk/instrumentation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/embedded"

	"rivaas.dev/tracer"
	"rivaas.dev/tracer/ids"
	"rivaas.dev/tracer/propagator"
	"rivaas.dev/tracer/span"
)

// Tracer starts OpenTelemetry spans backed by native records.
type Tracer struct {
	embedded.Tracer

	provider *TracerProvider
	instr    instrumentation.Scope
}

var _ trace.Tracer = (*Tracer)(nil)

// Start creates a native record and returns its mirror. The parent is the
// span in ctx when it is valid, otherwise the active native span. The new
// record is pushed on the native scope stack without finish-on-close, so
// ending the span pops it.
//
// Example:
//
//	ctx, s := provider.Tracer("checkout").Start(ctx, "charge", trace.WithSpanKind(trace.SpanKindClient))
//	defer s.End()
func (t *Tracer) Start(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	p := t.provider
	cfg := trace.NewSpanStartConfig(opts...)
	kind := trace.ValidateSpanKind(cfg.SpanKind())

	parentCtx := ctx
	switch {
	case cfg.NewRoot():
		parentCtx = trace.ContextWithSpanContext(ctx, trace.SpanContext{})
	case !trace.SpanContextFromContext(ctx).IsValid():
		parentCtx = p.resolver.Current(ctx)
	}
	parent := trace.SpanContextFromContext(parentCtx)

	traceID := p.tracer.NewTraceID()
	if parent.IsValid() {
		traceID = ids.TraceIDFromBytes(parent.TraceID())
	}

	res := p.sampler.ShouldSample(sdktrace.SamplingParameters{
		ParentContext: parentCtx,
		TraceID:       traceID.Bytes(),
		Name:          name,
		Kind:          kind,
		Attributes:    cfg.Attributes(),
		Links:         cfg.Links(),
	})
	if res.Decision == sdktrace.Drop {
		ctx = trace.ContextWithSpanContext(ctx, newSpanContext(traceID, ids.NewSpanID(), false, res.Tracestate, false))
		return ctx, trace.SpanFromContext(ctx)
	}
	sampled := res.Decision == sdktrace.RecordAndSample

	sopts := []tracer.StartOption{
		tracer.IgnoreActiveSpan(),
		tracer.ResourceName(name),
		tracer.WithTag(span.SpanKind, kindString(kind)),
	}
	if ts := cfg.Timestamp(); !ts.IsZero() {
		sopts = append(sopts, tracer.StartTime(ts))
	}
	sopts, rootTraceState := t.parentOptions(sopts, parentCtx, parent, traceID, sampled, res.Tracestate)

	rec, err := p.tracer.StartSpan(ctx, "", sopts...)
	if err != nil {
		ctx = trace.ContextWithSpanContext(ctx, trace.SpanContext{})
		return ctx, trace.SpanFromContext(ctx)
	}
	if rootTraceState != "" {
		rec.Trace().SetTraceState(rootTraceState)
	}

	s := newSpan(p, rec, kind, parent, t.instr, sampled)
	for _, kv := range res.Attributes {
		s.setAttribute(kv)
	}
	for _, kv := range cfg.Attributes() {
		s.setAttribute(kv)
	}
	for _, l := range cfg.Links() {
		s.AddLink(l)
	}
	for _, m := range baggage.FromContext(parentCtx).Members() {
		rec.SetBaggageItem(m.Key(), m.Value())
	}
	s.updateConvention()

	s.native = p.tracer.ScopeManager(ctx).Activate(rec, false)
	if _, loaded := p.mirrors.loadOrStore(s); !loaded {
		p.mirrorCreated(ctx)
	}

	return trace.ContextWithSpan(ctx, s), s
}

// parentOptions links the new record to its parent. A mirror of this
// provider is a local parent; any other valid context is consumed as a W3C
// traceparent with the sampler's tracestate. Without a parent the record
// starts a trace and the sampler's tracestate, minus the dd member, is
// returned for the trace.
func (t *Tracer) parentOptions(
	sopts []tracer.StartOption,
	parentCtx context.Context,
	parent trace.SpanContext,
	traceID ids.TraceID,
	sampled bool,
	ts trace.TraceState,
) ([]tracer.StartOption, string) {
	priority := span.PriorityAutoReject
	if sampled {
		priority = span.PriorityAutoKeep
	}

	if parent.IsValid() {
		if m, ok := trace.SpanFromContext(parentCtx).(*Span); ok && m.provider == t.provider {
			return append(sopts, tracer.ChildOf(m.rec)), ""
		}

		if rc, ok := propagator.FromTraceParent(traceParent(parent, sampled), ts.String()); ok {
			sopts = append(sopts, tracer.ChildOfRemote(&rc))
			if rc.Sampled() != sampled {
				sopts = append(sopts, tracer.WithSamplingPriority(priority))
			}
			return sopts, ""
		}
	}

	sopts = append(sopts, tracer.WithTraceID(traceID), tracer.WithSamplingPriority(priority))

	return sopts, ts.Delete(propagator.VendorKey).String()
}

func traceParent(sc trace.SpanContext, sampled bool) string {
	flags := "00"
	if sampled {
		flags = "01"
	}

	return fmt.Sprintf("00-%s-%s-%s", sc.TraceID(), sc.SpanID(), flags)
}

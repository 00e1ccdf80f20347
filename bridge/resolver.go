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

	"go.opentelemetry.io/otel/trace"

	"rivaas.dev/tracer/span"
)

// ActiveSpanProvider exposes the active native span of a context.
// *tracer.Tracer implements it.
type ActiveSpanProvider interface {
	ActiveSpan(ctx context.Context) *span.Record
}

// Resolver builds the OpenTelemetry context matching the native scope
// stack. Mirrors are created lazily, parents first.
type Resolver struct {
	active   ActiveSpanProvider
	provider *TracerProvider
}

// Current returns ctx carrying the mirror of the active native span.
// Mirrors of records that finished natively are ended on the way.
//
// Example:
//
//	ctx = provider.Resolver().Current(ctx)
//	trace.SpanFromContext(ctx).SetAttributes(attribute.String("user.id", id))
func (r *Resolver) Current(ctx context.Context) context.Context {
	if m, ok := trace.SpanFromContext(ctx).(*Span); ok && m.provider == r.provider {
		r.endFinishedAncestors(m.rec)
	}

	active := r.active.ActiveSpan(ctx)
	if active != nil {
		r.endFinishedAncestors(active)
	}

	return r.activateParent(ctx, active)
}

// Activate marks s as activated so that Current returns it while its record
// is the active native span, and returns ctx carrying s.
func (r *Resolver) Activate(ctx context.Context, s trace.Span) context.Context {
	if m, ok := s.(*Span); ok {
		m.activated.Store(true)
	}

	return trace.ContextWithSpan(ctx, s)
}

// endFinishedAncestors walks from rec toward the root and ends the mirror of
// each finished record. It stops at the first open record.
func (r *Resolver) endFinishedAncestors(rec *span.Record) {
	for ; rec != nil && rec.Finished(); rec = rec.Parent() {
		if m, ok := r.provider.mirrors.load(rec); ok {
			m.endMirror()
		}
	}
}

// activateParent returns ctx carrying the mirror of rec, mirroring its
// ancestors first. A mirror that exists but was never activated leaves ctx
// unchanged. A finished record without a mirror, such as one already
// flushed, is not mirrored again and stands in as a remote parent.
func (r *Resolver) activateParent(ctx context.Context, rec *span.Record) context.Context {
	if rec == nil {
		return ctx
	}

	if m, ok := r.provider.mirrors.load(rec); ok {
		if m.activated.Load() {
			return trace.ContextWithSpan(ctx, m)
		}
		return ctx
	}
	if rec.Finished() {
		sc := recordSpanContext(rec, traceSampled(rec), true)
		if !sc.IsValid() {
			return ctx
		}
		return trace.ContextWithRemoteSpanContext(ctx, sc)
	}

	parentCtx := r.activateParent(ctx, rec.Parent())

	m := r.provider.mirrorOf(rec, trace.SpanContextFromContext(parentCtx))
	m.activated.Store(true)

	actual, loaded := r.provider.mirrors.loadOrStore(m)
	if !loaded {
		r.provider.mirrorCreated(ctx)
	} else if !actual.activated.Load() {
		return ctx
	}

	return trace.ContextWithSpan(parentCtx, actual)
}

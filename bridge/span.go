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
	"fmt"
	"runtime/debug"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/sdk/instrumentation"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/embedded"

	"rivaas.dev/tracer/ids"
	"rivaas.dev/tracer/propagator"
	"rivaas.dev/tracer/scope"
	"rivaas.dev/tracer/span"
)

// Span is the OpenTelemetry view of a native record. All data lives on the
// record; Span adds the OpenTelemetry-only state around it.
type Span struct {
	embedded.Span

	rec      *span.Record
	provider *TracerProvider
	kind     trace.SpanKind
	parent   trace.SpanContext
	instr    instrumentation.Scope
	sampled  bool

	// native is the scope pushed by Tracer.Start. Mirrors built by the
	// resolver have none.
	native *scope.Scope

	activated atomic.Bool

	mu         sync.Mutex
	status     codes.Code
	convention string
	ended      bool
	frozen     trace.SpanContext
}

var _ trace.Span = (*Span)(nil)

func newSpan(p *TracerProvider, rec *span.Record, kind trace.SpanKind, parent trace.SpanContext, instr instrumentation.Scope, sampled bool) *Span {
	return &Span{
		rec:      rec,
		provider: p,
		kind:     kind,
		parent:   parent,
		instr:    instr,
		sampled:  sampled,
	}
}

// Record returns the native record behind s.
func (s *Span) Record() *span.Record {
	return s.rec
}

// Kind returns the OpenTelemetry span kind.
func (s *Span) Kind() trace.SpanKind {
	return s.kind
}

// Parent returns the span context s was started under.
func (s *Span) Parent() trace.SpanContext {
	return s.parent
}

// InstrumentationScope returns the scope of the tracer that created s.
func (s *Span) InstrumentationScope() instrumentation.Scope {
	return s.instr
}

// Status returns the status code last accepted by SetStatus.
func (s *Span) Status() codes.Code {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.status
}

// End finishes the native record and deactivates its scope. A record
// already finished natively keeps its end time, but the scope is still
// deactivated.
func (s *Span) End(opts ...trace.SpanEndOption) {
	s.endMirror()

	if !s.rec.Finished() {
		cfg := trace.NewSpanEndConfig(opts...)

		var fo []span.FinishOption
		if ts := cfg.Timestamp(); !ts.IsZero() {
			fo = append(fo, span.FinishTime(ts))
		}
		s.rec.Finish(fo...)
	}

	if s.native != nil {
		s.native.Close()
	}
}

// endMirror fills in a missing operation name and freezes the span
// context. It runs once.
func (s *Span) endMirror() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ended {
		return
	}
	if s.rec.Name() == "" {
		s.rec.SetName(DefaultOperationName(s.rec))
	}
	s.frozen = s.liveSpanContext()
	s.ended = true
}

// hasEnded reports whether endMirror ran.
func (s *Span) hasEnded() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.ended
}

// AddEvent adds a native event.
func (s *Span) AddEvent(name string, opts ...trace.EventOption) {
	if s.rec.Finished() {
		return
	}

	cfg := trace.NewEventConfig(opts...)
	s.rec.AddEvent(span.Event{
		Name:       name,
		Time:       cfg.Timestamp().UnixNano(),
		Attributes: eventAttributes(cfg.Attributes()),
	})
}

// AddLink links the record to another span. Invalid contexts are ignored.
func (s *Span) AddLink(link trace.Link) {
	if s.rec.Finished() || !link.SpanContext.IsValid() {
		return
	}

	s.rec.AddLink(nativeLink(link))
}

// IsRecording reports whether the record is still open.
func (s *Span) IsRecording() bool {
	return !s.rec.Finished()
}

// RecordError sets error.stack and adds an exception event.
func (s *Span) RecordError(err error, opts ...trace.EventOption) {
	if err == nil || s.rec.Finished() {
		return
	}

	cfg := trace.NewEventConfig(opts...)
	stack := string(debug.Stack())
	s.rec.SetMeta(span.ErrorStack, stack)

	attrs := map[string]any{
		string(semconv.ExceptionMessageKey):    err.Error(),
		string(semconv.ExceptionTypeKey):       fmt.Sprintf("%T", err),
		string(semconv.ExceptionStacktraceKey): stack,
	}
	for _, kv := range cfg.Attributes() {
		attrs[string(kv.Key)] = kv.Value.AsInterface()
	}

	s.rec.AddEvent(span.Event{
		Name:       semconv.ExceptionEventName,
		Time:       cfg.Timestamp().UnixNano(),
		Attributes: attrs,
	})
}

// SpanContext returns the identity of s. The tracestate follows the record
// until s ends and is frozen afterwards.
func (s *Span) SpanContext() trace.SpanContext {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ended {
		return s.frozen
	}

	return s.liveSpanContext()
}

func (s *Span) liveSpanContext() trace.SpanContext {
	return recordSpanContext(s.rec, s.sampled, false)
}

// recordSpanContext returns the identity of rec with its tracestate.
func recordSpanContext(rec *span.Record, sampled, remote bool) trace.SpanContext {
	sc := propagator.SpanContextOf(rec)
	ts, err := trace.ParseTraceState(propagator.TraceStateOf(sc))
	if err != nil {
		ts = trace.TraceState{}
	}

	return newSpanContext(sc.TraceID, sc.SpanID, sampled, ts, remote)
}

// SetStatus applies OpenTelemetry status rules: Unset is ignored, Ok is
// final, and moving from Error to Ok clears the error tags.
func (s *Span) SetStatus(code codes.Code, description string) {
	if s.rec.Finished() || code == codes.Unset {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status == codes.Ok {
		return
	}

	switch {
	case s.status == codes.Unset && code == codes.Error:
		s.rec.SetMeta(span.ErrorMsg, description)
		s.rec.SetHasError(true)
	case s.status == codes.Error && code == codes.Ok:
		s.rec.DeleteTag(span.ErrorMsg)
		s.rec.DeleteTag(span.ErrorType)
		s.rec.DeleteTag(span.ErrorStack)
		s.rec.SetHasError(false)
	}
	s.status = code
}

// SetName sets the resource of the record. The operation name is managed
// by the naming convention and the operation.name attribute.
func (s *Span) SetName(name string) {
	s.rec.SetResource(name)
}

// SetAttributes maps attributes onto the record, then re-derives the
// operation name if it still follows the naming convention.
func (s *Span) SetAttributes(kv ...attribute.KeyValue) {
	if s.rec.Finished() {
		return
	}

	for _, a := range kv {
		s.setAttribute(a)
	}
	s.updateConvention()
}

func (s *Span) setAttribute(kv attribute.KeyValue) {
	key := string(kv.Key)
	v := kv.Value

	if v.Type() == attribute.INVALID {
		s.rec.DeleteTag(key)
		return
	}
	if tag, ok := strings.CutPrefix(key, span.PropagatingTagPrefix); ok {
		s.rec.Trace().SetPropagatingTag(tag, v.Emit())
		return
	}

	switch v.Type() {
	case attribute.BOOL:
		s.rec.SetMeta(key, strconv.FormatBool(v.AsBool()))
	case attribute.INT64:
		s.rec.SetMetric(key, float64(v.AsInt64()))
	case attribute.FLOAT64:
		s.rec.SetMetric(key, v.AsFloat64())
	case attribute.STRING:
		// SetTag routes service.name, operation.name, resource.name and
		// span.type to the record's own fields.
		s.rec.SetTag(key, v.AsString())
	case attribute.BOOLSLICE:
		for i, b := range v.AsBoolSlice() {
			s.rec.SetMeta(indexed(key, i), strconv.FormatBool(b))
		}
	case attribute.INT64SLICE:
		for i, n := range v.AsInt64Slice() {
			s.rec.SetMetric(indexed(key, i), float64(n))
		}
	case attribute.FLOAT64SLICE:
		for i, f := range v.AsFloat64Slice() {
			s.rec.SetMetric(indexed(key, i), f)
		}
	case attribute.STRINGSLICE:
		for i, str := range v.AsStringSlice() {
			s.rec.SetMeta(indexed(key, i), str)
		}
	default:
		s.rec.SetMeta(key, v.Emit())
	}
}

func indexed(key string, i int) string {
	return key + "." + strconv.Itoa(i)
}

// updateConvention re-derives the operation name while the record still
// carries the last derived value.
func (s *Span) updateConvention() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.rec.Name() != s.convention {
		return
	}

	name := DefaultOperationName(s.rec)
	s.rec.SetName(name)
	s.convention = name
}

// TracerProvider returns the provider that created s.
func (s *Span) TracerProvider() trace.TracerProvider {
	return s.provider
}

// newSpanContext converts native ids to an OpenTelemetry span context. Ids
// that render as the all-zero sentinel give an invalid context.
func newSpanContext(traceID ids.TraceID, spanID uint64, sampled bool, ts trace.TraceState, remote bool) trace.SpanContext {
	if !ids.IsValidTraceID(traceID.Hex()) || !ids.IsValidSpanID(ids.SpanIDHex(spanID)) {
		return trace.SpanContext{}
	}

	var flags trace.TraceFlags

	return trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID.Bytes(),
		SpanID:     ids.SpanIDBytes(spanID),
		TraceFlags: flags.WithSampled(sampled),
		TraceState: ts,
		Remote:     remote,
	})
}

func nativeLink(link trace.Link) span.Link {
	sc := link.SpanContext
	l := span.Link{
		TraceID:    ids.TraceIDFromBytes(sc.TraceID()),
		SpanID:     ids.SpanIDFromBytes(sc.SpanID()),
		TraceState: sc.TraceState().String(),
		Flags:      uint32(sc.TraceFlags()),
	}
	if len(link.Attributes) > 0 {
		l.Attributes = make(map[string]string, len(link.Attributes))
		for _, kv := range link.Attributes {
			l.Attributes[string(kv.Key)] = kv.Value.Emit()
		}
	}

	return l
}

func eventAttributes(kv []attribute.KeyValue) map[string]any {
	if len(kv) == 0 {
		return nil
	}

	attrs := make(map[string]any, len(kv))
	for _, a := range kv {
		attrs[string(a.Key)] = a.Value.AsInterface()
	}

	return attrs
}

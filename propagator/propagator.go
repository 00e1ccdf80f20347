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

// Package propagator reads and writes distributed tracing headers.
//
// Two styles are supported and enabled by default:
//
//   - StyleDatadog: x-datadog-trace-id, x-datadog-parent-id (decimal),
//     x-datadog-sampling-priority, x-datadog-origin and x-datadog-tags.
//   - StyleTraceContext: W3C traceparent and tracestate, with a "dd" member
//     carrying sampling priority, origin, last parent and propagating tags.
//
// Baggage items travel as ot-baggage-<key> headers regardless of style.
//
// Extraction never fails loudly: missing or malformed headers simply yield no
// parent.
package propagator

import (
	"fmt"
	"maps"
	"slices"
	"strconv"
	"strings"

	"go.opentelemetry.io/otel/propagation"

	"rivaas.dev/tracer/ids"
	"rivaas.dev/tracer/span"
)

// Header names.
const (
	HeaderTraceID          = "x-datadog-trace-id"
	HeaderParentID         = "x-datadog-parent-id"
	HeaderSamplingPriority = "x-datadog-sampling-priority"
	HeaderOrigin           = "x-datadog-origin"
	HeaderTags             = "x-datadog-tags"
	HeaderTraceParent      = "traceparent"
	HeaderTraceState       = "tracestate"
	BaggagePrefix          = "ot-baggage-"
)

// maxTagsHeaderLen bounds x-datadog-tags; larger values are not injected.
const maxTagsHeaderLen = 512

// Style names a header format.
type Style string

const (
	// StyleDatadog is the legacy Datadog header set.
	StyleDatadog Style = "datadog"

	// StyleTraceContext is W3C trace context.
	StyleTraceContext Style = "tracecontext"
)

// DefaultStyles is the style list used when none is configured.
var DefaultStyles = []Style{StyleDatadog, StyleTraceContext}

// ParseStyles parses a comma-separated style list such as
// "datadog,tracecontext". Unknown names are reported in the error; the
// known ones are still returned.
func ParseStyles(s string) ([]Style, error) {
	var (
		styles  []Style
		unknown []string
	)
	for name := range strings.SplitSeq(s, ",") {
		name = strings.ToLower(strings.TrimSpace(name))
		switch name {
		case "":
			continue
		case string(StyleDatadog):
			styles = append(styles, StyleDatadog)
		case string(StyleTraceContext), "w3c":
			styles = append(styles, StyleTraceContext)
		default:
			unknown = append(unknown, name)
		}
	}
	if len(unknown) > 0 {
		return styles, fmt.Errorf("propagator: unknown styles %q", unknown)
	}

	return styles, nil
}

// SpanContext is the propagated identity of a span.
type SpanContext struct {
	TraceID ids.TraceID
	SpanID  uint64

	SamplingPriority int
	HasPriority      bool

	Origin string

	// PropagatingTags are the _dd.p.* tags, keyed without the prefix. The
	// high trace id bits are carried by TraceID, not here.
	PropagatingTags map[string]string

	// TraceState holds tracestate members of other vendors.
	TraceState string

	// LastParentID is the "p" value of an extracted dd tracestate member.
	LastParentID string

	Baggage map[string]string
}

// IsValid reports whether both ids are set.
func (sc SpanContext) IsValid() bool {
	return !sc.TraceID.IsZero() && sc.SpanID != 0
}

// Sampled reports whether the sampling priority keeps the trace.
func (sc SpanContext) Sampled() bool {
	return sc.HasPriority && sc.SamplingPriority > 0
}

// SpanContextOf returns the propagated identity of rec.
func SpanContextOf(rec *span.Record) SpanContext {
	t := rec.Trace()
	sc := SpanContext{
		TraceID:         rec.TraceID(),
		SpanID:          rec.SpanID(),
		Origin:          t.Origin(),
		PropagatingTags: t.PropagatingTags(),
		TraceState:      t.TraceState(),
		Baggage:         rec.Baggage(),
	}
	sc.SamplingPriority, sc.HasPriority = t.SamplingPriority()
	delete(sc.PropagatingTags, span.TraceIDHigh)

	return sc
}

// Propagator injects and extracts span contexts in the configured styles.
type Propagator struct {
	styles []Style
}

// New returns a Propagator for styles, or DefaultStyles when none are given.
func New(styles ...Style) *Propagator {
	if len(styles) == 0 {
		styles = DefaultStyles
	}

	return &Propagator{styles: slices.Clone(styles)}
}

// Styles returns the configured styles in precedence order.
func (p *Propagator) Styles() []Style {
	return slices.Clone(p.styles)
}

// Fields returns the header names the Propagator may write.
func (p *Propagator) Fields() []string {
	var fields []string
	for _, style := range p.styles {
		switch style {
		case StyleDatadog:
			fields = append(fields, HeaderTraceID, HeaderParentID, HeaderSamplingPriority, HeaderOrigin, HeaderTags)
		case StyleTraceContext:
			fields = append(fields, HeaderTraceParent, HeaderTraceState)
		}
	}

	return fields
}

// Inject writes sc into carrier in every configured style. Invalid
// contexts are written with sentinel ids.
func (p *Propagator) Inject(sc SpanContext, carrier propagation.TextMapCarrier) {
	for _, style := range p.styles {
		switch style {
		case StyleDatadog:
			injectDatadog(sc, carrier)
		case StyleTraceContext:
			injectTraceContext(sc, carrier)
		}
	}
	for k, v := range sc.Baggage {
		carrier.Set(BaggagePrefix+k, v)
	}
}

// Extract reads a span context from carrier. The first style that yields a
// valid context wins; a W3C context for the same trace contributes its
// tracestate. ok is false when no style matched.
func (p *Propagator) Extract(carrier propagation.TextMapCarrier) (SpanContext, bool) {
	var (
		result SpanContext
		found  bool
	)
	for _, style := range p.styles {
		var (
			sc SpanContext
			ok bool
		)
		switch style {
		case StyleDatadog:
			sc, ok = extractDatadog(carrier)
		case StyleTraceContext:
			sc, ok = extractTraceContext(carrier)
		}
		if !ok {
			continue
		}
		if !found {
			result, found = sc, true
			continue
		}
		if style == StyleTraceContext && sameTrace(result.TraceID, sc.TraceID) {
			if result.TraceID.High == 0 {
				result.TraceID.High = sc.TraceID.High
			}
			result.TraceState = sc.TraceState
			result.LastParentID = sc.LastParentID
		}
	}
	if !found {
		return SpanContext{}, false
	}
	result.Baggage = extractBaggage(carrier)

	return result, true
}

// sameTrace compares the lower 64 bits, and the upper ones too when the
// first context carried them.
func sameTrace(first, other ids.TraceID) bool {
	if first.High != 0 {
		return first == other
	}

	return first.Low == other.Low
}

// FromTraceParent builds a span context from a traceparent and tracestate
// pair.
func FromTraceParent(traceparent, tracestate string) (SpanContext, bool) {
	carrier := propagation.MapCarrier{HeaderTraceParent: traceparent}
	if tracestate != "" {
		carrier[HeaderTraceState] = tracestate
	}

	return extractTraceContext(carrier)
}

func injectDatadog(sc SpanContext, carrier propagation.TextMapCarrier) {
	carrier.Set(HeaderTraceID, ids.ToDecimalString(sc.TraceID.Low))
	carrier.Set(HeaderParentID, ids.ToDecimalString(sc.SpanID))
	if sc.HasPriority {
		carrier.Set(HeaderSamplingPriority, strconv.Itoa(sc.SamplingPriority))
	}
	if sc.Origin != "" {
		carrier.Set(HeaderOrigin, sc.Origin)
	}
	if tags := encodeTagsHeader(sc); tags != "" && len(tags) <= maxTagsHeaderLen {
		carrier.Set(HeaderTags, tags)
	}
}

func encodeTagsHeader(sc SpanContext) string {
	var b strings.Builder
	write := func(k, v string) {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(span.PropagatingTagPrefix)
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(v)
	}
	for _, k := range slices.Sorted(maps.Keys(sc.PropagatingTags)) {
		if k == span.TraceIDHigh {
			continue
		}
		write(k, sc.PropagatingTags[k])
	}
	if sc.TraceID.High != 0 {
		write(span.TraceIDHigh, ids.ToHex(sc.TraceID.High, ids.SpanIDWidth))
	}

	return b.String()
}

func extractDatadog(carrier propagation.TextMapCarrier) (SpanContext, bool) {
	traceID, err := ids.FromDecimalString(get(carrier, HeaderTraceID))
	if err != nil || traceID == 0 {
		return SpanContext{}, false
	}
	parentID, err := ids.FromDecimalString(get(carrier, HeaderParentID))
	if err != nil || parentID == 0 {
		return SpanContext{}, false
	}

	sc := SpanContext{
		TraceID: ids.TraceID{Low: traceID},
		SpanID:  parentID,
		Origin:  get(carrier, HeaderOrigin),
	}
	if v := get(carrier, HeaderSamplingPriority); v != "" {
		if p, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			sc.SamplingPriority, sc.HasPriority = p, true
		}
	}
	sc.PropagatingTags, sc.TraceID.High = decodeTagsHeader(get(carrier, HeaderTags))

	return sc, true
}

// decodeTagsHeader parses "_dd.p.k=v,..." and splits out the high trace id.
// Malformed members are skipped.
func decodeTagsHeader(header string) (map[string]string, uint64) {
	tags := make(map[string]string)
	var high uint64
	if header == "" || len(header) > maxTagsHeaderLen {
		return tags, 0
	}
	for member := range strings.SplitSeq(header, ",") {
		k, v, ok := strings.Cut(strings.TrimSpace(member), "=")
		if !ok || v == "" {
			continue
		}
		key, ok := strings.CutPrefix(k, span.PropagatingTagPrefix)
		if !ok || key == "" {
			continue
		}
		if key == span.TraceIDHigh {
			if len(v) == ids.SpanIDWidth {
				if h, err := ids.FromHex(v); err == nil {
					high = h
				}
			}
			continue
		}
		tags[key] = v
	}

	return tags, high
}

func injectTraceContext(sc SpanContext, carrier propagation.TextMapCarrier) {
	flags := "00"
	if sc.Sampled() {
		flags = "01"
	}
	carrier.Set(HeaderTraceParent, "00-"+sc.TraceID.Hex()+"-"+ids.SpanIDHex(sc.SpanID)+"-"+flags)
	if ts := TraceStateOf(sc); ts != "" {
		carrier.Set(HeaderTraceState, ts)
	}
}

func extractTraceContext(carrier propagation.TextMapCarrier) (SpanContext, bool) {
	traceID, spanID, sampled, ok := parseTraceParent(get(carrier, HeaderTraceParent))
	if !ok {
		return SpanContext{}, false
	}

	sc := SpanContext{
		TraceID:         traceID,
		SpanID:          spanID,
		PropagatingTags: make(map[string]string),
	}
	priority, hasPriority := applyTraceState(&sc, get(carrier, HeaderTraceState))

	switch {
	case hasPriority && (priority > 0) == sampled:
		sc.SamplingPriority = priority
	case sampled:
		sc.SamplingPriority = span.PriorityAutoKeep
	default:
		sc.SamplingPriority = span.PriorityAutoReject
	}
	sc.HasPriority = true

	return sc, true
}

// parseTraceParent validates "{version}-{trace id}-{span id}-{flags}".
// Version 00 must be exactly 55 characters; later versions may append
// fields after another dash. Version ff is invalid.
func parseTraceParent(tp string) (ids.TraceID, uint64, bool, bool) {
	tp = strings.TrimSpace(tp)
	if len(tp) < 55 || tp[2] != '-' || tp[35] != '-' || tp[52] != '-' {
		return ids.TraceID{}, 0, false, false
	}
	version := tp[:2]
	if !isLowerHex(version) || version == "ff" {
		return ids.TraceID{}, 0, false, false
	}
	if version == "00" && len(tp) != 55 {
		return ids.TraceID{}, 0, false, false
	}
	if len(tp) > 55 && tp[55] != '-' {
		return ids.TraceID{}, 0, false, false
	}

	traceID, err := ids.ParseTraceID(tp[3:35])
	if err != nil {
		return ids.TraceID{}, 0, false, false
	}
	spanID, err := ids.ParseSpanID(tp[36:52])
	if err != nil {
		return ids.TraceID{}, 0, false, false
	}
	flags := tp[53:55]
	if !isLowerHex(flags) {
		return ids.TraceID{}, 0, false, false
	}
	f, err := strconv.ParseUint(flags, 16, 8)
	if err != nil {
		return ids.TraceID{}, 0, false, false
	}

	return traceID, spanID, f&0x1 == 1, true
}

func isLowerHex(s string) bool {
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}

	return true
}

func extractBaggage(carrier propagation.TextMapCarrier) map[string]string {
	var baggage map[string]string
	for _, k := range carrier.Keys() {
		lower := strings.ToLower(k)
		key, ok := strings.CutPrefix(lower, BaggagePrefix)
		if !ok || key == "" {
			continue
		}
		if baggage == nil {
			baggage = make(map[string]string)
		}
		baggage[key] = carrier.Get(k)
	}

	return baggage
}

// get reads key from carrier, falling back to a case-insensitive scan for
// carriers such as MapCarrier that match keys exactly.
func get(carrier propagation.TextMapCarrier, key string) string {
	if v := carrier.Get(key); v != "" {
		return v
	}
	for _, k := range carrier.Keys() {
		if strings.EqualFold(k, key) {
			return carrier.Get(k)
		}
	}

	return ""
}

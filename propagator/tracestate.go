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

package propagator

import (
	"maps"
	"slices"
	"strconv"
	"strings"

	"go.opentelemetry.io/otel/trace"

	"rivaas.dev/tracer/ids"
	"rivaas.dev/tracer/span"
)

// VendorKey is the tracestate member owned by this tracer.
const VendorKey = "dd"

// TraceStateOf renders the W3C tracestate for sc: the dd member first,
// followed by the members of other vendors in sc.TraceState.
func TraceStateOf(sc SpanContext) string {
	base, err := trace.ParseTraceState(sc.TraceState)
	if err != nil {
		base = trace.TraceState{}
	}
	base = base.Delete(VendorKey)

	ts, err := base.Insert(VendorKey, vendorValue(sc))
	if err != nil {
		return base.String()
	}

	return ts.String()
}

func vendorValue(sc SpanContext) string {
	parts := make([]string, 0, 3+len(sc.PropagatingTags))
	if sc.HasPriority {
		parts = append(parts, "s:"+strconv.Itoa(sc.SamplingPriority))
	}
	if sc.Origin != "" {
		parts = append(parts, "o:"+sanitizeValue(sc.Origin))
	}
	parts = append(parts, "p:"+ids.SpanIDHex(sc.SpanID))
	for _, k := range slices.Sorted(maps.Keys(sc.PropagatingTags)) {
		if k == span.TraceIDHigh {
			continue
		}
		parts = append(parts, "t."+sanitizeKey(k)+":"+sanitizeValue(sc.PropagatingTags[k]))
	}

	return strings.Join(parts, ";")
}

// applyTraceState copies the dd member of a raw tracestate into sc and keeps
// the other members. It returns the dd sampling priority when present.
func applyTraceState(sc *SpanContext, raw string) (int, bool) {
	ts, err := trace.ParseTraceState(raw)
	if err != nil {
		return 0, false
	}
	sc.TraceState = ts.Delete(VendorKey).String()

	var (
		priority    int
		hasPriority bool
	)
	for member := range strings.SplitSeq(ts.Get(VendorKey), ";") {
		k, v, ok := strings.Cut(member, ":")
		if !ok {
			continue
		}
		switch {
		case k == "s":
			if p, err := strconv.Atoi(v); err == nil {
				priority, hasPriority = p, true
			}
		case k == "o":
			sc.Origin = strings.ReplaceAll(v, "~", "=")
		case k == "p":
			sc.LastParentID = v
		case strings.HasPrefix(k, "t."):
			if key := strings.TrimPrefix(k, "t."); key != "" && key != span.TraceIDHigh {
				sc.PropagatingTags[key] = strings.ReplaceAll(v, "~", "=")
			}
		}
	}

	return priority, hasPriority
}

// sanitizeValue maps a value into the tracestate character set. '=' is
// written as '~' and restored on extraction.
func sanitizeValue(v string) string {
	b := []byte(v)
	for i, c := range b {
		switch {
		case c == '=':
			b[i] = '~'
		case c < 0x20 || c > 0x7e || c == ',' || c == ';':
			b[i] = '_'
		}
	}

	return strings.TrimRight(string(b), " ")
}

func sanitizeKey(k string) string {
	b := []byte(k)
	for i, c := range b {
		if c <= 0x20 || c > 0x7e || c == ',' || c == '=' || c == ';' || c == ':' {
			b[i] = '_'
		}
	}

	return string(b)
}

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
	"encoding/json"
	"fmt"
	"maps"

	"github.com/vmihailenco/msgpack/v5"

	"rivaas.dev/tracer/ids"
	"rivaas.dev/tracer/span"
)

// Meta and metric keys added to local root spans in agent payloads.
const (
	metaOrigin        = "_dd.origin"
	metaSpanLinks     = "_dd.span_links"
	metricSamplingKey = "_sampling_priority_v1"
	metricTopLevel    = "_dd.top_level"
)

// agentSpan is the v0.4 wire form of a span.
type agentSpan struct {
	Name     string             `msgpack:"name"`
	Service  string             `msgpack:"service"`
	Resource string             `msgpack:"resource"`
	Type     string             `msgpack:"type"`
	TraceID  uint64             `msgpack:"trace_id"`
	SpanID   uint64             `msgpack:"span_id"`
	ParentID uint64             `msgpack:"parent_id"`
	Start    int64              `msgpack:"start"`
	Duration int64              `msgpack:"duration"`
	Error    int32              `msgpack:"error"`
	Meta     map[string]string  `msgpack:"meta,omitempty"`
	Metrics  map[string]float64 `msgpack:"metrics,omitempty"`
}

type agentLink struct {
	TraceID     string            `json:"trace_id"`
	TraceIDHigh uint64            `json:"trace_id_high,omitempty"`
	SpanID      string            `json:"span_id"`
	TraceState  string            `json:"tracestate,omitempty"`
	Flags       uint32            `json:"flags,omitempty"`
	Attributes  map[string]string `json:"attributes,omitempty"`
}

// MsgpackEncoder encodes traces as a v0.4 agent payload: an array of
// traces, each an array of span maps.
type MsgpackEncoder struct{}

// ContentType implements Encoder.
func (MsgpackEncoder) ContentType() string {
	return "application/msgpack"
}

// Encode implements Encoder.
func (MsgpackEncoder) Encode(traces []Trace) ([]byte, error) {
	payload := make([][]agentSpan, 0, len(traces))
	for _, t := range traces {
		chunk := make([]agentSpan, 0, len(t.Spans))
		for _, rec := range t.Spans {
			s, err := toAgentSpan(rec)
			if err != nil {
				return nil, err
			}
			chunk = append(chunk, s)
		}
		payload = append(payload, chunk)
	}

	b, err := msgpack.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("transport: encode payload: %w", err)
	}

	return b, nil
}

func toAgentSpan(rec *span.Record) (agentSpan, error) {
	duration, _ := rec.Duration()
	s := agentSpan{
		Name:     rec.Name(),
		Service:  rec.Service(),
		Resource: rec.Resource(),
		Type:     rec.Type(),
		TraceID:  rec.TraceID().Low,
		SpanID:   rec.SpanID(),
		ParentID: rec.ParentID(),
		Start:    rec.Start(),
		Duration: duration,
		Meta:     rec.Meta(),
		Metrics:  rec.Metrics(),
	}
	if s.Resource == "" {
		s.Resource = s.Name
	}
	if rec.HasError() {
		s.Error = 1
	}
	if s.Meta == nil {
		s.Meta = make(map[string]string)
	}
	if s.Metrics == nil {
		s.Metrics = make(map[string]float64)
	}

	if rec.IsLocalRoot() {
		t := rec.Trace()
		if p, ok := t.SamplingPriority(); ok {
			s.Metrics[metricSamplingKey] = float64(p)
		}
		if origin := t.Origin(); origin != "" {
			s.Meta[metaOrigin] = origin
		}
		for k, v := range t.PropagatingTags() {
			s.Meta[span.PropagatingTagPrefix+k] = v
		}
		if high := rec.TraceID().High; high != 0 {
			s.Meta[span.PropagatingTagPrefix+span.TraceIDHigh] = ids.ToHex(high, ids.SpanIDWidth)
		}
		s.Metrics[metricTopLevel] = 1
	}

	if links := rec.Links(); len(links) > 0 {
		encoded := make([]agentLink, 0, len(links))
		for _, l := range links {
			encoded = append(encoded, agentLink{
				TraceID:     ids.ToDecimalString(l.TraceID.Low),
				TraceIDHigh: l.TraceID.High,
				SpanID:      ids.ToDecimalString(l.SpanID),
				TraceState:  l.TraceState,
				Flags:       l.Flags,
				Attributes:  maps.Clone(l.Attributes),
			})
		}
		b, err := json.Marshal(encoded)
		if err != nil {
			return agentSpan{}, fmt.Errorf("transport: encode span links: %w", err)
		}
		s.Meta[metaSpanLinks] = string(b)
	}

	return s, nil
}

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

package tracer

import (
	"context"
	"fmt"
	"slices"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"rivaas.dev/tracer/ids"
	"rivaas.dev/tracer/span"
	"rivaas.dev/tracer/transport"
)

// Record buffers a finished span. It implements span.Recorder and is called
// by Record.Finish; callers rarely need it directly.
func (t *Tracer) Record(rec *span.Record) {
	ctx := context.Background()
	t.instruments.spansFinished.Add(ctx, 1)

	if !t.enabled {
		t.instruments.spansDropped.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", "disabled")))
		return
	}

	id := rec.TraceID()

	t.mu.Lock()
	spans, ok := t.buffer[id]
	if len(spans) >= t.traceMaxSize {
		t.mu.Unlock()
		t.instruments.spansDropped.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", "trace_max_size")))
		t.emitWarning("Trace exceeds max size, dropping span",
			"trace_id", id.Hex(),
			"span_id", ids.SpanIDHex(rec.SpanID()),
			"max_size", t.traceMaxSize,
		)

		return
	}
	if !ok {
		t.order = append(t.order, id)
	}
	t.buffer[id] = append(spans, rec)
	t.mu.Unlock()
}

// BufferedSpans returns the number of spans waiting to be flushed.
func (t *Tracer) BufferedSpans() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	n := 0
	for _, spans := range t.buffer {
		n += len(spans)
	}

	return n
}

// OnFlush registers a hook run after every flush with the flushed traces.
func (t *Tracer) OnFlush(hook FlushHook) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.flushHooks = append(t.flushHooks, hook)
}

// Flush sends all buffered traces to the transport, in the order their
// first span finished. The transport is called even when nothing is
// buffered. Send failures are returned and not retried.
func (t *Tracer) Flush(ctx context.Context) error {
	t.mu.Lock()
	tr := t.transport
	if tr == nil {
		t.mu.Unlock()
		return ErrNotStarted
	}
	traces := make([]transport.Trace, 0, len(t.order))
	for _, id := range t.order {
		traces = append(traces, transport.Trace{ID: id, Spans: t.buffer[id]})
	}
	t.buffer = make(map[ids.TraceID][]*span.Record)
	t.order = nil
	hooks := slices.Clone(t.flushHooks)
	t.mu.Unlock()

	err := tr.Send(ctx, traces)

	for _, hook := range hooks {
		hook(traces)
	}

	if err != nil {
		t.instruments.flushErrors.Add(ctx, 1)
		t.emitError("Failed to flush traces", "traces", len(traces), "error", err)

		return fmt.Errorf("flush %d traces: %w", len(traces), err)
	}

	t.instruments.tracesFlushed.Add(ctx, int64(len(traces)))
	if len(traces) > 0 {
		t.emitDebug("Flushed traces", "traces", len(traces))
	}

	return nil
}

// startFlushLoop starts the background flush goroutine when an interval is
// configured. Shutdown stops it.
func (t *Tracer) startFlushLoop() {
	if t.flushInterval <= 0 {
		return
	}

	t.stopFlush = make(chan struct{})
	t.flushDone = make(chan struct{})

	go func() {
		defer close(t.flushDone)

		ticker := time.NewTicker(t.flushInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				// Failures are reported through the event handler.
				_ = t.Flush(context.Background())
			case <-t.stopFlush:
				return
			}
		}
	}()
}

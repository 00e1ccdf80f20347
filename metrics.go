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
	"fmt"

	"go.opentelemetry.io/otel/metric"

	"rivaas.dev/tracer/transport"
)

// Self-metric names.
const (
	MetricSpansStarted  = "tracer.spans.started"
	MetricSpansFinished = "tracer.spans.finished"
	MetricSpansDropped  = "tracer.spans.dropped"
	MetricTracesFlushed = "tracer.traces.flushed"
	MetricFlushErrors   = "tracer.flush.errors"
)

type instruments struct {
	spansStarted  metric.Int64Counter
	spansFinished metric.Int64Counter
	spansDropped  metric.Int64Counter
	tracesFlushed metric.Int64Counter
	flushErrors   metric.Int64Counter
}

// initInstruments creates the self-metric counters.
func (t *Tracer) initInstruments() error {
	t.meter = t.meterProvider.Meter(transport.InstrumentationName)

	var (
		inst instruments
		err  error
	)

	counters := []struct {
		dst  *metric.Int64Counter
		name string
		desc string
	}{
		{&inst.spansStarted, MetricSpansStarted, "Number of spans started"},
		{&inst.spansFinished, MetricSpansFinished, "Number of spans finished"},
		{&inst.spansDropped, MetricSpansDropped, "Number of finished spans not buffered"},
		{&inst.tracesFlushed, MetricTracesFlushed, "Number of traces handed to the transport"},
		{&inst.flushErrors, MetricFlushErrors, "Number of failed flushes"},
	}
	for _, c := range counters {
		*c.dst, err = t.meter.Int64Counter(c.name, metric.WithDescription(c.desc))
		if err != nil {
			return fmt.Errorf("failed to create %s counter: %w", c.name, err)
		}
	}

	t.instruments = &inst

	return nil
}

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

// Package bridge exposes native spans through the OpenTelemetry trace API.
//
// A [TracerProvider] wraps a *tracer.Tracer. Spans started through it are
// native records pushed on the native scope stack, so code using either API
// sees the other's spans as parents. Each record is viewed through at most
// one [Span], its mirror, created lazily and kept in a side-table until the
// record is flushed.
//
// The [Resolver] answers "what is the current OpenTelemetry span" from the
// native scope stack. It mirrors the active record and its ancestors
// parents first, and ends the mirrors of records that finished natively.
//
// Basic usage:
//
//	t := tracer.MustNew(tracer.WithServiceName("checkout"))
//	provider := bridge.MustNew(t)
//	otel.SetTracerProvider(provider)
//	otel.SetTextMapPropagator(provider.Propagator())
//
//	ctx, s := otel.Tracer("payments").Start(ctx, "charge",
//	    trace.WithSpanKind(trace.SpanKindClient),
//	    trace.WithAttributes(attribute.String("rpc.system", "grpc")),
//	)
//	defer s.End()
//
// Attributes map onto the record: numbers become metrics, _dd.p.* keys
// become propagating trace tags, and service.name, resource.name, span.type
// and operation.name address the record's own fields. Everything else is
// stored as meta. Slices are flattened to key.0, key.1 and so on.
//
// Unless set explicitly through operation.name, the operation name follows
// [DefaultOperationName], derived from semantic attributes and span kind.
package bridge

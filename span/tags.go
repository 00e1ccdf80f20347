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

package span

// Well-known tag keys.
const (
	// Error is the key under which an error value or flag may be passed to SetTag.
	Error = "error"

	// ErrorMsg, ErrorType and ErrorStack are set by SetError.
	ErrorMsg   = "error.message"
	ErrorType  = "error.type"
	ErrorStack = "error.stack"

	// ServiceName, ResourceName, SpanType and OperationName address the
	// record's own fields when passed to SetTag.
	ServiceName   = "service.name"
	ResourceName  = "resource.name"
	SpanType      = "span.type"
	OperationName = "operation.name"

	// SpanKind holds one of the SpanKind* values.
	SpanKind = "span.kind"

	// Environment, Version, RuntimeID and Language are set on local roots.
	Environment = "env"
	Version     = "version"
	RuntimeID   = "runtime-id"
	Language    = "language"

	// ParentID records the last Datadog parent seen in a W3C tracestate.
	ParentID = "_dd.parent_id"

	// PropagatingTagPrefix marks tags that travel with the trace.
	PropagatingTagPrefix = "_dd.p."

	// TraceIDHigh is the propagating tag (without prefix) carrying the high
	// 64 bits of a 128-bit trace id.
	TraceIDHigh = "tid"
)

// Span kind values stored under SpanKind.
const (
	SpanKindServer   = "server"
	SpanKindClient   = "client"
	SpanKindProducer = "producer"
	SpanKindConsumer = "consumer"
	SpanKindInternal = "internal"
)

// Sampling priorities.
const (
	PriorityUserReject = -1
	PriorityAutoReject = 0
	PriorityAutoKeep   = 1
	PriorityUserKeep   = 2
)

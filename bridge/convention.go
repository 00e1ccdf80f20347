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
	"strings"

	"rivaas.dev/tracer/span"
)

// Attribute keys consulted by the operation-name convention.
const (
	attrHTTPRequestMethod   = "http.request.method"
	attrDBSystem            = "db.system"
	attrMessagingSystem     = "messaging.system"
	attrMessagingOperation  = "messaging.operation"
	attrRPCSystem           = "rpc.system"
	attrRPCService          = "rpc.service"
	attrFaaSTrigger         = "faas.trigger"
	attrFaaSInvokedProvider = "faas.invoked_provider"
	attrFaaSInvokedName     = "faas.invoked_name"
	attrGraphQLOperation    = "graphql.operation.type"
	attrNetworkProtocol     = "network.protocol.name"
)

// DefaultOperationName derives an operation name from the semantic
// attributes and span kind of rec. It returns "" when nothing applies.
func DefaultOperationName(rec *span.Record) string {
	meta := rec.Meta()
	kind := meta[span.SpanKind]

	has := func(keys ...string) bool {
		for _, k := range keys {
			if _, ok := meta[k]; !ok {
				return false
			}
		}
		return true
	}
	lower := func(key string) string {
		return strings.ToLower(meta[key])
	}

	switch {
	case has(attrHTTPRequestMethod) && kind == span.SpanKindServer:
		return "http.server.request"
	case has(attrHTTPRequestMethod) && kind == span.SpanKindClient:
		return "http.client.request"
	case has(attrDBSystem) && kind == span.SpanKindClient:
		return lower(attrDBSystem) + ".query"
	case has(attrMessagingSystem, attrMessagingOperation) && isMessagingKind(kind):
		return lower(attrMessagingSystem) + "." + lower(attrMessagingOperation)
	case meta[attrRPCSystem] == "aws-api" && kind == span.SpanKindClient:
		if has(attrRPCService) {
			return "aws." + lower(attrRPCService) + ".request"
		}
		return "aws.client.request"
	case has(attrRPCSystem) && kind == span.SpanKindClient:
		return lower(attrRPCSystem) + ".client.request"
	case has(attrRPCSystem) && kind == span.SpanKindServer:
		return lower(attrRPCSystem) + ".server.request"
	case has(attrFaaSTrigger) && kind == span.SpanKindServer:
		return lower(attrFaaSTrigger) + ".invoke"
	case has(attrFaaSInvokedProvider, attrFaaSInvokedName) && kind == span.SpanKindClient:
		return lower(attrFaaSInvokedProvider) + "." + lower(attrFaaSInvokedName) + ".invoke"
	case has(attrGraphQLOperation):
		return "graphql.server.request"
	case kind == span.SpanKindServer || kind == span.SpanKindClient:
		if has(attrNetworkProtocol) {
			return lower(attrNetworkProtocol) + "." + kind + ".request"
		}
		return kind + ".request"
	default:
		return kind
	}
}

func isMessagingKind(kind string) bool {
	switch kind {
	case span.SpanKindConsumer, span.SpanKindProducer, span.SpanKindServer, span.SpanKindClient:
		return true
	}
	return false
}

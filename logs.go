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
	"log/slog"

	"rivaas.dev/tracer/ids"
)

// Log correlation field names.
const (
	LogFieldTraceID = "dd.trace_id"
	LogFieldSpanID  = "dd.span_id"
	LogFieldService = "dd.service"
	LogFieldEnv     = "dd.env"
	LogFieldVersion = "dd.version"
)

// LogAttrs returns the correlation attributes of the active span of ctx.
// Service, env and version are included when set; trace and span ids only
// when a span is active.
func (t *Tracer) LogAttrs(ctx context.Context) []slog.Attr {
	attrs := make([]slog.Attr, 0, 5)

	rec := t.ActiveSpan(ctx)
	if rec != nil {
		attrs = append(attrs,
			slog.String(LogFieldTraceID, logTraceID(rec.TraceID())),
			slog.String(LogFieldSpanID, ids.ToDecimalString(rec.SpanID())),
		)
	}

	service := t.ServiceName()
	if rec != nil {
		service = rec.Service()
	}
	if service != "" {
		attrs = append(attrs, slog.String(LogFieldService, service))
	}
	if t.env != "" {
		attrs = append(attrs, slog.String(LogFieldEnv, t.env))
	}
	if t.serviceVersion != "" {
		attrs = append(attrs, slog.String(LogFieldVersion, t.serviceVersion))
	}

	return attrs
}

// ContextLogger returns logger with the correlation attributes of ctx.
// A nil logger means slog.Default().
//
// Example:
//
//	logger := t.ContextLogger(ctx, slog.Default())
//	logger.InfoContext(ctx, "charge accepted", "amount", amount)
func (t *Tracer) ContextLogger(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if logger == nil {
		logger = slog.Default()
	}

	attrs := t.LogAttrs(ctx)
	args := make([]any, len(attrs))
	for i, a := range attrs {
		args[i] = a
	}

	return logger.With(args...)
}

// logTraceID renders 64-bit ids in decimal and 128-bit ids in hex.
func logTraceID(id ids.TraceID) string {
	if id.High == 0 {
		return ids.ToDecimalString(id.Low)
	}

	return id.Hex()
}

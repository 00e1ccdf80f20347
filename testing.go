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
	"net/http"
	"testing"
	"time"

	"rivaas.dev/tracer/transport"
)

// TestingTracer creates a test [Tracer] with sensible defaults for unit tests.
// The tracer uses [NoopProvider] unless opts choose another provider.
// It is shut down by t.Cleanup.
//
// Example:
//
//	func TestSomething(t *testing.T) {
//	    t.Parallel()
//	    tr := tracer.TestingTracer(t)
//	    // Use tr...
//	}
func TestingTracer(t testing.TB, opts ...Option) *Tracer {
	t.Helper()

	defaultOpts := []Option{
		WithServiceName("test-service"),
		WithServiceVersion("v1.0.0"),
	}

	tr, err := New(append(defaultOpts, opts...)...)
	if err != nil {
		t.Fatalf("TestingTracer: failed to create tracer: %v", err)
	}

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tr.Shutdown(ctx); err != nil {
			t.Logf("TestingTracer: shutdown warning: %v", err)
		}
	})

	return tr
}

// TestingTracerWithTransport creates a test [Tracer] that flushes into an
// in-memory transport, returned alongside it for assertions.
//
// Example:
//
//	func TestSomething(t *testing.T) {
//	    t.Parallel()
//	    tr, sent := tracer.TestingTracerWithTransport(t)
//	    // Finish spans, call tr.Flush, inspect sent.Spans()...
//	}
func TestingTracerWithTransport(t testing.TB, opts ...Option) (*Tracer, *transport.InMemory) {
	t.Helper()

	mem := transport.NewInMemory()
	tr := TestingTracer(t, append([]Option{WithTransport(mem)}, opts...)...)

	return tr, mem
}

// TestingMiddleware creates test middleware backed by [TestingTracer].
//
// Example:
//
//	func TestSomething(t *testing.T) {
//	    t.Parallel()
//	    mw := tracer.TestingMiddleware(t)
//	    handler := mw(myHandler)
//	    // Use handler...
//	}
func TestingMiddleware(t testing.TB, middlewareOpts ...MiddlewareOption) func(http.Handler) http.Handler {
	t.Helper()

	return TestingMiddlewareWithTracer(t, TestingTracer(t), middlewareOpts...)
}

// TestingMiddlewareWithTracer creates test middleware with a custom tracer.
// This is useful when you need to configure both the tracer and middleware options.
//
// Example:
//
//	func TestSomething(t *testing.T) {
//	    t.Parallel()
//	    tr, sent := tracer.TestingTracerWithTransport(t)
//	    mw := tracer.TestingMiddlewareWithTracer(t, tr,
//	        tracer.WithExcludePaths("/health"),
//	    )
//	    handler := mw(myHandler)
//	    // Use handler...
//	}
func TestingMiddlewareWithTracer(t testing.TB, tr *Tracer, middlewareOpts ...MiddlewareOption) func(http.Handler) http.Handler {
	t.Helper()

	mw, err := Middleware(tr, middlewareOpts...)
	if err != nil {
		t.Fatalf("TestingMiddlewareWithTracer: failed to create middleware: %v", err)
	}

	return mw
}

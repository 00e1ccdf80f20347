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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"rivaas.dev/tracer/ids"
	"rivaas.dev/tracer/propagator"
	"rivaas.dev/tracer/scope"
	"rivaas.dev/tracer/span"
)

func requestContext(t *testing.T) context.Context {
	t.Helper()

	return scope.WithManager(t.Context(), scope.NewManager())
}

// TestStartSpan_FinishAndFlush tests a root span travelling to the transport.
func TestStartSpan_FinishAndFlush(t *testing.T) {
	t.Parallel()

	tr, mem := TestingTracerWithTransport(t)

	rec, err := tr.StartSpan(t.Context(), "web.request", StartTime(time.Now().Add(-time.Millisecond)))
	require.NoError(t, err)
	rec.SetTag("http.status_code", "200")
	rec.Finish()

	require.NoError(t, tr.Flush(t.Context()))

	traces := mem.Traces()
	require.Len(t, traces, 1)
	require.Len(t, traces[0].Spans, 1)

	got := traces[0].Spans[0]
	d, finished := got.Duration()
	assert.True(t, finished)
	assert.Positive(t, d)
	status, ok := got.Tag("http.status_code")
	require.True(t, ok)
	assert.Equal(t, "200", status)
}

// TestStartActiveSpan_FinishOrder tests that spans are buffered in finish order.
func TestStartActiveSpan_FinishOrder(t *testing.T) {
	t.Parallel()

	tr, mem := TestingTracerWithTransport(t)
	ctx := requestContext(t)

	root, err := tr.StartActiveSpan(ctx, "root")
	require.NoError(t, err)
	child, err := tr.StartActiveSpan(ctx, "child")
	require.NoError(t, err)

	assert.Same(t, root.Span(), child.Span().Parent())
	assert.Equal(t, root.Span().TraceID(), child.Span().TraceID())
	assert.Equal(t, root.Span().SpanID(), child.Span().ParentID())
	assert.Same(t, root.Span(), tr.RootSpan(ctx))

	child.Close()
	root.Close()
	assert.Equal(t, 2, tr.BufferedSpans())

	require.NoError(t, tr.Flush(t.Context()))
	traces := mem.Traces()
	require.Len(t, traces, 1)
	require.Len(t, traces[0].Spans, 2)
	assert.Equal(t, "child", traces[0].Spans[0].Name())
	assert.Equal(t, "root", traces[0].Spans[1].Name())
	assert.Zero(t, tr.BufferedSpans())
}

// TestStartSpan_ParentSelection tests how the parent of a new span is chosen.
func TestStartSpan_ParentSelection(t *testing.T) {
	t.Parallel()

	tr := TestingTracer(t)
	ctx := requestContext(t)

	active, err := tr.StartActiveSpan(ctx, "active")
	require.NoError(t, err)
	t.Cleanup(active.Close)

	t.Run("active span", func(t *testing.T) {
		rec, err := tr.StartSpan(ctx, "implicit")
		require.NoError(t, err)
		assert.Same(t, active.Span(), rec.Parent())
	})

	t.Run("explicit parent", func(t *testing.T) {
		other, err := tr.StartSpan(ctx, "other", IgnoreActiveSpan())
		require.NoError(t, err)

		rec, err := tr.StartSpan(ctx, "explicit", ChildOf(other))
		require.NoError(t, err)
		assert.Same(t, other, rec.Parent())
	})

	t.Run("ignore active span", func(t *testing.T) {
		rec, err := tr.StartSpan(ctx, "root", IgnoreActiveSpan())
		require.NoError(t, err)
		assert.Nil(t, rec.Parent())
		assert.True(t, rec.IsLocalRoot())
		assert.NotEqual(t, active.Span().TraceID(), rec.TraceID())
	})

	t.Run("root span helper", func(t *testing.T) {
		s, err := tr.StartRootSpan(ctx, "root")
		require.NoError(t, err)
		defer s.Close()
		assert.Nil(t, s.Span().Parent())
	})

	t.Run("conflicting parents", func(t *testing.T) {
		remote := &propagator.SpanContext{TraceID: ids.TraceID{Low: 1}, SpanID: 2}
		rec, err := tr.StartSpan(ctx, "bad", ChildOf(active.Span()), ChildOfRemote(remote))
		require.ErrorIs(t, err, ErrConflictingParents)
		assert.Nil(t, rec)
	})
}

// TestStartSpan_RemoteParent tests continuing an extracted trace.
func TestStartSpan_RemoteParent(t *testing.T) {
	t.Parallel()

	tr := TestingTracer(t)

	remote := &propagator.SpanContext{
		TraceID:          ids.TraceID{High: 7, Low: 42},
		SpanID:           99,
		SamplingPriority: span.PriorityUserKeep,
		HasPriority:      true,
		Origin:           "synthetics",
		PropagatingTags:  map[string]string{"dm": "-4"},
		TraceState:       "congo=t61rcWkgMzE",
		LastParentID:     "00f067aa0ba902b7",
		Baggage:          map[string]string{"user": "alice"},
	}

	rec, err := tr.StartSpan(requestContext(t), "server", ChildOfRemote(remote))
	require.NoError(t, err)

	assert.Equal(t, remote.TraceID, rec.TraceID())
	assert.Equal(t, uint64(99), rec.ParentID())
	assert.Nil(t, rec.Parent())
	assert.True(t, rec.IsLocalRoot())

	p, ok := rec.Trace().SamplingPriority()
	require.True(t, ok)
	assert.Equal(t, span.PriorityUserKeep, p)
	assert.Equal(t, "synthetics", rec.Trace().Origin())
	assert.Equal(t, map[string]string{"dm": "-4"}, rec.Trace().PropagatingTags())
	assert.Equal(t, "congo=t61rcWkgMzE", rec.Trace().TraceState())
	assert.Equal(t, "alice", rec.BaggageItem("user"))

	parent, ok := rec.Tag(span.ParentID)
	require.True(t, ok)
	assert.Equal(t, "00f067aa0ba902b7", parent)
}

// TestStartSpan_InvalidRemoteParent tests that an invalid remote context starts a new trace.
func TestStartSpan_InvalidRemoteParent(t *testing.T) {
	t.Parallel()

	tr := TestingTracer(t)

	for _, remote := range []*propagator.SpanContext{nil, {}} {
		rec, err := tr.StartSpan(t.Context(), "op", ChildOfRemote(remote))
		require.NoError(t, err)
		assert.Zero(t, rec.ParentID())
		assert.False(t, rec.TraceID().IsZero())
	}
}

// TestStartSpan_Sampling tests how the sampler decision becomes a priority.
func TestStartSpan_Sampling(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		sampler sdktrace.Sampler
		opts    []StartOption
		want    int
	}{
		{
			name:    "always sample",
			sampler: sdktrace.AlwaysSample(),
			want:    span.PriorityAutoKeep,
		},
		{
			name:    "never sample",
			sampler: sdktrace.NeverSample(),
			want:    span.PriorityAutoReject,
		},
		{
			name:    "explicit priority wins",
			sampler: sdktrace.NeverSample(),
			opts:    []StartOption{WithSamplingPriority(span.PriorityUserKeep)},
			want:    span.PriorityUserKeep,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			tr := TestingTracer(t, WithSampler(tt.sampler))
			ctx := requestContext(t)

			root, err := tr.StartActiveSpan(ctx, "root", tt.opts...)
			require.NoError(t, err)
			defer root.Close()

			child, err := tr.StartSpan(ctx, "child", WithSamplingPriority(span.PriorityUserReject))
			require.NoError(t, err)

			p, ok := child.Trace().SamplingPriority()
			require.True(t, ok)
			assert.Equal(t, tt.want, p, "children share the trace priority")
		})
	}
}

// TestStartSpan_Tags tests the tags set on new spans.
func TestStartSpan_Tags(t *testing.T) {
	t.Parallel()

	tr := TestingTracer(t,
		WithEnv("prod"),
		WithGlobalTag("team", "payments"),
		WithGlobalTags(map[string]string{"region": "eu"}),
	)
	ctx := requestContext(t)

	root, err := tr.StartActiveSpan(ctx, "root",
		ResourceName("GET /users"),
		SpanType("web"),
		WithTag("retries", 3),
	)
	require.NoError(t, err)
	defer root.Close()

	rec := root.Span()
	assert.Equal(t, "test-service", rec.Service())
	assert.Equal(t, "GET /users", rec.Resource())
	assert.Equal(t, "web", rec.Type())

	meta := rec.Meta()
	assert.Equal(t, "prod", meta[span.Environment])
	assert.Equal(t, "v1.0.0", meta[span.Version])
	assert.Equal(t, "payments", meta["team"])
	assert.Equal(t, "eu", meta["region"])
	assert.Equal(t, tr.RuntimeID(), meta[span.RuntimeID])
	assert.Equal(t, Language, meta[span.Language])

	retries, ok := rec.Metric("retries")
	require.True(t, ok)
	assert.InDelta(t, 3.0, retries, 0)

	child, err := tr.StartSpan(ctx, "child", ServiceName("postgres"))
	require.NoError(t, err)
	childMeta := child.Meta()
	assert.Equal(t, "postgres", child.Service())
	assert.NotContains(t, childMeta, span.RuntimeID, "runtime id is set on local roots only")
	assert.NotContains(t, childMeta, span.Version, "version belongs to the tracer's own service")
	assert.Equal(t, "prod", childMeta[span.Environment])
}

// TestStartSpan_TraceIDWidth tests 64-bit and 128-bit trace id generation.
func TestStartSpan_TraceIDWidth(t *testing.T) {
	t.Parallel()

	wide := TestingTracer(t)
	rec, err := wide.StartSpan(t.Context(), "op")
	require.NoError(t, err)
	assert.NotZero(t, rec.TraceID().High)

	narrow := TestingTracer(t, WithTraceID128(false))
	rec, err = narrow.StartSpan(t.Context(), "op")
	require.NoError(t, err)
	assert.Zero(t, rec.TraceID().High)
	assert.NotZero(t, rec.TraceID().Low)
}

// TestStartSpan_WithSpanID tests an explicit span id.
func TestStartSpan_WithSpanID(t *testing.T) {
	t.Parallel()

	tr := TestingTracer(t)
	rec, err := tr.StartSpan(t.Context(), "op", WithSpanID(1234))
	require.NoError(t, err)
	assert.Equal(t, uint64(1234), rec.SpanID())
}

// TestScopeManager_Fallback tests that a context without a manager uses the tracer's own.
func TestScopeManager_Fallback(t *testing.T) {
	t.Parallel()

	tr := TestingTracer(t)
	assert.Same(t, tr.scopes, tr.ScopeManager(t.Context()))

	ctx := requestContext(t)
	assert.NotSame(t, tr.scopes, tr.ScopeManager(ctx))
	assert.Nil(t, tr.ActiveSpan(ctx))
	assert.Nil(t, tr.RootSpan(ctx))

	s, err := tr.StartActiveSpan(ctx, "op", FinishOnClose(false))
	require.NoError(t, err)
	s.Close()
	assert.False(t, s.Span().Finished())
	assert.Nil(t, tr.ActiveSpan(ctx))
}

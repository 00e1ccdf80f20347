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
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"

	"rivaas.dev/tracer/ids"
	"rivaas.dev/tracer/span"
)

func finishedTrace(t *testing.T) Trace {
	t.Helper()

	root := span.New(span.Config{
		Name:    "web.request",
		Service: "svc",
		TraceID: ids.TraceID{High: 0x640cfd8d00000000, Low: 42},
	})
	root.Trace().SetSamplingPriority(span.PriorityAutoKeep)
	root.Trace().SetOrigin("synthetics")
	root.Trace().SetPropagatingTag("dm", "-1")
	root.SetTag(span.SpanKind, span.SpanKindServer)

	child := span.New(span.Config{Name: "db.query", Resource: "SELECT 1", Type: "sql", Parent: root})
	child.SetTag("rows", 3)
	child.AddLink(span.Link{TraceID: ids.TraceID{Low: 7}, SpanID: 8, Attributes: map[string]string{"k": "v"}})
	child.AddEvent(span.Event{Name: "retry", Attributes: map[string]any{"attempt": 2}})
	child.SetError(errors.New("timeout"))
	child.Finish(span.NoDebugStack())
	root.Finish()

	return Trace{ID: root.TraceID(), Spans: []*span.Record{child, root}}
}

func TestNoop(t *testing.T) {
	t.Parallel()

	var tr Transport = Noop{}
	tr.SetHeader("k", "v")
	assert.NoError(t, tr.Send(context.Background(), []Trace{{}}))
}

func TestInMemory(t *testing.T) {
	t.Parallel()

	m := NewInMemory()
	tr := finishedTrace(t)

	require.NoError(t, m.Send(context.Background(), nil))
	require.NoError(t, m.Send(context.Background(), []Trace{tr}))
	m.SetHeader("X-Test", "1")

	assert.Len(t, m.Sends(), 2, "empty sends are recorded")
	assert.Len(t, m.Traces(), 1)
	assert.Len(t, m.Spans(), 2)
	assert.Equal(t, "1", m.Headers()["X-Test"])

	boom := errors.New("boom")
	m.SetError(boom)
	assert.ErrorIs(t, m.Send(context.Background(), nil), boom)

	m.Reset()
	assert.Empty(t, m.Sends())
}

func TestMsgpackEncoder(t *testing.T) {
	t.Parallel()

	tr := finishedTrace(t)
	b, err := MsgpackEncoder{}.Encode([]Trace{tr})
	require.NoError(t, err)

	var payload [][]agentSpan
	require.NoError(t, msgpack.Unmarshal(b, &payload))
	require.Len(t, payload, 1)
	require.Len(t, payload[0], 2)

	child, root := payload[0][0], payload[0][1]

	assert.Equal(t, "db.query", child.Name)
	assert.Equal(t, "SELECT 1", child.Resource)
	assert.Equal(t, "svc", child.Service)
	assert.Equal(t, "sql", child.Type)
	assert.Equal(t, uint64(42), child.TraceID)
	assert.Equal(t, root.SpanID, child.ParentID)
	assert.Equal(t, int32(1), child.Error)
	assert.Equal(t, "timeout", child.Meta[span.ErrorMsg])
	assert.InDelta(t, 3.0, child.Metrics["rows"], 0)

	var links []agentLink
	require.NoError(t, json.Unmarshal([]byte(child.Meta[metaSpanLinks]), &links))
	require.Len(t, links, 1)
	assert.Equal(t, "8", links[0].SpanID)

	assert.Equal(t, "web.request", root.Resource, "resource defaults to name")
	assert.Zero(t, root.ParentID)
	assert.InDelta(t, 1.0, root.Metrics[metricSamplingKey], 0)
	assert.Equal(t, "synthetics", root.Meta[metaOrigin])
	assert.Equal(t, "-1", root.Meta["_dd.p.dm"])
	assert.Equal(t, "640cfd8d00000000", root.Meta["_dd.p.tid"])
	_, childHasPriority := child.Metrics[metricSamplingKey]
	assert.False(t, childHasPriority)
}

func TestAgent_Send(t *testing.T) {
	t.Parallel()

	var (
		gotPath    string
		gotHeaders http.Header
		gotBody    []byte
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotHeaders = r.Header.Clone()
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)

	a := NewAgent(srv.URL + "/")
	a.SetHeader("Datadog-Container-Id", "abc")

	require.NoError(t, a.Send(context.Background(), []Trace{finishedTrace(t)}))

	assert.Equal(t, tracesPath, gotPath)
	assert.Equal(t, "application/msgpack", gotHeaders.Get("Content-Type"))
	assert.Equal(t, "1", gotHeaders.Get("X-Datadog-Trace-Count"))
	assert.Equal(t, "go", gotHeaders.Get("Datadog-Meta-Lang"))
	assert.Equal(t, "abc", gotHeaders.Get("Datadog-Container-Id"))

	var payload [][]agentSpan
	require.NoError(t, msgpack.Unmarshal(gotBody, &payload))
	assert.Len(t, payload[0], 2)
}

func TestAgent_EmptyBatchIsNotSent(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		calls.Add(1)
	}))
	t.Cleanup(srv.Close)

	require.NoError(t, NewAgent(srv.URL).Send(context.Background(), nil))
	assert.Zero(t, calls.Load())
}

func TestAgent_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		status    int
		wantCalls int32
	}{
		{"client error is not retried", http.StatusBadRequest, 1},
		{"server error is retried", http.StatusServiceUnavailable, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var calls atomic.Int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				calls.Add(1)
				w.WriteHeader(tt.status)
			}))
			t.Cleanup(srv.Close)

			a := NewAgent(srv.URL, WithRetries(2, time.Millisecond, 5*time.Millisecond))
			err := a.Send(context.Background(), []Trace{finishedTrace(t)})
			require.Error(t, err)
			assert.Equal(t, tt.wantCalls, calls.Load())
		})
	}
}

func TestAgent_DefaultURL(t *testing.T) {
	t.Parallel()

	assert.Equal(t, DefaultAgentURL+tracesPath, NewAgent("").URL())
}

func TestExporter_Send(t *testing.T) {
	t.Parallel()

	mem := tracetest.NewInMemoryExporter()
	res := resource.Empty()
	e := NewExporter(mem, res)

	tr := finishedTrace(t)
	require.NoError(t, e.Send(context.Background(), []Trace{tr}))

	stubs := mem.GetSpans()
	require.Len(t, stubs, 2)

	child, root := stubs[0], stubs[1]
	assert.Equal(t, "db.query", child.Name)
	assert.Equal(t, root.SpanContext.SpanID(), child.Parent.SpanID())
	assert.False(t, child.Parent.IsRemote())
	assert.Equal(t, codes.Error, child.Status.Code)
	assert.Equal(t, "timeout", child.Status.Description)
	require.Len(t, child.Links, 1)
	require.Len(t, child.Events, 1)
	assert.Equal(t, "retry", child.Events[0].Name)

	assert.Equal(t, trace.SpanKindServer, root.SpanKind)
	assert.True(t, root.SpanContext.IsSampled())
	assert.Equal(t, tr.ID.Bytes(), [16]byte(root.SpanContext.TraceID()))
	assert.False(t, root.Parent.IsValid())
	assert.False(t, root.EndTime.Before(root.StartTime))
	assert.Equal(t, InstrumentationName, root.InstrumentationScope.Name)

	require.NoError(t, e.Shutdown(context.Background()))
}

func TestExporter_EmptySend(t *testing.T) {
	t.Parallel()

	mem := tracetest.NewInMemoryExporter()
	require.NoError(t, NewExporter(mem, nil).Send(context.Background(), nil))
	assert.Empty(t, mem.GetSpans())
}

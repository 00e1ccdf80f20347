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
	"maps"
	"slices"
	"time"

	"go.opentelemetry.io/otel/trace"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"rivaas.dev/tracer/ids"
	"rivaas.dev/tracer/propagator"
	"rivaas.dev/tracer/scope"
	"rivaas.dev/tracer/span"
)

// StartOption configures a span at creation.
type StartOption func(*StartConfig)

// StartConfig holds the settings collected from StartOptions.
type StartConfig struct {
	Parent       *span.Record
	RemoteParent *propagator.SpanContext

	Service  string
	Resource string
	Type     string

	StartTime time.Time
	TraceID   ids.TraceID
	SpanID    uint64
	Tags      []Tag

	SamplingPriority    int
	HasSamplingPriority bool

	IgnoreActiveSpan bool
	FinishOnClose    bool
}

// Tag is a key/value pair set on a span at creation.
type Tag struct {
	Key   string
	Value any
}

// ChildOf makes the span a child of a local parent.
func ChildOf(parent *span.Record) StartOption {
	return func(c *StartConfig) {
		c.Parent = parent
	}
}

// ChildOfRemote continues a trace extracted from a carrier. A nil or
// invalid context starts a new trace.
func ChildOfRemote(sc *propagator.SpanContext) StartOption {
	return func(c *StartConfig) {
		if sc != nil && sc.IsValid() {
			c.RemoteParent = sc
		}
	}
}

// ServiceName overrides the service of the span.
func ServiceName(name string) StartOption {
	return func(c *StartConfig) {
		c.Service = name
	}
}

// ResourceName sets the resource of the span.
func ResourceName(name string) StartOption {
	return func(c *StartConfig) {
		c.Resource = name
	}
}

// SpanType sets the type of the span, such as "web" or "sql".
func SpanType(name string) StartOption {
	return func(c *StartConfig) {
		c.Type = name
	}
}

// StartTime sets an explicit start time.
func StartTime(t time.Time) StartOption {
	return func(c *StartConfig) {
		c.StartTime = t
	}
}

// WithTag sets a tag on the span at creation.
func WithTag(key string, value any) StartOption {
	return func(c *StartConfig) {
		c.Tags = append(c.Tags, Tag{Key: key, Value: value})
	}
}

// WithTraceID sets the trace id of a new trace. It has no effect when the
// span has a parent.
func WithTraceID(id ids.TraceID) StartOption {
	return func(c *StartConfig) {
		c.TraceID = id
	}
}

// WithSpanID sets an explicit span id.
func WithSpanID(id uint64) StartOption {
	return func(c *StartConfig) {
		c.SpanID = id
	}
}

// WithSamplingPriority sets the priority of a new trace instead of
// consulting the sampler. It has no effect on child spans.
func WithSamplingPriority(p int) StartOption {
	return func(c *StartConfig) {
		c.SamplingPriority = p
		c.HasSamplingPriority = true
	}
}

// IgnoreActiveSpan starts a root span even when a span is active.
func IgnoreActiveSpan() StartOption {
	return func(c *StartConfig) {
		c.IgnoreActiveSpan = true
	}
}

// FinishOnClose controls whether closing the scope returned by
// StartActiveSpan finishes the span. The default is true.
func FinishOnClose(finish bool) StartOption {
	return func(c *StartConfig) {
		c.FinishOnClose = finish
	}
}

// StartSpan creates a span. Its parent is, in order: the ChildOf record,
// the ChildOfRemote context, or the active span of ctx unless
// IgnoreActiveSpan is given. The span is not activated.
//
// Example:
//
//	rec, err := t.StartSpan(ctx, "db.query", tracer.ResourceName("SELECT users"), tracer.SpanType("sql"))
//	if err != nil {
//	    return err
//	}
//	defer rec.Finish()
func (t *Tracer) StartSpan(ctx context.Context, name string, opts ...StartOption) (*span.Record, error) {
	cfg := StartConfig{FinishOnClose: true}
	for _, opt := range opts {
		opt(&cfg)
	}

	return t.startSpan(ctx, name, &cfg)
}

func (t *Tracer) startSpan(ctx context.Context, name string, cfg *StartConfig) (*span.Record, error) {
	if cfg.Parent != nil && cfg.RemoteParent != nil {
		return nil, ErrConflictingParents
	}
	if cfg.Parent == nil && cfg.RemoteParent == nil && !cfg.IgnoreActiveSpan {
		cfg.Parent = t.ActiveSpan(ctx)
	}

	rc := span.Config{
		Name:     name,
		Service:  cfg.Service,
		Resource: cfg.Resource,
		Type:     cfg.Type,
		SpanID:   cfg.SpanID,
		Parent:   cfg.Parent,
		Start:    cfg.StartTime,
		Recorder: t,
	}
	switch {
	case cfg.Parent != nil:
	case cfg.RemoteParent != nil:
		rc.TraceID = cfg.RemoteParent.TraceID
		rc.ParentID = cfg.RemoteParent.SpanID
	case !cfg.TraceID.IsZero():
		rc.TraceID = cfg.TraceID
	default:
		rc.TraceID = t.NewTraceID()
	}
	if rc.Service == "" && rc.Parent == nil {
		rc.Service = t.ServiceName()
	}

	rec := span.New(rc)
	if rec.IsLocalRoot() {
		t.initLocalRoot(rec, cfg)
	}

	if t.env != "" {
		rec.SetMeta(span.Environment, t.env)
	}
	if t.serviceVersion != "" && rec.Service() == t.ServiceName() {
		rec.SetMeta(span.Version, t.serviceVersion)
	}
	for _, k := range slices.Sorted(maps.Keys(t.globalTags)) {
		rec.SetTag(k, t.globalTags[k])
	}
	for _, tag := range cfg.Tags {
		rec.SetTag(tag.Key, tag.Value)
	}

	t.instruments.spansStarted.Add(ctx, 1)

	return rec, nil
}

// NewTraceID returns a random trace id of the configured width.
func (t *Tracer) NewTraceID() ids.TraceID {
	return ids.NewTraceID(t.traceID128)
}

// initLocalRoot sets trace-level state on the first local span of a trace.
func (t *Tracer) initLocalRoot(rec *span.Record, cfg *StartConfig) {
	tr := rec.Trace()

	if rp := cfg.RemoteParent; rp != nil {
		if rp.HasPriority {
			tr.SetSamplingPriority(rp.SamplingPriority)
		}
		tr.SetOrigin(rp.Origin)
		for k, v := range rp.PropagatingTags {
			tr.SetPropagatingTag(k, v)
		}
		tr.SetTraceState(rp.TraceState)
		if rp.LastParentID != "" {
			rec.SetMeta(span.ParentID, rp.LastParentID)
		}
		for k, v := range rp.Baggage {
			rec.SetBaggageItem(k, v)
		}
	}

	if cfg.HasSamplingPriority {
		tr.SetSamplingPriority(cfg.SamplingPriority)
	} else if _, ok := tr.SamplingPriority(); !ok {
		tr.SetSamplingPriority(t.sample(rec))
	}

	rec.SetMeta(span.RuntimeID, t.runtimeID)
	rec.SetMeta(span.Language, Language)
}

// sample asks the sampler about a new trace and maps the decision onto a
// sampling priority.
func (t *Tracer) sample(rec *span.Record) int {
	res := t.sampler.ShouldSample(sdktrace.SamplingParameters{
		ParentContext: context.Background(),
		TraceID:       trace.TraceID(rec.TraceID().Bytes()),
		Name:          rec.Name(),
		Kind:          trace.SpanKindInternal,
	})

	if ts := res.Tracestate.Delete(propagator.VendorKey); ts.Len() > 0 && rec.Trace().TraceState() == "" {
		rec.Trace().SetTraceState(ts.String())
	}

	if res.Decision == sdktrace.RecordAndSample {
		return span.PriorityAutoKeep
	}

	return span.PriorityAutoReject
}

// StartActiveSpan creates a span and activates it in the scope manager of
// ctx. Closing the scope finishes the span unless FinishOnClose(false) was
// given.
//
// Example:
//
//	s, err := t.StartActiveSpan(ctx, "checkout")
//	if err != nil {
//	    return err
//	}
//	defer s.Close()
func (t *Tracer) StartActiveSpan(ctx context.Context, name string, opts ...StartOption) (*scope.Scope, error) {
	cfg := StartConfig{FinishOnClose: true}
	for _, opt := range opts {
		opt(&cfg)
	}

	rec, err := t.startSpan(ctx, name, &cfg)
	if err != nil {
		return nil, err
	}

	return t.ScopeManager(ctx).Activate(rec, cfg.FinishOnClose), nil
}

// StartRootSpan is StartActiveSpan with IgnoreActiveSpan.
func (t *Tracer) StartRootSpan(ctx context.Context, name string, opts ...StartOption) (*scope.Scope, error) {
	return t.StartActiveSpan(ctx, name, append(slices.Clone(opts), IgnoreActiveSpan())...)
}

// ScopeManager returns the scope manager carried by ctx, or the tracer's
// own manager.
func (t *Tracer) ScopeManager(ctx context.Context) *scope.Manager {
	if ctx != nil {
		if m, ok := scope.ManagerFromContext(ctx); ok {
			return m
		}
	}

	return t.scopes
}

// ActiveSpan returns the active span of ctx, or nil.
func (t *Tracer) ActiveSpan(ctx context.Context) *span.Record {
	return t.ScopeManager(ctx).ActiveSpan()
}

// RootSpan returns the local root of the active span of ctx, or nil.
func (t *Tracer) RootSpan(ctx context.Context) *span.Record {
	if rec := t.ActiveSpan(ctx); rec != nil {
		return rec.Root()
	}

	return nil
}

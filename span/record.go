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

// Package span implements the native span record: a timed, mutable unit of
// work with identity, tags and parent linkage.
//
// A Record is safe for concurrent use. Every mutator is a no-op once the
// record has finished, and Finish itself is idempotent: the first call fixes
// the duration and hands the record to its Recorder, later calls do nothing.
package span

import (
	"fmt"
	"maps"
	"runtime/debug"
	"slices"
	"strconv"
	"sync"
	"time"

	"github.com/spf13/cast"

	"rivaas.dev/tracer/ids"
)

// Recorder receives records when they finish.
type Recorder interface {
	Record(r *Record)
}

// Link references a span outside the record's own parent chain.
type Link struct {
	TraceID    ids.TraceID
	SpanID     uint64
	TraceState string
	Flags      uint32
	Attributes map[string]string
}

// Event is a timestamped annotation.
type Event struct {
	Name       string
	Time       int64 // unix nanoseconds
	Attributes map[string]any
}

// Config describes a record to create.
//
// When Parent is set the record joins the parent's trace and TraceID, Trace
// and ParentID are ignored. An empty Service is inherited from Parent.
type Config struct {
	Name     string
	Service  string
	Resource string
	Type     string

	TraceID  ids.TraceID
	SpanID   uint64
	Parent   *Record
	ParentID uint64

	Start    time.Time
	Trace    *Trace
	Recorder Recorder
}

// Record is the native span.
type Record struct {
	mu sync.RWMutex

	traceID  ids.TraceID
	spanID   uint64
	parentID uint64
	parent   *Record

	name     string
	resource string
	service  string
	spanType string

	startTime time.Time
	start     int64 // unix nanoseconds
	duration  int64 // nanoseconds
	finished  bool

	meta     map[string]string
	metaKeys []string
	metrics  map[string]float64
	hasError bool

	links   []Link
	events  []Event
	baggage map[string]string

	trace    *Trace
	recorder Recorder
}

// New creates a record from cfg.
func New(cfg Config) *Record {
	r := &Record{
		spanID:   cfg.SpanID,
		name:     cfg.Name,
		resource: cfg.Resource,
		service:  cfg.Service,
		spanType: cfg.Type,
		meta:     make(map[string]string),
		metrics:  make(map[string]float64),
		recorder: cfg.Recorder,
	}
	if r.spanID == 0 {
		r.spanID = ids.NewSpanID()
	}

	if p := cfg.Parent; p != nil {
		p.mu.RLock()
		r.traceID = p.traceID
		r.parentID = p.spanID
		r.trace = p.trace
		if r.service == "" {
			r.service = p.service
		}
		p.mu.RUnlock()
		r.parent = p
	} else {
		r.traceID = cfg.TraceID
		if r.traceID.IsZero() {
			r.traceID = ids.NewTraceID(true)
		}
		r.parentID = cfg.ParentID
		r.trace = cfg.Trace
	}
	if r.trace == nil {
		r.trace = NewTrace()
	}

	r.startTime = cfg.Start
	if r.startTime.IsZero() {
		r.startTime = time.Now()
	}
	r.start = r.startTime.UnixNano()

	r.trace.setRootIfUnset(r)

	return r
}

// TraceID returns the trace id.
func (r *Record) TraceID() ids.TraceID { return r.traceID }

// SpanID returns the span id.
func (r *Record) SpanID() uint64 { return r.spanID }

// ParentID returns the parent span id, or 0 for a root.
func (r *Record) ParentID() uint64 { return r.parentID }

// Parent returns the local parent, or nil for local roots.
func (r *Record) Parent() *Record { return r.parent }

// Trace returns the shared trace state.
func (r *Record) Trace() *Trace { return r.trace }

// Root returns the local root of the record's trace.
func (r *Record) Root() *Record { return r.trace.Root() }

// IsLocalRoot reports whether r is the first local record of its trace.
func (r *Record) IsLocalRoot() bool { return r.trace.Root() == r }

// Start returns the start time in unix nanoseconds.
func (r *Record) Start() int64 { return r.start }

// StartTime returns the start time.
func (r *Record) StartTime() time.Time { return r.startTime }

// Name returns the operation name.
func (r *Record) Name() string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.name
}

// SetName sets the operation name.
func (r *Record) SetName(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.finished {
		return
	}
	r.name = name
}

// Resource returns the resource name.
func (r *Record) Resource() string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.resource
}

// SetResource sets the resource name.
func (r *Record) SetResource(resource string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.finished {
		return
	}
	r.resource = resource
}

// Service returns the service name.
func (r *Record) Service() string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.service
}

// SetService sets the service name.
func (r *Record) SetService(service string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.finished {
		return
	}
	r.service = service
}

// Type returns the span type.
func (r *Record) Type() string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.spanType
}

// SetType sets the span type.
func (r *Record) SetType(spanType string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.finished {
		return
	}
	r.spanType = spanType
}

// SetTag sets a tag, routing it by the value's type:
// strings and bools become meta, numbers become metrics, an error under the
// "error" key marks the record as failed. The keys ServiceName, ResourceName,
// SpanType and OperationName update the record's own fields.
func (r *Record) SetTag(key string, value any) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.finished {
		return
	}

	switch key {
	case ServiceName:
		r.service = cast.ToString(value)
		return
	case ResourceName:
		r.resource = cast.ToString(value)
		return
	case SpanType:
		r.spanType = cast.ToString(value)
		return
	case OperationName:
		r.name = cast.ToString(value)
		return
	}

	switch v := value.(type) {
	case nil:
		r.deleteLocked(key)
	case string:
		r.setMetaLocked(key, v)
	case bool:
		if key == Error {
			r.hasError = v
			return
		}
		r.setMetaLocked(key, strconv.FormatBool(v))
	case error:
		if key == Error {
			r.setErrorLocked(v, true)
			return
		}
		r.setMetaLocked(key, v.Error())
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64:
		r.metrics[key] = cast.ToFloat64(v)
	case fmt.Stringer:
		r.setMetaLocked(key, v.String())
	default:
		s, err := cast.ToStringE(v)
		if err != nil {
			s = fmt.Sprint(v)
		}
		r.setMetaLocked(key, s)
	}
}

// SetMeta sets a string tag.
func (r *Record) SetMeta(key, value string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.finished {
		return
	}
	r.setMetaLocked(key, value)
}

// SetMetric sets a numeric tag.
func (r *Record) SetMetric(key string, value float64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.finished {
		return
	}
	r.metrics[key] = value
}

// DeleteTag removes key from both meta and metrics.
func (r *Record) DeleteTag(key string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.finished {
		return
	}
	r.deleteLocked(key)
}

func (r *Record) setMetaLocked(key, value string) {
	if _, ok := r.meta[key]; !ok {
		r.metaKeys = append(r.metaKeys, key)
	}
	r.meta[key] = value
}

func (r *Record) deleteLocked(key string) {
	if _, ok := r.meta[key]; ok {
		delete(r.meta, key)
		r.metaKeys = slices.DeleteFunc(r.metaKeys, func(k string) bool { return k == key })
	}
	delete(r.metrics, key)
}

// Tag returns a meta tag.
func (r *Record) Tag(key string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	v, ok := r.meta[key]

	return v, ok
}

// Metric returns a numeric tag.
func (r *Record) Metric(key string) (float64, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	v, ok := r.metrics[key]

	return v, ok
}

// Meta returns a copy of the string tags.
func (r *Record) Meta() map[string]string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return maps.Clone(r.meta)
}

// MetaKeys returns the string tag keys in insertion order.
func (r *Record) MetaKeys() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return slices.Clone(r.metaKeys)
}

// Metrics returns a copy of the numeric tags.
func (r *Record) Metrics() map[string]float64 {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return maps.Clone(r.metrics)
}

// SetError marks the record as failed and records the error message, type
// and the current stack. A nil error is ignored.
func (r *Record) SetError(err error) {
	if err == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.finished {
		return
	}
	r.setErrorLocked(err, true)
}

func (r *Record) setErrorLocked(err error, withStack bool) {
	r.hasError = true
	r.setMetaLocked(ErrorMsg, err.Error())
	r.setMetaLocked(ErrorType, fmt.Sprintf("%T", err))
	if withStack {
		r.setMetaLocked(ErrorStack, string(debug.Stack()))
	}
}

// HasError reports whether the record is marked as failed.
func (r *Record) HasError() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.hasError
}

// SetHasError sets or clears the error flag without touching the error tags.
func (r *Record) SetHasError(v bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.finished {
		return
	}
	r.hasError = v
}

// AddLink appends a span link.
func (r *Record) AddLink(l Link) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.finished {
		return
	}
	r.links = append(r.links, l)
}

// Links returns a copy of the span links.
func (r *Record) Links() []Link {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return slices.Clone(r.links)
}

// AddEvent appends an event. A zero Time is replaced by now.
func (r *Record) AddEvent(e Event) {
	if e.Time == 0 {
		e.Time = time.Now().UnixNano()
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.finished {
		return
	}
	r.events = append(r.events, e)
}

// Events returns a copy of the events.
func (r *Record) Events() []Event {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return slices.Clone(r.events)
}

// SetBaggageItem sets a baggage item.
func (r *Record) SetBaggageItem(key, value string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.finished {
		return
	}
	if r.baggage == nil {
		r.baggage = make(map[string]string)
	}
	r.baggage[key] = value
}

// BaggageItem returns a baggage item.
func (r *Record) BaggageItem(key string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.baggage[key]
}

// Baggage returns a copy of the baggage items.
func (r *Record) Baggage() map[string]string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return maps.Clone(r.baggage)
}

// FinishConfig holds the options of a Finish call.
type FinishConfig struct {
	// FinishTime overrides the end time. Zero means now.
	FinishTime time.Time

	// Error, when non-nil, is recorded before finishing.
	Error error

	// NoDebugStack skips capturing error.stack for Error.
	NoDebugStack bool
}

// FinishOption configures a Finish call.
type FinishOption func(*FinishConfig)

// FinishTime sets the end time.
func FinishTime(t time.Time) FinishOption {
	return func(c *FinishConfig) {
		c.FinishTime = t
	}
}

// WithError records err on the record as it finishes.
func WithError(err error) FinishOption {
	return func(c *FinishConfig) {
		c.Error = err
	}
}

// NoDebugStack prevents the error passed to WithError from capturing a stack.
func NoDebugStack() FinishOption {
	return func(c *FinishConfig) {
		c.NoDebugStack = true
	}
}

// Finish ends the record. The first call fixes the duration and hands the
// record to its Recorder; later calls are no-ops. The duration is never
// negative: an end time before the start yields zero.
func (r *Record) Finish(opts ...FinishOption) {
	var cfg FinishConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	r.mu.Lock()
	if r.finished {
		r.mu.Unlock()
		return
	}
	if cfg.Error != nil {
		r.setErrorLocked(cfg.Error, !cfg.NoDebugStack)
	}

	var d int64
	if cfg.FinishTime.IsZero() {
		d = int64(time.Since(r.startTime))
	} else {
		d = cfg.FinishTime.UnixNano() - r.start
	}
	r.duration = max(d, 0)
	r.finished = true
	recorder := r.recorder
	r.mu.Unlock()

	if recorder != nil {
		recorder.Record(r)
	}
}

// Duration returns the duration in nanoseconds and whether the record has
// finished.
func (r *Record) Duration() (int64, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.duration, r.finished
}

// Finished reports whether Finish has been called.
func (r *Record) Finished() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.finished
}

// String implements fmt.Stringer.
func (r *Record) String() string {
	return fmt.Sprintf("%s %s/%s", r.Name(), r.traceID.Hex(), ids.SpanIDHex(r.spanID))
}

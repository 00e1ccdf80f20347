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

import (
	"maps"
	"sync"
)

// Trace holds state shared by every local record of one trace: the sampling
// decision and what is propagated alongside it.
type Trace struct {
	mu          sync.RWMutex
	priority    int
	hasPriority bool
	origin      string
	tags        map[string]string // propagating tags, keys without PropagatingTagPrefix
	traceState  string            // tracestate members of other vendors
	root        *Record
}

// NewTrace returns empty trace state.
func NewTrace() *Trace {
	return &Trace{tags: make(map[string]string)}
}

// SamplingPriority returns the priority and whether one was set.
func (t *Trace) SamplingPriority() (int, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	return t.priority, t.hasPriority
}

// SetSamplingPriority sets the sampling priority.
func (t *Trace) SetSamplingPriority(p int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.priority = p
	t.hasPriority = true
}

// Origin returns the trace origin (e.g. "synthetics").
func (t *Trace) Origin() string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	return t.origin
}

// SetOrigin sets the trace origin.
func (t *Trace) SetOrigin(origin string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.origin = origin
}

// PropagatingTag returns the value of a propagating tag. key is given
// without the "_dd.p." prefix.
func (t *Trace) PropagatingTag(key string) (string, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	v, ok := t.tags[key]

	return v, ok
}

// SetPropagatingTag sets a propagating tag. key is given without the prefix.
func (t *Trace) SetPropagatingTag(key, value string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.tags[key] = value
}

// DeletePropagatingTag removes a propagating tag.
func (t *Trace) DeletePropagatingTag(key string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	delete(t.tags, key)
}

// PropagatingTags returns a copy of the propagating tags.
func (t *Trace) PropagatingTags() map[string]string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	return maps.Clone(t.tags)
}

// TraceState returns the foreign tracestate members, without the dd member.
func (t *Trace) TraceState() string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	return t.traceState
}

// SetTraceState stores the foreign tracestate members.
func (t *Trace) SetTraceState(ts string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.traceState = ts
}

// Root returns the local root record.
func (t *Trace) Root() *Record {
	t.mu.RLock()
	defer t.mu.RUnlock()

	return t.root
}

func (t *Trace) setRootIfUnset(r *Record) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.root != nil {
		return false
	}
	t.root = r

	return true
}

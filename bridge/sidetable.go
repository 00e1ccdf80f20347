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
	"sync"

	"rivaas.dev/tracer/ids"
	"rivaas.dev/tracer/span"
)

type mirrorKey struct {
	traceID ids.TraceID
	spanID  uint64
}

func keyOf(rec *span.Record) mirrorKey {
	return mirrorKey{traceID: rec.TraceID(), spanID: rec.SpanID()}
}

// sideTable maps native records to their mirrors. A record gets at most one
// mirror.
type sideTable struct {
	mu      sync.Mutex
	mirrors map[mirrorKey]*Span
}

func newSideTable() *sideTable {
	return &sideTable{mirrors: make(map[mirrorKey]*Span)}
}

func (st *sideTable) load(rec *span.Record) (*Span, bool) {
	st.mu.Lock()
	defer st.mu.Unlock()

	s, ok := st.mirrors[keyOf(rec)]

	return s, ok
}

// loadOrStore returns the existing mirror of s's record, or stores s. The
// loaded result reports whether a mirror was already present.
func (st *sideTable) loadOrStore(s *Span) (*Span, bool) {
	st.mu.Lock()
	defer st.mu.Unlock()

	k := keyOf(s.rec)
	if existing, ok := st.mirrors[k]; ok {
		return existing, true
	}
	st.mirrors[k] = s

	return s, false
}

// evict removes the mirrors of recs and returns them.
func (st *sideTable) evict(recs []*span.Record) []*Span {
	st.mu.Lock()
	defer st.mu.Unlock()

	var evicted []*Span
	for _, rec := range recs {
		k := keyOf(rec)
		if s, ok := st.mirrors[k]; ok {
			evicted = append(evicted, s)
			delete(st.mirrors, k)
		}
	}

	return evicted
}

func (st *sideTable) len() int {
	st.mu.Lock()
	defer st.mu.Unlock()

	return len(st.mirrors)
}

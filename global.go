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
	"sync"
	"sync/atomic"
)

var (
	global      atomic.Pointer[Tracer]
	noopDefault = sync.OnceValue(Noop)
)

// Noop returns a tracer that creates spans but discards every flushed
// trace.
func Noop() *Tracer {
	return MustNew(WithNoop())
}

// SetGlobal installs t as the process-wide tracer. A nil t restores the
// no-op default.
//
// Example:
//
//	t := tracer.MustNew(tracer.WithServiceName("my-api"), tracer.WithAgent(""))
//	tracer.SetGlobal(t)
func SetGlobal(t *Tracer) {
	global.Store(t)
}

// Global returns the process-wide tracer, or a shared no-op tracer when
// none was set.
func Global() *Tracer {
	if t := global.Load(); t != nil {
		return t
	}

	return noopDefault()
}

// ResetGlobal restores the no-op default and returns the tracer it
// replaced, if any.
func ResetGlobal() *Tracer {
	return global.Swap(nil)
}

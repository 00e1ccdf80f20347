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
	"errors"
	"fmt"

	"github.com/spf13/cast"
)

// Flag names read by the tracer.
const (
	// FlagDistributedTracing overrides WithDistributedTracing at Inject and
	// Extract time.
	FlagDistributedTracing = "distributed_tracing"

	// FlagServiceName overrides the service name of new root spans.
	FlagServiceName = "service"
)

// ErrFlagNotSet is returned by Flags.Bool for absent flags.
var ErrFlagNotSet = errors.New("tracer: flag not set")

// Flags supplies configuration values looked up while tracing.
type Flags interface {
	// Bool returns a boolean flag, ErrFlagNotSet when absent, or an error
	// when the value is not a boolean.
	Bool(name string) (bool, error)

	// String returns a string flag, or "" when absent.
	String(name string) string
}

// MapFlags is a map-backed Flags. Values are coerced on lookup.
type MapFlags map[string]any

// Bool implements Flags.
func (m MapFlags) Bool(name string) (bool, error) {
	v, ok := m[name]
	if !ok {
		return false, ErrFlagNotSet
	}
	b, err := cast.ToBoolE(v)
	if err != nil {
		return false, fmt.Errorf("flag %q: not a boolean: %w", name, err)
	}

	return b, nil
}

// String implements Flags.
func (m MapFlags) String(name string) string {
	v, ok := m[name]
	if !ok {
		return ""
	}
	s, err := cast.ToStringE(v)
	if err != nil {
		return ""
	}

	return s
}

// distributedTracingEnabled consults FlagDistributedTracing before the
// configured default.
func (t *Tracer) distributedTracingEnabled() (bool, error) {
	if t.flags != nil {
		v, err := t.flags.Bool(FlagDistributedTracing)
		switch {
		case err == nil:
			return v, nil
		case !errors.Is(err, ErrFlagNotSet):
			return false, err
		}
	}

	return t.distributedTracing, nil
}

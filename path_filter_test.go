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
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPathFilter(t *testing.T) {
	t.Parallel()

	pf := newPathFilter()
	pf.addPaths("/health", "/metrics")
	pf.addPrefixes("/debug/")
	pf.addPatterns(regexp.MustCompile(`^/v[0-9]+/internal/`))

	tests := []struct {
		path string
		want bool
	}{
		{"/health", true},
		{"/health/live", false},
		{"/metrics", true},
		{"/debug/pprof", true},
		{"/debugger", false},
		{"/v2/internal/jobs", true},
		{"/v2/public/jobs", false},
		{"/", false},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, pf.shouldExclude(tt.path))
		})
	}
}

func TestPathFilter_Nil(t *testing.T) {
	t.Parallel()

	var pf *pathFilter
	assert.False(t, pf.shouldExclude("/health"))
}

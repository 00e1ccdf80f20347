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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestMapFlags_Bool tests boolean coercion of flag values.
func TestMapFlags_Bool(t *testing.T) {
	t.Parallel()

	flags := MapFlags{
		"bool":    true,
		"string":  "false",
		"number":  1,
		"invalid": "perhaps",
	}

	tests := []struct {
		name    string
		key     string
		want    bool
		wantErr error
		anyErr  bool
	}{
		{name: "bool", key: "bool", want: true},
		{name: "string", key: "string", want: false},
		{name: "number", key: "number", want: true},
		{name: "missing", key: "missing", wantErr: ErrFlagNotSet},
		{name: "invalid", key: "invalid", anyErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := flags.Bool(tt.key)
			switch {
			case tt.wantErr != nil:
				require.ErrorIs(t, err, tt.wantErr)
			case tt.anyErr:
				require.Error(t, err)
				assert.NotErrorIs(t, err, ErrFlagNotSet)
			default:
				require.NoError(t, err)
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

// TestMapFlags_String tests string coercion of flag values.
func TestMapFlags_String(t *testing.T) {
	t.Parallel()

	flags := MapFlags{"service": "api", "port": 8080, "bad": struct{}{}}

	assert.Equal(t, "api", flags.String("service"))
	assert.Equal(t, "8080", flags.String("port"))
	assert.Empty(t, flags.String("bad"))
	assert.Empty(t, flags.String("missing"))
}

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

package ids

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToHex(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		id    uint64
		width int
		want  string
	}{
		{"small span id", 1, SpanIDWidth, "0000000000000001"},
		{"span id", 0x00f067aa0ba902b7, SpanIDWidth, "00f067aa0ba902b7"},
		{"max span id", math.MaxUint64, SpanIDWidth, "ffffffffffffffff"},
		{"trace id width", 0xa3ce929d0e0e4736, TraceIDWidth, "0000000000000000a3ce929d0e0e4736"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got := ToHex(tt.id, tt.width)
			assert.Equal(t, tt.want, got)
			assert.Len(t, got, tt.width)
		})
	}
}

func TestHexRoundTrip(t *testing.T) {
	t.Parallel()

	values := []uint64{1, 42, 1 << 32, math.MaxUint64 >> 1, math.MaxUint64}
	for range 64 {
		values = append(values, NewSpanID())
	}

	for _, id := range values {
		for _, width := range []int{SpanIDWidth, TraceIDWidth} {
			encoded := ToHex(id, width)
			require.Len(t, encoded, width)

			decoded, err := FromHex(encoded)
			require.NoError(t, err)
			assert.Equal(t, id, decoded, "round trip of %d at width %d", id, width)
		}
	}
}

func TestFromHex_Invalid(t *testing.T) {
	t.Parallel()

	for _, in := range []string{"", "xyz", "0123456789abcdef0123456789abcdef0", "zz23456789abcdef0123456789abcdef"} {
		_, err := FromHex(in)
		require.Error(t, err, in)
		assert.ErrorIs(t, err, ErrInvalidID)
	}
}

func TestFromDecimalString(t *testing.T) {
	t.Parallel()

	v, err := FromDecimalString("1234567890123456789")
	require.NoError(t, err)
	assert.Equal(t, uint64(1234567890123456789), v)
	assert.Equal(t, "1234567890123456789", ToDecimalString(v))

	for _, in := range []string{"", "abc", "-1", "18446744073709551616"} {
		_, err := FromDecimalString(in)
		assert.ErrorIs(t, err, ErrInvalidID, in)
	}
}

func TestValidation(t *testing.T) {
	t.Parallel()

	assert.True(t, IsValidSpanID("00f067aa0ba902b7"))
	assert.False(t, IsValidSpanID("0000000000000000"))
	assert.False(t, IsValidSpanID("00F067AA0BA902B7"), "uppercase is rejected")
	assert.False(t, IsValidSpanID("00f067aa0ba902b"))

	assert.True(t, IsValidTraceID("4bf92f3577b34da6a3ce929d0e0e4736"))
	assert.False(t, IsValidTraceID(InvalidTraceIDHex))
	assert.False(t, IsValidTraceID("4bf92f3577b34da6a3ce929d0e0e473"))
	assert.False(t, IsValidTraceID("4bf92f3577b34da6a3ce929d0e0e473g"))
}

func TestSentinels(t *testing.T) {
	t.Parallel()

	assert.Equal(t, InvalidSpanIDHex, SpanIDHex(0))
	assert.Equal(t, InvalidTraceIDHex, TraceID{}.Hex())
	assert.Equal(t, InvalidTraceIDHex, TraceIDHex(TraceID{}))
	assert.False(t, IsValidSpanID(SpanIDHex(0)))
	assert.Equal(t, "0000000000000001", SpanIDHex(1))
}

func TestParseTraceID(t *testing.T) {
	t.Parallel()

	tid, err := ParseTraceID("4bf92f3577b34da6a3ce929d0e0e4736")
	require.NoError(t, err)
	assert.Equal(t, uint64(0x4bf92f3577b34da6), tid.High)
	assert.Equal(t, uint64(0xa3ce929d0e0e4736), tid.Low)
	assert.Equal(t, "4bf92f3577b34da6a3ce929d0e0e4736", tid.Hex())
	assert.Equal(t, tid, TraceIDFromBytes(tid.Bytes()))

	_, err = ParseTraceID(InvalidTraceIDHex)
	assert.ErrorIs(t, err, ErrInvalidID)
}

func TestParseSpanID(t *testing.T) {
	t.Parallel()

	id, err := ParseSpanID("00f067aa0ba902b7")
	require.NoError(t, err)
	assert.Equal(t, uint64(0x00f067aa0ba902b7), id)
	assert.Equal(t, id, SpanIDFromBytes(SpanIDBytes(id)))

	_, err = ParseSpanID(InvalidSpanIDHex)
	assert.ErrorIs(t, err, ErrInvalidID)
}

func TestNewIDs(t *testing.T) {
	t.Parallel()

	for range 1000 {
		id := NewSpanID()
		assert.NotZero(t, id)
		assert.Zero(t, id>>63, "generated ids are 63-bit")
	}

	tid := NewTraceID(true)
	assert.NotZero(t, tid.High)
	assert.NotZero(t, tid.Low)
	assert.True(t, IsValidTraceID(tid.Hex()))

	legacy := NewTraceID(false)
	assert.Zero(t, legacy.High)
	assert.True(t, IsValidTraceID(legacy.Hex()))
}

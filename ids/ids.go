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

// Package ids converts span and trace identifiers between their numeric form
// and the fixed-width lowercase hexadecimal form used by W3C trace context.
//
// Span ids are unsigned 64-bit values. Trace ids are 128 bits wide, split into
// a High and Low half; Low is the legacy 64-bit trace id carried in decimal by
// the Datadog headers.
//
// Functions that render ids for propagation never fail. A value that would
// produce an all-zero or malformed string is replaced by a sentinel
// (InvalidTraceIDHex or InvalidSpanIDHex) so that carriers stay syntactically
// valid.
package ids

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math/rand/v2"
	"strconv"
	"strings"
	"time"
)

const (
	// SpanIDWidth is the hex width of a span id.
	SpanIDWidth = 16

	// TraceIDWidth is the hex width of a trace id.
	TraceIDWidth = 32

	// InvalidSpanIDHex is the sentinel returned for unusable span ids.
	InvalidSpanIDHex = "0000000000000000"

	// InvalidTraceIDHex is the sentinel returned for unusable trace ids.
	InvalidTraceIDHex = "00000000000000000000000000000000"
)

// ErrInvalidID is returned when an identifier cannot be parsed.
var ErrInvalidID = errors.New("ids: invalid identifier")

// TraceID is a 128-bit trace identifier.
type TraceID struct {
	High uint64
	Low  uint64
}

// IsZero reports whether both halves are zero.
func (t TraceID) IsZero() bool {
	return t.High == 0 && t.Low == 0
}

// Hex returns the 32-character form, or InvalidTraceIDHex for a zero id.
func (t TraceID) Hex() string {
	if t.IsZero() {
		return InvalidTraceIDHex
	}

	return ToHex(t.High, SpanIDWidth) + ToHex(t.Low, SpanIDWidth)
}

// String implements fmt.Stringer.
func (t TraceID) String() string {
	return t.Hex()
}

// Bytes returns the big-endian byte form used by OpenTelemetry.
func (t TraceID) Bytes() [16]byte {
	var b [16]byte
	binary.BigEndian.PutUint64(b[:8], t.High)
	binary.BigEndian.PutUint64(b[8:], t.Low)

	return b
}

// TraceIDFromBytes is the inverse of TraceID.Bytes.
func TraceIDFromBytes(b [16]byte) TraceID {
	return TraceID{
		High: binary.BigEndian.Uint64(b[:8]),
		Low:  binary.BigEndian.Uint64(b[8:]),
	}
}

// SpanIDBytes returns the big-endian byte form of a span id.
func SpanIDBytes(id uint64) [8]byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], id)

	return b
}

// SpanIDFromBytes is the inverse of SpanIDBytes.
func SpanIDFromBytes(b [8]byte) uint64 {
	return binary.BigEndian.Uint64(b[:])
}

// ToHex renders id as lowercase hex, left-padded with zeros to width.
// Widths larger than 16 pad the 64-bit value on the left.
func ToHex(id uint64, width int) string {
	return fmt.Sprintf("%0*x", width, id)
}

// FromHex parses a hex id. Inputs longer than 16 characters keep the
// low 64 bits, so a 32-character trace id yields its legacy form.
func FromHex(s string) (uint64, error) {
	if s == "" || len(s) > TraceIDWidth {
		return 0, fmt.Errorf("%w: hex %q", ErrInvalidID, s)
	}
	if len(s) > SpanIDWidth {
		if !isHex(s[:len(s)-SpanIDWidth]) {
			return 0, fmt.Errorf("%w: hex %q", ErrInvalidID, s)
		}
		s = s[len(s)-SpanIDWidth:]
	}
	v, err := strconv.ParseUint(s, 16, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: hex %q", ErrInvalidID, s)
	}

	return v, nil
}

// FromDecimalString parses the native decimal representation.
func FromDecimalString(s string) (uint64, error) {
	v, err := strconv.ParseUint(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: decimal %q", ErrInvalidID, s)
	}

	return v, nil
}

// ToDecimalString renders id in the native decimal representation.
func ToDecimalString(id uint64) string {
	return strconv.FormatUint(id, 10)
}

// ParseTraceID parses a 32-character hex trace id.
func ParseTraceID(s string) (TraceID, error) {
	if !IsValidTraceID(s) {
		return TraceID{}, fmt.Errorf("%w: trace id %q", ErrInvalidID, s)
	}
	high, err := strconv.ParseUint(s[:SpanIDWidth], 16, 64)
	if err != nil {
		return TraceID{}, fmt.Errorf("%w: trace id %q", ErrInvalidID, s)
	}
	low, err := strconv.ParseUint(s[SpanIDWidth:], 16, 64)
	if err != nil {
		return TraceID{}, fmt.Errorf("%w: trace id %q", ErrInvalidID, s)
	}

	return TraceID{High: high, Low: low}, nil
}

// ParseSpanID parses a 16-character hex span id.
func ParseSpanID(s string) (uint64, error) {
	if !IsValidSpanID(s) {
		return 0, fmt.Errorf("%w: span id %q", ErrInvalidID, s)
	}

	return strconv.ParseUint(s, 16, 64)
}

// IsValidTraceID reports whether s is 32 lowercase hex characters and not all zero.
func IsValidTraceID(s string) bool {
	return len(s) == TraceIDWidth && isHex(s) && s != InvalidTraceIDHex
}

// IsValidSpanID reports whether s is 16 lowercase hex characters and not all zero.
func IsValidSpanID(s string) bool {
	return len(s) == SpanIDWidth && isHex(s) && s != InvalidSpanIDHex
}

// TraceIDHex renders a trace id, returning InvalidTraceIDHex for zero.
func TraceIDHex(t TraceID) string {
	return t.Hex()
}

// SpanIDHex renders a span id, returning InvalidSpanIDHex for zero.
func SpanIDHex(id uint64) string {
	if id == 0 {
		return InvalidSpanIDHex
	}

	return ToHex(id, SpanIDWidth)
}

func isHex(s string) bool {
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}

	return true
}

// NewSpanID returns a random non-zero 63-bit id.
func NewSpanID() uint64 {
	for {
		if id := rand.Uint64() >> 1; id != 0 {
			return id
		}
	}
}

// NewTraceID returns a random trace id. With use128 set, the high half
// carries the current unix time in seconds in its upper 32 bits.
func NewTraceID(use128 bool) TraceID {
	t := TraceID{Low: NewSpanID()}
	if use128 {
		t.High = uint64(time.Now().Unix()) << 32
	}

	return t
}

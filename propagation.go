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
	"fmt"
	"net/http"

	"go.opentelemetry.io/otel/propagation"

	"rivaas.dev/tracer/propagator"
	"rivaas.dev/tracer/span"
)

// Format names a carrier format accepted by Inject and Extract.
type Format string

const (
	// FormatTextMap accepts a propagation.TextMapCarrier or a map[string]string.
	FormatTextMap Format = "text_map"

	// FormatHTTPHeaders accepts an http.Header or a propagation.HeaderCarrier.
	FormatHTTPHeaders Format = "http_headers"
)

func carrierFor(format Format, carrier any) (propagation.TextMapCarrier, error) {
	switch format {
	case FormatTextMap:
		switch c := carrier.(type) {
		case map[string]string:
			return propagation.MapCarrier(c), nil
		case propagation.TextMapCarrier:
			return c, nil
		}
	case FormatHTTPHeaders:
		switch c := carrier.(type) {
		case http.Header:
			return propagation.HeaderCarrier(c), nil
		case propagation.HeaderCarrier:
			return c, nil
		}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}

	return nil, fmt.Errorf("%w: %T for format %q", ErrInvalidCarrier, carrier, format)
}

// Inject writes the context of rec into carrier. It does nothing when
// distributed tracing is disabled or rec is nil.
//
// Example:
//
//	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
//	if err := t.Inject(rec, tracer.FormatHTTPHeaders, req.Header); err != nil {
//	    return err
//	}
func (t *Tracer) Inject(rec *span.Record, format Format, carrier any) error {
	if rec == nil {
		_, err := carrierFor(format, carrier)
		return err
	}

	return t.InjectSpanContext(propagator.SpanContextOf(rec), format, carrier)
}

// InjectSpanContext writes sc into carrier. Invalid contexts are skipped.
func (t *Tracer) InjectSpanContext(sc propagator.SpanContext, format Format, carrier any) error {
	c, err := carrierFor(format, carrier)
	if err != nil {
		return err
	}

	enabled, err := t.distributedTracingEnabled()
	if err != nil {
		return err
	}
	if !enabled || !sc.IsValid() {
		return nil
	}

	t.propagator.Inject(sc, c)

	return nil
}

// Extract reads a remote span context from carrier. It returns nil without
// error when the carrier holds no valid context or distributed tracing is
// disabled. Pass the result to ChildOfRemote.
func (t *Tracer) Extract(format Format, carrier any) (*propagator.SpanContext, error) {
	c, err := carrierFor(format, carrier)
	if err != nil {
		return nil, err
	}

	enabled, err := t.distributedTracingEnabled()
	if err != nil {
		return nil, err
	}
	if !enabled {
		return nil, nil
	}

	sc, ok := t.propagator.Extract(c)
	if !ok {
		return nil, nil
	}

	return &sc, nil
}

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
	"bufio"
	"context"
	"fmt"
	"net"
	"net/http"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"rivaas.dev/tracer/scope"
	"rivaas.dev/tracer/span"
)

// Meta keys set by the HTTP middleware.
const (
	TagHTTPMethod     = "http.method"
	TagHTTPURL        = "http.url"
	TagHTTPStatusCode = "http.status_code"
	TagHTTPUserAgent  = "http.useragent"

	attrPrefixHeader = "http.request.header."
	attrPrefixParam  = "http.request.param."
)

// RequestSpanName is the operation name of middleware spans.
const RequestSpanName = "web.request"

// MiddlewareOption configures the HTTP middleware.
// These options are separate from Tracer options and only affect HTTP middleware behavior.
type MiddlewareOption func(*middlewareConfig)

type middlewareConfig struct {
	pathFilter       *pathFilter
	recordHeaders    []string
	recordHeadersLow []string // pre-lowercased
	recordParams     bool
	recordParamsList []string // nil = all
	excludeParams    map[string]bool
	flushOnFinish    bool
	validationErrors []error
}

func newMiddlewareConfig() *middlewareConfig {
	return &middlewareConfig{
		pathFilter:    newPathFilter(),
		recordParams:  true,
		excludeParams: make(map[string]bool),
	}
}

// validate checks the middleware configuration and returns any collected errors.
func (c *middlewareConfig) validate() error {
	if len(c.validationErrors) == 0 {
		return nil
	}

	var errMsgs []string
	for _, err := range c.validationErrors {
		errMsgs = append(errMsgs, err.Error())
	}

	return fmt.Errorf("middleware validation errors: %s", strings.Join(errMsgs, "; "))
}

// MaxExcludedPaths is the maximum number of paths that can be excluded from tracing.
const MaxExcludedPaths = 1000

// WithExcludePaths excludes specific paths from tracing.
// Excluded paths will not create spans or record any tracing data.
//
// Maximum of 1000 paths can be excluded to prevent unbounded growth.
//
// Example:
//
//	mw := tracer.MustMiddleware(t,
//	    tracer.WithExcludePaths("/health", "/metrics"),
//	)
func WithExcludePaths(paths ...string) MiddlewareOption {
	return func(c *middlewareConfig) {
		for i, path := range paths {
			if i >= MaxExcludedPaths {
				break
			}
			c.pathFilter.addPaths(path)
		}
	}
}

// WithExcludePrefixes excludes paths with the given prefixes from tracing.
func WithExcludePrefixes(prefixes ...string) MiddlewareOption {
	return func(c *middlewareConfig) {
		c.pathFilter.addPrefixes(prefixes...)
	}
}

// WithExcludePatterns excludes paths matching the given regex patterns from tracing.
// Returns a validation error if any pattern fails to compile.
//
// Example:
//
//	mw, err := tracer.Middleware(t,
//	    tracer.WithExcludePatterns(`^/v[0-9]+/internal/.*`, `^/debug/.*`),
//	)
func WithExcludePatterns(patterns ...string) MiddlewareOption {
	return func(c *middlewareConfig) {
		for _, pattern := range patterns {
			compiled, err := regexp.Compile(pattern)
			if err != nil {
				c.validationErrors = append(c.validationErrors,
					fmt.Errorf("excludePatterns: invalid regex %q: %w", pattern, err))

				continue
			}
			c.pathFilter.addPatterns(compiled)
		}
	}
}

// sensitiveHeaders contains header names that should never be recorded in traces.
var sensitiveHeaders = map[string]bool{
	"authorization":       true,
	"cookie":              true,
	"set-cookie":          true,
	"x-api-key":           true,
	"x-auth-token":        true,
	"proxy-authorization": true,
	"www-authenticate":    true,
}

// WithHeaders records specific request headers as span meta.
// Header names are case-insensitive. Recorded as 'http.request.header.{name}'.
//
// Sensitive headers (Authorization, Cookie, etc.) are never recorded.
func WithHeaders(headers ...string) MiddlewareOption {
	return func(c *middlewareConfig) {
		filtered := make([]string, 0, len(headers))
		for _, h := range headers {
			if !sensitiveHeaders[strings.ToLower(h)] {
				filtered = append(filtered, h)
			}
		}
		c.recordHeaders = filtered
		c.recordHeadersLow = make([]string, 0, len(filtered))
		for _, h := range filtered {
			c.recordHeadersLow = append(c.recordHeadersLow, strings.ToLower(h))
		}
	}
}

// WithRecordParams limits recorded URL query parameters to the given names.
// Without it every parameter is recorded unless WithoutParams is used.
func WithRecordParams(params ...string) MiddlewareOption {
	return func(c *middlewareConfig) {
		if len(params) > 0 {
			c.recordParamsList = slices.Clone(params)
			c.recordParams = true
		}
	}
}

// WithExcludeParams never records the given URL query parameters, even if
// WithRecordParams lists them.
//
// Example:
//
//	mw := tracer.MustMiddleware(t,
//	    tracer.WithExcludeParams("password", "token", "api_key"),
//	)
func WithExcludeParams(params ...string) MiddlewareOption {
	return func(c *middlewareConfig) {
		for _, param := range params {
			c.excludeParams[param] = true
		}
	}
}

// WithoutParams disables recording URL query parameters.
func WithoutParams() MiddlewareOption {
	return func(c *middlewareConfig) {
		c.recordParams = false
	}
}

// WithFlushOnFinish flushes the tracer after every traced request. Useful
// for short-lived processes and tests; long-running services should prefer
// WithFlushInterval.
func WithFlushOnFinish() MiddlewareOption {
	return func(c *middlewareConfig) {
		c.flushOnFinish = true
	}
}

// Middleware traces net/http requests. Each request gets its own scope
// manager and a root span continuing any trace found in the request headers.
// Responses with a 5xx status mark the span as failed.
//
// Example:
//
//	t := tracer.MustNew(
//	    tracer.WithServiceName("my-api"),
//	    tracer.WithAgent(""),
//	)
//
//	mw, err := tracer.Middleware(t,
//	    tracer.WithExcludePaths("/health", "/metrics"),
//	    tracer.WithHeaders("X-Request-ID"),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	http.ListenAndServe(":8080", mw(mux))
func Middleware(t *Tracer, opts ...MiddlewareOption) (func(http.Handler) http.Handler, error) {
	cfg := newMiddlewareConfig()
	for _, opt := range opts {
		opt(cfg)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !t.IsEnabled() || cfg.pathFilter.shouldExclude(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			ctx, s := t.startRequestSpan(cfg, r)
			m := t.ScopeManager(ctx)
			rw := newResponseWriter(w)

			defer func() {
				rec := s.Span()
				if p := recover(); p != nil {
					rec.SetError(fmt.Errorf("panic: %v", p))
					rec.SetMeta(TagHTTPStatusCode, strconv.Itoa(http.StatusInternalServerError))
					m.Close()
					t.finishRequest(ctx, cfg)
					panic(p)
				}

				t.finishRequestSpan(rec, rw.StatusCode())
				m.Close()
				t.finishRequest(ctx, cfg)
			}()

			next.ServeHTTP(rw, r.WithContext(ctx))
		})
	}, nil
}

// MustMiddleware is like Middleware but panics on invalid options.
func MustMiddleware(t *Tracer, opts ...MiddlewareOption) func(http.Handler) http.Handler {
	mw, err := Middleware(t, opts...)
	if err != nil {
		panic(fmt.Sprintf("tracer.Middleware: %v", err))
	}

	return mw
}

// startRequestSpan starts the root span of a request in a fresh scope
// manager carried by the returned context.
func (t *Tracer) startRequestSpan(cfg *middlewareConfig, req *http.Request) (context.Context, *scope.Scope) {
	ctx := scope.WithManager(req.Context(), scope.NewManager())

	remote, err := t.Extract(FormatHTTPHeaders, req.Header)
	if err != nil {
		t.emitWarning("Failed to extract trace context", "error", err)
	}

	s, err := t.StartActiveSpan(ctx, RequestSpanName,
		ChildOfRemote(remote),
		IgnoreActiveSpan(),
		ResourceName(req.Method+" "+req.URL.Path),
		SpanType("web"),
		WithTag(span.SpanKind, span.SpanKindServer),
	)
	if err != nil {
		// Only conflicting parents fail, and none are passed here.
		panic(err)
	}

	rec := s.Span()
	rec.SetMeta(TagHTTPMethod, req.Method)
	rec.SetMeta(TagHTTPURL, req.URL.String())
	if ua := req.UserAgent(); ua != "" {
		rec.SetMeta(TagHTTPUserAgent, ua)
	}

	for i, header := range cfg.recordHeaders {
		if value := req.Header.Get(header); value != "" {
			rec.SetMeta(attrPrefixHeader+cfg.recordHeadersLow[i], value)
		}
	}

	if cfg.recordParams && req.URL.RawQuery != "" {
		for key, values := range req.URL.Query() {
			if len(values) > 0 && shouldRecordParam(cfg, key) {
				rec.SetMeta(attrPrefixParam+key, strings.Join(values, ","))
			}
		}
	}

	return ctx, s
}

// finishRequestSpan records the response status.
func (t *Tracer) finishRequestSpan(rec *span.Record, statusCode int) {
	rec.SetMeta(TagHTTPStatusCode, strconv.Itoa(statusCode))
	if statusCode >= http.StatusInternalServerError {
		rec.SetHasError(true)
		rec.SetMeta(span.ErrorMsg, http.StatusText(statusCode))
	}
}

func (t *Tracer) finishRequest(ctx context.Context, cfg *middlewareConfig) {
	if !cfg.flushOnFinish {
		return
	}
	if err := t.Flush(ctx); err != nil {
		t.emitDebug("Flush after request failed", "error", err)
	}
}

// shouldRecordParam determines if a query parameter should be recorded.
func shouldRecordParam(cfg *middlewareConfig, param string) bool {
	if cfg.excludeParams[param] {
		return false
	}

	if cfg.recordParamsList != nil {
		return slices.Contains(cfg.recordParamsList, param)
	}

	return true
}

// responseWriter wraps http.ResponseWriter to capture status code and size.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
	size       int
	written    bool
}

func newResponseWriter(w http.ResponseWriter) *responseWriter {
	return &responseWriter{ResponseWriter: w}
}

// WriteHeader captures the status code.
func (rw *responseWriter) WriteHeader(code int) {
	if !rw.written {
		rw.statusCode = code
		rw.ResponseWriter.WriteHeader(code)
		rw.written = true
	}
}

// Write captures the response size.
func (rw *responseWriter) Write(b []byte) (int, error) {
	rw.written = true
	if rw.statusCode == 0 {
		rw.statusCode = http.StatusOK
	}
	n, err := rw.ResponseWriter.Write(b)
	rw.size += n

	return n, err
}

// StatusCode returns the HTTP status code.
func (rw *responseWriter) StatusCode() int {
	if rw.statusCode == 0 {
		return http.StatusOK
	}

	return rw.statusCode
}

// Size returns the response size in bytes.
func (rw *responseWriter) Size() int {
	return rw.size
}

// Flush implements http.Flusher.
func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Hijack implements http.Hijacker for WebSocket support.
func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := rw.ResponseWriter.(http.Hijacker); ok {
		return h.Hijack()
	}

	return nil, nil, fmt.Errorf("underlying ResponseWriter doesn't support Hijack")
}

// Unwrap returns the underlying ResponseWriter for http.ResponseController support.
func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

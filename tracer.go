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
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"rivaas.dev/tracer/ids"
	"rivaas.dev/tracer/propagator"
	"rivaas.dev/tracer/scope"
	"rivaas.dev/tracer/span"
	"rivaas.dev/tracer/transport"
)

// EventType represents the severity of an internal operational event.
type EventType int

const (
	// EventError indicates an error event (e.g., failed to flush traces).
	EventError EventType = iota
	// EventWarning indicates a warning event (e.g., a trace over the size cap).
	EventWarning
	// EventInfo indicates an informational event (e.g., tracer initialized).
	EventInfo
	// EventDebug indicates a debug event (e.g., detailed operation logs).
	EventDebug
)

// Event represents an internal operational event from the tracer.
type Event struct {
	Type    EventType
	Message string
	Args    []any // slog-style key-value pairs
}

// EventHandler processes internal operational events from the tracer.
//
// Example custom handler:
//
//	tracer.WithEventHandler(func(e tracer.Event) {
//	    if e.Type == tracer.EventError {
//	        sentry.CaptureMessage(e.Message)
//	    }
//	    slog.Default().Info(e.Message, e.Args...)
//	})
type EventHandler func(Event)

// DefaultEventHandler returns an EventHandler that logs events to the provided slog.Logger.
// If logger is nil, returns a no-op handler that discards all events.
func DefaultEventHandler(logger *slog.Logger) EventHandler {
	if logger == nil {
		return func(Event) {}
	}

	return func(e Event) {
		switch e.Type {
		case EventError:
			logger.Error(e.Message, e.Args...)
		case EventWarning:
			logger.Warn(e.Message, e.Args...)
		case EventInfo:
			logger.Info(e.Message, e.Args...)
		case EventDebug:
			logger.Debug(e.Message, e.Args...)
		}
	}
}

const (
	// DefaultServiceName is used when no service name is configured.
	DefaultServiceName = "rivaas-service"

	// DefaultTraceMaxSize caps the number of buffered spans per trace.
	DefaultTraceMaxSize = 100_000

	// Language is reported on local root spans.
	Language = "go"
)

// Provider names the backend a Tracer sends traces to.
type Provider string

const (
	// NoopProvider discards traces (default).
	NoopProvider Provider = "noop"

	// StdoutProvider prints traces to stdout (development/testing).
	StdoutProvider Provider = "stdout"

	// OTLPProvider exports traces via OTLP gRPC.
	OTLPProvider Provider = "otlp"

	// OTLPHTTPProvider exports traces via OTLP HTTP.
	OTLPHTTPProvider Provider = "otlp-http"

	// AgentProvider sends msgpack payloads to a trace agent.
	AgentProvider Provider = "agent"

	// CustomProvider uses a caller-supplied transport.
	CustomProvider Provider = "custom"
)

// Sentinel errors.
var (
	// ErrUnsupportedFormat is returned by Inject and Extract for unknown formats.
	ErrUnsupportedFormat = errors.New("tracer: unsupported format")

	// ErrInvalidCarrier is returned when a carrier does not match its format.
	ErrInvalidCarrier = errors.New("tracer: invalid carrier")

	// ErrConflictingParents is returned when a span is given both a local
	// and a remote parent.
	ErrConflictingParents = errors.New("tracer: both ChildOf and ChildOfRemote given")

	// ErrNotStarted is returned by Flush before Start for providers that
	// need network setup.
	ErrNotStarted = errors.New("tracer: not started; call Start(ctx)")
)

// FlushHook observes every flushed batch after it was handed to the
// transport.
type FlushHook func(traces []transport.Trace)

// Tracer creates native spans, buffers them once finished and flushes them
// to a transport. All methods are safe for concurrent use.
//
// Configuration is fixed after New; see the With* options.
type Tracer struct {
	serviceName    string
	serviceVersion string
	env            string
	globalTags     map[string]string

	provider        Provider
	providerSet     bool
	otlpEndpoint    string
	otlpInsecure    bool
	agentURL        string
	customTransport bool

	sampler    sdktrace.Sampler
	styles     []propagator.Style
	propagator *propagator.Propagator
	scopes     *scope.Manager
	flags      Flags

	mu           sync.Mutex
	transport    transport.Transport
	buffer       map[ids.TraceID][]*span.Record
	order        []ids.TraceID
	traceMaxSize int
	flushHooks   []FlushHook

	eventHandler  EventHandler
	meterProvider metric.MeterProvider
	meter         metric.Meter
	instruments   *instruments

	flushInterval time.Duration
	startMu       sync.Mutex
	stopFlush     chan struct{}
	flushDone     chan struct{}
	started       atomic.Bool

	runtimeID string

	shutdownOnce sync.Once
	shutdownErr  error

	enabled            bool
	distributedTracing bool
	traceID128         bool

	validationErrors []error
}

// New creates a Tracer with the given options.
// For a version that panics on error, use MustNew.
//
// Default configuration:
//   - Service name: DefaultServiceName
//   - Provider: NoopProvider
//   - Sampler: parent-based, always sample
//   - Propagation: Datadog and W3C trace context
//   - 128-bit trace ids and distributed tracing enabled
//
// OTLP providers need network setup; call Start before the first flush.
//
// Example:
//
//	t, err := tracer.New(
//	    tracer.WithServiceName("my-api"),
//	    tracer.WithAgent("http://localhost:8126"),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer t.Shutdown(context.Background())
func New(opts ...Option) (*Tracer, error) {
	t := newDefaultTracer()

	for _, opt := range opts {
		opt(t)
	}

	if err := t.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	if err := t.initInstruments(); err != nil {
		return nil, fmt.Errorf("failed to initialize tracer metrics: %w", err)
	}

	if !t.requiresContext() {
		if err := t.initializeProvider(); err != nil {
			return nil, fmt.Errorf("failed to initialize tracer: %w", err)
		}
		t.started.Store(true)
		t.startFlushLoop()
	}

	return t, nil
}

// MustNew is like New but panics on error.
func MustNew(opts ...Option) *Tracer {
	t, err := New(opts...)
	if err != nil {
		panic(fmt.Sprintf("Failed to initialize tracer: %v", err))
	}

	return t
}

func newDefaultTracer() *Tracer {
	return &Tracer{
		serviceName:        DefaultServiceName,
		globalTags:         make(map[string]string),
		provider:           NoopProvider,
		sampler:            sdktrace.ParentBased(sdktrace.AlwaysSample()),
		styles:             propagator.DefaultStyles,
		scopes:             scope.NewManager(),
		buffer:             make(map[ids.TraceID][]*span.Record),
		traceMaxSize:       DefaultTraceMaxSize,
		eventHandler:       func(Event) {},
		meterProvider:      noop.NewMeterProvider(),
		runtimeID:          uuid.NewString(),
		enabled:            true,
		distributedTracing: true,
		traceID128:         true,
	}
}

// validate checks the configuration and returns any collected errors.
func (t *Tracer) validate() error {
	if len(t.validationErrors) > 0 {
		var errMsgs []string
		for _, err := range t.validationErrors {
			errMsgs = append(errMsgs, err.Error())
		}

		return fmt.Errorf("validation errors: %s", strings.Join(errMsgs, "; "))
	}

	if t.serviceName == "" {
		return errors.New("service name cannot be empty")
	}

	if t.traceMaxSize <= 0 {
		return fmt.Errorf("trace max size must be positive, got %d", t.traceMaxSize)
	}

	switch t.provider {
	case NoopProvider, StdoutProvider, AgentProvider, CustomProvider:
	case OTLPProvider:
		if t.otlpEndpoint == "" {
			t.emitWarning("OTLP endpoint not specified, will use default", "default", "localhost:4317")
			t.otlpEndpoint = "localhost:4317"
		}
	case OTLPHTTPProvider:
		if t.otlpEndpoint == "" {
			t.emitWarning("OTLP HTTP endpoint not specified, will use default", "default", "localhost:4318")
			t.otlpEndpoint = "localhost:4318"
		}
	default:
		return fmt.Errorf("unsupported tracing provider: %s", t.provider)
	}

	t.propagator = propagator.New(t.styles...)

	return nil
}

// Start initializes providers that need network setup (OTLP) and starts the
// background flush loop, if configured. For other providers it does
// nothing. Calling Start more than once is harmless.
func (t *Tracer) Start(ctx context.Context) error {
	t.startMu.Lock()
	defer t.startMu.Unlock()

	if t.started.Load() {
		return nil
	}

	if err := t.initializeProviderWithContext(ctx); err != nil {
		return fmt.Errorf("failed to start tracer: %w", err)
	}
	t.started.Store(true)
	t.startFlushLoop()

	return nil
}

// Shutdown stops the flush loop, flushes buffered traces and releases the
// transport. It runs once; later calls return the first result.
//
// Example:
//
//	defer func() {
//	    ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
//	    defer cancel()
//	    if err := t.Shutdown(ctx); err != nil {
//	        log.Printf("Error shutting down tracer: %v", err)
//	    }
//	}()
func (t *Tracer) Shutdown(ctx context.Context) error {
	t.shutdownOnce.Do(func() {
		t.startMu.Lock()
		stop, done := t.stopFlush, t.flushDone
		t.startMu.Unlock()
		if stop != nil {
			close(stop)
			<-done
		}

		var errs []error
		if err := t.Flush(ctx); err != nil && !errors.Is(err, ErrNotStarted) {
			errs = append(errs, err)
		}

		t.mu.Lock()
		tr := t.transport
		t.mu.Unlock()

		if s, ok := tr.(transport.Shutdowner); ok && !t.customTransport {
			t.emitDebug("Shutting down transport", "provider", t.provider)
			if err := s.Shutdown(ctx); err != nil {
				t.emitError("Error shutting down transport", "error", err)
				errs = append(errs, fmt.Errorf("transport shutdown: %w", err))
			}
		}

		t.shutdownErr = errors.Join(errs...)
	})

	return t.shutdownErr
}

// IsEnabled reports whether finished spans are recorded.
func (t *Tracer) IsEnabled() bool {
	return t.enabled
}

// ServiceName returns the service name. A non-empty FlagServiceName from
// the configured Flags takes precedence.
func (t *Tracer) ServiceName() string {
	if t.flags != nil {
		if s := t.flags.String(FlagServiceName); s != "" {
			return s
		}
	}

	return t.serviceName
}

// ServiceVersion returns the service version.
func (t *Tracer) ServiceVersion() string {
	return t.serviceVersion
}

// Env returns the deployment environment.
func (t *Tracer) Env() string {
	return t.env
}

// GetProvider returns the configured provider.
func (t *Tracer) GetProvider() Provider {
	return t.provider
}

// Sampler returns the sampler used for new traces.
func (t *Tracer) Sampler() sdktrace.Sampler {
	return t.sampler
}

// Propagator returns the header codec.
func (t *Tracer) Propagator() *propagator.Propagator {
	return t.propagator
}

// Meter returns the meter used for tracer self-metrics.
func (t *Tracer) Meter() metric.Meter {
	return t.meter
}

// RuntimeID identifies this tracer instance.
func (t *Tracer) RuntimeID() string {
	return t.runtimeID
}

// Transport returns the active transport, or nil before Start for providers
// that need it.
func (t *Tracer) Transport() transport.Transport {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.transport
}

// emitError emits an error event.
func (t *Tracer) emitError(msg string, args ...any) {
	if t.eventHandler != nil {
		t.eventHandler(Event{Type: EventError, Message: msg, Args: args})
	}
}

// emitWarning emits a warning event.
func (t *Tracer) emitWarning(msg string, args ...any) {
	if t.eventHandler != nil {
		t.eventHandler(Event{Type: EventWarning, Message: msg, Args: args})
	}
}

// emitInfo emits an info event.
func (t *Tracer) emitInfo(msg string, args ...any) {
	if t.eventHandler != nil {
		t.eventHandler(Event{Type: EventInfo, Message: msg, Args: args})
	}
}

// emitDebug emits a debug event.
func (t *Tracer) emitDebug(msg string, args ...any) {
	if t.eventHandler != nil {
		t.eventHandler(Event{Type: EventDebug, Message: msg, Args: args})
	}
}

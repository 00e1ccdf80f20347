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
	"log/slog"
	"maps"
	"time"

	"go.opentelemetry.io/otel/metric"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"rivaas.dev/tracer/propagator"
	"rivaas.dev/tracer/transport"
)

// Option defines functional options for Tracer configuration.
// Options are applied during Tracer creation via New().
type Option func(*Tracer)

// WithServiceName sets the service name reported on every span.
//
// Example:
//
//	t := tracer.MustNew(tracer.WithServiceName("my-api"))
func WithServiceName(name string) Option {
	return func(t *Tracer) {
		t.serviceName = name
	}
}

// WithServiceVersion sets the version tag on every span.
func WithServiceVersion(version string) Option {
	return func(t *Tracer) {
		t.serviceVersion = version
	}
}

// WithEnv sets the deployment environment tag on every span.
func WithEnv(env string) Option {
	return func(t *Tracer) {
		t.env = env
	}
}

// WithGlobalTag adds a tag set on every span.
func WithGlobalTag(key, value string) Option {
	return func(t *Tracer) {
		t.globalTags[key] = value
	}
}

// WithGlobalTags adds several global tags at once.
func WithGlobalTags(tags map[string]string) Option {
	return func(t *Tracer) {
		maps.Copy(t.globalTags, tags)
	}
}

// WithSampler sets the sampler consulted for new traces. Its decision
// becomes the sampling priority of the trace.
//
// Example:
//
//	t := tracer.MustNew(tracer.WithSampler(sdktrace.TraceIDRatioBased(0.1)))
func WithSampler(s sdktrace.Sampler) Option {
	return func(t *Tracer) {
		if s == nil {
			t.validationErrors = append(t.validationErrors, fmt.Errorf("sampler: cannot be nil"))
			return
		}
		t.sampler = s
	}
}

// WithPropagationStyles sets the header styles used by Inject and Extract,
// in precedence order.
func WithPropagationStyles(styles ...propagator.Style) Option {
	return func(t *Tracer) {
		if len(styles) == 0 {
			t.validationErrors = append(t.validationErrors, fmt.Errorf("propagation: at least one style required"))
			return
		}
		t.styles = styles
	}
}

// WithDistributedTracing turns header injection and extraction on or off.
func WithDistributedTracing(enabled bool) Option {
	return func(t *Tracer) {
		t.distributedTracing = enabled
	}
}

// WithTraceID128 turns 128-bit trace id generation on or off.
func WithTraceID128(enabled bool) Option {
	return func(t *Tracer) {
		t.traceID128 = enabled
	}
}

// WithEnabled turns recording on or off. A disabled tracer still creates
// spans but never buffers or sends them.
func WithEnabled(enabled bool) Option {
	return func(t *Tracer) {
		t.enabled = enabled
	}
}

// WithFlushInterval flushes buffered traces in the background every d.
// Zero disables the loop; Flush must then be called explicitly.
func WithFlushInterval(d time.Duration) Option {
	return func(t *Tracer) {
		if d < 0 {
			t.validationErrors = append(t.validationErrors, fmt.Errorf("flush interval: must not be negative, got %s", d))
			return
		}
		t.flushInterval = d
	}
}

// WithTraceMaxSize caps the number of buffered spans per trace. Spans over
// the cap are dropped.
func WithTraceMaxSize(n int) Option {
	return func(t *Tracer) {
		t.traceMaxSize = n
	}
}

// WithMeterProvider sets the meter provider for tracer self-metrics.
// The default is a no-op provider.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(t *Tracer) {
		if mp != nil {
			t.meterProvider = mp
		}
	}
}

// WithEventHandler sets a custom event handler for internal operational events.
//
// Example:
//
//	tracer.New(tracer.WithEventHandler(func(e tracer.Event) {
//	    if e.Type == tracer.EventError {
//	        sentry.CaptureMessage(e.Message)
//	    }
//	}))
func WithEventHandler(handler EventHandler) Option {
	return func(t *Tracer) {
		t.eventHandler = handler
	}
}

// WithLogger sets the logger for internal operational events using the default event handler.
//
// Example:
//
//	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
//	tracer.New(tracer.WithLogger(logger))
func WithLogger(logger *slog.Logger) Option {
	return WithEventHandler(DefaultEventHandler(logger))
}

// WithFlags sets the configuration collaborator consulted at span creation
// and propagation time. See FlagDistributedTracing and FlagServiceName.
func WithFlags(f Flags) Option {
	return func(t *Tracer) {
		t.flags = f
	}
}

// OTLPOption configures OTLP provider behavior.
type OTLPOption func(*otlpConfig)

type otlpConfig struct {
	insecure bool
}

// OTLPInsecure enables insecure gRPC for OTLP.
// Default is false (uses TLS). Set to true for local development.
func OTLPInsecure() OTLPOption {
	return func(c *otlpConfig) {
		c.insecure = true
	}
}

// setProvider records p as the provider, or a validation error when one is
// already configured.
func (t *Tracer) setProvider(p Provider) bool {
	if t.providerSet {
		t.validationErrors = append(t.validationErrors,
			fmt.Errorf("provider: multiple providers configured (already have %q, cannot add %q); only one provider allowed", t.provider, p))

		return false
	}
	t.provider = p
	t.providerSet = true

	return true
}

// WithOTLP configures OTLP gRPC provider with endpoint.
// Endpoint format: "host:port" (e.g., "localhost:4317")
//
// Only one provider can be configured. Configuring multiple providers
// (e.g., WithOTLP and WithStdout) will result in a validation error.
//
// Example:
//
//	t := tracer.MustNew(tracer.WithOTLP("localhost:4317", tracer.OTLPInsecure()))
//	if err := t.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
func WithOTLP(endpoint string, opts ...OTLPOption) Option {
	return func(t *Tracer) {
		if !t.setProvider(OTLPProvider) {
			return
		}
		t.otlpEndpoint = endpoint
		cfg := &otlpConfig{}
		for _, opt := range opts {
			opt(cfg)
		}
		t.otlpInsecure = cfg.insecure
	}
}

// WithOTLPHTTP configures OTLP HTTP provider with endpoint.
// Endpoint format: "http://host:port" (e.g., "http://localhost:4318")
func WithOTLPHTTP(endpoint string) Option {
	return func(t *Tracer) {
		if !t.setProvider(OTLPHTTPProvider) {
			return
		}
		t.otlpEndpoint = endpoint
	}
}

// WithStdout configures stdout provider for development/debugging.
func WithStdout() Option {
	return func(t *Tracer) {
		t.setProvider(StdoutProvider)
	}
}

// WithNoop configures noop provider (default, no traces exported).
func WithNoop() Option {
	return func(t *Tracer) {
		t.setProvider(NoopProvider)
	}
}

// WithAgent sends traces to a trace agent at url. An empty url uses
// transport.DefaultAgentURL.
//
// Example:
//
//	t := tracer.MustNew(tracer.WithAgent("http://datadog-agent:8126"))
func WithAgent(url string) Option {
	return func(t *Tracer) {
		if !t.setProvider(AgentProvider) {
			return
		}
		t.agentURL = url
	}
}

// WithTransport sends traces through a caller-supplied transport. The
// tracer does not shut it down.
func WithTransport(tr transport.Transport) Option {
	return func(t *Tracer) {
		if tr == nil {
			t.validationErrors = append(t.validationErrors, fmt.Errorf("transport: cannot be nil"))
			return
		}
		if !t.setProvider(CustomProvider) {
			return
		}
		t.transport = tr
		t.customTransport = true
	}
}

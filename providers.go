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

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/sdk/resource"

	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"

	"rivaas.dev/tracer/transport"
)

// requiresContext reports whether the provider needs Start(ctx).
func (t *Tracer) requiresContext() bool {
	return t.provider == OTLPProvider || t.provider == OTLPHTTPProvider
}

// initializeProvider sets up transports that don't require network connections.
func (t *Tracer) initializeProvider() error {
	switch t.provider {
	case NoopProvider:
		t.setTransport(transport.Noop{})
	case CustomProvider:
		t.emitDebug("Using custom user-provided transport")
	case AgentProvider:
		t.setTransport(transport.NewAgent(t.agentURL))
		t.emitInfo("Tracer initialized", "provider", "agent", "url", t.agentURL, "service", t.serviceName)
	case StdoutProvider:
		exp, err := transport.NewStdoutExporter(createResource(t.serviceName, t.serviceVersion, t.env))
		if err != nil {
			return err
		}
		t.setTransport(exp)
		t.emitInfo("Tracer initialized", "provider", "stdout", "service", t.serviceName)
	case OTLPProvider, OTLPHTTPProvider:
		return errors.New("OTLP providers require context; use Start(ctx)")
	default:
		return fmt.Errorf("unsupported tracing provider: %s", t.provider)
	}

	return nil
}

// initializeProviderWithContext sets up OTLP exporters. The context is used
// for connection establishment.
func (t *Tracer) initializeProviderWithContext(ctx context.Context) error {
	res := createResource(t.serviceName, t.serviceVersion, t.env)

	switch t.provider {
	case OTLPProvider:
		exp, err := transport.NewOTLPExporter(ctx, res, t.otlpEndpoint, t.otlpInsecure)
		if err != nil {
			return err
		}
		t.setTransport(exp)
	case OTLPHTTPProvider:
		exp, err := transport.NewOTLPHTTPExporter(ctx, res, t.otlpEndpoint)
		if err != nil {
			return err
		}
		t.setTransport(exp)
	default:
		return fmt.Errorf("provider %s does not require context initialization", t.provider)
	}

	t.emitInfo("Tracer initialized", "provider", t.provider, "endpoint", t.otlpEndpoint, "service", t.serviceName)

	return nil
}

func (t *Tracer) setTransport(tr transport.Transport) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.transport = tr
}

// createResource creates an OpenTelemetry resource with service information.
func createResource(serviceName, serviceVersion, env string) *resource.Resource {
	attrs := []attribute.KeyValue{semconv.ServiceName(serviceName)}
	if serviceVersion != "" {
		attrs = append(attrs, semconv.ServiceVersion(serviceVersion))
	}
	if env != "" {
		attrs = append(attrs, semconv.DeploymentEnvironment(env))
	}

	return resource.NewWithAttributes(semconv.SchemaURL, attrs...)
}

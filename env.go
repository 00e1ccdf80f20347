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
	"maps"
	"time"

	"github.com/kelseyhightower/envconfig"

	"rivaas.dev/tracer/propagator"
)

// EnvConfig is the tracer configuration read from the environment.
type EnvConfig struct {
	Service string            `envconfig:"DD_SERVICE"`
	Version string            `envconfig:"DD_VERSION"`
	Env     string            `envconfig:"DD_ENV"`
	Tags    map[string]string `envconfig:"DD_TAGS"`

	Enabled            bool   `envconfig:"DD_TRACE_ENABLED" default:"true"`
	DistributedTracing bool   `envconfig:"DD_DISTRIBUTED_TRACING" default:"true"`
	PropagationStyle   string `envconfig:"DD_TRACE_PROPAGATION_STYLE"`
	AgentURL           string `envconfig:"DD_TRACE_AGENT_URL"`
	TraceID128         bool   `envconfig:"DD_TRACE_128_BIT_TRACEID_GENERATION_ENABLED" default:"true"`

	FlushInterval time.Duration `envconfig:"DD_TRACE_FLUSH_INTERVAL"`
}

// LoadEnv reads EnvConfig from the process environment. Malformed values
// are reported as errors.
func LoadEnv() (EnvConfig, error) {
	var cfg EnvConfig
	if err := envconfig.Process("", &cfg); err != nil {
		return EnvConfig{}, fmt.Errorf("env: %w", err)
	}

	return cfg, nil
}

// FromEnv applies the environment configuration. Options given after
// FromEnv override it. DD_TRACE_AGENT_URL selects the agent provider unless
// a provider was already configured.
//
// Example:
//
//	t := tracer.MustNew(tracer.FromEnv(), tracer.WithLogger(slog.Default()))
func FromEnv() Option {
	return func(t *Tracer) {
		cfg, err := LoadEnv()
		if err != nil {
			t.validationErrors = append(t.validationErrors, err)
			return
		}
		cfg.apply(t)
	}
}

func (cfg EnvConfig) apply(t *Tracer) {
	if cfg.Service != "" {
		t.serviceName = cfg.Service
	}
	if cfg.Version != "" {
		t.serviceVersion = cfg.Version
	}
	if cfg.Env != "" {
		t.env = cfg.Env
	}
	maps.Copy(t.globalTags, cfg.Tags)

	t.enabled = cfg.Enabled
	t.distributedTracing = cfg.DistributedTracing
	t.traceID128 = cfg.TraceID128

	if cfg.PropagationStyle != "" {
		styles, err := propagator.ParseStyles(cfg.PropagationStyle)
		if err != nil {
			t.emitWarning("Ignoring unknown propagation styles", "value", cfg.PropagationStyle, "error", err)
		}
		if len(styles) > 0 {
			t.styles = styles
		}
	}

	if cfg.AgentURL != "" && !t.providerSet {
		t.setProvider(AgentProvider)
		t.agentURL = cfg.AgentURL
	}

	if cfg.FlushInterval > 0 {
		t.flushInterval = cfg.FlushInterval
	}
}

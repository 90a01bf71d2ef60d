// Copyright 2025 Arcade Team
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package metrics

import (
	"time"

	"github.com/google/wire"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// ProviderSet is the Wire provider set for the metrics package.
var ProviderSet = wire.NewSet(ProvideRegistry, ProvideEngineMetrics)

// MetricsConfig holds metrics configuration.
type MetricsConfig struct {
	Enable    bool
	Namespace string
}

// SetDefaults fills unset fields.
func (c *MetricsConfig) SetDefaults() {
	if c.Namespace == "" {
		c.Namespace = "guild"
	}
}

// ProvideRegistry returns a registry with the default process collectors.
func ProvideRegistry(conf MetricsConfig) *prometheus.Registry {
	registry := prometheus.NewRegistry()
	if conf.Enable {
		registry.MustRegister(collectors.NewGoCollector())
		registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	}
	return registry
}

// ProvideEngineMetrics registers the engine collectors when metrics are enabled.
func ProvideEngineMetrics(conf MetricsConfig, registry *prometheus.Registry) *EngineMetrics {
	if !conf.Enable {
		return NewEngineMetrics(conf.Namespace, nil)
	}
	return NewEngineMetrics(conf.Namespace, registry)
}

// EngineMetrics groups the authorization and mutation collectors.
// A nil *EngineMetrics is valid and records nothing.
type EngineMetrics struct {
	decisions        *prometheus.CounterVec
	mutations        *prometheus.CounterVec
	mutationDuration *prometheus.HistogramVec
}

// NewEngineMetrics creates the collectors and registers them on reg when reg is not nil.
func NewEngineMetrics(namespace string, reg prometheus.Registerer) *EngineMetrics {
	m := &EngineMetrics{
		decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "policy_decisions_total",
			Help:      "Authorization decisions by record kind, operation and result.",
		}, []string{"kind", "op", "result"}),
		mutations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "mutations_total",
			Help:      "Mutations by record kind, operation and result code.",
		}, []string{"kind", "op", "result"}),
		mutationDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "mutation_duration_seconds",
			Help:      "Time spent evaluating and committing a mutation.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"kind", "op"}),
	}
	if reg != nil {
		reg.MustRegister(m.decisions, m.mutations, m.mutationDuration)
	}
	return m
}

// ObserveDecision counts one authorization decision.
func (m *EngineMetrics) ObserveDecision(kind, op, result string) {
	if m == nil {
		return
	}
	m.decisions.WithLabelValues(kind, op, result).Inc()
}

// ObserveMutation counts one mutation and records its duration.
func (m *EngineMetrics) ObserveMutation(kind, op, result string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.mutations.WithLabelValues(kind, op, result).Inc()
	m.mutationDuration.WithLabelValues(kind, op).Observe(elapsed.Seconds())
}

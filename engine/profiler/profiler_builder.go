package profiler

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// ProfilerBuilderOption is a functional option for configuring a Profiler during construction.
type ProfilerBuilderOption func(*Profiler)

// WithLogger sets the logger the runtime summary is written to.
//
// Parameters:
//   - logger: the zap logger
//
// Returns:
//   - ProfilerBuilderOption: functional option to set the logger
func WithLogger(logger *zap.Logger) ProfilerBuilderOption {
	return func(p *Profiler) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithRegisterer registers the collectors on reg.
//
// Parameters:
//   - reg: the Prometheus registerer
//
// Returns:
//   - ProfilerBuilderOption: functional option to set the registerer
func WithRegisterer(reg prometheus.Registerer) ProfilerBuilderOption {
	return func(p *Profiler) {
		p.registerer = reg
	}
}

// WithNamespace sets the metric namespace. Defaults to "oxypipe".
//
// Parameters:
//   - namespace: the namespace
//
// Returns:
//   - ProfilerBuilderOption: functional option to set the namespace
func WithNamespace(namespace string) ProfilerBuilderOption {
	return func(p *Profiler) {
		p.namespace = namespace
	}
}

// WithUpdateInterval sets how often Tick logs the runtime summary.
//
// Parameters:
//   - d: the interval
//
// Returns:
//   - ProfilerBuilderOption: functional option to set the interval
func WithUpdateInterval(d time.Duration) ProfilerBuilderOption {
	return func(p *Profiler) {
		if d > 0 {
			p.updateInterval = d
		}
	}
}

package exporter

import (
	"github.com/Carmen-Shannon/oxypipe/engine/asset"
	"github.com/Carmen-Shannon/oxypipe/engine/profiler"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// ExporterBuilderOption is a functional option for configuring an Exporter during construction.
type ExporterBuilderOption func(*exporter)

// WithLogger sets the logger used by the exporter.
//
// Parameters:
//   - logger: the zap logger
//
// Returns:
//   - ExporterBuilderOption: functional option to set the logger
func WithLogger(logger *zap.Logger) ExporterBuilderOption {
	return func(e *exporter) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithExporters replaces the built-in writer registrations.
//
// Parameters:
//   - exporters: the registrations, in lookup order
//
// Returns:
//   - ExporterBuilderOption: functional option to set the registrations
func WithExporters(exporters ...*asset.Exporter) ExporterBuilderOption {
	return func(e *exporter) {
		e.exporters = append(e.exporters[:0:0], exporters...)
		e.customExporters = true
	}
}

// WithProfiler records export counts on p.
//
// Parameters:
//   - p: the profiler
//
// Returns:
//   - ExporterBuilderOption: functional option to set the profiler
func WithProfiler(p *profiler.Profiler) ExporterBuilderOption {
	return func(e *exporter) {
		e.profiler = p
	}
}

// WithTracer sets the tracer exports are recorded with.
//
// Parameters:
//   - tracer: the OpenTelemetry tracer
//
// Returns:
//   - ExporterBuilderOption: functional option to set the tracer
func WithTracer(tracer trace.Tracer) ExporterBuilderOption {
	return func(e *exporter) {
		if tracer != nil {
			e.tracer = tracer
		}
	}
}

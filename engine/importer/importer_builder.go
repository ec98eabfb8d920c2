package importer

import (
	"net/http"

	"github.com/Carmen-Shannon/oxypipe/engine/asset"
	"github.com/Carmen-Shannon/oxypipe/engine/profiler"
	"github.com/Carmen-Shannon/oxypipe/engine/storage"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// ImporterBuilderOption is a functional option for configuring an Importer during construction.
type ImporterBuilderOption func(*importer)

// WithLogger sets the logger used by the importer.
//
// Parameters:
//   - logger: the zap logger
//
// Returns:
//   - ImporterBuilderOption: functional option to set the logger
func WithLogger(logger *zap.Logger) ImporterBuilderOption {
	return func(i *importer) {
		if logger != nil {
			i.logger = logger
		}
	}
}

// WithImporters replaces the default importer registrations.
//
// Parameters:
//   - importers: the registrations, in lookup order
//
// Returns:
//   - ImporterBuilderOption: functional option to set the registrations
func WithImporters(importers ...*asset.Importer) ImporterBuilderOption {
	return func(i *importer) {
		i.importers = append(i.importers[:0:0], importers...)
		i.customImporters = true
	}
}

// WithStorage caches HTTP downloads in s.
//
// Parameters:
//   - s: the download cache
//
// Returns:
//   - ImporterBuilderOption: functional option to set the download cache
func WithStorage(s storage.Storage) ImporterBuilderOption {
	return func(i *importer) {
		i.storage = s
	}
}

// WithCacheImportedAssets toggles keeping imported results in memory for reuse. Defaults to true.
//
// Parameters:
//   - enabled: whether results are cached
//
// Returns:
//   - ImporterBuilderOption: functional option to toggle the asset cache
func WithCacheImportedAssets(enabled bool) ImporterBuilderOption {
	return func(i *importer) {
		i.cacheImportedAssets = enabled
	}
}

// WithHTTPClient sets the client used for HTTP(S) downloads.
//
// Parameters:
//   - client: the HTTP client
//
// Returns:
//   - ImporterBuilderOption: functional option to set the client
func WithHTTPClient(client *http.Client) ImporterBuilderOption {
	return func(i *importer) {
		if client != nil {
			i.httpClient = client
		}
	}
}

// WithBlobStore sets the store issuing object URLs for registered files.
//
// Parameters:
//   - store: the blob store
//
// Returns:
//   - ImporterBuilderOption: functional option to set the blob store
func WithBlobStore(store BlobStore) ImporterBuilderOption {
	return func(i *importer) {
		i.blobs = store
	}
}

// WithProfiler records import metrics on p.
//
// Parameters:
//   - p: the profiler
//
// Returns:
//   - ImporterBuilderOption: functional option to set the profiler
func WithProfiler(p *profiler.Profiler) ImporterBuilderOption {
	return func(i *importer) {
		i.profiler = p
	}
}

// WithTracer sets the tracer used for import spans.
//
// Parameters:
//   - tracer: the OpenTelemetry tracer
//
// Returns:
//   - ImporterBuilderOption: functional option to set the tracer
func WithTracer(tracer trace.Tracer) ImporterBuilderOption {
	return func(i *importer) {
		if tracer != nil {
			i.tracer = tracer
		}
	}
}

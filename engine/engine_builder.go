package engine

import (
	"github.com/Carmen-Shannon/oxypipe/engine/exporter"
	"github.com/Carmen-Shannon/oxypipe/engine/importer"
	"github.com/Carmen-Shannon/oxypipe/engine/loader"
	"github.com/Carmen-Shannon/oxypipe/engine/material"
	"github.com/Carmen-Shannon/oxypipe/engine/profiler"
	"github.com/Carmen-Shannon/oxypipe/engine/reference"
	"github.com/Carmen-Shannon/oxypipe/engine/scene"
	"github.com/Carmen-Shannon/oxypipe/engine/storage"

	"go.uber.org/zap"
)

// AssetManagerBuilderOption is a functional option for configuring an AssetManager.
// Use the With* functions to create options that are applied directly to the manager instance.
type AssetManagerBuilderOption func(*assetManager)

// WithLogger sets the logger used by the manager and by the components it creates.
//
// Parameters:
//   - logger: the zap logger
//
// Returns:
//   - AssetManagerBuilderOption: option function to apply
func WithLogger(logger *zap.Logger) AssetManagerBuilderOption {
	return func(m *assetManager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithImporter sets a preconfigured importer instead of the default one.
//
// Parameters:
//   - imp: the importer
//
// Returns:
//   - AssetManagerBuilderOption: option function to apply
func WithImporter(imp importer.Importer) AssetManagerBuilderOption {
	return func(m *assetManager) {
		m.importer = imp
	}
}

// WithExporter sets a preconfigured exporter instead of the default one.
//
// Parameters:
//   - exp: the exporter
//
// Returns:
//   - AssetManagerBuilderOption: option function to apply
func WithExporter(exp exporter.Exporter) AssetManagerBuilderOption {
	return func(m *assetManager) {
		m.exporter = exp
	}
}

// WithMaterials sets the material manager. It should share the manager's texture references.
//
// Parameters:
//   - materials: the material manager
//
// Returns:
//   - AssetManagerBuilderOption: option function to apply
func WithMaterials(materials material.Manager) AssetManagerBuilderOption {
	return func(m *assetManager) {
		m.materials = materials
	}
}

// WithReferences sets the texture reference manager handed to the default material manager.
//
// Parameters:
//   - refs: the reference manager
//
// Returns:
//   - AssetManagerBuilderOption: option function to apply
func WithReferences(refs reference.Manager) AssetManagerBuilderOption {
	return func(m *assetManager) {
		m.references = refs
	}
}

// WithScene sets the scene imported assets are added to.
//
// Parameters:
//   - s: the scene
//
// Returns:
//   - AssetManagerBuilderOption: option function to apply
func WithScene(s scene.Scene) AssetManagerBuilderOption {
	return func(m *assetManager) {
		m.scene = s
	}
}

// WithStorage sets the download cache of the default importer.
//
// Parameters:
//   - s: the storage
//
// Returns:
//   - AssetManagerBuilderOption: option function to apply
func WithStorage(s storage.Storage) AssetManagerBuilderOption {
	return func(m *assetManager) {
		m.storage = s
	}
}

// WithProfiler sets the metrics collector shared by the default importer and exporter.
//
// Parameters:
//   - p: the profiler
//
// Returns:
//   - AssetManagerBuilderOption: option function to apply
func WithProfiler(p *profiler.Profiler) AssetManagerBuilderOption {
	return func(m *assetManager) {
		m.profiler = p
	}
}

// WithDependencyWorkers sets how many object dependencies are imported at the same time.
// Values <= 0 keep the default of 4.
//
// Parameters:
//   - n: the number of workers
//
// Returns:
//   - AssetManagerBuilderOption: option function to apply
func WithDependencyWorkers(n int) AssetManagerBuilderOption {
	return func(m *assetManager) {
		if n > 0 {
			m.dependencyWorkers = n
		}
	}
}

// WithRuntimeVersion sets the version stamped on configs of the default scene.
//
// Parameters:
//   - version: a semantic version
//
// Returns:
//   - AssetManagerBuilderOption: option function to apply
func WithRuntimeVersion(version string) AssetManagerBuilderOption {
	return func(m *assetManager) {
		if version != "" {
			m.runtimeVersion = version
		}
	}
}

// WithGLTFExtensions registers glTF extensions for every glTF loader and writer the manager creates.
//
// Parameters:
//   - exts: the extensions
//
// Returns:
//   - AssetManagerBuilderOption: option function to apply
func WithGLTFExtensions(exts ...*loader.GLTFExtension) AssetManagerBuilderOption {
	return func(m *assetManager) {
		for _, ext := range exts {
			if ext != nil {
				m.gltfExtensions = append(m.gltfExtensions, ext)
			}
		}
	}
}

// Package engine ties the importer, exporter, material manager and root scene together into an asset
// manager: imported results are upgraded to framework objects, registered and added to the scene, and
// scenes and objects are exported back to files.
package engine

import (
	"context"
	"errors"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Carmen-Shannon/oxypipe/common"
	"github.com/Carmen-Shannon/oxypipe/engine/asset"
	"github.com/Carmen-Shannon/oxypipe/engine/event"
	"github.com/Carmen-Shannon/oxypipe/engine/exporter"
	"github.com/Carmen-Shannon/oxypipe/engine/game_object"
	"github.com/Carmen-Shannon/oxypipe/engine/importer"
	"github.com/Carmen-Shannon/oxypipe/engine/loader"
	"github.com/Carmen-Shannon/oxypipe/engine/material"
	"github.com/Carmen-Shannon/oxypipe/engine/profiler"
	"github.com/Carmen-Shannon/oxypipe/engine/reference"
	"github.com/Carmen-Shannon/oxypipe/engine/scene"
	"github.com/Carmen-Shannon/oxypipe/engine/storage"
	"github.com/Carmen-Shannon/oxypipe/engine/viewer_config"

	"github.com/Carmen-Shannon/automation/tools/worker"
	"go.uber.org/zap"
)

// Version is the runtime version stamped on exported viewer configs.
const Version = "0.1.0"

const (
	// RootPathRefreshKey marks a placeholder object that is replaced by the model at its rootPath.
	RootPathRefreshKey = "rootPathRefresh"

	defaultDependencyWorkers = 4
	dependencyQueueSize      = 256
)

// ErrDisposed is returned by operations called after the asset manager was disposed.
var ErrDisposed = errors.New("asset manager disposed")

// ProcessState is the progress of one file being downloaded, processed or exported.
type ProcessState struct {
	State string

	// Progress is between 0 and 100, nil when unknown.
	Progress *float64
}

// ProcessStateEvent is dispatched whenever the process state of a path changes. State is nil when
// the path finished.
type ProcessStateEvent struct {
	Path  string
	State *ProcessState
}

// assetManager is the implementation of the AssetManager interface.
type assetManager struct {
	mu sync.RWMutex

	importer   importer.Importer
	exporter   exporter.Exporter
	materials  material.Manager
	references reference.Manager
	scene      scene.Scene
	profiler   *profiler.Profiler
	storage    storage.Storage

	gltfExtensions []*loader.GLTFExtension
	processState   map[string]ProcessState

	dependencyWorkers int
	dependencyPool    worker.DynamicWorkerPool
	disposed          atomic.Bool

	runtimeVersion string
	unsubscribe    []func()

	onProcessStateUpdate event.Dispatcher[ProcessStateEvent]
	onLoadAsset          event.Dispatcher[asset.Result]

	logger *zap.Logger
}

// AssetManager imports assets into a scene and exports them again. It owns the importer, the
// exporter, the material manager and the texture references, and upgrades every imported result
// to framework objects before it is handed out.
type AssetManager interface {
	// Importer returns the importer used by the manager.
	Importer() importer.Importer

	// Exporter returns the exporter used by the manager.
	Exporter() exporter.Exporter

	// Materials returns the material manager.
	Materials() material.Manager

	// References returns the texture reference manager shared with the material manager.
	References() reference.Manager

	// Scene returns the scene imported assets are added to.
	Scene() scene.Scene

	// Profiler returns the metrics collector, or nil when none was configured.
	Profiler() *profiler.Profiler

	// AddAsset imports a source and adds the results to the scene.
	//
	// Parameters:
	//   - ctx: the context of the import
	//   - src: a path, asset, file or batch
	//   - opts: import and add options, may be nil
	//
	// Returns:
	//   - []asset.Result: the added results
	//   - error: the import error
	AddAsset(ctx context.Context, src asset.Source, opts *asset.ImportOptions) ([]asset.Result, error)

	// AddAssetSingle imports a source and returns its first added result.
	//
	// Parameters:
	//   - ctx: the context of the import
	//   - src: a path, asset, file or batch
	//   - opts: import and add options, may be nil
	//
	// Returns:
	//   - asset.Result: the first result, or nil
	//   - error: the import error
	AddAssetSingle(ctx context.Context, src asset.Source, opts *asset.ImportOptions) (asset.Result, error)

	// LoadImported adds processed results: materials are registered, HDR textures become the
	// environment, models, cameras and lights are added to the scene and configs are applied to it.
	//
	// Parameters:
	//   - ctx: the context, used for dependency imports
	//   - results: the processed results
	//   - opts: add options, may be nil
	//
	// Returns:
	//   - []asset.Result: the results
	//   - error: the context error
	LoadImported(ctx context.Context, results []asset.Result, opts *asset.ImportOptions) ([]asset.Result, error)

	// AddRaw processes results that did not go through the importer and adds them.
	//
	// Parameters:
	//   - ctx: the context of the processing
	//   - results: the unprocessed results
	//   - opts: import and add options, may be nil
	//
	// Returns:
	//   - []asset.Result: the added results
	//   - error: the processing error
	AddRaw(ctx context.Context, results []asset.Result, opts *asset.ImportOptions) ([]asset.Result, error)

	// LoadObjectDependencies replaces every placeholder under root flagged with rootPathRefresh by the
	// model loaded from its rootPath. Every dependency is imported fresh so it never shares objects with
	// an earlier import of the same file. Failed dependencies and placeholders pointing back at a file
	// being resolved are logged and left in place.
	//
	// Parameters:
	//   - ctx: the context of the imports
	//   - root: the object to search
	//
	// Returns:
	//   - []game_object.GameObject: the objects spliced in
	//   - error: ErrDisposed after Dispose, or the context error
	LoadObjectDependencies(ctx context.Context, root game_object.GameObject) ([]game_object.GameObject, error)

	// ExportScene exports the scene models as one file, embedding the scene config unless disabled.
	//
	// Parameters:
	//   - ctx: the context of the export
	//   - opts: export options, may be nil
	//
	// Returns:
	//   - *asset.Blob: the exported file
	//   - error: the export error
	ExportScene(ctx context.Context, opts *asset.ExportOptions) (*asset.Blob, error)

	// ExportObject exports a single result.
	//
	// Parameters:
	//   - ctx: the context of the export
	//   - result: the result to export
	//   - opts: export options, may be nil
	//
	// Returns:
	//   - *asset.Blob: the exported file
	//   - error: the export error
	ExportObject(ctx context.Context, result asset.Result, opts *asset.ExportOptions) (*asset.Blob, error)

	// RegisterGLTFExtension adds a glTF extension to every glTF loader created afterwards and to every
	// glTF writer. An extension with the same name is replaced.
	//
	// Parameters:
	//   - ext: the extension
	RegisterGLTFExtension(ext *loader.GLTFExtension)

	// UnregisterGLTFExtension removes a glTF extension from the manager and the glTF writers.
	//
	// Parameters:
	//   - name: the extension name
	UnregisterGLTFExtension(name string)

	// GLTFExtensions returns the extensions registered through the manager.
	GLTFExtensions() []*loader.GLTFExtension

	// ProcessState returns a snapshot of the files currently being processed.
	//
	// Returns:
	//   - map[string]ProcessState: the state per path
	ProcessState() map[string]ProcessState

	// SetProcessState sets or, with a nil state, clears the process state of a path.
	//
	// Parameters:
	//   - path: the file path or name
	//   - state: the new state, may be nil
	SetProcessState(path string, state *ProcessState)

	// OnProcessStateUpdate subscribes to process state changes.
	//
	// Parameters:
	//   - fn: the handler
	//
	// Returns:
	//   - func(): the unsubscribe handle
	OnProcessStateUpdate(fn func(ProcessStateEvent)) func()

	// OnLoadAsset subscribes to results added by LoadImported.
	//
	// Parameters:
	//   - fn: the handler
	//
	// Returns:
	//   - func(): the unsubscribe handle
	OnLoadAsset(fn func(asset.Result)) func()

	// Dispose disposes the importer, the exporter and every registered material.
	Dispose()
}

var _ AssetManager = &assetManager{}

// NewAssetManager creates an AssetManager. Components not supplied through options are created with
// their defaults and share the manager's logger and profiler.
//
// Parameters:
//   - options: functional options for the manager
//
// Returns:
//   - AssetManager: the new manager
func NewAssetManager(options ...AssetManagerBuilderOption) AssetManager {
	m := &assetManager{
		processState:         make(map[string]ProcessState),
		dependencyWorkers:    defaultDependencyWorkers,
		runtimeVersion:       Version,
		onProcessStateUpdate: event.NewDispatcher[ProcessStateEvent](),
		onLoadAsset:          event.NewDispatcher[asset.Result](),
		logger:               zap.NewNop(),
	}
	for _, opt := range options {
		opt(m)
	}

	if m.references == nil {
		m.references = reference.NewManager(reference.WithLogger(m.logger))
	}
	if m.materials == nil {
		m.materials = material.NewManager(
			material.WithLogger(m.logger),
			material.WithTextureReferences(m.references),
		)
	}
	if m.importer == nil {
		m.importer = importer.NewImporter(
			importer.WithLogger(m.logger),
			importer.WithStorage(m.storage),
			importer.WithProfiler(m.profiler),
		)
	}
	if m.exporter == nil {
		m.exporter = exporter.NewExporter(
			exporter.WithLogger(m.logger),
			exporter.WithProfiler(m.profiler),
		)
	}
	if m.scene == nil {
		m.scene = scene.NewScene(
			scene.WithLogger(m.logger),
			scene.WithRuntimeVersion(m.runtimeVersion),
		)
	}
	m.logger = m.logger.With(zap.String("component", "asset_manager"))
	m.dependencyPool = worker.NewDynamicWorkerPool(m.dependencyWorkers, dependencyQueueSize, time.Second)

	m.setupObjectProcess()
	m.setupProcessState()
	m.setupGLTFExtensions()
	m.unsubscribe = append(m.unsubscribe, m.scene.OnUpdate(m.sceneUpdated))
	return m
}

func (m *assetManager) Importer() importer.Importer   { return m.importer }
func (m *assetManager) Exporter() exporter.Exporter   { return m.exporter }
func (m *assetManager) Materials() material.Manager   { return m.materials }
func (m *assetManager) References() reference.Manager { return m.references }
func (m *assetManager) Scene() scene.Scene            { return m.scene }
func (m *assetManager) Profiler() *profiler.Profiler  { return m.profiler }

func (m *assetManager) AddAsset(ctx context.Context, src asset.Source, opts *asset.ImportOptions) ([]asset.Result, error) {
	results, err := m.importer.Import(ctx, src, opts)
	if err != nil {
		return nil, err
	}
	if len(results) == 0 {
		if p, ok := src.(asset.Path); !ok || !strings.HasSuffix(stripQuery(string(p)), ".vjson") {
			m.logger.Warn("unable to import", zap.Any("source", src))
		}
		return nil, nil
	}
	return m.LoadImported(ctx, results, opts)
}

func (m *assetManager) AddAssetSingle(ctx context.Context, src asset.Source, opts *asset.ImportOptions) (asset.Result, error) {
	if src == nil {
		return nil, nil
	}
	results, err := m.AddAsset(ctx, src, opts)
	if err != nil || len(results) == 0 {
		return nil, err
	}
	return results[0], nil
}

func (m *assetManager) AddRaw(ctx context.Context, results []asset.Result, opts *asset.ImportOptions) ([]asset.Result, error) {
	processed, err := m.importer.ProcessRaw(ctx, results, opts, "")
	if err != nil {
		return nil, err
	}
	return m.LoadImported(ctx, processed, opts)
}

func (m *assetManager) LoadImported(ctx context.Context, results []asset.Result, opts *asset.ImportOptions) ([]asset.Result, error) {
	addOpts := &scene.AddObjectOptions{}
	if opts != nil {
		addOpts.ClearSceneObjects = opts.ClearSceneObjects
		addOpts.DisposeSceneObjects = opts.DisposeSceneObjects
	}

	out := make([]asset.Result, 0, len(results))
	for _, r := range results {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		if r == nil {
			continue
		}

		switch v := r.(type) {
		case *asset.Material:
			if v.Material != nil {
				m.materials.RegisterMaterial(v.Material)
			}
		case *asset.Texture:
			if v.Texture == nil {
				break
			}
			if opts.ShouldSetEnvironment() && isHDRPath(v.Meta().RootPath) {
				m.scene.SetEnvironment(v.Texture)
			}
			if opts != nil && opts.AutoSetBackground {
				m.scene.SetBackground(v.Texture)
			}
		case *asset.Model:
			if _, err := m.resolveDependencies(ctx, v.Root, v.Meta().RootPath); err != nil {
				return out, err
			}
			m.addModel(v, addOpts, opts)
		case *asset.Camera:
			m.scene.AddObject(v.Object, addOpts)
		case *asset.Light:
			m.scene.AddObject(v.Object, addOpts)
		case *asset.Config:
			if opts.ShouldImportConfig() {
				m.importConfig(v.Config)
			}
		case *asset.Data:
			if cfg := legacyConfig(v.Value); cfg != nil && opts.ShouldImportConfig() {
				m.importConfig(cfg)
			}
		}
		m.onLoadAsset.Dispatch(r)
		out = append(out, r)
	}
	return out, nil
}

func (m *assetManager) addModel(v *asset.Model, addOpts *scene.AddObjectOptions, opts *asset.ImportOptions) {
	if !v.IsSceneRoot() {
		m.scene.AddObject(v.Root, addOpts)
		return
	}
	m.scene.LoadModelRoot(v, addOpts)
	if !opts.ShouldImportConfig() {
		return
	}
	cfg := v.ViewerConfig
	if cfg == nil {
		cfg, _ = v.UserData()[loader.ImportedViewerConfigKey].(*viewer_config.ViewerConfig)
	}
	if cfg != nil {
		m.importConfig(cfg)
	}
}

func (m *assetManager) importConfig(cfg *viewer_config.ViewerConfig) {
	if cfg == nil {
		return
	}
	if err := m.scene.ImportConfig(cfg); err != nil {
		m.logger.Warn("unable to import config", zap.String("type", cfg.Type), zap.Error(err))
	}
}

// legacyConfig recognizes viewer configs that were loaded as plain JSON without an assetType.
func legacyConfig(value any) *viewer_config.ViewerConfig {
	data, ok := value.(map[string]any)
	if !ok {
		return nil
	}
	typ, _ := data["type"].(string)
	if typ == "" {
		return nil
	}
	if _, hasPlugins := data["plugins"].([]any); !hasPlugins && !viewer_config.IsViewerType(typ) {
		return nil
	}
	withType := make(map[string]any, len(data)+1)
	for k, v := range data {
		withType[k] = v
	}
	withType["assetType"] = viewer_config.AssetType
	cfg, err := viewer_config.FromMap(withType)
	if err != nil {
		return nil
	}
	return cfg
}

func isHDRPath(p string) bool {
	p = stripQuery(p)
	return strings.HasSuffix(p, ".hdr") || strings.HasSuffix(p, ".exr")
}

func stripQuery(p string) string {
	p, _ = common.StripQuery(p)
	return strings.ToLower(p)
}

// sceneUpdated registers the materials of objects added to the scene.
func (m *assetManager) sceneUpdated(ev scene.Event) {
	if ev.Type != scene.EventAddObject || ev.Object == nil {
		return
	}
	ev.Object.Traverse(func(o game_object.GameObject) bool {
		for _, mat := range o.Materials() {
			if mat != nil && m.materials.FindMaterial(mat.UUID()) != mat {
				m.materials.RegisterMaterial(mat)
			}
		}
		return true
	})
}

func (m *assetManager) ExportScene(ctx context.Context, opts *asset.ExportOptions) (*asset.Blob, error) {
	root := m.scene.ModelRoot()
	if opts.ShouldEmbedViewerConfig() {
		root.UserData()[loader.ExportViewerConfigKey] = m.scene.Config()
		defer delete(root.UserData(), loader.ExportViewerConfigKey)
	}
	return m.exporter.ExportObject(ctx, &asset.Model{Root: root}, opts)
}

func (m *assetManager) ExportObject(ctx context.Context, result asset.Result, opts *asset.ExportOptions) (*asset.Blob, error) {
	return m.exporter.ExportObject(ctx, result, opts)
}

func (m *assetManager) ProcessState() map[string]ProcessState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]ProcessState, len(m.processState))
	for k, v := range m.processState {
		out[k] = v
	}
	return out
}

func (m *assetManager) SetProcessState(path string, state *ProcessState) {
	m.mu.Lock()
	if state == nil {
		delete(m.processState, path)
	} else {
		m.processState[path] = *state
	}
	m.mu.Unlock()
	m.onProcessStateUpdate.Dispatch(ProcessStateEvent{Path: path, State: state})
}

func (m *assetManager) OnProcessStateUpdate(fn func(ProcessStateEvent)) func() {
	return m.onProcessStateUpdate.Subscribe(fn)
}

func (m *assetManager) OnLoadAsset(fn func(asset.Result)) func() {
	return m.onLoadAsset.Subscribe(fn)
}

func (m *assetManager) GLTFExtensions() []*loader.GLTFExtension {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.gltfExtensions)
}

func (m *assetManager) Dispose() {
	if !m.disposed.CompareAndSwap(false, true) {
		return
	}
	for _, fn := range m.unsubscribe {
		fn()
	}
	m.unsubscribe = nil

	m.importer.Dispose()
	m.materials.Dispose()
	m.exporter.Dispose()
	m.dependencyPool.Stop()

	m.mu.Lock()
	m.processState = make(map[string]ProcessState)
	m.mu.Unlock()
	m.onProcessStateUpdate.Clear()
	m.onLoadAsset.Clear()
}

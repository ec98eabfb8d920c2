// Package importer loads files into import results. It picks a loader per file from the registered
// importers, deduplicates concurrent imports of the same asset, resolves sub-resources against the file
// being loaded and post-processes every result before it is handed out.
package importer

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"sync"

	"github.com/Carmen-Shannon/oxypipe/common"
	"github.com/Carmen-Shannon/oxypipe/engine/asset"
	"github.com/Carmen-Shannon/oxypipe/engine/event"
	"github.com/Carmen-Shannon/oxypipe/engine/game_object"
	"github.com/Carmen-Shannon/oxypipe/engine/profiler"
	"github.com/Carmen-Shannon/oxypipe/engine/storage"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

var (
	// ErrLoaderNotFound is returned when no importer registration can load a file.
	ErrLoaderNotFound = errors.New("importer: no loader found")

	// ErrInvalidSource is returned for sources the importer cannot interpret.
	ErrInvalidSource = errors.New("importer: invalid source")
)

// importFuture is the shared outcome of one load. Every caller importing the same asset while the
// load runs waits on the same future and receives the same slice.
type importFuture struct {
	done    chan struct{}
	results []asset.Result
	err     error
}

func newImportFuture() *importFuture {
	return &importFuture{done: make(chan struct{})}
}

func (f *importFuture) resolve(results []asset.Result, err error) {
	f.results = results
	f.err = err
	close(f.done)
}

func (f *importFuture) wait(ctx context.Context) ([]asset.Result, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-f.done:
		return f.results, f.err
	}
}

// cachedAsset is the cache record of one asset and option set.
type cachedAsset struct {
	asset       *asset.Asset
	key         string
	future      *importFuture
	unsubscribe []func()
}

func (c *cachedAsset) release() {
	for _, fn := range c.unsubscribe {
		fn()
	}
	c.unsubscribe = nil
}

// importer is the implementation of the Importer interface.
type importer struct {
	mu sync.Mutex

	assets       []*cachedAsset
	importers    []*asset.Importer
	loaders      []*loaderCacheEntry
	loaderGroup  singleflight.Group
	files        map[string]*asset.File
	blobs        BlobStore
	urlModifiers []urlModifier
	nextModID    uint64

	customImporters     bool
	cacheImportedAssets bool
	storage             storage.Storage
	httpClient          *http.Client
	profiler            *profiler.Profiler
	tracer              trace.Tracer

	onImportFile      event.Dispatcher[ImportFileEvent]
	onImportFiles     event.Dispatcher[ImportFilesEvent]
	onProcessRawStart event.Dispatcher[ProcessRawEvent]
	onProcessRaw      event.Dispatcher[ProcessRawEvent]
	onLoaderCreate    event.Dispatcher[LoaderCreateEvent]

	logger *zap.Logger
}

// Importer imports paths, files and assets, caching the results per asset and option set.
type Importer interface {
	// Import imports any source: a path, an asset, a file or a batch of those. Batches are imported
	// concurrently and their results flattened in input order.
	//
	// Parameters:
	//   - ctx: the context of the import
	//   - src: the source to import
	//   - opts: the import options, may be nil
	//
	// Returns:
	//   - []asset.Result: the processed results
	//   - error: ErrLoaderNotFound if no loader matches, or the context error
	Import(ctx context.Context, src asset.Source, opts *asset.ImportOptions) ([]asset.Result, error)

	// ImportSingle imports a source and returns its first result.
	//
	// Parameters:
	//   - ctx: the context of the import
	//   - src: the source to import
	//   - opts: the import options, may be nil
	//
	// Returns:
	//   - asset.Result: the first result, or nil if the import produced nothing
	//   - error: ErrLoaderNotFound if no loader matches, or the context error
	ImportSingle(ctx context.Context, src asset.Source, opts *asset.ImportOptions) (asset.Result, error)

	// ImportPath imports a path. Calls with the same path and cache-key options share one cached asset.
	//
	// Parameters:
	//   - ctx: the context of the import
	//   - path: the URL, data URL or virtual path
	//   - opts: the import options, may be nil
	//
	// Returns:
	//   - []asset.Result: the processed results
	//   - error: ErrLoaderNotFound if no loader matches, or the context error
	ImportPath(ctx context.Context, path string, opts *asset.ImportOptions) ([]asset.Result, error)

	// ImportAsset imports an asset. A cached import of the asset is awaited and reused unless
	// ForceImport is set or every cached result has been disposed.
	//
	// Parameters:
	//   - ctx: the context of the import
	//   - a: the asset to import
	//   - opts: the import options, may be nil
	//
	// Returns:
	//   - []asset.Result: the processed results
	//   - error: ErrLoaderNotFound if no loader matches, or the context error
	ImportAsset(ctx context.Context, a *asset.Asset, opts *asset.ImportOptions) ([]asset.Result, error)

	// ImportFile imports an in-memory file.
	//
	// Parameters:
	//   - ctx: the context of the import
	//   - f: the file
	//   - opts: the import options, may be nil
	//
	// Returns:
	//   - []asset.Result: the processed results
	//   - error: ErrLoaderNotFound if no loader matches, or the context error
	ImportFile(ctx context.Context, f *asset.File, opts *asset.ImportOptions) ([]asset.Result, error)

	// ImportFiles imports a group of files that may reference each other, like a dropped folder or the
	// contents of an archive. Every file is registered first. If any file is a root format (a scene), only
	// root files are loaded; otherwise every file is. All files are unregistered afterwards.
	//
	// Parameters:
	//   - ctx: the context of the import
	//   - files: the files keyed by virtual path
	//   - opts: the import options, may be nil
	//
	// Returns:
	//   - map[string][]asset.Result: the results keyed by the path of each loaded file
	//   - error: the context error if the import was canceled
	ImportFiles(ctx context.Context, files map[string]*asset.File, opts *asset.ImportOptions) (map[string][]asset.Result, error)

	// ProcessRaw post-processes loaded results: it records where each result came from, names
	// unnamed results and expands archives. Results already processed are returned unchanged unless
	// ForceImporterReprocess is set.
	//
	// Parameters:
	//   - ctx: the context of the import
	//   - results: the loaded results
	//   - opts: the import options, may be nil
	//   - path: the path the results were loaded from
	//
	// Returns:
	//   - []asset.Result: the processed results
	//   - error: the context error if archive expansion was canceled
	ProcessRaw(ctx context.Context, results []asset.Result, opts *asset.ImportOptions, path string) ([]asset.Result, error)

	// ProcessRawSingle processes one result and returns the first processed result.
	//
	// Parameters:
	//   - ctx: the context of the import
	//   - result: the loaded result
	//   - opts: the import options, may be nil
	//   - path: the path the result was loaded from
	//
	// Returns:
	//   - asset.Result: the first processed result, or nil
	//   - error: the context error if archive expansion was canceled
	ProcessRawSingle(ctx context.Context, result asset.Result, opts *asset.ImportOptions, path string) (asset.Result, error)

	// RegisterFile adds a file to the virtual file registry, replacing any file at the same path, and
	// returns the loader for it. A nil file only selects the loader.
	//
	// Parameters:
	//   - path: the virtual path, query strings are dropped
	//   - file: the file, may be nil
	//   - ext: an extension overriding the one of the path, may be empty
	//   - handler: a loader to use instead of looking one up, may be nil
	//
	// Returns:
	//   - asset.Loader: the loader for the file, or nil if none matches
	RegisterFile(path string, file *asset.File, ext string, handler asset.Loader) asset.Loader

	// UnregisterFile removes a file from the registry and revokes its object URL. Unregistering a path
	// that is not registered does nothing.
	//
	// Parameters:
	//   - path: the virtual path
	UnregisterFile(path string)

	// UnregisterAllFiles removes every registered file.
	UnregisterAllFiles()

	// RegisteredFile returns the file registered at path.
	//
	// Parameters:
	//   - path: the virtual path
	//
	// Returns:
	//   - *asset.File: the file, or nil
	RegisteredFile(path string) *asset.File

	// AddImporter appends importer registrations. Registrations already present are skipped.
	//
	// Parameters:
	//   - importers: the registrations to add
	AddImporter(importers ...*asset.Importer)

	// RemoveImporter removes importer registrations.
	//
	// Parameters:
	//   - importers: the registrations to remove
	RemoveImporter(importers ...*asset.Importer)

	// Importers returns a snapshot of the registrations in lookup order.
	//
	// Returns:
	//   - []*asset.Importer: the registrations
	Importers() []*asset.Importer

	// AddURLModifier adds a function applied to every URL before it is resolved.
	//
	// Parameters:
	//   - fn: the modifier
	//
	// Returns:
	//   - func(): a handle removing the modifier
	AddURLModifier(fn func(string) string) func()

	// ResolveURL applies the URL modifiers and returns the object URL of the registered file the URL
	// points to, or the modified URL.
	//
	// Parameters:
	//   - url: the URL to resolve
	//
	// Returns:
	//   - string: the resolved URL
	ResolveURL(url string) string

	// CachedAssets returns a snapshot of the cached assets.
	//
	// Returns:
	//   - []*asset.Asset: the cached assets
	CachedAssets() []*asset.Asset

	// Storage returns the download cache, or nil if none is configured.
	//
	// Returns:
	//   - storage.Storage: the download cache
	Storage() storage.Storage

	// ClearCache drops cached assets, unregisters every file and clears the loader cache.
	// The download cache is not cleared.
	ClearCache()

	// ClearLoaderCache disposes and drops every created loader.
	ClearLoaderCache()

	// Dispose clears every cache.
	Dispose()

	// OnImportFile subscribes to file load progress.
	//
	// Parameters:
	//   - fn: the handler
	//
	// Returns:
	//   - func(): the unsubscribe handle
	OnImportFile(fn func(ImportFileEvent)) func()

	// OnImportFiles subscribes to the start and end of multi-file imports.
	//
	// Parameters:
	//   - fn: the handler
	//
	// Returns:
	//   - func(): the unsubscribe handle
	OnImportFiles(fn func(ImportFilesEvent)) func()

	// OnProcessRawStart subscribes to the start of result processing. Handlers may replace the
	// objects wrapped by the result.
	//
	// Parameters:
	//   - fn: the handler
	//
	// Returns:
	//   - func(): the unsubscribe handle
	OnProcessRawStart(fn func(ProcessRawEvent)) func()

	// OnProcessRaw subscribes to the end of result processing.
	//
	// Parameters:
	//   - fn: the handler
	//
	// Returns:
	//   - func(): the unsubscribe handle
	OnProcessRaw(fn func(ProcessRawEvent)) func()

	// OnLoaderCreate subscribes to loader creation. The handler is called right away for every loader
	// already in the cache.
	//
	// Parameters:
	//   - fn: the handler
	//
	// Returns:
	//   - func(): the unsubscribe handle
	OnLoaderCreate(fn func(LoaderCreateEvent)) func()
}

var _ Importer = &importer{}

// NewImporter creates an Importer. Without WithImporters the loaders of the loader package are registered.
//
// Parameters:
//   - options: functional options to configure the importer
//
// Returns:
//   - Importer: the new importer
func NewImporter(options ...ImporterBuilderOption) Importer {
	i := &importer{
		files:               make(map[string]*asset.File),
		cacheImportedAssets: true,
		httpClient:          http.DefaultClient,
		tracer:              otel.Tracer("oxypipe/importer"),
		onImportFile:        event.NewDispatcher[ImportFileEvent](),
		onImportFiles:       event.NewDispatcher[ImportFilesEvent](),
		onProcessRawStart:   event.NewDispatcher[ProcessRawEvent](),
		onProcessRaw:        event.NewDispatcher[ProcessRawEvent](),
		onLoaderCreate:      event.NewDispatcher[LoaderCreateEvent](),
		logger:              zap.NewNop(),
	}
	for _, opt := range options {
		opt(i)
	}
	i.logger = i.logger.With(zap.String("component", "importer"))
	if i.blobs == nil {
		i.blobs = NewBlobStore()
	}
	if !i.customImporters {
		i.importers = defaultImporters(i.logger)
	}
	return i
}

func (i *importer) Import(ctx context.Context, src asset.Source, opts *asset.ImportOptions) ([]asset.Result, error) {
	switch s := src.(type) {
	case nil:
		return nil, nil
	case asset.Path:
		return i.ImportPath(ctx, string(s), opts)
	case *asset.Asset:
		return i.ImportAsset(ctx, s, opts)
	case *asset.File:
		return i.ImportFile(ctx, s, opts)
	case asset.Batch:
		parts := make([][]asset.Result, len(s))
		g, gctx := errgroup.WithContext(ctx)
		for idx, item := range s {
			g.Go(func() error {
				res, err := i.Import(gctx, item, opts)
				parts[idx] = res
				return err
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
		var out []asset.Result
		for _, p := range parts {
			out = append(out, p...)
		}
		return out, nil
	}
	return nil, fmt.Errorf("%w: %T", ErrInvalidSource, src)
}

func (i *importer) ImportSingle(ctx context.Context, src asset.Source, opts *asset.ImportOptions) (asset.Result, error) {
	results, err := i.Import(ctx, src, opts)
	if err != nil || len(results) == 0 {
		return nil, err
	}
	return results[0], nil
}

func (i *importer) ImportPath(ctx context.Context, path string, opts *asset.ImportOptions) ([]asset.Result, error) {
	if opts == nil {
		opts = &asset.ImportOptions{}
	}
	key := opts.KeyOptions().Key()

	i.mu.Lock()
	var a *asset.Asset
	for _, c := range i.assets {
		if c.asset.Path == path && c.key == key {
			a = c.asset
			break
		}
	}
	if a == nil {
		a = &asset.Asset{Path: path}
	}
	if opts.ImportedFile != nil {
		a.File = opts.ImportedFile
	}
	i.mu.Unlock()

	return i.ImportAsset(ctx, a, opts)
}

func (i *importer) ImportFile(ctx context.Context, f *asset.File, opts *asset.ImportOptions) ([]asset.Result, error) {
	if f == nil {
		return nil, nil
	}
	i.mu.Lock()
	var a *asset.Asset
	for _, c := range i.assets {
		if c.asset.File == f {
			a = c.asset
			break
		}
	}
	i.mu.Unlock()
	if a == nil {
		a = &asset.Asset{Path: common.Coalesce(f.Path, f.Name), File: f}
	}
	return i.ImportAsset(ctx, a, opts)
}

func (i *importer) ImportAsset(ctx context.Context, a *asset.Asset, opts *asset.ImportOptions) ([]asset.Result, error) {
	if a == nil {
		return nil, nil
	}
	if opts == nil {
		opts = &asset.ImportOptions{}
	}
	path := common.Coalesce(opts.PathOverride, a.Path)
	if path == "" && a.File != nil {
		path = common.Coalesce(a.File.Path, a.File.Name)
	}
	if path == "" {
		return nil, fmt.Errorf("%w: asset has no path or file", ErrInvalidSource)
	}

	ctx, span := i.tracer.Start(ctx, "importer.ImportAsset", trace.WithAttributes(attribute.String("asset.path", path)))
	defer span.End()

	entry := i.cacheEntry(a, opts.KeyOptions().Key())
	for {
		i.mu.Lock()
		f := entry.future
		if f != nil && !opts.ForceImport {
			i.mu.Unlock()
			results, err := f.wait(ctx)
			if err != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
				return nil, err
			}
			if opts.ShouldReimportDisposed() && allDisposed(results) {
				i.mu.Lock()
				if entry.future == f {
					entry.future = nil
					entry.release()
				}
				i.mu.Unlock()
				i.logger.Debug("cached results disposed, reimporting", zap.String("path", path))
				continue
			}
			i.profiler.ObserveCacheHit()
			span.SetAttributes(attribute.Bool("asset.cached", true))
			return results, nil
		}

		f = newImportFuture()
		if entry.future != nil {
			entry.release()
		}
		entry.future = f
		i.mu.Unlock()

		go i.runImport(context.WithoutCancel(ctx), entry, f, path, a.File, opts)

		results, err := f.wait(ctx)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		return results, err
	}
}

// cacheEntry returns the cache record of a, creating it when missing. A record of another asset
// object with the same path is replaced.
func (i *importer) cacheEntry(a *asset.Asset, key string) *cachedAsset {
	i.mu.Lock()
	defer i.mu.Unlock()

	for _, c := range i.assets {
		if c.asset == a && c.key == key {
			return c
		}
	}
	for idx, c := range i.assets {
		if c.asset.Path == a.Path && c.key == key {
			if c.asset.File == a.File {
				c.asset = a
				return c
			}
			c.release()
			i.assets = slices.Delete(i.assets, idx, idx+1)
			break
		}
	}
	c := &cachedAsset{asset: a, key: key}
	i.assets = append(i.assets, c)
	return c
}

func (i *importer) runImport(ctx context.Context, entry *cachedAsset, f *importFuture, path string, file *asset.File, opts *asset.ImportOptions) {
	results, err := i.loadFile(ctx, path, file, opts)
	if err == nil && len(results) > 0 {
		results, err = i.ProcessRaw(ctx, results, opts, path)
	}

	i.mu.Lock()
	if entry.future == f {
		if err != nil || len(results) == 0 || !i.cacheImportedAssets {
			entry.future = nil
		} else {
			entry.unsubscribe = append(entry.unsubscribe, i.watchDisposal(entry, f, results)...)
		}
	}
	i.mu.Unlock()

	f.resolve(results, err)
}

// watchDisposal drops the cached future of entry once every result of the import is disposed.
func (i *importer) watchDisposal(entry *cachedAsset, f *importFuture, results []asset.Result) []func() {
	onDispose := func() {
		if !allDisposed(results) {
			return
		}
		i.mu.Lock()
		defer i.mu.Unlock()
		if entry.future == f {
			entry.future = nil
			entry.release()
		}
	}

	var unsubs []func()
	for _, r := range results {
		if m, ok := r.(*asset.Model); ok && m.IsSceneRoot() {
			for _, c := range m.Root.Children() {
				unsubs = append(unsubs, c.OnDispose(func(game_object.GameObject) { onDispose() }))
			}
			continue
		}
		unsubs = append(unsubs, r.OnDispose(onDispose))
	}
	return unsubs
}

// allDisposed reports whether every object handed out by an import has been disposed. The children of
// a scene root count instead of the root itself.
func allDisposed(results []asset.Result) bool {
	if len(results) == 0 {
		return false
	}
	for _, r := range results {
		if m, ok := r.(*asset.Model); ok && m.IsSceneRoot() && !m.Disposed() {
			children := m.Root.Children()
			if len(children) == 0 {
				return false
			}
			for _, c := range children {
				if !c.Disposed() {
					return false
				}
			}
			continue
		}
		if !r.Disposed() {
			return false
		}
	}
	return true
}

func (i *importer) CachedAssets() []*asset.Asset {
	i.mu.Lock()
	defer i.mu.Unlock()
	out := make([]*asset.Asset, 0, len(i.assets))
	for _, c := range i.assets {
		out = append(out, c.asset)
	}
	return out
}

func (i *importer) AddImporter(importers ...*asset.Importer) {
	i.mu.Lock()
	defer i.mu.Unlock()
	for _, imp := range importers {
		if imp == nil {
			continue
		}
		if slices.Contains(i.importers, imp) {
			i.logger.Warn("importer already added", zap.String("importer", imp.Name))
			continue
		}
		i.importers = append(i.importers, imp)
	}
}

func (i *importer) RemoveImporter(importers ...*asset.Importer) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.importers = slices.DeleteFunc(i.importers, func(imp *asset.Importer) bool {
		return slices.Contains(importers, imp)
	})
}

func (i *importer) Importers() []*asset.Importer {
	i.mu.Lock()
	defer i.mu.Unlock()
	return slices.Clone(i.importers)
}

func (i *importer) Storage() storage.Storage {
	return i.storage
}

func (i *importer) ClearCache() {
	i.mu.Lock()
	for _, c := range i.assets {
		c.release()
	}
	i.assets = nil
	i.mu.Unlock()

	i.UnregisterAllFiles()
	i.ClearLoaderCache()
}

func (i *importer) Dispose() {
	i.ClearCache()
}

func (i *importer) OnImportFile(fn func(ImportFileEvent)) func() {
	return i.onImportFile.Subscribe(fn)
}

func (i *importer) OnImportFiles(fn func(ImportFilesEvent)) func() {
	return i.onImportFiles.Subscribe(fn)
}

func (i *importer) OnProcessRawStart(fn func(ProcessRawEvent)) func() {
	return i.onProcessRawStart.Subscribe(fn)
}

func (i *importer) OnProcessRaw(fn func(ProcessRawEvent)) func() {
	return i.onProcessRaw.Subscribe(fn)
}

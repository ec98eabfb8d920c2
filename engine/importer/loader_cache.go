package importer

import (
	"fmt"
	"strings"

	"github.com/Carmen-Shannon/oxypipe/common"
	"github.com/Carmen-Shannon/oxypipe/engine/asset"
	"github.com/Carmen-Shannon/oxypipe/engine/loader"

	"go.uber.org/zap"
)

// loaderCacheEntry is a loader created for an importer registration. Entries for explicit file
// handlers have no registration.
type loaderCacheEntry struct {
	importer *asset.Importer
	loader   asset.Loader
}

func (e *loaderCacheEntry) name() string {
	if e.importer == nil {
		return "custom"
	}
	return e.importer.Name
}

func defaultImporters(logger *zap.Logger) []*asset.Importer {
	return loader.DefaultImporters(loader.WithLogger(logger))
}

// loaderFor returns the loader for a file, creating and caching it on first use.
func (i *importer) loaderFor(name, ext, mime string) (*loaderCacheEntry, error) {
	if ext == "" && mime == "" && name != "" {
		ext = common.FileExtension(name)
	}
	ext = strings.ToLower(strings.TrimSpace(ext))
	mime = strings.ToLower(strings.TrimSpace(mime))

	if e := i.cachedLoader(name, ext, mime); e != nil {
		return e, nil
	}
	return i.createLoader(name, ext, mime)
}

func (i *importer) cachedLoader(name, ext, mime string) *loaderCacheEntry {
	i.mu.Lock()
	defer i.mu.Unlock()
	for _, e := range i.loaders {
		if e.importer.Matches(name, ext, mime) {
			return e
		}
	}
	return nil
}

func (i *importer) createLoader(name, ext, mime string) (*loaderCacheEntry, error) {
	i.mu.Lock()
	var imp *asset.Importer
	for _, candidate := range i.importers {
		if candidate.Matches(name, ext, mime) {
			imp = candidate
			break
		}
	}
	i.mu.Unlock()
	if imp == nil {
		return nil, fmt.Errorf("%w for %q", ErrLoaderNotFound, name)
	}

	v, err, _ := i.loaderGroup.Do(fmt.Sprintf("%p", imp), func() (any, error) {
		i.mu.Lock()
		for _, e := range i.loaders {
			if e.importer == imp {
				i.mu.Unlock()
				return e, nil
			}
		}
		i.mu.Unlock()

		l, err := imp.New()
		if err != nil {
			return nil, fmt.Errorf("create %s loader: %w", imp.Name, err)
		}
		e := &loaderCacheEntry{importer: imp, loader: l}
		i.mu.Lock()
		i.loaders = append(i.loaders, e)
		i.mu.Unlock()

		i.logger.Debug("created loader", zap.String("importer", imp.Name))
		i.onLoaderCreate.Dispatch(LoaderCreateEvent{Importer: imp, Loader: l})
		return e, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*loaderCacheEntry), nil
}

func (i *importer) ClearLoaderCache() {
	i.mu.Lock()
	loaders := i.loaders
	i.loaders = nil
	i.mu.Unlock()

	for _, e := range loaders {
		if d, ok := e.loader.(asset.Disposer); ok {
			d.Dispose()
		}
	}
}

func (i *importer) OnLoaderCreate(fn func(LoaderCreateEvent)) func() {
	unsubscribe := i.onLoaderCreate.Subscribe(fn)
	if fn == nil {
		return unsubscribe
	}
	i.mu.Lock()
	existing := append([]*loaderCacheEntry(nil), i.loaders...)
	i.mu.Unlock()
	for _, e := range existing {
		fn(LoaderCreateEvent{Importer: e.importer, Loader: e.loader})
	}
	return unsubscribe
}

// isRootFile reports whether any registration marks files with this extension or media type as root.
func (i *importer) isRootFile(ext, mime string) bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	for _, imp := range i.importers {
		if imp.IsRoot(ext, mime) {
			return true
		}
	}
	return false
}

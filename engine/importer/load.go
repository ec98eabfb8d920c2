package importer

import (
	"context"
	"errors"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/Carmen-Shannon/oxypipe/common"
	"github.com/Carmen-Shannon/oxypipe/engine/asset"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// loadFile loads a single file with the loader selected for it. Load failures are reported through the
// importFile event and yield no results; only a missing loader is returned as an error.
func (i *importer) loadFile(ctx context.Context, path string, file *asset.File, opts *asset.ImportOptions) ([]asset.Result, error) {
	ctx, span := i.tracer.Start(ctx, "importer.loadFile", trace.WithAttributes(attribute.String("file.path", path)))
	defer span.End()

	i.onImportFile.Dispatch(ImportFileEvent{Path: path, State: StateDownloading})

	entry, err := i.registerFile(path, file, opts.FileExtension, opts.FileHandler)
	if err != nil {
		i.failLoad(span, path, file, err)
		return nil, err
	}
	if opts.FileHandler != nil && opts.FileExtension == "" {
		i.logger.Warn("pass a file extension with a custom file handler to keep the root path usable", zap.String("path", path))
	}

	req := i.newRequest(path, file, opts)
	start := time.Now()
	results, err := entry.loader.Load(ctx, req)
	if err == nil {
		if t, ok := entry.loader.(asset.Transformer); ok {
			results, err = t.Transform(ctx, results, opts)
		}
	}
	i.profiler.ObserveLoad(entry.name(), time.Since(start))
	if err != nil {
		i.failLoad(span, path, file, err)
		return nil, nil
	}

	i.onImportFile.Dispatch(ImportFileEvent{Path: path, State: StateDownloading, Progress: 1})
	i.onImportFile.Dispatch(ImportFileEvent{Path: path, State: StateAdding})
	if file != nil {
		i.logger.Debug("loaded", zap.String("path", path), zap.String("loader", entry.name()))
	} else {
		i.logger.Debug("downloaded", zap.String("path", path), zap.String("loader", entry.name()))
	}

	blob := file
	if blob == nil {
		blob = i.RegisteredFile(path)
	}
	if file != nil {
		i.UnregisterFile(path)
	}
	i.onImportFile.Dispatch(ImportFileEvent{Path: path, State: StateDone})

	keyOpts := opts.KeyOptions()
	for _, r := range results {
		if r == nil {
			continue
		}
		m := r.Meta()
		m.RootPath = path
		m.RootPathOptions = keyOpts
		if blob != nil {
			m.RootBlob = blob
		}
		i.profiler.ObserveImport(string(r.Kind()), "ok")
	}
	span.SetAttributes(attribute.Int("file.results", len(results)))
	return slices.DeleteFunc(results, func(r asset.Result) bool { return r == nil }), nil
}

func (i *importer) failLoad(span trace.Span, path string, file *asset.File, err error) {
	i.logger.Error("unable to import file", zap.String("path", path), zap.Error(err))
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	i.profiler.ObserveImport("", "error")
	i.onImportFile.Dispatch(ImportFileEvent{Path: path, State: StateError, Err: err})
	if file != nil {
		i.UnregisterFile(path)
	}
}

// newRequest builds the request of one load. Relative references made by the loaded file resolve
// against its own directory.
func (i *importer) newRequest(path string, file *asset.File, opts *asset.ImportOptions) *asset.Request {
	p, query := path, ""
	if !common.IsDataURL(path) {
		p, query = common.StripQuery(path)
	}
	if opts.QueryString != "" {
		if query != "" {
			query += "&"
		}
		query += opts.QueryString
	}
	rootURL := ""
	if !common.IsDataURL(p) {
		rootURL = common.URLBase(p)
	}
	if file == nil {
		file = i.RegisteredFile(p)
	}

	readRef := p
	if query != "" {
		readRef += "?" + query
	}
	progress := func(loaded, total int64) {
		ev := ImportFileEvent{Path: path, State: StateDownloading, LoadedBytes: loaded, Progress: 1}
		if total > 0 {
			ev.TotalBytes = max(total, loaded)
			if total > loaded {
				ev.Progress = float64(loaded) / float64(total)
			}
		}
		i.onImportFile.Dispatch(ev)
	}

	return &asset.Request{
		Path:    p,
		Query:   query,
		RootURL: rootURL,
		File:    file,
		Options: opts,
		Fetch: func(ctx context.Context, ref string) (*asset.File, error) {
			if ref == readRef {
				return i.fetch(ctx, rootURL, ref, progress)
			}
			return i.fetch(ctx, rootURL, ref, nil)
		},
		Progress: progress,
	}
}

func (i *importer) ImportFiles(ctx context.Context, files map[string]*asset.File, opts *asset.ImportOptions) (map[string][]asset.Result, error) {
	loaded := make(map[string][]asset.Result)
	if len(files) == 0 {
		return loaded, nil
	}
	if opts == nil {
		opts = &asset.ImportOptions{}
	}
	allowed := make([]string, 0, len(opts.AllowedExtensions))
	for _, ext := range opts.AllowedExtensions {
		allowed = append(allowed, strings.ToLower(ext))
	}

	i.onImportFiles.Dispatch(ImportFilesEvent{Files: files, State: ImportFilesStart})

	paths := make([]string, 0, len(files))
	for p := range files {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	var roots, alts []string
	for _, p := range paths {
		f := files[p]
		if f == nil {
			continue
		}
		if _, err := i.registerFile(p, f, "", nil); err != nil && !errors.Is(err, ErrLoaderNotFound) {
			i.logger.Warn("failed to create loader", zap.String("path", p), zap.Error(err))
		}
		if f.Ext == "" && f.Mime == "" {
			continue
		}
		if len(allowed) > 0 && !slices.Contains(allowed, strings.ToLower(common.Coalesce(f.Ext, f.Mime))) {
			continue
		}
		if i.isRootFile(f.Ext, f.Mime) {
			roots = append(roots, p)
		} else {
			alts = append(alts, p)
		}
	}

	targets := roots
	if len(targets) == 0 {
		targets = alts
	}

	var err error
	for _, p := range targets {
		if err = ctx.Err(); err != nil {
			break
		}
		res, loadErr := i.loadFile(ctx, p, nil, opts)
		if loadErr != nil {
			loaded[p] = nil
			continue
		}
		if len(res) > 0 {
			if res, err = i.ProcessRaw(ctx, res, opts, p); err != nil {
				break
			}
		}
		loaded[p] = res
	}

	i.onImportFiles.Dispatch(ImportFilesEvent{Files: files, State: ImportFilesEnd})
	for _, p := range paths {
		i.UnregisterFile(p)
	}
	return loaded, err
}

package importer

import (
	"context"
	"sort"
	"strings"

	"github.com/Carmen-Shannon/oxypipe/common"
	"github.com/Carmen-Shannon/oxypipe/engine/asset"
)

func (i *importer) ProcessRaw(ctx context.Context, results []asset.Result, opts *asset.ImportOptions, path string) ([]asset.Result, error) {
	if opts == nil {
		opts = &asset.ImportOptions{}
	}
	out := make([]asset.Result, 0, len(results))
	for _, r := range results {
		if r == nil {
			continue
		}
		processed, err := i.processRawOne(ctx, r, opts, path)
		if err != nil {
			return out, err
		}
		out = append(out, processed...)
	}
	return out, nil
}

func (i *importer) processRawOne(ctx context.Context, r asset.Result, opts *asset.ImportOptions, path string) ([]asset.Result, error) {
	if !opts.ShouldProcessRaw() {
		return []asset.Result{r}, nil
	}
	meta := r.Meta()
	if meta.Processed && !opts.ForceImporterReprocess {
		return []asset.Result{r}, nil
	}

	i.onProcessRawStart.Dispatch(ProcessRawEvent{Result: r, Options: opts, Path: path})

	rootPath := meta.RootPath
	if ud := r.UserData(); ud != nil {
		if _, ok := ud["rootPath"]; !ok && rootPath != "" && !strings.HasPrefix(rootPath, "blob:") && !strings.HasPrefix(rootPath, "/") {
			ud["rootPath"] = rootPath
			if meta.RootPathOptions != nil {
				ud["rootPathOptions"] = meta.RootPathOptions
			}
		}
		if meta.RootBlob != nil {
			ud["__sourceBlob"] = meta.RootBlob
		}
	}

	if r.Name() == "" {
		name := rootPath
		if name == "" && meta.RootBlob != nil {
			name = common.Coalesce(meta.RootBlob.Path, meta.RootBlob.Name)
		}
		r.SetName(strings.TrimPrefix(name, "/"))
	}
	meta.Processed = true

	i.onProcessRaw.Dispatch(ProcessRawEvent{Result: r, Options: opts, Path: path})

	if files, ok := r.(*asset.Files); ok && opts.ShouldImportZipContents() {
		loaded, err := i.ImportFiles(ctx, files.Files, opts)
		keys := make([]string, 0, len(loaded))
		for k := range loaded {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		var out []asset.Result
		for _, k := range keys {
			out = append(out, loaded[k]...)
		}
		return out, err
	}
	return []asset.Result{r}, nil
}

func (i *importer) ProcessRawSingle(ctx context.Context, result asset.Result, opts *asset.ImportOptions, path string) (asset.Result, error) {
	out, err := i.ProcessRaw(ctx, []asset.Result{result}, opts, path)
	if len(out) == 0 {
		return nil, err
	}
	return out[0], err
}

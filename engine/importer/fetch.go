package importer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/Carmen-Shannon/oxypipe/common"
	"github.com/Carmen-Shannon/oxypipe/engine/asset"
	"github.com/Carmen-Shannon/oxypipe/engine/storage"

	"go.uber.org/zap"
)

type urlModifier struct {
	id uint64
	fn func(string) string
}

func (i *importer) AddURLModifier(fn func(string) string) func() {
	if fn == nil {
		return func() {}
	}
	i.mu.Lock()
	i.nextModID++
	id := i.nextModID
	i.urlModifiers = append(i.urlModifiers, urlModifier{id: id, fn: fn})
	i.mu.Unlock()

	return func() {
		i.mu.Lock()
		defer i.mu.Unlock()
		for idx, m := range i.urlModifiers {
			if m.id == id {
				i.urlModifiers = append(i.urlModifiers[:idx:idx], i.urlModifiers[idx+1:]...)
				return
			}
		}
	}
}

func (i *importer) modifyURL(u string) string {
	i.mu.Lock()
	mods := append([]urlModifier(nil), i.urlModifiers...)
	i.mu.Unlock()
	for _, m := range mods {
		u = m.fn(u)
	}
	return u
}

func (i *importer) ResolveURL(u string) string {
	return i.resolveURL(u, "")
}

func (i *importer) resolveURL(u, rootURL string) string {
	u = i.modifyURL(u)
	if common.IsDataURL(u) || strings.HasPrefix(u, "blob:") {
		return u
	}
	if objectURL, _ := i.objectURL(normalizePath(u, rootURL)); objectURL != "" {
		return objectURL
	}
	return u
}

// normalizePath turns a reference into the key it would be registered under: relative references are
// joined with rootURL, local paths are cleaned and the query string is dropped.
func normalizePath(ref, rootURL string) string {
	n, err := url.PathUnescape(ref)
	if err != nil {
		n = ref
	}
	if !strings.Contains(n, "://") && rootURL != "" && !strings.HasPrefix(n, rootURL) {
		n = rootURL + n
	}
	n, _ = common.StripQuery(n)
	if !strings.Contains(n, "://") {
		n = path.Clean(n)
	}
	return n
}

// fetch resolves a reference made by the file at rootURL. Registered files win, then data URLs, object
// URLs, HTTP(S) through the download cache and finally the local file system.
func (i *importer) fetch(ctx context.Context, rootURL, ref string, progress func(loaded, total int64)) (*asset.File, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	resolved := i.resolveURL(ref, rootURL)

	switch {
	case common.IsDataURL(resolved):
		data, mimeType, err := common.DecodeDataURL(resolved)
		if err != nil {
			return nil, err
		}
		f := &asset.File{Path: resolved, Mime: mimeType, Data: data}
		f.Detect()
		return f, nil

	case strings.HasPrefix(resolved, "blob:"):
		if f, ok := i.blobs.Get(resolved); ok {
			return f, nil
		}
		return nil, fmt.Errorf("object URL %s is not registered", resolved)
	}

	target := resolved
	if !strings.Contains(target, "://") && rootURL != "" && !strings.HasPrefix(target, rootURL) {
		target = rootURL + target
	}
	if strings.HasPrefix(target, "http://") || strings.HasPrefix(target, "https://") {
		return i.download(ctx, target, progress)
	}

	local := normalizePath(resolved, rootURL)
	data, err := os.ReadFile(filepath.FromSlash(local))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", local, err)
	}
	if progress != nil {
		progress(int64(len(data)), int64(len(data)))
	}
	return asset.NewFile(local, data), nil
}

// download fetches an HTTP(S) URL, answering from and filling the download cache when one is set.
func (i *importer) download(ctx context.Context, u string, progress func(loaded, total int64)) (*asset.File, error) {
	if i.storage != nil {
		entry, err := i.storage.Get(ctx, u)
		switch {
		case err == nil:
			f := &asset.File{Name: common.FileNameFromPath(u), Path: u, Mime: entry.Mime, Data: entry.Data}
			f.Detect()
			if progress != nil {
				progress(int64(len(entry.Data)), int64(len(entry.Data)))
			}
			i.logger.Debug("served download from cache", zap.String("url", u))
			return f, nil
		case !errors.Is(err, storage.ErrNotFound):
			i.logger.Warn("download cache lookup failed", zap.String("url", u), zap.Error(err))
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	resp, err := i.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("GET %s: %w", u, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("GET %s: %s", u, resp.Status)
	}

	var body io.Reader = resp.Body
	if progress != nil {
		body = &progressReader{r: resp.Body, total: resp.ContentLength, fn: progress}
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", u, err)
	}

	mimeType, _, err := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if err != nil || mimeType == "application/octet-stream" {
		mimeType = ""
	}
	f := &asset.File{Name: common.FileNameFromPath(u), Path: u, Mime: mimeType, Data: data}
	f.Detect()

	if i.storage != nil {
		if err := i.storage.Set(ctx, u, &storage.Entry{Data: data, Mime: f.Mime}); err != nil {
			i.logger.Warn("failed to cache download", zap.String("url", u), zap.Error(err))
		}
	}
	return f, nil
}

type progressReader struct {
	r      io.Reader
	loaded int64
	total  int64
	fn     func(loaded, total int64)
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	if n > 0 {
		p.loaded += int64(n)
		p.fn(p.loaded, p.total)
	}
	return n, err
}

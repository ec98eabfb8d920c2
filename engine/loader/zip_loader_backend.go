package loader

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/Carmen-Shannon/oxypipe/engine/asset"

	"go.uber.org/zap"
)

// zipLoaderBackendImpl unpacks an archive into a Files result. The importer expands it into the
// results of the files it contains.
type zipLoaderBackendImpl struct{}

var _ loaderBackend = &zipLoaderBackendImpl{}

func newZipLoaderBackend() loaderBackend {
	return &zipLoaderBackendImpl{}
}

func (b *zipLoaderBackendImpl) Load(ctx context.Context, in *loadInput) ([]asset.Result, error) {
	zr, err := zip.NewReader(bytes.NewReader(in.file.Data), int64(len(in.file.Data)))
	if err != nil {
		return nil, fmt.Errorf("failed to open archive: %w", err)
	}

	files := make(map[string]*asset.File, len(zr.File))
	for _, zf := range zr.File {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		name := path.Clean(strings.TrimPrefix(zf.Name, "/"))
		if zf.FileInfo().IsDir() || strings.HasPrefix(name, "__MACOSX/") || strings.HasPrefix(path.Base(name), "._") {
			continue
		}
		data, err := readZipEntry(zf)
		if err != nil {
			in.logger.Warn("skipping unreadable archive entry", zap.String("entry", zf.Name), zap.Error(err))
			continue
		}
		files[name] = asset.NewFile(name, data)
	}

	in.logger.Debug("unpacked archive", zap.String("path", in.req.Path), zap.Int("files", len(files)))
	return []asset.Result{&asset.Files{Files: files}}, nil
}

func readZipEntry(zf *zip.File) ([]byte, error) {
	rc, err := zf.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

package exporter

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"maps"
	"slices"

	"github.com/Carmen-Shannon/oxypipe/common"
	"github.com/Carmen-Shannon/oxypipe/engine/asset"
)

type zipWriter struct{}

var _ asset.Writer = &zipWriter{}

// NewZipWriter creates a writer packing a set of files into a zip archive, in path order.
//
// Returns:
//   - asset.Writer: the writer
func NewZipWriter() asset.Writer {
	return &zipWriter{}
}

func (w *zipWriter) Write(ctx context.Context, obj any, opts *asset.ExportOptions) (*asset.Blob, error) {
	files, ok := obj.(map[string]*asset.File)
	if !ok {
		return nil, fmt.Errorf("%w: %T is not a file set", ErrNotExportable, obj)
	}

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, name := range slices.Sorted(maps.Keys(files)) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		f := files[name]
		if f == nil {
			continue
		}
		entry, err := zw.Create(common.Coalesce(name, f.Path, f.Name))
		if err != nil {
			return nil, fmt.Errorf("failed to add %s: %w", name, err)
		}
		if _, err := entry.Write(f.Data); err != nil {
			return nil, fmt.Errorf("failed to write %s: %w", name, err)
		}
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("failed to finish archive: %w", err)
	}
	return &asset.Blob{Data: buf.Bytes(), Ext: exportExt(opts, "zip"), Mime: "application/zip"}, nil
}

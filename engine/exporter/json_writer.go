package exporter

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/Carmen-Shannon/oxypipe/common"
	"github.com/Carmen-Shannon/oxypipe/engine/asset"
)

type jsonWriter struct{}

var _ asset.Writer = &jsonWriter{}

// NewJSONWriter creates a writer encoding any JSON-marshalable object, indented unless Minify is set.
//
// Returns:
//   - asset.Writer: the writer
func NewJSONWriter() asset.Writer {
	return &jsonWriter{}
}

func (w *jsonWriter) Write(_ context.Context, obj any, opts *asset.ExportOptions) (*asset.Blob, error) {
	var data []byte
	var err error
	if opts != nil && opts.Minify {
		data, err = json.Marshal(obj)
	} else {
		data, err = json.MarshalIndent(obj, "", "  ")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to encode JSON: %w", err)
	}
	return &asset.Blob{Data: data, Ext: exportExt(opts, "json"), Mime: "application/json"}, nil
}

type textWriter struct{}

var _ asset.Writer = &textWriter{}

// NewTextWriter creates a writer for strings, byte slices and fmt.Stringer values.
//
// Returns:
//   - asset.Writer: the writer
func NewTextWriter() asset.Writer {
	return &textWriter{}
}

func (w *textWriter) Write(_ context.Context, obj any, opts *asset.ExportOptions) (*asset.Blob, error) {
	var data []byte
	switch v := obj.(type) {
	case string:
		data = []byte(v)
	case []byte:
		data = v
	case fmt.Stringer:
		data = []byte(v.String())
	default:
		return nil, fmt.Errorf("%w: %T is not text", ErrNotExportable, obj)
	}
	return &asset.Blob{Data: data, Ext: exportExt(opts, "txt"), Mime: "text/plain"}, nil
}

func exportExt(opts *asset.ExportOptions, def string) string {
	if opts == nil {
		return def
	}
	return common.Coalesce(opts.ExportExt, def)
}

package loader

import (
	"bytes"
	"context"
	"fmt"
	"io/fs"
	"time"

	"github.com/Carmen-Shannon/oxypipe/engine/asset"

	"github.com/qmuntal/gltf"
)

// gltfLoaderBackendImpl is the implementation of gltfLoaderBackend.
type gltfLoaderBackendImpl struct{}

// gltfLoaderBackend is a loaderBackend implementation for glTF/GLB files.
// It decodes the document and delegates to the gltfImporter for extraction.
type gltfLoaderBackend interface {
	loaderBackend
}

var _ gltfLoaderBackend = &gltfLoaderBackendImpl{}

// newGLTFLoaderBackend creates a new glTF loader backend.
//
// Returns:
//   - gltfLoaderBackend: the loader backend for glTF/GLB files
func newGLTFLoaderBackend() gltfLoaderBackend {
	return &gltfLoaderBackendImpl{}
}

func (b *gltfLoaderBackendImpl) Load(ctx context.Context, in *loadInput) ([]asset.Result, error) {
	doc := new(gltf.Document)
	dec := gltf.NewDecoderFS(bytes.NewReader(in.file.Data), &requestFS{ctx: ctx, req: in.req})
	if err := dec.Decode(doc); err != nil {
		return nil, fmt.Errorf("failed to decode glTF: %w", err)
	}

	m, err := newGLTFImporter(doc, in).Import(ctx)
	if err != nil {
		return nil, err
	}
	return []asset.Result{m}, nil
}

// requestFS resolves the external buffers of a glTF document through the load request, so they are
// found relative to the document wherever it came from.
type requestFS struct {
	ctx context.Context
	req *asset.Request
}

func (f *requestFS) Open(name string) (fs.File, error) {
	file, err := f.req.Open(f.ctx, name)
	if err != nil {
		return nil, &fs.PathError{Op: "open", Path: name, Err: err}
	}
	return &memFile{Reader: bytes.NewReader(file.Data), name: name, size: int64(len(file.Data))}, nil
}

type memFile struct {
	*bytes.Reader
	name string
	size int64
}

func (f *memFile) Stat() (fs.FileInfo, error) { return f, nil }
func (f *memFile) Close() error               { return nil }
func (f *memFile) Name() string               { return f.name }
func (f *memFile) Size() int64                { return f.size }
func (f *memFile) Mode() fs.FileMode          { return 0o444 }
func (f *memFile) ModTime() time.Time         { return time.Time{} }
func (f *memFile) IsDir() bool                { return false }
func (f *memFile) Sys() any                   { return nil }

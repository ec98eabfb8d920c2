// Package loader contains the file format loaders of the pipeline: glTF/GLB, JSON configs and
// materials, plain text, images and zip archives, plus the glTF extension hooks.
package loader

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/Carmen-Shannon/oxypipe/engine/asset"

	"go.uber.org/zap"
)

// LoaderBackendType identifies the file format backend to use.
type LoaderBackendType int

const (
	// BackendTypeGLTF selects the glTF/GLB loader backend.
	BackendTypeGLTF LoaderBackendType = iota
	// BackendTypeJSON selects the JSON backend for viewer configs, materials and generic documents.
	BackendTypeJSON
	// BackendTypeText selects the plain text backend.
	BackendTypeText
	// BackendTypeImage selects the image texture backend.
	BackendTypeImage
	// BackendTypeZip selects the zip archive backend.
	BackendTypeZip
)

func (t LoaderBackendType) String() string {
	switch t {
	case BackendTypeGLTF:
		return "gltf"
	case BackendTypeJSON:
		return "json"
	case BackendTypeText:
		return "text"
	case BackendTypeImage:
		return "image"
	case BackendTypeZip:
		return "zip"
	}
	return fmt.Sprintf("LoaderBackendType(%d)", int(t))
}

var (
	// ErrUnknownBackend is returned by Load when the loader was created with an unknown backend type.
	ErrUnknownBackend = errors.New("loader: unknown backend type")
)

// loader is the implementation of the Loader interface.
type loader struct {
	mu sync.RWMutex

	backendType LoaderBackendType
	backend     loaderBackend
	extensions  []*GLTFExtension

	logger *zap.Logger
}

// Loader defines the public-facing interface of a format loader. It decodes files through a
// format-specific backend and carries the glTF extensions applied to glTF documents.
type Loader interface {
	asset.Loader

	// BackendType returns the format the loader decodes.
	//
	// Returns:
	//   - LoaderBackendType: the backend type
	BackendType() LoaderBackendType

	// RegisterGLTFExtension adds an extension applied to every glTF document loaded afterwards.
	// An extension with the same name is replaced.
	//
	// Parameters:
	//   - ext: the extension to add
	RegisterGLTFExtension(ext *GLTFExtension)

	// UnregisterGLTFExtension removes the extension with the given name.
	//
	// Parameters:
	//   - name: the extension name
	UnregisterGLTFExtension(name string)

	// GLTFExtensions returns the registered extensions in registration order.
	//
	// Returns:
	//   - []*GLTFExtension: a copy of the extension list
	GLTFExtensions() []*GLTFExtension
}

var _ Loader = &loader{}

// NewLoader creates a new Loader instance with the specified backend type and options applied.
// glTF loaders start with the built-in extensions.
//
// Parameters:
//   - backendType: the type of loader backend to use (e.g., BackendTypeGLTF)
//   - options: a variadic list of LoaderBuilderOption functions to configure the Loader
//
// Returns:
//   - Loader: a new instance of Loader configured with the provided backend and options
func NewLoader(backendType LoaderBackendType, options ...LoaderBuilderOption) Loader {
	l := &loader{
		backendType: backendType,
		backend:     newBackend(backendType),
		logger:      zap.NewNop(),
	}
	if backendType == BackendTypeGLTF {
		l.extensions = DefaultGLTFExtensions()
	}

	for _, option := range options {
		option(l)
	}
	l.logger = l.logger.With(zap.String("component", "loader"), zap.Stringer("backend", backendType))
	return l
}

func (l *loader) BackendType() LoaderBackendType {
	return l.backendType
}

func (l *loader) Load(ctx context.Context, req *asset.Request) ([]asset.Result, error) {
	if l.backend == nil {
		return nil, ErrUnknownBackend
	}
	file, err := req.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", req.Path, err)
	}
	if req.Progress != nil {
		req.Progress(int64(file.Size()), int64(file.Size()))
	}

	results, err := l.backend.Load(ctx, &loadInput{
		req:        req,
		file:       file,
		extensions: l.GLTFExtensions(),
		logger:     l.logger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", req.Path, err)
	}
	l.logger.Debug("loaded file", zap.String("path", req.Path), zap.Int("results", len(results)))
	return results, nil
}

func (l *loader) RegisterGLTFExtension(ext *GLTFExtension) {
	if ext == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.extensions = slices.DeleteFunc(l.extensions, func(e *GLTFExtension) bool { return e.Name == ext.Name })
	l.extensions = append(l.extensions, ext)
}

func (l *loader) UnregisterGLTFExtension(name string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.extensions = slices.DeleteFunc(l.extensions, func(e *GLTFExtension) bool { return e.Name == name })
}

func (l *loader) GLTFExtensions() []*GLTFExtension {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return slices.Clone(l.extensions)
}

// DefaultImporters returns the importer registrations for every built-in backend. Each registration
// creates its loader with the given options.
//
// Parameters:
//   - options: options applied to every created loader
//
// Returns:
//   - []*asset.Importer: the registrations, glTF first
func DefaultImporters(options ...LoaderBuilderOption) []*asset.Importer {
	newFor := func(t LoaderBackendType) func() (asset.Loader, error) {
		return func() (asset.Loader, error) {
			return NewLoader(t, options...), nil
		}
	}
	return []*asset.Importer{
		{
			Name: "gltf",
			Ext:  []string{"gltf", "glb", "data:model/gltf", "data:model/glb"},
			Mime: []string{"model/gltf", "model/gltf+json", "model/gltf-binary", "model/glb"},
			Root: true,
			New:  newFor(BackendTypeGLTF),
		},
		{
			Name: "json",
			Ext:  []string{"json", "vjson", "mat", "pmat", "bmat", "data:application/json"},
			Mime: []string{"application/json"},
			New:  newFor(BackendTypeJSON),
		},
		{
			Name: "text",
			Ext:  []string{"txt", "data:text/plain"},
			Mime: []string{"text/plain"},
			New:  newFor(BackendTypeText),
		},
		{
			Name: "image",
			Ext:  []string{"png", "jpg", "jpeg", "webp", "gif", "bmp", "tif", "tiff", "hdr", "exr", "data:image"},
			Mime: []string{"image/png", "image/jpeg", "image/webp", "image/gif", "image/bmp", "image/tiff", "image/vnd.radiance", "image/x-exr"},
			New:  newFor(BackendTypeImage),
		},
		{
			Name: "zip",
			Ext:  []string{"zip", "glbz", "gltfz"},
			Mime: []string{"application/zip", "model/gltf+zip"},
			Root: true,
			New:  newFor(BackendTypeZip),
		},
	}
}

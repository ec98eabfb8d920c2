package loader

import (
	"context"

	"github.com/Carmen-Shannon/oxypipe/engine/asset"

	"go.uber.org/zap"
)

// loadInput is everything a backend needs for one load.
type loadInput struct {
	req        *asset.Request
	file       *asset.File
	extensions []*GLTFExtension
	logger     *zap.Logger
}

// loaderBackend defines the generic interface for decoding one file format.
// Concrete implementations (e.g., gltfLoaderBackend) handle format-specific details.
type loaderBackend interface {
	// Load decodes the contents of the requested file.
	//
	// Parameters:
	//   - ctx: the context of the load
	//   - in: the request, its contents and the loader state
	//
	// Returns:
	//   - []asset.Result: the decoded results
	//   - error: error if decoding fails
	Load(ctx context.Context, in *loadInput) ([]asset.Result, error)
}

func newBackend(backendType LoaderBackendType) loaderBackend {
	switch backendType {
	case BackendTypeGLTF:
		return newGLTFLoaderBackend()
	case BackendTypeJSON:
		return newJSONLoaderBackend()
	case BackendTypeText:
		return newTextLoaderBackend()
	case BackendTypeImage:
		return newImageLoaderBackend()
	case BackendTypeZip:
		return newZipLoaderBackend()
	}
	return nil
}

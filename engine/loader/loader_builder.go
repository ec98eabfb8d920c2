package loader

import "go.uber.org/zap"

// LoaderBuilderOption is a functional option for configuring a Loader via NewLoader.
type LoaderBuilderOption func(*loader)

// WithLogger is an option builder that sets the logger used by the Loader.
//
// Parameters:
//   - logger: the zap logger
//
// Returns:
//   - LoaderBuilderOption: a function that applies the logger option to a loader
func WithLogger(logger *zap.Logger) LoaderBuilderOption {
	return func(l *loader) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// WithGLTFExtensions is an option builder that replaces the glTF extensions of the Loader.
//
// Parameters:
//   - exts: the extensions, applied in order
//
// Returns:
//   - LoaderBuilderOption: a function that applies the extensions option to a loader
func WithGLTFExtensions(exts ...*GLTFExtension) LoaderBuilderOption {
	return func(l *loader) {
		l.extensions = append([]*GLTFExtension(nil), exts...)
	}
}

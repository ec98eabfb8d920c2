package material

import (
	"github.com/Carmen-Shannon/oxypipe/engine/reference"

	"go.uber.org/zap"
)

// ManagerBuilderOption is a functional option for configuring a Manager during construction.
type ManagerBuilderOption func(*manager)

// WithLogger sets the logger used by the manager.
//
// Parameters:
//   - logger: the zap logger
//
// Returns:
//   - ManagerBuilderOption: functional option to set the logger
func WithLogger(logger *zap.Logger) ManagerBuilderOption {
	return func(m *manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithTextureReferences sets the reference table used to track which materials hold which textures.
// Registered materials own one reference per texture map.
//
// Parameters:
//   - refs: the reference table
//
// Returns:
//   - ManagerBuilderOption: functional option to set the reference table
func WithTextureReferences(refs reference.Manager) ManagerBuilderOption {
	return func(m *manager) {
		m.textureRefs = refs
	}
}

// WithTemplates registers additional templates after the built-in ones.
//
// Parameters:
//   - templates: the templates to register
//
// Returns:
//   - ManagerBuilderOption: functional option to add templates
func WithTemplates(templates ...*Template) ManagerBuilderOption {
	return func(m *manager) {
		m.pending = append(m.pending, templates...)
	}
}

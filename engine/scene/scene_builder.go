package scene

import (
	"github.com/Carmen-Shannon/oxypipe/engine/camera"
	"github.com/Carmen-Shannon/oxypipe/engine/game_object"

	"go.uber.org/zap"
)

// SceneBuilderOption is a functional option for configuring a Scene.
// Use the With* functions to create options.
type SceneBuilderOption func(s *scene)

// WithName sets the scene name.
//
// Parameters:
//   - name: the scene name
//
// Returns:
//   - SceneBuilderOption: option function to apply
func WithName(name string) SceneBuilderOption {
	return func(s *scene) {
		s.name = name
		s.root.SetName(name)
	}
}

// WithActive sets whether the scene is the one currently shown.
//
// Parameters:
//   - active: whether the scene is active
//
// Returns:
//   - SceneBuilderOption: option function to apply
func WithActive(active bool) SceneBuilderOption {
	return func(s *scene) {
		s.active = active
	}
}

// WithObjects adds initial objects under the model root.
//
// Parameters:
//   - objects: the objects to add
//
// Returns:
//   - SceneBuilderOption: option function to apply
func WithObjects(objects ...game_object.GameObject) SceneBuilderOption {
	return func(s *scene) {
		for _, obj := range objects {
			if obj == nil {
				continue
			}
			s.modelRoot.Add(obj)
			s.track(obj)
		}
	}
}

// WithCamera sets the main camera.
//
// Parameters:
//   - cam: the camera
//
// Returns:
//   - SceneBuilderOption: option function to apply
func WithCamera(cam camera.Camera) SceneBuilderOption {
	return func(s *scene) {
		s.cam = cam
	}
}

// WithLogger sets the logger.
//
// Parameters:
//   - logger: the zap logger
//
// Returns:
//   - SceneBuilderOption: option function to apply
func WithLogger(logger *zap.Logger) SceneBuilderOption {
	return func(s *scene) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithRuntimeVersion sets the version stamped on exported configs and checked against imported ones.
//
// Parameters:
//   - version: a semantic version
//
// Returns:
//   - SceneBuilderOption: option function to apply
func WithRuntimeVersion(version string) SceneBuilderOption {
	return func(s *scene) {
		if version != "" {
			s.runtimeVersion = version
		}
	}
}

// WithAutoDisposeSceneMaps sets whether replaced environment and background textures are disposed.
// Defaults to true.
//
// Parameters:
//   - auto: dispose replaced maps
//
// Returns:
//   - SceneBuilderOption: option function to apply
func WithAutoDisposeSceneMaps(auto bool) SceneBuilderOption {
	return func(s *scene) {
		s.autoDisposeMaps = auto
	}
}

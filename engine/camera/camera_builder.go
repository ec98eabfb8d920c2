package camera

import (
	"github.com/Carmen-Shannon/oxypipe/common"
)

type CameraBuilderOption func(*cameraImpl)

// WithName sets the camera name.
//
// Parameters:
//   - name: the camera name
//
// Returns:
//   - CameraBuilderOption: a function that sets the camera's name
func WithName(name string) CameraBuilderOption {
	return func(c *cameraImpl) {
		c.name = name
	}
}

// WithProjection sets the projection kind. Empty values keep the perspective default.
//
// Parameters:
//   - p: the projection kind
//
// Returns:
//   - CameraBuilderOption: a function that sets the camera's projection
func WithProjection(p common.CameraProjection) CameraBuilderOption {
	return func(c *cameraImpl) {
		if p != "" {
			c.projection = p
		}
	}
}

// WithFov sets the camera's field of view in radians. Zero keeps the default.
//
// Parameters:
//   - fov: field of view in radians
//
// Returns:
//   - CameraBuilderOption: a function that sets the camera's field of view
func WithFov(fov float32) CameraBuilderOption {
	return func(c *cameraImpl) {
		if fov > 0 {
			c.fov = fov
		}
	}
}

// WithAspect sets the camera's aspect ratio (width / height). Zero keeps the default.
//
// Parameters:
//   - aspect: the aspect ratio to set
//
// Returns:
//   - CameraBuilderOption: a function that sets the camera's aspect ratio
func WithAspect(aspect float32) CameraBuilderOption {
	return func(c *cameraImpl) {
		if aspect > 0 {
			c.aspect = aspect
		}
	}
}

// WithClipping sets the near and far clipping planes. Non-positive values keep the defaults.
//
// Parameters:
//   - near: near plane distance
//   - far: far plane distance
//
// Returns:
//   - CameraBuilderOption: a function that sets the clipping planes
func WithClipping(near, far float32) CameraBuilderOption {
	return func(c *cameraImpl) {
		if near > 0 {
			c.near = near
		}
		if far > 0 {
			c.far = far
		}
	}
}

// WithMagnification sets the orthographic half extents. Non-positive values keep the defaults.
//
// Parameters:
//   - xmag, ymag: the half width and half height
//
// Returns:
//   - CameraBuilderOption: a function that sets the magnification
func WithMagnification(xmag, ymag float32) CameraBuilderOption {
	return func(c *cameraImpl) {
		if xmag > 0 {
			c.xmag = xmag
		}
		if ymag > 0 {
			c.ymag = ymag
		}
	}
}

package camera

import (
	"math"
	"sync"

	"github.com/Carmen-Shannon/oxypipe/common"
)

type cameraImpl struct {
	mu *sync.Mutex

	name       string
	projection common.CameraProjection

	fov    float32
	aspect float32
	near   float32
	far    float32
	xmag   float32
	ymag   float32

	projectionMatrix [16]float32
}

// Camera defines the interface for the framework camera wrapper. Imported cameras are upgraded to a
// Camera so the rest of the pipeline reads one set of projection parameters regardless of the source format.
type Camera interface {
	// Name returns the camera name.
	//
	// Returns:
	//   - string: the name
	Name() string

	// Projection returns whether the camera is perspective or orthographic.
	//
	// Returns:
	//   - common.CameraProjection: the projection kind
	Projection() common.CameraProjection

	// Fov returns the vertical field of view in radians.
	//
	// Returns:
	//   - float32: field of view in radians
	Fov() float32

	// Aspect returns the aspect ratio (width / height).
	//
	// Returns:
	//   - float32: the aspect ratio
	Aspect() float32

	// Near returns the near clipping plane distance.
	//
	// Returns:
	//   - float32: near plane distance
	Near() float32

	// Far returns the far clipping plane distance.
	//
	// Returns:
	//   - float32: far plane distance
	Far() float32

	// Magnification returns the orthographic half extents.
	//
	// Returns:
	//   - xmag, ymag: the half width and half height
	Magnification() (xmag, ymag float32)

	// ProjectionMatrix returns the column-major projection matrix.
	//
	// Returns:
	//   - [16]float32: the projection matrix
	ProjectionMatrix() [16]float32

	// SetFov sets the vertical field of view in radians.
	//
	// Parameters:
	//   - fov: field of view in radians
	SetFov(fov float32)

	// SetAspect sets the aspect ratio.
	//
	// Parameters:
	//   - aspect: the aspect ratio
	SetAspect(aspect float32)

	// SetClipping sets the near and far clipping planes.
	//
	// Parameters:
	//   - near, far: the plane distances
	SetClipping(near, far float32)

	// ToImported converts the camera back to loader-native parameters for exporting.
	//
	// Returns:
	//   - *common.ImportedCamera: the camera parameters
	ToImported() *common.ImportedCamera
}

var _ Camera = &cameraImpl{}

// NewCamera creates a perspective camera with a 45 degree field of view.
//
// Parameters:
//   - options: functional options to configure the camera
//
// Returns:
//   - Camera: the newly created camera
func NewCamera(options ...CameraBuilderOption) Camera {
	c := &cameraImpl{
		mu:         &sync.Mutex{},
		projection: common.ProjectionPerspective,
		fov:        45.0 * (math.Pi / 180.0), // radians
		aspect:     1.0,
		near:       0.1,
		far:        100.0,
		xmag:       1,
		ymag:       1,
	}
	for _, option := range options {
		option(c)
	}
	c.updateMatrices()
	return c
}

// FromImported upgrades loader-native camera parameters to a Camera. Unset values keep the defaults.
//
// Parameters:
//   - src: the imported camera
//
// Returns:
//   - Camera: the framework camera
func FromImported(src *common.ImportedCamera) Camera {
	if src == nil {
		return NewCamera()
	}
	return NewCamera(
		WithName(src.Name),
		WithProjection(src.Projection),
		WithFov(src.YFov),
		WithAspect(src.AspectRatio),
		WithClipping(src.ZNear, src.ZFar),
		WithMagnification(src.XMag, src.YMag),
	)
}

func (c *cameraImpl) Name() string {
	return c.name
}

func (c *cameraImpl) Projection() common.CameraProjection {
	return c.projection
}

func (c *cameraImpl) Fov() float32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fov
}

func (c *cameraImpl) Aspect() float32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.aspect
}

func (c *cameraImpl) Near() float32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.near
}

func (c *cameraImpl) Far() float32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.far
}

func (c *cameraImpl) Magnification() (float32, float32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.xmag, c.ymag
}

func (c *cameraImpl) ProjectionMatrix() [16]float32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.projectionMatrix
}

func (c *cameraImpl) SetFov(fov float32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fov = fov
	c.updateMatrices()
}

func (c *cameraImpl) SetAspect(aspect float32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.aspect = aspect
	c.updateMatrices()
}

func (c *cameraImpl) SetClipping(near, far float32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.near, c.far = near, far
	c.updateMatrices()
}

func (c *cameraImpl) ToImported() *common.ImportedCamera {
	c.mu.Lock()
	defer c.mu.Unlock()
	return &common.ImportedCamera{
		Name:        c.name,
		Projection:  c.projection,
		YFov:        c.fov,
		AspectRatio: c.aspect,
		ZNear:       c.near,
		ZFar:        c.far,
		XMag:        c.xmag,
		YMag:        c.ymag,
	}
}

// updateMatrices recalculates the projection matrix. Caller must hold the mutex.
func (c *cameraImpl) updateMatrices() {
	if c.projection == common.ProjectionOrthographic {
		c.projectionMatrix = common.Orthographic(c.xmag, c.ymag, c.near, c.far)
		return
	}
	c.projectionMatrix = common.Perspective(c.fov, c.aspect, c.near, c.far)
}

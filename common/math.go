package common

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// Transform is a decomposed TRS transform. Rotation is a unit quaternion stored as (x, y, z, w).
type Transform struct {
	Translation [3]float32
	Rotation    [4]float32
	Scale       [3]float32
}

// IdentityTransform returns a transform with no translation, no rotation and unit scale.
//
// Returns:
//   - Transform: the identity transform
func IdentityTransform() Transform {
	return Transform{
		Rotation: [4]float32{0, 0, 0, 1},
		Scale:    [3]float32{1, 1, 1},
	}
}

// Matrix composes the transform into a column-major 4x4 matrix (T * R * S).
//
// Returns:
//   - [16]float32: the composed matrix
func (t Transform) Matrix() [16]float32 {
	q := mgl32.Quat{W: t.Rotation[3], V: mgl32.Vec3{t.Rotation[0], t.Rotation[1], t.Rotation[2]}}.Normalize()
	m := mgl32.Translate3D(t.Translation[0], t.Translation[1], t.Translation[2]).
		Mul4(q.Mat4()).
		Mul4(mgl32.Scale3D(t.Scale[0], t.Scale[1], t.Scale[2]))
	return [16]float32(m)
}

// Decompose splits a column-major 4x4 affine matrix into translation, rotation and scale.
// A negative determinant is folded into the X scale.
//
// Parameters:
//   - m: the matrix to decompose
//
// Returns:
//   - Transform: the decomposed transform
func Decompose(m [16]float32) Transform {
	mat := mgl32.Mat4(m)
	sx := mgl32.Vec3{mat[0], mat[1], mat[2]}.Len()
	sy := mgl32.Vec3{mat[4], mat[5], mat[6]}.Len()
	sz := mgl32.Vec3{mat[8], mat[9], mat[10]}.Len()
	if mat.Det() < 0 {
		sx = -sx
	}

	t := Transform{
		Translation: [3]float32{mat[12], mat[13], mat[14]},
		Scale:       [3]float32{sx, sy, sz},
		Rotation:    [4]float32{0, 0, 0, 1},
	}
	if sx == 0 || sy == 0 || sz == 0 {
		return t
	}

	rot := mat
	for i := 0; i < 3; i++ {
		rot[i] /= sx
		rot[4+i] /= sy
		rot[8+i] /= sz
	}
	q := mgl32.Mat4ToQuat(rot).Normalize()
	t.Rotation = [4]float32{q.V[0], q.V[1], q.V[2], q.W}
	return t
}

// Identity resets a 4x4 matrix (flat slice) to the identity matrix.
// The matrix is stored in column-major order.
//
// Parameters:
//   - m: destination slice (must be at least 16 elements)
func Identity(m []float32) {
	for i := range m {
		m[i] = 0
	}
	m[0], m[5], m[10], m[15] = 1, 1, 1, 1
}

// Mul4 multiplies two 4x4 matrices and returns a * b.
// All matrices are stored in column-major order.
//
// Parameters:
//   - a: left-hand matrix
//   - b: right-hand matrix
//
// Returns:
//   - [16]float32: the product
func Mul4(a, b [16]float32) [16]float32 {
	return [16]float32(mgl32.Mat4(a).Mul4(mgl32.Mat4(b)))
}

// Perspective creates a perspective projection matrix with WebGPU clip space depth [0, 1].
//
// Parameters:
//   - fovY: vertical field of view in radians
//   - aspect: viewport aspect ratio (width/height)
//   - near: near clipping plane distance (must be > 0)
//   - far: far clipping plane distance (must be > near)
//
// Returns:
//   - [16]float32: the projection matrix
func Perspective(fovY, aspect, near, far float32) [16]float32 {
	var out [16]float32
	f := 1.0 / float32(math.Tan(float64(fovY)/2.0))
	out[0] = f / aspect
	out[5] = f
	out[10] = far / (near - far)
	out[11] = -1.0
	out[14] = (near * far) / (near - far)
	return out
}

// Orthographic creates an orthographic projection matrix with WebGPU clip space depth [0, 1].
//
// Parameters:
//   - xmag, ymag: half extents of the view volume
//   - near, far: clipping plane distances
//
// Returns:
//   - [16]float32: the projection matrix
func Orthographic(xmag, ymag, near, far float32) [16]float32 {
	var out [16]float32
	out[0] = 1 / xmag
	out[5] = 1 / ymag
	out[10] = 1 / (near - far)
	out[14] = near / (near - far)
	out[15] = 1
	return out
}

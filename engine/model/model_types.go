package model

// Primitive is one drawable part of a mesh with a single material.
type Primitive struct {
	// Positions are the vertex positions.
	Positions [][3]float32

	// Normals are the per-vertex normals (may be empty).
	Normals [][3]float32

	// UVs are the first texture coordinate set (may be empty).
	UVs [][2]float32

	// Indices index into the vertex arrays. Empty for non-indexed geometry.
	Indices []uint32

	// MaterialIndex is the index into the owning node's material list, or -1.
	MaterialIndex int
}

// VertexCount returns the number of vertices in the primitive.
func (p *Primitive) VertexCount() int {
	return len(p.Positions)
}

// Bounds is an axis aligned bounding box.
type Bounds struct {
	Min [3]float32
	Max [3]float32
}

// Empty reports whether the bounds contain no points.
func (b Bounds) Empty() bool {
	return b.Min[0] > b.Max[0] || b.Min[1] > b.Max[1] || b.Min[2] > b.Max[2]
}

// Center returns the center of the box.
func (b Bounds) Center() [3]float32 {
	return [3]float32{
		(b.Min[0] + b.Max[0]) / 2,
		(b.Min[1] + b.Max[1]) / 2,
		(b.Min[2] + b.Max[2]) / 2,
	}
}

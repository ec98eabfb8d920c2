package model

import (
	"math"
	"sync"
)

// model is the implementation of the Model interface.
type model struct {
	mu sync.RWMutex

	name       string
	primitives []Primitive

	bounds      Bounds
	boundsDirty bool
}

// Model defines the interface for the CPU-side mesh geometry of a scene node.
// A Model is shared between the node that owns it and any exporter that writes it back out.
type Model interface {
	// Name returns the mesh name.
	//
	// Returns:
	//   - string: the mesh name
	Name() string

	// Primitives returns the drawable parts of the mesh.
	//
	// Returns:
	//   - []Primitive: the primitives (shared, do not mutate)
	Primitives() []Primitive

	// AddPrimitive appends a primitive to the mesh.
	//
	// Parameters:
	//   - p: the primitive to append
	AddPrimitive(p Primitive)

	// VertexCount returns the total number of vertices across all primitives.
	//
	// Returns:
	//   - int: the vertex count
	VertexCount() int

	// Bounds returns the axis aligned bounding box of all primitive positions.
	//
	// Returns:
	//   - Bounds: the bounding box
	Bounds() Bounds

	// BoundingRadius returns the radius of the sphere around the bounds center that contains every vertex.
	//
	// Returns:
	//   - float32: the bounding radius
	BoundingRadius() float32
}

var _ Model = &model{}

// NewModel creates a new Model configured with the given options.
//
// Parameters:
//   - options: functional options to configure the model
//
// Returns:
//   - Model: the newly created model
func NewModel(options ...ModelBuilderOption) Model {
	m := &model{boundsDirty: true}
	for _, option := range options {
		option(m)
	}
	return m
}

func (m *model) Name() string {
	return m.name
}

func (m *model) Primitives() []Primitive {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.primitives
}

func (m *model) AddPrimitive(p Primitive) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.primitives = append(m.primitives, p)
	m.boundsDirty = true
}

func (m *model) VertexCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for i := range m.primitives {
		n += m.primitives[i].VertexCount()
	}
	return n
}

func (m *model) Bounds() Bounds {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.boundsDirty {
		return m.bounds
	}

	inf := float32(math.Inf(1))
	b := Bounds{Min: [3]float32{inf, inf, inf}, Max: [3]float32{-inf, -inf, -inf}}
	for i := range m.primitives {
		for _, p := range m.primitives[i].Positions {
			for k := 0; k < 3; k++ {
				b.Min[k] = min(b.Min[k], p[k])
				b.Max[k] = max(b.Max[k], p[k])
			}
		}
	}
	m.bounds = b
	m.boundsDirty = false
	return b
}

func (m *model) BoundingRadius() float32 {
	b := m.Bounds()
	if b.Empty() {
		return 0
	}
	c := b.Center()

	m.mu.RLock()
	defer m.mu.RUnlock()
	var r2 float32
	for i := range m.primitives {
		for _, p := range m.primitives[i].Positions {
			dx, dy, dz := p[0]-c[0], p[1]-c[1], p[2]-c[2]
			r2 = max(r2, dx*dx+dy*dy+dz*dz)
		}
	}
	return float32(math.Sqrt(float64(r2)))
}

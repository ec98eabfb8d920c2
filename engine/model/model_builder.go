package model

// ModelBuilderOption is a functional option for configuring a Model during construction.
type ModelBuilderOption func(*model)

// WithName sets the mesh name.
//
// Parameters:
//   - name: the mesh name
//
// Returns:
//   - ModelBuilderOption: functional option to set the name
func WithName(name string) ModelBuilderOption {
	return func(m *model) {
		m.name = name
	}
}

// WithPrimitives sets the initial primitives of the mesh.
//
// Parameters:
//   - primitives: the primitives to assign
//
// Returns:
//   - ModelBuilderOption: functional option to set the primitives
func WithPrimitives(primitives ...Primitive) ModelBuilderOption {
	return func(m *model) {
		m.primitives = append(m.primitives, primitives...)
	}
}

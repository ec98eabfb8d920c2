package material

import (
	"github.com/Carmen-Shannon/oxypipe/common"
)

// MaterialBuilderOption is a function that configures a material instance during construction.
type MaterialBuilderOption func(*material)

// WithUUID is an option builder that sets the unique identifier of the material.
//
// Parameters:
//   - id: the material UUID
//
// Returns:
//   - MaterialBuilderOption: a function that applies the UUID option to a material
func WithUUID(id string) MaterialBuilderOption {
	return func(m *material) {
		if id != "" {
			m.uuid = id
		}
	}
}

// WithName is an option builder that sets the name of the material.
//
// Parameters:
//   - name: the identifier for the material
//
// Returns:
//   - MaterialBuilderOption: a function that applies the name option to a material
func WithName(name string) MaterialBuilderOption {
	return func(m *material) {
		m.props.Name = name
	}
}

// WithType is an option builder that sets the type slug and long type name of the material.
//
// Parameters:
//   - typeSlug: the short type identifier, used as the export file extension
//   - materialType: the long type name
//
// Returns:
//   - MaterialBuilderOption: a function that applies the type option to a material
func WithType(typeSlug, materialType string) MaterialBuilderOption {
	return func(m *material) {
		m.typeSlug = typeSlug
		m.materialType = materialType
	}
}

// WithProperties is an option builder that replaces all surface properties of the material.
//
// Parameters:
//   - props: the properties to assign
//
// Returns:
//   - MaterialBuilderOption: a function that applies the properties option to a material
func WithProperties(props Properties) MaterialBuilderOption {
	return func(m *material) {
		m.props = props
	}
}

// WithBaseColor is an option builder that sets the albedo/diffuse RGBA color of the material.
//
// Parameters:
//   - color: the base color as RGBA float32 values
//
// Returns:
//   - MaterialBuilderOption: a function that applies the base color option to a material
func WithBaseColor(color [4]float32) MaterialBuilderOption {
	return func(m *material) {
		m.props.BaseColor = color
	}
}

// WithMetallic is an option builder that sets the metallic factor of the material.
//
// Parameters:
//   - metallic: the metallic factor (0.0 = dielectric, 1.0 = metal)
//
// Returns:
//   - MaterialBuilderOption: a function that applies the metallic option to a material
func WithMetallic(metallic float32) MaterialBuilderOption {
	return func(m *material) {
		m.props.Metallic = metallic
	}
}

// WithRoughness is an option builder that sets the roughness factor of the material.
//
// Parameters:
//   - roughness: the roughness factor (0.0 = smooth, 1.0 = rough)
//
// Returns:
//   - MaterialBuilderOption: a function that applies the roughness option to a material
func WithRoughness(roughness float32) MaterialBuilderOption {
	return func(m *material) {
		m.props.Roughness = roughness
	}
}

// WithDiffuseTexture is an option builder that sets the base color texture of the material.
//
// Parameters:
//   - tex: the diffuse texture data reference
//
// Returns:
//   - MaterialBuilderOption: a function that applies the diffuse texture option to a material
func WithDiffuseTexture(tex *common.ImportedTexture) MaterialBuilderOption {
	return func(m *material) {
		m.props.DiffuseTexture = tex
	}
}

// WithUserData is an option builder that seeds the user data of the material.
//
// Parameters:
//   - data: the entries to copy into the user data
//
// Returns:
//   - MaterialBuilderOption: a function that applies the user data option to a material
func WithUserData(data map[string]any) MaterialBuilderOption {
	return func(m *material) {
		for k, v := range data {
			m.userData[k] = v
		}
	}
}

package material

import "slices"

const (
	PhysicalTypeSlug     = "pmat"
	PhysicalMaterialType = "PhysicalMaterial"
	UnlitTypeSlug        = "bmat"
	UnlitMaterialType    = "UnlitMaterial"
)

// Template describes how to create a material of a given type. Templates are looked up by Name,
// MaterialType or any Alias.
type Template struct {
	// Name is the primary lookup name (e.g. "physical").
	Name string

	// MaterialType is the long type name of generated materials.
	MaterialType string

	// TypeSlug is the short type identifier of generated materials.
	TypeSlug string

	// Alias lists alternative names, including loader-native type names.
	Alias []string

	// Params are the default properties passed to Generator.
	Params *Properties

	// Generator creates a new material from params. Templates without a generator inherit the
	// generator of the template named by MaterialType.
	Generator func(params Properties) Material

	// TemplateUUID identifies the template inside a Manager. Assigned on registration when empty.
	TemplateUUID string
}

func (t *Template) matches(nameOrType string) bool {
	return t.Name == nameOrType || t.MaterialType == nameOrType
}

func (t *Template) hasAlias(nameOrType string) bool {
	return slices.Contains(t.Alias, nameOrType)
}

// PhysicalTemplate returns the built-in template for metallic/roughness materials.
//
// Returns:
//   - *Template: the physical template
func PhysicalTemplate() *Template {
	return &Template{
		Name:         "physical",
		MaterialType: PhysicalMaterialType,
		TypeSlug:     PhysicalTypeSlug,
		Alias:        []string{"standard", "pbr", PhysicalTypeSlug, "MeshStandardMaterial", "MeshPhysicalMaterial"},
		Generator: func(params Properties) Material {
			return NewMaterial(WithType(PhysicalTypeSlug, PhysicalMaterialType), WithProperties(params))
		},
	}
}

// UnlitTemplate returns the built-in template for materials without lighting.
//
// Returns:
//   - *Template: the unlit template
func UnlitTemplate() *Template {
	return &Template{
		Name:         "unlit",
		MaterialType: UnlitMaterialType,
		TypeSlug:     UnlitTypeSlug,
		Alias:        []string{"basic", UnlitTypeSlug, "MeshBasicMaterial", "KHR_materials_unlit"},
		Generator: func(params Properties) Material {
			return NewMaterial(WithType(UnlitTypeSlug, UnlitMaterialType), WithProperties(params))
		},
	}
}

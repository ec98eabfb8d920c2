package material

import (
	"encoding/json"
	"regexp"
	"testing"

	"github.com/Carmen-Shannon/oxypipe/common"
	"github.com/Carmen-Shannon/oxypipe/engine/reference"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManager_RegisterCollisionAssignsNewUUID(t *testing.T) {
	mgr := NewManager()

	first := NewMaterial(WithUUID("shared"), WithName("first"))
	second := NewMaterial(WithUUID("shared"), WithName("second"))

	require.True(t, mgr.RegisterMaterial(first))
	require.True(t, mgr.RegisterMaterial(second))
	assert.False(t, mgr.RegisterMaterial(second), "registering twice is a no-op")

	assert.Equal(t, "shared", first.UUID())
	assert.NotEqual(t, first.UUID(), second.UUID())
	assert.Same(t, first, mgr.FindMaterial(first.UUID()))
	assert.Same(t, second, mgr.FindMaterial(second.UUID()))
	assert.Equal(t, second.UUID(), second.UserData()["uuid"])
	assert.Len(t, mgr.GetAllMaterials(), 2)
}

func TestManager_DisposeUnregisters(t *testing.T) {
	mgr := NewManager()
	m := NewMaterial(WithName("m"))
	mgr.RegisterMaterial(m)

	m.Dispose()
	assert.Nil(t, mgr.FindMaterial(m.UUID()))
	assert.Empty(t, mgr.GetAllMaterials())
}

func TestManager_Lookups(t *testing.T) {
	mgr := NewManager()
	a, err := mgr.Create("physical", Properties{Name: "wood", BaseColor: [4]float32{1, 0, 0, 1}}, true)
	require.NoError(t, err)
	b, err := mgr.Create("unlit", Properties{Name: "wood_unlit"}, true)
	require.NoError(t, err)

	assert.Equal(t, []Material{a}, mgr.FindMaterialsByName("wood"))
	assert.Len(t, mgr.FindMaterialsByPattern(regexp.MustCompile(`^wood`)), 2)
	assert.Equal(t, []Material{a}, mgr.GetMaterialsOfType(PhysicalTypeSlug))
	assert.Equal(t, []Material{b}, mgr.GetMaterialsOfType(UnlitTypeSlug))
	assert.Nil(t, mgr.GetMaterialsOfType(""))
	assert.Equal(t, [4]float32{1, 0, 0, 1}, a.Properties().BaseColor)
}

func TestManager_FindTemplateByAlias(t *testing.T) {
	mgr := NewManager()
	assert.Equal(t, "physical", mgr.FindTemplate("MeshStandardMaterial", true).Name)
	assert.Equal(t, "unlit", mgr.FindTemplate(UnlitMaterialType, false).Name)
	assert.Nil(t, mgr.FindTemplate("", false))

	_, err := mgr.Create("toon", nil, false)
	assert.ErrorIs(t, err, ErrTemplateNotFound)
}

func TestManager_TemplateInheritsGenerator(t *testing.T) {
	params := DefaultProperties()
	params.Metallic = 1
	mgr := NewManager(WithTemplates(&Template{Name: "chrome", MaterialType: "physical", Params: &params}))

	mat, err := mgr.Create("chrome", nil, false)
	require.NoError(t, err)
	assert.Equal(t, PhysicalTypeSlug, mat.TypeSlug())
	assert.Equal(t, float32(1), mat.Properties().Metallic)

	require.Error(t, mgr.RegisterMaterialTemplate(mgr.Templates()[0]))
}

func TestManager_ConvertToIMaterial(t *testing.T) {
	mgr := NewManager()
	src := &common.ImportedMaterial{
		UUID:      "mat-1",
		Name:      "glass",
		Type:      "MeshStandardMaterial",
		BaseColor: [4]float32{0.5, 0.5, 0.5, 0.2},
		Roughness: 0.1,
		Extras:    map[string]any{"tag": "window"},
	}

	converted, err := mgr.ConvertToIMaterial(src, ConvertOptions{})
	require.NoError(t, err)
	assert.Equal(t, "mat-1", converted.UUID())
	assert.Equal(t, "glass", converted.Name())
	assert.Equal(t, PhysicalTypeSlug, converted.TypeSlug())
	assert.Equal(t, "window", converted.UserData()["tag"])
	assert.Nil(t, mgr.FindMaterial("mat-1"), "conversion does not register")

	mgr.RegisterMaterial(converted)
	src.Roughness = 0.7
	again, err := mgr.ConvertToIMaterial(src, ConvertOptions{})
	require.NoError(t, err)
	assert.Same(t, converted, again)
	assert.Equal(t, float32(0.7), again.Properties().Roughness)

	unlit, err := mgr.ConvertToIMaterial(&common.ImportedMaterial{Name: "flat"}, ConvertOptions{MaterialTemplate: "unlit"})
	require.NoError(t, err)
	assert.Equal(t, UnlitTypeSlug, unlit.TypeSlug())
	assert.NotEmpty(t, unlit.UUID())
}

func TestManager_Extensions(t *testing.T) {
	mgr := NewManager()
	m := NewMaterial()
	mgr.RegisterMaterial(m)

	applied := map[Material]int{}
	ext := &Extension{
		Name:         "clearcoat",
		OnRegister:   func(mat Material) { applied[mat]++ },
		OnUnregister: func(mat Material) { applied[mat]-- },
	}
	mgr.RegisterMaterialExtension(ext)
	mgr.RegisterMaterialExtension(ext)
	assert.Equal(t, 1, applied[m])

	late := NewMaterial()
	mgr.RegisterMaterial(late)
	assert.Equal(t, 1, applied[late])

	mgr.ClearExtensions()
	assert.Equal(t, 0, applied[m])
	assert.Empty(t, late.Extensions())
}

func TestManager_TextureReferences(t *testing.T) {
	refs := reference.NewManager()
	mgr := NewManager(WithTextureReferences(refs))
	tex := &common.ImportedTexture{Path: "textures/wood.png"}

	a := NewMaterial(WithDiffuseTexture(tex))
	b := NewMaterial(WithDiffuseTexture(tex))
	mgr.RegisterMaterial(a)
	mgr.RegisterMaterial(b)
	assert.Equal(t, 2, refs.Owners("textures/wood.png"))

	mgr.UnregisterMaterial(a)
	assert.Equal(t, 1, refs.Owners("textures/wood.png"))
	b.Dispose()
	assert.False(t, refs.Has("textures/wood.png"))
}

func TestManager_ExportMaterial(t *testing.T) {
	mgr := NewManager()
	m := NewMaterial(WithUUID("u1"), WithName("steel"), WithMetallic(1))

	name, data, err := mgr.ExportMaterial(m, "", true)
	require.NoError(t, err)
	assert.Equal(t, "steel.pmat", name)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.Equal(t, "u1", doc["uuid"])
	assert.Equal(t, PhysicalMaterialType, doc["type"])
	assert.Equal(t, float64(1), doc["metalness"])

	typ, id, props, _, err := UnmarshalMaterial(data)
	require.NoError(t, err)
	assert.Equal(t, PhysicalMaterialType, typ)
	assert.Equal(t, "u1", id)
	assert.Equal(t, "steel", props.Name)
}

func TestManager_ApplyMaterial(t *testing.T) {
	mgr := NewManager()
	target, _ := mgr.Create("physical", Properties{Name: "body"}, true)
	src := NewMaterial(WithName("paint"), WithBaseColor([4]float32{0, 0, 1, 1}))

	assert.True(t, mgr.ApplyMaterial(src, "body"))
	assert.Equal(t, "body", target.Name())
	assert.Equal(t, [4]float32{0, 0, 1, 1}, target.Properties().BaseColor)

	var replaced []Replacement
	mgr.OnReplace(func(r Replacement) { replaced = append(replaced, r) })
	unlit, _ := mgr.Create("unlit", Properties{Name: "flat"}, false)
	assert.True(t, mgr.ApplyMaterial(unlit, target.UUID()))
	require.Len(t, replaced, 1)
	assert.Same(t, target, replaced[0].Old)
	assert.Equal(t, UnlitTypeSlug, replaced[0].New.TypeSlug())
	assert.Equal(t, "body", replaced[0].New.Name())

	assert.False(t, mgr.ApplyMaterial(src, "missing"))
}

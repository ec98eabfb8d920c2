package loader

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"math"
	"testing"

	"github.com/Carmen-Shannon/oxypipe/common"
	"github.com/Carmen-Shannon/oxypipe/engine/asset"
	"github.com/Carmen-Shannon/oxypipe/engine/game_object"

	"github.com/qmuntal/gltf"
	"github.com/qmuntal/gltf/modeler"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildTestDocument() *gltf.Document {
	doc := &gltf.Document{
		Asset:   gltf.Asset{Version: "2.0", Generator: "test"},
		Buffers: []*gltf.Buffer{{}},
		Scene:   gltf.Index(0),
	}
	pos := modeler.WritePosition(doc, [][3]float32{{0, 0, 0}, {1, 0, 0}, {0, 1, 0}})
	idx := modeler.WriteIndices(doc, []uint16{0, 1, 2})

	doc.Materials = []*gltf.Material{{
		Name: "red",
		PBRMetallicRoughness: &gltf.PBRMetallicRoughness{
			BaseColorFactor: &[4]float64{1, 0, 0, 1},
			MetallicFactor:  gltf.Float(0),
			RoughnessFactor: gltf.Float(0.5),
		},
		Extras: map[string]any{"uuid": "mat-red"},
	}}
	doc.Meshes = []*gltf.Mesh{{
		Name: "tri",
		Primitives: []*gltf.Primitive{{
			Indices:    gltf.Index(idx),
			Attributes: map[string]int{gltf.POSITION: pos},
			Material:   gltf.Index(0),
		}},
	}}
	doc.Cameras = []*gltf.Camera{{Name: "cam", Perspective: &gltf.Perspective{Yfov: 0.8, Znear: 0.1}}}
	doc.Extensions = gltf.Extensions{
		lightsPunctualExtensionName: map[string]any{
			"lights": []any{map[string]any{"name": "lamp", "type": "spot", "intensity": 2}},
		},
	}
	doc.Nodes = []*gltf.Node{
		{
			Name:        "triangle",
			Mesh:        gltf.Index(0),
			Translation: [3]float64{1, 2, 3},
			Extensions: gltf.Extensions{
				Object3DExtrasExtensionName: map[string]any{"visible": false, "castShadow": true},
				"EXT_custom":                map[string]any{"a": 1},
			},
		},
		{Name: "camera", Camera: gltf.Index(0)},
		{Name: "light", Extensions: gltf.Extensions{lightsPunctualExtensionName: map[string]any{"light": 0}}},
	}
	doc.Scenes = []*gltf.Scene{{
		Name:  "test-scene",
		Nodes: []int{0, 1, 2},
		Extensions: gltf.Extensions{
			ViewerExtensionName: map[string]any{"plugins": []any{map[string]any{"type": "Ground"}}},
		},
	}}
	return doc
}

func encodeGLB(t *testing.T, doc *gltf.Document) []byte {
	t.Helper()
	var buf bytes.Buffer
	enc := gltf.NewEncoder(&buf)
	enc.AsBinary = true
	require.NoError(t, enc.Encode(doc))
	return buf.Bytes()
}

func loadBytes(t *testing.T, l Loader, name string, data []byte, fetch asset.FetchFunc) []asset.Result {
	t.Helper()
	if fetch == nil {
		fetch = func(_ context.Context, ref string) (*asset.File, error) {
			return nil, errors.New("not found: " + ref)
		}
	}
	results, err := l.Load(context.Background(), &asset.Request{
		Path:    name,
		RootURL: common.URLBase(name),
		File:    asset.NewFile(name, data),
		Fetch:   fetch,
	})
	require.NoError(t, err)
	return results
}

func TestGLTFLoader_SceneGraph(t *testing.T) {
	results := loadBytes(t, NewLoader(BackendTypeGLTF), "models/scene.glb", encodeGLB(t, buildTestDocument()), nil)
	require.Len(t, results, 1)
	m, ok := results[0].(*asset.Model)
	require.True(t, ok)

	assert.Equal(t, "test-scene", m.Name())
	assert.True(t, m.IsSceneRoot())
	assert.Equal(t, game_object.TypeScene, m.Root.Type())

	children := m.Root.Children()
	require.Len(t, children, 3)

	tri := children[0]
	assert.Equal(t, game_object.TypeMesh, tri.Type())
	assert.Equal(t, [3]float32{1, 2, 3}, tri.Transform().Translation)
	require.NotNil(t, tri.Model())
	assert.Equal(t, 3, tri.Model().VertexCount())
	prim := tri.Model().Primitives()[0]
	assert.Equal(t, []uint32{0, 1, 2}, prim.Indices)
	assert.Len(t, prim.Normals, 3, "normals are generated when missing")
	assert.InDelta(t, 1, prim.Normals[0][2], 1e-6)

	mats := tri.ImportedMaterials()
	require.Len(t, mats, 1)
	assert.Equal(t, "red", mats[0].Name)
	assert.Equal(t, "mat-red", mats[0].UUID)
	assert.Equal(t, [4]float32{1, 0, 0, 1}, mats[0].BaseColor)
	assert.Equal(t, float32(0), mats[0].Metallic)
	assert.Equal(t, float32(0.5), mats[0].Roughness)
	assert.Equal(t, "physical", mats[0].Type)

	cam := children[1]
	assert.Equal(t, game_object.TypeCamera, cam.Type())
	require.NotNil(t, cam.ImportedCamera())
	assert.Equal(t, common.ProjectionPerspective, cam.ImportedCamera().Projection)
	assert.InDelta(t, 0.8, cam.ImportedCamera().YFov, 1e-6)

	lamp := children[2]
	assert.Equal(t, game_object.TypeLight, lamp.Type())
	require.NotNil(t, lamp.ImportedLight())
	assert.Equal(t, "spot", lamp.ImportedLight().Type)
	assert.Equal(t, float32(2), lamp.ImportedLight().Intensity)
	assert.InDelta(t, math.Pi/4, lamp.ImportedLight().OuterConeAngle, 1e-6)
}

func TestGLTFLoader_BuiltinExtensions(t *testing.T) {
	results := loadBytes(t, NewLoader(BackendTypeGLTF), "scene.glb", encodeGLB(t, buildTestDocument()), nil)
	m := results[0].(*asset.Model)
	children := m.Root.Children()

	tri := children[0]
	assert.False(t, tri.Visible())
	assert.True(t, tri.CastShadow())
	assert.Equal(t, true, tri.UserData()["__keepShadowDef"])
	exts, ok := tri.UserData()[ExtensionsUserDataKey].(map[string]any)
	require.True(t, ok, "unhandled extensions stay in user data")
	assert.NotContains(t, exts, Object3DExtrasExtensionName)
	assert.Contains(t, exts, "EXT_custom")

	assert.True(t, children[2].CastShadow(), "lights cast shadows by default")
	assert.False(t, children[1].CastShadow())

	require.NotNil(t, m.ViewerConfig)
	assert.Equal(t, "ThreeViewer", m.ViewerConfig.Type)
	assert.Equal(t, "config", m.ViewerConfig.AssetType)
	assert.NotNil(t, m.ViewerConfig.Plugin("Ground"))
	assert.Same(t, m.ViewerConfig, m.Root.UserData()[ImportedViewerConfigKey])
}

func TestGLTFLoader_ExternalBufferResolvedThroughRequest(t *testing.T) {
	bin := make([]byte, 0, 36)
	for _, v := range []float32{0, 0, 0, 1, 0, 0, 0, 1, 0} {
		bin = binary.LittleEndian.AppendUint32(bin, math.Float32bits(v))
	}
	const doc = `{
		"asset": {"version": "2.0"},
		"scene": 0,
		"scenes": [{"nodes": [0]}],
		"nodes": [{"mesh": 0, "name": "tri"}],
		"meshes": [{"primitives": [{"attributes": {"POSITION": 0}}]}],
		"accessors": [{"bufferView": 0, "componentType": 5126, "count": 3, "type": "VEC3", "max": [1, 1, 0], "min": [0, 0, 0]}],
		"bufferViews": [{"buffer": 0, "byteLength": 36}],
		"buffers": [{"uri": "tri.bin", "byteLength": 36}]
	}`

	var requested []string
	fetch := func(_ context.Context, ref string) (*asset.File, error) {
		requested = append(requested, ref)
		if ref == "tri.bin" {
			return asset.NewFile(ref, bin), nil
		}
		return nil, errors.New("not found")
	}

	results := loadBytes(t, NewLoader(BackendTypeGLTF), "models/tri.gltf", []byte(doc), fetch)
	m := results[0].(*asset.Model)
	assert.Contains(t, requested, "tri.bin")
	require.Len(t, m.Root.Children(), 1)
	assert.Equal(t, 3, m.Root.Children()[0].Model().VertexCount())
	assert.Empty(t, m.Name(), "unnamed scenes are named by the importer")
}

func TestGLTFLoader_CustomExtensionReplacesByName(t *testing.T) {
	l := NewLoader(BackendTypeGLTF)
	calls := 0
	newExt := func(tag string) *GLTFExtension {
		return &GLTFExtension{
			Name: "EXT_test",
			Import: func(*gltf.Document) *GLTFImportHooks {
				return &GLTFImportHooks{AfterRoot: func(_ context.Context, in *GLTFImport) error {
					calls++
					in.Root.UserData()["tag"] = tag
					return nil
				}}
			},
		}
	}
	l.RegisterGLTFExtension(newExt("first"))
	l.RegisterGLTFExtension(newExt("second"))
	assert.Len(t, l.GLTFExtensions(), len(DefaultGLTFExtensions())+1)

	results := loadBytes(t, l, "scene.glb", encodeGLB(t, buildTestDocument()), nil)
	assert.Equal(t, 1, calls)
	assert.Equal(t, "second", results[0].UserData()["tag"])

	l.UnregisterGLTFExtension("EXT_test")
	assert.Len(t, l.GLTFExtensions(), len(DefaultGLTFExtensions()))
}

func TestGLTFLoader_InvalidDocument(t *testing.T) {
	_, err := NewLoader(BackendTypeGLTF).Load(context.Background(), &asset.Request{
		Path: "broken.gltf",
		File: asset.NewFile("broken.gltf", []byte("{not json")),
	})
	assert.Error(t, err)
}

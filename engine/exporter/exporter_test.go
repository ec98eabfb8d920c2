package exporter

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/Carmen-Shannon/oxypipe/common"
	"github.com/Carmen-Shannon/oxypipe/engine/asset"
	"github.com/Carmen-Shannon/oxypipe/engine/game_object"
	"github.com/Carmen-Shannon/oxypipe/engine/loader"
	"github.com/Carmen-Shannon/oxypipe/engine/material"
	"github.com/Carmen-Shannon/oxypipe/engine/model"
	"github.com/Carmen-Shannon/oxypipe/engine/texture"
	"github.com/Carmen-Shannon/oxypipe/engine/viewer_config"

	"github.com/qmuntal/gltf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	img.Set(0, 0, color.RGBA{G: 255, A: 255})
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func triangle() model.Model {
	return model.NewModel(model.WithName("tri"), model.WithPrimitives(model.Primitive{
		Positions:     [][3]float32{{0, 0, 0}, {1, 0, 0}, {0, 1, 0}},
		Normals:       [][3]float32{{0, 0, 1}, {0, 0, 1}, {0, 0, 1}},
		Indices:       []uint32{0, 1, 2},
		MaterialIndex: 0,
	}))
}

func testScene(t *testing.T) *asset.Model {
	t.Helper()
	mat := &common.ImportedMaterial{
		UUID:           "mat-green",
		Name:           "green",
		Type:           "physical",
		BaseColor:      [4]float32{0, 1, 0, 1},
		Roughness:      0.25,
		AlphaMode:      "OPAQUE",
		DiffuseTexture: &common.ImportedTexture{Name: "albedo.png", MimeType: "image/png", Data: pngBytes(t, 2, 2)},
	}
	mesh := game_object.NewGameObject(
		game_object.WithName("mesh"),
		game_object.WithType(game_object.TypeMesh),
		game_object.WithModel(triangle()),
		game_object.WithImportedMaterials(mat),
		game_object.WithUserData(map[string]any{"tag": "keep"}),
	)
	helper := game_object.NewGameObject(
		game_object.WithName("helper"),
		game_object.WithUserData(map[string]any{ExcludeFromExportKey: true}),
	)
	cam := game_object.NewGameObject(
		game_object.WithName("cam"),
		game_object.WithImportedCamera(&common.ImportedCamera{Name: "cam", Projection: common.ProjectionPerspective, YFov: 0.9, ZNear: 0.1}),
	)
	root := game_object.NewGameObject(
		game_object.WithName("scene"),
		game_object.WithType(game_object.TypeScene),
		game_object.WithChildren(mesh, helper, cam),
	)
	return &asset.Model{Root: root}
}

func loadGLTF(t *testing.T, name string, data []byte) *asset.Model {
	t.Helper()
	results, err := loader.NewLoader(loader.BackendTypeGLTF).Load(context.Background(), &asset.Request{
		Path:    name,
		RootURL: "./",
		File:    asset.NewFile(name, data),
		Fetch: func(_ context.Context, ref string) (*asset.File, error) {
			return nil, errors.New("not found: " + ref)
		},
	})
	require.NoError(t, err)
	require.Len(t, results, 1)
	m, ok := results[0].(*asset.Model)
	require.True(t, ok)
	return m
}

type failingWriter struct {
	visible func() bool
	seen    bool
}

func (w *failingWriter) Write(context.Context, any, *asset.ExportOptions) (*asset.Blob, error) {
	w.seen = w.visible()
	return nil, errors.New("disk full")
}

func TestExportObject_GLBRoundTrip(t *testing.T) {
	scene := testScene(t)
	scene.Root.UserData()[loader.ExportViewerConfigKey] = viewer_config.New("1.2.0")

	blob, err := NewExporter().ExportObject(context.Background(), scene, nil)
	require.NoError(t, err)
	assert.Equal(t, "glb", blob.Ext)
	assert.Equal(t, "model/gltf-binary", blob.Mime)
	assert.Equal(t, []byte("glTF"), blob.Data[:4])

	m := loadGLTF(t, "scene.glb", blob.Data)
	assert.Equal(t, "scene", m.Name())
	children := m.Root.Children()
	require.Len(t, children, 3)

	mesh := children[0]
	assert.Equal(t, "mesh", mesh.Name())
	assert.Equal(t, "keep", mesh.UserData()["tag"])
	require.NotNil(t, mesh.Model())
	assert.Equal(t, 3, mesh.Model().VertexCount())
	mats := mesh.ImportedMaterials()
	require.Len(t, mats, 1)
	assert.Equal(t, "green", mats[0].Name)
	assert.Equal(t, "mat-green", mats[0].UUID)
	assert.Equal(t, [4]float32{0, 1, 0, 1}, mats[0].BaseColor)
	require.NotNil(t, mats[0].DiffuseTexture)
	assert.Equal(t, 2, mats[0].DiffuseTexture.Width)

	assert.False(t, children[1].Visible(), "excluded objects are written hidden")
	assert.True(t, scene.Root.Children()[1].Visible(), "visibility is restored after export")

	require.NotNil(t, children[2].ImportedCamera())
	assert.InDelta(t, 0.9, children[2].ImportedCamera().YFov, 1e-6)

	require.NotNil(t, m.ViewerConfig)
	assert.Equal(t, viewer_config.AssetType, m.ViewerConfig.AssetType)
}

func TestExportObject_GLTFEmbedsBuffers(t *testing.T) {
	blob, err := NewExporter().ExportObject(context.Background(), testScene(t), &asset.ExportOptions{ExportExt: "gltf"})
	require.NoError(t, err)
	assert.Equal(t, "gltf", blob.Ext)
	assert.Equal(t, "model/gltf+json", blob.Mime)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(blob.Data, &doc))
	buffers := doc["buffers"].([]any)
	require.Len(t, buffers, 1)
	assert.True(t, common.IsDataURL(buffers[0].(map[string]any)["uri"].(string)))

	m := loadGLTF(t, "scene.gltf", blob.Data)
	assert.Equal(t, 3, m.Root.Children()[0].Model().VertexCount())
}

func TestExportObject_ViewerConfigCanBeLeftOut(t *testing.T) {
	scene := testScene(t)
	scene.Root.UserData()["rootSceneModelRoot"] = true

	cfg := viewer_config.New("1.2.0")
	scene.Root.UserData()[loader.ExportViewerConfigKey] = cfg

	blob, err := NewExporter().ExportObject(context.Background(), scene, &asset.ExportOptions{ViewerConfig: common.Ptr(false)})
	require.NoError(t, err)
	assert.Nil(t, loadGLTF(t, "scene.glb", blob.Data).ViewerConfig)
	assert.Same(t, cfg, scene.Root.UserData()[loader.ExportViewerConfigKey], "the config is put back after the export")

	blob, err = NewExporter().ExportObject(context.Background(), scene, nil)
	require.NoError(t, err)
	assert.NotNil(t, loadGLTF(t, "scene.glb", blob.Data).ViewerConfig)
}

func TestExportObject_RestoresVisibilityOnFailure(t *testing.T) {
	scene := testScene(t)
	helper := scene.Root.Children()[1]
	w := &failingWriter{visible: helper.Visible}
	e := NewExporter(WithExporters(&asset.Exporter{
		Name: "broken",
		Ext:  []string{"glb"},
		New:  func() (asset.Writer, error) { return w, nil },
	}))

	var states []ExportFileState
	e.OnExportFile(func(ev ExportFileEvent) { states = append(states, ev.State) })

	_, err := e.ExportObject(context.Background(), scene, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	assert.False(t, w.seen, "helper is hidden while the writer runs")
	assert.True(t, helper.Visible())
	assert.Equal(t, []ExportFileState{StateProcessing, StateExporting, StateError}, states)
}

func TestExportObject_EventsAndWriterCache(t *testing.T) {
	e := NewExporter()
	var states []ExportFileState
	created := 0
	e.OnExportFile(func(ev ExportFileEvent) { states = append(states, ev.State) })
	e.OnExporterCreate(func(ev ExporterCreateEvent) {
		created++
		assert.Equal(t, "json", ev.Exporter.Name)
	})

	cfg := &asset.Config{Config: viewer_config.New("1.0.0")}
	for range 3 {
		blob, err := e.ExportObject(context.Background(), cfg, &asset.ExportOptions{Minify: true})
		require.NoError(t, err)
		assert.Equal(t, "json", blob.Ext)
		parsed, err := viewer_config.Parse(blob.Data)
		require.NoError(t, err)
		assert.Equal(t, cfg.Config.Type, parsed.Type)
	}
	assert.Equal(t, 1, created)
	assert.Len(t, e.Writers(), 1)
	assert.Equal(t, []ExportFileState{
		StateProcessing, StateExporting, StateDone,
		StateProcessing, StateExporting, StateDone,
		StateProcessing, StateExporting, StateDone,
	}, states)
}

func TestExportObject_Material(t *testing.T) {
	m := material.NewMaterial(material.WithName("steel"), material.WithMetallic(1))
	blob, err := NewExporter().ExportObject(context.Background(), &asset.Material{Material: m}, nil)
	require.NoError(t, err)
	assert.Equal(t, material.PhysicalTypeSlug, blob.Ext)
	assert.Equal(t, "application/json", blob.Mime)

	typ, id, props, _, err := material.UnmarshalMaterial(blob.Data)
	require.NoError(t, err)
	assert.Equal(t, material.PhysicalMaterialType, typ)
	assert.Equal(t, m.UUID(), id)
	assert.Equal(t, "steel", props.Name)
	assert.Equal(t, float32(1), props.Metallic)

	blob, err = NewExporter().ExportObject(context.Background(), &asset.Material{
		Imported: &common.ImportedMaterial{Name: "flat", Type: "unlit", BaseColor: [4]float32{1, 1, 1, 1}},
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, material.UnlitTypeSlug, blob.Ext)
}

func TestExportObject_Texture(t *testing.T) {
	src := &common.ImportedTexture{Name: "albedo.png", MimeType: "image/png", Data: pngBytes(t, 3, 2), Width: 3, Height: 2}
	tex := &asset.Texture{Imported: src, Texture: texture.NewTexture(src)}
	e := NewExporter()

	blob, err := e.ExportObject(context.Background(), tex, nil)
	require.NoError(t, err)
	assert.Equal(t, "json", blob.Ext)
	var doc map[string]any
	require.NoError(t, json.Unmarshal(blob.Data, &doc))
	assert.Equal(t, "albedo.png", doc["name"])
	img := doc["image"].(map[string]any)
	assert.Equal(t, float64(3), img["width"])
	assert.True(t, common.IsDataURL(img["url"].(string)))

	blob, err = e.ExportObject(context.Background(), tex, &asset.ExportOptions{ExportExt: "png"})
	require.NoError(t, err)
	assert.Equal(t, "png", blob.Ext)
	assert.Equal(t, src.Data, blob.Data, "sources already in the requested format are passed through")

	blob, err = e.ExportObject(context.Background(), tex, &asset.ExportOptions{ExportExt: "jpg"})
	require.NoError(t, err)
	assert.Equal(t, "image/jpeg", blob.Mime)
	cfg, format, err := image.DecodeConfig(bytes.NewReader(blob.Data))
	require.NoError(t, err)
	assert.Equal(t, "jpeg", format)
	assert.Equal(t, 3, cfg.Width)
}

func TestExportObject_TextureUserDataLeavesSourceOut(t *testing.T) {
	src := &common.ImportedTexture{Name: "upload.png", MimeType: "image/png", Data: pngBytes(t, 2, 2), Width: 2, Height: 2}
	tex := &asset.Texture{Imported: src}
	tex.UserData()["__sourceBlob"] = asset.NewFile("upload.png", src.Data)
	tex.UserData()["label"] = "albedo"

	blob, err := NewExporter().ExportObject(context.Background(), tex, nil)
	require.NoError(t, err)
	var doc map[string]any
	require.NoError(t, json.Unmarshal(blob.Data, &doc))
	assert.Equal(t, map[string]any{"label": "albedo"}, doc["userData"])
	assert.NotContains(t, string(blob.Data), "__sourceBlob")
}

type rejectingMaterial struct {
	material.Material
}

func (rejectingMaterial) SetValues(any) error { return errors.New("incompatible values") }

func TestCopyImportedValues_ReturnsError(t *testing.T) {
	err := copyImportedValues(rejectingMaterial{Material: material.NewMaterial()}, &common.ImportedMaterial{Name: "broken"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `material "broken"`)
	assert.Contains(t, err.Error(), "incompatible values")

	m := material.NewMaterial()
	require.NoError(t, copyImportedValues(m, &common.ImportedMaterial{Name: "ok", Roughness: 0.5}))
	assert.Equal(t, float32(0.5), m.Properties().Roughness)
}

func TestExportObject_FilesAndText(t *testing.T) {
	e := NewExporter()
	files := &asset.Files{Files: map[string]*asset.File{
		"scene.gltf":           asset.NewFile("scene.gltf", []byte("{}")),
		"textures/texture.png": asset.NewFile("texture.png", []byte("png")),
	}}
	blob, err := e.ExportObject(context.Background(), files, nil)
	require.NoError(t, err)
	assert.Equal(t, "zip", blob.Ext)
	zr, err := zip.NewReader(bytes.NewReader(blob.Data), int64(len(blob.Data)))
	require.NoError(t, err)
	require.Len(t, zr.File, 2)
	assert.Equal(t, "scene.gltf", zr.File[0].Name)
	assert.Equal(t, "textures/texture.png", zr.File[1].Name)

	blob, err = e.ExportObject(context.Background(), &asset.Data{MimeType: "text/plain", Value: "hello"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "txt", blob.Ext)
	assert.Equal(t, "hello", string(blob.Data))

	blob, err = e.ExportObject(context.Background(), &asset.Data{MimeType: "application/json", Value: map[string]any{"a": 1}}, &asset.ExportOptions{Minify: true})
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":1}`, string(blob.Data))
}

func TestExportObject_Errors(t *testing.T) {
	e := NewExporter()
	var errs []error
	e.OnExportFile(func(ev ExportFileEvent) {
		if ev.State == StateError {
			errs = append(errs, ev.Err)
		}
	})

	light := &asset.Light{Object: game_object.NewGameObject(game_object.WithImportedLight(&common.ImportedLight{Type: "point"}))}
	_, err := e.ExportObject(context.Background(), light, nil)
	assert.ErrorIs(t, err, ErrNotExportable)

	cam := &asset.Camera{Object: game_object.NewGameObject()}
	_, err = e.ExportObject(context.Background(), cam, nil)
	assert.ErrorIs(t, err, ErrNotExportable)

	_, err = e.ExportObject(context.Background(), testScene(t), &asset.ExportOptions{ExportExt: "fbx"})
	assert.ErrorIs(t, err, ErrNoExporter)

	assert.Len(t, errs, 3)
}

func TestExporterRegistry(t *testing.T) {
	e := NewExporter(WithExporters())
	assert.Nil(t, e.GetExporter("json"))

	custom := &asset.Exporter{Name: "csv", Ext: []string{"csv"}, New: func() (asset.Writer, error) { return NewTextWriter(), nil }}
	e.AddExporter(custom, custom)
	assert.Len(t, e.Exporters(), 1)
	assert.Same(t, custom, e.GetExporter("xlsx", "csv"))

	blob, err := e.ExportObject(context.Background(), &asset.Data{MimeType: "text/plain", Value: "a,b"}, &asset.ExportOptions{ExportExt: "csv"})
	require.NoError(t, err)
	assert.Equal(t, "csv", blob.Ext)
	assert.Len(t, e.Writers(), 1)

	e.RemoveExporter(custom)
	assert.Empty(t, e.Exporters())
	assert.Empty(t, e.Writers())
}

func TestGLTFWriter_ExtensionRegistry(t *testing.T) {
	w := NewGLTFWriter(loader.DefaultGLTFExtensions()...)
	n := len(w.GLTFExtensions())

	calls := 0
	w.RegisterGLTFExtension(&loader.GLTFExtension{
		Name: "EXT_test",
		Export: func(*gltf.Document) *loader.GLTFExportHooks {
			return &loader.GLTFExportHooks{AfterParse: func(_ context.Context, out *loader.GLTFExport) error {
				calls++
				loader.MarkExtensionUsed(out.Document, "EXT_test")
				return nil
			}}
		},
	})
	assert.Len(t, w.GLTFExtensions(), n+1)

	_, err := w.Write(context.Background(), testScene(t), &asset.ExportOptions{ExportExt: "gltf"})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)

	w.UnregisterGLTFExtension("EXT_test")
	assert.Len(t, w.GLTFExtensions(), n)

	_, err = w.Write(context.Background(), "not a scene", nil)
	assert.ErrorIs(t, err, ErrNotExportable)
}

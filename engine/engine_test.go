package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/Carmen-Shannon/oxypipe/common"
	"github.com/Carmen-Shannon/oxypipe/engine/asset"
	"github.com/Carmen-Shannon/oxypipe/engine/exporter"
	"github.com/Carmen-Shannon/oxypipe/engine/game_object"
	"github.com/Carmen-Shannon/oxypipe/engine/loader"
	"github.com/Carmen-Shannon/oxypipe/engine/model"
	"github.com/Carmen-Shannon/oxypipe/engine/viewer_config"

	"github.com/qmuntal/gltf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func meshObject(name, materialUUID string) game_object.GameObject {
	tri := model.NewModel(model.WithName(name), model.WithPrimitives(model.Primitive{
		Positions: [][3]float32{{0, 0, 0}, {1, 0, 0}, {0, 1, 0}},
		Normals:   [][3]float32{{0, 0, 1}, {0, 0, 1}, {0, 0, 1}},
		Indices:   []uint32{0, 1, 2},
	}))
	return game_object.NewGameObject(
		game_object.WithName(name),
		game_object.WithType(game_object.TypeMesh),
		game_object.WithModel(tri),
		game_object.WithImportedMaterials(&common.ImportedMaterial{
			UUID:      materialUUID,
			Name:      name + "-material",
			Type:      "physical",
			BaseColor: [4]float32{1, 0, 0, 1},
			AlphaMode: "OPAQUE",
		}),
	)
}

// writeGLB exports children as the nodes of a scene and writes the result into dir.
func writeGLB(t *testing.T, dir, name string, root game_object.GameObject) string {
	t.Helper()
	blob, err := exporter.NewGLTFWriter(loader.DefaultGLTFExtensions()...).Write(context.Background(),
		&asset.Model{Root: root}, &asset.ExportOptions{ExportExt: "glb"})
	require.NoError(t, err)
	p := filepath.ToSlash(filepath.Join(dir, name))
	require.NoError(t, os.WriteFile(p, blob.Data, 0o644))
	return p
}

func sceneRoot(children ...game_object.GameObject) game_object.GameObject {
	return game_object.NewGameObject(
		game_object.WithName("root"),
		game_object.WithType(game_object.TypeScene),
		game_object.WithChildren(children...),
	)
}

func TestAssetManager_AddAssetGLB(t *testing.T) {
	dir := t.TempDir()
	root := sceneRoot(meshObject("box", "mat-box"))
	cfg := viewer_config.New("0.1.0")
	cfg.Scene = map[string]any{"envMapIntensity": 3.0}
	root.UserData()[loader.ExportViewerConfigKey] = cfg
	path := writeGLB(t, dir, "box.glb", root)

	m := NewAssetManager()
	defer m.Dispose()

	var states []string
	m.OnProcessStateUpdate(func(ev ProcessStateEvent) {
		if ev.State != nil {
			states = append(states, ev.State.State)
		}
	})
	var loaded []asset.Result
	m.OnLoadAsset(func(r asset.Result) { loaded = append(loaded, r) })

	results, err := m.AddAsset(context.Background(), asset.Path(path), nil)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, results, loaded)

	objects := m.Scene().Objects()
	require.Len(t, objects, 1)
	box := objects[0]
	assert.Equal(t, "box", box.Name())
	require.Len(t, box.Materials(), 1)
	assert.Empty(t, box.ImportedMaterials())

	mat := box.Materials()[0]
	assert.Equal(t, "mat-box", mat.UUID())
	assert.Same(t, mat, m.Materials().FindMaterial("mat-box"))

	assert.Equal(t, 3.0, m.Scene().EnvMapIntensity())
	assert.Contains(t, states, "processing")
	assert.Empty(t, m.ProcessState())
}

func TestAssetManager_ReplaceMaterialsDisabled(t *testing.T) {
	dir := t.TempDir()
	path := writeGLB(t, dir, "raw.glb", sceneRoot(meshObject("raw", "mat-raw")))

	m := NewAssetManager()
	defer m.Dispose()

	_, err := m.AddAsset(context.Background(), asset.Path(path), &asset.ImportOptions{ReplaceMaterials: common.Ptr(false)})
	require.NoError(t, err)

	objects := m.Scene().Objects()
	require.Len(t, objects, 1)
	assert.Empty(t, objects[0].Materials())
	assert.Len(t, objects[0].ImportedMaterials(), 1)
	assert.Nil(t, m.Materials().FindMaterial("mat-raw"))
}

func TestAssetManager_CamerasAndLightsUpgraded(t *testing.T) {
	m := NewAssetManager()
	defer m.Dispose()

	camObj := game_object.NewGameObject(game_object.WithImportedCamera(&common.ImportedCamera{
		Name: "cam", Projection: common.ProjectionPerspective, YFov: 0.8, ZNear: 0.1,
	}))
	lightObj := game_object.NewGameObject(game_object.WithImportedLight(&common.ImportedLight{
		Name: "sun", Type: "directional", Color: [3]float32{1, 1, 1}, Intensity: 2,
	}))
	root := game_object.NewGameObject(game_object.WithChildren(camObj, lightObj))

	_, err := m.AddRaw(context.Background(), []asset.Result{&asset.Model{Root: root}}, nil)
	require.NoError(t, err)

	require.NotNil(t, camObj.Camera())
	require.NotNil(t, lightObj.Light())
	assert.Same(t, camObj.Camera(), m.Scene().Camera())
	assert.Len(t, m.Scene().Lights(), 1)
	assert.Same(t, root, m.Scene().Objects()[0])
}

func TestAssetManager_LoadObjectDependencies(t *testing.T) {
	dir := t.TempDir()
	childPath := writeGLB(t, dir, "child.glb", sceneRoot(meshObject("child-mesh", "mat-child")))

	good := game_object.NewGameObject(
		game_object.WithName("good"),
		game_object.WithTransform(common.Transform{Translation: [3]float32{5, 0, 0}, Rotation: [4]float32{0, 0, 0, 1}, Scale: [3]float32{1, 1, 1}}),
		game_object.WithUserData(map[string]any{RootPathRefreshKey: true, "rootPath": childPath, "note": "kept"}),
	)
	bad := game_object.NewGameObject(
		game_object.WithName("bad"),
		game_object.WithUserData(map[string]any{RootPathRefreshKey: true, "rootPath": filepath.ToSlash(filepath.Join(dir, "missing.glb"))}),
	)
	sibling := game_object.NewGameObject(game_object.WithName("sibling"))
	parentPath := writeGLB(t, dir, "parent.glb", sceneRoot(bad, good, sibling))

	core, logs := observer.New(zap.ErrorLevel)
	m := NewAssetManager(WithLogger(zap.New(core)), WithDependencyWorkers(2))
	defer m.Dispose()

	_, err := m.AddAsset(context.Background(), asset.Path(parentPath), nil)
	require.NoError(t, err)

	objects := m.Scene().Objects()
	require.Len(t, objects, 3)
	assert.Equal(t, "bad", objects[0].Name())
	assert.Equal(t, true, objects[0].UserData()[RootPathRefreshKey])

	loaded := objects[1]
	assert.Equal(t, "good", loaded.Name())
	assert.Equal(t, game_object.TypeGroup, loaded.Type())
	assert.Equal(t, "kept", loaded.UserData()["note"])
	assert.NotContains(t, loaded.UserData(), RootPathRefreshKey)
	assert.InDelta(t, 5, loaded.Transform().Translation[0], 1e-5)
	require.Len(t, loaded.Children(), 1)
	assert.Equal(t, "child-mesh", loaded.Children()[0].Name())

	assert.Equal(t, "sibling", objects[2].Name())
	assert.NotZero(t, logs.FilterMessage("unable to import file").Len())
	assert.NotNil(t, m.Materials().FindMaterial("mat-child"))
}

func dependencyPlaceholder(name, path string) game_object.GameObject {
	return game_object.NewGameObject(
		game_object.WithName(name),
		game_object.WithUserData(map[string]any{RootPathRefreshKey: true, "rootPath": path}),
	)
}

func TestAssetManager_DependencyAlreadyImported(t *testing.T) {
	dir := t.TempDir()
	childPath := writeGLB(t, dir, "child.glb", sceneRoot(meshObject("child-mesh", "mat-child")))
	parentPath := writeGLB(t, dir, "parent.glb", sceneRoot(dependencyPlaceholder("good", childPath)))

	m := NewAssetManager()
	defer m.Dispose()

	_, err := m.AddAsset(context.Background(), asset.Path(childPath), nil)
	require.NoError(t, err)
	_, err = m.AddAsset(context.Background(), asset.Path(parentPath), nil)
	require.NoError(t, err)

	objects := m.Scene().Objects()
	require.Len(t, objects, 2)
	first := objects[0]
	assert.Equal(t, "child-mesh", first.Name())

	loaded := objects[1]
	assert.Equal(t, "good", loaded.Name())
	require.Len(t, loaded.Children(), 1)
	assert.Equal(t, "child-mesh", loaded.Children()[0].Name())
	assert.NotSame(t, first, loaded.Children()[0])
	assert.Same(t, m.Scene().ModelRoot(), first.Parent())
}

func TestAssetManager_DuplicateDependencies(t *testing.T) {
	dir := t.TempDir()
	childPath := writeGLB(t, dir, "child.glb", sceneRoot(meshObject("child-mesh", "mat-child")))
	parentPath := writeGLB(t, dir, "parent.glb", sceneRoot(
		dependencyPlaceholder("left", childPath),
		dependencyPlaceholder("right", childPath),
	))

	m := NewAssetManager(WithDependencyWorkers(2))
	defer m.Dispose()

	_, err := m.AddAsset(context.Background(), asset.Path(parentPath), nil)
	require.NoError(t, err)

	objects := m.Scene().Objects()
	require.Len(t, objects, 2)
	left, right := objects[0], objects[1]
	assert.Equal(t, "left", left.Name())
	assert.Equal(t, "right", right.Name())
	require.Len(t, left.Children(), 1)
	require.Len(t, right.Children(), 1)
	assert.NotSame(t, left, right)
	assert.NotSame(t, left.Children()[0], right.Children()[0])
}

func TestAssetManager_SelfReferencingDependency(t *testing.T) {
	dir := t.TempDir()
	selfPath := filepath.ToSlash(filepath.Join(dir, "self.glb"))
	writeGLB(t, dir, "self.glb", sceneRoot(meshObject("mesh", "mat-self"), dependencyPlaceholder("loop", selfPath)))

	core, logs := observer.New(zap.ErrorLevel)
	m := NewAssetManager(WithLogger(zap.New(core)))
	defer m.Dispose()

	_, err := m.AddAsset(context.Background(), asset.Path(selfPath), nil)
	require.NoError(t, err)

	objects := m.Scene().Objects()
	require.Len(t, objects, 2)
	assert.Equal(t, "loop", objects[1].Name())
	assert.Equal(t, true, objects[1].UserData()[RootPathRefreshKey])
	assert.Empty(t, objects[1].Children())
	assert.Equal(t, 1, logs.FilterMessage("dependency cycle, skipping").Len())

	visited := 0
	m.Scene().ModelRoot().Traverse(func(game_object.GameObject) bool {
		visited++
		return true
	})
	assert.Less(t, visited, 10)
}

func TestAssetManager_LoadObjectDependenciesAfterDispose(t *testing.T) {
	m := NewAssetManager()
	m.Dispose()
	m.Dispose()

	_, err := m.LoadObjectDependencies(context.Background(), sceneRoot(dependencyPlaceholder("p", "child.glb")))
	assert.ErrorIs(t, err, ErrDisposed)
}

func TestAssetManager_ExportBlobSourcedTexture(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 2, 2))))
	data := buf.Bytes()

	m := NewAssetManager()
	defer m.Dispose()

	tex := &asset.Texture{Imported: &common.ImportedTexture{Name: "upload.png", MimeType: "image/png", Data: data, Width: 2, Height: 2}}
	tex.Meta().RootPath = "blob:upload"
	tex.Meta().RootBlob = asset.NewFile("upload.png", data)
	_, err := m.AddRaw(context.Background(), []asset.Result{tex}, nil)
	require.NoError(t, err)
	require.Contains(t, tex.UserData(), "__sourceBlob")

	blob, err := m.ExportObject(context.Background(), tex, nil)
	require.NoError(t, err)
	assert.Equal(t, "json", blob.Ext)
	assert.NotContains(t, string(blob.Data), "__sourceBlob")

	var doc map[string]any
	require.NoError(t, json.Unmarshal(blob.Data, &doc))
	assert.NotContains(t, doc["userData"], "__sourceBlob")
	assert.Equal(t, float64(2), doc["image"].(map[string]any)["width"])
}

func TestAssetManager_TextureEnvironment(t *testing.T) {
	m := NewAssetManager()
	defer m.Dispose()

	hdr := &asset.Texture{Imported: &common.ImportedTexture{Name: "studio.hdr", Path: "studio.hdr"}}
	hdr.Meta().RootPath = "https://example.com/studio.hdr?v=2"
	ldr := &asset.Texture{Imported: &common.ImportedTexture{Name: "albedo.png"}}
	ldr.Meta().RootPath = "albedo.png"

	results, err := m.AddRaw(context.Background(), []asset.Result{hdr, ldr}, &asset.ImportOptions{GenerateMipmaps: common.Ptr(false)})
	require.NoError(t, err)
	require.Len(t, results, 2)

	require.NotNil(t, hdr.Texture)
	assert.Same(t, hdr.Texture, m.Scene().Environment())
	assert.False(t, hdr.Texture.GenerateMipmaps())
	assert.Nil(t, m.Scene().Background())

	_, err = m.AddRaw(context.Background(), []asset.Result{ldr}, &asset.ImportOptions{AutoSetBackground: true, ForceImporterReprocess: true})
	require.NoError(t, err)
	assert.Same(t, ldr.Texture, m.Scene().Background())
}

func TestAssetManager_MaterialUUIDCollision(t *testing.T) {
	m := NewAssetManager()
	defer m.Dispose()

	first := &asset.Material{Imported: &common.ImportedMaterial{UUID: "dup", Name: "a", Type: "physical"}}
	_, err := m.AddRaw(context.Background(), []asset.Result{first}, nil)
	require.NoError(t, err)
	require.NotNil(t, first.Material)

	second, err := m.Materials().Create("physical", nil, false)
	require.NoError(t, err)
	second.SetUUID("dup")
	_, err = m.AddRaw(context.Background(), []asset.Result{&asset.Material{Material: second}}, nil)
	require.NoError(t, err)

	assert.NotEqual(t, first.Material.UUID(), second.UUID())
	assert.Same(t, first.Material, m.Materials().FindMaterial(first.Material.UUID()))
	assert.Same(t, second, m.Materials().FindMaterial(second.UUID()))
}

func TestAssetManager_ConfigResults(t *testing.T) {
	m := NewAssetManager()
	defer m.Dispose()

	cfg := viewer_config.New("0.1.0")
	cfg.Scene = map[string]any{"backgroundIntensity": 0.25}
	legacy := &asset.Data{MimeType: "application/json", Value: map[string]any{
		"type":    "ThreeViewer",
		"plugins": []any{map[string]any{"type": "GroundPlugin", "size": 2.0}},
	}}

	_, err := m.AddRaw(context.Background(), []asset.Result{&asset.Config{Config: cfg}, legacy}, nil)
	require.NoError(t, err)

	assert.Equal(t, 0.25, m.Scene().BackgroundIntensity())
	assert.NotNil(t, m.Scene().Config().Plugin("GroundPlugin"))

	skipped := viewer_config.New("0.1.0")
	skipped.Scene = map[string]any{"backgroundIntensity": 9.0}
	_, err = m.AddRaw(context.Background(), []asset.Result{&asset.Config{Config: skipped}}, &asset.ImportOptions{ImportConfig: common.Ptr(false)})
	require.NoError(t, err)
	assert.Equal(t, 0.25, m.Scene().BackgroundIntensity())
}

func TestAssetManager_ExportScene(t *testing.T) {
	m := NewAssetManager()
	defer m.Dispose()

	_, err := m.AddRaw(context.Background(), []asset.Result{&asset.Model{Root: meshObject("exported", "mat-exp")}}, nil)
	require.NoError(t, err)

	blob, err := m.ExportScene(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, "glb", blob.Ext)
	assert.NotContains(t, m.Scene().ModelRoot().UserData(), loader.ExportViewerConfigKey)

	results, err := loader.NewLoader(loader.BackendTypeGLTF).Load(context.Background(), &asset.Request{
		Path: "scene.glb",
		File: asset.NewFile("scene.glb", blob.Data),
	})
	require.NoError(t, err)
	require.Len(t, results, 1)
	imported := results[0].(*asset.Model)
	require.NotNil(t, imported.ViewerConfig)
	assert.Equal(t, Version, imported.ViewerConfig.Version)
	require.Len(t, imported.Root.Children(), 1)
	assert.Equal(t, "exported", imported.Root.Children()[0].Name())

	blob, err = m.ExportScene(context.Background(), &asset.ExportOptions{ExportExt: "glb", ViewerConfig: common.Ptr(false)})
	require.NoError(t, err)
	doc := new(gltf.Document)
	require.NoError(t, gltf.NewDecoder(bytes.NewReader(blob.Data)).Decode(doc))
	assert.NotContains(t, doc.ExtensionsUsed, loader.ViewerExtensionName)
}

func TestAssetManager_GLTFExtensionRegistry(t *testing.T) {
	var mu sync.Mutex
	seen := 0
	ext := &loader.GLTFExtension{
		Name: "TEST_counter",
		Export: func(*gltf.Document) *loader.GLTFExportHooks {
			mu.Lock()
			seen++
			mu.Unlock()
			return &loader.GLTFExportHooks{}
		},
	}

	m := NewAssetManager(WithGLTFExtensions(ext))
	defer m.Dispose()
	assert.Equal(t, []*loader.GLTFExtension{ext}, m.GLTFExtensions())

	_, err := m.ExportObject(context.Background(), &asset.Model{Root: meshObject("a", "mat-a")}, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, seen)

	w, ok := m.Exporter().Writers()[0].(exporter.GLTFWriter)
	require.True(t, ok)
	assert.Contains(t, w.GLTFExtensions(), ext)

	m.UnregisterGLTFExtension(ext.Name)
	assert.Empty(t, m.GLTFExtensions())
	assert.NotContains(t, w.GLTFExtensions(), ext)

	_, err = m.ExportObject(context.Background(), &asset.Model{Root: meshObject("b", "mat-b")}, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, seen)
}

func TestAssetManager_ExportProcessState(t *testing.T) {
	m := NewAssetManager()
	defer m.Dispose()

	var events []ProcessStateEvent
	m.OnProcessStateUpdate(func(ev ProcessStateEvent) { events = append(events, ev) })

	_, err := m.ExportObject(context.Background(), &asset.Model{Root: meshObject("named", "mat-n")}, nil)
	require.NoError(t, err)

	require.NotEmpty(t, events)
	assert.Equal(t, "named", events[0].Path)
	assert.Nil(t, events[len(events)-1].State)
	assert.Empty(t, m.ProcessState())
}

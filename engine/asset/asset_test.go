package asset

import (
	"testing"

	"github.com/Carmen-Shannon/oxypipe/common"
	"github.com/Carmen-Shannon/oxypipe/engine/game_object"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestImportOptions_KeyIgnoresCallFields(t *testing.T) {
	a := &ImportOptions{MimeType: "model/gltf-binary"}
	b := &ImportOptions{
		MimeType:         "model/gltf-binary",
		ForceImport:      true,
		ReimportDisposed: common.Ptr(false),
		PathOverride:     "other.glb",
		ImportedFile:     NewFile("x.glb", nil),
	}
	assert.Equal(t, a.Key(), b.Key())
	assert.NotEqual(t, a.Key(), (&ImportOptions{MimeType: "image/png"}).Key())

	var nilOpts *ImportOptions
	assert.Equal(t, "{}", nilOpts.Key())
	assert.Equal(t, "{}", (&ImportOptions{}).Key())
}

func TestImportOptions_Defaults(t *testing.T) {
	var o *ImportOptions
	assert.True(t, o.ShouldProcessRaw())
	assert.True(t, o.ShouldReimportDisposed())
	assert.True(t, o.ShouldImportZipContents())
	assert.True(t, o.ShouldSetEnvironment())

	o = &ImportOptions{ProcessRaw: common.Ptr(false)}
	assert.False(t, o.ShouldProcessRaw())

	c := o.Clone()
	c.AllowedExtensions = append(c.AllowedExtensions, "glb")
	assert.Empty(t, o.AllowedExtensions)
}

func TestNewFile_DetectsExtension(t *testing.T) {
	f := NewFile("models/Duck.GLB", nil)
	assert.Equal(t, "glb", f.Ext)
	assert.Equal(t, "Duck.GLB", f.Name)
	assert.Equal(t, "models/Duck.GLB", f.Path)

	png := []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n', 0, 0, 0, 0}
	sniffed := NewFile("upload", png)
	assert.Equal(t, "png", sniffed.Ext)
	assert.Equal(t, "image/png", sniffed.Mime)
}

func TestImporter_Matches(t *testing.T) {
	imp := &Importer{
		Ext:  []string{"gltf", "glb", "data:model/gltf"},
		Mime: []string{"model/gltf-binary"},
		Root: true,
	}
	assert.True(t, imp.Matches("scene.glb", "glb", ""))
	assert.True(t, imp.Matches("scene", "", "model/gltf-binary"))
	assert.True(t, imp.Matches("data:model/gltf+json;base64,AAAA", "", ""))
	assert.True(t, imp.Matches("dir/scene.gltf", "", ""))
	assert.False(t, imp.Matches("texture.png", "png", "image/png"))

	assert.True(t, imp.IsRoot("GLB", ""))
	assert.False(t, (&Importer{Ext: []string{"png"}}).IsRoot("png", ""))
}

func TestRequest_Ext(t *testing.T) {
	assert.Equal(t, "glb", (&Request{Path: "a/b.GLB"}).Ext())
	assert.Equal(t, "gltf", (&Request{Path: "blob", Options: &ImportOptions{FileExtension: "GLTF"}}).Ext())
	assert.Equal(t, "zip", (&Request{Path: "upload", File: &File{Ext: "zip"}}).Ext())
}

func TestResult_FallbackLifecycle(t *testing.T) {
	d := &Data{MimeType: "text/plain", Value: "hello"}
	d.SetName("notes")
	assert.Equal(t, "notes", d.Name())
	d.UserData()["k"] = 1
	assert.Equal(t, 1, d.UserData()["k"])

	calls := 0
	unsub := d.OnDispose(func() { calls++ })
	d.Dispose()
	d.Dispose()
	unsub()
	assert.Equal(t, 1, calls)
	assert.True(t, d.Disposed())
	assert.Equal(t, KindData, d.Kind())
}

func TestResult_ModelDelegatesToRoot(t *testing.T) {
	root := game_object.NewGameObject(game_object.WithName("scene"))
	root.UserData()["rootSceneModelRoot"] = true
	m := &Model{Root: root}

	assert.Equal(t, "scene", m.Name())
	assert.True(t, m.IsSceneRoot())

	disposed := false
	m.OnDispose(func() { disposed = true })
	root.Dispose()
	assert.True(t, disposed)
	assert.True(t, m.Disposed())
}

func TestResultMeta_ExternalSource(t *testing.T) {
	m := &Material{Imported: &common.ImportedMaterial{Name: "paint"}}
	_, _, ok := m.Meta().ExternalSource()
	assert.False(t, ok)

	m.RootPath = "materials/paint.pmat"
	m.RootPathOptions = &ImportOptions{MimeType: "application/json"}
	root, opts, ok := m.Meta().ExternalSource()
	require.True(t, ok)
	assert.Equal(t, "materials/paint.pmat", root)
	assert.Equal(t, m.RootPathOptions, opts)
	assert.Equal(t, "paint", m.Name())
}

package loader

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/Carmen-Shannon/oxypipe/engine/asset"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	img.Set(0, 0, color.RGBA{R: 255, A: 255})
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestDefaultImporters_Routing(t *testing.T) {
	importers := DefaultImporters()
	find := func(name, ext, mime string) string {
		for _, imp := range importers {
			if imp.Matches(name, ext, mime) {
				return imp.Name
			}
		}
		return ""
	}

	assert.Equal(t, "gltf", find("scene.glb", "glb", ""))
	assert.Equal(t, "gltf", find("data:model/gltf+json;base64,e30=", "", ""))
	assert.Equal(t, "json", find("preset.vjson", "vjson", ""))
	assert.Equal(t, "json", find("metal.pmat", "pmat", ""))
	assert.Equal(t, "image", find("env.hdr", "hdr", ""))
	assert.Equal(t, "image", find("blob", "", "image/png"))
	assert.Equal(t, "zip", find("bundle.zip", "zip", ""))
	assert.Equal(t, "text", find("notes.txt", "txt", ""))
	assert.Empty(t, find("mesh.fbx", "fbx", ""))

	for _, imp := range importers {
		switch imp.Name {
		case "gltf", "zip":
			assert.True(t, imp.Root, imp.Name)
		default:
			assert.False(t, imp.Root, imp.Name)
		}
	}
}

func TestDefaultImporters_CreateLoaders(t *testing.T) {
	for _, imp := range DefaultImporters() {
		l, err := imp.New()
		require.NoError(t, err, imp.Name)
		_, ok := l.(Loader)
		assert.True(t, ok, imp.Name)
	}
}

func TestJSONLoader_Config(t *testing.T) {
	data := []byte(`{"assetType":"config","type":"ThreeViewer","version":"0.1.0","plugins":[]}`)
	results := loadBytes(t, NewLoader(BackendTypeJSON), "viewer.json", data, nil)
	require.Len(t, results, 1)
	cfg, ok := results[0].(*asset.Config)
	require.True(t, ok)
	assert.Equal(t, "ThreeViewer", cfg.Config.Type)
}

func TestJSONLoader_MaterialWithMaps(t *testing.T) {
	data := []byte(`{"uuid":"m-1","type":"physical","name":"steel","color":[0.5,0.5,0.5,1],"metalness":1,"roughness":0.2,"maps":{"map":"steel.png","aoMap":"missing.png"}}`)
	tex := pngBytes(t, 2, 2)
	fetch := func(_ context.Context, ref string) (*asset.File, error) {
		if ref == "steel.png" {
			return asset.NewFile(ref, tex), nil
		}
		return nil, errors.New("not found")
	}

	results := loadBytes(t, NewLoader(BackendTypeJSON), "materials/steel.pmat", data, fetch)
	mat, ok := results[0].(*asset.Material)
	require.True(t, ok)
	require.NotNil(t, mat.Imported)
	assert.Equal(t, "m-1", mat.Imported.UUID)
	assert.Equal(t, "steel", mat.Name())
	assert.Equal(t, float32(1), mat.Imported.Metallic)
	require.NotNil(t, mat.Imported.DiffuseTexture)
	assert.Equal(t, tex, mat.Imported.DiffuseTexture.Data)
	assert.Nil(t, mat.Imported.OcclusionTexture, "unresolvable maps are dropped")
}

func TestJSONLoader_GenericData(t *testing.T) {
	results := loadBytes(t, NewLoader(BackendTypeJSON), "data.json", []byte(`{"a":[1,2]}`), nil)
	d, ok := results[0].(*asset.Data)
	require.True(t, ok)
	assert.Equal(t, map[string]any{"a": []any{1.0, 2.0}}, d.Value)

	_, err := NewLoader(BackendTypeJSON).Load(context.Background(), &asset.Request{
		Path: "bad.json",
		File: asset.NewFile("bad.json", []byte("{")),
	})
	assert.Error(t, err)
}

func TestTextLoader(t *testing.T) {
	results := loadBytes(t, NewLoader(BackendTypeText), "readme.txt", []byte("hello"), nil)
	d := results[0].(*asset.Data)
	assert.Equal(t, "hello", d.Value)
	assert.Equal(t, "text/plain", d.MimeType)
}

func TestImageLoader_Sizes(t *testing.T) {
	results := loadBytes(t, NewLoader(BackendTypeImage), "textures/albedo.png", pngBytes(t, 4, 3), nil)
	tex, ok := results[0].(*asset.Texture)
	require.True(t, ok)
	assert.Equal(t, "albedo.png", tex.Name())
	assert.Equal(t, 4, tex.Imported.Width)
	assert.Equal(t, 3, tex.Imported.Height)

	hdr := []byte("#?RADIANCE\nFORMAT=32-bit_rle_rgbe\n\n-Y 16 +X 32\n\x02\x02")
	results = loadBytes(t, NewLoader(BackendTypeImage), "env/studio.hdr", hdr, nil)
	tex = results[0].(*asset.Texture)
	assert.Equal(t, 32, tex.Imported.Width)
	assert.Equal(t, 16, tex.Imported.Height)
	assert.Equal(t, "image/vnd.radiance", tex.Imported.MimeType)
}

func TestExrSize(t *testing.T) {
	var buf bytes.Buffer
	buf.Write([]byte{0x76, 0x2f, 0x31, 0x01, 2, 0, 0, 0})
	buf.WriteString("channels\x00chlist\x00")
	buf.Write([]byte{1, 0, 0, 0, 0})
	buf.WriteString("dataWindow\x00box2i\x00")
	buf.Write([]byte{16, 0, 0, 0})
	for _, v := range []byte{0, 0, 99, 49} {
		buf.Write([]byte{v, 0, 0, 0})
	}
	buf.WriteByte(0)

	w, h, err := exrSize(buf.Bytes())
	require.NoError(t, err)
	assert.Equal(t, 100, w)
	assert.Equal(t, 50, h)

	_, _, err = exrSize([]byte("nope"))
	assert.Error(t, err)
}

func TestZipLoader_SkipsDirectoriesAndMetadata(t *testing.T) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, body := range map[string]string{
		"scene.gltf":           "{}",
		"textures/texture.png": "png",
		"__MACOSX/._scene":     "junk",
	} {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(body))
		require.NoError(t, err)
	}
	_, err := zw.Create("textures/")
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	results := loadBytes(t, NewLoader(BackendTypeZip), "bundle.zip", buf.Bytes(), nil)
	files, ok := results[0].(*asset.Files)
	require.True(t, ok)
	assert.Len(t, files.Files, 2)
	require.Contains(t, files.Files, "scene.gltf")
	assert.Equal(t, "gltf", files.Files["scene.gltf"].Ext)
	assert.Equal(t, "png", files.Files["textures/texture.png"].Ext)
}

func TestLoader_UnknownBackend(t *testing.T) {
	_, err := NewLoader(LoaderBackendType(99)).Load(context.Background(), &asset.Request{})
	assert.ErrorIs(t, err, ErrUnknownBackend)
}

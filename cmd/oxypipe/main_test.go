package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Carmen-Shannon/oxypipe/common"
	"github.com/Carmen-Shannon/oxypipe/config"
	"github.com/Carmen-Shannon/oxypipe/engine/asset"
	"github.com/Carmen-Shannon/oxypipe/engine/exporter"
	"github.com/Carmen-Shannon/oxypipe/engine/game_object"
	"github.com/Carmen-Shannon/oxypipe/engine/model"

	"github.com/fsnotify/fsnotify"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newTestPipeline(t *testing.T, reg prometheus.Registerer) *pipeline {
	t.Helper()
	p, err := newPipeline(config.Default(), zaptest.NewLogger(t), reg)
	require.NoError(t, err)
	t.Cleanup(p.Close)
	return p
}

func writeBox(t *testing.T, dir, name string) string {
	t.Helper()
	mesh := game_object.NewGameObject(
		game_object.WithName("box"),
		game_object.WithType(game_object.TypeMesh),
		game_object.WithModel(model.NewModel(model.WithPrimitives(model.Primitive{
			Positions: [][3]float32{{0, 0, 0}, {1, 0, 0}, {0, 1, 0}},
			Indices:   []uint32{0, 1, 2},
		}))),
		game_object.WithImportedMaterials(&common.ImportedMaterial{UUID: "box-mat", Name: "box", Type: "physical", BaseColor: [4]float32{1, 1, 1, 1}}),
	)
	root := game_object.NewGameObject(game_object.WithType(game_object.TypeScene), game_object.WithChildren(mesh))
	blob, err := exporter.NewGLTFWriter().Write(context.Background(), &asset.Model{Root: root}, &asset.ExportOptions{ExportExt: "glb"})
	require.NoError(t, err)
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, blob.Data, 0o644))
	return p
}

func TestPipeline_Convert(t *testing.T) {
	dir := t.TempDir()
	in := writeBox(t, dir, "box.glb")
	out := filepath.Join(dir, "out", "scene.gltf")

	reg := prometheus.NewRegistry()
	p := newTestPipeline(t, reg)
	require.NoError(t, p.convert(context.Background(), []string{in}, out, p.importOptions()))

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"box"`)

	count, err := testutil.GatherAndCount(reg, "oxypipe_imports_total", "oxypipe_exports_total")
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	var buf bytes.Buffer
	p.describe(&buf, nil)
	assert.Contains(t, buf.String(), "scene: 1 objects, 0 lights, 1 materials")
}

func TestPipeline_ConvertNoInput(t *testing.T) {
	p := newTestPipeline(t, nil)
	assert.ErrorIs(t, p.convert(context.Background(), nil, "x.glb", nil), errNoInput)

	missing := filepath.Join(t.TempDir(), "missing.glb")
	assert.ErrorIs(t, p.convert(context.Background(), []string{missing}, "x.glb", nil), errNoInput)
}

func TestDropFolder_Importable(t *testing.T) {
	d := newDropFolder(newTestPipeline(t, nil), t.TempDir(), ".GLB")
	assert.Equal(t, "glb", d.ext)

	assert.True(t, d.importable("in/scene.gltf"))
	assert.True(t, d.importable("in/box.glb"))
	assert.False(t, d.importable("in/notes"))
	assert.False(t, d.importable("in/texture.png"))
	assert.Equal(t, filepath.Join(d.outDir, "box.glb"), d.outputPath("in/box.gltf"))
}

func TestDropFolder_ConvertsSettledFile(t *testing.T) {
	in := t.TempDir()
	out := t.TempDir()
	d := newDropFolder(newTestPipeline(t, nil), out, "glb")

	w, err := fsnotify.NewWatcher()
	require.NoError(t, err)
	defer w.Close()
	require.NoError(t, w.Add(in))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.run(ctx, w) }()

	writeBox(t, in, "drop.glb")
	require.Eventually(t, func() bool {
		_, err := os.Stat(filepath.Join(out, "drop.glb"))
		return err == nil
	}, 5*time.Second, 50*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
	assert.Equal(t, 1, d.p.manager.Scene().Count())
}

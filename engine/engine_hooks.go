package engine

import (
	"slices"

	"github.com/Carmen-Shannon/oxypipe/common"
	"github.com/Carmen-Shannon/oxypipe/engine/asset"
	"github.com/Carmen-Shannon/oxypipe/engine/camera"
	"github.com/Carmen-Shannon/oxypipe/engine/exporter"
	"github.com/Carmen-Shannon/oxypipe/engine/game_object"
	"github.com/Carmen-Shannon/oxypipe/engine/importer"
	"github.com/Carmen-Shannon/oxypipe/engine/light"
	"github.com/Carmen-Shannon/oxypipe/engine/loader"
	"github.com/Carmen-Shannon/oxypipe/engine/material"
	"github.com/Carmen-Shannon/oxypipe/engine/texture"

	"go.uber.org/zap"
)

// setupObjectProcess upgrades loader-native data to framework objects before results are processed
// and registers imported materials once they are.
func (m *assetManager) setupObjectProcess() {
	m.unsubscribe = append(m.unsubscribe,
		m.importer.OnProcessRawStart(m.upgradeResult),
		m.importer.OnProcessRaw(func(ev importer.ProcessRawEvent) {
			if r, ok := ev.Result.(*asset.Material); ok && r.Material != nil {
				m.materials.RegisterMaterial(r.Material)
			}
		}),
	)
}

func (m *assetManager) upgradeResult(ev importer.ProcessRawEvent) {
	opts := ev.Options
	switch r := ev.Result.(type) {
	case *asset.Model:
		m.upgradeObject(r.Root, opts)
	case *asset.Camera:
		m.upgradeObject(r.Object, opts)
	case *asset.Light:
		m.upgradeObject(r.Object, opts)
	case *asset.Material:
		if r.Material != nil || r.Imported == nil || !opts.ShouldReplaceMaterials() {
			return
		}
		mat, err := m.materials.ConvertToIMaterial(r.Imported, material.ConvertOptions{})
		if err != nil {
			m.logger.Error("unable to convert material", zap.String("name", r.Imported.Name), zap.Error(err))
			return
		}
		r.Material = mat
	case *asset.Texture:
		if r.Texture == nil && r.Imported != nil {
			r.Texture = texture.NewTexture(r.Imported)
		}
		if r.Texture != nil && opts != nil && opts.GenerateMipmaps != nil {
			r.Texture.SetGenerateMipmaps(*opts.GenerateMipmaps)
		}
	}
}

// upgradeObject converts the materials, cameras and lights found under root.
func (m *assetManager) upgradeObject(root game_object.GameObject, opts *asset.ImportOptions) {
	if root == nil {
		return
	}
	root.Traverse(func(o game_object.GameObject) bool {
		if imported := o.ImportedMaterials(); len(imported) > 0 && opts.ShouldReplaceMaterials() {
			mats := make([]material.Material, 0, len(imported))
			for _, src := range imported {
				if src == nil {
					continue
				}
				mat, err := m.materials.ConvertToIMaterial(src, material.ConvertOptions{})
				if err != nil {
					m.logger.Error("unable to convert material", zap.String("name", src.Name), zap.Error(err))
					return true
				}
				mats = append(mats, mat)
			}
			o.SetMaterials(mats)
		}
		if c := o.ImportedCamera(); c != nil && o.Camera() == nil && opts.ShouldReplaceCameras() {
			o.SetCamera(camera.FromImported(c))
		}
		if l := o.ImportedLight(); l != nil && o.Light() == nil && opts.ShouldReplaceLights() {
			upgraded, err := light.FromImported(l)
			if err != nil {
				m.logger.Warn("unable to upgrade light", zap.String("name", o.Name()), zap.Error(err))
			} else {
				o.SetLight(upgraded)
			}
		}
		return true
	})
}

// setupProcessState mirrors import, processing and export progress into the process state map.
func (m *assetManager) setupProcessState() {
	m.unsubscribe = append(m.unsubscribe,
		m.importer.OnImportFile(func(ev importer.ImportFileEvent) {
			if ev.State == importer.StateDone {
				m.SetProcessState(ev.Path, nil)
				return
			}
			m.SetProcessState(ev.Path, &ProcessState{State: string(ev.State), Progress: percent(ev.Progress)})
		}),
		m.importer.OnProcessRawStart(func(ev importer.ProcessRawEvent) {
			m.SetProcessState(ev.Path, &ProcessState{State: "processing"})
		}),
		m.importer.OnProcessRaw(func(ev importer.ProcessRawEvent) {
			m.SetProcessState(ev.Path, nil)
		}),
		m.exporter.OnExportFile(func(ev exporter.ExportFileEvent) {
			name := ""
			if ev.Result != nil {
				name = ev.Result.Name()
			}
			if ev.State == exporter.StateDone {
				m.SetProcessState(name, nil)
				return
			}
			m.SetProcessState(name, &ProcessState{State: string(ev.State)})
		}),
	)
}

func percent(progress float64) *float64 {
	if progress <= 0 {
		return nil
	}
	return common.Ptr(progress * 100)
}

// setupGLTFExtensions hands the registered extensions to every glTF loader and writer created later.
func (m *assetManager) setupGLTFExtensions() {
	m.unsubscribe = append(m.unsubscribe,
		m.importer.OnLoaderCreate(func(ev importer.LoaderCreateEvent) {
			l, ok := ev.Loader.(loader.Loader)
			if !ok || l.BackendType() != loader.BackendTypeGLTF {
				return
			}
			for _, ext := range m.GLTFExtensions() {
				l.RegisterGLTFExtension(ext)
			}
		}),
		m.exporter.OnExporterCreate(func(ev exporter.ExporterCreateEvent) {
			w, ok := ev.Writer.(exporter.GLTFWriter)
			if !ok {
				return
			}
			for _, ext := range m.GLTFExtensions() {
				w.RegisterGLTFExtension(ext)
			}
		}),
	)
}

func (m *assetManager) RegisterGLTFExtension(ext *loader.GLTFExtension) {
	if ext == nil {
		return
	}
	m.mu.Lock()
	m.gltfExtensions = slices.DeleteFunc(m.gltfExtensions, func(e *loader.GLTFExtension) bool { return e.Name == ext.Name })
	m.gltfExtensions = append(m.gltfExtensions, ext)
	m.mu.Unlock()

	for _, w := range m.exporter.Writers() {
		if gw, ok := w.(exporter.GLTFWriter); ok {
			gw.RegisterGLTFExtension(ext)
		}
	}
}

func (m *assetManager) UnregisterGLTFExtension(name string) {
	m.mu.Lock()
	n := len(m.gltfExtensions)
	m.gltfExtensions = slices.DeleteFunc(m.gltfExtensions, func(e *loader.GLTFExtension) bool { return e.Name == name })
	removed := len(m.gltfExtensions) != n
	m.mu.Unlock()
	if !removed {
		return
	}

	for _, w := range m.exporter.Writers() {
		if gw, ok := w.(exporter.GLTFWriter); ok {
			gw.UnregisterGLTFExtension(name)
		}
	}
}

package exporter

import (
	"bytes"
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"

	"github.com/Carmen-Shannon/oxypipe/common"
	"github.com/Carmen-Shannon/oxypipe/engine/asset"
	"github.com/Carmen-Shannon/oxypipe/engine/game_object"
	"github.com/Carmen-Shannon/oxypipe/engine/loader"
	"github.com/Carmen-Shannon/oxypipe/engine/material"
	"github.com/Carmen-Shannon/oxypipe/engine/model"

	"github.com/qmuntal/gltf"
	"github.com/qmuntal/gltf/modeler"
)

const (
	lightsPunctualExtensionName = "KHR_lights_punctual"
	unlitExtensionName          = "KHR_materials_unlit"
	gltfGenerator               = "oxypipe"
)

// gltfWriterImpl is the implementation of the GLTFWriter interface.
type gltfWriterImpl struct {
	mu         sync.RWMutex
	extensions []*loader.GLTFExtension
}

// GLTFWriter writes scene graphs as glTF or GLB and runs the export hooks of its registered glTF
// extensions on every document.
type GLTFWriter interface {
	asset.Writer

	// RegisterGLTFExtension adds ext, replacing a registered extension with the same name.
	//
	// Parameters:
	//   - ext: the extension
	RegisterGLTFExtension(ext *loader.GLTFExtension)

	// UnregisterGLTFExtension removes the extension named name.
	//
	// Parameters:
	//   - name: the glTF extension name
	UnregisterGLTFExtension(name string)

	// GLTFExtensions returns the registered extensions.
	//
	// Returns:
	//   - []*loader.GLTFExtension: a copy of the registrations
	GLTFExtensions() []*loader.GLTFExtension
}

var _ GLTFWriter = &gltfWriterImpl{}

// NewGLTFWriter creates a glTF writer with the given extensions registered.
//
// Parameters:
//   - exts: the initial extensions
//
// Returns:
//   - GLTFWriter: the writer
func NewGLTFWriter(exts ...*loader.GLTFExtension) GLTFWriter {
	w := &gltfWriterImpl{}
	for _, ext := range exts {
		w.RegisterGLTFExtension(ext)
	}
	return w
}

func (w *gltfWriterImpl) RegisterGLTFExtension(ext *loader.GLTFExtension) {
	if ext == nil {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.extensions = slices.DeleteFunc(w.extensions, func(e *loader.GLTFExtension) bool { return e.Name == ext.Name })
	w.extensions = append(w.extensions, ext)
}

func (w *gltfWriterImpl) UnregisterGLTFExtension(name string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.extensions = slices.DeleteFunc(w.extensions, func(e *loader.GLTFExtension) bool { return e.Name == name })
}

func (w *gltfWriterImpl) GLTFExtensions() []*loader.GLTFExtension {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return slices.Clone(w.extensions)
}

func (w *gltfWriterImpl) Write(ctx context.Context, obj any, opts *asset.ExportOptions) (*asset.Blob, error) {
	var root game_object.GameObject
	switch v := obj.(type) {
	case *asset.Model:
		root = v.Root
	case game_object.GameObject:
		root = v
	}
	if root == nil {
		return nil, fmt.Errorf("%w: %T is not a scene graph", ErrNotExportable, obj)
	}

	doc := &gltf.Document{
		Asset:   gltf.Asset{Version: "2.0", Generator: gltfGenerator},
		Buffers: []*gltf.Buffer{{}},
		Scenes:  []*gltf.Scene{{Name: root.Name()}},
		Scene:   gltf.Index(0),
	}
	s := &gltfWriteState{
		ctx:       ctx,
		doc:       doc,
		hooks:     loader.ExportHooks(doc, w.GLTFExtensions()),
		out:       &loader.GLTFExport{Document: doc, Root: root, Options: opts},
		materials: make(map[any]int),
		textures:  make(map[*common.ImportedTexture]int),
	}

	scene := doc.Scenes[0]
	if root.Type() == game_object.TypeScene {
		scene.Extras = exportableUserData(root.UserData())
		for _, child := range root.Children() {
			idx, err := s.writeNode(child)
			if err != nil {
				return nil, err
			}
			scene.Nodes = append(scene.Nodes, idx)
		}
	} else {
		idx, err := s.writeNode(root)
		if err != nil {
			return nil, err
		}
		scene.Nodes = []int{idx}
	}

	if len(s.lights) > 0 {
		if doc.Extensions == nil {
			doc.Extensions = gltf.Extensions{}
		}
		doc.Extensions[lightsPunctualExtensionName] = map[string]any{"lights": s.lights}
		loader.MarkExtensionUsed(doc, lightsPunctualExtensionName)
	}
	for _, h := range s.hooks {
		if h.AfterParse == nil {
			continue
		}
		if err := h.AfterParse(ctx, s.out); err != nil {
			return nil, fmt.Errorf("glTF export hook: %w", err)
		}
	}

	ext := strings.ToLower(exportExt(opts, "glb"))
	binary := ext != "gltf"
	if len(doc.BufferViews) == 0 {
		doc.Buffers = nil
	} else if !binary {
		for _, b := range doc.Buffers {
			b.EmbeddedResource()
		}
	}

	var buf bytes.Buffer
	enc := gltf.NewEncoder(&buf)
	enc.AsBinary = binary
	if err := enc.Encode(doc); err != nil {
		return nil, fmt.Errorf("failed to encode glTF: %w", err)
	}
	mimeType := "model/gltf-binary"
	if !binary {
		mimeType = "model/gltf+json"
	}
	return &asset.Blob{Data: buf.Bytes(), Ext: ext, Mime: mimeType}, nil
}

// gltfWriteState holds the per-document bookkeeping of one Write call.
type gltfWriteState struct {
	ctx   context.Context
	doc   *gltf.Document
	hooks []*loader.GLTFExportHooks
	out   *loader.GLTFExport

	materials map[any]int
	textures  map[*common.ImportedTexture]int
	lights    []map[string]any
}

func (s *gltfWriteState) writeNode(obj game_object.GameObject) (int, error) {
	if err := s.ctx.Err(); err != nil {
		return 0, err
	}

	t := obj.Transform()
	node := &gltf.Node{
		Name:        obj.Name(),
		Translation: [3]float64{float64(t.Translation[0]), float64(t.Translation[1]), float64(t.Translation[2])},
		Rotation:    [4]float64{float64(t.Rotation[0]), float64(t.Rotation[1]), float64(t.Rotation[2]), float64(t.Rotation[3])},
		Scale:       [3]float64{float64(t.Scale[0]), float64(t.Scale[1]), float64(t.Scale[2])},
	}
	extras := exportableUserData(obj.UserData())
	extras["uuid"] = obj.UUID()
	node.Extras = extras
	if exts, ok := obj.UserData()[loader.ExtensionsUserDataKey].(map[string]any); ok {
		for name, v := range exts {
			if node.Extensions == nil {
				node.Extensions = gltf.Extensions{}
			}
			node.Extensions[name] = v
			loader.MarkExtensionUsed(s.doc, name)
		}
	}

	index := len(s.doc.Nodes)
	s.doc.Nodes = append(s.doc.Nodes, node)

	if m := obj.Model(); m != nil && len(m.Primitives()) > 0 {
		mats, err := nodeMaterials(obj)
		if err != nil {
			return 0, fmt.Errorf("node %q: %w", obj.Name(), err)
		}
		mesh, err := s.writeMesh(m, mats)
		if err != nil {
			return 0, fmt.Errorf("node %q: %w", obj.Name(), err)
		}
		node.Mesh = gltf.Index(mesh)
	}
	if cam := nodeCamera(obj); cam != nil {
		node.Camera = gltf.Index(s.writeCamera(cam))
	}
	if l := nodeLight(obj); l != nil {
		if node.Extensions == nil {
			node.Extensions = gltf.Extensions{}
		}
		node.Extensions[lightsPunctualExtensionName] = map[string]any{"light": s.writeLight(l)}
	}

	for _, child := range obj.Children() {
		idx, err := s.writeNode(child)
		if err != nil {
			return 0, err
		}
		node.Children = append(node.Children, idx)
	}

	for _, h := range s.hooks {
		if h.WriteNode != nil {
			h.WriteNode(obj, node, s.out)
		}
	}
	return index, nil
}

func (s *gltfWriteState) writeMesh(m model.Model, mats []material.Material) (int, error) {
	mesh := &gltf.Mesh{Name: m.Name()}
	for i, p := range m.Primitives() {
		if len(p.Positions) == 0 {
			continue
		}
		prim := &gltf.Primitive{
			Mode:       gltf.PrimitiveTriangles,
			Attributes: map[string]int{gltf.POSITION: modeler.WritePosition(s.doc, p.Positions)},
		}
		if len(p.Normals) == len(p.Positions) {
			prim.Attributes[gltf.NORMAL] = modeler.WriteNormal(s.doc, p.Normals)
		}
		if len(p.UVs) == len(p.Positions) {
			prim.Attributes[gltf.TEXCOORD_0] = modeler.WriteTextureCoord(s.doc, p.UVs)
		}
		if len(p.Indices) > 0 {
			prim.Indices = gltf.Index(modeler.WriteIndices(s.doc, p.Indices))
		}
		if p.MaterialIndex >= 0 && p.MaterialIndex < len(mats) && mats[p.MaterialIndex] != nil {
			idx, err := s.writeMaterial(mats[p.MaterialIndex])
			if err != nil {
				return 0, fmt.Errorf("primitive %d: %w", i, err)
			}
			prim.Material = gltf.Index(idx)
		}
		mesh.Primitives = append(mesh.Primitives, prim)
	}
	s.doc.Meshes = append(s.doc.Meshes, mesh)
	return len(s.doc.Meshes) - 1, nil
}

func (s *gltfWriteState) writeMaterial(m material.Material) (int, error) {
	if idx, ok := s.materials[m]; ok {
		return idx, nil
	}
	p := m.Properties()
	extras := exportableUserData(m.UserData())
	extras["uuid"] = m.UUID()
	out := &gltf.Material{
		Name: p.Name,
		PBRMetallicRoughness: &gltf.PBRMetallicRoughness{
			BaseColorFactor: &[4]float64{float64(p.BaseColor[0]), float64(p.BaseColor[1]), float64(p.BaseColor[2]), float64(p.BaseColor[3])},
			MetallicFactor:  gltf.Float(float64(p.Metallic)),
			RoughnessFactor: gltf.Float(float64(p.Roughness)),
		},
		EmissiveFactor: [3]float64{float64(p.Emissive[0]), float64(p.Emissive[1]), float64(p.Emissive[2])},
		DoubleSided:    p.DoubleSided,
		Extras:         extras,
	}
	switch p.AlphaMode {
	case "MASK":
		out.AlphaMode = gltf.AlphaMask
		out.AlphaCutoff = gltf.Float(float64(p.AlphaCutoff))
	case "BLEND":
		out.AlphaMode = gltf.AlphaBlend
	default:
		out.AlphaMode = gltf.AlphaOpaque
	}
	if m.TypeSlug() == material.UnlitTypeSlug {
		out.Extensions = gltf.Extensions{unlitExtensionName: map[string]any{}}
		loader.MarkExtensionUsed(s.doc, unlitExtensionName)
	}

	var err error
	texInfo := func(tex *common.ImportedTexture) *gltf.TextureInfo {
		if err != nil {
			return nil
		}
		idx, ok, e := s.writeTexture(tex)
		if e != nil {
			err = e
		}
		if !ok {
			return nil
		}
		return &gltf.TextureInfo{Index: idx}
	}
	out.PBRMetallicRoughness.BaseColorTexture = texInfo(p.DiffuseTexture)
	out.PBRMetallicRoughness.MetallicRoughnessTexture = texInfo(p.MetallicRoughnessTexture)
	out.EmissiveTexture = texInfo(p.EmissiveTexture)
	if info := texInfo(p.NormalTexture); info != nil {
		out.NormalTexture = &gltf.NormalTexture{Index: gltf.Index(info.Index)}
	}
	if info := texInfo(p.OcclusionTexture); info != nil {
		out.OcclusionTexture = &gltf.OcclusionTexture{Index: gltf.Index(info.Index)}
	}
	if err != nil {
		return 0, fmt.Errorf("material %q: %w", p.Name, err)
	}

	s.doc.Materials = append(s.doc.Materials, out)
	idx := len(s.doc.Materials) - 1
	s.materials[m] = idx
	return idx, nil
}

// writeTexture adds the image of tex to the document. Embedded data goes into the binary buffer,
// external images keep their URI. Textures with neither are skipped.
func (s *gltfWriteState) writeTexture(tex *common.ImportedTexture) (int, bool, error) {
	if tex == nil {
		return 0, false, nil
	}
	if idx, ok := s.textures[tex]; ok {
		return idx, true, nil
	}

	var img int
	switch {
	case len(tex.Data) > 0:
		i, err := modeler.WriteImage(s.doc, tex.Name, common.Coalesce(tex.MimeType, "image/png"), bytes.NewReader(tex.Data))
		if err != nil {
			return 0, false, fmt.Errorf("failed to write image %q: %w", tex.Name, err)
		}
		img = i
	case tex.Path != "" && !strings.HasPrefix(tex.Path, "blob:"):
		s.doc.Images = append(s.doc.Images, &gltf.Image{Name: tex.Name, URI: tex.Path, MimeType: tex.MimeType})
		img = len(s.doc.Images) - 1
	default:
		return 0, false, nil
	}

	s.doc.Textures = append(s.doc.Textures, &gltf.Texture{Name: tex.Name, Source: gltf.Index(img)})
	idx := len(s.doc.Textures) - 1
	s.textures[tex] = idx
	return idx, true, nil
}

func (s *gltfWriteState) writeCamera(c *common.ImportedCamera) int {
	out := &gltf.Camera{Name: c.Name}
	if c.Projection == common.ProjectionOrthographic {
		out.Orthographic = &gltf.Orthographic{
			Xmag:  float64(c.XMag),
			Ymag:  float64(c.YMag),
			Znear: float64(c.ZNear),
			Zfar:  float64(c.ZFar),
		}
	} else {
		out.Perspective = &gltf.Perspective{
			Yfov:  float64(c.YFov),
			Znear: float64(c.ZNear),
		}
		if c.AspectRatio > 0 {
			out.Perspective.AspectRatio = gltf.Float(float64(c.AspectRatio))
		}
		if c.ZFar > 0 {
			out.Perspective.Zfar = gltf.Float(float64(c.ZFar))
		}
	}
	s.doc.Cameras = append(s.doc.Cameras, out)
	return len(s.doc.Cameras) - 1
}

func (s *gltfWriteState) writeLight(l *common.ImportedLight) int {
	out := map[string]any{
		"name":      l.Name,
		"type":      l.Type,
		"color":     []float64{float64(l.Color[0]), float64(l.Color[1]), float64(l.Color[2])},
		"intensity": float64(l.Intensity),
	}
	if l.Range > 0 {
		out["range"] = float64(l.Range)
	}
	if l.Type == "spot" {
		out["spot"] = map[string]any{
			"innerConeAngle": float64(l.InnerConeAngle),
			"outerConeAngle": float64(l.OuterConeAngle),
		}
	}
	s.lights = append(s.lights, out)
	return len(s.lights) - 1
}

// nodeMaterials returns the framework materials of obj, or unregistered copies of its imported
// materials when it has not been converted. The result stays index-aligned with the primitives.
func nodeMaterials(obj game_object.GameObject) ([]material.Material, error) {
	if mats := obj.Materials(); len(mats) > 0 {
		return mats, nil
	}
	imported := obj.ImportedMaterials()
	out := make([]material.Material, len(imported))
	for i, src := range imported {
		if src == nil {
			continue
		}
		m, err := materialFromImported(src)
		if err != nil {
			return nil, err
		}
		out[i] = m
	}
	return out, nil
}

func nodeCamera(obj game_object.GameObject) *common.ImportedCamera {
	if c := obj.Camera(); c != nil {
		return c.ToImported()
	}
	return obj.ImportedCamera()
}

func nodeLight(obj game_object.GameObject) *common.ImportedLight {
	if l := obj.Light(); l != nil {
		return l.ToImported()
	}
	return obj.ImportedLight()
}

// exportableUserData copies the user data that is written to extras. Keys starting with "__", the
// stored extensions and nested objects that are not plain data are left out.
func exportableUserData(userData map[string]any) map[string]any {
	out := make(map[string]any, len(userData))
	for _, k := range slices.Sorted(maps.Keys(userData)) {
		if strings.HasPrefix(k, "__") || k == loader.ExtensionsUserDataKey || k == loader.ImportedViewerConfigKey {
			continue
		}
		switch userData[k].(type) {
		case nil, string, bool, float64, float32, int, int64, []any, map[string]any, []string:
			out[k] = userData[k]
		}
	}
	return out
}

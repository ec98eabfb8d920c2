package loader

import (
	"context"
	"fmt"
	"slices"

	"github.com/Carmen-Shannon/oxypipe/common"
	"github.com/Carmen-Shannon/oxypipe/engine/asset"

	"github.com/cogentcore/webgpu/wgpu"
	"github.com/qmuntal/gltf"
	"go.uber.org/zap"
)

const unlitExtensionName = "KHR_materials_unlit"

// gltfMaterialExtractorImpl is the implementation of the gltfMaterialExtractor interface.
type gltfMaterialExtractorImpl struct {
	doc    *gltf.Document
	req    *asset.Request
	logger *zap.Logger

	textures map[int]*common.ImportedTexture
}

// gltfMaterialExtractor defines the interface for extracting material and texture data
// from a decoded glTF document into loader-native ImportedMaterial structs.
type gltfMaterialExtractor interface {
	// ExtractMaterial extracts a single material by index, including loading any referenced texture data.
	//
	// Parameters:
	//   - ctx: the context of the load
	//   - materialIndex: the index of the material in the document
	//
	// Returns:
	//   - *common.ImportedMaterial: the extracted material with its texture data loaded
	//   - error: error if extraction fails
	ExtractMaterial(ctx context.Context, materialIndex int) (*common.ImportedMaterial, error)

	// ExtractAllMaterials extracts all materials from the document, index-aligned with doc.Materials.
	//
	// Parameters:
	//   - ctx: the context of the load
	//
	// Returns:
	//   - []*common.ImportedMaterial: all extracted materials
	//   - error: error if extraction fails
	ExtractAllMaterials(ctx context.Context) ([]*common.ImportedMaterial, error)
}

var _ gltfMaterialExtractor = &gltfMaterialExtractorImpl{}

// newGLTFMaterialExtractor creates a new material extractor for a decoded document. External images
// are fetched through req.
func newGLTFMaterialExtractor(doc *gltf.Document, req *asset.Request, logger *zap.Logger) gltfMaterialExtractor {
	return &gltfMaterialExtractorImpl{
		doc:      doc,
		req:      req,
		logger:   logger,
		textures: make(map[int]*common.ImportedTexture),
	}
}

func (e *gltfMaterialExtractorImpl) ExtractMaterial(ctx context.Context, materialIndex int) (*common.ImportedMaterial, error) {
	if materialIndex < 0 || materialIndex >= len(e.doc.Materials) {
		return nil, fmt.Errorf("material index %d out of range", materialIndex)
	}
	mat := e.doc.Materials[materialIndex]

	result := &common.ImportedMaterial{
		Name:        mat.Name,
		Type:        "physical",
		BaseColor:   [4]float32{1, 1, 1, 1},
		Metallic:    1.0,
		Roughness:   1.0,
		Emissive:    toFloat32x3(mat.EmissiveFactor),
		AlphaMode:   gltfAlphaModeName(mat.AlphaMode),
		AlphaCutoff: 0.5,
		DoubleSided: mat.DoubleSided,
		Extras:      extrasMap(mat.Extras),
	}
	if mat.AlphaCutoff != nil {
		result.AlphaCutoff = float32(*mat.AlphaCutoff)
	}
	if id, ok := result.Extras["uuid"].(string); ok {
		result.UUID = id
	}
	if _, ok := mat.Extensions[unlitExtensionName]; ok {
		result.Type = "unlit"
	}
	if exts := unhandledExtensions(mat.Extensions, unlitExtensionName); len(exts) > 0 {
		result.Extras[ExtensionsUserDataKey] = exts
	}

	var err error
	if pbr := mat.PBRMetallicRoughness; pbr != nil {
		if pbr.BaseColorFactor != nil {
			f := *pbr.BaseColorFactor
			result.BaseColor = [4]float32{float32(f[0]), float32(f[1]), float32(f[2]), float32(f[3])}
		}
		if pbr.MetallicFactor != nil {
			result.Metallic = float32(*pbr.MetallicFactor)
		}
		if pbr.RoughnessFactor != nil {
			result.Roughness = float32(*pbr.RoughnessFactor)
		}

		// Base color / diffuse texture
		if pbr.BaseColorTexture != nil {
			if result.DiffuseTexture, err = e.loadTexture(ctx, pbr.BaseColorTexture.Index); err != nil {
				return nil, fmt.Errorf("material %q: base color texture: %w", mat.Name, err)
			}
		}

		// Metallic-roughness texture
		if pbr.MetallicRoughnessTexture != nil {
			if result.MetallicRoughnessTexture, err = e.loadTexture(ctx, pbr.MetallicRoughnessTexture.Index); err != nil {
				return nil, fmt.Errorf("material %q: metallic-roughness texture: %w", mat.Name, err)
			}
		}
	}

	if mat.NormalTexture != nil && mat.NormalTexture.Index != nil {
		if result.NormalTexture, err = e.loadTexture(ctx, *mat.NormalTexture.Index); err != nil {
			return nil, fmt.Errorf("material %q: normal texture: %w", mat.Name, err)
		}
	}
	if mat.OcclusionTexture != nil && mat.OcclusionTexture.Index != nil {
		if result.OcclusionTexture, err = e.loadTexture(ctx, *mat.OcclusionTexture.Index); err != nil {
			return nil, fmt.Errorf("material %q: occlusion texture: %w", mat.Name, err)
		}
	}
	if mat.EmissiveTexture != nil {
		if result.EmissiveTexture, err = e.loadTexture(ctx, mat.EmissiveTexture.Index); err != nil {
			return nil, fmt.Errorf("material %q: emissive texture: %w", mat.Name, err)
		}
	}

	return result, nil
}

func (e *gltfMaterialExtractorImpl) ExtractAllMaterials(ctx context.Context) ([]*common.ImportedMaterial, error) {
	materials := make([]*common.ImportedMaterial, len(e.doc.Materials))
	for i := range e.doc.Materials {
		mat, err := e.ExtractMaterial(ctx, i)
		if err != nil {
			return nil, fmt.Errorf("material %d: %w", i, err)
		}
		materials[i] = mat
	}
	return materials, nil
}

// loadTexture resolves a glTF texture index into an ImportedTexture with loaded image data.
// Textures shared by several materials resolve to the same ImportedTexture.
// An external image that cannot be fetched keeps its path and no data.
func (e *gltfMaterialExtractorImpl) loadTexture(ctx context.Context, textureIndex int) (*common.ImportedTexture, error) {
	if tex, ok := e.textures[textureIndex]; ok {
		return tex, nil
	}
	if textureIndex < 0 || textureIndex >= len(e.doc.Textures) {
		return nil, fmt.Errorf("texture index %d out of range", textureIndex)
	}

	tex := e.doc.Textures[textureIndex]
	if tex.Source == nil {
		return nil, nil
	}

	// Resolve glTF sampler parameters if this texture references one.
	var samplerData *common.SamplerStagingData
	if tex.Sampler != nil && *tex.Sampler >= 0 && *tex.Sampler < len(e.doc.Samplers) {
		samplerData = gltfSamplerToStagingData(e.doc.Samplers[*tex.Sampler])
	}

	imageIndex := *tex.Source
	if imageIndex < 0 || imageIndex >= len(e.doc.Images) {
		return nil, fmt.Errorf("image index %d out of range", imageIndex)
	}
	img := e.doc.Images[imageIndex]

	result := &common.ImportedTexture{
		Name:        common.Coalesce(img.Name, tex.Name),
		MimeType:    img.MimeType,
		SamplerData: samplerData,
	}
	e.textures[textureIndex] = result

	switch {
	// Image embedded in a buffer view (common in GLB)
	case img.BufferView != nil:
		data, err := readBufferViewRaw(e.doc, *img.BufferView)
		if err != nil {
			return nil, fmt.Errorf("failed to read image buffer view: %w", err)
		}
		result.Data = data

	case common.IsDataURL(img.URI):
		data, mimeType, err := common.DecodeDataURL(img.URI)
		if err != nil {
			return nil, fmt.Errorf("failed to decode image data URI: %w", err)
		}
		result.Data = data
		result.MimeType = common.Coalesce(result.MimeType, mimeType)

	case img.URI != "":
		result.Path = img.URI
		if result.Name == "" {
			result.Name = common.FileNameFromPath(img.URI)
		}
		file, err := e.req.Open(ctx, img.URI)
		if err != nil {
			e.logger.Warn("failed to fetch texture image", zap.String("uri", img.URI), zap.Error(err))
			break
		}
		result.Data = file.Data
		result.MimeType = common.Coalesce(result.MimeType, file.Mime)
	}

	if len(result.Data) > 0 {
		if err := result.DecodeConfig(); err != nil {
			e.logger.Debug("could not read texture header", zap.String("texture", result.Name), zap.Error(err))
		}
	}
	return result, nil
}

// readBufferViewRaw reads raw bytes from a buffer view by index (not through an accessor).
// This is used for image data which is stored directly in buffer views without accessor interpretation.
func readBufferViewRaw(doc *gltf.Document, bufferViewIndex int) ([]byte, error) {
	if bufferViewIndex < 0 || bufferViewIndex >= len(doc.BufferViews) {
		return nil, fmt.Errorf("bufferView index %d out of range", bufferViewIndex)
	}

	bv := doc.BufferViews[bufferViewIndex]
	if bv.Buffer < 0 || bv.Buffer >= len(doc.Buffers) {
		return nil, fmt.Errorf("buffer index %d out of range", bv.Buffer)
	}

	buf := doc.Buffers[bv.Buffer]
	start := bv.ByteOffset
	end := start + bv.ByteLength
	if end > len(buf.Data) {
		return nil, fmt.Errorf("bufferView exceeds buffer bounds: offset=%d length=%d bufSize=%d", start, bv.ByteLength, len(buf.Data))
	}

	data := make([]byte, bv.ByteLength)
	copy(data, buf.Data[start:end])
	return data, nil
}

// gltfSamplerToStagingData converts a glTF sampler definition into SamplerStagingData.
// Any unset fields in the glTF sampler fall back to the glTF defaults (linear filtering, repeat wrapping).
//
// Parameters:
//   - s: the glTF sampler to convert
//
// Returns:
//   - *common.SamplerStagingData: the converted sampler staging data
func gltfSamplerToStagingData(s *gltf.Sampler) *common.SamplerStagingData {
	result := common.DefaultSampler()

	switch s.MagFilter {
	case gltf.MagNearest:
		result.MagFilter = wgpu.FilterModeNearest
	case gltf.MagLinear:
		result.MagFilter = wgpu.FilterModeLinear
	}

	switch s.MinFilter {
	case gltf.MinNearest, gltf.MinNearestMipMapNearest, gltf.MinNearestMipMapLinear:
		result.MinFilter = wgpu.FilterModeNearest
	case gltf.MinLinear, gltf.MinLinearMipMapNearest, gltf.MinLinearMipMapLinear:
		result.MinFilter = wgpu.FilterModeLinear
	}
	switch s.MinFilter {
	case gltf.MinNearestMipMapNearest, gltf.MinLinearMipMapNearest:
		result.MipmapFilter = wgpu.MipmapFilterModeNearest
	case gltf.MinNearestMipMapLinear, gltf.MinLinearMipMapLinear:
		result.MipmapFilter = wgpu.MipmapFilterModeLinear
	case gltf.MinNearest, gltf.MinLinear:
		// Non-mipmapped filters
		result.MipmapFilter = wgpu.MipmapFilterModeNearest
	}

	result.AddressModeU = gltfWrapToAddressMode(s.WrapS)
	result.AddressModeV = gltfWrapToAddressMode(s.WrapT)
	return result
}

// gltfWrapToAddressMode converts a glTF wrap mode to a wgpu AddressMode.
func gltfWrapToAddressMode(wrap gltf.WrappingMode) wgpu.AddressMode {
	switch wrap {
	case gltf.WrapClampToEdge:
		return wgpu.AddressModeClampToEdge
	case gltf.WrapMirroredRepeat:
		return wgpu.AddressModeMirrorRepeat
	default:
		return wgpu.AddressModeRepeat
	}
}

func gltfAlphaModeName(mode gltf.AlphaMode) string {
	switch mode {
	case gltf.AlphaMask:
		return "MASK"
	case gltf.AlphaBlend:
		return "BLEND"
	default:
		return "OPAQUE"
	}
}

func toFloat32x3(v [3]float64) [3]float32 {
	return [3]float32{float32(v[0]), float32(v[1]), float32(v[2])}
}

// extrasMap converts the extras of a glTF object into a user data map. Non-object extras are kept
// under the "extras" key.
func extrasMap(extras any) map[string]any {
	out := map[string]any{}
	if extras == nil {
		return out
	}
	var m map[string]any
	ok, err := DecodeExtension(gltf.Extensions{"extras": extras}, "extras", &m)
	if err != nil || !ok || m == nil {
		var v any
		if _, err := DecodeExtension(gltf.Extensions{"extras": extras}, "extras", &v); err == nil && v != nil {
			out["extras"] = v
		}
		return out
	}
	return m
}

// unhandledExtensions decodes every extension except the skipped ones into generic JSON values.
func unhandledExtensions(exts gltf.Extensions, skip ...string) map[string]any {
	out := map[string]any{}
	for name := range exts {
		if slices.Contains(skip, name) {
			continue
		}
		var v any
		if _, err := DecodeExtension(exts, name, &v); err == nil {
			out[name] = v
		}
	}
	return out
}

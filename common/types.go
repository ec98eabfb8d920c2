// package common contains common types that are used throughout this pipeline. They are not interface-wrapped structs, just plain structs that express
// commonly used data-types, mostly the loader-native data handed from format loaders to the framework wrappers.
package common

import (
	"bytes"
	"fmt"
	"image"
	"image/draw"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"os"

	"github.com/cogentcore/webgpu/wgpu"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// SamplerStagingData holds the sampler configuration attached to an imported or exported texture.
// The enums mirror the WebGPU sampler descriptor so a renderer can create the sampler without translation.
type SamplerStagingData struct {
	// AddressModeU, AddressModeV, AddressModeW specify the addressing mode for texture coordinates outside the [0, 1] range in each dimension (U, V, W).
	AddressModeU, AddressModeV, AddressModeW wgpu.AddressMode
	// MagFilter and MinFilter specify the filtering mode for magnification and minification.
	MagFilter, MinFilter wgpu.FilterMode
	// MipmapFilter specifies the filtering mode for mipmap level selection.
	MipmapFilter wgpu.MipmapFilterMode
	// LodMinClamp and LodMaxClamp specify the minimum and maximum level of detail (LOD) for mipmapping.
	LodMinClamp, LodMaxClamp float32
	// Compare specifies the comparison function for comparison samplers.
	Compare wgpu.CompareFunction
	// MaxAnisotropy specifies the maximum anisotropy level for anisotropic filtering.
	MaxAnisotropy uint16
}

// DefaultSampler returns the linear/repeat sampler used when a file carries no sampler information.
//
// Returns:
//   - *SamplerStagingData: a new sampler configuration
func DefaultSampler() *SamplerStagingData {
	return &SamplerStagingData{
		AddressModeU:  wgpu.AddressModeRepeat,
		AddressModeV:  wgpu.AddressModeRepeat,
		AddressModeW:  wgpu.AddressModeRepeat,
		MagFilter:     wgpu.FilterModeLinear,
		MinFilter:     wgpu.FilterModeLinear,
		MipmapFilter:  wgpu.MipmapFilterModeLinear,
		LodMaxClamp:   32,
		MaxAnisotropy: 1,
	}
}

// ImportedMaterial represents material properties exactly as a format loader read them.
// It is converted to a framework material by the material manager.
type ImportedMaterial struct {
	// UUID is the identifier stored in the source file, if any.
	UUID string

	// Name is the material identifier.
	Name string

	// Type is the loader-native material type (e.g. "physical", "unlit", "MeshStandardMaterial").
	Type string

	// BaseColor is the albedo/diffuse color (RGBA).
	BaseColor [4]float32

	// Metallic factor (0.0 = dielectric, 1.0 = metal).
	Metallic float32

	// Roughness factor (0.0 = smooth, 1.0 = rough).
	Roughness float32

	// Emissive is the emitted color (RGB).
	Emissive [3]float32

	// AlphaMode is one of OPAQUE, MASK or BLEND.
	AlphaMode string

	// AlphaCutoff is the alpha threshold used by the MASK mode.
	AlphaCutoff float32

	// DoubleSided disables back-face culling.
	DoubleSided bool

	// DiffuseTexture holds the base color texture (if present).
	DiffuseTexture *ImportedTexture

	// NormalTexture holds the normal map (if present).
	NormalTexture *ImportedTexture

	// MetallicRoughnessTexture holds the packed metallic/roughness map (if present).
	MetallicRoughnessTexture *ImportedTexture

	// EmissiveTexture holds the emissive map (if present).
	EmissiveTexture *ImportedTexture

	// OcclusionTexture holds the ambient occlusion map (if present).
	OcclusionTexture *ImportedTexture

	// Extras carries unrecognised application data from the source file.
	Extras map[string]any
}

// ImportedTexture represents texture data extracted from a file.
// For embedded textures (GLB, data URLs), the Data field contains raw image bytes.
// For external textures, the Path field contains the file path.
type ImportedTexture struct {
	// Name is an identifier for this texture (e.g., "diffuse", "normal").
	Name string

	// Path is the file path for external textures (empty for embedded).
	Path string

	// Data contains raw encoded image bytes.
	Data []byte

	// MimeType indicates the image format (e.g., "image/png", "image/jpeg").
	MimeType string

	// Width is the texture width in pixels (populated after Decode).
	Width int

	// Height is the texture height in pixels (populated after Decode).
	Height int

	// SamplerData holds sampler parameters extracted from the source file.
	// When nil, DefaultSampler applies.
	SamplerData *SamplerStagingData
}

// Decode decodes the texture to raw RGBA pixel data.
// Uses either embedded Data bytes or loads from Path on disk.
// Supports PNG, JPEG, GIF, BMP, TIFF and WebP.
//
// Returns:
//   - []byte: raw RGBA pixel data (4 bytes per pixel, row-major order)
//   - uint32: texture width in pixels
//   - uint32: texture height in pixels
//   - error: error if decoding fails
func (t *ImportedTexture) Decode() ([]byte, uint32, uint32, error) {
	if t == nil {
		return nil, 0, 0, fmt.Errorf("texture is nil")
	}

	var img image.Image
	var err error

	if len(t.Data) > 0 {
		img, _, err = image.Decode(bytes.NewReader(t.Data))
		if err != nil {
			return nil, 0, 0, fmt.Errorf("failed to decode embedded image: %w", err)
		}
	} else if t.Path != "" {
		file, fileErr := os.Open(t.Path)
		if fileErr != nil {
			return nil, 0, 0, fmt.Errorf("failed to open texture file %s: %w", t.Path, fileErr)
		}
		defer file.Close()

		img, _, err = image.Decode(file)
		if err != nil {
			return nil, 0, 0, fmt.Errorf("failed to decode texture file %s: %w", t.Path, err)
		}
	} else {
		return nil, 0, 0, fmt.Errorf("texture has neither data nor path")
	}

	bounds := img.Bounds()
	rgba := image.NewRGBA(bounds)
	draw.Draw(rgba, bounds, img, bounds.Min, draw.Src)

	t.Width = bounds.Dx()
	t.Height = bounds.Dy()

	return rgba.Pix, uint32(t.Width), uint32(t.Height), nil
}

// DecodeConfig reads only the image header to fill Width and Height.
//
// Returns:
//   - error: error if the header cannot be read
func (t *ImportedTexture) DecodeConfig() error {
	if t == nil || len(t.Data) == 0 {
		return fmt.Errorf("texture has no data")
	}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(t.Data))
	if err != nil {
		return fmt.Errorf("failed to decode image header: %w", err)
	}
	t.Width, t.Height = cfg.Width, cfg.Height
	return nil
}

// CameraProjection distinguishes perspective from orthographic cameras.
type CameraProjection string

const (
	ProjectionPerspective  CameraProjection = "perspective"
	ProjectionOrthographic CameraProjection = "orthographic"
)

// ImportedCamera represents camera parameters as read by a format loader.
type ImportedCamera struct {
	Name        string
	Projection  CameraProjection
	YFov        float32
	AspectRatio float32
	ZNear       float32
	ZFar        float32
	XMag        float32
	YMag        float32
}

// ImportedLight represents a punctual light as read by a format loader.
type ImportedLight struct {
	Name string
	// Type is "directional", "point", "spot", "ambient", "hemisphere" or "rectarea".
	Type           string
	Color          [3]float32
	Intensity      float32
	Range          float32
	InnerConeAngle float32
	OuterConeAngle float32
}

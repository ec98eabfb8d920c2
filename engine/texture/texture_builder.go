package texture

import "github.com/cogentcore/webgpu/wgpu"

// TextureBuilderOption is a functional option for configuring a Texture during construction.
type TextureBuilderOption func(*textureImpl)

// WithName sets the texture name.
//
// Parameters:
//   - name: the texture name
//
// Returns:
//   - TextureBuilderOption: functional option to set the name
func WithName(name string) TextureBuilderOption {
	return func(t *textureImpl) {
		t.name = name
	}
}

// WithFormat overrides the GPU texture format.
//
// Parameters:
//   - format: the texture format
//
// Returns:
//   - TextureBuilderOption: functional option to set the format
func WithFormat(format wgpu.TextureFormat) TextureBuilderOption {
	return func(t *textureImpl) {
		t.format = format
	}
}

// WithFlipY sets whether the image rows are flipped on upload. glTF textures are not flipped.
//
// Parameters:
//   - flip: true to flip
//
// Returns:
//   - TextureBuilderOption: functional option to set the flip flag
func WithFlipY(flip bool) TextureBuilderOption {
	return func(t *textureImpl) {
		t.flipY = flip
	}
}

// WithGenerateMipmaps enables or disables mipmap generation.
//
// Parameters:
//   - generate: true to generate mipmaps
//
// Returns:
//   - TextureBuilderOption: functional option to set mipmap generation
func WithGenerateMipmaps(generate bool) TextureBuilderOption {
	return func(t *textureImpl) {
		t.generateMipmaps = generate
		if !generate {
			t.sampler.MipmapFilter = wgpu.MipmapFilterModeNearest
			t.sampler.LodMaxClamp = 0
		}
	}
}

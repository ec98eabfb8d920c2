// Package texture wraps imported image data with the sampler and format settings a renderer needs.
package texture

import (
	"strings"
	"sync"

	"github.com/Carmen-Shannon/oxypipe/common"
	"github.com/Carmen-Shannon/oxypipe/engine/event"

	"github.com/cogentcore/webgpu/wgpu"
	"github.com/google/uuid"
)

// Mapping describes how a texture is projected when used as a scene environment or background.
type Mapping string

const (
	MappingUV                 Mapping = "uv"
	MappingEquirectReflection Mapping = "equirectangular-reflection"
)

type textureImpl struct {
	mu sync.RWMutex

	uuid            string
	name            string
	source          *common.ImportedTexture
	sampler         common.SamplerStagingData
	format          wgpu.TextureFormat
	mapping         Mapping
	flipY           bool
	generateMipmaps bool
	userData        map[string]any

	disposed  bool
	onDispose event.Dispatcher[Texture]
}

// Texture defines the interface for the framework texture wrapper.
type Texture interface {
	// UUID returns the unique identifier of the texture.
	//
	// Returns:
	//   - string: the UUID
	UUID() string

	// Name returns the texture name.
	//
	// Returns:
	//   - string: the name
	Name() string

	// SetName sets the texture name.
	//
	// Parameters:
	//   - name: the new name
	SetName(name string)

	// Source returns the encoded image data the texture was created from.
	//
	// Returns:
	//   - *common.ImportedTexture: the image source
	Source() *common.ImportedTexture

	// Sampler returns the sampler configuration.
	//
	// Returns:
	//   - common.SamplerStagingData: the sampler configuration
	Sampler() common.SamplerStagingData

	// SetSampler replaces the sampler configuration.
	//
	// Parameters:
	//   - s: the sampler configuration
	SetSampler(s common.SamplerStagingData)

	// Format returns the GPU texture format the image should be uploaded as.
	//
	// Returns:
	//   - wgpu.TextureFormat: the format
	Format() wgpu.TextureFormat

	// Mapping returns the projection used when the texture is an environment or background.
	//
	// Returns:
	//   - Mapping: the mapping
	Mapping() Mapping

	// SetMapping sets the projection mapping.
	//
	// Parameters:
	//   - m: the mapping
	SetMapping(m Mapping)

	// GenerateMipmaps reports whether mipmaps should be generated on upload.
	//
	// Returns:
	//   - bool: true if mipmaps are generated
	GenerateMipmaps() bool

	// SetGenerateMipmaps enables or disables mipmap generation. Disabling it also switches the
	// mipmap filter to nearest so the sampler never reads missing levels.
	//
	// Parameters:
	//   - generate: true to generate mipmaps
	SetGenerateMipmaps(generate bool)

	// FlipY reports whether the image rows are flipped on upload.
	//
	// Returns:
	//   - bool: true if flipped
	FlipY() bool

	// UserData returns the application data attached to the texture. The map is live.
	//
	// Returns:
	//   - map[string]any: the user data
	UserData() map[string]any

	// OnDispose registers a callback fired once when the texture is disposed.
	//
	// Parameters:
	//   - fn: the callback
	//
	// Returns:
	//   - func(): the unsubscribe handle
	OnDispose(fn func(Texture)) func()

	// Dispose marks the texture disposed and notifies dispose subscribers.
	Dispose()

	// Disposed reports whether Dispose has been called.
	//
	// Returns:
	//   - bool: true once disposed
	Disposed() bool
}

var _ Texture = &textureImpl{}

// NewTexture creates a texture around an image source.
//
// Parameters:
//   - source: the encoded image data
//   - options: functional options to configure the texture
//
// Returns:
//   - Texture: the newly created texture
func NewTexture(source *common.ImportedTexture, options ...TextureBuilderOption) Texture {
	t := &textureImpl{
		uuid:            uuid.NewString(),
		source:          source,
		sampler:         *common.DefaultSampler(),
		format:          wgpu.TextureFormatRGBA8UnormSrgb,
		mapping:         MappingUV,
		flipY:           true,
		generateMipmaps: true,
		userData:        map[string]any{},
		onDispose:       event.NewDispatcher[Texture](),
	}
	if source != nil {
		t.name = source.Name
		if source.SamplerData != nil {
			t.sampler = *source.SamplerData
		}
		if IsHDR(source.Path) || IsHDR(source.Name) {
			t.format = wgpu.TextureFormatRGBA16Float
		}
	}
	for _, option := range options {
		option(t)
	}
	return t
}

// IsHDR reports whether a path names a high dynamic range image (.hdr or .exr).
func IsHDR(path string) bool {
	path = strings.ToLower(path)
	return strings.HasSuffix(path, ".hdr") || strings.HasSuffix(path, ".exr")
}

func (t *textureImpl) UUID() string {
	return t.uuid
}

func (t *textureImpl) Name() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.name
}

func (t *textureImpl) SetName(name string) {
	t.mu.Lock()
	t.name = name
	t.mu.Unlock()
}

func (t *textureImpl) Source() *common.ImportedTexture {
	return t.source
}

func (t *textureImpl) Sampler() common.SamplerStagingData {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.sampler
}

func (t *textureImpl) SetSampler(s common.SamplerStagingData) {
	t.mu.Lock()
	t.sampler = s
	t.mu.Unlock()
}

func (t *textureImpl) Format() wgpu.TextureFormat {
	return t.format
}

func (t *textureImpl) Mapping() Mapping {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.mapping
}

func (t *textureImpl) SetMapping(m Mapping) {
	t.mu.Lock()
	t.mapping = m
	t.mu.Unlock()
}

func (t *textureImpl) GenerateMipmaps() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.generateMipmaps
}

func (t *textureImpl) SetGenerateMipmaps(generate bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.generateMipmaps = generate
	if !generate {
		t.sampler.MipmapFilter = wgpu.MipmapFilterModeNearest
		t.sampler.LodMaxClamp = 0
	}
}

func (t *textureImpl) FlipY() bool {
	return t.flipY
}

func (t *textureImpl) UserData() map[string]any {
	return t.userData
}

func (t *textureImpl) OnDispose(fn func(Texture)) func() {
	return t.onDispose.Subscribe(fn)
}

func (t *textureImpl) Dispose() {
	t.mu.Lock()
	if t.disposed {
		t.mu.Unlock()
		return
	}
	t.disposed = true
	t.mu.Unlock()

	t.onDispose.Dispatch(t)
	t.onDispose.Clear()
}

func (t *textureImpl) Disposed() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.disposed
}

package asset

import (
	"encoding/json"
	"slices"

	"github.com/Carmen-Shannon/oxypipe/common"
)

// ImportOptions configures an import and the processing of its results. Fields tagged json:"-" steer a
// single call and are left out of the cache key; every other field is part of it.
type ImportOptions struct {
	// ForceImport reloads the asset even if a cached result exists.
	ForceImport bool `json:"-"`

	// ReimportDisposed reloads the asset when every cached result is disposed. Defaults to true.
	ReimportDisposed *bool `json:"-"`

	// PathOverride loads from this path instead of the asset path.
	PathOverride string `json:"-"`

	// FileHandler forces a specific loader.
	FileHandler Loader `json:"-"`

	// ImportedFile is used instead of fetching the path.
	ImportedFile *File `json:"-"`

	MimeType      string `json:"mimeType,omitempty"`
	FileExtension string `json:"fileExtension,omitempty"`
	QueryString   string `json:"queryString,omitempty"`

	// ProcessRaw toggles result processing after load. Defaults to true.
	ProcessRaw *bool `json:"processRaw,omitempty"`

	// ForceImporterReprocess processes results that were already processed.
	ForceImporterReprocess bool `json:"forceImporterReprocess,omitempty"`

	// GenerateMipmaps overrides mipmap generation of imported textures.
	GenerateMipmaps *bool `json:"generateMipmaps,omitempty"`

	// AutoImportZipContents expands archive results into their files. Defaults to true.
	AutoImportZipContents *bool `json:"autoImportZipContents,omitempty"`

	// AllowedExtensions limits which files of a multi-file import are loaded.
	AllowedExtensions []string `json:"allowedExtensions,omitempty"`

	// ReplaceMaterials converts loader materials to framework materials. Defaults to true.
	ReplaceMaterials *bool `json:"replaceMaterials,omitempty"`

	// ReplaceCameras swaps loader cameras for framework cameras. Defaults to true.
	ReplaceCameras *bool `json:"replaceCameras,omitempty"`

	// ReplaceLights swaps loader lights for framework lights. Defaults to true.
	ReplaceLights *bool `json:"replaceLights,omitempty"`

	// AutoSetEnvironment makes imported .hdr and .exr textures the scene environment. Defaults to true.
	AutoSetEnvironment *bool `json:"autoSetEnvironment,omitempty"`

	// AutoSetBackground makes imported textures the scene background.
	AutoSetBackground bool `json:"autoSetBackground,omitempty"`

	// ImportConfig applies imported viewer configs to the scene. Defaults to true.
	ImportConfig *bool `json:"importConfig,omitempty"`

	// ClearSceneObjects removes existing scene objects before a model is added.
	ClearSceneObjects bool `json:"clearSceneObjects,omitempty"`

	// DisposeSceneObjects disposes the removed objects when ClearSceneObjects is set.
	DisposeSceneObjects bool `json:"disposeSceneObjects,omitempty"`

	// LoaderOptions carries loader specific settings.
	LoaderOptions map[string]any `json:"loaderOptions,omitempty"`
}

// Key serializes the options that identify a cached import. Two calls with equal keys share one import.
//
// Returns:
//   - string: the serialized options
func (o *ImportOptions) Key() string {
	if o == nil {
		return "{}"
	}
	data, err := json.Marshal(o)
	if err != nil {
		return "{}"
	}
	return string(data)
}

// Clone returns a shallow copy of the options with its slices and maps copied.
//
// Returns:
//   - *ImportOptions: the copy, never nil
func (o *ImportOptions) Clone() *ImportOptions {
	if o == nil {
		return &ImportOptions{}
	}
	c := *o
	c.AllowedExtensions = slices.Clone(o.AllowedExtensions)
	if o.LoaderOptions != nil {
		c.LoaderOptions = make(map[string]any, len(o.LoaderOptions))
		for k, v := range o.LoaderOptions {
			c.LoaderOptions[k] = v
		}
	}
	return &c
}

// KeyOptions returns a copy holding only the fields that are part of the cache key.
//
// Returns:
//   - *ImportOptions: the copy
func (o *ImportOptions) KeyOptions() *ImportOptions {
	c := o.Clone()
	c.ForceImport = false
	c.ReimportDisposed = nil
	c.PathOverride = ""
	c.FileHandler = nil
	c.ImportedFile = nil
	return c
}

// ShouldProcessRaw reports whether loaded results are post-processed. A nil receiver uses the defaults.
//
// Returns:
//   - bool: true unless ProcessRaw is set to false
func (o *ImportOptions) ShouldProcessRaw() bool {
	return o == nil || common.BoolOr(o.ProcessRaw, true)
}

// ShouldReimportDisposed reports whether a cached import whose results were all disposed is loaded again.
//
// Returns:
//   - bool: true unless ReimportDisposed is set to false
func (o *ImportOptions) ShouldReimportDisposed() bool {
	return o == nil || common.BoolOr(o.ReimportDisposed, true)
}

// ShouldImportZipContents reports whether archive results are expanded into their files.
//
// Returns:
//   - bool: true unless AutoImportZipContents is set to false
func (o *ImportOptions) ShouldImportZipContents() bool {
	return o == nil || common.BoolOr(o.AutoImportZipContents, true)
}

// ShouldReplaceMaterials reports whether loader materials are converted to framework materials.
//
// Returns:
//   - bool: true unless ReplaceMaterials is set to false
func (o *ImportOptions) ShouldReplaceMaterials() bool {
	return o == nil || common.BoolOr(o.ReplaceMaterials, true)
}

// ShouldReplaceCameras reports whether loader cameras are swapped for framework cameras.
//
// Returns:
//   - bool: true unless ReplaceCameras is set to false
func (o *ImportOptions) ShouldReplaceCameras() bool {
	return o == nil || common.BoolOr(o.ReplaceCameras, true)
}

// ShouldReplaceLights reports whether loader lights are swapped for framework lights.
//
// Returns:
//   - bool: true unless ReplaceLights is set to false
func (o *ImportOptions) ShouldReplaceLights() bool {
	return o == nil || common.BoolOr(o.ReplaceLights, true)
}

// ShouldSetEnvironment reports whether imported .hdr and .exr textures become the scene environment.
//
// Returns:
//   - bool: true unless AutoSetEnvironment is set to false
func (o *ImportOptions) ShouldSetEnvironment() bool {
	return o == nil || common.BoolOr(o.AutoSetEnvironment, true)
}

// ShouldImportConfig reports whether imported viewer configs are applied to the scene.
//
// Returns:
//   - bool: true unless ImportConfig is set to false
func (o *ImportOptions) ShouldImportConfig() bool {
	return o == nil || common.BoolOr(o.ImportConfig, true)
}

// ExportOptions configures an export.
type ExportOptions struct {
	// ExportExt selects the output format. Empty picks the default for the result kind.
	ExportExt string `json:"exportExt,omitempty"`

	// ViewerConfig embeds the scene's viewer config into exported models. Defaults to true.
	ViewerConfig *bool `json:"viewerConfig,omitempty"`

	// Minify drops indentation from JSON output.
	Minify bool `json:"minify,omitempty"`
}

// ShouldEmbedViewerConfig reports whether exported models carry the scene viewer config. A nil receiver uses the defaults.
//
// Returns:
//   - bool: true unless ViewerConfig is set to false
func (o *ExportOptions) ShouldEmbedViewerConfig() bool {
	return o == nil || common.BoolOr(o.ViewerConfig, true)
}

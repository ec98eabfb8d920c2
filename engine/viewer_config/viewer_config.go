// Package viewer_config holds the persisted viewer configuration that travels with scenes: the
// plugin settings, the scene and render-manager state, and the resources they reference.
package viewer_config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Masterminds/semver/v3"
)

const (
	// AssetType is the assetType value every serialized config carries.
	AssetType = "config"

	// DefaultType is the viewer type written by this runtime.
	DefaultType = "ThreeViewer"

	// Generator is written into the metadata of configs created by this runtime.
	Generator = "oxypipe"

	// MetadataVersion is the config schema version written by this runtime.
	MetadataVersion = 1
)

var (
	ErrNotConfig      = errors.New("viewer_config: assetType is not config")
	ErrInvalidVersion = errors.New("viewer_config: invalid version")
)

// Metadata identifies the program and schema version that wrote a config.
type Metadata struct {
	Generator string `json:"generator"`
	Version   int    `json:"version"`
}

// ViewerConfig is the serialized viewer state. Keys this type does not model are kept in Extra and
// written back unchanged.
type ViewerConfig struct {
	AssetType     string           `json:"assetType"`
	Type          string           `json:"type"`
	Version       string           `json:"version,omitempty"`
	Metadata      *Metadata        `json:"metadata,omitempty"`
	Plugins       []map[string]any `json:"plugins"`
	Resources     map[string]any   `json:"resources,omitempty"`
	Scene         map[string]any   `json:"scene,omitempty"`
	RenderManager map[string]any   `json:"renderManager,omitempty"`

	// Legacy top-level fields moved by Migrate.
	Background          json.RawMessage `json:"background,omitempty"`
	BackgroundIntensity *float64        `json:"backgroundIntensity,omitempty"`
	UseLegacyLights     *bool           `json:"useLegacyLights,omitempty"`

	Extra map[string]any `json:"-"`
}

type viewerConfigAlias ViewerConfig

var knownKeys = map[string]struct{}{
	"assetType": {}, "type": {}, "version": {}, "metadata": {}, "plugins": {}, "resources": {},
	"scene": {}, "renderManager": {}, "background": {}, "backgroundIntensity": {}, "useLegacyLights": {},
}

// New creates an empty config stamped with this runtime's generator metadata.
//
// Parameters:
//   - runtimeVersion: the semantic version of the runtime writing the config
//
// Returns:
//   - *ViewerConfig: the new config
func New(runtimeVersion string) *ViewerConfig {
	return &ViewerConfig{
		AssetType: AssetType,
		Type:      DefaultType,
		Version:   runtimeVersion,
		Metadata:  &Metadata{Generator: Generator, Version: MetadataVersion},
		Plugins:   []map[string]any{},
	}
}

// IsViewerType reports whether a config type names a viewer rather than a plugin.
func IsViewerType(t string) bool {
	return t == "" || t == DefaultType || t == "ViewerApp"
}

// Parse decodes a serialized config and checks its assetType.
//
// Parameters:
//   - data: the JSON document
//
// Returns:
//   - *ViewerConfig: the decoded config
//   - error: ErrNotConfig when assetType is not "config", or the decode error
func Parse(data []byte) (*ViewerConfig, error) {
	var c ViewerConfig
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("viewer_config: decode: %w", err)
	}
	if c.AssetType != AssetType {
		return nil, ErrNotConfig
	}
	return &c, nil
}

// FromMap converts a generic JSON object, as produced by the JSON loader or a glTF extension, into a config.
//
// Parameters:
//   - m: the decoded JSON object
//
// Returns:
//   - *ViewerConfig: the config
//   - error: ErrNotConfig or a conversion error
func FromMap(m map[string]any) (*ViewerConfig, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("viewer_config: encode map: %w", err)
	}
	return Parse(data)
}

// ToMap converts the config into a generic JSON object.
//
// Returns:
//   - map[string]any: the JSON object
//   - error: an encoding error
func (c *ViewerConfig) ToMap() (map[string]any, error) {
	data, err := json.Marshal(c)
	if err != nil {
		return nil, err
	}
	out := map[string]any{}
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *ViewerConfig) UnmarshalJSON(data []byte) error {
	var alias viewerConfigAlias
	if err := json.Unmarshal(data, &alias); err != nil {
		return err
	}
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	for k := range knownKeys {
		delete(raw, k)
	}
	if len(raw) > 0 {
		alias.Extra = raw
	}
	*c = ViewerConfig(alias)
	return nil
}

func (c ViewerConfig) MarshalJSON() ([]byte, error) {
	alias := viewerConfigAlias(c)
	if alias.Plugins == nil {
		alias.Plugins = []map[string]any{}
	}
	data, err := json.Marshal(alias)
	if err != nil || len(c.Extra) == 0 {
		return data, err
	}
	merged := map[string]any{}
	for k, v := range c.Extra {
		if _, ok := knownKeys[k]; !ok {
			merged[k] = v
		}
	}
	if err := json.Unmarshal(data, &merged); err != nil {
		return nil, err
	}
	return json.Marshal(merged)
}

// Plugin returns the serialized settings of the plugin with the given type.
//
// Parameters:
//   - pluginType: the plugin type
//
// Returns:
//   - map[string]any: the plugin settings, or nil
func (c *ViewerConfig) Plugin(pluginType string) map[string]any {
	for _, p := range c.Plugins {
		if t, _ := p["type"].(string); t == pluginType {
			return p
		}
	}
	return nil
}

// SetPlugin replaces the settings of the plugin whose type matches data["type"], or appends them.
//
// Parameters:
//   - data: the plugin settings, carrying a string "type" key
func (c *ViewerConfig) SetPlugin(data map[string]any) {
	t, _ := data["type"].(string)
	for i, p := range c.Plugins {
		if pt, _ := p["type"].(string); pt == t {
			c.Plugins[i] = data
			return
		}
	}
	c.Plugins = append(c.Plugins, data)
}

// Migrate moves the legacy top-level fields of older configs into the scene and render-manager
// sections. Fields already present in the new location win and the legacy value is dropped.
//
// Returns:
//   - []string: one note per migrated field
func (c *ViewerConfig) Migrate() []string {
	var notes []string
	if c.BackgroundIntensity != nil {
		if _, ok := c.Scene["backgroundIntensity"]; !ok {
			c.scene()["backgroundIntensity"] = *c.BackgroundIntensity
			notes = append(notes, "backgroundIntensity moved to scene")
		}
		c.BackgroundIntensity = nil
	}
	if c.UseLegacyLights != nil {
		if _, ok := c.RenderManager["useLegacyLights"]; !ok {
			if c.RenderManager == nil {
				c.RenderManager = map[string]any{}
			}
			c.RenderManager["useLegacyLights"] = *c.UseLegacyLights
			notes = append(notes, "useLegacyLights moved to renderManager")
		}
		c.UseLegacyLights = nil
	}
	if len(c.Background) > 0 {
		if _, ok := c.Scene["background"]; !ok {
			c.migrateBackground()
			notes = append(notes, "background moved to scene")
		}
		c.Background = nil
	}
	return notes
}

func (c *ViewerConfig) scene() map[string]any {
	if c.Scene == nil {
		c.Scene = map[string]any{}
	}
	return c.Scene
}

func (c *ViewerConfig) migrateBackground() {
	scene := c.scene()
	raw := bytes.TrimSpace(c.Background)

	var num float64
	var str string
	var obj map[string]any
	switch {
	case bytes.Equal(raw, []byte("null")):
		scene["backgroundColor"] = nil
		scene["background"] = nil
	case json.Unmarshal(raw, &num) == nil:
		scene["backgroundColor"] = fmt.Sprintf("#%06x", int64(num)&0xffffff)
		scene["background"] = nil
	case json.Unmarshal(raw, &str) == nil:
		if str == "envMapBackground" || str == "environment" {
			scene["backgroundColor"] = "#ffffff"
			scene["background"] = "environment"
			return
		}
		scene["backgroundColor"] = str
		scene["background"] = nil
	case json.Unmarshal(raw, &obj) == nil:
		if obj["isColor"] == true {
			scene["backgroundColor"] = obj
			scene["background"] = nil
			return
		}
		scene["backgroundColor"] = "#ffffff"
		scene["background"] = obj
	}
}

// CheckVersion reports whether the config was written by a newer runtime than the given one.
// Configs without a version are treated as compatible.
//
// Parameters:
//   - runtimeVersion: the semantic version of the running program
//
// Returns:
//   - bool: true if the config version is greater than runtimeVersion
//   - error: ErrInvalidVersion when either version cannot be parsed
func (c *ViewerConfig) CheckVersion(runtimeVersion string) (bool, error) {
	if c.Version == "" {
		return false, nil
	}
	cfg, err := semver.NewVersion(c.Version)
	if err != nil {
		return false, fmt.Errorf("%w: config %q: %v", ErrInvalidVersion, c.Version, err)
	}
	rt, err := semver.NewVersion(runtimeVersion)
	if err != nil {
		return false, fmt.Errorf("%w: runtime %q: %v", ErrInvalidVersion, runtimeVersion, err)
	}
	return cfg.GreaterThan(rt), nil
}

// Compatible reports whether the config version satisfies a semver constraint such as "^0.4".
//
// Parameters:
//   - constraint: the semver constraint
//
// Returns:
//   - bool: true if the version satisfies the constraint or the config has no version
//   - error: ErrInvalidVersion or a constraint parse error
func (c *ViewerConfig) Compatible(constraint string) (bool, error) {
	if c.Version == "" {
		return true, nil
	}
	cons, err := semver.NewConstraint(constraint)
	if err != nil {
		return false, fmt.Errorf("viewer_config: constraint %q: %w", constraint, err)
	}
	v, err := semver.NewVersion(c.Version)
	if err != nil {
		return false, fmt.Errorf("%w: config %q: %v", ErrInvalidVersion, c.Version, err)
	}
	return cons.Check(v), nil
}

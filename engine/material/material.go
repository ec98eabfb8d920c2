package material

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/Carmen-Shannon/oxypipe/common"
	"github.com/Carmen-Shannon/oxypipe/engine/event"

	"github.com/google/uuid"
	"github.com/jinzhu/copier"
)

// Properties holds the surface parameters of a material. Field names match common.ImportedMaterial
// so loader-native values can be copied over by name.
type Properties struct {
	Name        string     `json:"name,omitempty"`
	BaseColor   [4]float32 `json:"color"`
	Metallic    float32    `json:"metalness"`
	Roughness   float32    `json:"roughness"`
	Emissive    [3]float32 `json:"emissive"`
	AlphaMode   string     `json:"alphaMode,omitempty"`
	AlphaCutoff float32    `json:"alphaTest,omitempty"`
	DoubleSided bool       `json:"doubleSided,omitempty"`

	DiffuseTexture           *common.ImportedTexture `json:"-"`
	NormalTexture            *common.ImportedTexture `json:"-"`
	MetallicRoughnessTexture *common.ImportedTexture `json:"-"`
	EmissiveTexture          *common.ImportedTexture `json:"-"`
	OcclusionTexture         *common.ImportedTexture `json:"-"`
}

// DefaultProperties returns the parameters of a freshly created physical material.
//
// Returns:
//   - Properties: white, dielectric, fully rough
func DefaultProperties() Properties {
	return Properties{
		BaseColor: [4]float32{1, 1, 1, 1},
		Roughness: 1,
		AlphaMode: "OPAQUE",
	}
}

// material is the implementation of the Material interface.
type material struct {
	mu sync.RWMutex

	uuid         string
	typeSlug     string
	materialType string
	props        Properties
	userData     map[string]any
	extensions   []*Extension

	disposed  bool
	onDispose event.Dispatcher[Material]
}

// Material defines the interface for a framework material: surface properties plus the identity,
// user data and lifecycle the asset pipeline needs to track it.
//
// Surface properties are copied in with SetValues; the returned Properties value is a copy.
type Material interface {
	// UUID retrieves the unique identifier of the material.
	//
	// Returns:
	//   - string: the material UUID
	UUID() string

	// SetUUID replaces the unique identifier of the material.
	//
	// Parameters:
	//   - id: the new UUID
	SetUUID(id string)

	// Name retrieves the material identifier.
	//
	// Returns:
	//   - string: the name of the material
	Name() string

	// SetName sets the material name.
	//
	// Parameters:
	//   - name: the new name
	SetName(name string)

	// TypeSlug retrieves the short type identifier of the template that created this material (e.g. "pmat").
	// It doubles as the file extension of exported materials.
	//
	// Returns:
	//   - string: the type slug
	TypeSlug() string

	// MaterialType retrieves the long type name of the material (e.g. "PhysicalMaterial").
	//
	// Returns:
	//   - string: the material type
	MaterialType() string

	// Properties returns a copy of the surface properties.
	//
	// Returns:
	//   - Properties: the current properties
	Properties() Properties

	// SetValues copies matching fields from src into the material properties.
	// src may be a Properties, a *Properties, a *common.ImportedMaterial or another Material.
	//
	// Parameters:
	//   - src: the value to copy from
	//
	// Returns:
	//   - error: error if the copy fails
	SetValues(src any) error

	// Textures returns every texture referenced by the material.
	//
	// Returns:
	//   - []*common.ImportedTexture: the non-nil texture maps
	Textures() []*common.ImportedTexture

	// UserData returns the application data attached to the material. The map is live.
	//
	// Returns:
	//   - map[string]any: the user data
	UserData() map[string]any

	// RegisterExtensions applies each compatible extension that is not yet applied.
	//
	// Parameters:
	//   - exts: the extensions to apply
	RegisterExtensions(exts ...*Extension)

	// UnregisterExtensions removes the given extensions from the material.
	//
	// Parameters:
	//   - exts: the extensions to remove
	UnregisterExtensions(exts ...*Extension)

	// Extensions returns the applied extensions.
	//
	// Returns:
	//   - []*Extension: the applied extensions
	Extensions() []*Extension

	// OnDispose registers a callback fired once when the material is disposed.
	//
	// Parameters:
	//   - fn: the callback
	//
	// Returns:
	//   - func(): the unsubscribe handle
	OnDispose(fn func(Material)) func()

	// Dispose marks the material disposed and notifies dispose subscribers. Subsequent calls are no-ops.
	Dispose()

	// Disposed reports whether Dispose has been called.
	//
	// Returns:
	//   - bool: true once disposed
	Disposed() bool

	// MarshalJSON serializes the material with its identity and properties.
	//
	// Returns:
	//   - []byte: the JSON document
	//   - error: error if encoding fails
	MarshalJSON() ([]byte, error)
}

var _ Material = &material{}

// NewMaterial creates a new physical Material configured with the given options.
//
// Parameters:
//   - options: functional options to configure the material
//
// Returns:
//   - Material: the newly created material
func NewMaterial(options ...MaterialBuilderOption) Material {
	m := &material{
		uuid:         uuid.NewString(),
		typeSlug:     PhysicalTypeSlug,
		materialType: PhysicalMaterialType,
		props:        DefaultProperties(),
		userData:     map[string]any{},
		onDispose:    event.NewDispatcher[Material](),
	}
	for _, option := range options {
		option(m)
	}
	return m
}

func (m *material) UUID() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.uuid
}

func (m *material) SetUUID(id string) {
	m.mu.Lock()
	m.uuid = id
	m.mu.Unlock()
}

func (m *material) Name() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.props.Name
}

func (m *material) SetName(name string) {
	m.mu.Lock()
	m.props.Name = name
	m.mu.Unlock()
}

func (m *material) TypeSlug() string {
	return m.typeSlug
}

func (m *material) MaterialType() string {
	return m.materialType
}

func (m *material) Properties() Properties {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.props
}

func (m *material) SetValues(src any) error {
	switch v := src.(type) {
	case nil:
		return nil
	case Material:
		p := v.Properties()
		src = &p
	case Properties:
		src = &v
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if err := copier.Copy(&m.props, src); err != nil {
		return fmt.Errorf("failed to copy material values: %w", err)
	}
	if imported, ok := src.(*common.ImportedMaterial); ok && len(imported.Extras) > 0 {
		for k, v := range imported.Extras {
			m.userData[k] = v
		}
	}
	return nil
}

func (m *material) Textures() []*common.ImportedTexture {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*common.ImportedTexture
	for _, t := range []*common.ImportedTexture{
		m.props.DiffuseTexture,
		m.props.NormalTexture,
		m.props.MetallicRoughnessTexture,
		m.props.EmissiveTexture,
		m.props.OcclusionTexture,
	} {
		if t != nil {
			out = append(out, t)
		}
	}
	return out
}

func (m *material) UserData() map[string]any {
	return m.userData
}

func (m *material) RegisterExtensions(exts ...*Extension) {
	for _, ext := range exts {
		if ext == nil || !ext.compatible(m) {
			continue
		}
		m.mu.Lock()
		applied := false
		for _, e := range m.extensions {
			if e == ext {
				applied = true
				break
			}
		}
		if !applied {
			m.extensions = append(m.extensions, ext)
		}
		m.mu.Unlock()
		if !applied && ext.OnRegister != nil {
			ext.OnRegister(m)
		}
	}
}

func (m *material) UnregisterExtensions(exts ...*Extension) {
	for _, ext := range exts {
		m.mu.Lock()
		idx := -1
		for i, e := range m.extensions {
			if e == ext {
				idx = i
				break
			}
		}
		if idx >= 0 {
			m.extensions = append(m.extensions[:idx:idx], m.extensions[idx+1:]...)
		}
		m.mu.Unlock()
		if idx >= 0 && ext.OnUnregister != nil {
			ext.OnUnregister(m)
		}
	}
}

func (m *material) Extensions() []*Extension {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Extension, len(m.extensions))
	copy(out, m.extensions)
	return out
}

func (m *material) OnDispose(fn func(Material)) func() {
	return m.onDispose.Subscribe(fn)
}

func (m *material) Dispose() {
	m.mu.Lock()
	if m.disposed {
		m.mu.Unlock()
		return
	}
	m.disposed = true
	m.mu.Unlock()

	m.onDispose.Dispatch(m)
	m.onDispose.Clear()
}

func (m *material) Disposed() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.disposed
}

type materialJSON struct {
	UUID     string            `json:"uuid"`
	Type     string            `json:"type"`
	TypeSlug string            `json:"typeSlug"`
	UserData map[string]any    `json:"userData,omitempty"`
	Maps     map[string]string `json:"maps,omitempty"`
	Properties
}

func (m *material) MarshalJSON() ([]byte, error) {
	m.mu.RLock()
	doc := materialJSON{
		UUID:       m.uuid,
		Type:       m.materialType,
		TypeSlug:   m.typeSlug,
		Properties: m.props,
		UserData:   map[string]any{},
	}
	for k, v := range m.userData {
		if len(k) > 1 && k[:2] == "__" {
			continue
		}
		doc.UserData[k] = v
	}
	m.mu.RUnlock()

	maps := map[string]string{}
	for name, t := range map[string]*common.ImportedTexture{
		"map":          doc.DiffuseTexture,
		"normalMap":    doc.NormalTexture,
		"roughnessMap": doc.MetallicRoughnessTexture,
		"emissiveMap":  doc.EmissiveTexture,
		"aoMap":        doc.OcclusionTexture,
	} {
		if t != nil {
			maps[name] = common.Coalesce(t.Path, t.Name)
		}
	}
	if len(maps) > 0 {
		doc.Maps = maps
	}
	return json.Marshal(doc)
}

// UnmarshalMaterial parses a serialized material back into its type name, UUID and properties.
// Texture references are not resolved.
//
// Parameters:
//   - data: the JSON document produced by MarshalJSON
//
// Returns:
//   - string: the material type
//   - string: the material UUID
//   - Properties: the decoded properties
//   - map[string]any: the decoded user data
//   - error: error if decoding fails
func UnmarshalMaterial(data []byte) (string, string, Properties, map[string]any, error) {
	doc := materialJSON{Properties: DefaultProperties()}
	if err := json.Unmarshal(data, &doc); err != nil {
		return "", "", Properties{}, nil, fmt.Errorf("failed to decode material: %w", err)
	}
	return common.Coalesce(doc.Type, doc.TypeSlug), doc.UUID, doc.Properties, doc.UserData, nil
}

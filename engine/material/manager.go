package material

import (
	"encoding/json"
	"fmt"
	"regexp"
	"sync"

	"github.com/Carmen-Shannon/oxypipe/common"
	"github.com/Carmen-Shannon/oxypipe/engine/event"
	"github.com/Carmen-Shannon/oxypipe/engine/reference"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ConvertOptions controls ConvertToIMaterial.
type ConvertOptions struct {
	// MaterialTemplate forces the template used when a new material is created.
	MaterialTemplate string

	// IgnoreSource creates the material from the template defaults without copying the source values.
	IgnoreSource bool
}

// Replacement is dispatched when ApplyMaterial swaps a material for one of another type.
type Replacement struct {
	Old Material
	New Material
}

type registration struct {
	unsubscribe func()
	textureRefs []*reference.ItemRef
}

// manager is the implementation of the Manager interface.
type manager struct {
	mu sync.RWMutex

	materials  []Material
	registered map[Material]*registration
	templates  []*Template
	pending    []*Template
	extensions []*Extension

	// variants caches the material created for another type by ApplyMaterial, keyed by target then type.
	variants map[Material]map[string]Material

	textureRefs reference.Manager
	onReplace   event.Dispatcher[Replacement]

	logger *zap.Logger
}

// Manager keeps the canonical framework material for every UUID in use, creates materials from
// templates and applies material extensions to every registered material.
type Manager interface {
	// RegisterMaterial adds a material to the registry. A material whose UUID is already taken by another
	// registered material gets a fresh UUID first, so both stay findable.
	// The material is unregistered automatically when it is disposed.
	//
	// Parameters:
	//   - m: the material to register
	//
	// Returns:
	//   - bool: true if the material was added, false if it was nil or already registered
	RegisterMaterial(m Material) bool

	// RegisterMaterials registers each material in order.
	//
	// Parameters:
	//   - ms: the materials to register
	RegisterMaterials(ms []Material)

	// UnregisterMaterial removes a material from the registry and releases its texture references.
	//
	// Parameters:
	//   - m: the material to remove
	UnregisterMaterial(m Material)

	// ClearMaterials unregisters every material without disposing them.
	ClearMaterials()

	// FindMaterial returns the registered material with the given UUID.
	//
	// Parameters:
	//   - id: the UUID to look up
	//
	// Returns:
	//   - Material: the material, or nil
	FindMaterial(id string) Material

	// FindMaterialsByName returns every registered material with the given name.
	//
	// Parameters:
	//   - name: the name to match
	//
	// Returns:
	//   - []Material: the matching materials
	FindMaterialsByName(name string) []Material

	// FindMaterialsByPattern returns every registered material whose name matches re.
	//
	// Parameters:
	//   - re: the pattern to match
	//
	// Returns:
	//   - []Material: the matching materials
	FindMaterialsByPattern(re *regexp.Regexp) []Material

	// GetMaterialsOfType returns every registered material with the given type slug.
	//
	// Parameters:
	//   - typeSlug: the type slug, an empty slug matches nothing
	//
	// Returns:
	//   - []Material: the matching materials
	GetMaterialsOfType(typeSlug string) []Material

	// GetAllMaterials returns a snapshot of the registry.
	//
	// Returns:
	//   - []Material: every registered material
	GetAllMaterials() []Material

	// RegisterMaterialTemplate adds a template. A template whose TemplateUUID is already registered is rejected.
	//
	// Parameters:
	//   - t: the template to add
	//
	// Returns:
	//   - error: error if the template is already registered
	RegisterMaterialTemplate(t *Template) error

	// UnregisterMaterialTemplate removes a template by TemplateUUID.
	//
	// Parameters:
	//   - t: the template to remove
	UnregisterMaterialTemplate(t *Template)

	// Templates returns the registered templates.
	//
	// Returns:
	//   - []*Template: the templates in registration order
	Templates() []*Template

	// FindTemplate looks a template up by name or material type first, then by alias.
	//
	// Parameters:
	//   - nameOrType: the name, material type or alias
	//   - withGenerator: only consider templates that carry a generator
	//
	// Returns:
	//   - *Template: the template, or nil
	FindTemplate(nameOrType string, withGenerator bool) *Template

	// Create builds a material from the template named nameOrType, following MaterialType links until a
	// generator is found, then copies props over it.
	//
	// Parameters:
	//   - nameOrType: the template name, material type or alias
	//   - props: optional values copied into the new material
	//   - register: register the new material
	//
	// Returns:
	//   - Material: the new material
	//   - error: error if no template with a generator matches
	Create(nameOrType string, props any, register bool) (Material, error)

	// FindOrCreate returns the material registered under info as a UUID, or creates one with info as the template name.
	//
	// Parameters:
	//   - info: a UUID or template name
	//   - props: optional values copied into a newly created material
	//
	// Returns:
	//   - Material: the found or created material
	//   - error: error if creation fails
	FindOrCreate(info string, props any) (Material, error)

	// ConvertToIMaterial adapts loader-native material data to a framework material. When a material with the
	// source UUID is registered, the source values are copied into it; otherwise a new unregistered material is
	// created from the template named by the options, the source type or "physical".
	//
	// Parameters:
	//   - src: the loader-native material
	//   - opts: conversion options
	//
	// Returns:
	//   - Material: the framework material
	//   - error: error if no template can be resolved
	ConvertToIMaterial(src *common.ImportedMaterial, opts ConvertOptions) (Material, error)

	// RegisterMaterialExtension adds an extension and applies it to every registered material.
	//
	// Parameters:
	//   - ext: the extension to add
	RegisterMaterialExtension(ext *Extension)

	// UnregisterMaterialExtension removes an extension from the manager and every registered material.
	//
	// Parameters:
	//   - ext: the extension to remove
	UnregisterMaterialExtension(ext *Extension)

	// ClearExtensions removes every extension.
	ClearExtensions()

	// ExportMaterial serializes a material to a JSON file named after the material and its type slug.
	//
	// Parameters:
	//   - m: the material to export
	//   - filename: the file name without extension, defaults to the material name
	//   - minify: write compact JSON
	//
	// Returns:
	//   - string: the file name
	//   - []byte: the JSON document
	//   - error: error if encoding fails
	ExportMaterial(m Material, filename string, minify bool) (string, []byte, error)

	// ApplyMaterial copies m into every registered material named (or identified by) nameOrUUID.
	// Targets of another type get a material of m's type instead, announced through OnReplace.
	//
	// Parameters:
	//   - m: the source material
	//   - nameOrUUID: a material name or UUID
	//
	// Returns:
	//   - bool: true if at least one material was updated or replaced
	ApplyMaterial(m Material, nameOrUUID string) bool

	// OnReplace subscribes to cross-type replacements made by ApplyMaterial.
	//
	// Parameters:
	//   - fn: the handler
	//
	// Returns:
	//   - func(): the unsubscribe handle
	OnReplace(fn func(Replacement)) func()

	// Dispose disposes every registered material and empties the registry.
	Dispose()
}

var _ Manager = &manager{}

// NewManager creates a material manager with the physical and unlit templates registered.
//
// Parameters:
//   - options: functional options to configure the manager
//
// Returns:
//   - Manager: the new manager
func NewManager(options ...ManagerBuilderOption) Manager {
	m := &manager{
		registered: map[Material]*registration{},
		variants:   map[Material]map[string]Material{},
		onReplace:  event.NewDispatcher[Replacement](),
		logger:     zap.NewNop(),
	}
	for _, option := range options {
		option(m)
	}
	m.logger = m.logger.With(zap.String("component", "materials"))
	if m.textureRefs == nil {
		m.textureRefs = reference.NewManager(reference.WithLogger(m.logger))
	}
	_ = m.RegisterMaterialTemplate(PhysicalTemplate())
	_ = m.RegisterMaterialTemplate(UnlitTemplate())
	for _, t := range m.pending {
		if err := m.RegisterMaterialTemplate(t); err != nil {
			m.logger.Error("failed to register material template", zap.Error(err))
		}
	}
	m.pending = nil
	return m
}

func (m *manager) RegisterMaterial(mat Material) bool {
	if mat == nil {
		return false
	}

	m.mu.Lock()
	if _, ok := m.registered[mat]; ok {
		m.mu.Unlock()
		return false
	}
	if existing := m.findLocked(mat.UUID()); existing != nil || mat.UUID() == "" {
		old := mat.UUID()
		mat.SetUUID(uuid.NewString())
		mat.UserData()["uuid"] = mat.UUID()
		m.logger.Warn("material uuid already registered, assigned a new one",
			zap.String("old", old), zap.String("new", mat.UUID()), zap.String("name", mat.Name()))
	}
	reg := &registration{}
	m.registered[mat] = reg
	m.materials = append(m.materials, mat)
	exts := append([]*Extension(nil), m.extensions...)
	m.mu.Unlock()

	reg.unsubscribe = mat.OnDispose(func(d Material) {
		m.UnregisterMaterial(d)
	})
	mat.RegisterExtensions(exts...)
	m.refreshTextureRefs(mat, reg)
	return true
}

// refreshTextureRefs replaces the texture references held by mat with its current maps.
func (m *manager) refreshTextureRefs(mat Material, reg *registration) {
	for _, ref := range reg.textureRefs {
		m.textureRefs.RemoveRef(ref, mat)
	}
	reg.textureRefs = reg.textureRefs[:0]
	for _, tex := range mat.Textures() {
		if ref := m.textureRefs.Add(textureKey(tex), tex, mat); ref != nil {
			reg.textureRefs = append(reg.textureRefs, ref)
		}
	}
}

func textureKey(t *common.ImportedTexture) string {
	if t.Path != "" {
		return t.Path
	}
	return fmt.Sprintf("%p", t)
}

func (m *manager) RegisterMaterials(ms []Material) {
	for _, mat := range ms {
		m.RegisterMaterial(mat)
	}
}

func (m *manager) UnregisterMaterial(mat Material) {
	if mat == nil {
		return
	}

	m.mu.Lock()
	reg, ok := m.registered[mat]
	if !ok {
		m.mu.Unlock()
		return
	}
	delete(m.registered, mat)
	delete(m.variants, mat)
	for i, v := range m.materials {
		if v == mat {
			m.materials = append(m.materials[:i:i], m.materials[i+1:]...)
			break
		}
	}
	exts := append([]*Extension(nil), m.extensions...)
	m.mu.Unlock()

	if reg.unsubscribe != nil {
		reg.unsubscribe()
	}
	m.textureRefs.Delete(mat)
	mat.UnregisterExtensions(exts...)
}

func (m *manager) ClearMaterials() {
	for _, mat := range m.GetAllMaterials() {
		m.UnregisterMaterial(mat)
	}
}

// findLocked must be called with mu held.
func (m *manager) findLocked(id string) Material {
	if id == "" {
		return nil
	}
	for _, v := range m.materials {
		if v.UUID() == id {
			return v
		}
	}
	return nil
}

func (m *manager) FindMaterial(id string) Material {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.findLocked(id)
}

func (m *manager) FindMaterialsByName(name string) []Material {
	return m.filter(func(v Material) bool { return v.Name() == name })
}

func (m *manager) FindMaterialsByPattern(re *regexp.Regexp) []Material {
	if re == nil {
		return nil
	}
	return m.filter(func(v Material) bool { return re.MatchString(v.Name()) })
}

func (m *manager) GetMaterialsOfType(typeSlug string) []Material {
	if typeSlug == "" {
		return nil
	}
	return m.filter(func(v Material) bool { return v.TypeSlug() == typeSlug })
}

func (m *manager) GetAllMaterials() []Material {
	return m.filter(func(Material) bool { return true })
}

func (m *manager) filter(keep func(Material) bool) []Material {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Material
	for _, v := range m.materials {
		if keep(v) {
			out = append(out, v)
		}
	}
	return out
}

func (m *manager) RegisterMaterialTemplate(t *Template) error {
	if t == nil {
		return fmt.Errorf("template is nil")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if t.TemplateUUID == "" {
		t.TemplateUUID = uuid.NewString()
	}
	for _, v := range m.templates {
		if v.TemplateUUID == t.TemplateUUID {
			return fmt.Errorf("material template %q already registered", t.Name)
		}
	}
	m.templates = append(m.templates, t)
	return nil
}

func (m *manager) UnregisterMaterialTemplate(t *Template) {
	if t == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, v := range m.templates {
		if v.TemplateUUID == t.TemplateUUID {
			m.templates = append(m.templates[:i:i], m.templates[i+1:]...)
			return
		}
	}
}

func (m *manager) Templates() []*Template {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]*Template(nil), m.templates...)
}

func (m *manager) FindTemplate(nameOrType string, withGenerator bool) *Template {
	if nameOrType == "" {
		return nil
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, t := range m.templates {
		if t.matches(nameOrType) && (!withGenerator || t.Generator != nil) {
			return t
		}
	}
	for _, t := range m.templates {
		if t.hasAlias(nameOrType) && (!withGenerator || t.Generator != nil) {
			return t
		}
	}
	return nil
}

// resolveTemplate follows MaterialType links until a template with a generator is found.
func (m *manager) resolveTemplate(nameOrType string) (Template, error) {
	resolved := Template{Name: nameOrType, MaterialType: nameOrType}
	seen := map[*Template]bool{}
	for resolved.Generator == nil {
		next := m.FindTemplate(resolved.MaterialType, false)
		if next == nil || seen[next] {
			return Template{}, fmt.Errorf("%w: %q", ErrTemplateNotFound, nameOrType)
		}
		seen[next] = true
		resolved.MaterialType = next.MaterialType
		resolved.TypeSlug = common.Coalesce(resolved.TypeSlug, next.TypeSlug)
		resolved.Generator = next.Generator
		if resolved.Params == nil {
			resolved.Params = next.Params
		}
	}
	return resolved, nil
}

func (m *manager) Create(nameOrType string, props any, register bool) (Material, error) {
	t, err := m.resolveTemplate(nameOrType)
	if err != nil {
		m.logger.Error("failed to create material", zap.String("template", nameOrType), zap.Error(err))
		return nil, err
	}

	params := DefaultProperties()
	if t.Params != nil {
		params = *t.Params
	}
	mat := t.Generator(params)
	if mat == nil {
		return nil, fmt.Errorf("%w: generator for %q returned nil", ErrTemplateNotFound, nameOrType)
	}
	if props != nil {
		if err := mat.SetValues(props); err != nil {
			return nil, err
		}
	}
	if register {
		m.RegisterMaterial(mat)
	}
	return mat, nil
}

func (m *manager) FindOrCreate(info string, props any) (Material, error) {
	if mat := m.FindMaterial(info); mat != nil {
		return mat, nil
	}
	return m.Create(info, props, true)
}

func (m *manager) ConvertToIMaterial(src *common.ImportedMaterial, opts ConvertOptions) (Material, error) {
	if src == nil {
		return nil, fmt.Errorf("source material is nil")
	}

	id := src.UUID
	if fromUserData, ok := src.Extras["uuid"].(string); ok && fromUserData != "" {
		id = fromUserData
	}

	mat := m.FindMaterial(id)
	if mat != nil {
		m.logger.Warn("material with the same uuid already exists, copying properties",
			zap.String("uuid", id), zap.String("name", src.Name))
		if src.Type != "" && m.FindTemplate(src.Type, false) != m.FindTemplate(mat.MaterialType(), false) {
			m.logger.Error("material type mismatch", zap.String("source", src.Type), zap.String("target", mat.MaterialType()))
		}
		if err := mat.SetValues(src); err != nil {
			return nil, err
		}
	} else {
		template := common.Coalesce(opts.MaterialTemplate, src.Type, "physical")
		if opts.IgnoreSource {
			template = common.Coalesce(opts.MaterialTemplate, "physical")
		}
		if m.FindTemplate(template, false) == nil {
			m.logger.Warn("unknown material type, using physical", zap.String("type", template))
			template = "physical"
		}
		var props any
		if !opts.IgnoreSource {
			props = src
		}
		created, err := m.Create(template, props, false)
		if err != nil {
			return nil, err
		}
		mat = created
	}

	if id != "" {
		mat.SetUUID(id)
	}
	mat.UserData()["uuid"] = mat.UUID()
	return mat, nil
}

func (m *manager) RegisterMaterialExtension(ext *Extension) {
	if ext == nil {
		return
	}
	m.mu.Lock()
	for _, e := range m.extensions {
		if e == ext {
			m.mu.Unlock()
			return
		}
	}
	m.extensions = append(m.extensions, ext)
	mats := append([]Material(nil), m.materials...)
	m.mu.Unlock()

	for _, mat := range mats {
		mat.RegisterExtensions(ext)
	}
}

func (m *manager) UnregisterMaterialExtension(ext *Extension) {
	m.mu.Lock()
	idx := -1
	for i, e := range m.extensions {
		if e == ext {
			idx = i
			break
		}
	}
	if idx < 0 {
		m.mu.Unlock()
		return
	}
	m.extensions = append(m.extensions[:idx:idx], m.extensions[idx+1:]...)
	mats := append([]Material(nil), m.materials...)
	m.mu.Unlock()

	for _, mat := range mats {
		mat.UnregisterExtensions(ext)
	}
}

func (m *manager) ClearExtensions() {
	m.mu.RLock()
	exts := append([]*Extension(nil), m.extensions...)
	m.mu.RUnlock()
	for _, ext := range exts {
		m.UnregisterMaterialExtension(ext)
	}
}

func (m *manager) ExportMaterial(mat Material, filename string, minify bool) (string, []byte, error) {
	var data []byte
	var err error
	if minify {
		data, err = json.Marshal(mat)
	} else {
		data, err = json.MarshalIndent(mat, "", "  ")
	}
	if err != nil {
		return "", nil, fmt.Errorf("failed to export material: %w", err)
	}
	name := common.Coalesce(filename, mat.Name(), "physical_material") + "." + mat.TypeSlug()
	return name, data, nil
}

func (m *manager) ApplyMaterial(mat Material, nameOrUUID string) bool {
	targets := m.FindMaterialsByName(nameOrUUID)
	if len(targets) == 0 {
		if t := m.FindMaterial(nameOrUUID); t != nil {
			targets = []Material{t}
		}
	}

	applied := false
	for _, target := range targets {
		if target == mat {
			continue
		}
		if variation, _ := target.UserData()["__isVariation"].(bool); variation {
			continue
		}
		name := target.Name()
		if target.MaterialType() == mat.MaterialType() {
			if err := target.SetValues(mat); err != nil {
				m.logger.Error("failed to apply material", zap.String("target", name), zap.Error(err))
				continue
			}
			target.SetName(name)
			applied = true
			continue
		}

		m.mu.RLock()
		replacement := m.variants[target][mat.MaterialType()]
		m.mu.RUnlock()
		if replacement == nil {
			created, err := m.Create(mat.MaterialType(), nil, true)
			if err != nil {
				continue
			}
			replacement = created
			m.mu.Lock()
			if m.variants[target] == nil {
				m.variants[target] = map[string]Material{}
			}
			m.variants[target][mat.MaterialType()] = replacement
			m.mu.Unlock()
		}
		if err := replacement.SetValues(mat); err != nil {
			continue
		}
		replacement.SetName(name)
		m.onReplace.Dispatch(Replacement{Old: target, New: replacement})
		applied = true
	}
	return applied
}

func (m *manager) OnReplace(fn func(Replacement)) func() {
	return m.onReplace.Subscribe(fn)
}

func (m *manager) Dispose() {
	for _, mat := range m.GetAllMaterials() {
		mat.Dispose()
	}
	m.mu.Lock()
	m.materials = nil
	m.registered = map[Material]*registration{}
	m.variants = map[Material]map[string]Material{}
	m.mu.Unlock()
}

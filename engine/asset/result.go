package asset

import (
	"sync"

	"github.com/Carmen-Shannon/oxypipe/common"
	"github.com/Carmen-Shannon/oxypipe/engine/event"
	"github.com/Carmen-Shannon/oxypipe/engine/game_object"
	"github.com/Carmen-Shannon/oxypipe/engine/material"
	"github.com/Carmen-Shannon/oxypipe/engine/texture"
	"github.com/Carmen-Shannon/oxypipe/engine/viewer_config"
)

// Result is one object produced by an import. The set of implementations is closed; switch on the
// concrete type to handle each kind.
type Result interface {
	// Kind returns the variant of the result.
	//
	// Returns:
	//   - Kind: the result kind
	Kind() Kind

	// Meta returns the import bookkeeping attached to the result.
	//
	// Returns:
	//   - *ResultMeta: the bookkeeping, never nil
	Meta() *ResultMeta

	// Name returns the display name of the wrapped object.
	//
	// Returns:
	//   - string: the name
	Name() string

	// SetName renames the wrapped object.
	//
	// Parameters:
	//   - name: the new name
	SetName(name string)

	// UserData returns the application data of the wrapped object. The map is live.
	//
	// Returns:
	//   - map[string]any: the user data
	UserData() map[string]any

	// Disposed reports whether the wrapped object has been disposed.
	//
	// Returns:
	//   - bool: true once disposed
	Disposed() bool

	// Dispose disposes the wrapped object.
	Dispose()

	// OnDispose registers a callback fired when the wrapped object is disposed.
	//
	// Parameters:
	//   - fn: the callback
	//
	// Returns:
	//   - func(): the unsubscribe handle
	OnDispose(fn func()) func()

	sealed()
}

var (
	_ Result = &Model{}
	_ Result = &Material{}
	_ Result = &Texture{}
	_ Result = &Camera{}
	_ Result = &Light{}
	_ Result = &Config{}
	_ Result = &Files{}
	_ Result = &Data{}
)

// ResultMeta is the bookkeeping the importer attaches to every result. Variants that do not wrap a
// framework object with its own name, user data and lifecycle use the fields kept here.
type ResultMeta struct {
	// RootPath is the path the result was loaded from.
	RootPath string

	// RootPathOptions are the cache-key options the result was loaded with.
	RootPathOptions *ImportOptions

	// RootBlob is the registered or imported file the result was loaded from.
	RootBlob *File

	// Processed is set once the importer has processed the result.
	Processed bool

	mu        sync.Mutex
	name      string
	userData  map[string]any
	disposed  bool
	onDispose event.Dispatcher[struct{}]
}

func (m *ResultMeta) Meta() *ResultMeta {
	return m
}

// ExternalSource reports where the result came from so references to it can be serialized by path.
func (m *ResultMeta) ExternalSource() (string, any, bool) {
	if m.RootPath == "" {
		return "", nil, false
	}
	return m.RootPath, m.RootPathOptions, true
}

func (m *ResultMeta) sealed() {}

func (m *ResultMeta) metaName() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.name
}

func (m *ResultMeta) setMetaName(name string) {
	m.mu.Lock()
	m.name = name
	m.mu.Unlock()
}

func (m *ResultMeta) metaUserData() map[string]any {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.userData == nil {
		m.userData = map[string]any{}
	}
	return m.userData
}

func (m *ResultMeta) metaDisposed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.disposed
}

func (m *ResultMeta) dispatcher() event.Dispatcher[struct{}] {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.onDispose == nil {
		m.onDispose = event.NewDispatcher[struct{}]()
	}
	return m.onDispose
}

func (m *ResultMeta) metaDispose() {
	m.mu.Lock()
	if m.disposed {
		m.mu.Unlock()
		return
	}
	m.disposed = true
	m.mu.Unlock()
	d := m.dispatcher()
	d.Dispatch(struct{}{})
	d.Clear()
}

func (m *ResultMeta) metaOnDispose(fn func()) func() {
	return m.dispatcher().Subscribe(func(struct{}) { fn() })
}

// Model is an imported scene graph. Loaders that produce a whole scene mark the root with the
// "rootSceneModelRoot" user data flag; its children are added to the scene instead of the root.
type Model struct {
	ResultMeta

	Root game_object.GameObject

	// ViewerConfig is a viewer config embedded in the model file, if any.
	ViewerConfig *viewer_config.ViewerConfig
}

func (*Model) Kind() Kind                 { return KindModel }
func (r *Model) Name() string             { return r.Root.Name() }
func (r *Model) SetName(name string)      { r.Root.SetName(name) }
func (r *Model) UserData() map[string]any { return r.Root.UserData() }
func (r *Model) Disposed() bool           { return r.Root.Disposed() }
func (r *Model) Dispose()                 { r.Root.Dispose() }

func (r *Model) OnDispose(fn func()) func() {
	return r.Root.OnDispose(func(game_object.GameObject) { fn() })
}

// IsSceneRoot reports whether the model root is a container whose children are the real top-level objects.
func (r *Model) IsSceneRoot() bool {
	v, _ := r.Root.UserData()["rootSceneModelRoot"].(bool)
	return v
}

// Material is an imported material. Loaders fill Imported; the asset manager converts it to Material.
type Material struct {
	ResultMeta

	Imported *common.ImportedMaterial
	Material material.Material
}

func (*Material) Kind() Kind { return KindMaterial }

func (r *Material) Name() string {
	switch {
	case r.Material != nil:
		return r.Material.Name()
	case r.Imported != nil:
		return r.Imported.Name
	}
	return r.metaName()
}

func (r *Material) SetName(name string) {
	switch {
	case r.Material != nil:
		r.Material.SetName(name)
	case r.Imported != nil:
		r.Imported.Name = name
	default:
		r.setMetaName(name)
	}
}

func (r *Material) UserData() map[string]any {
	switch {
	case r.Material != nil:
		return r.Material.UserData()
	case r.Imported != nil:
		if r.Imported.Extras == nil {
			r.Imported.Extras = map[string]any{}
		}
		return r.Imported.Extras
	}
	return r.metaUserData()
}

func (r *Material) Disposed() bool {
	if r.Material != nil {
		return r.Material.Disposed()
	}
	return r.metaDisposed()
}

func (r *Material) Dispose() {
	if r.Material != nil {
		r.Material.Dispose()
		return
	}
	r.metaDispose()
}

func (r *Material) OnDispose(fn func()) func() {
	if r.Material != nil {
		return r.Material.OnDispose(func(material.Material) { fn() })
	}
	return r.metaOnDispose(fn)
}

// Texture is an imported image. Loaders fill Imported; the asset manager wraps it in Texture.
type Texture struct {
	ResultMeta

	Imported *common.ImportedTexture
	Texture  texture.Texture
}

func (*Texture) Kind() Kind { return KindTexture }

func (r *Texture) Name() string {
	switch {
	case r.Texture != nil:
		return r.Texture.Name()
	case r.Imported != nil:
		return r.Imported.Name
	}
	return r.metaName()
}

func (r *Texture) SetName(name string) {
	switch {
	case r.Texture != nil:
		r.Texture.SetName(name)
	case r.Imported != nil:
		r.Imported.Name = name
	default:
		r.setMetaName(name)
	}
}

func (r *Texture) UserData() map[string]any {
	if r.Texture != nil {
		return r.Texture.UserData()
	}
	return r.metaUserData()
}

func (r *Texture) Disposed() bool {
	if r.Texture != nil {
		return r.Texture.Disposed()
	}
	return r.metaDisposed()
}

func (r *Texture) Dispose() {
	if r.Texture != nil {
		r.Texture.Dispose()
		return
	}
	r.metaDispose()
}

func (r *Texture) OnDispose(fn func()) func() {
	if r.Texture != nil {
		return r.Texture.OnDispose(func(texture.Texture) { fn() })
	}
	return r.metaOnDispose(fn)
}

// Camera is a standalone imported camera node.
type Camera struct {
	ResultMeta

	Object game_object.GameObject
}

func (*Camera) Kind() Kind                 { return KindCamera }
func (r *Camera) Name() string             { return r.Object.Name() }
func (r *Camera) SetName(name string)      { r.Object.SetName(name) }
func (r *Camera) UserData() map[string]any { return r.Object.UserData() }
func (r *Camera) Disposed() bool           { return r.Object.Disposed() }
func (r *Camera) Dispose()                 { r.Object.Dispose() }

func (r *Camera) OnDispose(fn func()) func() {
	return r.Object.OnDispose(func(game_object.GameObject) { fn() })
}

// Light is a standalone imported light node.
type Light struct {
	ResultMeta

	Object game_object.GameObject
}

func (*Light) Kind() Kind                 { return KindLight }
func (r *Light) Name() string             { return r.Object.Name() }
func (r *Light) SetName(name string)      { r.Object.SetName(name) }
func (r *Light) UserData() map[string]any { return r.Object.UserData() }
func (r *Light) Disposed() bool           { return r.Object.Disposed() }
func (r *Light) Dispose()                 { r.Object.Dispose() }

func (r *Light) OnDispose(fn func()) func() {
	return r.Object.OnDispose(func(game_object.GameObject) { fn() })
}

// Config is an imported viewer config.
type Config struct {
	ResultMeta

	Config *viewer_config.ViewerConfig
}

func (*Config) Kind() Kind { return KindConfig }

func (r *Config) Name() string {
	if n := r.metaName(); n != "" {
		return n
	}
	if r.Config != nil {
		return r.Config.Type
	}
	return ""
}

func (r *Config) SetName(name string)        { r.setMetaName(name) }
func (r *Config) UserData() map[string]any   { return r.metaUserData() }
func (r *Config) Disposed() bool             { return r.metaDisposed() }
func (r *Config) Dispose()                   { r.metaDispose() }
func (r *Config) OnDispose(fn func()) func() { return r.metaOnDispose(fn) }

// Files is the content of an archive, keyed by path inside the archive. The importer expands it
// into the results of its files.
type Files struct {
	ResultMeta

	Files map[string]*File
}

func (*Files) Kind() Kind                   { return KindFiles }
func (r *Files) Name() string               { return r.metaName() }
func (r *Files) SetName(name string)        { r.setMetaName(name) }
func (r *Files) UserData() map[string]any   { return r.metaUserData() }
func (r *Files) Disposed() bool             { return r.metaDisposed() }
func (r *Files) Dispose()                   { r.metaDispose() }
func (r *Files) OnDispose(fn func()) func() { return r.metaOnDispose(fn) }

// Data is a payload without a framework wrapper: plain text or a generic JSON document.
type Data struct {
	ResultMeta

	MimeType string
	Value    any
}

func (*Data) Kind() Kind                   { return KindData }
func (r *Data) Name() string               { return r.metaName() }
func (r *Data) SetName(name string)        { r.setMetaName(name) }
func (r *Data) UserData() map[string]any   { return r.metaUserData() }
func (r *Data) Disposed() bool             { return r.metaDisposed() }
func (r *Data) Dispose()                   { r.metaDispose() }
func (r *Data) OnDispose(fn func()) func() { return r.metaOnDispose(fn) }

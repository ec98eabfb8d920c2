package scene

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/Carmen-Shannon/oxypipe/engine/asset"
	"github.com/Carmen-Shannon/oxypipe/engine/camera"
	"github.com/Carmen-Shannon/oxypipe/engine/event"
	"github.com/Carmen-Shannon/oxypipe/engine/game_object"
	"github.com/Carmen-Shannon/oxypipe/engine/light"
	"github.com/Carmen-Shannon/oxypipe/engine/texture"
	"github.com/Carmen-Shannon/oxypipe/engine/viewer_config"

	"go.uber.org/zap"
)

// ErrUnknownConfigType is returned by ImportConfig for configs that are neither viewer configs nor
// the config of a plugin already present in the scene config.
var ErrUnknownConfigType = errors.New("unknown config type")

const (
	// SceneModelRootKey flags the object whose children are the top-level models of a scene.
	SceneModelRootKey = "rootSceneModelRoot"

	// ImportDataKey is the user data key import metadata of loaded model roots is merged under.
	ImportDataKey = "__importData"
)

// EventType identifies a scene change.
type EventType string

const (
	EventAddObject          EventType = "addSceneObject"
	EventEnvironmentChanged EventType = "environmentChanged"
	EventBackgroundChanged  EventType = "backgroundChanged"
	EventConfigImported     EventType = "configImported"
	EventCleared            EventType = "sceneCleared"
)

// Event is dispatched on every scene change.
type Event struct {
	Type   EventType
	Object game_object.GameObject
}

// AddObjectOptions controls how an object is added to the scene.
type AddObjectOptions struct {
	// ClearSceneObjects removes the current models first.
	ClearSceneObjects bool

	// DisposeSceneObjects disposes the current models first. Implies ClearSceneObjects.
	DisposeSceneObjects bool

	// AddToRoot adds the object next to the model root instead of under it.
	AddToRoot bool
}

// Scene is the root of everything imported into a viewer. Models are added under a model root whose
// children are the top-level objects; the scene also tracks the main camera, lights, environment and
// background and the viewer config applied to it.
// Thread-safe for concurrent access.
type Scene interface {
	// Name returns the scene's identifier.
	Name() string

	// SetName sets the scene's identifier.
	SetName(name string)

	// Active returns whether this scene is the one currently shown.
	Active() bool

	// SetActive sets whether this scene is the one currently shown.
	SetActive(active bool)

	// Root returns the scene object holding the model root and objects added with AddToRoot.
	//
	// Returns:
	//   - game_object.GameObject: the scene object
	Root() game_object.GameObject

	// ModelRoot returns the container of the top-level models.
	//
	// Returns:
	//   - game_object.GameObject: the model root
	ModelRoot() game_object.GameObject

	// AddObject adds obj under the model root. Cameras and lights in its hierarchy are tracked.
	//
	// Parameters:
	//   - obj: the object to add
	//   - opts: add options, may be nil
	//
	// Returns:
	//   - game_object.GameObject: obj
	AddObject(obj game_object.GameObject, opts *AddObjectOptions) game_object.GameObject

	// LoadModelRoot adds the children of an imported scene model root, merging its import metadata
	// into the model root.
	//
	// Parameters:
	//   - m: the imported model
	//   - opts: add options, may be nil
	//
	// Returns:
	//   - []game_object.GameObject: the added children
	LoadModelRoot(m *asset.Model, opts *AddObjectOptions) []game_object.GameObject

	// Objects returns the top-level models.
	//
	// Returns:
	//   - []game_object.GameObject: the children of the model root
	Objects() []game_object.GameObject

	// Count returns the number of objects under the model root, including nested ones.
	//
	// Returns:
	//   - int: the object count
	Count() int

	// ClearSceneModels removes every model, disposing them when dispose is set.
	//
	// Parameters:
	//   - dispose: dispose the removed models
	ClearSceneModels(dispose bool)

	// Camera returns the main camera, nil until a camera is set or added.
	Camera() camera.Camera

	// SetCamera replaces the main camera.
	//
	// Parameters:
	//   - cam: the new camera
	SetCamera(cam camera.Camera)

	// Lights returns the lights of the objects in the scene.
	//
	// Returns:
	//   - []light.Light: the light list
	Lights() []light.Light

	// AmbientColor returns the scene's ambient light color.
	//
	// Returns:
	//   - [3]float32: the ambient RGB color
	AmbientColor() [3]float32

	// SetAmbientColor sets the scene's ambient light color.
	//
	// Parameters:
	//   - color: the ambient RGB color
	SetAmbientColor(color [3]float32)

	// Environment returns the environment map.
	Environment() texture.Texture

	// SetEnvironment replaces the environment map. UV mapped textures switch to equirectangular
	// reflection mapping; the previous map is disposed when auto disposal is on.
	//
	// Parameters:
	//   - t: the new environment map, nil to clear
	SetEnvironment(t texture.Texture)

	// Background returns the background texture.
	Background() texture.Texture

	// SetBackground replaces the background texture; the previous one is disposed when auto disposal is on.
	//
	// Parameters:
	//   - t: the new background, nil to clear
	SetBackground(t texture.Texture)

	// BackgroundColor returns the background color, nil when unset.
	BackgroundColor() *[3]float32

	// SetBackgroundColor sets the background color.
	//
	// Parameters:
	//   - c: the color, nil to clear
	SetBackgroundColor(c *[3]float32)

	// BackgroundIntensity returns the background intensity.
	BackgroundIntensity() float64

	// EnvMapIntensity returns the environment intensity.
	EnvMapIntensity() float64

	// ImportConfig applies a viewer config: legacy fields are migrated, scene settings are applied and
	// plugin entries are kept. A config whose type names a plugin of the current config replaces that entry.
	//
	// Parameters:
	//   - cfg: the config to apply
	//
	// Returns:
	//   - error: ErrUnknownConfigType, or a version check error
	ImportConfig(cfg *viewer_config.ViewerConfig) error

	// Config returns a config describing the current scene settings and plugins.
	//
	// Returns:
	//   - *viewer_config.ViewerConfig: a new config
	Config() *viewer_config.ViewerConfig

	// Traverse visits the scene object and its descendants depth first.
	//
	// Parameters:
	//   - fn: the visitor; returning false skips the children of the visited object
	Traverse(fn func(game_object.GameObject) bool)

	// OnUpdate subscribes to scene changes.
	//
	// Parameters:
	//   - fn: the handler
	//
	// Returns:
	//   - func(): the unsubscribe handle
	OnUpdate(fn func(Event)) func()

	// Dispose disposes every model and the scene maps.
	Dispose()
}

type scene struct {
	mu sync.RWMutex

	name   string
	active bool

	root      game_object.GameObject
	modelRoot game_object.GameObject

	cam          camera.Camera
	lights       []light.Light
	lightObjects []game_object.GameObject
	ambientColor [3]float32

	environment         texture.Texture
	background          texture.Texture
	backgroundColor     *[3]float32
	backgroundIntensity float64
	envMapIntensity     float64
	autoDisposeMaps     bool

	runtimeVersion string
	plugins        []map[string]any
	sceneConfig    map[string]any

	onUpdate event.Dispatcher[Event]
	logger   *zap.Logger
}

var _ Scene = &scene{}

// NewScene creates an empty scene with a model root.
//
// Parameters:
//   - options: functional options to configure the scene
//
// Returns:
//   - Scene: the new scene
func NewScene(options ...SceneBuilderOption) Scene {
	s := &scene{
		name:                "RootScene",
		active:              true,
		backgroundIntensity: 1,
		envMapIntensity:     1,
		autoDisposeMaps:     true,
		runtimeVersion:      "0.0.0",
		sceneConfig:         map[string]any{},
		onUpdate:            event.NewDispatcher[Event](),
		logger:              zap.NewNop(),
	}
	s.modelRoot = game_object.NewGameObject(
		game_object.WithName("Scene"),
		game_object.WithType(game_object.TypeScene),
		game_object.WithUserData(map[string]any{SceneModelRootKey: true}),
	)
	s.root = game_object.NewGameObject(
		game_object.WithName(s.name),
		game_object.WithType(game_object.TypeScene),
		game_object.WithChildren(s.modelRoot),
	)
	for _, opt := range options {
		opt(s)
	}
	s.logger = s.logger.With(zap.String("component", "scene"))
	return s
}

func (s *scene) Name() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.name
}

func (s *scene) SetName(name string) {
	s.mu.Lock()
	s.name = name
	s.mu.Unlock()
	s.root.SetName(name)
}

func (s *scene) Active() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.active
}

func (s *scene) SetActive(active bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active = active
}

func (s *scene) Root() game_object.GameObject {
	return s.root
}

func (s *scene) ModelRoot() game_object.GameObject {
	return s.modelRoot
}

func (s *scene) AddObject(obj game_object.GameObject, opts *AddObjectOptions) game_object.GameObject {
	if opts != nil && (opts.ClearSceneObjects || opts.DisposeSceneObjects) {
		s.ClearSceneModels(opts.DisposeSceneObjects)
	}
	if obj == nil {
		s.logger.Error("invalid object, cannot add to scene")
		return nil
	}
	if opts != nil && opts.AddToRoot {
		s.root.Add(obj)
	} else {
		s.modelRoot.Add(obj)
	}
	s.track(obj)
	s.onUpdate.Dispatch(Event{Type: EventAddObject, Object: obj})
	return obj
}

// track registers the cameras and lights found under obj.
func (s *scene) track(obj game_object.GameObject) {
	s.mu.Lock()
	defer s.mu.Unlock()
	obj.Traverse(func(o game_object.GameObject) bool {
		if c := o.Camera(); c != nil && s.cam == nil {
			s.cam = c
		}
		if l := o.Light(); l != nil && !slices.Contains(s.lightObjects, o) {
			s.lights = append(s.lights, l)
			s.lightObjects = append(s.lightObjects, o)
			o.OnDispose(s.detachLight)
		}
		return true
	})
}

func (s *scene) detachLight(obj game_object.GameObject) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := slices.Index(s.lightObjects, obj)
	if i < 0 {
		return
	}
	s.lightObjects = slices.Delete(s.lightObjects, i, i+1)
	s.lights = slices.Delete(s.lights, i, i+1)
}

func (s *scene) LoadModelRoot(m *asset.Model, opts *AddObjectOptions) []game_object.GameObject {
	if opts != nil && (opts.ClearSceneObjects || opts.DisposeSceneObjects) {
		s.ClearSceneModels(opts.DisposeSceneObjects)
	}
	if m == nil || m.Root == nil {
		return nil
	}
	if !m.IsSceneRoot() {
		s.logger.Error("invalid model root scene object, adding anyway", zap.String("name", m.Name()))
	}

	if data, ok := m.UserData()[ImportDataKey].(map[string]any); ok {
		merged, _ := s.modelRoot.UserData()[ImportDataKey].(map[string]any)
		if merged == nil {
			merged = map[string]any{}
		}
		maps.Copy(merged, data)
		s.modelRoot.UserData()[ImportDataKey] = merged
	}

	children := m.Root.Children()
	added := make([]game_object.GameObject, 0, len(children))
	for _, c := range children {
		added = append(added, s.AddObject(c, nil))
	}
	return added
}

func (s *scene) Objects() []game_object.GameObject {
	return s.modelRoot.Children()
}

func (s *scene) Count() int {
	n := -1
	s.modelRoot.Traverse(func(game_object.GameObject) bool {
		n++
		return true
	})
	return n
}

func (s *scene) ClearSceneModels(dispose bool) {
	for _, child := range s.modelRoot.Children() {
		if dispose {
			child.Dispose()
		}
		child.RemoveFromParent()
		s.untrack(child)
	}
	s.onUpdate.Dispatch(Event{Type: EventCleared})
}

// untrack forgets the cameras and lights found under obj.
func (s *scene) untrack(obj game_object.GameObject) {
	obj.Traverse(func(o game_object.GameObject) bool {
		s.detachLight(o)
		if c := o.Camera(); c != nil {
			s.mu.Lock()
			if s.cam == c {
				s.cam = nil
			}
			s.mu.Unlock()
		}
		return true
	})
}

func (s *scene) Camera() camera.Camera {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cam
}

func (s *scene) SetCamera(cam camera.Camera) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cam = cam
}

func (s *scene) Lights() []light.Light {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.lights)
}

func (s *scene) AmbientColor() [3]float32 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ambientColor
}

func (s *scene) SetAmbientColor(color [3]float32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ambientColor = color
}

func (s *scene) Environment() texture.Texture {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.environment
}

func (s *scene) SetEnvironment(t texture.Texture) {
	s.mu.Lock()
	old := s.environment
	s.environment = t
	dispose := s.autoDisposeMaps && old != nil && old != t && old != s.background
	s.mu.Unlock()

	if dispose {
		old.Dispose()
	}
	if t != nil && t.Mapping() == texture.MappingUV {
		t.SetMapping(texture.MappingEquirectReflection)
	}
	s.onUpdate.Dispatch(Event{Type: EventEnvironmentChanged})
}

func (s *scene) Background() texture.Texture {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.background
}

func (s *scene) SetBackground(t texture.Texture) {
	s.mu.Lock()
	old := s.background
	s.background = t
	dispose := s.autoDisposeMaps && old != nil && old != t && old != s.environment
	s.mu.Unlock()

	if dispose {
		old.Dispose()
	}
	s.onUpdate.Dispatch(Event{Type: EventBackgroundChanged})
}

func (s *scene) BackgroundColor() *[3]float32 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.backgroundColor == nil {
		return nil
	}
	c := *s.backgroundColor
	return &c
}

func (s *scene) SetBackgroundColor(c *[3]float32) {
	s.mu.Lock()
	if c == nil {
		s.backgroundColor = nil
	} else {
		v := *c
		s.backgroundColor = &v
	}
	s.mu.Unlock()
	s.onUpdate.Dispatch(Event{Type: EventBackgroundChanged})
}

func (s *scene) BackgroundIntensity() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.backgroundIntensity
}

func (s *scene) EnvMapIntensity() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.envMapIntensity
}

func (s *scene) ImportConfig(cfg *viewer_config.ViewerConfig) error {
	if cfg == nil {
		return nil
	}
	if !viewer_config.IsViewerType(cfg.Type) {
		return s.importPluginConfig(cfg)
	}

	if newer, err := cfg.CheckVersion(s.runtimeVersion); err != nil {
		s.logger.Warn("could not check config version", zap.String("version", cfg.Version), zap.Error(err))
	} else if newer {
		s.logger.Warn("config was written by a newer runtime", zap.String("version", cfg.Version), zap.String("runtime", s.runtimeVersion))
	}
	for _, msg := range cfg.Migrate() {
		s.logger.Warn("old file format", zap.String("migration", msg))
	}

	s.mu.Lock()
	if v, ok := number(cfg.Scene["backgroundIntensity"]); ok {
		s.backgroundIntensity = v
	}
	if v, ok := number(cfg.Scene["envMapIntensity"]); ok {
		s.envMapIntensity = v
	}
	if c, ok := color3(cfg.Scene["backgroundColor"]); ok {
		s.backgroundColor = &c
	}
	maps.Copy(s.sceneConfig, cfg.Scene)
	for _, p := range cfg.Plugins {
		s.setPluginLocked(p)
	}
	s.mu.Unlock()

	s.onUpdate.Dispatch(Event{Type: EventConfigImported})
	return nil
}

func (s *scene) importPluginConfig(cfg *viewer_config.ViewerConfig) error {
	data, err := cfg.ToMap()
	if err != nil {
		return err
	}
	delete(data, "assetType")
	delete(data, "plugins")

	s.mu.Lock()
	found := slices.ContainsFunc(s.plugins, func(p map[string]any) bool { return p["type"] == cfg.Type })
	if found {
		s.setPluginLocked(data)
	}
	s.mu.Unlock()

	if !found {
		return fmt.Errorf("%w: %s", ErrUnknownConfigType, cfg.Type)
	}
	s.onUpdate.Dispatch(Event{Type: EventConfigImported})
	return nil
}

func (s *scene) setPluginLocked(p map[string]any) {
	typ, _ := p["type"].(string)
	if typ == "" {
		return
	}
	i := slices.IndexFunc(s.plugins, func(q map[string]any) bool { return q["type"] == typ })
	if i >= 0 {
		s.plugins[i] = maps.Clone(p)
		return
	}
	s.plugins = append(s.plugins, maps.Clone(p))
}

func (s *scene) Config() *viewer_config.ViewerConfig {
	cfg := viewer_config.New(s.runtimeVersion)
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, p := range s.plugins {
		cfg.Plugins = append(cfg.Plugins, maps.Clone(p))
	}
	cfg.Scene = maps.Clone(s.sceneConfig)
	cfg.Scene["backgroundIntensity"] = s.backgroundIntensity
	cfg.Scene["envMapIntensity"] = s.envMapIntensity
	if s.backgroundColor != nil {
		c := *s.backgroundColor
		cfg.Scene["backgroundColor"] = []float64{float64(c[0]), float64(c[1]), float64(c[2])}
	}
	return cfg
}

func (s *scene) Traverse(fn func(game_object.GameObject) bool) {
	s.root.Traverse(fn)
}

func (s *scene) OnUpdate(fn func(Event)) func() {
	return s.onUpdate.Subscribe(fn)
}

func (s *scene) Dispose() {
	s.ClearSceneModels(true)
	s.mu.Lock()
	env, bg := s.environment, s.background
	s.environment, s.background = nil, nil
	s.mu.Unlock()
	if env != nil {
		env.Dispose()
	}
	if bg != nil && bg != env {
		bg.Dispose()
	}
	s.onUpdate.Clear()
}

func number(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	}
	return 0, false
}

func color3(v any) ([3]float32, bool) {
	var out [3]float32
	switch c := v.(type) {
	case []any:
		if len(c) < 3 {
			return out, false
		}
		for i := range 3 {
			f, ok := number(c[i])
			if !ok {
				return out, false
			}
			out[i] = float32(f)
		}
		return out, true
	case []float64:
		if len(c) < 3 {
			return out, false
		}
		return [3]float32{float32(c[0]), float32(c[1]), float32(c[2])}, true
	}
	return out, false
}

package game_object

import (
	"sync"

	"github.com/Carmen-Shannon/oxypipe/common"
	"github.com/Carmen-Shannon/oxypipe/engine/camera"
	"github.com/Carmen-Shannon/oxypipe/engine/event"
	"github.com/Carmen-Shannon/oxypipe/engine/light"
	"github.com/Carmen-Shannon/oxypipe/engine/material"
	"github.com/Carmen-Shannon/oxypipe/engine/model"

	"github.com/google/uuid"
)

// ObjectType names the role of a node in the scene graph.
type ObjectType string

const (
	TypeObject ObjectType = "Object3D"
	TypeGroup  ObjectType = "Group"
	TypeScene  ObjectType = "Scene"
	TypeMesh   ObjectType = "Mesh"
	TypeCamera ObjectType = "Camera"
	TypeLight  ObjectType = "Light"
)

type gameObject struct {
	mu sync.RWMutex

	uuid     string
	name     string
	objType  ObjectType
	userData map[string]any

	visible       bool
	castShadow    bool
	receiveShadow bool
	frustumCulled bool
	renderOrder   int

	transform common.Transform

	parent   GameObject
	children []GameObject

	mdl               model.Model
	importedMaterials []*common.ImportedMaterial
	materials         []material.Material
	importedCamera    *common.ImportedCamera
	cam               camera.Camera
	importedLight     *common.ImportedLight
	lgt               light.Light

	disposed  bool
	onDispose event.Dispatcher[GameObject]
}

// GameObject defines the interface for a node of the scene graph. Loaders produce trees of GameObjects,
// the asset manager upgrades their payloads (materials, cameras, lights) to framework wrappers, and
// exporters walk them back out.
//
// The graph methods are safe for concurrent use; the UserData map is not and belongs to whoever
// currently processes the node.
type GameObject interface {
	// UUID returns the object's unique identifier.
	//
	// Returns:
	//   - string: the object UUID
	UUID() string

	// SetUUID replaces the object's unique identifier.
	//
	// Parameters:
	//   - id: the new UUID
	SetUUID(id string)

	// Name returns the object name.
	//
	// Returns:
	//   - string: the name
	Name() string

	// SetName sets the object name.
	//
	// Parameters:
	//   - name: the new name
	SetName(name string)

	// Type returns the role of the node.
	//
	// Returns:
	//   - ObjectType: the node type
	Type() ObjectType

	// SetType changes the role of the node.
	//
	// Parameters:
	//   - t: the new node type
	SetType(t ObjectType)

	// UserData returns the application data attached to the node. The map is live.
	//
	// Returns:
	//   - map[string]any: the user data
	UserData() map[string]any

	// Visible returns whether the node is rendered and exported.
	//
	// Returns:
	//   - bool: true if visible
	Visible() bool

	// SetVisible sets the visibility of the node.
	//
	// Parameters:
	//   - visible: true to show the node
	SetVisible(visible bool)

	// CastShadow returns whether the node casts shadows.
	//
	// Returns:
	//   - bool: true if the node casts shadows
	CastShadow() bool

	// SetCastShadow sets whether the node casts shadows.
	//
	// Parameters:
	//   - cast: true to cast shadows
	SetCastShadow(cast bool)

	// ReceiveShadow returns whether the node receives shadows.
	//
	// Returns:
	//   - bool: true if the node receives shadows
	ReceiveShadow() bool

	// SetReceiveShadow sets whether the node receives shadows.
	//
	// Parameters:
	//   - receive: true to receive shadows
	SetReceiveShadow(receive bool)

	// FrustumCulled returns whether the node may be skipped when outside the view frustum.
	//
	// Returns:
	//   - bool: true if frustum culling applies
	FrustumCulled() bool

	// SetFrustumCulled sets whether frustum culling applies.
	//
	// Parameters:
	//   - culled: true to allow culling
	SetFrustumCulled(culled bool)

	// RenderOrder returns the draw order override.
	//
	// Returns:
	//   - int: the render order
	RenderOrder() int

	// SetRenderOrder sets the draw order override.
	//
	// Parameters:
	//   - order: the render order
	SetRenderOrder(order int)

	// Transform returns the local TRS transform.
	//
	// Returns:
	//   - common.Transform: the local transform
	Transform() common.Transform

	// SetTransform replaces the local TRS transform.
	//
	// Parameters:
	//   - t: the new transform
	SetTransform(t common.Transform)

	// Matrix returns the local transform composed into a column-major matrix.
	//
	// Returns:
	//   - [16]float32: the local matrix
	Matrix() [16]float32

	// SetMatrix decomposes a column-major matrix into the local transform.
	//
	// Parameters:
	//   - m: the local matrix
	SetMatrix(m [16]float32)

	// WorldMatrix returns the product of every ancestor matrix and the local matrix.
	//
	// Returns:
	//   - [16]float32: the world matrix
	WorldMatrix() [16]float32

	// Parent returns the parent node, or nil for roots.
	//
	// Returns:
	//   - GameObject: the parent
	Parent() GameObject

	// Children returns a snapshot of the child list.
	//
	// Returns:
	//   - []GameObject: the children in order
	Children() []GameObject

	// Add appends children, detaching each from its previous parent first.
	//
	// Parameters:
	//   - children: the nodes to append
	Add(children ...GameObject)

	// Insert places child at index i, detaching it from its previous parent first. Out of range indices append.
	//
	// Parameters:
	//   - i: the target index
	//   - child: the node to insert
	Insert(i int, child GameObject)

	// Remove detaches a child.
	//
	// Parameters:
	//   - child: the node to detach
	//
	// Returns:
	//   - bool: true if child was a child of this node
	Remove(child GameObject) bool

	// RemoveFromParent detaches the node from its parent.
	//
	// Returns:
	//   - int: the index the node had in its parent, or -1 for roots
	RemoveFromParent() int

	// IndexOf returns the position of child in the child list.
	//
	// Parameters:
	//   - child: the node to find
	//
	// Returns:
	//   - int: the index, or -1
	IndexOf(child GameObject) int

	// Traverse calls fn for the node and every descendant, depth first, parents before children.
	// Returning false from fn skips the subtree below that node.
	//
	// Parameters:
	//   - fn: the visitor
	Traverse(fn func(GameObject) bool)

	// Model returns the mesh geometry of the node, or nil.
	//
	// Returns:
	//   - model.Model: the mesh
	Model() model.Model

	// SetModel assigns mesh geometry to the node.
	//
	// Parameters:
	//   - m: the mesh
	SetModel(m model.Model)

	// ImportedMaterials returns the loader-native materials not yet converted to framework materials.
	//
	// Returns:
	//   - []*common.ImportedMaterial: the materials
	ImportedMaterials() []*common.ImportedMaterial

	// SetImportedMaterials assigns loader-native materials.
	//
	// Parameters:
	//   - mats: the materials
	SetImportedMaterials(mats []*common.ImportedMaterial)

	// Materials returns the framework materials of the node.
	//
	// Returns:
	//   - []material.Material: the materials
	Materials() []material.Material

	// SetMaterials assigns framework materials and clears the imported ones.
	//
	// Parameters:
	//   - mats: the materials
	SetMaterials(mats []material.Material)

	// ReplaceMaterial swaps every use of old for replacement.
	//
	// Parameters:
	//   - old: the material to replace
	//   - replacement: the new material
	//
	// Returns:
	//   - bool: true if the node used old
	ReplaceMaterial(old, replacement material.Material) bool

	// ImportedCamera returns the loader-native camera, or nil.
	//
	// Returns:
	//   - *common.ImportedCamera: the camera parameters
	ImportedCamera() *common.ImportedCamera

	// Camera returns the framework camera, or nil.
	//
	// Returns:
	//   - camera.Camera: the camera
	Camera() camera.Camera

	// SetCamera assigns a framework camera and clears the imported one.
	//
	// Parameters:
	//   - c: the camera
	SetCamera(c camera.Camera)

	// ImportedLight returns the loader-native light, or nil.
	//
	// Returns:
	//   - *common.ImportedLight: the light parameters
	ImportedLight() *common.ImportedLight

	// Light returns the framework light, or nil.
	//
	// Returns:
	//   - light.Light: the light
	Light() light.Light

	// SetLight assigns a framework light and clears the imported one.
	//
	// Parameters:
	//   - l: the light
	SetLight(l light.Light)

	// OnDispose registers a callback fired once when the node is disposed.
	//
	// Parameters:
	//   - fn: the callback
	//
	// Returns:
	//   - func(): the unsubscribe handle
	OnDispose(fn func(GameObject)) func()

	// Dispose disposes the subtree below the node, then the node itself. Subsequent calls are no-ops.
	Dispose()

	// Disposed reports whether Dispose has been called.
	//
	// Returns:
	//   - bool: true once disposed
	Disposed() bool

	setParent(p GameObject)
}

var _ GameObject = &gameObject{}

// NewGameObject creates a new GameObject configured with the given options.
//
// Parameters:
//   - options: functional options to configure the object
//
// Returns:
//   - GameObject: the newly created object
func NewGameObject(options ...GameObjectBuilderOption) GameObject {
	obj := &gameObject{
		uuid:          uuid.NewString(),
		objType:       TypeObject,
		userData:      map[string]any{},
		visible:       true,
		frustumCulled: true,
		transform:     common.IdentityTransform(),
		onDispose:     event.NewDispatcher[GameObject](),
	}
	for _, option := range options {
		option(obj)
	}
	return obj
}

func (g *gameObject) UUID() string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.uuid
}

func (g *gameObject) SetUUID(id string) {
	g.mu.Lock()
	g.uuid = id
	g.mu.Unlock()
}

func (g *gameObject) Name() string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.name
}

func (g *gameObject) SetName(name string) {
	g.mu.Lock()
	g.name = name
	g.mu.Unlock()
}

func (g *gameObject) Type() ObjectType {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.objType
}

func (g *gameObject) SetType(t ObjectType) {
	g.mu.Lock()
	g.objType = t
	g.mu.Unlock()
}

func (g *gameObject) UserData() map[string]any {
	return g.userData
}

func (g *gameObject) Visible() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.visible
}

func (g *gameObject) SetVisible(visible bool) {
	g.mu.Lock()
	g.visible = visible
	g.mu.Unlock()
}

func (g *gameObject) CastShadow() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.castShadow
}

func (g *gameObject) SetCastShadow(cast bool) {
	g.mu.Lock()
	g.castShadow = cast
	g.mu.Unlock()
}

func (g *gameObject) ReceiveShadow() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.receiveShadow
}

func (g *gameObject) SetReceiveShadow(receive bool) {
	g.mu.Lock()
	g.receiveShadow = receive
	g.mu.Unlock()
}

func (g *gameObject) FrustumCulled() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.frustumCulled
}

func (g *gameObject) SetFrustumCulled(culled bool) {
	g.mu.Lock()
	g.frustumCulled = culled
	g.mu.Unlock()
}

func (g *gameObject) RenderOrder() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.renderOrder
}

func (g *gameObject) SetRenderOrder(order int) {
	g.mu.Lock()
	g.renderOrder = order
	g.mu.Unlock()
}

func (g *gameObject) Transform() common.Transform {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.transform
}

func (g *gameObject) SetTransform(t common.Transform) {
	g.mu.Lock()
	g.transform = t
	g.mu.Unlock()
}

func (g *gameObject) Matrix() [16]float32 {
	return g.Transform().Matrix()
}

func (g *gameObject) SetMatrix(m [16]float32) {
	g.SetTransform(common.Decompose(m))
}

func (g *gameObject) WorldMatrix() [16]float32 {
	m := g.Matrix()
	for p := g.Parent(); p != nil; p = p.Parent() {
		m = common.Mul4(p.Matrix(), m)
	}
	return m
}

func (g *gameObject) Parent() GameObject {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.parent
}

func (g *gameObject) setParent(p GameObject) {
	g.mu.Lock()
	g.parent = p
	g.mu.Unlock()
}

func (g *gameObject) Children() []GameObject {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]GameObject, len(g.children))
	copy(out, g.children)
	return out
}

func (g *gameObject) Add(children ...GameObject) {
	for _, child := range children {
		g.Insert(-1, child)
	}
}

func (g *gameObject) Insert(i int, child GameObject) {
	if child == nil || child == GameObject(g) {
		return
	}
	child.RemoveFromParent()

	g.mu.Lock()
	if i < 0 || i >= len(g.children) {
		g.children = append(g.children, child)
	} else {
		g.children = append(g.children[:i], append([]GameObject{child}, g.children[i:]...)...)
	}
	g.mu.Unlock()
	child.setParent(g)
}

func (g *gameObject) Remove(child GameObject) bool {
	if child == nil {
		return false
	}
	g.mu.Lock()
	idx := g.indexOfLocked(child)
	if idx >= 0 {
		g.children = append(g.children[:idx:idx], g.children[idx+1:]...)
	}
	g.mu.Unlock()
	if idx < 0 {
		return false
	}
	child.setParent(nil)
	return true
}

func (g *gameObject) RemoveFromParent() int {
	p := g.Parent()
	if p == nil {
		return -1
	}
	idx := p.IndexOf(g)
	p.Remove(g)
	return idx
}

func (g *gameObject) IndexOf(child GameObject) int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.indexOfLocked(child)
}

func (g *gameObject) indexOfLocked(child GameObject) int {
	for i, c := range g.children {
		if c == child {
			return i
		}
	}
	return -1
}

func (g *gameObject) Traverse(fn func(GameObject) bool) {
	if !fn(g) {
		return
	}
	for _, c := range g.Children() {
		c.Traverse(fn)
	}
}

func (g *gameObject) Model() model.Model {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.mdl
}

func (g *gameObject) SetModel(m model.Model) {
	g.mu.Lock()
	g.mdl = m
	g.mu.Unlock()
}

func (g *gameObject) ImportedMaterials() []*common.ImportedMaterial {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.importedMaterials
}

func (g *gameObject) SetImportedMaterials(mats []*common.ImportedMaterial) {
	g.mu.Lock()
	g.importedMaterials = mats
	g.mu.Unlock()
}

func (g *gameObject) Materials() []material.Material {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.materials
}

func (g *gameObject) SetMaterials(mats []material.Material) {
	g.mu.Lock()
	g.materials = mats
	g.importedMaterials = nil
	g.mu.Unlock()
}

func (g *gameObject) ReplaceMaterial(old, replacement material.Material) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	replaced := false
	for i, m := range g.materials {
		if m == old {
			g.materials[i] = replacement
			replaced = true
		}
	}
	return replaced
}

func (g *gameObject) ImportedCamera() *common.ImportedCamera {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.importedCamera
}

func (g *gameObject) Camera() camera.Camera {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.cam
}

func (g *gameObject) SetCamera(c camera.Camera) {
	g.mu.Lock()
	g.cam = c
	g.importedCamera = nil
	g.mu.Unlock()
}

func (g *gameObject) ImportedLight() *common.ImportedLight {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.importedLight
}

func (g *gameObject) Light() light.Light {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.lgt
}

func (g *gameObject) SetLight(l light.Light) {
	g.mu.Lock()
	g.lgt = l
	g.importedLight = nil
	g.mu.Unlock()
}

func (g *gameObject) OnDispose(fn func(GameObject)) func() {
	return g.onDispose.Subscribe(fn)
}

func (g *gameObject) Dispose() {
	g.mu.Lock()
	if g.disposed {
		g.mu.Unlock()
		return
	}
	g.disposed = true
	children := append([]GameObject(nil), g.children...)
	g.mu.Unlock()

	for _, c := range children {
		c.Dispose()
	}
	g.onDispose.Dispatch(g)
	g.onDispose.Clear()
}

func (g *gameObject) Disposed() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.disposed
}

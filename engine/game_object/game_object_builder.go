package game_object

import (
	"github.com/Carmen-Shannon/oxypipe/common"
	"github.com/Carmen-Shannon/oxypipe/engine/model"
)

// GameObjectBuilderOption is a functional option for configuring a GameObject during construction.
type GameObjectBuilderOption func(*gameObject)

// WithUUID sets the UUID of the GameObject.
//
// Parameters:
//   - id: unique identifier for the GameObject
//
// Returns:
//   - GameObjectBuilderOption: functional option to set the UUID
func WithUUID(id string) GameObjectBuilderOption {
	return func(obj *gameObject) {
		obj.uuid = id
	}
}

// WithName sets the name of the GameObject.
//
// Parameters:
//   - name: the object name
//
// Returns:
//   - GameObjectBuilderOption: functional option to set the name
func WithName(name string) GameObjectBuilderOption {
	return func(obj *gameObject) {
		obj.name = name
	}
}

// WithType sets the role of the GameObject in the scene graph.
//
// Parameters:
//   - t: the node type
//
// Returns:
//   - GameObjectBuilderOption: functional option to set the type
func WithType(t ObjectType) GameObjectBuilderOption {
	return func(obj *gameObject) {
		obj.objType = t
	}
}

// WithVisible sets whether the GameObject is visible.
//
// Parameters:
//   - visible: true to show the object, false to hide it
//
// Returns:
//   - GameObjectBuilderOption: functional option to set the visibility
func WithVisible(visible bool) GameObjectBuilderOption {
	return func(obj *gameObject) {
		obj.visible = visible
	}
}

// WithTransform sets the local transform of the GameObject.
//
// Parameters:
//   - t: the local TRS transform
//
// Returns:
//   - GameObjectBuilderOption: functional option to set the transform
func WithTransform(t common.Transform) GameObjectBuilderOption {
	return func(obj *gameObject) {
		obj.transform = t
	}
}

// WithModel sets the Model for this GameObject and marks it as a mesh.
//
// Parameters:
//   - m: the Model to associate
//
// Returns:
//   - GameObjectBuilderOption: functional option to set the Model
func WithModel(m model.Model) GameObjectBuilderOption {
	return func(obj *gameObject) {
		obj.mdl = m
		if m != nil && obj.objType == TypeObject {
			obj.objType = TypeMesh
		}
	}
}

// WithImportedMaterials sets the loader-native materials of the GameObject.
//
// Parameters:
//   - mats: the imported materials, one per primitive material index
//
// Returns:
//   - GameObjectBuilderOption: functional option to set the materials
func WithImportedMaterials(mats ...*common.ImportedMaterial) GameObjectBuilderOption {
	return func(obj *gameObject) {
		obj.importedMaterials = mats
	}
}

// WithImportedCamera attaches loader-native camera parameters and marks the node as a camera.
//
// Parameters:
//   - c: the camera parameters
//
// Returns:
//   - GameObjectBuilderOption: functional option to set the camera
func WithImportedCamera(c *common.ImportedCamera) GameObjectBuilderOption {
	return func(obj *gameObject) {
		obj.importedCamera = c
		obj.objType = TypeCamera
	}
}

// WithImportedLight attaches loader-native light parameters and marks the node as a light.
//
// Parameters:
//   - l: the light parameters
//
// Returns:
//   - GameObjectBuilderOption: functional option to set the light
func WithImportedLight(l *common.ImportedLight) GameObjectBuilderOption {
	return func(obj *gameObject) {
		obj.importedLight = l
		obj.objType = TypeLight
	}
}

// WithUserData merges entries into the user data of the GameObject.
//
// Parameters:
//   - data: the entries to merge
//
// Returns:
//   - GameObjectBuilderOption: functional option to set user data
func WithUserData(data map[string]any) GameObjectBuilderOption {
	return func(obj *gameObject) {
		for k, v := range data {
			obj.userData[k] = v
		}
	}
}

// WithChildren attaches children to the GameObject.
//
// Parameters:
//   - children: the child nodes
//
// Returns:
//   - GameObjectBuilderOption: functional option to add children
func WithChildren(children ...GameObject) GameObjectBuilderOption {
	return func(obj *gameObject) {
		obj.Add(children...)
	}
}

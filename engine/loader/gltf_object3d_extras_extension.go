package loader

import (
	"context"

	"github.com/Carmen-Shannon/oxypipe/engine/game_object"

	"github.com/qmuntal/gltf"
)

const (
	// Object3DExtrasExtensionName is the glTF node extension carrying visibility and shadow flags.
	Object3DExtrasExtensionName = "WEBGI_object3d_extras"

	// ExtensionsUserDataKey is the user data key unhandled node extensions are kept under on import.
	ExtensionsUserDataKey = "gltfExtensions"
)

type object3DExtras struct {
	CastShadow    *bool    `json:"castShadow,omitempty"`
	ReceiveShadow *bool    `json:"receiveShadow,omitempty"`
	Visible       *bool    `json:"visible,omitempty"`
	FrustumCulled *bool    `json:"frustumCulled,omitempty"`
	RenderOrder   *float64 `json:"renderOrder,omitempty"`
}

// Object3DExtrasExtension returns the glTF extension that round-trips the visibility, shadow and render
// order flags of scene objects.
func Object3DExtrasExtension() *GLTFExtension {
	return &GLTFExtension{
		Name: Object3DExtrasExtensionName,
		Import: func(*gltf.Document) *GLTFImportHooks {
			return &GLTFImportHooks{AfterRoot: importObject3DExtras}
		},
		Export: func(*gltf.Document) *GLTFExportHooks {
			return &GLTFExportHooks{WriteNode: exportObject3DExtras}
		},
	}
}

func importObject3DExtras(_ context.Context, in *GLTFImport) error {
	for _, obj := range in.Nodes {
		if obj == nil {
			continue
		}
		exts, _ := obj.UserData()[ExtensionsUserDataKey].(map[string]any)
		raw, ok := exts[Object3DExtrasExtensionName]
		if !ok {
			if l := obj.ImportedLight(); l != nil && l.Type != "ambient" {
				obj.SetCastShadow(true)
			}
			continue
		}

		var extras object3DExtras
		if _, err := DecodeExtension(gltf.Extensions{Object3DExtrasExtensionName: raw}, Object3DExtrasExtensionName, &extras); err != nil {
			return err
		}
		if extras.CastShadow != nil {
			obj.SetCastShadow(*extras.CastShadow)
		}
		if extras.ReceiveShadow != nil {
			obj.SetReceiveShadow(*extras.ReceiveShadow)
		}
		if extras.CastShadow != nil || extras.ReceiveShadow != nil {
			obj.UserData()["__keepShadowDef"] = true
		}
		if extras.Visible != nil {
			obj.SetVisible(*extras.Visible)
		}
		if extras.FrustumCulled != nil {
			obj.SetFrustumCulled(*extras.FrustumCulled)
		}
		if extras.RenderOrder != nil {
			obj.SetRenderOrder(int(*extras.RenderOrder))
		}

		delete(exts, Object3DExtrasExtensionName)
		if len(exts) == 0 {
			delete(obj.UserData(), ExtensionsUserDataKey)
		}
	}
	return nil
}

func exportObject3DExtras(obj game_object.GameObject, node *gltf.Node, out *GLTFExport) {
	extras := object3DExtras{
		CastShadow:    new(bool),
		ReceiveShadow: new(bool),
	}
	*extras.CastShadow = obj.CastShadow()
	*extras.ReceiveShadow = obj.ReceiveShadow()
	if !obj.Visible() {
		extras.Visible = new(bool)
	}
	if !obj.FrustumCulled() {
		extras.FrustumCulled = new(bool)
	}
	if order := obj.RenderOrder(); order != 0 {
		o := float64(order)
		extras.RenderOrder = &o
	}
	setExtension(&node.Extensions, Object3DExtrasExtensionName, extras)
	MarkExtensionUsed(out.Document, Object3DExtrasExtensionName)
}

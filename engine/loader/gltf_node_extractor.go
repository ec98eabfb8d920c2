package loader

import (
	"fmt"
	"math"

	"github.com/Carmen-Shannon/oxypipe/common"
	"github.com/Carmen-Shannon/oxypipe/engine/game_object"

	"github.com/qmuntal/gltf"
	"go.uber.org/zap"
)

const lightsPunctualExtensionName = "KHR_lights_punctual"

var identityMatrix = [16]float64{1, 0, 0, 0, 0, 1, 0, 0, 0, 0, 1, 0, 0, 0, 0, 1}

type gltfPunctualLight struct {
	Name      string      `json:"name"`
	Type      string      `json:"type"`
	Color     *[3]float64 `json:"color"`
	Intensity *float64    `json:"intensity"`
	Range     *float64    `json:"range"`
	Spot      *struct {
		InnerConeAngle *float64 `json:"innerConeAngle"`
		OuterConeAngle *float64 `json:"outerConeAngle"`
	} `json:"spot"`
}

// gltfNodeExtractorImpl is the implementation of the gltfNodeExtractor interface.
type gltfNodeExtractorImpl struct {
	doc       *gltf.Document
	meshes    gltfMeshExtractor
	materials []*common.ImportedMaterial
	lights    []*common.ImportedLight
	logger    *zap.Logger
}

// gltfNodeExtractor defines the interface for turning the node hierarchy of a decoded glTF document
// into scene objects.
type gltfNodeExtractor interface {
	// ExtractAllNodes creates one object per document node and links them into the node hierarchy.
	//
	// Returns:
	//   - []game_object.GameObject: the objects, index-aligned with doc.Nodes
	//   - error: error if a node references missing data
	ExtractAllNodes() ([]game_object.GameObject, error)
}

var _ gltfNodeExtractor = &gltfNodeExtractorImpl{}

func newGLTFNodeExtractor(doc *gltf.Document, meshes gltfMeshExtractor, materials []*common.ImportedMaterial, logger *zap.Logger) (gltfNodeExtractor, error) {
	lights, err := gltfExtractLights(doc)
	if err != nil {
		return nil, err
	}
	return &gltfNodeExtractorImpl{
		doc:       doc,
		meshes:    meshes,
		materials: materials,
		lights:    lights,
		logger:    logger,
	}, nil
}

func (e *gltfNodeExtractorImpl) ExtractAllNodes() ([]game_object.GameObject, error) {
	objects := make([]game_object.GameObject, len(e.doc.Nodes))
	for i := range e.doc.Nodes {
		obj, err := e.extractNode(i)
		if err != nil {
			return nil, fmt.Errorf("node %d: %w", i, err)
		}
		objects[i] = obj
	}

	for i, n := range e.doc.Nodes {
		for _, c := range n.Children {
			if c < 0 || c >= len(objects) || c == i {
				return nil, fmt.Errorf("node %d: child index %d out of range", i, c)
			}
			objects[i].Add(objects[c])
		}
	}
	return objects, nil
}

func (e *gltfNodeExtractorImpl) extractNode(index int) (game_object.GameObject, error) {
	n := e.doc.Nodes[index]

	userData := extrasMap(n.Extras)
	if exts := unhandledExtensions(n.Extensions, lightsPunctualExtensionName); len(exts) > 0 {
		userData[ExtensionsUserDataKey] = exts
	}

	options := []game_object.GameObjectBuilderOption{
		game_object.WithName(n.Name),
		game_object.WithTransform(gltfNodeTransform(n)),
		game_object.WithUserData(userData),
	}
	if id, ok := userData["uuid"].(string); ok && id != "" {
		options = append(options, game_object.WithUUID(id))
	}

	var attachments []game_object.GameObject
	hasMesh := n.Mesh != nil
	if hasMesh {
		em, err := e.meshes.ExtractMesh(*n.Mesh)
		if err != nil {
			return nil, err
		}
		mats := make([]*common.ImportedMaterial, 0, len(em.materials))
		for _, mi := range em.materials {
			if mi < 0 || mi >= len(e.materials) {
				return nil, fmt.Errorf("material index %d out of range", mi)
			}
			mats = append(mats, e.materials[mi])
		}
		options = append(options, game_object.WithModel(em.model), game_object.WithImportedMaterials(mats...))
	}

	if n.Camera != nil {
		if *n.Camera < 0 || *n.Camera >= len(e.doc.Cameras) {
			return nil, fmt.Errorf("camera index %d out of range", *n.Camera)
		}
		cam := gltfCameraToImported(e.doc.Cameras[*n.Camera])
		if hasMesh {
			attachments = append(attachments, game_object.NewGameObject(
				game_object.WithName(cam.Name), game_object.WithImportedCamera(cam)))
		} else {
			options = append(options, game_object.WithImportedCamera(cam))
		}
	}

	var ref struct {
		Light *int `json:"light"`
	}
	if ok, err := DecodeExtension(n.Extensions, lightsPunctualExtensionName, &ref); err != nil {
		return nil, err
	} else if ok && ref.Light != nil {
		if *ref.Light < 0 || *ref.Light >= len(e.lights) {
			return nil, fmt.Errorf("light index %d out of range", *ref.Light)
		}
		l := *e.lights[*ref.Light]
		if hasMesh || n.Camera != nil {
			attachments = append(attachments, game_object.NewGameObject(
				game_object.WithName(l.Name), game_object.WithImportedLight(&l)))
		} else {
			options = append(options, game_object.WithImportedLight(&l))
		}
	}

	obj := game_object.NewGameObject(options...)
	obj.Add(attachments...)
	return obj, nil
}

// gltfNodeTransform returns the local transform of a node from its matrix, or from its TRS
// properties when no matrix is given.
func gltfNodeTransform(n *gltf.Node) common.Transform {
	if n.Matrix != [16]float64{} && n.Matrix != identityMatrix {
		var m [16]float32
		for i, v := range n.Matrix {
			m[i] = float32(v)
		}
		return common.Decompose(m)
	}
	t, r, s := n.TranslationOrDefault(), n.RotationOrDefault(), n.ScaleOrDefault()
	return common.Transform{
		Translation: [3]float32{float32(t[0]), float32(t[1]), float32(t[2])},
		Rotation:    [4]float32{float32(r[0]), float32(r[1]), float32(r[2]), float32(r[3])},
		Scale:       [3]float32{float32(s[0]), float32(s[1]), float32(s[2])},
	}
}

func gltfCameraToImported(c *gltf.Camera) *common.ImportedCamera {
	out := &common.ImportedCamera{Name: c.Name}
	switch {
	case c.Orthographic != nil:
		o := c.Orthographic
		out.Projection = common.ProjectionOrthographic
		out.XMag, out.YMag = float32(o.Xmag), float32(o.Ymag)
		out.ZNear, out.ZFar = float32(o.Znear), float32(o.Zfar)
	case c.Perspective != nil:
		p := c.Perspective
		out.Projection = common.ProjectionPerspective
		out.YFov = float32(p.Yfov)
		out.ZNear = float32(p.Znear)
		if p.AspectRatio != nil {
			out.AspectRatio = float32(*p.AspectRatio)
		}
		if p.Zfar != nil {
			out.ZFar = float32(*p.Zfar)
		}
	default:
		out.Projection = common.ProjectionPerspective
	}
	return out
}

// gltfExtractLights reads the document level KHR_lights_punctual light list.
func gltfExtractLights(doc *gltf.Document) ([]*common.ImportedLight, error) {
	var ext struct {
		Lights []gltfPunctualLight `json:"lights"`
	}
	if _, err := DecodeExtension(doc.Extensions, lightsPunctualExtensionName, &ext); err != nil {
		return nil, err
	}

	lights := make([]*common.ImportedLight, len(ext.Lights))
	for i, l := range ext.Lights {
		out := &common.ImportedLight{
			Name:           l.Name,
			Type:           l.Type,
			Color:          [3]float32{1, 1, 1},
			Intensity:      1,
			OuterConeAngle: math.Pi / 4,
		}
		if l.Color != nil {
			out.Color = [3]float32{float32(l.Color[0]), float32(l.Color[1]), float32(l.Color[2])}
		}
		if l.Intensity != nil {
			out.Intensity = float32(*l.Intensity)
		}
		if l.Range != nil {
			out.Range = float32(*l.Range)
		}
		if l.Spot != nil {
			if l.Spot.InnerConeAngle != nil {
				out.InnerConeAngle = float32(*l.Spot.InnerConeAngle)
			}
			if l.Spot.OuterConeAngle != nil {
				out.OuterConeAngle = float32(*l.Spot.OuterConeAngle)
			}
		}
		lights[i] = out
	}
	return lights, nil
}

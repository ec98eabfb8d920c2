package loader

import (
	"fmt"

	"github.com/Carmen-Shannon/oxypipe/engine/model"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/qmuntal/gltf"
	"github.com/qmuntal/gltf/modeler"
	"go.uber.org/zap"
)

type extractedMesh struct {
	model model.Model

	// materials lists the document material indices used by the mesh in first-use order.
	// Primitive.MaterialIndex indexes this list.
	materials []int
}

// gltfMeshExtractorImpl is the implementation of the gltfMeshExtractor interface.
type gltfMeshExtractorImpl struct {
	doc    *gltf.Document
	logger *zap.Logger
	meshes map[int]*extractedMesh
}

// gltfMeshExtractor defines the interface for extracting mesh data from a decoded glTF document.
// It converts accessor data into CPU geometry models.
type gltfMeshExtractor interface {
	// ExtractMesh extracts a mesh by index. Meshes referenced by several nodes are extracted once.
	//
	// Parameters:
	//   - meshIndex: the index of the mesh to extract
	//
	// Returns:
	//   - *extractedMesh: the geometry and the materials its primitives use
	//   - error: error if extraction fails
	ExtractMesh(meshIndex int) (*extractedMesh, error)
}

var _ gltfMeshExtractor = &gltfMeshExtractorImpl{}

func newGLTFMeshExtractor(doc *gltf.Document, logger *zap.Logger) gltfMeshExtractor {
	return &gltfMeshExtractorImpl{
		doc:    doc,
		logger: logger,
		meshes: make(map[int]*extractedMesh),
	}
}

func (e *gltfMeshExtractorImpl) ExtractMesh(meshIndex int) (*extractedMesh, error) {
	if m, ok := e.meshes[meshIndex]; ok {
		return m, nil
	}
	if meshIndex < 0 || meshIndex >= len(e.doc.Meshes) {
		return nil, fmt.Errorf("mesh index %d out of range", meshIndex)
	}

	mesh := e.doc.Meshes[meshIndex]
	result := &extractedMesh{}
	materialSlots := map[int]int{}
	var primitives []model.Primitive

	for primIdx, prim := range mesh.Primitives {
		if prim.Mode != gltf.PrimitiveTriangles {
			e.logger.Warn("skipping non-triangle primitive",
				zap.String("mesh", mesh.Name), zap.Int("primitive", primIdx), zap.Int("mode", int(prim.Mode)))
			continue
		}
		p, err := e.extractPrimitive(prim)
		if err != nil {
			return nil, fmt.Errorf("mesh %d primitive %d: %w", meshIndex, primIdx, err)
		}
		if prim.Material != nil {
			slot, ok := materialSlots[*prim.Material]
			if !ok {
				slot = len(result.materials)
				materialSlots[*prim.Material] = slot
				result.materials = append(result.materials, *prim.Material)
			}
			p.MaterialIndex = slot
		}
		primitives = append(primitives, *p)
	}

	result.model = model.NewModel(model.WithName(mesh.Name), model.WithPrimitives(primitives...))
	e.meshes[meshIndex] = result
	return result, nil
}

// extractPrimitive reads the geometry of a single triangle primitive.
func (e *gltfMeshExtractorImpl) extractPrimitive(prim *gltf.Primitive) (*model.Primitive, error) {
	posAccessor, ok := prim.Attributes[gltf.POSITION]
	if !ok {
		return nil, fmt.Errorf("primitive has no POSITION attribute")
	}
	positions, err := modeler.ReadPosition(e.doc, e.doc.Accessors[posAccessor], nil)
	if err != nil {
		return nil, fmt.Errorf("failed to read positions: %w", err)
	}

	result := &model.Primitive{
		Positions:     positions,
		MaterialIndex: -1,
	}

	if normalAccessor, ok := prim.Attributes[gltf.NORMAL]; ok {
		if result.Normals, err = modeler.ReadNormal(e.doc, e.doc.Accessors[normalAccessor], nil); err != nil {
			return nil, fmt.Errorf("failed to read normals: %w", err)
		}
	}

	if texCoordAccessor, ok := prim.Attributes[gltf.TEXCOORD_0]; ok {
		if result.UVs, err = modeler.ReadTextureCoord(e.doc, e.doc.Accessors[texCoordAccessor], nil); err != nil {
			return nil, fmt.Errorf("failed to read texcoords: %w", err)
		}
	}

	if prim.Indices != nil {
		if result.Indices, err = modeler.ReadIndices(e.doc, e.doc.Accessors[*prim.Indices], nil); err != nil {
			return nil, fmt.Errorf("failed to read indices: %w", err)
		}
	}

	// Generate smooth vertex normals from triangle geometry when the file omits the NORMAL attribute.
	if len(result.Normals) == 0 && len(positions) >= 3 {
		result.Normals = generateNormals(positions, result.Indices)
	}

	return result, nil
}

// generateNormals computes area-weighted smooth vertex normals. Non-indexed geometry is treated as
// a triangle list.
func generateNormals(positions [][3]float32, indices []uint32) [][3]float32 {
	n := len(positions)
	if len(indices) == 0 {
		indices = make([]uint32, n)
		for i := range indices {
			indices[i] = uint32(i)
		}
	}
	accum := make([]mgl32.Vec3, n)

	for i := 0; i+2 < len(indices); i += 3 {
		i0, i1, i2 := indices[i], indices[i+1], indices[i+2]
		if int(i0) >= n || int(i1) >= n || int(i2) >= n {
			continue
		}
		p0, p1, p2 := mgl32.Vec3(positions[i0]), mgl32.Vec3(positions[i1]), mgl32.Vec3(positions[i2])

		// Face normal, length proportional to triangle area
		face := p1.Sub(p0).Cross(p2.Sub(p0))
		accum[i0] = accum[i0].Add(face)
		accum[i1] = accum[i1].Add(face)
		accum[i2] = accum[i2].Add(face)
	}

	normals := make([][3]float32, n)
	for i, v := range accum {
		if v.Len() < 1e-6 {
			// Degenerate: default to up vector
			normals[i] = [3]float32{0, 1, 0}
			continue
		}
		normals[i] = v.Normalize()
	}
	return normals
}

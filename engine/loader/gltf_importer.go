package loader

import (
	"context"
	"fmt"

	"github.com/Carmen-Shannon/oxypipe/engine/asset"
	"github.com/Carmen-Shannon/oxypipe/engine/game_object"

	"github.com/qmuntal/gltf"
	"go.uber.org/zap"
)

// gltfImporterImpl is the implementation of the gltfImporter interface.
type gltfImporterImpl struct {
	doc        *gltf.Document
	req        *asset.Request
	extensions []*GLTFExtension
	logger     *zap.Logger
}

// gltfImporter defines the interface for orchestrating a full glTF/GLB import.
// It combines the extractors and the extension hooks to produce the scene graph of a document.
type gltfImporter interface {
	// Import extracts materials, meshes, cameras, lights and the node hierarchy of the document
	// into a model whose root holds the nodes of the default scene.
	//
	// Parameters:
	//   - ctx: the context of the load
	//
	// Returns:
	//   - *asset.Model: the imported scene
	//   - error: error if import fails
	Import(ctx context.Context) (*asset.Model, error)
}

var _ gltfImporter = &gltfImporterImpl{}

func newGLTFImporter(doc *gltf.Document, in *loadInput) gltfImporter {
	return &gltfImporterImpl{
		doc:        doc,
		req:        in.req,
		extensions: in.extensions,
		logger:     in.logger,
	}
}

func (imp *gltfImporterImpl) Import(ctx context.Context) (*asset.Model, error) {
	doc := imp.doc
	hooks := importHooks(doc, imp.extensions)

	materials, err := newGLTFMaterialExtractor(doc, imp.req, imp.logger).ExtractAllMaterials(ctx)
	if err != nil {
		return nil, fmt.Errorf("material extraction failed: %w", err)
	}

	nodeExtractor, err := newGLTFNodeExtractor(doc, newGLTFMeshExtractor(doc, imp.logger), materials, imp.logger)
	if err != nil {
		return nil, fmt.Errorf("light extraction failed: %w", err)
	}
	nodes, err := nodeExtractor.ExtractAllNodes()
	if err != nil {
		return nil, fmt.Errorf("node extraction failed: %w", err)
	}

	root := game_object.NewGameObject(
		game_object.WithName(gltfExtractModelName(doc)),
		game_object.WithType(game_object.TypeScene),
		game_object.WithUserData(map[string]any{
			"rootSceneModelRoot": true,
			"gltfAsset": map[string]any{
				"version":   doc.Asset.Version,
				"generator": doc.Asset.Generator,
				"copyright": doc.Asset.Copyright,
			},
		}),
	)
	if scene := defaultScene(doc); scene != nil {
		for k, v := range extrasMap(scene.Extras) {
			root.UserData()[k] = v
		}
		for _, ni := range scene.Nodes {
			if ni < 0 || ni >= len(nodes) {
				return nil, fmt.Errorf("scene node index %d out of range", ni)
			}
			root.Add(nodes[ni])
		}
	} else {
		for _, n := range nodes {
			if n.Parent() == nil {
				root.Add(n)
			}
		}
	}

	result := &asset.Model{Root: root}
	in := &GLTFImport{Document: doc, Root: root, Nodes: nodes, Model: result}
	for _, h := range hooks {
		if h.AfterRoot == nil {
			continue
		}
		if err := h.AfterRoot(ctx, in); err != nil {
			return nil, fmt.Errorf("extension hook failed: %w", err)
		}
	}

	imp.logger.Debug("imported glTF document",
		zap.Int("nodes", len(nodes)),
		zap.Int("materials", len(materials)),
		zap.Int("meshes", len(doc.Meshes)))
	return result, nil
}

// gltfExtractModelName derives a model name from the default scene. Unnamed scenes are named after
// their path later, by the importer.
func gltfExtractModelName(doc *gltf.Document) string {
	if scene := defaultScene(doc); scene != nil {
		return scene.Name
	}
	return ""
}

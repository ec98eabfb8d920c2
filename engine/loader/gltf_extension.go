package loader

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"

	"github.com/Carmen-Shannon/oxypipe/engine/asset"
	"github.com/Carmen-Shannon/oxypipe/engine/game_object"

	"github.com/qmuntal/gltf"
)

// GLTFImport is the state handed to glTF import hooks once the scene graph of a document is built.
type GLTFImport struct {
	// Document is the decoded glTF document.
	Document *gltf.Document

	// Root is the scene root created for the document.
	Root game_object.GameObject

	// Nodes holds the object created for each document node, index-aligned with Document.Nodes.
	Nodes []game_object.GameObject

	// Model is the result the root is returned in.
	Model *asset.Model
}

// GLTFImportHooks are the import callbacks of a glTF extension for one document.
type GLTFImportHooks struct {
	// AfterRoot runs after the scene graph is built and before the model is returned.
	AfterRoot func(ctx context.Context, in *GLTFImport) error
}

// GLTFExport is the state handed to glTF export hooks while a scene graph is written.
type GLTFExport struct {
	// Document is the document being written.
	Document *gltf.Document

	// Root is the object being exported.
	Root game_object.GameObject

	// Options are the options of the export.
	Options *asset.ExportOptions
}

// GLTFExportHooks are the export callbacks of a glTF extension for one document.
type GLTFExportHooks struct {
	// WriteNode runs for every exported object after its node is filled in.
	WriteNode func(obj game_object.GameObject, node *gltf.Node, out *GLTFExport)

	// AfterParse runs once every node is written, before the document is encoded.
	AfterParse func(ctx context.Context, out *GLTFExport) error
}

// GLTFExtension adds import and export behaviour for a named glTF extension. Either half may be nil.
type GLTFExtension struct {
	// Name is the glTF extension name, e.g. "KHR_materials_clearcoat".
	Name string

	// Import creates the import hooks for one document.
	Import func(doc *gltf.Document) *GLTFImportHooks

	// Export creates the export hooks for one document.
	Export func(doc *gltf.Document) *GLTFExportHooks

	// Textures maps the texture slots the extension reads to the extension property holding them.
	Textures map[string]string
}

// MarkExtensionUsed adds name to the document's extensionsUsed list once.
//
// Parameters:
//   - doc: the document being written
//   - name: the extension name
func MarkExtensionUsed(doc *gltf.Document, name string) {
	if !slices.Contains(doc.ExtensionsUsed, name) {
		doc.ExtensionsUsed = append(doc.ExtensionsUsed, name)
	}
}

// DecodeExtension decodes the extension entry name of exts into v. Extensions without a registered
// decoder arrive as raw JSON, registered ones as Go values; both are handled.
//
// Parameters:
//   - exts: the extensions of a glTF object
//   - name: the extension name
//   - v: a pointer to the destination
//
// Returns:
//   - bool: true if the extension was present
//   - error: error if the entry cannot be decoded into v
func DecodeExtension(exts gltf.Extensions, name string, v any) (bool, error) {
	raw, ok := exts[name]
	if !ok || raw == nil {
		return false, nil
	}
	var data []byte
	switch r := raw.(type) {
	case json.RawMessage:
		data = r
	case []byte:
		data = r
	default:
		b, err := json.Marshal(r)
		if err != nil {
			return true, fmt.Errorf("extension %s: %w", name, err)
		}
		data = b
	}
	if err := json.Unmarshal(data, v); err != nil {
		return true, fmt.Errorf("extension %s: %w", name, err)
	}
	return true, nil
}

func setExtension(exts *gltf.Extensions, name string, v any) {
	if *exts == nil {
		*exts = gltf.Extensions{}
	}
	(*exts)[name] = v
}

// importHooks instantiates the import halves of exts for doc.
func importHooks(doc *gltf.Document, exts []*GLTFExtension) []*GLTFImportHooks {
	hooks := make([]*GLTFImportHooks, 0, len(exts))
	for _, ext := range exts {
		if ext == nil || ext.Import == nil {
			continue
		}
		if h := ext.Import(doc); h != nil {
			hooks = append(hooks, h)
		}
	}
	return hooks
}

// ExportHooks instantiates the export halves of exts for doc.
//
// Parameters:
//   - doc: the document being written
//   - exts: the registered extensions
//
// Returns:
//   - []*GLTFExportHooks: the hooks of the extensions that export anything
func ExportHooks(doc *gltf.Document, exts []*GLTFExtension) []*GLTFExportHooks {
	hooks := make([]*GLTFExportHooks, 0, len(exts))
	for _, ext := range exts {
		if ext == nil || ext.Export == nil {
			continue
		}
		if h := ext.Export(doc); h != nil {
			hooks = append(hooks, h)
		}
	}
	return hooks
}

// DefaultGLTFExtensions returns the extensions every glTF loader and writer starts with.
func DefaultGLTFExtensions() []*GLTFExtension {
	return []*GLTFExtension{ViewerExtension(), Object3DExtrasExtension()}
}

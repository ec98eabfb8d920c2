package loader

import (
	"context"
	"fmt"
	"maps"

	"github.com/Carmen-Shannon/oxypipe/engine/viewer_config"

	"github.com/qmuntal/gltf"
)

const (
	// ViewerExtensionName is the glTF extension carrying an embedded viewer config on the default scene.
	ViewerExtensionName = "WEBGI_viewer"

	// ImportedViewerConfigKey is the root user data key an embedded viewer config is stored under on import.
	ImportedViewerConfigKey = "importedViewerConfig"

	// ExportViewerConfigKey is the root user data key the exporter reads the config to embed from.
	ExportViewerConfigKey = "__exportViewerConfig"
)

// ViewerExtension returns the glTF extension that embeds a viewer config in the default scene of a document.
func ViewerExtension() *GLTFExtension {
	return &GLTFExtension{
		Name: ViewerExtensionName,
		Import: func(*gltf.Document) *GLTFImportHooks {
			return &GLTFImportHooks{AfterRoot: importViewerConfig}
		},
		Export: func(*gltf.Document) *GLTFExportHooks {
			return &GLTFExportHooks{AfterParse: exportViewerConfig}
		},
	}
}

func defaultScene(doc *gltf.Document) *gltf.Scene {
	if doc == nil || len(doc.Scenes) == 0 {
		return nil
	}
	if doc.Scene != nil && *doc.Scene >= 0 && *doc.Scene < len(doc.Scenes) {
		return doc.Scenes[*doc.Scene]
	}
	return doc.Scenes[0]
}

func importViewerConfig(_ context.Context, in *GLTFImport) error {
	scene := defaultScene(in.Document)
	if scene == nil {
		return nil
	}
	raw := map[string]any{}
	ok, err := DecodeExtension(scene.Extensions, ViewerExtensionName, &raw)
	if err != nil || !ok {
		return err
	}

	merged := map[string]any{
		"type":    viewer_config.DefaultType,
		"version": "0",
		"plugins": []any{},
	}
	maps.Copy(merged, raw)
	merged["assetType"] = viewer_config.AssetType

	cfg, err := viewer_config.FromMap(merged)
	if err != nil {
		return fmt.Errorf("%s: %w", ViewerExtensionName, err)
	}
	in.Model.ViewerConfig = cfg
	in.Root.UserData()[ImportedViewerConfigKey] = cfg
	return nil
}

func exportViewerConfig(_ context.Context, out *GLTFExport) error {
	var cfg *viewer_config.ViewerConfig
	switch v := out.Root.UserData()[ExportViewerConfigKey].(type) {
	case *viewer_config.ViewerConfig:
		cfg = v
	case map[string]any:
		c, err := viewer_config.FromMap(v)
		if err != nil {
			return fmt.Errorf("%s: %w", ViewerExtensionName, err)
		}
		cfg = c
	}
	if cfg == nil {
		return nil
	}
	scene := defaultScene(out.Document)
	if scene == nil {
		return nil
	}
	setExtension(&scene.Extensions, ViewerExtensionName, cfg)
	MarkExtensionUsed(out.Document, ViewerExtensionName)
	return nil
}

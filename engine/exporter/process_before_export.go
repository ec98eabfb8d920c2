package exporter

import (
	"fmt"
	"strings"

	"github.com/Carmen-Shannon/oxypipe/common"
	"github.com/Carmen-Shannon/oxypipe/engine/asset"
	"github.com/Carmen-Shannon/oxypipe/engine/material"
	"github.com/Carmen-Shannon/oxypipe/engine/texture"
)

// Prepared is a result reduced to what a writer encodes.
type Prepared struct {
	// Object is handed to the writer.
	Object any

	// Ext is the extension of the written file.
	Ext string

	// TypeExt selects the writer when it differs from Ext, e.g. "json" for a ".pmat" material.
	TypeExt string
}

func (e *exporter) ProcessBeforeExport(result asset.Result, opts *asset.ExportOptions) (*Prepared, error) {
	var exportExt string
	if opts != nil {
		exportExt = strings.ToLower(opts.ExportExt)
	}

	switch r := result.(type) {
	case *asset.Model:
		if r.Root == nil {
			return nil, fmt.Errorf("%w: model has no root", ErrNotExportable)
		}
		return &Prepared{Object: r, Ext: common.Coalesce(exportExt, "glb")}, nil

	case *asset.Material:
		m := r.Material
		if m == nil {
			if r.Imported == nil {
				return nil, fmt.Errorf("%w: empty material", ErrNotExportable)
			}
			var err error
			if m, err = materialFromImported(r.Imported); err != nil {
				return nil, err
			}
		}
		return &Prepared{Object: m, Ext: common.Coalesce(m.TypeSlug(), "json"), TypeExt: "json"}, nil

	case *asset.Texture:
		if exportExt != "" {
			return &Prepared{Object: r, Ext: exportExt}, nil
		}
		return &Prepared{Object: textureJSON(r), Ext: "json"}, nil

	case *asset.Config:
		if r.Config == nil {
			return nil, fmt.Errorf("%w: empty config", ErrNotExportable)
		}
		return &Prepared{Object: r.Config, Ext: "json"}, nil

	case *asset.Files:
		return &Prepared{Object: r.Files, Ext: "zip"}, nil

	case *asset.Data:
		if _, ok := r.Value.(string); ok && strings.HasPrefix(r.MimeType, "text/") {
			return &Prepared{Object: r.Value, Ext: common.Coalesce(exportExt, "txt")}, nil
		}
		return &Prepared{Object: r.Value, Ext: "json"}, nil

	case *asset.Camera, *asset.Light:
		return nil, fmt.Errorf("%w: %s", ErrNotExportable, result.Kind())
	}
	return nil, fmt.Errorf("%w: %T", ErrNotExportable, result)
}

// materialFromImported builds an unregistered framework material holding the values of src.
func materialFromImported(src *common.ImportedMaterial) (material.Material, error) {
	opts := []material.MaterialBuilderOption{material.WithUUID(src.UUID)}
	if src.Type == "unlit" || src.Type == material.UnlitTypeSlug {
		opts = append(opts, material.WithType(material.UnlitTypeSlug, material.UnlitMaterialType))
	}
	m := material.NewMaterial(opts...)
	if err := copyImportedValues(m, src); err != nil {
		return nil, err
	}
	return m, nil
}

func copyImportedValues(m material.Material, src *common.ImportedMaterial) error {
	if err := m.SetValues(src); err != nil {
		return fmt.Errorf("copy values of material %q: %w", src.Name, err)
	}
	return nil
}

// textureJSON describes a texture and embeds its image as a data URL.
func textureJSON(r *asset.Texture) map[string]any {
	src := r.Imported
	doc := map[string]any{
		"name":     r.Name(),
		"userData": exportableUserData(r.UserData()),
	}
	if t := r.Texture; t != nil {
		src = t.Source()
		doc["uuid"] = t.UUID()
		doc["mapping"] = string(t.Mapping())
		doc["flipY"] = t.FlipY()
		doc["generateMipmaps"] = t.GenerateMipmaps()
	} else {
		doc["mapping"] = string(texture.MappingUV)
	}
	if src != nil {
		img := map[string]any{
			"mimeType": src.MimeType,
			"width":    src.Width,
			"height":   src.Height,
		}
		switch {
		case len(src.Data) > 0:
			img["url"] = common.EncodeDataURL(src.Data, src.MimeType)
		case src.Path != "":
			img["url"] = src.Path
		}
		doc["image"] = img
	}
	return doc
}

package loader

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"

	"github.com/Carmen-Shannon/oxypipe/common"
	"github.com/Carmen-Shannon/oxypipe/engine/asset"
	"github.com/Carmen-Shannon/oxypipe/engine/material"
	"github.com/Carmen-Shannon/oxypipe/engine/viewer_config"

	"go.uber.org/zap"
)

var materialExtensions = []string{"mat", "pmat", "bmat"}

// jsonLoaderBackendImpl decodes JSON documents. Viewer configs become Config results, serialized
// materials become Material results and anything else is returned as Data.
type jsonLoaderBackendImpl struct{}

var _ loaderBackend = &jsonLoaderBackendImpl{}

func newJSONLoaderBackend() loaderBackend {
	return &jsonLoaderBackendImpl{}
}

func (b *jsonLoaderBackendImpl) Load(ctx context.Context, in *loadInput) ([]asset.Result, error) {
	var value any
	if err := json.Unmarshal(in.file.Data, &value); err != nil {
		return nil, fmt.Errorf("failed to decode JSON: %w", err)
	}
	obj, _ := value.(map[string]any)
	assetType, _ := obj["assetType"].(string)

	switch {
	case assetType == viewer_config.AssetType:
		cfg, err := viewer_config.Parse(in.file.Data)
		if err != nil {
			return nil, err
		}
		return []asset.Result{&asset.Config{Config: cfg}}, nil

	case assetType == "material" || slices.Contains(materialExtensions, in.req.Ext()):
		imported, err := b.loadMaterial(ctx, in)
		if err != nil {
			return nil, err
		}
		return []asset.Result{&asset.Material{Imported: imported}}, nil
	}

	return []asset.Result{&asset.Data{MimeType: "application/json", Value: value}}, nil
}

// loadMaterial decodes a serialized material and fetches the texture maps it references.
// Maps that cannot be fetched are dropped with a warning.
func (b *jsonLoaderBackendImpl) loadMaterial(ctx context.Context, in *loadInput) (*common.ImportedMaterial, error) {
	typ, id, props, userData, err := material.UnmarshalMaterial(in.file.Data)
	if err != nil {
		return nil, err
	}
	var refs struct {
		Maps map[string]string `json:"maps"`
	}
	if err := json.Unmarshal(in.file.Data, &refs); err != nil {
		return nil, fmt.Errorf("failed to decode material maps: %w", err)
	}

	imported := &common.ImportedMaterial{
		UUID:        id,
		Name:        props.Name,
		Type:        typ,
		BaseColor:   props.BaseColor,
		Metallic:    props.Metallic,
		Roughness:   props.Roughness,
		Emissive:    props.Emissive,
		AlphaMode:   props.AlphaMode,
		AlphaCutoff: props.AlphaCutoff,
		DoubleSided: props.DoubleSided,
		Extras:      userData,
	}
	if imported.Extras == nil {
		imported.Extras = map[string]any{}
	}

	slots := map[string]**common.ImportedTexture{
		"map":          &imported.DiffuseTexture,
		"normalMap":    &imported.NormalTexture,
		"roughnessMap": &imported.MetallicRoughnessTexture,
		"emissiveMap":  &imported.EmissiveTexture,
		"aoMap":        &imported.OcclusionTexture,
	}
	for name, ref := range refs.Maps {
		slot, ok := slots[name]
		if !ok || ref == "" {
			continue
		}
		file, err := in.req.Open(ctx, ref)
		if err != nil {
			in.logger.Warn("failed to fetch material map", zap.String("map", name), zap.String("ref", ref), zap.Error(err))
			continue
		}
		*slot = &common.ImportedTexture{
			Name:     common.FileNameFromPath(ref),
			Path:     ref,
			Data:     file.Data,
			MimeType: file.Mime,
		}
	}
	return imported, nil
}

package exporter

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"

	"github.com/Carmen-Shannon/oxypipe/common"
	"github.com/Carmen-Shannon/oxypipe/engine/asset"
	"github.com/Carmen-Shannon/oxypipe/engine/texture"
)

const jpegQuality = 90

type imageWriter struct{}

var _ asset.Writer = &imageWriter{}

// NewImageWriter creates a writer re-encoding texture images as PNG or JPEG. Sources already in the
// requested format are written unchanged.
//
// Returns:
//   - asset.Writer: the writer
func NewImageWriter() asset.Writer {
	return &imageWriter{}
}

func (w *imageWriter) Write(_ context.Context, obj any, opts *asset.ExportOptions) (*asset.Blob, error) {
	src := textureSource(obj)
	if src == nil {
		return nil, fmt.Errorf("%w: %T is not a texture", ErrNotExportable, obj)
	}

	ext := exportExt(opts, "png")
	mimeType := "image/png"
	if ext == "jpg" || ext == "jpeg" {
		mimeType = "image/jpeg"
	}
	if src.MimeType == mimeType && len(src.Data) > 0 {
		return &asset.Blob{Data: src.Data, Ext: ext, Mime: mimeType}, nil
	}

	pix, width, height, err := src.Decode()
	if err != nil {
		return nil, err
	}
	img := &image.RGBA{Pix: pix, Stride: int(width) * 4, Rect: image.Rect(0, 0, int(width), int(height))}

	var buf bytes.Buffer
	if mimeType == "image/jpeg" {
		err = jpeg.Encode(&buf, img, &jpeg.Options{Quality: jpegQuality})
	} else {
		err = png.Encode(&buf, img)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s: %w", ext, err)
	}
	return &asset.Blob{Data: buf.Bytes(), Ext: ext, Mime: mimeType}, nil
}

func textureSource(obj any) *common.ImportedTexture {
	switch v := obj.(type) {
	case *asset.Texture:
		if v.Texture != nil {
			return v.Texture.Source()
		}
		return v.Imported
	case texture.Texture:
		return v.Source()
	case *common.ImportedTexture:
		return v
	}
	return nil
}

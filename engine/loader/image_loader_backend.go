package loader

import (
	"bufio"
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"strings"

	"github.com/Carmen-Shannon/oxypipe/common"
	"github.com/Carmen-Shannon/oxypipe/engine/asset"

	"go.uber.org/zap"
)

var errNoImageSize = errors.New("image size not found")

// imageLoaderBackendImpl turns an image file into a texture result. LDR formats are measured with
// the image decoders; Radiance HDR and OpenEXR headers are read directly.
type imageLoaderBackendImpl struct{}

var _ loaderBackend = &imageLoaderBackendImpl{}

func newImageLoaderBackend() loaderBackend {
	return &imageLoaderBackendImpl{}
}

func (b *imageLoaderBackendImpl) Load(_ context.Context, in *loadInput) ([]asset.Result, error) {
	if len(in.file.Data) == 0 {
		return nil, fmt.Errorf("image is empty")
	}
	name := in.file.Name
	if name == "" && !common.IsDataURL(in.req.Path) {
		name = common.FileNameFromPath(in.req.Path)
	}
	tex := &common.ImportedTexture{
		Name:     name,
		Path:     in.req.Path,
		Data:     in.file.Data,
		MimeType: common.Coalesce(in.file.Mime, common.DataURLMime(in.req.Path)),
	}

	var err error
	switch in.req.Ext() {
	case "hdr":
		tex.Width, tex.Height, err = radianceSize(tex.Data)
		tex.MimeType = common.Coalesce(tex.MimeType, "image/vnd.radiance")
	case "exr":
		tex.Width, tex.Height, err = exrSize(tex.Data)
		tex.MimeType = common.Coalesce(tex.MimeType, "image/x-exr")
	default:
		err = tex.DecodeConfig()
	}
	if err != nil {
		in.logger.Warn("could not read image size", zap.String("path", in.req.Path), zap.Error(err))
	}

	return []asset.Result{&asset.Texture{Imported: tex}}, nil
}

// radianceSize reads the resolution line of a Radiance RGBE header ("-Y <h> +X <w>").
func radianceSize(data []byte) (int, int, error) {
	sc := bufio.NewScanner(bytes.NewReader(data))
	first := true
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if first {
			if !strings.HasPrefix(line, "#?") {
				return 0, 0, fmt.Errorf("not a Radiance file")
			}
			first = false
			continue
		}
		if line == "" || strings.Contains(line, "=") || strings.HasPrefix(line, "#") {
			continue
		}
		var ya, xa string
		var h, w int
		if _, err := fmt.Sscanf(line, "%s %d %s %d", &ya, &h, &xa, &w); err != nil {
			return 0, 0, fmt.Errorf("bad resolution line %q: %w", line, err)
		}
		if strings.HasSuffix(ya, "X") {
			w, h = h, w
		}
		return w, h, nil
	}
	return 0, 0, errNoImageSize
}

// exrSize reads the dataWindow attribute of an OpenEXR header.
func exrSize(data []byte) (int, int, error) {
	if len(data) < 8 || binary.LittleEndian.Uint32(data) != 20000630 {
		return 0, 0, fmt.Errorf("not an OpenEXR file")
	}
	off := 8
	readString := func() (string, bool) {
		end := bytes.IndexByte(data[off:], 0)
		if end < 0 {
			return "", false
		}
		s := string(data[off : off+end])
		off += end + 1
		return s, true
	}
	for off < len(data) {
		name, ok := readString()
		if !ok || name == "" {
			break
		}
		typ, ok := readString()
		if !ok || off+4 > len(data) {
			break
		}
		size := int(binary.LittleEndian.Uint32(data[off:]))
		off += 4
		if off+size > len(data) {
			break
		}
		if name == "dataWindow" && typ == "box2i" && size == 16 {
			v := data[off:]
			xMin := int32(binary.LittleEndian.Uint32(v[0:]))
			yMin := int32(binary.LittleEndian.Uint32(v[4:]))
			xMax := int32(binary.LittleEndian.Uint32(v[8:]))
			yMax := int32(binary.LittleEndian.Uint32(v[12:]))
			return int(xMax-xMin) + 1, int(yMax-yMin) + 1, nil
		}
		off += size
	}
	return 0, 0, errNoImageSize
}

package loader

import (
	"context"
	"unicode/utf8"

	"github.com/Carmen-Shannon/oxypipe/common"
	"github.com/Carmen-Shannon/oxypipe/engine/asset"

	"go.uber.org/zap"
)

// textLoaderBackendImpl returns the file contents as a string Data result.
type textLoaderBackendImpl struct{}

var _ loaderBackend = &textLoaderBackendImpl{}

func newTextLoaderBackend() loaderBackend {
	return &textLoaderBackendImpl{}
}

func (b *textLoaderBackendImpl) Load(_ context.Context, in *loadInput) ([]asset.Result, error) {
	if !utf8.Valid(in.file.Data) {
		in.logger.Warn("text file is not valid UTF-8", zap.String("path", in.req.Path))
	}
	return []asset.Result{&asset.Data{
		MimeType: common.Coalesce(in.file.Mime, "text/plain"),
		Value:    string(in.file.Data),
	}}, nil
}

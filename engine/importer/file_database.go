package importer

import (
	"github.com/Carmen-Shannon/oxypipe/common"
	"github.com/Carmen-Shannon/oxypipe/engine/asset"

	"go.uber.org/zap"
)

func (i *importer) RegisterFile(path string, file *asset.File, ext string, handler asset.Loader) asset.Loader {
	e, err := i.registerFile(path, file, ext, handler)
	if err != nil {
		i.logger.Debug("no loader for registered file", zap.String("path", path), zap.Error(err))
		return nil
	}
	return e.loader
}

func (i *importer) registerFile(path string, file *asset.File, ext string, handler asset.Loader) (*loaderCacheEntry, error) {
	isData := common.IsDataURL(path)
	if !isData {
		path, _ = common.StripQuery(path)
	}

	var mime string
	if ext == "" && !isData {
		if file != nil && file.Ext != "" {
			ext = file.Ext
		} else if file != nil && file.Name != "" {
			ext = common.FileExtension(file.Name)
		}
		if ext == "" {
			ext = common.FileExtension(path)
		}
	}
	if file != nil && file.Mime != "" {
		mime = file.Mime
	} else if isData {
		mime = common.DataURLMime(path)
	}

	if file != nil {
		if file.Name == "" {
			file.Name = common.FileNameFromPath(path)
		}
		if file.Path == "" {
			file.Path = path
		}
		if file.Ext == "" {
			file.Ext = ext
		}
		if file.Mime == "" {
			file.Mime = mime
		}

		i.mu.Lock()
		old, exists := i.files[path]
		if exists && old != file {
			i.logger.Warn("file already registered, replacing", zap.String("path", path))
			i.revokeLocked(old)
		}
		i.files[path] = file
		i.mu.Unlock()
	}

	if handler != nil {
		return &loaderCacheEntry{loader: handler}, nil
	}
	return i.loaderFor(path, ext, mime)
}

func (i *importer) UnregisterFile(path string) {
	path, _ = common.StripQuery(path)
	i.mu.Lock()
	defer i.mu.Unlock()
	file, ok := i.files[path]
	if !ok {
		return
	}
	i.revokeLocked(file)
	delete(i.files, path)
}

func (i *importer) revokeLocked(file *asset.File) {
	if file.ObjectURL != "" {
		i.blobs.Revoke(file.ObjectURL)
		file.ObjectURL = ""
	}
}

func (i *importer) UnregisterAllFiles() {
	i.mu.Lock()
	defer i.mu.Unlock()
	for path, file := range i.files {
		i.revokeLocked(file)
		delete(i.files, path)
	}
}

func (i *importer) RegisteredFile(path string) *asset.File {
	if !common.IsDataURL(path) {
		path, _ = common.StripQuery(path)
	}
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.files[path]
}

// objectURL returns the object URL of the file registered at path, assigning one on first use.
func (i *importer) objectURL(path string) (string, *asset.File) {
	i.mu.Lock()
	defer i.mu.Unlock()
	file := i.files[path]
	if file == nil {
		return "", nil
	}
	if file.Ext == "" {
		i.logger.Warn("unable to determine file extension", zap.String("path", path))
		return "", nil
	}
	if file.ObjectURL == "" {
		file.ObjectURL = i.blobs.Create(file, path)
	}
	return file.ObjectURL, file
}

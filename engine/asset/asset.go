// Package asset defines the data model shared by the importer, the exporter and the format loaders:
// files, assets, the import result union and the loader and writer plugin contracts.
package asset

// Kind identifies the variant of a Result.
type Kind string

const (
	KindModel    Kind = "model"
	KindMaterial Kind = "material"
	KindTexture  Kind = "texture"
	KindCamera   Kind = "camera"
	KindLight    Kind = "light"
	KindConfig   Kind = "config"
	KindFiles    Kind = "files"
	KindData     Kind = "data"
)

// Source is anything the importer can import: a Path, an *Asset, a *File or a Batch of those.
type Source interface {
	isSource()
}

// Path is a URL, data URL or virtual file path.
type Path string

// Batch is a list of sources imported concurrently. Results are flattened in input order.
type Batch []Source

// Asset is a path or file the importer keeps in its cache together with the results of its last import.
type Asset struct {
	// Path is the location the asset is loaded from. It is also the cache key.
	Path string

	// File, when set, is used instead of fetching Path.
	File *File
}

func (Path) isSource()   {}
func (Batch) isSource()  {}
func (*Asset) isSource() {}
func (*File) isSource()  {}

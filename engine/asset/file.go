package asset

import (
	"github.com/Carmen-Shannon/oxypipe/common"

	"github.com/h2non/filetype"
)

// File is an in-memory file, either dropped by a user, extracted from an archive or downloaded.
type File struct {
	// Name is the base name of the file.
	Name string

	// Path is the virtual path the file was registered under.
	Path string

	// Ext is the lower-case extension without the dot.
	Ext string

	// Mime is the media type, if known.
	Mime string

	Data []byte

	// ObjectURL is the blob URL assigned while the file is registered with an importer.
	ObjectURL string
}

// NewFile creates a file from a name and its contents. The extension is taken from the name; when the
// name has none the content is sniffed for a known signature.
//
// Parameters:
//   - name: the file name or virtual path
//   - data: the file contents
//
// Returns:
//   - *File: the new file
func NewFile(name string, data []byte) *File {
	f := &File{
		Name: common.FileNameFromPath(name),
		Path: name,
		Data: data,
	}
	f.Detect()
	return f
}

// Detect fills Ext and Mime when they are empty, from the name first and the content second.
func (f *File) Detect() {
	if f.Ext == "" {
		f.Ext = common.FileExtension(f.Name)
	}
	if f.Ext != "" && f.Mime == "" {
		if t := filetype.GetType(f.Ext); t != filetype.Unknown {
			f.Mime = t.MIME.Value
		}
	}
	if f.Ext != "" || len(f.Data) == 0 {
		return
	}
	kind, err := filetype.Match(f.Data)
	if err != nil || kind == filetype.Unknown {
		return
	}
	f.Ext = kind.Extension
	if f.Mime == "" {
		f.Mime = kind.MIME.Value
	}
}

// Size returns the length of the file contents.
func (f *File) Size() int {
	return len(f.Data)
}

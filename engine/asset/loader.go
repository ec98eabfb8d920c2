package asset

import (
	"context"
	"slices"
	"strings"

	"github.com/Carmen-Shannon/oxypipe/common"
)

// Loader decodes one file into import results.
type Loader interface {
	// Load reads the requested file and decodes it.
	//
	// Parameters:
	//   - ctx: the context of the import
	//   - req: the file to load and the means to fetch its sub-resources
	//
	// Returns:
	//   - []Result: the decoded results
	//   - error: error if the file cannot be read or decoded
	Load(ctx context.Context, req *Request) ([]Result, error)
}

// Transformer is implemented by loaders that post-process their own results before the importer does.
type Transformer interface {
	// Transform rewrites freshly loaded results.
	//
	// Parameters:
	//   - ctx: the context of the import
	//   - results: the loaded results
	//   - opts: the import options
	//
	// Returns:
	//   - []Result: the transformed results
	//   - error: error if the transform fails
	Transform(ctx context.Context, results []Result, opts *ImportOptions) ([]Result, error)
}

// Disposer is implemented by loaders that hold resources released when the loader cache is cleared.
type Disposer interface {
	Dispose()
}

// FetchFunc resolves a path or URL to file contents.
type FetchFunc func(ctx context.Context, ref string) (*File, error)

// Request describes a single file load. Each load gets its own Request, so relative references are
// always resolved against the file being loaded even when loads run concurrently.
type Request struct {
	// Path is the path being loaded, without query string.
	Path string

	// Query is the query string appended when fetching Path, without the leading "?".
	Query string

	// RootURL is the directory of Path that relative references resolve against.
	RootURL string

	// File is the registered or imported file for Path, if any.
	File *File

	// Options are the options of the import.
	Options *ImportOptions

	// Fetch resolves references. Relative references are joined with RootURL first.
	Fetch FetchFunc

	// Progress, when set, receives download progress for Path.
	Progress func(loaded, total int64)
}

// Read returns the contents of the requested file.
//
// Parameters:
//   - ctx: the context of the load
//
// Returns:
//   - *File: the file
//   - error: error if the file cannot be fetched
func (r *Request) Read(ctx context.Context) (*File, error) {
	if r.File != nil && r.File.Data != nil {
		return r.File, nil
	}
	p := r.Path
	if r.Query != "" {
		p += "?" + r.Query
	}
	return r.Fetch(ctx, p)
}

// Open fetches a sub-resource referenced by the requested file.
//
// Parameters:
//   - ctx: the context of the load
//   - ref: the reference, relative to the requested file or absolute
//
// Returns:
//   - *File: the referenced file
//   - error: error if the reference cannot be fetched
func (r *Request) Open(ctx context.Context, ref string) (*File, error) {
	return r.Fetch(ctx, ref)
}

// Ext returns the extension that selected the loader for this request.
func (r *Request) Ext() string {
	if r.Options != nil && r.Options.FileExtension != "" {
		return strings.ToLower(r.Options.FileExtension)
	}
	if r.File != nil && r.File.Ext != "" {
		return r.File.Ext
	}
	return common.FileExtension(r.Path)
}

// Importer registers a loader constructor for a set of extensions and media types.
type Importer struct {
	// Name identifies the registration in logs and metrics.
	Name string

	// Ext lists lower-case extensions without dot. Entries starting with "data:" match data URL prefixes.
	Ext []string

	// Mime lists media types.
	Mime []string

	// Root marks formats that are top-level assets when several files are imported together.
	Root bool

	// New creates the loader. It is called once per importer until the loader cache is cleared.
	New func() (Loader, error)
}

// Matches reports whether the registration can load a file with the given name, extension and media type.
//
// Parameters:
//   - name: the file name or path
//   - ext: the lower-case extension, may be empty
//   - mime: the media type, may be empty
//
// Returns:
//   - bool: true if the registration applies
func (i *Importer) Matches(name, ext, mime string) bool {
	if mime != "" && slices.Contains(i.Mime, strings.ToLower(mime)) {
		return true
	}
	lname := strings.ToLower(name)
	for _, e := range i.Ext {
		if strings.HasPrefix(e, "data:") {
			if strings.HasPrefix(lname, e) {
				return true
			}
			continue
		}
		if ext != "" {
			if e == ext {
				return true
			}
			continue
		}
		if strings.HasSuffix(lname, "."+e) {
			return true
		}
	}
	return false
}

// IsRoot reports whether a file with this extension or media type is a top-level asset for the registration.
func (i *Importer) IsRoot(ext, mime string) bool {
	if !i.Root {
		return false
	}
	return (ext != "" && slices.Contains(i.Ext, strings.ToLower(ext))) ||
		(mime != "" && slices.Contains(i.Mime, strings.ToLower(mime)))
}

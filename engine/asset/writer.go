package asset

import (
	"context"
	"slices"
)

// Blob is the output of an export.
type Blob struct {
	Data []byte

	// Ext is the extension of the written format.
	Ext string

	// Mime is the media type of the written format.
	Mime string
}

// Writer encodes a prepared object into a Blob.
type Writer interface {
	// Write encodes obj.
	//
	// Parameters:
	//   - ctx: the context of the export
	//   - obj: the object prepared by the exporter for this format
	//   - opts: the export options, with ExportExt set to the chosen extension
	//
	// Returns:
	//   - *Blob: the encoded output
	//   - error: error if obj cannot be encoded
	Write(ctx context.Context, obj any, opts *ExportOptions) (*Blob, error)
}

// Exporter registers a writer constructor for a group of extensions.
type Exporter struct {
	// Name identifies the registration in logs and metrics.
	Name string

	// Ext lists the extensions the writer produces.
	Ext []string

	// New creates the writer. It is called at most once per registration.
	New func() (Writer, error)
}

// Handles reports whether the registration produces any of the given extensions.
func (e *Exporter) Handles(ext ...string) bool {
	for _, x := range ext {
		if slices.Contains(e.Ext, x) {
			return true
		}
	}
	return false
}

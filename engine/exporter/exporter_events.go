package exporter

import (
	"github.com/Carmen-Shannon/oxypipe/engine/asset"
)

// ExportFileState is the stage of a single export.
type ExportFileState string

const (
	StateProcessing ExportFileState = "processing"
	StateExporting  ExportFileState = "exporting"
	StateDone       ExportFileState = "done"
	StateError      ExportFileState = "error"
)

// ExportFileEvent reports the progress of one export.
type ExportFileEvent struct {
	Result  asset.Result
	State   ExportFileState
	Options *asset.ExportOptions

	// Err is set when State is StateError.
	Err error
}

// ExporterCreateEvent is dispatched when a writer is created for an exporter registration.
type ExporterCreateEvent struct {
	Exporter *asset.Exporter
	Writer   asset.Writer
}

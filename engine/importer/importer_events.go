package importer

import (
	"github.com/Carmen-Shannon/oxypipe/engine/asset"
)

// ImportFileState is the stage of a single file load.
type ImportFileState string

const (
	StateDownloading ImportFileState = "downloading"
	StateAdding      ImportFileState = "adding"
	StateDone        ImportFileState = "done"
	StateError       ImportFileState = "error"
)

// ImportFilesState marks the start and end of a multi-file import.
type ImportFilesState string

const (
	ImportFilesStart ImportFilesState = "start"
	ImportFilesEnd   ImportFilesState = "end"
)

// ImportFileEvent reports the progress of one file load.
type ImportFileEvent struct {
	Path  string
	State ImportFileState

	// Progress is between 0 and 1 while downloading.
	Progress float64

	LoadedBytes int64
	TotalBytes  int64

	// Err is set when State is StateError.
	Err error
}

// ImportFilesEvent is dispatched before and after ImportFiles loads a group of files.
type ImportFilesEvent struct {
	Files map[string]*asset.File
	State ImportFilesState
}

// ProcessRawEvent is dispatched around the processing of each loaded result.
type ProcessRawEvent struct {
	Result  asset.Result
	Options *asset.ImportOptions
	Path    string
}

// LoaderCreateEvent is dispatched when a loader is created for an importer registration.
type LoaderCreateEvent struct {
	Importer *asset.Importer
	Loader   asset.Loader
}

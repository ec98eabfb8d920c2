package importer

import (
	"strings"
	"sync"

	"github.com/Carmen-Shannon/oxypipe/engine/asset"

	"github.com/google/uuid"
)

// BlobStore hands out object URLs for registered files.
type BlobStore interface {
	// Create assigns a new object URL to a file.
	//
	// Parameters:
	//   - file: the file to expose
	//   - path: the virtual path of the file, kept as the URL fragment
	//
	// Returns:
	//   - string: the object URL
	Create(file *asset.File, path string) string

	// Get resolves an object URL.
	//
	// Parameters:
	//   - url: the object URL, with or without fragment
	//
	// Returns:
	//   - *asset.File: the file
	//   - bool: false if the URL is unknown or revoked
	Get(url string) (*asset.File, bool)

	// Revoke releases an object URL. Revoking an unknown URL does nothing.
	//
	// Parameters:
	//   - url: the object URL
	Revoke(url string)
}

type blobStore struct {
	mu    sync.RWMutex
	blobs map[string]*asset.File
}

var _ BlobStore = &blobStore{}

// NewBlobStore creates an in-memory BlobStore issuing "blob:oxypipe/<uuid>#<path>" URLs.
//
// Returns:
//   - BlobStore: the new store
func NewBlobStore() BlobStore {
	return &blobStore{blobs: make(map[string]*asset.File)}
}

func (s *blobStore) Create(file *asset.File, path string) string {
	id := "blob:oxypipe/" + uuid.NewString()
	s.mu.Lock()
	s.blobs[id] = file
	s.mu.Unlock()
	return id + "#" + path
}

func (s *blobStore) Get(url string) (*asset.File, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	f, ok := s.blobs[blobID(url)]
	return f, ok
}

func (s *blobStore) Revoke(url string) {
	s.mu.Lock()
	delete(s.blobs, blobID(url))
	s.mu.Unlock()
}

func blobID(url string) string {
	id, _, _ := strings.Cut(url, "#")
	return id
}

// Package storage caches downloaded files so repeated imports of the same URL do not hit the network.
package storage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// ErrNotFound is returned by Get when the key is missing or its entry expired.
var ErrNotFound = errors.New("storage: entry not found")

// StorageBackendType selects where entries are kept.
type StorageBackendType int

const (
	BackendTypeMemory StorageBackendType = iota
	BackendTypeRedis
	BackendTypeSQLite
)

func (t StorageBackendType) String() string {
	switch t {
	case BackendTypeMemory:
		return "memory"
	case BackendTypeRedis:
		return "redis"
	case BackendTypeSQLite:
		return "sqlite"
	}
	return fmt.Sprintf("StorageBackendType(%d)", int(t))
}

// ParseBackendType maps a driver name from configuration to a StorageBackendType.
//
// Parameters:
//   - name: "memory", "redis" or "sqlite"
//
// Returns:
//   - StorageBackendType: the backend type
//   - error: error if the name is unknown
func ParseBackendType(name string) (StorageBackendType, error) {
	switch name {
	case "", "memory":
		return BackendTypeMemory, nil
	case "redis":
		return BackendTypeRedis, nil
	case "sqlite":
		return BackendTypeSQLite, nil
	}
	return 0, fmt.Errorf("unknown storage driver %q", name)
}

// Entry is a cached file.
type Entry struct {
	Data     []byte    `json:"data"`
	Mime     string    `json:"mime,omitempty"`
	StoredAt time.Time `json:"storedAt"`
}

// storage is the implementation of the Storage interface.
type storage struct {
	backendType StorageBackendType
	backend     storageBackend

	ttl       time.Duration
	prefix    string
	maxItems  int
	redisOpts *redisOptions
	sqlPath   string

	logger *zap.Logger
}

// Storage is a key/value store for downloaded files. Keys are hashed before they reach the backend, so
// any URL can be used as a key.
type Storage interface {
	// Get returns the entry stored under key.
	//
	// Parameters:
	//   - ctx: the context of the lookup
	//   - key: the key, usually a URL
	//
	// Returns:
	//   - *Entry: the entry
	//   - error: ErrNotFound if there is no live entry, or a backend error
	Get(ctx context.Context, key string) (*Entry, error)

	// Set stores an entry under key, replacing any previous entry. The entry expires after the
	// configured TTL; a zero TTL keeps it until it is deleted.
	//
	// Parameters:
	//   - ctx: the context of the write
	//   - key: the key, usually a URL
	//   - entry: the entry to store
	//
	// Returns:
	//   - error: error if the backend rejects the write
	Set(ctx context.Context, key string, entry *Entry) error

	// Delete removes the entry stored under key. Deleting a missing key is not an error.
	//
	// Parameters:
	//   - ctx: the context of the delete
	//   - key: the key
	//
	// Returns:
	//   - error: error if the backend rejects the delete
	Delete(ctx context.Context, key string) error

	// Clear removes every entry written by this storage.
	//
	// Parameters:
	//   - ctx: the context of the clear
	//
	// Returns:
	//   - error: error if the backend rejects the clear
	Clear(ctx context.Context) error

	// BackendType returns the backend the storage was created with.
	//
	// Returns:
	//   - StorageBackendType: the backend type
	BackendType() StorageBackendType

	// Close releases the backend connection.
	//
	// Returns:
	//   - error: error if the backend fails to close
	Close() error
}

var _ Storage = &storage{}

// NewStorage creates a Storage backed by the given backend type.
//
// Parameters:
//   - backendType: where entries are kept
//   - options: functional options to configure the storage
//
// Returns:
//   - Storage: the new storage
//   - error: error if the backend cannot be opened
func NewStorage(backendType StorageBackendType, options ...StorageBuilderOption) (Storage, error) {
	s := &storage{
		backendType: backendType,
		prefix:      "oxypipe:download:",
		logger:      zap.NewNop(),
	}
	for _, opt := range options {
		opt(s)
	}
	s.logger = s.logger.With(zap.String("component", "storage"), zap.Stringer("backend", backendType))

	var err error
	switch backendType {
	case BackendTypeMemory:
		s.backend = newMemoryStorageBackend(s.maxItems)
	case BackendTypeRedis:
		s.backend, err = newRedisStorageBackend(s.redisOpts, s.prefix)
	case BackendTypeSQLite:
		s.backend, err = newSQLiteStorageBackend(s.sqlPath)
	default:
		err = fmt.Errorf("unknown storage backend %v", backendType)
	}
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (s *storage) Get(ctx context.Context, key string) (*Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	entry, err := s.backend.get(ctx, hashKey(key))
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			s.logger.Warn("storage read failed", zap.String("key", key), zap.Error(err))
		}
		return nil, err
	}
	return entry, nil
}

func (s *storage) Set(ctx context.Context, key string, entry *Entry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if entry == nil {
		return fmt.Errorf("storage: nil entry for %q", key)
	}
	if entry.StoredAt.IsZero() {
		entry.StoredAt = time.Now()
	}
	if err := s.backend.set(ctx, hashKey(key), entry, s.ttl); err != nil {
		s.logger.Warn("storage write failed", zap.String("key", key), zap.Error(err))
		return err
	}
	s.logger.Debug("stored entry", zap.String("key", key), zap.Int("bytes", len(entry.Data)))
	return nil
}

func (s *storage) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.backend.delete(ctx, hashKey(key))
}

func (s *storage) Clear(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.backend.clear(ctx)
}

func (s *storage) BackendType() StorageBackendType {
	return s.backendType
}

func (s *storage) Close() error {
	return s.backend.close()
}

func hashKey(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}

// storageBackend is the contract every backend implements. Keys are already hashed.
type storageBackend interface {
	get(ctx context.Context, key string) (*Entry, error)
	set(ctx context.Context, key string, entry *Entry, ttl time.Duration) error
	delete(ctx context.Context, key string) error
	clear(ctx context.Context) error
	close() error
}
